package reports

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"bitbucket.org/mmdatafocus/slr_backend/config"
	"bitbucket.org/mmdatafocus/slr_backend/models"
)

// Needs a real Redis instance; see .env for connection settings.
func TestReportCacheLifecycle(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run redis-backed tests")
	}

	config.ConnectRedisWithRetry()
	ctx := context.Background()

	run := newFixtureRun(t, "cache-"+uuid.NewString())
	run.RunId = uuid.NewString()
	writeResult(t, run, "initial", [][]interface{}{
		{"Alpha", 10, 9, 1, 0, 1000, 1100, 100},
	})
	writeEmployeeSummary(t, run, "initial", [][]interface{}{
		{"Marie", "Alpha", 10, 100, 950, 0},
	})
	writeAdjusted(t, run, "initial", [][]interface{}{
		{"E1", "Marie", "Senior", "Alpha", 10, 9, 1, 100, 950, 900},
	})

	user := "cache-user-" + uuid.NewString()

	first := GetOrComputeAllocationReport(ctx, user, run, false)
	if !first.Available {
		t.Fatalf("first read unavailable: %s", first.Reason)
	}

	// Remove the snapshots: a cache hit must not touch the filesystem.
	if err := os.Remove(filepath.Join(run.DataPath(), "result_initial.xlsx")); err != nil {
		t.Fatalf("remove fixture: %v", err)
	}
	if err := os.Remove(filepath.Join(run.DataPath(), "employee_summary_initial.xlsx")); err != nil {
		t.Fatalf("remove fixture: %v", err)
	}

	second := GetOrComputeAllocationReport(ctx, user, run, false)
	if !second.Available {
		t.Fatal("expected cached report after snapshot removal")
	}
	if second.Overall.TotalBudgetEstime.String() != "1000" {
		t.Fatalf("cached report corrupted, budget %s", second.Overall.TotalBudgetEstime)
	}

	// Invalidation forces a recompute, which now fails on missing files.
	if err := models.InvalidateUserReports(user); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	third := GetOrComputeAllocationReport(ctx, user, run, false)
	if third.Available {
		t.Fatal("expected recompute to report unavailable after invalidation")
	}
}

func TestReportCacheForceRefresh(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run redis-backed tests")
	}

	config.ConnectRedisWithRetry()
	ctx := context.Background()

	run := newFixtureRun(t, "cache-"+uuid.NewString())
	run.RunId = uuid.NewString()
	writeResult(t, run, "initial", [][]interface{}{
		{"Alpha", 10, 9, 1, 0, 1000, 1100, 100},
	})
	writeEmployeeSummary(t, run, "initial", [][]interface{}{
		{"Marie", "Alpha", 10, 100, 950, 0},
	})
	writeAdjusted(t, run, "initial", [][]interface{}{
		{"E1", "Marie", "Senior", "Alpha", 10, 9, 1, 100, 950, 900},
	})

	user := "cache-user-" + uuid.NewString()

	if report := GetOrComputeAllocationReport(ctx, user, run, false); !report.Available {
		t.Fatalf("first read unavailable: %s", report.Reason)
	}

	// New adjusted figures land as an updated snapshot.
	writeResult(t, run, "updated", [][]interface{}{
		{"Alpha", 10, 8, 2, 0, 1500, 900, -600},
	})

	stale := GetOrComputeAllocationReport(ctx, user, run, false)
	if stale.Overall.TotalBudgetEstime.String() != "1000" {
		t.Fatalf("expected stale cached budget 1000, got %s", stale.Overall.TotalBudgetEstime)
	}

	fresh := GetOrComputeAllocationReport(ctx, user, run, true)
	if fresh.Overall.TotalBudgetEstime.String() != "1500" {
		t.Fatalf("expected refreshed budget 1500, got %s", fresh.Overall.TotalBudgetEstime)
	}
}
