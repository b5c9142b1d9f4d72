package models

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"bitbucket.org/mmdatafocus/slr_backend/config"
)

// seedRunData writes the initial snapshot pair so the run passes the
// data availability check.
func seedRunData(t *testing.T, run *CalculationRun) {
	t.Helper()

	if err := os.MkdirAll(run.DataPath(), 0o755); err != nil {
		t.Fatalf("mkdir run data: %v", err)
	}
	writeSnapshotFile(t, filepath.Join(run.DataPath(), "result_initial.xlsx"),
		[]string{"Libelle projet"}, [][]interface{}{{"Alpha"}})
	writeSnapshotFile(t, filepath.Join(run.DataPath(), "employee_summary_initial.xlsx"),
		[]string{"Nom"}, [][]interface{}{{"Marie"}})
}

// Needs a real MySQL instance; see .env for connection settings.
func TestResolveRunPriorityChain(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run database-backed tests")
	}

	config.ConnectDatabaseWithRetry()
	MigrateTable()
	ctx := context.Background()
	db := config.GetDB()
	t.Setenv("RUNS_DATA_ROOT", t.TempDir())

	user := "selector-user-" + uuid.NewString()

	runA, err := CreateCalculationRun(ctx, &NewCalculationRun{DataDirectory: "selector-a-" + uuid.NewString()})
	if err != nil {
		t.Fatalf("create run A: %v", err)
	}
	seedRunData(t, runA)
	if _, err := MarkRunCompleted(ctx, runA.RunId); err != nil {
		t.Fatalf("complete run A: %v", err)
	}
	// Push run A into the past so recency ordering is deterministic.
	if err := db.Model(runA).Update("created_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("backdate run A: %v", err)
	}

	runB, err := CreateCalculationRun(ctx, &NewCalculationRun{DataDirectory: "selector-b-" + uuid.NewString()})
	if err != nil {
		t.Fatalf("create run B: %v", err)
	}
	seedRunData(t, runB)
	if _, err := MarkRunCompleted(ctx, runB.RunId); err != nil {
		t.Fatalf("complete run B: %v", err)
	}

	runC, err := CreateCalculationRun(ctx, &NewCalculationRun{DataDirectory: "selector-c-" + uuid.NewString()})
	if err != nil {
		t.Fatalf("create run C: %v", err)
	}

	// No explicit id, no preference: newest available run wins.
	got, err := ResolveRun(ctx, user, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got == nil || got.RunId != runB.RunId {
		t.Fatalf("expected latest run %s, got %+v", runB.RunId, got)
	}

	// Stored preference beats recency.
	if err := SetPreferredRun(ctx, user, runA.RunId); err != nil {
		t.Fatalf("set preference: %v", err)
	}
	got, err = ResolveRun(ctx, user, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got == nil || got.RunId != runA.RunId {
		t.Fatalf("expected preferred run %s, got %+v", runA.RunId, got)
	}

	// Explicit id beats the preference.
	got, err = ResolveRun(ctx, user, runB.RunId)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got == nil || got.RunId != runB.RunId {
		t.Fatalf("expected explicit run %s, got %+v", runB.RunId, got)
	}

	// A processing run is not servable: fall through to the preference.
	got, err = ResolveRun(ctx, user, runC.RunId)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got == nil || got.RunId != runA.RunId {
		t.Fatalf("expected fallback to preferred run %s, got %+v", runA.RunId, got)
	}

	// A preference whose snapshot files are gone falls through to recency.
	if err := os.RemoveAll(runA.DataPath()); err != nil {
		t.Fatalf("remove run A data: %v", err)
	}
	got, err = ResolveRun(ctx, user, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got == nil || got.RunId != runB.RunId {
		t.Fatalf("expected fallback to latest run %s, got %+v", runB.RunId, got)
	}
}

func TestSetPreferredRunRejectsUnservableRun(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run database-backed tests")
	}

	config.ConnectDatabaseWithRetry()
	MigrateTable()
	ctx := context.Background()

	user := "selector-user-" + uuid.NewString()

	if err := SetPreferredRun(ctx, user, uuid.NewString()); err == nil {
		t.Fatal("expected error for unknown run id")
	}

	run, err := CreateCalculationRun(ctx, &NewCalculationRun{DataDirectory: "selector-d-" + uuid.NewString()})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := SetPreferredRun(ctx, user, run.RunId); err == nil {
		t.Fatal("expected error for processing run")
	}

	if _, err := MarkRunFailed(ctx, run.RunId, "boom"); err != nil {
		t.Fatalf("fail run: %v", err)
	}
	if err := SetPreferredRun(ctx, user, run.RunId); err == nil {
		t.Fatal("expected error for failed run")
	}
}
