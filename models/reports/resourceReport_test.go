package reports

import (
	"context"
	"testing"
)

func TestComputeResourceReport(t *testing.T) {
	run := newFixtureRun(t, "202401")
	writeResult(t, run, "initial", [][]interface{}{
		// Over runs its budget by 50, which is 50% of budget: urgent.
		{"Over", 12, 10, 2, 0, 100, 150, 50},
		{"Under", 12, 10, 2, 0, 200, 100, -100},
	})
	writeEmployeeSummary(t, run, "initial", [][]interface{}{
		{"Marie", "Over", 12, 10, 150, 0},
		{"Jean", "Under", 12, 10, 100, 0},
	})
	writeAdjusted(t, run, "initial", [][]interface{}{
		{"E1", "Marie", "Senior", "Over", 12, 10, 2, 10, 150, 150},
		{"E2", "Jean", "Junior", "Under", 12, 10, 2, 10, 100, 100},
	})

	report, err := ComputeResourceReport(context.Background(), run)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if report.ProjetsDepassantBudget != 1 {
		t.Fatalf("expected 1 project over budget, got %d", report.ProjetsDepassantBudget)
	}
	if report.ProjetsSousBudget != 1 {
		t.Fatalf("expected 1 project under budget, got %d", report.ProjetsSousBudget)
	}
	if report.MontantDepassement.String() != "50" {
		t.Fatalf("expected overrun amount 50, got %s", report.MontantDepassement)
	}
	if len(report.ProjetsUrgents) != 1 || report.ProjetsUrgents[0].Project != "Over" {
		t.Fatalf("expected Over flagged urgent, got %+v", report.ProjetsUrgents)
	}
	if report.ProjetsUrgents[0].OverrunPct.String() != "50" {
		t.Fatalf("expected 50%% overrun, got %s", report.ProjetsUrgents[0].OverrunPct)
	}
	if report.RemoveFromProject != "Over" {
		t.Fatalf("expected hour removal to target Over, got %q", report.RemoveFromProject)
	}
	if report.PotentialSavings.String() != "50" {
		t.Fatalf("expected potential savings 50, got %s", report.PotentialSavings)
	}
	// 250 adjusted cost over 20 adjusted hours.
	if report.CoutMoyenHeure.String() != "12.5" {
		t.Fatalf("expected mean hourly cost 12.5, got %s", report.CoutMoyenHeure)
	}
	// Over's effective rate is 150/10 = 15; 50 overrun / 15 = 3.33 hours.
	if report.MaxHoursToRemove.String() != "3.33" {
		t.Fatalf("expected 3.33 removable hours, got %s", report.MaxHoursToRemove)
	}
}

func TestComputeResourceReportUnavailable(t *testing.T) {
	run := newFixtureRun(t, "202402")

	if _, err := ComputeResourceReport(context.Background(), run); err == nil {
		t.Fatal("expected error when snapshots are missing")
	}
}
