package reports

import (
	"context"
	"path/filepath"
	"testing"
)

func TestExportAllTablesFiltersZeroProjects(t *testing.T) {
	run := newFixtureRun(t, "202401")
	writeResult(t, run, "initial", [][]interface{}{
		{"Alpha", 10, 9, 1, 0, 1000, 1100, 100},
		{"Ghost", 0, 0, 0, 0, 0, 0, 0},
	})
	writeEmployeeSummary(t, run, "initial", [][]interface{}{
		{"Marie", "Alpha", 10, 100, 950, 0},
		{"Jean", "Ghost", 0, 0, 0, 0},
	})
	writeSnapshotFile(t, filepath.Join(run.DataPath(), "global_summary_initial.xlsx"),
		[]string{"Libelle projet", "Total Heures", "Total", "Total DES", "Estimees"},
		[][]interface{}{
			{"Alpha", 10, 950, 0, 1000},
			{"Ghost", 0, 0, 0, 0},
		})

	export, err := ExportAllTables(context.Background(), run)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if len(export.Result) != 1 {
		t.Fatalf("expected zero-sum project filtered from result, got %d rows", len(export.Result))
	}
	if export.Result[0]["Libelle projet"] != "Alpha" {
		t.Fatalf("unexpected surviving project: %v", export.Result[0]["Libelle projet"])
	}
	if len(export.EmployeeSummary) != 1 {
		t.Fatalf("employee summary should only keep surviving projects, got %d rows", len(export.EmployeeSummary))
	}
	if len(export.GlobalSummary) != 1 {
		t.Fatalf("global summary should only keep surviving projects, got %d rows", len(export.GlobalSummary))
	}
}

func TestExportAllTablesMissingResult(t *testing.T) {
	run := newFixtureRun(t, "202402")

	if _, err := ExportAllTables(context.Background(), run); err == nil {
		t.Fatal("expected error when result snapshot is missing")
	}
}

func TestBuildReportWorkbook(t *testing.T) {
	run := newFixtureRun(t, "202403")
	writeResult(t, run, "initial", [][]interface{}{
		{"Alpha", 10, 9, 1, 0, 1000, 1100, 100},
	})
	writeEmployeeSummary(t, run, "initial", [][]interface{}{
		{"Marie", "Alpha", 10, 100, 950, 0},
	})
	writeAdjusted(t, run, "initial", [][]interface{}{
		{"E1", "Marie", "Senior", "Alpha", 10, 9, 1, 100, 950, 900},
	})

	report := ComputeAllocationReport(context.Background(), run)
	f, err := BuildReportWorkbook(report)
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue("Sheet1", "A2")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if got != "Alpha" {
		t.Fatalf("expected first project in A2, got %q", got)
	}
}
