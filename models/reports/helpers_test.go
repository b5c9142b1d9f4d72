package reports

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/slr_backend/models"
)

func writeSnapshotFile(t *testing.T, path string, headers []string, rows [][]interface{}) {
	t.Helper()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			t.Fatalf("coordinates: %v", err)
		}
		f.SetCellValue(sheet, cell, h)
	}
	for r, row := range rows {
		for i, v := range row {
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				t.Fatalf("coordinates: %v", err)
			}
			f.SetCellValue(sheet, cell, v)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save fixture %s: %v", path, err)
	}
}

func newFixtureRun(t *testing.T, dir string) *models.CalculationRun {
	t.Helper()

	root := t.TempDir()
	t.Setenv("RUNS_DATA_ROOT", root)
	if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return &models.CalculationRun{
		RunId:         "run-" + dir,
		Status:        models.RunStatusCompleted,
		DataDirectory: dir,
	}
}

var resultHeaders = []string{
	"Libelle projet", "Total Heures", "Adjusted Hours", "Heures Retirées",
	"Rate", "Estimees", "Adjusted Cost", "Ecart",
}

var employeeSummaryHeaders = []string{
	"Nom", "Libelle projet", "Total Heures", "Rate", "Total", "Total DES",
}

var adjustedHeaders = []string{
	"ID", "Nom", "Grade", "Libelle projet", "Total Heures",
	"Adjusted Hours", "Heures Retirées", "Rate", "Total", "Adjusted Cost",
}

func writeResult(t *testing.T, run *models.CalculationRun, version string, rows [][]interface{}) {
	t.Helper()
	writeSnapshotFile(t, filepath.Join(run.DataPath(), "result_"+version+".xlsx"), resultHeaders, rows)
}

func writeEmployeeSummary(t *testing.T, run *models.CalculationRun, version string, rows [][]interface{}) {
	t.Helper()
	writeSnapshotFile(t, filepath.Join(run.DataPath(), "employee_summary_"+version+".xlsx"), employeeSummaryHeaders, rows)
}

func writeAdjusted(t *testing.T, run *models.CalculationRun, version string, rows [][]interface{}) {
	t.Helper()
	writeSnapshotFile(t, filepath.Join(run.DataPath(), "adjusted_"+version+".xlsx"), adjustedHeaders, rows)
}
