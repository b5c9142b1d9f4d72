package reports

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/slr_backend/models"
)

type ExportTables struct {
	RunId           string                   `json:"run_id"`
	Result          []map[string]interface{} `json:"result"`
	EmployeeSummary []map[string]interface{} `json:"employee_summary"`
	GlobalSummary   []map[string]interface{} `json:"global_summary"`
}

func rowIsAllZero(record map[string]interface{}) bool {
	for name, value := range record {
		if name == colProject {
			continue
		}
		if d, ok := value.(decimal.Decimal); ok && !d.IsZero() {
			return false
		}
	}
	return true
}

func recordProject(record map[string]interface{}) string {
	if s, ok := record[colProject].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// ExportAllTables renders the freshest snapshot tables as JSON records.
// Projects whose numeric columns all sum to zero are dropped from the result
// table, and the companion tables are filtered to the surviving projects.
func ExportAllTables(ctx context.Context, run *models.CalculationRun) (*ExportTables, error) {
	result, err := models.LoadRunSnapshot(run, models.SnapshotResult)
	if err != nil {
		return nil, err
	}

	export := &ExportTables{
		RunId:           run.RunId,
		Result:          []map[string]interface{}{},
		EmployeeSummary: []map[string]interface{}{},
		GlobalSummary:   []map[string]interface{}{},
	}

	surviving := make(map[string]bool)
	for _, record := range result.Records() {
		if rowIsAllZero(record) {
			continue
		}
		surviving[recordProject(record)] = true
		export.Result = append(export.Result, record)
	}

	if employees, empErr := models.LoadRunSnapshot(run, models.SnapshotEmployeeSummary); empErr == nil {
		for _, record := range employees.Records() {
			if surviving[recordProject(record)] {
				export.EmployeeSummary = append(export.EmployeeSummary, record)
			}
		}
	}
	if global, glbErr := models.LoadRunSnapshot(run, models.SnapshotGlobalSummary); glbErr == nil {
		for _, record := range global.Records() {
			if surviving[recordProject(record)] {
				export.GlobalSummary = append(export.GlobalSummary, record)
			}
		}
	}

	return export, nil
}

// BuildReportWorkbook writes the project allocation table of a report into a
// downloadable workbook.
func BuildReportWorkbook(report *AllocationReport) (*excelize.File, error) {
	f := excelize.NewFile()
	sheetName := "Sheet1"
	_, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}

	// Add headers
	f.SetCellValue(sheetName, "A1", "Projet")
	f.SetCellValue(sheetName, "B1", "Total Heures")
	f.SetCellValue(sheetName, "C1", "Adjusted Hours")
	f.SetCellValue(sheetName, "D1", "Heures Retirées")
	f.SetCellValue(sheetName, "E1", "Budget Estimé")
	f.SetCellValue(sheetName, "F1", "Adjusted Cost")
	f.SetCellValue(sheetName, "G1", "Ecart")
	f.SetCellValue(sheetName, "H1", "Coût Réalisé")

	// Add data
	for i, p := range report.Projects {
		f.SetCellValue(sheetName, "A"+fmt.Sprint(i+2), p.Project)
		f.SetCellValue(sheetName, "B"+fmt.Sprint(i+2), p.TotalHours.InexactFloat64())
		f.SetCellValue(sheetName, "C"+fmt.Sprint(i+2), p.AdjustedHours.InexactFloat64())
		f.SetCellValue(sheetName, "D"+fmt.Sprint(i+2), p.RemovedHours.InexactFloat64())
		f.SetCellValue(sheetName, "E"+fmt.Sprint(i+2), p.Budget.InexactFloat64())
		f.SetCellValue(sheetName, "F"+fmt.Sprint(i+2), p.AdjustedCost.InexactFloat64())
		f.SetCellValue(sheetName, "G"+fmt.Sprint(i+2), p.Variance.InexactFloat64())
		f.SetCellValue(sheetName, "H"+fmt.Sprint(i+2), p.RealizedCost.InexactFloat64())
	}

	return f, nil
}

func ReportExportFilename(report *AllocationReport) string {
	return "SLR_Report_" + report.RunId + ".xlsx"
}
