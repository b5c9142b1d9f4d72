package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/slr_backend/utils"
)

// Logical snapshot tables produced by the calculation pipeline.
type SnapshotTable string

const (
	SnapshotResult          SnapshotTable = "result"
	SnapshotEmployeeSummary SnapshotTable = "employee_summary"
	SnapshotAdjusted        SnapshotTable = "adjusted"
	SnapshotGlobalSummary   SnapshotTable = "global_summary"
)

const snapshotExt = ".xlsx"

func RunsDataRoot() string {
	return utils.EnvOrDefault("RUNS_DATA_ROOT", "data/runs")
}

// DataPath is the directory holding this run's snapshot files.
func (run *CalculationRun) DataPath() string {
	return filepath.Join(RunsDataRoot(), run.DataDirectory)
}

func snapshotPath(run *CalculationRun, table SnapshotTable, version string) string {
	return filepath.Join(run.DataPath(), string(table)+"_"+version+snapshotExt)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ResolveSnapshot returns the path of the freshest version of a table, or ""
// when neither version exists. An updated file always wins over the initial
// one; this is the only mechanism through which adjustments become visible.
func ResolveSnapshot(run *CalculationRun, table SnapshotTable) string {
	if updated := snapshotPath(run, table, "updated"); fileExists(updated) {
		return updated
	}
	if initial := snapshotPath(run, table, "initial"); fileExists(initial) {
		return initial
	}
	return ""
}

// IsDataAvailable checks the filesystem on every call; files can disappear
// after the registry row was written.
func (run *CalculationRun) IsDataAvailable() bool {
	return fileExists(snapshotPath(run, SnapshotResult, "initial")) &&
		fileExists(snapshotPath(run, SnapshotEmployeeSummary, "initial"))
}

func (run *CalculationRun) HasUpdates() bool {
	return fileExists(snapshotPath(run, SnapshotResult, "updated"))
}

// SnapshotData is a column-indexed view over one snapshot workbook. The first
// row of the first sheet is the header; lookups by header name, missing
// columns and unparseable cells coerce to zero.
type SnapshotData struct {
	Headers []string
	rows    [][]string
	cols    map[string]int
}

func LoadSnapshot(path string) (*SnapshotData, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &SnapshotData{cols: map[string]int{}}, nil
	}

	headers := rows[0]
	cols := make(map[string]int, len(headers))
	for i, h := range headers {
		cols[strings.TrimSpace(h)] = i
	}
	return &SnapshotData{
		Headers: headers,
		rows:    rows[1:],
		cols:    cols,
	}, nil
}

// LoadRunSnapshot loads the freshest version of a table for a run.
func LoadRunSnapshot(run *CalculationRun, table SnapshotTable) (*SnapshotData, error) {
	path := ResolveSnapshot(run, table)
	if path == "" {
		return nil, fmt.Errorf("snapshot %s not found for run %s", table, run.RunId)
	}
	return LoadSnapshot(path)
}

func (s *SnapshotData) RowCount() int {
	return len(s.rows)
}

func (s *SnapshotData) HasColumn(name string) bool {
	_, ok := s.cols[name]
	return ok
}

func (s *SnapshotData) CellString(row int, col string) string {
	i, ok := s.cols[col]
	if !ok || row < 0 || row >= len(s.rows) || i >= len(s.rows[row]) {
		return ""
	}
	return strings.TrimSpace(s.rows[row][i])
}

func (s *SnapshotData) CellDecimal(row int, col string) decimal.Decimal {
	raw := s.CellString(row, col)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (s *SnapshotData) SumColumn(col string) decimal.Decimal {
	total := decimal.Zero
	for row := range s.rows {
		total = total.Add(s.CellDecimal(row, col))
	}
	return total
}

// Records renders the rows as JSON-friendly maps keyed by header. Cells that
// parse as numbers come out as decimals, everything else as strings.
func (s *SnapshotData) Records() []map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(s.rows))
	for row := range s.rows {
		record := make(map[string]interface{}, len(s.Headers))
		for _, h := range s.Headers {
			name := strings.TrimSpace(h)
			raw := s.CellString(row, name)
			if d, err := decimal.NewFromString(raw); err == nil && raw != "" {
				record[name] = d
			} else {
				record[name] = raw
			}
		}
		records = append(records, record)
	}
	return records
}
