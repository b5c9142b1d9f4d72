package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/slr_backend/config"
	"bitbucket.org/mmdatafocus/slr_backend/models"
)

// Snapshot column headers, verbatim from the calculation pipeline output.
const (
	colProject       = "Libelle projet"
	colName          = "Nom"
	colGrade         = "Grade"
	colEmployeeId    = "ID"
	colTotalHours    = "Total Heures"
	colAdjustedHours = "Adjusted Hours"
	colRemovedHours  = "Heures Retirées"
	colRate          = "Rate"
	colBudget        = "Estimees"
	colAdjustedCost  = "Adjusted Cost"
	colVariance      = "Ecart"
	colTotal         = "Total"
	colTotalDES      = "Total DES"
)

// Business policy values agreed with the finance team, not derivable from
// the data. defaultHourlyRate stands in when no rate can be estimated;
// budgetEstimateRatio is the assumed realization share of an untracked
// project's budget.
const (
	defaultHourlyRate   = 500
	budgetEstimateRatio = "0.8"
)

var (
	defaultRate = decimal.NewFromInt(defaultHourlyRate)
	budgetRatio = decimal.RequireFromString(budgetEstimateRatio)
	hundred     = decimal.NewFromInt(100)
)

type OverallKpis struct {
	NbEmployes        int             `json:"nbEmployes"`
	TotalBudgetEstime decimal.Decimal `json:"totalBudgetEstime"`
	TotalAdjustedCost decimal.Decimal `json:"totalAdjustedCost"`
	TotalEcart        decimal.Decimal `json:"totalEcart"`
	TotalProjects     int             `json:"totalProjects"`
	PctAjustement     decimal.Decimal `json:"pctAjustement"`
}

type ProjectKpi struct {
	Project       string          `json:"project"`
	TotalHours    decimal.Decimal `json:"totalHours"`
	AdjustedHours decimal.Decimal `json:"adjustedHours"`
	RemovedHours  decimal.Decimal `json:"removedHours"`
	Budget        decimal.Decimal `json:"budget"`
	AdjustedCost  decimal.Decimal `json:"adjustedCost"`
	Variance      decimal.Decimal `json:"variance"`
	RealizedCost  decimal.Decimal `json:"realizedCost"`
}

type EmployeeRow struct {
	EmployeeId    string          `json:"employeeId"`
	Name          string          `json:"name"`
	Grade         string          `json:"grade"`
	Project       string          `json:"project"`
	TotalHours    decimal.Decimal `json:"totalHours"`
	AdjustedHours decimal.Decimal `json:"adjustedHours"`
	RemovedHours  decimal.Decimal `json:"removedHours"`
	Rate          decimal.Decimal `json:"rate"`
	Total         decimal.Decimal `json:"total"`
	AdjustedCost  decimal.Decimal `json:"adjustedCost"`
}

// AllocationReport is the full dashboard payload for one run. Available is
// false when the run cannot serve data; Reason then says why and the KPI
// fields are zero valued.
type AllocationReport struct {
	RunId       string        `json:"run_id"`
	Status      string        `json:"status"`
	Available   bool          `json:"available"`
	Reason      string        `json:"reason,omitempty"`
	HasUpdates  bool          `json:"has_updates"`
	GeneratedAt time.Time     `json:"generated_at"`
	Overall     OverallKpis   `json:"overallKpis"`
	Projects    []ProjectKpi  `json:"projects"`
	Employees   []EmployeeRow `json:"employees"`
}

// realizedCostInput carries everything the fallback chain may consult for
// one project.
type realizedCostInput struct {
	explicitTotal decimal.Decimal
	rateHours     decimal.Decimal
	hours         decimal.Decimal
	adjustedCost  decimal.Decimal
	adjustedHours decimal.Decimal
	budget        decimal.Decimal
}

type realizedCostStrategy struct {
	name    string
	compute func(in realizedCostInput) decimal.Decimal
}

// The chain is ordered by data quality. Each strategy only fires when every
// one before it produced zero, so a project with tracked totals never falls
// back to an estimate. The tracked sums count only when strictly positive;
// a negative sum is bad input data, not a realized cost.
var realizedCostStrategies = []realizedCostStrategy{
	{
		name: "explicit-total",
		compute: func(in realizedCostInput) decimal.Decimal {
			if in.explicitTotal.IsPositive() {
				return in.explicitTotal
			}
			return decimal.Zero
		},
	},
	{
		name: "rate-times-hours",
		compute: func(in realizedCostInput) decimal.Decimal {
			if in.rateHours.IsPositive() {
				return in.rateHours
			}
			return decimal.Zero
		},
	},
	{
		name: "estimated-rate",
		compute: func(in realizedCostInput) decimal.Decimal {
			rate := defaultRate
			if in.adjustedHours.IsPositive() {
				rate = in.adjustedCost.Div(in.adjustedHours)
			}
			return rate.Mul(in.hours)
		},
	},
	{
		name: "budget-share",
		compute: func(in realizedCostInput) decimal.Decimal {
			return in.budget.Mul(budgetRatio)
		},
	},
}

func realizedCost(in realizedCostInput) decimal.Decimal {
	for _, strategy := range realizedCostStrategies {
		if cost := strategy.compute(in); !cost.IsZero() {
			return cost
		}
	}
	return decimal.Zero
}

func unavailableReport(run *models.CalculationRun, reason string) *AllocationReport {
	return &AllocationReport{
		RunId:       run.RunId,
		Status:      string(run.Status),
		Available:   false,
		Reason:      reason,
		GeneratedAt: time.Now().UTC(),
		Projects:    []ProjectKpi{},
		Employees:   []EmployeeRow{},
	}
}

// ComputeAllocationReport builds the dashboard report from the freshest
// snapshot files of a run. It never returns an error: anything that prevents
// computation yields a report tagged unavailable with a reason.
func ComputeAllocationReport(ctx context.Context, run *models.CalculationRun) *AllocationReport {
	if !run.Status.IsAvailable() {
		return unavailableReport(run, "run is not in a servable status")
	}
	if !run.IsDataAvailable() {
		return unavailableReport(run, "snapshot files are missing")
	}

	result, err := models.LoadRunSnapshot(run, models.SnapshotResult)
	if err != nil {
		config.LogError(config.GetLogger(), "reports", "ComputeAllocationReport", "load result snapshot", run.RunId, err)
		return unavailableReport(run, "result snapshot could not be read")
	}
	employees, err := models.LoadRunSnapshot(run, models.SnapshotEmployeeSummary)
	if err != nil {
		config.LogError(config.GetLogger(), "reports", "ComputeAllocationReport", "load employee summary snapshot", run.RunId, err)
		return unavailableReport(run, "employee summary snapshot could not be read")
	}
	adjusted, err := models.LoadRunSnapshot(run, models.SnapshotAdjusted)
	if err != nil {
		config.LogError(config.GetLogger(), "reports", "ComputeAllocationReport", "load adjusted snapshot", run.RunId, err)
		return unavailableReport(run, "adjusted snapshot could not be read")
	}

	type projectActuals struct {
		explicitTotal decimal.Decimal
		rateHours     decimal.Decimal
	}
	actuals := make(map[string]*projectActuals)
	distinctEmployees := make(map[string]bool)
	for row := 0; row < employees.RowCount(); row++ {
		if name := employees.CellString(row, colName); name != "" {
			distinctEmployees[name] = true
		}
		project := employees.CellString(row, colProject)
		if project == "" {
			continue
		}
		a := actuals[project]
		if a == nil {
			a = &projectActuals{}
			actuals[project] = a
		}
		a.explicitTotal = a.explicitTotal.Add(employees.CellDecimal(row, colTotal))
		a.rateHours = a.rateHours.Add(
			employees.CellDecimal(row, colRate).Mul(employees.CellDecimal(row, colTotalHours)))
	}

	report := &AllocationReport{
		RunId:       run.RunId,
		Status:      string(run.Status),
		Available:   true,
		HasUpdates:  run.HasUpdates(),
		GeneratedAt: time.Now().UTC(),
		Projects:    make([]ProjectKpi, 0, result.RowCount()),
		Employees:   []EmployeeRow{},
	}

	totalBudget := decimal.Zero
	totalAdjustedCost := decimal.Zero
	totalVariance := decimal.Zero
	for row := 0; row < result.RowCount(); row++ {
		project := result.CellString(row, colProject)
		kpi := ProjectKpi{
			Project:       project,
			TotalHours:    result.CellDecimal(row, colTotalHours),
			AdjustedHours: result.CellDecimal(row, colAdjustedHours),
			RemovedHours:  result.CellDecimal(row, colRemovedHours),
			Budget:        result.CellDecimal(row, colBudget),
			AdjustedCost:  result.CellDecimal(row, colAdjustedCost),
			Variance:      result.CellDecimal(row, colVariance),
		}

		in := realizedCostInput{
			hours:         kpi.TotalHours,
			adjustedCost:  kpi.AdjustedCost,
			adjustedHours: kpi.AdjustedHours,
			budget:        kpi.Budget,
		}
		if a := actuals[project]; a != nil {
			in.explicitTotal = a.explicitTotal
			in.rateHours = a.rateHours
		}
		kpi.RealizedCost = realizedCost(in)

		totalBudget = totalBudget.Add(kpi.Budget)
		totalAdjustedCost = totalAdjustedCost.Add(kpi.AdjustedCost)
		totalVariance = totalVariance.Add(kpi.Variance)
		report.Projects = append(report.Projects, kpi)
	}

	pctAjustement := decimal.Zero
	if !totalBudget.IsZero() {
		pctAjustement = totalVariance.Div(totalBudget).Mul(hundred).Round(2)
	}
	report.Overall = OverallKpis{
		NbEmployes:        len(distinctEmployees),
		TotalBudgetEstime: totalBudget,
		TotalAdjustedCost: totalAdjustedCost,
		TotalEcart:        totalVariance,
		TotalProjects:     len(report.Projects),
		PctAjustement:     pctAjustement,
	}

	report.Employees = make([]EmployeeRow, 0, adjusted.RowCount())
	for row := 0; row < adjusted.RowCount(); row++ {
		report.Employees = append(report.Employees, EmployeeRow{
			EmployeeId:    adjusted.CellString(row, colEmployeeId),
			Name:          adjusted.CellString(row, colName),
			Grade:         adjusted.CellString(row, colGrade),
			Project:       adjusted.CellString(row, colProject),
			TotalHours:    adjusted.CellDecimal(row, colTotalHours),
			AdjustedHours: adjusted.CellDecimal(row, colAdjustedHours),
			RemovedHours:  adjusted.CellDecimal(row, colRemovedHours),
			Rate:          adjusted.CellDecimal(row, colRate),
			Total:         adjusted.CellDecimal(row, colTotal),
			AdjustedCost:  adjusted.CellDecimal(row, colAdjustedCost),
		})
	}

	return report
}
