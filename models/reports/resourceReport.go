package reports

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/slr_backend/models"
)

// Overruns beyond this share of the budget are flagged urgent.
var urgentOverrunRatio = decimal.RequireFromString("0.2")

type UrgentProject struct {
	Project      string          `json:"project"`
	Budget       decimal.Decimal `json:"budget"`
	AdjustedCost decimal.Decimal `json:"adjustedCost"`
	Overrun      decimal.Decimal `json:"overrun"`
	OverrunPct   decimal.Decimal `json:"overrunPct"`
}

type ResourceReport struct {
	RunId                  string          `json:"run_id"`
	ProjetsDepassantBudget int             `json:"projetsDepassantBudget"`
	ProjetsSousBudget      int             `json:"projetsSousBudget"`
	MontantDepassement     decimal.Decimal `json:"montantDepassement"`
	CoutMoyenHeure         decimal.Decimal `json:"coutMoyenHeure"`
	ProjetsUrgents         []UrgentProject `json:"projetsUrgents"`
	PotentialSavings       decimal.Decimal `json:"potentialSavings"`
	MaxHoursToRemove       decimal.Decimal `json:"maxHoursToRemove"`
	RemoveFromProject      string          `json:"removeFromProject"`
}

// ComputeResourceReport derives resource steering KPIs from a run's
// allocation report: which projects overrun their budget, by how much, and
// where removing hours would recover the most.
func ComputeResourceReport(ctx context.Context, run *models.CalculationRun) (*ResourceReport, error) {
	report := ComputeAllocationReport(ctx, run)
	if !report.Available {
		return nil, errors.New("report data unavailable: " + report.Reason)
	}

	out := &ResourceReport{
		RunId:          run.RunId,
		ProjetsUrgents: []UrgentProject{},
	}

	totalAdjustedHours := decimal.Zero
	worstOverrun := decimal.Zero
	var worst *ProjectKpi
	for i := range report.Projects {
		p := &report.Projects[i]
		totalAdjustedHours = totalAdjustedHours.Add(p.AdjustedHours)

		overrun := p.AdjustedCost.Sub(p.Budget)
		switch {
		case overrun.IsPositive():
			out.ProjetsDepassantBudget++
			out.MontantDepassement = out.MontantDepassement.Add(overrun)
			if overrun.GreaterThan(worstOverrun) {
				worstOverrun = overrun
				worst = p
			}
			if p.Budget.IsPositive() && overrun.GreaterThan(p.Budget.Mul(urgentOverrunRatio)) {
				out.ProjetsUrgents = append(out.ProjetsUrgents, UrgentProject{
					Project:      p.Project,
					Budget:       p.Budget,
					AdjustedCost: p.AdjustedCost,
					Overrun:      overrun,
					OverrunPct:   overrun.Div(p.Budget).Mul(hundred).Round(2),
				})
			}
		case overrun.IsNegative():
			out.ProjetsSousBudget++
		}
	}

	if totalAdjustedHours.IsPositive() {
		out.CoutMoyenHeure = report.Overall.TotalAdjustedCost.Div(totalAdjustedHours).Round(2)
	}

	if worst != nil {
		out.PotentialSavings = worstOverrun
		out.RemoveFromProject = worst.Project
		rate := defaultRate
		if worst.AdjustedHours.IsPositive() && worst.AdjustedCost.IsPositive() {
			rate = worst.AdjustedCost.Div(worst.AdjustedHours)
		}
		if rate.IsPositive() {
			out.MaxHoursToRemove = worstOverrun.Div(rate).Round(2)
		}
	}

	return out, nil
}
