package reports

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/slr_backend/models"
	"bitbucket.org/mmdatafocus/slr_backend/utils"
)

type RunComparisonEntry struct {
	RunId        string      `json:"run_id"`
	PeriodString string      `json:"period_string"`
	CreatedAt    time.Time   `json:"created_at"`
	HasUpdates   bool        `json:"has_updates"`
	Overall      OverallKpis `json:"overallKpis"`
}

// CompareRuns aggregates the overall KPIs of several runs side by side.
// Unknown run ids and runs without servable data are skipped, so the result
// can be shorter than the request.
func CompareRuns(ctx context.Context, runIds []string) ([]*RunComparisonEntry, error) {
	if len(runIds) < 2 {
		return nil, errors.New("at least two run ids are required")
	}

	entries := make([]*RunComparisonEntry, 0, len(runIds))
	for _, runId := range runIds {
		run, err := models.GetCalculationRun(ctx, runId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				continue
			}
			return nil, err
		}

		report := ComputeAllocationReport(ctx, run)
		if !report.Available {
			continue
		}
		entries = append(entries, &RunComparisonEntry{
			RunId:        run.RunId,
			PeriodString: run.PeriodString,
			CreatedAt:    run.CreatedAt,
			HasUpdates:   report.HasUpdates,
			Overall:      report.Overall,
		})
	}
	return entries, nil
}
