package models

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/slr_backend/config"
	"bitbucket.org/mmdatafocus/slr_backend/utils"
)

// fetchServableRun returns the run when it exists and can serve reports,
// nil otherwise. Registry errors other than a miss are propagated.
func fetchServableRun(ctx context.Context, runId string) (*CalculationRun, error) {
	run, err := GetCalculationRun(ctx, runId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !run.Status.IsAvailable() {
		return nil, nil
	}
	return run, nil
}

// ResolveRun picks the run a request should be served from. Priority is
// strict: an explicit run id, then the user's stored preference, then the
// most recent available run. Each link falls through silently when its run
// is missing or not servable; a stored preference is additionally required
// to still have its snapshot files, since it can outlive a run's data.
// (nil, nil) means no run exists at all.
func ResolveRun(ctx context.Context, userIdentifier string, explicitRunId string) (*CalculationRun, error) {
	if explicitRunId != "" {
		run, err := fetchServableRun(ctx, explicitRunId)
		if err != nil {
			return nil, err
		}
		if run != nil {
			return run, nil
		}
	}

	if userIdentifier != "" {
		pref, err := GetUserPreference(ctx, userIdentifier)
		if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, err
		}
		if pref != nil && pref.PreferredRunId != nil && *pref.PreferredRunId != "" {
			run, err := fetchServableRun(ctx, *pref.PreferredRunId)
			if err != nil {
				return nil, err
			}
			if run != nil && run.IsDataAvailable() {
				return run, nil
			}
		}
	}

	runs, err := ListAvailableRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// SetPreferredRun validates the run, stores the preference and drops the
// user's cached reports so the next read reflects the new selection.
func SetPreferredRun(ctx context.Context, userIdentifier string, runId string) error {
	if userIdentifier == "" {
		return errors.New("user identifier is required")
	}

	run, err := GetCalculationRun(ctx, runId)
	if err != nil {
		return err
	}
	if !run.Status.IsAvailable() {
		return errors.New("run is not available")
	}

	if err := upsertPreferredRun(ctx, userIdentifier, runId); err != nil {
		return err
	}

	if err := InvalidateUserReports(userIdentifier); err != nil {
		config.LogError(config.GetLogger(), "models", "SetPreferredRun", "invalidate user reports", userIdentifier, err)
	}
	return nil
}
