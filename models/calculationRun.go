package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/slr_backend/config"
	"bitbucket.org/mmdatafocus/slr_backend/utils"
)

// CalculationRun is the registry entry for one execution of the allocation
// calculation pipeline. Snapshot files live on disk under DataDirectory; the
// row only carries identity, lifecycle state and cached summary figures.
type CalculationRun struct {
	ID                int             `gorm:"primary_key" json:"id"`
	RunId             string          `gorm:"size:36;uniqueIndex;not null" json:"run_id"`
	HeuresFilename    string          `gorm:"size:255" json:"heures_filename"`
	MafeFilename      string          `gorm:"size:255" json:"mafe_filename"`
	PeriodMonth       *int            `json:"period_month"`
	PeriodYear        *int            `json:"period_year"`
	PeriodString      string          `gorm:"size:50" json:"period_string"`
	Status            RunStatus       `gorm:"size:20;index;not null;default:'processing'" json:"status"`
	TotalProjects     int             `gorm:"not null;default:0" json:"total_projects"`
	TotalEmployees    int             `gorm:"not null;default:0" json:"total_employees"`
	TotalBudget       decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total_budget"`
	TotalAdjustedCost decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total_adjusted_cost"`
	TotalVariance     decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total_variance"`
	DataDirectory     string          `gorm:"size:500;not null" json:"data_directory"`
	Metadata          []byte          `gorm:"type:json" json:"metadata"`
	ErrorMessage      string          `gorm:"type:text" json:"error_message"`
	IsFavorite        *bool           `gorm:"not null;default:false" json:"is_favorite"`
	IsArchived        *bool           `gorm:"not null;default:false" json:"is_archived"`
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCalculationRun struct {
	RunId          string `json:"run_id"`
	DataDirectory  string `json:"data_directory" binding:"required"`
	HeuresFilename string `json:"heures_filename"`
	MafeFilename   string `json:"mafe_filename"`
	PeriodMonth    *int   `json:"period_month"`
	PeriodYear     *int   `json:"period_year"`
	PeriodString   string `json:"period_string"`
	Metadata       []byte `json:"metadata"`
}

func CreateCalculationRun(ctx context.Context, input *NewCalculationRun) (*CalculationRun, error) {
	if input.DataDirectory == "" {
		return nil, errors.New("data directory is required")
	}

	runId := input.RunId
	if runId == "" {
		runId = uuid.New().String()
	}

	db := config.GetDB()
	run := CalculationRun{
		RunId:          runId,
		HeuresFilename: input.HeuresFilename,
		MafeFilename:   input.MafeFilename,
		PeriodMonth:    input.PeriodMonth,
		PeriodYear:     input.PeriodYear,
		PeriodString:   input.PeriodString,
		Status:         RunStatusProcessing,
		DataDirectory:  input.DataDirectory,
		Metadata:       input.Metadata,
		IsFavorite:     utils.NewFalse(),
		IsArchived:     utils.NewFalse(),
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}

	return &run, nil
}

func GetCalculationRun(ctx context.Context, runId string) (*CalculationRun, error) {
	db := config.GetDB()

	var run CalculationRun
	if err := db.WithContext(ctx).Where("run_id = ?", runId).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListAvailableRuns returns servable runs, newest first. This ordering is the
// recency order the run selector falls back on.
func ListAvailableRuns(ctx context.Context) ([]*CalculationRun, error) {
	db := config.GetDB()

	var runs []*CalculationRun
	err := db.WithContext(ctx).
		Where("status IN ?", []RunStatus{RunStatusCompleted, RunStatusUpdated}).
		Where("is_archived = ?", false).
		Order("created_at DESC").
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// MarkRunCompleted transitions a processing run to completed, refreshes the
// cached summary figures and drops any reports cached for the run. Calling it
// again on an already completed or updated run is a no-op. Summary refresh and
// invalidation are best effort; snapshot read problems never fail completion.
func MarkRunCompleted(ctx context.Context, runId string) (*CalculationRun, error) {
	run, err := GetCalculationRun(ctx, runId)
	if err != nil {
		return nil, err
	}
	if run.Status == RunStatusCompleted || run.Status == RunStatusUpdated {
		return run, nil
	}
	if !run.Status.CanTransitionTo(RunStatusCompleted) {
		return nil, fmt.Errorf("cannot complete run in status %s", run.Status)
	}

	// Best-effort lock so concurrent completion calls don't both recompute
	// the summary. Completion itself proceeds without the lock.
	if locker := config.GetRedisLock(); locker != nil {
		if lock, lockErr := locker.Obtain(ctx, "runComplete:"+runId, 30*time.Second, nil); lockErr == nil {
			defer lock.Release(ctx)
		}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":        RunStatusCompleted,
		"error_message": "",
	}).Error; err != nil {
		return nil, err
	}
	run.Status = RunStatusCompleted

	if err := UpdateSummaryCache(ctx, run); err != nil {
		config.LogError(config.GetLogger(), "models", "MarkRunCompleted", "update summary cache", runId, err)
	}
	if err := InvalidateRunReports(runId); err != nil {
		config.LogError(config.GetLogger(), "models", "MarkRunCompleted", "invalidate run reports", runId, err)
	}

	return run, nil
}

func MarkRunFailed(ctx context.Context, runId string, errorMessage string) (*CalculationRun, error) {
	run, err := GetCalculationRun(ctx, runId)
	if err != nil {
		return nil, err
	}
	if run.Status == RunStatusFailed {
		return run, nil
	}
	if !run.Status.CanTransitionTo(RunStatusFailed) {
		return nil, fmt.Errorf("cannot fail run in status %s", run.Status)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":        RunStatusFailed,
		"error_message": errorMessage,
	}).Error; err != nil {
		return nil, err
	}
	run.Status = RunStatusFailed
	run.ErrorMessage = errorMessage
	return run, nil
}

// MarkRunUpdated records that adjusted snapshot files were written for a
// completed run. Idempotent for runs already in updated status.
func MarkRunUpdated(ctx context.Context, runId string) (*CalculationRun, error) {
	run, err := GetCalculationRun(ctx, runId)
	if err != nil {
		return nil, err
	}
	if run.Status == RunStatusUpdated {
		return run, nil
	}
	if !run.Status.CanTransitionTo(RunStatusUpdated) {
		return nil, fmt.Errorf("cannot mark run updated in status %s", run.Status)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(run).Update("status", RunStatusUpdated).Error; err != nil {
		return nil, err
	}
	run.Status = RunStatusUpdated

	if err := UpdateSummaryCache(ctx, run); err != nil {
		config.LogError(config.GetLogger(), "models", "MarkRunUpdated", "update summary cache", runId, err)
	}
	if err := InvalidateRunReports(runId); err != nil {
		config.LogError(config.GetLogger(), "models", "MarkRunUpdated", "invalidate run reports", runId, err)
	}

	return run, nil
}

// UpdateSummaryCache recomputes the denormalized totals from the freshest
// snapshot files and persists them on the registry row.
func UpdateSummaryCache(ctx context.Context, run *CalculationRun) error {
	result, err := LoadRunSnapshot(run, SnapshotResult)
	if err != nil {
		return err
	}

	totalEmployees := 0
	if employees, empErr := LoadRunSnapshot(run, SnapshotEmployeeSummary); empErr == nil {
		seen := make(map[string]bool)
		for row := 0; row < employees.RowCount(); row++ {
			if name := employees.CellString(row, "Nom"); name != "" {
				seen[name] = true
			}
		}
		totalEmployees = len(seen)
	}

	db := config.GetDB()
	return db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"total_projects":      result.RowCount(),
		"total_employees":     totalEmployees,
		"total_budget":        result.SumColumn("Estimees"),
		"total_adjusted_cost": result.SumColumn("Adjusted Cost"),
		"total_variance":      result.SumColumn("Ecart"),
	}).Error
}

func ToggleFavoriteRun(ctx context.Context, runId string) (*CalculationRun, error) {
	run, err := GetCalculationRun(ctx, runId)
	if err != nil {
		return nil, err
	}

	next := run.IsFavorite == nil || !*run.IsFavorite
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(run).Update("is_favorite", next).Error; err != nil {
		return nil, err
	}
	run.IsFavorite = &next
	return run, nil
}

func ToggleArchiveRun(ctx context.Context, runId string) (*CalculationRun, error) {
	run, err := GetCalculationRun(ctx, runId)
	if err != nil {
		return nil, err
	}

	next := run.IsArchived == nil || !*run.IsArchived
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(run).Update("is_archived", next).Error; err != nil {
		return nil, err
	}
	run.IsArchived = &next
	return run, nil
}

type RunSummaryResponse struct {
	RunId             string          `json:"run_id"`
	Status            RunStatus       `json:"status"`
	PeriodString      string          `json:"period_string"`
	HeuresFilename    string          `json:"heures_filename"`
	CreatedAt         time.Time       `json:"created_at"`
	TotalProjects     int             `json:"total_projects"`
	TotalEmployees    int             `json:"total_employees"`
	TotalBudget       decimal.Decimal `json:"total_budget"`
	TotalAdjustedCost decimal.Decimal `json:"total_adjusted_cost"`
	TotalVariance     decimal.Decimal `json:"total_variance"`
	HasUpdates        bool            `json:"has_updates"`
	IsFavorite        bool            `json:"is_favorite"`
	IsCurrent         bool            `json:"is_current"`
}

// ListRunSummaries renders the available runs for the run picker, marking the
// run the given user would currently be served.
func ListRunSummaries(ctx context.Context, userIdentifier string) ([]*RunSummaryResponse, error) {
	runs, err := ListAvailableRuns(ctx)
	if err != nil {
		return nil, err
	}

	currentRunId := ""
	if current, resErr := ResolveRun(ctx, userIdentifier, ""); resErr == nil && current != nil {
		currentRunId = current.RunId
	}

	summaries := make([]*RunSummaryResponse, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, &RunSummaryResponse{
			RunId:             run.RunId,
			Status:            run.Status,
			PeriodString:      run.PeriodString,
			HeuresFilename:    run.HeuresFilename,
			CreatedAt:         run.CreatedAt,
			TotalProjects:     run.TotalProjects,
			TotalEmployees:    run.TotalEmployees,
			TotalBudget:       run.TotalBudget,
			TotalAdjustedCost: run.TotalAdjustedCost,
			TotalVariance:     run.TotalVariance,
			HasUpdates:        run.HasUpdates(),
			IsFavorite:        run.IsFavorite != nil && *run.IsFavorite,
			IsCurrent:         run.RunId == currentRunId,
		})
	}
	return summaries, nil
}
