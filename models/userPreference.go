package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/slr_backend/config"
	"bitbucket.org/mmdatafocus/slr_backend/utils"
)

// UserDashboardPreference holds at most one row per user identifier. The
// identifier is opaque here; whoever resolves identity decides what it means.
type UserDashboardPreference struct {
	ID             int       `gorm:"primary_key" json:"id"`
	UserIdentifier string    `gorm:"size:255;uniqueIndex;not null" json:"user_identifier"`
	PreferredRunId *string   `gorm:"size:36" json:"preferred_run_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetUserPreference(ctx context.Context, userIdentifier string) (*UserDashboardPreference, error) {
	if userIdentifier == "" {
		return nil, errors.New("user identifier is required")
	}

	db := config.GetDB()
	var pref UserDashboardPreference
	if err := db.WithContext(ctx).Where("user_identifier = ?", userIdentifier).First(&pref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &pref, nil
}

// upsertPreferredRun creates the preference row on first write; concurrent
// writers race safely on the unique index, last write wins.
func upsertPreferredRun(ctx context.Context, userIdentifier string, runId string) error {
	db := config.GetDB()
	pref := UserDashboardPreference{
		UserIdentifier: userIdentifier,
		PreferredRunId: &runId,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_identifier"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"preferred_run_id": runId}),
	}).Create(&pref).Error
}
