package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/slr_backend/config"
	"bitbucket.org/mmdatafocus/slr_backend/models"
	"bitbucket.org/mmdatafocus/slr_backend/utils"
)

func cacheGet[T any](key string, dest *T) (bool, error) {
	return config.GetRedisObject(key, dest)
}

func cacheSet(key string, obj any, ttl time.Duration) error {
	return config.SetRedisObject(key, obj, ttl)
}

// GetOrComputeAllocationReport serves a cached report when one exists and
// computes it otherwise. Only available reports are cached; cache failures
// degrade to computing every time and are logged, never surfaced.
func GetOrComputeAllocationReport(ctx context.Context, userIdentifier string, run *models.CalculationRun, forceRefresh bool) *AllocationReport {
	key := models.AllocationReportCacheKey(userIdentifier, run.RunId)

	if !forceRefresh {
		var cached AllocationReport
		found, err := cacheGet(key, &cached)
		if err != nil {
			config.LogError(config.GetLogger(), "reports", "GetOrComputeAllocationReport", "read cache", key, err)
		} else if found {
			return &cached
		}
	}

	report := ComputeAllocationReport(ctx, run)
	if !report.Available {
		return report
	}

	if err := cacheSet(key, report, utils.GetCacheLifespan()); err != nil {
		config.LogError(config.GetLogger(), "reports", "GetOrComputeAllocationReport", "write cache", key, err)
		return report
	}
	if err := models.RegisterReportCacheKey(userIdentifier, run.RunId, key); err != nil {
		config.LogError(config.GetLogger(), "reports", "GetOrComputeAllocationReport", "register cache key", key, err)
	}
	return report
}
