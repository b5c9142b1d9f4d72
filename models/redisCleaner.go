package models

import (
	"bitbucket.org/mmdatafocus/slr_backend/config"
)

// Cached allocation reports are indexed in two redis SETs, one per user and
// one per run, so invalidation deletes exactly the keys it owns instead of
// scanning the keyspace.

func AllocationReportCacheKey(userIdentifier string, runId string) string {
	return "allocReport:" + userIdentifier + ":" + runId
}

func userReportSetKey(userIdentifier string) string {
	return "allocReportKeys:user:" + userIdentifier
}

func runReportSetKey(runId string) string {
	return "allocReportKeys:run:" + runId
}

// RegisterReportCacheKey records a freshly cached report key in both indexes.
func RegisterReportCacheKey(userIdentifier string, runId string, key string) error {
	if err := config.AddRedisSet(userReportSetKey(userIdentifier), key); err != nil {
		return err
	}
	return config.AddRedisSet(runReportSetKey(runId), key)
}

func invalidateIndexedReports(setKey string) error {
	members, err := config.GetRedisSetMembers(setKey)
	if err != nil {
		return err
	}
	if len(members) > 0 {
		if err := config.RemoveRedisKey(members...); err != nil {
			return err
		}
	}
	return config.RemoveRedisKey(setKey)
}

// InvalidateUserReports drops every cached report belonging to one user.
func InvalidateUserReports(userIdentifier string) error {
	return invalidateIndexedReports(userReportSetKey(userIdentifier))
}

// InvalidateRunReports drops every cached report computed from one run,
// across all users. Called when a run completes or receives updates.
func InvalidateRunReports(runId string) error {
	return invalidateIndexedReports(runReportSetKey(runId))
}
