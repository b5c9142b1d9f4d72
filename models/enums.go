package models

type RunStatus string

const (
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusUpdated    RunStatus = "updated"
)

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusProcessing, RunStatusCompleted, RunStatusFailed, RunStatusUpdated:
		return true
	}
	return false
}

// IsAvailable reports whether a run in this status can serve reports.
func (s RunStatus) IsAvailable() bool {
	return s == RunStatusCompleted || s == RunStatusUpdated
}

// Transitions only move forward: processing -> completed|failed,
// completed -> updated. Terminal failed runs stay failed.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunStatusProcessing:
		return next == RunStatusCompleted || next == RunStatusFailed
	case RunStatusCompleted:
		return next == RunStatusUpdated
	}
	return false
}
