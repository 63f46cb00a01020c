package model

import "time"

type StepStatus string

const (
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// ProgressEvent is one append-only row in the processing_progress audit log.
// Events are never updated; the task row carries the latest snapshot for
// cheap reads.
type ProgressEvent struct {
	ID                 int64
	TaskID             string
	StepName           string
	StepStatus         StepStatus
	ProgressPercentage int
	Message            string
	// Attempt is the task's retry_count when the event was recorded, so one
	// attempt's trail can be filtered out of the full history.
	Attempt   int
	CreatedAt time.Time
}
