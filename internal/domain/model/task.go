package model

import "time"

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	// TaskStatusRetry marks an automatic requeue after a transient dispatch
	// failure. The claim query treats it exactly like pending; it only exists
	// so operators can tell auto-retries apart from fresh submissions.
	TaskStatusRetry TaskStatus = "retry"
)

// TaskTypePDFAnalysis is the only pipeline currently wired up.
const TaskTypePDFAnalysis = "pdf_analysis"

// Task is one document's journey through the processing pipeline.
// The processing_queue row is the single source of truth for its state.
type Task struct {
	ID                 string
	DocumentID         string
	TaskType           string
	Status             TaskStatus
	Priority           int
	FilePath           string
	CompanyID          string
	CurrentStep        string
	ProgressPercentage int
	ProgressMessage    string
	RetryCount         int
	LastError          string
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	// NextAttemptAt gates the claim query after a transient failure so the
	// backoff schedule survives process restarts.
	NextAttemptAt *time.Time
	UpdatedAt     time.Time
}

func NewTask(documentID, filePath, companyID string, priority int) *Task {
	return &Task{
		DocumentID: documentID,
		TaskType:   TaskTypePDFAnalysis,
		Status:     TaskStatusPending,
		Priority:   priority,
		FilePath:   filePath,
		CompanyID:  companyID,
		CreatedAt:  time.Now(),
	}
}

// Terminal reports whether the task reached a final state.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// Claimable reports whether the claim query may pick this task up at `now`.
func (t *Task) Claimable(now time.Time) bool {
	if t.Status != TaskStatusPending && t.Status != TaskStatusRetry {
		return false
	}
	return t.NextAttemptAt == nil || !t.NextAttemptAt.After(now)
}

// Duration is the wall time of the current (or last) processing attempt.
// Unstarted tasks report age since creation.
func (t *Task) Duration(now time.Time) time.Duration {
	start := t.CreatedAt
	if t.StartedAt != nil {
		start = *t.StartedAt
	}
	end := now
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(start)
}

// ErrorPreview truncates LastError for list views.
func (t *Task) ErrorPreview(max int) string {
	if max <= 0 || len(t.LastError) <= max {
		return t.LastError
	}
	return t.LastError[:max] + "..."
}
