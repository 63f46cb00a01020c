package repository

import (
	"context"
	"time"

	"deckreview-pipeline/internal/domain/model"
)

// TaskRepository is the Task Store: durable CRUD over processing_queue rows
// plus the privileged operations used by the scheduler and the health
// monitor. All errors are surfaced to the caller; the repository never
// retries on its own.
type TaskRepository interface {
	Save(ctx context.Context, tx Tx, task *model.Task) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Task, error)
	FindByDocumentID(ctx context.Context, tx Tx, documentID string) (*model.Task, error)

	// ClaimNext atomically selects the highest-priority, oldest claimable
	// task, marks it processing with started_at=now() and a zeroed progress
	// snapshot, and returns it. Safe under concurrent callers: exactly one
	// caller wins a given row. Returns domain.ErrNoTaskAvailable when the
	// queue is empty.
	ClaimNext(ctx context.Context) (*model.Task, error)

	// Complete finishes a processing attempt. outcome must be completed or
	// failed; completed_at is set and, on success, last_error cleared.
	// Returns domain.ErrStaleClaim when the row is no longer processing.
	Complete(ctx context.Context, tx Tx, taskID string, outcome model.TaskStatus, lastError string) error

	// Requeue returns a claimed task to the queue after a transient dispatch
	// failure: status=retry, started_at cleared, retry_count incremented,
	// next_attempt_at set for the backoff gate.
	Requeue(ctx context.Context, tx Tx, taskID string, lastError string, nextAttempt time.Time) error

	UpdateProgress(ctx context.Context, tx Tx, taskID, currentStep string, percentage int, message string) error

	ListByStatus(ctx context.Context, tx Tx, status model.TaskStatus, limit int) ([]*model.Task, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.TaskStatus]int, error)

	// ListStuck returns processing tasks whose attempt started before the
	// cutoff. Used only by the health monitor.
	ListStuck(ctx context.Context, tx Tx, startedBefore time.Time) ([]*model.Task, error)

	// ResetToPending repairs a stuck task: status=pending, started_at and
	// next_attempt_at cleared, retry_count incremented.
	ResetToPending(ctx context.Context, tx Tx, taskID string) error

	// ForceRequeue resets a document's task to pending with the given
	// priority, clearing error, timestamps and the backoff gate.
	ForceRequeue(ctx context.Context, tx Tx, documentID string, priority int) error

	// RetryFailed requeues every failed task (status=pending, retry_count+1,
	// error and timestamps cleared) and returns how many were touched.
	RetryFailed(ctx context.Context, tx Tx) (int, error)
}
