package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/repository"
)

// ProgressTracker appends ProgressEvents and keeps the task row's snapshot
// fields in sync for cheap status reads.
type ProgressTracker interface {
	// Record writes one progress event and updates the task snapshot.
	// Percentage is clamped so it never decreases within an attempt; a new
	// attempt starts from zero because the claim resets the snapshot.
	Record(ctx context.Context, task *model.Task, stepName string, status model.StepStatus, percentage int, message string) error
}

type progressTracker struct {
	tasks    repository.TaskRepository
	progress repository.ProgressRepository
	log      *zerolog.Logger
}

func NewProgressTracker(tasks repository.TaskRepository, progress repository.ProgressRepository, logger *zerolog.Logger) ProgressTracker {
	l := logger.With().Str("component", "ProgressTracker").Logger()
	return &progressTracker{tasks: tasks, progress: progress, log: &l}
}

func (t *progressTracker) Record(ctx context.Context, task *model.Task, stepName string, status model.StepStatus, percentage int, message string) error {
	if percentage < task.ProgressPercentage {
		// Monotonic within an attempt: a late or out-of-order report never
		// moves the bar backwards.
		percentage = task.ProgressPercentage
	}
	if percentage > 100 {
		percentage = 100
	}

	ev := &model.ProgressEvent{
		TaskID:             task.ID,
		StepName:           stepName,
		StepStatus:         status,
		ProgressPercentage: percentage,
		Message:            message,
		Attempt:            task.RetryCount,
	}
	if err := t.progress.Append(ctx, nil, ev); err != nil {
		return fmt.Errorf("append progress event: %w", err)
	}
	if err := t.tasks.UpdateProgress(ctx, nil, task.ID, stepName, percentage, message); err != nil {
		return fmt.Errorf("update progress snapshot: %w", err)
	}

	task.CurrentStep = stepName
	task.ProgressPercentage = percentage
	task.ProgressMessage = message

	t.log.Debug().Str("task_id", task.ID).Str("step", stepName).
		Str("step_status", string(status)).Int("pct", percentage).Msg("progress recorded")
	return nil
}
