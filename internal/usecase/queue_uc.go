package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"deckreview-pipeline/internal/domain"
	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/repository"
	"deckreview-pipeline/internal/infra/logging"
	"deckreview-pipeline/internal/infra/metrics"
)

// TaskStatusView is the read-only snapshot exposed to status callers.
type TaskStatusView struct {
	Status             model.TaskStatus `json:"status"`
	CurrentStep        string           `json:"current_step,omitempty"`
	ProgressPercentage int              `json:"progress_percentage"`
	ProgressMessage    string           `json:"progress_message,omitempty"`
	RetryCount         int              `json:"retry_count"`
	LastError          string           `json:"last_error,omitempty"`
}

// TaskSummary is the admin list view: one line per task with duration and a
// short error preview.
type TaskSummary struct {
	ID              string           `json:"id"`
	DocumentID      string           `json:"document_id"`
	Status          model.TaskStatus `json:"status"`
	Priority        int              `json:"priority"`
	CurrentStep     string           `json:"current_step,omitempty"`
	RetryCount      int              `json:"retry_count"`
	DurationSeconds float64          `json:"duration_seconds"`
	ErrorPreview    string           `json:"error_preview,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// QueueUseCase covers task intake, status reads and the administrative
// queue-manager operations.
type QueueUseCase interface {
	Enqueue(ctx context.Context, documentID, filePath, companyID string, priority int) (*model.Task, error)
	Status(ctx context.Context, documentID string) (*TaskStatusView, error)
	History(ctx context.Context, documentID string) ([]*model.ProgressEvent, error)

	ListByStatus(ctx context.Context, status model.TaskStatus, limit int) ([]TaskSummary, error)
	ForceRequeue(ctx context.Context, documentID string, priority int) error
	ResetStuck(ctx context.Context, olderThan time.Duration) (int, error)
	RetryFailed(ctx context.Context) (int, error)
	QueueDepth(ctx context.Context) (map[model.TaskStatus]int, error)
}

type queueUC struct {
	tasks    repository.TaskRepository
	progress repository.ProgressRepository
	log      *zerolog.Logger
}

func NewQueueUseCase(tasks repository.TaskRepository, progress repository.ProgressRepository, logger *zerolog.Logger) QueueUseCase {
	l := logger.With().Str("component", "QueueUC").Logger()
	return &queueUC{tasks: tasks, progress: progress, log: &l}
}

func (uc *queueUC) Enqueue(ctx context.Context, documentID, filePath, companyID string, priority int) (*model.Task, error) {
	defer logging.TraceDuration(uc.log, "QueueUC.Enqueue")()
	if documentID == "" || filePath == "" {
		return nil, domain.ErrInvalidArgument
	}

	// One live task per document. Finished documents may be re-submitted.
	existing, err := uc.tasks.FindByDocumentID(ctx, nil, documentID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check existing task: %w", err)
	}
	if existing != nil && !existing.Terminal() {
		return nil, domain.ErrAlreadyExists
	}

	task := model.NewTask(documentID, filePath, companyID, priority)
	if err := uc.tasks.Save(ctx, nil, task); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	metrics.IncTaskEnqueued()
	uc.log.Info().Str("task_id", task.ID).Str("document_id", documentID).
		Int("priority", priority).Msg("task enqueued")
	return task, nil
}

func (uc *queueUC) Status(ctx context.Context, documentID string) (*TaskStatusView, error) {
	defer logging.TraceDuration(uc.log, "QueueUC.Status")()
	task, err := uc.tasks.FindByDocumentID(ctx, nil, documentID)
	if err != nil {
		return nil, err
	}
	return &TaskStatusView{
		Status:             task.Status,
		CurrentStep:        task.CurrentStep,
		ProgressPercentage: task.ProgressPercentage,
		ProgressMessage:    task.ProgressMessage,
		RetryCount:         task.RetryCount,
		LastError:          task.LastError,
	}, nil
}

func (uc *queueUC) History(ctx context.Context, documentID string) ([]*model.ProgressEvent, error) {
	task, err := uc.tasks.FindByDocumentID(ctx, nil, documentID)
	if err != nil {
		return nil, err
	}
	return uc.progress.ListByTask(ctx, nil, task.ID)
}

func (uc *queueUC) ListByStatus(ctx context.Context, status model.TaskStatus, limit int) ([]TaskSummary, error) {
	tasks, err := uc.tasks.ListByStatus(ctx, nil, status, limit)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskSummary{
			ID:              t.ID,
			DocumentID:      t.DocumentID,
			Status:          t.Status,
			Priority:        t.Priority,
			CurrentStep:     t.CurrentStep,
			RetryCount:      t.RetryCount,
			DurationSeconds: t.Duration(now).Seconds(),
			ErrorPreview:    t.ErrorPreview(120),
			CreatedAt:       t.CreatedAt,
		})
	}
	return out, nil
}

func (uc *queueUC) ForceRequeue(ctx context.Context, documentID string, priority int) error {
	if err := uc.tasks.ForceRequeue(ctx, nil, documentID, priority); err != nil {
		return err
	}
	uc.log.Info().Str("document_id", documentID).Int("priority", priority).
		Msg("document force-requeued")
	return nil
}

func (uc *queueUC) ResetStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	stuck, err := uc.tasks.ListStuck(ctx, nil, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	reset := 0
	for _, t := range stuck {
		if err := uc.tasks.ResetToPending(ctx, nil, t.ID); err != nil {
			// Someone else (the health monitor, a finishing dispatcher)
			// moved it first; keep going.
			if errors.Is(err, domain.ErrStaleClaim) {
				continue
			}
			return reset, err
		}
		reset++
	}
	uc.log.Info().Int("found", len(stuck)).Int("reset", reset).Msg("stuck tasks reset")
	return reset, nil
}

func (uc *queueUC) RetryFailed(ctx context.Context) (int, error) {
	n, err := uc.tasks.RetryFailed(ctx, nil)
	if err != nil {
		return 0, err
	}
	uc.log.Info().Int("count", n).Msg("failed tasks requeued")
	return n, nil
}

func (uc *queueUC) QueueDepth(ctx context.Context) (map[model.TaskStatus]int, error) {
	counts, err := uc.tasks.CountByStatus(ctx, nil)
	if err != nil {
		return nil, err
	}
	for status, n := range counts {
		metrics.SetQueueDepth(string(status), n)
	}
	return counts, nil
}
