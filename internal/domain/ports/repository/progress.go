package repository

import (
	"context"

	"deckreview-pipeline/internal/domain/model"
)

// ProgressRepository appends to and reads the processing_progress audit log.
type ProgressRepository interface {
	Append(ctx context.Context, tx Tx, ev *model.ProgressEvent) error
	ListByTask(ctx context.Context, tx Tx, taskID string) ([]*model.ProgressEvent, error)
}
