package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"deckreview-pipeline/internal/domain"
	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/repository"
)

var _ repository.ProgressRepository = (*progressRepo)(nil)

type progressRepo struct {
	pool *pgxpool.Pool
}

func NewProgressRepo(pool *pgxpool.Pool) *progressRepo {
	return &progressRepo{pool: pool}
}

func (r *progressRepo) Append(ctx context.Context, tx repository.Tx, ev *model.ProgressEvent) error {
	const q = `
INSERT INTO processing_progress (task_id, step_name, step_status, progress_percentage, message, attempt, created_at)
VALUES ($1,$2,$3,$4,$5,$6,now())
RETURNING id, created_at;`
	row, err := pickRow(ctx, r.pool, tx, q,
		ev.TaskID, ev.StepName, ev.StepStatus, ev.ProgressPercentage, nullIfEmpty(ev.Message), ev.Attempt)
	if err != nil {
		return err
	}
	if err := row.Scan(&ev.ID, &ev.CreatedAt); err != nil {
		return domain.ErrReadDatabaseRow
	}
	return nil
}

func (r *progressRepo) ListByTask(ctx context.Context, tx repository.Tx, taskID string) ([]*model.ProgressEvent, error) {
	const q = `
SELECT id, task_id, step_name, step_status, progress_percentage, message, attempt, created_at
FROM processing_progress
WHERE task_id=$1
ORDER BY id ASC;`
	rows, err := pickRows(ctx, r.pool, tx, q, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ProgressEvent
	for rows.Next() {
		var ev model.ProgressEvent
		var status string
		var message *string
		if err := rows.Scan(&ev.ID, &ev.TaskID, &ev.StepName, &status, &ev.ProgressPercentage, &message, &ev.Attempt, &ev.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		ev.StepStatus = model.StepStatus(status)
		if message != nil {
			ev.Message = *message
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}
