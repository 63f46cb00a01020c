package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"deckreview-pipeline/internal/domain"
	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/repository"
)

var _ repository.TaskRepository = (*taskRepo)(nil)

type taskRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewTaskRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *taskRepo {
	return &taskRepo{pool: pool, tm: tm}
}

const taskColumns = `
id, document_id, task_type, status, priority, file_path, company_id,
current_step, progress_percentage, progress_message, retry_count, last_error,
created_at, started_at, completed_at, next_attempt_at, updated_at`

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var status string
	var currentStep, progressMessage, lastError *string
	err := row.Scan(
		&t.ID, &t.DocumentID, &t.TaskType, &status, &t.Priority, &t.FilePath, &t.CompanyID,
		&currentStep, &t.ProgressPercentage, &progressMessage, &t.RetryCount, &lastError,
		&t.CreatedAt, &t.StartedAt, &t.CompletedAt, &t.NextAttemptAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	t.Status = model.TaskStatus(status)
	if currentStep != nil {
		t.CurrentStep = *currentStep
	}
	if progressMessage != nil {
		t.ProgressMessage = *progressMessage
	}
	if lastError != nil {
		t.LastError = *lastError
	}
	return &t, nil
}

func (r *taskRepo) Save(ctx context.Context, tx repository.Tx, task *model.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.UpdatedAt = time.Now()

	const q = `
INSERT INTO processing_queue (
  id, document_id, task_type, status, priority, file_path, company_id,
  current_step, progress_percentage, progress_message, retry_count, last_error,
  created_at, started_at, completed_at, next_attempt_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  priority = EXCLUDED.priority,
  current_step = EXCLUDED.current_step,
  progress_percentage = EXCLUDED.progress_percentage,
  progress_message = EXCLUDED.progress_message,
  retry_count = EXCLUDED.retry_count,
  last_error = EXCLUDED.last_error,
  started_at = EXCLUDED.started_at,
  completed_at = EXCLUDED.completed_at,
  next_attempt_at = EXCLUDED.next_attempt_at,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		task.ID, task.DocumentID, task.TaskType, task.Status, task.Priority, task.FilePath, task.CompanyID,
		nullIfEmpty(task.CurrentStep), task.ProgressPercentage, nullIfEmpty(task.ProgressMessage),
		task.RetryCount, nullIfEmpty(task.LastError),
		task.CreatedAt, task.StartedAt, task.CompletedAt, task.NextAttemptAt, task.UpdatedAt)
	return liveRowConflict(err)
}

// liveRowConflict maps a violation of the one-live-task-per-document index
// to the same error the application-level duplicate check returns.
func liveRowConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *taskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+taskColumns+` FROM processing_queue WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanTask(row)
}

func (r *taskRepo) FindByDocumentID(ctx context.Context, tx repository.Tx, documentID string) (*model.Task, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+taskColumns+` FROM processing_queue WHERE document_id=$1 ORDER BY created_at DESC LIMIT 1;`,
		documentID)
	if err != nil {
		return nil, err
	}
	return scanTask(row)
}

// ClaimNext is the atomic pending→processing transition. The SELECT and the
// UPDATE run in one transaction; FOR UPDATE SKIP LOCKED guarantees that
// concurrent claimers never race for the same row, they simply skip it.
func (r *taskRepo) ClaimNext(ctx context.Context) (*model.Task, error) {
	var claimed *model.Task

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT ` + taskColumns + `
FROM processing_queue
WHERE status IN ('pending','retry')
  AND (next_attempt_at IS NULL OR next_attempt_at <= now())
ORDER BY priority DESC, created_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		task, err := scanTask(row)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNoTaskAvailable
			}
			return err
		}

		// A new attempt begins: progress snapshot resets to zero.
		const claimQuery = `
UPDATE processing_queue
SET status='processing', started_at=now(), current_step=NULL,
    progress_percentage=0, progress_message=NULL, next_attempt_at=NULL,
    updated_at=now()
WHERE id=$1
RETURNING started_at, updated_at;`
		row, err = pickRow(ctx, r.pool, tx, claimQuery, task.ID)
		if err != nil {
			return err
		}
		if err := row.Scan(&task.StartedAt, &task.UpdatedAt); err != nil {
			return domain.ErrReadDatabaseRow
		}
		task.Status = model.TaskStatusProcessing
		task.CurrentStep = ""
		task.ProgressPercentage = 0
		task.ProgressMessage = ""
		task.NextAttemptAt = nil

		claimed = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *taskRepo) Complete(ctx context.Context, tx repository.Tx, taskID string, outcome model.TaskStatus, lastError string) error {
	if outcome != model.TaskStatusCompleted && outcome != model.TaskStatusFailed {
		return domain.ErrInvalidArgument
	}
	const q = `
UPDATE processing_queue
SET status=$2, completed_at=now(), last_error=$3, updated_at=now()
WHERE id=$1 AND status='processing';`
	var errVal *string
	if outcome == model.TaskStatusFailed && lastError != "" {
		errVal = &lastError
	}
	tag, err := execSQL(ctx, r.pool, tx, q, taskID, outcome, errVal)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleClaim
	}
	return nil
}

func (r *taskRepo) Requeue(ctx context.Context, tx repository.Tx, taskID string, lastError string, nextAttempt time.Time) error {
	const q = `
UPDATE processing_queue
SET status='retry', started_at=NULL, completed_at=NULL,
    retry_count=retry_count+1, last_error=$2, next_attempt_at=$3, updated_at=now()
WHERE id=$1 AND status='processing';`
	tag, err := execSQL(ctx, r.pool, tx, q, taskID, lastError, nextAttempt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleClaim
	}
	return nil
}

func (r *taskRepo) UpdateProgress(ctx context.Context, tx repository.Tx, taskID, currentStep string, percentage int, message string) error {
	const q = `
UPDATE processing_queue
SET current_step=$2, progress_percentage=$3, progress_message=$4, updated_at=now()
WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, taskID, nullIfEmpty(currentStep), percentage, nullIfEmpty(message))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *taskRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.TaskStatus, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+taskColumns+` FROM processing_queue WHERE status=$1 ORDER BY created_at DESC LIMIT $2;`,
		status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *taskRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.TaskStatus]int, error) {
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT status, COUNT(*) FROM processing_queue GROUP BY status;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.TaskStatus(status)] = n
	}
	return out, rows.Err()
}

func (r *taskRepo) ListStuck(ctx context.Context, tx repository.Tx, startedBefore time.Time) ([]*model.Task, error) {
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+taskColumns+` FROM processing_queue WHERE status='processing' AND started_at < $1 ORDER BY started_at ASC;`,
		startedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *taskRepo) ResetToPending(ctx context.Context, tx repository.Tx, taskID string) error {
	const q = `
UPDATE processing_queue
SET status='pending', started_at=NULL, next_attempt_at=NULL,
    retry_count=retry_count+1, updated_at=now()
WHERE id=$1 AND status='processing';`
	tag, err := execSQL(ctx, r.pool, tx, q, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleClaim
	}
	return nil
}

func (r *taskRepo) ForceRequeue(ctx context.Context, tx repository.Tx, documentID string, priority int) error {
	// Only the newest row is the document's current task; older rows from
	// earlier submissions stay terminal.
	const q = `
UPDATE processing_queue
SET status='pending', priority=$2, started_at=NULL, completed_at=NULL,
    last_error=NULL, next_attempt_at=NULL, current_step=NULL,
    progress_percentage=0, progress_message=NULL, updated_at=now()
WHERE id = (
  SELECT id FROM processing_queue
  WHERE document_id=$1
  ORDER BY created_at DESC
  LIMIT 1
);`
	tag, err := execSQL(ctx, r.pool, tx, q, documentID, priority)
	if err != nil {
		return liveRowConflict(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *taskRepo) RetryFailed(ctx context.Context, tx repository.Tx) (int, error) {
	// Only each document's newest row is its current task. An older failed
	// row either belongs to a document that was re-enqueued (and may be live
	// again) or to an attempt already superseded by a newer failure; either
	// way requeueing it would give the document two live rows.
	const q = `
UPDATE processing_queue t
SET status='pending', retry_count=retry_count+1, last_error=NULL,
    started_at=NULL, completed_at=NULL, next_attempt_at=NULL,
    current_step=NULL, progress_percentage=0, progress_message=NULL,
    updated_at=now()
WHERE t.status='failed'
  AND t.id = (
    SELECT id FROM processing_queue newest
    WHERE newest.document_id = t.document_id
    ORDER BY created_at DESC
    LIMIT 1
  );`
	tag, err := execSQL(ctx, r.pool, tx, q)
	if err != nil {
		return 0, liveRowConflict(err)
	}
	return int(tag.RowsAffected()), nil
}

func collectTasks(rows pgx.Rows) ([]*model.Task, error) {
	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
