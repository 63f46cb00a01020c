package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/repository"
	"deckreview-pipeline/internal/infra/metrics"
	red "deckreview-pipeline/internal/infra/redis"
)

var _ repository.TaskRepository = (*taskRepoCacheDecorator)(nil)

// taskRepoCacheDecorator caches FindByDocumentID snapshots in redis so status
// polls from the frontend do not hit the task store. Every write path
// invalidates the document's key after the store write succeeds, so a
// concurrent read cannot repopulate the pre-write snapshot; the short TTL
// bounds staleness when an invalidation is lost anyway.
type taskRepoCacheDecorator struct {
	inner repository.TaskRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewTaskRepoCacheDecorator(inner repository.TaskRepository, cache red.RedisClient, ttl time.Duration) repository.TaskRepository {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &taskRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func docKey(documentID string) string { return fmt.Sprintf("task:doc:%s", documentID) }

func (d *taskRepoCacheDecorator) FindByDocumentID(ctx context.Context, tx repository.Tx, documentID string) (*model.Task, error) {
	key := docKey(documentID)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var task model.Task
		if json.Unmarshal([]byte(val), &task) == nil {
			metrics.IncCacheRequest("task_status", "hit")
			return &task, nil
		}
	}
	// A miss, a redis failure and a corrupt entry all fall through to the store.

	metrics.IncCacheRequest("task_status", "miss")
	task, err := d.inner.FindByDocumentID(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(task); err == nil {
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return task, nil
}

func (d *taskRepoCacheDecorator) invalidate(ctx context.Context, documentID string) {
	if documentID != "" {
		_ = d.cache.Del(ctx, docKey(documentID))
	}
}

func (d *taskRepoCacheDecorator) invalidateByID(ctx context.Context, tx repository.Tx, taskID string) {
	task, err := d.inner.FindByID(ctx, tx, taskID)
	if err == nil {
		d.invalidate(ctx, task.DocumentID)
	}
}

// --- write paths: delegate and invalidate ---

func (d *taskRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, task *model.Task) error {
	if err := d.inner.Save(ctx, tx, task); err != nil {
		return err
	}
	d.invalidate(ctx, task.DocumentID)
	return nil
}

func (d *taskRepoCacheDecorator) ClaimNext(ctx context.Context) (*model.Task, error) {
	task, err := d.inner.ClaimNext(ctx)
	if task != nil {
		d.invalidate(ctx, task.DocumentID)
	}
	return task, err
}

func (d *taskRepoCacheDecorator) Complete(ctx context.Context, tx repository.Tx, taskID string, outcome model.TaskStatus, lastError string) error {
	if err := d.inner.Complete(ctx, tx, taskID, outcome, lastError); err != nil {
		return err
	}
	d.invalidateByID(ctx, tx, taskID)
	return nil
}

func (d *taskRepoCacheDecorator) Requeue(ctx context.Context, tx repository.Tx, taskID string, lastError string, nextAttempt time.Time) error {
	if err := d.inner.Requeue(ctx, tx, taskID, lastError, nextAttempt); err != nil {
		return err
	}
	d.invalidateByID(ctx, tx, taskID)
	return nil
}

func (d *taskRepoCacheDecorator) UpdateProgress(ctx context.Context, tx repository.Tx, taskID, currentStep string, percentage int, message string) error {
	if err := d.inner.UpdateProgress(ctx, tx, taskID, currentStep, percentage, message); err != nil {
		return err
	}
	d.invalidateByID(ctx, tx, taskID)
	return nil
}

func (d *taskRepoCacheDecorator) ResetToPending(ctx context.Context, tx repository.Tx, taskID string) error {
	if err := d.inner.ResetToPending(ctx, tx, taskID); err != nil {
		return err
	}
	d.invalidateByID(ctx, tx, taskID)
	return nil
}

func (d *taskRepoCacheDecorator) ForceRequeue(ctx context.Context, tx repository.Tx, documentID string, priority int) error {
	if err := d.inner.ForceRequeue(ctx, tx, documentID, priority); err != nil {
		return err
	}
	d.invalidate(ctx, documentID)
	return nil
}

func (d *taskRepoCacheDecorator) RetryFailed(ctx context.Context, tx repository.Tx) (int, error) {
	// No per-document invalidation possible here; rely on the TTL.
	return d.inner.RetryFailed(ctx, tx)
}

// --- pure reads: delegate ---

func (d *taskRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
	return d.inner.FindByID(ctx, tx, id)
}

func (d *taskRepoCacheDecorator) ListByStatus(ctx context.Context, tx repository.Tx, status model.TaskStatus, limit int) ([]*model.Task, error) {
	return d.inner.ListByStatus(ctx, tx, status, limit)
}

func (d *taskRepoCacheDecorator) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.TaskStatus]int, error) {
	return d.inner.CountByStatus(ctx, tx)
}

func (d *taskRepoCacheDecorator) ListStuck(ctx context.Context, tx repository.Tx, startedBefore time.Time) ([]*model.Task, error) {
	return d.inner.ListStuck(ctx, tx, startedBefore)
}
