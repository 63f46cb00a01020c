//go:build !integration

package postgres

import (
	"context"
	"time"

	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/repository"
	red "deckreview-pipeline/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerTaskRepo mocks the database repository that the task decorator wraps.
type mockInnerTaskRepo struct {
	SaveFunc             func(ctx context.Context, tx repository.Tx, task *model.Task) error
	FindByIDFunc         func(ctx context.Context, tx repository.Tx, id string) (*model.Task, error)
	FindByDocumentIDFunc func(ctx context.Context, tx repository.Tx, documentID string) (*model.Task, error)
	ClaimNextFunc        func(ctx context.Context) (*model.Task, error)
	CompleteFunc         func(ctx context.Context, tx repository.Tx, taskID string, outcome model.TaskStatus, lastError string) error
	RequeueFunc          func(ctx context.Context, tx repository.Tx, taskID string, lastError string, nextAttempt time.Time) error
	UpdateProgressFunc   func(ctx context.Context, tx repository.Tx, taskID, currentStep string, percentage int, message string) error
	ListByStatusFunc     func(ctx context.Context, tx repository.Tx, status model.TaskStatus, limit int) ([]*model.Task, error)
	CountByStatusFunc    func(ctx context.Context, tx repository.Tx) (map[model.TaskStatus]int, error)
	ListStuckFunc        func(ctx context.Context, tx repository.Tx, startedBefore time.Time) ([]*model.Task, error)
	ResetToPendingFunc   func(ctx context.Context, tx repository.Tx, taskID string) error
	ForceRequeueFunc     func(ctx context.Context, tx repository.Tx, documentID string, priority int) error
	RetryFailedFunc      func(ctx context.Context, tx repository.Tx) (int, error)
}

var _ repository.TaskRepository = (*mockInnerTaskRepo)(nil)

func (m *mockInnerTaskRepo) Save(ctx context.Context, tx repository.Tx, task *model.Task) error {
	return m.SaveFunc(ctx, tx, task)
}
func (m *mockInnerTaskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerTaskRepo) FindByDocumentID(ctx context.Context, tx repository.Tx, documentID string) (*model.Task, error) {
	return m.FindByDocumentIDFunc(ctx, tx, documentID)
}
func (m *mockInnerTaskRepo) ClaimNext(ctx context.Context) (*model.Task, error) {
	return m.ClaimNextFunc(ctx)
}
func (m *mockInnerTaskRepo) Complete(ctx context.Context, tx repository.Tx, taskID string, outcome model.TaskStatus, lastError string) error {
	return m.CompleteFunc(ctx, tx, taskID, outcome, lastError)
}
func (m *mockInnerTaskRepo) Requeue(ctx context.Context, tx repository.Tx, taskID string, lastError string, nextAttempt time.Time) error {
	return m.RequeueFunc(ctx, tx, taskID, lastError, nextAttempt)
}
func (m *mockInnerTaskRepo) UpdateProgress(ctx context.Context, tx repository.Tx, taskID, currentStep string, percentage int, message string) error {
	return m.UpdateProgressFunc(ctx, tx, taskID, currentStep, percentage, message)
}
func (m *mockInnerTaskRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.TaskStatus, limit int) ([]*model.Task, error) {
	return m.ListByStatusFunc(ctx, tx, status, limit)
}
func (m *mockInnerTaskRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.TaskStatus]int, error) {
	return m.CountByStatusFunc(ctx, tx)
}
func (m *mockInnerTaskRepo) ListStuck(ctx context.Context, tx repository.Tx, startedBefore time.Time) ([]*model.Task, error) {
	return m.ListStuckFunc(ctx, tx, startedBefore)
}
func (m *mockInnerTaskRepo) ResetToPending(ctx context.Context, tx repository.Tx, taskID string) error {
	return m.ResetToPendingFunc(ctx, tx, taskID)
}
func (m *mockInnerTaskRepo) ForceRequeue(ctx context.Context, tx repository.Tx, documentID string, priority int) error {
	return m.ForceRequeueFunc(ctx, tx, documentID, priority)
}
func (m *mockInnerTaskRepo) RetryFailed(ctx context.Context, tx repository.Tx) (int, error) {
	return m.RetryFailedFunc(ctx, tx)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc  func(ctx context.Context, key string) (string, error)
	SetFunc  func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc  func(ctx context.Context, keys ...string) error
	PingFunc func(ctx context.Context) error
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
