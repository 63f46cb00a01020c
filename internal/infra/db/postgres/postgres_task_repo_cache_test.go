//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/repository"
)

func cachedTask() *model.Task {
	return &model.Task{
		ID:         "task-1",
		DocumentID: "doc-1",
		TaskType:   model.TaskTypePDFAnalysis,
		Status:     model.TaskStatusProcessing,
		Priority:   10,
		FilePath:   "/decks/doc-1.pdf",
		CreatedAt:  time.Now().Truncate(time.Second),
	}
}

func TestTaskCacheDecorator_FindByDocumentID_Hit(t *testing.T) {
	task := cachedTask()
	payload, _ := json.Marshal(task)

	innerCalled := false
	inner := &mockInnerTaskRepo{
		FindByDocumentIDFunc: func(ctx context.Context, tx repository.Tx, documentID string) (*model.Task, error) {
			innerCalled = true
			return task, nil
		},
	}
	cache := &mockRedisClient{
		GetFunc: func(ctx context.Context, key string) (string, error) {
			if key != "task:doc:doc-1" {
				t.Errorf("cache key = %s", key)
			}
			return string(payload), nil
		},
	}

	repo := NewTaskRepoCacheDecorator(inner, cache, time.Minute)
	got, err := repo.FindByDocumentID(context.Background(), nil, "doc-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if innerCalled {
		t.Error("cache hit still queried the store")
	}
	if got.ID != task.ID || got.Status != task.Status {
		t.Errorf("got = %+v", got)
	}
}

func TestTaskCacheDecorator_FindByDocumentID_MissPopulatesCache(t *testing.T) {
	task := cachedTask()
	inner := &mockInnerTaskRepo{
		FindByDocumentIDFunc: func(ctx context.Context, tx repository.Tx, documentID string) (*model.Task, error) {
			return task, nil
		},
	}
	var setKey string
	cache := &mockRedisClient{
		GetFunc: func(ctx context.Context, key string) (string, error) {
			return "", redis.Nil
		},
		SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
			setKey = key
			if expiration != time.Minute {
				t.Errorf("ttl = %s, want 1m", expiration)
			}
			return nil
		},
	}

	repo := NewTaskRepoCacheDecorator(inner, cache, time.Minute)
	got, err := repo.FindByDocumentID(context.Background(), nil, "doc-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != task.ID {
		t.Errorf("got = %+v", got)
	}
	if setKey != "task:doc:doc-1" {
		t.Errorf("populated key = %q", setKey)
	}
}

func TestTaskCacheDecorator_WritesInvalidate(t *testing.T) {
	task := cachedTask()
	inner := &mockInnerTaskRepo{
		SaveFunc: func(ctx context.Context, tx repository.Tx, task *model.Task) error { return nil },
		FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
			return task, nil
		},
		CompleteFunc: func(ctx context.Context, tx repository.Tx, taskID string, outcome model.TaskStatus, lastError string) error {
			return nil
		},
		ForceRequeueFunc: func(ctx context.Context, tx repository.Tx, documentID string, priority int) error {
			return nil
		},
	}
	deleted := map[string]int{}
	cache := &mockRedisClient{
		DelFunc: func(ctx context.Context, keys ...string) error {
			for _, k := range keys {
				deleted[k]++
			}
			return nil
		},
	}

	repo := NewTaskRepoCacheDecorator(inner, cache, time.Minute)
	ctx := context.Background()

	if err := repo.Save(ctx, nil, task); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Complete only knows the task id; the decorator resolves the document key.
	if err := repo.Complete(ctx, nil, task.ID, model.TaskStatusCompleted, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := repo.ForceRequeue(ctx, nil, task.DocumentID, 50); err != nil {
		t.Fatalf("force requeue: %v", err)
	}

	if deleted["task:doc:doc-1"] != 3 {
		t.Errorf("invalidations = %v, want 3 for task:doc:doc-1", deleted)
	}
}

func TestTaskCacheDecorator_InvalidatesAfterStoreWrite(t *testing.T) {
	task := cachedTask()
	var calls []string
	inner := &mockInnerTaskRepo{
		SaveFunc: func(ctx context.Context, tx repository.Tx, task *model.Task) error {
			calls = append(calls, "store")
			return nil
		},
	}
	cache := &mockRedisClient{
		DelFunc: func(ctx context.Context, keys ...string) error {
			calls = append(calls, "del")
			return nil
		},
	}

	repo := NewTaskRepoCacheDecorator(inner, cache, time.Minute)
	ctx := context.Background()

	// Deleting the key first would let a concurrent read repopulate the
	// pre-write snapshot; the store write has to land before the Del.
	if err := repo.Save(ctx, nil, task); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(calls) != 2 || calls[0] != "store" || calls[1] != "del" {
		t.Errorf("call order = %v, want [store del]", calls)
	}

	calls = nil
	inner.SaveFunc = func(ctx context.Context, tx repository.Tx, task *model.Task) error {
		calls = append(calls, "store")
		return errors.New("connection refused")
	}
	if err := repo.Save(ctx, nil, task); err == nil {
		t.Fatal("failed save reported success")
	}
	if len(calls) != 1 || calls[0] != "store" {
		t.Errorf("failed write still touched the cache: calls = %v", calls)
	}
}

func TestTaskCacheDecorator_ClaimInvalidates(t *testing.T) {
	task := cachedTask()
	inner := &mockInnerTaskRepo{
		ClaimNextFunc: func(ctx context.Context) (*model.Task, error) { return task, nil },
	}
	var deletedKey string
	cache := &mockRedisClient{
		DelFunc: func(ctx context.Context, keys ...string) error {
			deletedKey = keys[0]
			return nil
		},
	}

	repo := NewTaskRepoCacheDecorator(inner, cache, time.Minute)
	claimed, err := repo.ClaimNext(context.Background())
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}
	if deletedKey != "task:doc:doc-1" {
		t.Errorf("invalidated %q, want task:doc:doc-1", deletedKey)
	}
}
