//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"deckreview-pipeline/internal/domain"
	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/adapter"
	"deckreview-pipeline/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// --- in-memory task repo ---

type mockTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*model.Task

	// optional hooks
	UpdateProgressFunc func(ctx context.Context, tx repository.Tx, taskID, step string, pct int, msg string) error
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: map[string]*model.Task{}}
}

func (m *mockTaskRepo) put(t *model.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
}

func (m *mockTaskRepo) get(id string) *model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		cp := *t
		return &cp
	}
	return nil
}

func (m *mockTaskRepo) Save(ctx context.Context, tx repository.Tx, task *model.Task) error {
	if task.ID == "" {
		task.ID = "task-" + task.DocumentID
	}
	m.put(task)
	return nil
}

func (m *mockTaskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
	if t := m.get(id); t != nil {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockTaskRepo) FindByDocumentID(ctx context.Context, tx repository.Tx, documentID string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.Task
	for _, t := range m.tasks {
		if t.DocumentID != documentID {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *mockTaskRepo) ClaimNext(ctx context.Context) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var best *model.Task
	for _, t := range m.tasks {
		if !t.Claimable(now) {
			continue
		}
		if best == nil || t.Priority > best.Priority ||
			(t.Priority == best.Priority && t.CreatedAt.Before(best.CreatedAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, domain.ErrNoTaskAvailable
	}
	best.Status = model.TaskStatusProcessing
	started := now
	best.StartedAt = &started
	best.CurrentStep = ""
	best.ProgressPercentage = 0
	best.ProgressMessage = ""
	best.NextAttemptAt = nil
	cp := *best
	return &cp, nil
}

func (m *mockTaskRepo) Complete(ctx context.Context, tx repository.Tx, taskID string, outcome model.TaskStatus, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Status != model.TaskStatusProcessing {
		return domain.ErrStaleClaim
	}
	t.Status = outcome
	done := time.Now()
	t.CompletedAt = &done
	if outcome == model.TaskStatusFailed {
		t.LastError = lastError
	} else {
		t.LastError = ""
	}
	return nil
}

func (m *mockTaskRepo) Requeue(ctx context.Context, tx repository.Tx, taskID string, lastError string, nextAttempt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Status != model.TaskStatusProcessing {
		return domain.ErrStaleClaim
	}
	t.Status = model.TaskStatusRetry
	t.StartedAt = nil
	t.CompletedAt = nil
	t.RetryCount++
	t.LastError = lastError
	t.NextAttemptAt = &nextAttempt
	return nil
}

func (m *mockTaskRepo) UpdateProgress(ctx context.Context, tx repository.Tx, taskID, step string, pct int, msg string) error {
	if m.UpdateProgressFunc != nil {
		return m.UpdateProgressFunc(ctx, tx, taskID, step, pct, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	t.CurrentStep = step
	t.ProgressPercentage = pct
	t.ProgressMessage = msg
	return nil
}

func (m *mockTaskRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.TaskStatus, limit int) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Task
	for _, t := range m.tasks {
		if t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTaskRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.TaskStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.TaskStatus]int{}
	for _, t := range m.tasks {
		out[t.Status]++
	}
	return out, nil
}

func (m *mockTaskRepo) ListStuck(ctx context.Context, tx repository.Tx, startedBefore time.Time) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Task
	for _, t := range m.tasks {
		if t.Status == model.TaskStatusProcessing && t.StartedAt != nil && t.StartedAt.Before(startedBefore) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTaskRepo) ResetToPending(ctx context.Context, tx repository.Tx, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Status != model.TaskStatusProcessing {
		return domain.ErrStaleClaim
	}
	t.Status = model.TaskStatusPending
	t.StartedAt = nil
	t.NextAttemptAt = nil
	t.RetryCount++
	return nil
}

func (m *mockTaskRepo) ForceRequeue(ctx context.Context, tx repository.Tx, documentID string, priority int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, t := range m.tasks {
		if t.DocumentID == documentID {
			t.Status = model.TaskStatusPending
			t.Priority = priority
			t.StartedAt = nil
			t.CompletedAt = nil
			t.LastError = ""
			t.NextAttemptAt = nil
			t.CurrentStep = ""
			t.ProgressPercentage = 0
			t.ProgressMessage = ""
			found = true
		}
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
}

func (m *mockTaskRepo) RetryFailed(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.Status == model.TaskStatusFailed {
			t.Status = model.TaskStatusPending
			t.RetryCount++
			t.LastError = ""
			t.StartedAt = nil
			t.CompletedAt = nil
			t.NextAttemptAt = nil
			t.CurrentStep = ""
			t.ProgressPercentage = 0
			t.ProgressMessage = ""
			n++
		}
	}
	return n, nil
}

var _ repository.TaskRepository = (*mockTaskRepo)(nil)

// --- in-memory progress repo ---

type mockProgressRepo struct {
	mu     sync.Mutex
	events []*model.ProgressEvent
}

func newMockProgressRepo() *mockProgressRepo { return &mockProgressRepo{} }

func (m *mockProgressRepo) Append(ctx context.Context, tx repository.Tx, ev *model.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ev
	cp.ID = int64(len(m.events) + 1)
	cp.CreatedAt = time.Now()
	m.events = append(m.events, &cp)
	ev.ID = cp.ID
	return nil
}

func (m *mockProgressRepo) ListByTask(ctx context.Context, tx repository.Tx, taskID string) ([]*model.ProgressEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ProgressEvent
	for _, ev := range m.events {
		if ev.TaskID == taskID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ repository.ProgressRepository = (*mockProgressRepo)(nil)

// --- in-memory artifact repo ---

type mockArtifactRepo struct {
	mu        sync.Mutex
	artifacts map[string]map[model.Phase][]byte // documentID -> phase -> payload
	cleared   int
}

func newMockArtifactRepo() *mockArtifactRepo {
	return &mockArtifactRepo{artifacts: map[string]map[model.Phase][]byte{}}
}

func (m *mockArtifactRepo) SavePhaseResult(ctx context.Context, tx repository.Tx, documentID string, phase model.Phase, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.artifacts[documentID] == nil {
		m.artifacts[documentID] = map[model.Phase][]byte{}
	}
	m.artifacts[documentID][phase] = payload
	return nil
}

func (m *mockArtifactRepo) ClearForDocument(ctx context.Context, tx repository.Tx, documentID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.artifacts[documentID]))
	delete(m.artifacts, documentID)
	m.cleared++
	return n, nil
}

func (m *mockArtifactRepo) CountForDocument(ctx context.Context, tx repository.Tx, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.artifacts[documentID]), nil
}

var _ repository.ArtifactRepository = (*mockArtifactRepo)(nil)

// --- worker adapter mock ---

type mockWorkerAdapter struct {
	mu       sync.Mutex
	calls    []model.Phase
	RunFunc  func(ctx context.Context, req adapter.PhaseRequest) (*adapter.PhaseResult, error)
	PingFunc func(ctx context.Context) error
}

func (m *mockWorkerAdapter) RunPhase(ctx context.Context, req adapter.PhaseRequest) (*adapter.PhaseResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req.Phase)
	m.mu.Unlock()
	return m.RunFunc(ctx, req)
}

func (m *mockWorkerAdapter) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *mockWorkerAdapter) phases() []model.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Phase, len(m.calls))
	copy(out, m.calls)
	return out
}

var _ adapter.WorkerAdapter = (*mockWorkerAdapter)(nil)
