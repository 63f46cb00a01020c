package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"deckreview-pipeline/internal/config"
	"deckreview-pipeline/internal/domain"
	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/repository"
	"deckreview-pipeline/internal/infra/logging"
	"deckreview-pipeline/internal/infra/metrics"
	red "deckreview-pipeline/internal/infra/redis"
	"deckreview-pipeline/internal/usecase"
)

// QueueProcessor is the scheduler: it polls the task store on a fixed
// interval, claims at most one task per tick, and hands it to the pipeline.
// Correctness under multiple instances relies entirely on the store's atomic
// claim, never on in-process state.
type QueueProcessor struct {
	tasks    repository.TaskRepository
	servers  repository.ServerRepository
	pipeline usecase.PipelineUseCase
	locker   red.Locker
	cfg      config.SchedulerConfig
	log      *zerolog.Logger
}

func NewQueueProcessor(
	tasks repository.TaskRepository,
	servers repository.ServerRepository,
	pipeline usecase.PipelineUseCase,
	locker red.Locker,
	cfg config.SchedulerConfig,
	logger *zerolog.Logger,
) *QueueProcessor {
	l := logger.With().Str("component", "QueueProcessor").Logger()
	return &QueueProcessor{
		tasks:    tasks,
		servers:  servers,
		pipeline: pipeline,
		locker:   locker,
		cfg:      cfg,
		log:      &l,
	}
}

// Start runs the polling loop until ctx is cancelled.
// This should be run in a goroutine.
func (p *QueueProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Dur("interval", p.cfg.PollInterval).Msg("queue processor started")
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("queue processor stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				p.processOne(ctx)
				return nil
			})
		}
	}
}

func (p *QueueProcessor) processOne(ctx context.Context) {
	// Backpressure: no claim while every available worker is saturated.
	server, err := p.pickServer(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrWorkerUnavailable) {
			p.log.Error().Err(err).Msg("server registry lookup failed")
		}
		return
	}

	task, err := p.tasks.ClaimNext(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoTaskAvailable) {
			metrics.IncClaimEmpty()
		} else {
			p.log.Error().Err(err).Msg("claim failed")
		}
		return
	}

	log := p.log.With().Str("task_id", task.ID).Str("document_id", task.DocumentID).Logger()
	ctx = logging.WithTaskID(ctx, task.ID)
	ctx = logging.WithDocumentID(ctx, task.DocumentID)

	// One document never runs on two instances at once, even when an admin
	// force-requeue races a stuck-task reset.
	lockKey := "dispatch:" + task.DocumentID
	token, err := p.locker.TryLock(ctx, lockKey, p.cfg.LockTTL)
	if err != nil {
		log.Warn().Err(err).Msg("dispatch lock unavailable, requeueing")
		p.requeueTransient(ctx, task, err)
		return
	}
	defer func() {
		if err := p.locker.Unlock(context.Background(), lockKey, token); err != nil {
			log.Warn().Err(err).Msg("dispatch unlock failed, lock will expire")
		}
	}()

	if err := p.servers.IncrementLoad(ctx, nil, server.ServerID); err != nil {
		// The slot vanished between the capacity check and here.
		log.Warn().Err(err).Str("server_id", server.ServerID).Msg("lost worker slot, requeueing")
		p.requeueTransient(ctx, task, err)
		return
	}
	defer func() {
		if err := p.servers.DecrementLoad(context.Background(), nil, server.ServerID); err != nil {
			log.Warn().Err(err).Str("server_id", server.ServerID).Msg("load decrement failed")
		}
	}()

	log.Info().Int("retry_count", task.RetryCount).Msg("processing task")
	start := time.Now()

	err = p.pipeline.Execute(ctx, task)
	latency := time.Since(start)

	var phaseErr *usecase.PhaseError
	switch {
	case err == nil:
		if err := p.tasks.Complete(context.Background(), nil, task.ID, model.TaskStatusCompleted, ""); err != nil {
			log.Error().Err(err).Msg("completion write failed")
			return
		}
		metrics.IncTaskProcessed(string(model.TaskStatusCompleted))
		log.Info().Dur("duration", latency).Msg("task completed")

	case errors.As(err, &phaseErr):
		// Worker explicitly rejected a phase: terminal, no retry.
		if err := p.tasks.Complete(context.Background(), nil, task.ID, model.TaskStatusFailed, phaseErr.Error()); err != nil {
			log.Error().Err(err).Msg("failure write failed")
			return
		}
		metrics.IncTaskProcessed(string(model.TaskStatusFailed))
		log.Error().Str("phase", string(phaseErr.Phase)).Dur("duration", latency).Msg("task failed")

	default:
		// Transient infrastructure failure: the task must never stay
		// processing, or it would be stuck until the health monitor runs.
		p.requeueTransient(ctx, task, err)
	}
}

// pickServer returns the least-loaded available GPU server with free
// capacity, or domain.ErrWorkerUnavailable.
func (p *QueueProcessor) pickServer(ctx context.Context) (*model.WorkerServer, error) {
	servers, err := p.servers.ListAvailable(ctx, nil, model.ServerTypeGPU)
	if err != nil {
		return nil, err
	}
	for _, s := range servers {
		if s.HasCapacity() {
			return s, nil
		}
	}
	return nil, domain.ErrWorkerUnavailable
}

func (p *QueueProcessor) requeueTransient(ctx context.Context, task *model.Task, cause error) {
	log := p.log.With().Str("task_id", task.ID).Str("document_id", task.DocumentID).Logger()

	if task.RetryCount+1 > p.cfg.MaxRetries {
		msg := "retries exhausted: " + cause.Error()
		if err := p.tasks.Complete(context.Background(), nil, task.ID, model.TaskStatusFailed, msg); err != nil {
			log.Error().Err(err).Msg("exhaustion write failed")
			return
		}
		metrics.IncTaskProcessed(string(model.TaskStatusFailed))
		log.Error().Err(cause).Int("retry_count", task.RetryCount).Msg("task failed after exhausting retries")
		return
	}

	delay := p.backoff(task.RetryCount)
	if err := p.tasks.Requeue(context.Background(), nil, task.ID, cause.Error(), time.Now().Add(delay)); err != nil {
		log.Error().Err(err).Msg("requeue failed")
		return
	}
	metrics.IncTaskProcessed(string(model.TaskStatusRetry))
	log.Warn().Err(cause).Dur("backoff", delay).Int("retry_count", task.RetryCount+1).Msg("task requeued after transient failure")
}

// backoff doubles per completed retry, capped at BackoffMax.
func (p *QueueProcessor) backoff(retryCount int) time.Duration {
	d := p.cfg.BackoffBase
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= p.cfg.BackoffMax {
			return p.cfg.BackoffMax
		}
	}
	return d
}
