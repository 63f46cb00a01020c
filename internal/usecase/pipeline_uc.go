package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"deckreview-pipeline/internal/domain"
	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/adapter"
	"deckreview-pipeline/internal/domain/ports/repository"
	"deckreview-pipeline/internal/infra/logging"
	"deckreview-pipeline/internal/infra/metrics"
)

// PhaseError is a non-retryable failure reported by the worker for one
// phase. Everything else returned by Execute is treated as transient.
type PhaseError struct {
	Phase  model.Phase
	Detail string
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s failed: %s", e.Phase, e.Detail)
}

// PipelineUseCase drives one claimed task through the four processing phases,
// strictly in order, each gated on the previous one's success.
type PipelineUseCase interface {
	// Execute runs all phases for the task. It returns nil on success, a
	// *PhaseError when the worker rejected a phase, and any other error for
	// transient infrastructure failures (the caller decides about requeueing;
	// terminal status writes also live with the caller).
	Execute(ctx context.Context, task *model.Task) error

	// HandleCallback routes an asynchronous phase result from the worker to
	// the dispatcher waiting on it. Returns domain.ErrNoCallbackWaiter when
	// nobody is waiting (the phase was disowned).
	HandleCallback(ctx context.Context, res adapter.PhaseResult) error
}

type pipelineUC struct {
	artifacts    repository.ArtifactRepository
	tracker      ProgressTracker
	worker       adapter.WorkerAdapter
	callbacks    *callbackRouter
	phaseTimeout time.Duration
	log          *zerolog.Logger
}

func NewPipelineUseCase(
	artifacts repository.ArtifactRepository,
	tracker ProgressTracker,
	worker adapter.WorkerAdapter,
	phaseTimeout time.Duration,
	logger *zerolog.Logger,
) PipelineUseCase {
	if phaseTimeout <= 0 {
		phaseTimeout = 10 * time.Minute
	}
	l := logger.With().Str("component", "Pipeline").Logger()
	return &pipelineUC{
		artifacts:    artifacts,
		tracker:      tracker,
		worker:       worker,
		callbacks:    newCallbackRouter(),
		phaseTimeout: phaseTimeout,
		log:          &l,
	}
}

func (uc *pipelineUC) Execute(ctx context.Context, task *model.Task) error {
	defer logging.TraceDuration(uc.log, "PipelineUC.Execute")()
	log := uc.log.With().Str("task_id", task.ID).Str("document_id", task.DocumentID).Logger()

	// A retry is always a redo from phase one. Artifacts are keyed by
	// document, so leftovers from a previous attempt must go before any
	// fresh phase output lands.
	cleared, err := uc.artifacts.ClearForDocument(ctx, nil, task.DocumentID)
	if err != nil {
		return fmt.Errorf("clear cached artifacts: %w", err)
	}
	if cleared > 0 {
		log.Info().Int64("rows", cleared).Msg("cleared stale phase artifacts before reprocess")
	}

	for _, phase := range model.Phases() {
		if err := uc.runPhase(ctx, task, phase); err != nil {
			var pe *PhaseError
			if errors.As(err, &pe) {
				// Leave the failed step on record; remaining phases are
				// never attempted.
				_ = uc.tracker.Record(ctx, task, string(phase), model.StepStatusFailed, task.ProgressPercentage, pe.Detail)
			}
			return err
		}
	}

	log.Info().Msg("pipeline completed")
	return nil
}

func (uc *pipelineUC) runPhase(ctx context.Context, task *model.Task, phase model.Phase) error {
	start := time.Now()

	if err := uc.tracker.Record(ctx, task, string(phase), model.StepStatusRunning, phase.Floor(), "dispatching "+string(phase)); err != nil {
		return err
	}

	// Register the waiter before dispatching so a fast callback cannot race
	// past us.
	wait := uc.callbacks.expect(task.DocumentID, phase)
	defer uc.callbacks.forget(task.DocumentID, phase)

	phaseCtx, cancel := context.WithTimeout(ctx, uc.phaseTimeout)
	defer cancel()

	res, err := uc.worker.RunPhase(phaseCtx, adapter.PhaseRequest{
		TaskID:     task.ID,
		DocumentID: task.DocumentID,
		FilePath:   task.FilePath,
		CompanyID:  task.CompanyID,
		Phase:      phase,
	})
	if err != nil {
		metrics.ObservePhase(string(phase), time.Since(start).Seconds(), false)
		return fmt.Errorf("dispatch %s: %w", phase, err)
	}

	if res == nil {
		// Worker accepted the phase; the result arrives via callback.
		select {
		case r := <-wait:
			res = &r
		case <-phaseCtx.Done():
			metrics.ObservePhase(string(phase), time.Since(start).Seconds(), false)
			return fmt.Errorf("await %s result: %w", phase, phaseCtx.Err())
		}
	}

	metrics.ObservePhase(string(phase), time.Since(start).Seconds(), res.Success)
	if !res.Success {
		detail := res.Error
		if detail == "" {
			detail = "worker reported failure without detail"
		}
		return &PhaseError{Phase: phase, Detail: detail}
	}

	if err := uc.artifacts.SavePhaseResult(ctx, nil, task.DocumentID, phase, res.Payload); err != nil {
		return fmt.Errorf("persist %s result: %w", phase, err)
	}
	return uc.tracker.Record(ctx, task, string(phase), model.StepStatusCompleted, phase.Ceiling(), string(phase)+" completed")
}

func (uc *pipelineUC) HandleCallback(ctx context.Context, res adapter.PhaseResult) error {
	if res.DocumentID == "" || !res.Phase.Valid() {
		return domain.ErrInvalidArgument
	}
	if !uc.callbacks.deliver(res) {
		metrics.IncCallback("orphaned")
		uc.log.Warn().Str("document_id", res.DocumentID).Str("phase", string(res.Phase)).
			Msg("callback for a phase nobody is waiting on")
		return domain.ErrNoCallbackWaiter
	}
	metrics.IncCallback("delivered")
	return nil
}
