package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"deckreview-pipeline/internal/config"
	"deckreview-pipeline/internal/domain"
	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/repository"
	"deckreview-pipeline/internal/infra/db/postgres"
	"deckreview-pipeline/internal/infra/metrics"
)

// DBMaintenance is the slice of the postgres maintenance surface the monitor
// needs; narrowed for testability.
type DBMaintenance interface {
	ListIdleTransactions(ctx context.Context, idleFor time.Duration) ([]postgres.IdleTransaction, error)
	TerminateIdleTransactions(ctx context.Context, idleFor time.Duration) (int, error)
}

// RestartFunc triggers a dependent-service restart. Wired to systemd (or a
// noop in dev) by the composition root.
type RestartFunc func(ctx context.Context, reason string) error

// HealthMonitor periodically audits the task store and the server registry:
// stuck processing tasks, idle-in-transaction backends, and workers that
// stopped heartbeating. Every corrective action is logged with counts.
type HealthMonitor struct {
	tasks   repository.TaskRepository
	servers repository.ServerRepository
	maint   DBMaintenance
	restart RestartFunc
	cfg     config.HealthConfig
	log     *zerolog.Logger
}

func NewHealthMonitor(
	tasks repository.TaskRepository,
	servers repository.ServerRepository,
	maint DBMaintenance,
	restart RestartFunc,
	cfg config.HealthConfig,
	logger *zerolog.Logger,
) *HealthMonitor {
	l := logger.With().Str("component", "HealthMonitor").Logger()
	return &HealthMonitor{
		tasks:   tasks,
		servers: servers,
		maint:   maint,
		restart: restart,
		cfg:     cfg,
		log:     &l,
	}
}

// Run loops until ctx is cancelled. This should be run in a goroutine.
func (m *HealthMonitor) Run(ctx context.Context) error {
	m.log.Info().Dur("interval", m.cfg.Interval).Msg("health monitor started")
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("health monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs every check once. Exported so admin tooling and tests can
// trigger an immediate audit.
func (m *HealthMonitor) Sweep(ctx context.Context) {
	m.sweepStuckTasks(ctx)
	m.sweepIdleTransactions(ctx)
	m.sweepDeadWorkers(ctx)
}

func (m *HealthMonitor) sweepStuckTasks(ctx context.Context) {
	cutoff := time.Now().Add(-m.cfg.StuckThreshold)
	stuck, err := m.tasks.ListStuck(ctx, nil, cutoff)
	if err != nil {
		m.log.Error().Err(err).Msg("stuck-task scan failed")
		return
	}
	if len(stuck) == 0 {
		return
	}

	reset, failed := 0, 0
	for _, t := range stuck {
		if t.RetryCount < m.cfg.MaxAutoRetries {
			err = m.tasks.ResetToPending(ctx, nil, t.ID)
			if err == nil {
				reset++
				metrics.IncStuckCleaned("reset")
			}
		} else {
			err = m.tasks.Complete(ctx, nil, t.ID, model.TaskStatusFailed,
				"processing timed out after "+m.cfg.StuckThreshold.String())
			if err == nil {
				failed++
				metrics.IncStuckCleaned("failed")
			}
		}
		if err != nil && !errors.Is(err, domain.ErrStaleClaim) {
			m.log.Error().Err(err).Str("task_id", t.ID).Msg("stuck-task repair failed")
		}
	}

	m.log.Warn().Int("found", len(stuck)).Int("reset", reset).Int("failed", failed).
		Dur("threshold", m.cfg.StuckThreshold).Msg("stuck tasks cleaned")

	if reset+failed > m.cfg.RestartThreshold {
		m.triggerRestart(ctx, "stuck_tasks")
	}
}

func (m *HealthMonitor) sweepIdleTransactions(ctx context.Context) {
	idle, err := m.maint.ListIdleTransactions(ctx, m.cfg.IdleTxWarn)
	if err != nil {
		m.log.Error().Err(err).Msg("idle-transaction scan failed")
		return
	}
	for _, it := range idle {
		m.log.Warn().Int("pid", it.PID).Str("user", it.Usename).Str("app", it.AppName).
			Dur("idle_for", it.IdleFor).Msg("idle-in-transaction backend")
	}

	killed, err := m.maint.TerminateIdleTransactions(ctx, m.cfg.IdleTxKill)
	if err != nil {
		m.log.Error().Err(err).Msg("idle-transaction termination failed")
		return
	}
	if killed > 0 {
		metrics.AddIdleTxTerminated(killed)
		m.log.Warn().Int("flagged", len(idle)).Int("terminated", killed).
			Msg("idle transactions terminated")
	}
	if killed > m.cfg.RestartThreshold {
		m.triggerRestart(ctx, "idle_transactions")
	}
}

func (m *HealthMonitor) sweepDeadWorkers(ctx context.Context) {
	cutoff := time.Now().Add(-m.cfg.HeartbeatTimeout)
	n, err := m.servers.MarkDead(ctx, nil, cutoff)
	if err != nil {
		m.log.Error().Err(err).Msg("dead-worker sweep failed")
		return
	}
	if n > 0 {
		metrics.AddDeadWorkers(n)
		m.log.Warn().Int("marked", n).Dur("heartbeat_timeout", m.cfg.HeartbeatTimeout).
			Msg("workers marked unavailable")
	}
}

func (m *HealthMonitor) triggerRestart(ctx context.Context, cause string) {
	metrics.IncRestartTriggered(cause)
	if m.restart == nil {
		m.log.Warn().Str("cause", cause).Msg("restart threshold exceeded, no restart action configured")
		return
	}
	m.log.Warn().Str("cause", cause).Msg("restart threshold exceeded, restarting dependent service")
	if err := m.restart(ctx, cause); err != nil {
		m.log.Error().Err(err).Str("cause", cause).Msg("restart action failed")
	}
}
