package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"deckreview-pipeline/internal/config"
	pg "deckreview-pipeline/internal/infra/db/postgres"
	"deckreview-pipeline/internal/infra/gpu"
	"deckreview-pipeline/internal/infra/logging"
	"deckreview-pipeline/internal/infra/metrics"
	red "deckreview-pipeline/internal/infra/redis"
	"deckreview-pipeline/internal/infra/sched"
	"deckreview-pipeline/internal/infra/web"
	"deckreview-pipeline/internal/infra/worker"
	"deckreview-pipeline/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	taskRepo := pg.NewTaskRepoCacheDecorator(pg.NewTaskRepo(pool, tm), redisClient, cfg.Redis.TTL)
	progressRepo := pg.NewProgressRepo(pool)
	serverRepo := pg.NewServerRepo(pool)
	artifactRepo := pg.NewArtifactRepo(pool)
	maintenance := pg.NewMaintenance(pool)

	// ---- Worker adapter ----
	gpuAdapter := gpu.NewHTTPAdapter(cfg.Worker.BaseURL, cfg.Worker.CallbackURL, cfg.Worker.PhaseTimeout, logger)

	// ---- Use cases ----
	tracker := usecase.NewProgressTracker(taskRepo, progressRepo, logger)
	pipelineUC := usecase.NewPipelineUseCase(artifactRepo, tracker, gpuAdapter, cfg.Worker.PhaseTimeout, logger)
	queueUC := usecase.NewQueueUseCase(taskRepo, progressRepo, logger)

	// ---- Scheduler ----
	pool2 := worker.NewPool(cfg.Worker.PoolSize, logger)
	pool2.Start(ctx)
	defer pool2.Stop()

	processor := worker.NewQueueProcessor(taskRepo, serverRepo, pipelineUC, locker, cfg.Scheduler, logger)
	go processor.Start(ctx, pool2)

	// ---- Health monitor ----
	restart := systemdRestart("deckreview-worker.service", cfg.Runtime.Dev)
	monitor := sched.NewHealthMonitor(taskRepo, serverRepo, maintenance, restart, cfg.Health, logger)
	go func() {
		_ = monitor.Run(ctx)
	}()

	// ---- HTTP ----
	srv := web.NewServer(queueUC, pipelineUC, serverRepo, cfg.Admin.APIKey, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Int("port", cfg.Admin.Port).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	cancel()
}

// systemdRestart restarts the dependent worker service when the health
// monitor's cleanup volume crosses its threshold. In dev mode it only logs.
func systemdRestart(unit string, dev bool) sched.RestartFunc {
	return func(ctx context.Context, reason string) error {
		if dev {
			log.Printf("[DEV MODE] would restart %s (reason: %s)", unit, reason)
			return nil
		}
		cmd := exec.CommandContext(ctx, "systemctl", "restart", unit)
		return cmd.Run()
	}
}
