//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"deckreview-pipeline/internal/domain/model"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
database:
  url: postgres://localhost:5432/queue
redis:
  url: localhost:6379
worker:
  base_url: http://gpu-worker:9000
  callback_url: http://orchestrator:8090/internal/worker-callback
`

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, minimalConfig), false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	budget := time.Duration(len(model.Phases())) * cfg.Worker.PhaseTimeout

	t.Run("dispatch lock outlives the full pipeline", func(t *testing.T) {
		if cfg.Scheduler.LockTTL < budget {
			t.Errorf("lock_ttl = %s, shorter than the %s pipeline budget", cfg.Scheduler.LockTTL, budget)
		}
	})

	t.Run("stuck threshold never resets a live pipeline", func(t *testing.T) {
		if cfg.Health.StuckThreshold < budget {
			t.Errorf("stuck_threshold = %s, shorter than the %s pipeline budget", cfg.Health.StuckThreshold, budget)
		}
	})

	t.Run("scheduler defaults", func(t *testing.T) {
		if cfg.Scheduler.MaxRetries != 3 || cfg.Scheduler.BackoffBase != 30*time.Second || cfg.Scheduler.BackoffMax != 10*time.Minute {
			t.Errorf("scheduler = %+v", cfg.Scheduler)
		}
	})
}

func TestLoadConfig_RejectsLockShorterThanPipeline(t *testing.T) {
	// 5m expressed in nanoseconds; far below four 10m phases.
	body := minimalConfig + `
scheduler:
  lock_ttl: 300000000000
`
	_, err := LoadConfig(writeConfigFile(t, body), false)
	if err == nil || !strings.Contains(err.Error(), "lock_ttl") {
		t.Fatalf("err = %v, want a lock_ttl validation error", err)
	}
}

func TestLoadConfig_RejectsStuckThresholdShorterThanPipeline(t *testing.T) {
	// 30m in nanoseconds, inside the 40m worst case.
	body := minimalConfig + `
health:
  stuck_threshold: 1800000000000
`
	_, err := LoadConfig(writeConfigFile(t, body), false)
	if err == nil || !strings.Contains(err.Error(), "stuck_threshold") {
		t.Fatalf("err = %v, want a stuck_threshold validation error", err)
	}
}

func TestLoadConfig_RequiredFields(t *testing.T) {
	body := `
redis:
  url: localhost:6379
worker:
  base_url: http://gpu-worker:9000
  callback_url: http://orchestrator:8090/internal/worker-callback
`
	if _, err := LoadConfig(writeConfigFile(t, body), false); err == nil {
		t.Fatal("missing database.url accepted")
	}
}
