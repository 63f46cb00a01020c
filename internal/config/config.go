package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"deckreview-pipeline/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // status snapshot cache TTL
}

type AdminConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type WorkerConfig struct {
	BaseURL      string        `yaml:"base_url"`      // remote GPU worker endpoint
	CallbackURL  string        `yaml:"callback_url"`  // where the worker posts phase results
	PhaseTimeout time.Duration `yaml:"phase_timeout"` // per-phase dispatch+callback budget
	PoolSize     int           `yaml:"pool_size"`     // local dispatch goroutines
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxRetries   int           `yaml:"max_retries"`  // transient-failure retries before terminal failed
	BackoffBase  time.Duration `yaml:"backoff_base"` // first retry delay; doubles per retry
	BackoffMax   time.Duration `yaml:"backoff_max"`
	LockTTL      time.Duration `yaml:"lock_ttl"` // per-document dispatch lock; must cover a full pipeline run
}

type HealthConfig struct {
	Interval         time.Duration `yaml:"interval"`
	StuckThreshold   time.Duration `yaml:"stuck_threshold"`   // processing older than this is stuck
	MaxAutoRetries   int           `yaml:"max_auto_retries"`  // stuck resets before terminal failed
	IdleTxWarn       time.Duration `yaml:"idle_tx_warn"`      // idle-in-transaction log threshold
	IdleTxKill       time.Duration `yaml:"idle_tx_kill"`      // idle-in-transaction terminate threshold
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"` // worker considered dead past this
	RestartThreshold int           `yaml:"restart_threshold"` // cleanups per sweep that trigger a restart
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Admin     AdminConfig     `yaml:"admin"`
	Worker    WorkerConfig    `yaml:"worker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Health    HealthConfig    `yaml:"health"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 30 * time.Second
	}
	if cfg.Admin.Port <= 0 {
		cfg.Admin.Port = 8090
	}
	if cfg.Worker.PhaseTimeout <= 0 {
		cfg.Worker.PhaseTimeout = 10 * time.Minute
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 4
	}
	if cfg.Scheduler.PollInterval <= 0 {
		cfg.Scheduler.PollInterval = 3 * time.Second
	}
	if cfg.Scheduler.MaxRetries <= 0 {
		cfg.Scheduler.MaxRetries = 3
	}
	if cfg.Scheduler.BackoffBase <= 0 {
		cfg.Scheduler.BackoffBase = 30 * time.Second
	}
	if cfg.Scheduler.BackoffMax <= 0 {
		cfg.Scheduler.BackoffMax = 10 * time.Minute
	}
	// The phases run back to back, so anything guarding a whole pipeline run
	// must be sized against their sum, not a single phase.
	pipelineBudget := time.Duration(len(model.Phases())) * cfg.Worker.PhaseTimeout
	if cfg.Scheduler.LockTTL <= 0 {
		cfg.Scheduler.LockTTL = pipelineBudget + time.Minute
	}
	if cfg.Health.Interval <= 0 {
		cfg.Health.Interval = 5 * time.Minute
	}
	if cfg.Health.StuckThreshold <= 0 {
		cfg.Health.StuckThreshold = pipelineBudget + 5*time.Minute
	}
	if cfg.Health.MaxAutoRetries <= 0 {
		cfg.Health.MaxAutoRetries = 2
	}
	if cfg.Health.IdleTxWarn <= 0 {
		cfg.Health.IdleTxWarn = time.Minute
	}
	if cfg.Health.IdleTxKill <= 0 {
		cfg.Health.IdleTxKill = 5 * time.Minute
	}
	if cfg.Health.HeartbeatTimeout <= 0 {
		cfg.Health.HeartbeatTimeout = 2 * time.Minute
	}
	if cfg.Health.RestartThreshold <= 0 {
		cfg.Health.RestartThreshold = 10
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Worker.BaseURL == "" {
		return nil, errors.New("worker.base_url is required")
	}
	if cfg.Worker.CallbackURL == "" {
		return nil, errors.New("worker.callback_url is required")
	}
	if cfg.Scheduler.LockTTL < pipelineBudget {
		return nil, fmt.Errorf("scheduler.lock_ttl %s does not cover the %s pipeline budget; the dispatch lock would expire mid-run", cfg.Scheduler.LockTTL, pipelineBudget)
	}
	if cfg.Health.StuckThreshold < pipelineBudget {
		return nil, fmt.Errorf("health.stuck_threshold %s would reset tasks still inside the %s pipeline budget", cfg.Health.StuckThreshold, pipelineBudget)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
