package config

import (
	"errors"
	"os"
	"time"

	"spmagent/pkg/circuitbreaker"
	"spmagent/pkg/config"
)

type Config struct {
	Server    config.ServerConfig `yaml:"server"`
	DB        config.DBConfig     `yaml:"db"`
	Redis     config.RedisConfig  `yaml:"redis"`
	MQ        config.MQConfig     `yaml:"mq"`
	JWT       config.JWTConfig    `yaml:"jwt"`
	Log       LogConfig           `yaml:"log"`
	Generator GeneratorConfig     `yaml:"generator"`
	Planner   PlannerConfig       `yaml:"planner"`
	Outbox    OutboxConfig        `yaml:"outbox"`
	RateLimit RateLimitConfig     `yaml:"rate_limit"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// GeneratorConfig configures the roadmap content generator.
type GeneratorConfig struct {
	APIKey        string                `yaml:"api_key"`
	Model         string                `yaml:"model"`
	MaxTokens     int64                 `yaml:"max_tokens"`
	Timeout       time.Duration         `yaml:"timeout"`
	MaxConcurrent int64                 `yaml:"max_concurrent"`
	Breaker       circuitbreaker.Config `yaml:"breaker"`
}

// PlannerConfig holds scheduling defaults.
type PlannerConfig struct {
	DefaultHoursPerDay float64       `yaml:"default_hours_per_day"`
	DeadlineLimit      int           `yaml:"deadline_limit"`
	MaxDeadlineLimit   int           `yaml:"max_deadline_limit"`
	IdempotencyTTL     time.Duration `yaml:"idempotency_ttl"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

// RateLimitConfig limits roadmap creation per owner.
type RateLimitConfig struct {
	CreatePerMinute float64 `yaml:"create_per_minute"`
	Burst           int     `yaml:"burst"`
}

// Load reads the layered YAML for env from dir, applies environment overrides and defaults,
// and validates the result.
func Load(env, dir string) (*Config, error) {
	var cfg Config
	if err := config.Decode(env, dir, &cfg); err != nil {
		return nil, err
	}

	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideJWTFromEnv(&cfg.JWT)
	overrideGeneratorFromEnv(&cfg.Generator)
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overrideGeneratorFromEnv(cfg *GeneratorConfig) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		cfg.Model = model
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8000"
	}
	if c.JWT.AccessTTL <= 0 {
		c.JWT.AccessTTL = time.Hour
	}
	if c.JWT.RefreshTTL <= 0 {
		c.JWT.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.Generator.Model == "" {
		c.Generator.Model = "claude-sonnet-4-5-20250929"
	}
	if c.Generator.MaxTokens <= 0 {
		c.Generator.MaxTokens = 8192
	}
	if c.Generator.Timeout <= 0 {
		c.Generator.Timeout = 2 * time.Minute
	}
	if c.Generator.MaxConcurrent <= 0 {
		c.Generator.MaxConcurrent = 4
	}
	if c.Planner.DefaultHoursPerDay <= 0 {
		c.Planner.DefaultHoursPerDay = 6
	}
	if c.Planner.DeadlineLimit <= 0 {
		c.Planner.DeadlineLimit = 50
	}
	if c.Planner.MaxDeadlineLimit <= 0 {
		c.Planner.MaxDeadlineLimit = 200
	}
	if c.Planner.IdempotencyTTL <= 0 {
		c.Planner.IdempotencyTTL = 10 * time.Minute
	}
	if c.Outbox.Interval <= 0 {
		c.Outbox.Interval = time.Second
	}
	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MaxRetries <= 0 {
		c.Outbox.MaxRetries = 5
	}
	if c.RateLimit.CreatePerMinute <= 0 {
		c.RateLimit.CreatePerMinute = 6
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 3
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Planner.DeadlineLimit > c.Planner.MaxDeadlineLimit {
		return errors.New("planner.deadline_limit exceeds planner.max_deadline_limit")
	}
	return nil
}
