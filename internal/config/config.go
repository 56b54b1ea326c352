package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/sourcing"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// ApplyEnv overrides file settings with environment variables.
func (c *LocalConfig) ApplyEnv() {
	c.Daemon.Port = getEnvInt("PAES_PORT", c.Daemon.Port)
	c.Daemon.LogLevel = getEnv("PAES_LOG_LEVEL", c.Daemon.LogLevel)
	c.LLM.DefaultProvider = getEnv("PAES_LLM_PROVIDER", c.LLM.DefaultProvider)

	if c.LLM.Providers == nil {
		c.LLM.Providers = make(map[string]*ProviderConfig)
	}
	for name, key := range map[string]string{
		"openai": "OPENAI_API_KEY",
		"claude": "ANTHROPIC_API_KEY",
		"gemini": "GEMINI_API_KEY",
	} {
		p := c.LLM.Providers[name]
		if p == nil {
			p = &ProviderConfig{}
			c.LLM.Providers[name] = p
		}
		if v := getEnv(key, ""); v != "" {
			p.APIKey = v
			p.Enabled = true
		}
	}

	c.Sourcing.GenerationTimeout = getEnvDuration("PAES_GENERATION_TIMEOUT", c.Sourcing.GenerationTimeout)
	c.Content.ExamsPath = getEnv("PAES_EXAMS_PATH", c.Content.ExamsPath)

	if url := getEnv("PAES_POSTGRES_URL", ""); url != "" {
		c.Storage.PostgresURL = url
		c.Storage.Driver = "postgres"
	}
	c.Storage.Driver = getEnv("PAES_STORAGE_DRIVER", c.Storage.Driver)

	if url := getEnv("PAES_AMQP_URL", ""); url != "" {
		c.Queue.URL = url
		c.Queue.Enabled = true
	}
	c.Queue.Enabled = getEnvBool("PAES_QUEUE_ENABLED", c.Queue.Enabled)

	c.Notify.RedisAddr = getEnv("PAES_REDIS_ADDR", c.Notify.RedisAddr)
}

// Validate checks ranges and enumerated values.
func (c *LocalConfig) Validate() error {
	var errs []error

	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		errs = append(errs, fmt.Errorf("daemon.port %d out of range", c.Daemon.Port))
	}
	switch c.Daemon.LogLevel {
	case "debug", "info", "warn", "error", "":
	default:
		errs = append(errs, fmt.Errorf("daemon.log_level %q unknown", c.Daemon.LogLevel))
	}

	s := c.Sourcing
	if s.CorrectDelta < 0 || s.CorrectDelta > 1 {
		errs = append(errs, fmt.Errorf("sourcing.correct_delta %v out of [0,1]", s.CorrectDelta))
	}
	if s.IncorrectDelta < 0 || s.IncorrectDelta > 1 {
		errs = append(errs, fmt.Errorf("sourcing.incorrect_delta %v out of [0,1]", s.IncorrectDelta))
	}
	if s.InitialLevel < 0 || s.InitialLevel > 1 {
		errs = append(errs, fmt.Errorf("sourcing.initial_level %v out of [0,1]", s.InitialLevel))
	}
	if s.GenerationTimeout < 0 {
		errs = append(errs, fmt.Errorf("sourcing.generation_timeout %v is negative", s.GenerationTimeout))
	}
	for slug := range s.ExamCodes {
		if !domain.Slug(slug).Valid() {
			errs = append(errs, fmt.Errorf("sourcing.exam_codes: %w", &domain.UnknownValueError{Kind: domain.ErrUnknownSubject, Value: slug}))
		}
	}
	for skill, diff := range s.SkillDifficulty {
		if _, err := domain.ParseSkill(skill); err != nil {
			errs = append(errs, fmt.Errorf("sourcing.skill_difficulty: %w", err))
		}
		if _, err := domain.ParseDifficulty(diff); err != nil {
			errs = append(errs, fmt.Errorf("sourcing.skill_difficulty: %w", err))
		}
	}

	switch c.Storage.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			errs = append(errs, errors.New("storage.postgres_url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q unknown", c.Storage.Driver))
	}
	if c.Storage.OfficialFromPostgres && c.Storage.PostgresURL == "" {
		errs = append(errs, errors.New("storage.official_from_postgres needs storage.postgres_url"))
	}

	if c.Queue.Enabled && c.Queue.URL == "" {
		errs = append(errs, errors.New("queue.url is required when the queue is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// PipelineConfig converts the sourcing section for the pipeline. Call
// Validate first; unparseable overrides are skipped.
func (c *LocalConfig) PipelineConfig() sourcing.Config {
	cfg := sourcing.DefaultConfig()
	s := c.Sourcing

	if s.GenerationTimeout > 0 {
		cfg.GenerationTimeout = s.GenerationTimeout
	}
	if s.CorrectDelta > 0 || s.IncorrectDelta > 0 {
		cfg.Proficiency = domain.ProficiencyRule{
			CorrectDelta:   s.CorrectDelta,
			IncorrectDelta: s.IncorrectDelta,
			Initial:        s.InitialLevel,
		}
	}

	for slug, code := range s.ExamCodes {
		if code == "" {
			delete(cfg.ExamCodes, domain.Slug(slug))
			continue
		}
		cfg.ExamCodes[domain.Slug(slug)] = code
	}

	overrides := make(domain.DifficultyTable, len(s.SkillDifficulty))
	for skill, diff := range s.SkillDifficulty {
		sk, err := domain.ParseSkill(skill)
		if err != nil {
			continue
		}
		d, err := domain.ParseDifficulty(diff)
		if err != nil {
			continue
		}
		overrides[sk] = d
	}
	cfg.Difficulties = cfg.Difficulties.Merge(overrides)

	return cfg
}

// Addr returns the daemon listen address.
func (c *LocalConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Daemon.Bind, c.Daemon.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
