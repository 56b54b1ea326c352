// Package app wires configuration into running services. Both the daemon
// and the in-process MCP server are built from it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paespro/lectoguia/internal/config"
	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/exam"
	"github.com/paespro/lectoguia/internal/llm"
	"github.com/paespro/lectoguia/internal/notify"
	"github.com/paespro/lectoguia/internal/practice"
	"github.com/paespro/lectoguia/internal/progress"
	"github.com/paespro/lectoguia/internal/queue"
	"github.com/paespro/lectoguia/internal/sourcing"
	"github.com/paespro/lectoguia/internal/storage/local"
	"github.com/paespro/lectoguia/internal/storage/postgres"
	"github.com/paespro/lectoguia/internal/storage/sqlite"
	"github.com/paespro/lectoguia/internal/telemetry"
)

// Store is a telemetry backend that can also receive projected attempts.
type Store interface {
	sourcing.TelemetryStore
	queue.AttemptSink
}

var (
	_ Store = (*telemetry.MemoryStore)(nil)
	_ Store = (*sqlite.AttemptStore)(nil)
	_ Store = (*postgres.AttemptStore)(nil)
)

// App holds the wired services.
type App struct {
	Config    *config.LocalConfig
	Providers *llm.Registry
	Bank      *exam.Bank
	Store     Store
	Telemetry sourcing.TelemetryStore
	Pipeline  *sourcing.Pipeline
	Sessions  *practice.Manager
	Progress  *progress.Service

	logger  *slog.Logger
	pool    *pgxpool.Pool
	closers []func() error
}

// Build wires every service described by cfg. dir is the data directory,
// usually ~/.paespro. Optional backends that cannot be reached (Redis) are
// logged and skipped; required ones fail the build.
func Build(ctx context.Context, cfg *config.LocalConfig, dir string, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Providers = llm.NewRegistry()
	a.closers = append(a.closers, SetupProviders(ctx, cfg.LLM, a.Providers, logger)...)
	generator := llm.NewExerciseGenerator(a.Providers, llm.GeneratorConfig{
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Logger:      logger,
	})

	pipelineCfg := cfg.PipelineConfig()

	a.Store, err = a.openStore(ctx, dir, pipelineCfg.Proficiency)
	if err != nil {
		return nil, err
	}
	a.Telemetry = a.Store

	if cfg.Queue.Enabled {
		conn, err := queue.NewConnection(cfg.Queue.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect queue: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		a.Telemetry = queue.NewAttemptPublisher(conn, a.Store, logger)
		logger.Info("attempts fan out over queue", "queue", queue.AttemptQueueName)
	}

	a.Bank = exam.NewBank(exam.NewLoader(ExamsPath(cfg, dir)))
	if err := a.Bank.Load(); err != nil {
		// generation still serves every subject
		logger.Warn("official exams not loaded", "path", ExamsPath(cfg, dir), "error", err)
	}
	var official sourcing.OfficialContentStore = a.Bank
	if cfg.Storage.OfficialFromPostgres {
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		official = postgres.NewExamStore(pool)
	}

	a.Pipeline = sourcing.New(sourcing.Deps{
		Official:  official,
		Generator: generator,
		Telemetry: a.Telemetry,
		Notifier:  a.notifier(ctx),
	}, pipelineCfg, logger)

	identities, err := local.NewSubjectStore(filepath.Join(dir, "data", "subjects"))
	if err != nil {
		return nil, fmt.Errorf("open subject store: %w", err)
	}
	a.Sessions = practice.NewManager(a.Pipeline, identities, logger)
	a.Progress = progress.NewService(a.Telemetry, a.Pipeline, pipelineCfg.Proficiency.Initial, logger)

	stats := a.Bank.Stats()
	logger.Info("services ready",
		"providers", a.Providers.List(),
		"storage", cfg.Storage.Driver,
		"exams", stats.ExamCount,
		"questions", stats.QuestionCount,
	)
	return a, nil
}

// OpenStore opens only the telemetry backend. The queue worker projects
// into it.
func OpenStore(ctx context.Context, cfg *config.LocalConfig, dir string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}
	store, err := a.openStore(ctx, dir, cfg.PipelineConfig().Proficiency)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store
	a.Telemetry = store
	return a, nil
}

// Postgres returns the shared pool, opening it and ensuring the schema on
// first use.
func (a *App) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	return a.postgres(ctx)
}

func (a *App) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if a.Config.Storage.PostgresURL == "" {
		return nil, errors.New("storage.postgres_url is not set")
	}
	pool, err := postgres.Open(ctx, a.Config.Storage.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	return pool, nil
}

func (a *App) openStore(ctx context.Context, dir string, rule domain.ProficiencyRule) (Store, error) {
	switch a.Config.Storage.Driver {
	case "memory":
		return telemetry.NewMemoryStore(rule), nil

	case "postgres":
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return postgres.NewAttemptStore(pool, rule), nil

	case "sqlite", "":
		path := a.Config.Storage.SQLitePath
		if path == "" {
			path = filepath.Join(dir, "data", "paes.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return sqlite.NewAttemptStore(db, rule), nil
	}
	return nil, fmt.Errorf("%w: storage.driver %q", config.ErrInvalidConfig, a.Config.Storage.Driver)
}

func (a *App) notifier(ctx context.Context) sourcing.NotificationSink {
	sinks := notify.Multi{notify.NewLogSink(a.logger)}
	if addr := a.Config.Notify.RedisAddr; addr != "" {
		rs, err := notify.NewRedisSink(ctx, addr, a.Config.Notify.Channel, a.logger)
		if err != nil {
			a.logger.Warn("redis notifications disabled", "addr", addr, "error", err)
		} else {
			sinks = append(sinks, rs)
			a.closers = append(a.closers, rs.Close)
		}
	}
	return sinks
}

// Close stops the services and releases backends in reverse order.
func (a *App) Close() error {
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.Pipeline != nil {
		a.Pipeline.Close()
	}
	var errs []error
	for _, c := range slices.Backward(a.closers) {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ExamsPath returns the official exam directory.
func ExamsPath(cfg *config.LocalConfig, dir string) string {
	if cfg.Content.ExamsPath != "" {
		return cfg.Content.ExamsPath
	}
	return filepath.Join(dir, "exams")
}

// SetupProviders registers every enabled provider that has credentials and
// selects the default. The returned closers release provider resources.
func SetupProviders(ctx context.Context, cfg config.LLMConfig, registry *llm.Registry, logger *slog.Logger) []func() error {
	var closers []func() error

	// stable registration order keeps "auto" deterministic
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	slices.SortFunc(names, func(x, y string) int { return providerRank(x) - providerRank(y) })

	for _, name := range names {
		pc := cfg.Providers[name]
		if pc == nil || !pc.Enabled {
			continue
		}

		var provider llm.Provider
		switch name {
		case "claude":
			if pc.APIKey == "" {
				logger.Debug("Claude provider enabled but no API key set")
				continue
			}
			provider = llm.NewClaudeProvider(llm.ClaudeConfig{APIKey: pc.APIKey, Model: pc.Model})

		case "openai":
			if pc.APIKey == "" {
				logger.Debug("OpenAI provider enabled but no API key set")
				continue
			}
			provider = llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: pc.APIKey, Model: pc.Model})

		case "gemini":
			if pc.APIKey == "" {
				logger.Debug("Gemini provider enabled but no API key set")
				continue
			}
			p, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{APIKey: pc.APIKey, Model: pc.Model})
			if err != nil {
				logger.Warn("gemini provider unavailable", "error", err)
				continue
			}
			provider = p

		case "ollama":
			provider = llm.NewOllamaProvider(llm.OllamaConfig{BaseURL: pc.URL, Model: pc.Model})

		default:
			logger.Warn("unknown LLM provider in config", "name", name)
			continue
		}

		if cfg.Resilient {
			rp := llm.NewResilientProvider(provider, llm.DefaultResilientConfig())
			closers = append(closers, rp.Close)
			provider = rp
		}
		registry.Register(name, provider)
		logger.Info("registered LLM provider", "name", name, "model", pc.Model)
	}

	if cfg.DefaultProvider != "" {
		if err := registry.SetDefault(cfg.DefaultProvider); err != nil {
			logger.Warn("default LLM provider not registered, using first available",
				"provider", cfg.DefaultProvider,
				"error", err,
			)
		}
	}
	return closers
}

func providerRank(name string) int {
	switch name {
	case "openai":
		return 0
	case "claude":
		return 1
	case "gemini":
		return 2
	case "ollama":
		return 3
	}
	return 4
}
