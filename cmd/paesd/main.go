package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/paespro/lectoguia/internal/app"
	"github.com/paespro/lectoguia/internal/config"
	"github.com/paespro/lectoguia/internal/daemon"
	"github.com/paespro/lectoguia/internal/exam"
	"github.com/paespro/lectoguia/internal/queue"
	"github.com/paespro/lectoguia/internal/storage/postgres"
)

const (
	pidFileName = "paesd.pid"
)

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "serve":
		err = run(serve)
	case "worker":
		err = run(worker)
	case "seed":
		err = run(seed)
	case "help", "-h", "--help":
		fmt.Println(`paesd - PAES practice daemon

Usage:
  paesd [serve]   Run the HTTP daemon (default)
  paesd worker    Project queued attempt events into the configured store
  paesd seed      Import the YAML exam packs into Postgres`)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		os.Exit(1)
	}

	if err != nil {
		slog.Error("daemon error", "command", cmd, "error", err)
		os.Exit(1)
	}
}

type command func(ctx context.Context, cfg *config.LocalConfig, dir string) error

func run(cmd command) error {
	// Ensure ~/.paespro directory exists
	dir, err := config.EnsurePaesDir()
	if err != nil {
		return fmt.Errorf("ensure paes dir: %w", err)
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logFile, err := setupLogging(dir, parseLogLevel(cfg.Daemon.LogLevel))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return cmd(ctx, cfg, dir)
}

func serve(ctx context.Context, cfg *config.LocalConfig, dir string) error {
	pidPath := filepath.Join(dir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	services, err := app.Build(ctx, cfg, dir, slog.Default())
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer services.Close()

	server, err := daemon.NewServer(daemon.ServerConfig{
		Config:    cfg,
		Sessions:  services.Sessions,
		Progress:  services.Progress,
		Telemetry: services.Telemetry,
		Catalog:   services.Bank,
		Providers: services.Providers.List(),
		Logger:    slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		slog.Info("received signal, shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	slog.Info("daemon stopped")
	return nil
}

func worker(ctx context.Context, cfg *config.LocalConfig, dir string) error {
	if cfg.Queue.URL == "" {
		return errors.New("queue.url is not set")
	}

	backend, err := app.OpenStore(ctx, cfg, dir, slog.Default())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	conn, err := queue.NewConnection(cfg.Queue.URL, slog.Default())
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer conn.Close()

	cc := queue.DefaultConsumerConfig()
	cc.Logger = slog.Default()
	consumer := queue.NewConsumer(conn, backend.Store, cc)
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	<-ctx.Done()
	slog.Info("received signal, stopping worker")
	consumer.Stop()
	return nil
}

func seed(ctx context.Context, cfg *config.LocalConfig, dir string) error {
	if cfg.Storage.PostgresURL == "" {
		return errors.New("storage.postgres_url is not set")
	}

	exams, err := exam.NewLoader(app.ExamsPath(cfg, dir)).LoadAll()
	if err != nil {
		return err
	}
	if len(exams) == 0 {
		return fmt.Errorf("no exam files in %s", app.ExamsPath(cfg, dir))
	}

	pool, err := postgres.Open(ctx, cfg.Storage.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	store := postgres.NewExamStore(pool)
	for _, ex := range exams {
		if err := store.ImportExam(ctx, ex); err != nil {
			return err
		}
		slog.Info("imported exam", "code", ex.Code, "questions", len(ex.Questions))
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
