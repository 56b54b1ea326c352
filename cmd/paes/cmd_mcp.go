package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/paespro/lectoguia/internal/app"
	"github.com/paespro/lectoguia/internal/config"
	mcpserver "github.com/paespro/lectoguia/internal/mcp"
)

// cmdMCP runs the practice services in-process and serves MCP on stdio
func cmdMCP() error {
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

	// stdout carries the protocol, so logs go to a file
	logFile, err := os.OpenFile(filepath.Join(dir, "logs", "paes-mcp.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	services, err := app.Build(ctx, cfg, dir, logger)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer services.Close()

	mcpSrv := mcpserver.NewServer(mcpserver.Config{
		Sessions: services.Sessions,
		Progress: services.Progress,
		Version:  Version,
	})
	return mcpSrv.ServeStdio(ctx)
}
