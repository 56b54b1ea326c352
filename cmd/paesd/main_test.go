package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestMultiHandler(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With("component", "test")

	logger.Info("exercise sourced", "source", "official")
	logger.Warn("official lookup failed")

	if got := strings.Count(debugBuf.String(), "\n"); got != 2 {
		t.Errorf("debug handler got %d lines; want 2", got)
	}
	if strings.Contains(warnBuf.String(), "exercise sourced") {
		t.Error("warn handler received an info record")
	}
	if !strings.Contains(warnBuf.String(), `"component":"test"`) {
		t.Errorf("attrs not propagated: %s", warnBuf.String())
	}
	if h.Enabled(context.Background(), slog.LevelDebug-1) {
		t.Error("Enabled() = true below every handler's level")
	}
}
