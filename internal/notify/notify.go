// Package notify delivers user-facing notifications.
package notify

import (
	"context"
	"log/slog"

	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/sourcing"
)

var (
	_ sourcing.NotificationSink = (*LogSink)(nil)
	_ sourcing.NotificationSink = (*RedisSink)(nil)
	_ sourcing.NotificationSink = Multi(nil)
)

// LogSink writes notifications to the log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, n domain.Notification) {
	level := slog.LevelInfo
	switch n.Severity {
	case domain.SeverityWarning:
		level = slog.LevelWarn
	case domain.SeverityError:
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "notification",
		"title", n.Title,
		"description", n.Description,
		"user_id", n.UserID,
	)
}

// Multi fans a notification out to every sink.
type Multi []sourcing.NotificationSink

func (m Multi) Notify(ctx context.Context, n domain.Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, n)
		}
	}
}
