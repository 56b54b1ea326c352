package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/paespro/lectoguia/internal/domain"
)

// DefaultChannel is the pub/sub channel notifications go to.
const DefaultChannel = "paes:notifications"

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
}

// RedisSink publishes notifications as JSON on a Redis channel.
type RedisSink struct {
	rdb     publisher
	closer  func() error
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisSink dials addr and verifies the connection.
func NewRedisSink(ctx context.Context, addr, channel string, logger *slog.Logger) (*RedisSink, error) {
	if addr == "" {
		return nil, errors.New("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := newRedisSink(rdb, channel, logger)
	s.closer = rdb.Close
	return s, nil
}

func newRedisSink(rdb publisher, channel string, logger *slog.Logger) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSink{
		rdb:     rdb,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// Notify publishes n. Failures are logged and dropped.
func (s *RedisSink) Notify(ctx context.Context, n domain.Notification) {
	raw, err := json.Marshal(n)
	if err != nil {
		s.logger.Error("failed to encode notification", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.rdb.Publish(ctx, s.channel, raw).Err(); err != nil {
		s.logger.Warn("failed to publish notification",
			"channel", s.channel,
			"user_id", n.UserID,
			"error", err,
		)
	}
}

// Close releases the Redis client.
func (s *RedisSink) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}
