package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/sourcing"
)

// Publisher is the publish side of a Connection.
type Publisher interface {
	PublishJSON(ctx context.Context, queue, msgType, messageID string, data any) error
}

var _ Publisher = (*Connection)(nil)

// AttemptPublisher is a TelemetryStore that publishes attempts for the
// worker to project and reads aggregates from the projected store.
type AttemptPublisher struct {
	pub    Publisher
	reads  sourcing.TelemetryStore
	logger *slog.Logger
	now    func() time.Time
}

var _ sourcing.TelemetryStore = (*AttemptPublisher)(nil)

// NewAttemptPublisher creates a publisher. reads serves RecentStats and
// ProgressBySkill.
func NewAttemptPublisher(pub Publisher, reads sourcing.TelemetryStore, logger *slog.Logger) *AttemptPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttemptPublisher{pub: pub, reads: reads, logger: logger, now: time.Now}
}

// RecordAttempt publishes an attempt.recorded event.
func (p *AttemptPublisher) RecordAttempt(ctx context.Context, a *domain.ExerciseAttempt) error {
	if a == nil {
		return errors.New("nil attempt")
	}
	event := AttemptEvent{
		Type:        EventAttemptRecorded,
		Attempt:     *a,
		PublishedAt: p.now(),
	}
	if err := p.pub.PublishJSON(ctx, AttemptQueueName, EventAttemptRecorded, a.ID, event); err != nil {
		return fmt.Errorf("failed to publish attempt: %w", err)
	}

	p.logger.Debug("published attempt",
		"attempt_id", a.ID,
		"user_id", a.UserID,
		"skill", a.Skill,
	)
	return nil
}

func (p *AttemptPublisher) RecentStats(ctx context.Context, userID string, limit int) (*domain.RecentStats, error) {
	return p.reads.RecentStats(ctx, userID, limit)
}

func (p *AttemptPublisher) ProgressBySkill(ctx context.Context, userID string) (map[domain.Skill]domain.SkillProgress, error) {
	return p.reads.ProgressBySkill(ctx, userID)
}
