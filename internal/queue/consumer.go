package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/paespro/lectoguia/internal/domain"
)

// AttemptSink receives projected attempts.
type AttemptSink interface {
	RecordAttempt(ctx context.Context, attempt *domain.ExerciseAttempt) error
}

// acknowledger is the subset of amqp.Delivery the consumer settles with.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
	Reject(requeue bool) error
}

var errMalformedEvent = errors.New("malformed attempt event")

// Consumer projects attempt events into a sink.
type Consumer struct {
	conn       *Connection
	sink       AttemptSink
	workers    int
	prefetch   int
	timeout    time.Duration
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // concurrent workers
	Prefetch int           // unacked messages per channel
	Timeout  time.Duration // per-message store deadline
	Logger   *slog.Logger
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  3,
		Prefetch: 10,
		Timeout:  10 * time.Second,
	}
}

// NewConsumer creates a consumer.
func NewConsumer(conn *Connection, sink AttemptSink, cfg ConsumerConfig) *Consumer {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		sink:     sink,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
}

// Start begins consuming attempt events.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		AttemptQueueName,
		"",    // consumer tag (auto-generated)
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("starting attempt consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := range c.workers {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("worker stopping", "worker_id", id)
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("message channel closed", "worker_id", id)
				return
			}
			c.processMessage(ctx, id, msg.Body, msg.Redelivered, msg)
		}
	}
}

// processMessage settles one delivery. Malformed events are dead-lettered,
// store failures are requeued once and then dead-lettered.
func (c *Consumer) processMessage(ctx context.Context, workerID int, body []byte, redelivered bool, ack acknowledger) {
	attempt, err := decodeEvent(body)
	if err != nil {
		c.logger.Error("rejecting attempt event", "worker_id", workerID, "error", err)
		_ = ack.Reject(false)
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.sink.RecordAttempt(storeCtx, attempt); err != nil {
		c.logger.Error("failed to project attempt",
			"worker_id", workerID,
			"attempt_id", attempt.ID,
			"redelivered", redelivered,
			"error", err,
		)
		_ = ack.Nack(false, !redelivered)
		return
	}

	if err := ack.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "worker_id", workerID, "attempt_id", attempt.ID, "error", err)
		return
	}
	c.logger.Debug("attempt projected", "worker_id", workerID, "attempt_id", attempt.ID)
}

func decodeEvent(body []byte) (*domain.ExerciseAttempt, error) {
	var event AttemptEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	if event.Type != EventAttemptRecorded {
		return nil, fmt.Errorf("%w: unexpected type %q", errMalformedEvent, event.Type)
	}
	a := event.Attempt
	if a.ID == "" || a.UserID == "" || !a.Skill.Valid() {
		return nil, fmt.Errorf("%w: incomplete attempt", errMalformedEvent)
	}
	return &a, nil
}

// Stop cancels the workers and waits for in-flight messages.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	c.logger.Info("consumer stopped")
}
