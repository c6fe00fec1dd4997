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

	"github.com/felixgeelhaar/fracquest/internal/domain"
)

// AttemptHandler stores one attempt taken off the queue
type AttemptHandler func(ctx context.Context, attempt domain.Attempt) error

// Consumer drains the attempt queue
type Consumer struct {
	conn       *Connection
	handler    AttemptHandler
	workers    int
	prefetch   int
	timeout    time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // Number of concurrent workers
	Prefetch int           // Prefetch count per worker
	Timeout  time.Duration // Per-attempt handler timeout
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  3,
		Prefetch: 1,
		Timeout:  15 * time.Second,
	}
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler AttemptHandler, cfg ConsumerConfig) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		conn:     conn,
		handler:  handler,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
	}
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	d := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = d.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = d.Prefetch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	return cfg
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	if err := ch.Qos(c.prefetch*c.workers, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		AttemptQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("starting attempt queue consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

// worker processes messages from the queue
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}
			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage stores one attempt. Malformed or permanently invalid
// attempts are dead-lettered; transient failures are requeued once.
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	var attempt domain.Attempt
	if err := json.Unmarshal(msg.Body, &attempt); err != nil {
		slog.Error("failed to unmarshal attempt",
			"worker_id", workerID,
			"message_id", msg.MessageId,
			"error", err,
		)
		_ = msg.Reject(false)
		return
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.handler(attemptCtx, attempt)
	switch {
	case err == nil:
		if ackErr := msg.Ack(false); ackErr != nil {
			slog.Error("failed to ack message",
				"worker_id", workerID,
				"attempt_id", attempt.ID,
				"error", ackErr,
			)
		}

	case permanent(err) || msg.Redelivered:
		slog.Error("attempt dead-lettered",
			"worker_id", workerID,
			"attempt_id", attempt.ID,
			"redelivered", msg.Redelivered,
			"error", err,
		)
		_ = msg.Reject(false)

	default:
		slog.Warn("attempt write failed, requeueing",
			"worker_id", workerID,
			"attempt_id", attempt.ID,
			"error", err,
		)
		_ = msg.Nack(false, true)
	}
}

func permanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidUserID) || errors.Is(err, domain.ErrInvalidInput)
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}
