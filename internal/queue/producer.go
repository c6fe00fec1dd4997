package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/fracquest/internal/domain"
)

// Publisher sends a JSON payload to a queue. *Connection implements it.
type Publisher interface {
	PublishJSON(ctx context.Context, queue, messageID string, data any) error
}

// Producer publishes quiz attempts to the attempt queue
type Producer struct {
	pub Publisher
}

// NewProducer creates a new queue producer
func NewProducer(pub Publisher) *Producer {
	return &Producer{pub: pub}
}

// AppendAttempt enqueues the attempt for the attempt-log worker
func (p *Producer) AppendAttempt(ctx context.Context, attempt domain.Attempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now().UTC()
	}

	if err := p.pub.PublishJSON(ctx, AttemptQueueName, attempt.ID.String(), attempt); err != nil {
		return fmt.Errorf("failed to publish attempt: %w", err)
	}

	slog.Debug("published attempt",
		"attempt_id", attempt.ID,
		"group", attempt.LevelGroup,
		"stage", attempt.Stage,
	)

	return nil
}
