package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/felixgeelhaar/fracquest/internal/domain"
	"github.com/felixgeelhaar/fracquest/internal/progress"
)

// AttemptLog appends quiz attempts to the level_attempts table.
// Inserts are keyed by attempt id, so redelivered attempts are ignored.
type AttemptLog struct {
	db     *sql.DB
	schema schemaOnce
}

// OpenAttemptLog opens a lib/pq handle. Like the pool, it connects lazily.
func OpenAttemptLog(databaseURL string) (*AttemptLog, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open attempt log %s: %w", sanitizeURL(databaseURL), err)
	}
	return NewAttemptLog(db), nil
}

// NewAttemptLog wraps an existing connection
func NewAttemptLog(db *sql.DB) *AttemptLog {
	return &AttemptLog{db: db}
}

// EnsureSchema creates the attempt table if missing. AppendAttempt runs it
// first.
func (l *AttemptLog) EnsureSchema(ctx context.Context) error {
	return l.schema.ensure(ctx, l.applySchema)
}

func (l *AttemptLog) applySchema(ctx context.Context) error {
	for _, stmt := range attemptSchema {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure attempt schema: %w", err)
		}
	}
	return nil
}

// AppendAttempt inserts one attempt
func (l *AttemptLog) AppendAttempt(ctx context.Context, attempt domain.Attempt) error {
	userID, err := parseUserID(attempt.UserID)
	if err != nil {
		return err
	}
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if err := l.EnsureSchema(ctx); err != nil {
		return err
	}

	var details pqtype.NullRawMessage
	if len(attempt.Metadata) > 0 {
		data, err := json.Marshal(attempt.Metadata)
		if err != nil {
			return fmt.Errorf("marshal attempt details: %w", err)
		}
		details = pqtype.NullRawMessage{RawMessage: data, Valid: true}
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO level_attempts (id, user_id, level_group, stage, is_correct,
			time_remaining, details, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		attempt.ID, userID, int(attempt.LevelGroup), attempt.Stage, attempt.IsCorrect,
		attempt.TimeRemaining, details, attempt.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Close closes the underlying connection
func (l *AttemptLog) Close() error {
	return l.db.Close()
}

// Ensure AttemptLog implements progress.AttemptWriter
var _ progress.AttemptWriter = (*AttemptLog)(nil)
