// Package postgres implements the remote progress store: per-group
// progress rows through pgx and the attempt log through database/sql.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// progressSchema is applied statement by statement; pgx does not run
// multi-statement strings with arguments.
var progressSchema = []string{
	`CREATE TABLE IF NOT EXISTS level_progress (
		user_id          UUID        NOT NULL,
		level_group      INTEGER     NOT NULL CHECK (level_group >= 1),
		current_stage    INTEGER     NOT NULL DEFAULT 1,
		completed_stages INTEGER     NOT NULL DEFAULT 0,
		total_attempts   INTEGER     NOT NULL DEFAULT 0,
		correct_answers  INTEGER     NOT NULL DEFAULT 0,
		accuracy         INTEGER     NOT NULL DEFAULT 0,
		completion_rate  INTEGER,
		last_played      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, level_group)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_level_progress_last_played
		ON level_progress (last_played DESC)`,
}

var attemptSchema = []string{
	`CREATE TABLE IF NOT EXISTS level_attempts (
		id             UUID             PRIMARY KEY,
		user_id        UUID             NOT NULL,
		level_group    INTEGER          NOT NULL,
		stage          INTEGER          NOT NULL,
		is_correct     BOOLEAN          NOT NULL,
		time_remaining DOUBLE PRECISION NOT NULL DEFAULT 0,
		details        JSONB,
		attempted_at   TIMESTAMPTZ      NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_level_attempts_user
		ON level_attempts (user_id, attempted_at DESC)`,
}

// NewPool creates a pgx pool. Connections are dialed on first use, so an
// unreachable server surfaces as query errors rather than here.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool for %s: %w", sanitizeURL(databaseURL), err)
	}
	return pool, nil
}

// schemaOnce applies a schema before first use. A failed attempt is
// retried on the next call.
type schemaOnce struct {
	mu   sync.Mutex
	done bool
}

func (o *schemaOnce) ensure(ctx context.Context, apply func(context.Context) error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return nil
	}
	if err := apply(ctx); err != nil {
		return err
	}
	o.done = true
	return nil
}

// sanitizeURL removes the password from a connection URL for logging
func sanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
