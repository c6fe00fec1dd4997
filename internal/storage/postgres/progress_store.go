package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/fracquest/internal/domain"
	"github.com/felixgeelhaar/fracquest/internal/progress"
)

// Store implements progress.RemoteStore on PostgreSQL. Attempts are
// handed to a separate writer: the attempt log or the queue producer.
type Store struct {
	pool     *pgxpool.Pool
	attempts progress.AttemptWriter
	schema   schemaOnce
}

// NewStore creates a new PostgreSQL progress store
func NewStore(pool *pgxpool.Pool, attempts progress.AttemptWriter) *Store {
	return &Store{pool: pool, attempts: attempts}
}

// EnsureSchema creates the progress table if missing. Every query runs it
// first, so calling it up front is optional.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.schema.ensure(ctx, s.applySchema)
}

func (s *Store) applySchema(ctx context.Context) error {
	for _, stmt := range progressSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure progress schema: %w", err)
		}
	}
	return nil
}

// FetchProgress returns every level_progress row for the user
func (s *Store) FetchProgress(ctx context.Context, userID string) ([]domain.ProgressRecord, error) {
	id, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT user_id, level_group, current_stage, completed_stages,
			total_attempts, correct_answers, accuracy,
			COALESCE(completion_rate, -1), last_played
		FROM level_progress WHERE user_id = $1
		ORDER BY level_group
	`
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	var records []domain.ProgressRecord
	for rows.Next() {
		var (
			rec   domain.ProgressRecord
			owner uuid.UUID
			group int
		)
		if err := rows.Scan(&owner, &group, &rec.CurrentStage, &rec.CompletedStages,
			&rec.TotalAttempts, &rec.CorrectAnswers, &rec.Accuracy,
			&rec.CompletionRate, &rec.LastPlayed); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		rec.UserID = owner.String()
		rec.LevelGroup = domain.LevelGroup(group)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpsertProgress writes the row keyed by (user_id, level_group)
func (s *Store) UpsertProgress(ctx context.Context, rec domain.ProgressRecord) error {
	id, err := parseUserID(rec.UserID)
	if err != nil {
		return err
	}
	if rec.LevelGroup < 1 {
		return fmt.Errorf("%w: level group %d", domain.ErrInvalidInput, rec.LevelGroup)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	var completionRate *int
	if rec.CompletionRate >= 0 {
		completionRate = &rec.CompletionRate
	}

	query := `
		INSERT INTO level_progress (user_id, level_group, current_stage, completed_stages,
			total_attempts, correct_answers, accuracy, completion_rate, last_played)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, level_group) DO UPDATE SET
			current_stage = EXCLUDED.current_stage,
			completed_stages = EXCLUDED.completed_stages,
			total_attempts = EXCLUDED.total_attempts,
			correct_answers = EXCLUDED.correct_answers,
			accuracy = EXCLUDED.accuracy,
			completion_rate = EXCLUDED.completion_rate,
			last_played = EXCLUDED.last_played
	`
	_, err = s.pool.Exec(ctx, query,
		id, int(rec.LevelGroup), rec.CurrentStage, rec.CompletedStages,
		rec.TotalAttempts, rec.CorrectAnswers, rec.Accuracy, completionRate, rec.LastPlayed,
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// AppendAttempt forwards to the configured attempt writer
func (s *Store) AppendAttempt(ctx context.Context, attempt domain.Attempt) error {
	if s.attempts == nil {
		return errors.New("no attempt writer configured")
	}
	return s.attempts.AppendAttempt(ctx, attempt)
}

// ClearProgress deletes one group's row, or all of the user's rows
func (s *Store) ClearProgress(ctx context.Context, userID string, group *domain.LevelGroup) error {
	id, err := parseUserID(userID)
	if err != nil {
		return err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	if group == nil {
		_, err = s.pool.Exec(ctx, `DELETE FROM level_progress WHERE user_id = $1`, id)
	} else {
		_, err = s.pool.Exec(ctx, `DELETE FROM level_progress WHERE user_id = $1 AND level_group = $2`, id, int(*group))
	}
	if err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	return nil
}

func parseUserID(userID string) (uuid.UUID, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", domain.ErrInvalidUserID, userID)
	}
	return id, nil
}

// Ensure Store implements progress.RemoteStore
var _ progress.RemoteStore = (*Store)(nil)
