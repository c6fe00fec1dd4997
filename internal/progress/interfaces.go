package progress

import (
	"context"

	"github.com/felixgeelhaar/fracquest/internal/domain"
)

// RemoteStore is the authoritative hosted progress store.
// Any call may fail; the engine treats every error as "remote unavailable".
type RemoteStore interface {
	// FetchProgress returns one record per level group the user has played
	FetchProgress(ctx context.Context, userID string) ([]domain.ProgressRecord, error)

	// UpsertProgress creates or replaces the record for (UserID, LevelGroup)
	UpsertProgress(ctx context.Context, rec domain.ProgressRecord) error

	// AppendAttempt adds one entry to the attempt log
	AppendAttempt(ctx context.Context, attempt domain.Attempt) error

	// ClearProgress removes one group's record, or all of them when group is nil
	ClearProgress(ctx context.Context, userID string, group *domain.LevelGroup) error
}

// Cache is the device-local key-value persistence.
// Both the JSON file store and the SQLite store implement this.
type Cache interface {
	Read(ctx context.Context, key string) (string, bool, error)
	Write(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// AttemptWriter receives attempt-log entries. The Postgres attempt log and
// the queue producer both implement it.
type AttemptWriter interface {
	AppendAttempt(ctx context.Context, attempt domain.Attempt) error
}

// UserResolver returns the currently signed-in user, if any.
type UserResolver interface {
	CurrentUserID(ctx context.Context) (string, bool)
}

// UserResolverFunc adapts a function to UserResolver
type UserResolverFunc func(ctx context.Context) (string, bool)

func (f UserResolverFunc) CurrentUserID(ctx context.Context) (string, bool) {
	return f(ctx)
}
