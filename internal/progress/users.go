package progress

import (
	"context"
	"strings"
	"sync"
)

type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID attaches the signed-in user to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
}

// UserIDFromContext reads the user set by WithUserID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// ContextUsers resolves the user from the request context.
var ContextUsers UserResolver = UserResolverFunc(UserIDFromContext)

// Session tracks the user signed in on this device. A context user, when
// present, takes precedence so per-request identities still work.
type Session struct {
	mu     sync.RWMutex
	userID string
}

// NewSession creates a session, optionally already signed in
func NewSession(userID string) *Session {
	return &Session{userID: strings.TrimSpace(userID)}
}

// SignIn switches the device to userID
func (s *Session) SignIn(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = strings.TrimSpace(userID)
}

// SignOut drops back to anonymous, local-only play
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
}

func (s *Session) CurrentUserID(ctx context.Context) (string, bool) {
	if id, ok := UserIDFromContext(ctx); ok {
		return id, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

const attemptMetadataKey contextKey = "attempt_metadata"

// WithAttemptMetadata tags attempts logged under ctx with key=value.
func WithAttemptMetadata(ctx context.Context, key, value string) context.Context {
	meta := make(map[string]string)
	for k, v := range AttemptMetadata(ctx) {
		meta[k] = v
	}
	meta[key] = value
	return context.WithValue(ctx, attemptMetadataKey, meta)
}

// AttemptMetadata returns the tags set by WithAttemptMetadata, or nil.
func AttemptMetadata(ctx context.Context) map[string]string {
	meta, _ := ctx.Value(attemptMetadataKey).(map[string]string)
	return meta
}
