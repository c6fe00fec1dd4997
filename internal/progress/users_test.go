package progress

import (
	"context"
	"testing"
)

func TestSession(t *testing.T) {
	s := NewSession("  alice ")
	ctx := context.Background()

	if id, ok := s.CurrentUserID(ctx); !ok || id != "alice" {
		t.Errorf("CurrentUserID() = %q, %v, want alice, true", id, ok)
	}

	s.SignIn("bob")
	if id, _ := s.CurrentUserID(ctx); id != "bob" {
		t.Errorf("CurrentUserID() after SignIn = %q, want bob", id)
	}

	if id, ok := s.CurrentUserID(WithUserID(ctx, "carol")); !ok || id != "carol" {
		t.Errorf("CurrentUserID() with context user = %q, %v, want carol, true", id, ok)
	}

	s.SignOut()
	if id, ok := s.CurrentUserID(ctx); ok || id != "" {
		t.Errorf("CurrentUserID() after SignOut = %q, %v, want empty, false", id, ok)
	}
}

func TestContextUsers(t *testing.T) {
	if _, ok := ContextUsers.CurrentUserID(context.Background()); ok {
		t.Error("empty context should have no user")
	}
	if _, ok := ContextUsers.CurrentUserID(WithUserID(context.Background(), "   ")); ok {
		t.Error("blank user id should not count as signed in")
	}
	if id, ok := ContextUsers.CurrentUserID(WithUserID(context.Background(), "dave")); !ok || id != "dave" {
		t.Errorf("CurrentUserID() = %q, %v, want dave, true", id, ok)
	}
}

func TestAttemptMetadata(t *testing.T) {
	ctx := context.Background()
	if AttemptMetadata(ctx) != nil {
		t.Error("AttemptMetadata() on bare context should be nil")
	}

	base := WithAttemptMetadata(ctx, "source", "cli")
	child := WithAttemptMetadata(base, "correlation_id", "x1")

	if got := AttemptMetadata(child); got["source"] != "cli" || got["correlation_id"] != "x1" {
		t.Errorf("AttemptMetadata(child) = %v", got)
	}
	if _, leaked := AttemptMetadata(base)["correlation_id"]; leaked {
		t.Error("child metadata leaked into parent context")
	}
}
