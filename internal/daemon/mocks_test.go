package daemon

import (
	"context"
	"errors"
	"sync"

	"github.com/felixgeelhaar/fracquest/internal/domain"
)

var errNotImplemented = errors.New("mock: not implemented")

// mockRemote implements progress.RemoteStore for testing
type mockRemote struct {
	fetchFn  func(ctx context.Context, userID string) ([]domain.ProgressRecord, error)
	upsertFn func(ctx context.Context, rec domain.ProgressRecord) error
	appendFn func(ctx context.Context, attempt domain.Attempt) error
	clearFn  func(ctx context.Context, userID string, group *domain.LevelGroup) error
}

func (m *mockRemote) FetchProgress(ctx context.Context, userID string) ([]domain.ProgressRecord, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, userID)
	}
	return nil, errNotImplemented
}

func (m *mockRemote) UpsertProgress(ctx context.Context, rec domain.ProgressRecord) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, rec)
	}
	return errNotImplemented
}

func (m *mockRemote) AppendAttempt(ctx context.Context, attempt domain.Attempt) error {
	if m.appendFn != nil {
		return m.appendFn(ctx, attempt)
	}
	return errNotImplemented
}

func (m *mockRemote) ClearProgress(ctx context.Context, userID string, group *domain.LevelGroup) error {
	if m.clearFn != nil {
		return m.clearFn(ctx, userID, group)
	}
	return errNotImplemented
}

// mockCache is an in-memory progress.Cache; writeFn overrides writes.
type mockCache struct {
	mu      sync.Mutex
	entries map[string]string
	writeFn func(ctx context.Context, key, value string) error
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]string)}
}

func (m *mockCache) Read(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *mockCache) Write(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeFn != nil {
		return m.writeFn(ctx, key, value)
	}
	m.entries[key] = value
	return nil
}

func (m *mockCache) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
