package progress

import (
	"context"
	"errors"
	"sync"

	"github.com/felixgeelhaar/fracquest/internal/domain"
)

var errOffline = errors.New("mock: remote offline")

// memoryRemote is an in-memory RemoteStore with failure injection.
type memoryRemote struct {
	mu       sync.Mutex
	records  map[string]map[domain.LevelGroup]domain.ProgressRecord
	attempts []domain.Attempt

	failAll    bool
	failUpsert bool
	failAppend bool
	calls      int
}

func newMemoryRemote() *memoryRemote {
	return &memoryRemote{records: make(map[string]map[domain.LevelGroup]domain.ProgressRecord)}
}

func (m *memoryRemote) setOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = offline
}

func (m *memoryRemote) FetchProgress(ctx context.Context, userID string) ([]domain.ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failAll {
		return nil, errOffline
	}
	var out []domain.ProgressRecord
	for _, rec := range m.records[userID] {
		out = append(out, rec)
	}
	return out, nil
}

func (m *memoryRemote) UpsertProgress(ctx context.Context, rec domain.ProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failAll || m.failUpsert {
		return errOffline
	}
	if m.records[rec.UserID] == nil {
		m.records[rec.UserID] = make(map[domain.LevelGroup]domain.ProgressRecord)
	}
	m.records[rec.UserID][rec.LevelGroup] = rec
	return nil
}

func (m *memoryRemote) AppendAttempt(ctx context.Context, attempt domain.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failAll || m.failAppend {
		return errOffline
	}
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *memoryRemote) ClearProgress(ctx context.Context, userID string, group *domain.LevelGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failAll {
		return errOffline
	}
	if group == nil {
		delete(m.records, userID)
		return nil
	}
	delete(m.records[userID], *group)
	return nil
}

func (m *memoryRemote) record(userID string, g domain.LevelGroup) (domain.ProgressRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID][g]
	return rec, ok
}

// memoryCache is an in-memory Cache with failure injection.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]string

	readErr  error
	writeErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]string)}
}

func (c *memoryCache) Read(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return "", false, c.readErr
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memoryCache) Write(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.entries[key] = value
	return nil
}

func (c *memoryCache) Remove(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memoryCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}
