//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/felixgeelhaar/fracquest/internal/domain"
	"github.com/felixgeelhaar/fracquest/internal/progress"
	"github.com/felixgeelhaar/fracquest/internal/storage/postgres"
)

// setupPostgres starts a throwaway PostgreSQL container
func setupPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "fracquest",
				"POSTGRES_PASSWORD": "fracquest",
				"POSTGRES_DB":       "fracquest",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf("postgres://fracquest:fracquest@%s:%s/fracquest?sslmode=disable", host, port.Port())
}

func setupStore(t *testing.T) (*postgres.Store, string) {
	t.Helper()
	ctx := context.Background()
	dsn := setupPostgres(t)

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	t.Cleanup(pool.Close)

	log, err := postgres.OpenAttemptLog(dsn)
	if err != nil {
		t.Fatalf("OpenAttemptLog() error = %v", err)
	}
	t.Cleanup(func() { log.Close() })

	store := postgres.NewStore(pool, log)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := log.EnsureSchema(ctx); err != nil {
		t.Fatalf("AttemptLog.EnsureSchema() error = %v", err)
	}
	return store, dsn
}

func TestIntegration_Store_UpsertFetchClear(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	user := uuid.NewString()
	layout := domain.DefaultLayout()
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := domain.ApplyCompletion(domain.NewProgressRecord(user, 1), layout, 1, true, now)
	if err := store.UpsertProgress(ctx, rec); err != nil {
		t.Fatalf("UpsertProgress() error = %v", err)
	}
	rec = domain.ApplyCompletion(rec, layout, 2, true, now)
	if err := store.UpsertProgress(ctx, rec); err != nil {
		t.Fatalf("second UpsertProgress() error = %v", err)
	}
	if err := store.UpsertProgress(ctx, domain.NewProgressRecord(user, 2)); err != nil {
		t.Fatalf("UpsertProgress(group 2) error = %v", err)
	}

	records, err := store.FetchProgress(ctx, user)
	if err != nil {
		t.Fatalf("FetchProgress() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("FetchProgress() = %d records, want 2", len(records))
	}

	got := records[0]
	if got.LevelGroup != 1 || got.CompletedStages != 2 || got.TotalAttempts != 2 || got.CompletionRate != 100 {
		t.Errorf("group 1 record = %+v", got)
	}
	if records[1].CompletionRate != -1 {
		t.Errorf("group 2 CompletionRate = %d, want -1 (absent)", records[1].CompletionRate)
	}

	g := domain.LevelGroup(2)
	if err := store.ClearProgress(ctx, user, &g); err != nil {
		t.Fatalf("ClearProgress(2) error = %v", err)
	}
	records, _ = store.FetchProgress(ctx, user)
	if len(records) != 1 {
		t.Errorf("after ClearProgress(2) = %d records, want 1", len(records))
	}

	if err := store.ClearProgress(ctx, user, nil); err != nil {
		t.Fatalf("ClearProgress(nil) error = %v", err)
	}
	records, _ = store.FetchProgress(ctx, user)
	if len(records) != 0 {
		t.Errorf("after ClearProgress(nil) = %d records, want 0", len(records))
	}
}

func TestIntegration_AttemptLog_Idempotent(t *testing.T) {
	store, dsn := setupStore(t)
	ctx := context.Background()
	user := uuid.NewString()

	attempt := domain.Attempt{
		ID:            uuid.New(),
		UserID:        user,
		LevelGroup:    1,
		Stage:         2,
		IsCorrect:     true,
		TimeRemaining: 7.5,
		Metadata:      map[string]string{"correlation_id": "c-1"},
		AttemptedAt:   time.Now().UTC(),
	}
	for i := 0; i < 2; i++ {
		if err := store.AppendAttempt(ctx, attempt); err != nil {
			t.Fatalf("AppendAttempt() error = %v", err)
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()

	var (
		count   int
		details []byte
	)
	err = db.QueryRowContext(ctx,
		`SELECT count(*), max(details::text) FROM level_attempts WHERE user_id = $1`, user,
	).Scan(&count, &details)
	if err != nil {
		t.Fatalf("query attempts: %v", err)
	}
	if count != 1 {
		t.Fatalf("attempt rows = %d, want 1", count)
	}
	var meta map[string]string
	if err := json.Unmarshal(details, &meta); err != nil {
		t.Fatalf("unmarshal details: %v", err)
	}
	if meta["correlation_id"] != "c-1" {
		t.Errorf("details = %v", meta)
	}
}

func TestIntegration_StoreAppliesSchemaOnFirstUse(t *testing.T) {
	dsn := setupPostgres(t)
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	defer pool.Close()
	log, err := postgres.OpenAttemptLog(dsn)
	if err != nil {
		t.Fatalf("OpenAttemptLog() error = %v", err)
	}
	defer log.Close()

	store := postgres.NewStore(pool, log)
	user := uuid.NewString()
	rec := domain.ApplyCompletion(domain.NewProgressRecord(user, 1), domain.DefaultLayout(), 1, true, time.Now().UTC())
	if err := store.UpsertProgress(ctx, rec); err != nil {
		t.Fatalf("UpsertProgress() without EnsureSchema error = %v", err)
	}
	if err := store.AppendAttempt(ctx, domain.Attempt{UserID: user, LevelGroup: 1, Stage: 1}); err != nil {
		t.Fatalf("AppendAttempt() without EnsureSchema error = %v", err)
	}
}

func TestIntegration_EngineAgainstPostgres(t *testing.T) {
	store, _ := setupStore(t)
	user := uuid.NewString()

	engine, err := progress.NewEngine(progress.Config{
		Remote: store,
		Cache:  newMapCache(),
		Users:  progress.NewSession(user),
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	ctx := context.Background()

	if _, err := engine.CompleteLevel(ctx, 1, 1, true, 5); err != nil {
		t.Fatalf("CompleteLevel() error = %v", err)
	}
	set, err := engine.CompleteLevel(ctx, 1, 2, true, 5)
	if err != nil {
		t.Fatalf("CompleteLevel() error = %v", err)
	}
	if !set.Equal(domain.UnlockSet{1, 2, 3}) {
		t.Errorf("group 1 = %v, want [1 2 3]", set)
	}
	if got := engine.UnlockedStages(ctx, 2); !got.Equal(domain.UnlockSet{1}) {
		t.Errorf("group 2 = %v, want [1]", got)
	}
}

type mapCache map[string]string

func newMapCache() mapCache { return mapCache{} }

func (m mapCache) Read(ctx context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapCache) Write(ctx context.Context, key, value string) error {
	m[key] = value
	return nil
}

func (m mapCache) Remove(ctx context.Context, key string) error {
	delete(m, key)
	return nil
}
