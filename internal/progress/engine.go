// Package progress implements the level progression engine: unlock queries,
// completion transitions, resets and statistics, reconciled between the
// authoritative remote store and the device-local cache.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/fracquest/internal/domain"
)

// Config wires the engine's collaborators.
type Config struct {
	// Layout defines stages per level group (default: three groups of two)
	Layout domain.Layout

	// Remote is the authoritative store; nil runs the engine local-only
	Remote RemoteStore

	// Cache is required
	Cache Cache

	// Users resolves the signed-in user (default: ContextUsers)
	Users UserResolver

	Metrics *Metrics
	Logger  *slog.Logger

	// Now overrides the clock in tests
	Now func() time.Time
}

// Engine is the sole mutator of a student's progression state.
type Engine struct {
	layout  domain.Layout
	remote  RemoteStore
	cache   Cache
	users   UserResolver
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	// mu serializes read-modify-write cycles on the cache
	mu sync.Mutex
}

// NewEngine creates a progression engine
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Cache == nil {
		return nil, errors.New("progress engine requires a local cache")
	}
	e := &Engine{
		layout:  cfg.Layout,
		remote:  cfg.Remote,
		cache:   cfg.Cache,
		users:   cfg.Users,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
	if e.layout.Groups() == 0 {
		e.layout = domain.DefaultLayout()
	}
	if e.users == nil {
		e.users = ContextUsers
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Layout returns the configured level layout.
func (e *Engine) Layout() domain.Layout {
	return e.layout
}

// RemoteEnabled reports whether a remote store is configured.
func (e *Engine) RemoteEnabled() bool {
	return e.remote != nil
}

func (e *Engine) user(ctx context.Context) (string, bool) {
	return e.users.CurrentUserID(ctx)
}

// -----------------------------------------------------------------------------
// Unlock queries
// -----------------------------------------------------------------------------

// UnlockedStages returns the stages of g the current user may play.
// It never fails: remote errors degrade to the local cache.
func (e *Engine) UnlockedStages(ctx context.Context, g domain.LevelGroup) domain.UnlockSet {
	if !e.layout.Valid(g) {
		return domain.UnlockSet{}
	}

	userID, known := e.user(ctx)
	if known && e.remote != nil {
		records, err := e.fetch(ctx, userID)
		if err == nil {
			set := domain.DeriveUnlockSet(e.layout, g, records[g], records[g-1])
			e.cacheGroups(ctx, userID, domain.UnlockState{g: set}, records)
			return set
		}
		e.remoteFailed("unlocked_stages", err, "group", g)
	}

	state, _ := e.loadState(ctx, userID)
	return ensureFirst(g, state.Unlocked.Get(g))
}

// UnlockState returns the unlock sets of every level group.
func (e *Engine) UnlockState(ctx context.Context) domain.UnlockState {
	userID, known := e.user(ctx)
	if known && e.remote != nil {
		records, err := e.fetch(ctx, userID)
		if err == nil {
			state := make(domain.UnlockState, e.layout.Groups())
			for _, g := range e.layout.All() {
				state[g] = domain.DeriveUnlockSet(e.layout, g, records[g], records[g-1])
			}
			e.cacheGroups(ctx, userID, state, records)
			return state
		}
		e.remoteFailed("unlock_state", err)
	}

	state, _ := e.loadState(ctx, userID)
	unlocked := state.Unlocked
	unlocked[1] = ensureFirst(1, unlocked.Get(1))
	return unlocked
}

func ensureFirst(g domain.LevelGroup, set domain.UnlockSet) domain.UnlockSet {
	if g == 1 {
		return set.Union(1)
	}
	if set == nil {
		return domain.UnlockSet{}
	}
	return set
}

// -----------------------------------------------------------------------------
// Completion
// -----------------------------------------------------------------------------

// CompleteLevel records the outcome of a quiz session on (g, stage) and
// returns the refreshed unlock set. Stage is clamped into range. Remote
// failures are logged and never block the local unlock. An error is only
// returned when the group is unknown or neither store accepted the write;
// the set returned alongside it is the last known state.
func (e *Engine) CompleteLevel(ctx context.Context, g domain.LevelGroup, stage int, isCorrect bool, timeRemaining float64) (domain.UnlockSet, error) {
	if !e.layout.Valid(g) {
		return domain.UnlockSet{}, fmt.Errorf("%w: %d", domain.ErrInvalidLevelGroup, g)
	}
	stage = e.layout.ClampStage(g, stage)
	timeRemaining = max(timeRemaining, 0)
	now := e.now()
	e.metrics.completion(isCorrect)

	userID, known := e.user(ctx)
	remoteOK := false
	if known && e.remote != nil {
		// Progress row and attempt log are independent writes.
		if err := e.pushProgress(ctx, userID, g, stage, isCorrect, now); err != nil {
			e.remoteFailed("complete_level", err, "group", g, "stage", stage)
		} else {
			remoteOK = true
		}

		attempt := domain.Attempt{
			ID:            uuid.New(),
			UserID:        userID,
			LevelGroup:    g,
			Stage:         stage,
			IsCorrect:     isCorrect,
			TimeRemaining: timeRemaining,
			Metadata:      AttemptMetadata(ctx),
			AttemptedAt:   now,
		}
		if err := e.remote.AppendAttempt(ctx, attempt); err != nil {
			e.logger.Warn("attempt log write failed",
				"attempt_id", attempt.ID,
				"group", g,
				"stage", stage,
				"error", err,
			)
		}
	}

	state, err := e.applyLocal(ctx, userID, g, stage, isCorrect)
	if err != nil {
		if !remoteOK {
			e.logger.Error("completion not persisted",
				"group", g,
				"stage", stage,
				"error", err,
			)
			return ensureFirst(g, state.Unlocked.Get(g)), fmt.Errorf("persist completion: %w", err)
		}
		e.logger.Warn("local cache update failed", "group", g, "stage", stage, "error", err)
	}

	e.logger.Debug("stage completed",
		"group", g,
		"stage", stage,
		"correct", isCorrect,
		"remote", remoteOK,
	)

	if remoteOK {
		return e.UnlockedStages(ctx, g), nil
	}
	return ensureFirst(g, state.Unlocked.Get(g)), nil
}

func (e *Engine) pushProgress(ctx context.Context, userID string, g domain.LevelGroup, stage int, correct bool, now time.Time) error {
	records, err := e.fetch(ctx, userID)
	if err != nil {
		return err
	}
	rec := domain.NewProgressRecord(userID, g)
	if existing := records[g]; existing != nil {
		rec = *existing
	}
	rec = domain.ApplyCompletion(rec, e.layout, stage, correct, now)
	return e.remote.UpsertProgress(ctx, rec)
}

// applyLocal folds the completion into the cache. On a write failure the
// prior state is returned with the error.
func (e *Engine) applyLocal(ctx context.Context, userID string, g domain.LevelGroup, stage int, correct bool) (domain.LocalProgress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prior, err := e.loadState(ctx, userID)
	if err != nil {
		return prior, err
	}
	next := domain.ApplyLocalCompletion(prior, e.layout, g, stage, correct)
	if err := e.saveState(ctx, userID, next); err != nil {
		return prior, err
	}
	return next, nil
}

// -----------------------------------------------------------------------------
// Answer tallies
// -----------------------------------------------------------------------------

// RecordAnswer adds one answer to the local tally of (g, stage).
func (e *Engine) RecordAnswer(ctx context.Context, g domain.LevelGroup, stage int, isCorrect bool) error {
	if !e.layout.Valid(g) {
		return fmt.Errorf("%w: %d", domain.ErrInvalidLevelGroup, g)
	}
	stage = e.layout.ClampStage(g, stage)
	userID, _ := e.user(ctx)
	key := statsKey(userID, g, stage)

	e.mu.Lock()
	defer e.mu.Unlock()

	stats := e.readStats(ctx, key)
	if isCorrect {
		stats.Correct++
	} else {
		stats.Wrong++
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode answer stats: %w", err)
	}
	if err := e.cache.Write(ctx, key, string(data)); err != nil {
		return fmt.Errorf("write answer stats: %w", err)
	}
	return nil
}

// AnswerStats returns the local tally of (g, stage).
func (e *Engine) AnswerStats(ctx context.Context, g domain.LevelGroup, stage int) domain.AnswerStats {
	if !e.layout.Valid(g) {
		return domain.AnswerStats{}
	}
	userID, _ := e.user(ctx)
	return e.readStats(ctx, statsKey(userID, g, e.layout.ClampStage(g, stage)))
}

func (e *Engine) readStats(ctx context.Context, key string) domain.AnswerStats {
	raw, ok, err := e.cache.Read(ctx, key)
	if err != nil {
		e.logger.Warn("read answer stats failed", "key", key, "error", err)
		return domain.AnswerStats{}
	}
	if !ok {
		return domain.AnswerStats{}
	}
	stats, err := decodeStats(raw)
	if err != nil {
		e.logger.Warn("discarding malformed answer stats", "key", key, "error", err)
		e.metrics.cacheDiscarded()
		return domain.AnswerStats{}
	}
	return stats
}

// -----------------------------------------------------------------------------
// Reset
// -----------------------------------------------------------------------------

// ResetProgress returns one group (or every group when g is nil) to its
// baseline. The local reset always happens; the remote clear is best-effort.
// An unknown group changes nothing and the current state is returned.
func (e *Engine) ResetProgress(ctx context.Context, g *domain.LevelGroup) domain.UnlockState {
	userID, known := e.user(ctx)
	if g != nil && !e.layout.Valid(*g) {
		state, _ := e.loadState(ctx, userID)
		return state.Unlocked
	}

	if known && e.remote != nil {
		if err := e.remote.ClearProgress(ctx, userID, g); err != nil {
			e.remoteFailed("reset_progress", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	groups := e.layout.All()
	state := domain.BaselineProgress(e.layout)
	if g != nil {
		groups = []domain.LevelGroup{*g}
		current, _ := e.loadState(ctx, userID)
		state = current.Reset(*g)
	}

	if err := e.saveState(ctx, userID, state); err != nil {
		e.logger.Error("local reset not persisted", "error", err)
	}
	for _, group := range groups {
		for stage := 1; stage <= e.layout.Stages(group); stage++ {
			if err := e.cache.Remove(ctx, statsKey(userID, group, stage)); err != nil {
				e.logger.Warn("clear answer stats failed", "group", group, "stage", stage, "error", err)
			}
		}
	}

	e.logger.Info("progress reset", "group", groupAttr(g), "signed_in", known)
	return state.Unlocked
}

func groupAttr(g *domain.LevelGroup) any {
	if g == nil {
		return "all"
	}
	return int(*g)
}

// -----------------------------------------------------------------------------
// Statistics
// -----------------------------------------------------------------------------

// UserStats sums answers across every group. Remote records are preferred;
// the local per-stage tallies are the fallback.
func (e *Engine) UserStats(ctx context.Context) domain.UserStats {
	userID, known := e.user(ctx)
	if known && e.remote != nil {
		records, err := e.fetch(ctx, userID)
		if err == nil {
			correct, total := 0, 0
			for _, rec := range records {
				correct += max(rec.CorrectAnswers, 0)
				total += max(rec.TotalAttempts, 0)
			}
			return domain.NewUserStats(correct, total)
		}
		e.remoteFailed("user_stats", err)
	}

	correct, wrong := 0, 0
	for _, g := range e.layout.All() {
		for stage := 1; stage <= e.layout.Stages(g); stage++ {
			stats := e.readStats(ctx, statsKey(userID, g, stage))
			correct += stats.Correct
			wrong += stats.Wrong
		}
	}
	return domain.NewUserStats(correct, correct+wrong)
}

// CompletionPercentage returns 0..100 for one group, or across all groups
// when g is nil.
func (e *Engine) CompletionPercentage(ctx context.Context, g *domain.LevelGroup) int {
	if g != nil && !e.layout.Valid(*g) {
		return 0
	}

	completed := make(map[domain.LevelGroup]int, e.layout.Groups())
	stored := map[domain.LevelGroup]int{}

	userID, known := e.user(ctx)
	fromRemote := false
	if known && e.remote != nil {
		records, err := e.fetch(ctx, userID)
		if err == nil {
			for group, rec := range records {
				completed[group] = min(max(rec.CompletedStages, 0), e.layout.Stages(group))
				if rec.CompletionRate >= 0 {
					stored[group] = min(rec.CompletionRate, 100)
				}
			}
			fromRemote = true
		} else {
			e.remoteFailed("completion_percentage", err)
		}
	}
	if !fromRemote {
		state, _ := e.loadState(ctx, userID)
		for _, group := range e.layout.All() {
			completed[group] = state.CompletedStages(e.layout, group)
		}
	}

	if g != nil {
		if rate, ok := stored[*g]; ok {
			return rate
		}
		return domain.Percent(completed[*g], e.layout.Stages(*g))
	}

	done := 0
	for _, n := range completed {
		done += n
	}
	return domain.Percent(done, e.layout.TotalStages())
}

// -----------------------------------------------------------------------------
// Store access
// -----------------------------------------------------------------------------

func (e *Engine) fetch(ctx context.Context, userID string) (map[domain.LevelGroup]*domain.ProgressRecord, error) {
	records, err := e.remote.FetchProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.LevelGroup]*domain.ProgressRecord, len(records))
	for i := range records {
		rec := records[i]
		if !e.layout.Valid(rec.LevelGroup) {
			continue
		}
		out[rec.LevelGroup] = &rec
	}
	return out, nil
}

func (e *Engine) remoteFailed(op string, err error, attrs ...any) {
	e.metrics.fallback(op)
	e.logger.Warn("remote progress store unavailable, using local cache",
		append([]any{"operation", op, "error", err}, attrs...)...,
	)
}

// loadState reads the user's progression document. It always returns a
// usable state: missing or malformed documents yield the baseline.
func (e *Engine) loadState(ctx context.Context, userID string) (domain.LocalProgress, error) {
	key := unlockKey(userID)
	raw, ok, err := e.cache.Read(ctx, key)
	if err != nil {
		e.logger.Warn("read cached progress failed", "error", err)
		return domain.BaselineProgress(e.layout), err
	}
	if !ok {
		return domain.BaselineProgress(e.layout), nil
	}

	state, err := decodeState(raw, userID, e.layout)
	if err != nil {
		e.logger.Warn("discarding malformed cached progress", "error", err)
		e.metrics.cacheDiscarded()
		if rmErr := e.cache.Remove(ctx, key); rmErr != nil {
			e.logger.Warn("remove malformed cached progress failed", "error", rmErr)
		}
		return domain.BaselineProgress(e.layout), nil
	}
	return state, nil
}

func (e *Engine) saveState(ctx context.Context, userID string, state domain.LocalProgress) error {
	data, err := encodeState(userID, state)
	if err != nil {
		return err
	}
	return e.cache.Write(ctx, unlockKey(userID), data)
}

// cacheGroups mirrors remote-derived sets and completed counts into the
// local document.
func (e *Engine) cacheGroups(ctx context.Context, userID string, sets domain.UnlockState, records map[domain.LevelGroup]*domain.ProgressRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState(ctx, userID)
	if err != nil {
		return
	}
	for g, set := range sets {
		state.Unlocked[g] = set
		if rec := records[g]; rec != nil {
			state.Completed[g] = min(max(rec.CompletedStages, 0), e.layout.Stages(g))
		} else {
			delete(state.Completed, g)
		}
	}
	if err := e.saveState(ctx, userID, state); err != nil {
		e.logger.Warn("cache unlock state failed", "error", err)
	}
}
