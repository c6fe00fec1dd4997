package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/fracquest/internal/domain"
)

// DefaultRemoteTimeout bounds every remote call, matching the login flow.
const DefaultRemoteTimeout = 15 * time.Second

// records is the single result type shared by the breaker and retrier so
// every remote operation counts against the same circuit.
type records = []domain.ProgressRecord

// ResilientStore wraps a RemoteStore with a timeout, retry with backoff,
// a circuit breaker and a concurrency bulkhead from fortify.
type ResilientStore struct {
	store          RemoteStore
	timeout        time.Duration
	circuitBreaker circuitbreaker.CircuitBreaker[records]
	retrier        retry.Retry[records]
	bulkhead       bulkhead.Bulkhead[records]
	logger         *slog.Logger
}

// ResilientConfig holds configuration for the resilient store wrapper
type ResilientConfig struct {
	// Timeout per call including retries (default: 15s)
	Timeout time.Duration

	// EnableCircuitBreaker stops calling a failing store for a while
	EnableCircuitBreaker bool

	// EnableRetry retries transient failures with exponential backoff
	EnableRetry bool

	// FailureThreshold is the run of consecutive failures that opens
	// the circuit (default: 5)
	FailureThreshold int

	// MaxAttempts for retry (default: 3)
	MaxAttempts int

	// InitialDelay before the first retry (default: 200ms)
	InitialDelay time.Duration

	// MaxConcurrent caps in-flight remote calls; 0 disables the bulkhead
	MaxConcurrent int

	// Logger for resilience events
	Logger *slog.Logger
}

// DefaultResilientConfig returns sensible defaults for the remote store
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Timeout:              DefaultRemoteTimeout,
		EnableCircuitBreaker: true,
		EnableRetry:          true,
		FailureThreshold:     5,
		MaxAttempts:          3,
		InitialDelay:         200 * time.Millisecond,
		MaxConcurrent:        8,
	}
}

// NewResilientStore wraps store with resilience patterns using fortify
func NewResilientStore(store RemoteStore, cfg ResilientConfig) *ResilientStore {
	rs := &ResilientStore{
		store:   store,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
	if rs.timeout <= 0 {
		rs.timeout = DefaultRemoteTimeout
	}
	if rs.logger == nil {
		rs.logger = slog.Default()
	}

	if cfg.EnableCircuitBreaker {
		threshold := 5
		if cfg.FailureThreshold > 0 {
			threshold = cfg.FailureThreshold
		}
		rs.circuitBreaker = circuitbreaker.New[records](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return int(counts.ConsecutiveFailures) >= threshold
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				rs.logger.Warn("remote store circuit breaker state change",
					"from", from.String(),
					"to", to.String())
			},
		})
	}

	if cfg.EnableRetry {
		attempts := cfg.MaxAttempts
		if attempts <= 0 {
			attempts = 3
		}
		delay := cfg.InitialDelay
		if delay <= 0 {
			delay = 200 * time.Millisecond
		}
		rs.retrier = retry.New[records](retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  delay,
			MaxDelay:      2 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryable,
		})
	}

	if cfg.MaxConcurrent > 0 {
		rs.bulkhead = bulkhead.New[records](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxConcurrent * 4,
			QueueTimeout:  rs.timeout,
		})
	}

	return rs
}

func (r *ResilientStore) FetchProgress(ctx context.Context, userID string) ([]domain.ProgressRecord, error) {
	return r.execute(ctx, "fetch_progress", func(ctx context.Context) (records, error) {
		return r.store.FetchProgress(ctx, userID)
	})
}

func (r *ResilientStore) UpsertProgress(ctx context.Context, rec domain.ProgressRecord) error {
	_, err := r.execute(ctx, "upsert_progress", func(ctx context.Context) (records, error) {
		return nil, r.store.UpsertProgress(ctx, rec)
	})
	return err
}

func (r *ResilientStore) AppendAttempt(ctx context.Context, attempt domain.Attempt) error {
	_, err := r.execute(ctx, "append_attempt", func(ctx context.Context) (records, error) {
		return nil, r.store.AppendAttempt(ctx, attempt)
	})
	return err
}

func (r *ResilientStore) ClearProgress(ctx context.Context, userID string, group *domain.LevelGroup) error {
	_, err := r.execute(ctx, "clear_progress", func(ctx context.Context) (records, error) {
		return nil, r.store.ClearProgress(ctx, userID, group)
	})
	return err
}

func (r *ResilientStore) execute(ctx context.Context, op string, fn func(context.Context) (records, error)) (records, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	operation := fn
	if r.bulkhead != nil {
		operation = func(ctx context.Context) (records, error) {
			return r.bulkhead.Execute(ctx, fn)
		}
	}
	if r.retrier != nil {
		call := operation
		operation = func(ctx context.Context) (records, error) {
			return r.retrier.Do(ctx, call)
		}
	}

	var (
		out records
		err error
	)
	if r.circuitBreaker != nil {
		out, err = r.circuitBreaker.Execute(ctx, operation)
	} else {
		out, err = operation(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrRemoteUnavailable, op, err)
	}
	return out, nil
}

// isRetryable rejects failures a retry cannot fix.
func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled),
		errors.Is(err, domain.ErrInvalidUserID),
		errors.Is(err, domain.ErrInvalidInput):
		return false
	default:
		return true
	}
}

// Ensure ResilientStore implements RemoteStore
var _ RemoteStore = (*ResilientStore)(nil)
