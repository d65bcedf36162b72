package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	pgx "github.com/jackc/pgx/v4"

	"github.com/AlibekovAA/worktime/backend/internal/common/clock"
	commonerrors "github.com/AlibekovAA/worktime/backend/internal/common/errors"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
	"github.com/AlibekovAA/worktime/backend/internal/observability/metrics"
)

type CircuitBreakerInterface interface {
	Call(ctx context.Context, fn func(context.Context) error) error
	IsOpen() bool
}

// CircuitBreaker bounds every store call with a timeout and stops calling the
// store after Threshold consecutive failures until ResetAfter has elapsed.
type CircuitBreaker struct {
	failures    atomic.Int32
	lastFailure atomic.Value
	threshold   int32
	timeout     time.Duration
	resetAfter  time.Duration
	name        string
	clock       clock.Clock
	log         *logger.Logger
}

type CircuitBreakerConfig struct {
	Threshold  int32
	Timeout    time.Duration
	ResetAfter time.Duration
	Name       string
	Clock      clock.Clock
	Logger     *logger.Logger
}

func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	clk := config.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	cb := &CircuitBreaker{
		threshold:  config.Threshold,
		timeout:    config.Timeout,
		resetAfter: config.ResetAfter,
		name:       config.Name,
		clock:      clk,
		log:        config.Logger,
	}
	cb.lastFailure.Store(time.Time{})
	return cb
}

func (cb *CircuitBreaker) IsOpen() bool {
	if cb.threshold <= 0 || cb.failures.Load() < cb.threshold {
		cb.setState(0)
		return false
	}

	lastFailure := cb.lastFailure.Load().(time.Time)
	if lastFailure.IsZero() {
		cb.setState(0)
		return false
	}

	if cb.clock.Since(lastFailure) > cb.resetAfter {
		cb.reset()
		cb.setState(0)
		return false
	}

	cb.setState(1)
	return true
}

func (cb *CircuitBreaker) setState(state float64) {
	if cb.name != "" {
		metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(state)
	}
}

func (cb *CircuitBreaker) recordFailure(err error) {
	failures := cb.failures.Add(1)
	cb.lastFailure.Store(cb.clock.Now())
	if cb.name != "" {
		metrics.CircuitBreakerFailures.WithLabelValues(cb.name).Inc()
	}
	if cb.log == nil {
		return
	}
	if failures == cb.threshold {
		cb.log.Criticalf("circuit breaker [%s]: opened after %d failures: %v", cb.name, failures, err)
		return
	}
	cb.log.Warnf("circuit breaker [%s]: failure recorded: %v", cb.name, err)
}

func (cb *CircuitBreaker) reset() {
	cb.failures.Store(0)
	cb.lastFailure.Store(time.Time{})
}

// Call runs fn under the store timeout unless the circuit is open. A deadline
// surfaces as ErrStoreTimeout with the original error as its cause.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if cb.IsOpen() {
		if cb.log != nil {
			cb.log.Warnf("circuit breaker [%s]: circuit is open, rejecting call", cb.name)
		}
		return commonerrors.ErrCircuitOpen
	}

	callCtx := ctx
	if cb.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cb.timeout)
		defer cancel()
	}

	err := fn(callCtx)
	if err == nil {
		cb.reset()
		return nil
	}

	if isFailure(err) {
		cb.recordFailure(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return commonerrors.ErrStoreTimeout.WithCause(err)
	}
	return err
}

// isFailure reports whether err says something about store health. Expected
// outcomes such as a missing row or a caller that went away do not count.
func isFailure(err error) bool {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case commonerrors.IsDomainError(err):
		return false
	default:
		return true
	}
}
