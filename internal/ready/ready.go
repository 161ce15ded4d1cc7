// Package ready decides when a freshly started service set may be used.
package ready

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultInitialInterval is the starting poll interval.
	DefaultInitialInterval = 500 * time.Millisecond

	// DefaultMaxInterval is the maximum poll interval after backoff.
	DefaultMaxInterval = 5 * time.Second

	// DefaultTimeout is the default maximum wait for readiness.
	DefaultTimeout = 2 * time.Minute
)

// ErrTerminal marks a check result that no amount of waiting will fix.
var ErrTerminal = errors.New("terminal readiness failure")

// Terminal wraps err so that Poll stops immediately.
func Terminal(err error) error {
	return fmt.Errorf("%w: %w", ErrTerminal, err)
}

// Checker performs a single readiness check. A nil error with ready false
// means "not yet"; an error wrapping ErrTerminal aborts the wait; any other
// error is logged and retried.
type Checker interface {
	CheckReady(ctx context.Context) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) (bool, error)

func (f CheckerFunc) CheckReady(ctx context.Context) (bool, error) { return f(ctx) }

// FixedDelay waits a fixed amount of time regardless of service state.
type FixedDelay struct {
	Duration time.Duration
}

// Wait sleeps for Duration or until ctx is done.
func (d FixedDelay) Wait(ctx context.Context) error {
	if d.Duration <= 0 {
		return nil
	}
	t := time.NewTimer(d.Duration)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll repeatedly runs Checker with exponential backoff until it reports
// ready, reports a terminal failure, or Timeout elapses.
type Poll struct {
	Checker         Checker
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var errNotReady = errors.New("not ready")

// Wait implements orchestrator.Waiter.
func (p Poll) Wait(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultInitialInterval
	}
	b.MaxInterval = p.MaxInterval
	if b.MaxInterval <= 0 {
		b.MaxInterval = DefaultMaxInterval
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = 0

	var lastErr error
	attempts := 0
	op := func() error {
		attempts++
		ok, err := p.Checker.CheckReady(ctx)
		switch {
		case err != nil && errors.Is(err, ErrTerminal):
			return backoff.Permanent(err)
		case err != nil:
			lastErr = err
			return err
		case !ok:
			lastErr = errNotReady
			return errNotReady
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		slog.DebugContext(ctx, "services not ready", "attempt", attempts, "error", err, "retry_in", next)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "services ready", "attempts", attempts)
		return nil
	case errors.Is(err, ErrTerminal):
		return err
	case ctx.Err() != nil && lastErr != nil:
		return fmt.Errorf("readiness check failed after %s (last error: %v): %w", timeout, lastErr, ctx.Err())
	default:
		return fmt.Errorf("readiness check failed: %w", err)
	}
}
