package clients

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"arc-framework/pipestack/internal/orchestrator"
)

// NewCircuitBreaker returns a gobreaker configured to trip after 3 consecutive
// failures and reset after 30 seconds in the open state.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// guarded runs check through cb and converts the outcome into a ProbeResult.
// A nil cb runs check directly.
func guarded(name string, cb *gobreaker.CircuitBreaker, check func() error) orchestrator.ProbeResult {
	start := time.Now()

	var err error
	if cb != nil {
		_, err = cb.Execute(func() (any, error) { return nil, check() })
	} else {
		err = check()
	}

	result := orchestrator.ProbeResult{
		Name:      name,
		OK:        err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			result.Error = "circuit open"
		}
	}
	return result
}
