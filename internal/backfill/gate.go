package backfill

import (
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrCapacityExceeded signals that an admission check rejected the attempt.
// It is a backpressure signal, not a task failure: callers route it to the
// requeue-without-penalty path.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// CapacityGate composes two independent admission checks evaluated before a
// task's orchestration runs: a token-bucket rate limiter capping calls per
// second to the external providers, and a bulkhead capping concurrently
// in-flight orchestration calls.
type CapacityGate struct {
	limiter  *rate.Limiter
	bulkhead *semaphore.Weighted
}

// NewCapacityGate creates a gate allowing ratePerSec provider calls with the
// given burst, and at most maxInFlight concurrent orchestrations
func NewCapacityGate(ratePerSec float64, burst, maxInFlight int) *CapacityGate {
	if burst < 1 {
		burst = 1
	}
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &CapacityGate{
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), burst),
		bulkhead: semaphore.NewWeighted(int64(maxInFlight)),
	}
}

// Acquire runs both admission checks without blocking. On success it returns
// a release function that must be called when the orchestration finishes; on
// rejection it returns an error wrapping ErrCapacityExceeded naming the check
// that refused.
func (g *CapacityGate) Acquire() (func(), error) {
	if !g.limiter.Allow() {
		return nil, fmt.Errorf("%w: rate limit", ErrCapacityExceeded)
	}
	if !g.bulkhead.TryAcquire(1) {
		return nil, fmt.Errorf("%w: bulkhead full", ErrCapacityExceeded)
	}
	return func() { g.bulkhead.Release(1) }, nil
}
