package adapter

import (
	"context"
	"time"
)

// Outcome is what the redeem flow reports back to the limiter after an attempt.
type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeSuccess
)

// Decision is the answer to a pre-check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // > 0 only when !Allowed
}

// RateLimiter throttles repeated invalid attempts per key. It is advisory: the
// durable code counters remain the authority on whether a code may be redeemed.
type RateLimiter interface {
	Check(ctx context.Context, key string) (Decision, error)
	Record(ctx context.Context, key string, outcome Outcome) error
}
