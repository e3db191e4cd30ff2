// Package ratelimit holds the process-local failed-attempt limiter.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"entitlement-service/internal/domain/ports/adapter"
	"entitlement-service/internal/pkg/clock"
)

// Policy is shared by the memory and redis limiters.
type Policy struct {
	MaxFailures int           // consecutive failures that trip a block
	Window      time.Duration // a gap longer than this since the last failure resets the streak
	Cooldown    time.Duration // how long a tripped key stays blocked
}

// WithDefaults fills zero fields with 5 failures, a 15m window and a 5m cooldown.
func (p Policy) WithDefaults() Policy {
	if p.MaxFailures <= 0 {
		p.MaxFailures = 5
	}
	if p.Window <= 0 {
		p.Window = 15 * time.Minute
	}
	if p.Cooldown <= 0 {
		p.Cooldown = 5 * time.Minute
	}
	return p
}

type state struct {
	failures     int
	lastAttempt  time.Time
	blockedUntil time.Time
}

// Memory is an in-process adapter.RateLimiter. State is lost on restart.
type Memory struct {
	mu     sync.Mutex
	policy Policy
	clock  clock.Clock
	keys   map[string]*state
}

var _ adapter.RateLimiter = (*Memory)(nil)

func NewMemory(p Policy, clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Memory{policy: p.WithDefaults(), clock: clk, keys: map[string]*state{}}
}

func (m *Memory) Check(_ context.Context, key string) (adapter.Decision, error) {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.keys[key]
	if !ok || !now.Before(st.blockedUntil) {
		return adapter.Decision{Allowed: true}, nil
	}
	return adapter.Decision{Allowed: false, RetryAfter: st.blockedUntil.Sub(now)}, nil
}

func (m *Memory) Record(_ context.Context, key string, outcome adapter.Outcome) error {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if outcome == adapter.OutcomeSuccess {
		delete(m.keys, key)
		return nil
	}

	st, ok := m.keys[key]
	if !ok {
		st = &state{}
		m.keys[key] = st
	}
	if now.Sub(st.lastAttempt) > m.policy.Window {
		st.failures = 0
	}
	st.failures++
	st.lastAttempt = now
	if st.failures >= m.policy.MaxFailures {
		st.blockedUntil = now.Add(m.policy.Cooldown)
		st.failures = 0
	}
	if len(m.keys) > 10000 {
		m.prune(now)
	}
	return nil
}

// prune drops keys that are neither blocked nor within a window of their last failure. Caller holds mu.
func (m *Memory) prune(now time.Time) {
	for k, st := range m.keys {
		if !now.Before(st.blockedUntil) && now.Sub(st.lastAttempt) > m.policy.Window {
			delete(m.keys, k)
		}
	}
}
