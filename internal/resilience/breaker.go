// Package resilience provides the failure-handling primitives the engine
// leans on when a provider misbehaves: a three-state circuit breaker,
// retry with exponential backoff, and provider failover groups.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Execute] while the breaker is open
// and the cooldown has not yet elapsed.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards all calls.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls with [ErrBreakerOpen] until the cooldown
	// elapses.
	BreakerOpen

	// BreakerHalfOpen lets a limited number of probe calls through to test
	// whether the backend recovered.
	BreakerHalfOpen
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// Threshold is the number of consecutive failures before the breaker
	// opens. Default: 3.
	Threshold int

	// Cooldown is how long the breaker stays open before probing again.
	// Default: 20s.
	Cooldown time.Duration

	// Probes is how many half-open calls must succeed before the breaker
	// closes. Default: 2.
	Probes int
}

// Breaker is a classic three-state circuit breaker
// (closed, open, half-open).
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	probes    int

	mu         sync.Mutex
	state      BreakerState
	failures   int
	openedAt   time.Time
	probeCalls int
	probeOK    int
}

// NewBreaker creates a [Breaker]. Zero-value config fields get defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 20 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 2
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		probes:    cfg.Probes,
	}
}

// Execute runs fn if the breaker allows it, and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	probing, allowed := b.allow()
	if !allowed {
		return ErrBreakerOpen
	}

	err := fn()
	b.record(err == nil, probing)
	return err
}

// allow decides whether a call may proceed, transitioning open breakers to
// half-open after the cooldown. It reports whether the call counts as a
// half-open probe.
func (b *Breaker) allow() (probing, allowed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return false, false
		}
		b.state = BreakerHalfOpen
		b.probeCalls = 0
		b.probeOK = 0
		slog.Info("circuit breaker half-open", "name", b.name)
		fallthrough

	case BreakerHalfOpen:
		if b.probeCalls >= b.probes {
			return false, false
		}
		b.probeCalls++
		return true, true
	}
	return false, true
}

// record updates breaker state after a call completes.
func (b *Breaker) record(ok, probing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probing {
		if !ok {
			b.state = BreakerOpen
			b.openedAt = time.Now()
			slog.Warn("circuit breaker re-opened", "name", b.name)
			return
		}
		b.probeOK++
		if b.probeOK >= b.probes {
			b.state = BreakerClosed
			b.failures = 0
			slog.Info("circuit breaker closed", "name", b.name)
		}
		return
	}

	if ok {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold && b.state == BreakerClosed {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		slog.Warn("circuit breaker opened",
			"name", b.name, "consecutive_failures", b.failures)
	}
}

// State returns the breaker's current state. An open breaker whose cooldown
// has elapsed reports half-open; the actual transition happens on the next
// Execute.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failures = 0
	b.probeCalls = 0
	b.probeOK = 0
}
