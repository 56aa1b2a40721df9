package router

import (
	"sync"
	"time"
)

// BreakerState is the state of a venue circuit breaker.
type BreakerState uint8

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

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

// BreakerConfig controls when a venue is taken out of rotation.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker. Zero disables
	// the breaker.
	FailureThreshold int           `json:"failure_threshold"`
	CoolDown         time.Duration `json:"cool_down"`
}

// Breaker counts consecutive venue failures. After the cool-down one trial order
// is let through; its outcome closes or reopens the breaker.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 5 * time.Second
	}
	return &Breaker{cfg: cfg}
}

// Allow reports whether a request may go to the venue.
func (b *Breaker) Allow(now time.Time) bool {
	if b.cfg.FailureThreshold <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		if now.Sub(b.openedAt) < b.cfg.CoolDown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return true
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
	b.mu.Unlock()
}

// RecordFailure counts a failure and reports whether the breaker opened.
func (b *Breaker) RecordFailure(now time.Time) bool {
	if b.cfg.FailureThreshold <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.probing = false
	if b.state == BreakerHalfOpen || (b.state == BreakerClosed && b.failures >= b.cfg.FailureThreshold) {
		b.state = BreakerOpen
		b.openedAt = now
		return true
	}
	return false
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.RecordSuccess()
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
