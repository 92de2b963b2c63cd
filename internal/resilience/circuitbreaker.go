// Package resilience provides the per-connection circuit breaker that
// gates reconnection/retry attempts.
package resilience

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// State mirrors the three circuit breaker states: closed, open, half-open.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

func fromGobreakerState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config holds the breaker's tunable thresholds.
type Config struct {
	FailureThreshold uint32        // F: consecutive failures before OPEN
	SuccessThreshold uint32        // S: consecutive successes in HALF_OPEN before CLOSED
	RecoveryTimeout  time.Duration // T: how long OPEN blocks before probing
}

// DefaultConfig returns the breaker's built-in thresholds (F=5, S=3, T=30s).
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, SuccessThreshold: 3, RecoveryTimeout: 30 * time.Second}
}

// CircuitBreaker is a per-connection failure gate built on
// github.com/sony/gobreaker's TwoStepCircuitBreaker, whose Allow()/done(bool)
// shape maps directly onto this type's CanAttemptConnection/RecordSuccess/
// RecordFailure contract (see DESIGN.md).
type CircuitBreaker struct {
	mu              sync.Mutex
	cfg             Config
	connectionID    string
	tcb             *gobreaker.TwoStepCircuitBreaker
	lastFailureTime time.Time
	pendingDone     func(bool)
	onStateChange   func(from, to State)
}

// New constructs a CircuitBreaker for connectionID with the given config.
func New(connectionID string, cfg Config) *CircuitBreaker {
	cb := &CircuitBreaker{cfg: cfg, connectionID: connectionID}
	cb.rebuild()
	return cb
}

// NewDefault constructs a CircuitBreaker with DefaultConfig.
func NewDefault(connectionID string) *CircuitBreaker {
	return New(connectionID, DefaultConfig())
}

// OnStateChange registers a callback invoked whenever the breaker
// transitions state. Must be set before the first CanAttemptConnection
// call to observe every transition.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

func (cb *CircuitBreaker) rebuild() {
	settings := gobreaker.Settings{
		Name:        cb.connectionID,
		MaxRequests: cb.cfg.SuccessThreshold,
		Timeout:     cb.cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cb.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cb.mu.Lock()
			cb2 := cb.onStateChange
			cb.mu.Unlock()
			if cb2 != nil {
				cb2(fromGobreakerState(from), fromGobreakerState(to))
			}
		},
	}
	cb.tcb = gobreaker.NewTwoStepCircuitBreaker(settings)
}

// CanAttemptConnection reports whether a new attempt may proceed right now
// and, if so, registers it as the in-flight attempt: the caller must
// follow up with exactly one of RecordSuccess/RecordFailure.
func (cb *CircuitBreaker) CanAttemptConnection() bool {
	done, err := cb.tcb.Allow()
	if err != nil {
		return false
	}
	cb.mu.Lock()
	cb.pendingDone = done
	cb.mu.Unlock()
	return true
}

// RecordSuccess completes the in-flight attempt as a success. If no
// CanAttemptConnection preceded it, it still accounts for the success via
// a fresh Allow() so external callers reporting out-of-band successes are
// not silently dropped.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	done := cb.pendingDone
	cb.pendingDone = nil
	cb.mu.Unlock()
	if done != nil {
		done(true)
		return
	}
	if d, err := cb.tcb.Allow(); err == nil {
		d(true)
	}
}

// RecordFailure completes the in-flight attempt as a failure and stamps
// lastFailureTime.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	done := cb.pendingDone
	cb.pendingDone = nil
	cb.lastFailureTime = time.Now().UTC()
	cb.mu.Unlock()
	if done != nil {
		done(false)
		return
	}
	if d, err := cb.tcb.Allow(); err == nil {
		d(false)
	}
}

// Reset forces the breaker back to CLOSED with zeroed counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.pendingDone = nil
	cb.lastFailureTime = time.Time{}
	cb.rebuild()
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	return fromGobreakerState(cb.tcb.State())
}

// FailureCount returns the current consecutive-failure count.
func (cb *CircuitBreaker) FailureCount() uint32 {
	return cb.tcb.Counts().ConsecutiveFailures
}

// LastFailureTime returns the timestamp of the most recent recorded
// failure (zero value if none yet).
func (cb *CircuitBreaker) LastFailureTime() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastFailureTime
}

// ConnectionID returns the id this breaker gates.
func (cb *CircuitBreaker) ConnectionID() string { return cb.connectionID }
