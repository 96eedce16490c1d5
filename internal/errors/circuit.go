package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling through while a breaker is
// open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is the position of a CircuitBreaker.
type BreakerState int

const (
	// BreakerClosed lets every call through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown has passed.
	BreakerOpen
	// BreakerHalfOpen lets a single trial call through after the cooldown.
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

// MarshalText renders the state by name in JSON output.
func (s BreakerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BreakerStatus is a snapshot of one breaker for status reports.
type BreakerStatus struct {
	Name     string       `json:"name"`
	State    BreakerState `json:"state"`
	Failures int          `json:"consecutive_failures"`
	// LastError is the message of the most recent failure since the last
	// success.
	LastError   string    `json:"last_error,omitempty"`
	LastFailure time.Time `json:"last_failure,omitzero"`
}

// CircuitBreaker stops calling a downstream index after consecutive
// failures. The fan-out coordinator keeps one per target, so an index that
// is down is skipped instead of failing every file of a bulk import.
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastErr     error
	lastFailure time.Time
	trial       bool // a half-open trial call is in flight
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets how many consecutive failures open the breaker.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.maxFailures = n
		}
	}
}

// WithResetTimeout sets how long an open breaker waits before a trial call.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.cooldown = d
	}
}

// NewCircuitBreaker returns a closed breaker. Defaults: 5 failures, 30s
// cooldown.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:        name,
		maxFailures: 5,
		cooldown:    30 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// stateLocked reports the effective state; an open breaker past its
// cooldown is half-open.
func (cb *CircuitBreaker) stateLocked() BreakerState {
	if cb.state == BreakerOpen && cb.now().Sub(cb.lastFailure) >= cb.cooldown {
		return BreakerHalfOpen
	}
	return cb.state
}

// Status returns a snapshot of the breaker.
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	st := BreakerStatus{
		Name:        cb.name,
		State:       cb.stateLocked(),
		Failures:    cb.failures,
		LastFailure: cb.lastFailure,
	}
	if cb.lastErr != nil {
		st.LastError = cb.lastErr.Error()
	}
	return st
}

// Execute calls fn unless the breaker is open. While half-open only one
// trial call runs; concurrent calls get ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, ok := cb.admit()
	if !ok {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err, trial)
	return err
}

func (cb *CircuitBreaker) admit() (trial, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.stateLocked() {
	case BreakerClosed:
		return false, true
	case BreakerHalfOpen:
		if cb.trial {
			return false, false
		}
		cb.trial = true
		return true, true
	default:
		return false, false
	}
}

func (cb *CircuitBreaker) record(err error, trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if trial {
		cb.trial = false
	}
	if err == nil {
		cb.state = BreakerClosed
		cb.failures = 0
		cb.lastErr = nil
		return
	}
	cb.failures++
	cb.lastErr = err
	cb.lastFailure = cb.now()
	if trial || cb.failures >= cb.maxFailures {
		cb.state = BreakerOpen
	}
}
