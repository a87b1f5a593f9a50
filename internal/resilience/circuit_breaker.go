// Package resilience protects calls to remote evaluator endpoints (and any
// other flaky dependency) against cascading failure, and caches the
// recommendations those calls produce so repeat requests for an unchanged
// portfolio don't re-run the whole search. It has no dependency on the
// scoring or planning packages it protects; every hook into caller-specific
// behaviour (what counts as a failure, how to recompute a miss) is passed in
// by the caller.
package resilience

import (
	"sync"
	"time"
)

// CircuitState is one of the three states of the breaker state machine.
type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half_open"
)

// CircuitBreakerConfig tunes the breaker. Zero-value fields are replaced by
// NewCircuitBreaker with the same defaults as the grpc_helpers breaker this
// is ported from: 5 failures to open, 2 successes to close, 60s cooldown.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultCircuitBreakerConfig returns the breaker's default tuning.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

// ErrCircuitOpen is returned by Call when the breaker is OPEN (or HALF_OPEN
// with a probe already in flight) and rejects the call without running it.
type ErrCircuitOpen struct{ State CircuitState }

func (e *ErrCircuitOpen) Error() string {
	return "circuit breaker is " + string(e.State)
}

// CircuitBreaker guards a single dependency (e.g. one evaluator endpoint)
// through the CLOSED / OPEN / HALF_OPEN state machine: requests pass through
// normally while CLOSED, are rejected immediately once FailureThreshold
// consecutive failures open the circuit, and after Timeout a single probe
// request is allowed through in HALF_OPEN to decide whether to close again
// or reopen.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu                     sync.Mutex
	state                  CircuitState
	failureCount           int
	successCount           int
	lastFailureTime        time.Time
	halfOpenCallInProgress bool
}

// NewCircuitBreaker creates a breaker in the CLOSED state. A zero Config
// falls back to DefaultCircuitBreakerConfig.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Call executes fn under the breaker's protection. If the breaker is OPEN
// and the cooldown hasn't elapsed, fn is never invoked and ErrCircuitOpen is
// returned. Only one probe call is allowed through at a time while
// HALF_OPEN; concurrent callers during a probe also get ErrCircuitOpen.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailure()
		cb.halfOpenCallInProgress = false
		return err
	}
	cb.onSuccess()
	cb.halfOpenCallInProgress = false
	return nil
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.shouldAttemptReset() {
			cb.state = StateHalfOpen
			cb.successCount = 0
			cb.halfOpenCallInProgress = false
		} else {
			return &ErrCircuitOpen{State: StateOpen}
		}
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenCallInProgress {
			return &ErrCircuitOpen{State: StateHalfOpen}
		}
		cb.halfOpenCallInProgress = true
	}

	return nil
}

// onSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) onSuccess() {
	cb.failureCount = 0

	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.successCount = 0
		}
	}
}

// onFailure must be called with cb.mu held.
func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
	} else if cb.failureCount >= cb.config.FailureThreshold {
		cb.state = StateOpen
	}
}

// shouldAttemptReset must be called with cb.mu held.
func (cb *CircuitBreaker) shouldAttemptReset() bool {
	if cb.lastFailureTime.IsZero() {
		return true
	}
	return time.Since(cb.lastFailureTime) >= cb.config.Timeout
}

// Reset forces the breaker back to CLOSED, clearing counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastFailureTime = time.Time{}
}

// Registry manages one CircuitBreaker per named dependency (e.g. per
// evaluator endpoint), so the global beam coordinator can dispatch across a
// pool of endpoints without wiring each one up individually.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates an empty circuit breaker registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*CircuitBreaker)}
}

// GetOrCreate returns the named breaker, creating it with config on first
// use. Subsequent calls for the same name ignore config and return the
// existing breaker.
func (r *Registry) GetOrCreate(name string, config CircuitBreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewCircuitBreaker(config)
	r.breakers[name] = b
	return b
}

// Get returns the named breaker, or nil if it has never been created.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breakers[name]
}

// AllStates returns a snapshot of every registered breaker's current state,
// keyed by name, for health/metrics reporting.
func (r *Registry) AllStates() map[string]CircuitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make(map[string]CircuitState, len(r.breakers))
	for name, b := range r.breakers {
		states[name] = b.State()
	}
	return states
}
