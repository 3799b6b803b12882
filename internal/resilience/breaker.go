// Package resilience provides a per-component circuit breaker with
// exponential backoff. Component ids are arbitrary strings (a venue, or
// venue+instrument); the breaker has no idea what a failure means
// semantically, callers decide what to record.
package resilience

import (
	"math"
	"sync"
	"time"
)

// State is the circuit state for a single component.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds the breaker tunables. All of them come from configuration;
// nothing is hardcoded.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before a single
	// probe call is permitted.
	RecoveryTimeout time.Duration
	// BackoffBase is the base of the exponential backoff delay
	// (base^failures, capped at MaxBackoff).
	BackoffBase float64
	// MaxBackoff caps the computed backoff delay.
	MaxBackoff time.Duration
}

type componentState struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Breaker tracks circuit state per component id. It is safe for concurrent
// use by the streaming tasks and the connection manager.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	components map[string]*componentState
}

// New creates a Breaker with the given config. Zero or negative config values
// fall back to conservative defaults.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.BackoffBase <= 1 {
		cfg.BackoffBase = 2
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	return &Breaker{
		cfg:        cfg,
		now:        time.Now,
		components: make(map[string]*componentState),
	}
}

func (b *Breaker) get(id string) *componentState {
	cs, ok := b.components[id]
	if !ok {
		cs = &componentState{state: StateClosed}
		b.components[id] = cs
	}
	return cs
}

// IsOpen reports whether calls to the component should be suspended. Once the
// recovery timeout has elapsed since the last failure the circuit moves to
// half-open and IsOpen returns false, permitting a single probe; the circuit
// only closes again on an explicit RecordSuccess. Time alone never resets the
// failure count.
func (b *Breaker) IsOpen(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cs := b.get(id)
	if cs.state == StateOpen && b.now().Sub(cs.lastFailure) > b.cfg.RecoveryTimeout {
		cs.state = StateHalfOpen
	}
	return cs.state == StateOpen
}

// RecordFailure counts a failure against the component, opening the circuit
// when the consecutive-failure threshold is reached. A failure during a
// half-open probe re-opens the circuit and restarts the recovery timer.
func (b *Breaker) RecordFailure(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cs := b.get(id)
	cs.failures++
	cs.lastFailure = b.now()
	if cs.state == StateHalfOpen || cs.failures >= b.cfg.FailureThreshold {
		cs.state = StateOpen
	}
}

// RecordSuccess closes the circuit and resets the failure count. This is the
// only way the count returns to zero.
func (b *Breaker) RecordSuccess(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cs := b.get(id)
	cs.state = StateClosed
	cs.failures = 0
	cs.lastFailure = time.Time{}
}

// BackoffDelay returns how long the caller must wait before retrying the
// component after a failure: base^failures, capped at MaxBackoff.
func (b *Breaker) BackoffDelay(id string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	cs := b.get(id)
	if cs.failures == 0 {
		return 0
	}
	secs := math.Pow(b.cfg.BackoffBase, float64(cs.failures))
	d := time.Duration(secs * float64(time.Second))
	if d > b.cfg.MaxBackoff || d < 0 {
		d = b.cfg.MaxBackoff
	}
	return d
}

// StateOf returns the component's current state, applying the open →
// half-open transition first so callers observe the same view IsOpen acts on.
func (b *Breaker) StateOf(id string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	cs := b.get(id)
	if cs.state == StateOpen && b.now().Sub(cs.lastFailure) > b.cfg.RecoveryTimeout {
		cs.state = StateHalfOpen
	}
	return cs.state
}

// Failures returns the current consecutive-failure count for a component.
func (b *Breaker) Failures(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(id).failures
}
