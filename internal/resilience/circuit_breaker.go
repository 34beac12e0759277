// Package resilience provides a sliding-window circuit breaker guarding
// outbound network calls (the HTTP data loader) from hammering a failing
// origin.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

var (
	stateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "imgloadd_circuit_breaker_state",
		Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open).",
	}, []string{"name"})
	tripCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imgloadd_circuit_breaker_trips_total",
		Help: "Number of times a circuit breaker tripped open.",
	}, []string{"name"})
)

type eventKind int

const (
	eventAttempt eventKind = iota
	eventSuccess
	eventTechFailure
)

type event struct {
	ts   time.Time
	kind eventKind
}

type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CircuitBreaker implements a sliding-window state machine to prevent
// cascading failures against one origin.
type CircuitBreaker struct {
	mu sync.Mutex

	name string

	state    State
	openedAt time.Time

	events []event
	window time.Duration

	threshold        int
	minAttempts      int
	successes        int
	successThreshold int
	resetTimeout     time.Duration

	clock         clock
	panicRecovery bool
}

type Option func(*CircuitBreaker)

func WithClock(c clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

func WithHalfOpenSuccessThreshold(n int) Option {
	return func(cb *CircuitBreaker) { cb.successThreshold = n }
}

func WithPanicRecovery(enabled bool) Option {
	return func(cb *CircuitBreaker) { cb.panicRecovery = enabled }
}

// NewCircuitBreaker creates a sliding-window circuit breaker. threshold is
// the number of technical failures within window (after minAttempts total
// attempts) that trips it open; resetTimeout is the cooldown before a
// half-open probe is allowed.
func NewCircuitBreaker(name string, threshold, minAttempts int, window, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if minAttempts <= 0 {
		minAttempts = 5
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}

	cb := &CircuitBreaker{
		name:             name,
		state:            StateClosed,
		threshold:        threshold,
		minAttempts:      minAttempts,
		window:           window,
		resetTimeout:     resetTimeout,
		successThreshold: 3,
		clock:            realClock{},
	}

	for _, opt := range opts {
		opt(cb)
	}

	stateGauge.WithLabelValues(cb.name).Set(float64(cb.state))
	return cb
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.AllowRequest() {
		return ErrCircuitOpen
	}
	cb.RecordAttempt()

	if cb.panicRecovery {
		defer func() {
			if r := recover(); r != nil {
				cb.RecordTechnicalFailure()
				panic(r)
			}
		}()
	}

	if err := fn(); err != nil {
		cb.RecordTechnicalFailure()
		return err
	}

	cb.RecordSuccess()
	return nil
}

// AllowRequest reports whether a request is currently permitted, advancing
// Open to HalfOpen once resetTimeout has elapsed.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.prune()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) >= cb.resetTimeout {
			cb.transitionInto(StateHalfOpen)
			return true
		}
		return false
	default: // half-open
		return true
	}
}

func (cb *CircuitBreaker) RecordAttempt() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.events = append(cb.events, event{ts: cb.clock.Now(), kind: eventAttempt})
	cb.prune()
	cb.evaluate()
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.events = append(cb.events, event{ts: cb.clock.Now(), kind: eventSuccess})
	cb.prune()

	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.transitionInto(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) RecordTechnicalFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.events = append(cb.events, event{ts: cb.clock.Now(), kind: eventTechFailure})
	cb.prune()

	if cb.state == StateHalfOpen {
		cb.transitionInto(StateOpen)
		return
	}
	cb.evaluate()
}

func (cb *CircuitBreaker) prune() {
	cutoff := cb.clock.Now().Add(-cb.window)
	kept := cb.events[:0]
	for _, e := range cb.events {
		if !e.ts.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	cb.events = kept
}

func (cb *CircuitBreaker) evaluate() {
	if cb.state != StateClosed {
		return
	}

	var attempts, failures int
	for _, e := range cb.events {
		switch e.kind {
		case eventAttempt:
			attempts++
		case eventTechFailure:
			failures++
		}
	}

	if attempts >= cb.minAttempts && failures >= cb.threshold {
		cb.transitionInto(StateOpen)
	}
}

func (cb *CircuitBreaker) transitionInto(s State) {
	if cb.state == s {
		return
	}
	cb.state = s
	switch s {
	case StateOpen:
		cb.openedAt = cb.clock.Now()
		tripCounter.WithLabelValues(cb.name).Inc()
	case StateHalfOpen:
		cb.successes = 0
	case StateClosed:
		cb.events = nil
	}
	stateGauge.WithLabelValues(cb.name).Set(float64(s))
}

// GetState returns the current state, for tests and diagnostics.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
