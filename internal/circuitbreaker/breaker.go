// Package circuitbreaker guards store backends against repeated failures.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	Closed   State = iota // requests pass through
	Open                  // requests are rejected immediately
	HalfOpen              // one trial request is allowed through
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Option configures a Breaker.
type Option func(*Breaker)

// WithIgnoredErrors makes errors matching any of errs (via errors.Is) pass
// through without counting as failures. Use it for outcomes that say
// nothing about backend health, such as a missing record.
func WithIgnoredErrors(errs ...error) Option {
	return func(b *Breaker) {
		b.ignored = append(b.ignored, errs...)
	}
}

// WithStateChange registers fn to be called, outside the lock, whenever
// the breaker changes state.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	maxFailures     int
	resetTimeout    time.Duration
	lastFailureTime time.Time

	ignored       []error
	onStateChange func(from, to State)
}

// New creates a Breaker that opens after maxFailures consecutive errors
// and attempts recovery after resetTimeout.
func New(maxFailures int, resetTimeout time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		state:        Closed,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn through the circuit breaker. If the circuit is open,
// ErrCircuitOpen is returned without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	from := b.state
	if b.state == Open {
		if time.Since(b.lastFailureTime) <= b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = HalfOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	switch {
	case err == nil:
		b.failures = 0
		b.state = Closed
	case b.isIgnored(err):
		if b.state == HalfOpen {
			b.state = Closed
			b.failures = 0
		}
	default:
		b.failures++
		b.lastFailureTime = time.Now()
		if b.failures >= b.maxFailures || b.state == HalfOpen {
			b.state = Open
		}
	}
	to := b.state
	b.mu.Unlock()

	if from != to && b.onStateChange != nil {
		b.onStateChange(from, to)
	}
	return err
}

func (b *Breaker) isIgnored(err error) bool {
	for _, target := range b.ignored {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// GetState returns the current state of the breaker.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
