// Package circuitbreaker guards calls to an unreliable dependency, such as a
// plugin endpoint, by failing fast after repeated errors.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	Closed   State = iota // calls pass through
	Open                  // calls are rejected until the reset timeout elapses
	HalfOpen              // a single probe call is in flight
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// OnStateChange registers fn to be called, outside the lock, on every
// transition.
func OnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// Breaker is a consecutive-failure circuit breaker. While half-open it admits
// exactly one probe; other callers are rejected until the probe finishes.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time
	onChange     func(name string, from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// New creates a Breaker that opens after maxFailures consecutive errors and
// admits a probe once resetTimeout has passed.
func New(name string, maxFailures int, resetTimeout time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		name:         name,
		maxFailures:  max(maxFailures, 1),
		resetTimeout: resetTimeout,
		now:          time.Now,
		state:        Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the name the breaker was created with.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = HalfOpen
	case HalfOpen:
		b.mu.Unlock()
		return ErrCircuitOpen
	}
	to := b.state
	b.mu.Unlock()

	b.changed(from, to)
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	from := b.state
	if err != nil {
		b.failures++
		if b.state == HalfOpen || b.failures >= b.maxFailures {
			b.state = Open
			b.openedAt = b.now()
		}
	} else {
		b.failures = 0
		b.state = Closed
	}
	to := b.state
	b.mu.Unlock()

	b.changed(from, to)
}

func (b *Breaker) changed(from, to State) {
	if from != to && b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Set holds one Breaker per key, created on first use.
type Set struct {
	mu           sync.Mutex
	breakers     map[string]*Breaker
	maxFailures  int
	resetTimeout time.Duration
	opts         []Option
}

// NewSet creates an empty Set whose breakers share the given settings.
func NewSet(maxFailures int, resetTimeout time.Duration, opts ...Option) *Set {
	return &Set{
		breakers:     make(map[string]*Breaker),
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		opts:         opts,
	}
}

// Get returns the breaker for key, creating it if needed.
func (s *Set) Get(key string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[key]
	if !ok {
		b = New(key, s.maxFailures, s.resetTimeout, s.opts...)
		s.breakers[key] = b
	}
	return b
}
