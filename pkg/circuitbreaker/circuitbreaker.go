// Package circuitbreaker stops calling a failing dependency for a cool-down
// period. The persona enrichment client runs behind one so a slow or broken
// generative backend never delays classification.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	// StateHalfOpen admits a single trial call after the cool-down.
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
	}
	return "unknown"
}

// ErrCircuitOpen rejects calls while the breaker is open or its trial call
// is still running.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Settings configures a Breaker.
type Settings struct {
	Name string
	// Threshold consecutive failures open the breaker.
	Threshold int
	Cooldown  time.Duration
	// Countable filters the errors that count as failures. Nil counts all.
	Countable     func(error) bool
	OnStateChange func(name string, from, to State)
}

// Breaker guards calls to one dependency.
type Breaker struct {
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// New creates a closed breaker. Threshold defaults to 5 and Cooldown to 30s.
func New(s Settings) *Breaker {
	if s.Threshold <= 0 {
		s.Threshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	return &Breaker{settings: s, now: time.Now}
}

// ForEnrichment opens after three failures for a minute. Caller
// cancellations never count.
func ForEnrichment(onStateChange func(name string, from, to State)) *Breaker {
	return New(Settings{
		Name:      "persona-enrichment",
		Threshold: 3,
		Cooldown:  time.Minute,
		Countable: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		OnStateChange: onStateChange,
	})
}

// Call runs fn through b.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}
	out, err := fn(ctx)
	b.record(err)
	return out, err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.settings.Cooldown {
			return ErrCircuitOpen
		}
		b.moveTo(StateHalfOpen)
		b.trial = true
	case StateHalfOpen:
		if b.trial {
			return ErrCircuitOpen
		}
		b.trial = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	if err == nil || (b.settings.Countable != nil && !b.settings.Countable(err)) {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.moveTo(StateClosed)
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.settings.Threshold {
		b.moveTo(StateOpen)
	}
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.settings.Name, from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the breaker name used in state-change callbacks.
func (b *Breaker) Name() string { return b.settings.Name }
