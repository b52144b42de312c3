package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State is the current position of the breaker.
type State int

const (
	// Closed lets requests through and counts consecutive failures.
	Closed State = iota
	// Open rejects requests immediately until the cooldown elapses.
	Open
	// HalfOpen lets trial requests through to probe recovery.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Execute while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker shields a downstream dependency from sustained failure. After
// failureThreshold consecutive failures it opens and rejects calls for the
// cooldown period, then lets trial calls through until successThreshold
// consecutive successes close it again. Safe for concurrent use.
type Breaker struct {
	failureThreshold int
	successThreshold int
	cooldown         time.Duration

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// New creates a closed Breaker.
func New(failureThreshold, successThreshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		state:            Closed,
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Execute runs fn unless the breaker is open, recording the outcome.
// ErrOpen is returned without calling fn when the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	b.refresh()
	if b.state == Open {
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// refresh moves an open breaker to half-open once the cooldown has elapsed.
// Caller must hold mu.
func (b *Breaker) refresh() {
	if b.state == Open && time.Since(b.openedAt) >= b.cooldown {
		b.state = HalfOpen
		b.successes = 0
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = Closed
			b.failures = 0
		}
	}
}

func (b *Breaker) onFailure() {
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.open()
		}
	case HalfOpen:
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = Open
	b.openedAt = time.Now()
	b.failures = 0
	b.successes = 0
}
