// Package circuitbreaker keeps a block list of providers that keep failing.
//
// A provider opens after threshold consecutive failures and stays blocked
// for the cooldown. The first call after the cooldown is a half-open probe;
// its outcome closes or reopens the circuit.
package circuitbreaker

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type keyState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

type CircuitBreaker struct {
	mu        sync.Mutex
	states    map[string]*keyState
	threshold int
	cooldown  time.Duration
	clock     func() time.Time
}

func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		states:    make(map[string]*keyState),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (cb *CircuitBreaker) WithClock(clock func() time.Time) *CircuitBreaker {
	cb.clock = clock
	return cb
}

// Allow returns ErrCircuitOpen while key is blocked.
func (cb *CircuitBreaker) Allow(key string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[key]
	if !ok {
		return nil
	}

	switch s.state {
	case stateOpen:
		if cb.clock().Sub(s.openedAt) >= cb.cooldown {
			s.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[key]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[key]
	if !ok {
		s = &keyState{}
		cb.states[key] = s
	}

	s.consecutiveFailures++
	// A failed probe reopens immediately.
	if s.state == stateHalfOpen || s.consecutiveFailures >= cb.threshold {
		s.state = stateOpen
		s.openedAt = cb.clock()
	}
}

// State reports "closed", "open" or "half_open" for key.
func (cb *CircuitBreaker) State(key string) string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[key]
	if !ok {
		return stateClosed.String()
	}
	return s.state.String()
}

// Blocked lists keys whose circuit is not closed, sorted.
func (cb *CircuitBreaker) Blocked() []string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var keys []string
	for k, s := range cb.states {
		if s.state != stateClosed {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
