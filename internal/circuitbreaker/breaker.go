// Package circuitbreaker provides a defensive mechanism around the external
// yield protocol clients so that a failing protocol cannot stall treasury
// accounting with repeated slow or erroring calls.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, outbound calls are skipped
	StateHalfOpen              // Testing if the protocol has recovered
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker tracks consecutive failures of one external protocol. While
// open, Allow reports false and the caller skips the outbound call entirely;
// treasury accounting proceeds either way, so a skipped call is equivalent to
// an absorbed failure.
type CircuitBreaker struct {
	// Protocol name, used only for logging
	name string

	// Consecutive failures required to trip the circuit
	failureThreshold int

	// Duration before a half-open probe is allowed
	cooldown time.Duration

	// Number of successful calls in half-open state required to close
	successThreshold int

	mu           sync.RWMutex
	state        State
	failureCount int
	successCount int
	lastTrip     time.Time

	// Event callback for monitoring/alerting
	onTripCallback func(name, reason string)
}

// New creates a new CircuitBreaker for the named protocol
func New(name string, failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		successThreshold: 2,
		state:            StateClosed,
	}
}

// WithSuccessThreshold sets the number of successful calls needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	cb.successThreshold = threshold
	return cb
}

// WithTripCallback sets a callback function that is called when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(name, reason string)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// Allow reports whether an outbound call to the protocol should be attempted.
// An open circuit transitions to half-open once the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(cb.lastTrip) > cb.cooldown {
			cb.state = StateHalfOpen
			cb.successCount = 0
			logrus.Infof("Circuit breaker half-open for %s: testing recovery", cb.name)
			return true
		}
		return false
	}
	return true
}

// Success records a successful protocol call.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.Infof("Circuit breaker closed: %s has recovered", cb.name)
		}
	}
}

// Failure records a failed protocol call and trips the circuit when the
// consecutive-failure threshold is reached. A failure in half-open state
// trips immediately.
func (cb *CircuitBreaker) Failure(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.trip(reason)
		return
	}

	cb.failureCount++
	if cb.failureCount >= cb.failureThreshold {
		cb.trip(reason)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	logrus.Infof("Circuit breaker for %s manually reset to closed state", cb.name)
}

// trip sets the circuit to open. Caller must hold cb.mu.
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTrip = time.Now()
	cb.failureCount = 0
	logrus.Warnf("Circuit breaker tripped for %s: %s", cb.name, reason)

	if cb.onTripCallback != nil {
		go cb.onTripCallback(cb.name, reason)
	}
}
