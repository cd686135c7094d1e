// Package resilience keeps the speech stack answering while individual
// providers misbehave. A [CircuitBreaker] guards one STT, LLM or TTS
// backend: after a streak of failures the backend is taken out of
// rotation for a cooldown period, then probed before it is trusted
// again. [FallbackGroup] chains several backends of the same kind so a
// tripped primary is bypassed in favour of a healthy fallback.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the guarded
// backend is out of rotation and its cooldown has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: backend circuit open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call to the backend.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen]; the backend is out of
	// rotation until the cooldown elapses.
	StateOpen

	// StateHalfOpen lets a small budget of probe calls through to decide
	// whether the backend has recovered.
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

// CircuitBreakerConfig tunes one backend's breaker.
type CircuitBreakerConfig struct {
	// Name labels the guarded backend in log output.
	Name string

	// TripThreshold is the failure streak that takes the backend out of
	// rotation. Default: 5.
	TripThreshold int

	// Cooldown is how long the backend stays out of rotation before it is
	// probed again. Default: 30s.
	Cooldown time.Duration

	// ProbeBudget is how many half-open probe calls may run before the
	// breaker decides whether the backend has recovered. Default: 3.
	ProbeBudget int
}

// CircuitBreaker guards a single speech backend with the three-state
// breaker pattern. Safe for concurrent use.
type CircuitBreaker struct {
	name          string
	tripThreshold int
	cooldown      time.Duration
	probeBudget   int

	mu         sync.Mutex
	state      State
	failStreak int
	lastFail   time.Time
	probesUsed int
	probeFails int
}

// NewCircuitBreaker builds a breaker, filling zero config fields with
// defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.TripThreshold <= 0 {
		cfg.TripThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		tripThreshold: cfg.TripThreshold,
		cooldown:      cfg.Cooldown,
		probeBudget:   cfg.ProbeBudget,
		state:         StateClosed,
	}
}

// Execute runs fn when the backend is in rotation. Out of rotation it
// returns [ErrCircuitOpen] without calling fn; once the cooldown passes a
// limited number of probes are let through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFail) < cb.cooldown {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probesUsed = 0
		cb.probeFails = 0
		slog.Info("probing backend after cooldown", "backend", cb.name)

	case StateHalfOpen:
		if cb.probesUsed >= cb.probeBudget {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	probing := cb.state == StateHalfOpen
	if probing {
		cb.probesUsed++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.noteFailure(probing)
	} else {
		cb.noteSuccess(probing)
	}
	return err
}

// noteFailure updates the streak and trips the breaker. Caller holds cb.mu.
func (cb *CircuitBreaker) noteFailure(probing bool) {
	cb.lastFail = time.Now()

	if probing {
		cb.probeFails++
		// One failed probe puts the backend straight back out of rotation.
		cb.state = StateOpen
		cb.failStreak = cb.tripThreshold
		slog.Warn("backend probe failed, staying out of rotation",
			"backend", cb.name)
		return
	}

	cb.failStreak++
	if cb.failStreak >= cb.tripThreshold {
		cb.state = StateOpen
		slog.Warn("backend taken out of rotation",
			"backend", cb.name,
			"failure_streak", cb.failStreak)
	}
}

// noteSuccess clears the streak, closing the breaker once enough probes
// have passed. Caller holds cb.mu.
func (cb *CircuitBreaker) noteSuccess(probing bool) {
	if probing {
		if cb.probesUsed-cb.probeFails >= cb.probeBudget {
			cb.state = StateClosed
			cb.failStreak = 0
			cb.probesUsed = 0
			cb.probeFails = 0
			slog.Info("backend back in rotation", "backend", cb.name)
		}
		return
	}
	cb.failStreak = 0
}

// State reports the breaker's mode. An open breaker whose cooldown has
// elapsed reads as [StateHalfOpen]; the stored transition happens on the
// next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFail) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the backend back into rotation, clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failStreak = 0
	cb.probesUsed = 0
	cb.probeFails = 0
	slog.Info("backend breaker reset", "backend", cb.name)
}
