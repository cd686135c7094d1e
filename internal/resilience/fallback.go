package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend in a [FallbackGroup] failed
// or is out of rotation.
var ErrAllFailed = errors.New("resilience: every backend failed")

// FallbackConfig configures the breaker created for each backend in a
// [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// backend pairs a provider value with its dedicated circuit breaker.
type backend[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup chains a primary and zero or more fallback instances of
// the same provider type. When the primary fails, or its breaker has taken
// it out of rotation, the next healthy fallback is tried in registration
// order.
//
// FallbackGroup is safe for concurrent use once assembled; AddFallback is
// not safe to call concurrently with ExecuteWithResult.
type FallbackGroup[T any] struct {
	backends []backend[T]
	cfg      FallbackConfig
}

// NewFallbackGroup creates a group with primary as the preferred backend.
// Fallbacks are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends a fallback backend, tried after the primary in the
// order added.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.backends = append(fg.backends, backend[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// All returns every registered backend value, primary first. Used for
// lifecycle operations that must reach every backend, such as Close.
func (fg *FallbackGroup[T]) All() []T {
	out := make([]T, len(fg.backends))
	for i := range fg.backends {
		out[i] = fg.backends[i].value
	}
	return out
}

// ExecuteWithResult tries fn against each backend in order until one
// succeeds, skipping backends whose breaker is open. It returns
// [ErrAllFailed] wrapped with the last error when none succeed. This is a
// package-level function because Go does not support method-level type
// parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.backends {
		b := &fg.backends[i]
		var result R
		err := b.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(b.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend out of rotation", "backend", b.name)
		} else {
			slog.Warn("backend failed, trying next",
				"backend", b.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
