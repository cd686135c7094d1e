package resilience

import (
	"context"
	"errors"

	"github.com/voxterra/maitred/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across
// multiple completion backends. Each backend has its own circuit breaker;
// when the primary fails or its breaker is open, the next healthy
// fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional completion provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns
// its reply text.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (string, error) {
		return p.Complete(ctx, req)
	})
}

// Close releases every registered backend, joining any errors.
func (f *LLMFallback) Close() error {
	var errs []error
	for _, p := range f.group.All() {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
