package resilience

import (
	"context"
	"errors"

	"github.com/voxterra/maitred/pkg/provider/tts"
	"github.com/voxterra/maitred/pkg/types"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple synthesis backends. Each backend has its own circuit breaker.
// Only the initial stream setup is covered by failover; once a stream is
// established, mid-stream errors are the caller's responsibility.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// SynthesizeStream opens an audio stream for text against the first
// healthy provider.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text string, profile types.VoiceProfile) (<-chan []byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, profile)
	})
}

// Close releases every registered backend, joining any errors.
func (f *TTSFallback) Close() error {
	var errs []error
	for _, p := range f.group.All() {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
