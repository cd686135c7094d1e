// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to verify the texts the session controller
// speaks and to feed controlled audio without a live backend. All fields
// are safe to set before calling any method; mutating them during a
// concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/voxterra/maitred/pkg/provider/tts"
	"github.com/voxterra/maitred/pkg/types"
)

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records a single invocation of SynthesizeStream.
type SynthesizeCall struct {
	// Ctx is the context passed to SynthesizeStream.
	Ctx context.Context
	// Text is the reply passed to SynthesizeStream.
	Text string
	// Profile is the voice profile passed to SynthesizeStream.
	Profile types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
// Zero values for response fields cause methods to return an immediately
// closed channel and nil errors. Set Err to inject an error.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Chunks is the sequence of PCM chunks emitted on the channel
	// returned by SynthesizeStream. All chunks are sent before the
	// channel is closed.
	Chunks [][]byte

	// Err, if non-nil, is returned as the error from SynthesizeStream.
	Err error

	// --- Call records (read after test) ---

	// SynthesizeCalls records every invocation of SynthesizeStream in order.
	SynthesizeCalls []SynthesizeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SynthesizeStream records the call and returns a channel emitting Chunks.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, profile types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Profile: profile})
	if p.Err != nil {
		err := p.Err
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.Chunks))
	copy(chunks, p.Chunks)
	p.mu.Unlock()

	ch := make(chan []byte, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close records the call and returns nil.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return nil
}

// SpokenTexts returns the texts passed to SynthesizeStream so far.
func (p *Provider) SpokenTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Text
	}
	return out
}
