// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to verify that the session pipeline submits
// the right utterance audio and to feed controlled transcripts without a
// live STT backend. All fields are safe to set before calling any method;
// mutating them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Transcripts: []types.Transcript{{Text: "two garlic naan"}},
//	}
//	tr, err := p.Transcribe(ctx, pcm, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/voxterra/maitred/pkg/provider/stt"
	"github.com/voxterra/maitred/pkg/types"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// PCM is the audio payload passed to Transcribe.
	PCM []byte
	// Cfg is the configuration passed to Transcribe.
	Cfg stt.Config
}

// Provider is a mock implementation of stt.Provider.
// Zero values for response fields cause methods to return zero values and
// nil errors. Set Err to inject an error.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Transcripts is the sequence of results returned by successive
	// Transcribe calls. The last entry repeats once the sequence is
	// exhausted.
	Transcripts []types.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// --- Call records (read after test) ---

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Transcribe records the call and returns the next configured transcript.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (types.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, PCM: pcm, Cfg: cfg})
	if p.Err != nil {
		return types.Transcript{}, p.Err
	}
	if len(p.Transcripts) == 0 {
		return types.Transcript{}, nil
	}
	idx := len(p.TranscribeCalls) - 1
	if idx >= len(p.Transcripts) {
		idx = len(p.Transcripts) - 1
	}
	return p.Transcripts[idx], nil
}

// Close records the call and returns nil.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return nil
}
