// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the prompts the session controller
// sends on fallback turns and to feed controlled replies without a live
// backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{Replies: []string{"Of course! Anything else?"}}
//	reply, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/voxterra/maitred/pkg/provider/llm"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and
// nil errors. Set Err to inject an error.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Replies is the sequence of strings returned by successive Complete
	// calls. The last entry repeats once the sequence is exhausted.
	Replies []string

	// Err, if non-nil, is returned as the error from Complete.
	Err error

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Complete records the call and returns the next configured reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Replies) == 0 {
		return "", nil
	}
	idx := len(p.CompleteCalls) - 1
	if idx >= len(p.Replies) {
		idx = len(p.Replies) - 1
	}
	return p.Replies[idx], nil
}

// Close records the call and returns nil.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return nil
}
