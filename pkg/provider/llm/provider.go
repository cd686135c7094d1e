// Package llm defines the large-language-model provider interface.
//
// Maitred routes the majority of turns deterministically; the LLM is the
// fallback voice for utterances the parser cannot resolve and for
// re-prompts once a clarification budget is exhausted. The interface is
// deliberately small: one blocking completion call, no tools, no
// streaming.
package llm

import "context"

// CompletionRequest carries one fallback prompt.
type CompletionRequest struct {
	// System is the system prompt framing the agent persona, menu
	// context and reply constraints.
	System string

	// User is the caller utterance (normalized) plus any conversation
	// context the session controller chose to include.
	User string

	// Temperature controls sampling. Zero means provider default.
	Temperature float64

	// MaxTokens bounds the reply length. Zero means provider default.
	MaxTokens int
}

// Provider produces a single completion for a fallback turn.
type Provider interface {
	// Complete blocks until the model answers or ctx is done.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Close releases provider resources.
	Close() error
}
