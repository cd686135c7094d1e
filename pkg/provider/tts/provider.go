// Package tts defines the text-to-speech provider interface.
//
// Synthesis is streaming: audio chunks are delivered on a channel as the
// provider produces them, so playback can begin before the full reply is
// rendered. Cancelling the context aborts synthesis mid-stream, which is
// how barge-in cuts off a reply the caller is talking over.
package tts

import (
	"context"

	"github.com/voxterra/maitred/pkg/types"
)

// Provider renders reply text into speech.
type Provider interface {
	// SynthesizeStream starts synthesis and returns a channel of PCM
	// chunks (16-bit little-endian mono). The channel is closed when
	// synthesis completes or ctx is cancelled. Errors after the stream
	// has started are reported by closing the channel early.
	SynthesizeStream(ctx context.Context, text string, profile types.VoiceProfile) (<-chan []byte, error)

	// Close releases provider resources.
	Close() error
}
