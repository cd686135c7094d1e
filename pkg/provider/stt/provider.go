// Package stt defines the speech-to-text provider interface.
//
// Maitred transcribes per-utterance: the segmenter hands over a finished
// PCM segment and the provider returns one final transcript for it. There
// is no streaming/interim path — turn boundaries are decided by the
// segmenter, not by the STT provider.
package stt

import (
	"context"

	"github.com/voxterra/maitred/pkg/types"
)

// Config carries per-request transcription parameters.
type Config struct {
	// SampleRate of the PCM payload in Hz.
	SampleRate int

	// Language is the expected BCP-47 primary subtag ("en", "nl").
	// Empty lets the provider auto-detect.
	Language string

	// Vocabulary biases recognition towards domain terms (menu item
	// names, “yes”/“no” phrasing). Providers that cannot bias ignore it.
	Vocabulary []string
}

// Provider transcribes a single finished utterance.
type Provider interface {
	// Transcribe converts 16-bit little-endian mono PCM into text.
	// It blocks until the provider answers or ctx is done.
	Transcribe(ctx context.Context, pcm []byte, cfg Config) (types.Transcript, error)

	// Close releases provider resources.
	Close() error
}
