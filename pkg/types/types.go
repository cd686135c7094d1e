// Package types defines the shared types used across all Maitred packages.
//
// These types form the lingua franca between the audio front end, the
// decision core, and the speech providers. Each package defines its own
// domain types; cross-cutting data structures live here to avoid circular
// imports.
package types

import "time"

// AudioFrame represents a single frame of PCM audio flowing through the
// pipeline. Frames are the atomic unit of audio transport — received from
// the browser gateway, scored by the segmenter, and handed to STT as part
// of a finished utterance.
type AudioFrame struct {
	// PCM audio data, 16-bit little-endian mono.
	Data []byte

	// SampleRate in Hz (16000 for the browser capture path).
	SampleRate int

	// Timestamp marks when this frame arrived, relative to session start.
	Timestamp time.Duration
}

// Utterance is a complete segment of speech as decided by the segmenter:
// everything from the confirmed start of speech (pre-roll included) to the
// silence that ended it.
type Utterance struct {
	// PCM is the concatenated frame data for the whole segment.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// Duration is the voiced length of the segment, pre-roll included.
	Duration time.Duration

	// StartedAt marks the segment start relative to session start.
	StartedAt time.Duration
}

// Transcript represents a speech-to-text result for one utterance.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the provider's overall confidence (0.0–1.0). Zero when
	// the provider does not report one. Advisory only: routing decisions
	// never branch on it.
	Confidence float64

	// Language is the BCP-47 primary subtag the provider detected or was
	// told to use ("en", "nl").
	Language string

	// Duration is the audio length the transcript covers.
	Duration time.Duration
}

// TurnRecord is a complete exchange written to the session history: what
// the caller said and what the agent answered, with the routing path that
// produced the answer.
type TurnRecord struct {
	// UserText is the normalized transcript of the caller's utterance.
	UserText string

	// RawText is the original uncorrected STT output. Preserved for
	// debugging normalization rules.
	RawText string

	// AgentText is the reply that was spoken back.
	AgentText string

	// Route records which path produced AgentText: "deterministic",
	// "fallback" or "scripted".
	Route string

	// At marks when the turn completed.
	At time.Time
}

// VoiceProfile selects the synthesis voice for a session.
type VoiceProfile struct {
	// Voice is the provider-specific voice name.
	Voice string

	// Speed is a playback-rate multiplier. 1.0 when unset.
	Speed float64
}
