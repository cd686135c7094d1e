// Package segment turns a stream of fixed-size audio frames into complete
// utterances using an energy-gated voice activity detector.
//
// The segmenter is a pure per-frame transform with no I/O: each call to
// Feed either returns nothing or returns one finished utterance. A frame
// is "voiced" when its RMS energy clears a configured floor. Speech starts
// only after a run of consecutive voiced frames (debounce against
// transient noise), and ends once the trailing silence exceeds a
// configured threshold. Segments shorter than a minimum duration are
// discarded as noise and never reach transcription.
package segment

import (
	"fmt"
	"time"

	"github.com/voxterra/maitred/pkg/types"
)

// Default thresholds for the 16 kHz / 20 ms browser capture path.
const (
	DefaultSampleRate    = 16000
	DefaultFrameDuration = 20 * time.Millisecond
	DefaultEnergyFloor   = 300.0
	DefaultConfirmFrames = 3
	DefaultSilenceEnd    = 650 * time.Millisecond
	DefaultMinUtterance  = 900 * time.Millisecond
	DefaultPreRoll       = 300 * time.Millisecond
	DefaultStartupGrace  = 200 * time.Millisecond
)

// Config holds the segmentation thresholds for one session.
type Config struct {
	// SampleRate of incoming PCM in Hz.
	SampleRate int

	// FrameDuration is the fixed length of every incoming frame.
	FrameDuration time.Duration

	// EnergyFloor is the RMS level at or above which a frame counts as
	// voiced (16-bit PCM units, 0–32767).
	EnergyFloor float64

	// ConfirmFrames is the number of consecutive voiced frames required
	// before speech is considered started.
	ConfirmFrames int

	// SilenceEnd is the trailing-silence duration that finalizes an
	// utterance.
	SilenceEnd time.Duration

	// MinUtterance is the minimum total segment duration. Shorter
	// segments are discarded rather than emitted.
	MinUtterance time.Duration

	// PreRoll is how much audio preceding the confirmed speech start is
	// prepended to the segment, so soft word onsets are not clipped.
	PreRoll time.Duration

	// StartupGrace is the span after session start during which all
	// frames are ignored while the microphone settles.
	StartupGrace time.Duration
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = DefaultFrameDuration
	}
	if c.EnergyFloor <= 0 {
		c.EnergyFloor = DefaultEnergyFloor
	}
	if c.ConfirmFrames <= 0 {
		c.ConfirmFrames = DefaultConfirmFrames
	}
	if c.SilenceEnd <= 0 {
		c.SilenceEnd = DefaultSilenceEnd
	}
	if c.MinUtterance <= 0 {
		c.MinUtterance = DefaultMinUtterance
	}
	if c.StartupGrace < 0 {
		c.StartupGrace = DefaultStartupGrace
	}
	return c
}

// Validate reports configuration combinations that can never emit.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.SilenceEnd < c.FrameDuration {
		return fmt.Errorf("segment: silence-end %v shorter than one frame %v", c.SilenceEnd, c.FrameDuration)
	}
	if c.MinUtterance <= c.SilenceEnd {
		return fmt.Errorf("segment: min-utterance %v must exceed silence-end %v", c.MinUtterance, c.SilenceEnd)
	}
	return nil
}

// Segmenter holds the per-session gate state. It is not safe for
// concurrent use; each session owns exactly one.
type Segmenter struct {
	cfg Config

	// derived frame counts
	silenceFrames int // trailing silence that finalizes
	graceFrames   int // frames ignored after start
	preRollCap    int // ring capacity

	framesSeen int

	inSpeech  bool
	voicedRun int
	silentRun int

	// ring of recent frames kept while not in speech; prepended to the
	// segment when speech is confirmed. Always holds at least the
	// debounce window so the confirming frames themselves are included.
	preRoll [][]byte

	buf       []byte
	bufFrames int
	startedAt time.Duration
}

// New constructs a Segmenter, applying defaults for unset Config fields.
func New(cfg Config) (*Segmenter, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Segmenter{cfg: cfg}
	s.silenceFrames = int(cfg.SilenceEnd / cfg.FrameDuration)
	if cfg.SilenceEnd%cfg.FrameDuration != 0 {
		s.silenceFrames++
	}
	s.graceFrames = int(cfg.StartupGrace / cfg.FrameDuration)
	s.preRollCap = int(cfg.PreRoll/cfg.FrameDuration) + cfg.ConfirmFrames
	return s, nil
}

// Feed processes one frame and returns a finished utterance when the
// trailing silence threshold is crossed. The bool result reports whether
// an utterance was emitted.
func (s *Segmenter) Feed(frame types.AudioFrame) (types.Utterance, bool) {
	s.framesSeen++
	if s.framesSeen <= s.graceFrames {
		return types.Utterance{}, false
	}

	voiced := RMS(frame.Data) >= s.cfg.EnergyFloor

	if !s.inSpeech {
		s.pushPreRoll(frame.Data)
		if !voiced {
			s.voicedRun = 0
			return types.Utterance{}, false
		}
		s.voicedRun++
		if s.voicedRun < s.cfg.ConfirmFrames {
			return types.Utterance{}, false
		}
		s.beginSpeech(frame.Timestamp)
		return types.Utterance{}, false
	}

	s.append(frame.Data)
	if voiced {
		s.silentRun = 0
		return types.Utterance{}, false
	}

	s.silentRun++
	if s.silentRun < s.silenceFrames {
		return types.Utterance{}, false
	}

	elapsed := time.Duration(s.bufFrames) * s.cfg.FrameDuration
	if elapsed < s.cfg.MinUtterance {
		// Too short to be speech worth transcribing. Treat as noise.
		s.reset()
		return types.Utterance{}, false
	}

	utt := types.Utterance{
		PCM:        s.buf,
		SampleRate: s.cfg.SampleRate,
		Duration:   elapsed,
		StartedAt:  s.startedAt,
	}
	s.reset()
	return utt, true
}

// Reset discards any in-progress segment and clears all counters. The
// startup grace window is not replayed.
func (s *Segmenter) Reset() {
	s.reset()
	s.preRoll = s.preRoll[:0]
}

// beginSpeech transitions into the in-speech state, seeding the segment
// buffer with the pre-roll audio gathered so far.
func (s *Segmenter) beginSpeech(now time.Duration) {
	s.inSpeech = true
	s.silentRun = 0
	for _, f := range s.preRoll {
		s.append(f)
	}
	s.preRoll = s.preRoll[:0]
	start := now - time.Duration(s.bufFrames-1)*s.cfg.FrameDuration
	if start < 0 {
		start = 0
	}
	s.startedAt = start
}

func (s *Segmenter) pushPreRoll(data []byte) {
	f := make([]byte, len(data))
	copy(f, data)
	s.preRoll = append(s.preRoll, f)
	if len(s.preRoll) > s.preRollCap {
		s.preRoll = s.preRoll[1:]
	}
}

func (s *Segmenter) append(data []byte) {
	s.buf = append(s.buf, data...)
	s.bufFrames++
}

func (s *Segmenter) reset() {
	s.inSpeech = false
	s.voicedRun = 0
	s.silentRun = 0
	s.buf = nil
	s.bufFrames = 0
	s.startedAt = 0
}
