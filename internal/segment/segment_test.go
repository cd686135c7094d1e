package segment

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/voxterra/maitred/pkg/types"
)

const (
	testSampleRate = 16000
	testFrameDur   = 20 * time.Millisecond
	samplesPerFrm  = 320 // 20 ms at 16 kHz
)

// makeFrame builds a mono PCM frame where every sample has the given
// amplitude, so the frame's RMS equals the amplitude exactly.
func makeFrame(amplitude int16) []byte {
	buf := make([]byte, samplesPerFrm*2)
	for i := 0; i < samplesPerFrm; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

// feedAll pushes frames through the segmenter in order and collects every
// emitted utterance.
func feedAll(t *testing.T, s *Segmenter, frames [][]byte) []types.Utterance {
	t.Helper()
	var out []types.Utterance
	for i, data := range frames {
		utt, ok := s.Feed(types.AudioFrame{
			Data:       data,
			SampleRate: testSampleRate,
			Timestamp:  time.Duration(i) * testFrameDur,
		})
		if ok {
			out = append(out, utt)
		}
	}
	return out
}

func repeat(frame []byte, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = frame
	}
	return out
}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}
	if got := RMS(makeFrame(0)); got != 0 {
		t.Errorf("RMS(silence) = %f, want 0", got)
	}
	if got := RMS(makeFrame(3000)); got < 2999 || got > 3001 {
		t.Errorf("RMS(constant 3000) = %f, want ~3000", got)
	}
}

func TestFeedEmitsSingleUtterance(t *testing.T) {
	t.Parallel()

	s, err := New(Config{
		SampleRate:    testSampleRate,
		FrameDuration: testFrameDur,
		EnergyFloor:   300,
		ConfirmFrames: 3,
		SilenceEnd:    650 * time.Millisecond,
		MinUtterance:  900 * time.Millisecond,
		PreRoll:       0,
		StartupGrace:  0,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 200 ms of low-level noise, 1.2 s of speech, 700 ms of silence.
	var frames [][]byte
	frames = append(frames, repeat(makeFrame(100), 10)...)
	frames = append(frames, repeat(makeFrame(3000), 60)...)
	frames = append(frames, repeat(makeFrame(0), 35)...)

	got := feedAll(t, s, frames)
	if len(got) != 1 {
		t.Fatalf("emitted %d utterances, want 1", len(got))
	}

	utt := got[0]
	// Speech (60 frames) plus trailing silence up to the 650 ms
	// threshold (33 frames): the noise prefix must not be included.
	wantFrames := 60 + 33
	if wantBytes := wantFrames * samplesPerFrm * 2; len(utt.PCM) != wantBytes {
		t.Errorf("utterance PCM = %d bytes, want %d", len(utt.PCM), wantBytes)
	}
	if want := time.Duration(wantFrames) * testFrameDur; utt.Duration != want {
		t.Errorf("Duration = %v, want %v", utt.Duration, want)
	}
	if first := int16(binary.LittleEndian.Uint16(utt.PCM)); first != 3000 {
		t.Errorf("utterance starts with sample %d, want speech amplitude 3000", first)
	}
	if utt.SampleRate != testSampleRate {
		t.Errorf("SampleRate = %d, want %d", utt.SampleRate, testSampleRate)
	}
}

func TestFeedDebounceAndMinimumDuration(t *testing.T) {
	t.Parallel()

	cfg := Config{
		SampleRate:    testSampleRate,
		FrameDuration: testFrameDur,
		EnergyFloor:   300,
		ConfirmFrames: 3,
		SilenceEnd:    650 * time.Millisecond,
		MinUtterance:  900 * time.Millisecond,
		StartupGrace:  0,
	}

	tests := []struct {
		name   string
		frames [][]byte
	}{
		{
			// Two voiced frames never clear the confirm threshold.
			name: "burst below confirm threshold",
			frames: append(
				repeat(makeFrame(3000), 2),
				repeat(makeFrame(0), 50)...,
			),
		},
		{
			// 200 ms of confirmed speech ends up under the minimum
			// utterance duration once silence closes it, so the
			// buffer is discarded.
			name: "confirmed span below minimum duration",
			frames: append(
				repeat(makeFrame(3000), 10),
				repeat(makeFrame(0), 60)...,
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := New(cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := feedAll(t, s, tt.frames); len(got) != 0 {
				t.Errorf("emitted %d utterances, want 0", len(got))
			}
		})
	}
}

func TestFeedStartupGrace(t *testing.T) {
	t.Parallel()

	s, err := New(Config{
		SampleRate:    testSampleRate,
		FrameDuration: testFrameDur,
		EnergyFloor:   300,
		ConfirmFrames: 3,
		SilenceEnd:    650 * time.Millisecond,
		MinUtterance:  900 * time.Millisecond,
		StartupGrace:  200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Loud frames entirely inside the grace window, then silence: the
	// settling transient must not start a segment.
	var frames [][]byte
	frames = append(frames, repeat(makeFrame(8000), 10)...)
	frames = append(frames, repeat(makeFrame(0), 40)...)
	if got := feedAll(t, s, frames); len(got) != 0 {
		t.Fatalf("emitted %d utterances during grace, want 0", len(got))
	}

	// Speech after the window still works.
	var speech [][]byte
	speech = append(speech, repeat(makeFrame(3000), 60)...)
	speech = append(speech, repeat(makeFrame(0), 35)...)
	if got := feedAll(t, s, speech); len(got) != 1 {
		t.Errorf("emitted %d utterances after grace, want 1", len(got))
	}
}

func TestFeedPreRollIncluded(t *testing.T) {
	t.Parallel()

	s, err := New(Config{
		SampleRate:    testSampleRate,
		FrameDuration: testFrameDur,
		EnergyFloor:   300,
		ConfirmFrames: 3,
		SilenceEnd:    650 * time.Millisecond,
		MinUtterance:  900 * time.Millisecond,
		PreRoll:       100 * time.Millisecond,
		StartupGrace:  0,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Quiet lead-in, then speech. The pre-roll window (100 ms = 5
	// frames) plus the debounce frames must be prepended.
	var frames [][]byte
	frames = append(frames, repeat(makeFrame(100), 10)...)
	frames = append(frames, repeat(makeFrame(3000), 60)...)
	frames = append(frames, repeat(makeFrame(0), 35)...)

	got := feedAll(t, s, frames)
	if len(got) != 1 {
		t.Fatalf("emitted %d utterances, want 1", len(got))
	}
	// 5 pre-roll frames + 60 speech + 33 trailing silence.
	wantFrames := 5 + 60 + 33
	if wantBytes := wantFrames * samplesPerFrm * 2; len(got[0].PCM) != wantBytes {
		t.Errorf("utterance PCM = %d bytes, want %d", len(got[0].PCM), wantBytes)
	}
	if first := int16(binary.LittleEndian.Uint16(got[0].PCM)); first != 100 {
		t.Errorf("utterance starts with sample %d, want pre-roll amplitude 100", first)
	}
}

func TestFeedRevoicedSilenceResets(t *testing.T) {
	t.Parallel()

	s, err := New(Config{
		SampleRate:    testSampleRate,
		FrameDuration: testFrameDur,
		EnergyFloor:   300,
		ConfirmFrames: 3,
		SilenceEnd:    650 * time.Millisecond,
		MinUtterance:  900 * time.Millisecond,
		StartupGrace:  0,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Mid-utterance pauses shorter than the silence-end threshold must
	// not split the segment.
	var frames [][]byte
	frames = append(frames, repeat(makeFrame(3000), 30)...)
	frames = append(frames, repeat(makeFrame(0), 20)...) // 400 ms pause
	frames = append(frames, repeat(makeFrame(3000), 30)...)
	frames = append(frames, repeat(makeFrame(0), 35)...)

	got := feedAll(t, s, frames)
	if len(got) != 1 {
		t.Fatalf("emitted %d utterances, want 1", len(got))
	}
	wantFrames := 30 + 20 + 30 + 33
	if want := time.Duration(wantFrames) * testFrameDur; got[0].Duration != want {
		t.Errorf("Duration = %v, want %v", got[0].Duration, want)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults valid", cfg: Config{}},
		{
			name: "silence-end below one frame",
			cfg: Config{
				FrameDuration: 20 * time.Millisecond,
				SilenceEnd:    5 * time.Millisecond,
			},
			wantErr: true,
		},
		{
			name: "minimum not above silence-end",
			cfg: Config{
				SilenceEnd:   700 * time.Millisecond,
				MinUtterance: 700 * time.Millisecond,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
