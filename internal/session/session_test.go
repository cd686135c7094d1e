package session

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxterra/maitred/internal/normalize"
	"github.com/voxterra/maitred/internal/segment"
	sttmock "github.com/voxterra/maitred/pkg/provider/stt/mock"
	ttsmock "github.com/voxterra/maitred/pkg/provider/tts/mock"
	"github.com/voxterra/maitred/pkg/types"
)

// recordingEvents captures the outbound surface and signals each
// finished reply.
type recordingEvents struct {
	mu         sync.Mutex
	userTexts  []string
	agentTexts []string
	audio      [][]byte
	thinking   int
	cleared    int

	replyEnded chan struct{}
}

func newRecordingEvents() *recordingEvents {
	return &recordingEvents{replyEnded: make(chan struct{}, 8)}
}

func (r *recordingEvents) UserText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userTexts = append(r.userTexts, text)
}

func (r *recordingEvents) AgentText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agentTexts = append(r.agentTexts, text)
}

func (r *recordingEvents) ThinkingStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thinking++
}

func (r *recordingEvents) ThinkingCleared() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
}

func (r *recordingEvents) ReplyAudio(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = append(r.audio, chunk)
}

func (r *recordingEvents) ReplyEnded() {
	r.replyEnded <- struct{}{}
}

// speechFrame builds one 20 ms frame of constant-amplitude 16-bit PCM.
func speechFrame(t *testing.T, amplitude int16) types.AudioFrame {
	t.Helper()
	const samples = 320 // 20 ms at 16 kHz
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(amplitude))
	}
	return types.AudioFrame{Data: data, SampleRate: 16000}
}

func testRuntime(t *testing.T, transcript string) (*Session, *recordingEvents, *ttsmock.Provider) {
	t.Helper()
	pipeline, err := normalize.NewPipeline(normalize.DefaultRuleset())
	if err != nil {
		t.Fatal(err)
	}
	ctrl, err := NewController(ControllerConfig{
		SessionID: "s-1",
		Language:  "en",
		Catalog:   testCatalog(t),
		Normalize: pipeline,
	})
	if err != nil {
		t.Fatal(err)
	}
	seg, err := segment.New(segment.Config{
		SampleRate:    16000,
		FrameDuration: 20 * time.Millisecond,
		EnergyFloor:   300,
		ConfirmFrames: 2,
		SilenceEnd:    60 * time.Millisecond,
		MinUtterance:  100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	events := newRecordingEvents()
	tts := &ttsmock.Provider{Chunks: [][]byte{{1, 2}, {3, 4}}}
	s, err := NewSession(RuntimeConfig{
		Controller: ctrl,
		Segmenter:  seg,
		STT:        &sttmock.Provider{Transcripts: []types.Transcript{{Text: transcript, Confidence: 0.95}}},
		TTS:        tts,
		Events:     events,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, events, tts
}

func TestSessionTurnEndToEnd(t *testing.T) {
	t.Parallel()

	s, events, tts := testRuntime(t, "two garlic naan")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Close()

	// Ten voiced frames then enough silence to close the utterance.
	for i := 0; i < 10; i++ {
		s.Feed(speechFrame(t, 3000))
	}
	for i := 0; i < 4; i++ {
		s.Feed(speechFrame(t, 0))
	}

	select {
	case <-events.replyEnded:
	case <-time.After(3 * time.Second):
		t.Fatal("no reply within deadline")
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.userTexts) != 1 || events.userTexts[0] != "two garlic naan" {
		t.Errorf("user texts = %v", events.userTexts)
	}
	if len(events.agentTexts) != 1 || !strings.Contains(events.agentTexts[0], "Garlic Naan") {
		t.Errorf("agent texts = %v", events.agentTexts)
	}
	if len(events.audio) != 2 {
		t.Errorf("audio chunks = %d, want 2", len(events.audio))
	}
	if events.thinking != 1 || events.cleared != 1 {
		t.Errorf("thinking/cleared = %d/%d, want 1/1", events.thinking, events.cleared)
	}
	if got := s.cfg.Controller.Cart(); got["garlic_naan"] != 2 {
		t.Errorf("cart = %v, want garlic_naan: 2", got)
	}
	if spoken := tts.SpokenTexts(); len(spoken) != 1 {
		t.Errorf("synthesized %d texts, want 1", len(spoken))
	}
}

func TestSessionLowConfidenceDiscarded(t *testing.T) {
	t.Parallel()

	s, events, _ := testRuntime(t, "two garlic naan")
	s.cfg.MinConfidence = 0.99
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Close()

	for i := 0; i < 10; i++ {
		s.Feed(speechFrame(t, 3000))
	}
	for i := 0; i < 4; i++ {
		s.Feed(speechFrame(t, 0))
	}

	select {
	case <-events.replyEnded:
		t.Fatal("discarded transcript must not produce a reply")
	case <-time.After(500 * time.Millisecond):
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.userTexts) != 0 {
		t.Errorf("user texts = %v, want none", events.userTexts)
	}
}

func TestSessionInterruptWithoutTurn(t *testing.T) {
	t.Parallel()

	s, _, _ := testRuntime(t, "hello")
	s.Interrupt() // no turn in flight, must not panic
	s.Close()
	select {
	case <-s.Done():
	default:
		t.Error("Done must be closed after Close")
	}
}

func TestHeartbeatNudgesThenEndsSession(t *testing.T) {
	t.Parallel()

	s, events, _ := testRuntime(t, "hello")
	s.hb.cfg.IdleTimeout = time.Millisecond
	s.hb.cfg.MaxNudges = 1
	ctx := context.Background()

	time.Sleep(5 * time.Millisecond)
	s.hb.tick(ctx)
	select {
	case <-events.replyEnded:
	case <-time.After(time.Second):
		t.Fatal("first idle tick should speak a nudge")
	}
	events.mu.Lock()
	if len(events.agentTexts) != 1 || !strings.Contains(events.agentTexts[0], "What would you like") {
		t.Errorf("nudge texts = %v", events.agentTexts)
	}
	events.mu.Unlock()

	time.Sleep(5 * time.Millisecond)
	s.hb.tick(ctx)
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("exceeding the nudge budget should end the session")
	}
}

func TestHeartbeatSuppressedWhileBusy(t *testing.T) {
	t.Parallel()

	s, events, _ := testRuntime(t, "hello")
	s.hb.cfg.IdleTimeout = time.Millisecond
	s.mu.Lock()
	s.speaking = true
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)
	s.hb.tick(context.Background())

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.agentTexts) != 0 {
		t.Errorf("agent texts = %v, busy session must not be nudged", events.agentTexts)
	}
}

func TestSessionFeedNeverBlocks(t *testing.T) {
	t.Parallel()

	s, _, _ := testRuntime(t, "hello")
	// No Run loop draining; flood well past the buffer.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < frameBuffer*3; i++ {
			s.Feed(speechFrame(t, 0))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Feed blocked on a saturated buffer")
	}
	s.Close()
}
