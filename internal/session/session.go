package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voxterra/maitred/internal/observe"
	"github.com/voxterra/maitred/internal/segment"
	"github.com/voxterra/maitred/pkg/provider/stt"
	"github.com/voxterra/maitred/pkg/provider/tts"
	"github.com/voxterra/maitred/pkg/types"
)

// Events is the outbound surface of one session: everything the caller's
// client renders. Implementations must not block; the gateway buffers.
type Events interface {
	// UserText shows the transcript the turn was decided on.
	UserText(text string)

	// AgentText shows the reply before audio starts.
	AgentText(text string)

	// ThinkingStarted and ThinkingCleared bracket the decision latency.
	ThinkingStarted()
	ThinkingCleared()

	// ReplyAudio delivers one PCM chunk of the spoken reply.
	ReplyAudio(chunk []byte)

	// ReplyEnded marks the end of one reply's audio.
	ReplyEnded()
}

// RuntimeConfig wires one session runtime.
type RuntimeConfig struct {
	Controller *Controller
	Segmenter  *segment.Segmenter

	STT       stt.Provider
	STTConfig stt.Config

	TTS   tts.Provider
	Voice types.VoiceProfile

	Events Events

	// MinConfidence discards transcripts the STT itself doubts. Zero
	// keeps everything.
	MinConfidence float64

	Heartbeat HeartbeatConfig

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// frameBuffer bounds the inbound frame queue. At 20 ms frames this is
// two seconds of audio; a client that outruns it loses oldest-first.
const frameBuffer = 100

// Session is the audio-in, audio-out runtime of one call. Frames go in
// through [Session.Feed]; utterance boundaries start turns; a new
// utterance while a turn is still speaking cancels it — last speech
// wins, mid-sentence.
type Session struct {
	cfg RuntimeConfig
	log *slog.Logger

	frames chan types.AudioFrame
	done   chan struct{}

	mu         sync.Mutex
	turnCancel context.CancelFunc
	turnDone   chan struct{}
	speaking   bool

	hb *heartbeat

	closeOnce sync.Once
	doneOnce  sync.Once
}

// NewSession validates the wiring and returns an idle runtime; call
// [Session.Run] to start it.
func NewSession(cfg RuntimeConfig) (*Session, error) {
	if cfg.Controller == nil || cfg.Segmenter == nil {
		return nil, errors.New("session: runtime needs a controller and a segmenter")
	}
	if cfg.STT == nil || cfg.TTS == nil {
		return nil, errors.New("session: runtime needs STT and TTS providers")
	}
	if cfg.Events == nil {
		return nil, errors.New("session: runtime needs an event surface")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	s := &Session{
		cfg:    cfg,
		log:    cfg.Logger,
		frames: make(chan types.AudioFrame, frameBuffer),
		done:   make(chan struct{}),
	}
	s.hb = newHeartbeat(cfg.Heartbeat, s, cfg.Logger)
	return s, nil
}

// Feed enqueues one inbound audio frame. It never blocks: when the
// buffer is full the oldest frame is dropped, which degrades gracefully
// into a shorter pre-roll rather than stalling the transport.
func (s *Session) Feed(frame types.AudioFrame) {
	select {
	case s.frames <- frame:
	default:
		select {
		case <-s.frames:
		default:
		}
		select {
		case s.frames <- frame:
		default:
		}
	}
}

// Done is closed once the session has finished (order confirmed, caller
// gone idle past the nudge budget, or Close called).
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Run consumes frames until ctx is done or the session finishes. It
// owns the heartbeat's lifecycle.
func (s *Session) Run(ctx context.Context) error {
	s.hb.start(ctx)
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case frame := <-s.frames:
			if utt, ok := s.cfg.Segmenter.Feed(frame); ok {
				s.hb.touch()
				s.startTurn(ctx, utt)
			}
		}
	}
}

// Interrupt cancels the reply currently being spoken, if any. The client
// sends this when the caller taps "stop" or local echo detection fires.
func (s *Session) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnCancel != nil {
		s.cfg.Metrics.RecordBargeIn(context.Background())
		s.turnCancel()
	}
}

// startTurn launches the decision pipeline for one utterance, cancelling
// whatever turn was still in flight. Cancelling the turn context tears
// down its synthesis stream too, so playback stops mid-chunk.
func (s *Session) startTurn(ctx context.Context, utt types.Utterance) {
	s.mu.Lock()
	if s.turnCancel != nil {
		s.cfg.Metrics.RecordBargeIn(ctx)
		s.turnCancel()
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.turnCancel = cancel
	done := make(chan struct{})
	s.turnDone = done
	s.speaking = true
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			if s.turnDone == done {
				s.turnCancel = nil
				s.turnDone = nil
				s.speaking = false
			}
			s.mu.Unlock()
			close(done)
			s.hb.touch()
		}()
		s.runTurn(turnCtx, utt)
	}()
}

func (s *Session) runTurn(ctx context.Context, utt types.Utterance) {
	s.cfg.Events.ThinkingStarted()
	sttStart := time.Now()
	transcript, err := s.cfg.STT.Transcribe(ctx, utt.PCM, s.cfg.STTConfig)
	s.cfg.Metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		s.cfg.Events.ThinkingCleared()
		if !errors.Is(err, context.Canceled) {
			s.log.Warn("transcription failed", "error", err)
			s.speak(ctx, scriptedReprompt)
		}
		return
	}
	if transcript.Text == "" || (s.cfg.MinConfidence > 0 && transcript.Confidence < s.cfg.MinConfidence) {
		s.cfg.Events.ThinkingCleared()
		return
	}
	s.cfg.Events.UserText(transcript.Text)

	reply := s.cfg.Controller.HandleTranscript(ctx, transcript.Text)
	s.cfg.Events.ThinkingCleared()
	if ctx.Err() != nil {
		return
	}
	s.cfg.Events.AgentText(reply.Text)
	s.speak(ctx, reply.Text)

	if reply.EndSession || s.cfg.Controller.Closed() {
		s.finish()
	}
}

// speak streams synthesized audio to the client until it completes or
// the turn is cancelled.
func (s *Session) speak(ctx context.Context, text string) {
	ttsStart := time.Now()
	chunks, err := s.cfg.TTS.SynthesizeStream(ctx, text, s.cfg.Voice)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Warn("synthesis failed", "error", err)
		}
		return
	}
	defer s.cfg.Metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
	for chunk := range chunks {
		s.cfg.Events.ReplyAudio(chunk)
	}
	s.cfg.Events.ReplyEnded()
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Close tears the session down: heartbeat first so no nudge can start a
// new utterance, then the in-flight turn, whose cancellation stops the
// synthesis stream.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.hb.stop()
		s.mu.Lock()
		cancel := s.turnCancel
		done := s.turnDone
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if done != nil {
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				s.log.Warn("turn did not finish during teardown")
			}
		}
		s.finish()
	})
}
