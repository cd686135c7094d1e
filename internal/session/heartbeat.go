package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// HeartbeatConfig tunes the idle-caller nudges.
type HeartbeatConfig struct {
	// Enabled turns the heartbeat on. Off by default so tests and
	// one-shot tools don't get surprise prompts.
	Enabled bool

	// IdleTimeout is how long the line must be quiet, with no turn in
	// flight, before a nudge plays.
	IdleTimeout time.Duration

	// MaxNudges is how many unanswered nudges the session tolerates
	// before it ends the call.
	MaxNudges int
}

func (c HeartbeatConfig) withDefaults() HeartbeatConfig {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 20 * time.Second
	}
	if c.MaxNudges <= 0 {
		c.MaxNudges = 2
	}
	return c
}

// heartbeat watches for a gone-quiet caller. It is suppressed the whole
// time a turn is in flight or a reply is playing; only true silence
// counts as idle. The nudge text comes from the controller so it always
// reflects the open question.
type heartbeat struct {
	cfg     HeartbeatConfig
	session *Session
	log     *slog.Logger

	mu     sync.Mutex
	anchor time.Time
	nudges int

	cancel context.CancelFunc
	done   chan struct{}
}

func newHeartbeat(cfg HeartbeatConfig, s *Session, log *slog.Logger) *heartbeat {
	return &heartbeat{cfg: cfg.withDefaults(), session: s, log: log, anchor: time.Now()}
}

// touch resets the idle anchor. Called on every utterance boundary and
// every finished reply.
func (h *heartbeat) touch() {
	h.mu.Lock()
	h.anchor = time.Now()
	h.nudges = 0
	h.mu.Unlock()
}

func (h *heartbeat) start(ctx context.Context) {
	if !h.cfg.Enabled {
		return
	}
	hctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.run(hctx)
}

func (h *heartbeat) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
}

func (h *heartbeat) run(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *heartbeat) tick(ctx context.Context) {
	h.session.mu.Lock()
	busy := h.session.speaking || h.session.turnDone != nil
	h.session.mu.Unlock()
	if busy {
		h.touch()
		return
	}

	h.mu.Lock()
	idle := time.Since(h.anchor)
	if idle < h.cfg.IdleTimeout {
		h.mu.Unlock()
		return
	}
	h.nudges++
	nudges := h.nudges
	h.anchor = time.Now()
	h.mu.Unlock()

	if nudges > h.cfg.MaxNudges {
		h.log.Info("caller idle past nudge budget, ending session")
		h.session.finish()
		return
	}
	// Register the nudge like a turn so fresh caller speech cuts it.
	nctx, cancel := context.WithCancel(ctx)
	h.session.mu.Lock()
	h.session.turnCancel = cancel
	h.session.mu.Unlock()
	defer func() {
		cancel()
		h.session.mu.Lock()
		if h.session.turnDone == nil {
			h.session.turnCancel = nil
		}
		h.session.mu.Unlock()
	}()

	text := h.session.cfg.Controller.NudgeText()
	h.session.cfg.Events.AgentText(text)
	h.session.speak(nctx, text)
}
