// Package gateway terminates the client websocket: caller audio in,
// agent events and reply audio out.
//
// Wire protocol, one websocket per call:
//
//   - Inbound binary messages are raw 16-bit little-endian PCM frames.
//   - Inbound text messages are JSON control commands:
//     {"type":"interrupt_playback"} and {"type":"end_session"}.
//   - Outbound text messages are JSON events (user_text_shown,
//     agent_text_shown, thinking_started, thinking_cleared, reply_ended).
//   - Outbound binary messages are reply audio chunks.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/voxterra/maitred/internal/observe"
	"github.com/voxterra/maitred/internal/session"
	"github.com/voxterra/maitred/pkg/types"
)

// Inbound control commands.
const (
	controlInterrupt = "interrupt_playback"
	controlEnd       = "end_session"
)

type controlMessage struct {
	Type string `json:"type"`
}

// maxFrameBytes bounds one inbound message. A 20 ms frame at 48 kHz
// stereo is under 8 KiB; anything past this is a protocol violation.
const maxFrameBytes = 1 << 16

// Config wires the session endpoint.
type Config struct {
	// NewSession builds one session runtime around the connection's
	// event surface. Called once per accepted websocket.
	NewSession func(events session.Events) (*session.Session, error)

	// SampleRate is the PCM sample rate clients must send.
	SampleRate int

	// OriginPatterns relaxes the websocket origin check for browser
	// clients. Empty means same-origin only.
	OriginPatterns []string

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Handler serves the /v1/session websocket endpoint.
type Handler struct {
	cfg Config
	log *slog.Logger
}

// NewHandler validates the wiring and returns the endpoint handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.NewSession == nil {
		return nil, errors.New("gateway: NewSession factory is required")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Handler{cfg: cfg, log: cfg.Logger}, nil
}

// Register adds the session route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/session", h.ServeSession)
}

// ServeSession upgrades the request and runs one call to completion.
func (h *Handler) ServeSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.cfg.Metrics.RecordHTTPRequest(context.Background(), "/v1/session", time.Since(start))
	}()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	events := newConnEvents(conn, h.log)
	sess, err := h.cfg.NewSession(events)
	if err != nil {
		h.log.Error("session setup failed", "error", err)
		conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	h.log.Info("session connected", "remote", r.RemoteAddr)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		err := sess.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer sess.Close()
		return h.readLoop(ctx, conn, sess)
	})
	g.Go(func() error {
		select {
		case <-sess.Done():
			// Give the closing reply a moment to flush before the
			// connection drops.
			time.Sleep(100 * time.Millisecond)
			return errSessionEnded
		case <-ctx.Done():
			return nil
		}
	})

	err = g.Wait()
	switch {
	case err == nil, errors.Is(err, errSessionEnded):
		conn.Close(websocket.StatusNormalClosure, "session ended")
	default:
		h.log.Warn("session terminated", "error", err)
		conn.Close(websocket.StatusInternalError, "session error")
	}
	h.log.Info("session disconnected", "remote", r.RemoteAddr)
}

// errSessionEnded unwinds the errgroup once the session finishes.
var errSessionEnded = errors.New("gateway: session ended")

// readLoop pumps inbound messages until the connection or session ends.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			sess.Feed(types.AudioFrame{Data: data, SampleRate: h.cfg.SampleRate})
		case websocket.MessageText:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				h.log.Debug("bad control message", "error", err)
				continue
			}
			switch msg.Type {
			case controlInterrupt:
				sess.Interrupt()
			case controlEnd:
				sess.Close()
				return nil
			default:
				h.log.Debug("unknown control type", "type", msg.Type)
			}
		}
	}
}
