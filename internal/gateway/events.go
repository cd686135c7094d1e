package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxterra/maitred/internal/session"
)

// Outbound event types.
const (
	eventUserText        = "user_text_shown"
	eventAgentText       = "agent_text_shown"
	eventThinkingStarted = "thinking_started"
	eventThinkingCleared = "thinking_cleared"
	eventReplyEnded      = "reply_ended"
)

// eventMessage is the JSON envelope for non-audio events. Reply audio
// travels as binary frames, so its payload never needs an envelope.
type eventMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// writeTimeout bounds one websocket write so a stalled client cannot
// wedge the session's turn goroutine.
const writeTimeout = 5 * time.Second

// connEvents adapts one websocket connection to [session.Events].
// Writes are serialized with a mutex; websockets do not support
// concurrent writers. Write failures are logged and swallowed — the read
// loop notices the dead connection and tears the session down.
type connEvents struct {
	conn *websocket.Conn
	log  *slog.Logger

	mu sync.Mutex
}

var _ session.Events = (*connEvents)(nil)

func newConnEvents(conn *websocket.Conn, log *slog.Logger) *connEvents {
	return &connEvents{conn: conn, log: log}
}

func (e *connEvents) UserText(text string) {
	e.send(eventMessage{Type: eventUserText, Text: text})
}

func (e *connEvents) AgentText(text string) {
	e.send(eventMessage{Type: eventAgentText, Text: text})
}

func (e *connEvents) ThinkingStarted() {
	e.send(eventMessage{Type: eventThinkingStarted})
}

func (e *connEvents) ThinkingCleared() {
	e.send(eventMessage{Type: eventThinkingCleared})
}

func (e *connEvents) ReplyAudio(chunk []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := e.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
		e.log.Debug("audio write failed", "error", err)
	}
}

func (e *connEvents) ReplyEnded() {
	e.send(eventMessage{Type: eventReplyEnded})
}

func (e *connEvents) send(msg eventMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		e.log.Error("event marshal failed", "type", msg.Type, "error", err)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := e.conn.Write(ctx, websocket.MessageText, data); err != nil {
		e.log.Debug("event write failed", "type", msg.Type, "error", err)
	}
}
