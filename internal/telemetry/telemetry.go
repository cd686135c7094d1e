// Package telemetry records the decision-quality events of the ordering
// core: every non-match the parser produced and every confirmation or
// refusal the caller gave.
//
// Emission is fire-and-forget. [Emitter.Emit] enqueues and returns
// immediately; a background worker delivers to the configured [Sink]
// with a bounded per-delivery timeout. Delivery failure is logged and
// swallowed — telemetry must never affect turn latency or ordering.
// Utterance text is redacted before it leaves the controller, see
// [Redact].
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event kinds.
const (
	KindDecision     = "decision"
	KindConfirmation = "confirmation"
	KindRefusal      = "refusal"
	KindFallback     = "fallback"
)

// Event is one append-only telemetry record. Write-once from the
// controller's perspective.
type Event struct {
	SessionID    string    `json:"session_id"`
	TenantID     string    `json:"tenant_id"`
	Kind         string    `json:"kind"`
	ParserStatus string    `json:"parser_status"`
	ParserReason string    `json:"parser_reason,omitempty"`
	Utterance    string    `json:"utterance_redacted"`
	PIIRedacted  bool      `json:"pii_redacted"`
	Timestamp    time.Time `json:"timestamp"`
}

// Sink is the delivery target for telemetry events.
type Sink interface {
	Write(ctx context.Context, ev Event) error
}

const (
	defaultQueueSize       = 256
	defaultDeliveryTimeout = 5 * time.Second
)

// Option is a functional option for configuring an [Emitter].
type Option func(*Emitter)

// WithQueueSize sets the bounded queue depth. When the queue is full,
// Emit drops the event rather than block. Default: 256.
func WithQueueSize(n int) Option {
	return func(e *Emitter) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithDeliveryTimeout bounds each sink write. Default: 5s.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(e *Emitter) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithDropHook installs a callback invoked once per dropped or failed
// event, for metrics counting.
func WithDropHook(fn func()) Option {
	return func(e *Emitter) {
		e.onDrop = fn
	}
}

// Emitter is the asynchronous event writer. Safe for concurrent use.
type Emitter struct {
	sink      Sink
	queueSize int
	timeout   time.Duration
	onDrop    func()
	log       *slog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

// NewEmitter starts an Emitter delivering to sink. Call [Emitter.Close]
// to flush and stop the background worker.
func NewEmitter(sink Sink, log *slog.Logger, opts ...Option) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	e := &Emitter{
		sink:      sink,
		queueSize: defaultQueueSize,
		timeout:   defaultDeliveryTimeout,
		log:       log,
	}
	for _, o := range opts {
		o(e)
	}
	e.queue = make(chan Event, e.queueSize)
	e.done = make(chan struct{})
	go e.run()
	return e
}

// Emit enqueues ev and returns immediately. A zero Timestamp is stamped
// with the current time. When the queue is full the event is dropped.
func (e *Emitter) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		e.drop("emitter closed", nil, ev)
		return
	}
	select {
	case e.queue <- ev:
	default:
		e.drop("queue full", nil, ev)
	}
}

// Close stops accepting events, delivers what is already queued and
// waits for the worker to exit. Emit calls after Close drop their event.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()
	<-e.done
}

func (e *Emitter) run() {
	defer close(e.done)
	for ev := range e.queue {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		err := e.sink.Write(ctx, ev)
		cancel()
		if err != nil {
			e.drop("sink write failed", err, ev)
		}
	}
}

func (e *Emitter) drop(msg string, err error, ev Event) {
	if e.onDrop != nil {
		e.onDrop()
	}
	e.log.Warn("telemetry event dropped",
		"reason", msg,
		"err", err,
		"session_id", ev.SessionID,
		"kind", ev.Kind,
	)
}
