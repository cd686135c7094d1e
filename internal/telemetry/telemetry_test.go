package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingSink collects events for inspection after the test.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Write(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestEmitterDeliversInOrder(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	e := NewEmitter(sink, nil)

	for i := 0; i < 5; i++ {
		e.Emit(Event{SessionID: "s1", Kind: KindDecision, ParserReason: string(rune('a' + i))})
	}
	e.Close()

	got := sink.all()
	if len(got) != 5 {
		t.Fatalf("delivered %d events, want 5", len(got))
	}
	for i, ev := range got {
		if want := string(rune('a' + i)); ev.ParserReason != want {
			t.Errorf("event %d reason = %q, want %q", i, ev.ParserReason, want)
		}
		if ev.Timestamp.IsZero() {
			t.Errorf("event %d has zero timestamp", i)
		}
	}
}

func TestEmitterSwallowsSinkFailure(t *testing.T) {
	t.Parallel()

	var drops int
	var mu sync.Mutex
	sink := &recordingSink{err: errors.New("db down")}
	e := NewEmitter(sink, nil, WithDropHook(func() {
		mu.Lock()
		drops++
		mu.Unlock()
	}))

	e.Emit(Event{SessionID: "s1", Kind: KindDecision})
	e.Emit(Event{SessionID: "s1", Kind: KindRefusal})
	e.Close()

	mu.Lock()
	defer mu.Unlock()
	if drops != 2 {
		t.Errorf("drop hook fired %d times, want 2", drops)
	}
}

func TestEmitterDropsAfterClose(t *testing.T) {
	t.Parallel()

	var drops int
	var mu sync.Mutex
	sink := &recordingSink{}
	e := NewEmitter(sink, nil, WithDropHook(func() {
		mu.Lock()
		drops++
		mu.Unlock()
	}))
	e.Close()

	e.Emit(Event{SessionID: "s1", Kind: KindDecision})

	mu.Lock()
	d := drops
	mu.Unlock()
	if d != 1 {
		t.Errorf("drop hook fired %d times, want 1", d)
	}
	if len(sink.all()) != 0 {
		t.Error("event delivered after Close")
	}
}

func TestEmitterEmitDoesNotBlock(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	sink := sinkFunc(func(ctx context.Context, ev Event) error {
		<-block
		return nil
	})
	e := NewEmitter(sink, nil, WithQueueSize(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Worker is stuck on the first event; the queue holds one more;
		// everything beyond that must drop instead of blocking.
		for i := 0; i < 10; i++ {
			e.Emit(Event{Kind: KindDecision})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a saturated queue")
	}
	close(block)
	e.Close()
}

// sinkFunc adapts a function to the Sink interface.
type sinkFunc func(ctx context.Context, ev Event) error

func (f sinkFunc) Write(ctx context.Context, ev Event) error { return f(ctx, ev) }
