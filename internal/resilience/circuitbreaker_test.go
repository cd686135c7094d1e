package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxterra/maitred/pkg/provider/stt"
	sttmock "github.com/voxterra/maitred/pkg/provider/stt/mock"
	"github.com/voxterra/maitred/pkg/types"
)

// transcribeThrough runs one guarded transcription against the mock backend.
func transcribeThrough(cb *CircuitBreaker, p *sttmock.Provider) error {
	return cb.Execute(func() error {
		_, err := p.Transcribe(context.Background(), []byte{0, 0}, stt.Config{SampleRate: 16000})
		return err
	})
}

func TestCircuitBreakerDefaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "whisper"})
	if cb.tripThreshold != 5 {
		t.Errorf("tripThreshold = %d, want 5", cb.tripThreshold)
	}
	if cb.cooldown != 30*time.Second {
		t.Errorf("cooldown = %v, want 30s", cb.cooldown)
	}
	if cb.probeBudget != 3 {
		t.Errorf("probeBudget = %d, want 3", cb.probeBudget)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestCircuitBreakerForwardsWhileClosed(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Provider{Transcripts: []types.Transcript{{Text: "two naan"}}}
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "whisper", TripThreshold: 3})

	if err := transcribeThrough(cb, backend); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := len(backend.TranscribeCalls); got != 1 {
		t.Errorf("backend called %d times, want 1", got)
	}
}

func TestCircuitBreakerTripsAfterFailureStreak(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Provider{Err: errors.New("stt: connection reset")}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:          "whisper",
		TripThreshold: 3,
		Cooldown:      time.Hour,
	})

	for range 3 {
		if err := transcribeThrough(cb, backend); err == nil {
			t.Fatal("Execute with failing backend: want error, got nil")
		}
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open after failure streak", got)
	}

	// Out of rotation: the backend must not see further calls.
	if err := transcribeThrough(cb, backend); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute = %v, want ErrCircuitOpen", err)
	}
	if got := len(backend.TranscribeCalls); got != 3 {
		t.Errorf("backend called %d times, want 3 (open circuit must not call)", got)
	}
}

func TestCircuitBreakerSuccessClearsStreak(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Provider{}
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "whisper", TripThreshold: 3})

	backend.Err = errors.New("stt: timeout")
	_ = transcribeThrough(cb, backend)
	_ = transcribeThrough(cb, backend)

	backend.Err = nil
	if err := transcribeThrough(cb, backend); err != nil {
		t.Fatalf("Execute after recovery: %v", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want closed (success clears the streak)", got)
	}

	// The streak starts over: two more failures must not trip it.
	backend.Err = errors.New("stt: timeout")
	_ = transcribeThrough(cb, backend)
	_ = transcribeThrough(cb, backend)
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want closed after 2 failures post-reset", got)
	}
}

func TestCircuitBreakerProbesAfterCooldown(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Provider{Err: errors.New("stt: unavailable")}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:          "whisper",
		TripThreshold: 2,
		Cooldown:      10 * time.Millisecond,
	})

	_ = transcribeThrough(cb, backend)
	_ = transcribeThrough(cb, backend)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	time.Sleep(15 * time.Millisecond)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open after cooldown", got)
	}
}

func TestCircuitBreakerClosesAfterHealthyProbes(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Provider{Err: errors.New("stt: unavailable")}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:          "whisper",
		TripThreshold: 2,
		Cooldown:      10 * time.Millisecond,
		ProbeBudget:   2,
	})

	_ = transcribeThrough(cb, backend)
	_ = transcribeThrough(cb, backend)
	time.Sleep(15 * time.Millisecond)

	backend.Err = nil
	for i := range 2 {
		if err := transcribeThrough(cb, backend); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want closed after healthy probes", got)
	}
}

func TestCircuitBreakerFailedProbeKeepsItOut(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Provider{Err: errors.New("stt: unavailable")}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:          "whisper",
		TripThreshold: 2,
		Cooldown:      50 * time.Millisecond,
		ProbeBudget:   3,
	})

	_ = transcribeThrough(cb, backend)
	_ = transcribeThrough(cb, backend)
	time.Sleep(60 * time.Millisecond)

	// The probe reaches the still-broken backend and fails.
	if err := transcribeThrough(cb, backend); errors.Is(err, ErrCircuitOpen) || err == nil {
		t.Fatalf("probe = %v, want the backend error", err)
	}
	// One failed probe puts the backend straight back out of rotation.
	if err := transcribeThrough(cb, backend); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute after failed probe = %v, want ErrCircuitOpen", err)
	}
	if got := len(backend.TranscribeCalls); got != 3 {
		t.Errorf("backend called %d times, want 3", got)
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Provider{Err: errors.New("stt: unavailable")}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:          "whisper",
		TripThreshold: 2,
		Cooldown:      time.Hour,
	})

	_ = transcribeThrough(cb, backend)
	_ = transcribeThrough(cb, backend)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want closed after Reset", got)
	}

	backend.Err = nil
	if err := transcribeThrough(cb, backend); err != nil {
		t.Fatalf("Execute after Reset: %v", err)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
