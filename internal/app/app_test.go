package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/voxterra/maitred/internal/catalog"
	"github.com/voxterra/maitred/internal/config"
	"github.com/voxterra/maitred/internal/normalize"
	"github.com/voxterra/maitred/internal/session"
	"github.com/voxterra/maitred/internal/telemetry"
	llmmock "github.com/voxterra/maitred/pkg/provider/llm/mock"
	sttmock "github.com/voxterra/maitred/pkg/provider/stt/mock"
	ttsmock "github.com/voxterra/maitred/pkg/provider/tts/mock"
)

func testSnapshot(t *testing.T) *catalog.Snapshot {
	t.Helper()
	s, err := catalog.NewSnapshot([]catalog.Item{
		{ID: "garlic_naan", DisplayName: "Garlic Naan"},
		{ID: "mango_lassi", DisplayName: "Mango Lassi", Aliases: []string{"lassi"}},
	})
	if err != nil {
		t.Fatalf("NewSnapshot() error = %v", err)
	}
	return s
}

// fakeStore serves a fixed snapshot without a database.
type fakeStore struct {
	snapshot *catalog.Snapshot
}

var _ catalog.Store = (*fakeStore)(nil)

func (f *fakeStore) LoadSnapshot(_ context.Context, _ string) (*catalog.Snapshot, error) {
	return f.snapshot, nil
}

func (f *fakeStore) LoadRuleset(_ context.Context, _ string) (normalize.Ruleset, error) {
	return normalize.DefaultRuleset(), nil
}

// sinkFunc adapts a function to the telemetry.Sink interface.
type sinkFunc func(ctx context.Context, ev telemetry.Event) error

func (f sinkFunc) Write(ctx context.Context, ev telemetry.Event) error { return f(ctx, ev) }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Audio: config.AudioConfig{
			SampleRate:    16000,
			FrameDuration: 20 * time.Millisecond,
		},
		Catalog: config.CatalogConfig{Tenant: "curry-house"},
		Session: config.SessionConfig{Language: "en", Voice: "alloy"},
	}
}

func TestNewRequiresProviders(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), testConfig(), &Providers{})
	if err == nil {
		t.Fatal("New() with missing providers: want error, got nil")
	}
}

// nopEvents satisfies session.Events for sessions nobody listens to.
type nopEvents struct{}

func (nopEvents) UserText(string)   {}
func (nopEvents) AgentText(string)  {}
func (nopEvents) ThinkingStarted()  {}
func (nopEvents) ThinkingCleared()  {}
func (nopEvents) ReplyAudio([]byte) {}
func (nopEvents) ReplyEnded()       {}

func testManager(t *testing.T) *SessionManager {
	t.Helper()
	pipeline, err := normalize.NewPipeline(normalize.DefaultRuleset())
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return NewSessionManager(ManagerConfig{
		Config: testConfig(),
		Providers: &Providers{
			STT: &sttmock.Provider{},
			LLM: &llmmock.Provider{},
			TTS: &ttsmock.Provider{},
		},
		Catalog:  testSnapshot(t),
		Pipeline: pipeline,
	})
}

func TestSessionManagerCreate(t *testing.T) {
	t.Parallel()
	m := testManager(t)

	sess, err := m.Create(nopEvents{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := m.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}

	sess.Close()
	waitFor(t, func() bool { return m.Count() == 0 })
}

func TestSessionManagerCloseAll(t *testing.T) {
	t.Parallel()
	m := testManager(t)

	var sessions []*session.Session
	for range 3 {
		sess, err := m.Create(nopEvents{})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		sessions = append(sessions, sess)
	}
	if got := m.Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}

	m.CloseAll()
	for _, sess := range sessions {
		select {
		case <-sess.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("session did not finish after CloseAll")
		}
	}
	waitFor(t, func() bool { return m.Count() == 0 })
}

func TestSessionIDsAreUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 100 {
		id := newSessionID()
		if len(id) != 16 {
			t.Fatalf("newSessionID() = %q, want 16 hex chars", id)
		}
		if seen[id] {
			t.Fatalf("newSessionID() repeated %q", id)
		}
		seen[id] = true
	}
}

func TestAppLifecycle(t *testing.T) {
	// Not parallel: New installs the global OTel meter provider.
	store := &fakeStore{snapshot: testSnapshot(t)}
	sink := sinkFunc(func(context.Context, telemetry.Event) error { return nil })

	cfg := testConfig()
	cfg.Telemetry.QueueSize = 8

	a, err := New(context.Background(), cfg, &Providers{
		STT: &sttmock.Provider{},
		LLM: &llmmock.Provider{},
		TTS: &ttsmock.Provider{},
	}, WithCatalogStore(store), WithTelemetrySink(sink))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if a.catalog == nil || a.pipeline == nil {
		t.Fatal("New() left catalog or pipeline unset")
	}
	if a.emitter == nil {
		t.Fatal("New() with a sink should start the telemetry emitter")
	}
	if a.pool != nil {
		t.Fatal("New() with injected store and sink should not dial postgres")
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	// Give the listener a moment, then stop.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		if err != context.Canceled {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := a.Shutdown(shutCtx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	// Idempotent.
	if err := a.Shutdown(shutCtx); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
}

func TestNewDialsTelemetryDSN(t *testing.T) {
	// Not parallel: New installs the global OTel meter provider.
	store := &fakeStore{snapshot: testSnapshot(t)}

	cfg := testConfig()
	cfg.Telemetry.PostgresDSN = "://not-a-dsn"

	// The catalog store is injected, so the only database New can touch
	// is the telemetry one. The bad DSN must surface as an error instead
	// of the sink silently piggybacking on a catalog pool.
	_, err := New(context.Background(), cfg, &Providers{
		STT: &sttmock.Provider{},
		LLM: &llmmock.Provider{},
		TTS: &ttsmock.Provider{},
	}, WithCatalogStore(store))
	if err == nil {
		t.Fatal("New() with unreachable telemetry DSN: want error, got nil")
	}
	if !strings.Contains(err.Error(), "telemetry store") {
		t.Fatalf("New() error = %v, want telemetry store dial failure", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
