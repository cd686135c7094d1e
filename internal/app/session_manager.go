package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxterra/maitred/internal/catalog"
	"github.com/voxterra/maitred/internal/config"
	"github.com/voxterra/maitred/internal/normalize"
	"github.com/voxterra/maitred/internal/observe"
	"github.com/voxterra/maitred/internal/segment"
	"github.com/voxterra/maitred/internal/session"
	"github.com/voxterra/maitred/internal/telemetry"
	"github.com/voxterra/maitred/pkg/provider/stt"
	"github.com/voxterra/maitred/pkg/types"
)

// ManagerConfig carries the shared pieces every session is built from.
type ManagerConfig struct {
	Config    *config.Config
	Providers *Providers
	Catalog   *catalog.Snapshot
	Pipeline  *normalize.Pipeline
	Emitter   *telemetry.Emitter
	Metrics   *observe.Metrics
	Logger    *slog.Logger
}

// SessionManager builds one Session per websocket connection and keeps
// track of the live ones so shutdown can close them all.
type SessionManager struct {
	cfg ManagerConfig
	log *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// NewSessionManager creates a manager. Sessions are created lazily via
// Create, one per gateway connection.
func NewSessionManager(cfg ManagerConfig) *SessionManager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SessionManager{
		cfg:      cfg,
		log:      cfg.Logger,
		sessions: make(map[string]*session.Session),
	}
}

// Create assembles a full session for one caller: a controller over the
// shared catalog snapshot, a fresh segmenter, and the provider stack.
// It is the gateway's NewSession hook.
func (m *SessionManager) Create(events session.Events) (*session.Session, error) {
	id := newSessionID()
	cfg := m.cfg.Config

	ctrl, err := session.NewController(session.ControllerConfig{
		SessionID: id,
		TenantID:  cfg.Catalog.Tenant,
		Language:  cfg.Session.Language,
		Catalog:   m.cfg.Catalog,
		Normalize: m.cfg.Pipeline,
		Fallback:  m.cfg.Providers.LLM,
		Persona:   cfg.Session.Persona,
		Telemetry: m.cfg.Emitter,
		Metrics:   m.cfg.Metrics,
		Logger:    m.log,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build controller: %w", err)
	}

	seg, err := segment.New(segment.Config{
		SampleRate:    cfg.Audio.SampleRate,
		FrameDuration: cfg.Audio.FrameDuration,
		EnergyFloor:   cfg.Audio.EnergyFloor,
		ConfirmFrames: cfg.Audio.ConfirmFrames,
		SilenceEnd:    cfg.Audio.SilenceEnd,
		MinUtterance:  cfg.Audio.MinUtterance,
		PreRoll:       cfg.Audio.PreRoll,
		StartupGrace:  cfg.Audio.StartupGrace,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build segmenter: %w", err)
	}

	sess, err := session.NewSession(session.RuntimeConfig{
		Controller: ctrl,
		Segmenter:  seg,
		STT:        m.cfg.Providers.STT,
		STTConfig: stt.Config{
			SampleRate: cfg.Audio.SampleRate,
			Language:   cfg.Session.Language,
			Vocabulary: m.cfg.Catalog.Vocabulary(),
		},
		TTS: m.cfg.Providers.TTS,
		Voice: types.VoiceProfile{
			Voice: cfg.Session.Voice,
			Speed: cfg.Session.SpeechSpeed,
		},
		Events:        events,
		MinConfidence: cfg.Session.MinConfidence,
		Heartbeat: session.HeartbeatConfig{
			Enabled:     cfg.Session.HeartbeatEnabled,
			IdleTimeout: cfg.Session.IdleTimeout,
			MaxNudges:   cfg.Session.MaxNudges,
		},
		Metrics: m.cfg.Metrics,
		Logger:  m.log.With("session_id", id),
	})
	if err != nil {
		return nil, fmt.Errorf("app: build session: %w", err)
	}

	m.track(id, sess)
	m.log.Info("session created", "session_id", id, "tenant", cfg.Catalog.Tenant)
	return sess, nil
}

func (m *SessionManager) track(id string, sess *session.Session) {
	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ActiveSessions.Add(context.Background(), 1)
	}
	go func() {
		<-sess.Done()
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
		}
	}()
}

// Count reports the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll shuts down every live session. Called during app shutdown,
// after the listener has stopped accepting new connections.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	live := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()
	for _, s := range live {
		s.Close()
	}
}

// newSessionID returns a random 16-hex-char identifier.
func newSessionID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("app: session id entropy: %v", err))
	}
	return hex.EncodeToString(b[:])
}
