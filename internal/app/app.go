// Package app wires all maitred subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown
// tears everything down in reverse construction order.
//
// For testing, inject doubles via functional options (WithCatalogStore,
// WithTelemetrySink). When an option is not provided, New builds real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/voxterra/maitred/internal/catalog"
	"github.com/voxterra/maitred/internal/config"
	"github.com/voxterra/maitred/internal/gateway"
	"github.com/voxterra/maitred/internal/health"
	"github.com/voxterra/maitred/internal/normalize"
	"github.com/voxterra/maitred/internal/observe"
	"github.com/voxterra/maitred/internal/telemetry"
	"github.com/voxterra/maitred/pkg/provider/llm"
	"github.com/voxterra/maitred/pkg/provider/stt"
	"github.com/voxterra/maitred/pkg/provider/tts"
)

// Providers holds one interface value per pipeline stage. LLM may be
// nil, in which case unresolved turns get the scripted re-prompt.
// Populated by main via the config registry.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	catalog  *catalog.Snapshot
	pipeline *normalize.Pipeline
	emitter  *telemetry.Emitter
	metrics  *observe.Metrics
	sessions *SessionManager
	server   *http.Server
	pool     *pgxpool.Pool

	// injected test doubles, nil outside tests
	store catalog.Store
	sink  telemetry.Sink

	// closers are called in reverse order during Shutdown.
	closers  []func(context.Context) error
	stopOnce sync.Once
	stopErr  error
}

// Option is a functional option for New. Use these to inject doubles.
type Option func(*App)

// WithCatalogStore injects a catalog store instead of dialing Postgres.
func WithCatalogStore(s catalog.Store) Option {
	return func(a *App) { a.store = s }
}

// WithTelemetrySink injects a telemetry sink instead of dialing Postgres.
func WithTelemetrySink(s telemetry.Sink) Option {
	return func(a *App) { a.sink = s }
}

// New builds the full server from config. The context bounds startup
// work (connection dialing, migrations, catalog load).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.TTS == nil {
		return nil, errors.New("app: STT and TTS providers are required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, opt := range opts {
		opt(a)
	}

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return nil, fmt.Errorf("app: init metrics provider: %w", err)
	}
	a.closers = append(a.closers, shutdownMetrics)
	a.metrics, err = observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("app: create metrics: %w", err)
	}

	if err := a.initStores(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	if err := a.initCatalog(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	a.initTelemetry()
	if err := a.initHTTP(); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// initStores dials Postgres for whichever stores were not injected. The
// catalog and telemetry DSNs may point at different databases; the sink
// only shares the catalog pool when they are literally the same.
func (a *App) initStores(ctx context.Context) error {
	if a.store == nil {
		pool, err := a.dialPostgres(ctx, a.cfg.Catalog.PostgresDSN)
		if err != nil {
			return err
		}
		a.pool = pool
		store := catalog.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		a.store = store
	}

	if a.sink == nil && a.cfg.Telemetry.PostgresDSN != "" {
		pool := a.pool
		if pool == nil || a.cfg.Telemetry.PostgresDSN != a.cfg.Catalog.PostgresDSN {
			p, err := a.dialPostgres(ctx, a.cfg.Telemetry.PostgresDSN)
			if err != nil {
				return fmt.Errorf("app: telemetry store: %w", err)
			}
			pool = p
		}
		sink := telemetry.NewPostgresSink(pool)
		if err := sink.Migrate(ctx); err != nil {
			return err
		}
		a.sink = sink
	}
	return nil
}

// dialPostgres opens and verifies one pool, registering its closer.
func (a *App) dialPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("app: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: ping postgres: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		pool.Close()
		return nil
	})
	return pool, nil
}

// initCatalog loads the tenant menu and normalization rules.
func (a *App) initCatalog(ctx context.Context) error {
	snapshot, err := a.store.LoadSnapshot(ctx, a.cfg.Catalog.Tenant)
	if err != nil {
		return fmt.Errorf("app: load catalog for tenant %q: %w", a.cfg.Catalog.Tenant, err)
	}
	ruleset, err := a.store.LoadRuleset(ctx, a.cfg.Catalog.Tenant)
	if err != nil {
		return fmt.Errorf("app: load normalization rules: %w", err)
	}
	pipeline, err := normalize.NewPipeline(ruleset)
	if err != nil {
		return fmt.Errorf("app: compile normalization rules: %w", err)
	}
	a.catalog = snapshot
	a.pipeline = pipeline
	slog.Info("catalog loaded",
		"tenant", a.cfg.Catalog.Tenant,
		"items", snapshot.Len(),
	)
	return nil
}

// initTelemetry starts the event emitter when a sink is available.
func (a *App) initTelemetry() {
	if a.sink == nil {
		return
	}
	var opts []telemetry.Option
	if a.cfg.Telemetry.QueueSize > 0 {
		opts = append(opts, telemetry.WithQueueSize(a.cfg.Telemetry.QueueSize))
	}
	if a.cfg.Telemetry.DeliveryTimeout > 0 {
		opts = append(opts, telemetry.WithDeliveryTimeout(a.cfg.Telemetry.DeliveryTimeout))
	}
	opts = append(opts, telemetry.WithDropHook(func() {
		a.metrics.TelemetryDropped.Add(context.Background(), 1)
	}))
	a.emitter = telemetry.NewEmitter(a.sink, slog.Default(), opts...)
	a.closers = append(a.closers, func(context.Context) error {
		a.emitter.Close()
		return nil
	})
}

// initHTTP assembles the session manager, gateway and health routes.
func (a *App) initHTTP() error {
	a.sessions = NewSessionManager(ManagerConfig{
		Config:    a.cfg,
		Providers: a.providers,
		Catalog:   a.catalog,
		Pipeline:  a.pipeline,
		Emitter:   a.emitter,
		Metrics:   a.metrics,
	})
	a.closers = append(a.closers, func(ctx context.Context) error {
		a.sessions.CloseAll()
		return nil
	})

	gw, err := gateway.NewHandler(gateway.Config{
		NewSession: a.sessions.Create,
		SampleRate: a.cfg.Audio.SampleRate,
		Metrics:    a.metrics,
		Logger:     slog.Default(),
	})
	if err != nil {
		return err
	}

	checkers := []health.Checker{}
	if a.pool != nil {
		checkers = append(checkers, health.Database("database", func(ctx context.Context) error {
			return a.pool.Ping(ctx)
		}))
	}
	checkers = append(checkers, health.Checker{
		Name: "catalog",
		Check: func(context.Context) error {
			if a.catalog.Len() == 0 {
				return errors.New("catalog is empty")
			}
			return nil
		},
	})

	mux := http.NewServeMux()
	gw.Register(mux)
	health.New(checkers...).Register(mux)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Run serves HTTP until ctx is cancelled, then drains the listener.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("listening", "addr", a.cfg.Server.ListenAddr)
	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.server.Shutdown(drainCtx); err != nil {
			return fmt.Errorf("app: drain listener: %w", err)
		}
		return ctx.Err()
	}
}

// Shutdown tears everything down in reverse construction order: live
// sessions first so their closing turns can still reach telemetry, the
// emitter next, connections and the metrics provider last.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() { a.stopErr = a.close(ctx) })
	return a.stopErr
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
