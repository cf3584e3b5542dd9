// Package app wires all phonescan subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithRecognizer, WithMetrics). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phonescan/internal/config"
	"github.com/MrWong99/phonescan/internal/export"
	"github.com/MrWong99/phonescan/internal/health"
	"github.com/MrWong99/phonescan/internal/observe"
	"github.com/MrWong99/phonescan/internal/resilience"
	"github.com/MrWong99/phonescan/internal/results"
	"github.com/MrWong99/phonescan/pkg/provider/ocr"
)

// serverShutdownTimeout bounds the graceful HTTP shutdown in Run.
const serverShutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes of the phonescan server.
type App struct {
	cfg *config.Config

	registry   *config.Registry
	store      results.Store
	recognizer ocr.Provider
	fallback   *resilience.OCRFallback
	metrics    *observe.Metrics
	logLevel   *slog.LevelVar

	sessions *SessionManager
	stream   *StreamHandler
	handler  http.Handler
	metricsH http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a results store instead of opening one from config.
// The caller keeps ownership; Shutdown does not close it.
func WithStore(s results.Store) Option {
	return func(a *App) { a.store = s }
}

// WithRecognizer injects a recognizer instead of building one through the
// registry.
func WithRecognizer(p ocr.Provider) Option {
	return func(a *App) { a.recognizer = p }
}

// WithRegistry sets the registry used to build recognizers from config.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics sets the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler replaces the /metrics handler. Defaults to
// promhttp.Handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsH = h }
}

// WithLogLevel lets [App.ApplyConfig] change the level of the process logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsH == nil {
		a.metricsH = promhttp.Handler()
	}

	// ── 1. Results store ─────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init results store: %w", err)
	}

	// ── 2. Recognizer ────────────────────────────────────────────────────
	if err := a.initRecognizer(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init recognizer: %w", err)
	}

	// ── 3. Sessions + stream endpoint ────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Store:       a.store,
		Settings:    cfg.ScanSettings(),
		MaxSessions: cfg.Scan.MaxSessions,
		Metrics:     a.metrics,
	})
	a.stream = NewStreamHandler(a.sessions, a.recognizer, cfg.Scan.ProgressEvery)

	// ── 4. HTTP routes ───────────────────────────────────────────────────
	a.handler = a.routes()

	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	s, err := OpenStore(ctx, a.cfg.Results)
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	slog.Info("results store opened", "driver", a.cfg.Results.Driver)
	return nil
}

func (a *App) initRecognizer() error {
	if a.recognizer != nil || !a.cfg.Recognizer.Enabled() {
		return nil
	}
	if a.registry == nil {
		return errors.New("recognizer configured but no registry provided")
	}
	fb, err := BuildRecognizer(a.registry, a.cfg.Recognizer, a.metrics)
	if err != nil {
		return err
	}
	a.fallback = fb
	a.recognizer = fb
	return nil
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	checkers := []health.Checker{health.PingChecker("results", a.store)}
	if a.fallback != nil {
		checkers = append(checkers, health.BreakerChecker("recognizer", a.fallback.Health))
	}
	health.New(checkers...).Register(mux)

	rh := &resultsHandler{store: a.store, exporter: export.New(a.store, nil)}
	mux.Handle("GET /v1/scan", a.stream)
	mux.HandleFunc("GET /v1/results", rh.list)
	mux.HandleFunc("GET /v1/results.xlsx", rh.xlsx)
	mux.HandleFunc("GET /v1/sessions", sessionsHandler(a.sessions))
	mux.Handle("GET /metrics", a.metricsH)

	return observe.Middleware(a.metrics)(mux)
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Store returns the results store.
func (a *App) Store() results.Store { return a.store }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on server.listen_addr and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts the HTTP server down
// gracefully. It returns nil after a clean shutdown.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a config change. Sections
// that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SettingsChanged {
		a.sessions.UpdateSettings(new.ScanSettings())
	}
	if d.MaxSessionsChanged {
		a.sessions.SetMaxSessions(d.NewMaxSessions)
		slog.Info("session cap changed", "max_sessions", d.NewMaxSessions)
	}
	if d.ProgressEveryChanged {
		a.stream.SetProgressEvery(d.NewProgressEvery)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}
}

// SlogLevel maps a config log level to a slog level. Unknown values map to
// info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops all sessions and runs the closers in order. It respects
// the context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Len(), "closers", len(a.closers))
		a.sessions.StopAll(ctx)

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
