// Package app wires the aclef subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the audio cache, the
// provider fallback chains, the speech service and the HTTP mux; Run serves
// until the context is cancelled; Shutdown releases what New acquired.
//
// For testing, inject doubles via functional options (WithCache, WithMetrics,
// etc.). When an option is not provided, New creates real implementations
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/api"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/audiocache"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/config"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/health"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/observe"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/resilience"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config
	reg *config.Registry

	metrics        *observe.Metrics
	metricsHandler http.Handler
	logLevel       *slog.LevelVar
	watcher        *config.Watcher

	// Subsystems, initialised in New and torn down in Shutdown.
	cache  audiocache.Cache
	sttFB  *resilience.STTFallback
	ttsFB  *resilience.TTSFallback
	speech *liveSpeech
	server *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	addrMu sync.Mutex
	addr   net.Addr

	quit     chan struct{}
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCache injects an audio cache instead of creating one from config.
func WithCache(c audiocache.Cache) Option {
	return func(a *App) { a.cache = c }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler overrides the handler mounted at telemetry.metrics_path.
// Defaults to [promhttp.Handler].
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets hot reload adjust the level of the process logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithWatcher enables hot reload. Run drives the watcher; its change
// callback must forward to [App.ApplyDiff].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg, instantiating providers through reg. Provider
// names the registry does not know are skipped with a warning; any other
// factory error aborts.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, reg: reg, quit: make(chan struct{})}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	// ── 1. Providers ─────────────────────────────────────────────────────
	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}

	// ── 2. Audio cache ───────────────────────────────────────────────────
	if err := a.initCache(ctx); err != nil {
		return nil, fmt.Errorf("app: init cache: %w", err)
	}

	// ── 3. Speech service ────────────────────────────────────────────────
	a.speech = newLiveSpeech(a.serviceDeps(), cfg.Speech)

	// ── 4. HTTP server ───────────────────────────────────────────────────
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) fallbackConfig(kind string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  a.cfg.Resilience.MaxFailures,
			ResetTimeout: a.cfg.Resilience.ResetTimeout,
			HalfOpenMax:  a.cfg.Resilience.HalfOpenMax,
		},
		OnFailure: func(name string, err error) {
			ctx := context.Background()
			a.metrics.RecordProviderError(ctx, name, kind)
			// An open breaker skips the entry without a round trip.
			if !errors.Is(err, resilience.ErrCircuitOpen) {
				a.metrics.RecordProviderRequest(ctx, name, kind, "error")
			}
		},
	}
}

// initProviders builds one fallback chain per provider kind from the
// configured primary and fallbacks.
func (a *App) initProviders() error {
	for _, e := range a.cfg.Providers.STT.Entries() {
		p, err := a.reg.CreateSTT(e)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("provider not registered, skipping", "kind", "stt", "name", e.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("create stt provider %q: %w", e.Name, err)
		}
		if a.sttFB == nil {
			a.sttFB = resilience.NewSTTFallback(p, e.Name, a.fallbackConfig("stt"))
		} else {
			a.sttFB.AddFallback(e.Name, p)
		}
		slog.Info("provider created", "kind", "stt", "name", e.Name)
	}

	for _, e := range a.cfg.Providers.TTS.Entries() {
		p, err := a.reg.CreateTTS(e)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("provider not registered, skipping", "kind", "tts", "name", e.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("create tts provider %q: %w", e.Name, err)
		}
		if a.ttsFB == nil {
			a.ttsFB = resilience.NewTTSFallback(p, e.Name, a.fallbackConfig("tts"))
		} else {
			a.ttsFB.AddFallback(e.Name, p)
		}
		slog.Info("provider created", "kind", "tts", "name", e.Name)
	}
	return nil
}

// initCache creates the configured cache backend unless one was injected.
func (a *App) initCache(ctx context.Context) error {
	if a.cache != nil {
		return nil
	}
	cc := a.cfg.Cache
	switch cc.Backend {
	case config.CacheNone:
		return nil
	case config.CachePostgres:
		pg, err := audiocache.NewPostgres(ctx, cc.PostgresDSN, cc.TTL)
		if err != nil {
			return err
		}
		a.cache = pg
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
	default:
		a.cache = audiocache.NewMemory(
			audiocache.WithMaxEntries(cc.MaxEntries),
			audiocache.WithTTL(cc.TTL),
		)
	}
	slog.Info("audio cache ready", "backend", cc.Backend)
	return nil
}

// serviceDeps returns the providers the speech service is built from. The
// cache decorator sits in front of the TTS chain so a hit skips every
// provider and breaker.
func (a *App) serviceDeps() serviceDeps {
	d := serviceDeps{metrics: a.metrics}
	if a.sttFB != nil {
		d.stt = a.sttFB
	}
	if a.ttsFB != nil {
		var p tts.Provider = a.ttsFB
		if a.cache != nil {
			p = audiocache.NewSynthesizer(p, a.cache, audiocache.WithMetrics(a.metrics))
		}
		d.tts = p
	}
	return d
}

// ─── HTTP ────────────────────────────────────────────────────────────────────

// Handler returns the fully wired HTTP handler: API routes, health probes and
// the metrics endpoint, wrapped in the tracing and metrics middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	api.New(a.speech, api.WithMaxUploadBytes(a.cfg.Server.MaxUploadBytes)).Register(mux)
	health.New(a.checkers()...).Register(mux)
	if path := a.cfg.Telemetry.MetricsPath; path != "" {
		mux.Handle("GET "+path, a.metricsHandler)
	}
	return observe.Middleware(a.metrics)(mux)
}

// checkers returns the readiness checks for the configured subsystems.
func (a *App) checkers() []health.Checker {
	var cs []health.Checker
	if a.cache != nil {
		cs = append(cs, health.Checker{Name: "audiocache", Check: a.cache.Ping})
	}
	if a.sttFB != nil {
		cs = append(cs, health.Checker{Name: "stt", Check: breakersCheck(a.sttFB.Group().States)})
	}
	if a.ttsFB != nil {
		cs = append(cs, health.Checker{Name: "tts", Check: breakersCheck(a.ttsFB.Group().States)})
	}
	return cs
}

// breakersCheck fails only when every provider in a chain has an open
// breaker, since a single closed entry can still serve requests.
func breakersCheck(states func() map[string]resilience.State) func(context.Context) error {
	return func(context.Context) error {
		all := states()
		for _, s := range all {
			if s != resilience.StateOpen {
				return nil
			}
		}
		if len(all) == 0 {
			return nil
		}
		return fmt.Errorf("all %d providers have open circuit breakers", len(all))
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on server.listen_addr and, when configured, polls the
// config file. It blocks until ctx is cancelled, [App.Shutdown] is called or
// the server fails. On cancellation the server is drained within
// server.shutdown_timeout before Run returns.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	a.addrMu.Lock()
	a.addr = ln.Addr()
	a.addrMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-a.quit:
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	slog.Info("app running", "addr", ln.Addr().String())
	return g.Wait()
}

// Addr returns the address the server listens on, or nil before Run has
// bound its listener.
func (a *App) Addr() net.Addr {
	a.addrMu.Lock()
	defer a.addrMu.Unlock()
	return a.addr
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyDiff applies the hot-reloadable parts of a config change and logs the
// sections that only take effect after a restart.
func (a *App) ApplyDiff(d config.ConfigDiff) {
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.LanguageChanged || d.DefaultVoiceChanged || d.PhoneticHintsChanged {
		sc := a.speech.settings()
		if d.LanguageChanged {
			sc.Language = d.NewLanguage
		}
		if d.DefaultVoiceChanged {
			sc.DefaultVoice = d.NewDefaultVoice
		}
		if d.PhoneticHintsChanged {
			sc.PhoneticHints = d.NewPhoneticHints
		}
		a.speech.reload(sc)
		slog.Info("speech settings reloaded",
			"language", sc.Language,
			"voice", sc.DefaultVoice.VoiceID,
			"phonetic_hints", sc.PhoneticHints,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}
}

// SlogLevel converts a config log level to its slog equivalent.
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

// Shutdown drains the HTTP server, stops the watcher and runs the closers.
// It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		close(a.quit)

		if a.watcher != nil {
			a.watcher.Stop()
		}
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}

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

// ─── Accessors ───────────────────────────────────────────────────────────────

// STT returns the STT fallback chain, or nil when no provider was created.
func (a *App) STT() stt.Provider {
	if a.sttFB == nil {
		return nil
	}
	return a.sttFB
}

// Cache returns the audio cache, or nil when caching is disabled.
func (a *App) Cache() audiocache.Cache { return a.cache }
