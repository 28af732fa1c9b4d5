// Package app wires the ScribeCat subsystems into a running server.
//
// [New] builds the session store, the note index, the annotation pipeline,
// the HTTP API, the live WebSocket, the health probes and the optional MCP
// study tools from a [config.Config] and a set of [Providers]. [App.Run]
// serves HTTP and runs the trash janitor until the context ends; [App.Shutdown]
// releases what New opened.
//
// Tests inject doubles with the With* options. Anything not injected is
// created from the config.
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

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/scribecat/internal/annotate"
	"github.com/MrWong99/scribecat/internal/api"
	"github.com/MrWong99/scribecat/internal/config"
	"github.com/MrWong99/scribecat/internal/health"
	"github.com/MrWong99/scribecat/internal/live"
	"github.com/MrWong99/scribecat/internal/mcp/studytools"
	"github.com/MrWong99/scribecat/internal/nugget"
	"github.com/MrWong99/scribecat/internal/observe"
	"github.com/MrWong99/scribecat/internal/resilience"
	"github.com/MrWong99/scribecat/internal/session"
	"github.com/MrWong99/scribecat/internal/transcript"
	"github.com/MrWong99/scribecat/internal/transcript/phonetic"
	"github.com/MrWong99/scribecat/pkg/provider/embeddings"
	"github.com/MrWong99/scribecat/pkg/provider/llm"
	"github.com/MrWong99/scribecat/pkg/provider/stt"
	"github.com/MrWong99/scribecat/pkg/store"
	"github.com/MrWong99/scribecat/pkg/store/memstore"
	"github.com/MrWong99/scribecat/pkg/store/postgres"
	"github.com/MrWong99/scribecat/pkg/store/sqlite"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Providers holds one value per provider slot. Nil means not configured.
// main fills it through the config registry.
type Providers struct {
	// LLM serves notes, full notes and chat. It is usually a
	// [resilience.LLMFallback] when fallbacks are configured.
	LLM llm.Provider

	// ContextLLM serves context refreshes. Defaults to LLM.
	ContextLLM llm.Provider

	STT        stt.Provider
	Embeddings embeddings.Provider
}

// App owns the lifetime of every subsystem.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	level     *slog.LevelVar

	store   store.Store
	indexer *session.Indexer
	api     *api.Server
	live    *live.Handler
	health  *health.Handler
	janitor *session.Janitor
	mcp     http.Handler
	handler http.Handler

	closers  []func() error
	stopOnce sync.Once
}

// Option customises [New].
type Option func(*App)

// WithStore injects a session store instead of opening one from config.
// The app does not close an injected store.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the app the level variable of the installed slog
// handler so config reloads can change it.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// New wires every subsystem. It opens the store synchronously and fails if
// it cannot.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.providers.ContextLLM == nil {
		a.providers.ContextLLM = a.providers.LLM
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.initIndexer()
	a.initJanitor()
	if err := a.initLive(); err != nil {
		return nil, fmt.Errorf("app: init live: %w", err)
	}
	a.initAPI()
	a.initHealth()
	if err := a.initMCP(); err != nil {
		return nil, fmt.Errorf("app: init mcp: %w", err)
	}
	a.handler = a.routes()
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	sc := a.cfg.Storage
	switch sc.Driver {
	case config.StoragePostgres:
		s, err := postgres.NewStore(ctx, sc.DSN, sc.EmbeddingDimensions)
		if err != nil {
			return err
		}
		a.store = s
	case config.StorageSQLite:
		s, err := sqlite.Open(ctx, sc.DSN)
		if err != nil {
			return err
		}
		a.store = s
	default:
		a.store = memstore.New()
	}
	a.closers = append(a.closers, a.store.Close)
	slog.Info("session store ready", "driver", string(sc.Driver))
	return nil
}

func (a *App) initIndexer() {
	if a.providers.Embeddings == nil {
		return
	}
	idx, ok := a.store.(store.NoteIndex)
	if !ok {
		slog.Warn("semantic search disabled: store has no note index", "driver", string(a.cfg.Storage.Driver))
		return
	}
	a.indexer = session.NewIndexer(a.providers.Embeddings, idx)
}

func (a *App) initJanitor() {
	a.janitor = session.NewJanitor(session.JanitorConfig{
		Store:        a.store,
		DeletedTTL:   a.cfg.Retention.DeletedTTL,
		PurgeHourUTC: a.cfg.Retention.PurgeHourUTC,
		Metrics:      a.metrics,
	})
}

// annotators picks the context refresher and note generator for the live
// pipeline: a remote endpoint when configured, otherwise the in-process
// model calls. Both nil means annotation is unavailable.
func (a *App) annotators() (annotate.ContextRefresher, annotate.NoteGenerator, error) {
	ac := a.cfg.Annotation
	if ac.Endpoint != "" {
		c, err := annotate.NewClient(ac.Endpoint, annotate.WithHTTPTimeout(ac.RequestTimeout))
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	}
	if a.providers.LLM == nil {
		return nil, nil, nil
	}
	l := annotate.NewLocal(nugget.NewExtractor(a.providers.ContextLLM), nugget.NewWriter(a.providers.LLM))
	return l, l, nil
}

// annotationConfig converts the config section into orchestrator tunables.
func annotationConfig(ac config.AnnotationConfig) annotate.Config {
	return annotate.Config{
		Context:           annotate.Policy{MinWords: ac.ContextMinWords, MinInterval: ac.ContextInterval},
		Notes:             annotate.Policy{MinWords: ac.NotesMinWords, MinInterval: ac.NotesInterval},
		RecentWindowWords: ac.RecentWindowWords,
		MaxBufferChars:    ac.MaxBufferChars,
		RequestTimeout:    ac.RequestTimeout,
		ResetOnSuccess:    ac.ResetOnSuccess,
	}
}

func (a *App) initLive() error {
	refresher, generator, err := a.annotators()
	if err != nil {
		return err
	}
	var afterSave func(context.Context, store.Session)
	if a.indexer != nil {
		afterSave = a.indexer.AfterSave
	}
	a.live = live.New(live.Config{
		STT:               a.providers.STT,
		Refresher:         refresher,
		Generator:         generator,
		Annotation:        annotationConfig(a.cfg.Annotation),
		AnnotationEnabled: a.cfg.Annotation.IsEnabled(),
		Corrector:         transcript.NewCorrector(phonetic.New()),
		Store:             a.store,
		SaveDelay:         a.cfg.Recorder.SaveDelay,
		AfterSave:         afterSave,
		RecordingsDir:     a.cfg.Storage.RecordingsDir,
		OriginPatterns:    originPatterns(a.cfg.Server.CORSOrigin),
		Metrics:           a.metrics,
	})
	return nil
}

// originPatterns maps the CORS origin onto WebSocket origin patterns.
func originPatterns(origin string) []string {
	if origin == "" || origin == "*" {
		return []string{"*"}
	}
	return []string{origin}
}

func (a *App) initAPI() {
	cfg := api.Config{
		Store:   a.store,
		Indexer: a.indexer,
		Metrics: a.metrics,
	}
	if p := a.providers.LLM; p != nil {
		cfg.Extractor = nugget.NewExtractor(a.providers.ContextLLM)
		cfg.Writer = nugget.NewWriter(p)
		cfg.NoteTaker = nugget.NewNoteTaker(p)
		cfg.Chat = nugget.NewChat(p)
	}
	if m, ok := a.providers.STT.(api.TokenMinter); ok {
		cfg.Tokens = m
	}
	a.api = api.New(cfg)
}

func (a *App) initHealth() {
	checkers := []health.Checker{health.StoreChecker(a.store)}
	if fb, ok := a.providers.LLM.(*resilience.LLMFallback); ok {
		checkers = append(checkers, health.BreakerChecker("llm", fb.States))
	}
	if a.providers.ContextLLM != a.providers.LLM {
		if fb, ok := a.providers.ContextLLM.(*resilience.LLMFallback); ok {
			checkers = append(checkers, health.BreakerChecker("context_llm", fb.States))
		}
	}
	a.health = health.New(checkers...)
}

func (a *App) initMCP() error {
	if !a.cfg.MCP.Enabled {
		return nil
	}
	cfg := studytools.Config{Store: a.store, Indexer: a.indexer, Metrics: a.metrics}
	if a.providers.LLM != nil {
		cfg.Chat = nugget.NewChat(a.providers.LLM)
	}
	srv, err := studytools.NewServer(cfg)
	if err != nil {
		return err
	}
	a.mcp = studytools.Handler(srv)
	return nil
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	a.api.Register(mux)
	a.health.Register(mux)
	mux.Handle("GET /live", a.live)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	if a.mcp != nil {
		path := a.cfg.MCP.Path
		if path == "" {
			path = config.DefaultMCPPath
		}
		mux.Handle(path, a.mcp)
	}
	return observe.Middleware(a.metrics)(api.CORS(a.cfg.Server.CORSOrigin)(mux))
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Live returns the live recording handler.
func (a *App) Live() *live.Handler { return a.live }

// Run serves HTTP on the configured address and runs the janitor until ctx
// is cancelled, then drains the server. It returns nil after a clean stop.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})
	g.Go(func() error {
		return a.janitor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ApplyConfig applies the hot-reloadable part of a config change: the log
// level and the annotation thresholds of open and future recordings. It is
// the onChange callback of a [config.Watcher].
func (a *App) ApplyConfig(old, cur *config.Config) {
	d := config.Diff(old, cur)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", string(d.NewLogLevel))
	}
	if d.AnnotationChanged {
		ac := annotationConfig(d.NewAnnotation)
		a.live.SetPolicies(ac.Context, ac.Notes)
		slog.Info("annotation thresholds changed",
			"context_min_words", ac.Context.MinWords, "context_interval", ac.Context.MinInterval,
			"notes_min_words", ac.Notes.MinWords, "notes_interval", ac.Notes.MinInterval)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart", "sections", d.RestartRequired)
	}
	a.cfg = cur
}

// Shutdown releases everything New opened. It is safe to call more than
// once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				return
			}
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// SlogLevel maps a config level onto slog.
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
