// Package live serves the recording WebSocket at /live.
//
// A client opens one connection per device and drives recordings with JSON
// control frames:
//
//	{"type":"start","userId":"u1","title":"Thermodynamics 3"}
//	{"type":"stop"}
//	{"type":"clear"}
//	{"type":"enable","enabled":false}
//
// Between start and stop it sends binary frames of 16-bit little-endian mono
// PCM. The server forwards the audio to the transcription provider, corrects
// final segments against the vocabulary of the current lecture context, runs
// the annotation orchestrator, writes the audio to a WAV file and persists the
// session. It pushes events back as JSON text frames with a "type" of
// segment, context, notes, state or error.
package live

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/scribecat/internal/annotate"
	"github.com/MrWong99/scribecat/internal/observe"
	"github.com/MrWong99/scribecat/internal/transcript"
	"github.com/MrWong99/scribecat/pkg/lecture"
	"github.com/MrWong99/scribecat/pkg/provider/stt"
	"github.com/MrWong99/scribecat/pkg/store"
)

const (
	// DefaultSampleRate is the PCM rate clients are expected to send.
	DefaultSampleRate = 16000

	// maxFrameBytes bounds one inbound frame; 1 MiB is 32 s of audio.
	maxFrameBytes = 1 << 20

	writeTimeout = 5 * time.Second
	stopTimeout  = 45 * time.Second
)

// Config configures a [Handler].
type Config struct {
	// STT transcribes the audio. Without it start is refused.
	STT      stt.Provider
	Language string

	// SampleRate of the inbound PCM. Defaults to [DefaultSampleRate].
	SampleRate int

	// Refresher and Generator back the annotation orchestrator. When either
	// is nil annotation stays off.
	Refresher  annotate.ContextRefresher
	Generator  annotate.NoteGenerator
	Annotation annotate.Config

	// AnnotationEnabled is the initial annotation state of a connection.
	AnnotationEnabled bool

	// Corrector rewrites misheard vocabulary in final segments. Optional.
	Corrector *transcript.Corrector

	// Store persists recordings. When nil nothing is saved.
	Store     store.Store
	SaveDelay time.Duration
	AfterSave func(context.Context, store.Session)

	// RecordingsDir receives one WAV file per recording. Empty disables
	// audio files.
	RecordingsDir string

	// OriginPatterns are the allowed cross-origin hosts, see
	// [websocket.AcceptOptions].
	OriginPatterns []string

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Handler accepts live recording connections. It is safe for concurrent use.
type Handler struct {
	// cfg is read-only after New. Threshold changes go to the policy fields.
	cfg     Config
	metrics *observe.Metrics

	mu            sync.Mutex
	contextPolicy annotate.Policy
	notesPolicy   annotate.Policy
	conns         map[*conn]struct{}
}

// New creates a Handler.
func New(cfg Config) *Handler {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Handler{
		cfg:           cfg,
		metrics:       m,
		contextPolicy: cfg.Annotation.Context,
		notesPolicy:   cfg.Annotation.Notes,
		conns:         make(map[*conn]struct{}),
	}
}

// SetPolicies changes the annotation thresholds of open and future
// connections.
func (h *Handler) SetPolicies(contextPolicy, notesPolicy annotate.Policy) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contextPolicy = contextPolicy
	h.notesPolicy = notesPolicy
	for c := range h.conns {
		c.orch.SetPolicies(contextPolicy, notesPolicy)
	}
}

// ActiveConnections returns the number of open connections.
func (h *Handler) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeHTTP upgrades the request and serves the connection until the client
// goes away. A recording still running at that point is stopped and saved.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		slog.Warn("live: websocket accept failed", "err", err)
		return
	}
	defer ws.CloseNow()
	ws.SetReadLimit(maxFrameBytes)

	ctx := r.Context()
	c := h.open(ctx, ws)
	defer h.close(c)

	err = c.run()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	c.stop(stopCtx)
	cancel()

	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		ws.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, context.Canceled):
	default:
		c.log.Debug("live: connection ended", "err", err)
	}
}

func (h *Handler) open(ctx context.Context, ws *websocket.Conn) *conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &conn{h: h, ws: ws, ctx: ctx, log: observe.Logger(ctx), lastCtx: lecture.EmptyContext()}
	acfg := h.cfg.Annotation
	acfg.Context, acfg.Notes = h.contextPolicy, h.notesPolicy
	annotated := h.cfg.Refresher != nil && h.cfg.Generator != nil
	refresher, generator := h.cfg.Refresher, h.cfg.Generator
	if !annotated {
		refresher, generator = disabled{}, disabled{}
	}
	c.annotated = annotated
	c.orch = annotate.New(refresher, generator, acfg,
		annotate.WithObserver(c.onSnapshot),
		annotate.WithMetrics(h.metrics),
	)
	c.orch.SetEnabled(annotated && h.cfg.AnnotationEnabled)

	h.conns[c] = struct{}{}
	return c
}

func (h *Handler) close(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}
