// Package annotate turns a growing lecture transcript into live annotations.
//
// An [Orchestrator] receives the cumulative transcript on every final
// transcription segment, feeds the new words through two [RateGate]s and,
// when a gate opens, asks a [ContextRefresher] for updated lecture context
// and a [NoteGenerator] for short bullet notes. Each request kind is
// single-in-flight: starting a new one cancels the previous one, whose result
// is then discarded. Every request carries a token (generation, sequence)
// and results are applied only while the token is still current, so nothing
// lands after Stop or ClearNotes.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/scribecat/internal/observe"
	"github.com/MrWong99/scribecat/pkg/lecture"
)

// ErrAlreadyRecording is returned by [Orchestrator.Start] when the
// orchestrator is not idle.
var ErrAlreadyRecording = errors.New("annotate: already recording")

// ContextRefresher derives updated lecture context from the transcript.
type ContextRefresher interface {
	Refresh(ctx context.Context, transcript string, previous lecture.Context) (lecture.Context, error)
}

// NoteGenerator produces up to a few short notes for a transcript window.
type NoteGenerator interface {
	Generate(ctx context.Context, transcript string, lc lecture.Context, recordingSeconds float64) ([]lecture.Note, error)
}

// State is the recording lifecycle state.
type State int

const (
	Idle State = iota
	Recording
	Stopping
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is a point-in-time copy of the orchestrator's visible state.
type Snapshot struct {
	State   State
	Enabled bool
	Context lecture.Context
	Notes   []lecture.Note
}

// Config holds the orchestrator's tunables.
type Config struct {
	Context Policy
	Notes   Policy

	// RecentWindowWords is how many trailing words are sent for notes.
	RecentWindowWords int

	// MaxBufferChars caps the stored transcript window.
	MaxBufferChars int

	// RequestTimeout bounds each annotation request. Zero disables it.
	RequestTimeout time.Duration

	// ResetOnSuccess makes a gate restart only after a successful response
	// instead of on every attempt.
	ResetOnSuccess bool
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		Context:           DefaultContextPolicy,
		Notes:             DefaultNotesPolicy,
		RecentWindowWords: 100,
		MaxBufferChars:    DefaultMaxBufferChars,
		RequestTimeout:    30 * time.Second,
	}
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithClock overrides the wall clock used for gates, note ids and elapsed
// time.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithObserver registers fn to be called with a fresh [Snapshot] after every
// applied update. fn runs on the caller's goroutine without the
// orchestrator's lock held.
func WithObserver(fn func(Snapshot)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithMetrics records request outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithResetOnSuccess overrides [Config.ResetOnSuccess].
func WithResetOnSuccess(v bool) Option {
	return func(o *Orchestrator) { o.cfg.ResetOnSuccess = v }
}

type kind int

const (
	kindContext kind = iota
	kindNotes
	numKinds
)

func (k kind) String() string {
	if k == kindContext {
		return "context"
	}
	return "notes"
}

type request struct {
	seq    uint64
	cancel context.CancelFunc
}

type token struct {
	kind       kind
	generation uint64
	seq        uint64
}

// Orchestrator drives live annotation for one recording at a time.
// All methods are safe for concurrent use.
type Orchestrator struct {
	refresher ContextRefresher
	generator NoteGenerator
	now       func() time.Time
	observer  func(Snapshot)
	metrics   *observe.Metrics

	buffer    *Buffer
	ctxGate   *RateGate
	notesGate *RateGate

	mu         sync.Mutex
	cfg        Config
	state      State
	enabled    bool
	lc         lecture.Context
	notes      []lecture.Note
	noteSeq    int
	startedAt  time.Time
	generation uint64
	seq        uint64
	inflight   [numKinds]request
	// rearmed admits the final note request while Stopping.
	rearmed bool
}

// New creates an idle, enabled Orchestrator.
func New(refresher ContextRefresher, generator NoteGenerator, cfg Config, opts ...Option) *Orchestrator {
	if cfg.RecentWindowWords <= 0 {
		cfg.RecentWindowWords = DefaultConfig().RecentWindowWords
	}
	o := &Orchestrator{
		refresher: refresher,
		generator: generator,
		now:       time.Now,
		cfg:       cfg,
		enabled:   true,
		lc:        lecture.EmptyContext(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.buffer = NewBuffer(o.cfg.MaxBufferChars)
	o.ctxGate = NewRateGate(o.cfg.Context, o.now)
	o.notesGate = NewRateGate(o.cfg.Notes, o.now)
	return o
}

// Start moves Idle to Recording and clears everything left from the previous
// recording.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.state != Idle {
		o.mu.Unlock()
		return ErrAlreadyRecording
	}
	o.invalidateLocked()
	o.resetLocked()
	o.startedAt = o.now()
	o.state = Recording
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.notify(snap)
	return nil
}

// ProcessChunk consumes the cumulative transcript after a final segment.
// elapsedSeconds is the recording offset stamped onto generated notes.
//
// When the context gate opens, the refresh completes first and its result is
// used by a note request in the same call. ProcessChunk blocks until both
// requests finish.
func (o *Orchestrator) ProcessChunk(ctx context.Context, cumulative string, elapsedSeconds float64) {
	o.mu.Lock()
	if o.state != Recording || !o.enabled {
		o.mu.Unlock()
		return
	}
	gen := o.generation
	words := lecture.CountWords(o.buffer.Append(cumulative))
	if words == 0 {
		o.mu.Unlock()
		return
	}
	runContext := o.ctxGate.ShouldTrigger(words)
	runNotes := o.notesGate.ShouldTrigger(words)

	var (
		rctx       context.Context
		tok        token
		transcript string
		previous   lecture.Context
	)
	if runContext {
		rctx, tok = o.beginLocked(ctx, kindContext)
		if !o.cfg.ResetOnSuccess {
			o.ctxGate.Fire()
		}
		transcript = o.buffer.Text()
		previous = o.lc.Clone()
	}
	o.mu.Unlock()

	if runContext {
		o.refresh(rctx, tok, transcript, previous)
	}
	if !runNotes {
		return
	}

	o.mu.Lock()
	if o.generation != gen || o.state != Recording || !o.enabled {
		o.mu.Unlock()
		return
	}
	nctx, ntok := o.beginLocked(ctx, kindNotes)
	if !o.cfg.ResetOnSuccess {
		o.notesGate.Fire()
	}
	window := o.buffer.RecentWindow(o.cfg.RecentWindowWords)
	lc := o.lc.Clone()
	o.mu.Unlock()

	o.generate(nctx, ntok, window, lc, elapsedSeconds)
}

// Stop ends the recording. In-flight requests are cancelled and their
// results discarded. If finalTranscript carries words not seen yet, one last
// note request runs synchronously before the orchestrator returns to Idle.
// A second Stop during that request cancels it.
func (o *Orchestrator) Stop(ctx context.Context, finalTranscript string) {
	o.mu.Lock()
	switch o.state {
	case Idle:
		o.mu.Unlock()
		return
	case Stopping:
		o.invalidateLocked()
		o.mu.Unlock()
		return
	}
	o.state = Stopping
	o.invalidateLocked()

	var (
		final   bool
		nctx    context.Context
		tok     token
		window  string
		lc      lecture.Context
		elapsed float64
	)
	if o.enabled && strings.TrimSpace(o.buffer.Append(finalTranscript)) != "" {
		final = true
		o.rearmed = true
		nctx, tok = o.beginLocked(ctx, kindNotes)
		window = o.buffer.RecentWindow(o.cfg.RecentWindowWords)
		lc = o.lc.Clone()
		elapsed = o.now().Sub(o.startedAt).Seconds()
	}
	o.mu.Unlock()

	if final {
		o.generate(nctx, tok, window, lc, elapsed)
	}

	o.mu.Lock()
	o.rearmed = false
	o.buffer.Reset()
	if o.state == Stopping {
		o.state = Idle
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.notify(snap)
}

// ClearNotes discards all notes and context in any state. Pending requests
// are cancelled and the gates and buffer start over.
func (o *Orchestrator) ClearNotes() {
	o.mu.Lock()
	o.invalidateLocked()
	o.resetLocked()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.notify(snap)
}

// SetEnabled toggles annotation. Disabling cancels pending requests.
func (o *Orchestrator) SetEnabled(enabled bool) {
	o.mu.Lock()
	if o.enabled == enabled {
		o.mu.Unlock()
		return
	}
	o.enabled = enabled
	if !enabled {
		o.invalidateLocked()
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.notify(snap)
}

// SetPolicies replaces both gate thresholds. Counters are kept.
func (o *Orchestrator) SetPolicies(contextPolicy, notesPolicy Policy) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg.Context = contextPolicy
	o.cfg.Notes = notesPolicy
	o.ctxGate.SetPolicy(contextPolicy)
	o.notesGate.SetPolicy(notesPolicy)
}

// Enabled reports whether annotation is on.
func (o *Orchestrator) Enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Notes returns a copy of the notes of the current recording.
func (o *Orchestrator) Notes() []lecture.Note {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]lecture.Note(nil), o.notes...)
}

// Context returns a copy of the current lecture context.
func (o *Orchestrator) Context() lecture.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lc.Clone()
}

// Snapshot returns the current visible state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) refresh(ctx context.Context, tok token, transcript string, previous lecture.Context) {
	start := time.Now()
	lc, err := o.refresher.Refresh(ctx, transcript, previous)

	o.mu.Lock()
	status := o.outcomeLocked(ctx, tok, err)
	var snap Snapshot
	if status == observe.StatusOK {
		o.lc = lc.Clamp()
		if o.cfg.ResetOnSuccess {
			o.ctxGate.Fire()
		}
		snap = o.snapshotLocked()
	}
	o.finishLocked(tok)
	o.mu.Unlock()

	o.record(ctx, tok, status, time.Since(start), err)
	if status == observe.StatusOK {
		o.notify(snap)
	}
}

func (o *Orchestrator) generate(ctx context.Context, tok token, window string, lc lecture.Context, elapsedSeconds float64) {
	start := time.Now()
	notes, err := o.generator.Generate(ctx, window, lc, elapsedSeconds)

	o.mu.Lock()
	status := o.outcomeLocked(ctx, tok, err)
	var (
		snap    Snapshot
		applied int
	)
	if status == observe.StatusOK {
		if o.cfg.ResetOnSuccess {
			o.notesGate.Fire()
		}
		now := o.now()
		for _, n := range notes {
			if len(n.Text) == 0 {
				continue
			}
			o.noteSeq++
			n.ID = fmt.Sprintf("note-%d-%d", now.UnixMilli(), o.noteSeq)
			if n.Timestamp == 0 {
				n.Timestamp = now.UnixMilli()
			}
			n.RecordingTime = elapsedSeconds
			o.notes = append(o.notes, n)
			applied++
		}
		snap = o.snapshotLocked()
	}
	o.finishLocked(tok)
	o.mu.Unlock()

	o.record(ctx, tok, status, time.Since(start), err)
	if applied > 0 {
		if o.metrics != nil {
			o.metrics.RecordNotes(context.WithoutCancel(ctx), applied)
		}
		o.notify(snap)
	}
}

// outcomeLocked classifies a finished request. Only StatusOK results may be
// applied.
func (o *Orchestrator) outcomeLocked(ctx context.Context, tok token, err error) string {
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)):
		return observe.StatusCanceled
	case err != nil:
		return observe.StatusError
	case !o.currentLocked(tok):
		return observe.StatusStale
	default:
		return observe.StatusOK
	}
}

func (o *Orchestrator) record(ctx context.Context, tok token, status string, d time.Duration, err error) {
	if status == observe.StatusError {
		slog.Warn("annotate: request failed", "kind", tok.kind.String(), "err", err)
	} else if status != observe.StatusOK {
		slog.Debug("annotate: result discarded", "kind", tok.kind.String(), "status", status)
	}
	if o.metrics != nil {
		o.metrics.RecordAnnotation(context.WithoutCancel(ctx), tok.kind.String(), status, d)
	}
}

// beginLocked starts a request of kind k, cancelling the previous one of the
// same kind.
func (o *Orchestrator) beginLocked(parent context.Context, k kind) (context.Context, token) {
	if prev := o.inflight[k]; prev.cancel != nil {
		prev.cancel()
	}
	o.seq++
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if o.cfg.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, o.cfg.RequestTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	o.inflight[k] = request{seq: o.seq, cancel: cancel}
	return ctx, token{kind: k, generation: o.generation, seq: o.seq}
}

func (o *Orchestrator) finishLocked(tok token) {
	if r := o.inflight[tok.kind]; r.seq == tok.seq && r.cancel != nil {
		r.cancel()
		o.inflight[tok.kind] = request{}
	}
}

func (o *Orchestrator) currentLocked(tok token) bool {
	if tok.generation != o.generation || o.inflight[tok.kind].seq != tok.seq {
		return false
	}
	return o.state == Recording || (o.state == Stopping && o.rearmed)
}

// invalidateLocked cancels every in-flight request and starts a new
// generation so their results are ignored.
func (o *Orchestrator) invalidateLocked() {
	for k := range o.inflight {
		if o.inflight[k].cancel != nil {
			o.inflight[k].cancel()
		}
		o.inflight[k] = request{}
	}
	o.generation++
}

func (o *Orchestrator) resetLocked() {
	o.buffer.Reset()
	o.ctxGate.Reset()
	o.notesGate.Reset()
	o.notes = nil
	o.noteSeq = 0
	o.lc = lecture.EmptyContext()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		State:   o.state,
		Enabled: o.enabled,
		Context: o.lc.Clone(),
		Notes:   append([]lecture.Note(nil), o.notes...),
	}
}

func (o *Orchestrator) notify(s Snapshot) {
	if o.observer != nil {
		o.observer(s)
	}
}
