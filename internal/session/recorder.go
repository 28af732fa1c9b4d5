// Package session persists recorded lectures while they are being recorded
// and maintains the session store afterwards.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/scribecat/internal/debounce"
	"github.com/MrWong99/scribecat/pkg/store"
)

// DefaultSaveDelay is the quiet period before pending changes are written.
const DefaultSaveDelay = 2 * time.Second

// defaultSaveTimeout bounds a background save.
const defaultSaveTimeout = 10 * time.Second

// Recorder writes changes of one session to the store, coalescing bursts of
// updates into a single write after a quiet period. Each [Recorder.Record]
// merges into the pending patch, so no field set in between is lost.
//
// All methods are safe for concurrent use.
type Recorder struct {
	store     store.Store
	sessionID string
	afterSave func(context.Context, store.Session)
	deb       *debounce.Debouncer[struct{}]

	// saveMu keeps writes in order.
	saveMu sync.Mutex

	mu      sync.Mutex
	pending store.Patch
	dirty   bool
	lastErr error
	saves   int
}

// RecorderConfig configures a [Recorder].
type RecorderConfig struct {
	// Store receives the updates.
	Store store.Store

	// SessionID is the session being recorded.
	SessionID string

	// Delay is the quiet period. Defaults to [DefaultSaveDelay].
	Delay time.Duration

	// AfterSave, if set, runs after every successful write with the stored
	// session.
	AfterSave func(context.Context, store.Session)
}

// NewRecorder creates a Recorder.
func NewRecorder(cfg RecorderConfig) *Recorder {
	delay := cfg.Delay
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	r := &Recorder{
		store:     cfg.Store,
		sessionID: cfg.SessionID,
		afterSave: cfg.AfterSave,
	}
	r.deb = debounce.New(delay, func(struct{}) {
		ctx, cancel := context.WithTimeout(context.Background(), defaultSaveTimeout)
		defer cancel()
		if err := r.save(ctx); err != nil {
			slog.Warn("session recorder: save failed", "session_id", r.sessionID, "err", err)
		}
	})
	return r
}

// SessionID returns the recorded session's id.
func (r *Recorder) SessionID() string { return r.sessionID }

// Record schedules p to be written after the quiet period.
func (r *Recorder) Record(p store.Patch) {
	if p.IsEmpty() {
		return
	}
	r.mu.Lock()
	r.pending = merge(r.pending, p)
	r.dirty = true
	r.mu.Unlock()
	r.deb.Call(struct{}{})
}

// Flush writes pending changes now.
func (r *Recorder) Flush(ctx context.Context) error {
	r.deb.Take()
	return r.save(ctx)
}

// Close flushes pending changes and stops the Recorder. Later Record calls
// are kept in memory but never written.
func (r *Recorder) Close(ctx context.Context) error {
	r.deb.Stop()
	return r.save(ctx)
}

// Err returns the error of the most recent write, if it failed.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Saves returns how many writes succeeded.
func (r *Recorder) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func (r *Recorder) save(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return nil
	}
	p := r.pending
	r.pending = store.Patch{}
	r.dirty = false
	r.mu.Unlock()

	sess, err := r.store.Update(ctx, r.sessionID, p)

	r.mu.Lock()
	r.lastErr = err
	if err != nil {
		// Keep the fields for the next attempt unless newer values arrived.
		r.pending = merge(p, r.pending)
		r.dirty = true
	} else {
		r.saves++
	}
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("session recorder: save %s: %w", r.sessionID, err)
	}
	if r.afterSave != nil {
		r.afterSave(ctx, sess)
	}
	return nil
}

// merge returns base with every non-nil field of over applied.
func merge(base, over store.Patch) store.Patch {
	if over.Title != nil {
		base.Title = over.Title
	}
	if over.AudioFilePath != nil {
		base.AudioFilePath = over.AudioFilePath
	}
	if over.Transcript != nil {
		base.Transcript = over.Transcript
	}
	if over.Segments != nil {
		base.Segments = over.Segments
	}
	if over.Notes != nil {
		base.Notes = over.Notes
	}
	if over.NotesPlainText != nil {
		base.NotesPlainText = over.NotesPlainText
	}
	if over.NuggetNotes != nil {
		base.NuggetNotes = over.NuggetNotes
	}
	if over.Duration != nil {
		base.Duration = over.Duration
	}
	return base
}
