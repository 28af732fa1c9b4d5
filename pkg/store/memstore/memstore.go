// Package memstore is an in-memory [store.Store]. It backs tests and
// deployments that do not need sessions to survive a restart.
package memstore

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/scribecat/pkg/lecture"
	"github.com/MrWong99/scribecat/pkg/store"
)

var (
	_ store.Store     = (*Store)(nil)
	_ store.NoteIndex = (*Store)(nil)
)

// Store is a thread-safe in-memory session store.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	sessions map[string]store.Session
	notes    map[string]indexed
}

type indexed struct {
	userID string
	notes  []store.IndexedNote
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		sessions: make(map[string]store.Session),
		notes:    make(map[string]indexed),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create implements [store.Store].
func (s *Store) Create(_ context.Context, in store.NewSession) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := store.Build(in, s.now().UTC())
	s.sessions[sess.ID] = sess
	return sess.Clone(), nil
}

// Get implements [store.Store].
func (s *Store) Get(_ context.Context, id string) (store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	return sess.Clone(), nil
}

// Update implements [store.Store].
func (s *Store) Update(_ context.Context, id string, p store.Patch) (store.Session, error) {
	return s.modify(id, func(sess *store.Session, now time.Time) {
		store.Apply(sess, p, now)
	})
}

// AppendSegment implements [store.Store].
func (s *Store) AppendSegment(_ context.Context, id string, seg lecture.Segment) (store.Session, error) {
	return s.modify(id, func(sess *store.Session, now time.Time) {
		store.ApplySegment(sess, seg, now)
	})
}

// List implements [store.Store].
func (s *Store) List(_ context.Context, userID string) ([]store.Session, error) {
	out := s.filter(func(sess store.Session) bool {
		return sess.UserID == userID && !sess.IsDeleted
	})
	slices.SortFunc(out, func(a, b store.Session) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// ListDeleted implements [store.Store].
func (s *Store) ListDeleted(_ context.Context, userID string) ([]store.Session, error) {
	out := s.filter(func(sess store.Session) bool {
		return sess.UserID == userID && sess.IsDeleted
	})
	slices.SortFunc(out, func(a, b store.Session) int { return b.DeletedAt.Compare(*a.DeletedAt) })
	return out, nil
}

// SoftDelete implements [store.Store].
func (s *Store) SoftDelete(_ context.Context, id string) error {
	_, err := s.modify(id, func(sess *store.Session, now time.Time) {
		sess.IsDeleted = true
		sess.DeletedAt = &now
		sess.UpdatedAt = now
	})
	return err
}

// Restore implements [store.Store].
func (s *Store) Restore(_ context.Context, id string) error {
	_, err := s.modify(id, func(sess *store.Session, now time.Time) {
		sess.IsDeleted = false
		sess.DeletedAt = nil
		sess.UpdatedAt = now
	})
	return err
}

// PermanentDelete implements [store.Store].
func (s *Store) PermanentDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.sessions, id)
	delete(s.notes, id)
	return nil
}

// PurgeDeletedBefore implements [store.Store].
func (s *Store) PurgeDeletedBefore(_ context.Context, t time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.IsDeleted && sess.DeletedAt != nil && sess.DeletedAt.Before(t) {
			delete(s.sessions, id)
			delete(s.notes, id)
			n++
		}
	}
	return n, nil
}

// Search implements [store.Store]. Every query word must appear; newer
// sessions rank first.
func (s *Store) Search(_ context.Context, userID, query string, limit int) ([]store.Session, error) {
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}
	out := s.filter(func(sess store.Session) bool {
		return sess.UserID == userID && !sess.IsDeleted && store.Matches(sess, query)
	})
	slices.SortFunc(out, func(a, b store.Session) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// IndexNotes implements [store.NoteIndex].
func (s *Store) IndexNotes(_ context.Context, sessionID, userID string, notes []store.IndexedNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return store.ErrNotFound
	}
	s.notes[sessionID] = indexed{userID: userID, notes: slices.Clone(notes)}
	return nil
}

// SearchNotes implements [store.NoteIndex] with a linear cosine scan.
func (s *Store) SearchNotes(_ context.Context, userID string, embedding []float32, topK int) ([]store.NoteMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []store.NoteMatch
	for sessionID, idx := range s.notes {
		if idx.userID != userID {
			continue
		}
		if sess, ok := s.sessions[sessionID]; !ok || sess.IsDeleted {
			continue
		}
		for _, n := range idx.notes {
			matches = append(matches, store.NoteMatch{
				SessionID: sessionID,
				NoteID:    n.ID,
				Text:      n.Text,
				Distance:  cosineDistance(embedding, n.Embedding),
			})
		}
	}
	slices.SortFunc(matches, func(a, b store.NoteMatch) int { return cmp.Compare(a.Distance, b.Distance) })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	if matches == nil {
		matches = []store.NoteMatch{}
	}
	return matches, nil
}

// Close implements [store.Store].
func (s *Store) Close() error { return nil }

func (s *Store) modify(id string, fn func(*store.Session, time.Time)) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	fn(&sess, s.now().UTC())
	s.sessions[id] = sess
	return sess.Clone(), nil
}

func (s *Store) filter(keep func(store.Session) bool) []store.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if keep(sess) {
			out = append(out, sess.Clone())
		}
	}
	return out
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
