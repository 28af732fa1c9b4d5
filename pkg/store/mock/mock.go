// Package mock provides a recording test double for [store.Store].
//
// The mock keeps real state in a [memstore.Store] so callers can read back
// what was written, records every call, and lets tests inject errors per
// method.
//
//	s := mock.New()
//	s.UpdateErr = errors.New("disk full")
//	// … exercise the system under test …
//	if got := s.CallCount("Update"); got != 1 { … }
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/scribecat/pkg/lecture"
	"github.com/MrWong99/scribecat/pkg/store"
	"github.com/MrWong99/scribecat/pkg/store/memstore"
)

var _ store.Store = (*Store)(nil)

// Call records one method invocation.
type Call struct {
	Method string
	// Args holds the non-context arguments, in order.
	Args []any
}

// Store is a configurable test double for [store.Store]. All *Err fields
// default to nil, in which case the call reaches the in-memory backend.
type Store struct {
	mu    sync.Mutex
	calls []Call
	mem   *memstore.Store

	CreateErr        error
	GetErr           error
	UpdateErr        error
	AppendSegmentErr error
	ListErr          error
	DeleteErr        error
	SearchErr        error
	PurgeErr         error
}

// New returns an empty mock store.
func New(opts ...memstore.Option) *Store {
	return &Store{mem: memstore.New(opts...)}
}

// Calls returns a copy of all recorded calls.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how many times method was called.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears the call log and all injected errors.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.CreateErr, s.GetErr, s.UpdateErr, s.AppendSegmentErr = nil, nil, nil, nil
	s.ListErr, s.DeleteErr, s.SearchErr, s.PurgeErr = nil, nil, nil, nil
}

func (s *Store) record(method string, err *error, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: method, Args: args})
	return *err
}

// Create implements [store.Store].
func (s *Store) Create(ctx context.Context, in store.NewSession) (store.Session, error) {
	if err := s.record("Create", &s.CreateErr, in); err != nil {
		return store.Session{}, err
	}
	return s.mem.Create(ctx, in)
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, id string) (store.Session, error) {
	if err := s.record("Get", &s.GetErr, id); err != nil {
		return store.Session{}, err
	}
	return s.mem.Get(ctx, id)
}

// Update implements [store.Store].
func (s *Store) Update(ctx context.Context, id string, p store.Patch) (store.Session, error) {
	if err := s.record("Update", &s.UpdateErr, id, p); err != nil {
		return store.Session{}, err
	}
	return s.mem.Update(ctx, id, p)
}

// AppendSegment implements [store.Store].
func (s *Store) AppendSegment(ctx context.Context, id string, seg lecture.Segment) (store.Session, error) {
	if err := s.record("AppendSegment", &s.AppendSegmentErr, id, seg); err != nil {
		return store.Session{}, err
	}
	return s.mem.AppendSegment(ctx, id, seg)
}

// List implements [store.Store].
func (s *Store) List(ctx context.Context, userID string) ([]store.Session, error) {
	if err := s.record("List", &s.ListErr, userID); err != nil {
		return nil, err
	}
	return s.mem.List(ctx, userID)
}

// ListDeleted implements [store.Store].
func (s *Store) ListDeleted(ctx context.Context, userID string) ([]store.Session, error) {
	if err := s.record("ListDeleted", &s.ListErr, userID); err != nil {
		return nil, err
	}
	return s.mem.ListDeleted(ctx, userID)
}

// SoftDelete implements [store.Store].
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	if err := s.record("SoftDelete", &s.DeleteErr, id); err != nil {
		return err
	}
	return s.mem.SoftDelete(ctx, id)
}

// Restore implements [store.Store].
func (s *Store) Restore(ctx context.Context, id string) error {
	if err := s.record("Restore", &s.DeleteErr, id); err != nil {
		return err
	}
	return s.mem.Restore(ctx, id)
}

// PermanentDelete implements [store.Store].
func (s *Store) PermanentDelete(ctx context.Context, id string) error {
	if err := s.record("PermanentDelete", &s.DeleteErr, id); err != nil {
		return err
	}
	return s.mem.PermanentDelete(ctx, id)
}

// PurgeDeletedBefore implements [store.Store].
func (s *Store) PurgeDeletedBefore(ctx context.Context, t time.Time) (int, error) {
	if err := s.record("PurgeDeletedBefore", &s.PurgeErr, t); err != nil {
		return 0, err
	}
	return s.mem.PurgeDeletedBefore(ctx, t)
}

// Search implements [store.Store].
func (s *Store) Search(ctx context.Context, userID, query string, limit int) ([]store.Session, error) {
	if err := s.record("Search", &s.SearchErr, userID, query, limit); err != nil {
		return nil, err
	}
	return s.mem.Search(ctx, userID, query, limit)
}

// Close implements [store.Store].
func (s *Store) Close() error { return nil }
