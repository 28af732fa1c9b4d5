// Package storetest holds behaviour tests shared by every [store.Store]
// backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/scribecat/pkg/lecture"
	"github.com/MrWong99/scribecat/pkg/store"
)

// Clock is a manual clock. Every call to Now advances it by one second so
// consecutive writes get distinct timestamps.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a Clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{t: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)}
}

// Now returns the current instant and advances by one second.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Factory opens an empty store driven by clock.
type Factory func(t *testing.T, clock *Clock) store.Store

// Run exercises the full [store.Store] contract against stores from open.
func Run(t *testing.T, open Factory) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, open) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open) })
	t.Run("UpdateOnlyNonNil", func(t *testing.T) { testUpdate(t, open) })
	t.Run("AppendSegment", func(t *testing.T) { testAppendSegment(t, open) })
	t.Run("ListNewestFirst", func(t *testing.T) { testList(t, open) })
	t.Run("TrashAndRestore", func(t *testing.T) { testTrash(t, open) })
	t.Run("PurgeDeletedBefore", func(t *testing.T) { testPurge(t, open) })
	t.Run("Search", func(t *testing.T) { testSearch(t, open) })
}

func testCreateGet(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, NewClock())

	created, err := s.Create(ctx, store.NewSession{UserID: "u1", Title: "Biology 101"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create returned an empty id")
	}
	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Biology 101" || got.UserID != "u1" || got.IsDeleted {
		t.Errorf("Get = %+v", got)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
	}
	if got.Segments == nil || got.NuggetNotes == nil {
		t.Error("slices should be non-nil")
	}
}

func testGetMissing(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, NewClock())

	if _, err := s.Get(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get missing: err = %v, want ErrNotFound", err)
	}
	if _, err := s.Update(ctx, "00000000-0000-0000-0000-000000000000", store.Patch{Title: store.Ptr("x")}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update missing: err = %v, want ErrNotFound", err)
	}
	if err := s.SoftDelete(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SoftDelete missing: err = %v, want ErrNotFound", err)
	}
}

func testUpdate(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, NewClock())

	created, _ := s.Create(ctx, store.NewSession{UserID: "u1", Title: "Chemistry"})
	notes := []lecture.Note{{ID: "note-1-1", Text: "Atoms bond", Timestamp: 1, RecordingTime: 2.5}}
	updated, err := s.Update(ctx, created.ID, store.Patch{
		Notes:       store.Ptr("# Bonds"),
		NuggetNotes: &notes,
		Duration:    store.Ptr(int64(90_000)),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "Chemistry" {
		t.Errorf("Title changed to %q", updated.Title)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Errorf("UpdatedAt not bumped: %v -> %v", created.UpdatedAt, updated.UpdatedAt)
	}

	got, _ := s.Get(ctx, created.ID)
	if got.Notes != "# Bonds" || got.Duration != 90_000 {
		t.Errorf("Get after Update = %+v", got)
	}
	if len(got.NuggetNotes) != 1 || got.NuggetNotes[0].RecordingTime != 2.5 {
		t.Errorf("NuggetNotes = %+v", got.NuggetNotes)
	}
}

func testAppendSegment(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, NewClock())

	created, _ := s.Create(ctx, store.NewSession{UserID: "u1"})
	segs := []lecture.Segment{
		{Text: "hello", TimestampMs: 1, IsFinal: true},
		{Text: "wor", TimestampMs: 2},
		{Text: "world", TimestampMs: 3, IsFinal: true},
	}
	var got store.Session
	for _, seg := range segs {
		var err error
		if got, err = s.AppendSegment(ctx, created.ID, seg); err != nil {
			t.Fatalf("AppendSegment: %v", err)
		}
	}
	if len(got.Segments) != 2 {
		t.Fatalf("len(Segments) = %d, want 2 (partial replaced)", len(got.Segments))
	}
	if got.Transcript != "hello world" {
		t.Errorf("Transcript = %q, want %q", got.Transcript, "hello world")
	}
}

func testList(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, NewClock())

	first, _ := s.Create(ctx, store.NewSession{UserID: "u1", Title: "first"})
	second, _ := s.Create(ctx, store.NewSession{UserID: "u1", Title: "second"})
	_, _ = s.Create(ctx, store.NewSession{UserID: "u2", Title: "other user"})

	list, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("List order = %v", ids(list))
	}
}

func testTrash(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, NewClock())

	a, _ := s.Create(ctx, store.NewSession{UserID: "u1", Title: "a"})
	b, _ := s.Create(ctx, store.NewSession{UserID: "u1", Title: "b"})

	if err := s.SoftDelete(ctx, a.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if err := s.SoftDelete(ctx, b.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if list, _ := s.List(ctx, "u1"); len(list) != 0 {
		t.Errorf("List after delete = %v", ids(list))
	}
	trash, err := s.ListDeleted(ctx, "u1")
	if err != nil {
		t.Fatalf("ListDeleted: %v", err)
	}
	if len(trash) != 2 || trash[0].ID != b.ID {
		t.Errorf("ListDeleted order = %v, want most recently deleted first", ids(trash))
	}
	if trash[0].DeletedAt == nil || !trash[0].IsDeleted {
		t.Errorf("trashed session = %+v", trash[0])
	}

	if err := s.Restore(ctx, a.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, _ := s.Get(ctx, a.ID)
	if got.IsDeleted || got.DeletedAt != nil {
		t.Errorf("restored session = %+v", got)
	}

	if err := s.PermanentDelete(ctx, b.ID); err != nil {
		t.Fatalf("PermanentDelete: %v", err)
	}
	if _, err := s.Get(ctx, b.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after PermanentDelete: err = %v", err)
	}
}

func testPurge(t *testing.T, open Factory) {
	ctx := context.Background()
	clock := NewClock()
	s := open(t, clock)

	old, _ := s.Create(ctx, store.NewSession{UserID: "u1", Title: "old"})
	recent, _ := s.Create(ctx, store.NewSession{UserID: "u1", Title: "recent"})
	live, _ := s.Create(ctx, store.NewSession{UserID: "u1", Title: "live"})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock.Set(base)
	_ = s.SoftDelete(ctx, old.ID)
	clock.Set(base.Add(40 * 24 * time.Hour))
	_ = s.SoftDelete(ctx, recent.ID)

	n, err := s.PurgeDeletedBefore(ctx, base.Add(10*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeDeletedBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	if _, err := s.Get(ctx, old.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("old trashed session survived the purge")
	}
	for _, id := range []string{recent.ID, live.ID} {
		if _, err := s.Get(ctx, id); err != nil {
			t.Errorf("Get(%s) after purge: %v", id, err)
		}
	}
}

func testSearch(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, NewClock())

	bio, _ := s.Create(ctx, store.NewSession{UserID: "u1", Title: "Biology"})
	_, _ = s.Update(ctx, bio.ID, store.Patch{Transcript: store.Ptr("The mitochondria produces energy for the cell")})
	chem, _ := s.Create(ctx, store.NewSession{UserID: "u1", Title: "Chemistry"})
	_, _ = s.Update(ctx, chem.ID, store.Patch{NotesPlainText: store.Ptr("Covalent bonds share electrons")})
	other, _ := s.Create(ctx, store.NewSession{UserID: "u2", Title: "Biology for u2"})
	_, _ = s.Update(ctx, other.ID, store.Patch{Transcript: store.Ptr("mitochondria")})

	got, err := s.Search(ctx, "u1", "mitochondria", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != bio.ID {
		t.Errorf("Search(mitochondria) = %v, want [%s]", ids(got), bio.ID)
	}

	got, _ = s.Search(ctx, "u1", "electrons", 10)
	if len(got) != 1 || got[0].ID != chem.ID {
		t.Errorf("Search(electrons) = %v, want [%s]", ids(got), chem.ID)
	}

	_ = s.SoftDelete(ctx, bio.ID)
	if got, _ = s.Search(ctx, "u1", "mitochondria", 10); len(got) != 0 {
		t.Errorf("Search found a trashed session: %v", ids(got))
	}
}

func ids(list []store.Session) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}
