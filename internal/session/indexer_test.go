package session

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/scribecat/pkg/lecture"
	embmock "github.com/MrWong99/scribecat/pkg/provider/embeddings/mock"
	"github.com/MrWong99/scribecat/pkg/store"
	"github.com/MrWong99/scribecat/pkg/store/memstore"
)

func TestIndexer_IndexAndSearch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memstore.New()
	emb := &embmock.Provider{DimensionsValue: 16}
	x := NewIndexer(emb, s)

	sess, _ := s.Create(ctx, store.NewSession{UserID: "u1", Title: "Biology"})
	notes := []lecture.Note{
		{ID: "n1", Text: "mitochondria"},
		{ID: "n2", Text: "zzzz"},
	}
	sess, _ = s.Update(ctx, sess.ID, store.Patch{NuggetNotes: &notes})

	if err := x.Index(ctx, sess); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if emb.BatchCallCount() != 1 {
		t.Errorf("EmbedBatch calls = %d, want 1", emb.BatchCallCount())
	}

	got, err := x.Search(ctx, "u1", "mitochondria", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].NoteID != "n1" {
		t.Errorf("Search = %+v, want n1", got)
	}
}

func TestIndexer_EmbedError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memstore.New()
	emb := &embmock.Provider{EmbedBatchErr: errors.New("quota exceeded")}
	x := NewIndexer(emb, s)

	sess, _ := s.Create(ctx, store.NewSession{UserID: "u1"})
	sess.NuggetNotes = []lecture.Note{{ID: "n1", Text: "anything"}}
	if err := x.Index(ctx, sess); err == nil {
		t.Error("expected error")
	}
}
