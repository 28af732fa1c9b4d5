package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/scribecat/pkg/provider/embeddings"
	"github.com/MrWong99/scribecat/pkg/store"
)

// Indexer embeds the nugget notes of saved sessions for semantic search.
type Indexer struct {
	embedder embeddings.Provider
	index    store.NoteIndex
}

// NewIndexer creates an Indexer.
func NewIndexer(embedder embeddings.Provider, index store.NoteIndex) *Indexer {
	return &Indexer{embedder: embedder, index: index}
}

// Index replaces the indexed notes of sess.
func (x *Indexer) Index(ctx context.Context, sess store.Session) error {
	texts := make([]string, 0, len(sess.NuggetNotes))
	for _, n := range sess.NuggetNotes {
		texts = append(texts, n.Text)
	}
	var vecs [][]float32
	if len(texts) > 0 {
		var err error
		if vecs, err = x.embedder.EmbedBatch(ctx, texts); err != nil {
			return fmt.Errorf("indexer: embed notes of %s: %w", sess.ID, err)
		}
	}
	notes := make([]store.IndexedNote, len(texts))
	for i, n := range sess.NuggetNotes {
		notes[i] = store.IndexedNote{ID: n.ID, Text: n.Text, Embedding: vecs[i]}
	}
	if err := x.index.IndexNotes(ctx, sess.ID, sess.UserID, notes); err != nil {
		return fmt.Errorf("indexer: %w", err)
	}
	return nil
}

// AfterSave adapts Index to [RecorderConfig.AfterSave]; failures are logged.
func (x *Indexer) AfterSave(ctx context.Context, sess store.Session) {
	if err := x.Index(ctx, sess); err != nil {
		slog.Warn("indexer: index failed", "session_id", sess.ID, "err", err)
	}
}

// Search embeds query and returns the closest notes of userID.
func (x *Indexer) Search(ctx context.Context, userID, query string, topK int) ([]store.NoteMatch, error) {
	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("indexer: embed query: %w", err)
	}
	matches, err := x.index.SearchNotes(ctx, userID, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("indexer: %w", err)
	}
	return matches, nil
}
