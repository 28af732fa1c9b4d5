package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/scribecat/pkg/store"
)

// maxIndexWorkers bounds concurrent upserts in IndexNotes.
const maxIndexWorkers = 4

// IndexNotes implements [store.NoteIndex]. Rows of notes no longer present
// are removed; the remaining notes are upserted concurrently.
func (s *Store) IndexNotes(ctx context.Context, sessionID, userID string, notes []store.IndexedNote) error {
	if s.vectorDim <= 0 {
		return ErrNoNoteIndex
	}

	keep := make([]string, len(notes))
	for i, n := range notes {
		keep[i] = n.ID
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM note_index WHERE session_id = $1 AND NOT (note_id = ANY($2))`, sessionID, keep); err != nil {
		return fmt.Errorf("note index: prune: %w", err)
	}

	const q = `
		INSERT INTO note_index (session_id, note_id, user_id, text, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, note_id) DO UPDATE SET
		    user_id   = EXCLUDED.user_id,
		    text      = EXCLUDED.text,
		    embedding = EXCLUDED.embedding`

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxIndexWorkers)
	for _, n := range notes {
		g.Go(func() error {
			if _, err := s.pool.Exec(gctx, q, sessionID, n.ID, userID, n.Text, pgvector.NewVector(n.Embedding)); err != nil {
				return fmt.Errorf("note index: upsert %s: %w", n.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// SearchNotes implements [store.NoteIndex]. Results are ordered by
// ascending cosine distance; trashed sessions are skipped.
func (s *Store) SearchNotes(ctx context.Context, userID string, embedding []float32, topK int) ([]store.NoteMatch, error) {
	if s.vectorDim <= 0 {
		return nil, ErrNoNoteIndex
	}
	if topK <= 0 {
		topK = store.DefaultSearchLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT n.session_id, n.note_id, n.text, n.embedding <=> $1 AS distance
		FROM   note_index n
		JOIN   sessions s ON s.id = n.session_id
		WHERE  n.user_id = $2 AND NOT s.is_deleted
		ORDER  BY distance
		LIMIT  $3`, pgvector.NewVector(embedding), userID, topK)
	if err != nil {
		return nil, fmt.Errorf("note index: search: %w", err)
	}
	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.NoteMatch, error) {
		var m store.NoteMatch
		err := row.Scan(&m.SessionID, &m.NoteID, &m.Text, &m.Distance)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("note index: scan rows: %w", err)
	}
	if matches == nil {
		matches = []store.NoteMatch{}
	}
	return matches, nil
}
