// Package postgres is a [store.Store] on PostgreSQL. Sessions get a GIN
// full-text index over title, transcript and plain-text notes. When an
// embedding dimension is configured, nugget notes are also indexed with
// pgvector for semantic search ([store.NoteIndex]).
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer s.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT         PRIMARY KEY,
    user_id          TEXT         NOT NULL,
    title            TEXT         NOT NULL,
    audio_file_path  TEXT         NOT NULL DEFAULT '',
    transcript       TEXT         NOT NULL DEFAULT '',
    segments         JSONB        NOT NULL DEFAULT '[]',
    notes            TEXT         NOT NULL DEFAULT '',
    notes_plain_text TEXT         NOT NULL DEFAULT '',
    nugget_notes     JSONB        NOT NULL DEFAULT '[]',
    duration_ms      BIGINT       NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    is_deleted       BOOLEAN      NOT NULL DEFAULT false,
    deleted_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sessions_user
    ON sessions (user_id, is_deleted, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_sessions_deleted_at
    ON sessions (deleted_at) WHERE is_deleted;

CREATE INDEX IF NOT EXISTS idx_sessions_fts
    ON sessions USING GIN (to_tsvector('english', title || ' ' || transcript || ' ' || notes_plain_text));
`

// searchVector must match the expression of idx_sessions_fts.
const searchVector = `to_tsvector('english', title || ' ' || transcript || ' ' || notes_plain_text)`

// ddlNoteIndex returns the note index DDL with the embedding dimension
// substituted. The dimension is baked into the column type.
func ddlNoteIndex(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS note_index (
    session_id  TEXT         NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    note_id     TEXT         NOT NULL,
    user_id     TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    embedding   vector(%d)   NOT NULL,
    PRIMARY KEY (session_id, note_id)
);

CREATE INDEX IF NOT EXISTS idx_note_index_user
    ON note_index (user_id);

CREATE INDEX IF NOT EXISTS idx_note_index_embedding
    ON note_index USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates the tables and indexes. It is idempotent and safe to call
// on every start. A non-positive embeddingDimensions skips the note index.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{ddlSessions}
	if embeddingDimensions > 0 {
		statements = append(statements, ddlNoteIndex(embeddingDimensions))
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
