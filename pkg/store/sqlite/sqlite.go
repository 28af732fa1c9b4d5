// Package sqlite is a [store.Store] on an embedded SQLite database, for
// single-machine deployments that keep sessions on local disk.
//
// It uses the pure-Go modernc.org/sqlite driver, so no cgo toolchain is
// needed. Pass ":memory:" as the path for a throwaway database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/scribecat/pkg/lecture"
	"github.com/MrWong99/scribecat/pkg/store"
)

var _ store.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT    PRIMARY KEY,
    user_id          TEXT    NOT NULL,
    title            TEXT    NOT NULL,
    audio_file_path  TEXT    NOT NULL DEFAULT '',
    transcript       TEXT    NOT NULL DEFAULT '',
    segments         TEXT    NOT NULL DEFAULT '[]',
    notes            TEXT    NOT NULL DEFAULT '',
    notes_plain_text TEXT    NOT NULL DEFAULT '',
    nugget_notes     TEXT    NOT NULL DEFAULT '[]',
    duration_ms      INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL,
    is_deleted       INTEGER NOT NULL DEFAULT 0,
    deleted_at       INTEGER
);

CREATE INDEX IF NOT EXISTS idx_sessions_user
    ON sessions (user_id, is_deleted, created_at);

CREATE INDEX IF NOT EXISTS idx_sessions_deleted_at
    ON sessions (is_deleted, deleted_at);
`

const columns = `id, user_id, title, audio_file_path, transcript, segments, notes,
	notes_plain_text, nugget_notes, duration_ms, created_at, updated_at, is_deleted, deleted_at`

// Store is a SQLite-backed session store. All methods are safe for
// concurrent use; writes are serialised on a single connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// One connection: SQLite allows a single writer and every ":memory:"
	// connection would otherwise see its own database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close implements [store.Store].
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create implements [store.Store].
func (s *Store) Create(ctx context.Context, in store.NewSession) (store.Session, error) {
	sess := store.Build(in, s.clock())
	if err := s.write(ctx, s.db, sess, true); err != nil {
		return store.Session{}, fmt.Errorf("sqlite store: create: %w", err)
	}
	return sess, nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, id string) (store.Session, error) {
	sess, err := scanOne(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		return store.Session{}, fmt.Errorf("sqlite store: get: %w", err)
	}
	return sess, nil
}

// Update implements [store.Store].
func (s *Store) Update(ctx context.Context, id string, p store.Patch) (store.Session, error) {
	sess, err := s.modify(ctx, id, func(sess *store.Session, now time.Time) {
		store.Apply(sess, p, now)
	})
	if err != nil {
		return store.Session{}, fmt.Errorf("sqlite store: update: %w", err)
	}
	return sess, nil
}

// AppendSegment implements [store.Store].
func (s *Store) AppendSegment(ctx context.Context, id string, seg lecture.Segment) (store.Session, error) {
	sess, err := s.modify(ctx, id, func(sess *store.Session, now time.Time) {
		store.ApplySegment(sess, seg, now)
	})
	if err != nil {
		return store.Session{}, fmt.Errorf("sqlite store: append segment: %w", err)
	}
	return sess, nil
}

// List implements [store.Store].
func (s *Store) List(ctx context.Context, userID string) ([]store.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM sessions WHERE user_id = ? AND is_deleted = 0 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list: %w", err)
	}
	return scanAll(rows)
}

// ListDeleted implements [store.Store].
func (s *Store) ListDeleted(ctx context.Context, userID string) ([]store.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM sessions WHERE user_id = ? AND is_deleted = 1 ORDER BY deleted_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list deleted: %w", err)
	}
	return scanAll(rows)
}

// SoftDelete implements [store.Store].
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	now := s.clock().UnixMicro()
	return s.execOne(ctx, "soft delete",
		`UPDATE sessions SET is_deleted = 1, deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
}

// Restore implements [store.Store].
func (s *Store) Restore(ctx context.Context, id string) error {
	return s.execOne(ctx, "restore",
		`UPDATE sessions SET is_deleted = 0, deleted_at = NULL, updated_at = ? WHERE id = ?`,
		s.clock().UnixMicro(), id)
}

// PermanentDelete implements [store.Store].
func (s *Store) PermanentDelete(ctx context.Context, id string) error {
	return s.execOne(ctx, "permanent delete", `DELETE FROM sessions WHERE id = ?`, id)
}

// PurgeDeletedBefore implements [store.Store].
func (s *Store) PurgeDeletedBefore(ctx context.Context, t time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE is_deleted = 1 AND deleted_at < ?`, t.UTC().UnixMicro())
	if err != nil {
		return 0, fmt.Errorf("sqlite store: purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite store: purge: %w", err)
	}
	return int(n), nil
}

// Search implements [store.Store]. Every query word must occur in the
// title, transcript or plain-text notes; newer sessions rank first.
func (s *Store) Search(ctx context.Context, userID, query string, limit int) ([]store.Session, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return []store.Session{}, nil
	}
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}

	args := []any{userID}
	conditions := []string{"user_id = ?", "is_deleted = 0"}
	for _, t := range terms {
		pattern := "%" + escapeLike(t) + "%"
		conditions = append(conditions,
			`(lower(title) LIKE ? ESCAPE '\' OR lower(transcript) LIKE ? ESCAPE '\' OR lower(notes_plain_text) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	args = append(args, limit)

	q := `SELECT ` + columns + ` FROM sessions WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: search: %w", err)
	}
	return scanAll(rows)
}

// modify runs fn on the stored session inside one transaction. Errors name
// the failed step; callers add the operation.
func (s *Store) modify(ctx context.Context, id string, fn func(*store.Session, time.Time)) (store.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Session{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	sess, err := scanOne(tx.QueryRowContext(ctx, `SELECT `+columns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		return store.Session{}, fmt.Errorf("load %s: %w", id, err)
	}
	fn(&sess, s.clock())
	if err := s.write(ctx, tx, sess, false); err != nil {
		return store.Session{}, fmt.Errorf("write %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return store.Session{}, fmt.Errorf("commit: %w", err)
	}
	return sess, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) write(ctx context.Context, db execer, sess store.Session, insert bool) error {
	segments, err := json.Marshal(nonNil(sess.Segments))
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	nuggets, err := json.Marshal(nonNil(sess.NuggetNotes))
	if err != nil {
		return fmt.Errorf("encode nugget notes: %w", err)
	}
	var deletedAt sql.NullInt64
	if sess.DeletedAt != nil {
		deletedAt = sql.NullInt64{Int64: sess.DeletedAt.UnixMicro(), Valid: true}
	}

	if insert {
		_, err = db.ExecContext(ctx, `INSERT INTO sessions (`+columns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.UserID, sess.Title, sess.AudioFilePath, sess.Transcript, string(segments),
			sess.Notes, sess.NotesPlainText, string(nuggets), sess.Duration,
			sess.CreatedAt.UnixMicro(), sess.UpdatedAt.UnixMicro(), sess.IsDeleted, deletedAt)
		return err
	}
	_, err = db.ExecContext(ctx, `UPDATE sessions SET
		title = ?, audio_file_path = ?, transcript = ?, segments = ?, notes = ?,
		notes_plain_text = ?, nugget_notes = ?, duration_ms = ?, updated_at = ?
		WHERE id = ?`,
		sess.Title, sess.AudioFilePath, sess.Transcript, string(segments), sess.Notes,
		sess.NotesPlainText, string(nuggets), sess.Duration, sess.UpdatedAt.UnixMicro(), sess.ID)
	return err
}

func (s *Store) execOne(ctx context.Context, op, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("sqlite store: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store: %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite store: %s: %w", op, store.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (store.Session, error) {
	var (
		sess                 store.Session
		segments, nuggets    string
		createdAt, updatedAt int64
		deletedAt            sql.NullInt64
	)
	if err := row.Scan(
		&sess.ID, &sess.UserID, &sess.Title, &sess.AudioFilePath, &sess.Transcript, &segments,
		&sess.Notes, &sess.NotesPlainText, &nuggets, &sess.Duration,
		&createdAt, &updatedAt, &sess.IsDeleted, &deletedAt,
	); err != nil {
		return store.Session{}, err
	}
	if err := json.Unmarshal([]byte(segments), &sess.Segments); err != nil {
		return store.Session{}, fmt.Errorf("decode segments: %w", err)
	}
	if err := json.Unmarshal([]byte(nuggets), &sess.NuggetNotes); err != nil {
		return store.Session{}, fmt.Errorf("decode nugget notes: %w", err)
	}
	sess.Segments = nonNil(sess.Segments)
	sess.NuggetNotes = nonNil(sess.NuggetNotes)
	sess.CreatedAt = time.UnixMicro(createdAt).UTC()
	sess.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	if deletedAt.Valid {
		t := time.UnixMicro(deletedAt.Int64).UTC()
		sess.DeletedAt = &t
	}
	return sess, nil
}

func scanOne(row *sql.Row) (store.Session, error) {
	sess, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Session{}, store.ErrNotFound
	}
	return sess, err
}

func scanAll(rows *sql.Rows) ([]store.Session, error) {
	defer rows.Close()
	out := []store.Session{}
	for rows.Next() {
		sess, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: scan: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: rows: %w", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// clock returns the current time at the precision the database keeps.
func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
