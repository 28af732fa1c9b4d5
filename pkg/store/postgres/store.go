package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/scribecat/pkg/lecture"
	"github.com/MrWong99/scribecat/pkg/store"
)

var (
	_ store.Store     = (*Store)(nil)
	_ store.NoteIndex = (*Store)(nil)
)

// ErrNoNoteIndex is returned by the [store.NoteIndex] methods when the store
// was created without an embedding dimension.
var ErrNoNoteIndex = errors.New("postgres store: note index not configured")

const columns = `id, user_id, title, audio_file_path, transcript, segments, notes,
	notes_plain_text, nugget_notes, duration_ms, created_at, updated_at, is_deleted, deleted_at`

// Store is a PostgreSQL-backed session store. All methods are safe for
// concurrent use.
type Store struct {
	pool      *pgxpool.Pool
	now       func() time.Time
	vectorDim int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore connects to dsn and runs [Migrate]. embeddingDimensions must
// match the embedding model used for notes; zero disables the note index.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Migrate on a bare pool first: pgvector types can only be registered
	// once the extension exists.
	bare, err := pgxpool.NewWithConfig(ctx, cfg.Copy())
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	err = Migrate(ctx, bare, embeddingDimensions)
	bare.Close()
	if err != nil {
		return nil, fmt.Errorf("postgres store: %w", err)
	}

	if embeddingDimensions > 0 {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	s := &Store{pool: pool, now: time.Now, vectorDim: embeddingDimensions}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close implements [store.Store].
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create implements [store.Store].
func (s *Store) Create(ctx context.Context, in store.NewSession) (store.Session, error) {
	sess := store.Build(in, s.clock())
	const q = `
		INSERT INTO sessions (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.pool.Exec(ctx, q,
		sess.ID, sess.UserID, sess.Title, sess.AudioFilePath, sess.Transcript, sess.Segments,
		sess.Notes, sess.NotesPlainText, sess.NuggetNotes, sess.Duration,
		sess.CreatedAt, sess.UpdatedAt, sess.IsDeleted, sess.DeletedAt,
	)
	if err != nil {
		return store.Session{}, fmt.Errorf("postgres store: create: %w", err)
	}
	return sess, nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, id string) (store.Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+columns+` FROM sessions WHERE id = $1`, id)
	if err != nil {
		return store.Session{}, fmt.Errorf("postgres store: get: %w", err)
	}
	sess, err := collectOne(rows)
	if err != nil {
		return store.Session{}, fmt.Errorf("postgres store: get: %w", err)
	}
	return sess, nil
}

// Update implements [store.Store].
func (s *Store) Update(ctx context.Context, id string, p store.Patch) (store.Session, error) {
	sess, err := s.modify(ctx, id, func(sess *store.Session, now time.Time) {
		store.Apply(sess, p, now)
	})
	if err != nil {
		return store.Session{}, fmt.Errorf("postgres store: update: %w", err)
	}
	return sess, nil
}

// AppendSegment implements [store.Store].
func (s *Store) AppendSegment(ctx context.Context, id string, seg lecture.Segment) (store.Session, error) {
	sess, err := s.modify(ctx, id, func(sess *store.Session, now time.Time) {
		store.ApplySegment(sess, seg, now)
	})
	if err != nil {
		return store.Session{}, fmt.Errorf("postgres store: append segment: %w", err)
	}
	return sess, nil
}

// List implements [store.Store].
func (s *Store) List(ctx context.Context, userID string) ([]store.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+columns+`
		FROM   sessions
		WHERE  user_id = $1 AND NOT is_deleted
		ORDER  BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	return collectAll(rows)
}

// ListDeleted implements [store.Store].
func (s *Store) ListDeleted(ctx context.Context, userID string) ([]store.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+columns+`
		FROM   sessions
		WHERE  user_id = $1 AND is_deleted
		ORDER  BY deleted_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list deleted: %w", err)
	}
	return collectAll(rows)
}

// SoftDelete implements [store.Store].
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	now := s.clock()
	return s.execOne(ctx, "soft delete",
		`UPDATE sessions SET is_deleted = true, deleted_at = $1, updated_at = $1 WHERE id = $2`, now, id)
}

// Restore implements [store.Store].
func (s *Store) Restore(ctx context.Context, id string) error {
	return s.execOne(ctx, "restore",
		`UPDATE sessions SET is_deleted = false, deleted_at = NULL, updated_at = $1 WHERE id = $2`, s.clock(), id)
}

// PermanentDelete implements [store.Store]. Indexed notes go with the
// session through the foreign key.
func (s *Store) PermanentDelete(ctx context.Context, id string) error {
	return s.execOne(ctx, "permanent delete", `DELETE FROM sessions WHERE id = $1`, id)
}

// PurgeDeletedBefore implements [store.Store].
func (s *Store) PurgeDeletedBefore(ctx context.Context, t time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE is_deleted AND deleted_at < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("postgres store: purge: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Search implements [store.Store] with PostgreSQL full-text search. The
// query goes through plainto_tsquery, so no operator syntax is needed.
func (s *Store) Search(ctx context.Context, userID, query string, limit int) ([]store.Session, error) {
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+columns+`
		FROM   sessions
		WHERE  user_id = $1
		  AND  NOT is_deleted
		  AND  `+searchVector+` @@ plainto_tsquery('english', $2)
		ORDER  BY ts_rank(`+searchVector+`, plainto_tsquery('english', $2)) DESC, created_at DESC
		LIMIT  $3`, userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search: %w", err)
	}
	return collectAll(rows)
}

func (s *Store) modify(ctx context.Context, id string, fn func(*store.Session, time.Time)) (store.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.Session{}, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT `+columns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return store.Session{}, err
	}
	sess, err := collectOne(rows)
	if err != nil {
		return store.Session{}, err
	}
	fn(&sess, s.clock())

	_, err = tx.Exec(ctx, `
		UPDATE sessions SET
		    title = $2, audio_file_path = $3, transcript = $4, segments = $5, notes = $6,
		    notes_plain_text = $7, nugget_notes = $8, duration_ms = $9, updated_at = $10
		WHERE id = $1`,
		sess.ID, sess.Title, sess.AudioFilePath, sess.Transcript, sess.Segments, sess.Notes,
		sess.NotesPlainText, sess.NuggetNotes, sess.Duration, sess.UpdatedAt,
	)
	if err != nil {
		return store.Session{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return store.Session{}, err
	}
	return sess, nil
}

func (s *Store) execOne(ctx context.Context, op, q string, args ...any) error {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("postgres store: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres store: %s: %w", op, store.ErrNotFound)
	}
	return nil
}

// clock returns the current time at the precision PostgreSQL keeps.
func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func scanSession(row pgx.CollectableRow) (store.Session, error) {
	var sess store.Session
	if err := row.Scan(
		&sess.ID, &sess.UserID, &sess.Title, &sess.AudioFilePath, &sess.Transcript, &sess.Segments,
		&sess.Notes, &sess.NotesPlainText, &sess.NuggetNotes, &sess.Duration,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.IsDeleted, &sess.DeletedAt,
	); err != nil {
		return store.Session{}, err
	}
	if sess.Segments == nil {
		sess.Segments = []lecture.Segment{}
	}
	if sess.NuggetNotes == nil {
		sess.NuggetNotes = []lecture.Note{}
	}
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()
	if sess.DeletedAt != nil {
		t := sess.DeletedAt.UTC()
		sess.DeletedAt = &t
	}
	return sess, nil
}

func collectOne(rows pgx.Rows) (store.Session, error) {
	sess, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Session{}, store.ErrNotFound
	}
	return sess, err
}

func collectAll(rows pgx.Rows) ([]store.Session, error) {
	out, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if out == nil {
		out = []store.Session{}
	}
	return out, nil
}
