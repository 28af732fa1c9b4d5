// Package store defines persistence for recorded lecture sessions.
//
// A [Session] carries everything captured during one recording: the
// cumulative transcript and its segments, the user's notes, the live nugget
// notes and the audio file location. Sessions are soft-deleted into a trash
// and purged permanently by a retention job.
//
// Backends live in sub-packages (memstore, sqlite, postgres). Every
// implementation must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/scribecat/pkg/lecture"
)

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("store: session not found")

// DefaultSearchLimit applies when a search passes a non-positive limit.
const DefaultSearchLimit = 20

// Session is one recorded lecture.
type Session struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	Title         string `json:"title"`
	AudioFilePath string `json:"audioFilePath"`

	Transcript string            `json:"transcript"`
	Segments   []lecture.Segment `json:"transcriptSegments"`

	// Notes is the user's rich-text notes; NotesPlainText its searchable
	// plain rendering.
	Notes          string `json:"notes"`
	NotesPlainText string `json:"notesPlainText"`

	// NuggetNotes are the live notes generated during recording.
	NuggetNotes []lecture.Note `json:"nuggetNotes"`

	// Duration is the recording length in milliseconds.
	Duration int64 `json:"duration"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	IsDeleted bool       `json:"isDeleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// NewSession holds the fields supplied when a session is created.
type NewSession struct {
	UserID        string `json:"userId"`
	Title         string `json:"title"`
	AudioFilePath string `json:"audioFilePath"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Title          *string            `json:"title,omitempty"`
	AudioFilePath  *string            `json:"audioFilePath,omitempty"`
	Transcript     *string            `json:"transcript,omitempty"`
	Segments       *[]lecture.Segment `json:"transcriptSegments,omitempty"`
	Notes          *string            `json:"notes,omitempty"`
	NotesPlainText *string            `json:"notesPlainText,omitempty"`
	NuggetNotes    *[]lecture.Note    `json:"nuggetNotes,omitempty"`
	Duration       *int64             `json:"duration,omitempty"`
}

// IsEmpty reports whether p changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.AudioFilePath == nil && p.Transcript == nil &&
		p.Segments == nil && p.Notes == nil && p.NotesPlainText == nil &&
		p.NuggetNotes == nil && p.Duration == nil
}

// Store persists sessions.
type Store interface {
	// Create stores a new session with a fresh id and returns it.
	Create(ctx context.Context, in NewSession) (Session, error)

	// Get returns the session with id, deleted or not.
	Get(ctx context.Context, id string) (Session, error)

	// Update applies p and bumps UpdatedAt.
	Update(ctx context.Context, id string, p Patch) (Session, error)

	// AppendSegment adds seg to the session's segments, replacing a trailing
	// non-final segment, and recomputes the transcript from the final ones.
	AppendSegment(ctx context.Context, id string, seg lecture.Segment) (Session, error)

	// List returns the user's non-deleted sessions, newest first.
	List(ctx context.Context, userID string) ([]Session, error)

	// ListDeleted returns the user's trashed sessions, most recently
	// deleted first.
	ListDeleted(ctx context.Context, userID string) ([]Session, error)

	// SoftDelete moves a session to the trash.
	SoftDelete(ctx context.Context, id string) error

	// Restore takes a session out of the trash.
	Restore(ctx context.Context, id string) error

	// PermanentDelete removes a session for good.
	PermanentDelete(ctx context.Context, id string) error

	// PurgeDeletedBefore permanently removes sessions trashed before t and
	// returns how many were removed.
	PurgeDeletedBefore(ctx context.Context, t time.Time) (int, error)

	// Search returns the user's non-deleted sessions whose title, transcript
	// or plain-text notes match query, best match first.
	Search(ctx context.Context, userID, query string, limit int) ([]Session, error)

	// Close releases backend resources.
	Close() error
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// Build returns the session Create should store.
func Build(in NewSession, now time.Time) Session {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Untitled lecture " + now.Format("2006-01-02 15:04")
	}
	return Session{
		ID:            NewID(),
		UserID:        in.UserID,
		Title:         title,
		AudioFilePath: in.AudioFilePath,
		Segments:      []lecture.Segment{},
		NuggetNotes:   []lecture.Note{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Apply writes the non-nil fields of p onto s and sets UpdatedAt to now.
func Apply(s *Session, p Patch, now time.Time) {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.AudioFilePath != nil {
		s.AudioFilePath = *p.AudioFilePath
	}
	if p.Transcript != nil {
		s.Transcript = *p.Transcript
	}
	if p.Segments != nil {
		s.Segments = append([]lecture.Segment{}, (*p.Segments)...)
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	if p.NotesPlainText != nil {
		s.NotesPlainText = *p.NotesPlainText
	}
	if p.NuggetNotes != nil {
		s.NuggetNotes = append([]lecture.Note{}, (*p.NuggetNotes)...)
	}
	if p.Duration != nil {
		s.Duration = *p.Duration
	}
	s.UpdatedAt = now
}

// ApplySegment appends seg to s and recomputes the transcript.
func ApplySegment(s *Session, seg lecture.Segment, now time.Time) {
	s.Segments = lecture.AppendSegment(s.Segments, seg)
	s.Transcript = lecture.JoinFinal(s.Segments)
	s.UpdatedAt = now
}

// Matches reports whether every word of query occurs, case-insensitively, in
// the session's title, transcript or plain-text notes. Backends without a
// full-text index use it.
func Matches(s Session, query string) bool {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return false
	}
	hay := strings.ToLower(s.Title + "\n" + s.Transcript + "\n" + s.NotesPlainText)
	for _, t := range terms {
		if !strings.Contains(hay, t) {
			return false
		}
	}
	return true
}

// Ptr returns a pointer to v, for building a [Patch].
func Ptr[T any](v T) *T { return &v }

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	s.Segments = append([]lecture.Segment{}, s.Segments...)
	s.NuggetNotes = append([]lecture.Note{}, s.NuggetNotes...)
	if s.DeletedAt != nil {
		t := *s.DeletedAt
		s.DeletedAt = &t
	}
	return s
}
