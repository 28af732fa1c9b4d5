package store

import "context"

// IndexedNote is a nugget note with its embedding.
type IndexedNote struct {
	ID        string
	Text      string
	Embedding []float32
}

// NoteMatch is one result of a semantic note search. Distance is the cosine
// distance to the query; lower is closer.
type NoteMatch struct {
	SessionID string  `json:"sessionId"`
	NoteID    string  `json:"noteId"`
	Text      string  `json:"text"`
	Distance  float64 `json:"distance"`
}

// NoteIndex stores embedded nugget notes for similarity search. It is
// optional; backends that support it implement it next to [Store].
type NoteIndex interface {
	// IndexNotes replaces every indexed note of sessionID with notes.
	IndexNotes(ctx context.Context, sessionID, userID string, notes []IndexedNote) error

	// SearchNotes returns the topK notes of userID closest to embedding.
	SearchNotes(ctx context.Context, userID string, embedding []float32, topK int) ([]NoteMatch, error)
}
