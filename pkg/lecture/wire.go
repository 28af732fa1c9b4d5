package lecture

// ContextRequest is the body of POST /lectureContext.
type ContextRequest struct {
	Transcript      string   `json:"transcript"`
	PreviousContext *Context `json:"previousContext,omitempty"`
}

// ContextResponse is the reply of POST /lectureContext. On failure Error is
// set, Success is false and Context is the empty context.
type ContextResponse struct {
	Context Context `json:"context"`
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
}

// NotesRequest is the body of POST /nuggetNotes.
type NotesRequest struct {
	Transcript           string   `json:"transcript"`
	Context              *Context `json:"context,omitempty"`
	RecordingTimeSeconds float64  `json:"recordingTimeSeconds"`
}

// NotesResponse is the reply of POST /nuggetNotes. On failure Error is set,
// Success is false and Notes is empty.
type NotesResponse struct {
	Notes   []Note `json:"notes"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
