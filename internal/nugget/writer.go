package nugget

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/scribecat/pkg/lecture"
	"github.com/MrWong99/scribecat/pkg/provider/llm"
)

// Writer produces one to three nugget notes for the most recent stretch of a
// lecture.
type Writer struct {
	llm llm.Provider
	ids IDSequence
	now func() time.Time
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithClock overrides the wall clock used to stamp notes.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// NewWriter creates a Writer backed by provider.
func NewWriter(provider llm.Provider, opts ...WriterOption) *Writer {
	w := &Writer{llm: provider, now: time.Now}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Write asks the model for bullet notes about transcript. Only the last 500
// characters are sent. The returned slice is never nil on success.
func (w *Writer) Write(ctx context.Context, transcript string, lc lecture.Context, recordingSeconds float64) ([]lecture.Note, error) {
	resp, err := w.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: notesPrompt(transcript, lc),
		}},
		MaxTokens:   notesMaxTokens,
		Temperature: lowTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("nugget: write notes: %w", err)
	}
	return ParseBullets(resp.Content, recordingSeconds, w.now(), &w.ids), nil
}
