package annotate

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/scribecat/internal/nugget"
	"github.com/MrWong99/scribecat/internal/observe"
	"github.com/MrWong99/scribecat/pkg/lecture"
)

var (
	_ ContextRefresher = (*Local)(nil)
	_ NoteGenerator    = (*Local)(nil)
)

// Local serves annotation requests in-process instead of over HTTP.
type Local struct {
	extractor *nugget.Extractor
	writer    *nugget.Writer
}

// NewLocal wraps an extractor and a writer.
func NewLocal(extractor *nugget.Extractor, writer *nugget.Writer) *Local {
	return &Local{extractor: extractor, writer: writer}
}

// Refresh implements [ContextRefresher].
func (l *Local) Refresh(ctx context.Context, transcript string, previous lecture.Context) (_ lecture.Context, err error) {
	ctx, span := observe.StartSpan(ctx, "annotate.refresh", trace.WithAttributes(
		attribute.Int("transcript.chars", len(transcript)),
		attribute.Int("context.terms", len(previous.Terms())),
	))
	defer func() { observe.EndSpan(span, err) }()
	return l.extractor.Extract(ctx, transcript, previous)
}

// Generate implements [NoteGenerator].
func (l *Local) Generate(ctx context.Context, transcript string, lc lecture.Context, recordingSeconds float64) (notes []lecture.Note, err error) {
	ctx, span := observe.StartSpan(ctx, "annotate.generate", trace.WithAttributes(
		attribute.Int("transcript.chars", len(transcript)),
		attribute.Float64("recording.seconds", recordingSeconds),
	))
	defer func() {
		span.SetAttributes(attribute.Int("notes", len(notes)))
		observe.EndSpan(span, err)
	}()
	return l.writer.Write(ctx, transcript, lc, recordingSeconds)
}
