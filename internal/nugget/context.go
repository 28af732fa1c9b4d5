package nugget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MrWong99/scribecat/pkg/lecture"
	"github.com/MrWong99/scribecat/pkg/provider/llm"
)

// ErrMalformedContext is returned when the model reply does not contain a
// context object of the expected shape.
var ErrMalformedContext = errors.New("nugget: malformed context response")

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Extractor asks a language model for an updated [lecture.Context].
type Extractor struct {
	llm llm.Provider
}

// NewExtractor creates an Extractor backed by provider.
func NewExtractor(provider llm.Provider) *Extractor {
	return &Extractor{llm: provider}
}

// Extract sends the trailing part of transcript together with the previous
// context and returns the model's replacement context. A reply that cannot be
// parsed yields [ErrMalformedContext]; callers keep the previous context.
func (e *Extractor) Extract(ctx context.Context, transcript string, previous lecture.Context) (lecture.Context, error) {
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: contextPrompt(transcript, previous),
		}},
		MaxTokens:   contextMaxTokens,
		Temperature: lowTemperature,
	})
	if err != nil {
		return lecture.Context{}, fmt.Errorf("nugget: extract context: %w", err)
	}
	return ParseContext(resp.Content)
}

// wireContext mirrors lecture.Context with pointer fields so that missing
// fields can be told apart from empty ones.
type wireContext struct {
	Themes        *[]string `json:"themes"`
	CurrentTopic  *string   `json:"currentTopic"`
	Definitions   *[]string `json:"definitions"`
	StructureHint *string   `json:"structureHint"`
}

// ParseContext extracts a lecture context from a model reply. It tolerates a
// surrounding markdown code fence and prose around the JSON object, then
// requires all four fields with the right types. The result is clamped.
func ParseContext(reply string) (lecture.Context, error) {
	s := strings.TrimSpace(reply)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return lecture.Context{}, fmt.Errorf("%w: no JSON object", ErrMalformedContext)
	}

	var w wireContext
	if err := json.Unmarshal([]byte(s[start:end+1]), &w); err != nil {
		return lecture.Context{}, fmt.Errorf("%w: %v", ErrMalformedContext, err)
	}
	if w.Themes == nil || w.CurrentTopic == nil || w.Definitions == nil || w.StructureHint == nil {
		return lecture.Context{}, fmt.Errorf("%w: missing field", ErrMalformedContext)
	}

	return lecture.Context{
		Themes:        *w.Themes,
		CurrentTopic:  *w.CurrentTopic,
		Definitions:   *w.Definitions,
		StructureHint: *w.StructureHint,
	}.Clamp(), nil
}
