// Package lecture holds the data types shared by the annotation pipeline, the
// HTTP endpoints and the session store: transcript segments, the rolling
// lecture context, and nugget notes.
package lecture

import (
	"strings"
	"unicode/utf8"
)

// Limits applied to a Context by Clamp.
const (
	MaxThemes       = 5
	MaxDefinitions  = 5
	MaxTopicRunes   = 100
	MaxHintRunes    = 100
	MinNoteRunes    = 5
	MaxNotesPerCall = 3
)

// Segment is one chunk of transcribed speech.
type Segment struct {
	Text string `json:"text"`
	// TimestampMs is the offset from the start of the recording.
	TimestampMs int64 `json:"timestamp"`
	// IsFinal marks text the transcription service will no longer revise.
	IsFinal bool `json:"isFinal"`
}

// Context is a short structured summary of the lecture so far. It is replaced
// wholesale on every successful refresh.
type Context struct {
	Themes        []string `json:"themes"`
	CurrentTopic  string   `json:"currentTopic"`
	Definitions   []string `json:"definitions"`
	StructureHint string   `json:"structureHint"`
}

// EmptyContext returns the all-empty context. Slices are non-nil so the value
// encodes as [] rather than null.
func EmptyContext() Context {
	return Context{Themes: []string{}, Definitions: []string{}}
}

// IsEmpty reports whether c carries no information.
func (c Context) IsEmpty() bool {
	return len(c.Themes) == 0 && c.CurrentTopic == "" && len(c.Definitions) == 0 && c.StructureHint == ""
}

// Clamp returns a copy of c limited to MaxThemes themes, MaxDefinitions
// definitions and MaxTopicRunes/MaxHintRunes characters.
func (c Context) Clamp() Context {
	return Context{
		Themes:        headCopy(c.Themes, MaxThemes),
		CurrentTopic:  truncateRunes(c.CurrentTopic, MaxTopicRunes),
		Definitions:   headCopy(c.Definitions, MaxDefinitions),
		StructureHint: truncateRunes(c.StructureHint, MaxHintRunes),
	}
}

// Clone returns a deep copy of c.
func (c Context) Clone() Context {
	c.Themes = append([]string{}, c.Themes...)
	c.Definitions = append([]string{}, c.Definitions...)
	return c
}

// Terms returns the vocabulary named by the context: the term part of each
// "term: definition" entry, followed by the themes.
func (c Context) Terms() []string {
	terms := make([]string, 0, len(c.Definitions)+len(c.Themes))
	for _, d := range c.Definitions {
		term, _, _ := strings.Cut(d, ":")
		if term = strings.TrimSpace(term); term != "" {
			terms = append(terms, term)
		}
	}
	for _, th := range c.Themes {
		if th = strings.TrimSpace(th); th != "" {
			terms = append(terms, th)
		}
	}
	return terms
}

// Note is a single short AI-generated bullet tied to a point in the recording.
type Note struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	// Timestamp is wall-clock Unix milliseconds at generation.
	Timestamp int64 `json:"timestamp"`
	// RecordingTime is the offset into the recording, in seconds.
	RecordingTime float64 `json:"recordingTime"`
}

// JoinFinal concatenates the text of the final segments with single spaces.
func JoinFinal(segments []Segment) string {
	var sb strings.Builder
	for _, s := range segments {
		if !s.IsFinal {
			continue
		}
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}
	return sb.String()
}

// AppendSegment adds seg to segments. A trailing non-final segment is
// replaced rather than kept, so at most one provisional segment exists and it
// is always last.
func AppendSegment(segments []Segment, seg Segment) []Segment {
	if n := len(segments); n > 0 && !segments[n-1].IsFinal {
		segments = segments[:n-1]
	}
	return append(segments, seg)
}

// CountWords returns the number of whitespace-separated words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// Tail returns the last n runes of s.
func Tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func headCopy(in []string, n int) []string {
	if len(in) > n {
		in = in[:n]
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
