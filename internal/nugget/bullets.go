package nugget

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/scribecat/pkg/lecture"
)

var bulletPrefixRe = regexp.MustCompile(`^[-•]\s*`)

// IDSequence hands out note ids of the form note-<unixmillis>-<n>. The zero
// value is ready to use.
type IDSequence struct {
	n atomic.Int64
}

// Next returns a fresh id stamped with t.
func (s *IDSequence) Next(t time.Time) string {
	return fmt.Sprintf("note-%d-%d", t.UnixMilli(), s.n.Add(1))
}

// Reset restarts the counter.
func (s *IDSequence) Reset() { s.n.Store(0) }

// CleanBullets returns the bullet lines of reply with their marker and
// markdown bold removed. Lines shorter than [lecture.MinNoteRunes] after
// cleaning are dropped before the [lecture.MaxNotesPerCall] cap is applied, so
// they never take a slot from a usable line.
func CleanBullets(reply string) []string {
	var out []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "•") {
			continue
		}
		text := bulletPrefixRe.ReplaceAllString(line, "")
		text = strings.TrimSpace(strings.ReplaceAll(text, "**", ""))
		if utf8.RuneCountInString(text) < lecture.MinNoteRunes {
			continue
		}
		out = append(out, text)
		if len(out) == lecture.MaxNotesPerCall {
			break
		}
	}
	return out
}

// ParseBullets turns a model reply into notes stamped with now and
// recordingSeconds, drawing ids from seq.
func ParseBullets(reply string, recordingSeconds float64, now time.Time, seq *IDSequence) []lecture.Note {
	lines := CleanBullets(reply)
	notes := make([]lecture.Note, 0, len(lines))
	for _, text := range lines {
		notes = append(notes, lecture.Note{
			ID:            seq.Next(now),
			Text:          text,
			Timestamp:     now.UnixMilli(),
			RecordingTime: recordingSeconds,
		})
	}
	return notes
}
