package annotate

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// DefaultMaxBufferChars bounds the text a Buffer keeps, roughly ten thousand
// words of lecture.
const DefaultMaxBufferChars = 50_000

// Buffer tracks the cumulative transcript of a recording and hands out the
// part that is new since the previous call.
//
// Only a trailing window of at most maxChars bytes is stored. The length of
// everything seen is tracked separately, so deltas stay correct after old
// text has been dropped from the window.
//
// All methods are safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	text     string
	seen     int
	maxChars int
}

// NewBuffer creates a Buffer that stores at most maxChars bytes. A
// non-positive maxChars selects [DefaultMaxBufferChars].
func NewBuffer(maxChars int) *Buffer {
	if maxChars <= 0 {
		maxChars = DefaultMaxBufferChars
	}
	return &Buffer{maxChars: maxChars}
}

// Append records full, the authoritative transcript so far, and returns the
// suffix beyond what was previously seen. full must extend the previous
// value; an input that is not longer yields "".
func (b *Buffer) Append(full string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(full) <= b.seen {
		return ""
	}
	suffix := full[b.seen:]
	b.seen = len(full)
	b.text += suffix

	if over := len(b.text) - b.maxChars; over > 0 {
		// Advance to a rune boundary so the window stays valid UTF-8.
		for over < len(b.text) && !utf8.RuneStart(b.text[over]) {
			over++
		}
		b.text = b.text[over:]
	}
	return suffix
}

// RecentWindow returns the last maxWords words of the stored text joined by
// single spaces.
func (b *Buffer) RecentWindow(maxWords int) string {
	b.mu.Lock()
	words := strings.Fields(b.text)
	b.mu.Unlock()

	if maxWords > 0 && len(words) > maxWords {
		words = words[len(words)-maxWords:]
	}
	return strings.Join(words, " ")
}

// Text returns the stored window.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Len returns how many bytes of transcript have been seen in total.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seen
}

// Reset clears the buffer.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = ""
	b.seen = 0
}
