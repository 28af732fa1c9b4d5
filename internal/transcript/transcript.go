// Package transcript corrects speech-to-text output against the vocabulary of
// the lecture being recorded.
//
// Transcription services routinely mishear domain terms ("mitokondria",
// "crebs cycle"). The [Corrector] slides n-gram windows over each final
// segment and asks a [PhoneticMatcher] whether a window is a misheard term
// from the current lecture context. Matches are replaced in place; leading and
// trailing punctuation around the window is preserved.
//
// Each [Correction] records the substitution and its confidence so callers can
// log or display what was changed.
package transcript

// Correction captures a single substitution made by the [Corrector].
type Correction struct {
	// Original is the text as produced by the transcription service.
	Original string `json:"original"`

	// Corrected is the vocabulary term that replaced it.
	Corrected string `json:"corrected"`

	// Confidence is the matcher's similarity score in [0.0, 1.0].
	Confidence float64 `json:"confidence"`
}

// PhoneticMatcher resolves a word or phrase to a known term based on
// pronunciation similarity. It runs for every final segment, so it must not
// make network calls.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match returns the term from terms most similar to word. When matched
	// is false, corrected must equal word and confidence must be 0.
	Match(word string, terms []string) (corrected string, confidence float64, matched bool)
}
