// Package phonetic matches misheard words against a lecture vocabulary using
// Double Metaphone codes and Jaro-Winkler similarity.
//
// Matching runs in two stages:
//
//  1. Phonetic candidates: Double Metaphone codes are computed for the input
//     and for every vocabulary term. A term whose codes overlap the input's
//     is a phonetic candidate and is accepted when its Jaro-Winkler score
//     reaches the phonetic threshold (default 0.70).
//
//  2. Fuzzy fallback: when no phonetic candidate qualifies, the term with the
//     highest plain Jaro-Winkler score is accepted if it reaches the fuzzy
//     threshold (default 0.85).
//
// Inputs shorter than the minimum length, and inputs whose length differs too
// much from a term, never match. This keeps common short words such as "this"
// or "of" from being rewritten into vocabulary.
package phonetic

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
	defaultMinRunes          = 4

	// Tokens shorter than this contribute no phonetic codes.
	minCodeRunes = 3

	// Shorter-to-longer length ratio below which a term is not considered.
	minLengthRatio = 0.7
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithMinRunes sets the minimum number of letters (spaces excluded) an input
// must have to be considered. Default: 4.
func WithMinRunes(n int) Option {
	return func(m *Matcher) {
		m.minRunes = n
	}
}

// Matcher is safe for concurrent use; it is read-only after construction.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	minRunes          int
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minRunes:          defaultMinRunes,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Vocabulary is a set of terms with their phonetic codes precomputed. Build
// one with [Prepare] when the same terms are matched against many inputs.
type Vocabulary struct {
	terms    []term
	maxWords int
}

type term struct {
	original string
	lower    string
	concat   string
	words    int
	runes    int
	codes    map[string]struct{}
}

// Prepare builds a [Vocabulary] from terms. Blank terms and case-insensitive
// duplicates are dropped; the first spelling wins.
func Prepare(terms []string) *Vocabulary {
	v := &Vocabulary{terms: make([]term, 0, len(terms))}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "" {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		tokens := strings.Fields(lower)
		concat := strings.Join(tokens, "")
		v.terms = append(v.terms, term{
			original: strings.TrimSpace(t),
			lower:    strings.Join(tokens, " "),
			concat:   concat,
			words:    len(tokens),
			runes:    utf8.RuneCountInString(concat),
			codes:    codesForTokens(tokens),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// MaxWords returns the word count of the longest term, or 0 when empty.
func (v *Vocabulary) MaxWords() int { return v.maxWords }

// Len returns the number of distinct terms.
func (v *Vocabulary) Len() int { return len(v.terms) }

// Match finds the term most similar to word, which may be a single word or a
// space-separated phrase. When matched is false, corrected equals word and
// confidence is 0.
func (m *Matcher) Match(word string, terms []string) (corrected string, confidence float64, matched bool) {
	return m.MatchPrepared(word, Prepare(terms))
}

// MatchPrepared is [Matcher.Match] against a precomputed [Vocabulary].
func (m *Matcher) MatchPrepared(word string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	if v == nil || len(v.terms) == 0 {
		return word, 0, false
	}
	tokens := strings.Fields(strings.ToLower(word))
	if len(tokens) == 0 {
		return word, 0, false
	}
	if utf8.RuneCountInString(strings.Join(tokens, "")) < m.minRunes {
		return word, 0, false
	}
	inputCodes := codesForTokens(tokens)

	var (
		best         *term
		bestScore    float64
		bestPhonetic bool
	)
	for i := range v.terms {
		t := &v.terms[i]
		score, ok := similarity(tokens, t)
		if !ok || shorterSpanFits(tokens, t, score) {
			continue
		}

		if codesOverlap(inputCodes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t, score, true
			}
		} else if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t, score
		}
	}

	if best == nil {
		return word, 0, false
	}
	return best.original, bestScore, true
}

// similarity returns the Jaro-Winkler score of tokens against t, comparing
// both the spaced and the concatenated forms. It reports false when the word
// counts or lengths are too far apart to compare.
func similarity(tokens []string, t *term) (float64, bool) {
	concat := strings.Join(tokens, "")
	if absDiff(len(tokens), t.words) > 1 || lengthRatio(utf8.RuneCountInString(concat), t.runes) < minLengthRatio {
		return 0, false
	}
	score := matchr.JaroWinkler(strings.Join(tokens, " "), t.lower, false)
	if s := matchr.JaroWinkler(concat, t.concat, false); s > score {
		score = s
	}
	return score, true
}

// shorterSpanFits reports whether an input with more words than t matches t
// at least as well once its first or last word is dropped. Such an input has
// swallowed a neighbouring word.
func shorterSpanFits(tokens []string, t *term, score float64) bool {
	if len(tokens) <= t.words {
		return false
	}
	for _, sub := range [][]string{tokens[1:], tokens[:len(tokens)-1]} {
		if s, ok := similarity(sub, t); ok && s >= score {
			return true
		}
	}
	return false
}

// codesForTokens returns the union of the Double Metaphone codes of tokens
// long enough to carry a meaningful code.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		if utf8.RuneCountInString(t) < minCodeRunes {
			continue
		}
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

func lengthRatio(a, b int) float64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > b {
		a, b = b, a
	}
	return float64(a) / float64(b)
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
