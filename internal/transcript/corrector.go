package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/scribecat/internal/transcript/phonetic"
)

const defaultMaxWindow = 4

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithMaxWindow caps the number of words tried as one phrase. Default: 4.
func WithMaxWindow(n int) Option {
	return func(c *Corrector) {
		if n > 0 {
			c.maxWindow = n
		}
	}
}

// Corrector rewrites misheard vocabulary in transcript text.
// It is safe for concurrent use.
type Corrector struct {
	matcher   PhoneticMatcher
	maxWindow int
}

// NewCorrector returns a [Corrector] backed by m.
func NewCorrector(m PhoneticMatcher, opts ...Option) *Corrector {
	c := &Corrector{matcher: m, maxWindow: defaultMaxWindow}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct replaces phrases in text that match a term from terms.
//
// At each word the longest window (up to one word more than the longest term)
// is tried first, so multi-word terms take precedence over single-word ones.
// Windows never span punctuation. When nothing is replaced, text is returned
// unchanged; otherwise words are rejoined with single spaces.
func (c *Corrector) Correct(text string, terms []string) (string, []Correction) {
	if c == nil || c.matcher == nil || len(terms) == 0 {
		return text, nil
	}

	var (
		matchFn  func(string) (string, float64, bool)
		maxWords int
	)
	if pm, ok := c.matcher.(*phonetic.Matcher); ok {
		v := phonetic.Prepare(terms)
		maxWords = v.MaxWords()
		matchFn = func(w string) (string, float64, bool) { return pm.MatchPrepared(w, v) }
	} else {
		maxWords = maxWordCount(terms)
		matchFn = func(w string) (string, float64, bool) { return c.matcher.Match(w, terms) }
	}
	if maxWords == 0 {
		return text, nil
	}
	window := min(maxWords+1, c.maxWindow)

	fields := strings.Fields(text)
	tokens := make([]token, len(fields))
	for i, f := range fields {
		tokens[i] = splitToken(f)
	}

	var (
		out         = make([]string, 0, len(tokens))
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		n := c.matchAt(tokens, i, window, matchFn, &out, &corrections)
		if n == 0 {
			out = append(out, fields[i])
			n = 1
		}
		i += n
	}

	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

// matchAt tries windows starting at tokens[i], longest first. It appends the
// replacement to out and returns the number of tokens consumed, or 0 when no
// window matched.
func (c *Corrector) matchAt(
	tokens []token,
	i, window int,
	matchFn func(string) (string, float64, bool),
	out *[]string,
	corrections *[]Correction,
) int {
	for n := min(window, len(tokens)-i); n >= 1; n-- {
		span := tokens[i : i+n]
		phrase, ok := joinCores(span)
		if !ok {
			continue
		}
		term, conf, matched := matchFn(phrase)
		if !matched {
			continue
		}

		first, last := span[0], span[n-1]
		if strings.EqualFold(strings.Join(strings.Fields(term), " "), phrase) {
			// Already spelled correctly; keep the speaker's casing.
			for _, t := range span {
				*out = append(*out, t.String())
			}
			return n
		}
		*out = append(*out, first.lead+term+last.trail)
		*corrections = append(*corrections, Correction{
			Original:   phrase,
			Corrected:  term,
			Confidence: conf,
		})
		return n
	}
	return 0
}

// token is one whitespace-separated word split into punctuation and core.
type token struct {
	lead, core, trail string
}

func (t token) String() string { return t.lead + t.core + t.trail }

func splitToken(s string) token {
	start := strings.IndexFunc(s, isWordRune)
	if start < 0 {
		return token{lead: s}
	}
	end := strings.LastIndexFunc(s, isWordRune)
	_, size := utf8.DecodeRuneInString(s[end:])
	return token{lead: s[:start], core: s[start : end+size], trail: s[end+size:]}
}

// joinCores joins the cores of span with spaces. It reports false when the
// span crosses punctuation or contains a token with no letters.
func joinCores(span []token) (string, bool) {
	parts := make([]string, len(span))
	for j, t := range span {
		if t.core == "" {
			return "", false
		}
		if j > 0 && t.lead != "" {
			return "", false
		}
		if j < len(span)-1 && t.trail != "" {
			return "", false
		}
		parts[j] = t.core
	}
	return strings.Join(parts, " "), true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// maxWordCount returns the maximum number of words in any term.
func maxWordCount(terms []string) int {
	n := 0
	for _, t := range terms {
		n = max(n, len(strings.Fields(t)))
	}
	return n
}
