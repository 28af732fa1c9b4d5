package transcript_test

import (
	"testing"

	"github.com/MrWong99/scribecat/internal/transcript"
	"github.com/MrWong99/scribecat/internal/transcript/phonetic"
)

var biology = []string{"Mitochondria", "Krebs cycle", "Glycolysis", "Photosynthesis"}

func TestCorrector_Correct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		want      string
		wantCount int
	}{
		{
			name:      "single and multi word terms",
			text:      "The mitokondria feeds the crebs cycle.",
			want:      "The Mitochondria feeds the Krebs cycle.",
			wantCount: 2,
		},
		{
			name:      "punctuation preserved",
			text:      "First (photosinthesis), then glycolisis!",
			want:      "First (Photosynthesis), then Glycolysis!",
			wantCount: 2,
		},
		{
			name:      "correct spelling keeps casing",
			text:      "glycolysis   happens here",
			want:      "glycolysis   happens here",
			wantCount: 0,
		},
		{
			name:      "nothing to correct",
			text:      "Today we discuss energy and cells in general terms",
			want:      "Today we discuss energy and cells in general terms",
			wantCount: 0,
		},
	}

	c := transcript.NewCorrector(phonetic.New())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, corrections := c.Correct(tc.text, biology)
			if got != tc.want {
				t.Errorf("Correct(%q) = %q, want %q", tc.text, got, tc.want)
			}
			if len(corrections) != tc.wantCount {
				t.Errorf("len(corrections) = %d, want %d (%+v)", len(corrections), tc.wantCount, corrections)
			}
		})
	}
}

func TestCorrector_CorrectionDetails(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(phonetic.New())
	_, corrections := c.Correct("so the crebs cycle runs", biology)
	if len(corrections) != 1 {
		t.Fatalf("len(corrections) = %d, want 1", len(corrections))
	}
	got := corrections[0]
	if got.Original != "crebs cycle" || got.Corrected != "Krebs cycle" {
		t.Errorf("correction = %+v, want crebs cycle -> Krebs cycle", got)
	}
	if got.Confidence <= 0 || got.Confidence > 1 {
		t.Errorf("Confidence = %f, want in (0, 1]", got.Confidence)
	}
}

func TestCorrector_NoTerms(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(phonetic.New())
	text := "the mitokondria"
	if got, corrections := c.Correct(text, nil); got != text || corrections != nil {
		t.Errorf("Correct with no terms = (%q, %v), want unchanged", got, corrections)
	}

	var nilCorrector *transcript.Corrector
	if got, _ := nilCorrector.Correct(text, biology); got != text {
		t.Errorf("nil Corrector changed text to %q", got)
	}
}

// aliasMatcher maps known mishearings to their terms.
type aliasMatcher struct {
	aliases map[string]string
	calls   int
}

func (m *aliasMatcher) Match(word string, _ []string) (string, float64, bool) {
	m.calls++
	if t, ok := m.aliases[word]; ok {
		return t, 1, true
	}
	return word, 0, false
}

func TestCorrector_CustomMatcher(t *testing.T) {
	t.Parallel()

	m := &aliasMatcher{aliases: map[string]string{"atb": "ATP", "nadj": "NADH"}}
	c := transcript.NewCorrector(m, transcript.WithMaxWindow(1))
	got, corrections := c.Correct("we measure atb, then nadj", []string{"ATP", "NADH"})
	if want := "we measure ATP, then NADH"; got != want {
		t.Errorf("Correct = %q, want %q", got, want)
	}
	if len(corrections) != 2 {
		t.Errorf("len(corrections) = %d, want 2", len(corrections))
	}
	// One single-word window per token.
	if m.calls != 5 {
		t.Errorf("matcher calls = %d, want 5", m.calls)
	}
}
