package render

import (
	"strings"
	"testing"
)

const notes = "# Cell Biology\n\n## Organelles\n\n- **Mitochondria**: produce ATP\n- *Ribosomes* build proteins\n\n> Key idea: structure follows function.\n\n```\nATP -> ADP\n```\n"

func TestHTML(t *testing.T) {
	t.Parallel()

	html, err := HTML(notes)
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	for _, want := range []string{"<h1>Cell Biology</h1>", "<strong>Mitochondria</strong>", "<em>Ribosomes</em>", "<blockquote>"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q:\n%s", want, html)
		}
	}
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	got := PlainText(notes)
	want := strings.Join([]string{
		"Cell Biology",
		"Organelles",
		"Mitochondria: produce ATP",
		"Ribosomes build proteins",
		"Key idea: structure follows function.",
		"ATP -> ADP",
	}, "\n")
	if got != want {
		t.Errorf("PlainText =\n%s\nwant\n%s", got, want)
	}
}

func TestPlainText_TableAndLinks(t *testing.T) {
	t.Parallel()

	src := "See https://example.org and [the docs](https://docs.example.org).\n\n| Term | Meaning |\n|---|---|\n| ATP | energy |\n"
	got := PlainText(src)
	for _, want := range []string{"https://example.org", "the docs", "ATP", "energy"} {
		if !strings.Contains(got, want) {
			t.Errorf("PlainText missing %q: %q", want, got)
		}
	}
	if strings.Contains(got, "](") || strings.Contains(got, "|") {
		t.Errorf("PlainText kept markdown syntax: %q", got)
	}
}

func TestMarkdown(t *testing.T) {
	t.Parallel()

	r, err := Markdown("**bold** text")
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if r.PlainText != "bold text" {
		t.Errorf("PlainText = %q", r.PlainText)
	}
	if !strings.Contains(r.HTML, "<strong>bold</strong>") {
		t.Errorf("HTML = %q", r.HTML)
	}
}
