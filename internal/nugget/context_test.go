package nugget

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/scribecat/pkg/lecture"
	"github.com/MrWong99/scribecat/pkg/provider/llm"
	llmmock "github.com/MrWong99/scribecat/pkg/provider/llm/mock"
)

const validContextJSON = `{"themes":["Thermodynamics","Entropy"],"currentTopic":"Second law","definitions":["Entropy: measure of disorder"],"structureHint":"Moving from definitions to examples"}`

func TestParseContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
	}{
		{"bare object", validContextJSON},
		{"json fence", "```json\n" + validContextJSON + "\n```"},
		{"plain fence", "```\n" + validContextJSON + "\n```"},
		{"prose around object", "Sure! Here is the context:\n" + validContextJSON + "\nLet me know if you need more."},
		{"fence with prose", "Here you go:\n```json\n" + validContextJSON + "\n```\nDone."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseContext(tt.reply)
			if err != nil {
				t.Fatalf("ParseContext: %v", err)
			}
			if got.CurrentTopic != "Second law" {
				t.Errorf("CurrentTopic = %q", got.CurrentTopic)
			}
			if len(got.Themes) != 2 || got.Themes[1] != "Entropy" {
				t.Errorf("Themes = %v", got.Themes)
			}
			if len(got.Definitions) != 1 {
				t.Errorf("Definitions = %v", got.Definitions)
			}
		})
	}
}

func TestParseContext_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
	}{
		{"empty", ""},
		{"no braces", "I could not determine the context."},
		{"broken json", `{"themes": ["a", }`},
		{"themes not array", `{"themes":"a","currentTopic":"","definitions":[],"structureHint":""}`},
		{"topic not string", `{"themes":[],"currentTopic":7,"definitions":[],"structureHint":""}`},
		{"missing hint", `{"themes":[],"currentTopic":"x","definitions":[]}`},
		{"null definitions", `{"themes":[],"currentTopic":"x","definitions":null,"structureHint":""}`},
		{"themes with numbers", `{"themes":[1,2],"currentTopic":"x","definitions":[],"structureHint":""}`},
		{"reversed braces", "} nothing {"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseContext(tt.reply); !errors.Is(err, ErrMalformedContext) {
				t.Errorf("expected ErrMalformedContext, got %v", err)
			}
		})
	}
}

func TestParseContext_Clamps(t *testing.T) {
	t.Parallel()

	reply := `{"themes":["1","2","3","4","5","6","7"],"currentTopic":"` + strings.Repeat("x", 250) +
		`","definitions":["a","b","c","d","e","f"],"structureHint":"` + strings.Repeat("y", 101) + `"}`
	got, err := ParseContext(reply)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Themes) != 5 || len(got.Definitions) != 5 {
		t.Errorf("themes=%d definitions=%d, want 5/5", len(got.Themes), len(got.Definitions))
	}
	if len(got.CurrentTopic) != 100 || len(got.StructureHint) != 100 {
		t.Errorf("topic=%d hint=%d, want 100/100", len(got.CurrentTopic), len(got.StructureHint))
	}
}

func TestExtractor_Extract(t *testing.T) {
	t.Parallel()

	t.Run("sends trailing transcript and previous context", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: validContextJSON}}
		e := NewExtractor(p)

		transcript := strings.Repeat("a", 3000) + "TAILMARK"
		prev := lecture.Context{Themes: []string{"Heat"}, CurrentTopic: "First law"}

		got, err := e.Extract(context.Background(), transcript, prev)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if got.CurrentTopic != "Second law" {
			t.Errorf("CurrentTopic = %q", got.CurrentTopic)
		}

		req, ok := p.LastCompleteRequest()
		if !ok {
			t.Fatal("expected a Complete call")
		}
		if req.MaxTokens != 300 || req.Temperature != 0.2 {
			t.Errorf("MaxTokens=%d Temperature=%v, want 300/0.2", req.MaxTokens, req.Temperature)
		}
		prompt := req.Messages[0].Content
		if !strings.Contains(prompt, "TAILMARK") {
			t.Error("prompt is missing the end of the transcript")
		}
		if strings.Contains(prompt, strings.Repeat("a", 1600)) {
			t.Error("prompt carries more than the last 1500 characters")
		}
		if !strings.Contains(prompt, `"currentTopic":"First law"`) {
			t.Error("prompt is missing the previous context")
		}
		if !strings.Contains(prompt, `"definitions":[]`) {
			t.Error("nil definitions should render as []")
		}
	})

	t.Run("model error is wrapped", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("overloaded")
		e := NewExtractor(&llmmock.Provider{CompleteErr: boom})
		if _, err := e.Extract(context.Background(), "text", lecture.EmptyContext()); !errors.Is(err, boom) {
			t.Errorf("expected wrapped model error, got %v", err)
		}
	})

	t.Run("unparseable reply", func(t *testing.T) {
		t.Parallel()
		e := NewExtractor(&llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "no idea"}})
		if _, err := e.Extract(context.Background(), "text", lecture.EmptyContext()); !errors.Is(err, ErrMalformedContext) {
			t.Errorf("expected ErrMalformedContext, got %v", err)
		}
	})
}
