package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/scribecat/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "claude-haiku-4-5"); err == nil {
		t.Error("expected error for empty backend name")
	}
	if _, err := New("anthropic", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("carrier-pigeon", "model"); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{llm.RoleSystem, anyllmlib.RoleSystem},
		{llm.RoleUser, llm.RoleUser},
		{llm.RoleAssistant, llm.RoleAssistant},
		{"narrator", llm.RoleUser},
	}
	for _, tt := range tests {
		got := convertMessage(llm.Message{Role: tt.in, Content: "text"})
		if got.Role != tt.want {
			t.Errorf("convertMessage(%q).Role = %q, want %q", tt.in, got.Role, tt.want)
		}
		if got.ContentString() != "text" {
			t.Errorf("content = %q", got.ContentString())
		}
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "claude-haiku-4-5-20251001"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Be concise.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Summarise."}},
		Temperature:  0.2,
		MaxTokens:    150,
	})

	if params.Model != "claude-haiku-4-5-20251001" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first message role = %q, want system", params.Messages[0].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 150 {
		t.Errorf("MaxTokens = %v, want 150", params.MaxTokens)
	}
}

func TestBuildParams_ZeroValuesOmitted(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if params.Temperature != nil {
		t.Error("expected nil Temperature")
	}
	if params.MaxTokens != nil {
		t.Error("expected nil MaxTokens")
	}
	if len(params.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(params.Messages))
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model     string
		maxOutput int
		window    int
	}{
		{"claude-haiku-4-5-20251001", 32_000, 200_000},
		{"claude-sonnet-4-5-20250929", 32_000, 200_000},
		{"claude-3-5-haiku-latest", 8_192, 200_000},
		{"gpt-4o-mini", 16_384, 128_000},
		{"gemini-2.0-flash", 8_192, 1_048_576},
		{"some-local-model", 4_096, 128_000},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.MaxOutputTokens != tt.maxOutput {
				t.Errorf("MaxOutputTokens = %d, want %d", caps.MaxOutputTokens, tt.maxOutput)
			}
			if caps.ContextWindow != tt.window {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.window)
			}
			if !caps.SupportsStreaming {
				t.Error("expected SupportsStreaming")
			}
		})
	}
}
