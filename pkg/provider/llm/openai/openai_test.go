package openai

import (
	"testing"

	"github.com/MrWong99/scribecat/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	if m := convertMessage(llm.Message{Role: llm.RoleSystem, Content: "x"}); m.OfSystem == nil {
		t.Error("expected OfSystem to be set")
	}
	if m := convertMessage(llm.Message{Role: llm.RoleUser, Content: "x"}); m.OfUser == nil {
		t.Error("expected OfUser to be set")
	}
	if m := convertMessage(llm.Message{Role: llm.RoleAssistant, Content: "x"}); m.OfAssistant == nil {
		t.Error("expected OfAssistant to be set")
	}
	if m := convertMessage(llm.Message{Role: "tool", Content: "x"}); m.OfUser == nil {
		t.Error("expected unknown role to map to OfUser")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o-mini", WithBaseURL("http://localhost:1234/v1")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are Nugget.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "What is entropy?"},
			{Role: llm.RoleAssistant, Content: "A measure of disorder."},
			{Role: llm.RoleUser, Content: "Thanks"},
		},
		MaxTokens: 1024,
	})

	if len(params.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected system prompt first")
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 1024 {
		t.Errorf("MaxCompletionTokens = %+v", params.MaxCompletionTokens)
	}
	if params.Temperature.Valid() {
		t.Error("expected Temperature to be omitted")
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	if got := p.Capabilities().MaxOutputTokens; got != 16_384 {
		t.Errorf("MaxOutputTokens = %d, want 16384", got)
	}
	p = &Provider{model: "unknown"}
	if got := p.Capabilities().MaxOutputTokens; got != 4_096 {
		t.Errorf("MaxOutputTokens = %d, want 4096", got)
	}
}
