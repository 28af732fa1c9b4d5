package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/scribecat/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "claude-haiku-4-5-20251001"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("sk-ant-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "claude-haiku-4-5-20251001"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are Nugget.",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Lecture transcript follows."},
			{Role: llm.RoleUser, Content: "What is a monad?"},
			{Role: llm.RoleAssistant, Content: "A design pattern."},
			{Role: llm.RoleUser, Content: "Go on."},
		},
		Temperature: 0.2,
	})

	if string(params.Model) != "claude-haiku-4-5-20251001" {
		t.Errorf("Model = %q", params.Model)
	}
	if params.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", params.MaxTokens, DefaultMaxTokens)
	}
	if len(params.System) != 1 {
		t.Fatalf("expected 1 system block, got %d", len(params.System))
	}
	if want := "You are Nugget.\n\nLecture transcript follows."; params.System[0].Text != want {
		t.Errorf("System = %q, want %q", params.System[0].Text, want)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(params.Messages))
	}
	roles := []string{"user", "assistant", "user"}
	for i, m := range params.Messages {
		if string(m.Role) != roles[i] {
			t.Errorf("message %d role = %q, want %q", i, m.Role, roles[i])
		}
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.2 {
		t.Errorf("Temperature = %+v, want 0.2", params.Temperature)
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "sk-ant-test" {
			t.Errorf("missing api key header")
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-haiku-4-5-20251001",
			"content": [{"type": "text", "text": "- Entropy always increases"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 42, "output_tokens": 7}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-ant-test", "claude-haiku-4-5-20251001", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "notes please"}},
		MaxTokens: 150,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "- Entropy always increases" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 49 {
		t.Errorf("TotalTokens = %d, want 49", resp.Usage.TotalTokens)
	}
	if gotBody["max_tokens"] != float64(150) {
		t.Errorf("max_tokens = %v, want 150", gotBody["max_tokens"])
	}
}

func TestComplete_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	p, err := New("sk-ant-bad", "claude-haiku-4-5-20251001", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	if got := (&Provider{model: "claude-sonnet-4-5-20250929"}).Capabilities().MaxOutputTokens; got != 32_000 {
		t.Errorf("sonnet 4.5 MaxOutputTokens = %d", got)
	}
	if got := (&Provider{model: "claude-3-5-haiku-latest"}).Capabilities().MaxOutputTokens; got != 8_192 {
		t.Errorf("3.5 haiku MaxOutputTokens = %d", got)
	}
}
