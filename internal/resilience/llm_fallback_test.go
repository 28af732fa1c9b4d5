package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/scribecat/pkg/provider/llm"
	llmmock "github.com/MrWong99/scribecat/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		primaryErr error
		want       string
		wantSecond int
	}{
		{name: "primary answers", want: "from primary"},
		{name: "fails over", primaryErr: errors.New("503 overloaded"), want: "from secondary", wantSecond: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from primary"}, CompleteErr: tc.primaryErr}
			if tc.primaryErr != nil {
				primary.CompleteResponse = nil
			}
			secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from secondary"}}
			fb := NewLLMFallback(primary, "openai", FallbackConfig{})
			fb.AddFallback("anthropic", secondary)

			resp, err := fb.Complete(context.Background(), llm.CompletionRequest{SystemPrompt: "s"})
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if resp.Content != tc.want {
				t.Errorf("content = %q, want %q", resp.Content, tc.want)
			}
			if primary.CompleteCallCount() != 1 {
				t.Errorf("primary calls = %d", primary.CompleteCallCount())
			}
			if got := secondary.CompleteCallCount(); got != tc.wantSecond {
				t.Errorf("secondary calls = %d, want %d", got, tc.wantSecond)
			}
		})
	}
}

func TestLLMFallback_StreamCompletion(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{StreamErr: errors.New("connection refused")}
	secondary := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "Hello "}, {Text: "there"}}}
	fb := NewLLMFallback(primary, "openai", FallbackConfig{})
	fb.AddFallback("anthropic", secondary)

	ch, err := fb.StreamCompletion(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	text, err := llm.Collect(ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Hello there" {
		t.Errorf("text = %q", text)
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewLLMFallback(&llmmock.Provider{CompleteErr: errors.New("a")}, "a", FallbackConfig{})
	fb.AddFallback("b", &llmmock.Provider{CompleteErr: errors.New("b")})
	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_Capabilities(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{ContextWindow: 128_000}}
	fb := NewLLMFallback(primary, "openai", FallbackConfig{})
	fb.AddFallback("anthropic", &llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{ContextWindow: 200_000}})
	if got := fb.Capabilities().ContextWindow; got != 128_000 {
		t.Errorf("ContextWindow = %d, want the primary's", got)
	}
	if got := fb.Names(); len(got) != 2 || got[0] != "openai" {
		t.Errorf("Names = %v", got)
	}
}
