// Package llm defines the Provider interface for Large Language Model backends.
//
// A provider wraps a remote model API (Anthropic Claude, OpenAI, or anything
// reachable through any-llm-go) and exposes the two call shapes ScribeCat
// needs: a blocking completion for context extraction and note generation, and
// a streaming completion for the study chat.
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"
	"strings"
)

// FinishReasonError is the FinishReason of a Chunk that carries a mid-stream
// error message in its Text field.
const FinishReasonError = "error"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness. Zero requests the provider
	// default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means use the
	// provider default.
	MaxTokens int

	// SystemPrompt is an optional instruction placed before the conversation.
	// Providers without a dedicated system field prepend it as a "system"
	// message.
	SystemPrompt string
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk.
	Text string

	// FinishReason is set on the final chunk ("stop", "length", ...) and is
	// FinishReasonError when the stream failed after it was opened.
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a channel that emits
	// Chunk values as they arrive. The channel is closed when generation
	// finishes or ctx is cancelled. Callers must drain it.
	//
	// The initial error is non-nil only for failures that prevent the stream
	// from starting; later failures arrive as a Chunk with FinishReasonError.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing the underlying model.
	Capabilities() ModelCapabilities
}

// Collect drains a stream into a single string. It returns the first
// mid-stream error reported through FinishReasonError.
func Collect(ch <-chan Chunk) (string, error) {
	var (
		sb  strings.Builder
		err error
	)
	for c := range ch {
		if c.FinishReason == FinishReasonError {
			if err == nil {
				err = &StreamError{Message: c.Text}
			}
			continue
		}
		sb.WriteString(c.Text)
	}
	return sb.String(), err
}

// StreamError reports a failure that occurred after a stream was opened.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return "llm: stream: " + e.Message }
