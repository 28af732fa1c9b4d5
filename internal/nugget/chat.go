package nugget

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/scribecat/pkg/provider/llm"
)

// ErrEmptyMessage is returned when a chat question is blank.
var ErrEmptyMessage = errors.New("nugget: message is empty")

// maxHistoryTurns bounds how much of the conversation is replayed.
const maxHistoryTurns = 20

// ChatTurn is one prior exchange in a Nugget conversation.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a single question to Nugget together with the material it
// should ground its answer in.
type ChatRequest struct {
	Message    string
	History    []ChatTurn
	Transcript string
	Notes      string
}

// Chat answers study questions about a lecture.
type Chat struct {
	llm llm.Provider
}

// NewChat creates a Chat backed by provider.
func NewChat(provider llm.Provider) *Chat {
	return &Chat{llm: provider}
}

// Ask returns Nugget's full answer.
func (c *Chat) Ask(ctx context.Context, req ChatRequest) (string, error) {
	creq, err := c.buildRequest(req)
	if err != nil {
		return "", err
	}
	resp, err := c.llm.Complete(ctx, creq)
	if err != nil {
		return "", fmt.Errorf("nugget: chat: %w", err)
	}
	return resp.Content, nil
}

// Stream returns Nugget's answer as it is generated.
func (c *Chat) Stream(ctx context.Context, req ChatRequest) (<-chan llm.Chunk, error) {
	creq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}
	ch, err := c.llm.StreamCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("nugget: chat stream: %w", err)
	}
	return ch, nil
}

func (c *Chat) buildRequest(req ChatRequest) (llm.CompletionRequest, error) {
	if strings.TrimSpace(req.Message) == "" {
		return llm.CompletionRequest{}, ErrEmptyMessage
	}

	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	msgs := make([]llm.Message, 0, len(history)+1)
	for _, t := range history {
		role := llm.RoleUser
		if t.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: req.Message})

	return llm.CompletionRequest{
		SystemPrompt: chatSystemPrompt(req.Transcript, req.Notes),
		Messages:     msgs,
		MaxTokens:    chatMaxTokens,
	}, nil
}
