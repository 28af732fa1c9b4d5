package nugget

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/scribecat/pkg/provider/llm"
)

// ErrEmptyTranscript is returned when there is nothing to write notes about.
var ErrEmptyTranscript = errors.New("nugget: transcript is empty")

// NoteTaker writes complete markdown study notes for a whole transcript.
type NoteTaker struct {
	llm llm.Provider
}

// NewNoteTaker creates a NoteTaker backed by provider.
func NewNoteTaker(provider llm.Provider) *NoteTaker {
	return &NoteTaker{llm: provider}
}

// Take returns markdown notes for transcript.
func (n *NoteTaker) Take(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", ErrEmptyTranscript
	}
	resp, err := n.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fullNotesPrompt(transcript),
		}},
		MaxTokens: n.llm.Capabilities().ClampMaxTokens(fullNotesMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("nugget: full notes: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
