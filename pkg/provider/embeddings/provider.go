// Package embeddings defines the interface for text embedding providers.
//
// Embeddings turn nugget notes and search queries into dense vectors so
// notes can be found by meaning rather than by exact words. Implementations
// live in sub-packages (openai, mock) and must be safe for concurrent use.
package embeddings

import "context"

// Provider computes dense vector embeddings.
type Provider interface {
	// Embed returns the embedding of text, of length Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one call. The i-th result corresponds to
	// texts[i]. On error no partial result is returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length of the model.
	Dimensions() int

	// ModelID returns the model identifier, e.g. "text-embedding-3-small".
	ModelID() string
}
