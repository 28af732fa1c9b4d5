// Package mock provides a test double for [embeddings.Provider].
//
// By default every text maps to a deterministic vector derived from its
// bytes, so equal texts embed equally and tests can rank results without a
// live model:
//
//	p := &mock.Provider{DimensionsValue: 8}
//	vec, _ := p.Embed(ctx, "mitochondria")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/scribecat/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// defaultDimensions applies when DimensionsValue is zero.
const defaultDimensions = 8

// EmbedCall records one call to Embed.
type EmbedCall struct {
	Ctx  context.Context
	Text string
}

// EmbedBatchCall records one call to EmbedBatch.
type EmbedBatchCall struct {
	Ctx   context.Context
	Texts []string
}

// Provider is a configurable mock of [embeddings.Provider].
type Provider struct {
	mu sync.Mutex

	// EmbedFunc, if set, computes the vector of each text. Otherwise a
	// byte histogram of the text is used.
	EmbedFunc func(text string) []float32

	// EmbedErr is returned by Embed when non-nil.
	EmbedErr error

	// EmbedBatchErr is returned by EmbedBatch when non-nil.
	EmbedBatchErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	EmbedCalls      []EmbedCall
	EmbedBatchCalls []EmbedBatchCall
}

// Embed implements [embeddings.Provider].
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Text: text})
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	return p.vector(text), nil
}

// EmbedBatch implements [embeddings.Provider].
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Ctx: ctx, Texts: append([]string(nil), texts...)})
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// Dimensions implements [embeddings.Provider].
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dims()
}

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ModelIDValue == "" {
		return "mock-embed"
	}
	return p.ModelIDValue
}

// BatchCallCount returns the number of EmbedBatch calls.
func (p *Provider) BatchCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.EmbedBatchCalls)
}

// Reset clears the call records.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.EmbedBatchCalls = nil
}

func (p *Provider) dims() int {
	if p.DimensionsValue > 0 {
		return p.DimensionsValue
	}
	return defaultDimensions
}

func (p *Provider) vector(text string) []float32 {
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text)
	}
	v := make([]float32, p.dims())
	for i := 0; i < len(text); i++ {
		v[int(text[i])%len(v)]++
	}
	return v
}
