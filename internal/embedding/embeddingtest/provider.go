// Package embeddingtest provides a scriptable embedding.Provider for tests.
package embeddingtest

import (
	"context"
	"hash/fnv"
	"sync"
)

// Provider returns deterministic vectors derived from each text. Set Err to
// make every call fail, or Block to make calls wait for cancellation.
type Provider struct {
	Dims  int
	Batch int
	Err   error
	Block bool

	mu    sync.Mutex
	calls [][]string
}

// Name implements embedding.Provider.
func (p *Provider) Name() string { return "fake" }

// MaxBatch implements embedding.Provider.
func (p *Provider) MaxBatch() int { return p.Batch }

// Embed implements embedding.Provider.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls = append(p.calls, append([]string(nil), texts...))
	p.mu.Unlock()

	if p.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.Err != nil {
		return nil, p.Err
	}
	dims := p.Dims
	if dims == 0 {
		dims = 8
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(t))
		seed := h.Sum64()
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = float32((seed>>(j%64))&0xff) + 1
		}
		out[i] = vec
	}
	return out, nil
}

// Calls returns the batches received so far.
func (p *Provider) Calls() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.calls...)
}
