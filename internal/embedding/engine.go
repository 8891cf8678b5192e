package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Config configures the engine.
type Config struct {
	// Timeout bounds each provider call. A timeout counts as unavailable.
	Timeout time.Duration `yaml:"timeout"`
	// Dimensions of local vectors. It should match the external model so
	// both kinds of vector can be compared.
	Dimensions     int `yaml:"dimensions"`
	VocabularyCap  int `yaml:"vocabulary_cap"`
	VocabularyKeep int `yaml:"vocabulary_keep"`

	Logger *slog.Logger `yaml:"-"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Dimensions <= 0 {
		c.Dimensions = defaultDimensions
	}
	if c.VocabularyCap <= 0 {
		c.VocabularyCap = defaultVocabularyCap
	}
	if c.VocabularyKeep <= 0 {
		c.VocabularyKeep = defaultVocabularyKeep
	}
}

// Validate checks the vocabulary bounds.
func (c *Config) Validate() error {
	if c.VocabularyKeep > c.VocabularyCap {
		return fmt.Errorf("embedding: vocabulary_keep (%d) exceeds vocabulary_cap (%d)", c.VocabularyKeep, c.VocabularyCap)
	}
	return nil
}

// Engine embeds text through the external provider when one is configured,
// falling back to the local embedder per call.
type Engine struct {
	provider Provider
	local    *Local
	timeout  time.Duration
	logger   *slog.Logger
}

// NewEngine creates an engine. p may be nil, in which case every vector is
// local.
func NewEngine(p Provider, cfg Config) *Engine {
	cfg.Defaults()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		provider: p,
		local:    NewLocal(cfg.Dimensions, cfg.VocabularyCap, cfg.VocabularyKeep),
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
}

// Embed returns the vector for text.
func (e *Engine) Embed(ctx context.Context, text string) (Vector, error) {
	if strings.TrimSpace(text) == "" {
		return Vector{}, ErrEmptyText
	}
	vecs, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return Vector{}, err
	}
	return vecs[0], nil
}

// BatchEmbed embeds texts in input order. External calls are chunked to the
// provider's batch limit; a failed chunk falls back to local embedding of
// each of its texts in order, so the result matches calling Embed on each
// text in turn.
func (e *Engine) BatchEmbed(ctx context.Context, texts []string) ([]Vector, error) {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("text %d: %w", i, ErrEmptyText)
		}
	}

	out := make([]Vector, 0, len(texts))
	chunk := len(texts)
	if e.provider != nil && e.provider.MaxBatch() > 0 {
		chunk = e.provider.MaxBatch()
	}
	for start := 0; start < len(texts); start += chunk {
		end := min(start+chunk, len(texts))
		vecs, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Engine) embedChunk(ctx context.Context, texts []string) ([]Vector, error) {
	if e.provider != nil {
		vecs, err := e.callProvider(ctx, texts)
		if err == nil {
			embedRequests.WithLabelValues(string(External)).Add(float64(len(texts)))
			return vecs, nil
		}
		// The caller's own cancellation is not a provider failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		embedFallbacks.Inc()
		e.logger.Warn("embedding provider unavailable, using local embedder",
			"provider", e.provider.Name(),
			"texts", len(texts),
			"error", err,
		)
	}

	out := make([]Vector, len(texts))
	for i, t := range texts {
		out[i] = Vector{Values: e.local.Embed(t), Source: LocalFallback}
	}
	embedRequests.WithLabelValues(string(LocalFallback)).Add(float64(len(texts)))
	return out, nil
}

func (e *Engine) callProvider(ctx context.Context, texts []string) ([]Vector, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	raw, err := e.provider.Embed(callCtx, texts)
	embedLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("embedding: provider timed out after %s: %w", e.timeout, err)
		}
		return nil, err
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("embedding: provider returned %d vectors for %d texts", len(raw), len(texts))
	}
	out := make([]Vector, len(raw))
	for i, v := range raw {
		if len(v) == 0 {
			return nil, fmt.Errorf("embedding: provider returned an empty vector at %d", i)
		}
		out[i] = Vector{Values: v, Source: External}
	}
	return out, nil
}

// EmbedLocal always uses the local embedder. The corpus uses it to compare
// a query against documents that were indexed locally.
func (e *Engine) EmbedLocal(text string) Vector {
	embedRequests.WithLabelValues(string(LocalFallback)).Inc()
	return Vector{Values: e.local.Embed(text), Source: LocalFallback}
}

// Status describes the engine for health and stats endpoints.
type Status struct {
	Provider       string `json:"provider"`
	External       bool   `json:"external"`
	VocabularySize int    `json:"vocabulary_size"`
	Documents      int    `json:"documents"`
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	s := Status{
		Provider:       "local",
		VocabularySize: e.local.VocabularySize(),
		Documents:      e.local.Documents(),
	}
	if e.provider != nil {
		s.Provider = e.provider.Name()
		s.External = true
	}
	return s
}

// Close releases the local vocabulary.
func (e *Engine) Close() error {
	e.local.Reset()
	return nil
}
