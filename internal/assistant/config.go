package assistant

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultRelevanceThreshold = 0.3
	defaultTimeout            = 15 * time.Second
	defaultMaxContextLength   = 2000
	defaultMaxTokens          = 500
	defaultTopK               = 5
	defaultFallbackDocs       = 3
)

// Config tunes the chat pipeline.
type Config struct {
	// RelevanceThreshold drops retrieved documents scoring below it.
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
	// Timeout bounds one generator call. A timeout triggers the fallback.
	Timeout time.Duration `yaml:"timeout"`
	// MaxContextLength caps the characters of history put in the prompt.
	MaxContextLength int `yaml:"max_context_length"`
	MaxTokens        int `yaml:"max_tokens"`
	TopK             int `yaml:"top_k"`
	// FallbackDocs is how many documents the fallback answer quotes.
	FallbackDocs int `yaml:"fallback_docs"`

	Logger *slog.Logger     `yaml:"-"`
	Now    func() time.Time `yaml:"-"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.RelevanceThreshold == 0 {
		c.RelevanceThreshold = defaultRelevanceThreshold
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxContextLength == 0 {
		c.MaxContextLength = defaultMaxContextLength
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.TopK == 0 {
		c.TopK = defaultTopK
	}
	if c.FallbackDocs == 0 {
		c.FallbackDocs = defaultFallbackDocs
	}
}

// Validate checks ranges after Defaults.
func (c *Config) Validate() error {
	var errs []error
	if c.RelevanceThreshold < 0 || c.RelevanceThreshold > 1 {
		errs = append(errs, fmt.Errorf("assistant: relevance_threshold must be in [0,1], got %v", c.RelevanceThreshold))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("assistant: timeout must be positive, got %s", c.Timeout))
	}
	if c.MaxContextLength < 0 {
		errs = append(errs, fmt.Errorf("assistant: max_context_length must be non-negative, got %d", c.MaxContextLength))
	}
	if c.MaxTokens < 0 || c.TopK < 0 || c.FallbackDocs < 0 {
		errs = append(errs, errors.New("assistant: max_tokens, top_k and fallback_docs must be non-negative"))
	}
	return errors.Join(errs...)
}
