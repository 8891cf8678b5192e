// Package openai implements the embedding.openai module, producing corpus
// and query vectors through the OpenAI embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/trekassist/internal/core"
	"github.com/flemzord/trekassist/internal/embedding"
	"github.com/flemzord/trekassist/internal/security"
	provideropenai "github.com/flemzord/trekassist/modules/provider/openai"
)

func init() {
	core.RegisterModule(&Embedder{})
}

// Interface guards.
var (
	_ core.Module        = (*Embedder)(nil)
	_ core.Configurable  = (*Embedder)(nil)
	_ core.Provisioner   = (*Embedder)(nil)
	_ core.Validator     = (*Embedder)(nil)
	_ embedding.Provider = (*Embedder)(nil)
)

// Config holds the embedding.openai settings.
type Config struct {
	APIKey     string        `yaml:"api_key"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = string(goopenai.SmallEmbedding3)
	}
	if c.Dimensions == 0 {
		c.Dimensions = 1536
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1000
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
}

// Embedder is the embedding.openai module.
type Embedder struct {
	config Config
	client *goopenai.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (e *Embedder) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "embedding.openai",
		New: func() core.Module { return &Embedder{} },
	}
}

// Configure implements core.Configurable.
func (e *Embedder) Configure(node *yaml.Node) error {
	if err := node.Decode(&e.config); err != nil {
		return err
	}
	e.config.defaults()
	return nil
}

// Provision implements core.Provisioner. Without a key the module stays
// unprovisioned and the engine runs on local vectors only.
func (e *Embedder) Provision(ctx *core.AppContext) error {
	e.logger = ctx.Logger

	key := e.config.APIKey
	if key == "" {
		key, _ = os.LookupEnv(e.config.APIKeyEnv)
	}
	if key == "" {
		e.logger.Warn("no API key configured, embeddings will use the local fallback", "env", e.config.APIKeyEnv)
		return nil
	}

	if creds, ok := core.GetService[*security.CredentialStore](ctx, security.ServiceCredentials); ok {
		creds.Set("embedding.openai", key)
	}

	cfg := goopenai.DefaultConfig(key)
	if e.config.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(e.config.BaseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: e.config.Timeout}
	e.client = goopenai.NewClientWithConfig(cfg)
	return nil
}

// Validate implements core.Validator.
func (e *Embedder) Validate() error {
	if e.config.Dimensions <= 0 {
		return fmt.Errorf("embedding.openai: dimensions must be positive, got %d", e.config.Dimensions)
	}
	if e.config.BatchSize <= 0 || e.config.BatchSize > 2048 {
		return fmt.Errorf("embedding.openai: batch_size must be within [1,2048], got %d", e.config.BatchSize)
	}
	return nil
}

// Configured reports whether an API key was found.
func (e *Embedder) Configured() bool { return e.client != nil }

// Name implements embedding.Provider.
func (e *Embedder) Name() string { return "openai:" + e.config.Model }

// MaxBatch implements embedding.Provider.
func (e *Embedder) MaxBatch() int { return e.config.BatchSize }

// Dimensions returns the configured vector size.
func (e *Embedder) Dimensions() int { return e.config.Dimensions }

var errNotConfigured = errors.New("embedding.openai: no API key configured")

// Embed implements embedding.Provider.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.client == nil {
		return nil, errNotConfigured
	}
	rsp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input:      texts,
		Model:      goopenai.EmbeddingModel(e.config.Model),
		Dimensions: e.config.Dimensions,
	})
	if err != nil {
		return nil, provideropenai.MapError(err)
	}
	if len(rsp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding.openai: got %d embeddings for %d inputs", len(rsp.Data), len(texts))
	}

	// The API documents Index; do not rely on response order.
	out := make([][]float32, len(texts))
	for _, d := range rsp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding.openai: embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
