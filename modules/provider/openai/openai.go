// Package openai implements the provider.openai module, answering
// assistant prompts through the OpenAI Chat Completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/trekassist/internal/core"
	"github.com/flemzord/trekassist/internal/provider"
	"github.com/flemzord/trekassist/internal/security"
)

func init() {
	core.RegisterModule(&Provider{})
}

// Compile-time interface guards.
var (
	_ provider.TextGenerator = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
	_ provider.ChainMember   = (*Provider)(nil)
	_ core.Module            = (*Provider)(nil)
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
)

var errEmptyResponse = errors.New("openai: response contained no text")

// Provider is the provider.openai module. One client is kept per API key;
// the key ring picks the active one.
type Provider struct {
	config  Config
	logger  *slog.Logger
	keys    *provider.KeyRing
	clients []*goopenai.Client
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.logger = ctx.Logger

	keys := p.config.keys(os.LookupEnv)
	if len(keys) == 0 {
		return fmt.Errorf("provider.openai: no API key (set api_key, api_keys or $%s)", p.config.APIKeyEnv)
	}
	ring, err := provider.NewKeyRing(keys...)
	if err != nil {
		return fmt.Errorf("provider.openai: %w", err)
	}
	p.keys = ring
	if creds, ok := core.GetService[*security.CredentialStore](ctx, security.ServiceCredentials); ok {
		creds.SetKeys("provider.openai", keys)
	}
	p.clients = newClients(keys, p.config.BaseURL, &http.Client{
		Transport: &http.Transport{ResponseHeaderTimeout: p.config.Timeout},
	})
	return nil
}

func newClients(keys []string, baseURL string, hc *http.Client) []*goopenai.Client {
	out := make([]*goopenai.Client, len(keys))
	for i, k := range keys {
		cfg := goopenai.DefaultConfig(k)
		if baseURL != "" {
			cfg.BaseURL = strings.TrimRight(baseURL, "/")
		}
		cfg.HTTPClient = hc
		out[i] = goopenai.NewClientWithConfig(cfg)
	}
	return out
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	if err := p.config.validate(); err != nil {
		return err
	}
	if len(p.clients) == 0 {
		return errors.New("provider.openai: client not initialized (Provision not called)")
	}
	return nil
}

// ModelName implements provider.TextGenerator.
func (p *Provider) ModelName() string { return p.config.Model }

// Keys implements provider.KeyHolder.
func (p *Provider) Keys() *provider.KeyRing { return p.keys }

// ChainEntry implements provider.ChainMember.
func (p *Provider) ChainEntry() provider.ChainEntry {
	return provider.ChainEntry{
		Name:      "openai",
		Generator: p,
		Role:      p.config.Role,
		Keys:      p.keys,
		Health:    p.config.Health,
	}
}

func (p *Provider) client() *goopenai.Client {
	return p.clients[p.keys.Index()%len(p.clients)]
}

// Generate implements provider.TextGenerator.
func (p *Provider) Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}
	req := goopenai.ChatCompletionRequest{
		Model:     p.config.Model,
		MaxTokens: maxTokens,
	}
	if p.config.Temperature != nil {
		req.Temperature = *p.config.Temperature
	}
	if systemPrompt != "" {
		req.Messages = append(req.Messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	req.Messages = append(req.Messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	rsp, err := p.client().CreateChatCompletion(ctx, req)
	if err != nil {
		return "", MapError(err)
	}
	if len(rsp.Choices) == 0 || strings.TrimSpace(rsp.Choices[0].Message.Content) == "" {
		return "", errEmptyResponse
	}
	return strings.TrimSpace(rsp.Choices[0].Message.Content), nil
}

// HealthCheck lists models, which needs a valid key but no tokens.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client().ListModels(ctx)
	return MapError(err)
}
