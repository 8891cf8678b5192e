// Package anthropic implements the provider.anthropic module, answering
// assistant prompts through the Anthropic Messages API.
package anthropic

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/trekassist/internal/core"
	"github.com/flemzord/trekassist/internal/provider"
	"github.com/flemzord/trekassist/internal/security"
)

const moduleID core.ModuleID = "provider.anthropic"

func init() {
	core.RegisterModule(&Provider{})
}

var (
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
	_ provider.ChainMember   = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
	_ provider.KeyHolder     = (*Provider)(nil)
)

// Provider holds one SDK client; the key ring supplies the API key per
// request.
type Provider struct {
	config Config
	client *sdkanthropic.Client
	keys   *provider.KeyRing
	logger *slog.Logger
}

func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: moduleID, New: func() core.Module { return new(Provider) }}
}

func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision builds the client and registers the keys for log redaction.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.logger = ctx.Logger

	keys := p.config.keys(os.LookupEnv)
	ring, err := provider.NewKeyRing(keys...)
	if errors.Is(err, provider.ErrNoKeys) {
		return fmt.Errorf("%s: no API key (set api_key, api_keys or $%s)", moduleID, p.config.APIKeyEnv)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", moduleID, err)
	}
	p.keys = ring
	if creds, ok := core.GetService[*security.CredentialStore](ctx, security.ServiceCredentials); ok {
		creds.SetKeys("provider.anthropic", keys)
	}

	p.client = newClient(p.config)
	p.logger.Info("anthropic provider ready", "model", p.config.Model, "keys", ring.Len())
	return nil
}

// newClient disables SDK retries; the chain decides when to try again.
func newClient(cfg Config) *sdkanthropic.Client {
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: cfg.Timeout},
		}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	c := sdkanthropic.NewClient(opts...)
	return &c
}

func (p *Provider) Validate() error {
	if p.client == nil {
		return fmt.Errorf("%s: not provisioned", moduleID)
	}
	return p.config.validate()
}

func (p *Provider) ModelName() string { return p.config.Model }

func (p *Provider) Keys() *provider.KeyRing { return p.keys }

func (p *Provider) ChainEntry() provider.ChainEntry {
	return provider.ChainEntry{
		Name:      "anthropic",
		Generator: p,
		Role:      p.config.Role,
		Keys:      p.keys,
		Health:    p.config.Health,
	}
}
