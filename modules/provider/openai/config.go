package openai

import (
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/trekassist/internal/provider"
)

// Config holds the configuration for the OpenAI provider module.
type Config struct {
	APIKey      string        `yaml:"api_key"`
	APIKeys     []string      `yaml:"api_keys"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float32      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`

	Role   provider.Role         `yaml:"role"`
	Health provider.HealthConfig `yaml:"health"`
}

// defaults fills zero-valued fields with sensible defaults.
func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Role == "" {
		c.Role = provider.RolePrimary
	}
}

func (c *Config) validate() error {
	if c.Model == "" {
		return errors.New("provider.openai: model must not be empty")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("provider.openai: temperature must be within [0,2], got %v", *c.Temperature)
	}
	switch c.Role {
	case provider.RolePrimary, provider.RoleFallback:
	default:
		return fmt.Errorf("provider.openai: unknown role %q", c.Role)
	}
	return nil
}

func (c *Config) keys(env func(string) (string, bool)) []string {
	var out []string
	if c.APIKey != "" {
		out = append(out, c.APIKey)
	}
	out = append(out, c.APIKeys...)
	if len(out) == 0 {
		if v, ok := env(c.APIKeyEnv); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}
