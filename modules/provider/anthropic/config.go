package anthropic

import (
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/trekassist/internal/provider"
)

// defaultModel is the model used when none is specified.
const defaultModel = "claude-sonnet-4-5-20250929"

// defaultTimeout bounds the connection phase of each request. The chain
// applies the end-to-end call timeout.
const defaultTimeout = 30 * time.Second

// Config holds the YAML-decoded configuration for the Anthropic provider.
type Config struct {
	APIKey    string        `yaml:"api_key"`
	APIKeys   []string      `yaml:"api_keys"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`

	Role   provider.Role         `yaml:"role"`
	Health provider.HealthConfig `yaml:"health"`
}

// defaults fills in zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if c.Role == "" {
		c.Role = provider.RolePrimary
	}
}

func (c *Config) validate() error {
	if c.Model == "" {
		return errors.New("provider.anthropic: model must not be empty")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("provider.anthropic: max_tokens must be non-negative, got %d", c.MaxTokens)
	}
	switch c.Role {
	case provider.RolePrimary, provider.RoleFallback:
	default:
		return fmt.Errorf("provider.anthropic: unknown role %q", c.Role)
	}
	return nil
}

// keys returns every configured key, explicit ones first.
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
