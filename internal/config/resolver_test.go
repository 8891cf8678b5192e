package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_SkipsDisabledModules(t *testing.T) {
	cfg, err := Parse([]byte(`
version: "1"
modules:
  provider.openai:
    enabled: false
    model: gpt-4o-mini
  provider.anthropic:
    enabled: true
  gateway.http:
    bind: 127.0.0.1:8080
  embedding.openai: {}
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"embedding.openai", "gateway.http", "provider.anthropic"}, Resolve(cfg))
}

func TestModuleEnabled(t *testing.T) {
	cases := map[string]bool{
		"modules:\n  m: {}\n":                    true,
		"modules:\n  m:\n    enabled: no\n":      false,
		"modules:\n  m:\n    enabled: false\n":   false,
		"modules:\n  m:\n    enabled: maybe\n":   true,
		"modules:\n  m:\n":                       true,
		"modules:\n  m:\n    bind: \":80\"\n":    true,
	}
	for raw, want := range cases {
		cfg, err := Parse([]byte(raw))
		require.NoError(t, err, raw)
		node := cfg.Modules["m"]
		assert.Equal(t, want, ModuleEnabled(&node), raw)
	}
}
