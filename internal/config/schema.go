// Package config handles YAML configuration loading, environment variable
// expansion, defaults and structural validation for trekassist.
package config

import (
	"github.com/flemzord/trekassist/internal/assistant"
	"github.com/flemzord/trekassist/internal/cache"
	"github.com/flemzord/trekassist/internal/conversation"
	"github.com/flemzord/trekassist/internal/embedding"
	"github.com/flemzord/trekassist/internal/knowledge"
	"github.com/flemzord/trekassist/internal/kvs"
	"github.com/flemzord/trekassist/internal/security"
	"github.com/flemzord/trekassist/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir holds the sqlite database and the audit log. Empty means the
	// XDG data directory.
	DataDir string `yaml:"data_dir"`

	Log          LogConfig           `yaml:"log"`
	KVS          kvs.Config          `yaml:"kvs"`
	Cache        cache.Config        `yaml:"cache"`
	Embedding    embedding.Config    `yaml:"embedding"`
	Knowledge    knowledge.Config    `yaml:"knowledge"`
	Conversation conversation.Config `yaml:"conversation"`
	Assistant    assistant.Config    `yaml:"assistant"`
	Telemetry    telemetry.Config    `yaml:"telemetry"`
	Security     SecurityConfig      `yaml:"security"`
	Cron         CronConfig          `yaml:"cron"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "provider.anthropic").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json

	// MaskContacts hides customer e-mail addresses and phone numbers.
	MaskContacts bool `yaml:"mask_contacts"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// URLFilter restricts which hosts the knowledge source may be fetched
	// from. An empty allow list disables the check.
	URLFilter security.URLFilterConfig `yaml:"url_filter"`

	// AuditLog is the JSONL file audit events are appended to. Empty
	// sends them to the application log only.
	AuditLog string `yaml:"audit_log"`
}

// CronConfig overrides the schedules of the background jobs.
type CronConfig struct {
	CacheMaintenance string `yaml:"cache_maintenance"`
	// SkipStartupRefresh disables the knowledge refresh at startup.
	SkipStartupRefresh bool `yaml:"skip_startup_refresh"`
}

// Defaults fills every unset field. Load calls it after parsing.
func (c *Config) Defaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	c.Cache.Defaults()
	c.Embedding.Defaults()
	c.Knowledge.Defaults()
	c.Conversation.Defaults()
	c.Assistant.Defaults()
	c.Telemetry.Defaults()
}
