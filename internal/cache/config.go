package cache

import (
	"fmt"
	"log/slog"
	"time"
)

// TierConfig sizes one named cache.
type TierConfig struct {
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`
}

// Config holds the four tiers and the global switch.
type Config struct {
	// Disabled turns every Get into a miss and every Set into a no-op.
	Disabled bool `yaml:"disabled"`

	Search         TierConfig `yaml:"search"`
	Recommendation TierConfig `yaml:"recommendation"`
	Analytics      TierConfig `yaml:"analytics"`
	Chat           TierConfig `yaml:"chat"`

	Logger *slog.Logger     `yaml:"-"`
	Now    func() time.Time `yaml:"-"`
}

// Defaults fills zero-valued tiers.
func (c *Config) Defaults() {
	fill := func(t *TierConfig, size int, ttl time.Duration) {
		if t.MaxSize <= 0 {
			t.MaxSize = size
		}
		if t.TTL <= 0 {
			t.TTL = ttl
		}
	}
	fill(&c.Search, 1000, 30*time.Minute)
	fill(&c.Recommendation, 500, 30*time.Minute)
	fill(&c.Analytics, 100, 2*time.Hour)
	fill(&c.Chat, 200, time.Hour)
}

// Validate rejects negative sizes and TTLs.
func (c *Config) Validate() error {
	for name, t := range map[Name]TierConfig{
		Search: c.Search, Recommendation: c.Recommendation,
		Analytics: c.Analytics, Chat: c.Chat,
	} {
		if t.MaxSize < 0 {
			return fmt.Errorf("cache: %s.max_size must be non-negative, got %d", name, t.MaxSize)
		}
		if t.TTL < 0 {
			return fmt.Errorf("cache: %s.ttl must be non-negative, got %s", name, t.TTL)
		}
	}
	return nil
}
