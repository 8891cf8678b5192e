package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flemzord/trekassist/internal/core"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks the structural validity of a Config.
// It verifies the version field, checks that all referenced module IDs
// exist in the registry and validates every section.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format must be text or json, got %q", cfg.Log.Format))
	}

	// Section errors already carry their package prefix.
	for _, err := range []error{
		cfg.Cache.Validate(),
		cfg.Embedding.Validate(),
		cfg.Knowledge.Validate(),
		cfg.Conversation.Validate(),
		cfg.Assistant.Validate(),
		cfg.Telemetry.Validate(),
	} {
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %w", err))
		}
	}

	if expr := cfg.Cron.CacheMaintenance; expr != "" {
		if _, err := cronParser.Parse(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: cron.cache_maintenance: %w", err))
		}
	}
	if expr := cfg.Conversation.CleanupSchedule; expr != "" {
		if _, err := cronParser.Parse(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: conversation.cleanup_schedule: %w", err))
		}
	}

	return errors.Join(errs...)
}

// ParseLevel maps a log.level value to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: log.level %q: %w", s, err)
	}
	return lvl, nil
}
