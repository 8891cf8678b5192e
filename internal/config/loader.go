package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// FileName is the configuration file looked up by ResolvePath.
	FileName = "trekassist.yaml"
	// EnvPath names a configuration file when no path is given explicitly.
	EnvPath = "TREKASSIST_CONFIG"
)

// placeholder matches $${...} (kept literally), ${VAR} and ${VAR:-default}.
var placeholder = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)(:-((?:[^}\\]|\\.)*))?\}`)

// UnresolvedError lists variables that have neither a value nor a default.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return "unresolved variables: " + strings.Join(e.Names, ", ")
}

// Load reads, expands and parses the file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load without the file.
func Parse(raw []byte) (*Config, error) {
	expanded, err := expand(raw, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	cfg.Defaults()
	return &cfg, nil
}

// expand substitutes placeholders with values from lookup. Every missing
// variable is reported at once.
func expand(raw []byte, lookup func(string) (string, bool)) ([]byte, error) {
	var missing []string
	out := placeholder.ReplaceAllFunc(raw, func(m []byte) []byte {
		if m[1] == '$' {
			return m[1:]
		}
		sub := placeholder.FindSubmatch(m)
		if v, ok := lookup(string(sub[1])); ok {
			return []byte(v)
		}
		if sub[2] != nil {
			return sub[3]
		}
		if name := string(sub[1]); !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
		return m
	})
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, &UnresolvedError{Names: missing}
	}
	return out, nil
}

// ResolvePath picks the configuration file: explicit, then $TREKASSIST_CONFIG,
// then the first existing file among the user config directory
// ($XDG_CONFIG_HOME or ~/.config, under trekassist/) and ./trekassist.yaml.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv(EnvPath); p != "" {
		return p, nil
	}

	var candidates []string
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "trekassist", FileName))
	}
	candidates = append(candidates, FileName)

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no configuration file found (searched: %s)", strings.Join(candidates, ", "))
}

// DefaultDataDir returns $XDG_DATA_HOME/trekassist, or
// ~/.local/share/trekassist when the variable is unset.
func DefaultDataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "trekassist")
}
