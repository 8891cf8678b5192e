package sqlite

import (
	"fmt"
	"slices"
	"time"
)

// Config is the conversation.sqlite module configuration.
//
//	modules:
//	  conversation.sqlite:
//	    path: /var/lib/trekassist/conversations.db
//	    journal: wal
//	    synchronous: normal
//	    busy_timeout: 5s
type Config struct {
	// Path defaults to conversations.db under the data directory.
	Path        string        `yaml:"path"`
	Journal     string        `yaml:"journal"`
	Synchronous string        `yaml:"synchronous"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

var (
	journalModes     = []string{"wal", "delete", "truncate", "persist"}
	synchronousModes = []string{"off", "normal", "full"}
)

func (c *Config) defaults() {
	if c.Journal == "" {
		c.Journal = "wal"
	}
	if c.Synchronous == "" {
		c.Synchronous = "normal"
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

func (c Config) validate() error {
	if !slices.Contains(journalModes, c.Journal) {
		return fmt.Errorf("sqlite: journal must be one of %v, got %q", journalModes, c.Journal)
	}
	if !slices.Contains(synchronousModes, c.Synchronous) {
		return fmt.Errorf("sqlite: synchronous must be one of %v, got %q", synchronousModes, c.Synchronous)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must not be negative, got %s", c.BusyTimeout)
	}
	return nil
}

// dsn carries the pragmas in the connection string so the driver applies
// them to every connection it opens.
func (c Config) dsn() string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)&_pragma=synchronous(%s)",
		c.Path, c.BusyTimeout.Milliseconds(), c.Journal, c.Synchronous)
}
