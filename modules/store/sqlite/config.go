package sqlite

import (
	"fmt"
	"path/filepath"
)

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "squadagent.db"
)

// Config holds the SQLite store module configuration.
type Config struct {
	// Path is the database file path. Defaults to {DataDir}/squadagent.db.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// Dataset is an optional SQuAD JSON file indexed at provision time
	// when the index is empty.
	Dataset string `yaml:"dataset"`

	// TopK is how many documents a retrieval returns. Defaults to 2.
	TopK int `yaml:"top_k"`
}

// DefaultPath is the database location under dataDir when no path is
// configured.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, defaultDBFile)
}

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	if c.TopK < 0 {
		return fmt.Errorf("sqlite: top_k must be non-negative, got %d", c.TopK)
	}
	return nil
}
