package postgres

import "fmt"

// RunStoreConfig configures the PostgreSQL run journal.
type RunStoreConfig struct {
	Pool PoolConfig

	// AutoMigrate applies pending schema migrations when the store opens.
	AutoMigrate bool

	// ListLimit caps ListRuns when the caller passes no limit.
	// Default: 20
	ListLimit int
}

// Validate checks that the configuration is valid.
func (c *RunStoreConfig) Validate() error {
	if c.ListLimit < 0 {
		return fmt.Errorf("list limit must not be negative")
	}
	return c.Pool.Validate()
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *RunStoreConfig) ApplyDefaults() {
	c.Pool.ApplyDefaults()
	if c.ListLimit == 0 {
		c.ListLimit = 20
	}
}
