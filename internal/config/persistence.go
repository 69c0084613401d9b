package config

import (
	"fmt"
	"os"
)

// Checkpoint backends.
const (
	CheckpointFile     = "file"
	CheckpointPostgres = "postgres"
	CheckpointBlob     = "blob"
)

// Cache backends.
const (
	CacheMemory   = "memory"
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
)

const (
	EnvCheckpointBackend = "PAIRWISE_CHECKPOINT_BACKEND"
	EnvCheckpointDir     = "PAIRWISE_CHECKPOINT_DIR"

	EnvCacheBackend = "PAIRWISE_CACHE_BACKEND"
	EnvCachePath    = "PAIRWISE_CACHE_PATH"
)

// CheckpointConfig selects where run state is persisted.
type CheckpointConfig struct {
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *CheckpointConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *CheckpointConfig) Merge(overlay *CheckpointConfig) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.Dir != "" {
		c.Dir = overlay.Dir
	}
}

func (c *CheckpointConfig) loadDefaults() {
	if c.Backend == "" {
		c.Backend = CheckpointFile
	}
	if c.Dir == "" {
		c.Dir = ".pairwise/checkpoints"
	}
}

func (c *CheckpointConfig) loadEnv() {
	if v := os.Getenv(EnvCheckpointBackend); v != "" {
		c.Backend = v
	}
	if v := os.Getenv(EnvCheckpointDir); v != "" {
		c.Dir = v
	}
}

func (c *CheckpointConfig) validate() error {
	switch c.Backend {
	case CheckpointFile, CheckpointPostgres, CheckpointBlob:
		return nil
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// CacheConfig selects where classifications are persisted across runs.
type CacheConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *CacheConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *CacheConfig) Merge(overlay *CacheConfig) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.Path != "" {
		c.Path = overlay.Path
	}
}

func (c *CacheConfig) loadDefaults() {
	if c.Backend == "" {
		c.Backend = CacheSQLite
	}
	if c.Path == "" {
		c.Path = ".pairwise/classifications.db"
	}
}

func (c *CacheConfig) loadEnv() {
	if v := os.Getenv(EnvCacheBackend); v != "" {
		c.Backend = v
	}
	if v := os.Getenv(EnvCachePath); v != "" {
		c.Path = v
	}
}

func (c *CacheConfig) validate() error {
	switch c.Backend {
	case CacheMemory, CacheSQLite, CachePostgres:
		return nil
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
}
