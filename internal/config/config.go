package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/pairwise/pkg/database"
	"github.com/JaimeStill/pairwise/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvPairwiseEnv             = "PAIRWISE_ENV"
	EnvPairwiseLogLevel        = "PAIRWISE_LOG_LEVEL"
	EnvPairwiseShutdownTimeout = "PAIRWISE_SHUTDOWN_TIMEOUT"
	EnvPairwiseVersion         = "PAIRWISE_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "PAIRWISE_DB_HOST",
	Port:            "PAIRWISE_DB_PORT",
	Name:            "PAIRWISE_DB_NAME",
	User:            "PAIRWISE_DB_USER",
	Password:        "PAIRWISE_DB_PASSWORD",
	SSLMode:         "PAIRWISE_DB_SSL_MODE",
	MaxOpenConns:    "PAIRWISE_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "PAIRWISE_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "PAIRWISE_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "PAIRWISE_DB_CONN_TIMEOUT",
	ApplicationName: "PAIRWISE_DB_APPLICATION_NAME",
}

var storageEnv = &storage.Env{
	ContainerName:    "PAIRWISE_STORAGE_CONTAINER_NAME",
	ConnectionString: "PAIRWISE_STORAGE_CONNECTION_STRING",
	AccountURL:       "PAIRWISE_STORAGE_ACCOUNT_URL",
	MaxRetries:       "PAIRWISE_STORAGE_MAX_RETRIES",
}

// Config is the root configuration for the pairwise engine.
type Config struct {
	Engine     EngineConfig         `toml:"engine"`
	Dispatch   DispatchConfig       `toml:"dispatch"`
	Records    RecordsConfig        `toml:"records"`
	Checkpoint CheckpointConfig     `toml:"checkpoint"`
	Cache      CacheConfig          `toml:"cache"`
	Oracle     OracleConfig         `toml:"oracle"`
	Agent      gaconfig.AgentConfig `toml:"agent"`
	Metrics    MetricsConfig        `toml:"metrics"`
	Database   database.Config      `toml:"database"`
	Storage    storage.Config       `toml:"storage"`

	LogLevel        string `toml:"log_level"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	Version         string `toml:"version"`

	databaseEnabled bool
	storageEnabled  bool
}

// Env returns the PAIRWISE_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvPairwiseEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Level returns LogLevel as a slog.Level.
func (c *Config) Level() slog.Level {
	var l slog.Level
	_ = l.UnmarshalText([]byte(c.LogLevel))
	return l
}

// DatabaseEnabled reports whether a configured backend requires Postgres.
func (c *Config) DatabaseEnabled() bool {
	return c.databaseEnabled
}

// StorageEnabled reports whether blob storage is required by a backend or
// was configured for dataset input.
func (c *Config) StorageEnabled() bool {
	return c.storageEnabled
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	return LoadFile(BaseConfigFile)
}

// LoadFile behaves like Load with an explicit base config path. The
// overlay is looked up next to it. A missing base file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		loaded, err := load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if overlay := overlayPath(filepath.Dir(path)); overlay != "" {
		o, err := load(overlay)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", overlay, err)
		}
		cfg.Merge(o)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Engine.Merge(&overlay.Engine)
	c.Dispatch.Merge(&overlay.Dispatch)
	c.Records.Merge(&overlay.Records)
	c.Checkpoint.Merge(&overlay.Checkpoint)
	c.Cache.Merge(&overlay.Cache)
	c.Oracle.Merge(&overlay.Oracle)
	c.Agent.Merge(&overlay.Agent)
	c.Metrics.Merge(&overlay.Metrics)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Engine.Finalize(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Dispatch.Finalize(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if err := c.Records.Finalize(); err != nil {
		return fmt.Errorf("records: %w", err)
	}
	if err := c.Checkpoint.Finalize(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := c.Cache.Finalize(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Oracle.Finalize(); err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	if c.Oracle.Kind == OracleAgent {
		if err := FinalizeAgent(&c.Agent); err != nil {
			return fmt.Errorf("agent: %w", err)
		}
	}
	if err := c.Metrics.Finalize(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	c.databaseEnabled = c.Checkpoint.Backend == CheckpointPostgres || c.Cache.Backend == CachePostgres
	if c.databaseEnabled {
		if err := c.Database.Finalize(databaseEnv); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	c.storageEnabled = c.Checkpoint.Backend == CheckpointBlob || c.storageConfigured()
	if c.storageEnabled {
		if err := c.Storage.Finalize(storageEnv); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}
	return nil
}

func (c *Config) storageConfigured() bool {
	return c.Storage.ConnectionString != "" ||
		c.Storage.AccountURL != "" ||
		os.Getenv(storageEnv.ConnectionString) != "" ||
		os.Getenv(storageEnv.AccountURL) != ""
}

func (c *Config) loadDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvPairwiseLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPairwiseShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvPairwiseVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath(dir string) string {
	if env := os.Getenv(EnvPairwiseEnv); env != "" {
		path := filepath.Join(dir, fmt.Sprintf(OverlayConfigPattern, env))
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// DatabaseConfig loads only the database section of the base config at
// path and its overlay, then applies PAIRWISE_DB_* overrides. It serves
// tools that need a DSN regardless of which backends the engine selects.
func DatabaseConfig(path string) (*database.Config, error) {
	db := &database.Config{}

	if _, err := os.Stat(path); err == nil {
		base, err := load(path)
		if err != nil {
			return nil, err
		}
		db = &base.Database
	}

	if overlay := overlayPath(filepath.Dir(path)); overlay != "" {
		o, err := load(overlay)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", overlay, err)
		}
		db.Merge(&o.Database)
	}

	if err := db.Finalize(databaseEnv); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return db, nil
}
