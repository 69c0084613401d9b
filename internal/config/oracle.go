package config

import (
	"fmt"
	"os"
)

// Oracle kinds.
const (
	OracleAgent     = "agent"
	OracleHeuristic = "heuristic"
	OracleLookup    = "lookup"
)

const (
	EnvOracleKind       = "PAIRWISE_ORACLE_KIND"
	EnvOracleLookupPath = "PAIRWISE_ORACLE_LOOKUP_PATH"
)

// OracleConfig selects the classification service. The agent kind is
// configured through the agent section.
type OracleConfig struct {
	Kind       string `toml:"kind"`
	LookupPath string `toml:"lookup_path"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *OracleConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *OracleConfig) Merge(overlay *OracleConfig) {
	if overlay.Kind != "" {
		c.Kind = overlay.Kind
	}
	if overlay.LookupPath != "" {
		c.LookupPath = overlay.LookupPath
	}
}

func (c *OracleConfig) loadDefaults() {
	if c.Kind == "" {
		c.Kind = OracleHeuristic
	}
}

func (c *OracleConfig) loadEnv() {
	if v := os.Getenv(EnvOracleKind); v != "" {
		c.Kind = v
	}
	if v := os.Getenv(EnvOracleLookupPath); v != "" {
		c.LookupPath = v
	}
}

func (c *OracleConfig) validate() error {
	switch c.Kind {
	case OracleAgent, OracleHeuristic:
		return nil
	case OracleLookup:
		if c.LookupPath == "" {
			return fmt.Errorf("lookup_path required for the lookup oracle")
		}
		return nil
	default:
		return fmt.Errorf("unknown kind %q", c.Kind)
	}
}
