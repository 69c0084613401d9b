package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/JaimeStill/pairwise/pkg/formatting"
)

const (
	EnvEngineMaxIterations     = "PAIRWISE_ENGINE_MAX_ITERATIONS"
	EnvEngineSequence          = "PAIRWISE_ENGINE_SEQUENCE"
	EnvEngineBatchSize         = "PAIRWISE_ENGINE_BATCH_SIZE"
	EnvEngineIterationTimeout  = "PAIRWISE_ENGINE_ITERATION_TIMEOUT"
	EnvEngineCoverageThreshold = "PAIRWISE_ENGINE_COVERAGE_THRESHOLD"
	EnvEngineNarrative         = "PAIRWISE_ENGINE_NARRATIVE"

	EnvRecordsMode        = "PAIRWISE_RECORDS_MODE"
	EnvRecordsMaxUnitSize = "PAIRWISE_RECORDS_MAX_UNIT_SIZE"
)

// EngineConfig bounds the iteration controller. Sequence names are
// validated against the known phases when the controller is built.
type EngineConfig struct {
	MaxIterations     int      `toml:"max_iterations"`
	Sequence          []string `toml:"sequence"`
	BatchSize         int      `toml:"batch_size"`
	IterationTimeout  string   `toml:"iteration_timeout"`
	CoverageThreshold float64  `toml:"coverage_threshold"`
	Narrative         bool     `toml:"narrative"`
}

// IterationTimeoutDuration returns IterationTimeout as a time.Duration.
// Zero disables the per-iteration deadline.
func (c *EngineConfig) IterationTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.IterationTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *EngineConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *EngineConfig) Merge(overlay *EngineConfig) {
	if overlay.MaxIterations != 0 {
		c.MaxIterations = overlay.MaxIterations
	}
	if len(overlay.Sequence) > 0 {
		c.Sequence = overlay.Sequence
	}
	if overlay.BatchSize != 0 {
		c.BatchSize = overlay.BatchSize
	}
	if overlay.IterationTimeout != "" {
		c.IterationTimeout = overlay.IterationTimeout
	}
	if overlay.CoverageThreshold != 0 {
		c.CoverageThreshold = overlay.CoverageThreshold
	}
	if overlay.Narrative {
		c.Narrative = true
	}
}

func (c *EngineConfig) loadDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 1000
	}
	if len(c.Sequence) == 0 {
		c.Sequence = []string{"decompose", "classify", "evaluate", "enumerate", "synthesize"}
	}
	if c.IterationTimeout == "" {
		c.IterationTimeout = "0s"
	}
	if c.CoverageThreshold == 0 {
		c.CoverageThreshold = 0.95
	}
}

func (c *EngineConfig) loadEnv() {
	if v := os.Getenv(EnvEngineMaxIterations); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxIterations = n
		}
	}
	if v := os.Getenv(EnvEngineSequence); v != "" {
		c.Sequence = splitList(v)
	}
	if v := os.Getenv(EnvEngineBatchSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}
	if v := os.Getenv(EnvEngineIterationTimeout); v != "" {
		c.IterationTimeout = v
	}
	if v := os.Getenv(EnvEngineCoverageThreshold); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.CoverageThreshold = f
		}
	}
	if v := os.Getenv(EnvEngineNarrative); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Narrative = b
		}
	}
}

func (c *EngineConfig) validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative")
	}
	if c.CoverageThreshold < 0 || c.CoverageThreshold > 1 {
		return fmt.Errorf("coverage_threshold %v outside [0,1]", c.CoverageThreshold)
	}
	d, err := time.ParseDuration(c.IterationTimeout)
	if err != nil {
		return fmt.Errorf("invalid iteration_timeout: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("iteration_timeout must not be negative")
	}
	return nil
}

// RecordsConfig selects how input is decomposed into units.
type RecordsConfig struct {
	Mode        string `toml:"mode"`
	MaxUnitSize string `toml:"max_unit_size"`
}

// MaxUnitSizeBytes returns MaxUnitSize as a byte count.
func (c *RecordsConfig) MaxUnitSizeBytes() int {
	n, err := formatting.ParseBytes(c.MaxUnitSize)
	if err != nil {
		return 4 * 1024
	}
	return int(n)
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *RecordsConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *RecordsConfig) Merge(overlay *RecordsConfig) {
	if overlay.Mode != "" {
		c.Mode = overlay.Mode
	}
	if overlay.MaxUnitSize != "" {
		c.MaxUnitSize = overlay.MaxUnitSize
	}
}

func (c *RecordsConfig) loadDefaults() {
	if c.Mode == "" {
		c.Mode = "auto"
	}
	if c.MaxUnitSize == "" {
		c.MaxUnitSize = "4KB"
	}
}

func (c *RecordsConfig) loadEnv() {
	if v := os.Getenv(EnvRecordsMode); v != "" {
		c.Mode = v
	}
	if v := os.Getenv(EnvRecordsMaxUnitSize); v != "" {
		c.MaxUnitSize = v
	}
}

func (c *RecordsConfig) validate() error {
	switch c.Mode {
	case "auto", "records", "windows":
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	n, err := formatting.ParseBytes(c.MaxUnitSize)
	if err != nil {
		return fmt.Errorf("invalid max_unit_size: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("max_unit_size must be positive")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for s := range strings.SplitSeq(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
