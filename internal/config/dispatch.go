package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvDispatchConcurrency    = "PAIRWISE_DISPATCH_CONCURRENCY"
	EnvDispatchCallTimeout    = "PAIRWISE_DISPATCH_CALL_TIMEOUT"
	EnvDispatchMaxRetries     = "PAIRWISE_DISPATCH_MAX_RETRIES"
	EnvDispatchInitialBackoff = "PAIRWISE_DISPATCH_INITIAL_BACKOFF"
	EnvDispatchMaxBackoff     = "PAIRWISE_DISPATCH_MAX_BACKOFF"
	EnvDispatchJitterFactor   = "PAIRWISE_DISPATCH_JITTER_FACTOR"
	EnvDispatchRateLimit      = "PAIRWISE_DISPATCH_RATE_LIMIT"
	EnvDispatchBurst          = "PAIRWISE_DISPATCH_BURST"
)

// DispatchConfig bounds concurrent oracle calls.
type DispatchConfig struct {
	Concurrency    int     `toml:"concurrency"`
	CallTimeout    string  `toml:"call_timeout"`
	MaxRetries     int     `toml:"max_retries"`
	InitialBackoff string  `toml:"initial_backoff"`
	MaxBackoff     string  `toml:"max_backoff"`
	JitterFactor   float64 `toml:"jitter_factor"`
	RateLimit      float64 `toml:"rate_limit"`
	Burst          int     `toml:"burst"`
}

// CallTimeoutDuration returns CallTimeout as a time.Duration.
func (c *DispatchConfig) CallTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.CallTimeout)
	return d
}

// InitialBackoffDuration returns InitialBackoff as a time.Duration.
func (c *DispatchConfig) InitialBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.InitialBackoff)
	return d
}

// MaxBackoffDuration returns MaxBackoff as a time.Duration.
func (c *DispatchConfig) MaxBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxBackoff)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *DispatchConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *DispatchConfig) Merge(overlay *DispatchConfig) {
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.CallTimeout != "" {
		c.CallTimeout = overlay.CallTimeout
	}
	if overlay.MaxRetries != 0 {
		c.MaxRetries = overlay.MaxRetries
	}
	if overlay.InitialBackoff != "" {
		c.InitialBackoff = overlay.InitialBackoff
	}
	if overlay.MaxBackoff != "" {
		c.MaxBackoff = overlay.MaxBackoff
	}
	if overlay.JitterFactor != 0 {
		c.JitterFactor = overlay.JitterFactor
	}
	if overlay.RateLimit != 0 {
		c.RateLimit = overlay.RateLimit
	}
	if overlay.Burst != 0 {
		c.Burst = overlay.Burst
	}
}

func (c *DispatchConfig) loadDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = 8
	}
	if c.CallTimeout == "" {
		c.CallTimeout = "60s"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == "" {
		c.InitialBackoff = "500ms"
	}
	if c.MaxBackoff == "" {
		c.MaxBackoff = "30s"
	}
	if c.JitterFactor == 0 {
		c.JitterFactor = 0.2
	}
	if c.Burst == 0 {
		c.Burst = 1
	}
}

func (c *DispatchConfig) loadEnv() {
	if v := os.Getenv(EnvDispatchConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv(EnvDispatchCallTimeout); v != "" {
		c.CallTimeout = v
	}
	if v := os.Getenv(EnvDispatchMaxRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv(EnvDispatchInitialBackoff); v != "" {
		c.InitialBackoff = v
	}
	if v := os.Getenv(EnvDispatchMaxBackoff); v != "" {
		c.MaxBackoff = v
	}
	if v := os.Getenv(EnvDispatchJitterFactor); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.JitterFactor = f
		}
	}
	if v := os.Getenv(EnvDispatchRateLimit); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimit = f
		}
	}
	if v := os.Getenv(EnvDispatchBurst); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Burst = n
		}
	}
}

func (c *DispatchConfig) validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return fmt.Errorf("jitter_factor %v outside [0,1]", c.JitterFactor)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	for name, v := range map[string]string{
		"call_timeout":    c.CallTimeout,
		"initial_backoff": c.InitialBackoff,
		"max_backoff":     c.MaxBackoff,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.MaxBackoffDuration() < c.InitialBackoffDuration() {
		return fmt.Errorf("max_backoff below initial_backoff")
	}
	return nil
}
