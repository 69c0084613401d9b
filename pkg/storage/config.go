package storage

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// containerPattern follows the Azure container naming rules.
var containerPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9]|-[a-z0-9]){2,62}$`)

// Config holds Azure Blob Storage connection parameters. Either
// ConnectionString or AccountURL is required; AccountURL authenticates with
// the default Azure credential chain.
type Config struct {
	ContainerName    string `toml:"container_name"`
	ConnectionString string `toml:"connection_string"`
	AccountURL       string `toml:"account_url"`
	MaxRetries       int32  `toml:"max_retries"`
}

// Env names the environment variables that override Config fields. Empty
// names are skipped.
type Env struct {
	ContainerName    string
	ConnectionString string
	AccountURL       string
	MaxRetries       string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	if c.ContainerName == "" {
		c.ContainerName = "pairwise"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	for dst, src := range map[*string]string{
		&c.ContainerName:    overlay.ContainerName,
		&c.ConnectionString: overlay.ConnectionString,
		&c.AccountURL:       overlay.AccountURL,
	} {
		if src != "" {
			*dst = src
		}
	}
	if overlay.MaxRetries != 0 {
		c.MaxRetries = overlay.MaxRetries
	}
}

func (c *Config) loadEnv(env *Env) {
	lookup := func(name string) (string, bool) {
		if name == "" {
			return "", false
		}
		v := os.Getenv(name)
		return v, v != ""
	}

	if v, ok := lookup(env.ContainerName); ok {
		c.ContainerName = v
	}
	if v, ok := lookup(env.ConnectionString); ok {
		c.ConnectionString = v
	}
	if v, ok := lookup(env.AccountURL); ok {
		c.AccountURL = v
	}
	if v, ok := lookup(env.MaxRetries); ok {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			c.MaxRetries = int32(n)
		}
	}
}

func (c *Config) validate() error {
	switch {
	case c.ContainerName == "":
		return fmt.Errorf("container_name required")
	case !containerPattern.MatchString(c.ContainerName):
		return fmt.Errorf("invalid container_name %q", c.ContainerName)
	case c.ConnectionString == "" && c.AccountURL == "":
		return fmt.Errorf("connection_string or account_url required")
	case c.MaxRetries < 0:
		return fmt.Errorf("invalid max_retries: %d", c.MaxRetries)
	}
	return nil
}
