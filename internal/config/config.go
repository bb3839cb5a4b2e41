package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/leonletto/msgg/internal/identity"
	"github.com/leonletto/msgg/internal/paths"
)

// Default configuration values.
const (
	DefaultName         = "msgg"
	DefaultCapacity     = 5000
	DefaultBufferSize   = 1024
	DefaultReadTimeout  = 5 // seconds
	DefaultWriteTimeout = 5 // seconds

	// MinBufferSize is the smallest request buffer that still fits a poll.
	MinBufferSize = 16
)

// Config is the resolved relay configuration. It is also the shape of the
// JSON config file; keys missing from the file keep their defaults.
type Config struct {
	Name            string          `json:"name"`
	SocketDir       string          `json:"socket_dir"`
	LogFile         string          `json:"log_file,omitempty"`
	Capacity        int             `json:"capacity"`
	BufferSize      int             `json:"buffer_size"`
	ReadTimeout     int             `json:"read_timeout"`  // seconds, 0 disables
	WriteTimeout    int             `json:"write_timeout"` // seconds, 0 disables
	AccumulateReads bool            `json:"accumulate_reads"`
	BridgeAddr      string          `json:"bridge_addr,omitempty"`
	RateLimit       RateLimitConfig `json:"rate_limit"`
}

// Overrides carries command-line flags. Zero values mean "not given".
type Overrides struct {
	Name            string
	SocketDir       string
	LogFile         string
	Capacity        int
	BridgeAddr      string
	AccumulateReads *bool
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Name:         DefaultName,
		Capacity:     DefaultCapacity,
		BufferSize:   DefaultBufferSize,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		RateLimit:    DefaultRateLimit(),
	}
}

// Load resolves configuration with the following priority:
// 1. CLI flags (highest)
// 2. Environment variables (MSGG_*, GENIE_DIR)
// 3. Config file at path, if it exists
// 4. Defaults
//
// An empty path selects the default config file. The result is validated.
func Load(path string, flags Overrides) (*Config, error) {
	cfg := Default()

	if path == "" {
		if p, err := paths.DefaultConfigFile(); err == nil {
			path = p
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.applyOverrides(flags)

	if cfg.SocketDir == "" {
		dir, err := paths.DefaultSocketDir()
		if err != nil {
			return nil, err
		}
		cfg.SocketDir = dir
	} else {
		dir, err := paths.ResolveDir(cfg.SocketDir)
		if err != nil {
			return nil, fmt.Errorf("socket_dir: %w", err)
		}
		cfg.SocketDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays the JSON file at path. A missing file is not an error.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304 - path from flag or default config location
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables.
//
// Environment variables:
//   - MSGG_NAME: relay name
//   - GENIE_DIR: socket directory
//   - MSGG_LOG_FILE: diagnostic log destination
//   - MSGG_CAPACITY: message log capacity
//   - MSGG_BUFFER_SIZE: request buffer size in bytes
//   - MSGG_READ_TIMEOUT, MSGG_WRITE_TIMEOUT: connection timeouts in seconds
//   - MSGG_ACCUMULATE_READS: "true" to read requests until EOF
//   - MSGG_BRIDGE_ADDR: backend bridge listen address
//   - MSGG_RATE_LIMIT_*: see RateLimitConfig.applyEnv
func (c *Config) applyEnv() {
	if v := os.Getenv("MSGG_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv(paths.EnvSocketDir); v != "" {
		c.SocketDir = v
	}
	if v := os.Getenv("MSGG_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := envInt("MSGG_CAPACITY"); v > 0 {
		c.Capacity = v
	}
	if v := envInt("MSGG_BUFFER_SIZE"); v > 0 {
		c.BufferSize = v
	}
	if v, ok := envIntSet("MSGG_READ_TIMEOUT"); ok {
		c.ReadTimeout = v
	}
	if v, ok := envIntSet("MSGG_WRITE_TIMEOUT"); ok {
		c.WriteTimeout = v
	}
	if v := os.Getenv("MSGG_ACCUMULATE_READS"); v != "" {
		c.AccumulateReads = envBool("MSGG_ACCUMULATE_READS")
	}
	if v := os.Getenv("MSGG_BRIDGE_ADDR"); v != "" {
		c.BridgeAddr = v
	}
	c.RateLimit.applyEnv()
}

func (c *Config) applyOverrides(o Overrides) {
	if o.Name != "" {
		c.Name = o.Name
	}
	if o.SocketDir != "" {
		c.SocketDir = o.SocketDir
	}
	if o.LogFile != "" {
		c.LogFile = o.LogFile
	}
	if o.Capacity > 0 {
		c.Capacity = o.Capacity
	}
	if o.BridgeAddr != "" {
		c.BridgeAddr = o.BridgeAddr
	}
	if o.AccumulateReads != nil {
		c.AccumulateReads = *o.AccumulateReads
	}
}

// Validate checks that the configuration has usable values.
func (c *Config) Validate() error {
	if err := identity.ValidateName(c.Name); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", c.Capacity)
	}
	if c.BufferSize < MinBufferSize {
		return fmt.Errorf("buffer_size must be at least %d, got %d", MinBufferSize, c.BufferSize)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("read_timeout must not be negative, got %d", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("write_timeout must not be negative, got %d", c.WriteTimeout)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	return nil
}

// ReadTimeoutDuration returns the read timeout as a duration.
func (c *Config) ReadTimeoutDuration() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a duration.
func (c *Config) WriteTimeoutDuration() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}
