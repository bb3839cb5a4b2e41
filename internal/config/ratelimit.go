package config

import (
	"fmt"
	"os"
	"strconv"
)

// RateLimitConfig bounds how fast one client may push outgoing messages.
type RateLimitConfig struct {
	Enabled              bool    `json:"enabled"`
	MaxMessagesPerSecond float64 `json:"max_messages_per_second"`
	BurstSize            int     `json:"burst_size"`
}

// Default rate limit values.
const (
	DefaultMaxMessagesPerSecond = 2.0
	DefaultBurstSize            = 10
)

// DefaultRateLimit returns the built-in limit. It is enabled.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Enabled:              true,
		MaxMessagesPerSecond: DefaultMaxMessagesPerSecond,
		BurstSize:            DefaultBurstSize,
	}
}

// applyEnv overlays environment variables.
//
// Environment variables:
//   - MSGG_RATE_LIMIT_ENABLED: "true"/"false"
//   - MSGG_RATE_LIMIT_RPS: messages per second per client
//   - MSGG_RATE_LIMIT_BURST: burst allowance
func (c *RateLimitConfig) applyEnv() {
	if v := os.Getenv("MSGG_RATE_LIMIT_ENABLED"); v != "" {
		c.Enabled = envBool("MSGG_RATE_LIMIT_ENABLED")
	}
	if v := envFloat("MSGG_RATE_LIMIT_RPS"); v > 0 {
		c.MaxMessagesPerSecond = v
	}
	if v := envInt("MSGG_RATE_LIMIT_BURST"); v > 0 {
		c.BurstSize = v
	}
}

// Validate checks the limit when it is enabled.
func (c *RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxMessagesPerSecond <= 0 {
		return fmt.Errorf("max_messages_per_second must be positive, got %v", c.MaxMessagesPerSecond)
	}
	if c.BurstSize <= 0 {
		return fmt.Errorf("burst_size must be positive, got %d", c.BurstSize)
	}
	return nil
}

// envInt reads an integer from an environment variable, returning 0 if unset or invalid.
func envInt(key string) int {
	n, _ := envIntSet(key)
	return n
}

// envIntSet reads an integer and reports whether a valid value was set.
func envIntSet(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// envFloat reads a float64 from an environment variable, returning 0 if unset or invalid.
func envFloat(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// envBool reads a boolean from an environment variable.
func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "true" || v == "1"
}
