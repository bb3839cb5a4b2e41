package daemon

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default rate limit constants
const (
	DefaultMaxMessagesPerSecond = 2
	DefaultBurstSize            = 10
)

// RateLimitConfig holds configuration for outgoing message rate limiting.
type RateLimitConfig struct {
	MaxMessagesPerSecond float64 `json:"max_messages_per_second"`
	BurstSize            int     `json:"burst_size"`
	Enabled              bool    `json:"enabled"`
}

// DeliveryLimiter bounds how fast each client may push messages out to the
// backend.
type DeliveryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter // keyed by client id
	config   RateLimitConfig
}

// clientLimiter wraps a rate limiter with last access time for cleanup.
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewDeliveryLimiter creates a new rate limiter with the given config.
// If config has zero values, defaults are used.
func NewDeliveryLimiter(cfg RateLimitConfig) *DeliveryLimiter {
	if cfg.MaxMessagesPerSecond == 0 {
		cfg.MaxMessagesPerSecond = DefaultMaxMessagesPerSecond
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}

	return &DeliveryLimiter{
		limiters: make(map[string]*clientLimiter),
		config:   cfg,
	}
}

// Allow reports whether clientID may send another message now. It returns
// nil when allowed and a *RateLimitError otherwise.
func (r *DeliveryLimiter) Allow(clientID string) error {
	if r == nil || !r.config.Enabled {
		return nil
	}

	if !r.getLimiter(clientID).Allow() {
		return &RateLimitError{
			Code:     429,
			Message:  "rate limit exceeded",
			ClientID: clientID,
		}
	}
	return nil
}

// CleanupStale removes limiters for clients not seen in the given duration.
// Returns the number of limiters removed.
func (r *DeliveryLimiter) CleanupStale(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for id, cl := range r.limiters {
		if cl.lastAccess.Before(cutoff) {
			delete(r.limiters, id)
			removed++
		}
	}

	return removed
}

// getLimiter returns or creates a rate limiter for the given client.
func (r *DeliveryLimiter) getLimiter(clientID string) *rate.Limiter {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if cl, ok := r.limiters[clientID]; ok {
		cl.lastAccess = now
		return cl.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(r.config.MaxMessagesPerSecond), r.config.BurstSize)
	r.limiters[clientID] = &clientLimiter{
		limiter:    limiter,
		lastAccess: now,
	}

	return limiter
}

// RateLimitError is returned when a client sends messages too quickly.
type RateLimitError struct {
	Code     int
	Message  string
	ClientID string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit error (code %d) for client %s: %s", e.Code, e.ClientID, e.Message)
}
