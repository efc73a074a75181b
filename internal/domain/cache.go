package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching valuation results.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// Caching whole results is safe because evaluation is deterministic: the
// key is a fingerprint of the ruleset identity plus the listing content.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetValuation retrieves a cached valuation by fingerprint.
	GetValuation(ctx context.Context, fingerprint string) (*Valuation, error)

	// SetValuation caches a valuation by fingerprint.
	SetValuation(ctx context.Context, fingerprint string, v *Valuation, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
