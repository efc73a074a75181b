package domain

import (
	"context"
	"time"
)

// Repository persists engine output: valuation snapshots and the listing
// snapshots they were computed from. Rule definitions are never persisted
// here; rulesets are read-only input supplied by an external layer.
type Repository interface {
	// Listing snapshot operations
	SaveListing(ctx context.Context, l *ListingRecord) error
	GetListing(ctx context.Context, listingID string) (*ListingRecord, error)

	// Valuation snapshot operations
	SaveValuation(ctx context.Context, v *Valuation) error
	GetValuation(ctx context.Context, valuationID string) (*Valuation, error)
	ListValuationsByListing(ctx context.Context, listingID string, limit int) ([]*Valuation, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
