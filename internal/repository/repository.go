// Package repository persists valuation snapshots and the listing
// snapshots they were computed from.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/miethe/deal-brain-sub014/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveListing stores a listing snapshot. Saving the same listing again
// overwrites the snapshot; valuations keep their own copy of what they
// were computed from.
func (r *SQLRepository) SaveListing(ctx context.Context, l *domain.ListingRecord) error {
	if l == nil || l.ID == "" {
		return fmt.Errorf("%w: listing id is required", ErrInvalidInput)
	}

	lc, err := json.Marshal(l.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal listing context: %w", err)
	}

	query := `
		INSERT INTO listings (
			id, title, list_price, currency, context, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			list_price = excluded.list_price,
			currency = excluded.currency,
			context = excluded.context
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		l.ID, l.Title, l.ListPrice, l.Currency, string(lc), l.CreatedAt,
	)
	return err
}

// GetListing retrieves a listing snapshot by ID.
func (r *SQLRepository) GetListing(ctx context.Context, listingID string) (*domain.ListingRecord, error) {
	if listingID == "" {
		return nil, fmt.Errorf("%w: listing id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, title, list_price, currency, context, created_at
		FROM listings
		WHERE id = ?
	`

	var l domain.ListingRecord
	var lc string

	err := r.db.QueryRowContext(ctx, r.rebind(query), listingID).Scan(
		&l.ID, &l.Title, &l.ListPrice, &l.Currency, &lc, &l.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(lc), &l.Context); err != nil {
		return nil, fmt.Errorf("failed to parse listing context: %w", err)
	}

	return &l, nil
}

// SaveValuation stores a valuation snapshot with its full breakdown.
func (r *SQLRepository) SaveValuation(ctx context.Context, v *domain.Valuation) error {
	if v == nil || v.ID == "" {
		return fmt.Errorf("%w: valuation id is required", ErrInvalidInput)
	}

	adjustments, _ := json.Marshal(v.Adjustments)
	contributions, _ := json.Marshal(v.GroupContributions)
	metadata, _ := json.Marshal(v.Metadata)

	var composite sql.NullFloat64
	if v.CompositeScore != nil {
		composite = sql.NullFloat64{Float64: *v.CompositeScore, Valid: true}
	}

	query := `
		INSERT INTO valuations (
			id, listing_id, ruleset_id, ruleset_version,
			base_price, adjusted_price, matched_rule_count, composite_score,
			timestamp, adjustments, group_contributions, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		v.ID, v.ListingID, v.RulesetID, v.RulesetVersion,
		v.BasePrice, v.AdjustedPrice, v.MatchedRuleCount, composite,
		v.Timestamp, string(adjustments), string(contributions), string(metadata),
	)
	return err
}

// GetValuation retrieves a valuation snapshot by ID.
func (r *SQLRepository) GetValuation(ctx context.Context, valuationID string) (*domain.Valuation, error) {
	if valuationID == "" {
		return nil, fmt.Errorf("%w: valuation id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, listing_id, ruleset_id, ruleset_version,
			   base_price, adjusted_price, matched_rule_count, composite_score,
			   timestamp, adjustments, group_contributions, metadata
		FROM valuations
		WHERE id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), valuationID)
	v, err := scanValuation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// ListValuationsByListing retrieves the most recent valuations for a
// listing, newest first.
func (r *SQLRepository) ListValuationsByListing(ctx context.Context, listingID string, limit int) ([]*domain.Valuation, error) {
	if listingID == "" {
		return nil, fmt.Errorf("%w: listing id is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, listing_id, ruleset_id, ruleset_version,
			   base_price, adjusted_price, matched_rule_count, composite_score,
			   timestamp, adjustments, group_contributions, metadata
		FROM valuations
		WHERE listing_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), listingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var valuations []*domain.Valuation
	for rows.Next() {
		v, err := scanValuation(rows)
		if err != nil {
			return nil, err
		}
		valuations = append(valuations, v)
	}

	return valuations, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanValuation(row rowScanner) (*domain.Valuation, error) {
	var v domain.Valuation
	var composite sql.NullFloat64
	var adjustments, contributions, metadata string

	err := row.Scan(
		&v.ID, &v.ListingID, &v.RulesetID, &v.RulesetVersion,
		&v.BasePrice, &v.AdjustedPrice, &v.MatchedRuleCount, &composite,
		&v.Timestamp, &adjustments, &contributions, &metadata,
	)
	if err != nil {
		return nil, err
	}

	if composite.Valid {
		v.CompositeScore = &composite.Float64
	}
	if err := json.Unmarshal([]byte(adjustments), &v.Adjustments); err != nil {
		return nil, fmt.Errorf("failed to parse adjustments: %w", err)
	}
	if contributions != "" {
		json.Unmarshal([]byte(contributions), &v.GroupContributions)
	}
	if metadata != "" {
		json.Unmarshal([]byte(metadata), &v.Metadata)
	}

	return &v, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
