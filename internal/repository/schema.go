package repository

// Schema definitions for the Deal Brain database.
// Compatible with both SQLite and PostgreSQL.

const schemaListings = `
CREATE TABLE IF NOT EXISTS listings (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    list_price REAL NOT NULL,
    currency TEXT NOT NULL,
    context TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_created ON listings(created_at);
`

const schemaValuations = `
CREATE TABLE IF NOT EXISTS valuations (
    id TEXT PRIMARY KEY,
    listing_id TEXT NOT NULL,
    ruleset_id TEXT NOT NULL,
    ruleset_version TEXT NOT NULL,
    base_price REAL NOT NULL,
    adjusted_price REAL NOT NULL,
    matched_rule_count INTEGER NOT NULL,
    composite_score REAL,
    timestamp TIMESTAMP NOT NULL,
    adjustments TEXT NOT NULL,
    group_contributions TEXT,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_valuations_listing ON valuations(listing_id);
CREATE INDEX IF NOT EXISTS idx_valuations_ruleset ON valuations(ruleset_id, ruleset_version);
CREATE INDEX IF NOT EXISTS idx_valuations_timestamp ON valuations(timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaListings,
		schemaValuations,
	}
}
