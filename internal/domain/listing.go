// Package domain defines the core interfaces and types for Deal Brain.
package domain

import (
	"time"
)

// FieldType is the declared type of a listing field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldEnum    FieldType = "enum"
	FieldDate    FieldType = "date"
)

// FieldDef describes a registered field on an entity.
type FieldDef struct {
	Type FieldType `json:"type"`

	// Options is the closed value set for enum fields.
	Options []string `json:"options,omitempty"`
}

// Schema maps entity name -> field name -> definition.
// Entity metadata is supplied externally; the resolver fails closed on
// anything not registered here.
type Schema map[string]map[string]FieldDef

// ListingContext is a read-only key/value view over a listing and its
// related component records (CPU, GPU, RAM spec, storage profile),
// addressable via dotted paths such as "cpu.cpu_mark_multi". A bare field
// name addresses the "listing" entity. Built once per evaluation call and
// never mutated mid-evaluation.
type ListingContext map[string]map[string]any

// RootEntity is the entity addressed by single-segment field paths.
const RootEntity = "listing"

// NewListingContext builds a context from the listing's own attributes plus
// its component records.
func NewListingContext(listing map[string]any, components map[string]map[string]any) ListingContext {
	ctx := ListingContext{RootEntity: listing}
	for entity, fields := range components {
		ctx[entity] = fields
	}
	return ctx
}

// ListingRecord is the persisted snapshot of a listing at valuation time.
// The import/ingestion pipeline that produces listings is an external
// collaborator; this record only preserves what a valuation was computed
// from, so breakdowns stay reproducible.
type ListingRecord struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	ListPrice float64        `json:"listPrice"`
	Currency  string         `json:"currency"`
	Context   ListingContext `json:"context"`
	CreatedAt time.Time      `json:"createdAt"`
}
