// Package fields resolves dotted field paths against a listing context.
package fields

import (
	"strings"
	"time"

	"github.com/miethe/deal-brain-sub014/internal/domain"
)

// State classifies the outcome of a resolution.
type State int

const (
	// Found means the path is registered and carries a value.
	Found State = iota

	// Absent means the path is registered but the listing has no value for
	// it (nil or missing key). Distinct from NotFound so operators can
	// treat incomplete data as non-match instead of failure.
	Absent

	// NotFound means the path is not registered in the schema.
	NotFound
)

// Resolution is the result of resolving one field path.
type Resolution struct {
	State   State
	Type    domain.FieldType
	Value   any
	Options []string // enum option set, when Type is enum
}

// Resolver resolves dotted paths ("cpu.cpu_mark_multi", "ram_gb") against
// a ListingContext using externally supplied entity metadata. Resolution is
// pure and fails closed: unknown paths return NotFound, never an error.
type Resolver struct {
	schema domain.Schema
}

// NewResolver creates a resolver over the given schema.
func NewResolver(schema domain.Schema) *Resolver {
	return &Resolver{schema: schema}
}

// Resolve looks up a field path. Single-segment paths address the listing
// entity; two-segment paths address a component entity.
func (r *Resolver) Resolve(lc domain.ListingContext, path string) Resolution {
	entity := domain.RootEntity
	field := path

	if i := strings.IndexByte(path, '.'); i >= 0 {
		entity = path[:i]
		field = path[i+1:]
		if field == "" || strings.ContainsRune(field, '.') {
			return Resolution{State: NotFound}
		}
	}
	if entity == "" || field == "" {
		return Resolution{State: NotFound}
	}

	def, ok := r.schema[entity][field]
	if !ok {
		return Resolution{State: NotFound}
	}

	values, ok := lc[entity]
	if !ok {
		return Resolution{State: Absent, Type: def.Type, Options: def.Options}
	}
	v, ok := values[field]
	if !ok || v == nil {
		return Resolution{State: Absent, Type: def.Type, Options: def.Options}
	}

	return Resolution{State: Found, Type: def.Type, Value: v, Options: def.Options}
}

// Number resolves a path and coerces the value to a float64.
// The second return is false when the field is absent, unknown, or not
// numeric.
func (r *Resolver) Number(lc domain.ListingContext, path string) (float64, bool) {
	res := r.Resolve(lc, path)
	if res.State != Found {
		return 0, false
	}
	return AsNumber(res.Value)
}

// AsNumber coerces a runtime value to float64. JSON decoding yields
// float64, but contexts built in Go code may carry native int types.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// AsString coerces a runtime value to string.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsBool coerces a runtime value to bool.
func AsBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// AsTime coerces a runtime value to time.Time. Accepts time.Time and
// RFC 3339 strings (the wire form for date fields).
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			// Date-only form used by import feeds.
			parsed, err = time.Parse("2006-01-02", t)
			if err != nil {
				return time.Time{}, false
			}
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}
