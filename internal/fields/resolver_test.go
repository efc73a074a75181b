package fields

import (
	"testing"
	"time"

	"github.com/miethe/deal-brain-sub014/internal/domain"
)

func testContext() domain.ListingContext {
	return domain.NewListingContext(
		map[string]any{
			"title":  "HP EliteDesk 800 G6",
			"ram_gb": 32.0,
		},
		map[string]map[string]any{
			"cpu": {
				"model":          "i5-10500",
				"cpu_mark_multi": 12000.0,
				"tdp_w":          nil,
			},
		},
	)
}

func TestResolve(t *testing.T) {
	r := NewResolver(DefaultSchema())
	lc := testContext()

	tests := []struct {
		name      string
		path      string
		wantState State
		wantValue any
	}{
		{"bare field addresses the listing", "ram_gb", Found, 32.0},
		{"dotted path addresses a component", "cpu.cpu_mark_multi", Found, 12000.0},
		{"registered field missing from context", "storage_gb", Absent, nil},
		{"registered field with nil value", "cpu.tdp_w", Absent, nil},
		{"component record missing entirely", "gpu.gpu_mark", Absent, nil},
		{"unregistered field", "warranty_months", NotFound, nil},
		{"unregistered entity", "psu.watts", NotFound, nil},
		{"too many segments", "cpu.cache.l3", NotFound, nil},
		{"empty path", "", NotFound, nil},
		{"trailing dot", "cpu.", NotFound, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(lc, tt.path)
			if res.State != tt.wantState {
				t.Fatalf("State = %v, want %v", res.State, tt.wantState)
			}
			if tt.wantState == Found && res.Value != tt.wantValue {
				t.Errorf("Value = %v, want %v", res.Value, tt.wantValue)
			}
		})
	}
}

func TestResolveCarriesTypeMetadata(t *testing.T) {
	r := NewResolver(DefaultSchema())

	res := r.Resolve(testContext(), "ram_gb")
	if res.Type != domain.FieldNumber {
		t.Errorf("Type = %v, want number", res.Type)
	}

	res = r.Resolve(testContext(), "condition")
	if res.Type != domain.FieldEnum || len(res.Options) == 0 {
		t.Errorf("enum resolution missing options: %+v", res)
	}
}

func TestNumber(t *testing.T) {
	r := NewResolver(DefaultSchema())
	lc := testContext()

	if n, ok := r.Number(lc, "cpu.cpu_mark_multi"); !ok || n != 12000.0 {
		t.Errorf("Number() = %v, %v", n, ok)
	}
	if _, ok := r.Number(lc, "storage_gb"); ok {
		t.Error("absent field should not coerce to a number")
	}
	if _, ok := r.Number(lc, "cpu.model"); ok {
		t.Error("string field should not coerce to a number")
	}
}

func TestAsNumber(t *testing.T) {
	for _, v := range []any{float64(7), float32(7), int(7), int32(7), int64(7), uint(7), uint64(7)} {
		if n, ok := AsNumber(v); !ok || n != 7 {
			t.Errorf("AsNumber(%T) = %v, %v", v, n, ok)
		}
	}
	if _, ok := AsNumber("7"); ok {
		t.Error("strings should not coerce to numbers")
	}
}

func TestAsTime(t *testing.T) {
	if _, ok := AsTime("2026-08-01T10:30:00Z"); !ok {
		t.Error("RFC 3339 strings should parse")
	}
	got, ok := AsTime("2026-08-01")
	if !ok || !got.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date-only form = %v, %v", got, ok)
	}
	if _, ok := AsTime(12345); ok {
		t.Error("numbers should not coerce to times")
	}
	if _, ok := AsTime("not a date"); ok {
		t.Error("garbage should not parse")
	}
}
