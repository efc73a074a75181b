package rules

import (
	"testing"

	"github.com/miethe/deal-brain-sub014/internal/domain"
	"github.com/miethe/deal-brain-sub014/internal/fields"
)

func testContext() domain.ListingContext {
	return domain.NewListingContext(
		map[string]any{
			"title":       "Dell OptiPlex 7080 Micro",
			"device_type": "mini_pc",
			"condition":   "refurbished",
			"price":       450.0,
			"quantity":    1.0,
			"ram_gb":      16.0,
			"storage_gb":  512.0,
			"os_license":  true,
			"listed_at":   "2026-08-01",
		},
		map[string]map[string]any{
			"cpu": {
				"manufacturer":    "Intel",
				"model":           "i7-10700T",
				"cores":           8.0,
				"threads":         16.0,
				"cpu_mark_single": 2500.0,
				"cpu_mark_multi":  16000.0,
			},
			"ram_spec": {
				"ddr_generation": "ddr4",
				"speed_mhz":      3200.0,
			},
		},
	)
}

func newTestEvaluator() *ConditionEvaluator {
	return NewConditionEvaluator(fields.NewResolver(fields.DefaultSchema()))
}

func TestEvaluateNilConditionMatches(t *testing.T) {
	if !newTestEvaluator().Evaluate(nil, testContext()) {
		t.Error("nil condition should match unconditionally")
	}
}

func TestEvaluateComparisons(t *testing.T) {
	tests := []struct {
		name string
		node *domain.ConditionNode
		want bool
	}{
		{
			name: "number equals",
			node: &domain.ConditionNode{Field: "ram_gb", Operator: domain.OpEquals, Value: 16.0},
			want: true,
		},
		{
			name: "number greater than",
			node: &domain.ConditionNode{Field: "cpu.cpu_mark_multi", Operator: domain.OpGreaterThan, Value: 10000.0},
			want: true,
		},
		{
			name: "between inclusive lower bound",
			node: &domain.ConditionNode{Field: "ram_gb", Operator: domain.OpBetween, Values: []any{16.0, 32.0}},
			want: true,
		},
		{
			name: "between outside range",
			node: &domain.ConditionNode{Field: "ram_gb", Operator: domain.OpBetween, Values: []any{32.0, 64.0}},
			want: false,
		},
		{
			name: "string contains is case insensitive",
			node: &domain.ConditionNode{Field: "title", Operator: domain.OpContains, Value: "optiplex"},
			want: true,
		},
		{
			name: "string equals is case sensitive",
			node: &domain.ConditionNode{Field: "cpu.model", Operator: domain.OpEquals, Value: "I7-10700T"},
			want: false,
		},
		{
			name: "string in set",
			node: &domain.ConditionNode{Field: "condition", Operator: domain.OpIn, Values: []any{"used", "refurbished"}},
			want: true,
		},
		{
			name: "boolean is",
			node: &domain.ConditionNode{Field: "os_license", Operator: domain.OpIs, Value: true},
			want: true,
		},
		{
			name: "enum matches across casing",
			node: &domain.ConditionNode{Field: "ram_spec.ddr_generation", Operator: domain.OpEquals, Value: "DDR4"},
			want: true,
		},
		{
			name: "enum literal outside option set is always false",
			node: &domain.ConditionNode{Field: "ram_spec.ddr_generation", Operator: domain.OpEquals, Value: "ddr9"},
			want: false,
		},
		{
			name: "date greater than",
			node: &domain.ConditionNode{Field: "listed_at", Operator: domain.OpGreaterThan, Value: "2026-01-01"},
			want: true,
		},
		{
			name: "unknown field path fails closed",
			node: &domain.ConditionNode{Field: "cpu.benchmark_score", Operator: domain.OpGreaterThan, Value: 1.0},
			want: false,
		},
		{
			name: "absent value is false even for not_equals",
			node: &domain.ConditionNode{Field: "gpu.vram_gb", Operator: domain.OpNotEquals, Value: 8.0},
			want: false,
		},
		{
			name: "operator incompatible with type is false",
			node: &domain.ConditionNode{Field: "ram_gb", Operator: domain.OpContains, Value: "16"},
			want: false,
		},
	}

	eval := newTestEvaluator()
	lc := testContext()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eval.Evaluate(tt.node, lc); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateNestedGroups(t *testing.T) {
	// (device_type == mini_pc AND (ram_gb >= 16 OR storage_gb >= 1000))
	node := &domain.ConditionNode{
		Logic: domain.LogicAnd,
		Children: []*domain.ConditionNode{
			{Field: "device_type", Operator: domain.OpEquals, Value: "mini_pc"},
			{
				Logic: domain.LogicOr,
				Children: []*domain.ConditionNode{
					{Field: "ram_gb", Operator: domain.OpGte, Value: 16.0},
					{Field: "storage_gb", Operator: domain.OpGte, Value: 1000.0},
				},
			},
		},
	}

	if !newTestEvaluator().Evaluate(node, testContext()) {
		t.Error("nested group should match")
	}
}

func TestEvaluateEmptyGroupIsFalse(t *testing.T) {
	node := &domain.ConditionNode{Logic: domain.LogicAnd}
	if newTestEvaluator().Evaluate(node, testContext()) {
		t.Error("empty group should not match")
	}
}

// countingResolver records resolution order so short-circuiting is
// observable.
type countingResolver struct {
	inner FieldResolver
	calls []string
}

func (r *countingResolver) Resolve(lc domain.ListingContext, path string) fields.Resolution {
	r.calls = append(r.calls, path)
	return r.inner.Resolve(lc, path)
}

func (r *countingResolver) Number(lc domain.ListingContext, path string) (float64, bool) {
	r.calls = append(r.calls, path)
	return r.inner.Number(lc, path)
}

func TestEvaluateShortCircuitsInOrder(t *testing.T) {
	lc := testContext()

	andNode := &domain.ConditionNode{
		Logic: domain.LogicAnd,
		Children: []*domain.ConditionNode{
			{Field: "ram_gb", Operator: domain.OpGreaterThan, Value: 64.0}, // false
			{Field: "storage_gb", Operator: domain.OpGte, Value: 1.0},
		},
	}
	resolver := &countingResolver{inner: fields.NewResolver(fields.DefaultSchema())}
	if NewConditionEvaluator(resolver).Evaluate(andNode, lc) {
		t.Error("AND group should not match")
	}
	if len(resolver.calls) != 1 || resolver.calls[0] != "ram_gb" {
		t.Errorf("AND should stop after first false child, resolved %v", resolver.calls)
	}

	orNode := &domain.ConditionNode{
		Logic: domain.LogicOr,
		Children: []*domain.ConditionNode{
			{Field: "ram_gb", Operator: domain.OpGte, Value: 16.0}, // true
			{Field: "storage_gb", Operator: domain.OpGte, Value: 1.0},
		},
	}
	resolver = &countingResolver{inner: fields.NewResolver(fields.DefaultSchema())}
	if !NewConditionEvaluator(resolver).Evaluate(orNode, lc) {
		t.Error("OR group should match")
	}
	if len(resolver.calls) != 1 || resolver.calls[0] != "ram_gb" {
		t.Errorf("OR should stop after first true child, resolved %v", resolver.calls)
	}
}
