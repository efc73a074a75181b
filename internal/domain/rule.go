package domain

// LogicOp joins children of a condition group.
type LogicOp string

const (
	LogicAnd LogicOp = "and"
	LogicOr  LogicOp = "or"
)

// Operator compares a resolved field value against a rule literal.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpGte         Operator = "gte"
	OpLte         Operator = "lte"
	OpBetween     Operator = "between"
	OpIs          Operator = "is"
	OpIsNot       Operator = "is_not"
)

// ConditionNode is either a comparison (Field/Operator/Value or Values set)
// or a group (Logic + Children). Nodes form an owned tree constructed fresh
// per rule; they never reference other rules.
type ConditionNode struct {
	// Group form
	Logic    LogicOp          `json:"logic,omitempty"`
	Children []*ConditionNode `json:"children,omitempty"`

	// Comparison form
	Field    string   `json:"field,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`
	Values   []any    `json:"values,omitempty"`
}

// IsGroup reports whether the node is a logical group.
func (n *ConditionNode) IsGroup() bool {
	return n.Logic != ""
}

// ActionType tags the Action variant. The set is closed: the action
// calculator switches exhaustively over it and rejects anything else.
type ActionType string

const (
	ActionFixedValue     ActionType = "fixed_value"
	ActionPerUnit        ActionType = "per_unit"
	ActionPercentage     ActionType = "percentage"
	ActionBenchmarkBased ActionType = "benchmark_based"
	ActionFormula        ActionType = "formula"
)

// Action computes a single numeric adjustment for a matched rule.
type Action struct {
	Type ActionType `json:"type"`

	// fixed_value
	Amount float64 `json:"amount,omitempty"`

	// per_unit: amount = metricField * amountPerUnit
	// benchmark_based: amount = baseAmount + (metricField / 1000) * amountPer1000
	MetricField   string  `json:"metricField,omitempty"`
	AmountPerUnit float64 `json:"amountPerUnit,omitempty"`
	AmountPer1000 float64 `json:"amountPer1000,omitempty"`
	BaseAmount    float64 `json:"baseAmount,omitempty"`

	// percentage: amount = ofField * (pct / 100)
	Pct     float64 `json:"pct,omitempty"`
	OfField string  `json:"ofField,omitempty"`

	// formula: sandboxed arithmetic expression over listing fields
	Formula string `json:"formula,omitempty"`

	// Multipliers are evaluated in declared order; the applied policy
	// (first match vs cumulative) comes from the ruleset.
	Multipliers []ConditionMultiplier `json:"multipliers,omitempty"`
}

// ConditionMultiplier scales an action's amount when a field matches.
type ConditionMultiplier struct {
	Name       string  `json:"name"`
	Field      string  `json:"field"`
	MatchValue any     `json:"matchValue"`
	Multiplier float64 `json:"multiplier"`
}

// MultiplierPolicy selects how condition multipliers combine.
type MultiplierPolicy string

const (
	// MultiplierFirstMatch applies only the first matching multiplier.
	MultiplierFirstMatch MultiplierPolicy = "first_match"

	// MultiplierCumulative multiplies every matching multiplier together.
	MultiplierCumulative MultiplierPolicy = "cumulative"
)

// Rule is a single valuation rule. A nil Condition always matches.
type Rule struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Priority  int            `json:"priority"`
	Condition *ConditionNode `json:"condition,omitempty"`
	Actions   []Action       `json:"actions"`
}

// RuleGroup is an ordered set of rules sharing a category. Weight (0.0-1.0)
// feeds the optional composite score and never affects the adjusted price.
type RuleGroup struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight,omitempty"`
	Rules  []Rule  `json:"rules"`
}

// Ruleset is a complete valuation strategy: ordered rule groups evaluated
// against a listing. Constructed by an external rule-authoring layer and
// treated as read-only input by the engine.
type Ruleset struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Enabled bool        `json:"enabled"`
	Groups  []RuleGroup `json:"groups"`

	// MultiplierPolicy overrides the engine default when set.
	MultiplierPolicy MultiplierPolicy `json:"multiplierPolicy,omitempty"`

	// PriceFloor overrides the engine default when set.
	PriceFloor *float64 `json:"priceFloor,omitempty"`
}
