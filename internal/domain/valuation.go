package domain

import (
	"time"
)

// Valuation is the itemized, explainable output of running a ruleset
// against one listing. Produced fresh per evaluation call and never
// mutated after construction.
type Valuation struct {
	ID             string    `json:"id"`
	ListingID      string    `json:"listingId"`
	RulesetID      string    `json:"rulesetId"`
	RulesetVersion string    `json:"rulesetVersion"`
	BasePrice      float64   `json:"basePrice"`
	AdjustedPrice  float64   `json:"adjustedPrice"`
	Timestamp      time.Time `json:"timestamp"`

	MatchedRuleCount int          `json:"matchedRuleCount"`
	Adjustments      []Adjustment `json:"adjustments"`

	// CompositeScore is the weighted per-group contribution score. It is a
	// derived output and does not affect AdjustedPrice. Nil when the
	// ruleset carries no group weights.
	CompositeScore     *float64            `json:"compositeScore,omitempty"`
	GroupContributions []GroupContribution `json:"groupContributions,omitempty"`

	Metadata ValuationMetadata `json:"metadata"`
}

// Adjustment is one triggered action's contribution to the valuation.
// Diagnostics carry non-fatal notes (missing metric data, formula eval
// failures) attached to the entry they concern.
type Adjustment struct {
	RuleID      string             `json:"ruleId"`
	RuleName    string             `json:"ruleName,omitempty"`
	Group       string             `json:"group,omitempty"`
	ActionIndex int                `json:"actionIndex"`
	Amount      float64            `json:"amount"`
	Multiplier  *AppliedMultiplier `json:"multiplierApplied,omitempty"`
	Explanation string             `json:"explanation"`
	Diagnostics []string           `json:"diagnostics,omitempty"`
}

// AppliedMultiplier records which condition multiplier scaled an amount.
type AppliedMultiplier struct {
	Name         string  `json:"name"`
	Field        string  `json:"field"`
	MatchedValue string  `json:"matchedValue"`
	Factor       float64 `json:"factor"`
}

// GroupContribution shows how a single rule group contributed to the
// composite score.
type GroupContribution struct {
	GroupID      string  `json:"groupId"`
	Weight       float64 `json:"weight"`
	Amount       float64 `json:"amount"`
	Matched      int     `json:"matched"`
	Contribution float64 `json:"contribution"`
}

// ValuationMetadata contains processing information.
type ValuationMetadata struct {
	TraceID        string `json:"traceId,omitempty"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	RulesMatched   int    `json:"rulesMatched"`
	EvalMs         int64  `json:"evalMs"`
	EngineVersion  string `json:"engineVersion,omitempty"`
	CacheHit       bool   `json:"cacheHit,omitempty"`
}

// ValuationResponse is the API response for a valuation request.
type ValuationResponse struct {
	ValuationID   string            `json:"valuationId"`
	ListingID     string            `json:"listingId,omitempty"`
	BasePrice     float64           `json:"basePrice"`
	AdjustedPrice float64           `json:"adjustedPrice"`
	Delta         float64           `json:"delta"`
	Breakdown     []Adjustment      `json:"breakdown"`
	Metadata      ValuationMetadata `json:"metadata"`
}

// ToResponse converts a Valuation to an API response.
func (v *Valuation) ToResponse() *ValuationResponse {
	return &ValuationResponse{
		ValuationID:   v.ID,
		ListingID:     v.ListingID,
		BasePrice:     v.BasePrice,
		AdjustedPrice: v.AdjustedPrice,
		Delta:         v.AdjustedPrice - v.BasePrice,
		Breakdown:     v.Adjustments,
		Metadata:      v.Metadata,
	}
}
