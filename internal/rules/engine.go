// Package rules implements the valuation rule engine: condition trees,
// action calculation and ruleset orchestration.
package rules

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/miethe/deal-brain-sub014/internal/domain"
	"github.com/miethe/deal-brain-sub014/internal/fields"
)

// EngineVersion is stamped into valuation metadata so stored snapshots can
// be traced back to the engine build that produced them.
const EngineVersion = "1.0.0"

// Engine evaluates compiled rulesets against listings. Rulesets compile
// once at load and are shared read-only across concurrent evaluations.
type Engine struct {
	mu       sync.RWMutex
	rulesets map[string]*CompiledRuleset

	resolver   FieldResolver
	conditions *ConditionEvaluator
	actions    *ActionCalculator
	formulas   *FormulaCache
	cfg        domain.EngineConfig
	tracer     trace.Tracer
}

// CompiledRuleset is a loaded ruleset with rules sorted by priority and
// formulas pre-parsed. Rules that failed validation are retained with a
// reason and excluded from evaluation.
type CompiledRuleset struct {
	Ruleset *domain.Ruleset
	Invalid map[string]string // ruleID -> reason

	groups   []compiledGroup
	weighted bool
}

type compiledGroup struct {
	group domain.RuleGroup
	rules []domain.Rule
}

// NewEngine creates a valuation engine over the given field resolver.
func NewEngine(resolver FieldResolver, cfg domain.EngineConfig) *Engine {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 16
	}
	if cfg.MultiplierPolicy == "" {
		cfg.MultiplierPolicy = domain.MultiplierFirstMatch
	}
	formulas := NewFormulaCache()
	return &Engine{
		rulesets:   make(map[string]*CompiledRuleset),
		resolver:   resolver,
		conditions: NewConditionEvaluator(resolver),
		actions:    NewActionCalculator(resolver, formulas),
		formulas:   formulas,
		cfg:        cfg,
		tracer:     otel.Tracer("dealbrain-engine"),
	}
}

// ValidationIssue describes one problem found while validating a ruleset.
type ValidationIssue struct {
	RuleID string `json:"ruleId,omitempty"`
	Detail string `json:"detail"`
}

// ValidateRuleset checks a ruleset without loading it: formula syntax,
// field references, and group weights. An empty slice means the ruleset
// is clean.
func (e *Engine) ValidateRuleset(rs *domain.Ruleset) []ValidationIssue {
	var issues []ValidationIssue
	if rs == nil {
		return []ValidationIssue{{Detail: "ruleset is required"}}
	}
	if rs.ID == "" {
		issues = append(issues, ValidationIssue{Detail: "ruleset id is required"})
	}

	compiled := e.compile(rs)
	for ruleID, reason := range compiled.Invalid {
		issues = append(issues, ValidationIssue{RuleID: ruleID, Detail: reason})
	}

	if compiled.weighted {
		if sum := weightSum(rs.Groups); math.Abs(sum-1.0) > 0.01 {
			issues = append(issues, ValidationIssue{
				Detail: fmt.Sprintf("group weights sum to %.3f, expected 1.0", sum),
			})
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].RuleID != issues[j].RuleID {
			return issues[i].RuleID < issues[j].RuleID
		}
		return issues[i].Detail < issues[j].Detail
	})
	return issues
}

// LoadRuleset compiles and loads a ruleset into the engine. Invalid rules
// are kept with their reason and skipped at evaluation time; the ruleset
// as a whole still loads.
func (e *Engine) LoadRuleset(rs *domain.Ruleset) error {
	if rs == nil || rs.ID == "" {
		return fmt.Errorf("ruleset with id is required")
	}

	compiled := e.compile(rs)

	e.mu.Lock()
	e.rulesets[rs.ID] = compiled
	e.mu.Unlock()

	if len(compiled.Invalid) > 0 {
		slog.Warn("ruleset loaded with invalid rules",
			"ruleset_id", rs.ID,
			"invalid_count", len(compiled.Invalid),
		)
	}
	if compiled.weighted {
		if sum := weightSum(rs.Groups); math.Abs(sum-1.0) > 0.01 {
			slog.Warn("ruleset group weights do not sum to 1.0",
				"ruleset_id", rs.ID,
				"weight_sum", sum,
			)
		}
	}

	slog.Info("ruleset loaded",
		"ruleset_id", rs.ID,
		"version", rs.Version,
		"groups", len(rs.Groups),
	)
	return nil
}

// ReloadRulesets replaces all loaded rulesets atomically. Disabled
// rulesets are skipped. This enables hot-reloading from the ruleset file.
func (e *Engine) ReloadRulesets(rulesets []*domain.Ruleset) error {
	next := make(map[string]*CompiledRuleset, len(rulesets))
	for _, rs := range rulesets {
		if rs == nil || !rs.Enabled {
			continue
		}
		if rs.ID == "" {
			return fmt.Errorf("ruleset with id is required")
		}
		next[rs.ID] = e.compile(rs)
	}

	e.mu.Lock()
	e.rulesets = next
	e.mu.Unlock()

	slog.Info("rulesets reloaded", "count", len(next))
	return nil
}

// GetLoadedRulesets returns the currently loaded ruleset definitions.
func (e *Engine) GetLoadedRulesets() []*domain.Ruleset {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.Ruleset, 0, len(e.rulesets))
	for _, c := range e.rulesets {
		out = append(out, c.Ruleset)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RulesetCount returns the number of loaded rulesets.
func (e *Engine) RulesetCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rulesets)
}

// EvaluateInput is one listing to value.
type EvaluateInput struct {
	ListingID string
	BasePrice float64
	Context   domain.ListingContext
	TraceID   string
}

// Evaluate runs a loaded ruleset against one listing. The only error is a
// missing ruleset; rule-level problems degrade into the valuation's
// diagnostics instead of failing the call.
func (e *Engine) Evaluate(ctx context.Context, rulesetID string, input *EvaluateInput) (*domain.Valuation, error) {
	e.mu.RLock()
	compiled, ok := e.rulesets[rulesetID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ruleset %q is not loaded", rulesetID)
	}
	return e.evaluateCompiled(ctx, compiled, input), nil
}

// EvaluateRuleset runs an inline (not loaded) ruleset against one listing.
// Used for ad-hoc evaluation requests carrying their own ruleset.
func (e *Engine) EvaluateRuleset(ctx context.Context, rs *domain.Ruleset, input *EvaluateInput) (*domain.Valuation, error) {
	if rs == nil {
		return nil, fmt.Errorf("ruleset is required")
	}
	return e.evaluateCompiled(ctx, e.compile(rs), input), nil
}

// EvaluateBatch values many listings against one loaded ruleset in
// parallel, bounded by the configured worker count. Results are returned
// in input order.
func (e *Engine) EvaluateBatch(ctx context.Context, rulesetID string, inputs []*EvaluateInput) ([]*domain.Valuation, error) {
	e.mu.RLock()
	compiled, ok := e.rulesets[rulesetID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ruleset %q is not loaded", rulesetID)
	}

	results := make([]*domain.Valuation, len(inputs))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.MaxWorkers)

	for i, input := range inputs {
		wg.Add(1)
		go func(idx int, in *EvaluateInput) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = e.evaluateCompiled(ctx, compiled, in)
		}(i, input)
	}

	wg.Wait()
	return results, nil
}

func (e *Engine) evaluateCompiled(ctx context.Context, compiled *CompiledRuleset, input *EvaluateInput) *domain.Valuation {
	start := time.Now()
	rs := compiled.Ruleset

	_, span := e.tracer.Start(ctx, "ruleset.evaluate", trace.WithAttributes(
		attribute.String("ruleset.id", rs.ID),
		attribute.String("ruleset.version", rs.Version),
		attribute.String("listing.id", input.ListingID),
	))
	defer span.End()

	traceID := input.TraceID
	if traceID == "" && span.SpanContext().HasTraceID() {
		traceID = span.SpanContext().TraceID().String()
	}

	policy := e.cfg.MultiplierPolicy
	if rs.MultiplierPolicy != "" {
		policy = rs.MultiplierPolicy
	}

	var (
		adjustments  []domain.Adjustment
		total        float64
		rulesEval    int
		matchedRules int
		groupStats   []groupStat
	)

	for _, cg := range compiled.groups {
		stat := groupStat{group: cg.group}

		for _, rule := range cg.rules {
			rulesEval++
			if !e.conditions.Evaluate(rule.Condition, input.Context) {
				continue
			}
			matchedRules++
			stat.matched++

			for i, action := range rule.Actions {
				res := e.actions.Compute(action, input.Context, policy)
				adjustments = append(adjustments, domain.Adjustment{
					RuleID:      rule.ID,
					RuleName:    rule.Name,
					Group:       cg.group.Name,
					ActionIndex: i,
					Amount:      res.Amount,
					Multiplier:  res.Multiplier,
					Explanation: res.Explanation,
					Diagnostics: res.Diagnostics,
				})
				total += res.Amount
				stat.amount += res.Amount
			}
		}

		groupStats = append(groupStats, stat)
	}

	adjusted := round2(input.BasePrice + total)

	floor := e.cfg.PriceFloor
	if rs.PriceFloor != nil {
		floor = *rs.PriceFloor
	}
	if floor < 0 {
		floor = 0
	}
	if adjusted < floor {
		adjustments = append(adjustments, domain.Adjustment{
			RuleID:      "price_floor",
			RuleName:    "Price floor",
			ActionIndex: 0,
			Amount:      round2(floor - adjusted),
			Explanation: fmt.Sprintf("adjusted price %s clamped to floor %s", money(adjusted), money(floor)),
		})
		adjusted = floor
	}

	valuation := &domain.Valuation{
		ID:               uuid.New().String(),
		ListingID:        input.ListingID,
		RulesetID:        rs.ID,
		RulesetVersion:   rs.Version,
		BasePrice:        input.BasePrice,
		AdjustedPrice:    adjusted,
		Timestamp:        time.Now().UTC(),
		MatchedRuleCount: matchedRules,
		Adjustments:      adjustments,
		Metadata: domain.ValuationMetadata{
			TraceID:        traceID,
			RulesEvaluated: rulesEval,
			RulesMatched:   matchedRules,
			EvalMs:         time.Since(start).Milliseconds(),
			EngineVersion:  EngineVersion,
		},
	}

	if compiled.weighted {
		valuation.CompositeScore, valuation.GroupContributions = computeComposite(groupStats)
	}

	return valuation
}

// compile sorts each group's rules by priority and validates formulas and
// their field references. Invalid rules are excluded from the compiled
// groups but retained in Invalid with the reason.
func (e *Engine) compile(rs *domain.Ruleset) *CompiledRuleset {
	compiled := &CompiledRuleset{
		Ruleset: rs,
		Invalid: make(map[string]string),
		groups:  make([]compiledGroup, 0, len(rs.Groups)),
	}

	for _, group := range rs.Groups {
		if group.Weight > 0 {
			compiled.weighted = true
		}

		rules := make([]domain.Rule, len(group.Rules))
		copy(rules, group.Rules)
		sort.SliceStable(rules, func(i, j int) bool {
			return rules[i].Priority < rules[j].Priority
		})

		valid := rules[:0]
		for _, rule := range rules {
			if reason := e.checkRule(rule); reason != "" {
				compiled.Invalid[rule.ID] = reason
				continue
			}
			valid = append(valid, rule)
		}

		compiled.groups = append(compiled.groups, compiledGroup{
			group: group,
			rules: valid,
		})
	}

	return compiled
}

// checkRule returns a reason string when a rule must be excluded from
// evaluation: a formula that fails to parse, or one referencing a field
// path no schema entity registers.
func (e *Engine) checkRule(rule domain.Rule) string {
	for i, action := range rule.Actions {
		if action.Type != domain.ActionFormula {
			continue
		}
		parsed, err := e.formulas.Get(action.Formula)
		if err != nil {
			return fmt.Sprintf("action %d: formula parse failed: %v", i, err)
		}
		for _, path := range parsed.Fields() {
			// Resolving against an empty context distinguishes
			// unregistered paths (NotFound) from missing values.
			res := e.resolver.Resolve(nil, path)
			if res.State == fields.NotFound {
				return fmt.Sprintf("action %d: formula references unknown field %q", i, path)
			}
		}
	}
	return ""
}

// Fingerprint derives a stable cache key for one evaluation: same ruleset
// version plus same listing content always hashes identically, which is
// what makes result caching safe for a deterministic engine.
func Fingerprint(rulesetID, version string, lc domain.ListingContext, basePrice float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%.2f|", rulesetID, version, basePrice)
	// Go's JSON encoder writes map keys in sorted order, so equal contexts
	// always serialize identically.
	if data, err := json.Marshal(lc); err == nil {
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func weightSum(groups []domain.RuleGroup) float64 {
	var sum float64
	for _, g := range groups {
		sum += g.Weight
	}
	return sum
}
