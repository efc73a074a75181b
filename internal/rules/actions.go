package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/miethe/deal-brain-sub014/internal/domain"
	"github.com/miethe/deal-brain-sub014/internal/expr"
	"github.com/miethe/deal-brain-sub014/internal/fields"
)

// ActionResult is the outcome of computing a single action.
type ActionResult struct {
	Amount      float64
	Explanation string
	Multiplier  *domain.AppliedMultiplier
	Diagnostics []string
}

// ActionCalculator computes the numeric adjustment for one action and
// applies its condition multipliers. Deterministic: identical inputs
// always produce identical output.
type ActionCalculator struct {
	resolver FieldResolver
	formulas *FormulaCache
}

// NewActionCalculator creates an action calculator sharing the engine's
// formula cache.
func NewActionCalculator(resolver FieldResolver, formulas *FormulaCache) *ActionCalculator {
	return &ActionCalculator{resolver: resolver, formulas: formulas}
}

// Compute calculates the action's amount against the listing. Missing
// metric data and runtime formula failures degrade to amount 0 with a
// diagnostic; partial-data listings still get best-effort valuations.
// The final amount (after multipliers) is rounded to 2 decimal places;
// intermediate math runs at full precision.
func (c *ActionCalculator) Compute(action domain.Action, lc domain.ListingContext, policy domain.MultiplierPolicy) ActionResult {
	var result ActionResult

	switch action.Type {
	case domain.ActionFixedValue:
		result.Amount = action.Amount
		result.Explanation = fmt.Sprintf("fixed adjustment of %s", money(action.Amount))

	case domain.ActionPerUnit:
		metric, ok := c.resolver.Number(lc, action.MetricField)
		if !ok {
			result.Explanation = fmt.Sprintf("per-unit adjustment on %s skipped", action.MetricField)
			result.Diagnostics = append(result.Diagnostics,
				fmt.Sprintf("metric field %q has no value; contributed 0", action.MetricField))
			break
		}
		result.Amount = metric * action.AmountPerUnit
		result.Explanation = fmt.Sprintf("%g × %s per %s", metric, money(action.AmountPerUnit), action.MetricField)

	case domain.ActionPercentage:
		base, ok := c.resolver.Number(lc, action.OfField)
		if !ok {
			result.Explanation = fmt.Sprintf("percentage adjustment of %s skipped", action.OfField)
			result.Diagnostics = append(result.Diagnostics,
				fmt.Sprintf("field %q has no value; contributed 0", action.OfField))
			break
		}
		result.Amount = base * (action.Pct / 100)
		result.Explanation = fmt.Sprintf("%g%% of %s (%s)", action.Pct, action.OfField, money(base))

	case domain.ActionBenchmarkBased:
		metric, ok := c.resolver.Number(lc, action.MetricField)
		if !ok {
			result.Explanation = fmt.Sprintf("benchmark adjustment on %s skipped", action.MetricField)
			result.Diagnostics = append(result.Diagnostics,
				fmt.Sprintf("metric field %q has no value; contributed 0", action.MetricField))
			break
		}
		result.Amount = action.BaseAmount + (metric/1000)*action.AmountPer1000
		result.Explanation = fmt.Sprintf("%s + (%g / 1000) × %s per 1000 %s",
			money(action.BaseAmount), metric, money(action.AmountPer1000), action.MetricField)

	case domain.ActionFormula:
		result = c.computeFormula(action, lc)

	default:
		result.Explanation = "no adjustment"
		result.Diagnostics = append(result.Diagnostics,
			fmt.Sprintf("unsupported action type %q", action.Type))
	}

	c.applyMultipliers(&result, action.Multipliers, lc, policy)
	result.Amount = round2(result.Amount)
	return result
}

func (c *ActionCalculator) computeFormula(action domain.Action, lc domain.ListingContext) ActionResult {
	var result ActionResult
	result.Explanation = fmt.Sprintf("formula %q", action.Formula)

	parsed, err := c.formulas.Get(action.Formula)
	if err != nil {
		// Validation catches this at load time; a rule that slipped
		// through still must not abort the evaluation.
		result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("formula parse failed: %v", err))
		return result
	}

	amount, err := parsed.Evaluate(&resolverEnv{resolver: c.resolver, lc: lc})
	if err != nil {
		result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("formula evaluation failed: %v", err))
		return result
	}

	result.Amount = amount
	return result
}

// applyMultipliers resolves the action's condition multipliers in declared
// order. Under first-match policy only the first matching multiplier
// scales the amount; under cumulative policy every match compounds.
func (c *ActionCalculator) applyMultipliers(result *ActionResult, multipliers []domain.ConditionMultiplier, lc domain.ListingContext, policy domain.MultiplierPolicy) {
	if len(multipliers) == 0 {
		return
	}

	factor := 1.0
	var names []string
	var applied *domain.AppliedMultiplier

	for _, m := range multipliers {
		res := c.resolver.Resolve(lc, m.Field)
		if res.State != fields.Found {
			continue
		}
		matched, matchedValue := multiplierMatch(res.Value, m.MatchValue)
		if !matched {
			continue
		}

		if policy == domain.MultiplierCumulative {
			factor *= m.Multiplier
			names = append(names, m.Name)
			applied = &domain.AppliedMultiplier{
				Name:         strings.Join(names, ", "),
				Field:        m.Field,
				MatchedValue: matchedValue,
				Factor:       factor,
			}
			continue
		}

		// First match wins; later multipliers are not consulted.
		factor = m.Multiplier
		applied = &domain.AppliedMultiplier{
			Name:         m.Name,
			Field:        m.Field,
			MatchedValue: matchedValue,
			Factor:       m.Multiplier,
		}
		break
	}

	if applied == nil {
		return
	}

	result.Amount *= factor
	result.Multiplier = applied
	result.Explanation = fmt.Sprintf("%s; ×%g (%s)", result.Explanation, applied.Factor, applied.Name)
}

// multiplierMatch compares a resolved value against a multiplier's match
// value. Strings compare case-insensitively; numbers numerically.
func multiplierMatch(value, match any) (bool, string) {
	if s, ok := fields.AsString(value); ok {
		m, ok := fields.AsString(match)
		if !ok {
			return false, ""
		}
		return strings.EqualFold(s, m), s
	}
	if n, ok := fields.AsNumber(value); ok {
		m, ok := fields.AsNumber(match)
		if !ok {
			return false, ""
		}
		return n == m, strconv.FormatFloat(n, 'g', -1, 64)
	}
	if b, ok := fields.AsBool(value); ok {
		m, ok := fields.AsBool(match)
		if !ok {
			return false, ""
		}
		return b == m, strconv.FormatBool(b)
	}
	return false, ""
}

// resolverEnv adapts the field resolver to the expression engine's
// variable-binding environment.
type resolverEnv struct {
	resolver FieldResolver
	lc       domain.ListingContext
}

func (e *resolverEnv) Lookup(path string) (float64, error) {
	res := e.resolver.Resolve(e.lc, path)
	switch res.State {
	case fields.NotFound:
		return 0, &expr.EvalError{Msg: fmt.Sprintf("unknown field %q", path)}
	case fields.Absent:
		return 0, &expr.EvalError{Msg: fmt.Sprintf("field %q has no value", path)}
	}
	n, ok := fields.AsNumber(res.Value)
	if !ok {
		if b, isBool := fields.AsBool(res.Value); isBool {
			if b {
				return 1, nil
			}
			return 0, nil
		}
		return 0, &expr.EvalError{Msg: fmt.Sprintf("field %q is not numeric", path)}
	}
	return n, nil
}

// round2 rounds to 2 decimal places for currency output.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func money(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("$%.2f", v)
}
