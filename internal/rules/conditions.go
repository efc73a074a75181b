package rules

import (
	"log/slog"
	"strings"

	"github.com/miethe/deal-brain-sub014/internal/domain"
	"github.com/miethe/deal-brain-sub014/internal/fields"
)

// FieldResolver is the resolution surface the evaluators need. Satisfied by
// *fields.Resolver; tests substitute side-effecting implementations.
type FieldResolver interface {
	Resolve(lc domain.ListingContext, path string) fields.Resolution
	Number(lc domain.ListingContext, path string) (float64, bool)
}

// ConditionEvaluator evaluates nested AND/OR condition trees against a
// listing context. Evaluation is pure; malformed comparisons degrade to
// false with a warning so one bad rule never aborts a batch.
type ConditionEvaluator struct {
	resolver FieldResolver
}

// NewConditionEvaluator creates a condition evaluator.
func NewConditionEvaluator(resolver FieldResolver) *ConditionEvaluator {
	return &ConditionEvaluator{resolver: resolver}
}

// Evaluate returns whether the node matches the listing. A nil node always
// matches (unconditional rule).
func (e *ConditionEvaluator) Evaluate(node *domain.ConditionNode, lc domain.ListingContext) bool {
	if node == nil {
		return true
	}
	if node.IsGroup() {
		return e.evaluateGroup(node, lc)
	}
	return e.evaluateComparison(node, lc)
}

// evaluateGroup short-circuits in child list order: AND stops on the first
// false child, OR on the first true child. Children are never reordered so
// explanations stay reproducible.
func (e *ConditionEvaluator) evaluateGroup(node *domain.ConditionNode, lc domain.ListingContext) bool {
	if len(node.Children) == 0 {
		slog.Warn("condition group has no children", "logic", node.Logic)
		return false
	}

	switch node.Logic {
	case domain.LogicAnd:
		for _, child := range node.Children {
			if !e.Evaluate(child, lc) {
				return false
			}
		}
		return true
	case domain.LogicOr:
		for _, child := range node.Children {
			if e.Evaluate(child, lc) {
				return true
			}
		}
		return false
	default:
		slog.Warn("unknown group logic operator", "logic", node.Logic)
		return false
	}
}

func (e *ConditionEvaluator) evaluateComparison(node *domain.ConditionNode, lc domain.ListingContext) bool {
	res := e.resolver.Resolve(lc, node.Field)

	switch res.State {
	case fields.NotFound:
		slog.Warn("condition references unknown field path", "field", node.Field)
		return false
	case fields.Absent:
		// Every comparison on a field with no value is false. Incomplete
		// listings must not produce false positives.
		return false
	}

	switch res.Type {
	case domain.FieldString:
		return e.compareString(node, res)
	case domain.FieldNumber:
		return e.compareNumber(node, res)
	case domain.FieldBoolean:
		return e.compareBoolean(node, res)
	case domain.FieldEnum:
		return e.compareEnum(node, res)
	case domain.FieldDate:
		return e.compareDate(node, res)
	}

	slog.Warn("unhandled field type in comparison", "field", node.Field, "type", res.Type)
	return false
}

func (e *ConditionEvaluator) compareString(node *domain.ConditionNode, res fields.Resolution) bool {
	value, ok := fields.AsString(res.Value)
	if !ok {
		return e.mismatch(node, "string")
	}

	switch node.Operator {
	case domain.OpEquals:
		lit, ok := fields.AsString(node.Value)
		return ok && value == lit
	case domain.OpNotEquals:
		lit, ok := fields.AsString(node.Value)
		return ok && value != lit
	case domain.OpContains:
		lit, ok := fields.AsString(node.Value)
		return ok && strings.Contains(strings.ToLower(value), strings.ToLower(lit))
	case domain.OpStartsWith:
		lit, ok := fields.AsString(node.Value)
		return ok && strings.HasPrefix(strings.ToLower(value), strings.ToLower(lit))
	case domain.OpEndsWith:
		lit, ok := fields.AsString(node.Value)
		return ok && strings.HasSuffix(strings.ToLower(value), strings.ToLower(lit))
	case domain.OpIn:
		return stringInSet(value, node.Values)
	case domain.OpNotIn:
		return !stringInSet(value, node.Values)
	}
	return e.mismatch(node, "string")
}

func (e *ConditionEvaluator) compareNumber(node *domain.ConditionNode, res fields.Resolution) bool {
	value, ok := fields.AsNumber(res.Value)
	if !ok {
		return e.mismatch(node, "number")
	}

	switch node.Operator {
	case domain.OpEquals:
		lit, ok := fields.AsNumber(node.Value)
		return ok && value == lit
	case domain.OpNotEquals:
		lit, ok := fields.AsNumber(node.Value)
		return ok && value != lit
	case domain.OpGreaterThan:
		lit, ok := fields.AsNumber(node.Value)
		return ok && value > lit
	case domain.OpLessThan:
		lit, ok := fields.AsNumber(node.Value)
		return ok && value < lit
	case domain.OpGte:
		lit, ok := fields.AsNumber(node.Value)
		return ok && value >= lit
	case domain.OpLte:
		lit, ok := fields.AsNumber(node.Value)
		return ok && value <= lit
	case domain.OpBetween:
		// Inclusive bounds.
		if len(node.Values) != 2 {
			return e.mismatch(node, "number range")
		}
		lo, okLo := fields.AsNumber(node.Values[0])
		hi, okHi := fields.AsNumber(node.Values[1])
		return okLo && okHi && value >= lo && value <= hi
	}
	return e.mismatch(node, "number")
}

func (e *ConditionEvaluator) compareBoolean(node *domain.ConditionNode, res fields.Resolution) bool {
	value, ok := fields.AsBool(res.Value)
	if !ok {
		return e.mismatch(node, "boolean")
	}
	lit, ok := fields.AsBool(node.Value)
	if !ok {
		return e.mismatch(node, "boolean")
	}

	switch node.Operator {
	case domain.OpIs:
		return value == lit
	case domain.OpIsNot:
		return value != lit
	}
	return e.mismatch(node, "boolean")
}

// compareEnum validates literals against the field's declared option set.
// An invalid literal makes the comparison always false, never an exception.
// Matching is case-insensitive: import feeds and rule authors disagree on
// casing for values like "DDR4".
func (e *ConditionEvaluator) compareEnum(node *domain.ConditionNode, res fields.Resolution) bool {
	raw, ok := fields.AsString(res.Value)
	if !ok {
		return e.mismatch(node, "enum")
	}
	value := strings.ToLower(raw)

	switch node.Operator {
	case domain.OpEquals:
		lit, ok := validEnumLiteral(node.Value, res.Options)
		return ok && value == lit
	case domain.OpNotEquals:
		lit, ok := validEnumLiteral(node.Value, res.Options)
		return ok && value != lit
	case domain.OpIn, domain.OpNotIn:
		found := false
		for _, candidate := range node.Values {
			lit, ok := validEnumLiteral(candidate, res.Options)
			if ok && value == lit {
				found = true
				break
			}
		}
		if node.Operator == domain.OpIn {
			return found
		}
		return !found
	}
	return e.mismatch(node, "enum")
}

func (e *ConditionEvaluator) compareDate(node *domain.ConditionNode, res fields.Resolution) bool {
	value, ok := fields.AsTime(res.Value)
	if !ok {
		return e.mismatch(node, "date")
	}

	switch node.Operator {
	case domain.OpEquals:
		lit, ok := fields.AsTime(node.Value)
		return ok && value.Equal(lit)
	case domain.OpNotEquals:
		lit, ok := fields.AsTime(node.Value)
		return ok && !value.Equal(lit)
	case domain.OpGreaterThan:
		lit, ok := fields.AsTime(node.Value)
		return ok && value.After(lit)
	case domain.OpLessThan:
		lit, ok := fields.AsTime(node.Value)
		return ok && value.Before(lit)
	case domain.OpGte:
		lit, ok := fields.AsTime(node.Value)
		return ok && !value.Before(lit)
	case domain.OpLte:
		lit, ok := fields.AsTime(node.Value)
		return ok && !value.After(lit)
	case domain.OpBetween:
		if len(node.Values) != 2 {
			return e.mismatch(node, "date range")
		}
		lo, okLo := fields.AsTime(node.Values[0])
		hi, okHi := fields.AsTime(node.Values[1])
		return okLo && okHi && !value.Before(lo) && !value.After(hi)
	}
	return e.mismatch(node, "date")
}

// mismatch logs an operator/type incompatibility and degrades to false.
func (e *ConditionEvaluator) mismatch(node *domain.ConditionNode, fieldType string) bool {
	slog.Warn("operator incompatible with field type",
		"field", node.Field,
		"operator", node.Operator,
		"field_type", fieldType,
	)
	return false
}

func stringInSet(value string, set []any) bool {
	for _, candidate := range set {
		s, ok := fields.AsString(candidate)
		if ok && value == s {
			return true
		}
	}
	return false
}

// validEnumLiteral lowercases the literal and checks it against the
// declared option set.
func validEnumLiteral(literal any, options []string) (string, bool) {
	s, ok := fields.AsString(literal)
	if !ok {
		return "", false
	}
	s = strings.ToLower(s)
	for _, opt := range options {
		if s == strings.ToLower(opt) {
			return s, true
		}
	}
	return "", false
}
