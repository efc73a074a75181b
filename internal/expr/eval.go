package expr

import (
	"fmt"
	"math"
)

// Env supplies numeric bindings for field references during evaluation.
type Env interface {
	// Lookup returns the numeric value of a field path, or an error when
	// the field is unknown, absent, or not numeric.
	Lookup(path string) (float64, error)
}

// MapEnv is a simple Env over a flat map, used in tests and one-off
// evaluations.
type MapEnv map[string]float64

// Lookup implements Env.
func (m MapEnv) Lookup(path string) (float64, error) {
	v, ok := m[path]
	if !ok {
		return 0, &EvalError{Msg: fmt.Sprintf("unknown field %q", path)}
	}
	return v, nil
}

// Evaluate walks the AST against the environment. Division by zero and
// out-of-domain math return a typed *EvalError instead of letting NaN or
// Inf propagate silently. No rounding is applied here; currency rounding
// happens once on the final adjustment.
func (e *Expr) Evaluate(env Env) (float64, error) {
	return e.root.eval(env)
}

func (n *numberNode) eval(Env) (float64, error) {
	return n.value, nil
}

func (n *fieldNode) eval(env Env) (float64, error) {
	v, err := env.Lookup(n.path)
	if err != nil {
		if _, ok := err.(*EvalError); ok {
			return 0, err
		}
		return 0, &EvalError{Msg: fmt.Sprintf("field %q: %v", n.path, err)}
	}
	return v, nil
}

func (n *unaryNode) eval(env Env) (float64, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return 0, err
	}
	return -v, nil
}

func (n *binaryNode) eval(env Env) (float64, error) {
	left, err := n.left.eval(env)
	if err != nil {
		return 0, err
	}
	right, err := n.right.eval(env)
	if err != nil {
		return 0, err
	}

	var out float64
	switch n.op {
	case tokPlus:
		out = left + right
	case tokMinus:
		out = left - right
	case tokStar:
		out = left * right
	case tokSlash:
		if right == 0 {
			return 0, &EvalError{Msg: "division by zero"}
		}
		out = left / right
	default:
		return 0, &EvalError{Msg: "unsupported operator"}
	}

	if math.IsInf(out, 0) || math.IsNaN(out) {
		return 0, &EvalError{Msg: "non-finite result"}
	}
	return out, nil
}

func (n *callNode) eval(env Env) (float64, error) {
	args := make([]float64, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(env)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}

	switch n.fn {
	case "min":
		out := args[0]
		for _, v := range args[1:] {
			out = math.Min(out, v)
		}
		return out, nil
	case "max":
		out := args[0]
		for _, v := range args[1:] {
			out = math.Max(out, v)
		}
		return out, nil
	case "clamp":
		v, lo, hi := args[0], args[1], args[2]
		if lo > hi {
			return 0, &EvalError{Msg: fmt.Sprintf("clamp bounds inverted: lo %g > hi %g", lo, hi)}
		}
		return math.Min(math.Max(v, lo), hi), nil
	case "round":
		return math.Round(args[0]), nil
	case "sqrt":
		if args[0] < 0 {
			return 0, &EvalError{Msg: fmt.Sprintf("sqrt of negative value %g", args[0])}
		}
		return math.Sqrt(args[0]), nil
	case "abs":
		return math.Abs(args[0]), nil
	}
	return 0, &EvalError{Msg: fmt.Sprintf("unknown function %q", n.fn)}
}
