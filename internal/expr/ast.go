package expr

// node is the interface for AST nodes. The tree is immutable after parsing
// and safe to share across concurrent evaluations.
type node interface {
	eval(env Env) (float64, error)
}

type numberNode struct {
	value float64
}

type fieldNode struct {
	path string
}

type unaryNode struct {
	op      tokenKind // tokMinus
	operand node
}

type binaryNode struct {
	op    tokenKind
	left  node
	right node
}

type callNode struct {
	fn   string
	args []node
}

// Expr is a parsed formula. Parse once, evaluate many times: parsing cost
// is paid per distinct formula text, evaluation cost per listing.
type Expr struct {
	root   node
	source string
	fields []string
}

// Source returns the original formula text.
func (e *Expr) Source() string {
	return e.source
}

// Fields returns the field paths the formula references, in first-seen
// order. Used by ruleset validation to check references against the schema.
func (e *Expr) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}
