package rules

import (
	"sync"

	"github.com/miethe/deal-brain-sub014/internal/expr"
)

// FormulaCache parses each distinct formula text once and shares the
// immutable AST across evaluations. Read-mostly: bulk runs over thousands
// of listings hit the read lock only.
type FormulaCache struct {
	mu      sync.RWMutex
	entries map[string]*expr.Expr
}

// NewFormulaCache creates an empty formula cache.
func NewFormulaCache() *FormulaCache {
	return &FormulaCache{entries: make(map[string]*expr.Expr)}
}

// Get returns the parsed AST for a formula, parsing and caching it on the
// first call. Parse failures are not cached; the malformed text is the
// rule author's to fix and the miss path is cold anyway.
func (c *FormulaCache) Get(text string) (*expr.Expr, error) {
	c.mu.RLock()
	e, ok := c.entries[text]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}

	parsed, err := expr.Parse(text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[text] = parsed
	c.mu.Unlock()
	return parsed, nil
}

// Len returns the number of cached formulas.
func (c *FormulaCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
