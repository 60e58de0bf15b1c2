/*
compiler.go - Compiled formula cache

PURPOSE:
  Payroll recomputation evaluates the same handful of formulas for every
  employee every month. The Compiler parses each formula text once and
  caches the AST, so per-employee evaluation is a pure tree walk with no
  string handling.

CACHE KEY:
  The formula text itself. Editing a formula produces a new text and
  therefore a new cache entry; stale entries are harmless and bounded by
  the number of distinct formula versions seen by the process.
*/
package formula

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Compiled is a parsed formula ready for repeated evaluation.
type Compiled struct {
	Expression string
	Root       Node

	// Variables referenced by the expression, in first-appearance order.
	Variables []string
}

// Evaluate resolves the compiled expression against a variable map.
// Unknown variables resolve to zero; division by zero yields zero.
func (c *Compiled) Evaluate(vars map[string]decimal.Decimal) decimal.Decimal {
	return c.Root.Evaluate(vars)
}

// Compiler parses and caches formula expressions.
type Compiler struct {
	mu    sync.RWMutex
	cache map[string]*Compiled
}

func NewCompiler() *Compiler {
	return &Compiler{cache: make(map[string]*Compiled)}
}

// Compile returns the compiled form of the expression, parsing at most once
// per distinct text.
func (c *Compiler) Compile(expression string) (*Compiled, error) {
	c.mu.RLock()
	compiled, ok := c.cache[expression]
	c.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	root, vars, err := Parse(expression)
	if err != nil {
		return nil, err
	}

	compiled = &Compiled{Expression: expression, Root: root, Variables: vars}

	c.mu.Lock()
	c.cache[expression] = compiled
	c.mu.Unlock()

	return compiled, nil
}

// MustCompile compiles or panics. For tests and static defaults only.
func (c *Compiler) MustCompile(expression string) *Compiled {
	compiled, err := c.Compile(expression)
	if err != nil {
		panic(err)
	}
	return compiled
}
