/*
Package formula implements the salary formula expression language.

PURPOSE:
  Salary formulas are stored as strings like

      ({LCB_dm} / Ctc) * Ctt + CO_tc * LHQ_dm

  combining variable references (bare identifiers or legacy brace-delimited
  tokens), the four arithmetic operators, and parentheses. This package compiles
  a formula string into a typed expression tree once, caches the result, and
  evaluates the tree against a per-employee variable map on every payroll
  run.

KEY CONCEPTS:
  - Node: Tagged expression-tree variant (Literal | VariableRef | BinaryOp)
  - Compiler: Parses and caches ASTs keyed by formula text
  - Evaluate: Resolves variables from a map; unknown variables are zero

EVALUATION POLICY (explicit, tested branches):
  - Unknown variable resolves to 0. Formula editing stays forgiving: a
    formula may reference a variable before it is wired, without blocking
    calculation.
  - Division by zero yields 0. Arithmetic never aborts a payroll run.

VALIDATION:
  Authoring-time validation (charset, balanced parentheses, parseability)
  lives in validate.go. Validation failures block saving a formula but never
  block evaluation of already-saved formulas.

SEE ALSO:
  - parser.go: Lexer and recursive-descent parser
  - validate.go: Authoring-time validation
  - salary/compositor.go: Evaluates formulas in ascending order
*/
package formula

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AST - Tagged expression tree
// =============================================================================

// Node is one node of a compiled formula expression tree.
type Node interface {
	// Evaluate resolves the node against the variable map.
	Evaluate(vars map[string]decimal.Decimal) decimal.Decimal
}

// Literal is a numeric constant.
type Literal struct {
	Value decimal.Decimal
}

func (l *Literal) Evaluate(map[string]decimal.Decimal) decimal.Decimal { return l.Value }

// VariableRef resolves a named variable. Unknown names resolve to zero.
type VariableRef struct {
	Name string
}

func (v *VariableRef) Evaluate(vars map[string]decimal.Decimal) decimal.Decimal {
	if val, ok := vars[v.Name]; ok {
		return val
	}
	return decimal.Zero
}

// Operator is one of the four arithmetic operators.
type Operator byte

const (
	OpAdd Operator = '+'
	OpSub Operator = '-'
	OpMul Operator = '*'
	OpDiv Operator = '/'
)

// BinaryOp applies an operator to two subtrees.
type BinaryOp struct {
	Op    Operator
	Left  Node
	Right Node
}

func (b *BinaryOp) Evaluate(vars map[string]decimal.Decimal) decimal.Decimal {
	left := b.Left.Evaluate(vars)
	right := b.Right.Evaluate(vars)

	switch b.Op {
	case OpAdd:
		return left.Add(right)
	case OpSub:
		return left.Sub(right)
	case OpMul:
		return left.Mul(right)
	case OpDiv:
		// Division by zero yields zero rather than aborting the run.
		if right.IsZero() {
			return decimal.Zero
		}
		return left.Div(right)
	default:
		return decimal.Zero
	}
}

// =============================================================================
// SALARY FORMULA - Definition evaluated by the compositor
// =============================================================================

// SalaryFormula is a configured formula targeting one salary record field.
// The compositor evaluates active formulas in ascending Order, feeding each
// result back into the variable map so later formulas can reference earlier
// targets.
type SalaryFormula struct {
	ID          string
	Name        string
	TargetField string // variable name the result is bound to
	Expression  string
	Order       int
	Active      bool
}
