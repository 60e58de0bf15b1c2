/*
Package salary implements the monthly salary computation pipeline: variable
context assembly, progressive tax, seniority coefficients, the record
compositor, and the batch recompute runner.

PURPOSE:
  This is the orchestration layer of the engine. Leaf calculators (formula
  evaluation, KPI aggregation, tax, seniority) are pure functions of their
  inputs; the compositor wires them together to populate one employee's
  salary record for one month.

SEE ALSO:
  - variables.go: Variable context builder
  - compositor.go: Record composition and guards
  - recompute.go: Batch recomputation with partial-failure isolation
*/
package salary

import (
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// PROGRESSIVE TAX - Vietnamese quick-subtraction method
// =============================================================================

// TaxTable computes personal income tax from configured brackets.
type TaxTable struct {
	Steps []payroll.PITStep
}

func NewTaxTable(steps []payroll.PITStep) *TaxTable {
	return &TaxTable{Steps: steps}
}

// Compute returns the tax due on the given taxable income using the quick
// subtraction method: find the bracket whose threshold is the smallest
// value >= taxable income (threshold zero marks the unbounded top bracket),
// then tax = taxable x rate - subtraction. Each bracket's subtraction is
// precomputed so the formula stays continuous at band boundaries.
//
// Taxable income <= 0 yields zero tax with no bracket lookup.
func (t *TaxTable) Compute(taxable payroll.Money) payroll.Money {
	if taxable.IsZero() || taxable.IsNegative() {
		return payroll.ZeroMoney()
	}

	for _, step := range t.Steps {
		if step.Threshold.IsZero() {
			// Unbounded top bracket.
			return taxable.Mul(step.Rate).Sub(step.Subtraction)
		}
		if !taxable.GreaterThan(step.Threshold) {
			return taxable.Mul(step.Rate).Sub(step.Subtraction)
		}
	}

	// Income exceeds every bounded bracket and no unbounded step is
	// configured: apply the last bracket.
	if n := len(t.Steps); n > 0 {
		step := t.Steps[n-1]
		return taxable.Mul(step.Rate).Sub(step.Subtraction)
	}
	return payroll.ZeroMoney()
}
