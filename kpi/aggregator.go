/*
aggregator.go - Threshold-aware monthly aggregation of approved evaluations

ALGORITHM:
  1. Partition events by target. RESERVED_BONUS events convert fully to
     their absolute points value (no threshold, no weighting) and sum into
     a direct deduction against the reserved bonus pool.
  2. MONTHLY_SALARY events are grouped by criterion; within each group,
     events are sorted by CreatedAt ascending and counted. PENALTY criteria
     with Threshold = N contribute nothing for the first N occurrences and
     value% x weight% x targetSalary from the (N+1)th onward. BONUS
     criteria and threshold-0 PENALTY criteria contribute on every
     occurrence.
  3. Contributions sum across criteria into total bonus and total penalty
     money for the period.

SCOPE INVARIANT:
  The caller passes exactly one employee's APPROVED events for exactly one
  calendar month. Occurrence counting never crosses that boundary.
*/
package kpi

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// AGGREGATION RESULT
// =============================================================================

// CriterionResult is the per-criterion breakdown kept for audit.
type CriterionResult struct {
	CriterionID string
	Type        CriterionType
	Occurrences int
	Charged     int // occurrences that actually contributed
	Amount      payroll.Money
}

// Result is the monetary outcome of one employee-month aggregation.
type Result struct {
	// Weighted bonus money against the target salary.
	BonusTotal payroll.Money

	// Weighted penalty money against the target salary.
	PenaltyTotal payroll.Money

	// Absolute deduction against the reserved bonus pool.
	ReservedBonusDeduction payroll.Money

	// BonusFraction and PenaltyFraction are the weighted percentage sums
	// (CO_tc / TR_tc) exposed to the formula variable context.
	BonusFraction   decimal.Decimal
	PenaltyFraction decimal.Decimal

	PerCriterion []CriterionResult
}

// Aggregator folds approved evaluation events into monetary deltas.
type Aggregator struct {
	Catalog *Catalog
}

func NewAggregator(catalog *Catalog) *Aggregator {
	return &Aggregator{Catalog: catalog}
}

// Aggregate processes one employee's approved events for one month against
// the target salary base (efficiency salary, or zero for piecework
// employees whose money-target events deduct from the reserved pool
// instead).
func (a *Aggregator) Aggregate(events []payroll.EvaluationRequest, targetSalary payroll.Money) Result {
	result := Result{
		BonusTotal:             payroll.ZeroMoney(),
		PenaltyTotal:           payroll.ZeroMoney(),
		ReservedBonusDeduction: payroll.ZeroMoney(),
		BonusFraction:          decimal.Zero,
		PenaltyFraction:        decimal.Zero,
	}

	byCriterion := make(map[string][]payroll.EvaluationRequest)

	for _, ev := range events {
		if ev.Status != payroll.StatusApproved {
			continue
		}
		if ev.Target == payroll.TargetReservedBonus {
			// Direct money deduction: full points value, no threshold, no
			// weighting.
			result.ReservedBonusDeduction = result.ReservedBonusDeduction.Add(ev.Points)
			continue
		}
		byCriterion[ev.CriterionID] = append(byCriterion[ev.CriterionID], ev)
	}

	// Deterministic iteration order for idempotent output.
	ids := make([]string, 0, len(byCriterion))
	for id := range byCriterion {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	hundred := decimal.NewFromInt(100)

	for _, id := range ids {
		group := byCriterion[id]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})

		criterion, known := a.Catalog.Criterion(id)
		weight := a.Catalog.GroupWeight(id)

		cr := CriterionResult{
			CriterionID: id,
			Occurrences: len(group),
			Amount:      payroll.ZeroMoney(),
		}
		if known {
			cr.Type = criterion.Type
		}

		for i := range group {
			if !known {
				// Criterion was deleted after the event was raised; the
				// occurrence stays in history but contributes nothing.
				continue
			}

			// Grace allowance: the first Threshold chronological
			// occurrences of a penalty criterion are free.
			if criterion.Type == CriterionPenalty && criterion.Threshold > 0 && i < criterion.Threshold {
				continue
			}

			fraction := criterion.Value.Div(hundred).Mul(weight)
			amount := targetSalary.Mul(fraction)

			cr.Charged++
			cr.Amount = cr.Amount.Add(amount)

			switch criterion.Type {
			case CriterionBonus:
				result.BonusTotal = result.BonusTotal.Add(amount)
				result.BonusFraction = result.BonusFraction.Add(fraction)
			case CriterionPenalty:
				result.PenaltyTotal = result.PenaltyTotal.Add(amount)
				result.PenaltyFraction = result.PenaltyFraction.Add(fraction)
			}
		}

		result.PerCriterion = append(result.PerCriterion, cr)
	}

	return result
}
