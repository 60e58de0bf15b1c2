/*
Package kpi implements evaluation criteria and the monthly bonus/penalty
aggregation.

PURPOSE:
  KPI evaluation events (bonuses and penalties) are raised against
  configured criteria throughout the month and individually approved via
  the workflow engine. At payroll time this package folds the month's
  APPROVED events into monetary deltas:

    - MONTHLY_SALARY events adjust the employee's efficiency (or piecework)
      salary, as value% x group-weight% x target salary
    - RESERVED_BONUS events deduct absolute amounts from the employee's
      earmarked penalty pool

GRACE THRESHOLDS:
  A PENALTY criterion with Threshold = N forgives the first N occurrences
  per employee per calendar month; the (N+1)th occurrence onward is
  charged. This reproduces the "first two late arrivals per month are
  free" disciplinary policy while keeping every occurrence in the audit
  history. Thresholds never carry over between months.

SEE ALSO:
  - aggregator.go: The aggregation algorithm
  - salary/compositor.go: Merges aggregation output into the salary record
*/
package kpi

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// CRITERIA
// =============================================================================

type CriterionType string

const (
	CriterionBonus   CriterionType = "BONUS"
	CriterionPenalty CriterionType = "PENALTY"
)

// CriterionGroup carries a weight percentage. All group weights together
// should sum to 100; the configuration factory warns when they do not.
type CriterionGroup struct {
	ID     string
	Name   string
	Weight decimal.Decimal // percentage, e.g. 40 for 40%
}

// Criterion is one configured evaluation rule.
type Criterion struct {
	ID      string
	GroupID string
	Name    string
	Type    CriterionType

	// Percentage of the target salary charged/awarded per occurrence.
	Value decimal.Decimal

	// Grace count for PENALTY criteria: occurrences 1..Threshold in a month
	// are free, Threshold+1 onward are charged. Zero means every occurrence
	// is charged.
	Threshold int
}

// Catalog bundles criteria and groups for lookup during aggregation.
type Catalog struct {
	criteria map[string]Criterion
	groups   map[string]CriterionGroup
}

func NewCatalog(criteria []Criterion, groups []CriterionGroup) *Catalog {
	c := &Catalog{
		criteria: make(map[string]Criterion, len(criteria)),
		groups:   make(map[string]CriterionGroup, len(groups)),
	}
	for _, cr := range criteria {
		c.criteria[cr.ID] = cr
	}
	for _, g := range groups {
		c.groups[g.ID] = g
	}
	return c
}

// Criterion looks up a criterion by ID.
func (c *Catalog) Criterion(id string) (Criterion, bool) {
	cr, ok := c.criteria[id]
	return cr, ok
}

// GroupWeight returns the weight fraction (weight% / 100) for the group the
// criterion belongs to. Unknown groups weigh zero.
func (c *Catalog) GroupWeight(criterionID string) decimal.Decimal {
	cr, ok := c.criteria[criterionID]
	if !ok {
		return decimal.Zero
	}
	g, ok := c.groups[cr.GroupID]
	if !ok {
		return decimal.Zero
	}
	return g.Weight.Div(decimal.NewFromInt(100))
}

// WeightSum returns the total of all group weights. Used by configuration
// validation; 100 is the expected value.
func (c *Catalog) WeightSum() decimal.Decimal {
	sum := decimal.Zero
	for _, g := range c.groups {
		sum = sum.Add(g.Weight)
	}
	return sum
}
