package salary

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// SENIORITY COEFFICIENT - Tenure step function
// =============================================================================

// SeniorityCoefficient maps tenure in months to a multiplier via the
// configured rule table. The first rule where minMonths <= tenure <
// maxMonths wins (maxMonths zero means open-ended). A linear scan of a
// step function: no interpolation between bands, zero when no rule matches.
func SeniorityCoefficient(rules []payroll.SeniorityRule, tenureMonths int) decimal.Decimal {
	for _, r := range rules {
		if tenureMonths < r.MinMonths {
			continue
		}
		if r.MaxMonths == 0 || tenureMonths < r.MaxMonths {
			return r.Coefficient
		}
	}
	return decimal.Zero
}
