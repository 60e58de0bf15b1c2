/*
defaults.go - Production-ready default configuration

PURPOSE:
  Ships the configuration a fresh install starts from: the Vietnamese
  monthly PIT table with quick-subtraction amounts, statutory reliefs and
  rates, a three-band seniority table, and one workflow version per
  content type.

  Every amount is adjustable at runtime through the config API; these are
  starting values, not constants the engine depends on.
*/
package factory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/payroll"
)

// Default role identifiers referenced by the default workflows.
const (
	RolePayrollStaff  payroll.RoleID = "payroll_staff"
	RoleApprover      payroll.RoleID = "approver"
	RoleHRAuditor     payroll.RoleID = "hr_auditor"
	RoleAdmin         payroll.RoleID = "admin"
	RoleDepartmentMgr payroll.RoleID = "department_manager"
)

// DefaultSystemConfig returns the out-of-the-box configuration.
func DefaultSystemConfig() *payroll.SystemConfig {
	rate := func(pct int64) decimal.Decimal { return decimal.New(pct, -2) }

	return &payroll.SystemConfig{
		// Monthly PIT bands with precomputed quick-subtraction amounts.
		PITSteps: []payroll.PITStep{
			{Label: "up to 5M", Threshold: payroll.NewMoney(5_000_000), Rate: rate(5), Subtraction: payroll.ZeroMoney()},
			{Label: "5M to 10M", Threshold: payroll.NewMoney(10_000_000), Rate: rate(10), Subtraction: payroll.NewMoney(250_000)},
			{Label: "10M to 18M", Threshold: payroll.NewMoney(18_000_000), Rate: rate(15), Subtraction: payroll.NewMoney(750_000)},
			{Label: "18M to 32M", Threshold: payroll.NewMoney(32_000_000), Rate: rate(20), Subtraction: payroll.NewMoney(1_650_000)},
			{Label: "32M to 52M", Threshold: payroll.NewMoney(52_000_000), Rate: rate(25), Subtraction: payroll.NewMoney(3_250_000)},
			{Label: "52M to 80M", Threshold: payroll.NewMoney(80_000_000), Rate: rate(30), Subtraction: payroll.NewMoney(5_850_000)},
			{Label: "over 80M", Threshold: payroll.ZeroMoney(), Rate: rate(35), Subtraction: payroll.NewMoney(9_850_000)},
		},

		SeniorityRules: []payroll.SeniorityRule{
			{MinMonths: 0, MaxMonths: 12, Coefficient: decimal.Zero},
			{MinMonths: 12, MaxMonths: 36, Coefficient: decimal.NewFromFloat(0.5)},
			{MinMonths: 36, MaxMonths: 0, Coefficient: decimal.NewFromInt(1)},
		},

		PersonalRelief:  payroll.NewMoney(11_000_000),
		DependentRelief: payroll.NewMoney(4_400_000),

		// Employee share of social, health, and unemployment insurance.
		InsuranceRate: decimal.NewFromFloat(0.105),
		UnionFeeRate:  decimal.NewFromFloat(0.01),

		MaxInsuranceBase: payroll.NewMoney(36_000_000),

		HRAutoApproveHours:  48,
		MaxHoursForHRReview: 72,

		Workflows: defaultWorkflows(),
	}
}

func defaultWorkflows() []payroll.ApprovalWorkflow {
	from := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	mk := func(id string, ct payroll.ContentType) payroll.ApprovalWorkflow {
		return payroll.ApprovalWorkflow{
			ID:               id,
			ContentType:      ct,
			InitiatorRoleIDs: []payroll.RoleID{RolePayrollStaff},
			ApproverRoleIDs:  []payroll.RoleID{RoleApprover, RoleDepartmentMgr},
			AuditorRoleIDs:   []payroll.RoleID{RoleHRAuditor},
			EffectiveFrom:    from,
		}
	}

	return []payroll.ApprovalWorkflow{
		mk("wf-attendance-v1", payroll.ContentAttendance),
		mk("wf-evaluation-v1", payroll.ContentEvaluation),
		mk("wf-salary-v1", payroll.ContentSalary),
	}
}

// DefaultFormulas returns the standard pro-rating formulas a fresh install
// starts from.
func DefaultFormulas() []formula.SalaryFormula {
	return []formula.SalaryFormula{
		{
			ID:          "f-actual-base",
			Name:        "Actual base salary",
			TargetField: "ACTUAL_BASE_SALARY",
			Expression:  "LCB_dm / Ctc * (Ctt + Cn + NL + NCD + NCL)",
			Order:       10,
			Active:      true,
		},
		{
			ID:          "f-actual-efficiency",
			Name:        "Actual efficiency salary",
			TargetField: "ACTUAL_EFFICIENCY_SALARY",
			Expression:  "LHQ_dm / Ctc * Ctt",
			Order:       20,
			Active:      true,
		},
		{
			ID:          "f-actual-piecework",
			Name:        "Actual piecework salary",
			TargetField: "ACTUAL_PIECEWORK_SALARY",
			Expression:  "DG_khoan * SL_tt",
			Order:       30,
			Active:      true,
		},
		{
			ID:          "f-overtime",
			Name:        "Overtime pay",
			TargetField: "OTHER_SALARY",
			Expression:  "LCB_dm / Ctc / 8 * OT_tc",
			Order:       40,
			Active:      true,
		},
	}
}
