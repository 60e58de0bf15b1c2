/*
variables.go - Variable context assembly for formula evaluation

PURPOSE:
  Builds the flat name -> number map every salary formula is evaluated
  against. The map covers normative amounts from the grade, monthly
  attendance aggregates, KPI aggregates, employee attributes, and system
  constants. Building the context is a pure function of its inputs - no
  store access, no clock access.

NAMING:
  Variable names are the stable, persisted vocabulary of the formula DSL
  (Vietnamese payroll shorthand kept for backward compatibility with saved
  formulas): LCB = normative base, LHQ = efficiency, LSL = piecework,
  Ctc/Ctt = standard/actual work days, HS_tn = seniority coefficient.

PIECEWORK ZEROING:
  LHQ_dm resolves to 0 whenever the employee is paid by piecework,
  regardless of the stored efficiency salary - piecework employees are
  compensated through LSL_dm instead.
*/
package salary

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/kpi"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// VARIABLE NAMES - The persisted formula vocabulary
// =============================================================================

const (
	VarBaseSalaryNorm       = "LCB_dm"   // normative base salary
	VarEfficiencySalaryNorm = "LHQ_dm"   // normative efficiency salary
	VarPieceworkSalaryNorm  = "LSL_dm"   // normative piecework salary
	VarPieceworkQuantity    = "SL_khoan" // normative piecework quantity
	VarPieceworkUnitPrice   = "DG_khoan" // piecework unit price

	VarStandardWorkDays = "Ctc"   // standard work days of the month
	VarActualWorkUnits  = "Ctt"   // actual worked units
	VarDailyWorkDays    = "Cn"    // daily-type work days
	VarPaidLeaveDays    = "NCD"   // paid leave
	VarHolidayDays      = "NL"    // public holidays
	VarModeLeaveDays    = "NCL"   // mode/regime leave
	VarUnpaidDays       = "NKL"   // unpaid leave
	VarWaitingDays      = "NCV"   // waiting-for-work days
	VarActualOutput     = "SL_tt" // actual piecework output
	VarOvertimeWeighted = "OT_tc" // overtime hours weighted by OT rate

	VarBonusFraction   = "CO_tc" // total weighted bonus fraction
	VarPenaltyFraction = "TR_tc" // total weighted penalty fraction

	VarSeniorityCoefficient = "HS_tn"
	VarProbationRate        = "PROBATION_RATE"
	VarDependents           = "NUMBER_OF_DEPENDENTS"

	VarPersonalRelief   = "PERSONAL_RELIEF"
	VarDependentRelief  = "DEPENDENT_RELIEF"
	VarInsuranceRate    = "INSURANCE_RATE"
	VarUnionFeeRate     = "UNION_FEE_RATE"
	VarMaxInsuranceBase = "MAX_INSURANCE_BASE"
)

// =============================================================================
// STANDARD WORK DAYS
// =============================================================================

// StandardWorkDays returns the number of standard work days in the month
// under the six-day work week: every day except Sundays. A typical month
// yields 26.
func StandardWorkDays(month payroll.Month) int {
	days := 0
	for d := month.Start(); month.Contains(d); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Sunday {
			days++
		}
	}
	return days
}

// =============================================================================
// CONTEXT BUILDER
// =============================================================================

// ContextInput bundles the resolved inputs for one employee-month.
type ContextInput struct {
	Employee *payroll.Employee
	Grade    *payroll.SalaryGrade
	Month    payroll.Month
	Config   *payroll.SystemConfig

	// Attendance records for the month; only APPROVED ones aggregate.
	Attendance []payroll.AttendanceRecord

	// Pre-aggregated KPI outcome for the month.
	KPI kpi.Result
}

// BuildContext assembles the variable map. Pure function: identical inputs
// produce an identical map.
func BuildContext(in ContextInput) map[string]decimal.Decimal {
	emp := in.Employee
	grade := in.Grade
	summary := payroll.SummarizeAttendance(in.Attendance)

	vars := make(map[string]decimal.Decimal, 32)

	// Normative amounts.
	vars[VarBaseSalaryNorm] = grade.BaseSalary.Value
	if emp.PaymentType == payroll.PaymentPiecework {
		// Piecework employees have no efficiency salary, whatever is stored.
		vars[VarEfficiencySalaryNorm] = decimal.Zero
	} else {
		vars[VarEfficiencySalaryNorm] = emp.EfficiencySalary.Value
	}
	vars[VarPieceworkUnitPrice] = emp.PieceworkUnitPrice.Value
	vars[VarPieceworkQuantity] = decimal.NewFromFloat(emp.PieceworkNormQuantity)
	vars[VarPieceworkSalaryNorm] = emp.PieceworkUnitPrice.Value.Mul(decimal.NewFromFloat(emp.PieceworkNormQuantity))

	// Attendance aggregates.
	vars[VarStandardWorkDays] = decimal.NewFromInt(int64(StandardWorkDays(in.Month)))
	vars[VarActualWorkUnits] = decimal.NewFromFloat(summary.WorkUnits)
	vars[VarDailyWorkDays] = decimal.NewFromFloat(summary.DailyWorkDays)
	vars[VarPaidLeaveDays] = decimal.NewFromFloat(summary.PaidLeaveDays)
	vars[VarHolidayDays] = decimal.NewFromFloat(summary.HolidayDays)
	vars[VarModeLeaveDays] = decimal.NewFromFloat(summary.ModeLeaveDays)
	vars[VarUnpaidDays] = decimal.NewFromFloat(summary.UnpaidDays)
	vars[VarWaitingDays] = decimal.NewFromFloat(summary.WaitingDays)
	vars[VarActualOutput] = decimal.NewFromFloat(summary.Output)
	vars[VarOvertimeWeighted] = decimal.NewFromFloat(summary.OvertimeHours)

	// KPI aggregates.
	vars[VarBonusFraction] = in.KPI.BonusFraction
	vars[VarPenaltyFraction] = in.KPI.PenaltyFraction

	// Employee attributes.
	tenure := payroll.TenureMonths(emp.JoinedAt, in.Month)
	vars[VarSeniorityCoefficient] = SeniorityCoefficient(in.Config.SeniorityRules, tenure)
	vars[VarProbationRate] = emp.ProbationRate
	vars[VarDependents] = decimal.NewFromInt(int64(emp.NumberOfDependents))

	// System constants.
	vars[VarPersonalRelief] = in.Config.PersonalRelief.Value
	vars[VarDependentRelief] = in.Config.DependentRelief.Value
	vars[VarInsuranceRate] = in.Config.InsuranceRate
	vars[VarUnionFeeRate] = in.Config.UnionFeeRate
	vars[VarMaxInsuranceBase] = in.Config.MaxInsuranceBase.Value

	return vars
}
