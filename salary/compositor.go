/*
compositor.go - Monthly salary record composition

PURPOSE:
  Produces (or refreshes) one employee's salary record for one month by
  orchestrating the leaf calculators:

    1. Resolve the configuration snapshot (once per run, never mid-flight)
    2. Aggregate approved attendance and approved KPI evaluations
    3. Build the variable context
    4. Evaluate active formulas in ascending order, binding each result
       back into the context so later formulas can reference earlier ones
    5. Compute insurance, union fee, and progressive PIT
    6. Merge KPI money into the efficiency/piecework actuals and the
       reserved bonus depletion; scale the grade's fixed bonus by the
       seniority coefficient
    7. Fold in preserved manual adjustments and advance payment
    8. Round each monetary field once at record assembly

IDEMPOTENCE:
  The record is a pure derived view: recomputing with unchanged inputs
  yields field-identical output. Manual adjustments and the advance
  payment are the only human-appended state and are preserved verbatim.

GUARD:
  Once the record leaves DRAFT, the compositor refuses to overwrite it.
  Only an explicit rejection back to DRAFT re-opens it.

ROUNDING POLICY:
  Full decimal precision is carried through evaluation; each monetary
  field is rounded to a whole currency unit exactly once, when assigned to
  the record. Net salary is computed from the rounded components.
*/
package salary

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/kpi"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// FORMULA SOURCE
// =============================================================================

// FormulaSource supplies the configured salary formulas.
type FormulaSource interface {
	// ListActiveFormulas returns active formulas in ascending Order.
	ListActiveFormulas(ctx context.Context) ([]formula.SalaryFormula, error)
}

// Formula target fields the compositor maps onto record fields. A formula
// whose TargetField is not listed here still binds its result into the
// variable context for later formulas.
const (
	TargetActualBaseSalary       = "ACTUAL_BASE_SALARY"
	TargetActualEfficiencySalary = "ACTUAL_EFFICIENCY_SALARY"
	TargetActualPieceworkSalary  = "ACTUAL_PIECEWORK_SALARY"
	TargetOtherSalary            = "OTHER_SALARY"
	TargetTotalAllowance         = "TOTAL_ALLOWANCE"
	TargetOtherDeductions        = "OTHER_DEDUCTIONS"
)

// =============================================================================
// COMPOSITOR
// =============================================================================

// Compositor builds salary records from their inputs.
type Compositor struct {
	Directory   payroll.Directory
	Attendance  payroll.AttendanceStore
	Evaluations payroll.EvaluationStore
	Salaries    payroll.SalaryStore
	Config      payroll.ConfigProvider
	Formulas    FormulaSource

	Compiler *formula.Compiler
	Catalog  *kpi.Catalog
}

// Compose recomputes the salary record for one employee-month and persists
// it. The previous record's adjustments, advance payment, and identity are
// preserved. Returns ErrRecordLocked when the record has left DRAFT.
func (c *Compositor) Compose(ctx context.Context, employeeID payroll.EmployeeID, month payroll.Month) (*payroll.SalaryRecord, error) {
	cfg, err := c.Config.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving config snapshot: %w", err)
	}

	existing, err := c.Salaries.GetSalaryRecord(ctx, employeeID, month)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status != payroll.StatusDraft {
		return nil, &payroll.RecordLockedError{RecordID: existing.ID, Status: existing.Status}
	}

	record, err := c.compute(ctx, employeeID, month, cfg, existing)
	if err != nil {
		return nil, err
	}

	// Atomic per employee-month: the record is written only after the full
	// computation succeeded, so partial field updates are never visible.
	if err := c.Salaries.UpsertSalaryRecord(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// compute builds the record without persisting it.
func (c *Compositor) compute(ctx context.Context, employeeID payroll.EmployeeID, month payroll.Month, cfg *payroll.SystemConfig, existing *payroll.SalaryRecord) (*payroll.SalaryRecord, error) {
	emp, err := c.Directory.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	grade, err := c.Directory.GetGrade(ctx, emp.Assignment.GradeID)
	if err != nil {
		return nil, err
	}

	attendance, err := c.Attendance.ListAttendance(ctx, employeeID, month)
	if err != nil {
		return nil, err
	}
	evaluations, err := c.Evaluations.ListApprovedEvaluations(ctx, employeeID, month)
	if err != nil {
		return nil, err
	}

	// Target salary base for KPI: the efficiency salary, or zero for
	// piecework employees (their money-target events hit the reserved pool).
	target := emp.EfficiencySalary
	if emp.PaymentType == payroll.PaymentPiecework {
		target = payroll.ZeroMoney()
	}
	aggregated := kpi.NewAggregator(c.Catalog).Aggregate(evaluations, target)

	vars := BuildContext(ContextInput{
		Employee:   emp,
		Grade:      grade,
		Month:      month,
		Config:     cfg,
		Attendance: attendance,
		KPI:        aggregated,
	})

	record := c.freshRecord(emp, month, existing)

	record.BaseSalaryNorm = payroll.NewMoneyFromDecimal(vars[VarBaseSalaryNorm]).RoundToUnit()
	record.EfficiencySalaryNorm = payroll.NewMoneyFromDecimal(vars[VarEfficiencySalaryNorm]).RoundToUnit()
	record.PieceworkSalaryNorm = payroll.NewMoneyFromDecimal(vars[VarPieceworkSalaryNorm]).RoundToUnit()

	// Evaluate formulas in ascending order, binding each result back into
	// the context.
	formulas, err := c.Formulas.ListActiveFormulas(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range formulas {
		if !f.Active {
			continue
		}
		compiled, err := c.Compiler.Compile(f.Expression)
		if err != nil {
			// A saved formula failing to compile is a configuration defect;
			// it must not abort the whole record.
			continue
		}
		result := compiled.Evaluate(vars)
		vars[f.TargetField] = result

		amount := payroll.NewMoneyFromDecimal(result).RoundToUnit()
		switch f.TargetField {
		case TargetActualBaseSalary:
			record.ActualBaseSalary = amount
		case TargetActualEfficiencySalary:
			record.ActualEfficiencySalary = amount
		case TargetActualPieceworkSalary:
			record.ActualPieceworkSalary = amount
		case TargetOtherSalary:
			record.OtherSalary = amount
		case TargetTotalAllowance:
			record.TotalAllowance = amount
		case TargetOtherDeductions:
			record.OtherDeductions = amount
		}
	}

	// Merge KPI money into the actuals for the employee's payment type.
	kpiDelta := aggregated.BonusTotal.Sub(aggregated.PenaltyTotal)
	if emp.PaymentType == payroll.PaymentPiecework {
		record.ActualPieceworkSalary = record.ActualPieceworkSalary.Add(kpiDelta).RoundToUnit()
	} else {
		record.ActualEfficiencySalary = record.ActualEfficiencySalary.Add(kpiDelta).RoundToUnit()
	}
	record.ReservedBonusDeduction = aggregated.ReservedBonusDeduction.Min(emp.ReservedBonusAmount).RoundToUnit()

	// The grade's month-indexed fixed bonus is seniority-scaled.
	seniority := vars[VarSeniorityCoefficient]
	record.TotalBonus = grade.FixedBonusFor(month).Mul(seniority).RoundToUnit()

	if record.TotalAllowance.IsZero() {
		record.TotalAllowance = grade.FixedAllowance.RoundToUnit()
	}

	// Statutory deductions on the capped normative base.
	insuranceBase := record.BaseSalaryNorm
	if !cfg.MaxInsuranceBase.IsZero() {
		insuranceBase = insuranceBase.Min(cfg.MaxInsuranceBase)
	}
	record.InsuranceDeduction = insuranceBase.Mul(cfg.InsuranceRate).RoundToUnit()
	record.UnionFee = insuranceBase.Mul(cfg.UnionFeeRate).RoundToUnit()

	record.CalculatedSalary = record.ActualBaseSalary.
		Add(record.ActualEfficiencySalary).
		Add(record.ActualPieceworkSalary).
		Add(record.OtherSalary).
		Add(record.TotalAllowance).
		Add(record.TotalBonus).
		RoundToUnit()

	// Progressive PIT on gross minus statutory deductions and reliefs.
	relief := cfg.PersonalRelief.
		Add(cfg.DependentRelief.Mul(vars[VarDependents]))
	taxable := record.CalculatedSalary.
		Sub(record.InsuranceDeduction).
		Sub(record.UnionFee).
		Sub(relief)
	record.PITDeduction = NewTaxTable(cfg.PITSteps).Compute(taxable).RoundToUnit()
	if record.PITDeduction.IsNegative() {
		record.PITDeduction = payroll.ZeroMoney()
	}

	record.NetSalary = record.CalculatedSalary.
		Sub(record.InsuranceDeduction).
		Sub(record.PITDeduction).
		Sub(record.UnionFee).
		Sub(record.AdvancePayment).
		Sub(record.OtherDeductions).
		Add(record.AdjustmentTotal()).
		RoundToUnit()

	return record, nil
}

// freshRecord starts a new computation result, preserving the previous
// record's identity and human-appended state verbatim.
func (c *Compositor) freshRecord(emp *payroll.Employee, month payroll.Month, existing *payroll.SalaryRecord) *payroll.SalaryRecord {
	record := &payroll.SalaryRecord{
		EmployeeID: emp.ID,
		Month:      month,
		Status:     payroll.StatusDraft,
	}
	if existing != nil {
		record.ID = existing.ID
		record.Adjustments = existing.Adjustments
		record.AdvancePayment = existing.AdvancePayment
		record.Version = existing.Version
		record.CreatedAt = existing.CreatedAt
	} else {
		record.ID = payroll.NewRecordID()
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = time.Now().UTC()
	return record
}

// =============================================================================
// MANUAL MUTATIONS - Adjustments and advance payments
// =============================================================================

// AddAdjustment appends a manual adjustment to a DRAFT record and
// recomputes it. Locked records are rejected outright so the caller can
// inform the user.
func (c *Compositor) AddAdjustment(ctx context.Context, employeeID payroll.EmployeeID, month payroll.Month, adj payroll.Adjustment) (*payroll.SalaryRecord, error) {
	record, err := c.Salaries.GetSalaryRecord(ctx, employeeID, month)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, payroll.ErrRecordNotFound
	}
	if !record.Editable() {
		return nil, &payroll.RecordLockedError{RecordID: record.ID, Status: record.Status}
	}

	record.Adjustments = append(record.Adjustments, adj)
	if err := c.Salaries.UpsertSalaryRecord(ctx, record); err != nil {
		return nil, err
	}
	return c.Compose(ctx, employeeID, month)
}

// SetAdvancePayment records an advance on a DRAFT record and recomputes it.
func (c *Compositor) SetAdvancePayment(ctx context.Context, employeeID payroll.EmployeeID, month payroll.Month, amount payroll.Money) (*payroll.SalaryRecord, error) {
	record, err := c.Salaries.GetSalaryRecord(ctx, employeeID, month)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, payroll.ErrRecordNotFound
	}
	if !record.Editable() {
		return nil, &payroll.RecordLockedError{RecordID: record.ID, Status: record.Status}
	}

	record.AdvancePayment = amount
	if err := c.Salaries.UpsertSalaryRecord(ctx, record); err != nil {
		return nil, err
	}
	return c.Compose(ctx, employeeID, month)
}
