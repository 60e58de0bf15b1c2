/*
records.go - Attendance, evaluation, and salary records

PURPOSE:
  Defines the three record types that flow through the approval workflow,
  plus the shared approval status enum. Records are created in DRAFT,
  advanced by the workflow engine, and consumed by the salary compositor
  once approved.

LIFECYCLE:
  AttendanceRecord:  DRAFT -> pending chain -> APPROVED; immutable once
                     approved except during the HR post-audit window.
  EvaluationRequest: DRAFT -> pending chain -> APPROVED; only approved
                     events are aggregated into pay.
  SalaryRecord:      recomputed by the compositor while DRAFT; read-only in
                     any pending/approved state except rejection back to DRAFT.

SEE ALSO:
  - workflow/engine.go: Status transitions and permission checks
  - salary/compositor.go: SalaryRecord population
*/
package payroll

import "time"

// =============================================================================
// APPROVAL STATUS - Shared across all three content types
// =============================================================================

type ApprovalStatus string

const (
	StatusDraft          ApprovalStatus = "DRAFT"
	StatusPendingManager ApprovalStatus = "PENDING_MANAGER"
	StatusPendingGDK     ApprovalStatus = "PENDING_GDK" // block director
	StatusPendingBLD     ApprovalStatus = "PENDING_BLD" // executive board
	StatusPendingHR      ApprovalStatus = "PENDING_HR"  // post-audit step
	StatusApproved       ApprovalStatus = "APPROVED"
	StatusRejected       ApprovalStatus = "REJECTED"
)

// IsPending reports whether the status is one of the pending approval states.
func (s ApprovalStatus) IsPending() bool {
	switch s {
	case StatusPendingManager, StatusPendingGDK, StatusPendingBLD, StatusPendingHR:
		return true
	}
	return false
}

// IsTerminal reports whether the status is APPROVED or REJECTED. An APPROVED
// record may still be reopened to DRAFT during its post-audit window.
func (s ApprovalStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ContentType identifies which record family a workflow version governs.
type ContentType string

const (
	ContentAttendance ContentType = "ATTENDANCE"
	ContentEvaluation ContentType = "EVALUATION"
	ContentSalary     ContentType = "SALARY"
)

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceType string

const (
	AttendanceTime      AttendanceType = "TIME"
	AttendancePiecework AttendanceType = "PIECEWORK"
	AttendanceDaily     AttendanceType = "DAILY"
	AttendanceMode      AttendanceType = "MODE"
	AttendanceHoliday   AttendanceType = "HOLIDAY"
	AttendancePaidLeave AttendanceType = "PAID_LEAVE"
	AttendanceUnpaid    AttendanceType = "UNPAID"
	AttendanceWaiting   AttendanceType = "WAITING"
)

// OvertimeRate multipliers for overtime hours.
const (
	OTRateWeekday = 1.5
	OTRateWeekend = 2.0
	OTRateHoliday = 3.0
)

// AttendanceRecord is one employee-day of attendance. Created in DRAFT by
// payroll staff and advanced through the approval workflow.
type AttendanceRecord struct {
	ID         RecordID
	EmployeeID EmployeeID
	Date       time.Time

	Type          AttendanceType
	Hours         float64
	OvertimeHours float64
	OTRate        float64

	// Piecework output quantity for the day.
	Output float64

	Status          ApprovalStatus
	RejectionReason string

	// Set when the record enters the HR post-audit window.
	SentToHRAt *time.Time
	ApprovedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// EVALUATION
// =============================================================================

type EvaluationType string

const (
	EvaluationBonus   EvaluationType = "BONUS"
	EvaluationPenalty EvaluationType = "PENALTY"
)

// EvaluationTarget determines which pool an evaluation event adjusts.
type EvaluationTarget string

const (
	// TargetMonthlySalary: points are a percentage of the employee's target
	// salary, subject to criterion thresholds and group weights.
	TargetMonthlySalary EvaluationTarget = "MONTHLY_SALARY"

	// TargetReservedBonus: points are an absolute VND amount deducted
	// directly from the employee's reserved bonus pool.
	TargetReservedBonus EvaluationTarget = "RESERVED_BONUS"
)

// EvaluationRequest is one KPI bonus/penalty event. Only APPROVED events are
// aggregated into pay.
type EvaluationRequest struct {
	ID         RecordID
	EmployeeID EmployeeID
	Month      Month

	// Empty for direct money penalties against the reserved bonus pool.
	CriterionID string

	Type   EvaluationType
	Target EvaluationTarget

	// Percentage of target salary, or absolute VND when Target is
	// RESERVED_BONUS.
	Points Money

	Reason string

	Status          ApprovalStatus
	RejectionReason string

	SentToHRAt *time.Time
	ApprovedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// SALARY RECORD
// =============================================================================

// Adjustment is a manual, human-appended entry on a salary record. It is
// never recomputed: the compositor preserves adjustments verbatim.
type Adjustment struct {
	ID        RecordID
	Label     string
	Amount    Money // positive adds, negative deducts
	CreatedBy EmployeeID
	CreatedAt time.Time
}

// SalaryRecord is the computed payslip for one employee-month. It is a pure
// derived view of its inputs: recomputing with unchanged inputs yields
// identical output. Adjustments and AdvancePayment are the only
// human-appended state.
type SalaryRecord struct {
	ID         RecordID
	EmployeeID EmployeeID
	Month      Month

	// Normative amounts from grade and config.
	BaseSalaryNorm       Money // LCB_dm
	EfficiencySalaryNorm Money // LHQ_dm (zero for piecework)
	PieceworkSalaryNorm  Money // LSL_dm

	// Actuals after attendance and KPI.
	ActualBaseSalary       Money
	ActualEfficiencySalary Money
	ActualPieceworkSalary  Money
	OtherSalary            Money

	TotalAllowance Money
	TotalBonus     Money

	// Reserved bonus pool movement for the month (direct money penalties).
	ReservedBonusDeduction Money

	// Deductions.
	InsuranceDeduction Money
	PITDeduction       Money
	UnionFee           Money
	AdvancePayment     Money
	OtherDeductions    Money

	CalculatedSalary Money // gross
	NetSalary        Money

	Adjustments []Adjustment

	Status          ApprovalStatus
	RejectionReason string

	SentToHRAt *time.Time
	ApprovedAt *time.Time

	// Optimistic concurrency token: stores reject writes whose Version does
	// not match the persisted one.
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AdjustmentTotal returns the signed sum of all manual adjustments.
func (r *SalaryRecord) AdjustmentTotal() Money {
	total := ZeroMoney()
	for _, a := range r.Adjustments {
		total = total.Add(a.Amount)
	}
	return total
}

// Editable reports whether manual mutation (adjustments, advance payment) is
// currently allowed.
func (r *SalaryRecord) Editable() bool { return r.Status == StatusDraft }
