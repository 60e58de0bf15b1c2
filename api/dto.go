/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Monetary amounts cross the wire as decimal strings ("7692308"), never as
  floats. Parsing happens in handlers via payroll.ParseMoney.

VALIDATION:
  Structural validation uses validator/v10 struct tags, checked in
  handlers. Domain validation (overtime bounds, workflow permissions)
  stays in the domain packages.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/config.go: ConfigJSON / FormulaJSON / CriteriaJSON documents
*/
package api

import (
	"time"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/salary"
	"github.com/warp/payroll-engine/workflow"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PaymentType string `json:"payment_type"`
	JoinedAt    string `json:"joined_at"`

	DepartmentID string   `json:"department_id,omitempty"`
	RankID       string   `json:"rank_id,omitempty"`
	GradeID      string   `json:"grade_id,omitempty"`
	RoleIDs      []string `json:"role_ids,omitempty"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// AttendanceDTO represents an attendance record in API responses.
type AttendanceDTO struct {
	ID              string  `json:"id"`
	EmployeeID      string  `json:"employee_id"`
	Date            string  `json:"date"`
	Type            string  `json:"type"`
	Hours           float64 `json:"hours"`
	OvertimeHours   float64 `json:"overtime_hours,omitempty"`
	OTRate          float64 `json:"ot_rate,omitempty"`
	Output          float64 `json:"output,omitempty"`
	Status          string  `json:"status"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
	SentToHRAt      *string `json:"sent_to_hr_at,omitempty"`
	ApprovedAt      *string `json:"approved_at,omitempty"`
}

// CreateAttendanceRequest is the request to record one employee-day.
type CreateAttendanceRequest struct {
	EmployeeID    string  `json:"employee_id" validate:"required"`
	Date          string  `json:"date" validate:"required"` // YYYY-MM-DD
	Type          string  `json:"type" validate:"required,oneof=TIME PIECEWORK DAILY MODE HOLIDAY PAID_LEAVE UNPAID WAITING"`
	Hours         float64 `json:"hours" validate:"gte=0,lte=24"`
	OvertimeHours float64 `json:"overtime_hours" validate:"gte=0"`
	OTRate        float64 `json:"ot_rate" validate:"omitempty,oneof=1.5 2.0 3.0"`
	Output        float64 `json:"output" validate:"gte=0"`
}

// =============================================================================
// EVALUATIONS
// =============================================================================

// EvaluationDTO represents a KPI bonus/penalty event in API responses.
type EvaluationDTO struct {
	ID              string `json:"id"`
	EmployeeID      string `json:"employee_id"`
	Month           string `json:"month"`
	CriterionID     string `json:"criterion_id,omitempty"`
	Type            string `json:"type"`
	Target          string `json:"target"`
	Points          string `json:"points"`
	Reason          string `json:"reason,omitempty"`
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// CreateEvaluationRequest is the request to raise a bonus/penalty event.
type CreateEvaluationRequest struct {
	EmployeeID  string `json:"employee_id" validate:"required"`
	Month       string `json:"month" validate:"required"` // YYYY-MM
	CriterionID string `json:"criterion_id"`
	Type        string `json:"type" validate:"required,oneof=BONUS PENALTY"`
	Target      string `json:"target" validate:"required,oneof=MONTHLY_SALARY RESERVED_BONUS"`
	Points      string `json:"points" validate:"required"`
	Reason      string `json:"reason"`
}

// =============================================================================
// WORKFLOW ACTIONS
// =============================================================================

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// BatchApproveRequest is the request to approve several records at once.
type BatchApproveRequest struct {
	RecordIDs []string `json:"record_ids" validate:"required,min=1"`
}

// BatchResultDTO reports one record's outcome within a batch action.
type BatchResultDTO struct {
	RecordID string `json:"record_id"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

// =============================================================================
// SALARY RECORDS
// =============================================================================

// AdjustmentDTO represents one manual adjustment line.
type AdjustmentDTO struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Amount    string `json:"amount"`
	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// SalaryRecordDTO is the full payslip view for one employee-month.
type SalaryRecordDTO struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	Month      string `json:"month"`

	BaseSalaryNorm       string `json:"base_salary_norm"`
	EfficiencySalaryNorm string `json:"efficiency_salary_norm"`
	PieceworkSalaryNorm  string `json:"piecework_salary_norm"`

	ActualBaseSalary       string `json:"actual_base_salary"`
	ActualEfficiencySalary string `json:"actual_efficiency_salary"`
	ActualPieceworkSalary  string `json:"actual_piecework_salary"`
	OtherSalary            string `json:"other_salary"`

	TotalAllowance         string `json:"total_allowance"`
	TotalBonus             string `json:"total_bonus"`
	ReservedBonusDeduction string `json:"reserved_bonus_deduction"`

	InsuranceDeduction string `json:"insurance_deduction"`
	PITDeduction       string `json:"pit_deduction"`
	UnionFee           string `json:"union_fee"`
	AdvancePayment     string `json:"advance_payment"`
	OtherDeductions    string `json:"other_deductions"`

	CalculatedSalary string `json:"calculated_salary"`
	NetSalary        string `json:"net_salary"`

	Adjustments []AdjustmentDTO `json:"adjustments,omitempty"`

	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	Version         int    `json:"version"`
}

// AddAdjustmentRequest appends a manual adjustment to a DRAFT payslip.
type AddAdjustmentRequest struct {
	Label  string `json:"label" validate:"required"`
	Amount string `json:"amount" validate:"required"` // signed VND
}

// SetAdvanceRequest records an advance payment on a DRAFT payslip.
type SetAdvanceRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// RecomputeRequest triggers recomputation for a month. Empty employee_ids
// means every employee.
type RecomputeRequest struct {
	Month       string   `json:"month" validate:"required"`
	EmployeeIDs []string `json:"employee_ids"`
}

// RecomputeResultDTO summarizes a recomputation run.
type RecomputeResultDTO struct {
	Month     string                `json:"month"`
	Succeeded int                   `json:"succeeded"`
	Skipped   int                   `json:"skipped"`
	Failures  []RecomputeFailureDTO `json:"failures,omitempty"`
}

type RecomputeFailureDTO struct {
	EmployeeID string `json:"employee_id"`
	Error      string `json:"error"`
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// ConfigUpdateResultDTO reports whether a config edit was applied directly
// or staged for admin review.
type ConfigUpdateResultDTO struct {
	Applied    bool   `json:"applied"`
	ProposedBy string `json:"proposed_by,omitempty"`
	ProposedAt string `json:"proposed_at,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// FormulaDTO represents a salary formula in API responses.
type FormulaDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TargetField string `json:"target_field"`
	Expression  string `json:"expression"`
	Order       int    `json:"order"`
	Active      bool   `json:"active"`
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditEntryDTO represents one audit log line.
type AuditEntryDTO struct {
	ID          string         `json:"id"`
	Timestamp   string         `json:"timestamp"`
	ActorID     string         `json:"actor_id,omitempty"`
	Action      string         `json:"action"`
	ContentType string         `json:"content_type,omitempty"`
	RecordID    string         `json:"record_id,omitempty"`
	EmployeeID  string         `json:"employee_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEmployeeDTO(e *payroll.Employee) EmployeeDTO {
	roles := make([]string, len(e.RoleIDs))
	for i, r := range e.RoleIDs {
		roles[i] = string(r)
	}
	return EmployeeDTO{
		ID:           string(e.ID),
		Name:         e.Name,
		Email:        e.Email,
		PaymentType:  string(e.PaymentType),
		JoinedAt:     e.JoinedAt.String(),
		DepartmentID: string(e.Assignment.DepartmentID),
		RankID:       string(e.Assignment.RankID),
		GradeID:      string(e.Assignment.GradeID),
		RoleIDs:      roles,
	}
}

func toAttendanceDTO(rec *payroll.AttendanceRecord) AttendanceDTO {
	return AttendanceDTO{
		ID:              string(rec.ID),
		EmployeeID:      string(rec.EmployeeID),
		Date:            rec.Date.Format("2006-01-02"),
		Type:            string(rec.Type),
		Hours:           rec.Hours,
		OvertimeHours:   rec.OvertimeHours,
		OTRate:          rec.OTRate,
		Output:          rec.Output,
		Status:          string(rec.Status),
		RejectionReason: rec.RejectionReason,
		SentToHRAt:      timePtr(rec.SentToHRAt),
		ApprovedAt:      timePtr(rec.ApprovedAt),
	}
}

func toEvaluationDTO(req *payroll.EvaluationRequest) EvaluationDTO {
	return EvaluationDTO{
		ID:              string(req.ID),
		EmployeeID:      string(req.EmployeeID),
		Month:           req.Month.String(),
		CriterionID:     req.CriterionID,
		Type:            string(req.Type),
		Target:          string(req.Target),
		Points:          req.Points.String(),
		Reason:          req.Reason,
		Status:          string(req.Status),
		RejectionReason: req.RejectionReason,
	}
}

func toSalaryRecordDTO(rec *payroll.SalaryRecord) SalaryRecordDTO {
	adjustments := make([]AdjustmentDTO, len(rec.Adjustments))
	for i, a := range rec.Adjustments {
		adjustments[i] = AdjustmentDTO{
			ID:        string(a.ID),
			Label:     a.Label,
			Amount:    a.Amount.String(),
			CreatedBy: string(a.CreatedBy),
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		}
	}
	return SalaryRecordDTO{
		ID:         string(rec.ID),
		EmployeeID: string(rec.EmployeeID),
		Month:      rec.Month.String(),

		BaseSalaryNorm:       rec.BaseSalaryNorm.String(),
		EfficiencySalaryNorm: rec.EfficiencySalaryNorm.String(),
		PieceworkSalaryNorm:  rec.PieceworkSalaryNorm.String(),

		ActualBaseSalary:       rec.ActualBaseSalary.String(),
		ActualEfficiencySalary: rec.ActualEfficiencySalary.String(),
		ActualPieceworkSalary:  rec.ActualPieceworkSalary.String(),
		OtherSalary:            rec.OtherSalary.String(),

		TotalAllowance:         rec.TotalAllowance.String(),
		TotalBonus:             rec.TotalBonus.String(),
		ReservedBonusDeduction: rec.ReservedBonusDeduction.String(),

		InsuranceDeduction: rec.InsuranceDeduction.String(),
		PITDeduction:       rec.PITDeduction.String(),
		UnionFee:           rec.UnionFee.String(),
		AdvancePayment:     rec.AdvancePayment.String(),
		OtherDeductions:    rec.OtherDeductions.String(),

		CalculatedSalary: rec.CalculatedSalary.String(),
		NetSalary:        rec.NetSalary.String(),

		Adjustments: adjustments,

		Status:          string(rec.Status),
		RejectionReason: rec.RejectionReason,
		Version:         rec.Version,
	}
}

func toBatchResultDTOs(results []workflow.BatchResult) []BatchResultDTO {
	dtos := make([]BatchResultDTO, len(results))
	for i, r := range results {
		dtos[i] = BatchResultDTO{
			RecordID: string(r.RecordID),
			Status:   string(r.Status),
			Error:    r.Error,
		}
	}
	return dtos
}

func toRecomputeResultDTO(result *salary.RecomputeResult) RecomputeResultDTO {
	failures := make([]RecomputeFailureDTO, len(result.Failures))
	for i, f := range result.Failures {
		failures[i] = RecomputeFailureDTO{
			EmployeeID: string(f.EmployeeID),
			Error:      f.Err.Error(),
		}
	}
	return RecomputeResultDTO{
		Month:     result.Month.String(),
		Succeeded: result.Succeeded,
		Skipped:   result.Skipped,
		Failures:  failures,
	}
}

func toAuditEntryDTO(entry payroll.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:          entry.ID,
		Timestamp:   entry.Timestamp.Format(time.RFC3339),
		ActorID:     string(entry.ActorID),
		Action:      string(entry.Action),
		ContentType: string(entry.ContentType),
		RecordID:    string(entry.RecordID),
		EmployeeID:  string(entry.EmployeeID),
		Payload:     entry.Payload,
	}
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
