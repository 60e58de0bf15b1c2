/*
handlers.go - HTTP API handlers for the salary engine

PURPOSE:
  Exposes the salary calculation and approval engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Employees:
    GET    /api/employees                      List all employees
    GET    /api/employees/{id}                 Get employee details
    GET    /api/employees/{id}/attendance      Attendance for a month
    GET    /api/employees/{id}/salary/{month}  Get payslip

  Attendance:
    POST   /api/attendance                     Record one employee-day (DRAFT)
    POST   /api/attendance/{id}/submit         Enter the approval chain
    POST   /api/attendance/{id}/approve        Advance one step
    POST   /api/attendance/{id}/reject         Return to DRAFT with reason
    POST   /api/attendance/batch-approve       Approve many at once

  Evaluations:
    POST   /api/evaluations                    Raise bonus/penalty event (DRAFT)
    POST   /api/evaluations/{id}/submit|approve|reject

  Salaries:
    GET    /api/salaries/{month}               All payslips for a month
    POST   /api/salaries/recompute             Recompute (all or selected)
    POST   /api/employees/{id}/salary/{month}/adjustments
    PUT    /api/employees/{id}/salary/{month}/advance
    POST   /api/employees/{id}/salary/{month}/submit|approve|reject

  Configuration:
    GET    /api/config                         Current snapshot
    PUT    /api/config                         Edit (admin applies, others stage)
    GET    /api/config/pending                 Staged proposal
    POST   /api/config/pending/approve         Admin applies the proposal
    DELETE /api/config/pending                 Admin discards the proposal
    GET    /api/formulas                       Active formula set
    PUT    /api/formulas                       Replace formula set (admin)

  Audit:
    GET    /api/audit                          Query the audit log

ACTOR IDENTITY:
  The acting employee comes from the X-Actor-ID header. There is no
  authentication layer; the header is trusted. Role checks still run
  against the actor's stored roles, so a forged header without the role
  gains nothing beyond impersonation.

ERROR HANDLING:
  Domain errors map to HTTP status via the payroll error helpers:
  - 400: validation errors, permission/transition errors
  - 404: missing employees, records, workflow versions
  - 409: optimistic-concurrency conflicts
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - workflow/service.go: Approval orchestration
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/salary"
	"github.com/warp/payroll-engine/workflow"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence surface the API needs: the full payroll store
// plus the formula table.
type Store interface {
	payroll.Store
	SaveFormula(ctx context.Context, f formula.SalaryFormula) error
	ListActiveFormulas(ctx context.Context) ([]formula.SalaryFormula, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      Store
	Service    *workflow.Service
	Compositor *salary.Compositor
	Runner     *salary.Runner
	Factory    *factory.Factory
	Log        *logrus.Logger

	validate *validator.Validate
}

// NewHandler wires a handler over the given store.
func NewHandler(store Store, svc *workflow.Service, comp *salary.Compositor, runner *salary.Runner, log *logrus.Logger) *Handler {
	return &Handler{
		Store:      store,
		Service:    svc,
		Compositor: comp,
		Runner:     runner,
		Factory:    factory.NewFactory(),
		Log:        log,
		validate:   validator.New(),
	}
}

// actorID extracts the acting employee from the request.
func actorID(r *http.Request) payroll.EmployeeID {
	return payroll.EmployeeID(r.Header.Get("X-Actor-ID"))
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i := range employees {
		dtos[i] = toEmployeeDTO(&employees[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))

	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// ListEmployeeAttendance returns the employee's attendance for a month.
func (h *Handler) ListEmployeeAttendance(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))
	month, ok := h.monthParam(w, r.URL.Query().Get("month"))
	if !ok {
		return
	}

	records, err := h.Store.ListAttendance(r.Context(), id, month)
	if err != nil {
		h.writeDomainError(w, "Failed to list attendance", err)
		return
	}

	dtos := make([]AttendanceDTO, len(records))
	for i := range records {
		dtos[i] = toAttendanceDTO(&records[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// CreateAttendance records one employee-day in DRAFT.
func (h *Handler) CreateAttendance(w http.ResponseWriter, r *http.Request) {
	var req CreateAttendanceRequest
	if !h.decode(w, r, &req) {
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	now := time.Now().UTC()
	rec := &payroll.AttendanceRecord{
		ID:            payroll.NewRecordID(),
		EmployeeID:    payroll.EmployeeID(req.EmployeeID),
		Date:          date,
		Type:          payroll.AttendanceType(req.Type),
		Hours:         req.Hours,
		OvertimeHours: req.OvertimeHours,
		OTRate:        req.OTRate,
		Output:        req.Output,
		Status:        payroll.StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// The employee must exist; drafts for ghosts are not accepted.
	if _, err := h.Store.GetEmployee(r.Context(), rec.EmployeeID); err != nil {
		h.writeDomainError(w, "Failed to resolve employee", err)
		return
	}
	if err := h.Store.UpsertAttendance(r.Context(), rec); err != nil {
		h.writeDomainError(w, "Failed to save attendance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttendanceDTO(rec))
}

// GetAttendance returns one attendance record.
func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.GetAttendance(r.Context(), payroll.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// SubmitAttendance moves a draft into the approval chain.
func (h *Handler) SubmitAttendance(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.SubmitAttendance(r.Context(), actorID(r), payroll.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to submit attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// ApproveAttendance advances the record one step.
func (h *Handler) ApproveAttendance(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.ApproveAttendance(r.Context(), actorID(r), payroll.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to approve attendance", err)
		return
	}
	if rec.Status == payroll.StatusApproved {
		h.refreshSalary(r.Context(), rec.EmployeeID, payroll.MonthOf(rec.Date))
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// RejectAttendance returns the record to DRAFT with a reason.
func (h *Handler) RejectAttendance(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.Service.RejectAttendance(r.Context(), actorID(r), payroll.RecordID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to reject attendance", err)
		return
	}
	// A post-audit rejection removes previously counted hours from pay.
	h.refreshSalary(r.Context(), rec.EmployeeID, payroll.MonthOf(rec.Date))
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// BatchApproveAttendance approves several records; failures are reported
// per record.
func (h *Handler) BatchApproveAttendance(w http.ResponseWriter, r *http.Request) {
	var req BatchApproveRequest
	if !h.decode(w, r, &req) {
		return
	}
	ids := make([]payroll.RecordID, len(req.RecordIDs))
	for i, id := range req.RecordIDs {
		ids[i] = payroll.RecordID(id)
	}
	results := h.Service.BatchApproveAttendance(r.Context(), actorID(r), ids)
	for _, res := range results {
		if res.Err != nil || res.Status != payroll.StatusApproved {
			continue
		}
		if rec, err := h.Store.GetAttendance(r.Context(), res.RecordID); err == nil {
			h.refreshSalary(r.Context(), rec.EmployeeID, payroll.MonthOf(rec.Date))
		}
	}
	writeJSON(w, http.StatusOK, toBatchResultDTOs(results))
}

// =============================================================================
// EVALUATION HANDLERS
// =============================================================================

// CreateEvaluation raises a bonus/penalty event in DRAFT.
func (h *Handler) CreateEvaluation(w http.ResponseWriter, r *http.Request) {
	var req CreateEvaluationRequest
	if !h.decode(w, r, &req) {
		return
	}

	month, ok := h.monthParam(w, req.Month)
	if !ok {
		return
	}
	points, err := payroll.ParseMoney(req.Points)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid points amount", err)
		return
	}

	now := time.Now().UTC()
	ev := &payroll.EvaluationRequest{
		ID:          payroll.NewRecordID(),
		EmployeeID:  payroll.EmployeeID(req.EmployeeID),
		Month:       month,
		CriterionID: req.CriterionID,
		Type:        payroll.EvaluationType(req.Type),
		Target:      payroll.EvaluationTarget(req.Target),
		Points:      points,
		Reason:      req.Reason,
		Status:      payroll.StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := h.Store.GetEmployee(r.Context(), ev.EmployeeID); err != nil {
		h.writeDomainError(w, "Failed to resolve employee", err)
		return
	}
	if err := h.Store.UpsertEvaluation(r.Context(), ev); err != nil {
		h.writeDomainError(w, "Failed to save evaluation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEvaluationDTO(ev))
}

// GetEvaluation returns one evaluation event.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Store.GetEvaluation(r.Context(), payroll.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get evaluation", err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationDTO(ev))
}

// SubmitEvaluation moves a draft event into the approval chain.
func (h *Handler) SubmitEvaluation(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Service.SubmitEvaluation(r.Context(), actorID(r), payroll.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to submit evaluation", err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationDTO(ev))
}

// ApproveEvaluation advances the event one step.
func (h *Handler) ApproveEvaluation(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Service.ApproveEvaluation(r.Context(), actorID(r), payroll.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to approve evaluation", err)
		return
	}
	if ev.Status == payroll.StatusApproved {
		h.refreshSalary(r.Context(), ev.EmployeeID, ev.Month)
	}
	writeJSON(w, http.StatusOK, toEvaluationDTO(ev))
}

// RejectEvaluation returns the event to DRAFT with a reason.
func (h *Handler) RejectEvaluation(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !h.decode(w, r, &req) {
		return
	}
	ev, err := h.Service.RejectEvaluation(r.Context(), actorID(r), payroll.RecordID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to reject evaluation", err)
		return
	}
	h.refreshSalary(r.Context(), ev.EmployeeID, ev.Month)
	writeJSON(w, http.StatusOK, toEvaluationDTO(ev))
}

// =============================================================================
// SALARY HANDLERS
// =============================================================================

// GetSalaryRecord returns the payslip for one employee-month.
func (h *Handler) GetSalaryRecord(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))
	month, ok := h.monthParam(w, chi.URLParam(r, "month"))
	if !ok {
		return
	}

	rec, err := h.Store.GetSalaryRecord(r.Context(), id, month)
	if err != nil {
		h.writeDomainError(w, "Failed to get salary record", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "No salary record for this month", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSalaryRecordDTO(rec))
}

// ListSalaryRecords returns every payslip for the month.
func (h *Handler) ListSalaryRecords(w http.ResponseWriter, r *http.Request) {
	month, ok := h.monthParam(w, chi.URLParam(r, "month"))
	if !ok {
		return
	}

	records, err := h.Store.ListSalaryRecords(r.Context(), month)
	if err != nil {
		h.writeDomainError(w, "Failed to list salary records", err)
		return
	}

	dtos := make([]SalaryRecordDTO, len(records))
	for i := range records {
		dtos[i] = toSalaryRecordDTO(&records[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Recompute rebuilds salary records for a month: all employees when no IDs
// are given, the selected ones otherwise. Locked records are skipped, not
// failed.
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if !h.decode(w, r, &req) {
		return
	}
	month, ok := h.monthParam(w, req.Month)
	if !ok {
		return
	}

	var (
		result *salary.RecomputeResult
		err    error
	)
	if len(req.EmployeeIDs) == 0 {
		result, err = h.Runner.RecomputeAll(r.Context(), month)
	} else {
		ids := make([]payroll.EmployeeID, len(req.EmployeeIDs))
		for i, id := range req.EmployeeIDs {
			ids[i] = payroll.EmployeeID(id)
		}
		result, err = h.Runner.Recompute(r.Context(), ids, month)
	}
	if err != nil {
		h.writeDomainError(w, "Recompute failed", err)
		return
	}

	h.auditAction(r, payroll.AuditRecomputed, payroll.ContentSalary, "", "", map[string]any{
		"month":     month.String(),
		"succeeded": result.Succeeded,
		"skipped":   result.Skipped,
		"failed":    len(result.Failures),
	})
	writeJSON(w, http.StatusOK, toRecomputeResultDTO(result))
}

// AddAdjustment appends a manual adjustment to a DRAFT payslip and
// recomputes it.
func (h *Handler) AddAdjustment(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))
	month, ok := h.monthParam(w, chi.URLParam(r, "month"))
	if !ok {
		return
	}

	var req AddAdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := payroll.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid adjustment amount", err)
		return
	}

	adj := payroll.Adjustment{
		ID:        payroll.NewRecordID(),
		Label:     req.Label,
		Amount:    amount,
		CreatedBy: actorID(r),
		CreatedAt: time.Now().UTC(),
	}
	rec, err := h.Compositor.AddAdjustment(r.Context(), id, month, adj)
	if err != nil {
		h.writeDomainError(w, "Failed to add adjustment", err)
		return
	}

	h.auditAction(r, payroll.AuditAdjusted, payroll.ContentSalary, rec.ID, id, map[string]any{
		"label":  req.Label,
		"amount": amount.String(),
	})
	writeJSON(w, http.StatusOK, toSalaryRecordDTO(rec))
}

// SetAdvance records an advance payment on a DRAFT payslip and recomputes
// it.
func (h *Handler) SetAdvance(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))
	month, ok := h.monthParam(w, chi.URLParam(r, "month"))
	if !ok {
		return
	}

	var req SetAdvanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := payroll.ParseMoney(req.Amount)
	if err != nil || amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid advance amount", err)
		return
	}

	rec, err := h.Compositor.SetAdvancePayment(r.Context(), id, month, amount)
	if err != nil {
		h.writeDomainError(w, "Failed to set advance payment", err)
		return
	}

	h.auditAction(r, payroll.AuditAdvancePaid, payroll.ContentSalary, rec.ID, id, map[string]any{
		"amount": amount.String(),
	})
	writeJSON(w, http.StatusOK, toSalaryRecordDTO(rec))
}

// SubmitSalary moves a DRAFT payslip into the approval chain.
func (h *Handler) SubmitSalary(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))
	month, ok := h.monthParam(w, chi.URLParam(r, "month"))
	if !ok {
		return
	}
	rec, err := h.Service.SubmitSalary(r.Context(), actorID(r), id, month)
	if err != nil {
		h.writeDomainError(w, "Failed to submit salary record", err)
		return
	}
	writeJSON(w, http.StatusOK, toSalaryRecordDTO(rec))
}

// ApproveSalary advances the payslip one step.
func (h *Handler) ApproveSalary(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))
	month, ok := h.monthParam(w, chi.URLParam(r, "month"))
	if !ok {
		return
	}
	rec, err := h.Service.ApproveSalary(r.Context(), actorID(r), id, month)
	if err != nil {
		h.writeDomainError(w, "Failed to approve salary record", err)
		return
	}
	writeJSON(w, http.StatusOK, toSalaryRecordDTO(rec))
}

// RejectSalary returns the payslip to DRAFT, re-opening it for edits.
func (h *Handler) RejectSalary(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))
	month, ok := h.monthParam(w, chi.URLParam(r, "month"))
	if !ok {
		return
	}
	var req RejectRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.Service.RejectSalary(r.Context(), actorID(r), id, month, req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to reject salary record", err)
		return
	}
	writeJSON(w, http.StatusOK, toSalaryRecordDTO(rec))
}

// =============================================================================
// CONFIGURATION HANDLERS
// =============================================================================

// GetConfig returns the current configuration snapshot as a raw document.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Store.Snapshot(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to load configuration", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfig edits the system configuration. An admin actor applies the
// edit immediately; anyone else stages it in the one-slot proposal queue
// for admin review.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	body, cfg, ok := h.decodeConfig(w, r)
	if !ok {
		return
	}

	actor, err := h.Store.GetEmployee(r.Context(), actorID(r))
	if err != nil {
		h.writeDomainError(w, "Failed to resolve actor", err)
		return
	}

	if actor.HasRole([]payroll.RoleID{factory.RoleAdmin}) {
		if err := h.Store.SaveConfig(r.Context(), cfg); err != nil {
			h.writeDomainError(w, "Failed to save configuration", err)
			return
		}
		h.auditAction(r, payroll.AuditConfigChanged, "", "", "", map[string]any{"bytes": len(body)})
		h.refreshMonth()
		writeJSON(w, http.StatusOK, ConfigUpdateResultDTO{Applied: true})
		return
	}

	pending := &payroll.PendingConfig{
		Config:     *cfg,
		ProposedBy: actor.ID,
		ProposedAt: time.Now().UTC(),
	}
	if err := h.Store.SavePendingConfig(r.Context(), pending); err != nil {
		h.writeDomainError(w, "Failed to stage proposal", err)
		return
	}
	h.auditAction(r, payroll.AuditConfigProposed, "", "", "", nil)
	writeJSON(w, http.StatusAccepted, ConfigUpdateResultDTO{
		Applied:    false,
		ProposedBy: string(actor.ID),
		ProposedAt: pending.ProposedAt.Format(time.RFC3339),
	})
}

// GetPendingConfig returns the staged proposal.
func (h *Handler) GetPendingConfig(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Store.GetPendingConfig(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to load pending configuration", err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// ApprovePendingConfig applies the staged proposal. Admin only.
func (h *Handler) ApprovePendingConfig(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	pending, err := h.Store.GetPendingConfig(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to load pending configuration", err)
		return
	}
	if err := h.Store.SaveConfig(r.Context(), &pending.Config); err != nil {
		h.writeDomainError(w, "Failed to apply configuration", err)
		return
	}
	if err := h.Store.ClearPendingConfig(r.Context()); err != nil {
		h.writeDomainError(w, "Failed to clear proposal slot", err)
		return
	}
	h.auditAction(r, payroll.AuditConfigChanged, "", "", "", map[string]any{
		"proposed_by": string(pending.ProposedBy),
	})
	h.refreshMonth()
	writeJSON(w, http.StatusOK, ConfigUpdateResultDTO{Applied: true, ProposedBy: string(pending.ProposedBy)})
}

// DiscardPendingConfig empties the proposal slot. Admin only.
func (h *Handler) DiscardPendingConfig(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if err := h.Store.ClearPendingConfig(r.Context()); err != nil {
		h.writeDomainError(w, "Failed to discard proposal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFormulas returns the active formula set in evaluation order.
func (h *Handler) ListFormulas(w http.ResponseWriter, r *http.Request) {
	formulas, err := h.Store.ListActiveFormulas(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list formulas", err)
		return
	}
	dtos := make([]FormulaDTO, len(formulas))
	for i, f := range formulas {
		dtos[i] = FormulaDTO{
			ID:          f.ID,
			Name:        f.Name,
			TargetField: f.TargetField,
			Expression:  f.Expression,
			Order:       f.Order,
			Active:      f.Active,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateFormulas replaces the formula set from a JSON document; every
// expression must compile or the whole document is rejected. Admin only.
func (h *Handler) UpdateFormulas(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	formulas, err := h.Factory.ParseFormulas(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid formula document", err)
		return
	}

	for _, f := range formulas {
		if err := h.Store.SaveFormula(r.Context(), f); err != nil {
			h.writeDomainError(w, "Failed to save formula", err)
			return
		}
	}
	h.auditAction(r, payroll.AuditConfigChanged, "", "", "", map[string]any{"formulas": len(formulas)})
	writeJSON(w, http.StatusOK, map[string]int{"saved": len(formulas)})
}

// UpdateCriteria replaces the KPI criteria catalog from a JSON document.
// Structural problems reject the document; soft issues (weights not
// summing to 100, unknown group references) come back as warnings. Admin
// only.
func (h *Handler) UpdateCriteria(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	catalog, warnings, err := h.Factory.ParseCriteria(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid criteria document", err)
		return
	}

	h.Compositor.Catalog = catalog
	h.auditAction(r, payroll.AuditConfigChanged, "", "", "", map[string]any{"warnings": len(warnings)})
	writeJSON(w, http.StatusOK, ConfigUpdateResultDTO{Applied: true, Warnings: warnings})
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// QueryAudit returns audit entries matching the query parameters.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter payroll.AuditFilter
	if v := q.Get("employee_id"); v != "" {
		id := payroll.EmployeeID(v)
		filter.EmployeeID = &id
	}
	if v := q.Get("actor_id"); v != "" {
		id := payroll.EmployeeID(v)
		filter.ActorID = &id
	}
	if v := q.Get("content_type"); v != "" {
		ct := payroll.ContentType(v)
		filter.ContentType = &ct
	}

	entries, err := h.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, "Failed to query audit log", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode parses and validates a JSON request body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return nil, false
	}
	return raw, true
}

// decodeConfig parses the request body through the config factory.
func (h *Handler) decodeConfig(w http.ResponseWriter, r *http.Request) ([]byte, *payroll.SystemConfig, bool) {
	body, ok := readBody(w, r)
	if !ok {
		return nil, nil, false
	}
	cfg, err := h.Factory.ParseConfig(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid configuration document", err)
		return nil, nil, false
	}
	return body, cfg, true
}

// requireAdmin resolves the actor and checks the admin role.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, err := h.Store.GetEmployee(r.Context(), actorID(r))
	if err != nil {
		h.writeDomainError(w, "Failed to resolve actor", err)
		return false
	}
	if !actor.HasRole([]payroll.RoleID{factory.RoleAdmin}) {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return false
	}
	return true
}

func (h *Handler) monthParam(w http.ResponseWriter, raw string) (payroll.Month, bool) {
	month, err := payroll.ParseMonth(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return payroll.Month{}, false
	}
	return month, true
}

// refreshSalary rebuilds one employee-month payslip after its pay inputs
// changed. Locked records are a normal state, not an error; real failures
// are logged and left for the nightly recompute.
func (h *Handler) refreshSalary(ctx context.Context, employeeID payroll.EmployeeID, month payroll.Month) {
	_, err := h.Compositor.Compose(ctx, employeeID, month)
	if err != nil && !errors.Is(err, payroll.ErrRecordLocked) {
		h.Log.WithFields(logrus.Fields{
			"employee": string(employeeID),
			"month":    month.String(),
		}).WithError(err).Warn("salary refresh after input change failed")
	}
}

// refreshMonth rebuilds the current month for everyone after a config
// change. Runs in the background so the config write returns immediately.
func (h *Handler) refreshMonth() {
	go func() {
		if _, err := h.Runner.RecomputeAll(context.Background(), payroll.CurrentMonth()); err != nil {
			h.Log.WithError(err).Warn("recompute after config change failed")
		}
	}()
}

// auditAction records an API-level action; failures are logged, not
// surfaced.
func (h *Handler) auditAction(r *http.Request, action payroll.AuditAction, ct payroll.ContentType, recordID payroll.RecordID, employeeID payroll.EmployeeID, payload map[string]any) {
	entry := payroll.AuditEntry{
		ActorID:     actorID(r),
		Action:      action,
		ContentType: ct,
		RecordID:    recordID,
		EmployeeID:  employeeID,
		Payload:     payload,
	}
	if err := h.Store.AppendAudit(r.Context(), entry); err != nil {
		h.Log.WithError(err).Warn("failed to append audit entry")
	}
}

// writeDomainError maps a domain error to its HTTP status.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var vErr *payroll.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, message, err)
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case payroll.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case payroll.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Log.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
