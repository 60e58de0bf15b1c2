/*
service.go - Approval orchestration over the stores

PURPOSE:
  The engine (engine.go) is a pure decision function. This service loads
  the record, its employee, the actor, and the config snapshot, asks the
  engine for the transition, persists the outcome, and appends the audit
  entry. One method per user action.

SUBMIT VALIDATION:
  Attendance is validated at the DRAFT -> pending boundary, not at entry:
  payroll staff may save inconsistent drafts, but nothing inconsistent
  ever enters the approval chain.

TIMESTAMPS:
  Entering PENDING_HR stamps SentToHRAt; reaching APPROVED stamps
  ApprovedAt. Both are set here so the deadline arithmetic in the engine
  always has its inputs.
*/
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/payroll-engine/payroll"
)

// Service executes approval actions against the store.
type Service struct {
	Store  payroll.Store
	Engine *Engine
	Log    *logrus.Logger

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewService(store payroll.Store, log *logrus.Logger) *Service {
	return &Service{
		Store:  store,
		Engine: NewEngine(),
		Log:    log,
		Now:    time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// BatchResult reports the per-record outcome of a batch action. One
// record's failure never blocks the others.
type BatchResult struct {
	RecordID payroll.RecordID       `json:"record_id"`
	Status   payroll.ApprovalStatus `json:"status,omitempty"`
	Err      error                  `json:"-"`
	Error    string                 `json:"error,omitempty"`
}

// =============================================================================
// ATTENDANCE ACTIONS
// =============================================================================

// SubmitAttendance moves a DRAFT attendance record into the approval
// chain. The record is validated here: inconsistent drafts may be saved,
// but never submitted.
func (s *Service) SubmitAttendance(ctx context.Context, actorID payroll.EmployeeID, recordID payroll.RecordID) (*payroll.AttendanceRecord, error) {
	rec, err := s.Store.GetAttendance(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Status != payroll.StatusDraft && rec.Status != payroll.StatusRejected {
		return nil, &payroll.RecordLockedError{RecordID: rec.ID, Status: rec.Status}
	}
	if err := payroll.ValidateAttendance(rec); err != nil {
		return nil, err
	}

	cfg, emp, actor, err := s.resolve(ctx, rec.EmployeeID, actorID)
	if err != nil {
		return nil, err
	}

	state := AttendanceState(rec)
	state.Status = payroll.StatusDraft
	if err := s.checkInitiator(actor, emp, cfg, payroll.ContentAttendance, state); err != nil {
		return nil, err
	}
	next, err := s.Engine.NextStatus(emp, cfg, payroll.ContentAttendance, state)
	if err != nil {
		return nil, err
	}

	s.applyAttendanceStatus(rec, next, "")
	if err := s.Store.UpsertAttendance(ctx, rec); err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, payroll.AuditSubmitted, payroll.ContentAttendance, rec.ID, rec.EmployeeID, map[string]any{"status": next})
	return rec, nil
}

// ApproveAttendance advances the record one step for the acting approver.
func (s *Service) ApproveAttendance(ctx context.Context, actorID payroll.EmployeeID, recordID payroll.RecordID) (*payroll.AttendanceRecord, error) {
	rec, err := s.Store.GetAttendance(ctx, recordID)
	if err != nil {
		return nil, err
	}
	cfg, emp, actor, err := s.resolve(ctx, rec.EmployeeID, actorID)
	if err != nil {
		return nil, err
	}

	next, err := s.Engine.Approve(actor, emp, cfg, payroll.ContentAttendance, AttendanceState(rec), s.now())
	if err != nil {
		return nil, err
	}

	s.applyAttendanceStatus(rec, next, "")
	if err := s.Store.UpsertAttendance(ctx, rec); err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, payroll.AuditApproved, payroll.ContentAttendance, rec.ID, rec.EmployeeID, map[string]any{"status": next})
	return rec, nil
}

// RejectAttendance returns the record to DRAFT with a reason. An HR
// auditor may also reject an APPROVED record inside the post-audit window.
func (s *Service) RejectAttendance(ctx context.Context, actorID payroll.EmployeeID, recordID payroll.RecordID, reason string) (*payroll.AttendanceRecord, error) {
	rec, err := s.Store.GetAttendance(ctx, recordID)
	if err != nil {
		return nil, err
	}
	cfg, emp, actor, err := s.resolve(ctx, rec.EmployeeID, actorID)
	if err != nil {
		return nil, err
	}

	next, err := s.Engine.Reject(actor, emp, cfg, payroll.ContentAttendance, AttendanceState(rec), s.now())
	if err != nil {
		return nil, err
	}

	s.applyAttendanceStatus(rec, next, reason)
	if err := s.Store.UpsertAttendance(ctx, rec); err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, payroll.AuditRejected, payroll.ContentAttendance, rec.ID, rec.EmployeeID, map[string]any{"reason": reason})
	return rec, nil
}

// BatchApproveAttendance approves a set of records independently. Every
// record passes its own permission check; failures are reported per
// record and never abort the batch.
func (s *Service) BatchApproveAttendance(ctx context.Context, actorID payroll.EmployeeID, recordIDs []payroll.RecordID) []BatchResult {
	results := make([]BatchResult, 0, len(recordIDs))
	for _, id := range recordIDs {
		rec, err := s.ApproveAttendance(ctx, actorID, id)
		r := BatchResult{RecordID: id}
		if err != nil {
			r.Err = err
			r.Error = err.Error()
		} else {
			r.Status = rec.Status
		}
		results = append(results, r)
	}
	return results
}

func (s *Service) applyAttendanceStatus(rec *payroll.AttendanceRecord, next payroll.ApprovalStatus, reason string) {
	now := s.now()
	rec.Status = next
	rec.UpdatedAt = now
	switch next {
	case payroll.StatusPendingHR:
		rec.SentToHRAt = &now
	case payroll.StatusApproved:
		rec.ApprovedAt = &now
	case payroll.StatusDraft:
		rec.RejectionReason = reason
		rec.SentToHRAt = nil
		rec.ApprovedAt = nil
	}
}

// =============================================================================
// EVALUATION ACTIONS
// =============================================================================

// SubmitEvaluation moves a DRAFT evaluation into the approval chain.
func (s *Service) SubmitEvaluation(ctx context.Context, actorID payroll.EmployeeID, recordID payroll.RecordID) (*payroll.EvaluationRequest, error) {
	req, err := s.Store.GetEvaluation(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if req.Status != payroll.StatusDraft && req.Status != payroll.StatusRejected {
		return nil, &payroll.RecordLockedError{RecordID: req.ID, Status: req.Status}
	}
	if req.Points.IsNegative() {
		return nil, &payroll.ValidationError{Field: "points", Message: "must not be negative"}
	}

	cfg, emp, actor, err := s.resolve(ctx, req.EmployeeID, actorID)
	if err != nil {
		return nil, err
	}

	state := EvaluationState(req)
	state.Status = payroll.StatusDraft
	if err := s.checkInitiator(actor, emp, cfg, payroll.ContentEvaluation, state); err != nil {
		return nil, err
	}
	next, err := s.Engine.NextStatus(emp, cfg, payroll.ContentEvaluation, state)
	if err != nil {
		return nil, err
	}

	s.applyEvaluationStatus(req, next, "")
	if err := s.Store.UpsertEvaluation(ctx, req); err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, payroll.AuditSubmitted, payroll.ContentEvaluation, req.ID, req.EmployeeID, map[string]any{"status": next})
	return req, nil
}

// ApproveEvaluation advances the evaluation one step.
func (s *Service) ApproveEvaluation(ctx context.Context, actorID payroll.EmployeeID, recordID payroll.RecordID) (*payroll.EvaluationRequest, error) {
	req, err := s.Store.GetEvaluation(ctx, recordID)
	if err != nil {
		return nil, err
	}
	cfg, emp, actor, err := s.resolve(ctx, req.EmployeeID, actorID)
	if err != nil {
		return nil, err
	}

	next, err := s.Engine.Approve(actor, emp, cfg, payroll.ContentEvaluation, EvaluationState(req), s.now())
	if err != nil {
		return nil, err
	}

	s.applyEvaluationStatus(req, next, "")
	if err := s.Store.UpsertEvaluation(ctx, req); err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, payroll.AuditApproved, payroll.ContentEvaluation, req.ID, req.EmployeeID, map[string]any{"status": next})
	return req, nil
}

// RejectEvaluation returns the evaluation to DRAFT with a reason.
func (s *Service) RejectEvaluation(ctx context.Context, actorID payroll.EmployeeID, recordID payroll.RecordID, reason string) (*payroll.EvaluationRequest, error) {
	req, err := s.Store.GetEvaluation(ctx, recordID)
	if err != nil {
		return nil, err
	}
	cfg, emp, actor, err := s.resolve(ctx, req.EmployeeID, actorID)
	if err != nil {
		return nil, err
	}

	next, err := s.Engine.Reject(actor, emp, cfg, payroll.ContentEvaluation, EvaluationState(req), s.now())
	if err != nil {
		return nil, err
	}

	s.applyEvaluationStatus(req, next, reason)
	if err := s.Store.UpsertEvaluation(ctx, req); err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, payroll.AuditRejected, payroll.ContentEvaluation, req.ID, req.EmployeeID, map[string]any{"reason": reason})
	return req, nil
}

func (s *Service) applyEvaluationStatus(req *payroll.EvaluationRequest, next payroll.ApprovalStatus, reason string) {
	now := s.now()
	req.Status = next
	req.UpdatedAt = now
	switch next {
	case payroll.StatusPendingHR:
		req.SentToHRAt = &now
	case payroll.StatusApproved:
		req.ApprovedAt = &now
	case payroll.StatusDraft:
		req.RejectionReason = reason
		req.SentToHRAt = nil
		req.ApprovedAt = nil
	}
}

// =============================================================================
// SALARY ACTIONS
// =============================================================================

// SubmitSalary moves a DRAFT salary record into the approval chain,
// freezing it against further recomputation.
func (s *Service) SubmitSalary(ctx context.Context, actorID payroll.EmployeeID, employeeID payroll.EmployeeID, month payroll.Month) (*payroll.SalaryRecord, error) {
	rec, err := s.Store.GetSalaryRecord(ctx, employeeID, month)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, payroll.ErrRecordNotFound
	}
	if rec.Status != payroll.StatusDraft {
		return nil, &payroll.RecordLockedError{RecordID: rec.ID, Status: rec.Status}
	}

	cfg, emp, actor, err := s.resolve(ctx, rec.EmployeeID, actorID)
	if err != nil {
		return nil, err
	}

	state := SalaryState(rec)
	if err := s.checkInitiator(actor, emp, cfg, payroll.ContentSalary, state); err != nil {
		return nil, err
	}
	next, err := s.Engine.NextStatus(emp, cfg, payroll.ContentSalary, state)
	if err != nil {
		return nil, err
	}

	s.applySalaryStatus(rec, next, "")
	if err := s.Store.UpsertSalaryRecord(ctx, rec); err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, payroll.AuditSubmitted, payroll.ContentSalary, rec.ID, rec.EmployeeID, map[string]any{"status": next, "month": month.String()})
	return rec, nil
}

// ApproveSalary advances the salary record one step.
func (s *Service) ApproveSalary(ctx context.Context, actorID payroll.EmployeeID, employeeID payroll.EmployeeID, month payroll.Month) (*payroll.SalaryRecord, error) {
	rec, err := s.Store.GetSalaryRecord(ctx, employeeID, month)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, payroll.ErrRecordNotFound
	}
	cfg, emp, actor, err := s.resolve(ctx, rec.EmployeeID, actorID)
	if err != nil {
		return nil, err
	}

	next, err := s.Engine.Approve(actor, emp, cfg, payroll.ContentSalary, SalaryState(rec), s.now())
	if err != nil {
		return nil, err
	}

	s.applySalaryStatus(rec, next, "")
	if err := s.Store.UpsertSalaryRecord(ctx, rec); err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, payroll.AuditApproved, payroll.ContentSalary, rec.ID, rec.EmployeeID, map[string]any{"status": next, "month": month.String()})
	return rec, nil
}

// RejectSalary returns the salary record to DRAFT, re-opening it for
// recomputation and manual adjustments.
func (s *Service) RejectSalary(ctx context.Context, actorID payroll.EmployeeID, employeeID payroll.EmployeeID, month payroll.Month, reason string) (*payroll.SalaryRecord, error) {
	rec, err := s.Store.GetSalaryRecord(ctx, employeeID, month)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, payroll.ErrRecordNotFound
	}
	cfg, emp, actor, err := s.resolve(ctx, rec.EmployeeID, actorID)
	if err != nil {
		return nil, err
	}

	next, err := s.Engine.Reject(actor, emp, cfg, payroll.ContentSalary, SalaryState(rec), s.now())
	if err != nil {
		return nil, err
	}

	s.applySalaryStatus(rec, next, reason)
	if err := s.Store.UpsertSalaryRecord(ctx, rec); err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, payroll.AuditRejected, payroll.ContentSalary, rec.ID, rec.EmployeeID, map[string]any{"reason": reason, "month": month.String()})
	return rec, nil
}

func (s *Service) applySalaryStatus(rec *payroll.SalaryRecord, next payroll.ApprovalStatus, reason string) {
	now := s.now()
	rec.Status = next
	rec.UpdatedAt = now
	switch next {
	case payroll.StatusPendingHR:
		rec.SentToHRAt = &now
	case payroll.StatusApproved:
		rec.ApprovedAt = &now
	case payroll.StatusDraft:
		rec.RejectionReason = reason
		rec.SentToHRAt = nil
		rec.ApprovedAt = nil
	}
}

// =============================================================================
// AUTO-APPROVE SWEEP
// =============================================================================

// AutoApproveExpired promotes every PENDING_HR attendance and evaluation
// record whose HR window has elapsed to APPROVED. Returns the number of
// records promoted. Run periodically by the scheduler.
func (s *Service) AutoApproveExpired(ctx context.Context) (int, error) {
	cfg, err := s.Store.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolving config snapshot: %w", err)
	}
	now := s.now()
	promoted := 0

	attendance, err := s.Store.ListAttendanceByStatus(ctx, payroll.StatusPendingHR)
	if err != nil {
		return 0, err
	}
	for i := range attendance {
		rec := &attendance[i]
		deadline, ok := s.Engine.PendingHRDeadline(cfg, AttendanceState(rec))
		if !ok || now.Before(deadline) {
			continue
		}
		rec.Status = payroll.StatusApproved
		rec.ApprovedAt = &now
		rec.UpdatedAt = now
		if err := s.Store.UpsertAttendance(ctx, rec); err != nil {
			s.Log.WithError(err).WithField("record", string(rec.ID)).Warn("auto-approve write failed")
			continue
		}
		s.audit(ctx, "", payroll.AuditAutoApproved, payroll.ContentAttendance, rec.ID, rec.EmployeeID, nil)
		promoted++
	}

	evaluations, err := s.Store.ListEvaluationsByStatus(ctx, payroll.StatusPendingHR)
	if err != nil {
		return promoted, err
	}
	for i := range evaluations {
		req := &evaluations[i]
		deadline, ok := s.Engine.PendingHRDeadline(cfg, EvaluationState(req))
		if !ok || now.Before(deadline) {
			continue
		}
		req.Status = payroll.StatusApproved
		req.ApprovedAt = &now
		req.UpdatedAt = now
		if err := s.Store.UpsertEvaluation(ctx, req); err != nil {
			s.Log.WithError(err).WithField("record", string(req.ID)).Warn("auto-approve write failed")
			continue
		}
		s.audit(ctx, "", payroll.AuditAutoApproved, payroll.ContentEvaluation, req.ID, req.EmployeeID, nil)
		promoted++
	}

	if promoted > 0 {
		s.Log.WithField("count", promoted).Info("auto-approved expired HR-window records")
	}
	return promoted, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// checkInitiator enforces the workflow's initiator role set on submit. An
// empty set means anyone may submit.
func (s *Service) checkInitiator(actor, emp *payroll.Employee, cfg *payroll.SystemConfig, ct payroll.ContentType, state RecordState) error {
	wf := cfg.ActiveWorkflow(ct, emp.Assignment.RankID, state.EffectiveAt)
	if wf == nil {
		return payroll.ErrNoWorkflow
	}
	if len(wf.InitiatorRoleIDs) > 0 && !actor.HasRole(wf.InitiatorRoleIDs) {
		return &payroll.NotAuthorizedError{ActorID: actor.ID, ContentType: ct, Status: state.Status}
	}
	return nil
}

// resolve loads the config snapshot, the record's employee, and the actor.
func (s *Service) resolve(ctx context.Context, employeeID, actorID payroll.EmployeeID) (*payroll.SystemConfig, *payroll.Employee, *payroll.Employee, error) {
	cfg, err := s.Store.Snapshot(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolving config snapshot: %w", err)
	}
	emp, err := s.Store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, nil, nil, err
	}
	actor := emp
	if actorID != employeeID {
		if actor, err = s.Store.GetEmployee(ctx, actorID); err != nil {
			return nil, nil, nil, err
		}
	}
	return cfg, emp, actor, nil
}

func (s *Service) audit(ctx context.Context, actorID payroll.EmployeeID, action payroll.AuditAction, ct payroll.ContentType, recordID payroll.RecordID, employeeID payroll.EmployeeID, payload map[string]any) {
	entry := payroll.AuditEntry{
		ActorID:     actorID,
		Action:      action,
		ContentType: ct,
		RecordID:    recordID,
		EmployeeID:  employeeID,
		Payload:     payload,
	}
	// Audit failures are logged, never surfaced: the action itself succeeded.
	if err := s.Store.AppendAudit(ctx, entry); err != nil {
		s.Log.WithError(err).Warn("failed to append audit entry")
	}
}
