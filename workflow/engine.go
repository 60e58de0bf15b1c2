/*
engine.go - Approval transitions, permission checks, and post-audit windows

TRANSITIONS:
  Submit:  DRAFT -> first applicable pending step (APPROVED when the chain
           is empty)
  Approve: current pending step -> next pending step, or APPROVED when the
           chain is exhausted
  Reject:  any pending step -> DRAFT (with reason); APPROVED -> DRAFT only
           by an HR auditor inside the post-audit window

POST-AUDIT TIME BOX:
  PENDING_HR records auto-approve at sentToHrAt + HRAutoApproveHours (the
  scheduler sweeps these). APPROVED records remain reversible to DRAFT
  until approvedAt + MaxHoursForHRReview. Both deadlines are enforced here,
  server-side; the UI graying-out is a convenience, not the boundary.

BATCH SEMANTICS:
  Batch approval is a convenience wrapper in the API layer. Every record
  passes CanAct independently; one record's rejection never blocks the
  others.
*/
package workflow

import (
	"time"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// RECORD STATE - The slice of a record the engine needs
// =============================================================================

// RecordState is the workflow-relevant projection of a record. EffectiveAt
// is the record's relevant timestamp, used to select the workflow version
// whose effective window covers it.
type RecordState struct {
	ID          payroll.RecordID
	Status      payroll.ApprovalStatus
	EffectiveAt time.Time
	SentToHRAt  *time.Time
	ApprovedAt  *time.Time
}

// AttendanceState projects an attendance record.
func AttendanceState(rec *payroll.AttendanceRecord) RecordState {
	return RecordState{
		ID:          rec.ID,
		Status:      rec.Status,
		EffectiveAt: rec.CreatedAt,
		SentToHRAt:  rec.SentToHRAt,
		ApprovedAt:  rec.ApprovedAt,
	}
}

// EvaluationState projects an evaluation request.
func EvaluationState(req *payroll.EvaluationRequest) RecordState {
	return RecordState{
		ID:          req.ID,
		Status:      req.Status,
		EffectiveAt: req.CreatedAt,
		SentToHRAt:  req.SentToHRAt,
		ApprovedAt:  req.ApprovedAt,
	}
}

// SalaryState projects a salary record.
func SalaryState(rec *payroll.SalaryRecord) RecordState {
	return RecordState{
		ID:          rec.ID,
		Status:      rec.Status,
		EffectiveAt: rec.CreatedAt,
		SentToHRAt:  rec.SentToHRAt,
		ApprovedAt:  rec.ApprovedAt,
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine evaluates approval transitions against a configuration snapshot.
// It is stateless; all inputs are explicit.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// chainFor resolves the active workflow version for the record and builds
// the employee's step chain.
func (e *Engine) chainFor(emp *payroll.Employee, cfg *payroll.SystemConfig, ct payroll.ContentType, state RecordState) ([]Step, error) {
	wf := cfg.ActiveWorkflow(ct, emp.Assignment.RankID, state.EffectiveAt)
	if wf == nil {
		return nil, payroll.ErrNoWorkflow
	}
	return BuildChain(emp, wf), nil
}

// Chain exposes the employee's approval chain for a record; callers use it
// to display progress and to bound the number of approval steps.
func (e *Engine) Chain(emp *payroll.Employee, cfg *payroll.SystemConfig, ct payroll.ContentType, state RecordState) ([]Step, error) {
	return e.chainFor(emp, cfg, ct, state)
}

// NextStatus returns the status that follows the current one on
// submit/approve. From DRAFT it returns the first applicable pending step;
// from a pending step, the next one; APPROVED when no further step applies.
func (e *Engine) NextStatus(emp *payroll.Employee, cfg *payroll.SystemConfig, ct payroll.ContentType, state RecordState) (payroll.ApprovalStatus, error) {
	chain, err := e.chainFor(emp, cfg, ct, state)
	if err != nil {
		return state.Status, err
	}

	switch {
	case state.Status == payroll.StatusDraft:
		if len(chain) == 0 {
			return payroll.StatusApproved, nil
		}
		return chain[0].Kind.PendingStatus(), nil

	case state.Status.IsPending():
		idx := stepIndex(chain, state.Status)
		if idx < 0 {
			// The chain no longer contains the current step (config
			// changed mid-flight); the record completes as APPROVED.
			return payroll.StatusApproved, nil
		}
		if idx+1 < len(chain) {
			return chain[idx+1].Kind.PendingStatus(), nil
		}
		return payroll.StatusApproved, nil

	default:
		return state.Status, payroll.ErrInvalidTransition
	}
}

// CanAct reports whether the actor may approve/reject the record in its
// current status. For APPROVED records it additionally enforces the
// post-audit deadline: only an HR auditor, only before approvedAt +
// MaxHoursForHRReview.
func (e *Engine) CanAct(actor, emp *payroll.Employee, cfg *payroll.SystemConfig, ct payroll.ContentType, state RecordState, now time.Time) error {
	wf := cfg.ActiveWorkflow(ct, emp.Assignment.RankID, state.EffectiveAt)
	if wf == nil {
		return payroll.ErrNoWorkflow
	}

	switch {
	case state.Status.IsPending():
		chain := BuildChain(emp, wf)
		idx := stepIndex(chain, state.Status)
		if idx < 0 || !chain[idx].Authorizes(actor) {
			return &payroll.NotAuthorizedError{ActorID: actor.ID, ContentType: ct, Status: state.Status}
		}
		return nil

	case state.Status == payroll.StatusApproved:
		if !actor.HasRole(wf.AuditorRoleIDs) {
			return &payroll.NotAuthorizedError{ActorID: actor.ID, ContentType: ct, Status: state.Status}
		}
		deadline, ok := e.PostAuditDeadline(cfg, state)
		if !ok {
			return &payroll.DeadlinePassedError{RecordID: state.ID, Deadline: state.EffectiveAt}
		}
		if now.After(deadline) {
			return &payroll.DeadlinePassedError{RecordID: state.ID, Deadline: deadline}
		}
		return nil

	default:
		return payroll.ErrInvalidTransition
	}
}

// Approve advances the record one step. The returned status is the next
// pending step or APPROVED.
func (e *Engine) Approve(actor, emp *payroll.Employee, cfg *payroll.SystemConfig, ct payroll.ContentType, state RecordState, now time.Time) (payroll.ApprovalStatus, error) {
	if !state.Status.IsPending() {
		return state.Status, payroll.ErrInvalidTransition
	}
	if err := e.CanAct(actor, emp, cfg, ct, state, now); err != nil {
		return state.Status, err
	}
	return e.NextStatus(emp, cfg, ct, state)
}

// Reject returns the record to DRAFT. Permitted from any pending state for
// an authorized approver, and from APPROVED only for an HR auditor inside
// the post-audit window. Rejection never skips forward.
func (e *Engine) Reject(actor, emp *payroll.Employee, cfg *payroll.SystemConfig, ct payroll.ContentType, state RecordState, now time.Time) (payroll.ApprovalStatus, error) {
	if state.Status == payroll.StatusDraft || state.Status == payroll.StatusRejected {
		return state.Status, payroll.ErrInvalidTransition
	}
	if err := e.CanAct(actor, emp, cfg, ct, state, now); err != nil {
		return state.Status, err
	}
	return payroll.StatusDraft, nil
}

// =============================================================================
// POST-AUDIT DEADLINES
// =============================================================================

// PendingHRDeadline returns the instant a PENDING_HR record auto-approves.
// ok is false when the record never entered the HR window.
func (e *Engine) PendingHRDeadline(cfg *payroll.SystemConfig, state RecordState) (time.Time, bool) {
	if state.SentToHRAt == nil || cfg.HRAutoApproveHours <= 0 {
		return time.Time{}, false
	}
	return state.SentToHRAt.Add(time.Duration(cfg.HRAutoApproveHours) * time.Hour), true
}

// PostAuditDeadline returns the instant after which an APPROVED record can
// no longer be reverted to DRAFT.
func (e *Engine) PostAuditDeadline(cfg *payroll.SystemConfig, state RecordState) (time.Time, bool) {
	if state.ApprovedAt == nil || cfg.MaxHoursForHRReview <= 0 {
		return time.Time{}, false
	}
	return state.ApprovedAt.Add(time.Duration(cfg.MaxHoursForHRReview) * time.Hour), true
}
