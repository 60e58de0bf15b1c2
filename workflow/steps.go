/*
Package workflow implements the approval state machine shared by
attendance, evaluation, and salary records.

PURPOSE:
  Given a content type, the employee the record belongs to, and the
  workflow configuration version covering the record, this package
  determines the ordered chain of approval steps, the next status on
  submit/approve, and whether a given actor may act on the current status.

STATE MACHINE:
  DRAFT -> PENDING_MANAGER -> PENDING_GDK -> PENDING_BLD -> PENDING_HR
        -> APPROVED

  Steps that do not apply (role set empty, or the employee has no such
  superior) are skipped. Rejection from any pending state returns the
  record to DRAFT and never skips forward. An APPROVED record may still be
  rejected back to DRAFT by an HR auditor during the post-audit window.

STEP PIPELINE:
  The chain is expressed as an explicit ordered list of typed steps
  (Manager, BlockDirector, ExecutiveBoard, HRAuditor), each carrying its
  required role set and an applicability predicate - a data-driven but
  strongly-typed replacement for ad-hoc chained role-ID lookups.

SEE ALSO:
  - engine.go: NextStatus / CanAct / Reject and post-audit deadlines
  - payroll/config.go: ApprovalWorkflow version history
*/
package workflow

import (
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// STEP - One stop in the approval chain
// =============================================================================

type StepKind string

const (
	StepManager        StepKind = "manager"
	StepBlockDirector  StepKind = "block_director"
	StepExecutiveBoard StepKind = "executive_board"
	StepHRAuditor      StepKind = "hr_auditor"
)

// PendingStatus returns the pending state a record sits in while waiting for
// this step.
func (k StepKind) PendingStatus() payroll.ApprovalStatus {
	switch k {
	case StepManager:
		return payroll.StatusPendingManager
	case StepBlockDirector:
		return payroll.StatusPendingGDK
	case StepExecutiveBoard:
		return payroll.StatusPendingBLD
	case StepHRAuditor:
		return payroll.StatusPendingHR
	default:
		return payroll.StatusDraft
	}
}

// stepForStatus maps a pending status back to its step kind.
func stepForStatus(s payroll.ApprovalStatus) (StepKind, bool) {
	switch s {
	case payroll.StatusPendingManager:
		return StepManager, true
	case payroll.StatusPendingGDK:
		return StepBlockDirector, true
	case payroll.StatusPendingBLD:
		return StepExecutiveBoard, true
	case payroll.StatusPendingHR:
		return StepHRAuditor, true
	default:
		return "", false
	}
}

// Step is one typed stop in the approval chain.
type Step struct {
	Kind StepKind

	// Roles allowed to act on this step.
	RequiredRoles []payroll.RoleID

	// Specific approver for hierarchy steps (the employee's direct manager
	// or block director). Empty for board/auditor steps, which are gated by
	// role alone.
	Approver payroll.EmployeeID
}

// Authorizes reports whether the actor may act on this step: the actor must
// hold one of the required roles, and for hierarchy steps must be the
// designated superior.
func (s Step) Authorizes(actor *payroll.Employee) bool {
	if !actor.HasRole(s.RequiredRoles) {
		return false
	}
	if s.Approver != "" && actor.ID != s.Approver {
		return false
	}
	return true
}

// =============================================================================
// CHAIN CONSTRUCTION
// =============================================================================

// BuildChain derives the ordered step chain for an employee from a workflow
// version. Steps with no applicable role set are skipped; hierarchy steps
// are skipped when the employee has no such superior. The HR auditor step
// is present whenever auditor roles are configured.
func BuildChain(emp *payroll.Employee, wf *payroll.ApprovalWorkflow) []Step {
	var chain []Step

	if len(wf.ApproverRoleIDs) > 0 {
		if emp.Assignment.ManagerID != "" {
			chain = append(chain, Step{
				Kind:          StepManager,
				RequiredRoles: wf.ApproverRoleIDs,
				Approver:      emp.Assignment.ManagerID,
			})
		}
		if emp.Assignment.BlockDirectorID != "" {
			chain = append(chain, Step{
				Kind:          StepBlockDirector,
				RequiredRoles: wf.ApproverRoleIDs,
				Approver:      emp.Assignment.BlockDirectorID,
			})
		}
		chain = append(chain, Step{
			Kind:          StepExecutiveBoard,
			RequiredRoles: wf.ApproverRoleIDs,
		})
	}

	if len(wf.AuditorRoleIDs) > 0 {
		chain = append(chain, Step{
			Kind:          StepHRAuditor,
			RequiredRoles: wf.AuditorRoleIDs,
		})
	}

	return chain
}

// stepIndex returns the position of the step handling the given pending
// status, or -1 when the chain has no such step.
func stepIndex(chain []Step, status payroll.ApprovalStatus) int {
	kind, ok := stepForStatus(status)
	if !ok {
		return -1
	}
	for i, s := range chain {
		if s.Kind == kind {
			return i
		}
	}
	return -1
}
