/*
config.go - System configuration snapshot and approval workflow versions

PURPOSE:
  SystemConfig is the process-wide configuration consumed by the salary
  engine: progressive tax brackets, seniority coefficient rules, insurance
  and union fee rates, and the approval workflow version history.

SNAPSHOT SEMANTICS:
  Calculation code never reads ambient global state. A ConfigProvider hands
  out an immutable snapshot which is resolved ONCE per calculation run, so a
  config edit can never corrupt an in-flight recomputation.

PENDING EDITS:
  A direct edit from an Admin actor applies immediately. An edit from a
  non-admin actor is staged as a one-slot pending proposal which an Admin
  approves or discards. This is a single-slot queue, not a versioned history.

WORKFLOW VERSIONS:
  ApprovalWorkflow entries are append-only: editing a workflow closes the
  current version (sets EffectiveTo) and appends a new one. Records are
  matched against the version whose effective window covers their relevant
  timestamp.

SEE ALSO:
  - workflow/engine.go: Consumes ApprovalWorkflow versions
  - salary/tax.go: Consumes PITSteps
  - salary/seniority.go: Consumes SeniorityRules
*/
package payroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TAX AND SENIORITY RULES
// =============================================================================

// PITStep is one progressive tax bracket, using the Vietnamese quick
// subtraction method: tax = taxable x Rate - Subtraction. Steps are ordered
// ascending by Threshold; the top step has Threshold zero (unbounded).
type PITStep struct {
	Label string

	// Upper bound of the band in VND. Zero means unbounded (top bracket).
	Threshold Money

	Rate decimal.Decimal // e.g. 0.05 for 5%

	// Precomputed so the tax formula remains continuous at band boundaries.
	Subtraction Money
}

// SeniorityRule maps a tenure range to a coefficient. The resolver is a step
// function: first rule with MinMonths <= tenure < MaxMonths wins
// (MaxMonths zero means open-ended).
type SeniorityRule struct {
	MinMonths   int
	MaxMonths   int
	Coefficient decimal.Decimal
}

// =============================================================================
// APPROVAL WORKFLOW VERSIONS
// =============================================================================

// ApprovalWorkflow is one version of the approval chain configuration for a
// content type. The version history is append-only: a closed EffectiveTo
// marks a superseded version.
type ApprovalWorkflow struct {
	ID          string
	ContentType ContentType

	// Empty means the workflow applies to all ranks.
	TargetRankIDs []RankID

	InitiatorRoleIDs []RoleID
	ApproverRoleIDs  []RoleID
	AuditorRoleIDs   []RoleID

	EffectiveFrom time.Time
	EffectiveTo   *time.Time // nil while active
}

// Covers reports whether this version's effective window covers t.
func (w *ApprovalWorkflow) Covers(t time.Time) bool {
	if t.Before(w.EffectiveFrom) {
		return false
	}
	return w.EffectiveTo == nil || t.Before(*w.EffectiveTo)
}

// AppliesToRank reports whether the workflow targets the given rank.
func (w *ApprovalWorkflow) AppliesToRank(rank RankID) bool {
	if len(w.TargetRankIDs) == 0 {
		return true
	}
	for _, r := range w.TargetRankIDs {
		if r == rank {
			return true
		}
	}
	return false
}

// =============================================================================
// SYSTEM CONFIG
// =============================================================================

// SystemConfig is the immutable configuration snapshot for one calculation
// run.
type SystemConfig struct {
	PITSteps       []PITStep
	SeniorityRules []SeniorityRule

	PersonalRelief  Money
	DependentRelief Money

	InsuranceRate decimal.Decimal // e.g. 0.105
	UnionFeeRate  decimal.Decimal // e.g. 0.01

	// Cap on the base used for insurance/union fee computation.
	MaxInsuranceBase Money

	// Hour windows for the HR post-audit step.
	HRAutoApproveHours  int // PENDING_HR auto-approves after this many hours
	MaxHoursForHRReview int // APPROVED reversible to DRAFT within this window

	Workflows []ApprovalWorkflow
}

// ActiveWorkflow returns the workflow version for the content type whose
// effective window covers asOf and which targets the given rank. Returns nil
// when no version matches.
func (c *SystemConfig) ActiveWorkflow(ct ContentType, rank RankID, asOf time.Time) *ApprovalWorkflow {
	for i := range c.Workflows {
		w := &c.Workflows[i]
		if w.ContentType == ct && w.Covers(asOf) && w.AppliesToRank(rank) {
			return w
		}
	}
	return nil
}

// Clone returns a deep copy safe to hold across a calculation run.
func (c *SystemConfig) Clone() *SystemConfig {
	out := *c
	out.PITSteps = append([]PITStep(nil), c.PITSteps...)
	out.SeniorityRules = append([]SeniorityRule(nil), c.SeniorityRules...)
	out.Workflows = make([]ApprovalWorkflow, len(c.Workflows))
	for i, w := range c.Workflows {
		w.TargetRankIDs = append([]RankID(nil), w.TargetRankIDs...)
		w.InitiatorRoleIDs = append([]RoleID(nil), w.InitiatorRoleIDs...)
		w.ApproverRoleIDs = append([]RoleID(nil), w.ApproverRoleIDs...)
		w.AuditorRoleIDs = append([]RoleID(nil), w.AuditorRoleIDs...)
		if w.EffectiveTo != nil {
			t := *w.EffectiveTo
			w.EffectiveTo = &t
		}
		out.Workflows[i] = w
	}
	return &out
}

// ConfigProvider resolves the configuration snapshot for a calculation run.
// Implementations must return a stable snapshot: later edits must not be
// visible through a previously returned value.
type ConfigProvider interface {
	Snapshot(ctx context.Context) (*SystemConfig, error)
}

// =============================================================================
// PENDING CONFIG - One-slot proposal queue for non-admin edits
// =============================================================================

// PendingConfig is a staged configuration edit awaiting admin review.
type PendingConfig struct {
	Config     SystemConfig
	ProposedBy EmployeeID
	ProposedAt time.Time
}
