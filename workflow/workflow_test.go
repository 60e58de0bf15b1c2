package workflow_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/workflow"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

const (
	roleApprover = payroll.RoleID("approver")
	roleAuditor  = payroll.RoleID("hr-auditor")
)

func fullWorkflow() payroll.ApprovalWorkflow {
	return payroll.ApprovalWorkflow{
		ID:               "wf-att-1",
		ContentType:      payroll.ContentAttendance,
		ApproverRoleIDs:  []payroll.RoleID{roleApprover},
		AuditorRoleIDs:   []payroll.RoleID{roleAuditor},
		InitiatorRoleIDs: []payroll.RoleID{"payroll-staff"},
		EffectiveFrom:    time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testConfig(wfs ...payroll.ApprovalWorkflow) *payroll.SystemConfig {
	return &payroll.SystemConfig{
		HRAutoApproveHours:  48,
		MaxHoursForHRReview: 72,
		Workflows:           wfs,
	}
}

func worker() *payroll.Employee {
	return &payroll.Employee{
		ID: "emp-1",
		Assignment: payroll.Assignment{
			RankID:          "staff",
			ManagerID:       "mgr-1",
			BlockDirectorID: "gdk-1",
		},
	}
}

func actor(id payroll.EmployeeID, roles ...payroll.RoleID) *payroll.Employee {
	return &payroll.Employee{ID: id, RoleIDs: roles}
}

func stateAt(status payroll.ApprovalStatus) workflow.RecordState {
	return workflow.RecordState{
		ID:          "rec-1",
		Status:      status,
		EffectiveAt: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
	}
}

var testNow = time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)

// =============================================================================
// CHAIN WALK TESTS
// =============================================================================

func TestNextStatus_FullChain_TerminalReachability(t *testing.T) {
	// GIVEN: A workflow with approver and auditor roles and a full
	//        department hierarchy (manager + block director)
	// WHEN: Walking NextStatus from DRAFT with authorized actors
	// THEN: APPROVED is reached in exactly chain-length steps, in order
	//       manager -> block director -> executive board -> HR

	engine := workflow.NewEngine()
	cfg := testConfig(fullWorkflow())
	emp := worker()

	state := stateAt(payroll.StatusDraft)
	chain, err := engine.Chain(emp, cfg, payroll.ContentAttendance, state)
	require.NoError(t, err)
	require.Len(t, chain, 4)

	want := []payroll.ApprovalStatus{
		payroll.StatusPendingManager,
		payroll.StatusPendingGDK,
		payroll.StatusPendingBLD,
		payroll.StatusPendingHR,
		payroll.StatusApproved,
	}

	for _, expected := range want {
		next, err := engine.NextStatus(emp, cfg, payroll.ContentAttendance, state)
		require.NoError(t, err)
		assert.Equal(t, expected, next)
		state.Status = next
	}
}

func TestNextStatus_NoBlockDirector_StepSkipped(t *testing.T) {
	// GIVEN: An employee whose department has no block director
	// WHEN: Walking the chain
	// THEN: PENDING_GDK never appears

	engine := workflow.NewEngine()
	cfg := testConfig(fullWorkflow())
	emp := worker()
	emp.Assignment.BlockDirectorID = ""

	state := stateAt(payroll.StatusDraft)
	next, err := engine.NextStatus(emp, cfg, payroll.ContentAttendance, state)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPendingManager, next)

	state.Status = next
	next, err = engine.NextStatus(emp, cfg, payroll.ContentAttendance, state)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPendingBLD, next, "block director step skipped")
}

func TestNextStatus_AuditorOnlyWorkflow_SingleStep(t *testing.T) {
	wf := fullWorkflow()
	wf.ApproverRoleIDs = nil

	engine := workflow.NewEngine()
	cfg := testConfig(wf)
	state := stateAt(payroll.StatusDraft)

	next, err := engine.NextStatus(worker(), cfg, payroll.ContentAttendance, state)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPendingHR, next)
}

func TestNextStatus_RankFilter_WildcardAndExplicit(t *testing.T) {
	// GIVEN: Two workflow versions: one targeting rank "director", one
	//        wildcard
	// WHEN: Resolving for a staff employee
	// THEN: The wildcard version applies

	targeted := fullWorkflow()
	targeted.ID = "wf-directors"
	targeted.TargetRankIDs = []payroll.RankID{"director"}
	targeted.AuditorRoleIDs = nil

	wildcard := fullWorkflow()
	wildcard.ID = "wf-all"

	engine := workflow.NewEngine()
	cfg := testConfig(targeted, wildcard)

	state := stateAt(payroll.StatusDraft)
	chain, err := engine.Chain(worker(), cfg, payroll.ContentAttendance, state)
	require.NoError(t, err)
	assert.Len(t, chain, 4, "wildcard version with auditor step applies")
}

func TestNextStatus_NoWorkflowConfigured(t *testing.T) {
	engine := workflow.NewEngine()
	cfg := testConfig() // empty

	_, err := engine.NextStatus(worker(), cfg, payroll.ContentAttendance, stateAt(payroll.StatusDraft))
	assert.ErrorIs(t, err, payroll.ErrNoWorkflow)
}

func TestNextStatus_SupersededVersionNotUsed(t *testing.T) {
	// GIVEN: A closed (superseded) workflow version and an active successor
	//        without approver roles
	// WHEN: Resolving for a record created after the handover
	// THEN: The active version applies

	old := fullWorkflow()
	old.ID = "wf-v1"
	closed := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	old.EffectiveTo = &closed

	current := fullWorkflow()
	current.ID = "wf-v2"
	current.EffectiveFrom = closed
	current.ApproverRoleIDs = nil

	engine := workflow.NewEngine()
	cfg := testConfig(old, current)

	next, err := engine.NextStatus(worker(), cfg, payroll.ContentAttendance, stateAt(payroll.StatusDraft))
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPendingHR, next)
}

// =============================================================================
// PERMISSION TESTS
// =============================================================================

func TestCanAct_OnlyDesignatedManagerOnPendingManager(t *testing.T) {
	// GIVEN: A record in PENDING_MANAGER
	// WHEN: The designated manager, another manager, and an unauthorized
	//       actor each attempt to act
	// THEN: Only the designated manager passes

	engine := workflow.NewEngine()
	cfg := testConfig(fullWorkflow())
	emp := worker()
	state := stateAt(payroll.StatusPendingManager)

	assert.NoError(t, engine.CanAct(actor("mgr-1", roleApprover), emp, cfg, payroll.ContentAttendance, state, testNow))

	err := engine.CanAct(actor("mgr-2", roleApprover), emp, cfg, payroll.ContentAttendance, state, testNow)
	assert.ErrorIs(t, err, payroll.ErrNotAuthorized, "wrong manager")

	err = engine.CanAct(actor("emp-9"), emp, cfg, payroll.ContentAttendance, state, testNow)
	assert.ErrorIs(t, err, payroll.ErrNotAuthorized, "no role")
}

func TestCanAct_AuditorCannotActOnManagerStep(t *testing.T) {
	engine := workflow.NewEngine()
	cfg := testConfig(fullWorkflow())
	state := stateAt(payroll.StatusPendingManager)

	err := engine.CanAct(actor("aud-1", roleAuditor), worker(), cfg, payroll.ContentAttendance, state, testNow)
	assert.ErrorIs(t, err, payroll.ErrNotAuthorized)
}

func TestCanAct_NotAuthorizedErrorCarriesContext(t *testing.T) {
	engine := workflow.NewEngine()
	cfg := testConfig(fullWorkflow())
	state := stateAt(payroll.StatusPendingManager)

	err := engine.CanAct(actor("emp-9"), worker(), cfg, payroll.ContentAttendance, state, testNow)
	var naErr *payroll.NotAuthorizedError
	require.ErrorAs(t, err, &naErr)
	assert.Equal(t, payroll.EmployeeID("emp-9"), naErr.ActorID)
	assert.Equal(t, payroll.StatusPendingManager, naErr.Status)
}

// =============================================================================
// REJECTION TESTS
// =============================================================================

func TestReject_FromAnyPendingState_ResetsToDraft(t *testing.T) {
	engine := workflow.NewEngine()
	cfg := testConfig(fullWorkflow())
	emp := worker()

	cases := []struct {
		status payroll.ApprovalStatus
		by     *payroll.Employee
	}{
		{payroll.StatusPendingManager, actor("mgr-1", roleApprover)},
		{payroll.StatusPendingGDK, actor("gdk-1", roleApprover)},
		{payroll.StatusPendingBLD, actor("bld-1", roleApprover)},
		{payroll.StatusPendingHR, actor("aud-1", roleAuditor)},
	}

	for _, tc := range cases {
		next, err := engine.Reject(tc.by, emp, cfg, payroll.ContentAttendance, stateAt(tc.status), testNow)
		require.NoError(t, err, "reject from %s", tc.status)
		assert.Equal(t, payroll.StatusDraft, next, "reject from %s resets to DRAFT", tc.status)
	}
}

func TestReject_FromDraft_Invalid(t *testing.T) {
	engine := workflow.NewEngine()
	cfg := testConfig(fullWorkflow())

	_, err := engine.Reject(actor("mgr-1", roleApprover), worker(), cfg, payroll.ContentAttendance, stateAt(payroll.StatusDraft), testNow)
	assert.ErrorIs(t, err, payroll.ErrInvalidTransition)
}

// =============================================================================
// POST-AUDIT WINDOW TESTS
// =============================================================================

func approvedState(approvedAt time.Time) workflow.RecordState {
	s := stateAt(payroll.StatusApproved)
	s.ApprovedAt = &approvedAt
	return s
}

func TestReject_ApprovedInsideWindow_AuditorMayRevert(t *testing.T) {
	// GIVEN: A record approved 24h ago with a 72h review window
	// WHEN: An HR auditor rejects it
	// THEN: It returns to DRAFT

	engine := workflow.NewEngine()
	cfg := testConfig(fullWorkflow())
	state := approvedState(testNow.Add(-24 * time.Hour))

	next, err := engine.Reject(actor("aud-1", roleAuditor), worker(), cfg, payroll.ContentAttendance, state, testNow)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusDraft, next)
}

func TestReject_ApprovedPastDeadline_Rejected(t *testing.T) {
	// GIVEN: A record approved 100h ago with a 72h review window
	// WHEN: An HR auditor attempts the reversal
	// THEN: It fails with a deadline error - a permission boundary, not an
	//       exception

	engine := workflow.NewEngine()
	cfg := testConfig(fullWorkflow())
	state := approvedState(testNow.Add(-100 * time.Hour))

	_, err := engine.Reject(actor("aud-1", roleAuditor), worker(), cfg, payroll.ContentAttendance, state, testNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, payroll.ErrDeadlinePassed)

	var dlErr *payroll.DeadlinePassedError
	require.True(t, errors.As(err, &dlErr))
	assert.Equal(t, state.ApprovedAt.Add(72*time.Hour), dlErr.Deadline)
}

func TestReject_ApprovedByNonAuditor_NotAuthorized(t *testing.T) {
	engine := workflow.NewEngine()
	cfg := testConfig(fullWorkflow())
	state := approvedState(testNow.Add(-24 * time.Hour))

	_, err := engine.Reject(actor("mgr-1", roleApprover), worker(), cfg, payroll.ContentAttendance, state, testNow)
	assert.ErrorIs(t, err, payroll.ErrNotAuthorized)
}

func TestPendingHRDeadline(t *testing.T) {
	engine := workflow.NewEngine()
	cfg := testConfig(fullWorkflow())

	sent := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	state := stateAt(payroll.StatusPendingHR)
	state.SentToHRAt = &sent

	deadline, ok := engine.PendingHRDeadline(cfg, state)
	require.True(t, ok)
	assert.Equal(t, sent.Add(48*time.Hour), deadline)

	state.SentToHRAt = nil
	_, ok = engine.PendingHRDeadline(cfg, state)
	assert.False(t, ok)
}
