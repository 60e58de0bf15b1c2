package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
	"github.com/warp/payroll-engine/workflow"
)

// =============================================================================
// SERVICE TEST FIXTURES
// =============================================================================

func newTestService(t *testing.T) (*workflow.Service, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	require.NoError(t, mem.SaveConfig(context.Background(), testConfig(fullWorkflow(), evaluationWorkflow())))

	mem.PutEmployee(*worker())
	mem.PutEmployee(*actor("staff-1", "payroll-staff"))
	mem.PutEmployee(*actor("mgr-1", roleApprover))
	mem.PutEmployee(*actor("gdk-1", roleApprover))
	mem.PutEmployee(*actor("bld-1", roleApprover))
	mem.PutEmployee(*actor("aud-1", roleAuditor))

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	svc := workflow.NewService(mem, log)
	svc.Now = func() time.Time { return testNow }
	return svc, mem
}

func evaluationWorkflow() payroll.ApprovalWorkflow {
	wf := fullWorkflow()
	wf.ID = "wf-eval-1"
	wf.ContentType = payroll.ContentEvaluation
	return wf
}

func draftAttendance(mem *store.Memory, t *testing.T) *payroll.AttendanceRecord {
	t.Helper()
	rec := &payroll.AttendanceRecord{
		ID:         "att-1",
		EmployeeID: "emp-1",
		Date:       time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
		Type:       payroll.AttendanceTime,
		Hours:      8,
		Status:     payroll.StatusDraft,
		CreatedAt:  time.Date(2026, time.March, 2, 17, 0, 0, 0, time.UTC),
	}
	require.NoError(t, mem.UpsertAttendance(context.Background(), rec))
	return rec
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmitAttendance_EntersFirstPendingStep(t *testing.T) {
	// GIVEN: A valid DRAFT attendance record for an employee with a manager
	// WHEN: Payroll staff submits it
	// THEN: It lands on PENDING_MANAGER and an audit entry is written

	svc, mem := newTestService(t)
	ctx := context.Background()
	rec := draftAttendance(mem, t)

	out, err := svc.SubmitAttendance(ctx, "staff-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPendingManager, out.Status)

	entries, err := mem.QueryAudit(ctx, payroll.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, payroll.AuditSubmitted, entries[0].Action)
	assert.Equal(t, rec.ID, entries[0].RecordID)
}

func TestSubmitAttendance_InvalidRecordStaysDraft(t *testing.T) {
	// GIVEN: A draft whose overtime exceeds worked hours
	// WHEN: Submitting it
	// THEN: Submission fails with a validation error; the stored record is
	//       untouched

	svc, mem := newTestService(t)
	ctx := context.Background()
	rec := draftAttendance(mem, t)
	rec.OvertimeHours = 12
	require.NoError(t, mem.UpsertAttendance(ctx, rec))

	_, err := svc.SubmitAttendance(ctx, "staff-1", rec.ID)
	var vErr *payroll.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "overtimeHours", vErr.Field)

	stored, err := mem.GetAttendance(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusDraft, stored.Status)
}

func TestSubmitAttendance_RequiresInitiatorRole(t *testing.T) {
	// GIVEN: A draft record and an actor carrying only the approver role
	// WHEN: That actor tries to submit
	// THEN: Submission is refused and the record stays on DRAFT

	svc, mem := newTestService(t)
	ctx := context.Background()
	rec := draftAttendance(mem, t)

	_, err := svc.SubmitAttendance(ctx, "mgr-1", rec.ID)
	assert.ErrorIs(t, err, payroll.ErrNotAuthorized)

	stored, err := mem.GetAttendance(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusDraft, stored.Status)
}

func TestSubmitAttendance_AlreadyPendingIsLocked(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	rec := draftAttendance(mem, t)

	_, err := svc.SubmitAttendance(ctx, "staff-1", rec.ID)
	require.NoError(t, err)

	_, err = svc.SubmitAttendance(ctx, "staff-1", rec.ID)
	assert.ErrorIs(t, err, payroll.ErrRecordLocked)
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

func TestApproveAttendance_WalksFullChain(t *testing.T) {
	// GIVEN: A submitted record and the four authorized approvers in order
	// WHEN: Each approves in turn
	// THEN: The record reaches APPROVED with SentToHRAt and ApprovedAt set

	svc, mem := newTestService(t)
	ctx := context.Background()
	rec := draftAttendance(mem, t)

	_, err := svc.SubmitAttendance(ctx, "staff-1", rec.ID)
	require.NoError(t, err)

	steps := []struct {
		actor payroll.EmployeeID
		want  payroll.ApprovalStatus
	}{
		{"mgr-1", payroll.StatusPendingGDK},
		{"gdk-1", payroll.StatusPendingBLD},
		{"bld-1", payroll.StatusPendingHR},
		{"aud-1", payroll.StatusApproved},
	}
	for _, s := range steps {
		out, err := svc.ApproveAttendance(ctx, s.actor, rec.ID)
		require.NoError(t, err, "approve by %s", s.actor)
		assert.Equal(t, s.want, out.Status)
	}

	final, err := mem.GetAttendance(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, final.SentToHRAt)
	require.NotNil(t, final.ApprovedAt)
	assert.Equal(t, testNow, *final.ApprovedAt)
}

func TestApproveAttendance_WrongActorDoesNotAdvance(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	rec := draftAttendance(mem, t)

	_, err := svc.SubmitAttendance(ctx, "staff-1", rec.ID)
	require.NoError(t, err)

	_, err = svc.ApproveAttendance(ctx, "gdk-1", rec.ID)
	assert.ErrorIs(t, err, payroll.ErrNotAuthorized)

	stored, err := mem.GetAttendance(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPendingManager, stored.Status)
}

func TestRejectAttendance_ReturnsToDraftWithReason(t *testing.T) {
	// GIVEN: A record on PENDING_MANAGER
	// WHEN: The manager rejects it with a reason
	// THEN: It returns to DRAFT carrying the reason, and its HR timestamps
	//       are cleared

	svc, mem := newTestService(t)
	ctx := context.Background()
	rec := draftAttendance(mem, t)

	_, err := svc.SubmitAttendance(ctx, "staff-1", rec.ID)
	require.NoError(t, err)

	out, err := svc.RejectAttendance(ctx, "mgr-1", rec.ID, "wrong overtime rate")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusDraft, out.Status)
	assert.Equal(t, "wrong overtime rate", out.RejectionReason)
	assert.Nil(t, out.SentToHRAt)
	assert.Nil(t, out.ApprovedAt)
}

func TestRejectAttendance_ResubmitAfterFix(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	rec := draftAttendance(mem, t)

	_, err := svc.SubmitAttendance(ctx, "staff-1", rec.ID)
	require.NoError(t, err)
	_, err = svc.RejectAttendance(ctx, "mgr-1", rec.ID, "fix hours")
	require.NoError(t, err)

	out, err := svc.SubmitAttendance(ctx, "staff-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPendingManager, out.Status)
}

func TestBatchApproveAttendance_FailuresAreIsolated(t *testing.T) {
	// GIVEN: Two submitted records and one unknown ID
	// WHEN: The manager batch-approves all three
	// THEN: The two real records advance; the unknown ID reports its own
	//       error without blocking the others

	svc, mem := newTestService(t)
	ctx := context.Background()

	ids := []payroll.RecordID{"att-a", "att-b"}
	for i, id := range ids {
		rec := draftAttendance(mem, t)
		rec.ID = id
		rec.Date = rec.Date.AddDate(0, 0, i+1)
		require.NoError(t, mem.UpsertAttendance(ctx, rec))
		_, err := svc.SubmitAttendance(ctx, "staff-1", id)
		require.NoError(t, err)
	}

	results := svc.BatchApproveAttendance(ctx, "mgr-1", []payroll.RecordID{"att-a", "att-missing", "att-b"})
	require.Len(t, results, 3)

	assert.Equal(t, payroll.StatusPendingGDK, results[0].Status)
	assert.NoError(t, results[0].Err)

	assert.ErrorIs(t, results[1].Err, payroll.ErrRecordNotFound)
	assert.NotEmpty(t, results[1].Error)

	assert.Equal(t, payroll.StatusPendingGDK, results[2].Status)
	assert.NoError(t, results[2].Err)
}

// =============================================================================
// EVALUATIONS
// =============================================================================

func TestSubmitEvaluation_NegativePointsRejected(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	req := &payroll.EvaluationRequest{
		ID:         "eval-1",
		EmployeeID: "emp-1",
		Month:      payroll.NewMonth(2026, time.March),
		Type:       payroll.EvaluationPenalty,
		Target:     payroll.TargetMonthlySalary,
		Points:     payroll.NewMoney(-2),
		Status:     payroll.StatusDraft,
		CreatedAt:  testNow.Add(-time.Hour),
	}
	require.NoError(t, mem.UpsertEvaluation(ctx, req))

	_, err := svc.SubmitEvaluation(ctx, "staff-1", req.ID)
	var vErr *payroll.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "points", vErr.Field)
}

func TestEvaluationLifecycle_SubmitApproveReject(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	req := &payroll.EvaluationRequest{
		ID:         "eval-2",
		EmployeeID: "emp-1",
		Month:      payroll.NewMonth(2026, time.March),
		Type:       payroll.EvaluationPenalty,
		Target:     payroll.TargetMonthlySalary,
		Points:     payroll.NewMoney(2),
		Status:     payroll.StatusDraft,
		CreatedAt:  testNow.Add(-time.Hour),
	}
	require.NoError(t, mem.UpsertEvaluation(ctx, req))

	out, err := svc.SubmitEvaluation(ctx, "staff-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPendingManager, out.Status)

	out, err = svc.ApproveEvaluation(ctx, "mgr-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPendingGDK, out.Status)

	out, err = svc.RejectEvaluation(ctx, "gdk-1", req.ID, "duplicate event")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusDraft, out.Status)
	assert.Equal(t, "duplicate event", out.RejectionReason)
}

// =============================================================================
// AUTO-APPROVE SWEEP
// =============================================================================

func TestAutoApproveExpired_PromotesOnlyElapsedWindows(t *testing.T) {
	// GIVEN: Two PENDING_HR records, one sent to HR 50h ago (window 48h),
	//        one sent 10h ago
	// WHEN: The sweep runs
	// THEN: Only the elapsed record is promoted, with an auto-approval audit
	//       entry

	svc, mem := newTestService(t)
	ctx := context.Background()

	elapsed := testNow.Add(-50 * time.Hour)
	fresh := testNow.Add(-10 * time.Hour)

	old := draftAttendance(mem, t)
	old.ID = "att-old"
	old.Date = old.Date.AddDate(0, 0, 1)
	old.Status = payroll.StatusPendingHR
	old.SentToHRAt = &elapsed
	require.NoError(t, mem.UpsertAttendance(ctx, old))

	recent := draftAttendance(mem, t)
	recent.ID = "att-recent"
	recent.Date = recent.Date.AddDate(0, 0, 2)
	recent.Status = payroll.StatusPendingHR
	recent.SentToHRAt = &fresh
	require.NoError(t, mem.UpsertAttendance(ctx, recent))

	promoted, err := svc.AutoApproveExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	stored, err := mem.GetAttendance(ctx, "att-old")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusApproved, stored.Status)
	require.NotNil(t, stored.ApprovedAt)

	stored, err = mem.GetAttendance(ctx, "att-recent")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPendingHR, stored.Status)

	ct := payroll.ContentAttendance
	entries, err := mem.QueryAudit(ctx, payroll.AuditFilter{ContentType: &ct})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, payroll.AuditAutoApproved, entries[0].Action)
	assert.Equal(t, payroll.RecordID("att-old"), entries[0].RecordID)
}

func TestAutoApproveExpired_SweepsEvaluationsToo(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	elapsed := testNow.Add(-72 * time.Hour)
	req := &payroll.EvaluationRequest{
		ID:         "eval-old",
		EmployeeID: "emp-1",
		Month:      payroll.NewMonth(2026, time.February),
		Type:       payroll.EvaluationBonus,
		Target:     payroll.TargetMonthlySalary,
		Points:     payroll.NewMoney(1),
		Status:     payroll.StatusPendingHR,
		SentToHRAt: &elapsed,
		CreatedAt:  elapsed,
	}
	require.NoError(t, mem.UpsertEvaluation(ctx, req))

	promoted, err := svc.AutoApproveExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	stored, err := mem.GetEvaluation(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusApproved, stored.Status)
}
