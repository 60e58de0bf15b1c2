package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/payroll"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEmployeeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	emp := &payroll.Employee{
		ID:               "emp-1",
		Name:             "Nguyen Van A",
		PaymentType:      payroll.PaymentTime,
		EfficiencySalary: payroll.NewMoney(5_000_000),
		ProbationRate:    decimal.NewFromInt(100),
		JoinedAt:         payroll.NewMonth(2024, time.August),
		Assignment: payroll.Assignment{
			DepartmentID: "dept-1",
			RankID:       "staff",
			GradeID:      "grade-1",
			ManagerID:    "mgr-1",
		},
		RoleIDs: []payroll.RoleID{"payroll_staff"},
	}
	require.NoError(t, s.SaveEmployee(ctx, emp))

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, emp.Name, got.Name)
	assert.Equal(t, int64(5_000_000), got.EfficiencySalary.Int64())
	assert.Equal(t, payroll.EmployeeID("mgr-1"), got.Assignment.ManagerID)
	assert.Equal(t, emp.JoinedAt, got.JoinedAt)
	assert.Nil(t, got.SideAssignment)

	_, err = s.GetEmployee(ctx, "emp-missing")
	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)
}

func TestAttendanceMonthWindow(t *testing.T) {
	// GIVEN records on the last day of July and the first day of August
	s := newTestStore(t)
	ctx := context.Background()

	for _, date := range []time.Time{
		time.Date(2026, time.July, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC),
	} {
		rec := payroll.AttendanceRecord{
			ID:         payroll.NewRecordID(),
			EmployeeID: "emp-1",
			Date:       date,
			Type:       payroll.AttendanceTime,
			Hours:      8,
			Status:     payroll.StatusApproved,
		}
		require.NoError(t, s.UpsertAttendance(ctx, &rec))
	}

	// WHEN listing August
	recs, err := s.ListAttendance(ctx, "emp-1", payroll.NewMonth(2026, time.August))
	require.NoError(t, err)

	// THEN only the August record is returned
	require.Len(t, recs, 1)
	assert.Equal(t, time.August, recs[0].Date.Month())
}

func TestAttendanceOneRecordPerDay(t *testing.T) {
	// GIVEN a stored record for an employee-day
	s := newTestStore(t)
	ctx := context.Background()

	day := time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC)
	first := payroll.AttendanceRecord{
		ID:         payroll.NewRecordID(),
		EmployeeID: "emp-1",
		Date:       day,
		Type:       payroll.AttendanceTime,
		Hours:      8,
		Status:     payroll.StatusDraft,
	}
	require.NoError(t, s.UpsertAttendance(ctx, &first))

	// WHEN a second record targets the same day
	second := first
	second.ID = payroll.NewRecordID()
	err := s.UpsertAttendance(ctx, &second)

	// THEN it is refused as a conflict; updating the original still works
	assert.ErrorIs(t, err, payroll.ErrDuplicateAttendance)
	assert.True(t, payroll.IsConflict(err))

	first.Hours = 7
	require.NoError(t, s.UpsertAttendance(ctx, &first))

	// A different employee on the same day is unaffected.
	other := first
	other.ID = payroll.NewRecordID()
	other.EmployeeID = "emp-2"
	require.NoError(t, s.UpsertAttendance(ctx, &other))
}

func TestSalaryRecordOptimisticVersioning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	month := payroll.NewMonth(2026, time.August)

	// Missing record reads back as nil, not an error.
	missing, err := s.GetSalaryRecord(ctx, "emp-1", month)
	require.NoError(t, err)
	assert.Nil(t, missing)

	rec := &payroll.SalaryRecord{
		ID:         payroll.NewRecordID(),
		EmployeeID: "emp-1",
		Month:      month,
		NetSalary:  payroll.NewMoney(9_000_000),
		Status:     payroll.StatusDraft,
	}
	require.NoError(t, s.UpsertSalaryRecord(ctx, rec))
	assert.Equal(t, 1, rec.Version)

	// GIVEN two readers holding the same version
	a, err := s.GetSalaryRecord(ctx, "emp-1", month)
	require.NoError(t, err)
	b, err := s.GetSalaryRecord(ctx, "emp-1", month)
	require.NoError(t, err)

	// WHEN both write
	a.NetSalary = payroll.NewMoney(9_100_000)
	require.NoError(t, s.UpsertSalaryRecord(ctx, a))

	b.NetSalary = payroll.NewMoney(9_200_000)
	err = s.UpsertSalaryRecord(ctx, b)

	// THEN the second writer loses
	assert.ErrorIs(t, err, payroll.ErrStaleRecord)

	persisted, err := s.GetSalaryRecord(ctx, "emp-1", month)
	require.NoError(t, err)
	assert.Equal(t, int64(9_100_000), persisted.NetSalary.Int64())
}

func TestPendingConfigOneSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := &payroll.SystemConfig{
		InsuranceRate: decimal.NewFromFloat(0.105),
		UnionFeeRate:  decimal.NewFromFloat(0.01),
	}
	require.NoError(t, s.SaveConfig(ctx, cfg))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(0.105).Equal(snap.InsuranceRate))

	// Empty slot reads back as ErrNoPendingConfig.
	_, err = s.GetPendingConfig(ctx)
	assert.ErrorIs(t, err, payroll.ErrNoPendingConfig)

	proposal := &payroll.PendingConfig{
		Config:     *cfg,
		ProposedBy: "hr-1",
		ProposedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SavePendingConfig(ctx, proposal))

	// One slot only: a second proposal is refused.
	err = s.SavePendingConfig(ctx, proposal)
	assert.ErrorIs(t, err, payroll.ErrPendingConfigExists)

	got, err := s.GetPendingConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, payroll.EmployeeID("hr-1"), got.ProposedBy)

	require.NoError(t, s.ClearPendingConfig(ctx))
	_, err = s.GetPendingConfig(ctx)
	assert.ErrorIs(t, err, payroll.ErrNoPendingConfig)
}

func TestFormulaListing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveFormula(ctx, formula.SalaryFormula{
		ID: "f-2", TargetField: "OTHER_SALARY", Expression: "OT_tc * 100", Order: 20, Active: true,
	}))
	require.NoError(t, s.SaveFormula(ctx, formula.SalaryFormula{
		ID: "f-1", TargetField: "ACTUAL_BASE_SALARY", Expression: "LCB_dm", Order: 10, Active: true,
	}))
	require.NoError(t, s.SaveFormula(ctx, formula.SalaryFormula{
		ID: "f-off", TargetField: "OTHER_SALARY", Expression: "0", Order: 5, Active: false,
	}))

	// Inactive formulas are excluded, the rest come back in eval order.
	formulas, err := s.ListActiveFormulas(ctx)
	require.NoError(t, err)
	require.Len(t, formulas, 2)
	assert.Equal(t, "f-1", formulas[0].ID)
	assert.Equal(t, "f-2", formulas[1].ID)
}

func TestAuditQueryFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, e := range []payroll.AuditEntry{
		{ActorID: "mgr-1", Action: payroll.AuditApproved, ContentType: payroll.ContentAttendance, EmployeeID: "emp-1"},
		{ActorID: "mgr-1", Action: payroll.AuditRejected, ContentType: payroll.ContentAttendance, EmployeeID: "emp-2"},
		{ActorID: "hr-1", Action: payroll.AuditRecomputed, ContentType: payroll.ContentSalary, EmployeeID: "emp-1"},
	} {
		require.NoError(t, s.AppendAudit(ctx, e))
	}

	empID := payroll.EmployeeID("emp-1")
	entries, err := s.QueryAudit(ctx, payroll.AuditFilter{EmployeeID: &empID})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	ct := payroll.ContentSalary
	entries, err = s.QueryAudit(ctx, payroll.AuditFilter{EmployeeID: &empID, ContentType: &ct})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, payroll.AuditRecomputed, entries[0].Action)
}
