package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

func TestMemoryAttendanceOneRecordPerDay(t *testing.T) {
	// GIVEN a stored record for an employee-day
	m := NewMemory()
	ctx := context.Background()

	day := time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC)
	first := payroll.AttendanceRecord{
		ID:         "att-1",
		EmployeeID: "emp-1",
		Date:       day,
		Type:       payroll.AttendanceTime,
		Hours:      8,
		Status:     payroll.StatusDraft,
	}
	require.NoError(t, m.UpsertAttendance(ctx, &first))

	// WHEN a second record targets the same day
	second := first
	second.ID = "att-2"
	err := m.UpsertAttendance(ctx, &second)

	// THEN it is refused as a conflict; updating the original still works
	assert.ErrorIs(t, err, payroll.ErrDuplicateAttendance)
	assert.True(t, payroll.IsConflict(err))

	first.Hours = 7
	require.NoError(t, m.UpsertAttendance(ctx, &first))

	// A different employee on the same day is unaffected.
	other := first
	other.ID = "att-3"
	other.EmployeeID = "emp-2"
	require.NoError(t, m.UpsertAttendance(ctx, &other))
}

func TestMemorySalaryRecordOptimisticVersioning(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	month := payroll.NewMonth(2026, time.August)

	// Missing record reads back as nil, not an error.
	missing, err := m.GetSalaryRecord(ctx, "emp-1", month)
	require.NoError(t, err)
	assert.Nil(t, missing)

	rec := &payroll.SalaryRecord{
		ID:         "sal-1",
		EmployeeID: "emp-1",
		Month:      month,
		NetSalary:  payroll.NewMoney(9_000_000),
		Status:     payroll.StatusDraft,
	}
	require.NoError(t, m.UpsertSalaryRecord(ctx, rec))
	assert.Equal(t, 1, rec.Version)

	// GIVEN two readers holding the same version
	a, err := m.GetSalaryRecord(ctx, "emp-1", month)
	require.NoError(t, err)
	b, err := m.GetSalaryRecord(ctx, "emp-1", month)
	require.NoError(t, err)

	// WHEN both write
	a.NetSalary = payroll.NewMoney(9_100_000)
	require.NoError(t, m.UpsertSalaryRecord(ctx, a))

	b.NetSalary = payroll.NewMoney(9_200_000)
	err = m.UpsertSalaryRecord(ctx, b)

	// THEN the second writer loses
	assert.ErrorIs(t, err, payroll.ErrStaleRecord)

	persisted, err := m.GetSalaryRecord(ctx, "emp-1", month)
	require.NoError(t, err)
	assert.Equal(t, int64(9_100_000), persisted.NetSalary.Int64())
}

func TestMemorySalaryRecordAdjustmentsIsolated(t *testing.T) {
	// A caller mutating the slice it got back must not reach stored state.
	m := NewMemory()
	ctx := context.Background()
	month := payroll.NewMonth(2026, time.August)

	rec := &payroll.SalaryRecord{
		ID:         "sal-1",
		EmployeeID: "emp-1",
		Month:      month,
		Status:     payroll.StatusDraft,
		Adjustments: []payroll.Adjustment{
			{ID: "adj-1", Label: "housing support", Amount: payroll.NewMoney(500_000)},
		},
	}
	require.NoError(t, m.UpsertSalaryRecord(ctx, rec))

	got, err := m.GetSalaryRecord(ctx, "emp-1", month)
	require.NoError(t, err)
	got.Adjustments[0].Label = "tampered"

	stored, err := m.GetSalaryRecord(ctx, "emp-1", month)
	require.NoError(t, err)
	assert.Equal(t, "housing support", stored.Adjustments[0].Label)
}

func TestMemoryPendingConfigOneSlot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	cfg := &payroll.SystemConfig{
		InsuranceRate: decimal.NewFromFloat(0.105),
		UnionFeeRate:  decimal.NewFromFloat(0.01),
	}
	require.NoError(t, m.SaveConfig(ctx, cfg))

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(0.105).Equal(snap.InsuranceRate))

	// Empty slot reads back as ErrNoPendingConfig.
	_, err = m.GetPendingConfig(ctx)
	assert.ErrorIs(t, err, payroll.ErrNoPendingConfig)

	proposal := &payroll.PendingConfig{
		Config:     *cfg,
		ProposedBy: "hr-1",
		ProposedAt: time.Now().UTC(),
	}
	require.NoError(t, m.SavePendingConfig(ctx, proposal))

	// One slot only: a second proposal is refused.
	err = m.SavePendingConfig(ctx, proposal)
	assert.ErrorIs(t, err, payroll.ErrPendingConfigExists)

	got, err := m.GetPendingConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, payroll.EmployeeID("hr-1"), got.ProposedBy)

	require.NoError(t, m.ClearPendingConfig(ctx))
	_, err = m.GetPendingConfig(ctx)
	assert.ErrorIs(t, err, payroll.ErrNoPendingConfig)
}

func TestMemoryConfigCloneOnRead(t *testing.T) {
	// GIVEN a saved config with one PIT step
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveConfig(ctx, &payroll.SystemConfig{
		PITSteps: []payroll.PITStep{
			{Label: "flat", Threshold: payroll.ZeroMoney(), Rate: decimal.NewFromFloat(0.1)},
		},
	}))

	// WHEN a reader mutates its snapshot, and a proposer mutates the
	// staged copy it still holds
	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	snap.PITSteps[0].Rate = decimal.NewFromFloat(0.99)

	pending := &payroll.PendingConfig{Config: *snap, ProposedBy: "hr-1"}
	require.NoError(t, m.SavePendingConfig(ctx, pending))
	pending.Config.PITSteps[0].Rate = decimal.NewFromFloat(0.01)

	// THEN neither mutation reaches stored state
	fresh, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(0.1).Equal(fresh.PITSteps[0].Rate))

	staged, err := m.GetPendingConfig(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(0.99).Equal(staged.Config.PITSteps[0].Rate))
}
