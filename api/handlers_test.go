package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/kpi"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
	"github.com/warp/payroll-engine/salary"
	"github.com/warp/payroll-engine/workflow"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func newTestAPI(t *testing.T) (*chi.Mux, *store.Memory) {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	require.NoError(t, mem.SaveConfig(ctx, factory.DefaultSystemConfig()))
	for _, f := range factory.DefaultFormulas() {
		require.NoError(t, mem.SaveFormula(ctx, f))
	}

	mem.PutGrade(payroll.SalaryGrade{
		ID:             "grade-1",
		RankID:         "staff",
		Name:           "Staff I",
		BaseSalary:     payroll.NewMoney(10_000_000),
		FixedAllowance: payroll.NewMoney(800_000),
	})

	mem.PutEmployee(payroll.Employee{
		ID:               "emp-1",
		Name:             "Linh Tran",
		PaymentType:      payroll.PaymentTime,
		EfficiencySalary: payroll.NewMoney(5_000_000),
		ProbationRate:    decimal.NewFromInt(100),
		JoinedAt:         payroll.NewMonth(2024, time.August),
		Assignment: payroll.Assignment{
			DepartmentID:    "dep-1",
			RankID:          "staff",
			GradeID:         "grade-1",
			ManagerID:       "mgr-1",
			BlockDirectorID: "gdk-1",
		},
	})
	mem.PutEmployee(payroll.Employee{ID: "staff-1", RoleIDs: []payroll.RoleID{factory.RolePayrollStaff}})
	mem.PutEmployee(payroll.Employee{ID: "mgr-1", RoleIDs: []payroll.RoleID{factory.RoleApprover}})
	mem.PutEmployee(payroll.Employee{ID: "gdk-1", RoleIDs: []payroll.RoleID{factory.RoleApprover}})
	mem.PutEmployee(payroll.Employee{ID: "bld-1", RoleIDs: []payroll.RoleID{factory.RoleApprover}})
	mem.PutEmployee(payroll.Employee{ID: "aud-1", RoleIDs: []payroll.RoleID{factory.RoleHRAuditor}})
	mem.PutEmployee(payroll.Employee{ID: "admin-1", RoleIDs: []payroll.RoleID{factory.RoleAdmin}})

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	svc := workflow.NewService(mem, log)
	compositor := &salary.Compositor{
		Directory:   mem,
		Attendance:  mem,
		Evaluations: mem,
		Salaries:    mem,
		Config:      mem,
		Formulas:    mem,
		Compiler:    formula.NewCompiler(),
		Catalog:     kpi.NewCatalog(nil, nil),
	}
	runner := &salary.Runner{Compositor: compositor, Directory: mem, Log: log}

	handler := api.NewHandler(mem, svc, compositor, runner, log)
	return api.NewRouter(handler), mem
}

// do issues a request with the given actor and JSON body.
func do(t *testing.T, router http.Handler, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// =============================================================================
// ATTENDANCE OVER HTTP
// =============================================================================

func TestAttendanceLifecycleOverHTTP(t *testing.T) {
	// GIVEN: A fresh system with the default workflow
	// WHEN: Staff records a day, submits it, and the manager approves
	// THEN: The record advances PENDING_MANAGER -> PENDING_GDK

	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodPost, "/api/attendance", "staff-1", api.CreateAttendanceRequest{
		EmployeeID: "emp-1",
		Date:       "2026-08-03",
		Type:       "TIME",
		Hours:      8,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[api.AttendanceDTO](t, rec)
	assert.Equal(t, "DRAFT", created.Status)

	rec = do(t, router, http.MethodPost, "/api/attendance/"+created.ID+"/submit", "staff-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	submitted := decodeBody[api.AttendanceDTO](t, rec)
	assert.Equal(t, "PENDING_MANAGER", submitted.Status)

	rec = do(t, router, http.MethodPost, "/api/attendance/"+created.ID+"/approve", "mgr-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	approved := decodeBody[api.AttendanceDTO](t, rec)
	assert.Equal(t, "PENDING_GDK", approved.Status)
}

func TestAttendanceRejectedForWrongApprover(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodPost, "/api/attendance", "staff-1", api.CreateAttendanceRequest{
		EmployeeID: "emp-1", Date: "2026-08-04", Type: "TIME", Hours: 8,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[api.AttendanceDTO](t, rec)

	rec = do(t, router, http.MethodPost, "/api/attendance/"+created.ID+"/submit", "staff-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The block director cannot act while the manager step is pending.
	rec = do(t, router, http.MethodPost, "/api/attendance/"+created.ID+"/approve", "gdk-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAttendanceValidation(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodPost, "/api/attendance", "staff-1", api.CreateAttendanceRequest{
		EmployeeID: "emp-1", Date: "2026-08-03", Type: "TIMESHEET", Hours: 8,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown attendance type")

	rec = do(t, router, http.MethodPost, "/api/attendance", "staff-1", api.CreateAttendanceRequest{
		EmployeeID: "ghost", Date: "2026-08-03", Type: "TIME", Hours: 8,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown employee")
}

func TestCreateAttendanceDuplicateDayConflicts(t *testing.T) {
	// GIVEN: A stored record for an employee-day
	// WHEN: A second record is created for the same day
	// THEN: The duplicate is rejected with 409 and the first stays intact

	router, _ := newTestAPI(t)

	req := api.CreateAttendanceRequest{
		EmployeeID: "emp-1", Date: "2026-08-05", Type: "TIME", Hours: 8,
	}
	rec := do(t, router, http.MethodPost, "/api/attendance", "staff-1", req)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[api.AttendanceDTO](t, rec)

	rec = do(t, router, http.MethodPost, "/api/attendance", "staff-1", req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/attendance/"+created.ID, "staff-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBatchApproveOverHTTP(t *testing.T) {
	router, _ := newTestAPI(t)

	var ids []string
	for _, day := range []string{"2026-08-03", "2026-08-04"} {
		rec := do(t, router, http.MethodPost, "/api/attendance", "staff-1", api.CreateAttendanceRequest{
			EmployeeID: "emp-1", Date: day, Type: "TIME", Hours: 8,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		created := decodeBody[api.AttendanceDTO](t, rec)
		ids = append(ids, created.ID)

		rec = do(t, router, http.MethodPost, "/api/attendance/"+created.ID+"/submit", "staff-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, router, http.MethodPost, "/api/attendance/batch-approve", "mgr-1", api.BatchApproveRequest{
		RecordIDs: append(ids, "missing-id"),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	results := decodeBody[[]api.BatchResultDTO](t, rec)
	require.Len(t, results, 3)
	assert.Equal(t, "PENDING_GDK", results[0].Status)
	assert.Equal(t, "PENDING_GDK", results[1].Status)
	assert.NotEmpty(t, results[2].Error)
}

// =============================================================================
// SALARY OVER HTTP
// =============================================================================

func TestSalaryRecomputeAndAdjustOverHTTP(t *testing.T) {
	// GIVEN: An employee with no salary record yet
	// WHEN: Recomputing the month, then adding a manual adjustment
	// THEN: The payslip appears as DRAFT and carries the adjustment

	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodGet, "/api/employees/emp-1/salary/2026-08", "staff-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/salaries/recompute", "staff-1", api.RecomputeRequest{
		Month:       "2026-08",
		EmployeeIDs: []string{"emp-1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[api.RecomputeResultDTO](t, rec)
	assert.Equal(t, 1, result.Succeeded)
	assert.Empty(t, result.Failures)

	rec = do(t, router, http.MethodGet, "/api/employees/emp-1/salary/2026-08", "staff-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payslip := decodeBody[api.SalaryRecordDTO](t, rec)
	assert.Equal(t, "DRAFT", payslip.Status)

	rec = do(t, router, http.MethodPost, "/api/employees/emp-1/salary/2026-08/adjustments", "staff-1", api.AddAdjustmentRequest{
		Label:  "housing support",
		Amount: "500000",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	payslip = decodeBody[api.SalaryRecordDTO](t, rec)
	require.Len(t, payslip.Adjustments, 1)
	assert.Equal(t, "housing support", payslip.Adjustments[0].Label)
}

func TestSalaryLockedAfterSubmitOverHTTP(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodPost, "/api/salaries/recompute", "staff-1", api.RecomputeRequest{
		Month: "2026-08", EmployeeIDs: []string{"emp-1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/employees/emp-1/salary/2026-08/submit", "staff-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payslip := decodeBody[api.SalaryRecordDTO](t, rec)
	assert.Equal(t, "PENDING_MANAGER", payslip.Status)

	rec = do(t, router, http.MethodPost, "/api/employees/emp-1/salary/2026-08/adjustments", "staff-1", api.AddAdjustmentRequest{
		Label: "late", Amount: "100000",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "locked payslip refuses adjustments")
}

// =============================================================================
// CONFIGURATION OVER HTTP
// =============================================================================

func minimalConfigDoc() map[string]any {
	return map[string]any{
		"pit_steps": []map[string]any{
			{"label": "flat", "threshold": 0, "rate": 0.1, "subtraction": 0},
		},
		"personal_relief":         11000000,
		"dependent_relief":        4400000,
		"insurance_rate":          0.105,
		"union_fee_rate":          0.01,
		"max_insurance_base":      36000000,
		"hr_auto_approve_hours":   48,
		"max_hours_for_hr_review": 72,
		"workflows": []map[string]any{
			{
				"id":                "wf-att-2",
				"content_type":      "ATTENDANCE",
				"approver_role_ids": []string{"approver"},
				"auditor_role_ids":  []string{"hr_auditor"},
				"effective_from":    "2026-01-01T00:00:00Z",
			},
		},
	}
}

func TestConfigProposalFlowOverHTTP(t *testing.T) {
	// GIVEN: A non-admin actor editing the configuration
	// WHEN: They PUT a valid document
	// THEN: It is staged, not applied; the slot refuses a second proposal
	//       until an admin approves the first

	router, mem := newTestAPI(t)

	rec := do(t, router, http.MethodPut, "/api/config/", "staff-1", minimalConfigDoc())
	require.Equal(t, http.StatusAccepted, rec.Code)
	staged := decodeBody[api.ConfigUpdateResultDTO](t, rec)
	assert.False(t, staged.Applied)
	assert.Equal(t, "staff-1", staged.ProposedBy)

	rec = do(t, router, http.MethodPut, "/api/config/", "mgr-1", minimalConfigDoc())
	assert.Equal(t, http.StatusBadRequest, rec.Code, "one-slot queue is occupied")

	rec = do(t, router, http.MethodPost, "/api/config/pending/approve", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cfg, err := mem.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, cfg.PITSteps, 1, "applied config replaced the default brackets")

	rec = do(t, router, http.MethodGet, "/api/config/pending", "admin-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "slot is empty again")
}

func TestConfigAdminAppliesDirectly(t *testing.T) {
	router, mem := newTestAPI(t)

	rec := do(t, router, http.MethodPut, "/api/config/", "admin-1", minimalConfigDoc())
	require.Equal(t, http.StatusOK, rec.Code)
	applied := decodeBody[api.ConfigUpdateResultDTO](t, rec)
	assert.True(t, applied.Applied)

	cfg, err := mem.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, cfg.PITSteps, 1)
}

func TestConfigPendingApproveRequiresAdmin(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodPut, "/api/config/", "staff-1", minimalConfigDoc())
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/config/pending/approve", "staff-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateFormulasCompilesOrRejects(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodPut, "/api/formulas", "admin-1", []map[string]any{
		{"id": "f-x", "target_field": "OTHER_SALARY", "expression": "LCB_dm * 0.1", "order": 99},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/formulas", "admin-1", []map[string]any{
		{"id": "f-bad", "target_field": "OTHER_SALARY", "expression": "LCB_dm * * 2"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "non-compiling formula rejects the document")
}

// =============================================================================
// AUDIT OVER HTTP
// =============================================================================

func TestAuditTrailOverHTTP(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodPost, "/api/attendance", "staff-1", api.CreateAttendanceRequest{
		EmployeeID: "emp-1", Date: "2026-08-03", Type: "TIME", Hours: 8,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[api.AttendanceDTO](t, rec)

	rec = do(t, router, http.MethodPost, "/api/attendance/"+created.ID+"/submit", "staff-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/attendance/"+created.ID+"/approve", "mgr-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/audit?actor_id=mgr-1", "aud-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[[]api.AuditEntryDTO](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "approved", entries[0].Action)
	assert.Equal(t, created.ID, entries[0].RecordID)
}
