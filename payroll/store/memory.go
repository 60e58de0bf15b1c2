// Package store provides the in-memory Store implementation used by tests
// and local development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - Full payroll.Store implementation
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	employees map[payroll.EmployeeID]payroll.Employee
	grades    map[payroll.GradeID]payroll.SalaryGrade

	attendance  map[payroll.RecordID]payroll.AttendanceRecord
	evaluations map[payroll.RecordID]payroll.EvaluationRequest

	salaries map[salaryKey]payroll.SalaryRecord

	config  *payroll.SystemConfig
	pending *payroll.PendingConfig

	formulas map[string]formula.SalaryFormula

	audit []payroll.AuditEntry
}

type salaryKey struct {
	EmployeeID payroll.EmployeeID
	Month      payroll.Month
}

func NewMemory() *Memory {
	return &Memory{
		employees:   make(map[payroll.EmployeeID]payroll.Employee),
		grades:      make(map[payroll.GradeID]payroll.SalaryGrade),
		attendance:  make(map[payroll.RecordID]payroll.AttendanceRecord),
		evaluations: make(map[payroll.RecordID]payroll.EvaluationRequest),
		salaries:    make(map[salaryKey]payroll.SalaryRecord),
		formulas:    make(map[string]formula.SalaryFormula),
	}
}

// =============================================================================
// DIRECTORY
// =============================================================================

// PutEmployee seeds or replaces an employee. Not part of payroll.Store: the
// directory is read-only to the engine.
func (m *Memory) PutEmployee(emp payroll.Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[emp.ID] = emp
}

func (m *Memory) PutGrade(g payroll.SalaryGrade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grades[g.ID] = g
}

func (m *Memory) GetEmployee(_ context.Context, id payroll.EmployeeID) (*payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	emp, ok := m.employees[id]
	if !ok {
		return nil, payroll.ErrEmployeeNotFound
	}
	return &emp, nil
}

func (m *Memory) GetGrade(_ context.Context, id payroll.GradeID) (*payroll.SalaryGrade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.grades[id]
	if !ok {
		return nil, payroll.ErrGradeNotFound
	}
	return &g, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]payroll.Employee, 0, len(m.employees))
	for _, emp := range m.employees {
		result = append(result, emp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (m *Memory) GetAttendance(_ context.Context, id payroll.RecordID) (*payroll.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.attendance[id]
	if !ok {
		return nil, payroll.ErrRecordNotFound
	}
	return &rec, nil
}

func (m *Memory) ListAttendance(_ context.Context, employeeID payroll.EmployeeID, month payroll.Month) ([]payroll.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.AttendanceRecord
	for _, rec := range m.attendance {
		if rec.EmployeeID == employeeID && month.Contains(rec.Date) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *Memory) ListAttendanceByStatus(_ context.Context, status payroll.ApprovalStatus) ([]payroll.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.AttendanceRecord
	for _, rec := range m.attendance {
		if rec.Status == status {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) UpsertAttendance(_ context.Context, rec *payroll.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// One record per (employee, date): a second record for the same day
	// would double-count its hours in the monthly aggregation.
	for _, other := range m.attendance {
		if other.ID != rec.ID && other.EmployeeID == rec.EmployeeID && sameDay(other.Date, rec.Date) {
			return payroll.ErrDuplicateAttendance
		}
	}

	m.attendance[rec.ID] = *rec
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// =============================================================================
// EVALUATIONS
// =============================================================================

func (m *Memory) GetEvaluation(_ context.Context, id payroll.RecordID) (*payroll.EvaluationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.evaluations[id]
	if !ok {
		return nil, payroll.ErrRecordNotFound
	}
	return &req, nil
}

func (m *Memory) ListApprovedEvaluations(_ context.Context, employeeID payroll.EmployeeID, month payroll.Month) ([]payroll.EvaluationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.EvaluationRequest
	for _, req := range m.evaluations {
		if req.EmployeeID == employeeID && req.Month.Equal(month) && req.Status == payroll.StatusApproved {
			result = append(result, req)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) ListEvaluationsByStatus(_ context.Context, status payroll.ApprovalStatus) ([]payroll.EvaluationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.EvaluationRequest
	for _, req := range m.evaluations {
		if req.Status == status {
			result = append(result, req)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) UpsertEvaluation(_ context.Context, req *payroll.EvaluationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evaluations[req.ID] = *req
	return nil
}

// =============================================================================
// SALARY RECORDS - Optimistic versioning
// =============================================================================

func (m *Memory) GetSalaryRecord(_ context.Context, employeeID payroll.EmployeeID, month payroll.Month) (*payroll.SalaryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.salaries[salaryKey{EmployeeID: employeeID, Month: month}]
	if !ok {
		return nil, nil
	}
	out := cloneSalaryRecord(rec)
	return &out, nil
}

func (m *Memory) ListSalaryRecords(_ context.Context, month payroll.Month) ([]payroll.SalaryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.SalaryRecord
	for k, rec := range m.salaries {
		if k.Month.Equal(month) {
			result = append(result, cloneSalaryRecord(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EmployeeID < result[j].EmployeeID })
	return result, nil
}

func (m *Memory) UpsertSalaryRecord(_ context.Context, rec *payroll.SalaryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := salaryKey{EmployeeID: rec.EmployeeID, Month: rec.Month}
	if existing, ok := m.salaries[k]; ok && existing.Version != rec.Version {
		return payroll.ErrStaleRecord
	}

	stored := cloneSalaryRecord(*rec)
	stored.Version = rec.Version + 1
	m.salaries[k] = stored
	rec.Version = stored.Version
	return nil
}

func cloneSalaryRecord(rec payroll.SalaryRecord) payroll.SalaryRecord {
	out := rec
	out.Adjustments = append([]payroll.Adjustment(nil), rec.Adjustments...)
	return out
}

// =============================================================================
// CONFIG - Current snapshot plus one-slot pending proposal
// =============================================================================

func (m *Memory) Snapshot(_ context.Context) (*payroll.SystemConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return nil, payroll.ErrNoConfig
	}
	cfg := m.config.Clone()
	return cfg, nil
}

func (m *Memory) SaveConfig(_ context.Context, cfg *payroll.SystemConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = cfg.Clone()
	return nil
}

func (m *Memory) GetPendingConfig(_ context.Context) (*payroll.PendingConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.pending == nil {
		return nil, payroll.ErrNoPendingConfig
	}
	p := *m.pending
	p.Config = *m.pending.Config.Clone()
	return &p, nil
}

func (m *Memory) SavePendingConfig(_ context.Context, p *payroll.PendingConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil {
		return payroll.ErrPendingConfigExists
	}
	stored := *p
	stored.Config = *p.Config.Clone()
	m.pending = &stored
	return nil
}

func (m *Memory) ClearPendingConfig(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = nil
	return nil
}

// =============================================================================
// FORMULAS
// =============================================================================

// SaveFormula stores or replaces a salary formula by ID.
func (m *Memory) SaveFormula(_ context.Context, f formula.SalaryFormula) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.formulas[f.ID] = f
	return nil
}

// ListActiveFormulas returns active formulas in ascending evaluation order.
func (m *Memory) ListActiveFormulas(_ context.Context) ([]formula.SalaryFormula, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []formula.SalaryFormula
	for _, f := range m.formulas {
		if f.Active {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Order < result[j].Order })
	return result, nil
}

// =============================================================================
// AUDIT LOG - Append-only
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry payroll.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter payroll.AuditFilter) ([]payroll.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.AuditEntry
	for _, e := range m.audit {
		if filter.EmployeeID != nil && e.EmployeeID != *filter.EmployeeID {
			continue
		}
		if filter.ActorID != nil && e.ActorID != *filter.ActorID {
			continue
		}
		if filter.ContentType != nil && e.ContentType != *filter.ContentType {
			continue
		}
		if filter.From != nil && e.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.Timestamp.After(*filter.To) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}
