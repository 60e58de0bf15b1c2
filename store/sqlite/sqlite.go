/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface in payroll (Directory,
  AttendanceStore, EvaluationStore, SalaryStore, ConfigStore, AuditLog)
  plus the formula source using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  employees:      Directory records with assignment and roles as JSON
  grades:         Normative pay packages, fixed bonuses as JSON
  attendance:     One row per employee-day, status-driven
  evaluations:    KPI bonus/penalty events
  salary_records: Computed payslips with optimistic version column
  formulas:       Configured salary formulas
  system_config:  Two fixed rows - current config and pending proposal
  audit_log:      Append-only action trail

OPTIMISTIC CONCURRENCY:
  salary_records carries a version column. UpsertSalaryRecord updates with
  WHERE version = ? and reports ErrStaleRecord when no row matched, so two
  concurrent approvals can never both win.

APPEND-ONLY ENFORCEMENT:
  audit_log has no UPDATE or DELETE statements anywhere in this package.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/payroll"
)

// Store implements all payroll storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Employees (directory)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		payment_type TEXT NOT NULL,
		efficiency_salary TEXT NOT NULL,
		piecework_unit_price TEXT NOT NULL,
		piecework_norm_quantity REAL NOT NULL DEFAULT 0,
		reserved_bonus_amount TEXT NOT NULL,
		number_of_dependents INTEGER NOT NULL DEFAULT 0,
		probation_rate TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		assignment_json TEXT NOT NULL,
		side_assignment_json TEXT,
		role_ids_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Grades (normative pay packages)
	CREATE TABLE IF NOT EXISTS grades (
		id TEXT PRIMARY KEY,
		rank_id TEXT NOT NULL,
		name TEXT NOT NULL,
		base_salary TEXT NOT NULL,
		fixed_allowance TEXT NOT NULL,
		fixed_bonuses_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_grades_rank ON grades(rank_id);

	-- Attendance (one row per employee-day)
	CREATE TABLE IF NOT EXISTS attendance (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		type TEXT NOT NULL,
		hours REAL NOT NULL DEFAULT 0,
		overtime_hours REAL NOT NULL DEFAULT 0,
		ot_rate REAL NOT NULL DEFAULT 0,
		output REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		rejection_reason TEXT,
		sent_to_hr_at TEXT,
		approved_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: monthly attendance aggregation per employee. UNIQUE on the
	-- day portion enforces one record per (employee, date) regardless of
	-- the stored time of day.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_employee_date
		ON attendance(employee_id, substr(date, 1, 10));
	CREATE INDEX IF NOT EXISTS idx_attendance_status
		ON attendance(status);

	-- Evaluations (KPI events)
	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		month TEXT NOT NULL,
		criterion_id TEXT,
		type TEXT NOT NULL,
		target TEXT NOT NULL,
		points TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL,
		rejection_reason TEXT,
		sent_to_hr_at TEXT,
		approved_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_employee_month
		ON evaluations(employee_id, month);
	CREATE INDEX IF NOT EXISTS idx_evaluations_status
		ON evaluations(status);

	-- Salary records (computed payslips, optimistic versioning)
	CREATE TABLE IF NOT EXISTS salary_records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		month TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(employee_id, month)
	);

	CREATE INDEX IF NOT EXISTS idx_salary_records_month
		ON salary_records(month);
	CREATE INDEX IF NOT EXISTS idx_salary_records_status
		ON salary_records(status);

	-- Salary formulas
	CREATE TABLE IF NOT EXISTS formulas (
		id TEXT PRIMARY KEY,
		name TEXT,
		target_field TEXT NOT NULL,
		expression TEXT NOT NULL,
		eval_order INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TEXT NOT NULL
	);

	-- System config: row 1 is current, row 2 is the pending proposal
	CREATE TABLE IF NOT EXISTS system_config (
		id INTEGER PRIMARY KEY CHECK (id IN (1, 2)),
		payload_json TEXT NOT NULL,
		proposed_by TEXT,
		proposed_at TEXT,
		updated_at TEXT NOT NULL
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		content_type TEXT,
		record_id TEXT,
		employee_id TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_employee ON audit_log(employee_id);
	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

const (
	configRowCurrent = 1
	configRowPending = 2
)

// =============================================================================
// DIRECTORY (payroll.Directory interface)
// =============================================================================

// SaveEmployee saves an employee record.
func (s *Store) SaveEmployee(ctx context.Context, emp *payroll.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignmentJSON, err := json.Marshal(emp.Assignment)
	if err != nil {
		return fmt.Errorf("failed to marshal assignment: %w", err)
	}
	var sideJSON *string
	if emp.SideAssignment != nil {
		b, err := json.Marshal(emp.SideAssignment)
		if err != nil {
			return fmt.Errorf("failed to marshal side assignment: %w", err)
		}
		v := string(b)
		sideJSON = &v
	}
	rolesJSON, _ := json.Marshal(emp.RoleIDs)

	query := `
		INSERT INTO employees
		(id, name, email, payment_type, efficiency_salary, piecework_unit_price,
		 piecework_norm_quantity, reserved_bonus_amount, number_of_dependents,
		 probation_rate, joined_at, assignment_json, side_assignment_json,
		 role_ids_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			payment_type = excluded.payment_type,
			efficiency_salary = excluded.efficiency_salary,
			piecework_unit_price = excluded.piecework_unit_price,
			piecework_norm_quantity = excluded.piecework_norm_quantity,
			reserved_bonus_amount = excluded.reserved_bonus_amount,
			number_of_dependents = excluded.number_of_dependents,
			probation_rate = excluded.probation_rate,
			joined_at = excluded.joined_at,
			assignment_json = excluded.assignment_json,
			side_assignment_json = excluded.side_assignment_json,
			role_ids_json = excluded.role_ids_json
	`

	_, err = s.db.ExecContext(ctx, query,
		emp.ID, emp.Name, emp.Email, emp.PaymentType,
		emp.EfficiencySalary.String(),
		emp.PieceworkUnitPrice.String(),
		emp.PieceworkNormQuantity,
		emp.ReservedBonusAmount.String(),
		emp.NumberOfDependents,
		emp.ProbationRate.String(),
		emp.JoinedAt.String(),
		string(assignmentJSON), sideJSON, string(rolesJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetEmployee retrieves an employee by ID.
func (s *Store) GetEmployee(ctx context.Context, id payroll.EmployeeID) (*payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, name, email, payment_type, efficiency_salary, piecework_unit_price,
		       piecework_norm_quantity, reserved_bonus_amount, number_of_dependents,
		       probation_rate, joined_at, assignment_json, side_assignment_json, role_ids_json
		FROM employees WHERE id = ?
	`

	emp, err := scanEmployee(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, payroll.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}
	return emp, nil
}

// ListEmployees returns all employees ordered by ID.
func (s *Store) ListEmployees(ctx context.Context) ([]payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, name, email, payment_type, efficiency_salary, piecework_unit_price,
		       piecework_norm_quantity, reserved_bonus_amount, number_of_dependents,
		       probation_rate, joined_at, assignment_json, side_assignment_json, role_ids_json
		FROM employees ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []payroll.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, *emp)
	}
	return employees, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (*payroll.Employee, error) {
	var (
		emp            payroll.Employee
		email          sql.NullString
		efficiency     string
		unitPrice      string
		reserved       string
		probation      string
		joinedAt       string
		assignmentJSON string
		sideJSON       sql.NullString
		rolesJSON      string
	)

	err := row.Scan(
		&emp.ID, &emp.Name, &email, &emp.PaymentType,
		&efficiency, &unitPrice, &emp.PieceworkNormQuantity,
		&reserved, &emp.NumberOfDependents, &probation, &joinedAt,
		&assignmentJSON, &sideJSON, &rolesJSON,
	)
	if err != nil {
		return nil, err
	}

	emp.Email = email.String
	if emp.EfficiencySalary, err = parseMoney(efficiency); err != nil {
		return nil, err
	}
	if emp.PieceworkUnitPrice, err = parseMoney(unitPrice); err != nil {
		return nil, err
	}
	if emp.ReservedBonusAmount, err = parseMoney(reserved); err != nil {
		return nil, err
	}
	rate, err := parseMoney(probation)
	if err != nil {
		return nil, err
	}
	emp.ProbationRate = rate.Value

	if emp.JoinedAt, err = payroll.ParseMonth(joinedAt); err != nil {
		return nil, fmt.Errorf("failed to parse joined_at: %w", err)
	}
	if err := json.Unmarshal([]byte(assignmentJSON), &emp.Assignment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assignment: %w", err)
	}
	if sideJSON.Valid && sideJSON.String != "" {
		emp.SideAssignment = &payroll.Assignment{}
		if err := json.Unmarshal([]byte(sideJSON.String), emp.SideAssignment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal side assignment: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(rolesJSON), &emp.RoleIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roles: %w", err)
	}

	return &emp, nil
}

// SaveGrade saves a salary grade.
func (s *Store) SaveGrade(ctx context.Context, g *payroll.SalaryGrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bonusesJSON, err := json.Marshal(g.FixedBonuses)
	if err != nil {
		return fmt.Errorf("failed to marshal fixed bonuses: %w", err)
	}

	query := `
		INSERT INTO grades (id, rank_id, name, base_salary, fixed_allowance, fixed_bonuses_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rank_id = excluded.rank_id,
			name = excluded.name,
			base_salary = excluded.base_salary,
			fixed_allowance = excluded.fixed_allowance,
			fixed_bonuses_json = excluded.fixed_bonuses_json
	`

	_, err = s.db.ExecContext(ctx, query,
		g.ID, g.RankID, g.Name,
		g.BaseSalary.String(), g.FixedAllowance.String(),
		string(bonusesJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetGrade retrieves a grade by ID.
func (s *Store) GetGrade(ctx context.Context, id payroll.GradeID) (*payroll.SalaryGrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		g           payroll.SalaryGrade
		baseSalary  string
		allowance   string
		bonusesJSON sql.NullString
	)

	err := s.db.QueryRowContext(ctx,
		"SELECT id, rank_id, name, base_salary, fixed_allowance, fixed_bonuses_json FROM grades WHERE id = ?",
		id,
	).Scan(&g.ID, &g.RankID, &g.Name, &baseSalary, &allowance, &bonusesJSON)

	if err == sql.ErrNoRows {
		return nil, payroll.ErrGradeNotFound
	}
	if err != nil {
		return nil, err
	}

	if g.BaseSalary, err = parseMoney(baseSalary); err != nil {
		return nil, err
	}
	if g.FixedAllowance, err = parseMoney(allowance); err != nil {
		return nil, err
	}
	if bonusesJSON.Valid && bonusesJSON.String != "" {
		if err := json.Unmarshal([]byte(bonusesJSON.String), &g.FixedBonuses); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fixed bonuses: %w", err)
		}
	}
	return &g, nil
}

// =============================================================================
// ATTENDANCE (payroll.AttendanceStore interface)
// =============================================================================

// UpsertAttendance writes an attendance record.
func (s *Store) UpsertAttendance(ctx context.Context, rec *payroll.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO attendance
		(id, employee_id, date, type, hours, overtime_hours, ot_rate, output,
		 status, rejection_reason, sent_to_hr_at, approved_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			hours = excluded.hours,
			overtime_hours = excluded.overtime_hours,
			ot_rate = excluded.ot_rate,
			output = excluded.output,
			status = excluded.status,
			rejection_reason = excluded.rejection_reason,
			sent_to_hr_at = excluded.sent_to_hr_at,
			approved_at = excluded.approved_at,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt.Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.EmployeeID, rec.Date.Format(time.RFC3339),
		rec.Type, rec.Hours, rec.OvertimeHours, rec.OTRate, rec.Output,
		rec.Status, nullString(rec.RejectionReason),
		nullTime(rec.SentToHRAt), nullTime(rec.ApprovedAt),
		createdAt, now,
	)
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return payroll.ErrDuplicateAttendance
	}
	return err
}

// GetAttendance retrieves an attendance record by ID.
func (s *Store) GetAttendance(ctx context.Context, id payroll.RecordID) (*payroll.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.queryAttendance(ctx, attendanceSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, payroll.ErrRecordNotFound
	}
	return &recs[0], nil
}

// ListAttendance returns the employee's records within the month in date order.
func (s *Store) ListAttendance(ctx context.Context, employeeID payroll.EmployeeID, month payroll.Month) ([]payroll.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := attendanceSelect + `
		WHERE employee_id = ? AND date >= ? AND date < ?
		ORDER BY date ASC
	`
	return s.queryAttendance(ctx, query, employeeID,
		month.Start().Format(time.RFC3339),
		month.Next().Start().Format(time.RFC3339))
}

// ListAttendanceByStatus returns all records in the given status.
func (s *Store) ListAttendanceByStatus(ctx context.Context, status payroll.ApprovalStatus) ([]payroll.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryAttendance(ctx, attendanceSelect+" WHERE status = ? ORDER BY id", status)
}

const attendanceSelect = `
	SELECT id, employee_id, date, type, hours, overtime_hours, ot_rate, output,
	       status, rejection_reason, sent_to_hr_at, approved_at, created_at, updated_at
	FROM attendance
`

func (s *Store) queryAttendance(ctx context.Context, query string, args ...any) ([]payroll.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var records []payroll.AttendanceRecord
	for rows.Next() {
		var (
			rec                    payroll.AttendanceRecord
			date                   string
			rejection              sql.NullString
			sentToHR, approvedAt   sql.NullString
			createdAt, updatedAt   string
		)
		if err := rows.Scan(
			&rec.ID, &rec.EmployeeID, &date, &rec.Type,
			&rec.Hours, &rec.OvertimeHours, &rec.OTRate, &rec.Output,
			&rec.Status, &rejection, &sentToHR, &approvedAt, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}

		rec.Date, _ = time.Parse(time.RFC3339, date)
		rec.RejectionReason = rejection.String
		rec.SentToHRAt = parseNullTime(sentToHR)
		rec.ApprovedAt = parseNullTime(approvedAt)
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// EVALUATIONS (payroll.EvaluationStore interface)
// =============================================================================

// UpsertEvaluation writes an evaluation request.
func (s *Store) UpsertEvaluation(ctx context.Context, req *payroll.EvaluationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO evaluations
		(id, employee_id, month, criterion_id, type, target, points, reason,
		 status, rejection_reason, sent_to_hr_at, approved_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			criterion_id = excluded.criterion_id,
			type = excluded.type,
			target = excluded.target,
			points = excluded.points,
			reason = excluded.reason,
			status = excluded.status,
			rejection_reason = excluded.rejection_reason,
			sent_to_hr_at = excluded.sent_to_hr_at,
			approved_at = excluded.approved_at,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !req.CreatedAt.IsZero() {
		createdAt = req.CreatedAt.Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, query,
		req.ID, req.EmployeeID, req.Month.String(),
		nullString(req.CriterionID), req.Type, req.Target,
		req.Points.String(), nullString(req.Reason),
		req.Status, nullString(req.RejectionReason),
		nullTime(req.SentToHRAt), nullTime(req.ApprovedAt),
		createdAt, now,
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID.
func (s *Store) GetEvaluation(ctx context.Context, id payroll.RecordID) (*payroll.EvaluationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reqs, err := s.queryEvaluations(ctx, evaluationSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, payroll.ErrRecordNotFound
	}
	return &reqs[0], nil
}

// ListApprovedEvaluations returns the employee's APPROVED events for the
// month in chronological order.
func (s *Store) ListApprovedEvaluations(ctx context.Context, employeeID payroll.EmployeeID, month payroll.Month) ([]payroll.EvaluationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := evaluationSelect + `
		WHERE employee_id = ? AND month = ? AND status = ?
		ORDER BY created_at ASC
	`
	return s.queryEvaluations(ctx, query, employeeID, month.String(), payroll.StatusApproved)
}

// ListEvaluationsByStatus returns all evaluations in the given status.
func (s *Store) ListEvaluationsByStatus(ctx context.Context, status payroll.ApprovalStatus) ([]payroll.EvaluationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEvaluations(ctx, evaluationSelect+" WHERE status = ? ORDER BY id", status)
}

const evaluationSelect = `
	SELECT id, employee_id, month, criterion_id, type, target, points, reason,
	       status, rejection_reason, sent_to_hr_at, approved_at, created_at, updated_at
	FROM evaluations
`

func (s *Store) queryEvaluations(ctx context.Context, query string, args ...any) ([]payroll.EvaluationRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer rows.Close()

	var requests []payroll.EvaluationRequest
	for rows.Next() {
		var (
			req                  payroll.EvaluationRequest
			month                string
			criterion, reason    sql.NullString
			points               string
			rejection            sql.NullString
			sentToHR, approvedAt sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(
			&req.ID, &req.EmployeeID, &month, &criterion, &req.Type, &req.Target,
			&points, &reason, &req.Status, &rejection, &sentToHR, &approvedAt,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}

		if req.Month, err = payroll.ParseMonth(month); err != nil {
			return nil, err
		}
		req.CriterionID = criterion.String
		if req.Points, err = parseMoney(points); err != nil {
			return nil, err
		}
		req.Reason = reason.String
		req.RejectionReason = rejection.String
		req.SentToHRAt = parseNullTime(sentToHR)
		req.ApprovedAt = parseNullTime(approvedAt)
		req.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		req.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// =============================================================================
// SALARY RECORDS (payroll.SalaryStore interface)
// =============================================================================

// GetSalaryRecord returns the record for the employee-month, or nil when
// none exists yet.
func (s *Store) GetSalaryRecord(ctx context.Context, employeeID payroll.EmployeeID, month payroll.Month) (*payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		payload string
		version int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT payload_json, version FROM salary_records WHERE employee_id = ? AND month = ?",
		employeeID, month.String(),
	).Scan(&payload, &version)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec payroll.SalaryRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal salary record: %w", err)
	}
	rec.Version = version
	return &rec, nil
}

// ListSalaryRecords returns every record for the month ordered by employee.
func (s *Store) ListSalaryRecords(ctx context.Context, month payroll.Month) ([]payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT payload_json, version FROM salary_records WHERE month = ? ORDER BY employee_id",
		month.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []payroll.SalaryRecord
	for rows.Next() {
		var (
			payload string
			version int
		)
		if err := rows.Scan(&payload, &version); err != nil {
			return nil, err
		}
		var rec payroll.SalaryRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal salary record: %w", err)
		}
		rec.Version = version
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpsertSalaryRecord writes the record, enforcing optimistic versioning.
func (s *Store) UpsertSalaryRecord(ctx context.Context, rec *payroll.SalaryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newVersion := rec.Version + 1
	stored := *rec
	stored.Version = newVersion
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal salary record: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	// Try the optimistic update first.
	res, err := s.db.ExecContext(ctx, `
		UPDATE salary_records
		SET payload_json = ?, status = ?, version = ?, updated_at = ?
		WHERE employee_id = ? AND month = ? AND version = ?`,
		string(payload), stored.Status, newVersion, now,
		rec.EmployeeID, rec.Month.String(), rec.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update salary record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		rec.Version = newVersion
		return nil
	}

	// No row matched: either the record does not exist yet, or the caller's
	// version is stale.
	var existing int
	err = s.db.QueryRowContext(ctx,
		"SELECT version FROM salary_records WHERE employee_id = ? AND month = ?",
		rec.EmployeeID, rec.Month.String(),
	).Scan(&existing)
	if err == nil {
		return payroll.ErrStaleRecord
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO salary_records (id, employee_id, month, payload_json, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.EmployeeID, stored.Month.String(),
		string(payload), stored.Status, newVersion, now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return payroll.ErrStaleRecord
		}
		return fmt.Errorf("failed to insert salary record: %w", err)
	}
	rec.Version = newVersion
	return nil
}

// =============================================================================
// FORMULAS (salary.FormulaSource interface)
// =============================================================================

// SaveFormula stores or replaces a salary formula.
func (s *Store) SaveFormula(ctx context.Context, f formula.SalaryFormula) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO formulas (id, name, target_field, expression, eval_order, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			target_field = excluded.target_field,
			expression = excluded.expression,
			eval_order = excluded.eval_order,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		f.ID, f.Name, f.TargetField, f.Expression, f.Order, f.Active,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ListActiveFormulas returns active formulas in ascending evaluation order.
func (s *Store) ListActiveFormulas(ctx context.Context) ([]formula.SalaryFormula, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, target_field, expression, eval_order, active FROM formulas WHERE active = TRUE ORDER BY eval_order ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var formulas []formula.SalaryFormula
	for rows.Next() {
		var (
			f    formula.SalaryFormula
			name sql.NullString
		)
		if err := rows.Scan(&f.ID, &name, &f.TargetField, &f.Expression, &f.Order, &f.Active); err != nil {
			return nil, err
		}
		f.Name = name.String
		formulas = append(formulas, f)
	}
	return formulas, rows.Err()
}

// =============================================================================
// CONFIG (payroll.ConfigStore interface)
// =============================================================================

// Snapshot returns the current configuration as an independent copy.
func (s *Store) Snapshot(ctx context.Context) (*payroll.SystemConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload_json FROM system_config WHERE id = ?", configRowCurrent,
	).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, payroll.ErrNoConfig
	}
	if err != nil {
		return nil, err
	}

	var cfg payroll.SystemConfig
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// SaveConfig replaces the current configuration.
func (s *Store) SaveConfig(ctx context.Context, cfg *payroll.SystemConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
		INSERT INTO system_config (id, payload_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload_json = excluded.payload_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		configRowCurrent, string(payload), time.Now().UTC().Format(time.RFC3339))
	return err
}

// GetPendingConfig returns the staged proposal, if any.
func (s *Store) GetPendingConfig(ctx context.Context) (*payroll.PendingConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		payload    string
		proposedBy sql.NullString
		proposedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT payload_json, proposed_by, proposed_at FROM system_config WHERE id = ?",
		configRowPending,
	).Scan(&payload, &proposedBy, &proposedAt)

	if err == sql.ErrNoRows {
		return nil, payroll.ErrNoPendingConfig
	}
	if err != nil {
		return nil, err
	}

	var p payroll.PendingConfig
	if err := json.Unmarshal([]byte(payload), &p.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending config: %w", err)
	}
	p.ProposedBy = payroll.EmployeeID(proposedBy.String)
	if t := parseNullTime(proposedAt); t != nil {
		p.ProposedAt = *t
	}
	return &p, nil
}

// SavePendingConfig stages a proposal into the one-slot queue.
func (s *Store) SavePendingConfig(ctx context.Context, p *payroll.PendingConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM system_config WHERE id = ?", configRowPending,
	).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return payroll.ErrPendingConfigExists
	}

	payload, err := json.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal pending config: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO system_config (id, payload_json, proposed_by, proposed_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		configRowPending, string(payload),
		string(p.ProposedBy), p.ProposedAt.Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ClearPendingConfig empties the one-slot queue.
func (s *Store) ClearPendingConfig(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM system_config WHERE id = ?", configRowPending)
	return err
}

// =============================================================================
// AUDIT LOG (payroll.AuditLog interface)
// =============================================================================

// AppendAudit records an audit entry. Append-only.
func (s *Store) AppendAudit(ctx context.Context, entry payroll.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	payloadJSON, _ := json.Marshal(entry.Payload)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, content_type, record_id, employee_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.Format(time.RFC3339),
		entry.ActorID, entry.Action, entry.ContentType,
		entry.RecordID, entry.EmployeeID, string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// QueryAudit returns audit entries matching the filter, oldest first.
func (s *Store) QueryAudit(ctx context.Context, filter payroll.AuditFilter) ([]payroll.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, timestamp, actor_id, action, content_type, record_id, employee_id, payload_json FROM audit_log"
	var conds []string
	var args []any

	if filter.EmployeeID != nil {
		conds = append(conds, "employee_id = ?")
		args = append(args, *filter.EmployeeID)
	}
	if filter.ActorID != nil {
		conds = append(conds, "actor_id = ?")
		args = append(args, *filter.ActorID)
	}
	if filter.ContentType != nil {
		conds = append(conds, "content_type = ?")
		args = append(args, *filter.ContentType)
	}
	if filter.From != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.From.Format(time.RFC3339))
	}
	if filter.To != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, filter.To.Format(time.RFC3339))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []payroll.AuditEntry
	for rows.Next() {
		var (
			e           payroll.AuditEntry
			timestamp   string
			contentType sql.NullString
			recordID    sql.NullString
			payload     sql.NullString
		)
		if err := rows.Scan(&e.ID, &timestamp, &e.ActorID, &e.Action,
			&contentType, &recordID, &e.EmployeeID, &payload); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
		e.ContentType = payroll.ContentType(contentType.String)
		e.RecordID = payroll.RecordID(recordID.String)
		if payload.Valid && payload.String != "" {
			json.Unmarshal([]byte(payload.String), &e.Payload)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo). The audit log is included: a
// reset is a whole-database wipe, not an in-place edit.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"attendance", "evaluations", "salary_records", "formulas", "system_config", "audit_log", "employees", "grades"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseMoney(s string) (payroll.Money, error) {
	m, err := payroll.ParseMoney(s)
	if err != nil {
		return payroll.Money{}, fmt.Errorf("failed to parse money value %q: %w", s, err)
	}
	return m, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
