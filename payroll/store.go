/*
store.go - Collaborator interfaces supplied by the persistence layer

PURPOSE:
  Defines the boundary between the engine and its data store. The engine is
  persistence-agnostic: SQLite, PostgreSQL, or in-memory implementations all
  satisfy these interfaces.

CONCURRENCY CONTRACT:
  The engine assumes single-writer-per-record semantics within one
  operation. Stores provide at-most-one-concurrent-writer guarantees via
  optimistic versioning: UpsertSalaryRecord must fail with ErrStaleRecord
  when the caller's Version no longer matches the persisted one.

AUDIT LOG:
  Append-only. Every approval action, rejection, manual adjustment, and
  config change is recorded with actor and payload.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - payroll/store: in-memory store for tests and dev

SEE ALSO:
  - salary/compositor.go: Primary consumer of the read side
  - api/handlers.go: Primary consumer of the write side
*/
package payroll

import (
	"context"
	"time"
)

// =============================================================================
// READ COLLABORATORS
// =============================================================================

// Directory resolves employees and grades.
type Directory interface {
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
	GetGrade(ctx context.Context, id GradeID) (*SalaryGrade, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
}

// AttendanceStore persists attendance records.
type AttendanceStore interface {
	GetAttendance(ctx context.Context, id RecordID) (*AttendanceRecord, error)

	// ListAttendance returns all records for the employee within the month,
	// in date order, regardless of status.
	ListAttendance(ctx context.Context, employeeID EmployeeID, month Month) ([]AttendanceRecord, error)

	// ListAttendanceByStatus returns all records currently in the given
	// status, across employees. Used by the post-audit sweep.
	ListAttendanceByStatus(ctx context.Context, status ApprovalStatus) ([]AttendanceRecord, error)

	UpsertAttendance(ctx context.Context, rec *AttendanceRecord) error
}

// EvaluationStore persists KPI evaluation requests.
type EvaluationStore interface {
	GetEvaluation(ctx context.Context, id RecordID) (*EvaluationRequest, error)

	// ListApprovedEvaluations returns the employee's APPROVED events for the
	// month, ordered chronologically by CreatedAt.
	ListApprovedEvaluations(ctx context.Context, employeeID EmployeeID, month Month) ([]EvaluationRequest, error)

	ListEvaluationsByStatus(ctx context.Context, status ApprovalStatus) ([]EvaluationRequest, error)

	UpsertEvaluation(ctx context.Context, req *EvaluationRequest) error
}

// SalaryStore persists computed salary records.
type SalaryStore interface {
	// GetSalaryRecord returns the record for the employee-month, or nil
	// when none exists yet.
	GetSalaryRecord(ctx context.Context, employeeID EmployeeID, month Month) (*SalaryRecord, error)

	ListSalaryRecords(ctx context.Context, month Month) ([]SalaryRecord, error)

	// UpsertSalaryRecord writes the record atomically. When a record with a
	// different Version already exists, it returns ErrStaleRecord and
	// leaves the persisted record untouched. On success the persisted
	// Version is rec.Version+1.
	UpsertSalaryRecord(ctx context.Context, rec *SalaryRecord) error
}

// ConfigStore persists system configuration and the one-slot pending
// proposal. Snapshot must return a copy: callers hold it for a full
// calculation run.
type ConfigStore interface {
	ConfigProvider

	SaveConfig(ctx context.Context, cfg *SystemConfig) error

	GetPendingConfig(ctx context.Context) (*PendingConfig, error)
	SavePendingConfig(ctx context.Context, p *PendingConfig) error
	ClearPendingConfig(ctx context.Context) error
}

// =============================================================================
// AUDIT LOG - Append-only, separate from the record stores
// =============================================================================

type AuditAction string

const (
	AuditSubmitted      AuditAction = "submitted"
	AuditApproved       AuditAction = "approved"
	AuditRejected       AuditAction = "rejected"
	AuditAutoApproved   AuditAction = "auto_approved"
	AuditRecomputed     AuditAction = "recomputed"
	AuditAdjusted       AuditAction = "manual_adjustment"
	AuditAdvancePaid    AuditAction = "advance_payment"
	AuditConfigChanged  AuditAction = "config_changed"
	AuditConfigProposed AuditAction = "config_proposed"
)

// AuditEntry records who did what when.
type AuditEntry struct {
	ID          string
	Timestamp   time.Time
	ActorID     EmployeeID
	Action      AuditAction
	ContentType ContentType
	RecordID    RecordID
	EmployeeID  EmployeeID
	Payload     map[string]any
}

// AuditLog stores audit entries. Append-only: no update, no delete.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	EmployeeID  *EmployeeID
	ActorID     *EmployeeID
	ContentType *ContentType
	From        *time.Time
	To          *time.Time
}

// Store bundles every collaborator interface. Concrete stores implement the
// whole set; engine components depend only on the slices they need.
type Store interface {
	Directory
	AttendanceStore
	EvaluationStore
	SalaryStore
	ConfigStore
	AuditLog
}
