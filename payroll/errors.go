/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All engine error types in one place for consistency and discoverability.
  Outer layers (api, store) map these to transport codes.

ERROR CATEGORIES:
  1. Permission errors - actor lacks the role for the current step
  2. Record state errors - locked records, invalid transitions, stale writes
  3. Lookup errors - missing employees, grades, workflow versions

USAGE:
  if errors.Is(err, payroll.ErrRecordLocked) {
      // tell the user the record is read-only
  }
*/
package payroll

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotAuthorized is returned when the actor lacks a role required for
	// the current pending step. No partial transition occurs.
	ErrNotAuthorized = errors.New("not authorized for this step")

	// ErrRecordLocked is returned when mutating a record that is no longer
	// in DRAFT. The caller must surface this, never silently ignore it.
	ErrRecordLocked = errors.New("record is locked")

	// ErrInvalidTransition is returned for a status change the state
	// machine does not permit (e.g. rejecting a DRAFT record).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDeadlinePassed is returned when a post-audit reversal is attempted
	// after the review window has expired. This is a permission boundary,
	// not an exception.
	ErrDeadlinePassed = errors.New("post-audit deadline passed")

	// ErrStaleRecord is returned when an optimistic-concurrency version
	// check fails on write.
	ErrStaleRecord = errors.New("record was modified concurrently")

	// ErrDuplicateAttendance is returned when a second attendance record is
	// created for the same employee and day. One record per (employee, date).
	ErrDuplicateAttendance = errors.New("attendance already recorded for this day")

	// ErrNoWorkflow is returned when no workflow version covers the record.
	ErrNoWorkflow = errors.New("no active approval workflow")

	// ErrEmployeeNotFound is returned when a referenced employee is missing.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrGradeNotFound is returned when a referenced grade is missing.
	ErrGradeNotFound = errors.New("salary grade not found")

	// ErrRecordNotFound is returned when a referenced record is missing.
	ErrRecordNotFound = errors.New("record not found")

	// ErrNoConfig is returned when no system configuration has been saved.
	ErrNoConfig = errors.New("no system configuration")

	// ErrNoPendingConfig is returned when approving/discarding an empty
	// pending-config slot.
	ErrNoPendingConfig = errors.New("no pending configuration")

	// ErrPendingConfigExists is returned when staging a proposal while the
	// one-slot queue is occupied.
	ErrPendingConfigExists = errors.New("a pending configuration already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotAuthorizedError reports a permission violation with full context.
type NotAuthorizedError struct {
	ActorID     EmployeeID
	ContentType ContentType
	Status      ApprovalStatus
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("actor %s not authorized to act on %s record in %s",
		e.ActorID, e.ContentType, e.Status)
}

func (e *NotAuthorizedError) Unwrap() error { return ErrNotAuthorized }

// RecordLockedError reports an attempted mutation of a non-DRAFT record.
type RecordLockedError struct {
	RecordID RecordID
	Status   ApprovalStatus
}

func (e *RecordLockedError) Error() string {
	return fmt.Sprintf("record %s is locked in status %s", e.RecordID, e.Status)
}

func (e *RecordLockedError) Unwrap() error { return ErrRecordLocked }

// DeadlinePassedError reports a post-audit reversal past its deadline.
type DeadlinePassedError struct {
	RecordID RecordID
	Deadline time.Time
}

func (e *DeadlinePassedError) Error() string {
	return fmt.Sprintf("post-audit window for record %s closed at %s",
		e.RecordID, e.Deadline.Format(time.RFC3339))
}

func (e *DeadlinePassedError) Unwrap() error { return ErrDeadlinePassed }

// ValidationError reports a record that fails submit-time validation, such
// as overtime hours exceeding worked hours.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input or
// state, as opposed to an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotAuthorized) ||
		errors.Is(err, ErrRecordLocked) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDeadlinePassed) ||
		errors.Is(err, ErrPendingConfigExists) ||
		errors.Is(err, ErrNoPendingConfig)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrGradeNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrNoWorkflow)
}

// IsConflict returns true if the error indicates a concurrent-write conflict
// or a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrStaleRecord) || errors.Is(err, ErrDuplicateAttendance)
}
