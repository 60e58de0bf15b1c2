/*
recompute.go - Batch recomputation across employees

PURPOSE:
  Runs the compositor over a set of employees for one month with a
  bounded worker pool. One employee failing (missing grade, locked
  record) never aborts the rest; failures are logged and reported in
  the summary.
*/
package salary

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// RecomputeFailure records one employee whose record could not be rebuilt.
type RecomputeFailure struct {
	EmployeeID payroll.EmployeeID
	Err        error
}

// RecomputeResult summarises a batch run.
type RecomputeResult struct {
	Month     payroll.Month
	Succeeded int
	Skipped   int // records locked past DRAFT
	Failures  []RecomputeFailure
}

// =============================================================================
// RUNNER
// =============================================================================

// Runner executes batch recomputations.
type Runner struct {
	Compositor *Compositor
	Directory  payroll.Directory
	Log        *logrus.Logger

	// Workers bounds the number of concurrent compositions. Zero means 4.
	Workers int
}

// RecomputeAll rebuilds the salary record of every employee for the given
// month. Employees whose records have left DRAFT are skipped, not failed.
func (r *Runner) RecomputeAll(ctx context.Context, month payroll.Month) (*RecomputeResult, error) {
	employees, err := r.Directory.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]payroll.EmployeeID, 0, len(employees))
	for _, emp := range employees {
		ids = append(ids, emp.ID)
	}
	return r.Recompute(ctx, ids, month)
}

// Recompute rebuilds the salary records of the listed employees for the
// given month, in parallel with per-employee failure isolation.
func (r *Runner) Recompute(ctx context.Context, employeeIDs []payroll.EmployeeID, month payroll.Month) (*RecomputeResult, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(employeeIDs) {
		workers = len(employeeIDs)
	}

	result := &RecomputeResult{Month: month}
	if len(employeeIDs) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan payroll.EmployeeID)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				r.recomputeOne(ctx, id, month, result, &mu)
			}
		}()
	}

	for _, id := range employeeIDs {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return result, ctx.Err()
		case jobs <- id:
		}
	}
	close(jobs)
	wg.Wait()

	// Deterministic failure order, independent of worker scheduling.
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].EmployeeID < result.Failures[j].EmployeeID
	})

	r.Log.WithFields(logrus.Fields{
		"month":     month.String(),
		"succeeded": result.Succeeded,
		"skipped":   result.Skipped,
		"failed":    len(result.Failures),
	}).Info("salary recompute finished")

	return result, nil
}

func (r *Runner) recomputeOne(ctx context.Context, id payroll.EmployeeID, month payroll.Month, result *RecomputeResult, mu *sync.Mutex) {
	_, err := r.Compositor.Compose(ctx, id, month)

	mu.Lock()
	defer mu.Unlock()

	switch {
	case err == nil:
		result.Succeeded++
	case errors.Is(err, payroll.ErrRecordLocked):
		// Locked records are a normal state during approval, not a defect.
		result.Skipped++
	default:
		r.Log.WithFields(logrus.Fields{
			"employee": string(id),
			"month":    month.String(),
		}).WithError(err).Warn("salary recompute failed for employee")
		result.Failures = append(result.Failures, RecomputeFailure{EmployeeID: id, Err: err})
	}
}
