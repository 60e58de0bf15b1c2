/*
scheduler.go - Background jobs: auto-approval sweep and draft recompute

PURPOSE:
  Two recurring jobs keep the system honest without operator attention:
  1. Auto-approval sweep: PENDING_HR attendance and evaluation records
     whose HR window has elapsed are promoted to APPROVED.
  2. Draft recompute: DRAFT salary records for the current month are
     rebuilt so payslips track late-arriving attendance approvals.
     Locked records are skipped; recompute never touches them.

DESIGN:
  Jobs run on cron schedules (robfig/cron). Defaults: the sweep hourly,
  the recompute nightly at 02:00 server time. Both are also callable
  directly through the API (batch-approve / recompute endpoints); the
  scheduler is the unattended path.

USAGE:
  sched := NewScheduler(svc, runner, log)
  sched.Start()
  // ... on shutdown
  sched.Stop()

SEE ALSO:
  - workflow/service.go: AutoApproveExpired
  - salary/recompute.go: Runner
*/
package api

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/salary"
	"github.com/warp/payroll-engine/workflow"
)

// Scheduler runs the recurring background jobs.
type Scheduler struct {
	Service *workflow.Service
	Runner  *salary.Runner
	Log     *logrus.Logger

	// Cron expressions; defaults applied by NewScheduler.
	SweepSpec     string
	RecomputeSpec string

	cron *cron.Cron
}

// NewScheduler creates a scheduler with the default job timetable.
func NewScheduler(svc *workflow.Service, runner *salary.Runner, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		Service:       svc,
		Runner:        runner,
		Log:           log,
		SweepSpec:     "@hourly",
		RecomputeSpec: "0 2 * * *",
	}
}

// Start registers the jobs and begins the cron loop. Jobs run in
// goroutines managed by cron; overlapping runs of the same job are
// possible only if a run outlasts its interval, which both jobs are far
// from.
func (s *Scheduler) Start() error {
	s.cron = cron.New()

	if _, err := s.cron.AddFunc(s.SweepSpec, s.runSweep); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.RecomputeSpec, s.runRecompute); err != nil {
		return err
	}

	s.cron.Start()
	s.Log.WithFields(logrus.Fields{
		"sweep":     s.SweepSpec,
		"recompute": s.RecomputeSpec,
	}).Info("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.Log.Info("scheduler stopped")
}

// RunSweepNow triggers an immediate sweep (for admin/testing).
func (s *Scheduler) RunSweepNow() { s.runSweep() }

func (s *Scheduler) runSweep() {
	promoted, err := s.Service.AutoApproveExpired(context.Background())
	if err != nil {
		s.Log.WithError(err).Error("auto-approve sweep failed")
		return
	}
	if promoted > 0 {
		s.Log.WithField("promoted", promoted).Info("auto-approve sweep completed")
	}
}

func (s *Scheduler) runRecompute() {
	month := payroll.CurrentMonth()
	result, err := s.Runner.RecomputeAll(context.Background(), month)
	if err != nil {
		s.Log.WithError(err).Error("scheduled recompute failed")
		return
	}
	s.Log.WithFields(logrus.Fields{
		"month":     month.String(),
		"succeeded": result.Succeeded,
		"skipped":   result.Skipped,
		"failed":    len(result.Failures),
	}).Info("scheduled recompute completed")
}
