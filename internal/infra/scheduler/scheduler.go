package scheduler

import (
	"context"
	"fmt"
	"time"

	"review_notification_bot/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner is the part of the monitor service the scheduler drives.
type Runner interface {
	Run(ctx context.Context) (app.RunReport, error)
}

// RunScheduler fires a monitor run on a cron schedule.
type RunScheduler struct {
	cronEngine *cron.Cron
	runner     Runner
	logger     *logrus.Entry
	cronSpec   string
	runTimeout time.Duration
	baseCtx    context.Context
}

func NewRunScheduler(
	baseCtx context.Context,
	runner Runner,
	logger *logrus.Entry,
	cronSpec string, // e.g., "*/30 * * * *" (every 30 minutes)
	runTimeout time.Duration,
) *RunScheduler {
	return &RunScheduler{
		// SkipIfStillRunning keeps a slow run from stacking up behind itself.
		cronEngine: cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner:     runner,
		logger:     logger,
		cronSpec:   cronSpec,
		runTimeout: runTimeout,
		baseCtx:    baseCtx,
	}
}

func (s *RunScheduler) Start() error {
	s.logger.WithField("cron_spec", s.cronSpec).Info("Starting run scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, s.execute)
	if err != nil {
		return fmt.Errorf("could not add monitor cron job %q: %w", s.cronSpec, err)
	}

	s.cronEngine.Start()
	s.logger.Info("Run scheduler started.")
	return nil
}

// execute runs one pass bounded by the run timeout.
func (s *RunScheduler) execute() {
	s.logger.Info("Cron job triggered for review check.")
	ctx, cancel := context.WithTimeout(s.baseCtx, s.runTimeout)
	defer cancel()

	report, err := s.runner.Run(ctx)
	entry := s.logger.WithFields(logrus.Fields{
		"run_id":  report.RunID,
		"outcome": report.Outcome,
	})
	if err != nil {
		entry.WithError(err).Error("Scheduled review check failed")
		return
	}
	entry.Info("Scheduled review check done")
}

func (s *RunScheduler) Stop() {
	s.logger.Info("Stopping run scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Run scheduler gracefully stopped.")
}
