package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"review_notification_bot/internal/app"
)

func quietLogger() *logrus.Entry {
	log, _ := logtest.NewNullLogger()
	return logrus.NewEntry(log)
}

type stubRunner struct {
	deadline time.Time
	hasDL    bool
	calls    int
	err      error
}

func (r *stubRunner) Run(ctx context.Context) (app.RunReport, error) {
	r.calls++
	r.deadline, r.hasDL = ctx.Deadline()
	return app.RunReport{RunID: "test", Outcome: app.OutcomeCompleted}, r.err
}

func TestRunScheduler_ExecuteBoundsRun(t *testing.T) {
	runner := &stubRunner{}
	s := NewRunScheduler(context.Background(), runner, quietLogger(), "*/30 * * * *", 15*time.Minute)

	before := time.Now()
	s.execute()

	if runner.calls != 1 {
		t.Fatalf("expected one run, got %d", runner.calls)
	}
	if !runner.hasDL {
		t.Fatal("run context has no deadline")
	}
	if d := runner.deadline.Sub(before); d < 14*time.Minute || d > 16*time.Minute {
		t.Errorf("deadline %v from start, want about 15m", d)
	}
}

func TestRunScheduler_ExecuteSurvivesErrors(t *testing.T) {
	runner := &stubRunner{err: errors.New("collection failed")}
	s := NewRunScheduler(context.Background(), runner, quietLogger(), "@every 1h", time.Minute)

	s.execute() // logs and returns
	if runner.calls != 1 {
		t.Errorf("expected one run, got %d", runner.calls)
	}
}

func TestRunScheduler_StartRejectsBadSpec(t *testing.T) {
	s := NewRunScheduler(context.Background(), &stubRunner{}, quietLogger(), "every now and then", time.Minute)
	if err := s.Start(); err == nil {
		t.Error("expected error for an invalid cron spec")
	}
}

func TestRunScheduler_StartStop(t *testing.T) {
	s := NewRunScheduler(context.Background(), &stubRunner{}, quietLogger(), "@every 1h", time.Minute)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
}
