// internal/app/monitor_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"review_notification_bot/internal/domain/notification"
	"review_notification_bot/internal/domain/review"
	"review_notification_bot/internal/domain/state"
	"review_notification_bot/internal/infra/brightdata"
	"review_notification_bot/internal/infra/retry"
)

// Outcome is how a monitor run ended.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeRateLimited      Outcome = "skipped_rate_limited"
	OutcomeLocked           Outcome = "skipped_locked"
	OutcomeNoData           Outcome = "no_data"
	OutcomeCollectionFailed Outcome = "collection_failed"
	OutcomeStateFailed      Outcome = "state_failed"
	OutcomePanicked         Outcome = "panicked"
)

var (
	ErrRunPanicked = fmt.Errorf("monitor run panicked")
	ErrLockFailed  = fmt.Errorf("could not take the run lock")
)

// Collector fetches the current review snapshot.
type Collector interface {
	Collect(ctx context.Context) ([]review.Payload, error)
}

// RunLock keeps two runs from working on the same state at once.
type RunLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Metrics receives run telemetry. All methods must be cheap and non-blocking.
type Metrics interface {
	RunFinished(outcome string)
	NotificationSent(kind string, ok bool)
	CollectDuration(d time.Duration)
	LastReviewID(id int64)
}

type nopMetrics struct{}

func (nopMetrics) RunFinished(string)            {}
func (nopMetrics) NotificationSent(string, bool) {}
func (nopMetrics) CollectDuration(time.Duration) {}
func (nopMetrics) LastReviewID(int64)            {}

// MonitorOptions holds the dedup and pacing settings of a run.
type MonitorOptions struct {
	RecentDays        int
	FutureSlackDays   int
	SeenCap           int
	MinCheckInterval  time.Duration
	HealthCheckAfter  time.Duration
	NotificationDelay time.Duration
}

// RunReport summarises one run.
type RunReport struct {
	RunID        string
	Outcome      Outcome
	StartedAt    time.Time
	FinishedAt   time.Time
	Fetched      int
	Invalid      int
	Stale        int
	Incomplete   int
	New          int
	Notified     int
	FailedIDs    []int64
	HealthSent   bool
	LastReviewID int64
}

// MonitorService runs the collect, filter, notify and commit cycle.
type MonitorService struct {
	collector Collector
	repo      state.Repository
	notifier  notification.Notifier
	lock      RunLock
	metrics   Metrics
	opts      MonitorOptions
	logger    *logrus.Entry

	now   func() time.Time
	sleep retry.SleepFunc
}

// NewMonitorService wires a service. metrics may be nil.
func NewMonitorService(
	collector Collector,
	repo state.Repository,
	notifier notification.Notifier,
	lock RunLock,
	metrics Metrics,
	opts MonitorOptions,
	logger *logrus.Entry,
) *MonitorService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &MonitorService{
		collector: collector,
		repo:      repo,
		notifier:  notifier,
		lock:      lock,
		metrics:   metrics,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		sleep:     retry.Sleep,
	}
}

// Run performs one monitoring pass. State is written only when the pass
// completes; every other outcome leaves it untouched. The returned error is
// nil for skips and empty snapshots.
func (s *MonitorService) Run(ctx context.Context) (report RunReport, err error) {
	report = RunReport{RunID: uuid.NewString(), StartedAt: s.now().UTC()}
	log := s.logger.WithField("run_id", report.RunID)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).WithField("stack", string(debug.Stack())).Error("Monitor run panicked")
			report.Outcome = OutcomePanicked
			err = fmt.Errorf("%w: %v", ErrRunPanicked, r)
			s.reportError(ctx, log, fmt.Sprintf("Review monitor crashed: %v", r))
		}
		report.FinishedAt = s.now().UTC()
		s.metrics.RunFinished(string(report.Outcome))
		log.WithFields(logrus.Fields{
			"outcome":  report.Outcome,
			"fetched":  report.Fetched,
			"new":      report.New,
			"notified": report.Notified,
			"failed":   len(report.FailedIDs),
			"duration": report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		}).Info("Monitor run finished")
	}()

	acquired, err := s.lock.TryAcquire(ctx)
	if err != nil {
		report.Outcome = OutcomeLocked
		return report, fmt.Errorf("%w: %w", ErrLockFailed, err)
	}
	if !acquired {
		log.Info("Another run holds the lock, skipping")
		report.Outcome = OutcomeLocked
		return report, nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			log.WithError(relErr).Warn("Failed to release run lock")
		}
	}()

	return s.run(ctx, log, report)
}

func (s *MonitorService) run(ctx context.Context, log *logrus.Entry, report RunReport) (RunReport, error) {
	prev, err := s.repo.Load(ctx)
	if err != nil {
		report.Outcome = OutcomeStateFailed
		s.reportError(ctx, log, "Review monitor could not load its state: "+err.Error())
		return report, fmt.Errorf("load state: %w", err)
	}
	report.LastReviewID = prev.LastReviewID

	now := s.now().UTC()
	if s.rateLimited(prev, now, log) {
		report.Outcome = OutcomeRateLimited
		return report, nil
	}

	collectStart := s.now()
	payloads, err := s.collector.Collect(ctx)
	s.metrics.CollectDuration(s.now().Sub(collectStart))
	switch {
	case errors.Is(err, brightdata.ErrEmptyDataset):
		log.Warn("Snapshot is empty, nothing to do")
		report.Outcome = OutcomeNoData
		return report, nil
	case err != nil:
		report.Outcome = OutcomeCollectionFailed
		s.reportError(ctx, log, "Review collection failed: "+err.Error())
		return report, fmt.Errorf("collect reviews: %w", err)
	}

	reviews := s.parse(payloads, log, &report)
	if len(reviews) == 0 {
		log.WithField("records", len(payloads)).Warn("No usable reviews in snapshot")
		report.Outcome = OutcomeNoData
		return report, nil
	}

	res := state.Filter(reviews, prev, now, state.FilterOptions{
		RecentDays:      s.opts.RecentDays,
		FutureSlackDays: s.opts.FutureSlackDays,
		SeenCap:         s.opts.SeenCap,
	})
	report.New = len(res.New)
	report.Stale = res.Stale
	report.Incomplete = len(res.Incomplete)
	for _, r := range res.Incomplete {
		log.WithField("review_id", r.ID).WithError(r.Complete()).Warn("Skipping incomplete review")
	}
	log.WithFields(logrus.Fields{
		"fetched":    report.Fetched,
		"new":        report.New,
		"seen":       res.Seen,
		"stale":      res.Stale,
		"incomplete": report.Incomplete,
	}).Info("Reviews filtered")

	updated := res.Updated
	s.emit(ctx, log, res.New, &report)
	if report.Notified > 0 {
		updated.LastNotificationSent = state.At(s.now().UTC())
	}

	if s.healthCheckDue(updated, now) {
		health := notification.HealthReport{
			CheckedAt:        now,
			LastNotification: updated.LastNotificationSent.Time,
			ReviewsFetched:   report.Fetched,
			LastReviewID:     updated.LastReviewID,
		}
		if err := s.notifier.NotifyHealth(ctx, health); err != nil {
			log.WithError(err).Error("Health notification failed")
			s.metrics.NotificationSent(string(notification.KindHealth), false)
		} else {
			log.Info("Health notification sent")
			s.metrics.NotificationSent(string(notification.KindHealth), true)
			report.HealthSent = true
			updated.LastNotificationSent = state.At(s.now().UTC())
		}
	}

	if len(report.FailedIDs) > 0 {
		s.reportError(ctx, log, failureSummary(report.FailedIDs, report.New))
	}

	// Delivered reviews are committed even when the run was cancelled.
	updated.LastChecked = state.At(s.now().UTC())
	if err := s.repo.Save(context.WithoutCancel(ctx), updated); err != nil {
		report.Outcome = OutcomeStateFailed
		s.reportError(ctx, log, "Review monitor could not save its state: "+err.Error())
		return report, fmt.Errorf("save state: %w", err)
	}

	report.LastReviewID = updated.LastReviewID
	s.metrics.LastReviewID(updated.LastReviewID)
	report.Outcome = OutcomeCompleted
	return report, nil
}

func (s *MonitorService) rateLimited(prev state.State, now time.Time, log *logrus.Entry) bool {
	if prev.LastChecked.IsZero() {
		return false
	}
	elapsed := now.Sub(prev.LastChecked.Time)
	if elapsed < 0 {
		log.WithField("last_checked", prev.LastChecked.Time).Warn("Last check is in the future, ignoring rate limit")
		return false
	}
	if elapsed < s.opts.MinCheckInterval {
		log.WithFields(logrus.Fields{
			"since_last_check": elapsed.Round(time.Second),
			"min_interval":     s.opts.MinCheckInterval,
		}).Info("Checked recently, skipping")
		return true
	}
	return false
}

func (s *MonitorService) parse(payloads []review.Payload, log *logrus.Entry, report *RunReport) []review.Review {
	reviews := make([]review.Review, 0, len(payloads))
	for i, p := range payloads {
		r, err := review.FromPayload(p)
		if err != nil {
			report.Invalid++
			log.WithError(err).WithField("index", i).Warn("Discarding invalid record")
			continue
		}
		reviews = append(reviews, r)
	}
	report.Fetched = len(reviews)
	return reviews
}

// emit delivers reviews one by one. A failed delivery does not stop the rest.
func (s *MonitorService) emit(ctx context.Context, log *logrus.Entry, reviews []review.Review, report *RunReport) {
	for i, r := range reviews {
		if i > 0 {
			if err := s.sleep(ctx, s.opts.NotificationDelay); err != nil {
				log.WithError(err).Warn("Run cancelled during notification pacing")
				for _, rest := range reviews[i:] {
					report.FailedIDs = append(report.FailedIDs, rest.ID)
				}
				return
			}
		}

		reviewLog := log.WithFields(logrus.Fields{
			"review_id": r.ID,
			"position":  strconv.Itoa(i+1) + "/" + strconv.Itoa(len(reviews)),
		})
		if err := s.notifier.NotifyReview(ctx, r); err != nil {
			reviewLog.WithError(err).Error("Review notification failed")
			s.metrics.NotificationSent(string(notification.KindReview), false)
			report.FailedIDs = append(report.FailedIDs, r.ID)
			continue
		}
		reviewLog.Info("Review notification sent")
		s.metrics.NotificationSent(string(notification.KindReview), true)
		report.Notified++
	}
}

func (s *MonitorService) healthCheckDue(st state.State, now time.Time) bool {
	if st.LastNotificationSent.IsZero() {
		return true
	}
	return now.Sub(st.LastNotificationSent.Time) >= s.opts.HealthCheckAfter
}

// reportError sends an error notification even if the run context is done.
// A panicking notifier must not mask the original failure.
func (s *MonitorService) reportError(ctx context.Context, log *logrus.Entry, message string) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Error notifier panicked")
		}
	}()
	s.notifier.NotifyError(context.WithoutCancel(ctx), message)
}

func failureSummary(ids []int64, total int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("Failed to deliver %d of %d review notifications (review IDs: %s)",
		len(ids), total, strings.Join(parts, ", "))
}
