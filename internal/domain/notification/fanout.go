package notification

import (
	"context"
	"errors"

	"review_notification_bot/internal/domain/review"
)

// Fanout delivers every notification to all sinks. A delivery fails if any
// sink fails; the remaining sinks are still attempted.
type Fanout []Notifier

var _ Notifier = Fanout(nil)

func (f Fanout) NotifyReview(ctx context.Context, r review.Review) error {
	var errs []error
	for _, n := range f {
		if err := n.NotifyReview(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) NotifyHealth(ctx context.Context, report HealthReport) error {
	var errs []error
	for _, n := range f {
		if err := n.NotifyHealth(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) NotifyError(ctx context.Context, message string) {
	for _, n := range f {
		n.NotifyError(ctx, message)
	}
}
