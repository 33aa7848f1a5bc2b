// internal/domain/notification/notifier.go
package notification

import (
	"context"
	"time"

	"review_notification_bot/internal/domain/review"
)

// Kind distinguishes the messages a Notifier delivers.
type Kind string

const (
	KindReview Kind = "review"
	KindHealth Kind = "health"
	KindError  Kind = "error"
)

// HealthReport is the "system alive" message sent after a quiet period.
type HealthReport struct {
	CheckedAt        time.Time
	LastNotification time.Time // Zero if nothing was ever sent
	ReviewsFetched   int
	LastReviewID     int64
}

// Notifier delivers notifications to a messaging endpoint.
type Notifier interface {
	NotifyReview(ctx context.Context, r review.Review) error
	NotifyHealth(ctx context.Context, report HealthReport) error
	// NotifyError is best-effort; delivery problems are only logged.
	NotifyError(ctx context.Context, message string)
}
