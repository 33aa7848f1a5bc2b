// Package webhook delivers notifications to a Slack Workflow webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"review_notification_bot/internal/domain/notification"
	"review_notification_bot/internal/domain/review"
	"review_notification_bot/internal/infra/retry"
)

const dateLayout = "2006-01-02"

// ErrDeliveryFailed wraps every failed webhook delivery.
var ErrDeliveryFailed = fmt.Errorf("webhook delivery failed")

// Payload is the body the Slack workflow expects. Health and error messages
// reuse the same fields so a single workflow can render all of them.
type Payload struct {
	ReviewTitle  string `json:"review_title"`
	ReviewAuthor string `json:"review_author"`
	ReviewRating string `json:"review_rating"`
	ReviewDate   string `json:"review_date"`
	ReviewURL    string `json:"review_url"`
	ReviewText   string `json:"review_text"`
}

// Options configures a SlackNotifier.
type Options struct {
	WebhookURL     string
	MaxRetries     int
	BackoffUnit    time.Duration
	RequestTimeout time.Duration
	MonitorURL     string // Shown as the link on health and error messages
}

type SlackNotifier struct {
	opts   Options
	client *http.Client
	logger *logrus.Entry
	sleep  retry.SleepFunc
	now    func() time.Time
}

var _ notification.Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(opts Options, logger *logrus.Entry) *SlackNotifier {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &SlackNotifier{
		opts:   opts,
		client: &http.Client{Timeout: opts.RequestTimeout},
		logger: logger,
		sleep:  retry.Sleep,
		now:    time.Now,
	}
}

// ReviewPayload renders a review for the workflow.
func ReviewPayload(r review.Review) Payload {
	return Payload{
		ReviewTitle:  r.Title,
		ReviewAuthor: r.Author,
		ReviewRating: r.RatingLine(),
		ReviewDate:   r.Date.Format(dateLayout),
		ReviewURL:    r.URL,
		ReviewText:   r.Excerpt(),
	}
}

func (n *SlackNotifier) NotifyReview(ctx context.Context, r review.Review) error {
	n.logger.WithFields(logrus.Fields{"review_id": r.ID, "title": r.Title}).Info("Sending review to Slack")
	return n.send(ctx, notification.KindReview, ReviewPayload(r))
}

func (n *SlackNotifier) NotifyHealth(ctx context.Context, report notification.HealthReport) error {
	last := "never"
	if !report.LastNotification.IsZero() {
		last = report.LastNotification.UTC().Format(time.RFC3339)
	}
	return n.send(ctx, notification.KindHealth, Payload{
		ReviewTitle:  "Review monitor is alive",
		ReviewAuthor: "Review Monitor",
		ReviewRating: "n/a",
		ReviewDate:   report.CheckedAt.UTC().Format(dateLayout),
		ReviewURL:    n.opts.MonitorURL,
		ReviewText: "No new reviews were sent since " + last + ". Last check fetched " +
			strconv.Itoa(report.ReviewsFetched) + " reviews; latest review ID is " +
			strconv.FormatInt(report.LastReviewID, 10) + ".",
	})
}

// NotifyError never fails the caller; a lost error message is only logged.
func (n *SlackNotifier) NotifyError(ctx context.Context, message string) {
	err := n.send(ctx, notification.KindError, Payload{
		ReviewTitle:  "Review monitor error",
		ReviewAuthor: "Review Monitor",
		ReviewRating: "n/a",
		ReviewDate:   n.now().UTC().Format(dateLayout),
		ReviewURL:    n.opts.MonitorURL,
		ReviewText:   message,
	})
	if err != nil {
		n.logger.WithError(err).Error("Could not deliver error notification")
	}
}

func (n *SlackNotifier) send(ctx context.Context, kind notification.Kind, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}

	policy := retry.Policy{
		Attempts:  n.opts.MaxRetries,
		Unit:      n.opts.BackoffUnit,
		Sleep:     n.sleep,
		Retryable: retryable,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"kind":    kind,
				"attempt": attempt,
				"wait":    wait,
			}).Warn("Webhook delivery failed, retrying")
		},
	}
	if err := policy.Do(ctx, func(int) error { return n.post(ctx, body) }); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, kind, err)
	}
	return nil
}

func (n *SlackNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.opts.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &statusError{code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(msg))}
	}
	return nil
}

var errInvalidRequest = errors.New("invalid webhook request")

// statusError is a non-2xx webhook reply.
type statusError struct {
	code   int
	status string
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webhook responded %s: %s", e.status, e.body)
}

// retryable reports whether another attempt can succeed. 4xx replies other
// than 429 are permanent.
func retryable(err error) bool {
	if errors.Is(err, errInvalidRequest) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}
