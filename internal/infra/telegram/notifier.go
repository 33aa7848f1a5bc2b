// internal/infra/telegram/notifier.go
package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"review_notification_bot/internal/domain/notification"
	"review_notification_bot/internal/domain/review"
	domainTelegram "review_notification_bot/internal/domain/telegram"
	"review_notification_bot/internal/infra/retry"
)

var ErrSendFailed = fmt.Errorf("telegram delivery failed")

// Notifier mirrors review, health and error notifications into a Telegram chat.
type Notifier struct {
	client      domainTelegram.Client
	chatID      int64
	maxRetries  int
	backoffUnit time.Duration
	logger      *logrus.Entry
	sleep       retry.SleepFunc
}

var _ notification.Notifier = (*Notifier)(nil)

func NewNotifier(client domainTelegram.Client, chatID int64, maxRetries int, backoffUnit time.Duration, logger *logrus.Entry) *Notifier {
	return &Notifier{
		client:      client,
		chatID:      chatID,
		maxRetries:  maxRetries,
		backoffUnit: backoffUnit,
		logger:      logger,
		sleep:       retry.Sleep,
	}
}

func (n *Notifier) NotifyReview(ctx context.Context, r review.Review) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "<b>New review: %s</b>\n", html.EscapeString(r.Title))
	fmt.Fprintf(&msg, "%s by %s on %s\n\n", html.EscapeString(r.RatingLine()), html.EscapeString(r.Author), r.Date.Format("2006-01-02"))
	msg.WriteString(html.EscapeString(r.Excerpt()))
	fmt.Fprintf(&msg, "\n\n<a href=\"%s\">Read on G2</a>", html.EscapeString(r.URL))
	return n.send(ctx, notification.KindReview, msg.String())
}

func (n *Notifier) NotifyHealth(ctx context.Context, report notification.HealthReport) error {
	last := "never"
	if !report.LastNotification.IsZero() {
		last = report.LastNotification.UTC().Format(time.RFC1123)
	}
	msg := fmt.Sprintf("✅ <b>Review monitor is alive</b>\nNo notifications since %s.\nLast check fetched %d reviews, latest review ID %d.",
		html.EscapeString(last), report.ReviewsFetched, report.LastReviewID)
	return n.send(ctx, notification.KindHealth, msg)
}

func (n *Notifier) NotifyError(ctx context.Context, message string) {
	msg := "⚠️ <b>Review monitor error</b>\n" + html.EscapeString(message)
	if err := n.send(ctx, notification.KindError, msg); err != nil {
		n.logger.WithError(err).Error("Could not deliver error notification to Telegram")
	}
}

func (n *Notifier) send(ctx context.Context, kind notification.Kind, text string) error {
	opts := &telebot.SendOptions{ParseMode: telebot.ModeHTML, DisableWebPagePreview: true}
	policy := retry.Policy{
		Attempts: n.maxRetries,
		Unit:     n.backoffUnit,
		Sleep:    n.sleep,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"kind":    kind,
				"attempt": attempt,
				"wait":    wait,
			}).Warn("Telegram send failed, retrying")
		},
	}
	err := policy.Do(ctx, func(int) error {
		return n.client.SendMessage(n.chatID, text, opts)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSendFailed, kind, err)
	}
	return nil
}
