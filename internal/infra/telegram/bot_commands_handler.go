// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"review_notification_bot/internal/app"
	"review_notification_bot/internal/domain/state"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// Runner triggers an on-demand monitor run.
type Runner interface {
	Run(ctx context.Context) (app.RunReport, error)
}

type commandHandler struct {
	ctx        context.Context
	chatID     int64
	repo       state.Repository
	runner     Runner
	runTimeout time.Duration
	logger     *logrus.Entry
}

// RegisterBotCommands wires /status and /check. Commands are answered only in
// the configured chat.
func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	chatID int64,
	repo state.Repository,
	runner Runner,
	runTimeout time.Duration,
	baseLogger *logrus.Entry,
) {
	h := &commandHandler{
		ctx:        ctx,
		chatID:     chatID,
		repo:       repo,
		runner:     runner,
		runTimeout: runTimeout,
		logger:     baseLogger.WithField("handler_group", "monitor_commands"),
	}

	b.Handle("/start", h.authorized("/start", h.handleHelp))
	b.Handle("/help", h.authorized("/help", h.handleHelp))
	b.Handle("/status", h.authorized("/status", h.handleStatus))
	b.Handle("/check", h.authorized("/check", h.handleCheck))
}

func (h *commandHandler) authorized(command string, next func(telebot.Context, *logrus.Entry) error) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		var chatID int64
		if c.Chat() != nil {
			chatID = c.Chat().ID
		}
		logCtx := h.logger.WithFields(logrus.Fields{"command": command, "chat_id": chatID})
		logCtx.Info("Command received")

		if chatID != h.chatID {
			logCtx.Warn("Command from unauthorized chat")
			return c.Send("This bot only answers in its configured chat.")
		}
		return next(c, logCtx)
	}
}

func (h *commandHandler) handleHelp(c telebot.Context, _ *logrus.Entry) error {
	var helpText strings.Builder
	helpText.WriteString("I post new G2 reviews to this chat.\n\n")
	helpText.WriteString("/status - show when reviews were last checked and sent\n")
	helpText.WriteString("/check - run a review check now (subject to the rate limit)\n")
	helpText.WriteString("/help - show this message")
	return c.Send(helpText.String())
}

func (h *commandHandler) handleStatus(c telebot.Context, logCtx *logrus.Entry) error {
	st, err := h.repo.Load(h.ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load monitor state for /status")
		return c.Send("Could not read the monitor state. Please try again later.")
	}
	return c.Send(formatStatus(st))
}

func (h *commandHandler) handleCheck(c telebot.Context, logCtx *logrus.Entry) error {
	if err := c.Send("Starting a review check..."); err != nil {
		logCtx.WithError(err).Warn("Could not acknowledge /check")
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.runTimeout)
	defer cancel()

	report, err := h.runner.Run(ctx)
	logCtx = logCtx.WithFields(logrus.Fields{"run_id": report.RunID, "outcome": report.Outcome})
	if err != nil {
		logCtx.WithError(err).Error("On-demand check failed")
		return c.Send(fmt.Sprintf("Check failed (%s): %v", report.Outcome, err))
	}
	logCtx.Info("On-demand check done")
	return c.Send(formatReport(report))
}

func formatStatus(st state.State) string {
	return fmt.Sprintf("Last check: %s\nLast notification: %s\nLast review ID: %d\nTracked review IDs: %d",
		formatTime(st.LastChecked.Time), formatTime(st.LastNotificationSent.Time), st.LastReviewID, len(st.SeenReviewIDs))
}

func formatReport(r app.RunReport) string {
	switch r.Outcome {
	case app.OutcomeRateLimited:
		return "Skipped: reviews were checked less than the minimum interval ago."
	case app.OutcomeLocked:
		return "Skipped: another check is already running."
	case app.OutcomeNoData:
		return "The snapshot had no usable reviews."
	}
	msg := fmt.Sprintf("Check %s: %d fetched, %d new, %d sent", r.Outcome, r.Fetched, r.New, r.Notified)
	if len(r.FailedIDs) > 0 {
		msg += fmt.Sprintf(", %d failed", len(r.FailedIDs))
	}
	if r.HealthSent {
		msg += ", health message sent"
	}
	return msg + "."
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}
