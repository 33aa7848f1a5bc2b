package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"review_notification_bot/internal/app"
	"review_notification_bot/internal/domain/notification"
	"review_notification_bot/internal/domain/state"
	"review_notification_bot/internal/infra/brightdata"
	"review_notification_bot/internal/infra/config"
	idb "review_notification_bot/internal/infra/database"
	"review_notification_bot/internal/infra/lock"
	"review_notification_bot/internal/infra/logger"
	"review_notification_bot/internal/infra/metrics"
	"review_notification_bot/internal/infra/scheduler"
	"review_notification_bot/internal/infra/storage"
	"review_notification_bot/internal/infra/telegram"
	"review_notification_bot/internal/infra/webhook"
)

func main() {
	// Nothing touches the network before the configuration is valid.
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Could not load application configuration: %v", err)
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	mainLogger := logger.Component(log, "main")
	mainLogger.WithFields(logrus.Fields{
		"run_mode":      cfg.RunMode,
		"state_backend": cfg.StateBackend,
		"target":        cfg.TargetURL,
		"telegram":      cfg.TelegramEnabled(),
		"redis_lock":    cfg.RedisURL != "",
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := newStateRepository(ctx, cfg, mainLogger)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not initialise state storage")
	}
	defer closeRepo()

	runLock, closeLock, err := newRunLock(ctx, cfg, mainLogger)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not initialise run lock")
	}
	defer closeLock()

	promMetrics := metrics.New()

	collector := brightdata.NewCollector(brightdata.Options{
		Endpoint:                 cfg.APIEndpoint,
		BaseURL:                  cfg.APIBaseURL,
		APIKey:                   cfg.APIKey,
		TargetURL:                cfg.TargetURL,
		SortFilter:               cfg.SortFilter,
		Pages:                    cfg.Pages,
		MaxRetries:               cfg.Tuning.Collector.MaxRetries,
		BackoffUnit:              cfg.Tuning.Collector.BackoffUnit,
		PollInterval:             cfg.Tuning.Collector.PollInterval,
		PollMaxWait:              cfg.Tuning.Collector.PollMaxWait,
		MaxConsecutivePollErrors: cfg.Tuning.Collector.MaxConsecutivePollErrors,
		RequestTimeout:           cfg.Tuning.Collector.RequestTimeout,
	}, logger.Component(log, "collector"), promMetrics)

	sinks := notification.Fanout{
		webhook.NewSlackNotifier(webhook.Options{
			WebhookURL:     cfg.WebhookURL,
			MaxRetries:     cfg.Tuning.Notify.MaxRetries,
			BackoffUnit:    cfg.Tuning.Notify.BackoffUnit,
			RequestTimeout: cfg.Tuning.Notify.RequestTimeout,
			MonitorURL:     cfg.TargetURL,
		}, logger.Component(log, "slack")),
	}

	var bot *telebot.Bot
	if cfg.TelegramEnabled() {
		bot, err = newBot(cfg, cfg.RunMode == config.RunModeDaemon, mainLogger)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		sinks = append(sinks, telegram.NewNotifier(
			telegram.NewTelebotAdapter(bot),
			cfg.TelegramChatID,
			cfg.Tuning.Notify.MaxRetries,
			cfg.Tuning.Notify.BackoffUnit,
			logger.Component(log, "telegram"),
		))
	}

	svc := app.NewMonitorService(collector, repo, sinks, runLock, promMetrics, app.MonitorOptions{
		RecentDays:        cfg.Tuning.Dedup.RecentDays,
		FutureSlackDays:   cfg.Tuning.Dedup.FutureSlackDays,
		SeenCap:           cfg.Tuning.Dedup.SeenCap,
		MinCheckInterval:  cfg.Tuning.Dedup.MinCheckInterval,
		HealthCheckAfter:  cfg.Tuning.Dedup.HealthCheckAfter,
		NotificationDelay: cfg.Tuning.Notify.Delay,
	}, logger.Component(log, "monitor"))

	switch cfg.RunMode {
	case config.RunModeDaemon:
		runDaemon(ctx, cfg, svc, repo, bot, promMetrics, log, mainLogger)
	default:
		runOnce(ctx, cfg, svc, promMetrics, mainLogger)
	}
}

// runOnce performs a single pass. The process exits 0 whatever the outcome;
// failures have already been reported through the notifiers.
func runOnce(ctx context.Context, cfg *config.AppConfig, svc *app.MonitorService, promMetrics *metrics.Prometheus, mainLogger *logrus.Entry) {
	runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	report, err := svc.Run(runCtx)
	cancel()

	entry := mainLogger.WithFields(logrus.Fields{
		"run_id":   report.RunID,
		"outcome":  report.Outcome,
		"notified": report.Notified,
	})
	if err != nil {
		entry.WithError(err).Error("Review check failed")
	} else {
		entry.Info("Review check complete")
	}

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := promMetrics.Push(pushCtx, cfg.PushgatewayURL, cfg.StateKey); err != nil {
			mainLogger.WithError(err).Warn("Could not push metrics")
		}
	}
}

func runDaemon(
	ctx context.Context,
	cfg *config.AppConfig,
	svc *app.MonitorService,
	repo state.Repository,
	bot *telebot.Bot,
	promMetrics *metrics.Prometheus,
	log *logrus.Logger,
	mainLogger *logrus.Entry,
) {
	runScheduler := scheduler.NewRunScheduler(ctx, svc, logger.Component(log, "scheduler"), cfg.CronSpec, cfg.RunTimeout)
	if err := runScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		mainLogger.WithField("addr", cfg.MetricsAddr).Info("Metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Error("Metrics server stopped")
		}
	}()

	if bot != nil {
		telegram.RegisterBotCommands(ctx, bot, cfg.TelegramChatID, repo, svc, cfg.RunTimeout, logger.Component(log, "telegram"))
		// Start bot in a goroutine so it doesn't block graceful shutdown handling
		go bot.Start()
		mainLogger.Info("Telegram command handlers registered")
	}

	mainLogger.Info("Application setup complete. Scheduler is running.")
	<-ctx.Done() // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	runScheduler.Stop()
	if bot != nil {
		bot.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("Metrics server did not shut down cleanly")
	}
	mainLogger.Info("Application shut down gracefully.")
}

func newStateRepository(ctx context.Context, cfg *config.AppConfig, mainLogger *logrus.Entry) (state.Repository, func(), error) {
	if cfg.StateBackend != config.StateBackendPostgres {
		mainLogger.WithField("path", cfg.StateFile).Info("Using file state storage")
		return storage.NewFileStateRepository(cfg.StateFile), func() {}, nil
	}

	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := idb.RunMigrations(cfg.DatabaseURL); err != nil {
		db.Close()
		return nil, nil, err
	}
	mainLogger.WithField("monitor_key", cfg.StateKey).Info("Using Postgres state storage")
	return idb.NewPostgresStateRepository(db, cfg.StateKey), func() { db.Close() }, nil
}

func newRunLock(ctx context.Context, cfg *config.AppConfig, mainLogger *logrus.Entry) (app.RunLock, func(), error) {
	if cfg.RedisURL == "" {
		return lock.NewLocalLock(), func() {}, nil
	}

	client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	// The key outlives the longest possible run, then expires on its own.
	ttl := cfg.RunTimeout + time.Minute
	mainLogger.WithField("ttl", ttl).Info("Using Redis run lock")
	return lock.NewRedisLock(client, "review-monitor:lock:"+cfg.StateKey, ttl), func() { _ = client.Close() }, nil
}

func newBot(cfg *config.AppConfig, poll bool, mainLogger *logrus.Entry) (*telebot.Bot, error) {
	pref := telebot.Settings{
		Token: cfg.TelegramToken,
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := mainLogger.WithError(err)
			if c != nil && c.Chat() != nil {
				entry = entry.WithField("chat_id", c.Chat().ID)
			}
			entry.Error("Telegram bot error")
		},
	}
	if poll {
		pref.Poller = &telebot.LongPoller{Timeout: 10 * time.Second}
	}
	return telebot.NewBot(pref)
}
