package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	RunModeOnce   = "once"
	RunModeDaemon = "daemon"

	StateBackendFile     = "file"
	StateBackendPostgres = "postgres"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	WebhookURL     string
	APIKey         string
	APIEndpoint    string // Trigger endpoint, including dataset_id
	APIBaseURL     string // Progress and snapshot endpoints hang off this
	TargetURL      string
	SortFilter     string
	Pages          int
	StateBackend   string
	StateFile      string
	StateKey       string // Row key when the state lives in Postgres
	DatabaseURL    string
	RedisURL       string
	TelegramToken  string
	TelegramChatID int64
	LogLevel       string
	Environment    string
	RunMode        string
	CronSpec       string
	RunTimeout     time.Duration
	MetricsAddr    string
	PushgatewayURL string

	Tuning Tuning
}

// Tuning groups the knobs that rarely change. They can be set from a YAML
// file referenced by MONITOR_CONFIG.
type Tuning struct {
	Collector CollectorTuning `yaml:"collector"`
	Dedup     DedupTuning     `yaml:"dedup"`
	Notify    NotifyTuning    `yaml:"notify"`
}

type CollectorTuning struct {
	MaxRetries               int           `yaml:"maxRetries"`
	BackoffUnit              time.Duration `yaml:"backoffUnit"`
	PollInterval             time.Duration `yaml:"pollInterval"`
	PollMaxWait              time.Duration `yaml:"pollMaxWait"`
	MaxConsecutivePollErrors int           `yaml:"maxConsecutivePollErrors"`
	RequestTimeout           time.Duration `yaml:"requestTimeout"`
}

type DedupTuning struct {
	RecentDays       int           `yaml:"recentDays"`
	FutureSlackDays  int           `yaml:"futureSlackDays"`
	SeenCap          int           `yaml:"seenCap"`
	MinCheckInterval time.Duration `yaml:"minCheckInterval"`
	HealthCheckAfter time.Duration `yaml:"healthCheckAfter"`
}

type NotifyTuning struct {
	Delay          time.Duration `yaml:"delay"`
	MaxRetries     int           `yaml:"maxRetries"`
	BackoffUnit    time.Duration `yaml:"backoffUnit"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// DefaultTuning mirrors the behaviour of the monitor when no file is given.
func DefaultTuning() Tuning {
	return Tuning{
		Collector: CollectorTuning{
			MaxRetries:               3,
			BackoffUnit:              5 * time.Second,
			PollInterval:             10 * time.Second,
			PollMaxWait:              180 * time.Second,
			MaxConsecutivePollErrors: 3,
			RequestTimeout:           30 * time.Second,
		},
		Dedup: DedupTuning{
			RecentDays:       60,
			FutureSlackDays:  2,
			SeenCap:          100,
			MinCheckInterval: 30 * time.Minute,
			HealthCheckAfter: 7 * 24 * time.Hour,
		},
		Notify: NotifyTuning{
			Delay:          2 * time.Second,
			MaxRetries:     3,
			BackoffUnit:    2 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
	}
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates the configuration from a lookup function.
func FromEnv(getenv func(string) string) (*AppConfig, error) {
	cfg := &AppConfig{Tuning: DefaultTuning()}
	var err error

	if path := getenv("MONITOR_CONFIG"); path != "" {
		if cfg.Tuning, err = loadTuning(path, cfg.Tuning); err != nil {
			return nil, err
		}
	}

	cfg.WebhookURL = getenv("SLACK_WEBHOOK_URL")
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("SLACK_WEBHOOK_URL is not set")
	}

	cfg.APIKey = getenv("BRIGHT_DATA_API_KEY")
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("BRIGHT_DATA_API_KEY is not set")
	}

	cfg.APIEndpoint = getenv("BRIGHT_DATA_ENDPOINT")
	if cfg.APIEndpoint == "" {
		return nil, fmt.Errorf("BRIGHT_DATA_ENDPOINT is not set")
	}

	cfg.APIBaseURL = strings.TrimRight(withDefault(getenv("BRIGHT_DATA_API_BASE"), "https://api.brightdata.com/datasets/v3"), "/")
	cfg.TargetURL = withDefault(getenv("REVIEWS_TARGET_URL"), "https://www.g2.com/products/bright-data/reviews")
	cfg.SortFilter = withDefault(getenv("REVIEWS_SORT_FILTER"), "Most Recent")

	cfg.Pages = 1
	if v := getenv("REVIEWS_PAGES"); v != "" {
		cfg.Pages, err = strconv.Atoi(v)
		if err != nil || cfg.Pages < 1 {
			return nil, fmt.Errorf("invalid REVIEWS_PAGES %q: must be a positive integer", v)
		}
	}

	cfg.StateBackend = strings.ToLower(withDefault(getenv("STATE_BACKEND"), StateBackendFile))
	cfg.StateFile = withDefault(getenv("STATE_FILE"), "last_review.json")
	cfg.StateKey = withDefault(getenv("STATE_KEY"), "default")
	cfg.DatabaseURL = getenv("DATABASE_URL")
	switch cfg.StateBackend {
	case StateBackendFile:
	case StateBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set (required by STATE_BACKEND=postgres)")
		}
	default:
		return nil, fmt.Errorf("invalid STATE_BACKEND %q: want %q or %q", cfg.StateBackend, StateBackendFile, StateBackendPostgres)
	}

	cfg.RedisURL = getenv("REDIS_URL")

	cfg.TelegramToken = getenv("TELEGRAM_TOKEN")
	if chatIDStr := getenv("TELEGRAM_CHAT_ID"); chatIDStr != "" {
		cfg.TelegramChatID, err = strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
	}
	if (cfg.TelegramToken == "") != (cfg.TelegramChatID == 0) {
		return nil, fmt.Errorf("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	cfg.LogLevel = strings.ToLower(getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.RunMode = strings.ToLower(withDefault(getenv("RUN_MODE"), RunModeOnce))
	if cfg.RunMode != RunModeOnce && cfg.RunMode != RunModeDaemon {
		return nil, fmt.Errorf("invalid RUN_MODE %q: want %q or %q", cfg.RunMode, RunModeOnce, RunModeDaemon)
	}

	cfg.CronSpec = withDefault(getenv("CRON_SPEC"), "*/30 * * * *") // Default: every 30 minutes

	cfg.RunTimeout = 15 * time.Minute
	if v := getenv("RUN_TIMEOUT"); v != "" {
		cfg.RunTimeout, err = time.ParseDuration(v)
		if err != nil || cfg.RunTimeout <= 0 {
			return nil, fmt.Errorf("invalid RUN_TIMEOUT %q", v)
		}
	}

	cfg.MetricsAddr = withDefault(getenv("METRICS_ADDR"), ":9090")
	cfg.PushgatewayURL = getenv("PUSHGATEWAY_URL")

	return cfg, nil
}

// TelegramEnabled reports whether the Telegram sink is configured.
func (c *AppConfig) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

func loadTuning(path string, base Tuning) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read MONITOR_CONFIG %s: %w", path, err)
	}

	// Fields absent from the file keep their defaults.
	tuning := base
	if err := yaml.Unmarshal(raw, &tuning); err != nil {
		return base, fmt.Errorf("parse MONITOR_CONFIG %s: %w", path, err)
	}
	if err := tuning.validate(); err != nil {
		return base, fmt.Errorf("MONITOR_CONFIG %s: %w", path, err)
	}
	return tuning, nil
}

func (t Tuning) validate() error {
	switch {
	case t.Collector.MaxRetries < 1:
		return fmt.Errorf("collector.maxRetries must be at least 1")
	case t.Collector.PollInterval <= 0 || t.Collector.PollMaxWait <= 0:
		return fmt.Errorf("collector poll durations must be positive")
	case t.Collector.MaxConsecutivePollErrors < 1:
		return fmt.Errorf("collector.maxConsecutivePollErrors must be at least 1")
	case t.Dedup.RecentDays < 0 || t.Dedup.FutureSlackDays < 0:
		return fmt.Errorf("dedup day windows must not be negative")
	case t.Dedup.SeenCap < 1:
		return fmt.Errorf("dedup.seenCap must be at least 1")
	case t.Notify.MaxRetries < 1:
		return fmt.Errorf("notify.maxRetries must be at least 1")
	}
	return nil
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
