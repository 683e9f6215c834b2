package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"

	"github.com/linnemanlabs/harken/internal/triage"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	SQLitePath            string
	RulesPath             string
	AdminToken            string
	SlackWebhookURL       string
	NATSURL               string
	NATSSubject           string
	NotifyMinPriority     string
	NotifyTimeoutSeconds  int
	SubmitRateLimit       float64
	SubmitRateBurst       int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "", "SQLite database file, used when database-url is empty (both empty = in-memory store)")
	fs.StringVar(&c.RulesPath, "rules-path", "", "triage rule table YAML file (empty = built-in rules)")
	fs.StringVar(&c.AdminToken, "admin-token", "", "bearer token for the admin API")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications")
	fs.StringVar(&c.NATSURL, "nats-url", "", "NATS server URL for feedback events (empty = disabled)")
	fs.StringVar(&c.NATSSubject, "nats-subject", "harken.feedback", "NATS subject prefix for feedback events")
	fs.StringVar(&c.NotifyMinPriority, "notify-min-priority", "high", "lowest priority that triggers a notification (low, medium, high, urgent)")
	fs.IntVar(&c.NotifyTimeoutSeconds, "notify-timeout-seconds", 15, "per-notifier delivery timeout in seconds, retries included (1..300)")
	fs.Float64Var(&c.SubmitRateLimit, "submit-rate-limit", 1, "intake requests per second allowed per client (0 = unlimited)")
	fs.IntVar(&c.SubmitRateBurst, "submit-rate-burst", 10, "intake burst size per client (1..1000)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.DatabaseURL != "" && c.SQLitePath != "" {
		errs = append(errs, errors.New("DATABASE_URL and SQLITE_PATH are mutually exclusive"))
	}

	// Admin routes are never left open
	if c.AdminToken == "" {
		errs = append(errs, errors.New("ADMIN_TOKEN is required"))
	}

	if c.SlackWebhookURL != "" {
		if u, err := url.Parse(c.SlackWebhookURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			errs = append(errs, errors.New("invalid SLACK_WEBHOOK_URL (must be an http(s) URL)"))
		}
	}

	if c.NATSSubject == "" || strings.ContainsAny(c.NATSSubject, " \t*>") {
		errs = append(errs, fmt.Errorf("invalid NATS_SUBJECT %q (must be non-empty without wildcards or spaces)", c.NATSSubject))
	}

	if _, err := triage.ParsePriority(c.NotifyMinPriority); err != nil {
		errs = append(errs, fmt.Errorf("invalid NOTIFY_MIN_PRIORITY: %w", err))
	}
	if c.NotifyTimeoutSeconds <= 0 || c.NotifyTimeoutSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid NOTIFY_TIMEOUT_SECONDS %d (must be 1..300)", c.NotifyTimeoutSeconds))
	}

	if c.SubmitRateLimit < 0 {
		errs = append(errs, fmt.Errorf("invalid SUBMIT_RATE_LIMIT %g (must be >= 0)", c.SubmitRateLimit))
	}
	if c.SubmitRateBurst < 1 || c.SubmitRateBurst > 1000 {
		errs = append(errs, fmt.Errorf("invalid SUBMIT_RATE_BURST %d (must be 1..1000)", c.SubmitRateBurst))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// MinPriority returns the parsed notification threshold. Call after Validate.
func (c *Config) MinPriority() triage.Priority {
	p, _ := triage.ParsePriority(c.NotifyMinPriority)
	return p
}
