package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
)

// Config adds triagedesk-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	BoardPort             int
	TriageBaseURL         string
	TriageAPIKey          string
	PollSeconds           int
	HTTPTimeoutSeconds    int
	BoardAdminKey         string
	SlackWebhookURL       string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 10, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 30, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.BoardPort, "board-port", 8081, "board API listen TCP port (1..65535)")
	fs.StringVar(&c.TriageBaseURL, "triage-base-url", "", "base URL of the triage service")
	fs.StringVar(&c.TriageAPIKey, "triage-api-key", "", "shared API key for destructive triage service operations")
	fs.IntVar(&c.PollSeconds, "poll-seconds", 15, "seconds between patient list refreshes (1..300)")
	fs.IntVar(&c.HTTPTimeoutSeconds, "http-timeout-seconds", 30, "timeout for calls to the triage service (1..120)")
	fs.StringVar(&c.BoardAdminKey, "board-admin-key", "", "key required on destructive board API endpoints (empty = open)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for discrepancy notifications")
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

	// Board port must be valid TCP port number
	if c.BoardPort <= 0 || c.BoardPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid BOARD_PORT %d (must be 1..65535)", c.BoardPort))
	}

	// Triage service base URL is required and must parse
	if c.TriageBaseURL == "" {
		errs = append(errs, errors.New("TRIAGE_BASE_URL is required"))
	} else if u, err := url.Parse(c.TriageBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid TRIAGE_BASE_URL %q", c.TriageBaseURL))
	}

	if c.PollSeconds <= 0 || c.PollSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid POLL_SECONDS %d (must be 1..300)", c.PollSeconds))
	}

	if c.HTTPTimeoutSeconds <= 0 || c.HTTPTimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid HTTP_TIMEOUT_SECONDS %d (must be 1..120)", c.HTTPTimeoutSeconds))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
