package resilience

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// Config holds retry and circuit breaker settings for outbound calls.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 200 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 1,
	}
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	def := DefaultConfig()
	fs.IntVar(&c.RetryMaxAttempts, "notify-retry-attempts", def.RetryMaxAttempts, "attempts per notification delivery (1..10)")
	fs.DurationVar(&c.RetryInitialBackoff, "notify-retry-backoff", def.RetryInitialBackoff, "initial backoff between notification attempts")
	fs.DurationVar(&c.RetryMaxBackoff, "notify-retry-max-backoff", def.RetryMaxBackoff, "upper bound for notification backoff")
	fs.BoolVar(&c.BreakerEnabled, "notify-breaker", def.BreakerEnabled, "open a circuit breaker per notifier after repeated failures")
	fs.Float64Var(&c.BreakerFailureRatio, "notify-breaker-failure-ratio", def.BreakerFailureRatio, "failure ratio that opens the breaker (0..1]")
	fs.DurationVar(&c.BreakerOpenTimeout, "notify-breaker-open-timeout", def.BreakerOpenTimeout, "how long an open breaker rejects calls before probing")
	c.RetryMultiplier = def.RetryMultiplier
	c.BreakerMinRequests = def.BreakerMinRequests
	c.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	var errs []error
	if c.RetryMaxAttempts < 1 || c.RetryMaxAttempts > 10 {
		errs = append(errs, fmt.Errorf("invalid NOTIFY_RETRY_ATTEMPTS %d (must be 1..10)", c.RetryMaxAttempts))
	}
	if c.RetryInitialBackoff < 0 || c.RetryMaxBackoff < 0 {
		errs = append(errs, errors.New("notification backoff must not be negative"))
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		errs = append(errs, fmt.Errorf("invalid NOTIFY_BREAKER_FAILURE_RATIO %g (must be in (0, 1])", c.BreakerFailureRatio))
	}
	if c.BreakerOpenTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid NOTIFY_BREAKER_OPEN_TIMEOUT %s (must be > 0)", c.BreakerOpenTimeout))
	}
	return errors.Join(errs...)
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	return out
}
