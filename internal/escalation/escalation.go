// Package escalation runs the stale-feedback sweep on a cron schedule.
package escalation

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

// Config holds sweep scheduling flags.
type Config struct {
	Schedule     string
	AfterMinutes int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Schedule, "escalation-schedule", "", "5-field cron schedule for the stale-feedback sweep (empty = disabled)")
	fs.IntVar(&c.AfterMinutes, "escalation-after-minutes", 240, "escalate new high/urgent feedback older than this many minutes (1..10080)")
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	var errs []error
	if s := strings.TrimSpace(c.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			errs = append(errs, fmt.Errorf("invalid ESCALATION_SCHEDULE %q: %w", s, err))
		}
	}
	if c.AfterMinutes < 1 || c.AfterMinutes > 10080 {
		errs = append(errs, fmt.Errorf("invalid ESCALATION_AFTER_MINUTES %d (must be 1..10080)", c.AfterMinutes))
	}
	return errors.Join(errs...)
}

// Enabled reports whether a schedule is configured.
func (c *Config) Enabled() bool { return strings.TrimSpace(c.Schedule) != "" }

// Escalator escalates stale records. *feedback.Service satisfies it.
type Escalator interface {
	EscalateStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Sweeper calls an Escalator on a schedule. Runs never overlap.
type Sweeper struct {
	esc     Escalator
	after   time.Duration
	timeout time.Duration
	logger  log.Logger
	cron    *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New parses schedule and returns a stopped Sweeper.
func New(esc Escalator, schedule string, after time.Duration, logger log.Logger) (*Sweeper, error) {
	if esc == nil {
		panic(xerrors.New("escalator is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	sched, err := cron.ParseStandard(strings.TrimSpace(schedule))
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}

	cl := cronLogger{L: logger}
	s := &Sweeper{
		esc:     esc,
		after:   after,
		timeout: 5 * time.Minute,
		logger:  logger,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron.Schedule(sched, cron.FuncJob(func() { _, _ = s.RunOnce(s.ctx) }))
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info(s.ctx, "escalation sweep scheduled", "next", s.Next().UTC().Format(time.RFC3339), "after", s.after.String())
}

// Next returns the next scheduled run, or zero before Start.
func (s *Sweeper) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.esc.EscalateStale(ctx, s.after)
	if err != nil {
		s.logger.Error(ctx, err, "escalation sweep failed", "escalated", n)
		return n, err
	}
	s.logger.Info(ctx, "escalation sweep complete", "escalated", n, "duration_ms", time.Since(start).Milliseconds())
	return n, nil
}

// Stop halts the schedule, cancels a running sweep and waits for it to
// return or for ctx to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	var done context.Context
	s.once.Do(func() {
		done = s.cron.Stop()
		s.cancel()
	})
	if done == nil {
		return nil
	}
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for escalation sweep: %w", ctx.Err())
	}
}

// cronLogger adapts log.Logger to cron.Logger. Routine scheduler chatter is
// dropped; only skips and errors are kept.
type cronLogger struct {
	L log.Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	if msg == "skip" {
		c.L.Warn(context.Background(), "escalation sweep still running, skipping tick", kv...)
	}
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.L.Error(context.Background(), err, "cron: "+msg, kv...)
}
