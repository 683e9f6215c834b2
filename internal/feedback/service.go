package feedback

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/harken/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/harken/internal/feedback")

const (
	// MaxMessageRunes bounds the length of a feedback message.
	MaxMessageRunes = 5000

	maxNameRunes      = 200
	maxStudentIDRunes = 64
	maxChannelRunes   = 32

	defaultNotifyTimeout = 15 * time.Second
)

// Options configures optional Service behaviour.
type Options struct {
	Notifiers []Notifier
	// NotifyMinPriority is the lowest priority that triggers a triaged
	// notification. Defaults to high.
	NotifyMinPriority triage.Priority
	NotifyTimeout     time.Duration
	Metrics           *Metrics
}

// Service is the business boundary for feedback operations.
type Service struct {
	store         Store
	engine        TriageEngine
	logger        log.Logger
	notifiers     []Notifier
	notifyMin     triage.Priority
	notifyTimeout time.Duration
	metrics       *Metrics
	now           func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewService creates a new feedback service.
func NewService(store Store, engine TriageEngine, logger log.Logger, opts Options) *Service {
	if store == nil {
		panic(xerrors.New("feedback store is required"))
	}
	if engine == nil {
		panic(xerrors.New("triage engine is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if opts.NotifyMinPriority == "" {
		opts.NotifyMinPriority = triage.PriorityHigh
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	return &Service{
		store:         store,
		engine:        engine,
		logger:        logger,
		notifiers:     opts.Notifiers,
		notifyMin:     opts.NotifyMinPriority,
		notifyTimeout: opts.NotifyTimeout,
		metrics:       opts.Metrics,
		now:           time.Now,
	}
}

// Validate checks the submission fields the service requires before triage.
// sub is expected to be normalized.
func Validate(sub triage.Submission) error {
	if sub.ParentName == "" {
		return &ValidationError{Field: "parent_name", Reason: "is required"}
	}
	if utf8.RuneCountInString(sub.ParentName) > maxNameRunes {
		return &ValidationError{Field: "parent_name", Reason: fmt.Sprintf("exceeds %d characters", maxNameRunes)}
	}
	if sub.ParentEmail == "" {
		return &ValidationError{Field: "parent_email", Reason: "is required"}
	}
	if addr, err := mail.ParseAddress(sub.ParentEmail); err != nil || addr.Address != sub.ParentEmail {
		return &ValidationError{Field: "parent_email", Reason: "is not a valid email address"}
	}
	if utf8.RuneCountInString(sub.StudentID) > maxStudentIDRunes {
		return &ValidationError{Field: "student_id", Reason: fmt.Sprintf("exceeds %d characters", maxStudentIDRunes)}
	}
	if utf8.RuneCountInString(sub.Channel) > maxChannelRunes {
		return &ValidationError{Field: "channel", Reason: fmt.Sprintf("exceeds %d characters", maxChannelRunes)}
	}
	return validateMessage(sub.Message)
}

func validateMessage(msg string) error {
	if msg == "" {
		return &ValidationError{Field: "message", Reason: "is required"}
	}
	if utf8.RuneCountInString(msg) > MaxMessageRunes {
		return &ValidationError{Field: "message", Reason: fmt.Sprintf("exceeds %d characters", MaxMessageRunes)}
	}
	return nil
}

// Submit validates, classifies and stores a submission. Nothing is stored
// when validation or classification fails.
func (s *Service) Submit(ctx context.Context, sub triage.Submission) (*Record, error) {
	ctx, span := tracer.Start(ctx, "feedback.Submit")
	defer span.End()

	sub = sub.Normalized()
	span.SetAttributes(attribute.String("harken.feedback.channel", sub.Channel))

	if err := Validate(sub); err != nil {
		s.metrics.submission("invalid")
		return nil, err
	}

	start := time.Now()
	cls, err := s.engine.Triage(sub)
	if err != nil {
		s.metrics.submission("invalid")
		return nil, fmt.Errorf("triage: %w", err)
	}
	s.metrics.classified(cls, time.Since(start).Seconds())

	now := s.now().UTC()
	rec := &Record{
		ID:             ulid.Make().String(),
		Submission:     sub,
		Classification: cls,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	span.SetAttributes(
		attribute.String("harken.feedback.id", rec.ID),
		attribute.String("harken.feedback.category", string(cls.Category)),
		attribute.String("harken.feedback.priority", string(cls.Priority)),
	)

	if err := s.store.Put(ctx, rec); err != nil {
		s.metrics.submission("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("store feedback: %w", err)
	}
	s.metrics.submission("accepted")

	s.logger.Info(ctx, "feedback triaged",
		"id", rec.ID,
		"sentiment", cls.Sentiment,
		"category", cls.Category,
		"priority", cls.Priority,
		"department", cls.Department,
		"rules_version", cls.RulesVersion,
	)

	if cls.Priority.Rank() >= s.notifyMin.Rank() {
		s.dispatch(ctx, Event{Kind: EventTriaged, Record: *rec})
	}

	cp := *rec
	return &cp, nil
}

// Preview classifies a message without storing anything.
func (s *Service) Preview(_ context.Context, sub triage.Submission) (triage.Classification, error) {
	sub = sub.Normalized()
	if err := validateMessage(sub.Message); err != nil {
		return triage.Classification{}, err
	}
	cls, err := s.engine.Triage(sub)
	if err != nil {
		return triage.Classification{}, fmt.Errorf("triage: %w", err)
	}
	return cls, nil
}

// Get retrieves a record by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	rec, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get feedback %s: %w", id, err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// List returns records matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]*Record, error) {
	f.Limit = f.EffectiveLimit()
	recs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return recs, nil
}

// Departments returns the current department reference data.
func (s *Service) Departments(ctx context.Context) ([]Department, error) {
	depts, err := s.store.Departments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return depts, nil
}

// SeedDepartments inserts any missing departments and then hands the
// stored department set to the engine when it accepts one.
func (s *Service) SeedDepartments(ctx context.Context, depts []Department) error {
	if err := s.store.SeedDepartments(ctx, depts); err != nil {
		return fmt.Errorf("seed departments: %w", err)
	}
	return s.RefreshDepartments(ctx)
}

// RefreshDepartments reloads the department set into the engine.
func (s *Service) RefreshDepartments(ctx context.Context) error {
	ds, ok := s.engine.(DepartmentSetter)
	if !ok {
		return nil
	}
	depts, err := s.Departments(ctx)
	if err != nil {
		return err
	}
	names := make([]string, len(depts))
	for i, d := range depts {
		names[i] = d.Name
	}
	ds.SetDepartments(names)
	s.logger.Info(ctx, "department set loaded", "count", len(names))
	return nil
}

// UpdateStatus moves a record to a new status. Setting the current status
// again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id string, to triage.Status) (*Record, error) {
	ctx, span := tracer.Start(ctx, "feedback.UpdateStatus", trace.WithAttributes(
		attribute.String("harken.feedback.id", id),
		attribute.String("harken.feedback.status", string(to)),
	))
	defer span.End()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := rec.Status
	if from == to {
		return rec, nil
	}
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := s.now().UTC()
	ok, err := s.store.SetStatus(ctx, id, from, to, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !ok {
		return nil, ErrStatusConflict
	}
	rec.Status = to
	rec.UpdatedAt = now
	s.metrics.transition(from, to)

	s.logger.Info(ctx, "feedback status changed", "id", id, "from", from, "to", to)

	if to == triage.StatusEscalated {
		s.dispatch(ctx, Event{Kind: EventEscalated, Record: *rec})
	}
	return rec, nil
}

// EscalateStale escalates records still new, at high priority or above, and
// created more than olderThan ago. It returns how many records it escalated.
func (s *Service) EscalateStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx, span := tracer.Start(ctx, "feedback.EscalateStale")
	defer span.End()

	now := s.now().UTC()
	stale, err := s.store.List(ctx, Filter{
		Status:        triage.StatusNew,
		MinPriority:   triage.PriorityHigh,
		CreatedBefore: now.Add(-olderThan),
		Limit:         MaxListLimit,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("list stale feedback: %w", err)
	}

	var (
		n    int
		errs []error
	)
	for _, rec := range stale {
		ok, err := s.store.SetStatus(ctx, rec.ID, triage.StatusNew, triage.StatusEscalated, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("escalate %s: %w", rec.ID, err))
			continue
		}
		if !ok {
			continue
		}
		n++
		rec.Status = triage.StatusEscalated
		rec.UpdatedAt = now
		s.metrics.transition(triage.StatusNew, triage.StatusEscalated)
		s.dispatch(ctx, Event{Kind: EventEscalated, Record: *rec})
	}
	s.metrics.escalated(n)
	span.SetAttributes(attribute.Int("harken.escalation.count", n))

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return n, err
	}
	return n, nil
}

// dispatch delivers ev to every notifier on tracked goroutines. The request
// context's cancellation is detached so delivery outlives the request.
func (s *Service) dispatch(ctx context.Context, ev Event) {
	if len(s.notifiers) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn(ctx, "service closed, dropping notification", "id", ev.Record.ID, "event", ev.Kind)
		return
	}

	ctx = context.WithoutCancel(ctx)
	for _, n := range s.notifiers {
		s.wg.Add(1)
		go func(n Notifier) {
			defer s.wg.Done()
			s.deliver(ctx, n, ev)
		}(n)
	}
}

func (s *Service) deliver(ctx context.Context, n Notifier, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "feedback.Notify", trace.WithAttributes(
		attribute.String("harken.notifier", n.Name()),
		attribute.String("harken.event", string(ev.Kind)),
		attribute.String("harken.feedback.id", ev.Record.ID),
	))
	defer span.End()

	start := time.Now()
	err := n.Notify(ctx, ev)
	s.metrics.notified(n.Name(), ev.Kind, err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error(ctx, err, "notification failed", "notifier", n.Name(), "event", ev.Kind, "id", ev.Record.ID)
	}
}

// Close stops accepting notifications and waits for in-flight deliveries
// until ctx is done.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for notifications: %w", ctx.Err())
	}
}
