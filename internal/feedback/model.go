package feedback

import (
	"errors"
	"time"

	"github.com/linnemanlabs/harken/internal/triage"
)

var (
	// ErrNotFound is returned when a feedback record does not exist.
	ErrNotFound = errors.New("feedback: not found")

	// ErrInvalidTransition is returned when a status change is not allowed
	// from the record's current status.
	ErrInvalidTransition = errors.New("feedback: invalid status transition")

	// ErrStatusConflict is returned when the record's status changed between
	// reading it and writing the new status.
	ErrStatusConflict = errors.New("feedback: status changed concurrently")
)

// ValidationError reports a submission field that failed validation.
// It matches triage.ErrInvalidInput with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return triage.ErrInvalidInput }

// Record is a persisted submission merged with its classification.
type Record struct {
	ID string `json:"id"`
	triage.Submission
	triage.Classification
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Department is routing reference data.
type Department struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

const (
	// DefaultListLimit caps List results when the filter sets no limit.
	DefaultListLimit = 200
	// MaxListLimit is the largest limit List honours.
	MaxListLimit = 1000
)

// Filter narrows a List call. Zero-valued fields match everything.
type Filter struct {
	Department    string
	Sentiment     triage.Sentiment
	Status        triage.Status
	Category      triage.Category
	Priority      triage.Priority
	MinPriority   triage.Priority
	CreatedBefore time.Time
	Limit         int
}

// EffectiveLimit returns the limit clamped to [1, MaxListLimit], defaulting
// to DefaultListLimit.
func (f Filter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// Priorities returns the priorities a record may have to pass the Priority
// and MinPriority constraints, or nil when neither is set.
func (f Filter) Priorities() []triage.Priority {
	if f.Priority == "" && f.MinPriority == "" {
		return nil
	}
	var out []triage.Priority
	for _, p := range []triage.Priority{triage.PriorityLow, triage.PriorityMedium, triage.PriorityHigh, triage.PriorityUrgent} {
		if f.Priority != "" && p != f.Priority {
			continue
		}
		if p.Rank() < f.MinPriority.Rank() {
			continue
		}
		out = append(out, p)
	}
	// an impossible combination must still filter, never widen
	if out == nil {
		out = []triage.Priority{}
	}
	return out
}

// Matches reports whether r passes every constraint except Limit.
func (f Filter) Matches(r *Record) bool {
	if f.Department != "" && r.Department != f.Department {
		return false
	}
	if f.Sentiment != "" && r.Sentiment != f.Sentiment {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Priority != "" && r.Priority != f.Priority {
		return false
	}
	if f.MinPriority != "" && r.Priority.Rank() < f.MinPriority.Rank() {
		return false
	}
	if !f.CreatedBefore.IsZero() && !r.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

var transitions = map[triage.Status][]triage.Status{
	triage.StatusNew:       {triage.StatusInReview, triage.StatusEscalated, triage.StatusResolved},
	triage.StatusInReview:  {triage.StatusResolved, triage.StatusEscalated},
	triage.StatusEscalated: {triage.StatusInReview, triage.StatusResolved},
	triage.StatusResolved:  {triage.StatusInReview},
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to triage.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
