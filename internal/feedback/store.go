package feedback

import (
	"context"
	"time"

	"github.com/linnemanlabs/harken/internal/triage"
)

// TriageEngine classifies submissions. *triage.Engine satisfies it.
type TriageEngine interface {
	Triage(sub triage.Submission) (triage.Classification, error)
}

// DepartmentSetter receives the department set loaded from storage.
// *triage.Engine satisfies it.
type DepartmentSetter interface {
	SetDepartments(names []string)
}

// Store is the persistence interface for feedback records and departments.
type Store interface {
	// Put inserts or replaces a record atomically.
	Put(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, bool, error)
	// List returns records matching f, newest first.
	List(ctx context.Context, f Filter) ([]*Record, error)
	// SetStatus moves a record from one status to another only if its
	// current status is from. It reports whether the update happened.
	SetStatus(ctx context.Context, id string, from, to triage.Status, at time.Time) (bool, error)

	// SeedDepartments inserts each department that does not yet exist.
	SeedDepartments(ctx context.Context, depts []Department) error
	// Departments returns all departments ordered by name.
	Departments(ctx context.Context) ([]Department, error)
}

// EventKind names a notification event.
type EventKind string

const (
	EventTriaged   EventKind = "feedback.triaged"
	EventEscalated EventKind = "feedback.escalated"
)

// Event is handed to notifiers. Record is a copy owned by the event.
type Event struct {
	Kind   EventKind
	Record Record
}

// Notifier delivers events to an external channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}
