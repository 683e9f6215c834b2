// Package memstore provides an in-memory implementation of feedback.Store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/harken/internal/feedback"
	"github.com/linnemanlabs/harken/internal/triage"
)

// Store holds feedback records in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	records map[string]*feedback.Record // record ID -> record
	depts   map[string]feedback.Department
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		records: make(map[string]*feedback.Record),
		depts:   make(map[string]feedback.Department),
	}
}

// Put stores a copy of the record.
func (s *Store) Put(_ context.Context, r *feedback.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.records[r.ID] = &cp
	return nil
}

// Get retrieves a record by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*feedback.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// List returns copies of matching records, newest first. Records created at
// the same instant order by descending ID.
func (s *Store) List(_ context.Context, f feedback.Filter) ([]*feedback.Record, error) {
	s.mu.RLock()
	out := make([]*feedback.Record, 0, len(s.records))
	for _, r := range s.records {
		if f.Matches(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetStatus changes the status of a record whose current status is from.
func (s *Store) SetStatus(_ context.Context, id string, from, to triage.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = at
	return true, nil
}

// SeedDepartments adds departments that are not already present.
func (s *Store) SeedDepartments(_ context.Context, depts []feedback.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range depts {
		if _, ok := s.depts[d.Name]; !ok {
			s.depts[d.Name] = d
		}
	}
	return nil
}

// Departments returns all departments ordered by name.
func (s *Store) Departments(_ context.Context) ([]feedback.Department, error) {
	s.mu.RLock()
	out := make([]feedback.Department, 0, len(s.depts))
	for _, d := range s.depts {
		out = append(out, d)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
