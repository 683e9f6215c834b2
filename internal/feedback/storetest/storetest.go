// Package storetest holds the behavioural tests every feedback.Store
// implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/linnemanlabs/harken/internal/feedback"
	"github.com/linnemanlabs/harken/internal/triage"
)

// Run executes the suite. newStore must return an empty store each call.
func Run(t *testing.T, newStore func(t *testing.T) feedback.Store) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) { testPutAndGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("PutOverwrites", func(t *testing.T) { testPutOverwrites(t, newStore(t)) })
	t.Run("ListNewestFirst", func(t *testing.T) { testListNewestFirst(t, newStore(t)) })
	t.Run("ListFilters", func(t *testing.T) { testListFilters(t, newStore(t)) })
	t.Run("SetStatus", func(t *testing.T) { testSetStatus(t, newStore(t)) })
	t.Run("Departments", func(t *testing.T) { testDepartments(t, newStore(t)) })
}

// Base is the creation time used for fixture records.
var Base = time.Date(2025, 10, 1, 9, 30, 0, 0, time.UTC)

// NewRecord returns a fully populated record created offset after Base.
func NewRecord(id string, offset time.Duration) *feedback.Record {
	at := Base.Add(offset)
	return &feedback.Record{
		ID: id,
		Submission: triage.Submission{
			ParentName:  "Asha Rao",
			ParentEmail: "asha@example.com",
			StudentID:   "S-1042",
			Channel:     "web",
			Message:     "The hostel mess food made my child sick, this is urgent!",
		},
		Classification: triage.Classification{
			Sentiment:      triage.SentimentNegative,
			Category:       triage.CategoryAccommodation,
			Priority:       triage.PriorityUrgent,
			Department:     "Hostel",
			Status:         triage.StatusNew,
			SentimentScore: -1,
			Urgent:         true,
			RulesVersion:   "test",
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func put(t *testing.T, s feedback.Store, recs ...*feedback.Record) {
	t.Helper()
	for _, r := range recs {
		if err := s.Put(context.Background(), r); err != nil {
			t.Fatalf("Put(%s): %v", r.ID, err)
		}
	}
}

func ids(recs []*feedback.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func testPutAndGet(t *testing.T, s feedback.Store) {
	want := NewRecord("01J0000000000000000000PUT1", 0)
	put(t, s, want)

	got, ok, err := s.Get(context.Background(), want.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected record to be found")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}

	// the store must not alias the caller's record
	got.Message = "changed"
	again, _, _ := s.Get(context.Background(), want.ID)
	if again.Message != want.Message {
		t.Errorf("stored record was mutated through a returned copy")
	}
}

func testGetMissing(t *testing.T, s feedback.Store) {
	_, ok, err := s.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing ID")
	}
}

func testPutOverwrites(t *testing.T, s feedback.Store) {
	r := NewRecord("01J0000000000000000000OVR1", 0)
	put(t, s, r)

	r2 := *r
	r2.Status = triage.StatusResolved
	r2.UpdatedAt = r.UpdatedAt.Add(time.Minute)
	put(t, s, &r2)

	got, ok, err := s.Get(context.Background(), r.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Status != triage.StatusResolved {
		t.Errorf("Status = %q, want %q", got.Status, triage.StatusResolved)
	}
	if !got.UpdatedAt.Equal(r2.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, r2.UpdatedAt)
	}
}

func testListNewestFirst(t *testing.T, s feedback.Store) {
	for i := range 5 {
		put(t, s, NewRecord(fmt.Sprintf("01J00000000000000000LIST%d", i), time.Duration(i)*time.Minute))
	}

	got, err := s.List(context.Background(), feedback.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{
		"01J00000000000000000LIST4",
		"01J00000000000000000LIST3",
		"01J00000000000000000LIST2",
		"01J00000000000000000LIST1",
		"01J00000000000000000LIST0",
	}
	if diff := cmp.Diff(want, ids(got)); diff != "" {
		t.Errorf("List order mismatch (-want +got):\n%s", diff)
	}

	got, err = s.List(context.Background(), feedback.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff(want[:2], ids(got)); diff != "" {
		t.Errorf("List limit mismatch (-want +got):\n%s", diff)
	}
}

func testListFilters(t *testing.T, s feedback.Store) {
	urgentHostel := NewRecord("01J000000000000000000FLT1", 0)

	lowTransport := NewRecord("01J000000000000000000FLT2", time.Minute)
	lowTransport.Sentiment = triage.SentimentPositive
	lowTransport.Category = triage.CategoryTransport
	lowTransport.Priority = triage.PriorityLow
	lowTransport.Department = "Transport"

	highFinance := NewRecord("01J000000000000000000FLT3", 2*time.Minute)
	highFinance.Category = triage.CategoryFinance
	highFinance.Priority = triage.PriorityHigh
	highFinance.Department = "Finance"
	highFinance.Status = triage.StatusInReview

	put(t, s, urgentHostel, lowTransport, highFinance)

	tests := []struct {
		name   string
		filter feedback.Filter
		want   []string
	}{
		{"department", feedback.Filter{Department: "Transport"}, []string{lowTransport.ID}},
		{"sentiment", feedback.Filter{Sentiment: triage.SentimentNegative}, []string{highFinance.ID, urgentHostel.ID}},
		{"status", feedback.Filter{Status: triage.StatusInReview}, []string{highFinance.ID}},
		{"category", feedback.Filter{Category: triage.CategoryAccommodation}, []string{urgentHostel.ID}},
		{"priority", feedback.Filter{Priority: triage.PriorityLow}, []string{lowTransport.ID}},
		{"min priority", feedback.Filter{MinPriority: triage.PriorityHigh}, []string{highFinance.ID, urgentHostel.ID}},
		{"created before", feedback.Filter{CreatedBefore: Base.Add(90 * time.Second)}, []string{lowTransport.ID, urgentHostel.ID}},
		{"combined", feedback.Filter{Status: triage.StatusNew, MinPriority: triage.PriorityHigh}, []string{urgentHostel.ID}},
		{"impossible priority", feedback.Filter{Priority: triage.PriorityLow, MinPriority: triage.PriorityHigh}, []string{}},
		{"no match", feedback.Filter{Department: "Health"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("List(%+v) mismatch (-want +got):\n%s", tt.filter, diff)
			}
		})
	}
}

func testSetStatus(t *testing.T, s feedback.Store) {
	ctx := context.Background()
	r := NewRecord("01J000000000000000000STS1", 0)
	put(t, s, r)

	at := Base.Add(time.Hour)
	ok, err := s.SetStatus(ctx, r.ID, triage.StatusNew, triage.StatusInReview, at)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if !ok {
		t.Fatal("SetStatus from matching status returned false")
	}

	got, _, _ := s.Get(ctx, r.ID)
	if got.Status != triage.StatusInReview {
		t.Errorf("Status = %q, want in_review", got.Status)
	}
	if !got.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, at)
	}
	if !got.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("CreatedAt changed to %v", got.CreatedAt)
	}

	// stale from-status loses
	ok, err = s.SetStatus(ctx, r.ID, triage.StatusNew, triage.StatusEscalated, at)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if ok {
		t.Error("SetStatus with stale from-status returned true")
	}

	ok, err = s.SetStatus(ctx, "nonexistent", triage.StatusNew, triage.StatusEscalated, at)
	if err != nil {
		t.Fatalf("SetStatus missing: %v", err)
	}
	if ok {
		t.Error("SetStatus on missing record returned true")
	}
}

func testDepartments(t *testing.T, s feedback.Store) {
	ctx := context.Background()

	seed := []feedback.Department{
		{Name: "Transport", Description: "Campus buses"},
		{Name: "Academics", Description: "Courses"},
	}
	if err := s.SeedDepartments(ctx, seed); err != nil {
		t.Fatalf("SeedDepartments: %v", err)
	}
	// reseeding is idempotent and keeps existing descriptions
	reseed := []feedback.Department{
		{Name: "Academics", Description: "changed"},
		{Name: "Health"},
	}
	if err := s.SeedDepartments(ctx, reseed); err != nil {
		t.Fatalf("SeedDepartments again: %v", err)
	}

	got, err := s.Departments(ctx)
	if err != nil {
		t.Fatalf("Departments: %v", err)
	}
	want := []feedback.Department{
		{Name: "Academics", Description: "Courses"},
		{Name: "Health"},
		{Name: "Transport", Description: "Campus buses"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Departments mismatch (-want +got):\n%s", diff)
	}
}
