package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/harken/internal/feedback"
	"github.com/linnemanlabs/harken/internal/feedback/storetest"
	"github.com/linnemanlabs/harken/internal/triage"
)

func TestStore_Conformance(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(*testing.T) feedback.Store { return New() })
}

func TestStore_PutCopies(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	r := storetest.NewRecord("r-1", 0)
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put: %v", err)
	}
	r.Status = triage.StatusResolved

	got, _, _ := s.Get(ctx, "r-1")
	if got.Status != triage.StatusNew {
		t.Errorf("Status = %q, want %q", got.Status, triage.StatusNew)
	}
}

func TestStore_ListSameInstantOrdersByID(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.Put(ctx, storetest.NewRecord("a", 0))
	_ = s.Put(ctx, storetest.NewRecord("c", 0))
	_ = s.Put(ctx, storetest.NewRecord("b", 0))

	got, err := s.List(ctx, feedback.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 || got[0].ID != "c" || got[1].ID != "b" || got[2].ID != "a" {
		t.Errorf("List order = %v, want [c b a]", []string{got[0].ID, got[1].ID, got[2].ID})
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n * 3)

	for i := range n {
		id := fmt.Sprintf("id-%d", i)

		go func() {
			defer wg.Done()
			_ = s.Put(ctx, storetest.NewRecord(id, time.Duration(i)*time.Second))
		}()

		go func() {
			defer wg.Done()
			_, _, _ = s.Get(ctx, id)
			_, _ = s.List(ctx, feedback.Filter{Status: triage.StatusNew})
		}()

		go func() {
			defer wg.Done()
			_, _ = s.SetStatus(ctx, id, triage.StatusNew, triage.StatusInReview, time.Now())
			_ = s.SeedDepartments(ctx, []feedback.Department{{Name: "Hostel"}})
		}()
	}

	wg.Wait()

	depts, _ := s.Departments(ctx)
	if len(depts) != 1 {
		t.Errorf("departments = %d, want 1", len(depts))
	}
}
