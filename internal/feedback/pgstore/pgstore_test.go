package pgstore_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/harken/internal/feedback"
	"github.com/linnemanlabs/harken/internal/feedback/pgstore"
	"github.com/linnemanlabs/harken/internal/feedback/storetest"
	"github.com/linnemanlabs/harken/internal/postgres"
	"github.com/linnemanlabs/harken/internal/triage"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("HARKEN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("HARKEN_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn, postgres.Config{})
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE feedback, departments`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) feedback.Store { return openStore(t) })
}

func TestNewIsIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, storetest.NewRecord("01J0000000000000000000IDM1", 0)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// applying the schema again must keep existing rows
	pool, err := postgres.NewPool(ctx, os.Getenv("HARKEN_TEST_DATABASE_URL"), postgres.Config{})
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	defer pool.Close()
	s2, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New again: %v", err)
	}
	if _, ok, err := s2.Get(ctx, "01J0000000000000000000IDM1"); err != nil || !ok {
		t.Fatalf("Get after reapply: ok=%v err=%v", ok, err)
	}
}

func TestPutPreservesUnicode(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := storetest.NewRecord("01J0000000000000000000UNI1", 0)
	r.Message = "खाना ठीक नहीं है — the food is not ok ✅ " + strings.Repeat("x", 4000)
	r.ParentName = "Zoë O'Brien"
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get(ctx, r.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Message != r.Message {
		t.Error("message did not round-trip")
	}
	if got.ParentName != r.ParentName {
		t.Errorf("ParentName = %q, want %q", got.ParentName, r.ParentName)
	}
}

func TestSetStatusConcurrentOnlyOneWins(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := storetest.NewRecord("01J0000000000000000000CON1", 0)
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put: %v", err)
	}

	const n = 8
	results := make(chan bool, n)
	for range n {
		go func() {
			ok, err := s.SetStatus(ctx, r.ID, triage.StatusNew, triage.StatusEscalated, time.Now())
			if err != nil {
				t.Errorf("SetStatus: %v", err)
			}
			results <- ok
		}()
	}
	wins := 0
	for range n {
		if <-results {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}
