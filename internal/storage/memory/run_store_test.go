package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/greenproof/fleetscore/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	id := uuid.New()
	run := store.Run{ID: id, Entity: "Acme Logistics", CreatedAt: time.Now()}

	if err := s.Create(ctx, run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Create(ctx, run); err == nil {
		t.Fatal("expected duplicate run error")
	}

	started := time.Now()
	if err := s.MarkRunning(ctx, id, started); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := s.SetResult(ctx, id, 6, 3.5, []byte(`{"entity":"Acme Logistics"}`)); err != nil {
		t.Fatalf("SetResult() error = %v", err)
	}
	if err := s.Complete(ctx, id, time.Now(), store.StatusSucceeded, nil); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	final, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if final.Status != store.StatusSucceeded || final.StartedAt == nil || final.FinishedAt == nil {
		t.Fatalf("expected terminal run with timestamps, got %+v", final)
	}
	if final.Found != 6 || final.Quality != 3.5 || len(final.Result) == 0 {
		t.Fatalf("expected result summary to persist, got %+v", final)
	}

	if err := s.MarkRunning(ctx, id, time.Now()); err == nil {
		t.Fatal("expected error marking a finished run running")
	}
}

func TestRunStoreGetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	id := uuid.New()
	if err := s.Create(ctx, store.Run{ID: id, Entity: "Acme", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.SetResult(ctx, id, 1, 2.0, []byte("original")); err != nil {
		t.Fatalf("SetResult() error = %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Result[0] = 'X'

	again, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(again.Result) != "original" {
		t.Fatalf("expected stored result to be immutable, got %q", again.Result)
	}
}

func TestRunStoreListFiltersAndOrders(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	base := time.Now()

	older := uuid.New()
	newer := uuid.New()
	failed := uuid.New()
	if err := s.Create(ctx, store.Run{ID: older, Entity: "A", CreatedAt: base}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Create(ctx, store.Run{ID: newer, Entity: "B", CreatedAt: base.Add(time.Minute)}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Create(ctx, store.Run{ID: failed, Entity: "C", CreatedAt: base.Add(2 * time.Minute)}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Complete(ctx, failed, base.Add(3*time.Minute), store.StatusFailed, nil); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	all, err := s.List(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != failed || all[2].ID != older {
		t.Fatalf("expected newest-first ordering, got %+v", all)
	}

	pending := store.StatusPending
	subset, err := s.List(ctx, &pending, 1, 1)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(subset) != 1 || subset[0].ID != older {
		t.Fatalf("expected paged pending runs, got %+v", subset)
	}

	empty, err := s.List(ctx, &pending, 10, 5)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty page, got %v err %v", empty, err)
	}
}
