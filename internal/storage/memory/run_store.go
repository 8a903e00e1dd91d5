package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/greenproof/fleetscore/internal/store"
)

// RunStore provides an in-memory store.RunStore implementation.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.Run
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.Run)}
}

// Create registers a new run. Status defaults to pending.
func (s *RunStore) Create(_ context.Context, run store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	if run.Status == "" {
		run.Status = store.StatusPending
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// Get fetches a run by ID.
func (s *RunStore) Get(_ context.Context, id uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return cloneRun(run), nil
}

// List returns runs filtered by optional status, newest first.
func (s *RunStore) List(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		matched = append(matched, cloneRun(run))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return []store.Run{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// MarkRunning transitions the run to running and stamps StartedAt.
func (s *RunStore) MarkRunning(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	if run.Status.Terminal() {
		return errors.New("run already finished")
	}
	run.Status = store.StatusRunning
	if run.StartedAt == nil {
		ts := at
		run.StartedAt = &ts
	}
	s.runs[id] = run
	return nil
}

// SetResult attaches the exported payload and summary counters.
func (s *RunStore) SetResult(_ context.Context, id uuid.UUID, found int, quality float64, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.Found = found
	run.Quality = quality
	run.Result = append([]byte(nil), result...)
	s.runs[id] = run
	return nil
}

// Complete transitions the run to a terminal status.
func (s *RunStore) Complete(_ context.Context, id uuid.UUID, at time.Time, status store.RunStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.Status = status
	ts := at
	run.FinishedAt = &ts
	if errMsg != nil {
		msg := *errMsg
		run.ErrorMessage = &msg
	}
	s.runs[id] = run
	return nil
}

// cloneRun copies pointer and slice fields so callers cannot mutate
// stored state.
func cloneRun(run store.Run) store.Run {
	out := run
	if run.StartedAt != nil {
		ts := *run.StartedAt
		out.StartedAt = &ts
	}
	if run.FinishedAt != nil {
		ts := *run.FinishedAt
		out.FinishedAt = &ts
	}
	if run.ErrorMessage != nil {
		msg := *run.ErrorMessage
		out.ErrorMessage = &msg
	}
	if run.Result != nil {
		out.Result = append([]byte(nil), run.Result...)
	}
	return out
}
