package workflow

import (
	"context"
	"sort"
	"sync"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// MemoryStore is an in-process RunStore for local development and tests.
// Runs do not survive a restart; production deployments use PostgresStore.
type MemoryStore struct {
	mu   sync.Mutex
	runs map[string]core.FailoverWorkflowRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]core.FailoverWorkflowRun)}
}

func (s *MemoryStore) Create(_ context.Context, run *core.FailoverWorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.runs {
		if existing.Target == run.Target && existing.Status == core.RunRunning {
			return core.ErrConcurrencyConflict
		}
	}
	s.runs[run.RunID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, run *core.FailoverWorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.RunID]; !ok {
		return core.ErrRunNotFound
	}
	s.runs[run.RunID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, runID string) (*core.FailoverWorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, core.ErrRunNotFound
	}
	out := cloneRun(&run)
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]*core.FailoverWorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	runs := make([]*core.FailoverWorkflowRun, 0, len(s.runs))
	for id := range s.runs {
		run := cloneRun(ptr(s.runs[id]))
		runs = append(runs, &run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) ListRunning(_ context.Context) ([]*core.FailoverWorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := []*core.FailoverWorkflowRun{}
	for id := range s.runs {
		if s.runs[id].Status == core.RunRunning {
			run := cloneRun(ptr(s.runs[id]))
			runs = append(runs, &run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartTime.Before(runs[j].StartTime)
	})
	return runs, nil
}

func ptr(r core.FailoverWorkflowRun) *core.FailoverWorkflowRun { return &r }

func cloneRun(run *core.FailoverWorkflowRun) core.FailoverWorkflowRun {
	out := *run
	out.StepHistory = append(core.StepHistory{}, run.StepHistory...)
	out.Metadata = core.StringMap{}
	for k, v := range run.Metadata {
		out.Metadata[k] = v
	}
	out.Context = core.StringMap{}
	for k, v := range run.Context {
		out.Context[k] = v
	}
	return out
}
