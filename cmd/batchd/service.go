package main

import (
	"context"
	"sync/atomic"

	"batchd/internal/pipeline"
	"batchd/internal/store"
	"batchd/pkg/types"
)

// statusService backs the status server with the current run, the scanned
// model list, and the results store.
type statusService struct {
	run    atomic.Pointer[pipeline.Run]
	models []types.Model
	store  store.Store
}

func (s *statusService) Status() (types.RunStatus, bool) {
	r := s.run.Load()
	if r == nil {
		return types.RunStatus{}, false
	}
	return r.Snapshot(), true
}

func (s *statusService) ListModels() []types.Model { return s.models }

func (s *statusService) ListRuns(ctx context.Context) ([]string, error) { return s.store.List(ctx) }

func (s *statusService) LoadRun(ctx context.Context, id string) (types.RunResult, error) {
	return s.store.Load(ctx, id)
}
