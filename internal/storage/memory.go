package storage

import (
	"context"
	"sync"

	"fedrl/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunSummary
	runOrder    []string
	iterations  map[string][]model.IterationRecord
	rewards     map[string][]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunSummary)
	s.runOrder = nil
	s.iterations = make(map[string][]model.IterationRecord)
	s.rewards = make(map[string][]float64)
	return nil
}

func (s *MemoryStore) SaveRunSummary(_ context.Context, summary model.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[summary.RunID]; !ok {
		s.runOrder = append(s.runOrder, summary.RunID)
	}
	s.runs[summary.RunID] = summary
	return nil
}

func (s *MemoryStore) GetRunSummary(_ context.Context, runID string) (model.RunSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.runs[runID]
	return summary, ok, nil
}

// ListRunSummaries returns runs in insertion order, oldest first.
func (s *MemoryStore) ListRunSummaries(_ context.Context) ([]model.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunSummary, 0, len(s.runOrder))
	for _, runID := range s.runOrder {
		out = append(out, s.runs[runID])
	}
	return out, nil
}

func (s *MemoryStore) SaveIterationHistory(_ context.Context, runID string, records []model.IterationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.IterationRecord, len(records))
	copy(copied, records)
	s.iterations[runID] = copied
	return nil
}

func (s *MemoryStore) GetIterationHistory(_ context.Context, runID string) ([]model.IterationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.iterations[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.IterationRecord, len(records))
	copy(copied, records)
	return copied, true, nil
}

func (s *MemoryStore) SaveRewardHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rewards[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetRewardHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.rewards[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}
