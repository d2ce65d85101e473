package storage

import (
	"context"

	"fedrl/internal/model"
)

// Store defines persistence operations for experiment runs: the summary
// of each run plus its annotated per-iteration history and the raw reward
// trajectory.
type Store interface {
	Init(ctx context.Context) error
	SaveRunSummary(ctx context.Context, summary model.RunSummary) error
	GetRunSummary(ctx context.Context, runID string) (model.RunSummary, bool, error)
	ListRunSummaries(ctx context.Context) ([]model.RunSummary, error)
	SaveIterationHistory(ctx context.Context, runID string, records []model.IterationRecord) error
	GetIterationHistory(ctx context.Context, runID string) ([]model.IterationRecord, bool, error)
	SaveRewardHistory(ctx context.Context, runID string, history []float64) error
	GetRewardHistory(ctx context.Context, runID string) ([]float64, bool, error)
}
