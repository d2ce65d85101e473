package platform

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"fedrl/internal/model"
	"fedrl/internal/schedule"
	"fedrl/internal/storage"
	"fedrl/internal/trainer"
)

// LocalTrainer couples the controller-facing trainer surface with the
// in-process training step the coordinator drives between federation
// decisions.
type LocalTrainer interface {
	trainer.Trainer
	TrainIteration(ctx context.Context) (trainer.Result, error)
}

type ExperimentConfig struct {
	// RunID is minted when empty.
	RunID      string
	Iterations int
	Trainer    LocalTrainer
	Schedule   schedule.Config
}

type ExperimentResult struct {
	Summary       model.RunSummary
	History       []model.IterationRecord
	RewardHistory []float64
}

// Coordinator drives a full experiment: train, hand each iteration's
// metrics to the scheduler, record the annotated outcome, and persist
// the run when the loop completes.
type Coordinator struct {
	store storage.Store
}

func NewCoordinator(store storage.Store) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &Coordinator{store: store}, nil
}

func (c *Coordinator) RunExperiment(ctx context.Context, cfg ExperimentConfig) (ExperimentResult, error) {
	if cfg.Trainer == nil {
		return ExperimentResult{}, fmt.Errorf("trainer is required")
	}
	if cfg.Iterations <= 0 {
		return ExperimentResult{}, fmt.Errorf("iterations must be > 0, got %d", cfg.Iterations)
	}

	scheduler, err := schedule.New(cfg.Schedule)
	if err != nil {
		return ExperimentResult{}, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	history := make([]model.IterationRecord, 0, cfg.Iterations)
	rewardHistory := make([]float64, 0, cfg.Iterations)

	for i := 1; i <= cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return ExperimentResult{}, err
		}

		result, err := cfg.Trainer.TrainIteration(ctx)
		if err != nil {
			return ExperimentResult{}, fmt.Errorf("train iteration %d: %w", i, err)
		}
		if err := scheduler.OnIteration(cfg.Trainer, &result); err != nil {
			return ExperimentResult{}, fmt.Errorf("schedule iteration %d: %w", i, err)
		}

		record := toRecord(result, scheduler.State().Temperature)
		history = append(history, record)
		if record.HasRewardSignal {
			rewardHistory = append(rewardHistory, record.RewardMean)
		}
	}

	summary := buildSummary(runID, cfg, history)
	if err := c.store.SaveRunSummary(ctx, summary); err != nil {
		return ExperimentResult{}, fmt.Errorf("save run summary: %w", err)
	}
	if err := c.store.SaveIterationHistory(ctx, runID, history); err != nil {
		return ExperimentResult{}, fmt.Errorf("save iteration history: %w", err)
	}
	if err := c.store.SaveRewardHistory(ctx, runID, rewardHistory); err != nil {
		return ExperimentResult{}, fmt.Errorf("save reward history: %w", err)
	}

	return ExperimentResult{
		Summary:       summary,
		History:       history,
		RewardHistory: rewardHistory,
	}, nil
}

// toRecord converts an annotated result into its persisted form. NaN
// reward sentinels do not survive JSON encoding, so missing signals are
// stored as zeroes with HasRewardSignal unset.
func toRecord(result trainer.Result, temperature float64) model.IterationRecord {
	record := model.IterationRecord{
		VersionedRecord: storage.Versioned(),
		Iteration:       result.TrainingIteration,
		Federated:       result.Federated,
		TimestepsTotal:  result.TimestepsTotal,
		Temperature:     temperature,
	}
	if !math.IsNaN(result.EpisodeRewardMean) {
		record.RewardMean = result.EpisodeRewardMean
		record.RewardBest = result.EpisodeRewardBest
		record.HasRewardSignal = true
	}
	return record
}

func buildSummary(runID string, cfg ExperimentConfig, history []model.IterationRecord) model.RunSummary {
	summary := model.RunSummary{
		VersionedRecord: storage.Versioned(),
		RunID:           runID,
		CreatedAtUTC:    time.Now().UTC().Format(time.RFC3339),
		Strategy:        strategyLabel(cfg.Schedule.Strategy),
		NumAgents:       cfg.Schedule.NumAgents,
		Iterations:      len(history),
	}
	for _, record := range history {
		summary.TimestepsTotal = record.TimestepsTotal
		if record.HasRewardSignal {
			summary.FinalRewardMean = record.RewardMean
			summary.FinalRewardBest = record.RewardBest
		}
	}
	return summary
}

func strategyLabel(strategy schedule.Strategy) string {
	if strategy == "" {
		return string(schedule.StrategyFedAvg)
	}
	return string(strategy)
}
