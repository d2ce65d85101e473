package fedrl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fedrl/internal/env"
	"fedrl/internal/explore"
	"fedrl/internal/platform"
	"fedrl/internal/schedule"
	"fedrl/internal/storage"
	"fedrl/internal/trainer"
)

const (
	defaultDBPath     = "fedrl.db"
	defaultExportsDir = "exports"
)

type Options struct {
	StoreKind  string
	DBPath     string
	ExportsDir string
}

type Client struct {
	store       storage.Store
	coordinator *platform.Coordinator
	exportsDir  string

	initialized bool
}

type RunRequest struct {
	Strategy         string
	Agents           int
	Iterations       int
	Interval         int
	Quantile         float64
	Temperature      float64
	TemperatureDecay float64
	Seed             int64

	// Environment and local trainer knobs.
	ChainLength          int
	Slip                 float64
	EpisodesPerIteration int
	MaxStepsPerEpisode   int
	LearningRate         float64
	Gamma                float64
	Epsilon              float64
	EntropyCoeff         float64

	// Explore enables hyperparameter perturbation after each federation
	// iteration.
	Explore             bool
	ResampleProbability float64
}

type RunSummary struct {
	RunID           string
	CreatedAtUTC    string
	Strategy        string
	NumAgents       int
	Iterations      int
	FinalRewardMean float64
	FinalRewardBest float64
	TimestepsTotal  int64
	RewardHistory   []float64
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID           string
	CreatedAtUTC    string
	Strategy        string
	NumAgents       int
	Iterations      int
	FinalRewardMean float64
	FinalRewardBest float64
	TimestepsTotal  int64
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type HistoryItem struct {
	Iteration       int
	Federated       string
	RewardMean      float64
	RewardBest      float64
	HasRewardSignal bool
	TimestepsTotal  int64
	Temperature     float64
}

type RewardHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	coordinator, err := platform.NewCoordinator(store)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:       store,
		coordinator: coordinator,
		exportsDir:  exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureInit(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Strategy == "" {
		req.Strategy = string(schedule.StrategyFedAvg)
	}
	if req.Agents <= 0 {
		req.Agents = 4
	}
	if req.Iterations <= 0 {
		req.Iterations = 50
	}
	if req.Interval <= 0 {
		req.Interval = 5
	}
	if req.Quantile <= 0 {
		req.Quantile = 0.25
	}
	if req.Temperature <= 0 {
		req.Temperature = 1
	}
	if req.ChainLength <= 0 {
		req.ChainLength = 15
	}
	if req.EpisodesPerIteration <= 0 {
		req.EpisodesPerIteration = 8
	}
	if req.MaxStepsPerEpisode <= 0 {
		req.MaxStepsPerEpisode = 50
	}
	if req.LearningRate <= 0 {
		req.LearningRate = 0.5
	}
	if req.Gamma <= 0 {
		req.Gamma = 0.95
	}
	if req.Epsilon <= 0 {
		req.Epsilon = 0.1
	}
	if req.ResampleProbability <= 0 {
		req.ResampleProbability = 0.25
	}

	if err := c.ensureInit(ctx); err != nil {
		return RunSummary{}, err
	}

	envs := make([]env.Env, req.Agents)
	for i := range envs {
		walk, err := env.NewChainWalk(req.ChainLength, req.Slip, req.Seed+int64(i))
		if err != nil {
			return RunSummary{}, err
		}
		envs[i] = walk
	}
	tabular, err := trainer.NewTabular(trainer.TabularConfig{
		Envs:                 envs,
		EpisodesPerIteration: req.EpisodesPerIteration,
		MaxStepsPerEpisode:   req.MaxStepsPerEpisode,
		Seed:                 req.Seed,
		LearningRate:         req.LearningRate,
		Gamma:                req.Gamma,
		Epsilon:              req.Epsilon,
		EntropyCoeff:         req.EntropyCoeff,
	})
	if err != nil {
		return RunSummary{}, err
	}

	scheduleCfg := schedule.Config{
		NumAgents:           req.Agents,
		Interval:            req.Interval,
		Quantile:            req.Quantile,
		Temperature:         req.Temperature,
		TemperatureDecay:    req.TemperatureDecay,
		Strategy:            schedule.Strategy(req.Strategy),
		ResampleProbability: req.ResampleProbability,
		Seed:                req.Seed,
	}
	if req.Explore {
		scheduleCfg.ExploreParams = []string{explore.LearningRateParam, "gamma", "entropy_coeff"}
		scheduleCfg.Distributions = defaultDistributions()
	}

	result, err := c.coordinator.RunExperiment(ctx, platform.ExperimentConfig{
		Iterations: req.Iterations,
		Trainer:    tabular,
		Schedule:   scheduleCfg,
	})
	if err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:           result.Summary.RunID,
		CreatedAtUTC:    result.Summary.CreatedAtUTC,
		Strategy:        result.Summary.Strategy,
		NumAgents:       result.Summary.NumAgents,
		Iterations:      result.Summary.Iterations,
		FinalRewardMean: result.Summary.FinalRewardMean,
		FinalRewardBest: result.Summary.FinalRewardBest,
		TimestepsTotal:  result.Summary.TimestepsTotal,
		RewardHistory:   append([]float64(nil), result.RewardHistory...),
	}, nil
}

// Runs lists stored runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.ensureInit(ctx); err != nil {
		return nil, err
	}

	summaries, err := c.store.ListRunSummaries(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, len(summaries))
	for i := len(summaries) - 1; i >= 0 && len(out) < req.Limit; i-- {
		s := summaries[i]
		out = append(out, RunItem{
			RunID:           s.RunID,
			CreatedAtUTC:    s.CreatedAtUTC,
			Strategy:        s.Strategy,
			NumAgents:       s.NumAgents,
			Iterations:      s.Iterations,
			FinalRewardMean: s.FinalRewardMean,
			FinalRewardBest: s.FinalRewardBest,
			TimestepsTotal:  s.TimestepsTotal,
		})
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, req HistoryRequest) ([]HistoryItem, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, req.Limit)
	if err != nil {
		return nil, err
	}

	records, ok, err := c.store.GetIterationHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("iteration history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(records) > req.Limit {
		records = records[len(records)-req.Limit:]
	}

	out := make([]HistoryItem, 0, len(records))
	for _, record := range records {
		out = append(out, HistoryItem{
			Iteration:       record.Iteration,
			Federated:       record.Federated,
			RewardMean:      record.RewardMean,
			RewardBest:      record.RewardBest,
			HasRewardSignal: record.HasRewardSignal,
			TimestepsTotal:  record.TimestepsTotal,
			Temperature:     record.Temperature,
		})
	}
	return out, nil
}

func (c *Client) RewardHistory(ctx context.Context, req RewardHistoryRequest) ([]float64, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, req.Limit)
	if err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetRewardHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("reward history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[len(history)-req.Limit:]
	}
	return append([]float64(nil), history...), nil
}

// Export writes a run's summary, iteration history and reward history as
// JSON files under a per-run directory.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, 0)
	if err != nil {
		return ExportSummary{}, err
	}

	summary, ok, err := c.store.GetRunSummary(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		return ExportSummary{}, fmt.Errorf("run not found: %s", runID)
	}
	records, ok, err := c.store.GetIterationHistory(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		return ExportSummary{}, fmt.Errorf("iteration history not found for run id: %s", runID)
	}
	rewards, ok, err := c.store.GetRewardHistory(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		rewards = []float64{}
	}

	runDir := filepath.Join(req.OutDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return ExportSummary{}, err
	}
	if err := writeJSON(filepath.Join(runDir, "run.json"), summary); err != nil {
		return ExportSummary{}, err
	}
	if err := writeJSON(filepath.Join(runDir, "iterations.json"), records); err != nil {
		return ExportSummary{}, err
	}
	if err := writeJSON(filepath.Join(runDir, "rewards.json"), rewards); err != nil {
		return ExportSummary{}, err
	}

	return ExportSummary{RunID: runID, Directory: filepath.Clean(runDir)}, nil
}

func (c *Client) ensureInit(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool, limit int) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	if err := c.ensureInit(ctx); err != nil {
		return "", err
	}
	if latest {
		summaries, err := c.store.ListRunSummaries(ctx)
		if err != nil {
			return "", err
		}
		if len(summaries) == 0 {
			return "", errors.New("no runs available")
		}
		return summaries[len(summaries)-1].RunID, nil
	}
	if runID == "" {
		return "", errors.New("run id or latest is required")
	}
	return runID, nil
}

func defaultDistributions() map[string]explore.Distribution {
	return map[string]explore.Distribution{
		explore.LearningRateParam: {0.1, 0.3, 0.5, 0.7, 0.9},
		"gamma":                   {0.8, 0.9, 0.95, 0.99},
		"entropy_coeff":           {0, 0.01, 0.1},
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
