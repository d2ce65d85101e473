package schedule

import (
	"fmt"
	"math"
	"math/rand"

	"fedrl/internal/explore"
	"fedrl/internal/federate"
	"fedrl/internal/model"
	"fedrl/internal/trainer"
)

// Strategy selects what a federation iteration does. The strategies are
// mutually exclusive policies: federated averaging broadcasts a merged
// parameter set, population-based training replaces low performers'
// state; both may perturb hyperparameters afterwards.
type Strategy string

const (
	StrategyFedAvg       Strategy = "fedavg"
	StrategyFedAvgReward Strategy = "fedavg-reward"
	StrategyPBT          Strategy = "pbt"
)

// NoFederationLabel annotates iterations that performed no weight merge.
const NoFederationLabel = "No federation"

type Config struct {
	NumAgents int
	// Interval is the iteration period between federation iterations.
	Interval int
	Quantile float64
	// Temperature is the base softmax temperature; TemperatureDecay
	// shrinks it over iterations when > 0.
	Temperature      float64
	TemperatureDecay float64
	Strategy         Strategy
	// ExploreParams lists the tunable hyperparameters; empty disables
	// the explore step entirely.
	ExploreParams       []string
	Distributions       map[string]explore.Distribution
	ResampleProbability float64
	// Rand overrides the Seed-derived random source when set.
	Rand *rand.Rand
	Seed int64
}

// State holds the scheduler's only cross-iteration memory. It is mutated
// exclusively by OnIteration on the single calling goroutine and is never
// serialized.
type State struct {
	Iteration   int
	Temperature float64
}

// Scheduler is the per-iteration decision procedure driven by the training
// loop's callback. Iteration 1 initializes every agent from agent 0;
// iterations divisible by the interval federate; everything else passes
// through with annotation only.
type Scheduler struct {
	cfg     Config
	mutator *explore.Mutator
	state   State
}

func New(cfg Config) (*Scheduler, error) {
	if cfg.NumAgents <= 0 {
		return nil, fmt.Errorf("number of agents must be > 0")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("federation interval must be > 0")
	}
	if cfg.Quantile <= 0 || cfg.Quantile > 0.5 {
		return nil, fmt.Errorf("quantile fraction must be in (0, 0.5], got %g", cfg.Quantile)
	}
	if cfg.Temperature <= 0 {
		return nil, fmt.Errorf("temperature must be > 0, got %g", cfg.Temperature)
	}
	if cfg.TemperatureDecay < 0 {
		return nil, fmt.Errorf("temperature decay must be >= 0, got %g", cfg.TemperatureDecay)
	}
	switch cfg.Strategy {
	case StrategyFedAvg, StrategyFedAvgReward, StrategyPBT:
	case "":
		cfg.Strategy = StrategyFedAvg
	default:
		return nil, fmt.Errorf("unsupported strategy: %s", cfg.Strategy)
	}
	for _, name := range cfg.ExploreParams {
		if len(cfg.Distributions[name]) == 0 {
			return nil, fmt.Errorf("no distribution declared for tunable parameter %q", name)
		}
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	mutator, err := explore.NewMutator(rng, cfg.ResampleProbability)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:     cfg,
		mutator: mutator,
		state:   State{Temperature: cfg.Temperature},
	}, nil
}

func (s *Scheduler) State() State { return s.state }

// OnIteration annotates the result record and, depending on the iteration
// class, initializes or federates the population. A failed federation
// leaves agent state unchanged for the iteration and propagates the
// error; FederationState stays consistent either way.
func (s *Scheduler) OnIteration(tr trainer.Trainer, result *trainer.Result) error {
	if tr == nil || result == nil {
		return fmt.Errorf("trainer and result are required")
	}

	iteration := result.TrainingIteration
	temperature := TemperatureAt(s.cfg.Temperature, s.cfg.TemperatureDecay, iteration)
	s.state.Iteration = iteration
	s.state.Temperature = temperature

	annotate(result)

	switch {
	case iteration == 1:
		return s.uniformInitialize(tr)
	case iteration%s.cfg.Interval != 0:
		return nil
	case len(result.PolicyRewardMean) == 0:
		// Nothing to weight by: treat as a pass-through iteration.
		return nil
	}

	switch s.cfg.Strategy {
	case StrategyPBT:
		return s.exploit(tr, result)
	default:
		return s.federate(tr, result, temperature)
	}
}

// uniformInitialize copies agent 0's parameter set to the whole
// population so every agent starts from an identical state.
func (s *Scheduler) uniformInitialize(tr trainer.Trainer) error {
	weights, err := tr.GetWeights(0)
	if err != nil {
		return fmt.Errorf("fetch agent 0 weights: %w", err)
	}
	base, ok := weights[0]
	if !ok {
		return fmt.Errorf("trainer returned no weights for agent 0")
	}
	return s.synchronize(tr, base)
}

// synchronize fans one parameter set out to every agent.
func (s *Scheduler) synchronize(tr trainer.Trainer, params model.ParameterSet) error {
	out := make(model.WeightCollection, s.cfg.NumAgents)
	for i := 0; i < s.cfg.NumAgents; i++ {
		out[model.AgentID(i)] = params.Clone()
	}
	if err := tr.SetWeights(out); err != nil {
		return fmt.Errorf("broadcast weights: %w", err)
	}
	return nil
}

func (s *Scheduler) federate(tr trainer.Trainer, result *trainer.Result, temperature float64) error {
	weights, err := tr.GetWeights()
	if err != nil {
		return fmt.Errorf("fetch population weights: %w", err)
	}

	mode := federate.ModeSoftmax
	if s.cfg.Strategy == StrategyFedAvgReward {
		mode = federate.ModeRewardProportional
	}
	aggregator := federate.Aggregator{Mode: mode, Temperature: temperature}
	merged, err := aggregator.Aggregate(weights, result.PolicyRewardMean)
	if err != nil {
		return fmt.Errorf("aggregate weights: %w", err)
	}
	if err := s.synchronize(tr, merged); err != nil {
		return err
	}
	result.Federated = fmt.Sprintf("Federation with %g", temperature)

	return s.explore(tr, result)
}

func (s *Scheduler) exploit(tr trainer.Trainer, result *trainer.Result) error {
	low, high, err := federate.Select(result.PolicyRewardMean, s.cfg.Quantile)
	if err != nil {
		return fmt.Errorf("select quantiles: %w", err)
	}
	if len(low) > 0 && len(high) > 0 {
		weights, err := tr.GetWeights()
		if err != nil {
			return fmt.Errorf("fetch population weights: %w", err)
		}
		replaced := s.mutator.ReplaceLowPerformers(weights, low, high)
		if err := tr.SetWeights(replaced); err != nil {
			return fmt.Errorf("install replacements: %w", err)
		}
		result.Federated = "Population-based update"
	}
	if len(s.cfg.ExploreParams) == 0 {
		return nil
	}
	if err := s.mutator.Perturb(tr, low, high, s.cfg.ExploreParams, s.cfg.Distributions); err != nil {
		return fmt.Errorf("perturb hyperparameters: %w", err)
	}
	return nil
}

func (s *Scheduler) explore(tr trainer.Trainer, result *trainer.Result) error {
	if len(s.cfg.ExploreParams) == 0 {
		return nil
	}
	low, high, err := federate.Select(result.PolicyRewardMean, s.cfg.Quantile)
	if err != nil {
		return fmt.Errorf("select quantiles: %w", err)
	}
	if err := s.mutator.Perturb(tr, low, high, s.cfg.ExploreParams, s.cfg.Distributions); err != nil {
		return fmt.Errorf("perturb hyperparameters: %w", err)
	}
	return nil
}

// annotate writes the derived reward metrics and the default federation
// label into the result record. An empty signal yields NaN sentinels.
func annotate(result *trainer.Result) {
	result.Federated = NoFederationLabel
	if result.NumStepsTrained > 0 {
		result.TimestepsTotal = result.NumStepsTrained
	}
	if len(result.PolicyRewardMean) == 0 {
		result.EpisodeRewardMean = math.NaN()
		result.EpisodeRewardBest = math.NaN()
		return
	}
	total := 0.0
	best := math.Inf(-1)
	for _, r := range result.PolicyRewardMean {
		total += r
		if r > best {
			best = r
		}
	}
	result.EpisodeRewardMean = total / float64(len(result.PolicyRewardMean))
	result.EpisodeRewardBest = best
}
