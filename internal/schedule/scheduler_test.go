package schedule

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"fedrl/internal/explore"
	"fedrl/internal/federate"
	"fedrl/internal/model"
	"fedrl/internal/trainer"
)

type fakePolicy struct {
	lr     float64
	config map[string]float64
}

func (p *fakePolicy) LearningRate() float64     { return p.lr }
func (p *fakePolicy) SetLearningRate(v float64) { p.lr = v }

func (p *fakePolicy) ConfigValue(name string) (float64, bool) {
	v, ok := p.config[name]
	return v, ok
}

func (p *fakePolicy) SetConfigValue(name string, v float64) {
	p.config[name] = v
}

type fakeTrainer struct {
	weights  model.WeightCollection
	policies map[model.AgentID]*fakePolicy
	setCalls int
}

func newFakeTrainer(n int) *fakeTrainer {
	weights := make(model.WeightCollection, n)
	policies := make(map[model.AgentID]*fakePolicy, n)
	for i := 0; i < n; i++ {
		tensor := model.NewTensor(1)
		tensor.Data[0] = float64(i + 1)
		weights[model.AgentID(i)] = model.ParameterSet{"w": tensor}
		policies[model.AgentID(i)] = &fakePolicy{
			lr:     0.999,
			config: map[string]float64{"gamma": 0.95, "entropy_coeff": 0.01},
		}
	}
	return &fakeTrainer{weights: weights, policies: policies}
}

func (f *fakeTrainer) GetWeights(ids ...model.AgentID) (model.WeightCollection, error) {
	if len(ids) == 0 {
		return f.weights.Clone(), nil
	}
	out := make(model.WeightCollection, len(ids))
	for _, id := range ids {
		params, ok := f.weights[id]
		if !ok {
			return nil, fmt.Errorf("unknown agent %d", id)
		}
		out[id] = params.Clone()
	}
	return out, nil
}

func (f *fakeTrainer) SetWeights(weights model.WeightCollection) error {
	f.setCalls++
	for id, params := range weights {
		f.weights[id] = params.Clone()
	}
	return nil
}

func (f *fakeTrainer) GetPolicy(id model.AgentID) (trainer.Policy, error) {
	policy, ok := f.policies[id]
	if !ok {
		return nil, fmt.Errorf("unknown agent %d", id)
	}
	return policy, nil
}

func baseConfig() Config {
	return Config{
		NumAgents:   4,
		Interval:    5,
		Quantile:    0.25,
		Temperature: 1.0,
		Strategy:    StrategyFedAvg,
		Seed:        7,
	}
}

func fullRewards() model.RewardSignal {
	return model.RewardSignal{0: 1.0, 1: 2.0, 2: 3.0, 3: 4.0}
}

func TestIterationOneInitializesUniformly(t *testing.T) {
	tr := newFakeTrainer(4)
	sched, err := New(baseConfig())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	result := trainer.Result{TrainingIteration: 1, PolicyRewardMean: fullRewards()}
	if err := sched.OnIteration(tr, &result); err != nil {
		t.Fatalf("on iteration: %v", err)
	}
	for id := range tr.weights {
		if got := tr.weights[id]["w"].Data[0]; got != 1.0 {
			t.Fatalf("agent %d = %v, want agent 0's original 1.0", id, got)
		}
	}
	if result.Federated != NoFederationLabel {
		t.Fatalf("federated label = %q", result.Federated)
	}

	// Running the init step again reproduces the same collection.
	before := tr.weights.Clone()
	again := trainer.Result{TrainingIteration: 1, PolicyRewardMean: fullRewards()}
	if err := sched.OnIteration(tr, &again); err != nil {
		t.Fatalf("repeat on iteration: %v", err)
	}
	for id := range before {
		if tr.weights[id]["w"].Data[0] != before[id]["w"].Data[0] {
			t.Fatalf("init is not idempotent for agent %d", id)
		}
	}
}

func TestPassThroughIterationOnlyAnnotates(t *testing.T) {
	tr := newFakeTrainer(4)
	sched, err := New(baseConfig())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	result := trainer.Result{
		TrainingIteration: 3,
		PolicyRewardMean:  fullRewards(),
		NumStepsTrained:   640,
	}
	if err := sched.OnIteration(tr, &result); err != nil {
		t.Fatalf("on iteration: %v", err)
	}
	if tr.setCalls != 0 {
		t.Fatalf("pass-through iteration mutated weights %d times", tr.setCalls)
	}
	if result.Federated != NoFederationLabel {
		t.Fatalf("federated label = %q", result.Federated)
	}
	if result.EpisodeRewardMean != 2.5 || result.EpisodeRewardBest != 4.0 {
		t.Fatalf("mean=%v best=%v, want 2.5/4", result.EpisodeRewardMean, result.EpisodeRewardBest)
	}
	if result.TimestepsTotal != 640 {
		t.Fatalf("timesteps = %d, want 640", result.TimestepsTotal)
	}
}

func TestEmptySignalOnFederationIterationIsSoftSkip(t *testing.T) {
	tr := newFakeTrainer(4)
	sched, err := New(baseConfig())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	result := trainer.Result{TrainingIteration: 5}
	if err := sched.OnIteration(tr, &result); err != nil {
		t.Fatalf("on iteration: %v", err)
	}
	if tr.setCalls != 0 {
		t.Fatal("weights changed despite empty reward signal")
	}
	if result.Federated != "No federation" {
		t.Fatalf("federated label = %q, want \"No federation\"", result.Federated)
	}
	if !math.IsNaN(result.EpisodeRewardMean) || !math.IsNaN(result.EpisodeRewardBest) {
		t.Fatalf("mean=%v best=%v, want NaN sentinels", result.EpisodeRewardMean, result.EpisodeRewardBest)
	}
}

func TestFederationIterationBroadcastsSoftmaxAverage(t *testing.T) {
	tr := newFakeTrainer(4)
	sched, err := New(baseConfig())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	rewards := fullRewards()
	result := trainer.Result{TrainingIteration: 5, PolicyRewardMean: rewards}
	if err := sched.OnIteration(tr, &result); err != nil {
		t.Fatalf("on iteration: %v", err)
	}
	if result.Federated != "Federation with 1" {
		t.Fatalf("federated label = %q", result.Federated)
	}

	// Expected value: softmax(beta=1) over rewards applied to the agent
	// values 1..4.
	total := 0.0
	expected := 0.0
	for i := 0; i < 4; i++ {
		w := math.Exp(rewards[model.AgentID(i)] - 4.0)
		total += w
		expected += w * float64(i+1)
	}
	expected /= total

	for id := range tr.weights {
		if got := tr.weights[id]["w"].Data[0]; math.Abs(got-expected) > 1e-12 {
			t.Fatalf("agent %d = %v, want %v", id, got, expected)
		}
	}
}

func TestFederationRunsExplorationOnLowPerformers(t *testing.T) {
	tr := newFakeTrainer(4)
	cfg := baseConfig()
	cfg.ExploreParams = []string{"lr", "gamma"}
	cfg.Distributions = map[string]explore.Distribution{
		"lr":    {0.1, 0.2, 0.3},
		"gamma": {0.95, 0.97, 0.99},
	}
	sched, err := New(cfg)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	result := trainer.Result{TrainingIteration: 5, PolicyRewardMean: fullRewards()}
	if err := sched.OnIteration(tr, &result); err != nil {
		t.Fatalf("on iteration: %v", err)
	}

	// q=0.25 over 4 agents puts only agent 0 in the low band. Its lr was
	// outside the distribution, so the perturbation must have resampled
	// it into the distribution.
	low := tr.policies[0]
	if !containsValue(cfg.Distributions["lr"], low.lr) {
		t.Fatalf("low performer lr = %v, not drawn from the distribution", low.lr)
	}
	for _, id := range []model.AgentID{1, 2, 3} {
		if tr.policies[id].lr != 0.999 {
			t.Fatalf("agent %d hyperparameters were touched", id)
		}
	}
}

func TestPBTReplacesLowPerformerState(t *testing.T) {
	tr := newFakeTrainer(4)
	cfg := baseConfig()
	cfg.Strategy = StrategyPBT
	sched, err := New(cfg)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	result := trainer.Result{TrainingIteration: 5, PolicyRewardMean: fullRewards()}
	if err := sched.OnIteration(tr, &result); err != nil {
		t.Fatalf("on iteration: %v", err)
	}
	if result.Federated != "Population-based update" {
		t.Fatalf("federated label = %q", result.Federated)
	}

	// low={0}, high={3}: agent 0 must now carry agent 3's value; nobody
	// else changes.
	if got := tr.weights[0]["w"].Data[0]; got != 4.0 {
		t.Fatalf("agent 0 = %v, want copy of agent 3's 4.0", got)
	}
	for i, want := range []float64{4, 2, 3, 4} {
		if got := tr.weights[model.AgentID(i)]["w"].Data[0]; got != want {
			t.Fatalf("agent %d = %v, want %v", i, got, want)
		}
	}
}

func TestRewardProportionalDegeneracyPropagates(t *testing.T) {
	tr := newFakeTrainer(3)
	cfg := baseConfig()
	cfg.NumAgents = 3
	cfg.Strategy = StrategyFedAvgReward
	sched, err := New(cfg)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	result := trainer.Result{
		TrainingIteration: 5,
		PolicyRewardMean:  model.RewardSignal{0: 0, 1: 0, 2: 0},
	}
	err = sched.OnIteration(tr, &result)
	if err == nil {
		t.Fatal("expected degenerate reward error")
	}
	if !errors.Is(err, federate.ErrDegenerateRewardSignal) {
		t.Fatalf("unexpected error: %v", err)
	}
	// The failed merge must leave agent state untouched.
	for i, want := range []float64{1, 2, 3} {
		if got := tr.weights[model.AgentID(i)]["w"].Data[0]; got != want {
			t.Fatalf("agent %d = %v, want %v", i, got, want)
		}
	}
	if result.Federated != NoFederationLabel {
		t.Fatalf("federated label = %q after failed merge", result.Federated)
	}
}

func TestTemperatureAt(t *testing.T) {
	cases := []struct {
		base, decay float64
		iteration   int
		want        float64
	}{
		{1.0, 0, 100, 1.0},
		{2.0, 0, 1, 2.0},
		{1.0, 0.1, 0, 1.0},
		{1.0, 0.1, 10, 0.5},
		{4.0, 1.0, 3, 1.0},
	}
	for _, tc := range cases {
		if got := TemperatureAt(tc.base, tc.decay, tc.iteration); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("TemperatureAt(%g, %g, %d) = %v, want %v", tc.base, tc.decay, tc.iteration, got, tc.want)
		}
	}
}

func TestSchedulerStateTracksIterationAndTemperature(t *testing.T) {
	tr := newFakeTrainer(4)
	cfg := baseConfig()
	cfg.TemperatureDecay = 0.1
	sched, err := New(cfg)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	result := trainer.Result{TrainingIteration: 10, PolicyRewardMean: fullRewards()}
	if err := sched.OnIteration(tr, &result); err != nil {
		t.Fatalf("on iteration: %v", err)
	}
	state := sched.State()
	if state.Iteration != 10 {
		t.Fatalf("state iteration = %d, want 10", state.Iteration)
	}
	if math.Abs(state.Temperature-0.5) > 1e-12 {
		t.Fatalf("state temperature = %v, want 0.5", state.Temperature)
	}
	if result.Federated != "Federation with 0.5" {
		t.Fatalf("federated label = %q", result.Federated)
	}
}

func TestNewSchedulerValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"agents", func(c *Config) { c.NumAgents = 0 }},
		{"interval", func(c *Config) { c.Interval = 0 }},
		{"quantile low", func(c *Config) { c.Quantile = 0 }},
		{"quantile high", func(c *Config) { c.Quantile = 0.75 }},
		{"temperature", func(c *Config) { c.Temperature = 0 }},
		{"decay", func(c *Config) { c.TemperatureDecay = -1 }},
		{"strategy", func(c *Config) { c.Strategy = "genetic" }},
		{"resample", func(c *Config) { c.ResampleProbability = 2 }},
		{"distribution", func(c *Config) { c.ExploreParams = []string{"lr"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewSchedulerAcceptsInjectedRand(t *testing.T) {
	cfg := baseConfig()
	cfg.Rand = rand.New(rand.NewSource(42))
	if _, err := New(cfg); err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
}

func containsValue(dist explore.Distribution, v float64) bool {
	for _, candidate := range dist {
		if candidate == v {
			return true
		}
	}
	return false
}
