package trainer

import (
	"context"
	"fmt"
	"math/rand"

	"fedrl/internal/env"
	"fedrl/internal/model"
)

// QTableParam is the parameter name under which each agent's Q-table is
// exposed in its ParameterSet.
const QTableParam = "q_table"

// TabularConfig configures the in-process multi-agent Q-learning trainer.
type TabularConfig struct {
	Envs                 []env.Env
	EpisodesPerIteration int
	MaxStepsPerEpisode   int
	Seed                 int64
	LearningRate         float64
	Gamma                float64
	Epsilon              float64
	EntropyCoeff         float64
}

// Tabular trains one tabular Q-learning policy per agent against its own
// sub-environment and reports per-agent mean episode reward as the reward
// signal. It exists so the federation controller can be exercised against
// a live weight-bearing trainer; it is a collaborator of the core, not
// part of it.
type Tabular struct {
	multi     *env.Multi
	rng       *rand.Rand
	qtables   []model.Tensor
	policies  []*tabularPolicy
	epsilon   float64
	episodes  int
	maxSteps  int
	iteration int
	timesteps int64
}

type tabularPolicy struct {
	lr     float64
	config map[string]float64
}

func (p *tabularPolicy) LearningRate() float64     { return p.lr }
func (p *tabularPolicy) SetLearningRate(v float64) { p.lr = v }

func (p *tabularPolicy) ConfigValue(name string) (float64, bool) {
	v, ok := p.config[name]
	return v, ok
}

func (p *tabularPolicy) SetConfigValue(name string, v float64) {
	p.config[name] = v
}

func NewTabular(cfg TabularConfig) (*Tabular, error) {
	multi, err := env.NewMulti(cfg.Envs)
	if err != nil {
		return nil, err
	}
	if cfg.EpisodesPerIteration <= 0 {
		return nil, fmt.Errorf("episodes per iteration must be > 0")
	}
	if cfg.MaxStepsPerEpisode <= 0 {
		return nil, fmt.Errorf("max steps per episode must be > 0")
	}
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		return nil, fmt.Errorf("learning rate must be in (0, 1], got %g", cfg.LearningRate)
	}
	if cfg.Gamma <= 0 || cfg.Gamma > 1 {
		return nil, fmt.Errorf("gamma must be in (0, 1], got %g", cfg.Gamma)
	}
	if cfg.Epsilon < 0 || cfg.Epsilon > 1 {
		return nil, fmt.Errorf("epsilon must be in [0, 1], got %g", cfg.Epsilon)
	}

	n := multi.AgentCount()
	qtables := make([]model.Tensor, n)
	policies := make([]*tabularPolicy, n)
	for i := 0; i < n; i++ {
		qtables[i] = model.NewTensor(multi.States(), multi.Actions())
		policies[i] = &tabularPolicy{
			lr: cfg.LearningRate,
			config: map[string]float64{
				"gamma":         cfg.Gamma,
				"entropy_coeff": cfg.EntropyCoeff,
			},
		}
	}
	return &Tabular{
		multi:    multi,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		qtables:  qtables,
		policies: policies,
		epsilon:  cfg.Epsilon,
		episodes: cfg.EpisodesPerIteration,
		maxSteps: cfg.MaxStepsPerEpisode,
	}, nil
}

func (t *Tabular) AgentCount() int { return t.multi.AgentCount() }

// TrainIteration runs the configured number of episodes and returns the
// iteration's metrics record.
func (t *Tabular) TrainIteration(ctx context.Context) (Result, error) {
	n := t.multi.AgentCount()
	totals := make([]float64, n)
	var steps int64

	for episode := 0; episode < t.episodes; episode++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		states := t.multi.Reset()
		finished := make(map[model.AgentID]bool, n)
		for step := 0; step < t.maxSteps; step++ {
			actions := make(map[model.AgentID]int, n)
			for i := 0; i < n; i++ {
				id := model.AgentID(i)
				if finished[id] {
					continue
				}
				actions[id] = t.selectAction(i, states[id])
			}
			if len(actions) == 0 {
				break
			}
			obs, rewards, done, allDone := t.multi.Step(actions)
			for id := range actions {
				t.update(int(id), states[id], actions[id], rewards[id], obs[id], done[id])
				totals[id] += rewards[id]
				states[id] = obs[id]
				if done[id] {
					finished[id] = true
				}
				steps++
			}
			if allDone {
				break
			}
		}
	}

	t.iteration++
	t.timesteps += steps

	signal := make(model.RewardSignal, n)
	for i := 0; i < n; i++ {
		signal[model.AgentID(i)] = totals[i] / float64(t.episodes)
	}
	return Result{
		TrainingIteration: t.iteration,
		PolicyRewardMean:  signal,
		TimestepsTotal:    t.timesteps,
		NumStepsTrained:   t.timesteps,
	}, nil
}

func (t *Tabular) selectAction(agent, state int) int {
	actions := t.multi.Actions()
	if t.rng.Float64() < t.epsilon {
		return t.rng.Intn(actions)
	}
	q := t.qtables[agent]
	best, bestValue := 0, q.Data[state*actions]
	for a := 1; a < actions; a++ {
		if v := q.Data[state*actions+a]; v > bestValue {
			best, bestValue = a, v
		}
	}
	return best
}

func (t *Tabular) update(agent, state, action int, reward float64, next int, done bool) {
	actions := t.multi.Actions()
	q := t.qtables[agent]
	policy := t.policies[agent]
	gamma := policy.config["gamma"]

	target := reward
	if !done {
		bestNext := q.Data[next*actions]
		for a := 1; a < actions; a++ {
			if v := q.Data[next*actions+a]; v > bestNext {
				bestNext = v
			}
		}
		target += gamma * bestNext
	}
	idx := state*actions + action
	q.Data[idx] += policy.lr * (target - q.Data[idx])
}

func (t *Tabular) GetWeights(ids ...model.AgentID) (model.WeightCollection, error) {
	if len(ids) == 0 {
		ids = make([]model.AgentID, t.multi.AgentCount())
		for i := range ids {
			ids[i] = model.AgentID(i)
		}
	}
	out := make(model.WeightCollection, len(ids))
	for _, id := range ids {
		if int(id) < 0 || int(id) >= len(t.qtables) {
			return nil, fmt.Errorf("unknown agent %d", id)
		}
		out[id] = model.ParameterSet{QTableParam: t.qtables[id].Clone()}
	}
	return out, nil
}

func (t *Tabular) SetWeights(weights model.WeightCollection) error {
	for _, id := range weights.AgentIDs() {
		if int(id) < 0 || int(id) >= len(t.qtables) {
			return fmt.Errorf("unknown agent %d", id)
		}
		tensor, ok := weights[id][QTableParam]
		if !ok {
			return fmt.Errorf("agent %d parameter set is missing %q", id, QTableParam)
		}
		if !tensor.SameShape(t.qtables[id]) {
			return fmt.Errorf("agent %d %q shape mismatch", id, QTableParam)
		}
		t.qtables[id] = tensor.Clone()
	}
	return nil
}

func (t *Tabular) GetPolicy(id model.AgentID) (Policy, error) {
	if int(id) < 0 || int(id) >= len(t.policies) {
		return nil, fmt.Errorf("unknown agent %d", id)
	}
	return t.policies[id], nil
}
