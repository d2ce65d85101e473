package explore

import (
	"fmt"
	"math"
	"math/rand"

	"fedrl/internal/model"
	"fedrl/internal/trainer"
)

// Distribution is an ordered sequence of discrete candidate values for one
// tunable hyperparameter. Order is significant: it defines the previous
// and next neighbors used by local perturbation.
type Distribution []float64

func (d Distribution) index(v float64) (int, bool) {
	for i, candidate := range d {
		if candidate == v {
			return i, true
		}
	}
	return 0, false
}

// LearningRateParam is the tunable routed through the policy's dedicated
// learning-rate accessor instead of its config mapping.
const LearningRateParam = "lr"

// Mutator implements the exploit/explore step of population-based
// training: wholesale state replacement of low performers and local
// perturbation of their hyperparameters. Every decision is resolved by an
// explicit draw from the injected random source, so a seeded source
// reproduces the exact branch sequence.
type Mutator struct {
	rng                 *rand.Rand
	resampleProbability float64
}

func NewMutator(rng *rand.Rand, resampleProbability float64) (*Mutator, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if resampleProbability < 0 || resampleProbability > 1 {
		return nil, fmt.Errorf("resample probability must be in [0, 1], got %g", resampleProbability)
	}
	return &Mutator{rng: rng, resampleProbability: resampleProbability}, nil
}

// ReplaceLowPerformers returns a collection where each low performer
// carries a copy of a uniformly drawn high performer's parameter set.
// Draws are independent per low performer and follow the order of low.
// Agents outside low pass through unchanged; an empty high band leaves
// everything untouched.
func (m *Mutator) ReplaceLowPerformers(weights model.WeightCollection, low, high []model.AgentID) model.WeightCollection {
	if len(low) == 0 || len(high) == 0 {
		return weights
	}
	out := make(model.WeightCollection, len(weights))
	for id, params := range weights {
		out[id] = params
	}
	for _, id := range low {
		donor := high[m.rng.Intn(len(high))]
		out[id] = weights[donor].Clone()
	}
	return out
}

// Perturb mutates each low performer's live hyperparameters through the
// trainer's policy accessor. Per agent and tunable parameter it draws a
// fresh exemplar high performer, then either resamples uniformly from the
// whole distribution (probability resampleProbability, or always when the
// exemplar's value is not in the distribution) or moves to a clamped
// neighbor of the exemplar's value. High performers are never written.
func (m *Mutator) Perturb(tr trainer.Trainer, low, high []model.AgentID, tunable []string, distributions map[string]Distribution) error {
	if len(low) == 0 || len(high) == 0 {
		return nil
	}
	for _, id := range low {
		policy, err := tr.GetPolicy(id)
		if err != nil {
			return fmt.Errorf("get policy for agent %d: %w", id, err)
		}
		for _, name := range tunable {
			dist := distributions[name]
			if len(dist) == 0 {
				return fmt.Errorf("no distribution declared for tunable parameter %q", name)
			}
			exemplarID := high[m.rng.Intn(len(high))]
			exemplar, err := tr.GetPolicy(exemplarID)
			if err != nil {
				return fmt.Errorf("get policy for agent %d: %w", exemplarID, err)
			}
			value := m.nextValue(readParam(exemplar, name), dist)
			writeParam(policy, name, value)
		}
	}
	return nil
}

func (m *Mutator) nextValue(exemplar float64, dist Distribution) float64 {
	idx, found := dist.index(exemplar)
	if m.rng.Float64() < m.resampleProbability || !found {
		return dist[m.rng.Intn(len(dist))]
	}
	if m.rng.Float64() < 0.5 {
		if idx > 0 {
			idx--
		}
	} else if idx < len(dist)-1 {
		idx++
	}
	return dist[idx]
}

func readParam(policy trainer.Policy, name string) float64 {
	if name == LearningRateParam {
		return policy.LearningRate()
	}
	value, ok := policy.ConfigValue(name)
	if !ok {
		// Not in the distribution either, which forces a resample.
		return math.NaN()
	}
	return value
}

func writeParam(policy trainer.Policy, name string, value float64) {
	if name == LearningRateParam {
		policy.SetLearningRate(value)
		return
	}
	policy.SetConfigValue(name, value)
}
