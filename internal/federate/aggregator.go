package federate

import (
	"fmt"
	"math"

	"fedrl/internal/model"
)

// Mode selects how per-agent rewards become aggregation coefficients.
type Mode string

const (
	// ModeRewardProportional weighs each agent by reward_i / sum(rewards).
	ModeRewardProportional Mode = "reward_proportional"
	// ModeSoftmax weighs each agent by a softmax over rewards, sharpened
	// by 1/Temperature.
	ModeSoftmax Mode = "softmax"
)

// Aggregator merges a population's parameter sets into one set using a
// reward-driven weighted average. Aggregate is pure: it never mutates its
// inputs and involves no randomness.
type Aggregator struct {
	Mode Mode
	// Temperature controls softmax sharpness; beta = 1/Temperature.
	// Required > 0 in ModeSoftmax, ignored otherwise.
	Temperature float64
}

// Aggregate computes the elementwise weighted sum of all agents' tensors.
// The weight and reward key sets must match exactly; output shapes equal
// each input agent's shapes.
func (a Aggregator) Aggregate(weights model.WeightCollection, rewards model.RewardSignal) (model.ParameterSet, error) {
	if len(weights) != len(rewards) {
		return nil, fmt.Errorf("%w: %d weight sets vs %d rewards", ErrMismatchedPopulation, len(weights), len(rewards))
	}
	ids := weights.AgentIDs()
	for _, id := range ids {
		if _, ok := rewards[id]; !ok {
			return nil, fmt.Errorf("%w: agent %d has weights but no reward", ErrMismatchedPopulation, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty population", ErrDegenerateRewardSignal)
	}

	rewardValues := make([]float64, len(ids))
	for i, id := range ids {
		rewardValues[i] = rewards[id]
	}

	coefficients, err := a.coefficients(rewardValues)
	if err != nil {
		return nil, err
	}

	reference := weights[ids[0]]
	for _, id := range ids[1:] {
		if !reference.SameArchitecture(weights[id]) {
			return nil, fmt.Errorf("agent %d parameter shapes diverge from agent %d", id, ids[0])
		}
	}

	merged := make(model.ParameterSet, len(reference))
	for _, name := range reference.Names() {
		sum := model.NewTensor(reference[name].Shape...)
		for i, id := range ids {
			source := weights[id][name]
			for j, v := range source.Data {
				sum.Data[j] += coefficients[i] * v
			}
		}
		merged[name] = sum
	}
	return merged, nil
}

func (a Aggregator) coefficients(rewards []float64) ([]float64, error) {
	switch a.Mode {
	case ModeRewardProportional:
		return proportionalCoefficients(rewards)
	case ModeSoftmax:
		if a.Temperature <= 0 {
			return nil, fmt.Errorf("softmax temperature must be > 0, got %g", a.Temperature)
		}
		return softmaxCoefficients(rewards, 1/a.Temperature), nil
	default:
		return nil, fmt.Errorf("unsupported aggregation mode: %s", a.Mode)
	}
}

func proportionalCoefficients(rewards []float64) ([]float64, error) {
	total := 0.0
	for _, r := range rewards {
		total += r
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: rewards sum to zero in reward-proportional mode", ErrDegenerateRewardSignal)
	}
	out := make([]float64, len(rewards))
	for i, r := range rewards {
		out[i] = r / total
	}
	return out, nil
}

// softmaxCoefficients subtracts the maximum reward before exponentiating.
// The shift keeps exp in range for large beta or reward magnitudes and
// cancels out in the normalization.
func softmaxCoefficients(rewards []float64, beta float64) []float64 {
	maxReward := rewards[0]
	for _, r := range rewards[1:] {
		if r > maxReward {
			maxReward = r
		}
	}
	out := make([]float64, len(rewards))
	total := 0.0
	for i, r := range rewards {
		out[i] = math.Exp(beta * (r - maxReward))
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}
