package trainer

import "fedrl/internal/model"

// Policy is the mutable hyperparameter surface of one agent's policy. The
// learning rate has a dedicated accessor; every other tunable lives in the
// policy's configuration mapping, which includes at least "gamma" and
// "entropy_coeff".
type Policy interface {
	LearningRate() float64
	SetLearningRate(v float64)
	ConfigValue(name string) (float64, bool)
	SetConfigValue(name string, v float64)
}

// Trainer is the external training process the controller steers. All
// calls are synchronous; the controller never retries or times out.
type Trainer interface {
	// GetWeights returns the parameter sets of the requested agents, or
	// of the whole population when no ids are given.
	GetWeights(ids ...model.AgentID) (model.WeightCollection, error)
	SetWeights(weights model.WeightCollection) error
	GetPolicy(id model.AgentID) (Policy, error)
}

// Result is the per-iteration metrics record exchanged with the training
// loop. The trainer fills the read-only fields; the scheduler writes
// EpisodeRewardMean, EpisodeRewardBest, Federated and may overwrite
// TimestepsTotal from NumStepsTrained.
type Result struct {
	TrainingIteration int
	PolicyRewardMean  model.RewardSignal
	TimestepsTotal    int64
	NumStepsTrained   int64

	EpisodeRewardMean float64
	EpisodeRewardBest float64
	Federated         string
}
