package model

import "sort"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// AgentID identifies one member of the training population. IDs are dense
// integers in [0, numAgents) and stable for the lifetime of a run.
type AgentID int

// Tensor is a row-major numeric array with an explicit shape.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// NewTensor returns a zero-filled tensor with the given shape.
func NewTensor(shape ...int) Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, size),
	}
}

func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64(nil), t.Data...),
	}
}

func (t Tensor) SameShape(other Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i, dim := range t.Shape {
		if other.Shape[i] != dim {
			return false
		}
	}
	return len(t.Data) == len(other.Data)
}

// ParameterSet maps parameter names to tensors; one per agent. Agent
// identity is carried by the enclosing WeightCollection key, never inside
// the parameter names.
type ParameterSet map[string]Tensor

func (p ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(p))
	for name, tensor := range p {
		out[name] = tensor.Clone()
	}
	return out
}

// Names returns the parameter names in ascending order.
func (p ParameterSet) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SameArchitecture reports whether both sets declare the same parameter
// names with matching tensor shapes.
func (p ParameterSet) SameArchitecture(other ParameterSet) bool {
	if len(p) != len(other) {
		return false
	}
	for name, tensor := range p {
		peer, ok := other[name]
		if !ok || !tensor.SameShape(peer) {
			return false
		}
	}
	return true
}

// WeightCollection associates each agent with its parameter set.
type WeightCollection map[AgentID]ParameterSet

func (w WeightCollection) Clone() WeightCollection {
	out := make(WeightCollection, len(w))
	for id, params := range w {
		out[id] = params.Clone()
	}
	return out
}

// AgentIDs returns the population in ascending id order.
func (w WeightCollection) AgentIDs() []AgentID {
	ids := make([]AgentID, 0, len(w))
	for id := range w {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RewardSignal maps agents to their mean reward for one iteration. An
// empty signal means no agent reported and downstream consumers skip.
type RewardSignal map[AgentID]float64

// AgentIDs returns the reporting agents in ascending id order.
func (r RewardSignal) AgentIDs() []AgentID {
	ids := make([]AgentID, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IterationRecord is the persisted observation of one training iteration
// after the scheduler annotated it.
type IterationRecord struct {
	VersionedRecord
	Iteration       int     `json:"iteration"`
	Federated       string  `json:"federated"`
	RewardMean      float64 `json:"reward_mean"`
	RewardBest      float64 `json:"reward_best"`
	HasRewardSignal bool    `json:"has_reward_signal"`
	TimestepsTotal  int64   `json:"timesteps_total"`
	Temperature     float64 `json:"temperature"`
}

// RunSummary describes one completed experiment run.
type RunSummary struct {
	VersionedRecord
	RunID           string  `json:"run_id"`
	CreatedAtUTC    string  `json:"created_at_utc"`
	Strategy        string  `json:"strategy"`
	NumAgents       int     `json:"num_agents"`
	Iterations      int     `json:"iterations"`
	FinalRewardMean float64 `json:"final_reward_mean"`
	FinalRewardBest float64 `json:"final_reward_best"`
	TimestepsTotal  int64   `json:"timesteps_total"`
}
