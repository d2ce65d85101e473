package env

import (
	"fmt"
	"sort"

	"fedrl/internal/model"
)

// Multi joins N independent sub-environments behind a single Reset/Step
// pair. Each agent drives its own sub-environment; per-agent termination
// is folded into a joint terminal flag that trips once every agent has
// finished its episode.
type Multi struct {
	envs []Env
	done map[model.AgentID]struct{}
}

func NewMulti(envs []Env) (*Multi, error) {
	if len(envs) == 0 {
		return nil, fmt.Errorf("at least one sub-environment is required")
	}
	states, actions := envs[0].States(), envs[0].Actions()
	for i, e := range envs[1:] {
		if e.States() != states || e.Actions() != actions {
			return nil, fmt.Errorf("sub-environment %d has spaces %dx%d, want %dx%d", i+1, e.States(), e.Actions(), states, actions)
		}
	}
	return &Multi{envs: envs, done: make(map[model.AgentID]struct{})}, nil
}

func (m *Multi) AgentCount() int { return len(m.envs) }

func (m *Multi) States() int { return m.envs[0].States() }

func (m *Multi) Actions() int { return m.envs[0].Actions() }

// Reset starts a fresh episode on every sub-environment.
func (m *Multi) Reset() map[model.AgentID]int {
	m.done = make(map[model.AgentID]struct{})
	obs := make(map[model.AgentID]int, len(m.envs))
	for i, e := range m.envs {
		obs[model.AgentID(i)] = e.Reset()
	}
	return obs
}

// Step applies each agent's action to its own sub-environment. Agents
// absent from the action map are skipped; allDone reports whether every
// agent has terminated.
func (m *Multi) Step(actions map[model.AgentID]int) (obs map[model.AgentID]int, rewards map[model.AgentID]float64, done map[model.AgentID]bool, allDone bool) {
	obs = make(map[model.AgentID]int, len(actions))
	rewards = make(map[model.AgentID]float64, len(actions))
	done = make(map[model.AgentID]bool, len(actions))

	ids := make([]model.AgentID, 0, len(actions))
	for id := range actions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		next, reward, finished := m.envs[id].Step(actions[id])
		obs[id] = next
		rewards[id] = reward
		done[id] = finished
		if finished {
			m.done[id] = struct{}{}
		}
	}
	return obs, rewards, done, len(m.done) == len(m.envs)
}
