package federate

import (
	"fmt"
	"math"
	"sort"

	"fedrl/internal/model"
)

// Select partitions the reporting agents into a low-performing and a
// high-performing band by sorted rank. The low band holds the first
// ceil(q*N) agents in ascending reward order, the high band the last
// floor(q*N). Ties break by AgentID ascending so the partition is
// reproducible. An empty signal or a band that rounds to zero is a soft
// outcome, not an error; overlapping bands report
// ErrInvalidQuantileConfiguration.
func Select(rewards model.RewardSignal, q float64) (low, high []model.AgentID, err error) {
	if q <= 0 || q >= 1 {
		return nil, nil, fmt.Errorf("%w: quantile fraction %g outside (0, 1)", ErrInvalidQuantileConfiguration, q)
	}
	n := len(rewards)
	if n == 0 {
		return nil, nil, nil
	}

	ids := rewards.AgentIDs()
	sort.SliceStable(ids, func(i, j int) bool {
		ri, rj := rewards[ids[i]], rewards[ids[j]]
		if ri == rj {
			return ids[i] < ids[j]
		}
		return ri < rj
	})

	lowCount := int(math.Ceil(q * float64(n)))
	highCount := int(math.Floor(q * float64(n)))
	if lowCount > n-highCount {
		return nil, nil, fmt.Errorf("%w: bands overlap for q=%g with %d agents", ErrInvalidQuantileConfiguration, q, n)
	}

	if lowCount > 0 {
		low = append([]model.AgentID(nil), ids[:lowCount]...)
	}
	if highCount > 0 {
		high = append([]model.AgentID(nil), ids[n-highCount:]...)
	}
	return low, high, nil
}
