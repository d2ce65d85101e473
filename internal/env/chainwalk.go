package env

import (
	"fmt"
	"math/rand"
)

// ChainWalk is a stochastic linear chain of states. The agent starts in
// the middle; action 0 moves left, action 1 moves right, and either move
// slips in the opposite direction with probability Slip. Reaching the
// right end pays 1.0, the left end pays 0.1; both terminate the episode.
type ChainWalk struct {
	length int
	slip   float64
	rng    *rand.Rand
	pos    int
}

func NewChainWalk(length int, slip float64, seed int64) (*ChainWalk, error) {
	if length < 3 {
		return nil, fmt.Errorf("chain length must be >= 3, got %d", length)
	}
	if slip < 0 || slip >= 1 {
		return nil, fmt.Errorf("slip probability must be in [0, 1), got %g", slip)
	}
	return &ChainWalk{
		length: length,
		slip:   slip,
		rng:    rand.New(rand.NewSource(seed)),
		pos:    length / 2,
	}, nil
}

func (c *ChainWalk) States() int { return c.length }

func (c *ChainWalk) Actions() int { return 2 }

func (c *ChainWalk) Reset() int {
	c.pos = c.length / 2
	return c.pos
}

func (c *ChainWalk) Step(action int) (int, float64, bool) {
	direction := -1
	if action != 0 {
		direction = 1
	}
	if c.slip > 0 && c.rng.Float64() < c.slip {
		direction = -direction
	}
	c.pos += direction
	switch {
	case c.pos <= 0:
		c.pos = 0
		return c.pos, 0.1, true
	case c.pos >= c.length-1:
		c.pos = c.length - 1
		return c.pos, 1.0, true
	default:
		return c.pos, 0, false
	}
}
