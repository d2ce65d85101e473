package federate

import "errors"

var (
	// ErrMismatchedPopulation reports diverging agent sets between a
	// weight collection and a reward signal.
	ErrMismatchedPopulation = errors.New("weight and reward populations do not match")

	// ErrDegenerateRewardSignal reports a reward signal that cannot be
	// turned into aggregation coefficients.
	ErrDegenerateRewardSignal = errors.New("degenerate reward signal")

	// ErrInvalidQuantileConfiguration reports low/high bands that would
	// overlap for the given quantile fraction and population size.
	ErrInvalidQuantileConfiguration = errors.New("invalid quantile configuration")
)
