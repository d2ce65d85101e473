package env

// Env is a discrete-state, discrete-action episodic environment.
type Env interface {
	// Reset starts a new episode and returns the initial state.
	Reset() int
	// Step applies an action and returns the next state, the reward and
	// whether the episode terminated.
	Step(action int) (next int, reward float64, done bool)
	States() int
	Actions() int
}
