package schedule

// TemperatureAt computes the softmax temperature in effect at the given
// iteration. The decay is a pure function of the iteration counter, never
// accumulated state: base / (1 + decay*iteration). A decay of 0 keeps the
// base temperature constant.
func TemperatureAt(base, decay float64, iteration int) float64 {
	if decay <= 0 {
		return base
	}
	return base / (1 + decay*float64(iteration))
}
