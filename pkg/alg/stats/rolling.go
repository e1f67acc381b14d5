package stats

// Rolling applies reduce to a trailing window of size values and returns one
// result per input value.
//
// The window starts pre-filled with the first size values, so early outputs
// already look ahead into the series instead of reducing a short prefix.
// Each input value is then pushed (evicting the oldest once size values are
// held) before reduce sees the window. reduce must not modify or retain its
// argument. A non-positive size returns nil.
func Rolling(values []float64, size int, reduce func(window []float64) float64) []float64 {
	if size <= 0 || len(values) == 0 {
		return nil
	}

	window := make([]float64, 0, size)
	window = append(window, values[:min(size, len(values))]...)

	out := make([]float64, 0, len(values))

	for _, v := range values {
		if len(window) == size {
			copy(window, window[1:])
			window = window[:size-1]
		}

		window = append(window, v)
		out = append(out, reduce(window))
	}

	return out
}

// RollingMedian is Rolling with Median as the reducer.
func RollingMedian(values []float64, size int) []float64 {
	return Rolling(values, size, Median)
}

// Last returns the final element of values, or 0 when empty.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	return values[len(values)-1]
}
