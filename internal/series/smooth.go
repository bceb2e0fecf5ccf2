package series

// Smooth returns the trailing moving average of series over a window of w
// points. Near the start the window shrinks to the points available. For
// w <= 1 the result is an unmodified copy.
func Smooth(series []float64, w int) []float64 {
	out := make([]float64, len(series))
	if w <= 1 {
		copy(out, series)
		return out
	}
	for i := range series {
		start := i - w + 1
		if start < 0 {
			start = 0
		}
		// Each window is summed directly, never from a running total.
		var sum float64
		for _, v := range series[start : i+1] {
			sum += v
		}
		out[i] = sum / float64(i+1-start)
	}
	return out
}
