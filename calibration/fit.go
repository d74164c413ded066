package calibration

import "math"

// minPredictedStdDev is the spread below which the predictions are treated
// as a single point.
const minPredictedStdDev = 1e-12

// Fit returns the least-squares line observed = scale*predicted + bias.
// Fewer than two points, or predictions without spread, give the identity.
func Fit(predicted, observed []float64) (scale, bias float64) {
	n := len(predicted)
	if n < 2 || n != len(observed) {
		return 1, 0
	}

	var mx, my float64
	for i := range predicted {
		mx += predicted[i]
		my += observed[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var sxx, sxy float64
	for i := range predicted {
		dx := predicted[i] - mx
		sxx += dx * dx
		sxy += dx * (observed[i] - my)
	}

	if math.Sqrt(sxx/float64(n)) <= minPredictedStdDev {
		return 1, 0
	}

	scale = sxy / sxx
	bias = my - scale*mx
	return scale, bias
}

// MAE returns the mean absolute error of scale*predicted+bias against
// observed. It returns 0 for empty input.
func MAE(predicted, observed []float64, scale, bias float64) float64 {
	if len(predicted) == 0 {
		return 0
	}
	var sum float64
	for i := range predicted {
		sum += math.Abs(observed[i] - (predicted[i]*scale + bias))
	}
	return sum / float64(len(predicted))
}
