package calculate

import "gonum.org/v1/gonum/stat"

// MeanStd returns the sample mean and population standard deviation
func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(values, nil)
}

// Mean of values, 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Slope fits a least-squares line over the values at x = 0,1,2,... and returns its slope
func Slope(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, values, nil, false)
	return beta
}
