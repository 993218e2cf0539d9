package photom

// Robust statistics shared by the photometry and zeropoint stages:
// iterative sigma-clipping, and a weighted linear fit with one
// clip-and-refit round. Both zeropoint passes run through the same
// fit routine, with only the weights differing.

import(
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// median interpolates between the two central values for even n.
func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}

// sigmaClippedStats iteratively rejects values more than sigma sample
// deviations from the running median, and returns the mean, median and
// standard deviation of what survives. Converges when a pass rejects
// nothing, or after maxIters passes.
func sigmaClippedStats(values []float64, sigma float64, maxIters int) (mean, med, std float64) {
	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}

	for iter := 0; iter < maxIters; iter++ {
		med = median(kept)
		std = stat.StdDev(kept, nil)
		if std == 0 || math.IsNaN(std) {
			break
		}

		// next must not alias kept: when a pass clips below 2 survivors
		// we keep the pre-pass values, which would otherwise have been
		// partially overwritten.
		next := make([]float64, 0, len(kept))
		for _, v := range kept {
			if math.Abs(v-med) <= sigma*std {
				next = append(next, v)
			}
		}
		if len(next) == len(kept) || len(next) < 2 {
			break
		}
		kept = next
	}

	return stat.Mean(kept, nil), median(kept), stat.StdDev(kept, nil)
}

// linearFit is a weighted least-squares straight line y = intercept + slope*x.
func linearFit(x, y, weights []float64) (slope, intercept float64, err error) {
	if len(x) < 2 {
		return 0, 0, fmt.Errorf("linear fit needs at least 2 points, got %d", len(x))
	}
	intercept, slope = stat.LinearRegression(x, y, weights, false)
	if math.IsNaN(slope) || math.IsNaN(intercept) {
		return 0, 0, fmt.Errorf("linear fit is degenerate over %d points", len(x))
	}
	return slope, intercept, nil
}

// clippedLinearFit fits a weighted straight line, sigma-clips the fit
// residuals about their clipped median, and refits on the survivors.
// keep marks which input points made the final fit.
func clippedLinearFit(x, y, weights []float64, sigma float64, maxIters int) (slope, intercept float64, keep []bool, err error) {
	slope, intercept, err = linearFit(x, y, weights)
	if err != nil {
		return 0, 0, nil, err
	}

	residuals := make([]float64, len(x))
	for i := range x {
		residuals[i] = y[i] - (intercept + slope*x[i])
	}
	_, med, std := sigmaClippedStats(residuals, sigma, maxIters)

	keep = make([]bool, len(x))
	if std == 0 || math.IsNaN(std) {
		// A perfectly flat residual distribution has nothing to clip.
		for i := range keep {
			keep[i] = true
		}
		return slope, intercept, keep, nil
	}
	kx, ky, kw := []float64{}, []float64{}, []float64{}
	for i := range x {
		if math.Abs(residuals[i]-med) < sigma*std {
			keep[i] = true
			kx = append(kx, x[i])
			ky = append(ky, y[i])
			if weights != nil {
				kw = append(kw, weights[i])
			}
		}
	}
	if weights == nil {
		kw = nil
	}

	if len(kx) == 0 {
		return 0, 0, nil, fmt.Errorf("sigma clipping rejected every point")
	}
	if len(kx) == len(x) {
		return slope, intercept, keep, nil
	}

	slope, intercept, err = linearFit(kx, ky, kw)
	if err != nil {
		return 0, 0, nil, err
	}
	return slope, intercept, keep, nil
}
