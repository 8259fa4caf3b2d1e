package baseline

import (
	"github.com/radioscan/dishpipe/internal/stats"
)

// roughChunks is the target number of running-median knots.
const roughChunks = 20

// Rough removes a coarse running-median baseline from y sampled at x.
// The signal is split into up to 20 chunks; the median of each chunk anchors
// a piecewise-linear trend which is then subtracted. Samples where mask is
// false do not contribute to the medians. It is cruder than ALS but immune to
// the sign conventions of polarized channels, which can dip below zero.
func Rough(x, y []float64, mask []bool) *Fit {
	n := len(y)
	if n < minSamples {
		return medianFallback(y, includedIndices(y, mask), FallbackShortInput)
	}

	chunk := n / roughChunks
	if chunk < 3 {
		chunk = 3
	}

	var knotX, knotY []float64
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		var vals, xs []float64
		for i := start; i < end; i++ {
			if mask != nil && !mask[i] {
				continue
			}
			vals = append(vals, y[i])
			xs = append(xs, x[i])
		}
		if len(vals) == 0 {
			continue
		}
		knotX = append(knotX, stats.Median(xs))
		knotY = append(knotY, stats.Median(vals))
	}
	if len(knotX) < 2 {
		return medianFallback(y, includedIndices(y, mask), FallbackShortInput)
	}

	trend := make([]float64, n)
	flat := make([]float64, n)
	for i := range y {
		trend[i] = interpolate(knotX, knotY, x[i])
		flat[i] = y[i] - trend[i]
	}
	return &Fit{Trend: trend, Flattened: flat}
}

// interpolate evaluates the piecewise-linear curve through (xs, ys) at x,
// holding the end values outside the knot range. xs must be increasing.
func interpolate(xs, ys []float64, x float64) float64 {
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[len(xs)-1] {
		return ys[len(ys)-1]
	}
	for i := 1; i < len(xs); i++ {
		if x <= xs[i] {
			t := (x - xs[i-1]) / (xs[i] - xs[i-1])
			return ys[i-1] + t*(ys[i]-ys[i-1])
		}
	}
	return ys[len(ys)-1]
}
