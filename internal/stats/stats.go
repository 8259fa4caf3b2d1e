// Package stats provides the robust statistics used by the scan cleaning
// pipeline: median-based spread estimators, rolling-window statistics and
// boolean run decomposition.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// madToSigma rescales a median absolute deviation to the standard deviation
// of a Gaussian with the same MAD (1 / Phi^-1(3/4)).
const madToSigma = 1.4826022185056018

// Median returns the median of x. The input is not modified.
// Returns NaN for an empty slice.
func Median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// MAD returns the median absolute deviation of x, scaled to be comparable
// to a standard deviation under Gaussian assumptions.
func MAD(x []float64) float64 {
	med := Median(x)
	dev := make([]float64, len(x))
	for i, v := range x {
		dev[i] = math.Abs(v - med)
	}
	return madToSigma * Median(dev)
}

// Rolling returns overlapping windows of the given width over x. The windows
// are views into the original backing array, not copies.
// Returns nil when x is shorter than the window.
func Rolling(x []float64, window int) [][]float64 {
	if window <= 0 || len(x) < window {
		return nil
	}
	wins := make([][]float64, 0, len(x)-window+1)
	for i := 0; i+window <= len(x); i++ {
		wins = append(wins, x[i:i+window])
	}
	return wins
}

// RefMAD returns a reference spread estimate of x: the minimum scaled MAD
// over sliding windows of at least the given width (never below 20 samples).
// The minimum over local windows tracks the noise floor of the signal even
// when part of it is contaminated. Signals shorter than the window fall back
// to the whole-signal MAD.
func RefMAD(x []float64, window int) float64 {
	if window < 20 {
		window = 20
	}
	wins := Rolling(x, window)
	if wins == nil {
		return MAD(x)
	}
	ref := math.Inf(1)
	for _, w := range wins {
		if m := MAD(w); m < ref {
			ref = m
		}
	}
	return ref
}

// RefStd returns the minimum population standard deviation over sliding
// windows of the given width, a proxy for the local noise floor.
// Signals shorter than the window fall back to the whole-signal deviation.
func RefStd(x []float64, window int) float64 {
	wins := Rolling(x, window)
	if wins == nil {
		wins = [][]float64{x}
	}
	ref := math.Inf(1)
	for _, w := range wins {
		mean := stat.Mean(w, nil)
		var ss float64
		for _, v := range w {
			d := v - mean
			ss += d * d
		}
		if sd := math.Sqrt(ss / float64(len(w))); sd < ref {
			ref = sd
		}
	}
	return ref
}

// MedianFilter applies a median filter with zero padding at the boundaries
// (compatible with scipy.signal.medfilt). The kernel size must be a positive
// odd integer.
func MedianFilter(x []float64, kernel int) []float64 {
	if kernel < 1 || kernel%2 == 0 {
		panic("stats: median filter kernel must be a positive odd integer")
	}
	n := len(x)
	if n == 0 {
		return nil
	}
	half := kernel / 2
	out := make([]float64, n)
	window := make([]float64, kernel)
	for i := 0; i < n; i++ {
		for j := -half; j <= half; j++ {
			idx := i + j
			if idx < 0 || idx >= n {
				window[j+half] = 0 // zero padding
			} else {
				window[j+half] = x[idx]
			}
		}
		out[i] = Median(window)
	}
	return out
}

// ContiguousRegions returns the [start, end) index pairs of the maximal runs
// of true values in cond. An empty input yields no regions.
func ContiguousRegions(cond []bool) [][2]int {
	var regions [][2]int
	start := -1
	for i, c := range cond {
		switch {
		case c && start < 0:
			start = i
		case !c && start >= 0:
			regions = append(regions, [2]int{start, i})
			start = -1
		}
	}
	if start >= 0 {
		regions = append(regions, [2]int{start, len(cond)})
	}
	return regions
}

// Invert returns the element-wise negation of mask.
func Invert(mask []bool) []bool {
	out := make([]bool, len(mask))
	for i, m := range mask {
		out[i] = !m
	}
	return out
}

// MedianDiff returns the median of the consecutive differences of x.
// With sorted set, the input is sorted first, which turns the result into a
// robust estimate of the sample spacing; unsorted, the sign of the result
// follows the ordering of the data. Returns NaN for fewer than two samples.
func MedianDiff(x []float64, sorted bool) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	if sorted {
		sort.Float64s(s)
	}
	diff := make([]float64, len(s)-1)
	for i := 1; i < len(s); i++ {
		diff[i-1] = s[i] - s[i-1]
	}
	return Median(diff)
}

// Total returns the sum of x.
func Total(x []float64) float64 {
	return floats.Sum(x)
}
