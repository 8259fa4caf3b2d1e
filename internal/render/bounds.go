package render

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	// For 20 samples:
	// - 5% percentile  = 1 sample
	// - 95% percentile = 19th sample
	minimumSampleCount = 20

	boundsMargin = 0.1 // widen the percentile range by 10% on each side
)

// Bounds represents the display range of a color map. Intensities at or
// below Min map to the first color, at or above Max to the last.
type Bounds struct {
	Min float64
	Max float64
}

// PercentileBounds derives display bounds from the 5th and 95th percentiles
// of the finite samples, widened by a small margin so outliers do not
// dominate the color range. With too few samples it falls back to the full
// data range.
func PercentileBounds(values []float64) Bounds {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return Bounds{Min: 0, Max: 1}
	}

	sort.Float64s(finite)

	if len(finite) < minimumSampleCount {
		return padBounds(finite[0], finite[len(finite)-1])
	}

	lo := stat.Quantile(0.05, stat.LinInterp, finite, nil)
	hi := stat.Quantile(0.95, stat.LinInterp, finite, nil)
	return padBounds(lo, hi)
}

// ImageBounds computes percentile bounds over a whole dynamical spectrum.
func ImageBounds(img [][]float64) Bounds {
	var flat []float64
	for _, row := range img {
		flat = append(flat, row...)
	}
	return PercentileBounds(flat)
}

func padBounds(lo, hi float64) Bounds {
	margin := (hi - lo) * boundsMargin
	if margin == 0 {
		// Flat data still needs a non-degenerate range.
		margin = math.Max(math.Abs(lo)*boundsMargin, 1)
	}
	return Bounds{Min: lo - margin, Max: hi + margin}
}
