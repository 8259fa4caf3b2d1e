// Package baseline estimates and removes slow instrumental drifts from noisy
// one-dimensional signals. The main tool is an asymmetric least squares (ALS)
// smoother that tracks the lower envelope of the signal, so that positive
// excursions (sources, bursts) do not pull the baseline up.
package baseline

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/radioscan/dishpipe/internal/stats"
)

const (
	// DefaultLambda is the stiffness used for final light-curve flattening.
	DefaultLambda = 1e11
	// SoftLambda suits smoother, structure-rich curves such as the
	// per-channel variability spectrum.
	SoftLambda = 1000

	defaultAsymmetry = 0.001
	defaultMaxIter   = 10

	// minSamples is the point below which solving the penalized system is
	// not meaningful; shorter inputs get a plain median subtraction.
	minSamples = 10

	purgeSigmas  = 5
	offsetSigmas = 10
)

// Fallback reports why a fit did not run the full ALS solver. The caller can
// inspect it instead of relying on errors for expected degenerate inputs.
type Fallback int

const (
	// FallbackNone means the penalized system was solved normally.
	FallbackNone Fallback = iota
	// FallbackShortInput means fewer than 10 usable samples were available
	// and the median was subtracted instead.
	FallbackShortInput
	// FallbackDegenerate means the smoothing system could not be factorized
	// (e.g. constant input with vanishing weights) and the median was
	// subtracted instead.
	FallbackDegenerate
)

// Fit is the outcome of a baseline estimation.
type Fit struct {
	Trend      []float64 // estimated baseline, same length as the input
	Flattened  []float64 // input minus Trend
	Fallback   Fallback
	Iterations int // reweighting iterations actually performed
}

type config struct {
	lambda     float64
	asymmetry  float64
	maxIter    int
	mask       []bool
	purge      bool
	offsetCorr bool
}

// Option configures the ALS estimator.
type Option func(*config)

// WithLambda sets the smoothness penalty. Larger values produce a stiffer
// baseline.
func WithLambda(lambda float64) Option {
	return func(c *config) { c.lambda = lambda }
}

// WithAsymmetry sets the weight p given to samples above the baseline;
// samples below receive 1-p.
func WithAsymmetry(p float64) Option {
	return func(c *config) { c.asymmetry = p }
}

// WithMaxIterations caps the number of reweighting iterations.
func WithMaxIterations(n int) Option {
	return func(c *config) { c.maxIter = n }
}

// WithMask excludes samples where mask is false from the fit. The baseline is
// interpolated across excluded regions.
func WithMask(mask []bool) Option {
	return func(c *config) { c.mask = mask }
}

// WithOutlierPurging toggles the preliminary fit that discards samples whose
// residual exceeds 5 robust sigmas before the final fit. Enabled by default.
func WithOutlierPurging(enabled bool) Option {
	return func(c *config) { c.purge = enabled }
}

// WithOffsetCorrection toggles re-centring of the baseline on the median
// residual of samples close to the fit. Without it, repeated subtraction
// walks a flat signal upward by roughly one noise amplitude per pass.
// Enabled by default.
func WithOffsetCorrection(enabled bool) Option {
	return func(c *config) { c.offsetCorr = enabled }
}

// ALS fits a lower-envelope baseline to y sampled at x and returns both the
// baseline and the flattened signal. x and y must have the same length.
//
// The baseline z minimizes sum_i w_i (y_i - z_i)^2 + lambda * sum (d2 z)^2,
// where the weights are re-derived from the sign of the residual on each
// iteration: p for samples above the baseline, 1-p below.
func ALS(x, y []float64, opts ...Option) *Fit {
	cfg := config{
		lambda:     DefaultLambda,
		asymmetry:  defaultAsymmetry,
		maxIter:    defaultMaxIter,
		purge:      true,
		offsetCorr: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	included := includedIndices(y, cfg.mask)
	if len(included) < minSamples {
		return medianFallback(y, included, FallbackShortInput)
	}

	if cfg.purge {
		z, _, ok := solveSubset(y, included, cfg)
		if !ok {
			return medianFallback(y, included, FallbackDegenerate)
		}
		kept := make([]int, 0, len(included))
		resid := make([]float64, len(included))
		for j, idx := range included {
			resid[j] = y[idx] - z[j]
		}
		sigma := stats.MAD(resid)
		center := stats.Median(resid)
		for j, idx := range included {
			if sigma == 0 || math.Abs(resid[j]-center) <= purgeSigmas*sigma {
				kept = append(kept, idx)
			}
		}
		if len(kept) < minSamples {
			return medianFallback(y, included, FallbackShortInput)
		}
		included = kept
	}

	z, iters, ok := solveSubset(y, included, cfg)
	if !ok {
		return medianFallback(y, included, FallbackDegenerate)
	}

	trend := spread(x, len(y), included, z)

	if cfg.offsetCorr {
		resid := make([]float64, len(included))
		for j, idx := range included {
			resid[j] = y[idx] - trend[idx]
		}
		sigma := stats.MAD(resid)
		var near []float64
		for _, r := range resid {
			if sigma == 0 || math.Abs(r) < offsetSigmas*sigma {
				near = append(near, r)
			}
		}
		if len(near) == 0 {
			near = resid
		}
		offset := stats.Median(near)
		for i := range trend {
			trend[i] += offset
		}
	}

	flat := make([]float64, len(y))
	for i := range y {
		flat[i] = y[i] - trend[i]
	}
	return &Fit{Trend: trend, Flattened: flat, Iterations: iters}
}

// includedIndices returns the indices that take part in the fit: inside the
// mask (if any) and finite.
func includedIndices(y []float64, mask []bool) []int {
	idx := make([]int, 0, len(y))
	for i, v := range y {
		if mask != nil && !mask[i] {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

func medianFallback(y []float64, included []int, reason Fallback) *Fit {
	vals := make([]float64, 0, len(included))
	for _, idx := range included {
		vals = append(vals, y[idx])
	}
	if len(vals) == 0 {
		vals = y
	}
	med := stats.Median(vals)
	trend := make([]float64, len(y))
	flat := make([]float64, len(y))
	for i := range y {
		trend[i] = med
		flat[i] = y[i] - med
	}
	return &Fit{Trend: trend, Flattened: flat, Fallback: reason}
}

// solveSubset runs the reweighting loop on the subset of y selected by
// included. It returns the baseline on the subset and the iteration count;
// ok is false when the banded system cannot be factorized.
func solveSubset(y []float64, included []int, cfg config) (z []float64, iters int, ok bool) {
	m := len(included)
	ys := make([]float64, m)
	for j, idx := range included {
		ys[j] = y[idx]
	}

	w := make([]float64, m)
	for i := range w {
		w[i] = 1
	}

	z = make([]float64, m)
	b := mat.NewVecDense(m, nil)
	sol := mat.NewVecDense(m, nil)

	for iters = 0; iters < cfg.maxIter; iters++ {
		a := mat.NewSymBandDense(m, 2, nil)

		// lambda * D2' D2, accumulated row by row of the second-difference
		// operator.
		c := [3]float64{1, -2, 1}
		for r := 0; r+2 < m; r++ {
			for p := 0; p < 3; p++ {
				for q := p; q < 3; q++ {
					i, j := r+p, r+q
					a.SetSymBand(i, j, a.At(i, j)+cfg.lambda*c[p]*c[q])
				}
			}
		}
		for i := 0; i < m; i++ {
			a.SetSymBand(i, i, a.At(i, i)+w[i])
			b.SetVec(i, w[i]*ys[i])
		}

		var ch mat.BandCholesky
		if !ch.Factorize(a) {
			return nil, iters, false
		}
		if err := ch.SolveVecTo(sol, b); err != nil {
			return nil, iters, false
		}
		copy(z, sol.RawVector().Data)

		// Asymmetric reweighting: samples above the baseline are nearly
		// ignored, samples at or below anchor it.
		changed := false
		for i := range w {
			nw := 1 - cfg.asymmetry
			if ys[i] > z[i] {
				nw = cfg.asymmetry
			}
			if nw != w[i] {
				w[i] = nw
				changed = true
			}
		}
		if !changed {
			iters++
			break
		}
	}
	return z, iters, true
}

// spread expands a baseline computed on a subset of samples back to the full
// grid, interpolating linearly in x across excluded regions and holding the
// boundary values beyond the first and last fitted samples.
func spread(x []float64, n int, included []int, z []float64) []float64 {
	trend := make([]float64, n)
	for j, idx := range included {
		trend[idx] = z[j]
	}

	first, last := included[0], included[len(included)-1]
	for i := 0; i < first; i++ {
		trend[i] = trend[first]
	}
	for i := last + 1; i < n; i++ {
		trend[i] = trend[last]
	}
	for j := 1; j < len(included); j++ {
		lo, hi := included[j-1], included[j]
		if hi == lo+1 {
			continue
		}
		for i := lo + 1; i < hi; i++ {
			var t float64
			if x[hi] != x[lo] {
				t = (x[i] - x[lo]) / (x[hi] - x[lo])
			}
			trend[i] = trend[lo] + t*(trend[hi]-trend[lo])
		}
	}
	return trend
}
