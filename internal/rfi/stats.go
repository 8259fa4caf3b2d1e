package rfi

import (
	"errors"
	"fmt"
	"math"

	"github.com/radioscan/dishpipe/internal/baseline"
	"github.com/radioscan/dishpipe/internal/stats"
)

// ErrAllChannelsMasked means the variability thresholds rejected every
// channel. Proceeding with an empty mask would produce an identically zero
// light curve, so the scan must be skipped (or the noise threshold revised).
var ErrAllChannelsMasked = errors.New("variability mask rejected all channels")

const (
	// DefaultNoiseThreshold is the rejection level in units of the
	// reference MAD of the variability curve.
	DefaultNoiseThreshold = 5.0
	// DefaultSmoothingWindow is the width of the variability smoothing
	// window, as a fraction of the number of channels.
	DefaultSmoothingWindow = 0.05

	// refMADWindow is the minimum window used for the reference MAD of the
	// variability curve.
	refMADWindow = 20

	// minSamplesForMasking is the number of spectra below which the
	// variability statistic is too poorly determined to mask on.
	minSamplesForMasking = 10

	// noFilterThreshold stands in for the noise threshold when filtering
	// is disabled: large enough that no channel is ever rejected.
	noFilterThreshold = 1e32
)

// Options configures the variability detector for one scan.
type Options struct {
	// Selection is the frequency sub-band to retain, in the syntax of
	// ParseSelection. Empty selects the central 80% of the band.
	Selection string
	// Bandwidth of the backend in MHz.
	Bandwidth float64
	// NoiseThreshold in reference-MAD units; DefaultNoiseThreshold when 0.
	NoiseThreshold float64
	// SmoothingWindow as a fraction of the channel count;
	// DefaultSmoothingWindow when 0.
	SmoothingWindow float64
	// GoodMask forces channels to be kept regardless of their variability,
	// e.g. channels containing a spectral line of interest.
	GoodMask []bool
	// BaselineALS smooths the variability curve with a soft asymmetric
	// least squares fit instead of the default median filter.
	BaselineALS bool
	// NoFilter disables variability rejection; only the static frequency
	// mask is applied.
	NoFilter bool
	// Length of the scan in seconds; 1 when unset.
	Length float64
	// KeepImage retains the per-sample relative-deviation image in the
	// results, for diagnostic rendering. It is nbin*nsamples large.
	KeepImage bool
}

// Stats holds the per-channel variability statistics of one scan. All fields
// are exported so a Stats can be parked by the spill package between the
// statistics and cleaning stages.
type Stats struct {
	Samples  int     // number of spectra in the scan
	Channels int     // channels per spectrum
	DeltaNu  float64 // channel width, MHz
	Length   float64 // scan duration, seconds

	Selection Range

	MeanSpec    []float64 // time-averaged spectrum
	SpectralVar []float64 // per-channel relative rms variability
	Baseline    []float64 // smoothed variability curve
	ThreshLow   []float64
	ThreshHigh  []float64

	FreqMask  []bool // static, from the frequency selection
	VarMask   []bool // dynamic, from the variability thresholds
	WholeMask []bool // FreqMask AND VarMask, with GoodMask forced in

	// NonFinite lists channels whose variability was NaN or Inf, which
	// happens when the mean spectrum is at or near zero there. They are
	// always rejected.
	NonFinite []int

	// Skipped reports that fewer than 10 spectra were available and only
	// the static frequency mask was applied.
	Skipped bool

	// VarImg is the per-sample relative deviation image; nil unless
	// requested via Options.KeepImage.
	VarImg [][]float64
}

// SpillSize estimates the in-memory footprint in bytes.
func (s *Stats) SpillSize() int {
	n := 8 * (5*len(s.MeanSpec) + len(s.NonFinite))
	n += 3 * len(s.FreqMask)
	for _, row := range s.VarImg {
		n += 8 * len(row)
	}
	return n
}

// ComputeStats derives the variability statistics and channel masks of a
// dynamical spectrum: dyn[i][j] is the power in channel j of sample i.
//
// With fewer than 10 samples the variability statistic is meaningless, so the
// masking step is skipped and the returned Stats carries only the frequency
// mask, with Skipped set. This is a degraded mode, not an error.
func ComputeStats(dyn [][]float64, opts Options) (*Stats, error) {
	nsamples := len(dyn)
	if nsamples == 0 {
		return nil, fmt.Errorf("empty dynamical spectrum")
	}
	nbin := len(dyn[0])
	for i, row := range dyn {
		if len(row) != nbin {
			return nil, fmt.Errorf("ragged dynamical spectrum: sample %d has %d channels, want %d", i, len(row), nbin)
		}
	}

	sel, err := ParseSelection(opts.Selection, opts.Bandwidth, nbin)
	if err != nil {
		return nil, err
	}

	threshold := opts.NoiseThreshold
	if threshold == 0 {
		threshold = DefaultNoiseThreshold
	}
	if opts.NoFilter {
		threshold = noFilterThreshold
	}
	smoothing := opts.SmoothingWindow
	if smoothing == 0 {
		smoothing = DefaultSmoothingWindow
	}
	length := opts.Length
	if length == 0 {
		length = 1
	}

	meanspec := make([]float64, nbin)
	for _, row := range dyn {
		for j, v := range row {
			meanspec[j] += v
		}
	}
	for j := range meanspec {
		meanspec[j] /= float64(nsamples)
	}

	freqmask := sel.FrequencyMask(nbin)

	st := &Stats{
		Samples:   nsamples,
		Channels:  nbin,
		DeltaNu:   opts.Bandwidth / float64(nbin),
		Length:    length,
		Selection: sel,
		MeanSpec:  meanspec,
		FreqMask:  freqmask,
		WholeMask: append([]bool(nil), freqmask...),
	}

	if nsamples < minSamplesForMasking {
		st.Skipped = true
		return st, nil
	}

	// Relative rms variability per channel. Channels with a vanishing mean
	// produce non-finite values here; they are recorded and rejected rather
	// than being allowed to poison the smoothing below.
	specvar := make([]float64, nbin)
	for j := 0; j < nbin; j++ {
		var ss float64
		for i := 0; i < nsamples; i++ {
			d := dyn[i][j] - meanspec[j]
			ss += d * d
		}
		specvar[j] = math.Sqrt(ss/float64(nsamples)) / meanspec[j]
	}

	if opts.KeepImage {
		st.VarImg = make([][]float64, nsamples)
		for i := range dyn {
			row := make([]float64, nbin)
			for j := range row {
				row[j] = math.Abs(dyn[i][j]-meanspec[j]) / meanspec[j]
			}
			st.VarImg[i] = row
		}
	}

	// The smoothed copy: non-finite channels replaced by the in-range
	// finite median, band edges clamped to the boundary in-range values so
	// that edge artifacts do not leak into the median filter.
	mod := append([]float64(nil), specvar...)
	var finite []float64
	for j := sel.BinMin; j < sel.BinMax; j++ {
		if !math.IsNaN(mod[j]) && !math.IsInf(mod[j], 0) {
			finite = append(finite, mod[j])
		}
	}
	for j, v := range mod {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			st.NonFinite = append(st.NonFinite, j)
			mod[j] = stats.Median(finite)
		}
	}
	if len(finite) == 0 {
		return nil, fmt.Errorf("%w: variability is non-finite across the whole selection", ErrAllChannelsMasked)
	}
	for j := 0; j < sel.BinMin; j++ {
		mod[j] = mod[sel.BinMin]
	}
	for j := sel.BinMax; j < nbin; j++ {
		mod[j] = mod[sel.BinMax]
	}

	var inRange []float64
	for j, ok := range freqmask {
		if ok {
			inRange = append(inRange, mod[j])
		}
	}
	stdref := stats.RefMAD(inRange, refMADWindow)

	st.SpectralVar = specvar
	st.Baseline = smoothVariability(mod[sel.BinMin:sel.BinMax], sel, nbin, smoothing, opts.BaselineALS)

	st.ThreshLow = make([]float64, nbin)
	st.ThreshHigh = make([]float64, nbin)
	st.VarMask = make([]bool, nbin)
	any := false
	for j := 0; j < nbin; j++ {
		st.ThreshLow[j] = st.Baseline[j] - threshold*stdref
		st.ThreshHigh[j] = st.Baseline[j] + threshold*stdref
		// NaN variability fails both comparisons and stays masked.
		st.VarMask[j] = specvar[j] < st.ThreshHigh[j] && specvar[j] > st.ThreshLow[j]
		any = any || st.VarMask[j]
	}
	if !any {
		return nil, fmt.Errorf("%w: noise threshold %g too strict for these data?", ErrAllChannelsMasked, threshold)
	}

	for j := range st.WholeMask {
		st.WholeMask[j] = freqmask[j] && st.VarMask[j]
	}
	for j, forced := range opts.GoodMask {
		if forced && j < len(st.WholeMask) {
			st.WholeMask[j] = true
		}
	}
	return st, nil
}

// smoothVariability produces the full-length baseline of the variability
// curve from its in-range segment, holding the boundary values across the
// excluded band edges.
func smoothVariability(seg []float64, sel Range, nbin int, smoothing float64, useALS bool) []float64 {
	var smoothed []float64
	if useALS {
		xs := make([]float64, len(seg))
		for i := range xs {
			xs[i] = float64(i)
		}
		fit := baseline.ALS(xs, seg,
			baseline.WithLambda(baseline.SoftLambda),
			baseline.WithOutlierPurging(false))
		smoothed = fit.Trend
	} else {
		kernel := int(float64(nbin)*smoothing)/2*2 + 1
		if kernel < 11 {
			kernel = 11
		}
		smoothed = stats.MedianFilter(seg, kernel)
	}

	full := make([]float64, nbin)
	copy(full[sel.BinMin:sel.BinMax], smoothed)
	for j := 0; j < sel.BinMin; j++ {
		full[j] = smoothed[0]
	}
	for j := sel.BinMax; j < nbin; j++ {
		full[j] = smoothed[len(smoothed)-1]
	}
	return full
}
