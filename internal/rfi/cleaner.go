package rfi

import (
	"fmt"

	"github.com/radioscan/dishpipe/internal/baseline"
	"github.com/radioscan/dishpipe/internal/stats"
)

// Result is the outcome of cleaning one dynamical spectrum.
type Result struct {
	// LightCurve is the flattened sum over the retained channels, one
	// point per sample.
	LightCurve []float64
	// FreqMin and FreqMax bound the retained band, MHz from the local
	// oscillator.
	FreqMin float64
	FreqMax float64
	// Mask is the final per-channel retention mask.
	Mask []bool
	// Spectrum is the dynamical spectrum with bad channels replaced by
	// values interpolated from their good neighbours.
	Spectrum [][]float64
}

// SpillSize estimates the in-memory footprint in bytes.
func (r *Result) SpillSize() int {
	n := 8*len(r.LightCurve) + len(r.Mask)
	for _, row := range r.Spectrum {
		n += 8 * len(row)
	}
	return n
}

// Clean interpolates over the channels rejected by st and collapses the
// spectrum into a flattened light curve.
//
// Rejected channels are filled per sample: runs touching the left band edge
// take the first good channel after them, runs touching the right edge take
// the last good channel before them, and interior runs take the mean of the
// two flanking good channels. The light curve is the per-sample sum over the
// frequency-selected channels; with more than 10 samples it is flattened
// with a stiff lower-envelope baseline, otherwise its median is subtracted.
func Clean(dyn [][]float64, st *Stats) (*Result, error) {
	nsamples := len(dyn)
	nbin := st.Channels

	good := -1
	for j, ok := range st.WholeMask {
		if ok {
			good = j
			break
		}
	}
	if good < 0 {
		return nil, fmt.Errorf("%w: nothing left to interpolate from", ErrAllChannelsMasked)
	}

	cleaned := make([][]float64, nsamples)
	for i, row := range dyn {
		cleaned[i] = append([]float64(nil), row...)
	}

	for _, b := range stats.ContiguousRegions(stats.Invert(st.WholeMask)) {
		var src0, src1 int
		switch {
		case b[0] == 0:
			src0, src1 = b[1], b[1]
		case b[1] >= nbin:
			src0, src1 = b[0]-1, b[0]-1
		default:
			src0, src1 = b[0]-1, b[1]
		}
		for i := range cleaned {
			fill := (dyn[i][src0] + dyn[i][src1]) / 2
			for j := b[0]; j < b[1] && j < nbin; j++ {
				cleaned[i][j] = fill
			}
		}
	}

	lc := FrequencyFilter(cleaned, st.FreqMask)

	if len(lc) > minSamplesForMasking {
		times := make([]float64, nsamples)
		for i := range times {
			times[i] = st.Length * float64(i) / float64(nsamples)
		}
		lc = baseline.ALS(times, lc, baseline.WithOutlierPurging(false)).Flattened
	} else {
		med := stats.Median(lc)
		for i := range lc {
			lc[i] -= med
		}
	}

	return &Result{
		LightCurve: lc,
		FreqMin:    st.Selection.FreqMin,
		FreqMax:    st.Selection.FreqMax,
		Mask:       st.WholeMask,
		Spectrum:   cleaned,
	}, nil
}

// FrequencyFilter collapses a dynamical spectrum into a light curve by
// summing, per sample, the channels where mask is true. A nil mask sums
// every channel; channels beyond the end of the mask are excluded.
func FrequencyFilter(dyn [][]float64, mask []bool) []float64 {
	lc := make([]float64, len(dyn))
	for i, row := range dyn {
		var sum float64
		for j, v := range row {
			if mask == nil || (j < len(mask) && mask[j]) {
				sum += v
			}
		}
		lc[i] = sum
	}
	return lc
}
