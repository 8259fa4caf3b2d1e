// Package rfi detects and removes radio-frequency interference from the
// dynamical spectrum of a single scan. The detector works on the per-channel
// rms variability of the spectrum: channels whose variability sits too far
// from its smoothed baseline are masked, interpolated over, and the surviving
// channels are merged ("splatted") into a cleaned single-channel light curve.
package rfi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrFrequencySpec reports a frequency selection string that could not be
// interpreted. It is a configuration error and is always surfaced to the
// caller, never silently replaced with a default.
var ErrFrequencySpec = errors.New("invalid frequency selection")

// Range is a frequency sub-band selection mapped onto channel indices.
// Frequencies are in MHz referred to the local oscillator. BinMax follows the
// convention of the original pipeline: the last bin index such that
// bin*bandwidth/nbin stays below FreqMax, i.e. floor(nbin*freqmax/bandwidth)-1.
// Downstream bandwidth bookkeeping depends on this exact convention.
type Range struct {
	FreqMin float64 // MHz from the local oscillator
	FreqMax float64
	BinMin  int
	BinMax  int
}

// ParseSelection interprets a frequency selection string against a band of
// the given width (MHz) split into nbin channels.
//
// An empty selection or "default" selects the central 80% of the band
// (bandwidth/10 to bandwidth*0.9). ":" and "all" select the full band.
// "f0:f1" selects the explicit interval, both bounds in MHz from the local
// oscillator. Anything else fails with ErrFrequencySpec.
func ParseSelection(selection string, bandwidth float64, nbin int) (Range, error) {
	if bandwidth <= 0 || nbin <= 0 {
		return Range{}, fmt.Errorf("%w: bandwidth %g MHz over %d bins", ErrFrequencySpec, bandwidth, nbin)
	}

	var freqmin, freqmax float64
	switch selection {
	case "", "default":
		freqmin, freqmax = bandwidth/10, bandwidth*0.9
	case ":", "all":
		freqmin, freqmax = 0, bandwidth
	default:
		parts := strings.Split(selection, ":")
		if len(parts) != 2 {
			return Range{}, fmt.Errorf("%w: %q is not of the form f0:f1", ErrFrequencySpec, selection)
		}
		var err error
		if freqmin, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
			return Range{}, fmt.Errorf("%w: %q: %v", ErrFrequencySpec, selection, err)
		}
		if freqmax, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
			return Range{}, fmt.Errorf("%w: %q: %v", ErrFrequencySpec, selection, err)
		}
	}

	r := Range{
		FreqMin: freqmin,
		FreqMax: freqmax,
		BinMin:  int(float64(nbin) * freqmin / bandwidth),
		BinMax:  int(float64(nbin)*freqmax/bandwidth) - 1,
	}
	// A narrow selection may collapse to BinMin == BinMax. That is a valid
	// range with an empty channel mask; the mask engine rejects it as
	// all-masked rather than the interpreter refusing the selection.
	if r.BinMin < 0 || r.BinMax >= nbin || r.BinMin > r.BinMax {
		return Range{}, fmt.Errorf("%w: %q maps to bins [%d, %d] of %d", ErrFrequencySpec, selection, r.BinMin, r.BinMax, nbin)
	}
	return r, nil
}

// FrequencyMask returns the static channel mask of the selection: true for
// channels inside [BinMin, BinMax), matching the band edges excluded from the
// splat.
func (r Range) FrequencyMask(nbin int) []bool {
	mask := make([]bool, nbin)
	for i := r.BinMin; i < r.BinMax && i < nbin; i++ {
		mask[i] = true
	}
	return mask
}
