package rfi

import (
	"errors"
	"math"
	"testing"
)

// hotSpectrum builds a 64x512 dynamical spectrum around a mean level of 100.
// Every channel wiggles in time with a pseudo-random amplitude near 1;
// channels listed in hot wiggle fifty times harder, mimicking narrow-band
// interference.
func hotSpectrum(hot ...int) [][]float64 {
	const nsamples, nbin = 64, 512
	hotset := make(map[int]bool, len(hot))
	for _, j := range hot {
		hotset[j] = true
	}

	dyn := make([][]float64, nsamples)
	for i := range dyn {
		s := math.Sin(float64(i))
		row := make([]float64, nbin)
		for j := range row {
			amp := 1 + 0.2*math.Sin(float64(j)*12.9898+78.233)
			if hotset[j] {
				amp = 50
			}
			row[j] = 100 + amp*s
		}
		dyn[i] = row
	}
	return dyn
}

func TestComputeStatsDetectsHotChannels(t *testing.T) {
	hot := []int{150, 300, 400}
	control := []int{100, 250, 350}

	st, err := ComputeStats(hotSpectrum(hot...), Options{Bandwidth: 1024})
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	if st.Skipped {
		t.Fatal("masking skipped on a 64-sample scan")
	}

	for _, j := range hot {
		if st.VarMask[j] {
			t.Errorf("hot channel %d not rejected", j)
		}
		if st.WholeMask[j] {
			t.Errorf("hot channel %d retained in the final mask", j)
		}
	}
	for _, j := range control {
		if !st.WholeMask[j] {
			t.Errorf("quiet channel %d rejected", j)
		}
	}
	// Band edges are excluded by the default selection regardless of their
	// variability.
	for _, j := range []int{0, 50, 459, 511} {
		if st.WholeMask[j] {
			t.Errorf("channel %d outside the selection retained", j)
		}
	}
}

func TestComputeStatsALSBaseline(t *testing.T) {
	st, err := ComputeStats(hotSpectrum(150), Options{Bandwidth: 1024, BaselineALS: true})
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	if st.WholeMask[150] {
		t.Error("hot channel 150 retained with ALS smoothing")
	}
	if !st.WholeMask[250] {
		t.Error("quiet channel 250 rejected with ALS smoothing")
	}
}

func TestComputeStatsSkipsShortScans(t *testing.T) {
	dyn := hotSpectrum(150)[:5]

	st, err := ComputeStats(dyn, Options{Bandwidth: 1024})
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	if !st.Skipped {
		t.Fatal("expected Skipped on a 5-sample scan")
	}
	if st.VarMask != nil {
		t.Error("variability mask computed despite skip")
	}
	for j := range st.WholeMask {
		if st.WholeMask[j] != st.FreqMask[j] {
			t.Fatalf("WholeMask[%d] != FreqMask[%d] in degraded mode", j, j)
		}
	}
}

func TestComputeStatsAllChannelsMasked(t *testing.T) {
	// Identical columns: the variability curve is exactly constant, its
	// reference MAD is zero, and the strict thresholds reject everything.
	dyn := make([][]float64, 32)
	for i := range dyn {
		row := make([]float64, 256)
		for j := range row {
			row[j] = 100 + math.Sin(float64(i))
		}
		dyn[i] = row
	}

	_, err := ComputeStats(dyn, Options{Bandwidth: 512})
	if !errors.Is(err, ErrAllChannelsMasked) {
		t.Errorf("err = %v, want ErrAllChannelsMasked", err)
	}
}

func TestComputeStatsDegenerateSelection(t *testing.T) {
	// A narrow selection collapsing onto a single bin is a valid range with
	// an empty channel mask; the masking step rejects it, the interpreter
	// does not.
	_, err := ComputeStats(hotSpectrum(), Options{Selection: "511.5:512.5", Bandwidth: 1024})
	if !errors.Is(err, ErrAllChannelsMasked) {
		t.Errorf("err = %v, want ErrAllChannelsMasked", err)
	}
}

func TestComputeStatsGoodMaskOverride(t *testing.T) {
	good := make([]bool, 512)
	good[150] = true

	st, err := ComputeStats(hotSpectrum(150), Options{Bandwidth: 1024, GoodMask: good})
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	if st.VarMask[150] {
		t.Error("hot channel 150 passed the variability test")
	}
	if !st.WholeMask[150] {
		t.Error("forced-good channel 150 not retained")
	}
}

func TestComputeStatsNoFilter(t *testing.T) {
	st, err := ComputeStats(hotSpectrum(150), Options{Bandwidth: 1024, NoFilter: true})
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	if !st.WholeMask[150] {
		t.Error("channel rejected despite NoFilter")
	}
}

func TestComputeStatsNonFiniteChannel(t *testing.T) {
	dyn := hotSpectrum()
	for i := range dyn {
		dyn[i][200] = 0 // dead channel: zero mean, zero variance
	}

	st, err := ComputeStats(dyn, Options{Bandwidth: 1024})
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	found := false
	for _, j := range st.NonFinite {
		if j == 200 {
			found = true
		}
	}
	if !found {
		t.Errorf("channel 200 not reported as non-finite: %v", st.NonFinite)
	}
	if st.WholeMask[200] {
		t.Error("non-finite channel 200 retained")
	}
}

func TestComputeStatsInputValidation(t *testing.T) {
	if _, err := ComputeStats(nil, Options{Bandwidth: 1024}); err == nil {
		t.Error("no error for an empty spectrum")
	}
	ragged := [][]float64{make([]float64, 64), make([]float64, 63)}
	if _, err := ComputeStats(ragged, Options{Bandwidth: 1024}); err == nil {
		t.Error("no error for a ragged spectrum")
	}
	if _, err := ComputeStats(hotSpectrum(), Options{Bandwidth: 1024, Selection: "bogus"}); !errors.Is(err, ErrFrequencySpec) {
		t.Error("invalid selection not surfaced")
	}
}
