package rfi

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/radioscan/dishpipe/internal/spill"
)

// fixedStats builds a Stats by hand so the interpolation policy can be
// checked against known masks without going through ComputeStats.
func fixedStats(nbin int, whole []bool) *Stats {
	freq := make([]bool, nbin)
	for j := range freq {
		freq[j] = true
	}
	return &Stats{
		Samples:   3,
		Channels:  nbin,
		Length:    1,
		Selection: Range{FreqMin: 0, FreqMax: float64(nbin), BinMin: 0, BinMax: nbin - 1},
		FreqMask:  freq,
		WholeMask: whole,
	}
}

func TestCleanFillPolicy(t *testing.T) {
	// Channels 0, 3-4 and 7 are bad. The run at the left edge copies the
	// first good channel after it, the run at the right edge copies the
	// last good channel before it, and the interior run averages its
	// flanking good channels.
	whole := []bool{false, true, true, false, false, true, true, false}
	dyn := [][]float64{
		{9, 1, 2, 9, 9, 4, 6, 9},
		{9, 10, 20, 9, 9, 40, 60, 9},
	}

	res, err := Clean(dyn, fixedStats(8, whole))
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}

	wantRows := [][]float64{
		{1, 1, 2, 3, 3, 4, 6, 6},
		{10, 10, 20, 30, 30, 40, 60, 60},
	}
	for i, want := range wantRows {
		for j, w := range want {
			if got := res.Spectrum[i][j]; got != w {
				t.Errorf("Spectrum[%d][%d] = %v, want %v", i, j, got, w)
			}
		}
	}
	// The input is left untouched.
	if dyn[0][0] != 9 || dyn[1][7] != 9 {
		t.Error("Clean modified its input")
	}
}

func TestCleanShortScanSubtractsMedian(t *testing.T) {
	whole := []bool{true, true, true, true}
	dyn := [][]float64{
		{1, 1, 1, 1}, // sum 4
		{2, 2, 2, 2}, // sum 8
		{3, 3, 3, 3}, // sum 12
	}

	res, err := Clean(dyn, fixedStats(4, whole))
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	want := []float64{-4, 0, 4} // raw sums minus their median
	for i, w := range want {
		if res.LightCurve[i] != w {
			t.Errorf("LightCurve[%d] = %v, want %v", i, res.LightCurve[i], w)
		}
	}
}

func TestCleanNothingRetained(t *testing.T) {
	dyn := [][]float64{{1, 2}, {3, 4}}
	_, err := Clean(dyn, fixedStats(2, []bool{false, false}))
	if err == nil {
		t.Fatal("expected an error when every channel is masked")
	}
}

func TestCleanScanEndToEnd(t *testing.T) {
	scratch := t.TempDir()
	sp := spill.Disk{Dir: scratch}

	res, st, err := CleanScan(hotSpectrum(150, 300), Options{Bandwidth: 1024}, sp)
	if err != nil {
		t.Fatalf("CleanScan: %v", err)
	}

	if st.WholeMask[150] || st.WholeMask[300] {
		t.Error("hot channels survived the cleaning")
	}
	if !st.WholeMask[250] {
		t.Error("quiet channel 250 rejected")
	}
	if len(res.LightCurve) != 64 {
		t.Fatalf("light curve has %d points, want 64", len(res.LightCurve))
	}
	if math.Abs(res.FreqMin-102.4) > 1e-9 || math.Abs(res.FreqMax-921.6) > 1e-9 {
		t.Errorf("band = (%v, %v), want (102.4, 921.6)", res.FreqMin, res.FreqMax)
	}

	// The flattened curve must not retain the raw ~40000-count pedestal.
	for i, v := range res.LightCurve {
		if math.Abs(v) > 2000 {
			t.Fatalf("LightCurve[%d] = %v, baseline not removed", i, v)
		}
	}

	// The disk spiller must leave no scratch files behind.
	if leftovers, _ := filepath.Glob(filepath.Join(scratch, "*")); len(leftovers) != 0 {
		t.Errorf("scratch files left behind: %v", leftovers)
	}
}

func TestCleanScanShortScanUsesRawSums(t *testing.T) {
	dyn := hotSpectrum()[:5]

	res, st, err := CleanScan(dyn, Options{Bandwidth: 1024}, nil)
	if err != nil {
		t.Fatalf("CleanScan: %v", err)
	}
	if !st.Skipped {
		t.Fatal("expected the degraded no-masking mode")
	}

	// With masking skipped the light curve is exactly the per-sample sum
	// over the selected channels, minus its median.
	raw := FrequencyFilter(dyn, st.FreqMask)
	want := append([]float64(nil), raw...)
	median := medianOf(raw)
	for i := range want {
		want[i] -= median
	}
	for i := range want {
		if math.Abs(res.LightCurve[i]-want[i]) > 1e-9 {
			t.Errorf("LightCurve[%d] = %v, want %v", i, res.LightCurve[i], want[i])
		}
	}
}

func TestFrequencyFilter(t *testing.T) {
	dyn := [][]float64{
		{1, 2, 3},
		{4, 5, 6},
	}
	lc := FrequencyFilter(dyn, []bool{true, false, true})
	if lc[0] != 4 || lc[1] != 10 {
		t.Errorf("lc = %v, want [4 10]", lc)
	}
	lc = FrequencyFilter(dyn, nil)
	if lc[0] != 6 || lc[1] != 15 {
		t.Errorf("lc = %v, want [6 15]", lc)
	}

	// Channels beyond the end of the mask are excluded, not a panic.
	lc = FrequencyFilter(dyn, []bool{true})
	if lc[0] != 1 || lc[1] != 4 {
		t.Errorf("lc = %v, want [1 4]", lc)
	}
}

func medianOf(x []float64) float64 {
	s := append([]float64(nil), x...)
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
	if n := len(s); n%2 == 1 {
		return s[n/2]
	} else {
		return (s[n/2-1] + s[n/2]) / 2
	}
}
