package calib

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const threeC286 = `
name: 3C286
epochs:
  - time: 56000
    coeffs: [1.2481, -0.4507, -0.1798, 0.0357]
`

const ngc7027 = `
name: NGC7027
frequencies: [1.4, 5.0, 22.0]
fluxes: [1.35, 5.48, 5.37]
flux_errors: [0.02, 0.05, 0.10]
`

func testTable(t *testing.T) *Table {
	t.Helper()
	tab := &Table{}
	for _, doc := range []string{threeC286, ngc7027} {
		cal, err := Parse([]byte(doc))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		tab.Add(cal)
	}
	return tab
}

func TestModelFlux(t *testing.T) {
	tab := testTable(t)

	// Perley & Butler put 3C286 around 7.5 Jy at 5 GHz.
	flux, unc, err := tab.Flux("3C286", 5.0, 0.001, 56000)
	if err != nil {
		t.Fatalf("Flux: %v", err)
	}
	perGHz := flux / 0.001
	if perGHz < 6.5 || perGHz > 8.5 {
		t.Errorf("3C286 at 5 GHz = %v Jy, want around 7.5", perGHz)
	}
	if unc <= 0 {
		t.Errorf("uncertainty = %v, want > 0 from the assumed 5%%", unc)
	}
}

func TestFreqListFluxPicksClosest(t *testing.T) {
	tab := testTable(t)

	flux, _, err := tab.Flux("NGC7027", 4.7, 1, 0)
	if err != nil {
		t.Fatalf("Flux: %v", err)
	}
	if math.Abs(flux-5.48) > 1e-9 {
		t.Errorf("flux = %v, want 5.48 (closest listed frequency)", flux)
	}
}

func TestLookupMatchesObservingLabels(t *testing.T) {
	tab := testTable(t)
	if tab.Lookup("3C286_RA_scan12") == nil {
		t.Error("label containing the calibrator name not matched")
	}
	if tab.Lookup("W44") != nil {
		t.Error("non-calibrator source matched")
	}
}

func TestFluxUnknownSource(t *testing.T) {
	tab := testTable(t)
	if _, _, err := tab.Flux("W44", 5, 1, 0); !errors.Is(err, ErrUnknownCalibrator) {
		t.Errorf("err = %v, want ErrUnknownCalibrator", err)
	}
}

func TestParseRejectsIncompleteDefinitions(t *testing.T) {
	bad := []string{
		"frequencies: [1.4]\nfluxes: [1.0]",        // no name
		"name: X",                                  // no data
		"name: X\nfrequencies: [1, 2]\nfluxes: [1]", // mismatched lists
	}
	for _, doc := range bad {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("Parse accepted %q", doc)
		}
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "3c286.yaml"), []byte(threeC286), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ngc7027.yaml"), []byte(ngc7027), 0o644); err != nil {
		t.Fatal(err)
	}

	tab, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tab.Lookup("3C286") == nil || tab.Lookup("NGC7027") == nil {
		t.Error("loaded table is missing calibrators")
	}
}

func TestJyPerCount(t *testing.T) {
	factor, err := JyPerCount(5.48, 2740)
	if err != nil {
		t.Fatalf("JyPerCount: %v", err)
	}
	if math.Abs(factor-0.002) > 1e-12 {
		t.Errorf("factor = %v, want 0.002", factor)
	}
	if _, err := JyPerCount(5.48, 0); err == nil {
		t.Error("zero counts accepted")
	}

	lc := []float64{1000, 2000}
	ApplyFactor(lc, factor)
	if lc[0] != 2 || lc[1] != 4 {
		t.Errorf("calibrated curve = %v, want [2 4]", lc)
	}
}
