package mapping

import (
	"math"
	"testing"
)

func testProjection(t *testing.T) Projection {
	t.Helper()
	p, err := NewProjection(4, 4, 0, 0.4, 0, 0.4)
	if err != nil {
		t.Fatalf("NewProjection: %v", err)
	}
	return p
}

func TestProjectionPixel(t *testing.T) {
	p := testProjection(t)

	// The reference position lands on the grid centre.
	x, y := p.Pixel(0.2, 0.2)
	if math.Abs(x-2) > 1e-12 || math.Abs(y-2) > 1e-12 {
		t.Errorf("centre maps to (%v, %v), want (2, 2)", x, y)
	}

	// RA increases to the left: a larger RA means a smaller x.
	x1, _ := p.Pixel(0.3, 0.2)
	if x1 >= x {
		t.Errorf("RA axis not mirrored: x(0.3) = %v, x(0.2) = %v", x1, x)
	}

	// Dec increases upwards.
	_, y1 := p.Pixel(0.2, 0.3)
	if y1 <= y {
		t.Errorf("Dec axis inverted: y(0.3) = %v, y(0.2) = %v", y1, y)
	}
}

func TestProjectionValidation(t *testing.T) {
	if _, err := NewProjection(0, 4, 0, 1, 0, 1); err == nil {
		t.Error("zero-width image accepted")
	}
	if _, err := NewProjection(4, 4, 1, 1, 0, 1); err == nil {
		t.Error("empty sky extent accepted")
	}
}

func TestAccumulatorStatistics(t *testing.T) {
	a := NewAccumulator(testProjection(t))

	// Three samples into the pixel holding the reference position.
	for _, v := range []float64{1, 2, 3} {
		a.Add(0.19, 0.21, v)
	}
	// One sample far outside the grid, which must be dropped.
	a.Add(10, 10, 100)

	expo := a.Exposure()
	x, y := 2, 2 // slightly off-centre, still in the central pixel
	if got := expo.At(x, y); got != 3 {
		t.Fatalf("exposure = %v, want 3", got)
	}
	var total float64
	for _, v := range expo.Pix {
		total += v
	}
	if total != 3 {
		t.Errorf("total exposure = %v, out-of-grid sample not dropped", total)
	}

	if got := a.Intensity().At(x, y); math.Abs(got-2) > 1e-12 {
		t.Errorf("intensity = %v, want 2", got)
	}
	// Population variance of {1,2,3} is 2/3.
	if got := a.Variance().At(x, y); math.Abs(got-2.0/3) > 1e-12 {
		t.Errorf("variance = %v, want 2/3", got)
	}
}

func TestAddCurveHonorsGoodMask(t *testing.T) {
	a := NewAccumulator(testProjection(t))
	ras := []float64{0.19, 0.19, 0.19}
	decs := []float64{0.21, 0.21, 0.21}
	lc := []float64{5, 500, 5}
	a.AddCurve(ras, decs, lc, []bool{true, false, true})

	if got := a.Intensity().At(2, 2); math.Abs(got-5) > 1e-12 {
		t.Errorf("intensity = %v, flagged sample not excluded", got)
	}
}

func TestScrunchCombinesChannels(t *testing.T) {
	p := testProjection(t)
	a := NewAccumulator(p)
	b := NewAccumulator(p)

	// Both channels see the same sky pixel; the scrunched mean pools all
	// six samples.
	for i := 0; i < 3; i++ {
		a.Add(0.19, 0.21, 2)
		b.Add(0.19, 0.21, 4)
	}
	// Give most other pixels a little exposure so the one hot pixel is
	// above the 10% exposure quantile.
	for xi := 0; xi < 4; xi++ {
		for yi := 0; yi < 4; yi++ {
			ra := 0.4 - (float64(xi)+0.5)*0.1
			dec := (float64(yi) + 0.5) * 0.1
			a.Add(ra, dec, 3)
		}
	}

	intensity, _, exposure, err := Scrunch([]*Accumulator{a, b})
	if err != nil {
		t.Fatalf("Scrunch: %v", err)
	}
	if got := exposure.At(2, 2); got != 7 {
		t.Fatalf("pooled exposure = %v, want 7", got)
	}
	want := (3*2.0 + 3*4.0 + 3) / 7
	if got := intensity.At(2, 2); math.Abs(got-want) > 1e-12 {
		t.Errorf("pooled intensity = %v, want %v", got, want)
	}
}

func TestScrunchValidation(t *testing.T) {
	if _, _, _, err := Scrunch(nil); err == nil {
		t.Error("empty scrunch accepted")
	}
	p1 := testProjection(t)
	p2, _ := NewProjection(8, 8, 0, 0.4, 0, 0.4)
	_, _, _, err := Scrunch([]*Accumulator{NewAccumulator(p1), NewAccumulator(p2)})
	if err == nil {
		t.Error("mismatched projections accepted")
	}
}
