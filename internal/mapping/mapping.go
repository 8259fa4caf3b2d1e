// Package mapping bins calibrated light curves onto a sky grid, producing
// intensity, scatter and exposure images per channel, and can scrunch the
// per-channel images into a single map.
package mapping

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Projection is a linear sky-to-pixel mapping around a reference position.
// The RA axis step is negative, following the usual sky convention of RA
// increasing to the left.
type Projection struct {
	NX, NY  int
	RefRA   float64 // radians, image centre
	RefDec  float64
	StepRA  float64 // radians per pixel, negative
	StepDec float64
}

// NewProjection builds a projection that covers [minRA, maxRA] x
// [minDec, maxDec] (radians) with nx*ny pixels centred on the midpoint.
func NewProjection(nx, ny int, minRA, maxRA, minDec, maxDec float64) (Projection, error) {
	if nx <= 0 || ny <= 0 {
		return Projection{}, fmt.Errorf("non-positive image size %dx%d", nx, ny)
	}
	if maxRA <= minRA || maxDec <= minDec {
		return Projection{}, fmt.Errorf("empty sky extent")
	}
	return Projection{
		NX:      nx,
		NY:      ny,
		RefRA:   (minRA + maxRA) / 2,
		RefDec:  (minDec + maxDec) / 2,
		StepRA:  -(maxRA - minRA) / float64(nx),
		StepDec: (maxDec - minDec) / float64(ny),
	}, nil
}

// Pixel maps a sky position to fractional pixel coordinates.
func (p Projection) Pixel(ra, dec float64) (x, y float64) {
	x = float64(p.NX)/2 + (ra-p.RefRA)/p.StepRA
	y = float64(p.NY)/2 + (dec-p.RefDec)/p.StepDec
	return x, y
}

// Image is a simple row-major float image.
type Image struct {
	NX, NY int
	Pix    []float64
}

func newImage(nx, ny int) *Image {
	return &Image{NX: nx, NY: ny, Pix: make([]float64, nx*ny)}
}

// At returns the pixel value at (x, y).
func (im *Image) At(x, y int) float64 { return im.Pix[y*im.NX+x] }

// Accumulator bins samples of one channel onto the grid.
type Accumulator struct {
	proj  Projection
	expo  []float64
	sum   []float64
	sumSq []float64
}

// NewAccumulator creates an empty accumulator over the given projection.
func NewAccumulator(p Projection) *Accumulator {
	n := p.NX * p.NY
	return &Accumulator{
		proj:  p,
		expo:  make([]float64, n),
		sum:   make([]float64, n),
		sumSq: make([]float64, n),
	}
}

// Add accumulates one sample. Samples falling outside the grid are dropped.
func (a *Accumulator) Add(ra, dec, value float64) {
	fx, fy := a.proj.Pixel(ra, dec)
	x, y := int(math.Floor(fx)), int(math.Floor(fy))
	if x < 0 || x >= a.proj.NX || y < 0 || y >= a.proj.NY {
		return
	}
	i := y*a.proj.NX + x
	a.expo[i]++
	a.sum[i] += value
	a.sumSq[i] += value * value
}

// AddCurve accumulates a whole light curve sampled at the given coordinates.
// good, when non-nil, excludes flagged samples.
func (a *Accumulator) AddCurve(ras, decs, lc []float64, good []bool) {
	for i := range lc {
		if good != nil && !good[i] {
			continue
		}
		a.Add(ras[i], decs[i], lc[i])
	}
}

// Exposure returns the per-pixel sample count.
func (a *Accumulator) Exposure() *Image {
	im := newImage(a.proj.NX, a.proj.NY)
	copy(im.Pix, a.expo)
	return im
}

// Intensity returns the per-pixel mean of the accumulated samples; pixels
// without exposure are zero.
func (a *Accumulator) Intensity() *Image {
	im := newImage(a.proj.NX, a.proj.NY)
	for i, e := range a.expo {
		if e > 0 {
			im.Pix[i] = a.sum[i] / e
		}
	}
	return im
}

// Variance returns the per-pixel population variance of the accumulated
// samples; pixels without exposure are zero.
func (a *Accumulator) Variance() *Image {
	im := newImage(a.proj.NX, a.proj.NY)
	for i, e := range a.expo {
		if e > 0 {
			mean := a.sum[i] / e
			im.Pix[i] = a.sumSq[i]/e - mean*mean
		}
	}
	return im
}

// scrunchExpoQuantile is the exposure quantile below which pixels are dropped
// from a scrunched map, to avoid the noisy underexposed borders.
const scrunchExpoQuantile = 0.1

// Scrunch sums the accumulators of several channels into a single intensity,
// variance and exposure map. Pixels whose total exposure falls below the 10%
// quantile are zeroed.
func Scrunch(accs []*Accumulator) (intensity, variance, exposure *Image, err error) {
	if len(accs) == 0 {
		return nil, nil, nil, fmt.Errorf("nothing to scrunch")
	}
	p := accs[0].proj
	for _, a := range accs[1:] {
		if a.proj != p {
			return nil, nil, nil, fmt.Errorf("mismatched projections")
		}
	}

	n := p.NX * p.NY
	expo := make([]float64, n)
	sum := make([]float64, n)
	sumSq := make([]float64, n)
	for _, a := range accs {
		for i := 0; i < n; i++ {
			expo[i] += a.expo[i]
			sum[i] += a.sum[i]
			sumSq[i] += a.sumSq[i]
		}
	}

	sorted := append([]float64(nil), expo...)
	sort.Float64s(sorted)
	cut := stat.Quantile(scrunchExpoQuantile, stat.LinInterp, sorted, nil)

	intensity = newImage(p.NX, p.NY)
	variance = newImage(p.NX, p.NY)
	exposure = newImage(p.NX, p.NY)
	copy(exposure.Pix, expo)
	for i, e := range expo {
		if e <= cut || e == 0 {
			continue
		}
		mean := sum[i] / e
		intensity.Pix[i] = mean
		variance.Pix[i] = sumSq[i]/e - mean*mean
	}
	return intensity, variance, exposure, nil
}
