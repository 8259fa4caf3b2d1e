// Package render draws quick-look images of reduced scans: color-mapped
// dynamical spectra with frequency and time scales, and light-curve plots.
// Images are plain RGBA, ready for PNG or JPEG encoding.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi             float64 = 120
	defaultFontSize float64 = 9

	tickMarkHeight     = 5
	pixelsPerFreqLabel = 150
	pixelsPerTimeLabel = 100
	maskStripHeight    = 3

	defaultBorderTop    = 40
	defaultBorderBottom = 70
	defaultBorderLeft   = 80
	defaultBorderRight  = 20
)

var ErrEmptyImage = errors.New("render: nothing to draw")

var maskColor = color.RGBA{R: 220, G: 30, B: 30, A: 255}

// BorderConfig sets the margins around the drawing area, in pixels. The
// margins hold the frequency scale (top), time scale (left) and info bar
// (bottom).
type BorderConfig struct {
	Top    int
	Bottom int
	Left   int
	Right  int
}

// Config holds rendering options. Zero values select sensible defaults.
type Config struct {
	FontSize     float64
	Theme        ColorTheme
	ColorMapSize int
	Borders      BorderConfig
}

// SpectrumImage is a dynamical spectrum prepared for drawing: one row per
// time sample, one column per frequency channel. Frequencies are in MHz.
type SpectrumImage struct {
	Source  string
	Channel string

	FreqMin   float64
	FreqMax   float64
	LengthSec float64

	Data [][]float64

	// Mask, when set, marks retained channels; rejected channels get a
	// red marker strip under the spectrum.
	Mask []bool
}

// Renderer draws spectra and light curves using a shared configuration.
type Renderer struct {
	config   Config
	colorMap *ColorMapper
}

// NewRenderer creates a renderer, filling in defaults for any zero
// configuration values.
func NewRenderer(config Config) *Renderer {
	if config.FontSize <= 0 {
		config.FontSize = defaultFontSize
	}
	if config.ColorMapSize <= 0 {
		config.ColorMapSize = DefaultColorMapSize
	}
	if config.Borders == (BorderConfig{}) {
		config.Borders = BorderConfig{
			Top:    defaultBorderTop,
			Bottom: defaultBorderBottom,
			Left:   defaultBorderLeft,
			Right:  defaultBorderRight,
		}
	}
	return &Renderer{config: config}
}

// Waterfall renders the dynamical spectrum with annotated frequency and
// time scales. Display bounds come from the 5th and 95th percentiles of
// the data, so a few bright interference pixels do not wash out the map.
func (r *Renderer) Waterfall(spec *SpectrumImage) (*image.RGBA, error) {
	if spec == nil || len(spec.Data) == 0 || len(spec.Data[0]) == 0 {
		return nil, ErrEmptyImage
	}

	width, height := len(spec.Data[0]), len(spec.Data)
	b := r.config.Borders

	img := image.NewRGBA(image.Rect(0, 0, b.Left+width+b.Right, b.Top+height+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, b.Left+width, b.Top+height)

	bounds := ImageBounds(spec.Data)
	if r.colorMap == nil {
		r.colorMap = NewColorMapperWithSize(r.config.Theme, bounds, r.config.ColorMapSize)
	} else {
		r.colorMap.UpdateBounds(bounds)
	}

	ann, err := newAnnotator(r.config)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, area, spec); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	for y, row := range spec.Data {
		imgY := area.Min.Y + y
		for x, v := range row {
			img.Set(area.Min.X+x, imgY, r.colorMap.GetColor(v))
		}
	}

	if spec.Mask != nil {
		drawMaskStrip(img, area, spec.Mask)
	}

	return img, nil
}

// drawMaskStrip marks rejected channels with a red strip just below the
// spectrum area.
func drawMaskStrip(img *image.RGBA, area image.Rectangle, mask []bool) {
	for x := 0; x < area.Dx() && x < len(mask); x++ {
		if mask[x] {
			continue
		}
		for y := 0; y < maskStripHeight; y++ {
			img.Set(area.Min.X+x, area.Max.Y+1+y, maskColor)
		}
	}
}

// CurvePlot is a light curve prepared for drawing. Times are seconds from
// the start of the scan.
type CurvePlot struct {
	Title  string
	Times  []float64
	Values []float64

	// Plot area size in pixels, borders excluded. Zero values default
	// to 800 by 300.
	Width  int
	Height int
}

var curveColor = color.RGBA{R: 30, G: 60, B: 180, A: 255}

// LightCurve renders a light curve as a line plot with time and intensity
// scales.
func (r *Renderer) LightCurve(p *CurvePlot) (*image.RGBA, error) {
	if p == nil || len(p.Values) == 0 || len(p.Times) != len(p.Values) {
		return nil, ErrEmptyImage
	}

	width, height := p.Width, p.Height
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 300
	}
	b := r.config.Borders

	img := image.NewRGBA(image.Rect(0, 0, b.Left+width+b.Right, b.Top+height+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, b.Left+width, b.Top+height)

	ann, err := newAnnotator(r.config)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotateCurve(img, area, p); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	// Axes
	for y := area.Min.Y; y <= area.Max.Y; y++ {
		img.Set(area.Min.X, y, color.Black)
	}
	for x := area.Min.X; x <= area.Max.X; x++ {
		img.Set(x, area.Max.Y, color.Black)
	}

	lo, hi := curveRange(p.Values)
	t0, t1 := p.Times[0], p.Times[len(p.Times)-1]
	if t1 <= t0 {
		t1 = t0 + 1
	}

	toX := func(t float64) int {
		return area.Min.X + int((t-t0)/(t1-t0)*float64(width-1))
	}
	toY := func(v float64) int {
		return area.Max.Y - 1 - int((v-lo)/(hi-lo)*float64(height-2))
	}

	prevSet := false
	var prevX, prevY int
	for i, v := range p.Values {
		if math.IsNaN(v) {
			prevSet = false
			continue
		}
		x, y := toX(p.Times[i]), toY(v)
		if prevSet {
			drawLine(img, prevX, prevY, x, y, curveColor)
		} else {
			img.Set(x, y, curveColor)
		}
		prevX, prevY, prevSet = x, y, true
	}

	return img, nil
}

// curveRange returns a padded display range for the finite curve values.
func curveRange(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return 0, 1
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(lo)*0.05, 1)
	}
	return lo - pad, hi + pad
}

// drawLine draws a straight segment using a simple DDA walk.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := x1-x0, y1-y0
	steps := max(abs(dx), abs(dy))
	if steps == 0 {
		img.Set(x0, y0, c)
		return
	}
	for i := 0; i <= steps; i++ {
		x := x0 + dx*i/steps
		y := y0 + dy*i/steps
		img.Set(x, y, c)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Internal annotator implementation

type annotator struct {
	context  *freetype.Context
	config   Config
	fontFace font.Face
}

func newAnnotator(config Config) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, area image.Rectangle, spec *SpectrumImage) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawFrequencyScale(img, area, spec.FreqMin, spec.FreqMax); err != nil {
		return fmt.Errorf("drawing frequency scale: %w", err)
	}
	if err := a.drawTimeScale(img, area, spec.LengthSec); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawInfoBar(img, area, spec); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}
	return nil
}

func (a *annotator) annotateCurve(img *image.RGBA, area image.Rectangle, p *CurvePlot) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	duration := 0.0
	if len(p.Times) > 0 {
		duration = p.Times[len(p.Times)-1] - p.Times[0]
	}
	if err := a.drawTimeAxis(img, area, duration); err != nil {
		return fmt.Errorf("drawing time axis: %w", err)
	}
	if err := a.drawValueAxis(img, area, p.Values); err != nil {
		return fmt.Errorf("drawing value axis: %w", err)
	}
	if p.Title != "" {
		metrics := a.fontFace.Metrics()
		fontHeight := (metrics.Ascent + metrics.Descent).Round()
		pt := freetype.Pt(area.Min.X, a.config.Borders.Top-fontHeight/2)
		if _, err := a.context.DrawString(p.Title, pt); err != nil {
			return fmt.Errorf("drawing title: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawFrequencyScale(img *image.RGBA, area image.Rectangle, freqMin, freqMax float64) error {
	count := max(2, area.Dx()/pixelsPerFreqLabel)
	mhzPerLabel := (freqMax - freqMin) / float64(count)
	pxPerLabel := area.Dx() / count

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := area.Min.Y - tickMarkHeight - fontHeight/2

	for si := 0; si <= count; si++ {
		mhz := freqMin + float64(si)*mhzPerLabel
		x := area.Min.X + si*pxPerLabel
		if x > area.Max.X {
			x = area.Max.X
		}

		for y := area.Min.Y - tickMarkHeight; y < area.Min.Y; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatFrequency(mhz)
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-width.Round()/2, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, area image.Rectangle, lengthSec float64) error {
	count := max(2, area.Dy()/pixelsPerTimeLabel)
	secsPerLabel := lengthSec / float64(count)
	pxPerLabel := area.Dy() / count

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	for si := 0; si <= count; si++ {
		y := area.Min.Y + si*pxPerLabel
		if y > area.Max.Y {
			y = area.Max.Y
		}

		for x := area.Min.X - tickMarkHeight; x < area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := formatSeconds(float64(si) * secsPerLabel)
		textY := y + fontHeight/2 - metrics.Descent.Round()
		pt := freetype.Pt(10, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeAxis(img *image.RGBA, area image.Rectangle, duration float64) error {
	count := max(2, area.Dx()/pixelsPerFreqLabel)
	secsPerLabel := duration / float64(count)
	pxPerLabel := area.Dx() / count

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := area.Max.Y + tickMarkHeight + fontHeight

	for si := 0; si <= count; si++ {
		x := area.Min.X + si*pxPerLabel
		if x > area.Max.X {
			x = area.Max.X
		}

		for y := area.Max.Y; y < area.Max.Y+tickMarkHeight; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatSeconds(float64(si) * secsPerLabel)
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-width.Round()/2, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawValueAxis(img *image.RGBA, area image.Rectangle, values []float64) error {
	lo, hi := curveRange(values)

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	labels := []struct {
		v float64
		y int
	}{
		{hi, area.Min.Y},
		{(lo + hi) / 2, (area.Min.Y + area.Max.Y) / 2},
		{lo, area.Max.Y},
	}
	for _, l := range labels {
		for x := area.Min.X - tickMarkHeight; x < area.Min.X; x++ {
			img.Set(x, l.y, color.Black)
		}
		pt := freetype.Pt(10, l.y+fontHeight/2-metrics.Descent.Round())
		if _, err := a.context.DrawString(fmt.Sprintf("%.3g", l.v), pt); err != nil {
			return fmt.Errorf("drawing value label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, area image.Rectangle, spec *SpectrumImage) error {
	var sb strings.Builder

	if spec.Source != "" {
		sb.WriteString(spec.Source)
		if spec.Channel != "" {
			sb.WriteString(" ")
			sb.WriteString(spec.Channel)
		}
		sb.WriteString("; ")
	}

	sb.WriteString(fmt.Sprintf("Band: %s - %s",
		formatFrequency(spec.FreqMin), formatFrequency(spec.FreqMax)))
	sb.WriteString("; ")

	freqPerPixel := (spec.FreqMax - spec.FreqMin) / float64(area.Dx())
	secPerPixel := spec.LengthSec / float64(area.Dy())
	sb.WriteString(fmt.Sprintf("1px = %s x %.2fs", formatFrequency(freqPerPixel), secPerPixel))

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-fontHeight)/2 - metrics.Descent.Round()

	pt := freetype.Pt(area.Min.X, textY)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

// formatFrequency formats a frequency given in MHz with an SI suffix.
func formatFrequency(mhz float64) string {
	fract, suffix := humanize.ComputeSI(mhz * 1e6)
	return fmt.Sprintf("%.1f %sHz", fract, suffix)
}

func formatSeconds(secs float64) string {
	d := time.Duration(secs * float64(time.Second)).Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return d.String()
}
