// Package scan models a single telescope subscan: the sampled sky
// coordinates, the per-channel dynamical spectra, and the operations that
// turn them into calibrated-ready light curves (RFI cleaning, spectral
// merging and baseline subtraction).
package scan

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/radioscan/dishpipe/internal/baseline"
	"github.com/radioscan/dishpipe/internal/rfi"
	"github.com/radioscan/dishpipe/internal/spill"
	"github.com/radioscan/dishpipe/internal/stats"
)

// secondsPerDay converts the MJD timestamps of the scan to seconds.
const secondsPerDay = 86400

// ErrTimeOrder reports samples that are not in chronological order, which
// breaks every downstream assumption about the light curve.
var ErrTimeOrder = errors.New("scan times are not sorted")

// chanRe matches the data columns of a subscan: Ch0, Ch1, ... optionally with
// a Stokes suffix such as Ch0_Q.
var chanRe = regexp.MustCompile(`^Ch([0-9]+)`)

// IsChannel reports whether a column name denotes a data channel.
func IsChannel(name string) bool {
	return chanRe.MatchString(name)
}

// ChannelFeed extracts the feed number encoded in a channel name; -1 when the
// name is not a channel.
func ChannelFeed(name string) int {
	m := chanRe.FindStringSubmatch(name)
	if m == nil {
		return -1
	}
	feed, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return feed
}

// isStokes reports whether a channel carries a Stokes Q or U product, which
// cannot be RFI-masked on its own variability and follows the mask of the
// total-intensity channels instead.
func isStokes(name string) bool {
	return strings.Contains(name, "_Q") || strings.Contains(name, "_U")
}

// Channel is one detector/polarization product of a subscan.
type Channel struct {
	Name      string
	Frequency float64 // band centre, MHz
	Bandwidth float64 // MHz; rewritten to the retained width after cleaning

	// Spectrum is the dynamical spectrum, one row of channels per sample.
	// It is released after cleaning unless the cleaning asked to keep it.
	Spectrum [][]float64

	// LightCurve is the collapsed, flattened intensity; set by
	// CleanAndSplat or carried directly by backends without spectral
	// resolution.
	LightCurve []float64

	// Mask is the per-frequency-channel retention mask from the last
	// cleaning; nil for non-spectral channels.
	Mask []bool
}

// Feed is the feed number encoded in the channel name.
func (c *Channel) Feed() int { return ChannelFeed(c.Name) }

// Scan is a single subscan of a map or calibrator observation.
type Scan struct {
	Filename  string
	Source    string
	SubScanID int
	Receiver  string
	Backend   string

	Times []float64 // MJD, one per sample

	// RA and Dec are per-sample, per-feed sky coordinates in radians:
	// RA[i][f] is the right ascension of feed f at sample i. Az and El
	// follow the same layout.
	RA  [][]float64
	Dec [][]float64
	Az  [][]float64
	El  [][]float64

	Channels []*Channel

	// Backsub records that the baseline has been subtracted.
	Backsub bool
}

// Channel returns the named channel, or nil.
func (s *Scan) Channel(name string) *Channel {
	for _, ch := range s.Channels {
		if ch.Name == name {
			return ch
		}
	}
	return nil
}

// CheckOrder verifies that the sample times increase monotonically.
func (s *Scan) CheckOrder() error {
	for i := 1; i < len(s.Times); i++ {
		if s.Times[i] < s.Times[i-1] {
			return fmt.Errorf("%w: sample %d precedes sample %d", ErrTimeOrder, i, i-1)
		}
	}
	return nil
}

// Length is the scan duration in seconds.
func (s *Scan) Length() float64 {
	if len(s.Times) < 2 {
		return 0
	}
	return secondsPerDay * (s.Times[len(s.Times)-1] - s.Times[0])
}

// SampleInterval estimates the sampling time in seconds as the median
// difference of consecutive timestamps, robust to occasional gaps.
func (s *Scan) SampleInterval() float64 {
	return secondsPerDay * stats.MedianDiff(s.Times, true)
}

// TimesSeconds returns the sample times in seconds from the start of the
// scan.
func (s *Scan) TimesSeconds() []float64 {
	out := make([]float64, len(s.Times))
	if len(s.Times) == 0 {
		return out
	}
	for i, t := range s.Times {
		out[i] = secondsPerDay * (t - s.Times[0])
	}
	return out
}

// CleanOptions configures CleanAndSplat.
type CleanOptions struct {
	// Selection is the frequency sub-band to merge, in the syntax of
	// rfi.ParseSelection.
	Selection       string
	NoiseThreshold  float64
	SmoothingWindow float64
	// GoodMask forces channels to be kept, e.g. for spectral lines.
	GoodMask []bool
	// BaselineALS smooths the variability curve with asymmetric least
	// squares instead of a median filter.
	BaselineALS bool
	// NoFilter applies only the static frequency selection.
	NoFilter bool
	// KeepSpectrum retains the cleaned dynamical spectrum on the channel
	// instead of releasing it after the splat.
	KeepSpectrum bool

	// Spiller parks intermediate statistics between cleaning stages;
	// nil keeps them in memory.
	Spiller spill.Spiller

	Logger *slog.Logger
}

func (o CleanOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// CleanAndSplat removes RFI from every spectral channel and merges the
// retained band into a single light curve per channel.
//
// Total-intensity channels are cleaned on their own variability; their masks
// are AND-ed together and the combined mask is applied to the Stokes Q/U
// channels, whose variability statistic is not meaningful on its own. A
// channel whose cleaning fails (for instance with rfi.ErrAllChannelsMasked)
// is left untouched and reported in the log, without failing the scan.
//
// The returned map carries the final retention mask of every cleaned channel.
func (s *Scan) CleanAndSplat(opts CleanOptions) (map[string][]bool, error) {
	if err := s.CheckOrder(); err != nil {
		return nil, err
	}
	log := opts.logger()

	masks := make(map[string][]bool)
	var combined []bool

	for _, ch := range s.Channels {
		if isStokes(ch.Name) {
			continue
		}
		if len(ch.Spectrum) == 0 {
			log.Warn("channel has no spectral data, skipping cleaning",
				"scan", s.Filename, "channel", ch.Name)
			continue
		}

		res, st, err := rfi.CleanScan(ch.Spectrum, rfi.Options{
			Selection:       opts.Selection,
			Bandwidth:       ch.Bandwidth,
			NoiseThreshold:  opts.NoiseThreshold,
			SmoothingWindow: opts.SmoothingWindow,
			GoodMask:        opts.GoodMask,
			BaselineALS:     opts.BaselineALS,
			NoFilter:        opts.NoFilter,
			Length:          s.Length(),
		}, opts.Spiller)
		if err != nil {
			log.Warn("channel cleaning failed, leaving it unfiltered",
				"scan", s.Filename, "channel", ch.Name, "error", err)
			continue
		}
		if st.Skipped {
			log.Warn("too few samples for spectral filtering",
				"scan", s.Filename, "channel", ch.Name, "samples", st.Samples)
		}

		ch.LightCurve = res.LightCurve
		ch.Mask = res.Mask
		ch.Bandwidth = res.FreqMax - res.FreqMin
		if opts.KeepSpectrum {
			ch.Spectrum = res.Spectrum
		} else {
			ch.Spectrum = nil
		}
		masks[ch.Name] = res.Mask

		if combined == nil {
			combined = append([]bool(nil), res.Mask...)
		} else if len(res.Mask) != len(combined) {
			log.Warn("channel width differs from the rest of the scan, not merging its mask",
				"scan", s.Filename, "channel", ch.Name,
				"channels", len(res.Mask), "expected", len(combined))
		} else {
			for j := range combined {
				combined[j] = combined[j] && res.Mask[j]
			}
		}
	}

	// Stokes products follow the combined total-intensity mask.
	for _, ch := range s.Channels {
		if !isStokes(ch.Name) || len(ch.Spectrum) == 0 {
			continue
		}
		if combined == nil {
			log.Warn("no total-intensity mask available for Stokes channel",
				"scan", s.Filename, "channel", ch.Name)
			continue
		}
		if len(ch.Spectrum[0]) != len(combined) {
			log.Warn("Stokes channel width differs from the total-intensity mask, skipping",
				"scan", s.Filename, "channel", ch.Name,
				"channels", len(ch.Spectrum[0]), "expected", len(combined))
			continue
		}
		ch.LightCurve = rfi.FrequencyFilter(ch.Spectrum, combined)
		ch.Mask = append([]bool(nil), combined...)
		if !opts.KeepSpectrum {
			ch.Spectrum = nil
		}
		masks[ch.Name] = ch.Mask
	}
	return masks, nil
}

// BaselineKind selects the baseline estimator of BaselineSubtract.
type BaselineKind string

const (
	// BaselineALS subtracts a stiff asymmetric-least-squares baseline.
	BaselineALS BaselineKind = "als"
	// BaselineRough subtracts a chunked running-median baseline.
	BaselineRough BaselineKind = "rough"
)

// Region is a circular sky region to exclude from baseline fitting, e.g.
// around a known source. All values in radians.
type Region struct {
	RA     float64
	Dec    float64
	Radius float64
}

// BaselineSubtract flattens the light curve of every channel in place.
//
// Samples falling inside any of the avoid regions are excluded from the fit,
// so a strong source does not bias the baseline; the fitted trend is still
// subtracted there. Stokes channels always use the rough estimator, since
// their curves may legitimately cross zero and the lower-envelope tracking
// of ALS would distort them.
func (s *Scan) BaselineSubtract(kind BaselineKind, avoid []Region) error {
	switch kind {
	case BaselineALS, BaselineRough:
	default:
		return fmt.Errorf("unknown baseline technique %q", kind)
	}

	times := s.TimesSeconds()
	for _, ch := range s.Channels {
		lc := ch.LightCurve
		if len(lc) == 0 {
			continue
		}
		if len(lc) < 10 {
			med := stats.Median(lc)
			for i := range lc {
				lc[i] -= med
			}
			continue
		}

		mask := s.avoidMask(ch.Feed(), len(lc), avoid)

		var fit *baseline.Fit
		if kind == BaselineRough || isStokes(ch.Name) {
			fit = baseline.Rough(times, lc, mask)
		} else {
			fit = baseline.ALS(times, lc, baseline.WithMask(mask))
		}
		ch.LightCurve = fit.Flattened
	}
	s.Backsub = true
	return nil
}

// avoidMask marks the samples of the given feed that lie outside every avoid
// region; nil when there is nothing to avoid.
func (s *Scan) avoidMask(feed, n int, avoid []Region) []bool {
	if len(avoid) == 0 {
		return nil
	}
	if feed < 0 {
		feed = 0
	}
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
		if i >= len(s.RA) || feed >= len(s.RA[i]) {
			continue
		}
		ra, dec := s.RA[i][feed], s.Dec[i][feed]
		for _, r := range avoid {
			if skyDistance(ra, dec, r.RA, r.Dec) < r.Radius {
				mask[i] = false
				break
			}
		}
	}
	return mask
}
