package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/radioscan/dishpipe/internal/calib"
	"github.com/radioscan/dishpipe/internal/fitsio"
	"github.com/radioscan/dishpipe/internal/scan"
	"github.com/radioscan/dishpipe/internal/spill"
	"github.com/radioscan/dishpipe/internal/storage"
)

// WithWorkers sets the number of scans reduced in parallel.
func WithWorkers(n int) func(*Reducer) {
	return func(r *Reducer) {
		r.workers = n
	}
}

// WithCalibration sets the calibrator table used to scale light curves of
// known flux calibrators to Jy.
func WithCalibration(table *calib.Table) func(*Reducer) {
	return func(r *Reducer) {
		r.cals = table
	}
}

// Reducer runs the reduction pipeline over a batch of scan archives: RFI
// cleaning, baseline subtraction, optional flux calibration, and storage.
// Scans are reduced in parallel; a failing scan is reported and skipped
// without aborting the batch.
type Reducer struct {
	config *Config
	logger *slog.Logger
	store  storage.Store
	cals   *calib.Table

	workers int

	wg sync.WaitGroup
}

// NewReducer creates a new Reducer
func NewReducer(config *Config, store storage.Store, logger *slog.Logger, options ...func(*Reducer)) *Reducer {
	r := Reducer{
		config:  config,
		logger:  logger,
		store:   store,
		workers: 1,
	}

	for _, option := range options {
		option(&r)
	}
	if r.workers < 1 {
		r.workers = 1
	}

	return &r
}

// Run reduces all archives and stores the results under a single run.
func (r *Reducer) Run(ctx context.Context, files []string) error {
	configData, err := yaml.Marshal(r.config)
	if err != nil {
		return fmt.Errorf("recording run configuration: %w", err)
	}
	runID, err := r.store.CreateRun(ctx, r.config.Storage.Label, configData)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	jobs := make(chan string)
	reduced := make(chan *scan.Scan, r.workers)

	// Database writes stay on a single goroutine.
	storeDone := make(chan error, 1)
	go func() {
		var firstErr error
		for sc := range reduced {
			if _, err := r.store.StoreScan(ctx, runID, sc); err != nil {
				r.logger.Error("storing scan failed", "scan", sc.Filename, "error", err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			r.logger.Info("scan stored", "scan", sc.Filename, "source", sc.Source)
		}
		storeDone <- firstErr
	}()

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.reduceScans(ctx, jobs, reduced)
	}

feed:
	for _, path := range files {
		select {
		case jobs <- path:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)

	r.wg.Wait()
	close(reduced)

	if err = <-storeDone; err != nil {
		return fmt.Errorf("storing reductions: %w", err)
	}
	return ctx.Err()
}

func (r *Reducer) reduceScans(ctx context.Context, jobs <-chan string, reduced chan<- *scan.Scan) {
	defer r.wg.Done()

	for path := range jobs {
		sc, err := r.reduce(path)
		if err != nil {
			r.logger.Error("reducing scan failed", "scan", path, "error", err)
			continue
		}

		select {
		case reduced <- sc:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reducer) reduce(path string) (*scan.Scan, error) {
	sc, err := fitsio.ReadScan(path)
	if err != nil {
		return nil, err
	}

	red := &r.config.Reduction

	var spiller spill.Spiller
	if red.SpillDirectory != "" {
		spiller = spill.Auto{Disk: spill.Disk{Dir: red.SpillDirectory}}
	}

	if _, err = sc.CleanAndSplat(scan.CleanOptions{
		Selection:       red.FrequencySelection,
		NoiseThreshold:  red.NoiseThreshold,
		SmoothingWindow: red.SmoothingWindow,
		BaselineALS:     red.ALSVariability,
		NoFilter:        red.NoFilter,
		Spiller:         spiller,
		Logger:          r.logger,
	}); err != nil {
		return nil, fmt.Errorf("cleaning: %w", err)
	}

	avoid := make([]scan.Region, len(red.AvoidRegions))
	for i, reg := range red.AvoidRegions {
		avoid[i] = reg.toRadians()
	}
	if err = sc.BaselineSubtract(scan.BaselineKind(red.Baseline), avoid); err != nil {
		return nil, fmt.Errorf("subtracting baseline: %w", err)
	}

	r.calibrate(sc)
	return sc, nil
}

// calibrate scales the light curves of a known flux calibrator to Jy and
// logs the counts-to-Jy factor so it can be applied to target scans.
func (r *Reducer) calibrate(sc *scan.Scan) {
	if r.cals == nil {
		return
	}

	var mjd float64
	if len(sc.Times) > 0 {
		mjd = sc.Times[0]
	}

	for _, ch := range sc.Channels {
		if len(ch.LightCurve) == 0 {
			continue
		}

		// Channel frequencies are in MHz, the calibrator tables in GHz.
		flux, _, err := r.cals.Flux(sc.Source, ch.Frequency/1e3, ch.Bandwidth/1e3, mjd)
		if errors.Is(err, calib.ErrUnknownCalibrator) {
			return
		}
		if err != nil {
			r.logger.Warn("flux calibration skipped",
				"scan", sc.Filename, "channel", ch.Name, "error", err)
			continue
		}

		var peak float64
		for _, v := range ch.LightCurve {
			peak = math.Max(peak, v)
		}
		factor, err := calib.JyPerCount(flux, peak)
		if err != nil {
			r.logger.Warn("flux calibration skipped",
				"scan", sc.Filename, "channel", ch.Name, "error", err)
			continue
		}

		calib.ApplyFactor(ch.LightCurve, factor)
		r.logger.Info("flux calibration applied",
			"scan", sc.Filename, "channel", ch.Name, "jyPerCount", factor)
	}
}
