package rfi

import (
	"fmt"

	"github.com/radioscan/dishpipe/internal/spill"
)

// CleanScan runs the full detector on a dynamical spectrum: variability
// statistics, channel masking, and interpolation into a cleaned light curve.
//
// The statistics are parked with sp between the two stages, so that with a
// disk-backed spiller the variability image of one stage does not have to
// coexist in memory with the cleaned spectrum of the next. A nil sp keeps
// everything in memory.
func CleanScan(dyn [][]float64, opts Options, sp spill.Spiller) (*Result, *Stats, error) {
	if sp == nil {
		sp = spill.Keep{}
	}

	st, err := ComputeStats(dyn, opts)
	if err != nil {
		return nil, nil, err
	}

	h, err := sp.Store(st)
	if err != nil {
		return nil, nil, fmt.Errorf("parking scan statistics: %w", err)
	}
	st = nil

	var loaded Stats
	if err := h.Load(&loaded); err != nil {
		return nil, nil, fmt.Errorf("recovering scan statistics: %w", err)
	}

	res, err := Clean(dyn, &loaded)
	if err != nil {
		return nil, nil, err
	}
	return res, &loaded, nil
}
