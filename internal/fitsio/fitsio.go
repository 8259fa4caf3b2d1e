// Package fitsio reads subscan archives: FITS files carrying one binary
// table with the sampled sky coordinates and one column of spectra per
// detector channel.
//
// The table must contain a "time" column (MJD) and "ra"/"dec" columns in
// radians, one value per feed. Channel columns are named Ch0, Ch1, ...
// (optionally with a Stokes suffix such as Ch0_Q) and carry one spectrum per
// row; the band centre and width of field n are read from the TFREQn and
// TBWIDn header keys, in MHz.
package fitsio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/siravan/fits"

	"github.com/radioscan/dishpipe/internal/scan"
)

// ErrNotScan reports a FITS file that does not contain a subscan table.
var ErrNotScan = errors.New("no subscan table in FITS file")

// ReadScan reads a subscan archive from disk.
func ReadScan(path string) (*scan.Scan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening scan: %w", err)
	}
	defer f.Close()

	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading scan %s: %w", path, err)
	}
	s.Filename = path
	return s, nil
}

// Read assembles a scan from a FITS stream.
func Read(r io.Reader) (*scan.Scan, error) {
	units, err := fits.Open(r)
	if err != nil {
		return nil, fmt.Errorf("parsing FITS: %w", err)
	}
	if len(units) == 0 {
		return nil, ErrNotScan
	}

	s := &scan.Scan{}
	if len(units) > 0 {
		keys := units[0].Keys
		s.Source, _ = keys["SOURCE"].(string)
		s.Receiver, _ = keys["RECEIVER"].(string)
		s.Backend, _ = keys["BACKEND"].(string)
		if id, ok := keys["SUBSCAN"].(int); ok {
			s.SubScanID = id
		}
	}

	table := findScanTable(units)
	if table == nil {
		return nil, ErrNotScan
	}
	if err := loadTable(s, table); err != nil {
		return nil, err
	}
	return s, nil
}

func findScanTable(units []*fits.Unit) *fits.Unit {
	for _, u := range units {
		if !u.HasTable() {
			continue
		}
		if _, ok := u.Keys["#time"]; ok {
			return u
		}
	}
	return nil
}

func loadTable(s *scan.Scan, u *fits.Unit) error {
	if len(u.Naxis) < 2 {
		return fmt.Errorf("%w: table has no row count", ErrNotScan)
	}
	nrows := u.Naxis[1]
	if nrows == 0 {
		return fmt.Errorf("%w: empty table", ErrNotScan)
	}

	timeFn := u.Field("time")
	if timeFn == nil {
		return fmt.Errorf("%w: missing time column", ErrNotScan)
	}
	s.Times = make([]float64, nrows)
	for i := 0; i < nrows; i++ {
		v, err := scalar(timeFn(i))
		if err != nil {
			return fmt.Errorf("time[%d]: %w", i, err)
		}
		s.Times[i] = v
	}

	var err error
	if s.RA, err = coordColumn(u, "ra", nrows); err != nil {
		return err
	}
	if s.Dec, err = coordColumn(u, "dec", nrows); err != nil {
		return err
	}
	// Horizontal coordinates are optional in the archive.
	s.Az, _ = coordColumn(u, "az", nrows)
	s.El, _ = coordColumn(u, "el", nrows)

	tfields, _ := u.Keys["TFIELDS"].(int)
	for n := 1; n <= tfields; n++ {
		name, _ := u.Keys[fits.Nth("TTYPE", n)].(string)
		if !scan.IsChannel(name) {
			continue
		}
		fn := u.Field(name)
		if fn == nil {
			continue
		}
		ch := &scan.Channel{
			Name:      name,
			Frequency: floatKey(u.Keys, fmt.Sprintf("TFREQ%d", n)),
			Bandwidth: floatKey(u.Keys, fmt.Sprintf("TBWID%d", n)),
		}
		if ch.Bandwidth == 0 {
			return fmt.Errorf("%w: channel %s has no TBWID%d bandwidth", ErrNotScan, name, n)
		}
		ch.Spectrum = make([][]float64, nrows)
		for i := 0; i < nrows; i++ {
			row, err := vector(fn(i))
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", name, i, err)
			}
			ch.Spectrum[i] = row
		}
		s.Channels = append(s.Channels, ch)
	}
	if len(s.Channels) == 0 {
		return fmt.Errorf("%w: no channel columns", ErrNotScan)
	}
	return nil
}

func coordColumn(u *fits.Unit, name string, nrows int) ([][]float64, error) {
	fn := u.Field(name)
	if fn == nil {
		return nil, fmt.Errorf("%w: missing %s column", ErrNotScan, name)
	}
	out := make([][]float64, nrows)
	for i := 0; i < nrows; i++ {
		row, err := vector(fn(i))
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		out[i] = row
	}
	return out, nil
}

// scalar coerces a single-valued FITS cell to float64.
func scalar(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("unsupported cell type %T", v)
	}
}

// vector coerces a FITS cell to a float64 slice; scalar cells become
// one-element slices.
func vector(v interface{}) ([]float64, error) {
	switch x := v.(type) {
	case []float64:
		return append([]float64(nil), x...), nil
	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out, nil
	default:
		f, err := scalar(v)
		if err != nil {
			return nil, err
		}
		return []float64{f}, nil
	}
}

func floatKey(keys map[string]interface{}, name string) float64 {
	switch x := keys[name].(type) {
	case float64:
		return x
	case int:
		return float64(x)
	default:
		return 0
	}
}
