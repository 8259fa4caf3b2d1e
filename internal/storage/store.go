package storage

import (
	"context"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/radioscan/dishpipe/internal/scan"
)

// Run is one invocation of the reduction pipeline over a set of scans.
type Run struct {
	ID        int64
	StartTime time.Time
	Label     string
	// Config is the serialized pipeline configuration, when recorded.
	Config *string
}

// ScanRecord is the stored metadata of one reduced subscan.
type ScanRecord struct {
	ID        int64
	RunID     int64
	Filename  string
	Source    string
	SubScanID int
	Receiver  string
	Backend   string
	Samples   int
	MJDStart  float64
	LengthSec float64
}

// CurveRecord is one stored per-channel light curve.
type CurveRecord struct {
	ScanID    int64
	Channel   string
	Frequency float64
	Bandwidth float64
	Times     []float64 // MJD, one per point
	Values    []float64
	Mask      []bool // per-frequency-channel retention mask
}

// Store persists reduction results. It handles runs, reduced scans and their
// light curves in a thread-safe manner. All writing operations are atomic.
type Store interface {
	// CreateRun opens a new reduction run and returns its identifier.
	// config may be a string, []byte, or any JSON-serializable value; it
	// is recorded verbatim for provenance.
	CreateRun(ctx context.Context, label string, config any) (runID int64, err error)

	// Run retrieves a reduction run by ID.
	Run(ctx context.Context, id int64) (*Run, error)

	// Runs returns every recorded run, oldest first.
	Runs(ctx context.Context) ([]*Run, error)

	// StoreScan saves the metadata and all channel light curves of a
	// reduced scan in a single transaction.
	StoreScan(ctx context.Context, runID int64, s *scan.Scan) (scanID int64, err error)

	// Scans lists the scans reduced in a run, in insertion order.
	Scans(ctx context.Context, runID int64) ([]*ScanRecord, error)

	// Curves lists the channels with a stored light curve for a scan.
	Curves(ctx context.Context, scanID int64) ([]string, error)

	// LightCurve loads the stored curve of one channel of a scan.
	LightCurve(ctx context.Context, scanID int64, channel string) (*CurveRecord, error)

	// Close releases the database connections. The store cannot be reused
	// afterwards. It is safe to call Close multiple times.
	Close() error
}
