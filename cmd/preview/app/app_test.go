package app

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/radioscan/dishpipe/internal/render"
	"github.com/radioscan/dishpipe/internal/scan"
	"github.com/radioscan/dishpipe/internal/storage"
)

// memStore serves canned records so the rendering loop can be exercised
// without a database file.
type memStore struct {
	scans  []*storage.ScanRecord
	curves map[int64]map[string]*storage.CurveRecord
}

var _ storage.Store = (*memStore)(nil)

func (m *memStore) CreateRun(ctx context.Context, label string, config any) (int64, error) {
	return 0, nil
}

func (m *memStore) Run(ctx context.Context, id int64) (*storage.Run, error) { return nil, nil }

func (m *memStore) Runs(ctx context.Context) ([]*storage.Run, error) { return nil, nil }

func (m *memStore) StoreScan(ctx context.Context, runID int64, s *scan.Scan) (int64, error) {
	return 0, nil
}

func (m *memStore) Scans(ctx context.Context, runID int64) ([]*storage.ScanRecord, error) {
	return m.scans, nil
}

func (m *memStore) Curves(ctx context.Context, scanID int64) ([]string, error) {
	channels := make([]string, 0, len(m.curves[scanID]))
	for name := range m.curves[scanID] {
		channels = append(channels, name)
	}
	sort.Strings(channels)
	return channels, nil
}

func (m *memStore) LightCurve(ctx context.Context, scanID int64, channel string) (*storage.CurveRecord, error) {
	return m.curves[scanID][channel], nil
}

func (m *memStore) Close() error { return nil }

func TestRenderRunSkipsUnrenderableCurve(t *testing.T) {
	times := make([]float64, 64)
	values := make([]float64, 64)
	for i := range times {
		times[i] = 59123 + float64(i)/86400
		values[i] = 10 + math.Sin(float64(i)/8)
	}

	store := &memStore{
		scans: []*storage.ScanRecord{{ID: 1, RunID: 7, Source: "W44"}},
		curves: map[int64]map[string]*storage.CurveRecord{
			1: {
				"Ch0": {ScanID: 1, Channel: "Ch0", Times: times, Values: values},
				// A curve with no stored points cannot be drawn; it must
				// be skipped without aborting the rest of the run.
				"Ch1": {ScanID: 1, Channel: "Ch1"},
			},
		},
	}

	out := t.TempDir()
	config := &Config{RunID: 7, OutputDir: out, Format: ImagePNG}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	renderer := render.NewRenderer(render.Config{})

	if err := renderRun(context.Background(), store, config, renderer, logger); err != nil {
		t.Fatalf("renderRun: %v", err)
	}

	if _, err := os.Stat(filepath.Join(out, "scan001_Ch0.png")); err != nil {
		t.Errorf("healthy curve not rendered: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "scan001_Ch1.png")); err == nil {
		t.Error("empty curve produced an image")
	}
}
