package app

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/radioscan/dishpipe/internal/fitsio"
	"github.com/radioscan/dishpipe/internal/render"
	"github.com/radioscan/dishpipe/internal/scan"
	"github.com/radioscan/dishpipe/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	stat, err := os.Stat(config.OutputDir)
	if err != nil {
		return fmt.Errorf("output directory '%s': %w", config.OutputDir, err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("'%s' is not a directory", config.OutputDir)
	}

	renderer := render.NewRenderer(render.Config{Theme: config.Theme})

	if config.FITSPath != "" {
		return renderArchive(config, renderer, logger)
	}

	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return renderRun(ctx, store, config, renderer, logger)
}

// renderRun draws the stored light curves of a reduction run. A curve that
// cannot be rendered is reported and skipped, without failing the run.
func renderRun(ctx context.Context, store storage.Store, config *Config, renderer *render.Renderer, logger *slog.Logger) error {
	scans, err := store.Scans(ctx, config.RunID)
	if err != nil {
		return err
	}
	if len(scans) == 0 {
		return fmt.Errorf("run %d has no stored scans", config.RunID)
	}

	for _, rec := range scans {
		if config.ScanID != 0 && rec.ID != config.ScanID {
			continue
		}

		channels, err := store.Curves(ctx, rec.ID)
		if err != nil {
			return err
		}

		for _, channel := range channels {
			curve, err := store.LightCurve(ctx, rec.ID, channel)
			if err != nil {
				return err
			}

			secs := make([]float64, len(curve.Times))
			for i, t := range curve.Times {
				secs[i] = 86400 * (t - curve.Times[0])
			}

			img, err := renderer.LightCurve(&render.CurvePlot{
				Title:  fmt.Sprintf("%s %s", rec.Source, channel),
				Times:  secs,
				Values: curve.Values,
			})
			if err != nil {
				logger.Warn("light curve skipped",
					slog.Int64("scan", rec.ID),
					slog.String("channel", channel),
					slog.String("error", err.Error()))
				continue
			}

			name := fmt.Sprintf("scan%03d_%s.%s", rec.ID, channel, config.Format)
			path := filepath.Join(config.OutputDir, name)
			if err = writeImage(path, img, config.Format); err != nil {
				return err
			}

			logger.Info("light curve rendered",
				slog.String("destination", path),
				slog.String("source", rec.Source),
				slog.Int("points", len(curve.Values)))
		}
	}
	return nil
}

// renderArchive cleans a scan archive and draws the dynamical spectrum of
// every channel, with rejected channels marked.
func renderArchive(config *Config, renderer *render.Renderer, logger *slog.Logger) error {
	sc, err := fitsio.ReadScan(config.FITSPath)
	if err != nil {
		return err
	}

	// Cleaning replaces the channel bandwidth with the merged sub-band,
	// while the retained spectra still span the full recorded band.
	bands := make(map[string][2]float64, len(sc.Channels))
	for _, ch := range sc.Channels {
		bands[ch.Name] = [2]float64{ch.Frequency, ch.Frequency + ch.Bandwidth}
	}

	if _, err = sc.CleanAndSplat(scan.CleanOptions{
		Selection:    config.Selection,
		KeepSpectrum: true,
		Logger:       logger,
	}); err != nil {
		return fmt.Errorf("cleaning %s: %w", config.FITSPath, err)
	}

	base := filepath.Base(config.FITSPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	for _, ch := range sc.Channels {
		if len(ch.Spectrum) == 0 {
			continue
		}
		band := bands[ch.Name]

		img, err := renderer.Waterfall(&render.SpectrumImage{
			Source:    sc.Source,
			Channel:   ch.Name,
			FreqMin:   band[0],
			FreqMax:   band[1],
			LengthSec: sc.Length(),
			Data:      ch.Spectrum,
			Mask:      ch.Mask,
		})
		if err != nil {
			return fmt.Errorf("rendering %s: %w", ch.Name, err)
		}

		path := filepath.Join(config.OutputDir, fmt.Sprintf("%s_%s.%s", base, ch.Name, config.Format))
		if err = writeImage(path, img, config.Format); err != nil {
			return err
		}

		logger.Info("dynamical spectrum rendered",
			slog.String("destination", path),
			slog.String("source", sc.Source),
			slog.String("channel", ch.Name))
	}
	return nil
}

func writeImage(path string, img image.Image, format ImageFormat) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	switch format {
	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		err = png.Encode(out, img)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}
