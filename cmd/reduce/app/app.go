package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/radioscan/dishpipe/internal/calib"
	"github.com/radioscan/dishpipe/internal/storage"
)

const storageDir = "data"

// Run reduces the given scan archives and stores the results in a fresh
// reduction database.
func Run(ctx context.Context, config *Config, logger *slog.Logger, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("no scan archives to reduce")
	}

	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	options := []func(*Reducer){WithWorkers(config.Settings.Workers)}
	if config.Calibration.Directory != "" {
		table, err := calib.Load(config.Calibration.Directory)
		if err != nil {
			return fmt.Errorf("loading calibrator tables: %w", err)
		}
		options = append(options, WithCalibration(table))
	}

	return NewReducer(config, store, logger, options...).Run(ctx, files)
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dir := filepath.Join(wd, storageDir)
	if config.DataDirectory != "" {
		dir = filepath.Join(wd, config.DataDirectory)
	}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return nil, fmt.Errorf("inspecting storage directory: %w", err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	dbPath := filepath.Join(dir, fmt.Sprintf("reduction_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
