package app

import (
	"fmt"
	"math"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/radioscan/dishpipe/internal/scan"
)

// Config represents the main application configuration
type Config struct {
	Settings    Settings          `yaml:"settings"`
	Reduction   ReductionConfig   `yaml:"reduction"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Storage     StorageConfig     `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
	Workers  int    `yaml:"workers"`
}

// ReductionConfig controls RFI cleaning and baseline subtraction
type ReductionConfig struct {
	// FrequencySelection restricts the merged band, e.g. "200:800" (MHz
	// from the band edge), ":" for the whole band, or empty for the
	// default central 80%.
	FrequencySelection string  `yaml:"frequencySelection"`
	NoiseThreshold     float64 `yaml:"noiseThreshold"`
	SmoothingWindow    float64 `yaml:"smoothingWindow"`
	ALSVariability     bool    `yaml:"alsVariability"`
	NoFilter           bool    `yaml:"noFilter"`

	Baseline     string         `yaml:"baseline"` // "als" or "rough"
	AvoidRegions []RegionConfig `yaml:"avoidRegions"`

	// SpillDirectory, when set, parks large intermediate statistics in
	// scratch files there instead of keeping them in memory.
	SpillDirectory string `yaml:"spillDirectory"`
}

// RegionConfig is a circular sky region excluded from baseline fitting,
// in degrees.
type RegionConfig struct {
	RA     float64 `yaml:"ra"`
	Dec    float64 `yaml:"dec"`
	Radius float64 `yaml:"radius"`
}

func (r RegionConfig) toRadians() scan.Region {
	const degree = math.Pi / 180
	return scan.Region{
		RA:     r.RA * degree,
		Dec:    r.Dec * degree,
		Radius: r.Radius * degree,
	}
}

// CalibrationConfig points at a directory of calibrator tables. Empty
// disables flux calibration.
type CalibrationConfig struct {
	Directory string `yaml:"directory"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	Label         string `yaml:"label"`
}

// LoadConfig reads and validates the YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(buf, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if config.Settings.Workers <= 0 {
		config.Settings.Workers = runtime.NumCPU()
	}
	if config.Reduction.Baseline == "" {
		config.Reduction.Baseline = string(scan.BaselineALS)
	}
	switch scan.BaselineKind(config.Reduction.Baseline) {
	case scan.BaselineALS, scan.BaselineRough:
	default:
		return nil, fmt.Errorf("unknown baseline estimator %q", config.Reduction.Baseline)
	}

	return &config, nil
}
