package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/radioscan/dishpipe/internal/render"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

// Config selects what to render. Exactly one of DBPath and FITSPath must be
// set: a database renders stored light curves, an archive renders cleaned
// dynamical spectra.
type Config struct {
	DBPath   string
	RunID    int64
	ScanID   int64 // 0 renders every scan of the run
	FITSPath string

	// Selection restricts the band when cleaning an archive.
	Selection string

	OutputDir string
	Format    ImageFormat
	Theme     render.ColorTheme
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		RunID:  1,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, theme string
	flag.StringVar(&c.DBPath, "db", "", "Path to a reduction database")
	flag.Int64Var(&c.RunID, "run", 1, "Reduction run ID")
	flag.Int64Var(&c.ScanID, "scan", 0, "Scan ID; 0 renders every scan of the run")
	flag.StringVar(&c.FITSPath, "fits", "", "Path to a scan archive to clean and render")
	flag.StringVar(&c.Selection, "selection", "", "Frequency selection used when cleaning an archive")
	flag.StringVar(&c.OutputDir, "o", "", "Output directory for the rendered images")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&theme, "theme", "", "Color theme. [classic, grayscale, jungle, thermal, marine]")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)

	var err error
	if c.DBPath == "" && c.FITSPath == "" {
		err = errors.New("either a database or a scan archive is required")
	} else if c.DBPath != "" && c.FITSPath != "" {
		err = errors.New("a database and a scan archive are mutually exclusive")
	} else if c.DBPath != "" && c.RunID <= 0 {
		err = errors.New("run id is required")
	} else if c.OutputDir == "" {
		err = errors.New("output directory is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = render.ColorTheme(theme)
	return c, nil
}
