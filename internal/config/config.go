// Package config provides the run configuration, loaded from YAML with
// command line overrides, and its validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"slidetiler/internal/background"
	"slidetiler/internal/method"
	"slidetiler/internal/segment"

	"gopkg.in/yaml.v3"
)

// Info levels.
const (
	InfoDefault = "default"
	InfoVerbose = "verbose"
	InfoSilent  = "silent"
)

// Config is the complete configuration of one run.
type Config struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	Method string `yaml:"method"`

	PatchSize        int     `yaml:"patchSize"`
	ContentThreshold float64 `yaml:"contentThreshold"`

	// Background identification
	BorderPercentage float64 `yaml:"borderPercentage"`
	Borders          string  `yaml:"borders"`
	Corners          string  `yaml:"corners"`

	// Graph segmentation
	Sigma          float64       `yaml:"sigma"`
	K              int           `yaml:"k"`
	MinSegmentSize int           `yaml:"minSegmentSize"`
	SegmentBinary  string        `yaml:"segmentBinary"`
	SegmentTimeout time.Duration `yaml:"segmentTimeout"`
	TestMode       bool          `yaml:"testMode"`

	// Downsampling factors, all powers of two
	OutputDownsample    int `yaml:"outputDownsample"`
	MaskDownsample      int `yaml:"maskDownsample"`
	TilecrossDownsample int `yaml:"tilecrossDownsample"`
	TestDownsample      int `yaml:"testDownsample"`

	// Random sampling
	NPatches int    `yaml:"npatches"`
	Seed     uint64 `yaml:"seed"`

	// Outputs
	SaveEdges       bool   `yaml:"saveEdges"`
	SaveMask        bool   `yaml:"saveMask"`
	SavePatches     bool   `yaml:"savePatches"`
	SaveBlank       bool   `yaml:"saveBlank"`
	SaveNonSquare   bool   `yaml:"saveNonsquare"`
	SaveTilecrossed bool   `yaml:"saveTilecrossedImage"`
	Format          string `yaml:"format"`
	Info            string `yaml:"info"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Output:              "output",
		Method:              "graph",
		PatchSize:           512,
		ContentThreshold:    0.5,
		BorderPercentage:    5,
		Borders:             "1111",
		Corners:             "0000",
		Sigma:               0.5,
		K:                   10000,
		MinSegmentSize:      10000,
		SegmentBinary:       "segment",
		SegmentTimeout:      segment.DefaultTimeout,
		OutputDownsample:    16,
		MaskDownsample:      16,
		TilecrossDownsample: 16,
		TestDownsample:      16,
		NPatches:            100,
		Seed:                1,
		Format:              "png",
		Info:                InfoDefault,
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &Error{Field: path, Reason: err.Error()}
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Error is a configuration problem found before any I/O.
type Error struct {
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Validate checks every field. The first problem is returned as *Error.
func (c *Config) Validate() error {
	if c.Input == "" {
		return &Error{Field: "input", Reason: "no input slide"}
	}
	if c.Output == "" {
		return &Error{Field: "output", Reason: "no output directory"}
	}
	if !slices.Contains(method.Names(), c.Method) {
		return &Error{Field: "method", Reason: fmt.Sprintf("%q is not one of %v", c.Method, method.Names())}
	}
	if c.PatchSize <= 0 {
		return &Error{Field: "patchSize", Reason: fmt.Sprintf("must be positive, got %d", c.PatchSize)}
	}
	if c.ContentThreshold < 0 || c.ContentThreshold > 1 {
		return &Error{Field: "contentThreshold", Reason: fmt.Sprintf("%g outside [0,1]", c.ContentThreshold)}
	}
	if c.BorderPercentage < 0 || c.BorderPercentage > 100 {
		return &Error{Field: "borderPercentage", Reason: fmt.Sprintf("%g outside [0,100]", c.BorderPercentage)}
	}

	borders, err := background.ParseSelector(c.Borders)
	if err != nil {
		return &Error{Field: "borders", Reason: err.Error(), Err: err}
	}
	corners, err := background.ParseSelector(c.Corners)
	if err != nil {
		return &Error{Field: "corners", Reason: err.Error(), Err: err}
	}
	if err := background.CheckExclusive(borders, corners); err != nil {
		return &Error{Field: "borders/corners", Reason: "exactly one must be non-zero", Err: err}
	}

	for _, d := range []struct {
		field string
		v     int
	}{
		{"outputDownsample", c.OutputDownsample},
		{"maskDownsample", c.MaskDownsample},
		{"tilecrossDownsample", c.TilecrossDownsample},
		{"testDownsample", c.TestDownsample},
	} {
		if d.v < 1 || d.v&(d.v-1) != 0 {
			return &Error{Field: d.field, Reason: fmt.Sprintf("%d is not a power of two", d.v)}
		}
	}

	if c.Method == (method.Random{}).Name() && c.NPatches <= 0 {
		return &Error{Field: "npatches", Reason: fmt.Sprintf("must be positive, got %d", c.NPatches)}
	}
	if c.Method == (method.Graph{}).Name() {
		if c.K <= 0 || c.MinSegmentSize <= 0 || c.Sigma < 0 {
			return &Error{Field: "segmentation", Reason: "sigma must be >= 0, k and minSegmentSize positive"}
		}
		if c.SegmentBinary == "" {
			return &Error{Field: "segmentBinary", Reason: "no segmentation executable"}
		}
		if c.SegmentTimeout <= 0 {
			return &Error{Field: "segmentTimeout", Reason: "must be positive"}
		}
	}
	if c.TestMode && c.Method != (method.Graph{}).Name() {
		return &Error{Field: "testMode", Reason: "only available for the graph method"}
	}
	if c.Format != "png" && c.Format != "jpg" {
		return &Error{Field: "format", Reason: fmt.Sprintf("%q is not png or jpg", c.Format)}
	}
	switch c.Info {
	case InfoDefault, InfoVerbose, InfoSilent:
	default:
		return &Error{Field: "info", Reason: fmt.Sprintf("%q is not default, verbose or silent", c.Info)}
	}
	return nil
}

// Selectors returns the parsed border and corner selectors. Call after
// Validate.
func (c *Config) Selectors() (borders, corners background.Selector) {
	borders, _ = background.ParseSelector(c.Borders)
	corners, _ = background.ParseSelector(c.Corners)
	return borders, corners
}

// MaskMethod returns the mask strategy with its parameters.
func (c *Config) MaskMethod() method.Method {
	switch c.Method {
	case "otsu":
		return method.Otsu{}
	case "adaptive":
		return method.Adaptive{}
	case "randomsampling":
		return method.Random{Patches: c.NPatches, Seed: c.Seed}
	default:
		return method.Graph{
			Sigma:          c.Sigma,
			K:              c.K,
			MinSegmentSize: c.MinSegmentSize,
			TestMode:       c.TestMode,
		}
	}
}
