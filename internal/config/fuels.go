package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/canopy.report/internal/fuels"
)

// DefaultConfigPath is the path to the canonical fuel analysis defaults.
const DefaultConfigPath = "config/fuels.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// FuelConfig is the on-disk form of the fuel layer analysis settings.
// Every field is optional; the Get* accessors fall back to the
// built-in defaults for anything the file leaves out.
type FuelConfig struct {
	// Profile trimming
	MinHeight *float64 `json:"min_height,omitempty"`

	// Layer correction and filtering
	MinStep       *float64 `json:"min_step,omitempty"` // 0 = one bin width
	MinFraction   *float64 `json:"min_fraction,omitempty"`
	HDepth1Height *float64 `json:"hdepth1_height,omitempty"`

	// Gap detection
	GapEpsilon    *float64 `json:"gap_epsilon,omitempty"`
	GapPercentile *float64 `json:"gap_percentile,omitempty"`

	// Run control
	Verbose *bool `json:"verbose,omitempty"`
	Workers *int  `json:"workers,omitempty"` // 0 = one per CPU
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyFuelConfig returns a FuelConfig with every field unset.
func EmptyFuelConfig() *FuelConfig {
	return &FuelConfig{}
}

// DefaultFuelConfig returns a FuelConfig with every field set to the
// built-in default.
func DefaultFuelConfig() *FuelConfig {
	d := fuels.DefaultParams()
	return &FuelConfig{
		MinHeight:     ptrFloat64(d.MinHeight),
		MinStep:       ptrFloat64(d.MinStep),
		MinFraction:   ptrFloat64(d.MinFraction),
		HDepth1Height: ptrFloat64(d.HDepth1Height),
		GapEpsilon:    ptrFloat64(d.GapEpsilon),
		GapPercentile: ptrFloat64(d.GapPercentile),
		Verbose:       ptrBool(d.Verbose),
		Workers:       ptrInt(0),
	}
}

// LoadFuelConfig loads a FuelConfig from a JSON file. The path must end
// in .json and the file must be under 1MB. Omitted fields keep their
// defaults, so partial files are fine.
func LoadFuelConfig(path string) (*FuelConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFuelConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. It panics if the
// file cannot be loaded and is intended for tests.
func MustLoadDefaultConfig() *FuelConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadFuelConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are in range.
func (c *FuelConfig) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	return nil
}

// Params converts the configuration into pipeline parameters.
func (c *FuelConfig) Params() fuels.Params {
	return fuels.Params{
		MinHeight:     c.GetMinHeight(),
		MinStep:       c.GetMinStep(),
		MinFraction:   c.GetMinFraction(),
		HDepth1Height: c.GetHDepth1Height(),
		GapEpsilon:    c.GetGapEpsilon(),
		GapPercentile: c.GetGapPercentile(),
		Verbose:       c.GetVerbose(),
	}
}

// GetMinHeight returns the min_height value or the default.
func (c *FuelConfig) GetMinHeight() float64 {
	if c.MinHeight == nil {
		return fuels.DefaultParams().MinHeight
	}
	return *c.MinHeight
}

// GetMinStep returns the min_step value or the default.
func (c *FuelConfig) GetMinStep() float64 {
	if c.MinStep == nil {
		return fuels.DefaultParams().MinStep
	}
	return *c.MinStep
}

// GetMinFraction returns the min_fraction value or the default.
func (c *FuelConfig) GetMinFraction() float64 {
	if c.MinFraction == nil {
		return fuels.DefaultParams().MinFraction
	}
	return *c.MinFraction
}

// GetHDepth1Height returns the hdepth1_height value or the default.
func (c *FuelConfig) GetHDepth1Height() float64 {
	if c.HDepth1Height == nil {
		return fuels.DefaultParams().HDepth1Height
	}
	return *c.HDepth1Height
}

// GetGapEpsilon returns the gap_epsilon value or the default.
func (c *FuelConfig) GetGapEpsilon() float64 {
	if c.GapEpsilon == nil {
		return fuels.DefaultParams().GapEpsilon
	}
	return *c.GapEpsilon
}

// GetGapPercentile returns the gap_percentile value or the default.
func (c *FuelConfig) GetGapPercentile() float64 {
	if c.GapPercentile == nil {
		return fuels.DefaultParams().GapPercentile
	}
	return *c.GapPercentile
}

// GetVerbose returns the verbose value or the default.
func (c *FuelConfig) GetVerbose() bool {
	if c.Verbose == nil {
		return false
	}
	return *c.Verbose
}

// GetWorkers returns the workers value or the default.
func (c *FuelConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}
