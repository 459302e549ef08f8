package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Window shapes accepted by window_shape.
const (
	WindowShapeCircular = "circular"
	WindowShapeSquare   = "square"
)

// TuningConfig represents the root configuration for a canopy run.
// Every field is optional; the Get* methods supply defaults for anything
// the JSON file leaves out.
type TuningConfig struct {
	// Treetop detection (variable window filter)
	WindowSlope       *float64 `json:"window_slope,omitempty"`     // radius = slope*height + intercept
	WindowIntercept   *float64 `json:"window_intercept,omitempty"` // metres
	WindowMinRadius   *float64 `json:"window_min_radius,omitempty"`
	WindowMaxRadius   *float64 `json:"window_max_radius,omitempty"` // 0 disables the clamp
	WindowShape       *string  `json:"window_shape,omitempty"`      // "circular" or "square"
	MaxWindowDiameter *float64 `json:"max_window_diameter,omitempty"`
	TreetopMinHeight  *float64 `json:"treetop_min_height,omitempty"`

	// Crown delineation
	CrownMinHeight    *float64 `json:"crown_min_height,omitempty"`
	CrownTolerance    *float64 `json:"crown_tolerance,omitempty"`
	CrownMaxRadius    *float64 `json:"crown_max_radius,omitempty"` // 0 = unlimited
	CrownConnectivity *int     `json:"crown_connectivity,omitempty"`

	// Zonal summaries
	ZoneResolution *float64 `json:"zone_resolution,omitempty"`
	TopHeightN     *int     `json:"top_height_n,omitempty"`

	// Execution
	Workers *int `json:"workers,omitempty"` // 0 = GOMAXPROCS
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the built-in defaults. It does not touch the filesystem.
func DefaultTuningConfig() *TuningConfig {
	empty := EmptyTuningConfig()
	return &TuningConfig{
		WindowSlope:       ptrFloat64(empty.GetWindowSlope()),
		WindowIntercept:   ptrFloat64(empty.GetWindowIntercept()),
		WindowMinRadius:   ptrFloat64(empty.GetWindowMinRadius()),
		WindowMaxRadius:   ptrFloat64(empty.GetWindowMaxRadius()),
		WindowShape:       ptrString(empty.GetWindowShape()),
		MaxWindowDiameter: ptrFloat64(empty.GetMaxWindowDiameter()),
		TreetopMinHeight:  ptrFloat64(empty.GetTreetopMinHeight()),
		CrownMinHeight:    ptrFloat64(empty.GetCrownMinHeight()),
		CrownTolerance:    ptrFloat64(empty.GetCrownTolerance()),
		CrownMaxRadius:    ptrFloat64(empty.GetCrownMaxRadius()),
		CrownConnectivity: ptrInt(empty.GetCrownConnectivity()),
		ZoneResolution:    ptrFloat64(empty.GetZoneResolution()),
		TopHeightN:        ptrInt(empty.GetTopHeightN()),
		Workers:           ptrInt(empty.GetWorkers()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/canopy/pipeline/
		"../../../../" + DefaultConfigPath,    // deeper packages
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"window_min_radius", c.WindowMinRadius},
		{"window_max_radius", c.WindowMaxRadius},
		{"max_window_diameter", c.MaxWindowDiameter},
		{"crown_tolerance", c.CrownTolerance},
		{"crown_max_radius", c.CrownMaxRadius},
	}
	for _, f := range nonNegative {
		if f.v == nil {
			continue
		}
		if math.IsNaN(*f.v) || *f.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", f.name, *f.v)
		}
	}

	if c.WindowSlope != nil && (math.IsNaN(*c.WindowSlope) || math.IsInf(*c.WindowSlope, 0)) {
		return fmt.Errorf("window_slope must be finite, got %f", *c.WindowSlope)
	}
	if c.WindowIntercept != nil && (math.IsNaN(*c.WindowIntercept) || math.IsInf(*c.WindowIntercept, 0)) {
		return fmt.Errorf("window_intercept must be finite, got %f", *c.WindowIntercept)
	}

	if c.WindowMaxRadius != nil && *c.WindowMaxRadius > 0 && *c.WindowMaxRadius < c.GetWindowMinRadius() {
		return fmt.Errorf("window_max_radius (%f) must not be below window_min_radius (%f)",
			*c.WindowMaxRadius, c.GetWindowMinRadius())
	}

	if c.WindowShape != nil {
		switch *c.WindowShape {
		case WindowShapeCircular, WindowShapeSquare:
		default:
			return fmt.Errorf("window_shape must be %q or %q, got %q",
				WindowShapeCircular, WindowShapeSquare, *c.WindowShape)
		}
	}

	if c.CrownConnectivity != nil && *c.CrownConnectivity != 4 && *c.CrownConnectivity != 8 {
		return fmt.Errorf("crown_connectivity must be 4 or 8, got %d", *c.CrownConnectivity)
	}

	if c.ZoneResolution != nil && !(*c.ZoneResolution > 0) {
		return fmt.Errorf("zone_resolution must be positive, got %f", *c.ZoneResolution)
	}

	if c.TopHeightN != nil && *c.TopHeightN < 1 {
		return fmt.Errorf("top_height_n must be at least 1, got %d", *c.TopHeightN)
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	return nil
}

// GetWindowSlope returns the window_slope value or the default.
func (c *TuningConfig) GetWindowSlope() float64 {
	if c.WindowSlope == nil {
		return 0.06
	}
	return *c.WindowSlope
}

// GetWindowIntercept returns the window_intercept value or the default.
func (c *TuningConfig) GetWindowIntercept() float64 {
	if c.WindowIntercept == nil {
		return 0.5
	}
	return *c.WindowIntercept
}

// GetWindowMinRadius returns the window_min_radius value or the default.
func (c *TuningConfig) GetWindowMinRadius() float64 {
	if c.WindowMinRadius == nil {
		return 0
	}
	return *c.WindowMinRadius
}

// GetWindowMaxRadius returns the window_max_radius value or the default (no clamp).
func (c *TuningConfig) GetWindowMaxRadius() float64 {
	if c.WindowMaxRadius == nil {
		return 0
	}
	return *c.WindowMaxRadius
}

// GetWindowShape returns the window_shape value or the default.
func (c *TuningConfig) GetWindowShape() string {
	if c.WindowShape == nil || *c.WindowShape == "" {
		return WindowShapeCircular
	}
	return *c.WindowShape
}

// GetMaxWindowDiameter returns the max_window_diameter value or the default.
// The value is in cells; 0 disables the check.
func (c *TuningConfig) GetMaxWindowDiameter() float64 {
	if c.MaxWindowDiameter == nil {
		return 99
	}
	return *c.MaxWindowDiameter
}

// GetTreetopMinHeight returns the treetop_min_height value or the default.
func (c *TuningConfig) GetTreetopMinHeight() float64 {
	if c.TreetopMinHeight == nil {
		return 2.0
	}
	return *c.TreetopMinHeight
}

// GetCrownMinHeight returns the crown_min_height value or the default.
func (c *TuningConfig) GetCrownMinHeight() float64 {
	if c.CrownMinHeight == nil {
		return 1.0
	}
	return *c.CrownMinHeight
}

// GetCrownTolerance returns the crown_tolerance value or the default.
func (c *TuningConfig) GetCrownTolerance() float64 {
	if c.CrownTolerance == nil {
		return 0
	}
	return *c.CrownTolerance
}

// GetCrownMaxRadius returns the crown_max_radius value or the default (unlimited).
func (c *TuningConfig) GetCrownMaxRadius() float64 {
	if c.CrownMaxRadius == nil {
		return 0
	}
	return *c.CrownMaxRadius
}

// GetCrownConnectivity returns the crown_connectivity value or the default.
func (c *TuningConfig) GetCrownConnectivity() int {
	if c.CrownConnectivity == nil {
		return 8
	}
	return *c.CrownConnectivity
}

// GetZoneResolution returns the zone_resolution value or the default.
func (c *TuningConfig) GetZoneResolution() float64 {
	if c.ZoneResolution == nil {
		return 10.0
	}
	return *c.ZoneResolution
}

// GetTopHeightN returns the top_height_n value or the default.
func (c *TuningConfig) GetTopHeightN() int {
	if c.TopHeightN == nil {
		return 100
	}
	return *c.TopHeightN
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}
