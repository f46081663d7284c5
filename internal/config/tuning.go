package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/params endpoint so the same JSON can be
// used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Fusion loop params
	EstimationInterval *string `json:"estimation_interval,omitempty"` // duration string like "200ms"
	ObservationMaxAge  *string `json:"observation_max_age,omitempty"` // duration string like "1s"
	HistorySize        *int    `json:"history_size,omitempty"`

	// Estimation params
	AngleNoiseDeg *float64 `json:"angle_noise_deg,omitempty"`

	// Calibration params
	FitDegree   *int     `json:"fit_degree,omitempty"`
	MinRSquared *float64 `json:"min_r_squared,omitempty"`

	// Storage params
	PositionRetention *string `json:"position_retention,omitempty"` // duration string like "24h"
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

// DefaultTuningConfig returns a TuningConfig with every field set to its
// canonical default value. Used when no tuning file is supplied.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		EstimationInterval: ptrString("200ms"),
		ObservationMaxAge:  ptrString("1s"),
		HistorySize:        ptrInt(100),
		AngleNoiseDeg:      ptrFloat64(0.5),
		FitDegree:          ptrInt(1),
		MinRSquared:        ptrFloat64(0.95),
		PositionRetention:  ptrString("24h"),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Config files are capped at 1MB.
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // deeper packages
		"../../../../" + DefaultConfigPath, // even deeper
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
	// Validate AngleNoiseDeg if set
	if c.AngleNoiseDeg != nil {
		if *c.AngleNoiseDeg <= 0 || *c.AngleNoiseDeg > 45 {
			return fmt.Errorf("angle_noise_deg must be between 0 and 45, got %f", *c.AngleNoiseDeg)
		}
	}

	// Validate MinRSquared if set
	if c.MinRSquared != nil {
		if *c.MinRSquared < 0 || *c.MinRSquared > 1 {
			return fmt.Errorf("min_r_squared must be between 0 and 1, got %f", *c.MinRSquared)
		}
	}

	// Validate FitDegree if set
	if c.FitDegree != nil {
		if *c.FitDegree < 1 {
			return fmt.Errorf("fit_degree must be at least 1, got %d", *c.FitDegree)
		}
	}

	// Validate HistorySize if set
	if c.HistorySize != nil {
		if *c.HistorySize < 1 {
			return fmt.Errorf("history_size must be at least 1, got %d", *c.HistorySize)
		}
	}

	// Validate EstimationInterval can be parsed if set
	if c.EstimationInterval != nil && *c.EstimationInterval != "" {
		if _, err := time.ParseDuration(*c.EstimationInterval); err != nil {
			return fmt.Errorf("invalid estimation_interval '%s': %w", *c.EstimationInterval, err)
		}
	}

	// Validate ObservationMaxAge can be parsed if set
	if c.ObservationMaxAge != nil && *c.ObservationMaxAge != "" {
		if _, err := time.ParseDuration(*c.ObservationMaxAge); err != nil {
			return fmt.Errorf("invalid observation_max_age '%s': %w", *c.ObservationMaxAge, err)
		}
	}

	// Validate PositionRetention can be parsed if set
	if c.PositionRetention != nil && *c.PositionRetention != "" {
		if _, err := time.ParseDuration(*c.PositionRetention); err != nil {
			return fmt.Errorf("invalid position_retention '%s': %w", *c.PositionRetention, err)
		}
	}

	return nil
}

// GetEstimationInterval parses and returns the EstimationInterval as a time.Duration.
func (c *TuningConfig) GetEstimationInterval() time.Duration {
	if c.EstimationInterval == nil || *c.EstimationInterval == "" {
		return 200 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.EstimationInterval)
	if err != nil {
		return 200 * time.Millisecond // default on parse error
	}
	return d
}

// GetObservationMaxAge parses and returns the ObservationMaxAge as a time.Duration.
func (c *TuningConfig) GetObservationMaxAge() time.Duration {
	if c.ObservationMaxAge == nil || *c.ObservationMaxAge == "" {
		return time.Second // default
	}
	d, err := time.ParseDuration(*c.ObservationMaxAge)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetHistorySize returns the history_size value or the default.
func (c *TuningConfig) GetHistorySize() int {
	if c.HistorySize == nil {
		return 100 // default, matches the in-memory track ring
	}
	return *c.HistorySize
}

// GetAngleNoiseDeg returns the angle_noise_deg value or the default.
func (c *TuningConfig) GetAngleNoiseDeg() float64 {
	if c.AngleNoiseDeg == nil {
		return 0.5 // default
	}
	return *c.AngleNoiseDeg
}

// GetFitDegree returns the fit_degree value or the default.
func (c *TuningConfig) GetFitDegree() int {
	if c.FitDegree == nil {
		return 1 // default: linear pixel-to-angle fit
	}
	return *c.FitDegree
}

// GetMinRSquared returns the min_r_squared value or the default.
func (c *TuningConfig) GetMinRSquared() float64 {
	if c.MinRSquared == nil {
		return 0.95 // default
	}
	return *c.MinRSquared
}

// GetPositionRetention parses and returns the PositionRetention as a time.Duration.
func (c *TuningConfig) GetPositionRetention() time.Duration {
	if c.PositionRetention == nil || *c.PositionRetention == "" {
		return 24 * time.Hour // default
	}
	d, err := time.ParseDuration(*c.PositionRetention)
	if err != nil {
		return 24 * time.Hour // default on parse error
	}
	return d
}
