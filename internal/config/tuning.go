package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig holds the detection parameters for the breath analysis
// pipeline. The original constants were hand-tuned against bench recordings;
// they are exposed here as named, overridable values rather than literals,
// with the hand-tuned values as defaults. Fields omitted from the JSON file
// retain their defaults, so partial configs are safe.
type TuningConfig struct {
	// Filter and peak detection params
	CutoffHz           *float64 `json:"cutoff_hz,omitempty"`
	MinPeakHeight      *float64 `json:"min_peak_height,omitempty"`
	MinPeakDistance    *int     `json:"min_peak_distance,omitempty"`
	ProminenceStdRatio *float64 `json:"prominence_std_ratio,omitempty"`

	// Apnea classification params
	ApneaGapSeconds *float64 `json:"apnea_gap_seconds,omitempty"`

	// Capture params
	SerialPort *string `json:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`

	// Diagnostic output params
	PlotDir *string `json:"plot_dir,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// The Get* accessors supply defaults for unset fields.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.CutoffHz != nil && *c.CutoffHz <= 0 {
		return fmt.Errorf("cutoff_hz must be positive, got %f", *c.CutoffHz)
	}
	if c.MinPeakHeight != nil && *c.MinPeakHeight < 0 {
		return fmt.Errorf("min_peak_height must be non-negative, got %f", *c.MinPeakHeight)
	}
	if c.MinPeakDistance != nil && *c.MinPeakDistance < 1 {
		return fmt.Errorf("min_peak_distance must be at least 1 sample, got %d", *c.MinPeakDistance)
	}
	if c.ProminenceStdRatio != nil && *c.ProminenceStdRatio < 0 {
		return fmt.Errorf("prominence_std_ratio must be non-negative, got %f", *c.ProminenceStdRatio)
	}
	if c.ApneaGapSeconds != nil && *c.ApneaGapSeconds <= 0 {
		return fmt.Errorf("apnea_gap_seconds must be positive, got %f", *c.ApneaGapSeconds)
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	return nil
}

// GetCutoffHz returns the lowpass cutoff frequency or the default.
// Adult breathing sits well under 2 Hz, so the default preserves the
// breath-rate band while suppressing sensor noise.
func (c *TuningConfig) GetCutoffHz() float64 {
	if c.CutoffHz == nil {
		return 2.0
	}
	return *c.CutoffHz
}

// GetMinPeakHeight returns the minimum peak height in m^3/s or the default.
func (c *TuningConfig) GetMinPeakHeight() float64 {
	if c.MinPeakHeight == nil {
		return 0.00009
	}
	return *c.MinPeakHeight
}

// GetMinPeakDistance returns the minimum sample spacing between accepted
// peaks or the default. Spacing prevents double-counting a single breath's
// noisy shoulder.
func (c *TuningConfig) GetMinPeakDistance() int {
	if c.MinPeakDistance == nil {
		return 80
	}
	return *c.MinPeakDistance
}

// GetProminenceStdRatio returns the prominence threshold as a multiple of
// the filtered signal's standard deviation, or the default.
func (c *TuningConfig) GetProminenceStdRatio() float64 {
	if c.ProminenceStdRatio == nil {
		return 0.5
	}
	return *c.ProminenceStdRatio
}

// GetApneaGapSeconds returns the inter-breath gap that counts as an apnea
// event, or the default.
func (c *TuningConfig) GetApneaGapSeconds() float64 {
	if c.ApneaGapSeconds == nil {
		return 10.0
	}
	return *c.ApneaGapSeconds
}

// GetSerialPort returns the sensor board serial port path or the default.
func (c *TuningConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyACM0"
	}
	return *c.SerialPort
}

// GetBaudRate returns the serial baud rate or the default.
func (c *TuningConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 115200
	}
	return *c.BaudRate
}

// GetPlotDir returns the diagnostic plot output directory or the default.
func (c *TuningConfig) GetPlotDir() string {
	if c.PlotDir == nil || *c.PlotDir == "" {
		return "plots"
	}
	return *c.PlotDir
}
