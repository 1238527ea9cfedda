package config

import (
	"fmt"
	"time"
)

// Config represents the application configuration
type Config struct {
	Project     ProjectConfig     `yaml:"project"`
	Trapper     TrapperConfig     `yaml:"trapper"`
	Validation  ValidationConfig  `yaml:"validation"`
	Prepare     PrepareConfig     `yaml:"prepare"`
	Uploader    UploaderConfig    `yaml:"uploader"`
	Performance PerformanceConfig `yaml:"performance"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ProjectConfig identifies the research project whose metadata is
// stamped into prepared media and package definitions
type ProjectConfig struct {
	Name      string `yaml:"name"`
	ID        int    `yaml:"id"`
	Publisher string `yaml:"publisher"`
	Owner     string `yaml:"owner"`
	Coverage  string `yaml:"coverage"`
	// Timezone the camera clocks were set in (IANA name)
	Timezone  string `yaml:"timezone"`
	IgnoreDST bool   `yaml:"ignore_dst"`
}

// TrapperConfig holds the remote data-management platform endpoint
type TrapperConfig struct {
	URL               string `yaml:"url"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	Token             string `yaml:"token"`
	ValidateLocations bool   `yaml:"validate_locations"`
}

// ValidationConfig holds deployment integrity check settings
type ValidationConfig struct {
	ToleranceHours int      `yaml:"tolerance_hours"`
	Extensions     []string `yaml:"extensions"`
	// VerifyMarkers recomputes the recorded content hash before
	// trusting a .validated marker
	VerifyMarkers bool `yaml:"verify_markers"`
}

// PrepareConfig holds preparation/export settings
type PrepareConfig struct {
	Resize           bool   `yaml:"resize"`
	ResizeWidth      int    `yaml:"resize_width"`
	Overwrite        bool   `yaml:"overwrite"`
	DeploymentsTable bool   `yaml:"deployments_table"`
	ExifToolPath     string `yaml:"exiftool_path"`
}

// UploaderConfig holds the chunked uploader endpoint and limits
type UploaderConfig struct {
	ServerURL   string `yaml:"server_url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	VerifyTLS   bool   `yaml:"verify_tls"`
	MaxParallel int    `yaml:"max_parallel"`
	// Bandwidth caps upload throughput (e.g. "10M", "1G"); empty
	// means unlimited
	Bandwidth string `yaml:"bandwidth"`
}

// PerformanceConfig holds worker pool settings
type PerformanceConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

// OutputConfig holds output-related settings
type OutputConfig struct {
	Progress bool `yaml:"progress"` // Show progress bars
	Quiet    bool `yaml:"quiet"`    // Suppress non-error output
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"` // "json" or "text"
	Level   string `yaml:"level"`  // "debug", "info", "warn", "error"
	File    string `yaml:"file"`   // Log file path (empty = stderr)
}

// ValidationError describes an invalid configuration field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			Name:      "WildINTEL",
			Publisher: "WildINTEL",
			Owner:     "WildINTEL",
			Timezone:  "UTC",
		},
		Trapper: TrapperConfig{
			ValidateLocations: true,
		},
		Validation: ValidationConfig{
			ToleranceHours: 1,
		},
		Prepare: PrepareConfig{
			Resize:       true,
			ResizeWidth:  2400,
			ExifToolPath: "exiftool",
		},
		Uploader: UploaderConfig{
			VerifyTLS:   true,
			MaxParallel: 4,
		},
		Performance: PerformanceConfig{
			MaxWorkers: 4,
		},
		Output: OutputConfig{
			Progress: true,
			Quiet:    false,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Format:  "json",
			Level:   "info",
			File:    "",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Performance.MaxWorkers < 1 {
		return &ValidationError{
			Field:   "performance.max_workers",
			Message: "must be at least 1",
		}
	}

	if c.Uploader.MaxParallel < 1 {
		return &ValidationError{
			Field:   "uploader.max_parallel",
			Message: "must be at least 1",
		}
	}

	if c.Validation.ToleranceHours < 0 {
		return &ValidationError{
			Field:   "validation.tolerance_hours",
			Message: "must not be negative",
		}
	}

	if c.Prepare.ResizeWidth < 1 {
		return &ValidationError{
			Field:   "prepare.resize_width",
			Message: "must be at least 1 pixel",
		}
	}

	if _, err := time.LoadLocation(c.Project.Timezone); err != nil {
		return &ValidationError{
			Field:   "project.timezone",
			Message: fmt.Sprintf("unknown timezone %q", c.Project.Timezone),
		}
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return &ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'text'",
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return &ValidationError{
			Field:   "logging.level",
			Message: "must be 'debug', 'info', 'warn', or 'error'",
		}
	}

	return nil
}

// Location resolves the configured project timezone
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Project.Timezone)
}
