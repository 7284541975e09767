// Package config provides configuration loading and validation for the recorder.
// It handles YAML-based configuration with per-section struct validation and
// typed accessors for duration-valued parameters.
package config
