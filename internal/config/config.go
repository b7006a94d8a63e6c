// Package config provides the configuration schema, loader, and provider registry
// for the Earworm lyrics-matching pipeline.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the Earworm process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration is a time.Duration that unmarshals from YAML strings like "2s" or
// "750ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for Earworm.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the address the Prometheus metrics endpoint listens on
	// (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AudioConfig holds microphone capture and phrase segmentation settings.
type AudioConfig struct {
	// DeviceIndex selects the capture device. nil means prompt interactively
	// at startup.
	DeviceIndex *int `yaml:"device_index"`

	// SampleRate is the capture rate in Hz. Defaults to 16000, which is what
	// the speech models expect.
	SampleRate int `yaml:"sample_rate"`

	// CalibrationDuration is how long to sample ambient noise at startup to
	// set the energy gate. Zero disables calibration.
	CalibrationDuration Duration `yaml:"calibration_duration"`

	// SilenceThreshold is how much trailing silence ends a phrase.
	SilenceThreshold Duration `yaml:"silence_threshold"`

	// MaxPhrase caps the length of a single phrase clip.
	MaxPhrase Duration `yaml:"max_phrase"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline capability. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	Recognizer ProviderEntry `yaml:"recognizer"`
	Matcher    ProviderEntry `yaml:"matcher"`
	Player     ProviderEntry `yaml:"player"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "vosk",
	// "spotify").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a model or data file within the provider (e.g., a
	// whisper model path).
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// StringOption returns Options[key] as a string, or def when absent or not a
// string.
func (e ProviderEntry) StringOption(key, def string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return def
}

// PipelineConfig tunes the search loop.
type PipelineConfig struct {
	// WindowSize is the number of recognized words matched against the
	// corpus at once. Defaults to 5.
	WindowSize int `yaml:"window_size"`

	// VerifyDelay is the pause between requesting playback and verifying the
	// service is actually playing. Defaults to 2s.
	VerifyDelay Duration `yaml:"verify_delay"`

	// QueueCapacity bounds the audio job queue. 0 means unbounded.
	QueueCapacity int `yaml:"queue_capacity"`

	// PlayerDeviceID pre-selects the playback target, skipping the
	// interactive device prompt.
	PlayerDeviceID string `yaml:"player_device_id"`
}
