package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per capability.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"recognizer": {"whisper-native", "vosk"},
	"matcher":    {"postgres", "songbook"},
	"player":     {"spotify"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("recognizer", cfg.Providers.Recognizer.Name)
	validateProviderName("matcher", cfg.Providers.Matcher.Name)
	validateProviderName("player", cfg.Providers.Player.Name)

	// Every capability must be filled: the pipeline cannot run partially.
	if cfg.Providers.Recognizer.Name == "" {
		errs = append(errs, errors.New("providers.recognizer.name is required"))
	}
	if cfg.Providers.Matcher.Name == "" {
		errs = append(errs, errors.New("providers.matcher.name is required"))
	}
	if cfg.Providers.Player.Name == "" {
		errs = append(errs, errors.New("providers.player.name is required"))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.DeviceIndex != nil && *cfg.Audio.DeviceIndex < 0 {
		errs = append(errs, fmt.Errorf("audio.device_index %d is negative", *cfg.Audio.DeviceIndex))
	}
	if cfg.Audio.SilenceThreshold < 0 {
		errs = append(errs, errors.New("audio.silence_threshold is negative"))
	}
	if cfg.Audio.MaxPhrase < 0 {
		errs = append(errs, errors.New("audio.max_phrase is negative"))
	}

	// Pipeline
	if cfg.Pipeline.WindowSize < 0 {
		errs = append(errs, fmt.Errorf("pipeline.window_size %d is negative", cfg.Pipeline.WindowSize))
	}
	if cfg.Pipeline.WindowSize == 1 {
		slog.Warn("pipeline.window_size of 1 will match on single words; expect false positives")
	}
	if cfg.Pipeline.VerifyDelay < 0 {
		errs = append(errs, errors.New("pipeline.verify_delay is negative"))
	}
	if cfg.Pipeline.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("pipeline.queue_capacity %d is negative", cfg.Pipeline.QueueCapacity))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
