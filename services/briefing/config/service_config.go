// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the briefing service configuration.
//
// Defaults are compiled in (defaults.yaml), an optional config file
// overlays them, and a handful of environment variables overlay both.
// Loaded configurations are validated before use; an invalid file never
// replaces a valid running configuration (see Watcher).
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultConfigYAML []byte

// MaxConfigFileSize bounds how large a config file may be. Anything
// bigger is a mistake (or hostile), not configuration.
const MaxConfigFileSize = 1 << 20

// Duration is a time.Duration that reads and writes Go duration
// strings ("10m", "6h") in YAML instead of raw nanoseconds.
type Duration time.Duration

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// ServiceConfig is the complete briefing service configuration.
//
// Thread Safety: treated as immutable after Load; hot reload swaps the
// whole struct rather than mutating fields in place.
type ServiceConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Search    SearchConfig    `yaml:"search"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Port is the TCP port the gin server binds.
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// Debug enables gin debug mode and request logging.
	Debug bool `yaml:"debug"`
}

// EngineConfig bounds workflow execution. The revision ceilings are
// deliberately NOT configurable: they are termination guarantees, not
// tuning knobs.
type EngineConfig struct {
	// MaxConcurrentRuns bounds parallel briefing runs.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs" validate:"min=1,max=256"`

	// RunTimeout caps one end-to-end run, repair loops included.
	RunTimeout Duration `yaml:"run_timeout" validate:"min=1s"`

	// ContextBudget caps the ranked evidence snippets kept for
	// synthesis.
	ContextBudget int `yaml:"context_budget" validate:"min=1,max=100"`

	// MaxSearchResults is the per-sub-query provider result budget.
	MaxSearchResults int `yaml:"max_search_results" validate:"min=1,max=20"`
}

// SearchConfig controls the search port.
type SearchConfig struct {
	// CacheTTL is how long cached search results are served.
	CacheTTL Duration `yaml:"cache_ttl" validate:"min=1m"`

	// RequestsPerSecond is the outbound token-bucket refill rate.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`

	// Burst is the token-bucket burst size.
	Burst int `yaml:"burst" validate:"min=1"`
}

// StorageConfig controls the BadgerDB instance shared by the search
// cache and the transcript store.
type StorageConfig struct {
	// DataDir is the on-disk database directory. Empty means
	// ~/.poliscope/data.
	DataDir string `yaml:"data_dir"`

	// InMemory opts out of persistence entirely.
	InMemory bool `yaml:"in_memory"`
}

// TelemetryConfig controls optional exporters. Everything here is off
// by default; the Prometheus /metrics endpoint is always on.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC collector address for trace export.
	// Empty disables OTLP export.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// StdoutTraces dumps spans to stdout. Development only.
	StdoutTraces bool `yaml:"stdout_traces"`

	// InfluxURL enables the run-event sink when non-empty.
	InfluxURL    string `yaml:"influx_url"`
	InfluxOrg    string `yaml:"influx_org"`
	InfluxBucket string `yaml:"influx_bucket"`
}

// ArchiveConfig controls the optional GCS transcript archive.
type ArchiveConfig struct {
	// GCSBucket enables archiving when non-empty.
	GCSBucket string `yaml:"gcs_bucket"`

	// Prefix namespaces archived objects within the bucket.
	Prefix string `yaml:"prefix"`
}

// DefaultDataDir resolves the storage directory used when the
// configuration leaves DataDir empty.
func DefaultDataDir() string {
	if dir := os.Getenv("BRIEFING_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "poliscope", "data")
	}
	return filepath.Join(home, ".poliscope", "data")
}

var validate = newValidator()

// newValidator maps Duration onto time.Duration so tags like min=1s
// keep their duration semantics.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(Duration); ok {
			return time.Duration(d)
		}
		return nil
	}, Duration(0))
	return v
}

// Load parses, overlays, and validates a configuration.
//
// # Description
//
// Starts from the embedded defaults, overlays the given YAML bytes
// (pass nil for defaults only), then overlays the environment:
// BRIEFING_PORT, BRIEFING_DEBUG, BRIEFING_DATA_DIR, BRIEFING_INFLUX_URL
// and BRIEFING_GCS_BUCKET. The result is validated as a whole.
//
// # Outputs
//   - *ServiceConfig: validated configuration.
//   - error: non-nil on parse or validation failure; the caller keeps
//     whatever configuration it already had.
func Load(data []byte) (*ServiceConfig, error) {
	if len(data) > MaxConfigFileSize {
		return nil, fmt.Errorf("config: file exceeds maximum size (%d > %d)", len(data), MaxConfigFileSize)
	}

	var cfg ServiceConfig
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing embedded defaults: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing YAML: %w", err)
		}
	}
	overlayEnv(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return &cfg, nil
}

// LoadFile loads and validates a configuration file. An empty path
// returns the embedded defaults (environment overlay still applies).
func LoadFile(path string) (*ServiceConfig, error) {
	if path == "" {
		return Load(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Load(data)
}

// overlayEnv applies environment overrides onto cfg.
func overlayEnv(cfg *ServiceConfig) {
	if v := os.Getenv("BRIEFING_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		} else {
			slog.Warn("Ignoring non-numeric BRIEFING_PORT", slog.String("value", v))
		}
	}
	if v := os.Getenv("BRIEFING_DEBUG"); v != "" {
		cfg.Server.Debug = v == "1" || v == "true"
	}
	if v := os.Getenv("BRIEFING_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("BRIEFING_INFLUX_URL"); v != "" {
		cfg.Telemetry.InfluxURL = v
	}
	if v := os.Getenv("BRIEFING_GCS_BUCKET"); v != "" {
		cfg.Archive.GCSBucket = v
	}
}

// =============================================================================
// Singleton access
// =============================================================================

var (
	configMu     sync.RWMutex
	cachedConfig *ServiceConfig
)

// Get returns the process-wide configuration, loading the embedded
// defaults on first use. cmd binaries that take a --config flag call
// Set at startup instead.
//
// Thread Safety: safe for concurrent use.
func Get() (*ServiceConfig, error) {
	configMu.RLock()
	if cachedConfig != nil {
		cfg := cachedConfig
		configMu.RUnlock()
		return cfg, nil
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()
	if cachedConfig != nil {
		return cachedConfig, nil
	}
	cfg, err := Load(nil)
	if err != nil {
		return nil, err
	}
	cachedConfig = cfg
	return cfg, nil
}

// Set replaces the process-wide configuration. Used at startup and by
// the hot-reload watcher.
func Set(cfg *ServiceConfig) {
	configMu.Lock()
	defer configMu.Unlock()
	cachedConfig = cfg
}

// Reset clears the cached configuration for testing.
func Reset() {
	configMu.Lock()
	defer configMu.Unlock()
	cachedConfig = nil
}
