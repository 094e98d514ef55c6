// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad_EmbeddedDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err, "embedded defaults must always validate")

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Engine.MaxConcurrentRuns)
	assert.Equal(t, 10*time.Minute, cfg.Engine.RunTimeout.Std())
	assert.Equal(t, 12, cfg.Engine.ContextBudget)
	assert.Equal(t, 5, cfg.Engine.MaxSearchResults)
	assert.Equal(t, 6*time.Hour, cfg.Search.CacheTTL.Std())
	assert.Empty(t, cfg.Telemetry.InfluxURL, "telemetry is opt-in")
	assert.Empty(t, cfg.Archive.GCSBucket, "archiving is opt-in")
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	cfg, err := Load([]byte("server:\n  port: 9090\nengine:\n  context_budget: 20\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Engine.ContextBudget)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10*time.Minute, cfg.Engine.RunTimeout.Std())
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"port out of range", "server:\n  port: 99999\n"},
		{"zero concurrency", "engine:\n  max_concurrent_runs: 0\n"},
		{"sub-second timeout", "engine:\n  run_timeout: 10ms\n"},
		{"oversized search budget", "engine:\n  max_search_results: 50\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "1m30s\n", string(out))

	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte("6h"), &d))
	assert.Equal(t, 6*time.Hour, d.Std())

	assert.Error(t, yaml.Unmarshal([]byte("soon"), &d))
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	_, err := Load([]byte("server: [not a mapping"))
	assert.Error(t, err)
}

func TestLoad_EnvOverlay(t *testing.T) {
	t.Setenv("BRIEFING_PORT", "7070")
	t.Setenv("BRIEFING_DATA_DIR", "/tmp/briefing-test")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/briefing-test", cfg.Storage.DataDir)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGetSetReset(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Get()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	custom := *cfg
	custom.Server.Port = 1234
	Set(&custom)

	got, err := Get()
	require.NoError(t, err)
	assert.Equal(t, 1234, got.Server.Port)
}

func TestWatcher_SwapsOnValidWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "briefing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  context_budget: 12\n"), 0o644))

	initial, err := LoadFile(path)
	require.NoError(t, err)

	swapped := make(chan *ServiceConfig, 1)
	w, err := NewWatcher(path, initial, func(c *ServiceConfig) { swapped <- c }, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  context_budget: 30\n"), 0o644))

	select {
	case cfg := <-swapped:
		assert.Equal(t, 30, cfg.Engine.ContextBudget)
		assert.Equal(t, 30, w.Current().Engine.ContextBudget)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not swap after a valid write")
	}
}

func TestWatcher_KeepsPreviousOnInvalidWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "briefing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  context_budget: 12\n"), 0o644))

	initial, err := LoadFile(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, initial, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_concurrent_runs: 0\n"), 0o644))

	// The rejected write must not replace the live config. Give the
	// debounce a moment to fire before asserting.
	time.Sleep(2 * reloadDebounce)
	assert.Equal(t, 12, w.Current().Engine.ContextBudget)
}
