// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

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

func TestLoad_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "docfill.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "config file should be created on first load")
	assert.Equal(t, ":8089", cfg.Server.Addr)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestLoad_ReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docfill.yaml")
	content := DefaultConfig()
	content.Server.Addr = ":9999"
	content.LLM.Provider = "none"
	data, err := yaml.Marshal(content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0640))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "none", cfg.LLM.Provider)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docfill.yaml")
	t.Setenv(EnvAddr, ":7000")
	t.Setenv(EnvLLMProvider, "openai")
	t.Setenv(EnvLLMTimeout, "90s")
	t.Setenv(EnvOTLP, "collector:4317")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr, "env should override file value")
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.True(t, cfg.Telemetry.Enabled, "OTLP endpoint implies telemetry on")
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docfill.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: valid"), 0640))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRunOptions_FromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Provider = "none"
	cfg.LLM.Timeout = 10 * time.Second

	opts := cfg.RunOptions()
	assert.Equal(t, "none", opts.LLMProvider)
	assert.Equal(t, 10*time.Second, opts.LLMTimeout)
	assert.NotZero(t, opts.TopKDocs, "defaults should be normalized in")
	assert.NotZero(t, opts.FieldWorkers)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	assert.Equal(t, filepath.Join(home, ".docfill"), expandPath("~/.docfill"))
	assert.Equal(t, "/absolute/path", expandPath("/absolute/path"))
}
