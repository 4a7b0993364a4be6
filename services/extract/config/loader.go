// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the DocFill service configuration from YAML
// with environment overrides. A missing config file is not an error;
// first run creates one with defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config location when none is given.
const DefaultPath = "~/.docfill/docfill.yaml"

// Environment override keys. Each maps onto one config field and wins
// over the file value when set.
const (
	EnvAddr        = "DOCFILL_ADDR"
	EnvStoreRoot   = "DOCFILL_STORE_ROOT"
	EnvLLMProvider = "DOCFILL_LLM_PROVIDER"
	EnvLLMModel    = "DOCFILL_LLM_MODEL"
	EnvLLMTimeout  = "DOCFILL_LLM_TIMEOUT"
	EnvLogLevel    = "DOCFILL_LOG_LEVEL"
	EnvOTLP        = "DOCFILL_OTLP_ENDPOINT"
)

// Load reads the config at path, creating it with defaults when it
// does not exist, then applies environment overrides. An empty path
// uses DefaultPath.
func Load(path string) (DocFillConfig, error) {
	if path == "" {
		path = DefaultPath
	}
	path = expandPath(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return DocFillConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return DocFillConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DocFillConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(&cfg)
	cfg.Store.Root = expandPath(cfg.Store.Root)
	cfg.Store.IndexPath = expandPath(cfg.Store.IndexPath)
	cfg.Logging.Dir = expandPath(cfg.Logging.Dir)
	return cfg, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0640)
}

func applyEnv(cfg *DocFillConfig) {
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(EnvStoreRoot); v != "" {
		cfg.Store.Root = v
	}
	if v := os.Getenv(EnvLLMProvider); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv(EnvLLMModel); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv(EnvLLMTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		} else if secs, err := strconv.Atoi(v); err == nil {
			cfg.LLM.Timeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvOTLP); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
		cfg.Telemetry.Enabled = true
	}
}

func expandPath(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
