// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"time"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

// DocFillConfig is the whole service configuration.
type DocFillConfig struct {
	// Server: HTTP listener settings for docfilld.
	Server ServerConfig `yaml:"server"`

	// Store: where runs and the run index live on disk.
	Store StoreConfig `yaml:"store"`

	// LLM: provider selection and call budgets.
	LLM LLMConfig `yaml:"llm"`

	// Logging: level and sink settings.
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry: toggles for traces and metrics export.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr           string `yaml:"addr"`             // e.g. :8089
	MaxUploadBytes int64  `yaml:"max_upload_bytes"` // per-request multipart cap
}

type StoreConfig struct {
	Root      string `yaml:"root"`       // run directories live under <root>/runs
	IndexPath string `yaml:"index_path"` // BadgerDB directory; empty disables listing
}

type LLMConfig struct {
	Provider       string        `yaml:"provider"` // anthropic, openai, or none
	Model          string        `yaml:"model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Timeout        time.Duration `yaml:"timeout"`
	RequestsPerSec float64       `yaml:"requests_per_sec"` // 0 disables rate limiting
	Burst          int           `yaml:"burst"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"` // gRPC collector; empty uses stdout
	Prometheus   bool   `yaml:"prometheus"`    // expose /metrics
}

// DefaultConfig returns a configuration that works on a fresh machine:
// local run store, heuristics plus the default cloud model, quiet
// telemetry.
func DefaultConfig() DocFillConfig {
	return DocFillConfig{
		Server: ServerConfig{
			Addr:           ":8089",
			MaxUploadBytes: 64 << 20,
		},
		Store: StoreConfig{
			Root:      "~/.docfill",
			IndexPath: "~/.docfill/index",
		},
		LLM: LLMConfig{
			Provider:  contracts.DefaultLLMProvider,
			Model:     contracts.DefaultLLMModel,
			MaxTokens: contracts.DefaultMaxLLMTokens,
			Timeout:   contracts.DefaultLLMTimeout,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Prometheus: true,
		},
	}
}

// RunOptions derives the per-run defaults from the service config.
func (c DocFillConfig) RunOptions() contracts.RunOptions {
	opts := contracts.RunOptions{
		LLMProvider:  c.LLM.Provider,
		LLMModel:     c.LLM.Model,
		MaxLLMTokens: c.LLM.MaxTokens,
		LLMTimeout:   c.LLM.Timeout,
	}
	opts.Normalize()
	return opts
}
