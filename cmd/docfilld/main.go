// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// docfilld serves the extraction pipeline over HTTP. It wires the run
// store, the run index, telemetry, and the gin engine, then shuts down
// cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/DocFill/pkg/logging"
	"github.com/AleutianAI/DocFill/services/extract/config"
	"github.com/AleutianAI/DocFill/services/extract/llm"
	"github.com/AleutianAI/DocFill/services/extract/pipeline"
	"github.com/AleutianAI/DocFill/services/extract/runstore"
	"github.com/AleutianAI/DocFill/services/extract/server"
	"github.com/AleutianAI/DocFill/services/extract/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to the config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("docfilld: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "docfilld",
		JSON:    cfg.Logging.JSON,
	})
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telCfg := telemetry.DefaultConfig()
	if cfg.Telemetry.Enabled && cfg.Telemetry.OTLPEndpoint != "" {
		telCfg.TraceExporter = "otlp"
		telCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if !cfg.Telemetry.Prometheus {
		telCfg.MetricExporter = "none"
	}
	shutdownTel, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTel(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	store, err := runstore.NewStore(cfg.Store.Root)
	if err != nil {
		return err
	}

	var index *runstore.Index
	if cfg.Store.IndexPath != "" {
		index, err = runstore.OpenIndex(runstore.DefaultIndexConfig(cfg.Store.IndexPath))
		if err != nil {
			return err
		}
		defer index.Close()
	}

	p := pipeline.New(store, index, logger)
	if cfg.LLM.RequestsPerSec > 0 {
		p.WithClientFactory(rateLimitedFactory(cfg.LLM))
	}
	handlers := server.NewHandlers(p, store, index, cfg.RunOptions(), logger)
	engine := server.NewEngine(handlers, server.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		ReleaseMode:    true,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

// rateLimitedFactory wraps the default client in a shared rate
// limiter so concurrent field workers respect the provider budget.
func rateLimitedFactory(llmCfg config.LLMConfig) pipeline.ClientFactory {
	return func(provider, model string) (llm.Client, error) {
		client, err := llm.NewClient(provider, model)
		if err != nil || client == nil {
			return client, err
		}
		return llm.NewRateLimitedClient(client, llmCfg.RequestsPerSec, llmCfg.Burst), nil
	}
}
