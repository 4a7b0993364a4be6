// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/DocFill/pkg/logging"
	"github.com/AleutianAI/DocFill/services/extract/ingest"
	"github.com/AleutianAI/DocFill/services/extract/llm"
	"github.com/AleutianAI/DocFill/services/extract/pipeline"
	"github.com/AleutianAI/DocFill/services/extract/runstore"
)

func runExtraction(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "docfill",
		Quiet:   true,
	})
	defer logger.Close()

	uploads, err := readFiles(args)
	if err != nil {
		return err
	}

	var userSchema []byte
	if schemaPath != "" {
		userSchema, err = os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("read schema: %w", err)
		}
	}

	store, err := runstore.NewStore(cfg.Store.Root)
	if err != nil {
		return err
	}
	index, err := openIndex()
	if err != nil {
		return err
	}
	if index != nil {
		defer index.Close()
	}

	opts := cfg.RunOptions()
	if provider != "" {
		opts.LLMProvider = provider
	}
	if model != "" {
		opts.LLMModel = model
	}
	if topKDocs > 0 {
		opts.TopKDocs = topKDocs
	}

	p := pipeline.New(store, index, logger)
	if cfg.LLM.RequestsPerSec > 0 {
		llmCfg := cfg.LLM
		p.WithClientFactory(func(provider, model string) (llm.Client, error) {
			client, err := llm.NewClient(provider, model)
			if err != nil || client == nil {
				return client, err
			}
			return llm.NewRateLimitedClient(client, llmCfg.RequestsPerSec, llmCfg.Burst), nil
		})
	}
	result, err := p.Run(cmd.Context(), pipeline.Request{
		Uploads:    uploads,
		UserSchema: userSchema,
		FormFields: formFields,
		Options:    opts,
	})
	if err != nil {
		return err
	}

	return printJSON(result)
}

func readFiles(paths []string) ([]ingest.Upload, error) {
	uploads := make([]ingest.Upload, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		uploads = append(uploads, ingest.Upload{
			Filename: filepath.Base(path),
			Data:     data,
		})
	}
	return uploads, nil
}

func openIndex() (*runstore.Index, error) {
	if cfg.Store.IndexPath == "" {
		return nil, nil
	}
	return runstore.OpenIndex(runstore.DefaultIndexConfig(cfg.Store.IndexPath))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
