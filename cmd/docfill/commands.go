// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/DocFill/services/extract/config"
)

var (
	configPath string
	schemaPath string
	formFields []string
	provider   string
	model      string
	topKDocs   int
	listLimit  int

	rootCmd = &cobra.Command{
		Use:   "docfill",
		Short: "Extract structured fields from documents with evidence",
		Long: `docfill runs an evidence-checked extraction over local
documents: every extracted value carries a verbatim quote from a
source page, and values the sources cannot support are rejected.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loaded, err := config.Load(configPath)
			if err != nil {
				log.Fatalf("Error loading config: %v", err)
			}
			cfg = loaded
		},
	}

	runCmd = &cobra.Command{
		Use:   "run [file...]",
		Short: "Run an extraction over the given documents",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runExtraction, // Defined in cmd_run.go
	}

	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "Inspect past extraction runs",
	}
	runsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE:  runRunsList, // Defined in cmd_runs.go
	}
	runsShowCmd = &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print the final result of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsShow, // Defined in cmd_runs.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file")

	runCmd.Flags().StringVar(&schemaPath, "schema", "", "Path to a JSON schema restricting the fields")
	runCmd.Flags().StringArrayVar(&formFields, "form-field", nil, "Harvested form field name (repeatable)")
	runCmd.Flags().StringVar(&provider, "provider", "", "LLM provider: anthropic, openai, or none")
	runCmd.Flags().StringVar(&model, "model", "", "LLM model override")
	runCmd.Flags().IntVar(&topKDocs, "top-k", 0, "Documents routed per field")

	runsListCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum runs to list")

	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runCmd, runsCmd)
}
