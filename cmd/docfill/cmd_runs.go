// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
	"github.com/AleutianAI/DocFill/services/extract/runstore"
)

func runRunsList(cmd *cobra.Command, args []string) error {
	index, err := openIndex()
	if err != nil {
		return err
	}
	if index == nil {
		return fmt.Errorf("run index is disabled (store.index_path is empty)")
	}
	defer index.Close()

	records, err := index.List(cmd.Context(), listLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tCREATED\tSTATUS\tDOCS\tFILLED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\n",
			rec.RunID,
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.Status,
			rec.NumDocs,
			rec.FieldsFilled, rec.FieldsTotal,
		)
	}
	return w.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := runstore.NewStore(cfg.Store.Root)
	if err != nil {
		return err
	}
	run, err := store.OpenRun(args[0])
	if err != nil {
		return err
	}

	var result contracts.FinalResult
	if err := run.ReadArtifact(runstore.ArtifactFinal, &result); err != nil {
		return fmt.Errorf("run %s has no final result: %w", args[0], err)
	}
	return printJSON(result)
}
