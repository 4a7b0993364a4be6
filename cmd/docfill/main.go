// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// docfill is the command line front end for the extraction pipeline:
// run extractions against local files and inspect past runs.
package main

import (
	"fmt"
	"os"

	"github.com/AleutianAI/DocFill/services/extract/config"
)

var cfg config.DocFillConfig

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
