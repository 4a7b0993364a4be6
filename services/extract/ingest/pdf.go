// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

// extractPDFPages pulls the text layer out of a PDF, one entry per
// page. Pages without text come back with an empty Text so page
// numbers in evidence always match the source document.
func extractPDFPages(data []byte) ([]contracts.PageText, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}

	pages := make([]contracts.PageText, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return nil, fmt.Errorf("extractor for page %d: %w", i, err)
		}
		text, err := ex.ExtractText()
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, contracts.PageText{
			Page: i,
			Text: strings.TrimSpace(text),
		})
	}
	return pages, nil
}

// extractFormFields harvests AcroForm field names from a fillable PDF.
// Returns nil for non-fillable documents; read failures surface as an
// empty harvest, never as an ingest error.
func extractFormFields(data []byte) []string {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil || reader.AcroForm == nil {
		return nil
	}

	var names []string
	for _, field := range reader.AcroForm.AllFields() {
		name, err := field.FullName()
		if err != nil || strings.TrimSpace(name) == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}
