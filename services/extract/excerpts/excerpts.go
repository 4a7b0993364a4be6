// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package excerpts builds capped, deterministic document excerpts for
// model context windows. Page selection is keyword-driven and the caps
// are hard limits, so the same run inputs always yield the same
// excerpt set.
package excerpts

import (
	"sort"
	"strings"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

// Default excerpt caps.
const (
	DefaultMaxTotalChars  = 8000
	DefaultMaxCharsPerDoc = 4000
	DefaultMaxPagesPerDoc = 3
)

// fieldKeywords mirrors the routing query vocabulary for page
// selection.
var fieldKeywords = map[string][]string{
	"full_name":           {"full_name", "name", "patient_name"},
	"dob":                 {"dob", "date_of_birth", "birthdate"},
	"phone":               {"phone", "mobile", "telephone"},
	"address":             {"address", "street"},
	"insurance_member_id": {"insurance_member_id", "member_id", "policy", "insurance_id"},
	"allergies":           {"allergies", "allergy"},
	"medications":         {"medications", "meds"},
}

// DocExcerpt is a capped slice of one page's text.
type DocExcerpt struct {
	DocID string `json:"doc_id"`
	Page  int    `json:"page"`
	Text  string `json:"text"`
}

// Limits carries the excerpt caps. Zero values fall back to defaults.
type Limits struct {
	MaxTotalChars  int
	MaxCharsPerDoc int
	MaxPagesPerDoc int
}

func (l *Limits) normalize() {
	if l.MaxTotalChars <= 0 {
		l.MaxTotalChars = DefaultMaxTotalChars
	}
	if l.MaxCharsPerDoc <= 0 {
		l.MaxCharsPerDoc = DefaultMaxCharsPerDoc
	}
	if l.MaxPagesPerDoc <= 0 {
		l.MaxPagesPerDoc = DefaultMaxPagesPerDoc
	}
}

// BuildForField builds excerpts for a field from its routed documents.
//
// Description:
//
//	Documents are consumed in routing order, pages in ascending page
//	order. Up to MaxPagesPerDoc pages containing a field keyword are
//	taken per doc; with no keyword match the first page stands in.
//	Per-doc and total character caps truncate the final excerpt.
//
// Outputs:
//
//	[]DocExcerpt - stable ordering across runs; empty when the routed
//	docs have no text.
func BuildForField(field contracts.FieldSpec, routedDocs []*contracts.Document, limits Limits) []DocExcerpt {
	limits.normalize()

	keywords := keywordsFor(field)
	var out []DocExcerpt
	total := 0

	for _, doc := range routedDocs {
		if total >= limits.MaxTotalChars {
			break
		}

		pages := append([]contracts.PageText(nil), doc.Pages...)
		sort.Slice(pages, func(i, j int) bool { return pages[i].Page < pages[j].Page })

		var matching []contracts.PageText
		for _, p := range pages {
			if pageContainsKeyword(p.Text, keywords) {
				matching = append(matching, p)
			}
		}
		if len(matching) == 0 && len(pages) > 0 {
			matching = pages[:1]
		}
		if len(matching) > limits.MaxPagesPerDoc {
			matching = matching[:limits.MaxPagesPerDoc]
		}

		docChars := 0
		for _, page := range matching {
			if total >= limits.MaxTotalChars || docChars >= limits.MaxCharsPerDoc {
				break
			}
			budget := limits.MaxCharsPerDoc - docChars
			if remaining := limits.MaxTotalChars - total; remaining < budget {
				budget = remaining
			}
			text := page.Text
			if len(text) > budget {
				text = text[:budget]
			}
			if text == "" {
				continue
			}
			out = append(out, DocExcerpt{DocID: doc.DocID, Page: page.Page, Text: text})
			docChars += len(text)
			total += len(text)
		}
	}
	return out
}

func keywordsFor(field contracts.FieldSpec) []string {
	keywords := []string{strings.ToLower(field.Key)}
	if field.Label != "" {
		keywords = append(keywords, strings.ToLower(field.Label))
	}
	keywords = append(keywords, fieldKeywords[field.Key]...)
	return keywords
}

func pageContainsKeyword(text string, keywords []string) bool {
	textLower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(textLower, kw) {
			return true
		}
	}
	return false
}
