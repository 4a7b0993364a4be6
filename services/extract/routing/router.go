// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routing maps each resolved field to the top-k most relevant
// readable documents using deterministic token-overlap scoring. No
// embeddings, no learned ranking.
package routing

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

// maxDocChars caps how much of each document's text participates in
// scoring.
const maxDocChars = 20000

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]`)

// queryAliases holds the compact per-field query vocabulary. Kept
// separate from the schema alias table: routing queries want short
// high-signal terms, not every spelling a form might use.
var queryAliases = map[string][]string{
	"full_name":           {"full_name", "name", "patient_name"},
	"dob":                 {"dob", "date_of_birth", "birthdate"},
	"phone":               {"phone", "mobile", "telephone"},
	"address":             {"address", "street"},
	"insurance_member_id": {"insurance_member_id", "member_id", "policy", "insurance_id"},
	"allergies":           {"allergies", "allergy"},
	"medications":         {"medications", "meds"},
}

// Tokenize lowercases, maps non-alphanumerics to spaces, and returns
// the set of tokens with length >= 2.
func Tokenize(text string) map[string]bool {
	text = nonAlnumRe.ReplaceAllString(strings.ToLower(text), " ")
	tokens := map[string]bool{}
	for _, t := range strings.Fields(text) {
		if len(t) >= 2 {
			tokens[t] = true
		}
	}
	return tokens
}

// ScoreQueryDoc computes |tokens(query) ∩ tokens(doc)| / |tokens(query)|,
// 0 for an empty query.
func ScoreQueryDoc(query, docText string) float64 {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}
	docTokens := Tokenize(docText)

	overlap := 0
	for t := range queryTokens {
		if docTokens[t] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryTokens))
}

// Router routes fields to documents. The zero value is usable.
type Router struct{}

// Route scores every readable document against every resolved field.
//
// Description:
//
//	One RoutingEntry per field, entries ordered by field key ascending.
//	Per entry, doc ids are ordered by descending score with ascending
//	doc_id as the tie-break, capped at topK. Unreadable documents are
//	excluded; with zero readable documents every entry is empty, which
//	is not an error.
//
// Thread Safety: Safe for concurrent use; inputs are read-only.
func (r *Router) Route(ctx context.Context, schema contracts.ResolvedSchema, docs []*contracts.Document, topK int) []contracts.RoutingEntry {
	_ = initMetrics()
	start := time.Now()

	var readable []*contracts.Document
	for _, d := range docs {
		if d.Readable() {
			readable = append(readable, d)
		}
	}

	docTexts := make(map[string]string, len(readable))
	for _, d := range readable {
		docTexts[d.DocID] = d.Text(maxDocChars)
	}

	fields := append([]contracts.FieldSpec(nil), schema.Fields...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })

	entries := make([]contracts.RoutingEntry, 0, len(fields))
	for _, field := range fields {
		if len(readable) == 0 {
			entries = append(entries, contracts.RoutingEntry{
				Field:  field.Key,
				DocIDs: []string{},
				Scores: map[string]float64{},
			})
			continue
		}

		query := buildQuery(field)

		type scoredDoc struct {
			docID string
			score float64
		}
		scored := make([]scoredDoc, 0, len(readable))
		for _, d := range readable {
			scored = append(scored, scoredDoc{d.DocID, ScoreQueryDoc(query, docTexts[d.DocID])})
		}
		sort.Slice(scored, func(i, j int) bool {
			if scored[i].score != scored[j].score {
				return scored[i].score > scored[j].score
			}
			return scored[i].docID < scored[j].docID
		})

		if topK > 0 && len(scored) > topK {
			scored = scored[:topK]
		}

		entry := contracts.RoutingEntry{
			Field:  field.Key,
			DocIDs: make([]string, 0, len(scored)),
			Scores: make(map[string]float64, len(scored)),
		}
		for _, s := range scored {
			entry.DocIDs = append(entry.DocIDs, s.docID)
			entry.Scores[s.docID] = s.score
		}
		entries = append(entries, entry)
	}

	if routeDuration != nil {
		routeDuration.Record(ctx, time.Since(start).Seconds())
		docsRouted.Add(ctx, int64(len(readable)), metric.WithAttributes(
			attribute.Int("fields", len(fields)),
		))
	}
	return entries
}

func buildQuery(field contracts.FieldSpec) string {
	parts := []string{field.Key}
	if field.Label != "" {
		parts = append(parts, field.Label)
	}
	parts = append(parts, queryAliases[field.Key]...)
	return strings.Join(parts, " ")
}

// RoutedDocs resolves a routing entry back to documents, preserving
// routing order.
func RoutedDocs(entry contracts.RoutingEntry, docs []*contracts.Document) []*contracts.Document {
	byID := make(map[string]*contracts.Document, len(docs))
	for _, d := range docs {
		byID[d.DocID] = d
	}
	var out []*contracts.Document
	for _, id := range entry.DocIDs {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out
}
