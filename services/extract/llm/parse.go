// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
	"github.com/AleutianAI/DocFill/services/extract/heuristics"
)

// responseItem is the JSON shape the extraction prompt demands.
type responseItem struct {
	RawValue        string `json:"raw_value"`
	NormalizedValue string `json:"normalized_value"`
	Evidence        []struct {
		DocID      string      `json:"doc_id"`
		Page       json.Number `json:"page"`
		QuotedText string      `json:"quoted_text"`
	} `json:"evidence"`
}

// ParseCandidates parses a model response into candidates.
//
// Description:
//
//	Tolerates a markdown code fence around the payload but otherwise
//	demands a JSON array of {raw_value, normalized_value, evidence[]}.
//	Items without a raw value or without at least one structurally
//	complete evidence entry are dropped silently; a payload that is
//	not a JSON array at all is a structural error, which triggers the
//	caller's single retry.
//
// Outputs:
//
//	[]contracts.Candidate - method llm, anchor score 1.0 (the model
//	claims an anchor; the evidence check decides).
//	error - structural parse failure.
func ParseCandidates(field contracts.FieldSpec, response string) ([]contracts.Candidate, error) {
	text := stripCodeFence(strings.TrimSpace(response))

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, fmt.Errorf("response is not a JSON array: %w", err)
	}

	var candidates []contracts.Candidate
	for _, raw := range items {
		var item responseItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		if item.RawValue == "" {
			continue
		}

		normalized := item.NormalizedValue
		if normalized == "" {
			normalized = normalizeForField(field, item.RawValue)
		}

		var evidence []contracts.Evidence
		for _, ev := range item.Evidence {
			page, err := ev.Page.Int64()
			if err != nil || ev.DocID == "" || page < 1 || ev.QuotedText == "" {
				continue
			}
			evidence = append(evidence, contracts.Evidence{
				DocID:      ev.DocID,
				Page:       int(page),
				QuotedText: ev.QuotedText,
			})
		}
		if len(evidence) == 0 {
			continue
		}

		var notes []string
		if field.Type == contracts.TypePhone {
			if _, assumed := heuristics.NormalizePhone(item.RawValue); assumed {
				notes = append(notes, contracts.NoteDefaultCountryAssumed)
			}
		}

		candidates = append(candidates, contracts.Candidate{
			Field:           field.Key,
			RawValue:        item.RawValue,
			NormalizedValue: normalized,
			Evidence:        evidence,
			Method:          contracts.MethodLLM,
			ValidatorNotes:  notes,
			Scores:          contracts.CandidateScores{AnchorMatch: 1.0},
		})
	}
	return candidates, nil
}

func normalizeForField(field contracts.FieldSpec, raw string) string {
	switch field.Type {
	case contracts.TypeDate:
		if normalized, ok := heuristics.NormalizeDate(raw); ok {
			return normalized
		}
		return heuristics.NormalizeText(raw)
	case contracts.TypePhone:
		normalized, _ := heuristics.NormalizePhone(raw)
		return normalized
	default:
		return heuristics.NormalizeText(raw)
	}
}

// stripCodeFence removes a leading ```/```json fence and its closing
// fence, leaving the payload untouched otherwise.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")[1:]
	for i, line := range lines {
		if strings.TrimSpace(line) == "```" {
			lines = lines[:i]
			break
		}
	}
	return strings.Join(lines, "\n")
}
