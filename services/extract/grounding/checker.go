// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package grounding implements the deterministic hallucination check:
// every candidate value must be recoverable from its quoted evidence
// text under type-specific matching rules. The check runs identically
// on heuristic and model-produced candidates; no rule, threshold, or
// score bypasses it.
package grounding

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
	"github.com/AleutianAI/DocFill/services/extract/heuristics"
)

var isoDateRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)

var monthNames = map[string][]string{
	"01": {"jan", "january"},
	"02": {"feb", "february"},
	"03": {"mar", "march"},
	"04": {"apr", "april"},
	"05": {"may"},
	"06": {"jun", "june"},
	"07": {"jul", "july"},
	"08": {"aug", "august"},
	"09": {"sep", "september"},
	"10": {"oct", "october"},
	"11": {"nov", "november"},
	"12": {"dec", "december"},
}

// Checker validates candidates against their own evidence.
//
// Thread Safety: Stateless, safe for concurrent use.
type Checker struct{}

// NewChecker returns a Checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Check applies the evidence check to a candidate and records the
// rejection reason in place when it fails.
//
// Description:
//
//	Structural validation first (non-empty evidence, each with doc_id,
//	1-indexed page, and quoted text), then the type-specific support
//	rule for fieldType. A failing candidate gets
//	unsupported_by_evidence appended to its rejection reasons.
//
// Outputs:
//
//	bool - true when the evidence supports the value.
//
// Thread Safety: Safe for concurrent use on distinct candidates.
func (c *Checker) Check(ctx context.Context, fieldType contracts.FieldType, candidate *contracts.Candidate) bool {
	_ = initMetrics()
	start := time.Now()

	ok := c.supports(fieldType, candidate)
	if !ok {
		candidate.RejectedReasons = append(candidate.RejectedReasons, contracts.ReasonUnsupportedByEvidence)
	}

	if checksTotal != nil {
		outcome := "accepted"
		if !ok {
			outcome = "rejected"
		}
		checksTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("field", candidate.Field),
			attribute.String("method", string(candidate.Method)),
			attribute.String("outcome", outcome),
		))
		checkDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("field", candidate.Field),
		))
	}
	return ok
}

func (c *Checker) supports(fieldType contracts.FieldType, candidate *contracts.Candidate) bool {
	if len(candidate.Evidence) == 0 {
		return false
	}
	texts := make([]string, 0, len(candidate.Evidence))
	for i := range candidate.Evidence {
		if !candidate.Evidence[i].Valid() {
			return false
		}
		texts = append(texts, candidate.Evidence[i].QuotedText)
	}

	switch fieldType {
	case contracts.TypeDate:
		return supportsDate(candidate.NormalizedValue, texts)
	case contracts.TypePhone:
		return supportsPhone(candidate.NormalizedValue, texts)
	case contracts.TypeStringOrList:
		return supportsList(candidate.NormalizedValue, texts)
	default:
		return supportsString(candidate.NormalizedValue, texts)
	}
}

// supportsString checks normalized substring containment against any
// single evidence text.
func supportsString(value string, evidenceTexts []string) bool {
	norm := heuristics.NormalizeText(value)
	if norm == "" {
		return false
	}
	for _, ev := range evidenceTexts {
		if strings.Contains(heuristics.NormalizeText(ev), norm) {
			return true
		}
	}
	return false
}

// supportsDate checks that the evidence contains the normalized
// YYYY-MM-DD date in any recognized written shape.
func supportsDate(value string, evidenceTexts []string) bool {
	m := isoDateRe.FindStringSubmatch(value)
	if m == nil {
		return false
	}
	year, month, day := m[1], m[2], m[3]
	monthN := strconv.Itoa(atoi(month))
	dayN := strconv.Itoa(atoi(day))

	var numericShapes []string
	for _, sep := range []string{"-", "/"} {
		numericShapes = append(numericShapes,
			year+sep+month+sep+day,
			year+sep+monthN+sep+dayN,
			month+sep+day+sep+year,
			monthN+sep+dayN+sep+year,
		)
	}

	for _, ev := range evidenceTexts {
		for _, shape := range numericShapes {
			if strings.Contains(ev, shape) {
				return true
			}
		}
		// Month-name shapes: year, day, and a month name all present.
		if strings.Contains(ev, year) && strings.Contains(ev, strings.TrimLeft(day, "0")) {
			evLower := strings.ToLower(ev)
			for _, name := range monthNames[month] {
				if strings.Contains(evLower, name) {
					return true
				}
			}
		}
	}
	return false
}

// supportsPhone checks digit containment, tolerating an assumed leading
// country code on either side.
func supportsPhone(value string, evidenceTexts []string) bool {
	digits := heuristics.ExtractDigits(value)
	if len(digits) < 10 {
		return false
	}
	for _, ev := range evidenceTexts {
		evDigits := heuristics.ExtractDigits(ev)
		if strings.Contains(evDigits, digits) {
			return true
		}
		if strings.HasPrefix(digits, "1") && strings.Contains(evDigits, digits[1:]) {
			return true
		}
	}
	return false
}

// supportsList applies per-item substring checks for comma or semicolon
// separated values; one unsupported item rejects the whole value.
func supportsList(value string, evidenceTexts []string) bool {
	if !strings.ContainsAny(value, ",;") {
		return supportsString(value, evidenceTexts)
	}

	items := splitList(value)
	if len(items) == 0 {
		return false
	}
	combined := heuristics.NormalizeText(strings.Join(evidenceTexts, " "))
	for _, item := range items {
		norm := heuristics.NormalizeText(item)
		if norm != "" && !strings.Contains(combined, norm) {
			return false
		}
	}
	return true
}

func splitList(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var items []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		panic(fmt.Sprintf("non-numeric date component %q", s))
	}
	return n
}
