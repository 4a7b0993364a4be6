// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package heuristics

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

// anchorWindow is how far back (in bytes) an anchor keyword may sit
// before a match and still count.
const anchorWindow = 50

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{4}[-/]\d{1,2}[-/]\d{1,2})\b`),
	regexp.MustCompile(`\b(\d{1,2}[-/]\d{1,2}[-/]\d{4})\b`),
	regexp.MustCompile(`\b([A-Za-z]+\s+\d{1,2},?\s+\d{4})\b`),
	regexp.MustCompile(`\b(\d{1,2}\s+[A-Za-z]+\s+\d{4})\b`),
}

var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
	regexp.MustCompile(`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`),
	regexp.MustCompile(`\+?1?[-.\s]?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
	regexp.MustCompile(`\b1\d{10}\b`),
	regexp.MustCompile(`\b\d{10}\b`),
}

var (
	dobKeywords   = []string{"dob", "date of birth", "birthdate", "birth date", "born"}
	phoneKeywords = []string{"phone", "mobile", "telephone", "tel", "cell", "contact"}

	insuranceKeywords = []string{"member", "policy", "id", "insurance", "subscriber", "group"}
	insuranceIDRe     = regexp.MustCompile(`\b[A-Za-z0-9]{4,20}\b`)
	insuranceStop     = map[string]bool{
		"member": true, "policy": true, "insurance": true,
		"group": true, "subscriber": true,
	}

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:patient\s+)?name\s*:\s*(.+)`),
		regexp.MustCompile(`(?i)full\s+name\s*:\s*(.+)`),
		regexp.MustCompile(`(?i)patient\s*:\s*(.+)`),
	}
	trailingPunctRe = regexp.MustCompile(`[,;:.|]+$`)

	addressPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)address\s*:\s*(.+)`),
		regexp.MustCompile(`(?i)street\s*:\s*(.+)`),
		regexp.MustCompile(`(?i)mailing\s+address\s*:\s*(.+)`),
		regexp.MustCompile(`(?i)home\s+address\s*:\s*(.+)`),
	}

	allergyLineRe    = mustLabelPattern("allergies", "allergy", "allergic to", "known allergies")
	medicationLineRe = mustLabelPattern("medications", "meds", "current medications", "prescriptions", "rx")
)

func mustLabelPattern(keywords ...string) *regexp.Regexp {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)\s*:\s*(.+)`)
}

type extractorFunc func(field contracts.FieldSpec, doc *contracts.Document) []contracts.Candidate

var extractors = map[string]extractorFunc{
	"dob":                 extractDOB,
	"phone":               extractPhone,
	"insurance_member_id": extractInsuranceID,
	"full_name":           extractName,
	"address":             extractAddress,
	"allergies": func(f contracts.FieldSpec, d *contracts.Document) []contracts.Candidate {
		return extractLabeledLine(f, d, allergyLineRe)
	},
	"medications": func(f contracts.FieldSpec, d *contracts.Document) []contracts.Candidate {
		return extractLabeledLine(f, d, medicationLineRe)
	},
}

// CandidatesForField runs the single heuristic pass for a field across
// its routed documents.
//
// Description:
//
//	Deterministic regex and keyword-proximity scan. Every candidate
//	carries Evidence quoting the exact source line; duplicate
//	normalized values within one document are dropped.
//
// Outputs:
//
//	[]contracts.Candidate - possibly empty, method always heuristic.
//
// Thread Safety: Safe for concurrent use; documents are read-only.
func CandidatesForField(field contracts.FieldSpec, routedDocs []*contracts.Document) []contracts.Candidate {
	extractor, ok := extractors[field.Key]
	if !ok {
		return nil
	}

	var all []contracts.Candidate
	for _, doc := range routedDocs {
		all = append(all, extractor(field, doc)...)
	}
	return all
}

// lineContaining returns the trimmed full line around byte offset pos.
func lineContaining(text string, pos int) string {
	start := strings.LastIndex(text[:pos], "\n")
	start++ // -1 becomes 0, otherwise skip the newline
	end := strings.Index(text[pos:], "\n")
	if end == -1 {
		end = len(text)
	} else {
		end += pos
	}
	return strings.TrimSpace(text[start:end])
}

// hasAnchor reports whether any keyword appears in the window before
// the match.
func hasAnchor(textLower string, pos int, keywords []string) bool {
	start := pos - anchorWindow
	if start < 0 {
		start = 0
	}
	context := textLower[start:pos]
	for _, kw := range keywords {
		if strings.Contains(context, kw) {
			return true
		}
	}
	return false
}

func newHeuristicCandidate(field contracts.FieldSpec, doc *contracts.Document, page int, raw, normalized, quoted string, anchored bool) contracts.Candidate {
	anchor := 0.0
	if anchored {
		anchor = 1.0
	}
	return contracts.Candidate{
		Field:           field.Key,
		RawValue:        raw,
		NormalizedValue: normalized,
		Evidence: []contracts.Evidence{{
			DocID:      doc.DocID,
			Page:       page,
			QuotedText: quoted,
		}},
		Method: contracts.MethodHeuristic,
		Scores: contracts.CandidateScores{AnchorMatch: anchor},
	}
}

func extractDOB(field contracts.FieldSpec, doc *contracts.Document) []contracts.Candidate {
	var candidates []contracts.Candidate
	seen := map[string]bool{}

	for _, page := range doc.Pages {
		text := page.Text
		textLower := strings.ToLower(text)

		for _, pattern := range datePatterns {
			for _, loc := range pattern.FindAllStringIndex(text, -1) {
				raw := strings.TrimSpace(text[loc[0]:loc[1]])
				normalized, ok := NormalizeDate(raw)
				if !ok || seen[normalized] {
					continue
				}
				quoted := lineContaining(text, loc[0])
				if quoted == "" {
					continue
				}
				seen[normalized] = true
				candidates = append(candidates, newHeuristicCandidate(
					field, doc, page.Page, raw, normalized, quoted,
					hasAnchor(textLower, loc[0], dobKeywords)))
			}
		}
	}
	return candidates
}

func extractPhone(field contracts.FieldSpec, doc *contracts.Document) []contracts.Candidate {
	var candidates []contracts.Candidate
	seen := map[string]bool{}

	for _, page := range doc.Pages {
		text := page.Text
		textLower := strings.ToLower(text)

		for _, pattern := range phonePatterns {
			for _, loc := range pattern.FindAllStringIndex(text, -1) {
				raw := strings.TrimSpace(text[loc[0]:loc[1]])
				normalized, defaultCountry := NormalizePhone(raw)
				if len(normalized) < 10 || seen[normalized] {
					continue
				}
				quoted := lineContaining(text, loc[0])
				if quoted == "" {
					continue
				}
				seen[normalized] = true
				c := newHeuristicCandidate(
					field, doc, page.Page, raw, normalized, quoted,
					hasAnchor(textLower, loc[0], phoneKeywords))
				if defaultCountry {
					c.ValidatorNotes = append(c.ValidatorNotes, contracts.NoteDefaultCountryAssumed)
				}
				candidates = append(candidates, c)
			}
		}
	}
	return candidates
}

func extractInsuranceID(field contracts.FieldSpec, doc *contracts.Document) []contracts.Candidate {
	var candidates []contracts.Candidate
	seen := map[string]bool{}

	for _, page := range doc.Pages {
		for _, line := range strings.Split(page.Text, "\n") {
			lineLower := strings.ToLower(line)
			keyword := false
			for _, kw := range insuranceKeywords {
				if strings.Contains(lineLower, kw) {
					keyword = true
					break
				}
			}
			if !keyword {
				continue
			}

			for _, raw := range insuranceIDRe.FindAllString(line, -1) {
				// Skip date-like tokens and the keywords themselves.
				if _, looksDate := NormalizeDate(raw); looksDate {
					continue
				}
				if insuranceStop[strings.ToLower(raw)] {
					continue
				}
				normalized := NormalizeText(raw)
				if normalized == "" || seen[normalized] {
					continue
				}
				seen[normalized] = true
				candidates = append(candidates, newHeuristicCandidate(
					field, doc, page.Page, raw, normalized, strings.TrimSpace(line), true))
			}
		}
	}
	return candidates
}

func extractName(field contracts.FieldSpec, doc *contracts.Document) []contracts.Candidate {
	var candidates []contracts.Candidate
	seen := map[string]bool{}

	for _, page := range doc.Pages {
		for _, line := range strings.Split(page.Text, "\n") {
			lineStripped := strings.TrimSpace(line)
			if lineStripped == "" {
				continue
			}
			for _, pattern := range namePatterns {
				m := pattern.FindStringSubmatch(line)
				if m == nil {
					continue
				}
				raw := strings.TrimSpace(trailingPunctRe.ReplaceAllString(strings.TrimSpace(m[1]), ""))
				if len(raw) < 2 || len(raw) > 100 {
					continue
				}
				if digitRatio(raw) > 0.5 {
					continue
				}
				normalized := NormalizeText(raw)
				if normalized == "" || seen[normalized] {
					continue
				}
				seen[normalized] = true
				candidates = append(candidates, newHeuristicCandidate(
					field, doc, page.Page, raw, normalized, lineStripped, true))
			}
		}
	}
	return candidates
}

func extractAddress(field contracts.FieldSpec, doc *contracts.Document) []contracts.Candidate {
	var candidates []contracts.Candidate
	seen := map[string]bool{}

	for _, page := range doc.Pages {
		for _, line := range strings.Split(page.Text, "\n") {
			lineStripped := strings.TrimSpace(line)
			if lineStripped == "" {
				continue
			}
			for _, pattern := range addressPatterns {
				m := pattern.FindStringSubmatch(line)
				if m == nil {
					continue
				}
				raw := strings.TrimSpace(m[1])
				if len(raw) < 5 {
					continue
				}
				normalized := NormalizeText(raw)
				if normalized == "" || seen[normalized] {
					continue
				}
				seen[normalized] = true
				candidates = append(candidates, newHeuristicCandidate(
					field, doc, page.Page, raw, normalized, lineStripped, true))
			}
		}
	}
	return candidates
}

func extractLabeledLine(field contracts.FieldSpec, doc *contracts.Document, pattern *regexp.Regexp) []contracts.Candidate {
	var candidates []contracts.Candidate
	seen := map[string]bool{}

	for _, page := range doc.Pages {
		for _, line := range strings.Split(page.Text, "\n") {
			lineStripped := strings.TrimSpace(line)
			if lineStripped == "" {
				continue
			}
			m := pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			raw := strings.TrimSpace(m[1])
			if len(raw) < 2 {
				continue
			}
			// Values stay comma-separated strings; list semantics apply
			// at evidence-check time.
			normalized := NormalizeText(raw)
			if normalized == "" || seen[normalized] {
				continue
			}
			seen[normalized] = true
			candidates = append(candidates, newHeuristicCandidate(
				field, doc, page.Page, raw, normalized, lineStripped, true))
		}
	}
	return candidates
}

func digitRatio(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return float64(digits) / float64(len(s))
}
