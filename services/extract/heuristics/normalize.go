// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package heuristics implements the deterministic first-attempt
// candidate extractors: regex and keyword-proximity scans over routed
// document text, plus the shared value normalizers used across the
// pipeline.
package heuristics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	punctuationRe  = regexp.MustCompile(`[^\w\s\-]`)
	nonDigitRe     = regexp.MustCompile(`\D`)
	dateYMDRe      = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	dateMDYRe      = regexp.MustCompile(`^(\d{1,2})[-/](\d{1,2})[-/](\d{4})`)
	dateMonthDayRe = regexp.MustCompile(`(?i)^([a-zA-Z]+)\s*(\d{1,2}),?\s*(\d{4})`)
	dateDayMonthRe = regexp.MustCompile(`(?i)^(\d{1,2})\s+([a-zA-Z]+)\s+(\d{4})`)
)

var monthNumbers = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// NormalizeText normalizes text for comparison: lowercase, collapse
// whitespace, strip punctuation except hyphens, trim.
func NormalizeText(text string) string {
	text = strings.ToLower(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = punctuationRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// NormalizeDate normalizes a date string to YYYY-MM-DD.
//
// Recognized shapes: YYYY-MM-DD, YYYY/MM/DD, MM/DD/YYYY, MM-DD-YYYY,
// "Month DD, YYYY", and "DD Month YYYY". Returns ("", false) when the
// input matches none of them.
func NormalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)

	if m := dateYMDRe.FindStringSubmatch(raw); m != nil {
		return formatDate(m[1], m[2], m[3])
	}
	if m := dateMDYRe.FindStringSubmatch(raw); m != nil {
		return formatDate(m[3], m[1], m[2])
	}
	if m := dateMonthDayRe.FindStringSubmatch(raw); m != nil {
		if month, ok := monthNumbers[strings.ToLower(m[1])]; ok {
			return formatDate(m[3], strconv.Itoa(month), m[2])
		}
	}
	if m := dateDayMonthRe.FindStringSubmatch(raw); m != nil {
		if month, ok := monthNumbers[strings.ToLower(m[2])]; ok {
			return formatDate(m[3], strconv.Itoa(month), m[1])
		}
	}
	return "", false
}

func formatDate(year, month, day string) (string, bool) {
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return "", false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return "", false
	}
	return fmt.Sprintf("%s-%02d-%02d", year, m, d), true
}

// NormalizePhone normalizes a phone number to digits only. A 10-digit
// number is assumed domestic and gets a leading "1"; the second return
// reports that assumption so the validator can warn.
func NormalizePhone(raw string) (digits string, defaultCountryAssumed bool) {
	digits = ExtractDigits(raw)
	if len(digits) == 10 {
		return "1" + digits, true
	}
	return digits, false
}

// ExtractDigits strips everything but digits.
func ExtractDigits(text string) string {
	return nonDigitRe.ReplaceAllString(text, "")
}
