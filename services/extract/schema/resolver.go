// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package schema resolves the target field set for a run.
//
// Resolution follows a strict precedence: an explicit user schema wins,
// then names harvested from a fillable form, then a fixed fallback set.
// Resolution never fails a run. A parseable user schema always resolves
// at its own tier, even when every requested field is unsupported; only
// malformed JSON degrades to the next tier with a warning.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

// userSchemaDoc is the accepted user schema shape.
type userSchemaDoc struct {
	Fields []struct {
		Key   string `json:"key"`
		Label string `json:"label"`
		Type  string `json:"type"`
	} `json:"fields"`
}

// Resolver resolves the run's field set. The zero value is usable.
type Resolver struct{}

// Resolve applies the precedence user schema > form fields > fallback.
//
// Description:
//
//	userSchema is raw JSON or nil. formFields are field names harvested
//	from a fillable form, or nil. The result is ordered by the canonical
//	field order and capped at opts.MaxFields.
//
// Outputs:
//
//	contracts.ResolvedSchema - never an error; degraded inputs surface
//	as warnings on the result.
//
// Thread Safety: Safe for concurrent use.
func (r *Resolver) Resolve(userSchema []byte, formFields []string, opts contracts.RunOptions) contracts.ResolvedSchema {
	opts.Normalize()

	if len(userSchema) > 0 {
		resolved, warning := r.fromUserSchema(userSchema, opts.MaxFields)
		if resolved != nil {
			return *resolved
		}
		// Only malformed JSON falls through.
		if len(formFields) > 0 {
			if fromForm := r.fromFormFields(formFields, opts.MaxFields); fromForm != nil {
				fromForm.Warnings = append([]string{warning}, fromForm.Warnings...)
				return *fromForm
			}
		}
		fb := r.fallback(opts.MaxFields)
		fb.Warnings = append([]string{warning}, fb.Warnings...)
		return fb
	}

	if len(formFields) > 0 {
		if fromForm := r.fromFormFields(formFields, opts.MaxFields); fromForm != nil {
			return *fromForm
		}
	}

	return r.fallback(opts.MaxFields)
}

// fromUserSchema parses the user schema. Returns (nil, warning) only when
// the JSON is malformed; a parseable schema always resolves at this tier,
// even with zero supported fields.
func (r *Resolver) fromUserSchema(raw []byte, maxFields int) (*contracts.ResolvedSchema, string) {
	var doc userSchemaDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Sprintf("user schema is not valid JSON: %v", err)
	}

	seen := map[string]bool{}
	var fields []contracts.FieldSpec
	var unsupported []string
	for _, f := range doc.Fields {
		key := strings.ToLower(strings.TrimSpace(f.Key))
		if key == "" {
			continue
		}
		if !contracts.IsSupportedField(key) {
			unsupported = append(unsupported, key)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		label := strings.TrimSpace(f.Label)
		if label == "" {
			label = contracts.FieldLabels[key]
		}
		// Type always comes from the canonical table, not the caller.
		fields = append(fields, contracts.FieldSpec{
			Key:   key,
			Label: label,
			Type:  contracts.FieldTypes[key],
		})
	}

	var warnings []string
	if len(fields) == 0 {
		warnings = append(warnings, "user schema resolved no supported fields")
	}

	sortAndCap(&fields, maxFields)
	return &contracts.ResolvedSchema{
		Source:            contracts.SourceUserSchema,
		Fields:            fields,
		UnsupportedFields: unsupported,
		Warnings:          warnings,
	}, ""
}

// fromFormFields maps harvested form field names onto supported keys.
// Returns nil when no name maps to any key.
func (r *Resolver) fromFormFields(names []string, maxFields int) *contracts.ResolvedSchema {
	seen := map[string]bool{}
	var fields []contracts.FieldSpec
	var warnings []string

	for _, name := range names {
		key, warning := MatchFormField(name)
		if warning != "" {
			warnings = append(warnings, warning)
			continue
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		fields = append(fields, contracts.FieldSpec{
			Key:   key,
			Label: strings.TrimSpace(name),
			Type:  contracts.FieldTypes[key],
		})
	}

	if len(fields) == 0 {
		return nil
	}

	sortAndCap(&fields, maxFields)
	return &contracts.ResolvedSchema{
		Source:   contracts.SourceFormFields,
		Fields:   fields,
		Warnings: warnings,
	}
}

// MatchFormField maps one form field name onto a supported key.
//
// Description:
//
//	The name is normalized (lowercase, underscores and hyphens become
//	spaces). A name containing a supported key maps directly. Otherwise
//	alias containment is tried: exactly one key's aliases matching maps
//	the field; two or more distinct keys matching is ambiguous and the
//	field is skipped with a warning.
//
// Outputs:
//
//	key     - the matched supported key, or "" for no match.
//	warning - non-empty only for the ambiguous case.
func MatchFormField(name string) (key, warning string) {
	norm := normalizeFieldName(name)
	if norm == "" {
		return "", ""
	}

	for _, k := range contracts.SupportedFieldKeys {
		if strings.Contains(norm, strings.ReplaceAll(k, "_", " ")) || strings.Contains(norm, k) {
			return k, ""
		}
	}

	matched := map[string]bool{}
	for k, aliases := range contracts.FieldAliases {
		for _, alias := range aliases {
			if strings.Contains(norm, normalizeFieldName(alias)) {
				matched[k] = true
				break
			}
		}
	}

	switch len(matched) {
	case 0:
		return "", ""
	case 1:
		for k := range matched {
			return k, ""
		}
	}

	keys := make([]string, 0, len(matched))
	for k := range matched {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "", fmt.Sprintf("%s: form field %q matches multiple keys (%s)",
		contracts.ReasonAmbiguousAlias, name, strings.Join(keys, ", "))
}

// fallback returns the fixed v1 field set.
func (r *Resolver) fallback(maxFields int) contracts.ResolvedSchema {
	var fields []contracts.FieldSpec
	for _, key := range contracts.SupportedFieldKeys {
		fields = append(fields, contracts.FieldSpec{
			Key:   key,
			Label: contracts.FieldLabels[key],
			Type:  contracts.FieldTypes[key],
		})
	}
	sortAndCap(&fields, maxFields)
	return contracts.ResolvedSchema{
		Source: contracts.SourceFallbackV1,
		Fields: fields,
	}
}

func sortAndCap(fields *[]contracts.FieldSpec, maxFields int) {
	sort.SliceStable(*fields, func(i, j int) bool {
		return contracts.FieldOrder((*fields)[i].Key) < contracts.FieldOrder((*fields)[j].Key)
	})
	if maxFields > 0 && len(*fields) > maxFields {
		*fields = (*fields)[:maxFields]
	}
}

func normalizeFieldName(name string) string {
	norm := strings.ToLower(strings.TrimSpace(name))
	norm = strings.ReplaceAll(norm, "_", " ")
	norm = strings.ReplaceAll(norm, "-", " ")
	return strings.Join(strings.Fields(norm), " ")
}
