// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package schema

import (
	"strings"
	"testing"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

func fieldKeys(s contracts.ResolvedSchema) []string {
	keys := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		keys[i] = f.Key
	}
	return keys
}

func TestResolve_UserSchemaWins(t *testing.T) {
	var r Resolver
	userSchema := []byte(`{"fields":[
		{"key":"dob","label":"Birth Date"},
		{"key":"full_name"},
		{"key":"favorite_color"}
	]}`)

	got := r.Resolve(userSchema, []string{"Patient Name"}, contracts.RunOptions{})

	if got.Source != contracts.SourceUserSchema {
		t.Fatalf("source = %v, want user_schema", got.Source)
	}
	keys := fieldKeys(got)
	if len(keys) != 2 || keys[0] != "full_name" || keys[1] != "dob" {
		t.Errorf("fields = %v, want [full_name dob] in canonical order", keys)
	}
	if len(got.UnsupportedFields) != 1 || got.UnsupportedFields[0] != "favorite_color" {
		t.Errorf("unsupported = %v, want [favorite_color]", got.UnsupportedFields)
	}
	for _, f := range got.Fields {
		if f.Key == "dob" {
			if f.Type != contracts.TypeDate {
				t.Errorf("dob type = %v, want date (type must come from the canonical table)", f.Type)
			}
			if f.Label != "Birth Date" {
				t.Errorf("dob label = %q, want user label preserved", f.Label)
			}
		}
	}
}

func TestResolve_UnsupportedOnlyUserSchemaStaysAtTierOne(t *testing.T) {
	var r Resolver
	userSchema := []byte(`{"fields":[{"key":"favorite_color"},{"key":"ssn"}]}`)

	got := r.Resolve(userSchema, []string{"Patient Name"}, contracts.RunOptions{})

	if got.Source != contracts.SourceUserSchema {
		t.Fatalf("source = %v, want user_schema even with no supported fields", got.Source)
	}
	if len(got.Fields) != 0 {
		t.Errorf("fields = %v, want none", fieldKeys(got))
	}
	if len(got.UnsupportedFields) != 2 || got.UnsupportedFields[0] != "favorite_color" || got.UnsupportedFields[1] != "ssn" {
		t.Errorf("unsupported = %v, want [favorite_color ssn]", got.UnsupportedFields)
	}
	if len(got.Warnings) == 0 {
		t.Error("want a zero-fields warning")
	}
}

func TestResolve_EmptyUserSchemaStaysAtTierOne(t *testing.T) {
	var r Resolver
	got := r.Resolve([]byte(`{"fields":[]}`), nil, contracts.RunOptions{})

	if got.Source != contracts.SourceUserSchema {
		t.Fatalf("source = %v, want user_schema for a valid empty schema", got.Source)
	}
	if len(got.Fields) != 0 {
		t.Errorf("fields = %v, want none", fieldKeys(got))
	}
}

func TestResolve_MalformedUserSchemaFallsThrough(t *testing.T) {
	var r Resolver
	got := r.Resolve([]byte(`{not json`), []string{"patient_name", "date-of-birth"}, contracts.RunOptions{})

	if got.Source != contracts.SourceFormFields {
		t.Fatalf("source = %v, want form_fields after malformed user schema", got.Source)
	}
	if len(got.Warnings) == 0 || !strings.Contains(got.Warnings[0], "not valid JSON") {
		t.Errorf("warnings = %v, want a malformed-JSON warning first", got.Warnings)
	}
	keys := fieldKeys(got)
	if len(keys) != 2 || keys[0] != "full_name" || keys[1] != "dob" {
		t.Errorf("fields = %v, want [full_name dob]", keys)
	}
}

func TestResolve_FormFieldAliasMatching(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		wantKey string
	}{
		{"direct key", "insurance_member_id_1", "insurance_member_id"},
		{"alias birthdate", "BirthDate", "dob"},
		{"alias policy number", "Policy-Number", "insurance_member_id"},
		{"alias cell", "cell", "phone"},
		{"no match", "signature", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, warning := MatchFormField(tt.field)
			if key != tt.wantKey {
				t.Errorf("MatchFormField(%q) = %q, want %q", tt.field, key, tt.wantKey)
			}
			if warning != "" {
				t.Errorf("unexpected warning: %q", warning)
			}
		})
	}
}

func TestResolve_AmbiguousFormFieldSkipped(t *testing.T) {
	// "name" aliases full_name; "meds" aliases medications. A field
	// containing both is ambiguous and must be skipped with a warning.
	key, warning := MatchFormField("meds_by_patient_name")
	if key != "" {
		t.Fatalf("key = %q, want empty for ambiguous field", key)
	}
	if !strings.Contains(warning, contracts.ReasonAmbiguousAlias) {
		t.Errorf("warning = %q, want it tagged %s", warning, contracts.ReasonAmbiguousAlias)
	}

	var r Resolver
	got := r.Resolve(nil, []string{"meds_by_patient_name", "telephone"}, contracts.RunOptions{})
	if got.Source != contracts.SourceFormFields {
		t.Fatalf("source = %v, want form_fields", got.Source)
	}
	keys := fieldKeys(got)
	if len(keys) != 1 || keys[0] != "phone" {
		t.Errorf("fields = %v, want only [phone]", keys)
	}
	if len(got.Warnings) != 1 {
		t.Errorf("warnings = %v, want one ambiguity warning", got.Warnings)
	}
}

func TestResolve_Fallback(t *testing.T) {
	var r Resolver
	got := r.Resolve(nil, nil, contracts.RunOptions{})

	if got.Source != contracts.SourceFallbackV1 {
		t.Fatalf("source = %v, want fallback_v1", got.Source)
	}
	keys := fieldKeys(got)
	if len(keys) != len(contracts.SupportedFieldKeys) {
		t.Fatalf("got %d fields, want %d", len(keys), len(contracts.SupportedFieldKeys))
	}
	for i, k := range contracts.SupportedFieldKeys {
		if keys[i] != k {
			t.Errorf("fields[%d] = %q, want %q", i, keys[i], k)
		}
	}
}

func TestResolve_MaxFieldsCap(t *testing.T) {
	var r Resolver
	got := r.Resolve(nil, nil, contracts.RunOptions{MaxFields: 3})
	if len(got.Fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(got.Fields))
	}
	keys := fieldKeys(got)
	want := []string{"full_name", "dob", "phone"}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("fields[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestResolve_NoFormFieldsMapFallsThrough(t *testing.T) {
	var r Resolver
	got := r.Resolve(nil, []string{"signature", "date_signed_witness"}, contracts.RunOptions{})
	if got.Source != contracts.SourceFallbackV1 {
		t.Errorf("source = %v, want fallback_v1 when nothing maps", got.Source)
	}
}
