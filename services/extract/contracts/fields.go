// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package contracts

// SupportedFieldKeys is the closed field vocabulary, in canonical order.
// Resolution, routing, and final output all follow this order.
var SupportedFieldKeys = []string{
	"full_name",
	"dob",
	"phone",
	"address",
	"insurance_member_id",
	"allergies",
	"medications",
}

// FieldTypes maps each supported key to its type tag. The type is always
// taken from this table, never from caller input.
var FieldTypes = map[string]FieldType{
	"full_name":           TypeString,
	"dob":                 TypeDate,
	"phone":               TypePhone,
	"address":             TypeString,
	"insurance_member_id": TypeString,
	"allergies":           TypeStringOrList,
	"medications":         TypeStringOrList,
}

// FieldAliases maps each supported key to the alternate spellings used
// for schema matching and routing queries. The key itself is always an
// implicit alias.
var FieldAliases = map[string][]string{
	"full_name":           {"name", "full name", "patient name", "patient"},
	"dob":                 {"dob", "date_of_birth", "date of birth", "birthdate", "birth date"},
	"phone":               {"phone", "phone number", "telephone", "tel", "mobile", "cell"},
	"address":             {"address", "street address", "home address", "mailing address"},
	"insurance_member_id": {"member id", "member_id", "insurance id", "policy number", "policy id", "subscriber id"},
	"allergies":           {"allergies", "allergy", "drug allergies"},
	"medications":         {"medications", "medication", "meds", "current medications", "prescriptions"},
}

// FieldLabels supplies the default display label per supported key.
var FieldLabels = map[string]string{
	"full_name":           "Full Name",
	"dob":                 "Date of Birth",
	"phone":               "Phone",
	"address":             "Address",
	"insurance_member_id": "Insurance Member ID",
	"allergies":           "Allergies",
	"medications":         "Medications",
}

// IsSupportedField reports whether key is in the closed vocabulary.
func IsSupportedField(key string) bool {
	_, ok := FieldTypes[key]
	return ok
}

// FieldOrder returns the canonical position of key, or len(SupportedFieldKeys)
// for unknown keys so they sort last.
func FieldOrder(key string) int {
	for i, k := range SupportedFieldKeys {
		if k == key {
			return i
		}
	}
	return len(SupportedFieldKeys)
}
