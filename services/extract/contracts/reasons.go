// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package contracts

import "errors"

// Closed rationale vocabulary. Final results reference these codes and
// nothing else; consumers can switch on them without parsing prose.
const (
	ReasonLiteralAnchor         = "literal_anchor"
	ReasonValidatorPassed       = "validator_passed"
	ReasonValidatorWarned       = "validator_warned"
	ReasonCrossDocAgreement     = "cross_doc_agreement"
	ReasonContradictionFlagged  = "contradiction_flagged"
	ReasonBelowThreshold        = "below_threshold"
	ReasonNoCandidates          = "no_candidates"
	ReasonNoReadableDocs        = "no_readable_docs"
	ReasonLLMUnavailable        = "llm_unavailable"
	ReasonLLMInvalidJSON        = "llm_invalid_json"
	ReasonNoTextLayer           = "no_text_layer"
	ReasonParseError            = "parse_error"
	ReasonUnsupportedByEvidence = "unsupported_by_evidence"
	ReasonAmbiguousAlias        = "ambiguous_alias"
)

// Validator note codes attached to candidates at warn level.
const (
	NoteDefaultCountryAssumed = "default_country_assumed"
)

// Run-fatal errors. Everything else is field-scoped and degrades to a
// rationale code on that field.
var (
	ErrNoDocuments = errors.New("no input documents")
	ErrRunStorage  = errors.New("run storage unavailable")
)

// LLM attempt errors, mapped to rationale codes by the candidate
// generator.
var (
	ErrLLMUnavailable = errors.New("llm unavailable")
	ErrLLMInvalidJSON = errors.New("llm returned invalid json")
)
