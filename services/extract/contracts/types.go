// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package contracts defines the shared domain types for the extraction
// pipeline: documents, schemas, routing entries, evidence, candidates,
// and final field results.
//
// Every stage of the pipeline communicates through these types. They are
// plain data carriers: construction happens in the producing stage and
// all types are treated as immutable once handed downstream.
package contracts

import (
	"fmt"
	"time"
)

// FieldType tags how a field's values are normalized and validated.
type FieldType string

const (
	TypeString       FieldType = "string"
	TypeDate         FieldType = "date"
	TypePhone        FieldType = "phone"
	TypeStringOrList FieldType = "string_or_list"
)

// FieldStatus is the terminal state of a field after selection.
type FieldStatus string

const (
	StatusFilled      FieldStatus = "filled"
	StatusNeedsReview FieldStatus = "needs_review"
	StatusMissing     FieldStatus = "missing"
)

// CandidateMethod records which attempt produced a candidate.
type CandidateMethod string

const (
	MethodHeuristic CandidateMethod = "heuristic"
	MethodLLM       CandidateMethod = "llm"
)

// SchemaSource records which tier of the resolution precedence won.
type SchemaSource string

const (
	SourceUserSchema SchemaSource = "user_schema"
	SourceFormFields SchemaSource = "form_fields"
	SourceFallbackV1 SchemaSource = "fallback_v1"
)

// FieldSpec describes one field the run should try to fill.
//
// Thread Safety: Immutable after creation, safe for concurrent read.
type FieldSpec struct {
	// Key is one of the supported field keys (see SupportedFieldKeys).
	Key string `json:"key"`

	// Label is the human-facing label, if the schema supplied one.
	Label string `json:"label,omitempty"`

	// Type governs normalization and evidence matching for the field.
	Type FieldType `json:"type"`
}

// ResolvedSchema is the outcome of schema resolution.
type ResolvedSchema struct {
	Source SchemaSource `json:"source"`

	// Fields is ordered by the canonical field order and capped at the
	// run's MaxFields.
	Fields []FieldSpec `json:"fields"`

	// UnsupportedFields lists user-schema keys outside the supported set.
	UnsupportedFields []string `json:"unsupported_fields,omitempty"`

	// Warnings carries non-fatal resolution notes (malformed user schema,
	// ambiguous form field names).
	Warnings []string `json:"warnings,omitempty"`
}

// BBox is an optional span geometry in page coordinate space.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Span is a positioned text fragment within a page.
type Span struct {
	Text string `json:"text"`
	BBox *BBox  `json:"bbox,omitempty"`
}

// PageText is the extracted text of a single page. Page numbers are
// 1-indexed everywhere in the pipeline.
type PageText struct {
	Page  int    `json:"page"`
	Text  string `json:"text"`
	Spans []Span `json:"spans,omitempty"`
}

// Document is one ingested source document with its extracted text layer.
//
// Thread Safety: Immutable after ingestion, safe for concurrent read.
type Document struct {
	// DocID is the deterministic per-run identifier (doc_001, doc_002, ...).
	DocID string `json:"doc_id"`

	// Filename is the original upload name.
	Filename string `json:"filename"`

	// SHA256 is the hex digest of the raw bytes.
	SHA256 string `json:"sha256"`

	// MIMEType is the detected content type.
	MIMEType string `json:"mime_type"`

	// Pages holds per-page text in page order.
	Pages []PageText `json:"pages"`

	// FormFields are AcroForm field names harvested from a fillable
	// PDF, in document order. Empty for non-fillable documents.
	FormFields []string `json:"form_fields,omitempty"`

	// HasTextLayer is false when no page yielded any text.
	HasTextLayer bool `json:"has_text_layer"`

	// UnreadableReason is set when the document cannot participate in
	// extraction (ReasonNoTextLayer or ReasonParseError).
	UnreadableReason string `json:"unreadable_reason,omitempty"`
}

// Readable reports whether the document can contribute text evidence.
func (d *Document) Readable() bool {
	return d.HasTextLayer && d.UnreadableReason == ""
}

// Text returns the concatenated page text in page order, capped at max
// characters. A max of 0 or less means no cap.
func (d *Document) Text(max int) string {
	var out string
	for _, p := range d.Pages {
		if out != "" {
			out += "\n"
		}
		out += p.Text
		if max > 0 && len(out) >= max {
			return out[:max]
		}
	}
	return out
}

// RoutingEntry maps one field to its most promising documents.
type RoutingEntry struct {
	Field string `json:"field"`

	// DocIDs is ordered best-first and capped at the run's TopKDocs.
	DocIDs []string `json:"doc_ids"`

	// Scores holds the overlap score per routed doc id, each in [0,1].
	Scores map[string]float64 `json:"scores"`
}

// Score returns the routing score for a doc id, or 0 when the doc was
// not routed for this field.
func (r *RoutingEntry) Score(docID string) float64 {
	if r.Scores == nil {
		return 0
	}
	return r.Scores[docID]
}

// Evidence anchors a candidate value to a literal location in a source
// document. QuotedText must be verbatim source text; the evidence
// validator enforces that the value is recoverable from it.
type Evidence struct {
	DocID      string `json:"doc_id"`
	Page       int    `json:"page"`
	QuotedText string `json:"quoted_text"`
	BBox       *BBox  `json:"bbox,omitempty"`
}

// Valid reports whether the evidence is structurally usable.
func (e *Evidence) Valid() bool {
	return e.DocID != "" && e.Page >= 1 && e.QuotedText != ""
}

// CandidateScores is the per-candidate score breakdown. All components
// are clamped to [0,1].
type CandidateScores struct {
	// AnchorMatch is 1.0 when a field-specific anchor keyword appears
	// near the evidence, else 0.0.
	AnchorMatch float64 `json:"anchor_match"`

	// Validator is the mean of the type-specific validator outcomes
	// (pass 1.0, warn 0.6, fail 0.0).
	Validator float64 `json:"validator"`

	// DocRelevance is the routing score of the evidence's document.
	DocRelevance float64 `json:"doc_relevance"`

	// CrossDocAgreement is the flat agreement bonus, 0 or 0.10.
	CrossDocAgreement float64 `json:"cross_doc_agreement"`

	// ContradictionPenalty is subtracted from the winner when a
	// contradiction is flagged, 0 or 0.30.
	ContradictionPenalty float64 `json:"contradiction_penalty"`
}

// Candidate is one proposed value for a field, always carrying at least
// one piece of evidence.
type Candidate struct {
	Field           string          `json:"field"`
	RawValue        string          `json:"raw_value"`
	NormalizedValue string          `json:"normalized_value"`
	Evidence        []Evidence      `json:"evidence"`
	Method          CandidateMethod `json:"method"`

	// ValidatorNotes records warn-level validator observations, e.g.
	// NoteDefaultCountryAssumed.
	ValidatorNotes []string `json:"validator_notes,omitempty"`

	// RejectedReasons is empty for accepted candidates. A rejected
	// candidate survives only as an alternative.
	RejectedReasons []string `json:"rejected_reasons,omitempty"`

	Scores CandidateScores `json:"scores"`

	// Confidence is the final clamped score after agreement bonus and
	// any contradiction penalty.
	Confidence float64 `json:"confidence"`
}

// Accepted reports whether the candidate passed the evidence check and
// remains eligible for selection.
func (c *Candidate) Accepted() bool {
	return len(c.RejectedReasons) == 0
}

// Alternative is a losing candidate surfaced for review.
type Alternative struct {
	Value      string          `json:"value"`
	Confidence float64         `json:"confidence"`
	Method     CandidateMethod `json:"method"`
	Evidence   []Evidence      `json:"evidence,omitempty"`
}

// FinalField is the terminal per-field result.
//
// Invariant: Value != nil implies len(Evidence) >= 1, with quoted text
// that passed the evidence check for the value.
type FinalField struct {
	Field      string      `json:"field"`
	Status     FieldStatus `json:"status"`
	Value      *string     `json:"value"`
	Confidence float64     `json:"confidence"`

	// Rationale is an ordered list of closed-vocabulary reason codes.
	// Never free prose.
	Rationale []string `json:"rationale"`

	Evidence     []Evidence    `json:"evidence,omitempty"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// FinalResult is the whole-run output artifact.
type FinalResult struct {
	RunID     string         `json:"run_id"`
	Schema    ResolvedSchema `json:"schema"`
	Fields    []FinalField   `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
}

// RunOptions carries the per-run tunables. Zero values are replaced by
// defaults via Normalize.
type RunOptions struct {
	TopKDocs     int           `json:"top_k_docs" yaml:"top_k_docs"`
	MaxFields    int           `json:"max_fields" yaml:"max_fields"`
	LLMProvider  string        `json:"llm_provider" yaml:"llm_provider"`
	LLMModel     string        `json:"llm_model" yaml:"llm_model"`
	MaxLLMTokens int           `json:"max_llm_tokens" yaml:"max_llm_tokens"`
	LLMTimeout   time.Duration `json:"llm_timeout" yaml:"llm_timeout"`
	FieldWorkers int           `json:"field_workers" yaml:"field_workers"`
}

// Defaults for RunOptions.
const (
	DefaultTopKDocs     = 3
	DefaultMaxFields    = 7
	DefaultLLMProvider  = "anthropic"
	DefaultLLMModel     = "claude-sonnet-4-20250514"
	DefaultMaxLLMTokens = 1200
	DefaultLLMTimeout   = 45 * time.Second
	DefaultFieldWorkers = 4
)

// Normalize fills zero-valued options with defaults and clamps
// out-of-range values.
func (o *RunOptions) Normalize() {
	if o.TopKDocs <= 0 {
		o.TopKDocs = DefaultTopKDocs
	}
	if o.MaxFields <= 0 || o.MaxFields > DefaultMaxFields {
		o.MaxFields = DefaultMaxFields
	}
	if o.LLMProvider == "" {
		o.LLMProvider = DefaultLLMProvider
	}
	if o.LLMModel == "" {
		o.LLMModel = DefaultLLMModel
	}
	if o.MaxLLMTokens <= 0 {
		o.MaxLLMTokens = DefaultMaxLLMTokens
	}
	if o.LLMTimeout <= 0 {
		o.LLMTimeout = DefaultLLMTimeout
	}
	if o.FieldWorkers <= 0 {
		o.FieldWorkers = DefaultFieldWorkers
	}
}

// Validate checks the options for values Normalize cannot repair.
func (o *RunOptions) Validate() error {
	switch o.LLMProvider {
	case "", "anthropic", "openai", "none":
	default:
		return fmt.Errorf("unknown llm provider %q", o.LLMProvider)
	}
	return nil
}
