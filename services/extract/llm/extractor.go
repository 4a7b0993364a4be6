// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
	"github.com/AleutianAI/DocFill/services/extract/excerpts"
)

var typeInstructions = map[contracts.FieldType]string{
	contracts.TypeDate:         "Return the date in YYYY-MM-DD format.",
	contracts.TypePhone:        "Return the phone number with digits only (include country code if present).",
	contracts.TypeString:       "Return the value as a string.",
	contracts.TypeStringOrList: "Return as a string. If multiple values, separate with commas.",
}

// Extractor runs the model-backed extraction attempt for one field.
//
// The call contract is fixed: at most one completion plus one
// structural retry per invocation. Transport failures and context
// timeouts are terminal (contracts.ErrLLMUnavailable), never retried;
// only a malformed payload earns the retry, and a second malformed
// payload is contracts.ErrLLMInvalidJSON.
type Extractor struct {
	client Client

	// calls counts completions issued, for ceiling assertions and the
	// llm_calls_total metric.
	calls atomic.Int64
}

// NewExtractor wraps a Client. The client must be non-nil.
func NewExtractor(client Client) *Extractor {
	return &Extractor{client: client}
}

// Calls reports how many completions this extractor has issued.
func (e *Extractor) Calls() int64 {
	return e.calls.Load()
}

// ExtractCandidates asks the model for candidates grounded in the
// given excerpts.
//
// Outputs:
//
//	[]contracts.Candidate - parsed, method llm; empty when the model
//	finds nothing or excerpts are empty.
//	error - contracts.ErrLLMUnavailable or contracts.ErrLLMInvalidJSON.
func (e *Extractor) ExtractCandidates(ctx context.Context, field contracts.FieldSpec, excerptList []excerpts.DocExcerpt, opts contracts.RunOptions) ([]contracts.Candidate, error) {
	if len(excerptList) == 0 {
		return nil, nil
	}
	_ = initMetrics()
	opts.Normalize()

	params := GenerationParams{MaxTokens: &opts.MaxLLMTokens}
	messages := []Message{{Role: "user", Content: buildExtractionPrompt(field, excerptList)}}

	response, err := e.chat(ctx, field, messages, params)
	if err != nil {
		return nil, err
	}

	candidates, parseErr := ParseCandidates(field, response)
	if parseErr == nil {
		return candidates, nil
	}

	// One structural retry with a corrective prompt.
	messages = append(messages,
		Message{Role: "assistant", Content: response},
		Message{Role: "user", Content: buildRetryPrompt(field, parseErr.Error())},
	)
	response, err = e.chat(ctx, field, messages, params)
	if err != nil {
		return nil, err
	}

	candidates, parseErr = ParseCandidates(field, response)
	if parseErr != nil {
		return nil, fmt.Errorf("%w: field %s: %v", contracts.ErrLLMInvalidJSON, field.Key, parseErr)
	}
	return candidates, nil
}

func (e *Extractor) chat(ctx context.Context, field contracts.FieldSpec, messages []Message, params GenerationParams) (string, error) {
	e.calls.Add(1)
	start := time.Now()

	response, err := e.client.Chat(ctx, messages, params)

	if callsTotal != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		callsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", e.client.Name()),
			attribute.String("field", field.Key),
			attribute.String("outcome", outcome),
		))
		callDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("provider", e.client.Name()),
		))
	}
	if err != nil {
		return "", fmt.Errorf("%w: field %s: %v", contracts.ErrLLMUnavailable, field.Key, err)
	}
	return response, nil
}

func buildExtractionPrompt(field contracts.FieldSpec, excerptList []excerpts.DocExcerpt) string {
	var context strings.Builder
	for i, excerpt := range excerptList {
		if i > 0 {
			context.WriteString("\n\n")
		}
		fmt.Fprintf(&context, "[Document: %s, Page: %d]\n%s", excerpt.DocID, excerpt.Page, excerpt.Text)
	}

	typeHint, ok := typeInstructions[field.Type]
	if !ok {
		typeHint = typeInstructions[contracts.TypeString]
	}

	labelLine := ""
	if field.Label != "" {
		labelLine = fmt.Sprintf("Label: %s\n", field.Label)
	}

	return fmt.Sprintf(`Extract the value for field %q from the following document excerpts.

Field: %s
Type: %s
%s
%s

IMPORTANT:
- You MUST include evidence showing where you found the value.
- The quoted_text must be an EXACT quote from the document.
- If you cannot find the field, return an empty array [].

Return ONLY valid JSON in this exact format:
[
  {
    "raw_value": "the value as found in the document",
    "normalized_value": "the normalized/cleaned value",
    "evidence": [
      {
        "doc_id": "document id where found",
        "page": page_number,
        "quoted_text": "exact quote from document containing the value"
      }
    ]
  }
]

Document excerpts:
%s

Return ONLY the JSON array, no other text.`,
		field.Key, field.Key, field.Type, labelLine, typeHint, context.String())
}

func buildRetryPrompt(field contracts.FieldSpec, parseError string) string {
	return fmt.Sprintf(`Your previous response was not valid JSON. Error: %s

Return ONLY a valid JSON array matching this schema for field %q:

[
  {
    "raw_value": "string",
    "normalized_value": "string",
    "evidence": [
      {
        "doc_id": "string",
        "page": number,
        "quoted_text": "string"
      }
    ]
  }
]

If no value found, return: []

Return ONLY the JSON array, nothing else.`, parseError, field.Key)
}
