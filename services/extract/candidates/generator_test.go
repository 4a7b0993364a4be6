// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package candidates

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
	"github.com/AleutianAI/DocFill/services/extract/llm"
)

// fakeClient replays canned responses. A string entry is returned as
// the model output, an error entry as a transport failure.
type fakeClient struct {
	responses []any
	calls     int
}

func (f *fakeClient) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	if f.calls >= len(f.responses) {
		return "", errors.New("no scripted response")
	}
	r := f.responses[f.calls]
	f.calls++
	switch v := r.(type) {
	case string:
		return v, nil
	case error:
		return "", v
	}
	return "", errors.New("bad script entry")
}

func (f *fakeClient) Name() string  { return "fake" }
func (f *fakeClient) Model() string { return "fake-model" }

func testDoc(docID string, pages ...string) *contracts.Document {
	doc := &contracts.Document{DocID: docID, HasTextLayer: true}
	for i, text := range pages {
		doc.Pages = append(doc.Pages, contracts.PageText{Page: i + 1, Text: text})
	}
	return doc
}

func dobField() contracts.FieldSpec {
	return contracts.FieldSpec{Key: "dob", Type: contracts.TypeDate, Label: "Date of birth"}
}

func testOpts() contracts.RunOptions {
	opts := contracts.RunOptions{LLMProvider: "none"}
	opts.Normalize()
	return opts
}

func TestGenerate_HeuristicOnlyWithoutExtractor(t *testing.T) {
	gen := NewGenerator(nil, nil, nil)
	docs := []*contracts.Document{
		testDoc("doc_001", "Patient intake form\nDOB: 01/15/1990\n"),
	}

	cands, reasons, stats := gen.Generate(context.Background(), dobField(), docs, testOpts())

	if len(reasons) != 0 {
		t.Errorf("reasons = %v, want none", reasons)
	}
	if len(cands) != 1 {
		t.Fatalf("len(cands) = %d, want 1", len(cands))
	}
	if !cands[0].Accepted() {
		t.Errorf("candidate rejected: %v", cands[0].RejectedReasons)
	}
	if cands[0].NormalizedValue != "1990-01-15" {
		t.Errorf("NormalizedValue = %q, want 1990-01-15", cands[0].NormalizedValue)
	}
	if want := ProvisionalAnchorWeight; cands[0].Confidence != want {
		t.Errorf("Confidence = %v, want provisional %v", cands[0].Confidence, want)
	}
	if stats.HeuristicProposed != 1 || stats.HeuristicAccepted != 1 {
		t.Errorf("stats = %+v, want 1 proposed 1 accepted", stats)
	}
	if stats.LLMUsed {
		t.Error("LLMUsed = true with nil extractor")
	}
}

func TestGenerate_EscalatesToModel(t *testing.T) {
	// The provisional ceiling sits below the escalation threshold, so
	// the model pass runs even when a heuristic candidate was accepted.
	client := &fakeClient{responses: []any{
		`[{"raw_value": "01/15/1990", "normalized_value": "1990-01-15",
		   "evidence": [{"doc_id": "doc_001", "page": 1, "quoted_text": "DOB: 01/15/1990"}]}]`,
	}}
	gen := NewGenerator(nil, llm.NewExtractor(client), nil)
	docs := []*contracts.Document{
		testDoc("doc_001", "Patient intake form\nDOB: 01/15/1990\n"),
	}

	cands, reasons, stats := gen.Generate(context.Background(), dobField(), docs, testOpts())

	if client.calls != 1 {
		t.Fatalf("model calls = %d, want 1", client.calls)
	}
	if len(reasons) != 0 {
		t.Errorf("reasons = %v, want none", reasons)
	}
	if len(cands) != 2 {
		t.Fatalf("len(cands) = %d, want heuristic plus model", len(cands))
	}
	if cands[0].Method != contracts.MethodHeuristic || cands[1].Method != contracts.MethodLLM {
		t.Errorf("order = %s, %s; want heuristic before llm", cands[0].Method, cands[1].Method)
	}
	if !cands[1].Accepted() {
		t.Errorf("model candidate rejected: %v", cands[1].RejectedReasons)
	}
	if !stats.LLMUsed || stats.LLMProposed != 1 || stats.LLMAccepted != 1 {
		t.Errorf("stats = %+v, want model counts 1/1", stats)
	}
}

func TestGenerate_ModelCandidateFailsEvidenceCheck(t *testing.T) {
	// Quoted text that does not contain the value is a fabrication.
	client := &fakeClient{responses: []any{
		`[{"raw_value": "03/20/1985", "normalized_value": "1985-03-20",
		   "evidence": [{"doc_id": "doc_001", "page": 1, "quoted_text": "Patient intake form"}]}]`,
	}}
	gen := NewGenerator(nil, llm.NewExtractor(client), nil)
	docs := []*contracts.Document{
		testDoc("doc_001", "Patient intake form\nno dates here\n"),
	}

	cands, reasons, stats := gen.Generate(context.Background(), dobField(), docs, testOpts())

	if len(reasons) != 0 {
		t.Errorf("reasons = %v, want none; a rejected candidate is not a field failure", reasons)
	}
	if len(cands) != 1 {
		t.Fatalf("len(cands) = %d, want 1", len(cands))
	}
	if cands[0].Accepted() {
		t.Error("fabricated candidate accepted")
	}
	if cands[0].Confidence != 0 {
		t.Errorf("Confidence = %v, want 0 for rejected", cands[0].Confidence)
	}
	if stats.LLMAccepted != 0 {
		t.Errorf("LLMAccepted = %d, want 0", stats.LLMAccepted)
	}
}

func TestGenerate_TransportErrorKeepsHeuristics(t *testing.T) {
	client := &fakeClient{responses: []any{errors.New("connection refused")}}
	gen := NewGenerator(nil, llm.NewExtractor(client), nil)
	docs := []*contracts.Document{
		testDoc("doc_001", "DOB: 01/15/1990\n"),
	}

	cands, reasons, stats := gen.Generate(context.Background(), dobField(), docs, testOpts())

	if len(reasons) != 1 || reasons[0] != contracts.ReasonLLMUnavailable {
		t.Errorf("reasons = %v, want [llm_unavailable]", reasons)
	}
	if client.calls != 1 {
		t.Errorf("model calls = %d, want 1 (transport errors are terminal)", client.calls)
	}
	if len(cands) != 1 || cands[0].Method != contracts.MethodHeuristic {
		t.Errorf("cands = %+v, want the heuristic survivor", cands)
	}
	if stats.LLMError != contracts.ReasonLLMUnavailable {
		t.Errorf("stats.LLMError = %q, want llm_unavailable", stats.LLMError)
	}
}

func TestGenerate_InvalidJSONAfterRetry(t *testing.T) {
	client := &fakeClient{responses: []any{"not json", "still not json"}}
	gen := NewGenerator(nil, llm.NewExtractor(client), nil)
	docs := []*contracts.Document{
		testDoc("doc_001", "DOB: 01/15/1990\n"),
	}

	_, reasons, _ := gen.Generate(context.Background(), dobField(), docs, testOpts())

	if client.calls != 2 {
		t.Errorf("model calls = %d, want exactly 2", client.calls)
	}
	if len(reasons) != 1 || reasons[0] != contracts.ReasonLLMInvalidJSON {
		t.Errorf("reasons = %v, want [llm_invalid_json]", reasons)
	}
}

func TestGenerate_NoDocsSkipsModel(t *testing.T) {
	client := &fakeClient{}
	gen := NewGenerator(nil, llm.NewExtractor(client), nil)

	cands, reasons, stats := gen.Generate(context.Background(), dobField(), nil, testOpts())

	if client.calls != 0 {
		t.Errorf("model calls = %d, want 0 without excerpts", client.calls)
	}
	if len(cands) != 0 || len(reasons) != 0 {
		t.Errorf("cands = %v reasons = %v, want empty", cands, reasons)
	}
	if stats.LLMUsed {
		t.Error("LLMUsed = true, want false")
	}
}
