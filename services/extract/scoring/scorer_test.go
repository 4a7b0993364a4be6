// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

func fixedScorer() *Scorer {
	return &Scorer{now: func() time.Time {
		return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	}}
}

func dobField() contracts.FieldSpec {
	return contracts.FieldSpec{Key: "dob", Type: contracts.TypeDate}
}

func cand(field, value, docID string, anchor float64) contracts.Candidate {
	return contracts.Candidate{
		Field:           field,
		RawValue:        value,
		NormalizedValue: value,
		Method:          contracts.MethodHeuristic,
		Evidence: []contracts.Evidence{{
			DocID: docID, Page: 1, QuotedText: value,
		}},
		Scores: contracts.CandidateScores{AnchorMatch: anchor},
	}
}

func routingFor(field string, scores map[string]float64) contracts.RoutingEntry {
	entry := contracts.RoutingEntry{Field: field, Scores: scores}
	for id := range scores {
		entry.DocIDs = append(entry.DocIDs, id)
	}
	return entry
}

func approx(t *testing.T, got, want float64, label string) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", label, got, want)
	}
}

func TestScoreField_WeightedBase(t *testing.T) {
	s := fixedScorer()
	candidates := []contracts.Candidate{cand("dob", "1990-01-15", "doc_001", 1.0)}
	routing := routingFor("dob", map[string]float64{"doc_001": 0.8})

	s.ScoreField(dobField(), candidates, routing)

	c := candidates[0]
	approx(t, c.Scores.Validator, 1.0, "validator")
	approx(t, c.Scores.DocRelevance, 0.8, "doc_relevance")
	// 0.45*1.0 + 0.30*1.0 + 0.25*0.8 = 0.95
	approx(t, c.Confidence, 0.95, "confidence")
}

func TestScoreField_NoAnchorLowerConfidence(t *testing.T) {
	s := fixedScorer()
	candidates := []contracts.Candidate{cand("dob", "1990-01-15", "doc_001", 0.0)}
	s.ScoreField(dobField(), candidates, routingFor("dob", map[string]float64{"doc_001": 1.0}))
	// 0 + 0.30 + 0.25 = 0.55
	approx(t, candidates[0].Confidence, 0.55, "confidence")
}

func TestScoreField_FutureDateFailsPlausibility(t *testing.T) {
	s := fixedScorer()
	candidates := []contracts.Candidate{cand("dob", "2030-01-01", "doc_001", 1.0)}
	s.ScoreField(dobField(), candidates, routingFor("dob", map[string]float64{"doc_001": 0}))
	// validator = mean(pass, pass_format, fail) = 2/3
	approx(t, candidates[0].Scores.Validator, 2.0/3.0, "validator")
}

func TestScoreField_AncientDateWarns(t *testing.T) {
	s := fixedScorer()
	candidates := []contracts.Candidate{cand("dob", "1880-01-01", "doc_001", 1.0)}
	s.ScoreField(dobField(), candidates, routingFor("dob", map[string]float64{"doc_001": 0}))
	// validator = mean(pass, pass, warn 0.6) = 2.6/3
	approx(t, candidates[0].Scores.Validator, 2.6/3.0, "validator")
}

func TestScoreField_PhoneDefaultCountryWarns(t *testing.T) {
	s := fixedScorer()
	phoneField := contracts.FieldSpec{Key: "phone", Type: contracts.TypePhone}

	withNote := cand("phone", "15551234567", "doc_001", 1.0)
	withNote.ValidatorNotes = []string{contracts.NoteDefaultCountryAssumed}
	without := cand("phone", "15551234567", "doc_001", 1.0)

	candidates := []contracts.Candidate{withNote, without}
	s.ScoreField(phoneField, candidates, routingFor("phone", map[string]float64{"doc_001": 0}))

	// mean(pass, warn) = 0.8 vs mean(pass, pass) = 1.0
	approx(t, candidates[0].Scores.Validator, 0.8, "warned validator")
	approx(t, candidates[1].Scores.Validator, 1.0, "clean validator")
}

func TestScoreField_CrossDocAgreementBonus(t *testing.T) {
	s := fixedScorer()
	candidates := []contracts.Candidate{
		cand("dob", "1990-01-15", "doc_001", 0.0),
		cand("dob", "1990-01-15", "doc_002", 0.0),
		cand("dob", "1985-03-03", "doc_001", 0.0),
	}
	routing := routingFor("dob", map[string]float64{"doc_001": 0, "doc_002": 0})
	s.ScoreField(dobField(), candidates, routing)

	approx(t, candidates[0].Scores.CrossDocAgreement, AgreementBonus, "agreed candidate bonus")
	approx(t, candidates[1].Scores.CrossDocAgreement, AgreementBonus, "agreed candidate bonus")
	approx(t, candidates[2].Scores.CrossDocAgreement, 0, "lone candidate bonus")
	// Flat bonus on top of base 0.30 (validator only).
	approx(t, candidates[0].Confidence, 0.40, "agreed confidence")
	approx(t, candidates[2].Confidence, 0.30, "lone confidence")
}

func TestScoreField_SameDocNoAgreement(t *testing.T) {
	s := fixedScorer()
	candidates := []contracts.Candidate{
		cand("dob", "1990-01-15", "doc_001", 0.0),
		cand("dob", "1990-01-15", "doc_001", 0.0),
	}
	s.ScoreField(dobField(), candidates, routingFor("dob", map[string]float64{"doc_001": 0}))
	for i := range candidates {
		approx(t, candidates[i].Scores.CrossDocAgreement, 0, "same-doc agreement")
	}
}

func TestScoreField_MultiDocEvidenceAloneNoAgreement(t *testing.T) {
	s := fixedScorer()
	// A single candidate citing two documents is not corroboration.
	lone := cand("dob", "1990-01-15", "doc_001", 1.0)
	lone.Method = contracts.MethodLLM
	lone.Evidence = append(lone.Evidence, contracts.Evidence{
		DocID: "doc_002", Page: 1, QuotedText: "1990-01-15",
	})

	candidates := []contracts.Candidate{lone}
	s.ScoreField(dobField(), candidates, routingFor("dob", map[string]float64{"doc_001": 0, "doc_002": 0}))

	approx(t, candidates[0].Scores.CrossDocAgreement, 0, "self-agreement bonus")
}

func TestScoreField_RejectedCandidatesZeroConfidence(t *testing.T) {
	s := fixedScorer()
	rejected := cand("dob", "1990-01-15", "doc_001", 1.0)
	rejected.RejectedReasons = []string{contracts.ReasonUnsupportedByEvidence}
	agreed1 := cand("dob", "1990-01-15", "doc_002", 0.0)

	candidates := []contracts.Candidate{rejected, agreed1}
	s.ScoreField(dobField(), candidates, routingFor("dob", map[string]float64{"doc_001": 1, "doc_002": 1}))

	approx(t, candidates[0].Confidence, 0, "rejected confidence")
	// Rejected candidate's doc does not count toward agreement.
	approx(t, candidates[1].Scores.CrossDocAgreement, 0, "agreement with rejected peer")
}

func TestScoreField_ClampUpperBound(t *testing.T) {
	s := fixedScorer()
	candidates := []contracts.Candidate{
		cand("dob", "1990-01-15", "doc_001", 1.0),
		cand("dob", "1990-01-15", "doc_002", 1.0),
	}
	routing := routingFor("dob", map[string]float64{"doc_001": 1.0, "doc_002": 1.0})
	s.ScoreField(dobField(), candidates, routing)
	// Base 1.0 plus bonus must clamp to 1.0.
	approx(t, candidates[0].Confidence, 1.0, "clamped confidence")
}

func TestClamp(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{-0.5, 0}, {0, 0}, {0.42, 0.42}, {1, 1}, {1.3, 1},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
