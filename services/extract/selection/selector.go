// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package selection turns a field's scored candidates into its final
// state: contradiction detection across documents, winner selection
// with deterministic tie-breaks, and the closed-vocabulary rationale.
package selection

import (
	"sort"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
	"github.com/AleutianAI/DocFill/services/extract/scoring"
)

const (
	// AutofillThreshold separates filled from needs_review.
	AutofillThreshold = 0.75

	// ContradictionThreshold is the minimum confidence a value needs
	// to participate in a contradiction.
	ContradictionThreshold = 0.60

	// ContradictionPenalty is subtracted from the winner when distinct
	// well-supported values disagree.
	ContradictionPenalty = 0.30

	// MaxAlternatives caps the losing candidates surfaced for review.
	MaxAlternatives = 2
)

// Selector assembles final fields. The zero value is usable.
//
// Thread Safety: Stateless, safe for concurrent use.
type Selector struct{}

// SelectField reduces a field's candidates to its terminal state.
//
// Description:
//
//	Candidates must already carry scorer confidences; the agreement
//	bonus is applied before this point, so the contradiction test runs
//	on bonus-adjusted values and the penalty lands afterwards, on the
//	winner only. extraReasons carries field-scoped failure codes
//	collected upstream (llm_unavailable, llm_invalid_json,
//	no_readable_docs) and always survives into the rationale.
//
// Outputs:
//
//	contracts.FinalField - status filled, needs_review, or missing;
//	a non-null value always carries the winner's evidence.
//
// Thread Safety: Safe for concurrent use on distinct fields.
func (s *Selector) SelectField(field contracts.FieldSpec, candidates []contracts.Candidate, extraReasons []string) contracts.FinalField {
	var accepted []*contracts.Candidate
	for i := range candidates {
		if candidates[i].Accepted() {
			accepted = append(accepted, &candidates[i])
		}
	}

	if len(accepted) == 0 {
		return missingField(field, candidates, extraReasons)
	}

	contradicted := hasContradiction(accepted)
	winner := pickWinner(accepted)

	if contradicted {
		winner.Scores.ContradictionPenalty = ContradictionPenalty
		winner.Confidence = scoring.Clamp(winner.Confidence - ContradictionPenalty)
	}

	status := contracts.StatusFilled
	if contradicted || winner.Confidence < AutofillThreshold {
		status = contracts.StatusNeedsReview
	}

	value := winner.NormalizedValue
	return contracts.FinalField{
		Field:        field.Key,
		Status:       status,
		Value:        &value,
		Confidence:   winner.Confidence,
		Rationale:    winnerRationale(winner, contradicted, extraReasons),
		Evidence:     winner.Evidence,
		Alternatives: alternatives(candidates, winner),
	}
}

// hasContradiction reports whether two or more distinct normalized
// values each clear the contradiction threshold.
func hasContradiction(accepted []*contracts.Candidate) bool {
	strong := map[string]bool{}
	for _, c := range accepted {
		if c.Confidence >= ContradictionThreshold {
			strong[c.NormalizedValue] = true
		}
	}
	return len(strong) >= 2
}

// pickWinner returns the highest-confidence candidate. Ties prefer
// heuristic over model, then the earliest evidence doc id.
func pickWinner(accepted []*contracts.Candidate) *contracts.Candidate {
	winner := accepted[0]
	for _, c := range accepted[1:] {
		if betterCandidate(c, winner) {
			winner = c
		}
	}
	return winner
}

func betterCandidate(a, b *contracts.Candidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.Method != b.Method {
		return a.Method == contracts.MethodHeuristic
	}
	return firstDocID(a) < firstDocID(b)
}

func firstDocID(c *contracts.Candidate) string {
	if len(c.Evidence) == 0 {
		return ""
	}
	first := c.Evidence[0].DocID
	for _, ev := range c.Evidence[1:] {
		if ev.DocID < first {
			first = ev.DocID
		}
	}
	return first
}

func winnerRationale(winner *contracts.Candidate, contradicted bool, extraReasons []string) []string {
	var rationale []string
	if winner.Scores.AnchorMatch >= 1.0 {
		rationale = append(rationale, contracts.ReasonLiteralAnchor)
	}
	if winner.Scores.Validator >= 1.0 {
		rationale = append(rationale, contracts.ReasonValidatorPassed)
	} else if winner.Scores.Validator > 0 {
		rationale = append(rationale, contracts.ReasonValidatorWarned)
	}
	if winner.Scores.CrossDocAgreement > 0 {
		rationale = append(rationale, contracts.ReasonCrossDocAgreement)
	}
	if contradicted {
		rationale = append(rationale, contracts.ReasonContradictionFlagged)
	} else if winner.Confidence < AutofillThreshold {
		rationale = append(rationale, contracts.ReasonBelowThreshold)
	}
	return appendUnique(rationale, extraReasons)
}

func missingField(field contracts.FieldSpec, candidates []contracts.Candidate, extraReasons []string) contracts.FinalField {
	var rationale []string
	if !contains(extraReasons, contracts.ReasonNoReadableDocs) {
		rationale = append(rationale, contracts.ReasonNoCandidates)
	}
	rationale = appendUnique(rationale, extraReasons)

	return contracts.FinalField{
		Field:        field.Key,
		Status:       contracts.StatusMissing,
		Value:        nil,
		Confidence:   0,
		Rationale:    rationale,
		Alternatives: alternatives(candidates, nil),
	}
}

// alternatives returns up to MaxAlternatives non-winning candidates,
// best first. Rejected candidates qualify; their evidence travels
// along so a reviewer can see why they lost.
func alternatives(candidates []contracts.Candidate, winner *contracts.Candidate) []contracts.Alternative {
	var losers []*contracts.Candidate
	for i := range candidates {
		if winner != nil && &candidates[i] == winner {
			continue
		}
		losers = append(losers, &candidates[i])
	}
	sort.SliceStable(losers, func(i, j int) bool {
		if losers[i].Confidence != losers[j].Confidence {
			return losers[i].Confidence > losers[j].Confidence
		}
		if losers[i].Method != losers[j].Method {
			return losers[i].Method == contracts.MethodHeuristic
		}
		return losers[i].NormalizedValue < losers[j].NormalizedValue
	})
	if len(losers) > MaxAlternatives {
		losers = losers[:MaxAlternatives]
	}

	var out []contracts.Alternative
	for _, c := range losers {
		out = append(out, contracts.Alternative{
			Value:      c.NormalizedValue,
			Confidence: c.Confidence,
			Method:     c.Method,
			Evidence:   c.Evidence,
		})
	}
	return out
}

func appendUnique(dst []string, extras []string) []string {
	for _, e := range extras {
		if !contains(dst, e) {
			dst = append(dst, e)
		}
	}
	return dst
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
