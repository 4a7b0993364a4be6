// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scoring assigns confidences to accepted candidates from a
// fixed linear combination of observable signals. Weights are
// constants, not tunables: anchor proximity 0.45, validator outcomes
// 0.30, routing relevance 0.25, plus a flat cross-document agreement
// bonus.
package scoring

import (
	"regexp"
	"time"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
	"github.com/AleutianAI/DocFill/services/extract/heuristics"
)

// Score weights and bonuses.
const (
	WeightAnchor       = 0.45
	WeightValidator    = 0.30
	WeightDocRelevance = 0.25

	AgreementBonus = 0.10

	validatorPass = 1.0
	validatorWarn = 0.6
	validatorFail = 0.0

	maxPlausibleAgeYears = 120
)

var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Scorer computes candidate confidences.
//
// Thread Safety: Safe for concurrent use.
type Scorer struct {
	// now is injectable for date plausibility tests.
	now func() time.Time
}

// NewScorer returns a Scorer using wall-clock time for plausibility.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// ScoreField scores all candidates of one field in place.
//
// Description:
//
//	Accepted candidates get validator and doc-relevance components,
//	the weighted base score, and the flat agreement bonus when two or
//	more accepted candidates from distinct documents share the same
//	normalized value. Rejected candidates keep confidence 0. Contradiction
//	penalties are the selector's job and stay untouched here.
//
// Thread Safety: Candidates must not be shared across concurrent calls.
func (s *Scorer) ScoreField(field contracts.FieldSpec, candidates []contracts.Candidate, routing contracts.RoutingEntry) {
	// Values held by >=2 accepted candidates whose primary evidence
	// documents differ. One candidate citing two docs is not agreement.
	valueDocs := map[string]map[string]bool{}
	for i := range candidates {
		c := &candidates[i]
		if !c.Accepted() || len(c.Evidence) == 0 {
			continue
		}
		docs := valueDocs[c.NormalizedValue]
		if docs == nil {
			docs = map[string]bool{}
			valueDocs[c.NormalizedValue] = docs
		}
		docs[c.Evidence[0].DocID] = true
	}

	for i := range candidates {
		c := &candidates[i]
		if !c.Accepted() {
			c.Confidence = 0
			continue
		}

		c.Scores.Validator = s.validatorScore(field, c)
		c.Scores.DocRelevance = docRelevance(c, routing)

		base := WeightAnchor*c.Scores.AnchorMatch +
			WeightValidator*c.Scores.Validator +
			WeightDocRelevance*c.Scores.DocRelevance

		if len(valueDocs[c.NormalizedValue]) >= 2 {
			c.Scores.CrossDocAgreement = AgreementBonus
		} else {
			c.Scores.CrossDocAgreement = 0
		}

		c.Confidence = Clamp(base + c.Scores.CrossDocAgreement)
	}
}

// validatorScore is the mean of the type-specific check outcomes.
func (s *Scorer) validatorScore(field contracts.FieldSpec, c *contracts.Candidate) float64 {
	var outcomes []float64

	// Non-empty check applies to every type.
	if c.NormalizedValue == "" {
		return validatorFail
	}
	outcomes = append(outcomes, validatorPass)

	switch field.Type {
	case contracts.TypeDate:
		outcomes = append(outcomes, s.dateFormatOutcome(c.NormalizedValue), s.datePlausibility(c.NormalizedValue))
	case contracts.TypePhone:
		outcomes = append(outcomes, phoneOutcome(c))
	}

	sum := 0.0
	for _, o := range outcomes {
		sum += o
	}
	return sum / float64(len(outcomes))
}

func (s *Scorer) dateFormatOutcome(value string) float64 {
	if isoDateRe.MatchString(value) {
		return validatorPass
	}
	return validatorFail
}

// datePlausibility fails future dates and warns on implausibly old
// ones.
func (s *Scorer) datePlausibility(value string) float64 {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return validatorFail
	}
	now := s.now()
	if t.After(now) {
		return validatorFail
	}
	if now.Sub(t) > maxPlausibleAgeYears*365*24*time.Hour {
		return validatorWarn
	}
	return validatorPass
}

// phoneOutcome passes 10+ digit numbers, downgraded to warn when the
// country code was assumed rather than present.
func phoneOutcome(c *contracts.Candidate) float64 {
	digits := heuristics.ExtractDigits(c.NormalizedValue)
	if len(digits) < 10 {
		return validatorFail
	}
	for _, note := range c.ValidatorNotes {
		if note == contracts.NoteDefaultCountryAssumed {
			return validatorWarn
		}
	}
	return validatorPass
}

// docRelevance is the routing score of the first evidence document.
func docRelevance(c *contracts.Candidate, routing contracts.RoutingEntry) float64 {
	if len(c.Evidence) == 0 {
		return 0
	}
	return Clamp(routing.Score(c.Evidence[0].DocID))
}

// Clamp bounds v to [0,1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
