// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package candidates runs the two-attempt generation for one field:
// a heuristic pass that is always cheap and local, then a model pass
// only when the heuristics left the field unsettled. Every candidate
// from either pass goes through the evidence check before it counts.
package candidates

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/AleutianAI/DocFill/pkg/logging"
	"github.com/AleutianAI/DocFill/services/extract/contracts"
	"github.com/AleutianAI/DocFill/services/extract/excerpts"
	"github.com/AleutianAI/DocFill/services/extract/grounding"
	"github.com/AleutianAI/DocFill/services/extract/heuristics"
	"github.com/AleutianAI/DocFill/services/extract/llm"
)

// ProvisionalAnchorWeight prices a heuristic candidate before the full
// scorer runs. Only the anchor signal is available at this point.
const ProvisionalAnchorWeight = 0.45

// EscalationThreshold decides whether the model pass runs. A field
// whose best provisional confidence clears this never calls the model.
const EscalationThreshold = 0.75

// FieldStats summarizes one field's generation for the trace.
type FieldStats struct {
	Field             string        `json:"field"`
	HeuristicProposed int           `json:"heuristic_proposed"`
	HeuristicAccepted int           `json:"heuristic_accepted"`
	LLMUsed           bool          `json:"llm_used"`
	LLMProposed       int           `json:"llm_proposed"`
	LLMAccepted       int           `json:"llm_accepted"`
	LLMError          string        `json:"llm_error,omitempty"`
	Duration          time.Duration `json:"-"`
	DurationMillis    int64         `json:"duration_ms"`
}

// Generator produces evidence-checked candidates for single fields.
//
// Thread Safety: Safe for concurrent use on distinct fields; the
// checker and extractor it wraps are themselves concurrency-safe.
type Generator struct {
	checker   *grounding.Checker
	extractor *llm.Extractor
	limits    excerpts.Limits
	log       *logging.Logger
}

// NewGenerator wires a generator. extractor may be nil, which disables
// the model pass entirely (provider "none").
func NewGenerator(checker *grounding.Checker, extractor *llm.Extractor, log *logging.Logger) *Generator {
	if checker == nil {
		checker = grounding.NewChecker()
	}
	if log == nil {
		log = logging.Default()
	}
	return &Generator{checker: checker, extractor: extractor, log: log}
}

// Generate runs both passes for one field.
//
// Description:
//
//	The heuristic pass always runs. Each proposal goes through the
//	evidence check; rejected ones are kept, marked, so selection can
//	surface them as alternatives. The model pass runs only when no
//	heuristic candidate was accepted or the best provisional
//	confidence sits below the escalation threshold. Model transport
//	failures and unparseable output do not fail the field; they come
//	back as reason codes in the returned slice of field reasons, and
//	whatever the heuristics produced stands.
//
// Outputs:
//
//	[]contracts.Candidate - deterministic order: heuristic before
//	model, then normalized value ascending.
//	[]string - field-scoped failure codes (llm_unavailable or
//	llm_invalid_json), empty on a clean run.
//	FieldStats - counts for the trace.
func (g *Generator) Generate(ctx context.Context, field contracts.FieldSpec, routedDocs []*contracts.Document, opts contracts.RunOptions) ([]contracts.Candidate, []string, FieldStats) {
	start := time.Now()
	stats := FieldStats{Field: field.Key}

	proposed := heuristics.CandidatesForField(field, routedDocs)
	stats.HeuristicProposed = len(proposed)

	all := make([]contracts.Candidate, 0, len(proposed))
	for i := range proposed {
		c := proposed[i]
		if g.checker.Check(ctx, field.Type, &c) {
			c.Confidence = ProvisionalAnchorWeight * c.Scores.AnchorMatch
			stats.HeuristicAccepted++
		}
		all = append(all, c)
	}

	var fieldReasons []string
	if g.shouldEscalate(all) {
		llmCands, err := g.modelPass(ctx, field, routedDocs, opts, &stats)
		if err != nil {
			reason := llmReason(err)
			stats.LLMError = reason
			fieldReasons = append(fieldReasons, reason)
			g.log.Warn("model pass failed",
				"field", field.Key, "reason", reason)
		}
		all = append(all, llmCands...)
	}

	sortCandidates(all)
	stats.Duration = time.Since(start)
	stats.DurationMillis = stats.Duration.Milliseconds()
	return all, fieldReasons, stats
}

// shouldEscalate reports whether the model pass is needed: no accepted
// heuristic candidate, or none confident enough to settle the field.
func (g *Generator) shouldEscalate(cands []contracts.Candidate) bool {
	if g.extractor == nil {
		return false
	}
	best := 0.0
	accepted := false
	for i := range cands {
		if !cands[i].Accepted() {
			continue
		}
		accepted = true
		if cands[i].Confidence > best {
			best = cands[i].Confidence
		}
	}
	return !accepted || best < EscalationThreshold
}

func (g *Generator) modelPass(ctx context.Context, field contracts.FieldSpec, routedDocs []*contracts.Document, opts contracts.RunOptions, stats *FieldStats) ([]contracts.Candidate, error) {
	excerptList := excerpts.BuildForField(field, routedDocs, g.limits)
	if len(excerptList) == 0 {
		return nil, nil
	}
	stats.LLMUsed = true

	callCtx := ctx
	if opts.LLMTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.LLMTimeout)
		defer cancel()
	}

	proposed, err := g.extractor.ExtractCandidates(callCtx, field, excerptList, opts)
	if err != nil {
		return nil, err
	}
	stats.LLMProposed = len(proposed)

	out := make([]contracts.Candidate, 0, len(proposed))
	for i := range proposed {
		c := proposed[i]
		if g.checker.Check(ctx, field.Type, &c) {
			c.Confidence = ProvisionalAnchorWeight * c.Scores.AnchorMatch
			stats.LLMAccepted++
		}
		out = append(out, c)
	}
	return out, nil
}

func llmReason(err error) string {
	if errors.Is(err, contracts.ErrLLMInvalidJSON) {
		return contracts.ReasonLLMInvalidJSON
	}
	return contracts.ReasonLLMUnavailable
}

// sortCandidates fixes the candidate order so repeated runs over the
// same inputs produce byte-identical artifacts.
func sortCandidates(cands []contracts.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Method != cands[j].Method {
			return cands[i].Method == contracts.MethodHeuristic
		}
		return cands[i].NormalizedValue < cands[j].NormalizedValue
	})
}
