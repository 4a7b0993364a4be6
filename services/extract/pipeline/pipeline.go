// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline orchestrates a full extraction run: ingest, schema
// resolution, routing, per-field candidate generation, scoring, and
// selection. Every step writes its artifact and trace event before
// the next step starts, so a failed run leaves a usable record of how
// far it got.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/DocFill/pkg/logging"
	"github.com/AleutianAI/DocFill/services/extract/candidates"
	"github.com/AleutianAI/DocFill/services/extract/contracts"
	"github.com/AleutianAI/DocFill/services/extract/grounding"
	"github.com/AleutianAI/DocFill/services/extract/ingest"
	"github.com/AleutianAI/DocFill/services/extract/llm"
	"github.com/AleutianAI/DocFill/services/extract/routing"
	"github.com/AleutianAI/DocFill/services/extract/runstore"
	"github.com/AleutianAI/DocFill/services/extract/schema"
	"github.com/AleutianAI/DocFill/services/extract/scoring"
	"github.com/AleutianAI/DocFill/services/extract/selection"
)

// Request carries everything one run needs.
type Request struct {
	Uploads    []ingest.Upload
	UserSchema []byte
	FormFields []string
	Options    contracts.RunOptions
}

// ClientFactory builds an LLM client for a provider and model. Tests
// substitute a factory returning a fake.
type ClientFactory func(provider, model string) (llm.Client, error)

// Pipeline runs extractions against a run store.
//
// Thread Safety: Safe for concurrent runs; per-run state lives on the
// stack and in the run directory.
type Pipeline struct {
	store     *runstore.Store
	index     *runstore.Index
	ingestor  *ingest.Ingestor
	resolver  *schema.Resolver
	router    *routing.Router
	checker   *grounding.Checker
	scorer    *scoring.Scorer
	selector  *selection.Selector
	newClient ClientFactory
	log       *logging.Logger
}

// New wires a pipeline. index may be nil, which disables run listing.
func New(store *runstore.Store, index *runstore.Index, log *logging.Logger) *Pipeline {
	if log == nil {
		log = logging.Default()
	}
	return &Pipeline{
		store:     store,
		index:     index,
		ingestor:  ingest.NewIngestor(log),
		resolver:  &schema.Resolver{},
		router:    &routing.Router{},
		checker:   grounding.NewChecker(),
		scorer:    scoring.NewScorer(),
		selector:  &selection.Selector{},
		newClient: llm.NewClient,
		log:       log,
	}
}

// WithClientFactory replaces the LLM client factory.
func (p *Pipeline) WithClientFactory(f ClientFactory) *Pipeline {
	p.newClient = f
	return p
}

// Run executes one extraction run end to end.
//
// Description:
//
//	Run-fatal conditions are an empty upload set, a broken run store,
//	and an unknown LLM provider. Everything else degrades to
//	field-level rationale codes; a model outage still produces a
//	complete final result built from heuristics alone.
//
// Outputs:
//
//	*contracts.FinalResult - the selected fields, also persisted as
//	the final.json artifact.
//	error - run-fatal failures only.
func (p *Pipeline) Run(ctx context.Context, req Request) (*contracts.FinalResult, error) {
	opts := req.Options
	opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(req.Uploads) == 0 {
		return nil, contracts.ErrNoDocuments
	}

	run, err := p.store.CreateRun(time.Now())
	if err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "extract.Run",
		trace.WithAttributes(
			attribute.String("run.id", run.ID()),
			attribute.Int("run.num_docs", len(req.Uploads)),
			attribute.String("llm.provider", opts.LLMProvider),
		),
	)
	defer span.End()

	log := p.log.With("run_id", run.ID())
	log.Info("run started", "num_docs", len(req.Uploads))

	p.indexPut(ctx, runstore.RunRecord{
		RunID:     run.ID(),
		CreatedAt: time.Now().UTC(),
		Status:    runstore.RunStatusRunning,
		NumDocs:   len(req.Uploads),
	})

	result, err := p.execute(ctx, run, req, opts, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		p.indexPut(ctx, runstore.RunRecord{
			RunID:     run.ID(),
			CreatedAt: time.Now().UTC(),
			Status:    runstore.RunStatusFailed,
			NumDocs:   len(req.Uploads),
			Error:     err.Error(),
		})
		log.Error("run failed", "error", err)
		return nil, err
	}

	filled := 0
	for _, f := range result.Fields {
		if f.Status == contracts.StatusFilled {
			filled++
		}
	}
	p.indexPut(ctx, runstore.RunRecord{
		RunID:        run.ID(),
		CreatedAt:    result.CreatedAt,
		Status:       runstore.RunStatusComplete,
		NumDocs:      len(req.Uploads),
		FieldsTotal:  len(result.Fields),
		FieldsFilled: filled,
	})
	log.Info("run complete", "fields_total", len(result.Fields), "fields_filled", filled)
	recordRun(ctx, result)
	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, run *runstore.Run, req Request, opts contracts.RunOptions, log *logging.Logger) (*contracts.FinalResult, error) {
	docs, err := p.stepIngest(ctx, run, req)
	if err != nil {
		return nil, err
	}

	resolved, err := p.stepSchema(ctx, run, req, docs, opts)
	if err != nil {
		return nil, err
	}

	entries, readable, err := p.stepRouting(ctx, run, resolved, docs, opts)
	if err != nil {
		return nil, err
	}

	fieldCands, fieldReasons, err := p.stepGenerate(ctx, run, resolved, entries, docs, opts, readable, log)
	if err != nil {
		return nil, err
	}

	return p.stepSelect(ctx, run, resolved, entries, fieldCands, fieldReasons)
}

func (p *Pipeline) stepIngest(ctx context.Context, run *runstore.Run, req Request) ([]*contracts.Document, error) {
	start := time.Now()
	docs, err := p.ingestor.Ingest(ctx, req.Uploads)
	if err != nil {
		p.trace(run, runstore.TraceEvent{
			Step: runstore.StepIngest, Status: runstore.StatusError,
			Error: traceErr("ingest", err),
		})
		return nil, err
	}
	for _, up := range req.Uploads {
		if _, err := run.SaveInput(up.Filename, up.Data); err != nil {
			return nil, err
		}
	}
	if err := run.WriteArtifact(runstore.ArtifactDocIndex, docIndex(docs)); err != nil {
		return nil, err
	}
	if err := run.WriteArtifact(runstore.ArtifactLayout, docs); err != nil {
		return nil, err
	}
	p.trace(run, runstore.TraceEvent{
		Step: runstore.StepIngest, Status: runstore.StatusOK,
		DurationMS: time.Since(start).Milliseconds(),
		OutputsRef: runstore.ArtifactDocIndex,
	})
	return docs, nil
}

func (p *Pipeline) stepSchema(ctx context.Context, run *runstore.Run, req Request, docs []*contracts.Document, opts contracts.RunOptions) (contracts.ResolvedSchema, error) {
	start := time.Now()
	formFields := req.FormFields
	if len(formFields) == 0 {
		formFields = harvestFormFields(docs)
	}
	resolved := p.resolver.Resolve(req.UserSchema, formFields, opts)

	status := runstore.StatusOK
	if len(resolved.Warnings) > 0 {
		status = runstore.StatusWarn
	}
	if err := run.WriteArtifact(runstore.ArtifactSchema, resolved); err != nil {
		return contracts.ResolvedSchema{}, err
	}
	p.trace(run, runstore.TraceEvent{
		Step: runstore.StepSchema, Status: status,
		DurationMS: time.Since(start).Milliseconds(),
		OutputsRef: runstore.ArtifactSchema,
	})
	return resolved, nil
}

func (p *Pipeline) stepRouting(ctx context.Context, run *runstore.Run, resolved contracts.ResolvedSchema, docs []*contracts.Document, opts contracts.RunOptions) ([]contracts.RoutingEntry, int, error) {
	start := time.Now()
	entries := p.router.Route(ctx, resolved, docs, opts.TopKDocs)

	readable := 0
	for _, doc := range docs {
		if doc.Readable() {
			readable++
		}
	}

	status := runstore.StatusOK
	if readable == 0 {
		status = runstore.StatusWarn
	}
	if err := run.WriteArtifact(runstore.ArtifactRouting, entries); err != nil {
		return nil, 0, err
	}
	p.trace(run, runstore.TraceEvent{
		Step: runstore.StepRouting, Status: status,
		DurationMS: time.Since(start).Milliseconds(),
		InputsRef:  runstore.ArtifactDocIndex,
		OutputsRef: runstore.ArtifactRouting,
	})
	return entries, readable, nil
}

func (p *Pipeline) stepGenerate(ctx context.Context, run *runstore.Run, resolved contracts.ResolvedSchema, entries []contracts.RoutingEntry, docs []*contracts.Document, opts contracts.RunOptions, readable int, log *logging.Logger) (map[string][]contracts.Candidate, map[string][]string, error) {
	fieldCands := make(map[string][]contracts.Candidate, len(resolved.Fields))
	fieldReasons := make(map[string][]string, len(resolved.Fields))

	if readable == 0 {
		for _, field := range resolved.Fields {
			fieldReasons[field.Key] = []string{contracts.ReasonNoReadableDocs}
		}
		if err := run.WriteArtifact(runstore.ArtifactCandidates, fieldCands); err != nil {
			return nil, nil, err
		}
		return fieldCands, fieldReasons, nil
	}

	extractor, err := p.buildExtractor(opts, log)
	if err != nil {
		return nil, nil, err
	}
	gen := candidates.NewGenerator(p.checker, extractor, log)

	entryByField := make(map[string]contracts.RoutingEntry, len(entries))
	for _, e := range entries {
		e := e
		entryByField[e.Field] = e
	}

	type fieldResult struct {
		key     string
		cands   []contracts.Candidate
		reasons []string
		stats   candidates.FieldStats
	}
	results := make([]fieldResult, len(resolved.Fields))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.FieldWorkers)
	for i, field := range resolved.Fields {
		i, field := i, field
		g.Go(func() error {
			entry := entryByField[field.Key]
			routed := routing.RoutedDocs(entry, docs)
			cands, reasons, stats := gen.Generate(gctx, field, routed, opts)
			p.scorer.ScoreField(field, cands, entry)
			results[i] = fieldResult{key: field.Key, cands: cands, reasons: reasons, stats: stats}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for _, res := range results {
		sort.SliceStable(res.cands, func(i, j int) bool {
			return res.cands[i].Confidence > res.cands[j].Confidence
		})
		fieldCands[res.key] = res.cands
		fieldReasons[res.key] = res.reasons
		p.traceField(run, res.key, res.stats)
	}

	if err := run.WriteArtifact(runstore.ArtifactCandidates, fieldCands); err != nil {
		return nil, nil, err
	}
	return fieldCands, fieldReasons, nil
}

func (p *Pipeline) traceField(run *runstore.Run, field string, stats candidates.FieldStats) {
	p.trace(run, runstore.TraceEvent{
		Step: runstore.StepHeuristic, Field: field, Status: runstore.StatusOK,
		DurationMS: stats.DurationMillis,
		OutputsRef: runstore.ArtifactCandidates,
	})
	if !stats.LLMUsed {
		return
	}
	ev := runstore.TraceEvent{
		Step: runstore.StepLLM, Field: field, Status: runstore.StatusOK,
		OutputsRef: runstore.ArtifactCandidates,
	}
	if stats.LLMError != "" {
		ev.Status = runstore.StatusError
		ev.Error = &runstore.TraceError{Kind: stats.LLMError, Message: "model pass failed"}
	}
	p.trace(run, ev)
}

func (p *Pipeline) stepSelect(ctx context.Context, run *runstore.Run, resolved contracts.ResolvedSchema, entries []contracts.RoutingEntry, fieldCands map[string][]contracts.Candidate, fieldReasons map[string][]string) (*contracts.FinalResult, error) {
	start := time.Now()

	fields := make([]contracts.FinalField, 0, len(resolved.Fields))
	for _, field := range resolved.Fields {
		final := p.selector.SelectField(field, fieldCands[field.Key], fieldReasons[field.Key])
		fields = append(fields, final)
	}
	sort.SliceStable(fields, func(i, j int) bool {
		return contracts.FieldOrder(fields[i].Field) < contracts.FieldOrder(fields[j].Field)
	})

	result := &contracts.FinalResult{
		RunID:     run.ID(),
		Schema:    resolved,
		Fields:    fields,
		CreatedAt: time.Now().UTC(),
	}
	if err := run.WriteArtifact(runstore.ArtifactFinal, result); err != nil {
		return nil, err
	}
	p.trace(run, runstore.TraceEvent{
		Step: runstore.StepSelection, Status: runstore.StatusOK,
		DurationMS: time.Since(start).Milliseconds(),
		InputsRef:  runstore.ArtifactCandidates,
		OutputsRef: runstore.ArtifactFinal,
	})
	return result, nil
}

// buildExtractor constructs the per-run model extractor. Provider
// "none" disables the model pass.
func (p *Pipeline) buildExtractor(opts contracts.RunOptions, log *logging.Logger) (*llm.Extractor, error) {
	client, err := p.newClient(opts.LLMProvider, opts.LLMModel)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	if client == nil {
		return nil, nil
	}
	return llm.NewExtractor(client), nil
}

func (p *Pipeline) indexPut(ctx context.Context, rec runstore.RunRecord) {
	if p.index == nil {
		return
	}
	if err := p.index.Put(ctx, rec); err != nil {
		p.log.Warn("run index update failed", "run_id", rec.RunID, "error", err)
	}
}

func (p *Pipeline) trace(run *runstore.Run, ev runstore.TraceEvent) {
	if err := run.AppendTrace(ev); err != nil {
		p.log.Warn("trace append failed", "run_id", run.ID(), "error", err)
	}
}

func traceErr(kind string, err error) *runstore.TraceError {
	msg := "unknown"
	if err != nil {
		msg = err.Error()
	}
	if errors.Is(err, contracts.ErrNoDocuments) {
		kind = "no_documents"
	}
	return &runstore.TraceError{Kind: kind, Message: msg}
}

// harvestFormFields returns the AcroForm field names of the first
// fillable document, in upload order.
func harvestFormFields(docs []*contracts.Document) []string {
	for _, doc := range docs {
		if len(doc.FormFields) > 0 {
			return doc.FormFields
		}
	}
	return nil
}

// docIndexEntry is the doc_index.json row: identity and readability,
// no page text.
type docIndexEntry struct {
	DocID            string `json:"doc_id"`
	Filename         string `json:"filename"`
	SHA256           string `json:"sha256"`
	MIMEType         string `json:"mime_type"`
	Pages            int    `json:"pages"`
	HasTextLayer     bool   `json:"has_text_layer"`
	UnreadableReason string `json:"unreadable_reason,omitempty"`
}

func docIndex(docs []*contracts.Document) []docIndexEntry {
	out := make([]docIndexEntry, 0, len(docs))
	for _, doc := range docs {
		out = append(out, docIndexEntry{
			DocID:            doc.DocID,
			Filename:         doc.Filename,
			SHA256:           doc.SHA256,
			MIMEType:         doc.MIMEType,
			Pages:            len(doc.Pages),
			HasTextLayer:     doc.HasTextLayer,
			UnreadableReason: doc.UnreadableReason,
		})
	}
	return out
}
