// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

// Trace step names, one per pipeline stage plus per-field events.
const (
	StepIngest    = "ingest"
	StepSchema    = "schema"
	StepRouting   = "routing"
	StepHeuristic = "heuristic_extract"
	StepLLM       = "llm_extract"
	StepSelection = "selection"
	StepFinalize  = "finalize"
)

// Trace event statuses.
const (
	StatusOK    = "ok"
	StatusWarn  = "warn"
	StatusError = "error"
)

// TraceError carries a machine-readable failure inside a trace event.
type TraceError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TraceEvent is one line in trace/trace.jsonl. Events reference
// artifacts by name rather than inlining payloads, so the trace stays
// small and free of document content.
type TraceEvent struct {
	TS         time.Time   `json:"ts"`
	RunID      string      `json:"run_id"`
	Step       string      `json:"step"`
	Field      string      `json:"field,omitempty"`
	Status     string      `json:"status"`
	DurationMS int64       `json:"duration_ms"`
	InputsRef  string      `json:"inputs_ref,omitempty"`
	OutputsRef string      `json:"outputs_ref,omitempty"`
	Error      *TraceError `json:"error,omitempty"`
}

// AppendTrace appends one event to the run's trace log. Appends are
// serialized per run so concurrent field workers never interleave
// partial lines.
func (r *Run) AppendTrace(event TraceEvent) error {
	if event.TS.IsZero() {
		event.TS = time.Now().UTC()
	}
	event.RunID = r.id

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal trace event: %w", err)
	}

	r.traceMu.Lock()
	defer r.traceMu.Unlock()

	f, err := os.OpenFile(r.TracePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("%w: open trace: %v", contracts.ErrRunStorage, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: append trace: %v", contracts.ErrRunStorage, err)
	}
	return nil
}

// ReadTrace returns all events currently in the trace log.
func (r *Run) ReadTrace() ([]TraceEvent, error) {
	data, err := os.ReadFile(r.TracePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read trace: %w", err)
	}

	var events []TraceEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var ev TraceEvent
		if err := dec.Decode(&ev); err != nil {
			return events, fmt.Errorf("decode trace line: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}
