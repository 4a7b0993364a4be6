// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runstore

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"
)

func TestNewRunID_Format(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 15, 30, 0, time.UTC)
	id := NewRunID(now)

	re := regexp.MustCompile(`^20260831T101530Z_[0-9a-f]{8}$`)
	if !re.MatchString(id) {
		t.Errorf("NewRunID = %q, want stamp plus 8 hex chars", id)
	}
}

func TestNewRunID_SortsByCreationTime(t *testing.T) {
	early := NewRunID(time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))
	late := NewRunID(time.Date(2026, 8, 31, 11, 0, 0, 0, time.UTC))
	if early >= late {
		t.Errorf("ids do not sort by time: %q >= %q", early, late)
	}
}

func TestCreateRun_Layout(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	run, err := store.CreateRun(time.Now())
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	for _, sub := range []string{"input", "artifacts", "trace"} {
		info, err := os.Stat(filepath.Join(run.Dir(), sub))
		if err != nil || !info.IsDir() {
			t.Errorf("missing run subdirectory %s", sub)
		}
	}
}

func TestArtifact_WriteRead(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	run, _ := store.CreateRun(time.Now())

	type payload struct {
		Field string `json:"field"`
		Count int    `json:"count"`
	}
	want := payload{Field: "dob", Count: 2}

	if err := run.WriteArtifact(ArtifactRouting, want); err != nil {
		t.Fatalf("WriteArtifact: %v", err)
	}
	if !run.HasArtifact(ArtifactRouting) {
		t.Error("HasArtifact = false after write")
	}

	var got payload
	if err := run.ReadArtifact(ArtifactRouting, &got); err != nil {
		t.Fatalf("ReadArtifact: %v", err)
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Join(run.Dir(), "artifacts"))
	for _, e := range entries {
		if e.Name() != ArtifactRouting {
			t.Errorf("stray file in artifacts dir: %s", e.Name())
		}
	}
}

func TestSaveInput_FlattensPath(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	run, _ := store.CreateRun(time.Now())

	path, err := run.SaveInput("../../etc/intake.pdf", []byte("pdf bytes"))
	if err != nil {
		t.Fatalf("SaveInput: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(run.Dir(), "input") {
		t.Errorf("input stored at %s, want inside run input dir", path)
	}
	if filepath.Base(path) != "intake.pdf" {
		t.Errorf("stored name = %s, want intake.pdf", filepath.Base(path))
	}
}

func TestOpenRun_Validation(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	run, _ := store.CreateRun(time.Now())

	reopened, err := store.OpenRun(run.ID())
	if err != nil {
		t.Fatalf("OpenRun existing: %v", err)
	}
	if reopened.Dir() != run.Dir() {
		t.Errorf("reopened dir = %s, want %s", reopened.Dir(), run.Dir())
	}

	for _, id := range []string{"", "missing_run", "../escape", `a\b`} {
		if _, err := store.OpenRun(id); err == nil {
			t.Errorf("OpenRun(%q) succeeded, want error", id)
		}
	}
}

func TestAppendTrace_ReadBack(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	run, _ := store.CreateRun(time.Now())

	events := []TraceEvent{
		{Step: StepSchema, Status: StatusOK, DurationMS: 3, OutputsRef: ArtifactSchema},
		{Step: StepRouting, Status: StatusOK, DurationMS: 1, OutputsRef: ArtifactRouting},
		{Step: StepLLM, Field: "dob", Status: StatusError,
			Error: &TraceError{Kind: "llm_unavailable", Message: "connection refused"}},
	}
	for _, ev := range events {
		if err := run.AppendTrace(ev); err != nil {
			t.Fatalf("AppendTrace: %v", err)
		}
	}

	got, err := run.ReadTrace()
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("len(events) = %d, want %d", len(got), len(events))
	}
	for i, ev := range got {
		if ev.Step != events[i].Step {
			t.Errorf("event %d step = %q, want %q", i, ev.Step, events[i].Step)
		}
		if ev.RunID != run.ID() {
			t.Errorf("event %d run id = %q, want %q", i, ev.RunID, run.ID())
		}
		if ev.TS.IsZero() {
			t.Errorf("event %d has zero timestamp", i)
		}
	}
	if got[2].Error == nil || got[2].Error.Kind != "llm_unavailable" {
		t.Errorf("event 2 error = %+v, want llm_unavailable", got[2].Error)
	}
}

func TestAppendTrace_Concurrent(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	run, _ := store.CreateRun(time.Now())

	const writers = 8
	const perWriter = 20

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = run.AppendTrace(TraceEvent{Step: StepHeuristic, Status: StatusOK})
			}
		}()
	}
	wg.Wait()

	got, err := run.ReadTrace()
	if err != nil {
		t.Fatalf("ReadTrace after concurrent appends: %v", err)
	}
	if len(got) != writers*perWriter {
		t.Errorf("len(events) = %d, want %d", len(got), writers*perWriter)
	}
}
