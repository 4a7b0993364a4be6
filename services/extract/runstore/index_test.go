// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := OpenIndex(InMemoryIndexConfig())
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestIndex_PutGet(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	want := RunRecord{
		RunID:        "20260831T100000Z_aabbccdd",
		CreatedAt:    time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC),
		Status:       RunStatusComplete,
		NumDocs:      2,
		FieldsTotal:  7,
		FieldsFilled: 5,
	}
	if err := ix.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := ix.Get(ctx, want.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != want.Status || got.NumDocs != want.NumDocs || got.FieldsFilled != want.FieldsFilled {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestIndex_GetNotFound(t *testing.T) {
	ix := openTestIndex(t)

	_, err := ix.Get(context.Background(), "20990101T000000Z_deadbeef")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get unknown = %v, want ErrRunNotFound", err)
	}
}

func TestIndex_PutReplacesStatus(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	rec := RunRecord{RunID: "20260831T100000Z_aabbccdd", Status: RunStatusRunning}
	if err := ix.Put(ctx, rec); err != nil {
		t.Fatalf("Put running: %v", err)
	}
	rec.Status = RunStatusFailed
	rec.Error = "run storage unavailable"
	if err := ix.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := ix.Get(ctx, rec.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != RunStatusFailed || got.Error == "" {
		t.Errorf("Get = %+v, want failed status with error", got)
	}
}

func TestIndex_ListNewestFirst(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	ids := []string{
		"20260829T090000Z_00000001",
		"20260830T090000Z_00000002",
		"20260831T090000Z_00000003",
	}
	for _, id := range ids {
		if err := ix.Put(ctx, RunRecord{RunID: id, Status: RunStatusComplete}); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}

	got, err := ix.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != len(ids) {
		t.Fatalf("len(List) = %d, want %d", len(got), len(ids))
	}
	for i := range got {
		want := ids[len(ids)-1-i]
		if got[i].RunID != want {
			t.Errorf("List[%d] = %s, want %s", i, got[i].RunID, want)
		}
	}

	limited, err := ix.List(ctx, 2)
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}
	if len(limited) != 2 || limited[0].RunID != ids[2] {
		t.Errorf("List(2) = %+v, want the two newest", limited)
	}
}

func TestIndex_PutRejectsEmptyID(t *testing.T) {
	ix := openTestIndex(t)

	if err := ix.Put(context.Background(), RunRecord{}); err == nil {
		t.Error("Put with empty run id succeeded, want error")
	}
}
