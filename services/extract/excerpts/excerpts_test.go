// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package excerpts

import (
	"strings"
	"testing"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

func dobField() contracts.FieldSpec {
	return contracts.FieldSpec{Key: "dob", Label: "Date of Birth", Type: contracts.TypeDate}
}

func docWithPages(docID string, pages ...string) *contracts.Document {
	d := &contracts.Document{DocID: docID, HasTextLayer: true}
	for i, text := range pages {
		d.Pages = append(d.Pages, contracts.PageText{Page: i + 1, Text: text})
	}
	return d
}

func TestBuildForField_KeywordPagesPreferred(t *testing.T) {
	doc := docWithPages("doc_001",
		"General instructions, nothing here.",
		"DOB: 01/15/1990",
		"Insurance details on this page.")

	got := BuildForField(dobField(), []*contracts.Document{doc}, Limits{})

	if len(got) != 1 {
		t.Fatalf("got %d excerpts, want 1 keyword page", len(got))
	}
	if got[0].Page != 2 {
		t.Errorf("page = %d, want 2 (the DOB page)", got[0].Page)
	}
}

func TestBuildForField_FirstPageFallback(t *testing.T) {
	doc := docWithPages("doc_001", "no keywords anywhere", "still nothing")
	got := BuildForField(dobField(), []*contracts.Document{doc}, Limits{})
	if len(got) != 1 || got[0].Page != 1 {
		t.Fatalf("excerpts = %+v, want first page fallback", got)
	}
}

func TestBuildForField_MaxPagesPerDoc(t *testing.T) {
	doc := docWithPages("doc_001",
		"dob page one", "dob page two", "dob page three", "dob page four")
	got := BuildForField(dobField(), []*contracts.Document{doc}, Limits{MaxPagesPerDoc: 3})
	if len(got) != 3 {
		t.Fatalf("got %d excerpts, want 3 (page cap)", len(got))
	}
	if got[0].Page != 1 || got[2].Page != 3 {
		t.Errorf("pages = %d..%d, want ascending 1..3", got[0].Page, got[2].Page)
	}
}

func TestBuildForField_PerDocCharCap(t *testing.T) {
	long := "dob " + strings.Repeat("x", 5000)
	doc := docWithPages("doc_001", long)
	got := BuildForField(dobField(), []*contracts.Document{doc}, Limits{MaxCharsPerDoc: 100})
	if len(got) != 1 {
		t.Fatalf("got %d excerpts", len(got))
	}
	if len(got[0].Text) != 100 {
		t.Errorf("excerpt length = %d, want truncated to 100", len(got[0].Text))
	}
}

func TestBuildForField_TotalCharCapAcrossDocs(t *testing.T) {
	d1 := docWithPages("doc_001", "dob "+strings.Repeat("a", 200))
	d2 := docWithPages("doc_002", "dob "+strings.Repeat("b", 200))
	got := BuildForField(dobField(), []*contracts.Document{d1, d2},
		Limits{MaxTotalChars: 250, MaxCharsPerDoc: 1000})

	total := 0
	for _, e := range got {
		total += len(e.Text)
	}
	if total != 250 {
		t.Errorf("total chars = %d, want capped at 250", total)
	}
	if len(got) != 2 || got[1].DocID != "doc_002" {
		t.Errorf("expected a truncated excerpt from doc_002, got %+v", got)
	}
}

func TestBuildForField_RoutingOrderPreserved(t *testing.T) {
	d1 := docWithPages("doc_002", "dob here")
	d2 := docWithPages("doc_001", "dob here too")
	got := BuildForField(dobField(), []*contracts.Document{d1, d2}, Limits{})
	if len(got) != 2 || got[0].DocID != "doc_002" {
		t.Errorf("excerpt order %+v, want routing order (doc_002 first)", got)
	}
}

func TestBuildForField_EmptyDocs(t *testing.T) {
	if got := BuildForField(dobField(), nil, Limits{}); len(got) != 0 {
		t.Errorf("excerpts from no docs: %+v", got)
	}
	empty := &contracts.Document{DocID: "doc_001"}
	if got := BuildForField(dobField(), []*contracts.Document{empty}, Limits{}); len(got) != 0 {
		t.Errorf("excerpts from pageless doc: %+v", got)
	}
}
