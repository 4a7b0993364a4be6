// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ingest turns raw uploads into documents with per-page text
// layers. A document that cannot yield text is kept in the index with
// an unreadable reason rather than dropped, so the final result can
// explain why nothing was extracted from it.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/DocFill/pkg/logging"
	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

// Upload is one raw document as received from the caller.
type Upload struct {
	Filename string
	Data     []byte
}

// Ingestor converts uploads into documents.
//
// Thread Safety: Safe for concurrent use.
type Ingestor struct {
	log *logging.Logger
}

// NewIngestor returns an ingestor logging through log.
func NewIngestor(log *logging.Logger) *Ingestor {
	if log == nil {
		log = logging.Default()
	}
	return &Ingestor{log: log}
}

// Ingest processes uploads in order.
//
// Description:
//
//	Documents get deterministic ids (doc_001, doc_002, ...) in upload
//	order, a SHA-256 digest of the raw bytes, and a sniffed MIME type.
//	PDFs are split into per-page text, and fillable PDFs surface their
//	AcroForm field names; plain text becomes a single
//	page. A document whose bytes cannot be parsed, or whose pages
//	carry no text at all, stays in the result marked unreadable.
//
// Outputs:
//
//	[]*contracts.Document - one per upload, upload order preserved.
//	error - contracts.ErrNoDocuments when uploads is empty.
func (in *Ingestor) Ingest(ctx context.Context, uploads []Upload) ([]*contracts.Document, error) {
	if len(uploads) == 0 {
		return nil, contracts.ErrNoDocuments
	}

	start := time.Now()
	docs := make([]*contracts.Document, 0, len(uploads))
	for i, up := range uploads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc := in.ingestOne(fmt.Sprintf("doc_%03d", i+1), up)
		docs = append(docs, doc)
		in.log.Debug("document ingested",
			"doc_id", doc.DocID,
			"mime_type", doc.MIMEType,
			"pages", len(doc.Pages),
			"readable", doc.Readable())
	}

	recordIngest(ctx, docs, time.Since(start))
	return docs, nil
}

func (in *Ingestor) ingestOne(docID string, up Upload) *contracts.Document {
	digest := sha256.Sum256(up.Data)
	doc := &contracts.Document{
		DocID:    docID,
		Filename: up.Filename,
		SHA256:   hex.EncodeToString(digest[:]),
		MIMEType: detectMIME(up.Filename, up.Data),
	}

	switch {
	case isPDF(doc.MIMEType, up.Data):
		doc.FormFields = extractFormFields(up.Data)
		pages, err := extractPDFPages(up.Data)
		if err != nil {
			doc.UnreadableReason = contracts.ReasonParseError
			in.log.Warn("pdf parse failed", "doc_id", docID, "error", err)
			return doc
		}
		doc.Pages = pages
	case isText(doc.MIMEType):
		text := strings.TrimSpace(string(up.Data))
		if text != "" {
			doc.Pages = []contracts.PageText{{Page: 1, Text: text}}
		}
	case strings.HasPrefix(doc.MIMEType, "image/"):
		// Scanned images carry no text layer; OCR is out of scope.
		doc.UnreadableReason = contracts.ReasonNoTextLayer
		return doc
	default:
		doc.UnreadableReason = contracts.ReasonParseError
		return doc
	}

	doc.HasTextLayer = hasAnyText(doc.Pages)
	if !doc.HasTextLayer {
		doc.UnreadableReason = contracts.ReasonNoTextLayer
	}
	return doc
}

func hasAnyText(pages []contracts.PageText) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

// detectMIME sniffs the content and falls back to the extension for
// types the sniffer reports as plain text or octet-stream.
func detectMIME(filename string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if mediaType, _, found := strings.Cut(sniffed, ";"); found {
		sniffed = strings.TrimSpace(mediaType)
	}
	if sniffed != "application/octet-stream" && sniffed != "text/plain" {
		return sniffed
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".txt", ".md":
		return "text/plain"
	}
	return sniffed
}

func isPDF(mimeType string, data []byte) bool {
	return mimeType == "application/pdf" ||
		(len(data) >= 5 && string(data[:5]) == "%PDF-")
}

func isText(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/")
}
