// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/DocFill/pkg/logging"
	"github.com/AleutianAI/DocFill/services/extract/contracts"
	"github.com/AleutianAI/DocFill/services/extract/ingest"
	"github.com/AleutianAI/DocFill/services/extract/pipeline"
	"github.com/AleutianAI/DocFill/services/extract/runstore"
)

var validate = validator.New()

// Handlers serves the extraction API.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	pipeline *pipeline.Pipeline
	store    *runstore.Store
	index    *runstore.Index
	defaults contracts.RunOptions
	log      *logging.Logger
}

// NewHandlers wires the API handlers. index may be nil, which turns
// run listing into a 503.
func NewHandlers(p *pipeline.Pipeline, store *runstore.Store, index *runstore.Index, defaults contracts.RunOptions, log *logging.Logger) *Handlers {
	if log == nil {
		log = logging.Default()
	}
	defaults.Normalize()
	return &Handlers{pipeline: p, store: store, index: index, defaults: defaults, log: log}
}

// HandleCreateRun handles POST /v1/runs.
//
// Description:
//
//	Accepts a multipart form: one or more "documents" file parts, an
//	optional "schema" part (JSON), repeated "form_fields" values, and
//	run option fields. Runs the extraction synchronously and returns
//	the final result.
//
// Response:
//
//	200 OK: CreateRunResponse
//	400 Bad Request: no documents, bad options
//	500 Internal Server Error: storage failure
func (h *Handlers) HandleCreateRun(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid multipart form",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	var optsForm RunOptionsForm
	if err := c.ShouldBind(&optsForm); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid run options",
			Code:  "INVALID_OPTIONS",
		})
		return
	}
	if err := validate.Struct(optsForm); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_OPTIONS",
		})
		return
	}

	uploads, err := readUploads(form.File["documents"])
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Could not read uploaded documents",
			Code:  "INVALID_UPLOAD",
		})
		return
	}
	if len(uploads) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "At least one document is required",
			Code:  "NO_DOCUMENTS",
		})
		return
	}

	userSchema, err := readSchema(c, form)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Could not read schema part",
			Code:  "INVALID_SCHEMA",
		})
		return
	}

	req := pipeline.Request{
		Uploads:    uploads,
		UserSchema: userSchema,
		FormFields: form.Value["form_fields"],
		Options:    optsForm.apply(h.defaults),
	}

	result, err := h.pipeline.Run(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "RUN_FAILED"
		switch {
		case errors.Is(err, contracts.ErrNoDocuments):
			status = http.StatusBadRequest
			code = "NO_DOCUMENTS"
		case errors.Is(err, contracts.ErrRunStorage):
			code = "RUN_STORAGE"
		}
		h.log.Error("run failed", "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	c.JSON(http.StatusOK, CreateRunResponse{RunID: result.RunID, Result: result})
}

// HandleGetRun handles GET /v1/runs/:id.
func (h *Handlers) HandleGetRun(c *gin.Context) {
	result, ok := h.loadFinal(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleGetFields handles GET /v1/runs/:id/fields.
func (h *Handlers) HandleGetFields(c *gin.Context) {
	result, ok := h.loadFinal(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, FieldsResponse{RunID: result.RunID, Fields: result.Fields})
}

// HandleListRuns handles GET /v1/runs.
func (h *Handlers) HandleListRuns(c *gin.Context) {
	if h.index == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Run index is disabled",
			Code:  "INDEX_DISABLED",
		})
		return
	}
	records, err := h.index.List(c.Request.Context(), 100)
	if err != nil {
		h.log.Error("run list failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Could not list runs",
			Code:  "RUN_STORAGE",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": records})
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handlers) loadFinal(c *gin.Context) (*contracts.FinalResult, bool) {
	id := c.Param("id")
	run, err := h.store.OpenRun(id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Run not found",
			Code:  "RUN_NOT_FOUND",
		})
		return nil, false
	}
	var result contracts.FinalResult
	if err := run.ReadArtifact(runstore.ArtifactFinal, &result); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Run has no final result",
			Code:  "RESULT_NOT_READY",
		})
		return nil, false
	}
	return &result, true
}

func readUploads(files []*multipart.FileHeader) ([]ingest.Upload, error) {
	var uploads []ingest.Upload
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, ingest.Upload{Filename: fh.Filename, Data: data})
	}
	return uploads, nil
}

// readSchema accepts the schema either as a file part or as a plain
// form value.
func readSchema(c *gin.Context, form *multipart.Form) ([]byte, error) {
	if files := form.File["schema"]; len(files) > 0 {
		f, err := files[0].Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	if values := form.Value["schema"]; len(values) > 0 && values[0] != "" {
		return []byte(values[0]), nil
	}
	return nil, nil
}
