// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

// ErrorResponse is the JSON error envelope for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RunOptionsForm carries the optional per-run tunables of a create
// request. Unset fields fall back to the server defaults.
type RunOptionsForm struct {
	TopKDocs     int    `form:"top_k_docs" validate:"omitempty,min=1,max=10"`
	LLMProvider  string `form:"llm_provider" validate:"omitempty,oneof=anthropic openai none"`
	LLMModel     string `form:"llm_model" validate:"omitempty,max=128"`
	FieldWorkers int    `form:"field_workers" validate:"omitempty,min=1,max=32"`
}

// apply overlays the form values onto the server defaults.
func (f RunOptionsForm) apply(defaults contracts.RunOptions) contracts.RunOptions {
	opts := defaults
	if f.TopKDocs > 0 {
		opts.TopKDocs = f.TopKDocs
	}
	if f.LLMProvider != "" {
		opts.LLMProvider = f.LLMProvider
	}
	if f.LLMModel != "" {
		opts.LLMModel = f.LLMModel
	}
	if f.FieldWorkers > 0 {
		opts.FieldWorkers = f.FieldWorkers
	}
	opts.Normalize()
	return opts
}

// CreateRunResponse is the POST /v1/runs reply.
type CreateRunResponse struct {
	RunID  string                 `json:"run_id"`
	Result *contracts.FinalResult `json:"result"`
}

// FieldsResponse is the GET /v1/runs/:id/fields reply.
type FieldsResponse struct {
	RunID  string                 `json:"run_id"`
	Fields []contracts.FinalField `json:"fields"`
}

// HealthResponse is the /healthz reply.
type HealthResponse struct {
	Status string `json:"status"`
}
