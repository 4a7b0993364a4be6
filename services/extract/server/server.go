// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server exposes the extraction pipeline over HTTP.
//
// Endpoints:
//
//	POST /v1/runs          - run an extraction (multipart upload)
//	GET  /v1/runs          - list runs, newest first
//	GET  /v1/runs/:id      - full final result for a run
//	GET  /v1/runs/:id/fields - just the final fields
//	GET  /healthz          - liveness
//	GET  /metrics          - Prometheus metrics (when enabled)
package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/DocFill/services/extract/telemetry"
)

// Options tunes the HTTP engine.
type Options struct {
	// MaxUploadBytes caps multipart memory per request.
	MaxUploadBytes int64

	// ReleaseMode silences gin's debug output.
	ReleaseMode bool
}

// NewEngine builds the gin engine with routes and middleware attached.
func NewEngine(h *Handlers, opts Options) *gin.Engine {
	if opts.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("docfill"))
	if opts.MaxUploadBytes > 0 {
		engine.MaxMultipartMemory = opts.MaxUploadBytes
	}

	engine.GET("/healthz", h.HandleHealth)
	if mh := telemetry.MetricsHandler(); mh != nil {
		engine.GET("/metrics", gin.WrapH(mh))
	}

	v1 := engine.Group("/v1")
	RegisterRoutes(v1, h)
	return engine
}

// RegisterRoutes registers the /v1 extraction endpoints.
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	runs := rg.Group("/runs")
	{
		runs.POST("", h.HandleCreateRun)
		runs.GET("", h.HandleListRuns)
		runs.GET("/:id", h.HandleGetRun)
		runs.GET("/:id/fields", h.HandleGetFields)
	}
}
