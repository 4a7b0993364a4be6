// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

var (
	meter  = otel.Meter("docfill.pipeline")
	tracer = otel.Tracer("docfill.pipeline")

	metricsOnce sync.Once
	metricsErr  error
	runsTotal   metric.Int64Counter
	fieldsTotal metric.Int64Counter
)

func initMetrics() error {
	metricsOnce.Do(func() {
		runsTotal, metricsErr = meter.Int64Counter(
			"docfill.pipeline.runs",
			metric.WithDescription("Completed extraction runs"),
		)
		if metricsErr != nil {
			return
		}
		fieldsTotal, metricsErr = meter.Int64Counter(
			"docfill.pipeline.fields",
			metric.WithDescription("Final fields, by status"),
		)
	})
	return metricsErr
}

func recordRun(ctx context.Context, result *contracts.FinalResult) {
	if initMetrics() != nil {
		return
	}
	runsTotal.Add(ctx, 1)
	for _, f := range result.Fields {
		fieldsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(f.Status)),
		))
	}
}
