// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

var (
	meter = otel.Meter("docfill.ingest")

	metricsOnce    sync.Once
	metricsErr     error
	docsIngested   metric.Int64Counter
	ingestDuration metric.Float64Histogram
)

func initMetrics() error {
	metricsOnce.Do(func() {
		docsIngested, metricsErr = meter.Int64Counter(
			"docfill.ingest.documents",
			metric.WithDescription("Documents ingested, by readability"),
		)
		if metricsErr != nil {
			return
		}
		ingestDuration, metricsErr = meter.Float64Histogram(
			"docfill.ingest.duration",
			metric.WithDescription("Ingest duration in seconds"),
			metric.WithUnit("s"),
		)
	})
	return metricsErr
}

func recordIngest(ctx context.Context, docs []*contracts.Document, elapsed time.Duration) {
	if initMetrics() != nil {
		return
	}
	for _, doc := range docs {
		docsIngested.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("readable", doc.Readable()),
			attribute.String("mime_type", doc.MIMEType),
		))
	}
	ingestDuration.Record(ctx, elapsed.Seconds())
}
