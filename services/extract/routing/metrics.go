// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("docfill.routing")

var (
	routeDuration metric.Float64Histogram
	docsRouted    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		routeDuration, err = meter.Float64Histogram(
			"routing_duration_seconds",
			metric.WithDescription("Field routing duration per run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		docsRouted, err = meter.Int64Counter(
			"routing_docs_scored_total",
			metric.WithDescription("Readable documents scored during routing"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}
