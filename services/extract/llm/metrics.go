// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("docfill.llm")

var (
	callsTotal   metric.Int64Counter
	callDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		callsTotal, err = meter.Int64Counter(
			"llm_calls_total",
			metric.WithDescription("Model completions by provider, field, and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		callDuration, err = meter.Float64Histogram(
			"llm_call_duration_seconds",
			metric.WithDescription("Model completion duration by provider"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}
