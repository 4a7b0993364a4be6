// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grounding

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for evidence checking.
var (
	tracer = otel.Tracer("docfill.grounding")
	meter  = otel.Meter("docfill.grounding")
)

var (
	checksTotal   metric.Int64Counter
	checkDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		checksTotal, err = meter.Int64Counter(
			"evidence_checks_total",
			metric.WithDescription("Evidence checks by field, method, and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		checkDuration, err = meter.Float64Histogram(
			"evidence_check_duration_seconds",
			metric.WithDescription("Evidence check duration by field"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}
