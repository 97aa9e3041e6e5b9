// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for Apex parse operations.
var meter = otel.Meter("apexscan.ast")

var (
	parseLatency metric.Float64Histogram
	parseTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"scan_ast_parse_duration_seconds",
			metric.WithDescription("Duration of Apex parse operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"scan_ast_parse_total",
			metric.WithDescription("Total number of Apex parse operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordParse records one parse operation. Metric failures are ignored;
// parsing must not depend on the telemetry pipeline.
func recordParse(ctx context.Context, elapsed time.Duration, attrs ...attribute.KeyValue) {
	if initMetrics() != nil {
		return
	}
	opt := metric.WithAttributes(attrs...)
	parseLatency.Record(ctx, elapsed.Seconds(), opt)
	parseTotal.Add(ctx, 1, opt)
}
