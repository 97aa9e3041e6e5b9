// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for detector operations.
var meter = otel.Meter("apexscan.detect")

var (
	detectTotal     metric.Int64Counter
	detectionsFound metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		detectTotal, err = meter.Int64Counter(
			"scan_detect_total",
			metric.WithDescription("Total number of detector runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		detectionsFound, err = meter.Int64Histogram(
			"scan_detections_found",
			metric.WithDescription("Number of detections found per detector run"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordDetections records one detector run. Metric failures are ignored;
// detection must not depend on the telemetry pipeline.
func recordDetections(ctx context.Context, kind AntipatternType, found int) {
	if initMetrics() != nil {
		return
	}
	opt := metric.WithAttributes(attribute.String("scan.antipattern", string(kind)))
	detectTotal.Add(ctx, 1, opt)
	detectionsFound.Record(ctx, int64(found), opt)
}
