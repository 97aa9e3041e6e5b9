// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for scan orchestration.
var meter = otel.Meter("apexscan.registry")

var (
	scanLatency     metric.Float64Histogram
	scanTotal       metric.Int64Counter
	detectionsFound metric.Int64Histogram
	panicTotal      metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		scanLatency, err = meter.Float64Histogram(
			"scan_registry_scan_duration_seconds",
			metric.WithDescription("Duration of full class scans"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		scanTotal, err = meter.Int64Counter(
			"scan_registry_scan_total",
			metric.WithDescription("Total number of full class scans"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		detectionsFound, err = meter.Int64Histogram(
			"scan_registry_detections_per_scan",
			metric.WithDescription("Detections found per class scan, all kinds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		panicTotal, err = meter.Int64Counter(
			"scan_registry_module_panic_total",
			metric.WithDescription("Antipattern modules recovered from a panic"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordScan records one completed class scan. Metric failures are
// ignored; scanning must not depend on the telemetry pipeline.
func recordScan(ctx context.Context, elapsed time.Duration, kinds, found int) {
	if initMetrics() != nil {
		return
	}
	opt := metric.WithAttributes(attribute.Int("kinds", kinds))
	scanLatency.Record(ctx, elapsed.Seconds(), opt)
	scanTotal.Add(ctx, 1, opt)
	detectionsFound.Record(ctx, int64(found))
}

// recordModulePanic counts one recovered module panic.
func recordModulePanic(ctx context.Context, kind string) {
	if initMetrics() != nil {
		return
	}
	panicTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
