// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runtime correlates production telemetry with static detections
// and reclassifies their severity.
//
// # Description
//
// Telemetry arrives in two independent shapes: representative occurrence
// counts keyed by a per-query identifier, and per-entrypoint CPU/database
// time aggregates keyed by method name. An enricher matches records of one
// shape against detections; a match overrides the detection's severity
// with a runtime-derived level and records the evidence. Detections with
// no matching record pass through untouched, severity source still static
// — absent telemetry is not an error.
//
// # Thread Safety
//
// Enrichers are stateless and safe for concurrent use. Enrich never
// mutates its input slice; it returns a new one.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/ApexScan/services/scan/detect"
	"github.com/AleutianAI/ApexScan/services/scan/severity"
)

// OccurrenceRecord is one occurrence-count telemetry record.
type OccurrenceRecord struct {
	// Identifier has the form "<ClassName>.<file-extension>.<lineNumber>",
	// e.g. "AccountUtil.cls.42".
	Identifier string `json:"identifier"`

	// Count is the representative occurrence count, a proxy for how
	// often the query line executed in production.
	Count int64 `json:"count"`
}

// Entrypoint is one named execution path's aggregate cost for a method.
type Entrypoint struct {
	Name         string  `json:"name"`
	AvgCPUTime   float64 `json:"avgCpuTime"`
	TotalCPUTime float64 `json:"totalCpuTime"`
	AvgDBTime    float64 `json:"avgDbTime"`
	TotalDBTime  float64 `json:"totalDbTime"`
}

// MethodRecord groups the entrypoints impacted by one method.
type MethodRecord struct {
	MethodName  string       `json:"methodName"`
	Entrypoints []Entrypoint `json:"entrypoints"`
}

// Data bundles both telemetry shapes for one scan. Supplied by the caller
// and read-only to the engine; either slice may be empty.
type Data struct {
	Occurrences []OccurrenceRecord `json:"occurrences,omitempty"`
	Methods     []MethodRecord     `json:"methods,omitempty"`
}

// Enricher reclassifies detections from one telemetry shape.
type Enricher interface {
	// Supports reports whether the enricher serves the given kind.
	// Attaching an enricher to a module of an unsupported kind is a
	// wiring defect, checked at construction time.
	Supports(kind detect.AntipatternType) bool

	// Enrich returns a new detection list with severities overridden
	// wherever a telemetry record correlates. Unmatched detections are
	// passed through unchanged.
	Enrich(ctx context.Context, detections []detect.Detection, data *Data, className string) []detect.Detection
}

// queryExtensions are the file extensions occurrence identifiers are
// reconstructed with; both class and trigger telemetry correlate.
var queryExtensions = []string{"cls", "trigger"}

// OccurrenceEnricher matches occurrence-count records to query-shaped
// detections by line identifier.
type OccurrenceEnricher struct {
	thresholds severity.Thresholds
	kinds      map[detect.AntipatternType]struct{}
}

// OccurrenceEnricherOption configures an OccurrenceEnricher.
type OccurrenceEnricherOption func(*OccurrenceEnricher)

// WithOccurrenceThresholds overrides the default severity thresholds.
func WithOccurrenceThresholds(t severity.Thresholds) OccurrenceEnricherOption {
	return func(e *OccurrenceEnricher) {
		e.thresholds = t
	}
}

// NewOccurrenceEnricher creates the enricher. It serves the query-shaped
// kinds: unfiltered queries and unused projections.
func NewOccurrenceEnricher(opts ...OccurrenceEnricherOption) *OccurrenceEnricher {
	e := &OccurrenceEnricher{
		thresholds: severity.DefaultThresholds(),
		kinds: map[detect.AntipatternType]struct{}{
			detect.TypeUnfilteredQuery:  {},
			detect.TypeUnusedProjection: {},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supports implements Enricher.
func (e *OccurrenceEnricher) Supports(kind detect.AntipatternType) bool {
	_, ok := e.kinds[kind]
	return ok
}

// Enrich implements Enricher.
//
// A record matches a detection when its identifier equals the identifier
// reconstructed from the scanned class name and the detection's line,
// for either known extension. Matching is same-class only and exact.
func (e *OccurrenceEnricher) Enrich(ctx context.Context, detections []detect.Detection, data *Data, className string) []detect.Detection {
	out := make([]detect.Detection, len(detections))
	copy(out, detections)
	if data == nil || len(data.Occurrences) == 0 {
		return out
	}

	for i := range out {
		rec, ok := matchOccurrence(data.Occurrences, className, out[i].LineNumber)
		if !ok {
			continue
		}
		out[i].Severity = severity.FromOccurrenceCount(rec.Count, e.thresholds)
		out[i].SeveritySource = severity.SourceRuntime
		out[i].RuntimeNote = fmt.Sprintf("representative occurrence count %d", rec.Count)
		slog.Debug("occurrence telemetry matched detection",
			"class", className,
			"line", out[i].LineNumber,
			"count", rec.Count,
			"severity", out[i].Severity,
		)
	}

	return out
}

func matchOccurrence(records []OccurrenceRecord, className string, line int) (OccurrenceRecord, bool) {
	for _, ext := range queryExtensions {
		want := fmt.Sprintf("%s.%s.%d", className, ext, line)
		for _, rec := range records {
			if rec.Identifier == want {
				return rec, true
			}
		}
	}
	return OccurrenceRecord{}, false
}

// MethodTimeEnricher matches CPU-time records to detections by method
// name.
type MethodTimeEnricher struct {
	thresholds severity.Thresholds
	kinds      map[detect.AntipatternType]struct{}
}

// MethodTimeEnricherOption configures a MethodTimeEnricher.
type MethodTimeEnricherOption func(*MethodTimeEnricher)

// WithMethodTimeThresholds overrides the default severity thresholds.
func WithMethodTimeThresholds(t severity.Thresholds) MethodTimeEnricherOption {
	return func(e *MethodTimeEnricher) {
		e.thresholds = t
	}
}

// NewMethodTimeEnricher creates the enricher. It serves the direct-call
// kind, whose cost shows up as method-level CPU time rather than query
// volume.
func NewMethodTimeEnricher(opts ...MethodTimeEnricherOption) *MethodTimeEnricher {
	e := &MethodTimeEnricher{
		thresholds: severity.DefaultThresholds(),
		kinds: map[detect.AntipatternType]struct{}{
			detect.TypeGlobalDescribe: {},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supports implements Enricher.
func (e *MethodTimeEnricher) Supports(kind detect.AntipatternType) bool {
	_, ok := e.kinds[kind]
	return ok
}

// Enrich implements Enricher.
//
// A record matches a detection by case-insensitive method-name equality.
// Detections without method attribution never match.
func (e *MethodTimeEnricher) Enrich(ctx context.Context, detections []detect.Detection, data *Data, className string) []detect.Detection {
	out := make([]detect.Detection, len(detections))
	copy(out, detections)
	if data == nil || len(data.Methods) == 0 {
		return out
	}

	for i := range out {
		if out[i].MethodName == "" {
			continue
		}
		rec, ok := matchMethod(data.Methods, out[i].MethodName)
		if !ok {
			continue
		}

		avgs := make([]float64, 0, len(rec.Entrypoints))
		names := make([]string, 0, len(rec.Entrypoints))
		for _, ep := range rec.Entrypoints {
			avgs = append(avgs, ep.AvgCPUTime)
			names = append(names, ep.Name)
		}

		out[i].Severity = severity.FromCPUTime(avgs, e.thresholds)
		out[i].SeveritySource = severity.SourceRuntime
		out[i].RuntimeNote = fmt.Sprintf("impacted entrypoints: %s", strings.Join(names, ", "))
		slog.Debug("cpu-time telemetry matched detection",
			"class", className,
			"method", out[i].MethodName,
			"entrypoints", len(rec.Entrypoints),
			"severity", out[i].Severity,
		)
	}

	return out
}

func matchMethod(records []MethodRecord, method string) (MethodRecord, bool) {
	for _, rec := range records {
		if strings.EqualFold(rec.MethodName, method) {
			return rec, true
		}
	}
	return MethodRecord{}, false
}
