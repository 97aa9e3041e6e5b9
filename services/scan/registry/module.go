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
	"fmt"

	"github.com/AleutianAI/ApexScan/services/scan/config"
	"github.com/AleutianAI/ApexScan/services/scan/detect"
	"github.com/AleutianAI/ApexScan/services/scan/recommend"
	"github.com/AleutianAI/ApexScan/services/scan/runtime"
)

// Module binds one antipattern kind's collaborators: the detector that
// locates instances, and optionally an enricher that reclassifies their
// severity from telemetry and a recommender that attaches fix guidance.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use when its
// collaborators are.
type Module struct {
	detector    detect.Detector
	recommender recommend.Recommender
	enricher    runtime.Enricher
}

// ModuleOption configures a Module.
type ModuleOption func(*Module)

// WithRecommender attaches a recommender. Without one, the module's
// results carry the kind's embedded default instruction and no rewrites.
func WithRecommender(r recommend.Recommender) ModuleOption {
	return func(m *Module) {
		m.recommender = r
	}
}

// WithEnricher attaches a runtime enricher. The enricher must declare
// support for the detector's kind.
func WithEnricher(e runtime.Enricher) ModuleOption {
	return func(m *Module) {
		m.enricher = e
	}
}

// NewModule creates a module around a detector.
//
// Attaching an enricher that does not support the detector's kind is a
// wiring defect in the composing code, not a runtime condition, so it
// panics here rather than surfacing scan-time errors.
func NewModule(d detect.Detector, opts ...ModuleOption) *Module {
	if d == nil {
		panic("registry: module requires a detector")
	}
	m := &Module{detector: d}
	for _, opt := range opts {
		opt(m)
	}
	if m.enricher != nil && !m.enricher.Supports(d.Type()) {
		panic(fmt.Sprintf("registry: enricher does not support kind %q", d.Type()))
	}
	return m
}

// Kind returns the antipattern kind this module scans for.
func (m *Module) Kind() detect.AntipatternType {
	return m.detector.Type()
}

// Scan runs the module's pipeline over one class: detect, then enrich
// when telemetry is supplied, then recommend.
//
// # Inputs
//
//	ctx       - Carries cancellation and telemetry context.
//	className - Name of the class or trigger being scanned.
//	source    - Raw Apex source text.
//	data      - Runtime telemetry; nil disables enrichment.
//
// # Outputs
//
//	detect.Result - The kind's result record; Detections may be empty.
func (m *Module) Scan(ctx context.Context, className, source string, data *runtime.Data) detect.Result {
	detections := m.detector.Detect(ctx, className, source)
	if m.enricher != nil && data != nil {
		detections = m.enricher.Enrich(ctx, detections, data, className)
	}
	if m.recommender != nil {
		return m.recommender.Recommend(ctx, detections)
	}
	return detect.Result{
		Type:           m.Kind(),
		FixInstruction: config.InstructionFor(string(m.Kind())),
		Detections:     detections,
	}
}
