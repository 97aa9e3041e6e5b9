// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package recommend attaches fix guidance to detections.
//
// # Description
//
// A Recommender turns one kind's detections into a Result: the kind-level
// fix instruction plus, where provably safe, a per-instance rewrite in
// CodeAfter. Rewrites follow a strict safety rule: when any condition
// makes a mechanical rewrite unsound (a nested sub-query in the
// projection, nothing left to select), CodeAfter stays empty and only the
// textual instruction ships. Recommenders never fail; an unsafe rewrite
// is simply not offered.
//
// # Thread Safety
//
// Recommenders are stateless and safe for concurrent use. Recommend never
// mutates its input slice.
package recommend

import (
	"context"
	"strings"

	"github.com/AleutianAI/ApexScan/services/scan/config"
	"github.com/AleutianAI/ApexScan/services/scan/detect"
)

// Recommender produces the per-kind result record for a detection list.
type Recommender interface {
	// Recommend builds the result for the given detections. The input
	// slice is not mutated; detections are copied before any rewrite is
	// attached.
	Recommend(ctx context.Context, detections []detect.Detection) detect.Result
}

// InstructionRecommender attaches the kind's fix instruction and nothing
// else. It serves kinds with no mechanical rewrite: the fix for a
// describe call or an unfiltered query depends on intent the engine
// cannot see.
type InstructionRecommender struct {
	kind        detect.AntipatternType
	instruction string
}

// NewInstructionRecommender creates a recommender for the given kind,
// using the embedded default instruction text unless overridden.
func NewInstructionRecommender(kind detect.AntipatternType, opts ...Option) *InstructionRecommender {
	r := &InstructionRecommender{
		kind:        kind,
		instruction: config.InstructionFor(string(kind)),
	}
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.instruction != "" {
		r.instruction = cfg.instruction
	}
	return r
}

// Recommend implements Recommender.
func (r *InstructionRecommender) Recommend(ctx context.Context, detections []detect.Detection) detect.Result {
	out := make([]detect.Detection, len(detections))
	copy(out, detections)
	return detect.Result{
		Type:           r.kind,
		FixInstruction: r.instruction,
		Detections:     out,
	}
}

// ProjectionRecommender rewrites unused-projection queries down to the
// fields the code actually reads.
type ProjectionRecommender struct {
	instruction string
}

// Option configures a recommender.
type Option func(*options)

type options struct {
	instruction string
}

// WithInstruction overrides the embedded default instruction text.
func WithInstruction(text string) Option {
	return func(o *options) {
		o.instruction = text
	}
}

// NewProjectionRecommender creates the unused-projection recommender.
func NewProjectionRecommender(opts ...Option) *ProjectionRecommender {
	cfg := options{instruction: config.InstructionFor(string(detect.TypeUnusedProjection))}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ProjectionRecommender{instruction: cfg.instruction}
}

// Recommend implements Recommender.
//
// For each detection it removes the unused fields from the SELECT list
// and keeps every clause from FROM onward byte-for-byte. The rewrite is
// withheld (CodeAfter "") when the projection contains a nested
// sub-query, when removing the unused fields would leave nothing to
// select, or when the detection lacks query metadata.
func (r *ProjectionRecommender) Recommend(ctx context.Context, detections []detect.Detection) detect.Result {
	out := make([]detect.Detection, len(detections))
	copy(out, detections)

	for i := range out {
		d := &out[i]
		if d.Projection == nil || d.Query == nil {
			continue
		}
		if d.Projection.HasNestedSubquery {
			continue
		}

		unused := make(map[string]struct{}, len(d.Projection.UnusedFields))
		for _, f := range d.Projection.UnusedFields {
			unused[strings.ToLower(f)] = struct{}{}
		}

		// Keep the raw projection tokens so aliases and aggregate calls
		// survive the rewrite intact.
		keep := make([]string, 0, len(d.Query.Fields))
		for _, f := range d.Query.Fields {
			if _, drop := unused[strings.ToLower(f.Name)]; drop {
				continue
			}
			keep = append(keep, f.Raw)
		}
		if len(keep) == 0 || len(keep) == len(d.Query.Fields) {
			continue
		}

		d.CodeAfter = d.Query.Rewrite(keep)
	}

	return detect.Result{
		Type:           detect.TypeUnusedProjection,
		FixInstruction: r.instruction,
		Detections:     out,
	}
}
