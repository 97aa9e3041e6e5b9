// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry composes antipattern modules into a scan engine.
//
// # Description
//
// A Registry maps each antipattern kind to the one module that handles
// it and runs them over source text. Module failures are isolated: a
// panicking detector yields an empty result for its kind and every other
// kind still reports. The registry itself is an explicit value, created
// and wired by the caller; there is no package-level global.
//
// # Thread Safety
//
// A Registry is immutable after registration completes; Scan, ScanAll
// and ScanMany are safe to call concurrently.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ApexScan/services/scan/config"
	"github.com/AleutianAI/ApexScan/services/scan/detect"
	"github.com/AleutianAI/ApexScan/services/scan/recommend"
	"github.com/AleutianAI/ApexScan/services/scan/runtime"
)

// Registry holds one module per antipattern kind.
type Registry struct {
	modules map[detect.AntipatternType]*Module
	order   []detect.AntipatternType
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[detect.AntipatternType]*Module),
	}
}

// NewDefaultRegistry wires the built-in kinds with their default
// detectors, recommenders and telemetry enrichers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	occurrence := runtime.NewOccurrenceEnricher()

	// Register cannot fail here: the three kinds are distinct.
	_ = r.Register(NewModule(
		detect.NewDescribeCallDetector(),
		WithRecommender(recommend.NewInstructionRecommender(detect.TypeGlobalDescribe)),
		WithEnricher(runtime.NewMethodTimeEnricher()),
	))
	_ = r.Register(NewModule(
		detect.NewUnfilteredQueryDetector(),
		WithRecommender(recommend.NewInstructionRecommender(detect.TypeUnfilteredQuery)),
		WithEnricher(occurrence),
	))
	_ = r.Register(NewModule(
		detect.NewUnusedProjectionDetector(),
		WithRecommender(recommend.NewProjectionRecommender()),
		WithEnricher(occurrence),
	))
	return r
}

// Register adds a module. Each kind has exactly one module; registering
// a second module for an already-covered kind is rejected.
func (r *Registry) Register(m *Module) error {
	if m == nil {
		return fmt.Errorf("%w: nil module", ErrInvalidModule)
	}
	kind := m.Kind()
	if _, exists := r.modules[kind]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateKind, kind)
	}
	r.modules[kind] = m
	r.order = append(r.order, kind)
	return nil
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []detect.AntipatternType {
	out := make([]detect.AntipatternType, len(r.order))
	copy(out, r.order)
	return out
}

// Scan runs a single kind's module over one class.
func (r *Registry) Scan(ctx context.Context, kind detect.AntipatternType, className, source string, data *runtime.Data) (detect.Result, error) {
	m, ok := r.modules[kind]
	if !ok {
		return detect.Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return m.Scan(ctx, className, source, data), nil
}

// ScanAll runs every registered module over one class and returns one
// result per kind, in registration order.
//
// # Description
//
//	A module that panics contributes an empty result for its kind; the
//	panic is logged with a scan correlation id and the remaining modules
//	still run. ScanAll therefore always returns len(Kinds()) results.
func (r *Registry) ScanAll(ctx context.Context, className, source string, data *runtime.Data) []detect.Result {
	scanID := uuid.NewString()
	started := time.Now()
	results := make([]detect.Result, 0, len(r.order))

	for _, kind := range r.order {
		results = append(results, r.scanIsolated(ctx, scanID, kind, className, source, data))
	}

	found := 0
	for _, res := range results {
		found += len(res.Detections)
	}
	recordScan(ctx, time.Since(started), len(r.order), found)
	slog.Debug("class scan complete",
		"scan_id", scanID,
		"class", className,
		"kinds", len(r.order),
		"detections", found,
	)
	return results
}

// scanIsolated runs one module, converting a panic into an empty result.
func (r *Registry) scanIsolated(ctx context.Context, scanID string, kind detect.AntipatternType, className, source string, data *runtime.Data) (res detect.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("antipattern module panicked, result dropped for this kind",
				"scan_id", scanID,
				"kind", kind,
				"class", className,
				"panic", rec,
			)
			recordModulePanic(ctx, string(kind))
			res = detect.Result{
				Type:           kind,
				FixInstruction: config.InstructionFor(string(kind)),
				Detections:     []detect.Detection{},
			}
		}
	}()
	return r.modules[kind].Scan(ctx, className, source, data)
}

// ClassSource is one scan work item for ScanMany.
type ClassSource struct {
	// Name is the class or trigger name telemetry identifiers are keyed
	// by.
	Name string

	// Source is the raw Apex text.
	Source string

	// Runtime is the class's telemetry; nil disables enrichment.
	Runtime *runtime.Data
}

// ScanMany scans several classes concurrently, at most concurrency at a
// time (values below 1 mean unbounded). Modules are stateless, so the
// only coordination needed is around the result map.
//
// # Outputs
//
//	map[string][]detect.Result - Per-class results keyed by class name.
//	error                      - Context cancellation; scans themselves
//	                             never error.
func (r *Registry) ScanMany(ctx context.Context, items []ClassSource, concurrency int) (map[string][]detect.Result, error) {
	var mu sync.Mutex
	results := make(map[string][]detect.Result, len(items))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := r.ScanAll(gctx, item.Name, item.Source, item.Runtime)
			mu.Lock()
			results[item.Name] = res
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
