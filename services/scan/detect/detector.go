// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detect locates performance antipattern instances in Apex source.
//
// # Description
//
// Each Detector scans one class or trigger for one antipattern kind and
// emits detections carrying a static severity. Detectors never fail on
// malformed input: partial or unparseable source degrades to an empty
// result. Severity reclassification from runtime telemetry and fix
// recommendations are layered on top by the runtime and recommend packages.
//
// # Thread Safety
//
// All detectors are stateless and safe for concurrent use.
package detect

import (
	"context"

	"github.com/AleutianAI/ApexScan/services/scan/severity"
	"github.com/AleutianAI/ApexScan/services/scan/soql"
	"github.com/AleutianAI/ApexScan/services/scan/usage"
)

// AntipatternType identifies one antipattern kind.
type AntipatternType string

const (
	// TypeGlobalDescribe is a call to Schema.getGlobalDescribe, which
	// loads describe metadata for every object in the org.
	TypeGlobalDescribe AntipatternType = "schema_global_describe"

	// TypeUnfilteredQuery is a SOQL query with neither a WHERE filter
	// nor a LIMIT clause on its outer query.
	TypeUnfilteredQuery AntipatternType = "unfiltered_soql"

	// TypeUnusedProjection is a SOQL query selecting fields the method
	// never reads.
	TypeUnusedProjection AntipatternType = "unused_soql_fields"
)

// Detection is one located antipattern instance.
//
// A Detection is created by a Detector and afterwards touched by exactly
// two collaborators: a runtime enricher may replace Severity/SeveritySource/
// RuntimeNote on its own copy, and a recommender may fill CodeAfter.
// Everything else is immutable for the lifetime of one scan.
type Detection struct {
	// Type is the antipattern kind.
	Type AntipatternType `json:"type"`

	// ClassName is the analyzed class or trigger.
	ClassName string `json:"className"`

	// MethodName is the enclosing method when structure recovery found
	// one; empty otherwise.
	MethodName string `json:"methodName,omitempty"`

	// LineNumber is 1-indexed.
	LineNumber int `json:"lineNumber"`

	// Code is the problematic source snippet.
	Code string `json:"code"`

	// Severity is the current classification; static until a runtime
	// enricher correlates telemetry.
	Severity severity.Severity `json:"severity"`

	// SeveritySource records where Severity came from.
	SeveritySource severity.Source `json:"severitySource"`

	// CodeAfter is a provably-safe rewrite, filled by a recommender.
	// Empty whenever no safe rewrite exists.
	CodeAfter string `json:"codeAfter,omitempty"`

	// RuntimeNote is a human-readable correlation note from a runtime
	// enricher, e.g. the matched occurrence count.
	RuntimeNote string `json:"runtimeNote,omitempty"`

	// Projection carries unused-projection metadata; nil for other kinds.
	Projection *usage.Projection `json:"projection,omitempty"`

	// Query is the extracted query expression for query-shaped kinds.
	Query *soql.Query `json:"-"`
}

// Detector is the contract every antipattern scanner implements.
//
// Detect must never panic or error on malformed input; a source that
// cannot be analyzed yields an empty slice. Detectors are pure: the same
// input always produces the same output.
type Detector interface {
	// Type returns the antipattern kind this detector locates.
	Type() AntipatternType

	// Detect scans one class's source text.
	Detect(ctx context.Context, className, source string) []Detection
}
