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

	"github.com/AleutianAI/ApexScan/services/scan/ast"
	"github.com/AleutianAI/ApexScan/services/scan/severity"
	"github.com/AleutianAI/ApexScan/services/scan/soql"
)

// UnfilteredQueryDetector locates SOQL queries that scan a whole object:
// no WHERE filter and no LIMIT on the outer query.
//
// # Description
//
//	Sub-queries inside parentheses are excluded from the clause check;
//	only the outermost query's filter and row-limit count. Loop context
//	prefers the syntax tree and falls back to lexical brace tracking when
//	structure recovery failed.
//
// # Thread Safety
//
//	Stateless; safe for concurrent use.
type UnfilteredQueryDetector struct {
	parser *ast.ApexParser
}

// NewUnfilteredQueryDetector creates the detector.
func NewUnfilteredQueryDetector() *UnfilteredQueryDetector {
	return &UnfilteredQueryDetector{parser: ast.NewApexParser()}
}

// Type returns TypeUnfilteredQuery.
func (d *UnfilteredQueryDetector) Type() AntipatternType {
	return TypeUnfilteredQuery
}

// Detect scans one class for unfiltered queries.
//
// Severity is critical when the query executes inside a loop, high
// otherwise. Never errors; queries that fail to extract are skipped.
func (d *UnfilteredQueryDetector) Detect(ctx context.Context, className, source string) []Detection {
	norm := soql.Normalize(source)

	var tree *ast.Tree
	if t, err := d.parser.Parse(ctx, source); err == nil {
		tree = t
	}

	detections := []Detection{}
	for _, q := range soql.ExtractQueries(source) {
		if q.HasWhere || q.HasLimit {
			continue
		}

		// Error recovery can drop a loop node that wraps an unparseable
		// bracket expression; the lexical scan backstops the tree.
		inLoop := tree != nil && tree.InsideLoop(q.StartLine) || insideLoopLexical(norm, q.StartOffset)

		det := Detection{
			Type:           TypeUnfilteredQuery,
			ClassName:      className,
			LineNumber:     q.StartLine,
			Code:           q.Raw,
			Severity:       severity.ForLoopContext(inLoop, severity.Critical, severity.High),
			SeveritySource: severity.SourceStatic,
			Query:          &q,
		}
		if tree != nil {
			if m := tree.MethodAt(q.StartLine); m != nil {
				det.MethodName = m.Name
			}
		}
		detections = append(detections, det)
	}

	recordDetections(ctx, TypeUnfilteredQuery, len(detections))
	return detections
}
