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
	"regexp"

	"github.com/AleutianAI/ApexScan/services/scan/ast"
	"github.com/AleutianAI/ApexScan/services/scan/severity"
	"github.com/AleutianAI/ApexScan/services/scan/soql"
	"github.com/AleutianAI/ApexScan/services/scan/usage"
)

// UnusedProjectionDetector locates SOQL queries selecting fields the
// enclosing method never consumes.
//
// # Description
//
//	Each query's projection is tracked through the rest of its method:
//	direct field reads, for-each alias reads, bind references from later
//	queries, and whole-object hand-offs. A detection is emitted only when
//	tracking produces a non-empty unused set; queries whose result is
//	returned, assigned to a class member, handed off whole, or not bound
//	to any variable produce nothing — with the object escaping the
//	method, no per-field claim holds. Queries containing a parenthesized
//	sub-query are still reported, but the recommender will refuse to
//	rewrite them.
//
// # Thread Safety
//
//	Stateless; safe for concurrent use.
type UnusedProjectionDetector struct {
	parser *ast.ApexParser
}

// NewUnusedProjectionDetector creates the detector.
func NewUnusedProjectionDetector() *UnusedProjectionDetector {
	return &UnusedProjectionDetector{parser: ast.NewApexParser()}
}

// Type returns TypeUnusedProjection.
func (d *UnusedProjectionDetector) Type() AntipatternType {
	return TypeUnusedProjection
}

// Detect scans one class for queries with unused projected fields.
//
// Severity is high inside a loop, medium otherwise. Never errors; when
// method structure cannot be recovered the whole source acts as one scope.
func (d *UnusedProjectionDetector) Detect(ctx context.Context, className, source string) []Detection {
	norm := soql.Normalize(source)

	var tree *ast.Tree
	if t, err := d.parser.Parse(ctx, source); err == nil {
		tree = t
	}

	queries := soql.ExtractQueries(source)
	detections := []Detection{}

	for i := range queries {
		q := queries[i]

		scopeStart, scopeEnd, methodName := scopeOf(tree, &q, len(source))
		variable, ok := usage.BindVariable(norm[scopeStart:scopeEnd], q.StartOffset-scopeStart)
		if !ok {
			continue
		}

		var later []soql.Query
		for j := i + 1; j < len(queries); j++ {
			if queries[j].StartOffset < scopeEnd {
				later = append(later, queries[j])
			}
		}

		// Error recovery can drop a loop node that wraps an unparseable
		// bracket expression; the lexical scan backstops the tree.
		inLoop := tree != nil && tree.InsideLoop(q.StartLine) || insideLoopLexical(norm, q.StartOffset)

		proj := usage.Track(usage.Input{
			Query:         q,
			Variable:      variable,
			RestOfMethod:  norm[q.EndOffset:scopeEnd],
			LaterQueries:  later,
			InLoop:        inLoop,
			IsClassMember: isClassMember(tree, norm[scopeStart:scopeEnd], variable),
		})
		if len(proj.UnusedFields) == 0 {
			continue
		}

		det := Detection{
			Type:           TypeUnusedProjection,
			ClassName:      className,
			MethodName:     methodName,
			LineNumber:     q.StartLine,
			Code:           q.Raw,
			Severity:       severity.ForLoopContext(inLoop, severity.High, severity.Medium),
			SeveritySource: severity.SourceStatic,
			Projection:     &proj,
			Query:          &q,
		}
		detections = append(detections, det)
	}

	recordDetections(ctx, TypeUnusedProjection, len(detections))
	return detections
}

// scopeOf returns the byte range and name of the method containing the
// query, or the whole source when no method could be recovered.
func scopeOf(tree *ast.Tree, q *soql.Query, sourceLen int) (int, int, string) {
	if tree != nil {
		if m := tree.MethodAt(q.StartLine); m != nil && m.BodyStartOffset <= q.StartOffset && q.EndOffset <= m.BodyEndOffset {
			return m.BodyStartOffset, m.BodyEndOffset, m.Name
		}
	}
	return 0, sourceLen, ""
}

// isClassMember reports whether the variable resolves to a class-level
// field: declared on the enclosing type and not shadowed by a local
// declaration inside the method scope.
func isClassMember(tree *ast.Tree, methodNorm, variable string) bool {
	if tree == nil || !tree.IsClassField(variable) {
		return false
	}
	return !localDeclRe(variable).MatchString(methodNorm)
}

// localDeclRe matches a local declaration of the variable: a type token
// followed by the name and an initializer, terminator, or for-each colon.
func localDeclRe(variable string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)[\w.>\]]\s+` + regexp.QuoteMeta(variable) + `\s*[=;:,]`)
}
