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
	"strings"

	"github.com/AleutianAI/ApexScan/services/scan/ast"
	"github.com/AleutianAI/ApexScan/services/scan/severity"
	"github.com/AleutianAI/ApexScan/services/scan/soql"
)

// globalDescribeRe matches a Schema.getGlobalDescribe call, tolerant of
// case and whitespace around the dot and the call parenthesis.
var globalDescribeRe = regexp.MustCompile(`(?i)\bschema\s*\.\s*getglobaldescribe\s*\(`)

// DescribeCallDetector locates Schema.getGlobalDescribe calls.
//
// # Description
//
//	The call loads describe metadata for every object in the org and is
//	expensive enough that repeated execution dominates CPU time. The
//	detector works on the normalized text view only: comments and string
//	literals cannot match, and loop context comes from lexical brace
//	tracking, so detection works even on source the grammar cannot parse.
//	The syntax tree, when available, contributes nothing but the
//	enclosing method name used for telemetry correlation.
//
// # Thread Safety
//
//	Stateless; safe for concurrent use.
type DescribeCallDetector struct {
	parser *ast.ApexParser
}

// NewDescribeCallDetector creates the detector.
func NewDescribeCallDetector() *DescribeCallDetector {
	return &DescribeCallDetector{parser: ast.NewApexParser()}
}

// Type returns TypeGlobalDescribe.
func (d *DescribeCallDetector) Type() AntipatternType {
	return TypeGlobalDescribe
}

// Detect scans one class for Schema.getGlobalDescribe calls.
//
// Severity is high when the call sits inside any for, while, or do-while
// construct, medium otherwise. Never errors; unparseable source only loses
// method-name attribution.
func (d *DescribeCallDetector) Detect(ctx context.Context, className, source string) []Detection {
	norm := soql.Normalize(source)

	var tree *ast.Tree
	if t, err := d.parser.Parse(ctx, source); err == nil {
		tree = t
	}

	detections := []Detection{}
	for _, loc := range globalDescribeRe.FindAllStringIndex(norm, -1) {
		line := soql.LineOfOffset(norm, loc[0])
		inLoop := insideLoopLexical(norm, loc[0])

		det := Detection{
			Type:           TypeGlobalDescribe,
			ClassName:      className,
			LineNumber:     line,
			Code:           strings.TrimSpace(soql.LineAt(source, line)),
			Severity:       severity.ForLoopContext(inLoop, severity.High, severity.Medium),
			SeveritySource: severity.SourceStatic,
		}
		if tree != nil {
			if m := tree.MethodAt(line); m != nil {
				det.MethodName = m.Name
			}
		}
		detections = append(detections, det)
	}

	recordDetections(ctx, TypeGlobalDescribe, len(detections))
	return detections
}
