// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast wraps tree-sitter parsing of Apex source into a small,
// typed structural view for the scan detectors.
//
// # Description
//
// Apex is syntactically Java-derived, and tree-sitter's error-tolerant
// parsing recovers class, method, and loop structure even around the inline
// SOQL bracket expressions the Java grammar cannot express. The adapter maps
// the grammar's node-type strings to a closed NodeKind set exactly once, at
// the parse boundary; everything downstream matches on NodeKind and is
// immune to grammar renames.
//
// # Thread Safety
//
// ApexParser instances are safe for concurrent use; each Parse call creates
// its own tree-sitter parser. A Tree is immutable after Parse returns.
package ast

// NodeKind is the closed set of structural node kinds the scan engine
// reasons about. Grammar node-type strings never leak past the adapter.
type NodeKind int

const (
	// KindUnknown covers every grammar node the engine has no use for.
	KindUnknown NodeKind = iota

	// KindClass is a class, trigger, or interface declaration.
	KindClass

	// KindMethod is a method or constructor declaration.
	KindMethod

	// KindField is a class-level field declaration.
	KindField

	// KindForLoop is a classic three-clause for statement.
	KindForLoop

	// KindForEachLoop is an enhanced for (for-each) statement.
	KindForEachLoop

	// KindWhileLoop is a while statement.
	KindWhileLoop

	// KindDoWhileLoop is a do-while statement.
	KindDoWhileLoop

	// KindReturn is a return statement.
	KindReturn
)

// String returns the snake_case name of the kind.
func (k NodeKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindForLoop:
		return "for_loop"
	case KindForEachLoop:
		return "for_each_loop"
	case KindWhileLoop:
		return "while_loop"
	case KindDoWhileLoop:
		return "do_while_loop"
	case KindReturn:
		return "return"
	default:
		return "unknown"
	}
}

// IsLoop reports whether the kind is one of the loop constructs.
func (k NodeKind) IsLoop() bool {
	switch k {
	case KindForLoop, KindForEachLoop, KindWhileLoop, KindDoWhileLoop:
		return true
	default:
		return false
	}
}

// kindOf maps a tree-sitter Java grammar node-type string to a NodeKind.
// This is the single place grammar strings are interpreted.
func kindOf(nodeType string) NodeKind {
	switch nodeType {
	case "class_declaration", "interface_declaration", "enum_declaration":
		return KindClass
	case "method_declaration", "constructor_declaration":
		return KindMethod
	case "field_declaration":
		return KindField
	case "for_statement":
		return KindForLoop
	case "enhanced_for_statement":
		return KindForEachLoop
	case "while_statement":
		return KindWhileLoop
	case "do_statement":
		return KindDoWhileLoop
	case "return_statement":
		return KindReturn
	default:
		return KindUnknown
	}
}

// Method is one method or constructor with its body text and line range.
//
// Lines are 1-indexed and inclusive. Body is the brace-delimited body as
// written in the source; BodyStartLine is the line the body opens on, and
// BodyStartOffset/BodyEndOffset delimit it in the source bytes (end
// exclusive), so slices of a same-length normalized view line up with it.
type Method struct {
	Name            string
	StartLine       int
	EndLine         int
	Body            string
	BodyStartLine   int
	BodyStartOffset int
	BodyEndOffset   int
}

// Span is a line range owned by a structural node.
type Span struct {
	Kind      NodeKind
	StartLine int
	EndLine   int
}
