// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultMaxFileSize is the maximum source size the parser will accept (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// ApexParserOption configures an ApexParser instance.
type ApexParserOption func(*ApexParser)

// WithMaxFileSize sets the maximum source size the parser will accept.
func WithMaxFileSize(bytes int64) ApexParserOption {
	return func(p *ApexParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// ApexParser parses Apex source into a Tree.
//
// # Description
//
//	ApexParser drives tree-sitter with the Java grammar, the closest
//	match for Apex's Java-derived syntax. Inline SOQL brackets produce
//	ERROR nodes, but error recovery keeps the surrounding class, method,
//	and loop structure intact, which is all the scan engine needs from
//	the tree; query-level structure comes from the soql package.
//
// # Thread Safety
//
//	Safe for concurrent use. Each Parse call creates its own tree-sitter
//	parser instance.
type ApexParser struct {
	maxFileSize int64
}

// NewApexParser creates a parser with the given options.
func NewApexParser(opts ...ApexParserOption) *ApexParser {
	p := &ApexParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tree is the typed structural view of one parsed class or trigger.
//
// All tree-sitter state is released before Parse returns; a Tree holds only
// extracted data and is immutable.
type Tree struct {
	methods     []Method
	loops       []Span
	classFields map[string]struct{}
	hasErrors   bool
}

// Parse builds a Tree from Apex source.
//
// # Inputs
//
//	ctx    - Context for cancellation.
//	source - Raw Apex source text.
//
// # Outputs
//
//	*Tree - Structural view, never nil on success. Partial parses (ERROR
//	        nodes present) still succeed; HasParseErrors reports them.
//	error - Non-nil for invalid UTF-8, oversized input, cancellation, or
//	        a complete parser failure.
func (p *ApexParser) Parse(ctx context.Context, source string) (*Tree, error) {
	start := time.Now()

	if int64(len(source)) > p.maxFileSize {
		return nil, fmt.Errorf("source is %d bytes (limit %d): %w", len(source), p.maxFileSize, ErrFileTooLarge)
	}
	if !utf8.ValidString(source) {
		return nil, ErrInvalidContent
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(java.GetLanguage())

	content := []byte(source)
	st, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	defer st.Close()

	t := &Tree{classFields: make(map[string]struct{})}
	root := st.RootNode()
	t.hasErrors = root.HasError()
	t.collect(root, content)

	recordParse(ctx, time.Since(start),
		attribute.Int("scan.ast.methods", len(t.methods)),
		attribute.Bool("scan.ast.partial", t.hasErrors),
	)
	if t.hasErrors {
		slog.Debug("apex parse recovered around syntax errors",
			"methods", len(t.methods),
			"loops", len(t.loops),
		)
	}

	return t, nil
}

// collect walks the tree once and extracts methods, loop spans, and
// class-level field names. Everything else is ignored.
func (t *Tree) collect(node *sitter.Node, content []byte) {
	switch kindOf(node.Type()) {
	case KindMethod:
		if m := extractMethod(node, content); m != nil {
			t.methods = append(t.methods, *m)
		}
	case KindField:
		for _, name := range declaratorNames(node, content) {
			t.classFields[strings.ToLower(name)] = struct{}{}
		}
	case KindForLoop, KindForEachLoop, KindWhileLoop, KindDoWhileLoop:
		t.loops = append(t.loops, Span{
			Kind:      kindOf(node.Type()),
			StartLine: int(node.StartPoint().Row + 1),
			EndLine:   int(node.EndPoint().Row + 1),
		})
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		t.collect(node.NamedChild(i), content)
	}
}

// extractMethod builds a Method from a method or constructor declaration.
// Bodies lost to error recovery fall back to the whole declaration text.
func extractMethod(node *sitter.Node, content []byte) *Method {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	m := &Method{
		Name:      nameNode.Content(content),
		StartLine: int(node.StartPoint().Row + 1),
		EndLine:   int(node.EndPoint().Row + 1),
	}

	if body := node.ChildByFieldName("body"); body != nil {
		m.Body = body.Content(content)
		m.BodyStartLine = int(body.StartPoint().Row + 1)
		m.BodyStartOffset = int(body.StartByte())
		m.BodyEndOffset = int(body.EndByte())
	} else {
		m.Body = node.Content(content)
		m.BodyStartLine = m.StartLine
		m.BodyStartOffset = int(node.StartByte())
		m.BodyEndOffset = int(node.EndByte())
	}

	return m
}

// declaratorNames returns the declared names of a field declaration.
func declaratorNames(node *sitter.Node, content []byte) []string {
	var names []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		if nameNode := child.ChildByFieldName("name"); nameNode != nil {
			names = append(names, nameNode.Content(content))
		}
	}
	return names
}

// HasParseErrors reports whether error recovery was needed anywhere in the
// source. Extracted structure is still usable.
func (t *Tree) HasParseErrors() bool {
	return t.hasErrors
}

// Methods returns every method and constructor in source order.
func (t *Tree) Methods() []Method {
	return t.methods
}

// MethodAt returns the innermost method whose line range contains the given
// 1-indexed line, or nil.
func (t *Tree) MethodAt(line int) *Method {
	var best *Method
	for i := range t.methods {
		m := &t.methods[i]
		if line < m.StartLine || line > m.EndLine {
			continue
		}
		if best == nil || m.StartLine >= best.StartLine {
			best = m
		}
	}
	return best
}

// InsideLoop reports whether the given 1-indexed line falls within any
// for, for-each, while, or do-while construct.
func (t *Tree) InsideLoop(line int) bool {
	for _, l := range t.loops {
		if line >= l.StartLine && line <= l.EndLine {
			return true
		}
	}
	return false
}

// IsClassField reports whether name is declared as a class-level field,
// case-insensitively.
func (t *Tree) IsClassField(name string) bool {
	_, ok := t.classFields[strings.ToLower(name)]
	return ok
}
