// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package soql

import (
	"strings"
)

// Field is one entry of a query's outer projection, in declaration order.
type Field struct {
	// Raw is the field token exactly as written, e.g. "Owner.Name" or
	// "COUNT(Id) total".
	Raw string

	// Name is the resolved field name: the alias when one is present
	// (the AS keyword itself is never part of the name), the full call
	// text for an unaliased aggregate, the relationship path otherwise.
	Name string

	// IsAggregate marks aggregate-function calls, which are treated as
	// opaque single tokens.
	IsAggregate bool
}

// Query is one inline SOQL expression found in Apex source.
//
// All offsets and line numbers are relative to the source text passed to
// ExtractQueries. Raw preserves the original bytes, bracket to bracket;
// structural fields (Fields, HasWhere, ...) describe the outermost query
// only — parenthesized sub-queries contribute nothing beyond HasSubquery.
//
// Thread Safety: Immutable after extraction.
type Query struct {
	// Raw is the full bracketed expression, byte-identical to the input.
	Raw string

	// StartOffset and EndOffset delimit Raw within the scanned source
	// (EndOffset exclusive).
	StartOffset int
	EndOffset   int

	// StartLine and EndLine are 1-indexed.
	StartLine int
	EndLine   int

	// Fields is the ordered outer projection.
	Fields []Field

	// SObject is the target of the outer FROM clause.
	SObject string

	// FromTail is Raw from the outer FROM keyword through the closing
	// bracket, byte-identical to the input.
	FromTail string

	// HasWhere and HasLimit report filter/row-limit clauses on the outer
	// query only.
	HasWhere bool
	HasLimit bool

	// HasSubquery reports a parenthesized inner SELECT anywhere in the
	// expression.
	HasSubquery bool

	// selectEnd is the offset within Raw just past the SELECT keyword.
	selectEnd int
}

// FieldNames returns the resolved names of the outer projection in order.
func (q *Query) FieldNames() []string {
	names := make([]string, len(q.Fields))
	for i, f := range q.Fields {
		names[i] = f.Name
	}
	return names
}

// Rewrite reproduces the query with the outer projection replaced by keep,
// preserving everything from the FROM keyword onward byte-for-byte.
//
// # Inputs
//
//	keep - Field names for the new SELECT list, already ordered.
//
// # Outputs
//
//	string - The rewritten bracketed expression. Empty when the query was
//	         not produced by ExtractQueries or keep is empty.
func (q *Query) Rewrite(keep []string) string {
	if q.selectEnd == 0 || q.FromTail == "" || len(keep) == 0 {
		return ""
	}
	return q.Raw[:q.selectEnd] + " " + strings.Join(keep, ", ") + " " + q.FromTail
}

// ExtractQueries finds every inline SOQL expression in the given Apex source.
//
// # Description
//
//	The source is normalized internally, so queries inside comments or
//	string literals are never reported. Expressions that open with '['
//	but do not parse as a SELECT (array index expressions, list literals)
//	are skipped, as are unterminated brackets. Malformed input therefore
//	degrades to fewer results, never to an error.
//
// # Inputs
//
//	source - Raw Apex source text.
//
// # Outputs
//
//	[]Query - Queries in source order. Never nil.
func ExtractQueries(source string) []Query {
	norm := Normalize(source)
	queries := []Query{}

	for i := 0; i < len(norm); i++ {
		if norm[i] != '[' {
			continue
		}
		if !keywordFollows(norm, i+1, "select") {
			continue
		}
		end := matchBracket(norm, i)
		if end < 0 {
			break
		}
		q := parseQuery(source, norm, i, end+1)
		if q != nil {
			queries = append(queries, *q)
		}
		i = end
	}

	return queries
}

// parseQuery analyzes one bracketed expression. start/end delimit it in the
// source including both brackets (end exclusive). Returns nil when the outer
// SELECT or FROM structure is missing.
func parseQuery(source, norm string, start, end int) *Query {
	raw := source[start:end]
	inner := norm[start:end]

	selStart := skipSpace(inner, 1)
	selEnd := selStart + len("select")
	if selEnd > len(inner) || !strings.EqualFold(inner[selStart:selEnd], "select") {
		return nil
	}

	q := &Query{
		Raw:         raw,
		StartOffset: start,
		EndOffset:   end,
		StartLine:   LineOfOffset(norm, start),
		EndLine:     LineOfOffset(norm, end),
		selectEnd:   selEnd,
	}

	fromIdx := -1
	depth := 0
	for pos := selEnd; pos < len(inner); pos++ {
		switch inner[pos] {
		case '(':
			depth++
			if keywordFollows(inner, pos+1, "select") {
				q.HasSubquery = true
			}
		case ')':
			depth--
		default:
			if depth != 0 || !isWordStart(inner, pos) {
				continue
			}
			word, next := readWord(inner, pos)
			switch strings.ToLower(word) {
			case "from":
				if fromIdx < 0 {
					fromIdx = pos
				}
			case "where":
				if fromIdx >= 0 {
					q.HasWhere = true
				}
			case "limit":
				if fromIdx >= 0 {
					q.HasLimit = true
				}
			}
			pos = next - 1
		}
	}
	if fromIdx < 0 {
		return nil
	}

	q.FromTail = raw[fromIdx:]
	q.Fields = parseProjection(raw[selEnd:fromIdx])

	afterFrom := skipSpace(inner, fromIdx+len("from"))
	if isWordStart(inner, afterFrom) {
		q.SObject, _ = readWord(inner, afterFrom)
	}

	return q
}

// parseProjection splits the outer SELECT list on top-level commas and
// resolves each token to a Field.
func parseProjection(list string) []Field {
	var fields []Field
	depth := 0
	tokStart := 0

	emit := func(tok string) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return
		}
		fields = append(fields, parseFieldToken(tok))
	}

	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				emit(list[tokStart:i])
				tokStart = i + 1
			}
		}
	}
	emit(list[tokStart:])

	return fields
}

// parseFieldToken resolves a single projection entry: plain path, aliased
// path ("Name n" or "Name AS n"), or aggregate call with optional alias.
func parseFieldToken(tok string) Field {
	f := Field{Raw: tok}

	if paren := strings.IndexByte(tok, '('); paren >= 0 {
		f.IsAggregate = true
		closing := strings.LastIndexByte(tok, ')')
		rest := ""
		if closing >= 0 && closing+1 < len(tok) {
			rest = strings.TrimSpace(tok[closing+1:])
		}
		if alias := stripAliasKeyword(rest); alias != "" {
			f.Name = alias
		} else {
			f.Name = tok
		}
		return f
	}

	parts := strings.Fields(tok)
	switch len(parts) {
	case 1:
		f.Name = parts[0]
	default:
		f.Name = parts[len(parts)-1]
	}
	return f
}

// stripAliasKeyword drops a leading AS from an alias remainder.
func stripAliasKeyword(rest string) string {
	parts := strings.Fields(rest)
	if len(parts) == 0 {
		return ""
	}
	if strings.EqualFold(parts[0], "as") && len(parts) > 1 {
		return parts[1]
	}
	if strings.EqualFold(parts[0], "as") {
		return ""
	}
	return parts[0]
}

// matchBracket returns the index of the ']' closing the '[' at open, or -1.
func matchBracket(text string, open int) int {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// keywordFollows reports whether the next word at or after pos (skipping
// whitespace) equals word, case-insensitively, at a word boundary.
func keywordFollows(text string, pos int, word string) bool {
	pos = skipSpace(text, pos)
	end := pos + len(word)
	if end > len(text) || !strings.EqualFold(text[pos:end], word) {
		return false
	}
	return end == len(text) || !isIdentByte(text[end])
}

func skipSpace(text string, pos int) int {
	for pos < len(text) {
		switch text[pos] {
		case ' ', '\t', '\r', '\n':
			pos++
		default:
			return pos
		}
	}
	return pos
}

func isWordStart(text string, pos int) bool {
	if pos >= len(text) || !isIdentByte(text[pos]) {
		return false
	}
	return pos == 0 || !isIdentByte(text[pos-1])
}

// readWord reads the identifier starting at pos and returns it with the
// position just past its end.
func readWord(text string, pos int) (string, int) {
	end := pos
	for end < len(text) && isIdentByte(text[end]) {
		end++
	}
	return text[pos:end], end
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
