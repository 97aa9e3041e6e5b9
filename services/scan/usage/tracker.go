// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package usage determines which fields selected by a SOQL query are
// actually consumed by the code that follows it.
//
// # Description
//
// Given a query, the variable its result is bound to, and the remainder of
// the enclosing method, the tracker classifies every later mention of that
// variable (and of every for-each alias bound to it): field reads, bind
// references from later queries, and complete-object hand-offs that make
// any field-removal rewrite unsafe. The output feeds both detection
// (non-empty unused set) and rewrite eligibility.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package usage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/ApexScan/services/scan/soql"
)

// Projection is the tracker's verdict for one query.
//
// Invariants: UnusedFields is a subset of OriginalFields and is disjoint
// from UsedInLaterQueries. When IsReturned, IsClassMember, or
// CompleteObjectUsage holds, every field is potentially consumed downstream
// and UnusedFields is empty.
type Projection struct {
	// OriginalFields is the ordered outer projection of the query.
	OriginalFields []string

	// UnusedFields are projected fields never read afterward.
	UnusedFields []string

	// UsedInLaterQueries are projected fields referenced as bind
	// expressions by a later query in the same method.
	UsedInLaterQueries []string

	// AssignedVariable is the variable the query result is bound to.
	AssignedVariable string

	// IsInLoop reports whether the query executes inside a loop.
	IsInLoop bool

	// IsReturned reports a bare mention of the variable in a return
	// statement (not a field access on it).
	IsReturned bool

	// IsClassMember reports that the variable resolves to a field of the
	// enclosing type rather than a local.
	IsClassMember bool

	// HasNestedSubquery reports a parenthesized sub-query inside the
	// query expression.
	HasNestedSubquery bool

	// CompleteObjectUsage reports a hand-off of the whole record set (or
	// a whole element of it): bare return, bare call argument, indexed
	// element assignment, or insert DML.
	CompleteObjectUsage bool
}

// Input carries everything Track needs about one query occurrence.
//
// Text fields should come from the normalized source view so comments and
// string literals cannot fake a usage.
type Input struct {
	// Query is the extracted query expression.
	Query soql.Query

	// Variable is the bound result variable, from BindVariable.
	Variable string

	// RestOfMethod is the enclosing method's text after the query's
	// closing bracket.
	RestOfMethod string

	// LaterQueries are queries appearing after this one in the same
	// method, in source order.
	LaterQueries []soql.Query

	// InLoop reports loop context at the query site.
	InLoop bool

	// IsClassMember reports that Variable is a class-level field.
	IsClassMember bool
}

var (
	// forEachTailRe matches a for-each header whose iterated expression
	// position ends exactly where the text ends, e.g. "for (Account a : ".
	forEachTailRe = regexp.MustCompile(`(?is)\bfor\s*\(\s*[\w.<>\s,\[\]]+?\s(\w+)\s*:\s*$`)

	// assignTailRe matches an assignment target directly before the end
	// of the text, e.g. "List<Account> accs = ".
	assignTailRe = regexp.MustCompile(`(?s)(\w+)\s*=\s*$`)
)

// bindProximityLines is the declaration lookback window, in lines, above
// the query's start line.
const bindProximityLines = 2

// BindVariable resolves the variable a query result is assigned to.
//
// # Description
//
//	When the query is the iterated expression of a for-each loop, the
//	loop's element binding wins. Otherwise the nearest assignment target
//	directly preceding the query counts, provided it sits within two
//	lines of the query's start. Queries bound to neither (statement
//	expressions, call arguments) report ok=false; with no variable to
//	track reads against, the caller suppresses the detection.
//
// # Inputs
//
//	methodText  - Normalized text of the enclosing method.
//	queryOffset - Byte offset of the query's '[' within methodText.
//
// # Outputs
//
//	string - The bound variable name.
//	bool   - False when the query is unassigned.
func BindVariable(methodText string, queryOffset int) (string, bool) {
	if queryOffset < 0 || queryOffset > len(methodText) {
		return "", false
	}
	before := methodText[:queryOffset]

	if m := forEachTailRe.FindStringSubmatch(before); m != nil {
		return m[1], true
	}

	line := soql.LineOfOffset(methodText, queryOffset)
	window := before[offsetOfLine(methodText, line-bindProximityLines):]
	if m := assignTailRe.FindStringSubmatch(window); m != nil {
		return m[1], true
	}

	return "", false
}

// Track computes the Projection for one bound query.
func Track(in Input) Projection {
	p := Projection{
		OriginalFields:     in.Query.FieldNames(),
		UsedInLaterQueries: []string{},
		UnusedFields:       []string{},
		AssignedVariable:   in.Variable,
		IsInLoop:           in.InLoop,
		IsClassMember:      in.IsClassMember,
		HasNestedSubquery:  in.Query.HasSubquery,
	}
	if in.Variable == "" {
		return p
	}

	rest := soql.Normalize(in.RestOfMethod)

	used := make(map[string]bool)
	markReads(rest, in.Variable, in.Query.Fields, used, &p, true)
	for _, alias := range loopAliases(rest, in.Variable) {
		markReads(rest, alias, in.Query.Fields, used, &p, false)
	}

	for _, later := range in.LaterQueries {
		for _, f := range bindReferences(later.Raw, in.Variable, in.Query.Fields) {
			key := strings.ToLower(f)
			if !used[key] {
				used[key] = true
			}
			p.UsedInLaterQueries = appendUnique(p.UsedInLaterQueries, f)
		}
	}

	// With the whole object handed off, no per-field claim is defensible.
	if p.IsReturned || p.IsClassMember || p.CompleteObjectUsage {
		return p
	}

	for _, f := range in.Query.Fields {
		if isSystemField(f) {
			continue
		}
		if !used[strings.ToLower(f.Name)] {
			p.UnusedFields = append(p.UnusedFields, f.Name)
		}
	}

	return p
}

// isSystemField reports projection entries excluded from unused-field
// candidacy: the primary key, count aggregates, and nested sub-query tokens.
func isSystemField(f soql.Field) bool {
	if strings.EqualFold(f.Name, "id") {
		return true
	}
	raw := strings.ToLower(strings.TrimSpace(f.Raw))
	if strings.HasPrefix(raw, "count(") {
		return true
	}
	return strings.HasPrefix(raw, "(")
}

// markReads scans text for mentions of name and classifies each one,
// recording matched field reads in used and object-level findings in p.
// asBoundVariable distinguishes the query variable itself from a loop
// alias: a bare return of the variable sets IsReturned, a bare return of
// an alias only taints the rewrite via CompleteObjectUsage.
func markReads(text, name string, fields []soql.Field, used map[string]bool, p *Projection, asBoundVariable bool) {
	lower := strings.ToLower(text)
	needle := strings.ToLower(name)

	for from := 0; ; {
		idx := strings.Index(lower[from:], needle)
		if idx < 0 {
			return
		}
		pos := from + idx
		end := pos + len(needle)
		from = end

		if !standalone(text, pos, end) {
			continue
		}

		// Skip an index expression; remember it was there.
		indexed := false
		after := skipSpaces(text, end)
		if after < len(text) && text[after] == '[' {
			if closing := matchSquare(text, after); closing > 0 {
				indexed = true
				after = skipSpaces(text, closing+1)
			}
		}

		if after < len(text) && text[after] == '.' {
			path, ok := readPath(text, after)
			if ok {
				markFieldRead(path, fields, used)
			}
			continue
		}

		if indexed {
			// Whole element handed off.
			p.CompleteObjectUsage = true
			continue
		}

		classifyBare(text, pos, after, p, asBoundVariable)
	}
}

// classifyBare handles a mention with no field access: DML, return, call
// argument, comparison, or for-each source.
func classifyBare(text string, pos, after int, p *Projection, asBoundVariable bool) {
	if isNullComparison(text, pos, after) {
		return
	}

	switch statementKeyword(text, pos) {
	case "return":
		if asBoundVariable {
			p.IsReturned = true
		}
		p.CompleteObjectUsage = true
		return
	case "insert":
		// insert writes every field; removal would change behavior.
		p.CompleteObjectUsage = true
		return
	case "update", "delete", "upsert":
		// These only need the Id field.
		return
	}

	switch prevNonSpace(text, pos) {
	case ':':
		// for-each source; aliases are tracked separately.
		return
	case '(', ',', '{':
		p.CompleteObjectUsage = true
		return
	case '=':
		if isIndexedAssignTarget(text, pos) {
			p.CompleteObjectUsage = true
		}
		return
	}
}

// markFieldRead marks every projected field matched by the accessed path.
// An access counts when the projected field's segments are a prefix of the
// accessed path (covers trailing method calls) or the other way around
// (covers partial relationship traversal).
func markFieldRead(path accessPath, fields []soql.Field, used map[string]bool) {
	if path.isAssignTarget {
		return
	}
	for _, f := range fields {
		fieldSegs := strings.Split(strings.ToLower(f.Name), ".")
		if segsPrefix(fieldSegs, path.segments) || segsPrefix(path.segments, fieldSegs) {
			used[strings.ToLower(f.Name)] = true
		}
	}
}

// accessPath is one member access chain on a tracked variable.
type accessPath struct {
	segments       []string
	isAssignTarget bool
}

// readPath reads the ".a.b.c" chain starting at the dot and classifies
// whether the chain is an assignment target. Equality comparison is a read;
// plain assignment is not.
func readPath(text string, dot int) (accessPath, bool) {
	var segs []string
	pos := dot
	for pos < len(text) && text[pos] == '.' {
		start := pos + 1
		end := start
		for end < len(text) && isIdentByte(text[end]) {
			end++
		}
		if end == start {
			break
		}
		segs = append(segs, strings.ToLower(text[start:end]))
		pos = end
	}
	if len(segs) == 0 {
		return accessPath{}, false
	}

	after := skipSpaces(text, pos)
	assign := after < len(text) && text[after] == '=' &&
		(after+1 >= len(text) || text[after+1] != '=')
	// Exclude compound reads like "!=" and "<=" reaching here as targets.
	if assign && after > 0 {
		switch text[after-1] {
		case '!', '<', '>', '+', '-', '*', '/':
			assign = false
		}
	}

	return accessPath{segments: segs, isAssignTarget: assign}, true
}

// loopAliases finds for-each element bindings iterating over name.
func loopAliases(text, name string) []string {
	re := regexp.MustCompile(`(?is)\bfor\s*\(\s*[\w.<>\s,\[\]]+?\s(\w+)\s*:\s*` + regexp.QuoteMeta(name) + `\b`)
	var aliases []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		aliases = appendUnique(aliases, m[1])
	}
	return aliases
}

// bindReferences finds ":name.field" bind expressions in a later query and
// returns the projected fields they touch.
func bindReferences(queryText, name string, fields []soql.Field) []string {
	re := regexp.MustCompile(`(?i):\s*` + regexp.QuoteMeta(name) + `\.(\w+(?:\.\w+)*)`)
	var touched []string
	for _, m := range re.FindAllStringSubmatch(queryText, -1) {
		pathSegs := strings.Split(strings.ToLower(m[1]), ".")
		for _, f := range fields {
			fieldSegs := strings.Split(strings.ToLower(f.Name), ".")
			if segsPrefix(fieldSegs, pathSegs) || segsPrefix(pathSegs, fieldSegs) {
				touched = appendUnique(touched, f.Name)
			}
		}
	}
	return touched
}

// isNullComparison reports "name == null", "name != null", and the
// reversed "null == name" forms.
func isNullComparison(text string, pos, after int) bool {
	if after+1 < len(text) && (text[after] == '=' || text[after] == '!') && text[after+1] == '=' {
		word, _ := wordAt(text, skipSpaces(text, after+2))
		if strings.EqualFold(word, "null") {
			return true
		}
	}

	i := pos - 1
	for i >= 0 && isSpaceByte(text[i]) {
		i--
	}
	if i >= 1 && text[i] == '=' && (text[i-1] == '=' || text[i-1] == '!') {
		i -= 2
		for i >= 0 && isSpaceByte(text[i]) {
			i--
		}
		if i >= 3 && strings.EqualFold(text[i-3:i+1], "null") {
			return true
		}
	}
	return false
}

// statementKeyword returns the lowercased first word of the statement
// containing pos, or "".
func statementKeyword(text string, pos int) string {
	start := pos
	for start > 0 {
		switch text[start-1] {
		case ';', '{', '}', ')':
			goto done
		}
		start--
	}
done:
	word, _ := wordAt(text, skipSpaces(text, start))
	return strings.ToLower(word)
}

// isIndexedAssignTarget reports whether the assignment directly before pos
// targets an indexed element, e.g. "accs[0] = ".
func isIndexedAssignTarget(text string, pos int) bool {
	eq := pos - 1
	for eq >= 0 && isSpaceByte(text[eq]) {
		eq--
	}
	if eq < 0 || text[eq] != '=' {
		return false
	}
	stmt := eq
	for stmt > 0 {
		switch text[stmt-1] {
		case ';', '{', '}':
			goto scan
		}
		stmt--
	}
scan:
	return strings.Contains(text[stmt:eq], "]")
}

func standalone(text string, pos, end int) bool {
	if pos > 0 && (isIdentByte(text[pos-1]) || text[pos-1] == '.') {
		return false
	}
	return end >= len(text) || !isIdentByte(text[end])
}

func segsPrefix(prefix, segs []string) bool {
	if len(prefix) > len(segs) {
		return false
	}
	for i, s := range prefix {
		if segs[i] != s {
			return false
		}
	}
	return true
}

func wordAt(text string, pos int) (string, int) {
	end := pos
	for end < len(text) && isIdentByte(text[end]) {
		end++
	}
	return text[pos:end], end
}

func prevNonSpace(text string, pos int) byte {
	for i := pos - 1; i >= 0; i-- {
		if !isSpaceByte(text[i]) {
			return text[i]
		}
	}
	return 0
}

func matchSquare(text string, open int) int {
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

func skipSpaces(text string, pos int) int {
	for pos < len(text) && isSpaceByte(text[pos]) {
		pos++
	}
	return pos
}

func offsetOfLine(text string, line int) int {
	if line <= 1 {
		return 0
	}
	offset := 0
	for n := 1; n < line; n++ {
		next := strings.IndexByte(text[offset:], '\n')
		if next < 0 {
			return len(text)
		}
		offset += next + 1
	}
	return offset
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// appendUnique appends v unless already present (case-insensitive).
func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return list
		}
	}
	return append(list, v)
}

// String renders a compact debug form.
func (p Projection) String() string {
	return fmt.Sprintf("projection{var=%s unused=%v later=%v returned=%t member=%t whole=%t}",
		p.AssignedVariable, p.UnusedFields, p.UsedInLaterQueries,
		p.IsReturned, p.IsClassMember, p.CompleteObjectUsage)
}
