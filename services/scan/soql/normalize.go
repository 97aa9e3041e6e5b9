// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package soql provides the lexical source view used by the scan detectors:
// comment/string normalization of Apex source and extraction of inline SOQL
// query expressions with their projection structure.
//
// # Description
//
// Detectors that operate on raw text (rather than the syntax tree) must never
// match inside comments or string literals. Normalize produces a same-length,
// same-line-count view of the source with those regions blanked out, so byte
// offsets and line numbers computed against the normalized view are valid
// against the original source.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package soql

import "strings"

// Normalize returns a copy of source with comments and string literal
// contents replaced by spaces.
//
// # Description
//
//	Handles Apex lexical structure: '//' line comments, '/* */' block
//	comments, and single-quoted string literals with backslash escapes.
//	Every replaced byte becomes a space except newlines, which are kept,
//	so the result has the same length and the same line layout as the
//	input. String delimiters are preserved (the quotes remain) so that
//	downstream tokenization still sees an empty literal rather than a
//	bare identifier boundary.
//
// # Inputs
//
//	source - Raw Apex source text. May be syntactically invalid.
//
// # Outputs
//
//	string - Normalized view, len(result) == len(source).
func Normalize(source string) string {
	out := []byte(source)

	const (
		stateCode = iota
		stateLineComment
		stateBlockComment
		stateString
	)

	state := stateCode
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch state {
		case stateCode:
			switch {
			case c == '/' && i+1 < len(out) && out[i+1] == '/':
				state = stateLineComment
				out[i] = ' '
			case c == '/' && i+1 < len(out) && out[i+1] == '*':
				state = stateBlockComment
				out[i] = ' '
			case c == '\'':
				state = stateString
			}
		case stateLineComment:
			if c == '\n' {
				state = stateCode
			} else {
				out[i] = ' '
			}
		case stateBlockComment:
			if c == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i] = ' '
				out[i+1] = ' '
				i++
				state = stateCode
			} else if c != '\n' {
				out[i] = ' '
			}
		case stateString:
			switch {
			case c == '\\' && i+1 < len(out):
				out[i] = ' '
				if out[i+1] != '\n' {
					out[i+1] = ' '
				}
				i++
			case c == '\'':
				state = stateCode
			case c != '\n':
				out[i] = ' '
			}
		}
	}

	return string(out)
}

// LineOfOffset returns the 1-indexed line number containing the given byte
// offset. Offsets past the end of text map to the last line.
func LineOfOffset(text string, offset int) int {
	if offset > len(text) {
		offset = len(text)
	}
	return 1 + strings.Count(text[:offset], "\n")
}

// LineAt returns the full text of the 1-indexed line, without the trailing
// newline. Out-of-range lines return "".
func LineAt(text string, line int) string {
	if line < 1 {
		return ""
	}
	lines := strings.Split(text, "\n")
	if line > len(lines) {
		return ""
	}
	return lines[line-1]
}
