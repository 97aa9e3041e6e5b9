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

import "strings"

// insideLoopLexical reports whether the byte at offset falls inside a for,
// for-each, while, or do-while construct, using only the normalized text.
//
// The direct-call detector needs loop context without a syntax tree, so
// this tracks brace nesting and loop headers lexically: braced bodies via a
// stack of open blocks, braceless single-statement bodies via a pending
// flag that the next ';' clears, and loop headers (the parenthesized part)
// counted as inside the loop since they re-evaluate per iteration.
func insideLoopLexical(norm string, offset int) bool {
	if offset < 0 || offset > len(norm) {
		return false
	}

	var stack []bool
	pending := false
	nextBraceIsLoop := false

	inLoop := func() bool {
		if pending {
			return true
		}
		for _, isLoop := range stack {
			if isLoop {
				return true
			}
		}
		return false
	}

	for i := 0; i < len(norm); i++ {
		if i == offset {
			return inLoop()
		}

		switch c := norm[i]; {
		case c == '{':
			stack = append(stack, pending || nextBraceIsLoop)
			pending = false
			nextBraceIsLoop = false
		case c == '}':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case c == ';':
			pending = false
		case isLexIdentStart(norm, i):
			word, next := lexWord(norm, i)
			switch strings.ToLower(word) {
			case "for", "while":
				open := lexSkipSpace(norm, next)
				if open < len(norm) && norm[open] == '(' {
					closing := lexMatchParen(norm, open)
					if closing < 0 {
						return false
					}
					if offset > open && offset < closing {
						// Inside the loop header.
						return true
					}
					after := lexSkipSpace(norm, closing+1)
					switch {
					case after < len(norm) && norm[after] == '{':
						nextBraceIsLoop = true
					case after < len(norm) && norm[after] != ';':
						pending = true
					}
					i = closing
					continue
				}
			case "do":
				open := lexSkipSpace(norm, next)
				if open < len(norm) && norm[open] == '{' {
					nextBraceIsLoop = true
				} else {
					pending = true
				}
			}
			i = next - 1
		}
	}

	return inLoop()
}

func lexMatchParen(text string, open int) int {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func lexSkipSpace(text string, pos int) int {
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

func lexWord(text string, pos int) (string, int) {
	end := pos
	for end < len(text) && isLexIdentByte(text[end]) {
		end++
	}
	return text[pos:end], end
}

func isLexIdentStart(text string, pos int) bool {
	if !isLexIdentByte(text[pos]) {
		return false
	}
	return pos == 0 || !isLexIdentByte(text[pos-1])
}

func isLexIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
