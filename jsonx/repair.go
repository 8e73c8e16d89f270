package jsonx

import "strings"

// lexer tracks whether a byte stream is inside a JSON string literal. Only
// ASCII bytes are significant, so scanning bytes is safe for UTF-8 input.
type lexer struct {
	inString bool
	escaped  bool
}

// step consumes c and reports whether it is structural, i.e. outside a string
// literal and not the quote that opens one.
func (l *lexer) step(c byte) bool {
	if l.inString {
		switch {
		case l.escaped:
			l.escaped = false
		case c == '\\':
			l.escaped = true
		case c == '"':
			l.inString = false
		}
		return false
	}
	if c == '"' {
		l.inString = true
		return false
	}
	return true
}

func closerFor(c byte) byte {
	if c == '{' {
		return '}'
	}
	return ']'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// BalancedSpan returns the substring from the first '{' or '[' to its matching
// closer. Brackets inside string literals are ignored. It reports false when
// the span never closes or a closer does not match its opener.
func BalancedSpan(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}
	var lx lexer
	var stack []byte
	for i := start; i < len(text); i++ {
		c := text[i]
		if !lx.step(c) {
			continue
		}
		switch c {
		case '{', '[':
			stack = append(stack, closerFor(c))
		case '}', ']':
			if stack[len(stack)-1] != c {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// TrimTrailingCommas drops commas that are followed only by whitespace and a
// closing bracket.
func TrimTrailingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	var lx lexer
	for i := 0; i < len(text); i++ {
		c := text[i]
		if lx.step(c) && c == ',' {
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// CloseStrings terminates a string literal left open at the end of text. A
// dangling escape backslash is dropped first.
func CloseStrings(text string) string {
	var lx lexer
	for i := 0; i < len(text); i++ {
		lx.step(text[i])
	}
	if !lx.inString {
		return text
	}
	if lx.escaped {
		text = text[:len(text)-1]
	}
	return text + `"`
}

// CloseBrackets appends the closers for every bracket still open at the end of
// text, then trims any trailing comma the closers exposed. Text with a
// mismatched closer is returned unchanged.
func CloseBrackets(text string) string {
	var lx lexer
	var stack []byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !lx.step(c) {
			continue
		}
		switch c {
		case '{', '[':
			stack = append(stack, closerFor(c))
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return text
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + len(stack))
	b.WriteString(strings.TrimRight(text, " \t\r\n"))
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return TrimTrailingCommas(b.String())
}
