package pysig

import "strings"

// parseLiteral resolves a default expression to a literal value. Only plain
// literals resolve: numbers, strings, booleans, None, and lists or dicts of
// literals. Anything else (names, calls, unary minus, f-strings) returns nil,
// which callers treat as "no default" rather than an error.
func parseLiteral(src string) *Literal {
	s := strings.TrimSpace(src)
	if s == "" {
		return nil
	}

	switch s {
	case "True":
		return &Literal{Kind: LiteralBool, Bool: true}
	case "False":
		return &Literal{Kind: LiteralBool, Bool: false}
	case "None":
		return &Literal{Kind: LiteralNull}
	}

	switch s[0] {
	case '\'', '"':
		if val, ok := parseQuoted(s); ok {
			return &Literal{Kind: LiteralString, Str: val}
		}
		return nil
	case '[':
		return parseListLiteral(s)
	case '{':
		return parseObjectLiteral(s)
	}

	if isNumeral(s) {
		return &Literal{Kind: LiteralNumber, Num: s}
	}
	return nil
}

func parseListLiteral(s string) *Literal {
	if !strings.HasSuffix(s, "]") {
		return nil
	}
	lit := &Literal{Kind: LiteralList}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return lit
	}
	for _, part := range splitTopLevel(inner, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue // trailing comma
		}
		el := parseLiteral(part)
		if el == nil {
			return nil
		}
		lit.List = append(lit.List, *el)
	}
	return lit
}

// parseObjectLiteral parses a dict display. Keys must be string literals so
// the resolved object can round-trip through JSON rendering.
func parseObjectLiteral(s string) *Literal {
	if !strings.HasSuffix(s, "}") {
		return nil
	}
	lit := &Literal{Kind: LiteralObject}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return lit
	}
	for _, part := range splitTopLevel(inner, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := splitTopLevel(part, ':')
		if len(kv) != 2 {
			return nil // set display, or nested colon confusion
		}
		key := parseLiteral(strings.TrimSpace(kv[0]))
		if key == nil || key.Kind != LiteralString {
			return nil
		}
		val := parseLiteral(strings.TrimSpace(kv[1]))
		if val == nil {
			return nil
		}
		lit.Object = append(lit.Object, ObjectField{Key: key.Str, Value: *val})
	}
	return lit
}

// parseQuoted decodes a quoted string expression. The whole input must be one
// string: a closing quote followed by anything else fails.
func parseQuoted(s string) (string, bool) {
	q := s[0]
	delimLen := 1
	if len(s) >= 3 && s[1] == q && s[2] == q {
		delimLen = 3
	}

	var b strings.Builder
	i := delimLen
	for i < len(s) {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			next := s[i+1]
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '\'', '"':
				b.WriteByte(next)
			default:
				// Python keeps unknown escapes verbatim.
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			i += 2
			continue
		}
		if c == q {
			if delimLen == 1 {
				return b.String(), i == len(s)-1
			}
			if i+2 < len(s) && s[i+1] == q && s[i+2] == q {
				return b.String(), i+3 == len(s)
			}
			// Lone quote character inside a triple-quoted string.
			b.WriteByte(c)
			i++
			continue
		}
		b.WriteByte(c)
		i++
	}
	return "", false
}

// isNumeral reports whether s is a Python numeric literal: decimal integers
// and floats (underscore separators, optional exponent) plus hex, octal and
// binary integers. A leading sign is an operator, not part of the literal.
func isNumeral(s string) bool {
	if s == "" {
		return false
	}
	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			return allDigits(s[2:], isHexDigit)
		case 'o', 'O':
			return allDigits(s[2:], func(c byte) bool { return c >= '0' && c <= '7' })
		case 'b', 'B':
			return allDigits(s[2:], func(c byte) bool { return c == '0' || c == '1' })
		}
	}

	i := 0
	hasDigit := false
	run := func() bool {
		start := i
		for i < len(s) && (isDigit(s[i]) || s[i] == '_') {
			if isDigit(s[i]) {
				hasDigit = true
			}
			i++
		}
		return i > start
	}

	run()
	if i < len(s) && s[i] == '.' {
		i++
		run()
	}
	if !hasDigit {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		hasDigit = false
		run()
		if !hasDigit {
			return false
		}
	}
	return i == len(s)
}

func allDigits(s string, valid func(byte) bool) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			continue
		}
		if !valid(s[i]) {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// splitTopLevel splits s on sep, ignoring separators nested inside brackets
// or string literals.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '\'', '"':
			i = skipString(s, i)
		default:
			if c == sep && depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// skipString returns the index of the last byte of the string literal
// starting at i. Unterminated strings run to the end of the input.
func skipString(s string, i int) int {
	q := s[i]
	delimLen := 1
	if i+2 < len(s) && s[i+1] == q && s[i+2] == q {
		delimLen = 3
	}
	j := i + delimLen
	for j < len(s) {
		switch {
		case s[j] == '\\':
			j += 2
		case s[j] == q && delimLen == 1:
			return j
		case s[j] == q && j+2 < len(s) && s[j+1] == q && s[j+2] == q:
			return j + 2
		default:
			j++
		}
	}
	return len(s) - 1
}
