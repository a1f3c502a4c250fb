package pysig

import "strings"

// Extract scans Python source and returns the signatures of module-level
// functions and of methods on module-level classes, in source order. Methods
// are named "Class.method". The scan is purely syntactic: the source is
// never executed and imports are never resolved.
//
// Nested functions, async functions, and the __init__ and __repr__ methods
// are not signature material. Two definitions with the same name keep the
// first position and the last signature, matching how repeated assignment
// behaves at runtime.
func Extract(src []byte) ([]Signature, error) {
	s := &scanner{
		lines: strings.Split(string(src), "\n"),
		index: make(map[string]int),
	}
	if err := s.run(); err != nil {
		return nil, err
	}
	return s.sigs, nil
}

const (
	blockClass = 'c'
	blockFunc  = 'f'
)

// block is an open class or def suite. The suite is closed when a
// significant line appears at or left of its indent.
type block struct {
	kind   byte
	name   string
	indent int
}

type scanner struct {
	lines []string
	ln    int
	sigs  []Signature
	index map[string]int
	stack []block

	depth     int    // open bracket depth outside strings
	backslash bool   // previous line ended with a line continuation
	delim     string // open triple-quote delimiter, "" when outside
	delimLine int    // 1-based line the open string started on
}

func (s *scanner) run() error {
	for s.ln = 0; s.ln < len(s.lines); s.ln++ {
		line := strings.TrimSuffix(s.lines[s.ln], "\r")

		if s.delim != "" {
			if _, after, ok := closeString(line, s.delim); ok {
				s.delim = ""
				s.scanFragment(after)
			}
			continue
		}
		if s.depth > 0 || s.backslash {
			s.scanFragment(line)
			continue
		}

		indent, content := splitIndent(line)
		if content == "" || content[0] == '#' {
			continue
		}
		s.popTo(indent)

		if rest, ok := keywordRest(content, "class"); ok {
			if name := leadingIdent(rest); name != "" {
				s.stack = append(s.stack, block{kind: blockClass, name: name, indent: indent})
			}
			s.scanFragment(content)
			continue
		}
		if isDefLine(content) {
			if err := s.handleDef(indent, content); err != nil {
				return err
			}
			continue
		}
		s.scanFragment(content)
	}

	if s.delim != "" {
		return &ExtractionError{Line: s.delimLine, Msg: "unterminated triple-quoted string"}
	}
	return nil
}

func (s *scanner) popTo(indent int) {
	for len(s.stack) > 0 && s.stack[len(s.stack)-1].indent >= indent {
		s.stack = s.stack[:len(s.stack)-1]
	}
}

func isDefLine(content string) bool {
	if _, ok := keywordRest(content, "def"); ok {
		return true
	}
	rest, ok := keywordRest(content, "async")
	if !ok {
		return false
	}
	_, ok = keywordRest(rest, "def")
	return ok
}

func (s *scanner) handleDef(indent int, content string) error {
	defLine := s.ln + 1
	rest := content
	async := false
	if r, ok := keywordRest(rest, "async"); ok {
		async = true
		rest = r
	}
	rest, _ = keywordRest(rest, "def")

	name := leadingIdent(rest)
	if name == "" {
		return &ExtractionError{Line: defLine, Msg: "malformed def header"}
	}

	// Accumulate physical lines until the parameter list closes and the
	// suite colon appears outside all brackets.
	header := rest[len(name):]
	var params, ret, trailing string
	for {
		p, r, t, ok := splitHeader(header)
		if ok {
			params, ret, trailing = p, r, t
			break
		}
		s.ln++
		if s.ln >= len(s.lines) {
			return &ExtractionError{Line: defLine, Msg: "unterminated def header"}
		}
		header += "\n" + strings.TrimSuffix(s.lines[s.ln], "\r")
	}

	record := false
	fullName := name
	if !async {
		switch {
		case len(s.stack) == 0:
			record = true
		case len(s.stack) == 1 && s.stack[0].kind == blockClass:
			if name != "__init__" && name != "__repr__" {
				record = true
				fullName = s.stack[0].name + "." + name
			}
		}
	}

	s.stack = append(s.stack, block{kind: blockFunc, name: name, indent: indent})

	if !record {
		s.scanFragment(trailing)
		return nil
	}

	sig := Signature{Name: fullName, Params: parseParams(params)}
	if ret != "" {
		sig.ReturnType = canonicalAnnotation(ret)
	}

	inline := trailing != "" && !strings.HasPrefix(trailing, "#")
	if inline {
		s.scanFragment(trailing)
	} else {
		doc, err := s.captureDocstring(indent)
		if err != nil {
			return err
		}
		if doc != "" {
			sig.Docstring = cleanDocstring(doc)
			sig.Description = firstLine(sig.Docstring)
			for i := range sig.Params {
				sig.Params[i].Description = paramDoc(sig.Docstring, sig.Params[i].Name)
			}
		}
	}

	s.record(sig)
	return nil
}

func (s *scanner) record(sig Signature) {
	if i, ok := s.index[sig.Name]; ok {
		s.sigs[i] = sig
		return
	}
	s.index[sig.Name] = len(s.sigs)
	s.sigs = append(s.sigs, sig)
}

// captureDocstring looks ahead for a string statement opening the suite of
// the def at defIndent. Lines are consumed only when a docstring is found.
func (s *scanner) captureDocstring(defIndent int) (string, error) {
	ln := s.ln + 1
	for ; ln < len(s.lines); ln++ {
		line := strings.TrimSuffix(s.lines[ln], "\r")
		indent, content := splitIndent(line)
		if content == "" || content[0] == '#' {
			continue
		}
		if indent <= defIndent {
			return "", nil
		}
		raw, qpos, ok := stringPrefix(content)
		if !ok {
			return "", nil
		}

		t := content[qpos:]
		delim, rest, closed := scanStringFrom(t)
		if closed {
			inner := t[len(delim) : len(t)-len(rest)-len(delim)]
			s.ln = ln
			s.scanFragment(rest)
			return unescapeDoc(inner, raw), nil
		}

		parts := []string{t[len(delim):]}
		for j := ln + 1; ; j++ {
			if j >= len(s.lines) {
				return "", &ExtractionError{Line: ln + 1, Msg: "unterminated triple-quoted string"}
			}
			l := strings.TrimSuffix(s.lines[j], "\r")
			before, after, ok := closeString(l, delim)
			if !ok {
				parts = append(parts, l)
				continue
			}
			parts = append(parts, before)
			s.ln = j
			s.scanFragment(after)
			return unescapeDoc(strings.Join(parts, "\n"), raw), nil
		}
	}
	return "", nil
}

// scanFragment advances bracket and string state across a piece of one
// physical line. A triple-quoted string left open records its delimiter so
// following lines are treated as string content.
func (s *scanner) scanFragment(text string) {
	s.backslash = false
	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case '#':
			return
		case '(', '[', '{':
			s.depth++
		case ')', ']', '}':
			if s.depth > 0 {
				s.depth--
			}
		case '\'', '"':
			delim, rest, closed := scanStringFrom(text[i:])
			if !closed {
				s.delim = delim
				s.delimLine = s.ln + 1
				return
			}
			i = len(text) - len(rest) - 1
		case '\\':
			if i == len(text)-1 {
				s.backslash = true
				return
			}
			i++
		}
	}
}

// splitHeader examines an accumulated def header (the text after the
// function name) and, once complete, splits it into the parameter list, the
// return annotation, and any trailing text after the colon.
func splitHeader(h string) (params, ret, trailing string, ok bool) {
	depth := 0
	paramStart, paramEnd := -1, -1
	for i := 0; i < len(h); i++ {
		switch c := h[i]; c {
		case '(', '[', '{':
			if depth == 0 && paramStart < 0 && c == '(' {
				paramStart = i + 1
			}
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 && paramStart >= 0 && paramEnd < 0 && c == ')' {
				paramEnd = i
			}
		case '\'', '"':
			i = skipString(h, i)
		case '#':
			j := strings.IndexByte(h[i:], '\n')
			if j < 0 {
				i = len(h)
			} else {
				i += j
			}
		case ':':
			if depth == 0 && paramEnd >= 0 {
				ret = strings.TrimSpace(h[paramEnd+1 : i])
				ret = strings.TrimSpace(strings.TrimPrefix(ret, "->"))
				return h[paramStart:paramEnd], ret, strings.TrimSpace(h[i+1:]), true
			}
		}
	}
	return "", "", "", false
}

// parseParams splits a parameter list into exposed parameters. Keyword-only
// and variadic parameters (everything from the first '*' on) are dropped,
// as are self and cls.
func parseParams(list string) []Param {
	var params []Param
	for _, part := range splitTopLevel(list, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part[0] == '*' {
			break
		}
		if part == "/" {
			continue
		}

		eq := splitTopLevel(part, '=')
		var def *Literal
		if len(eq) > 1 {
			def = parseLiteral(strings.Join(eq[1:], "="))
		}
		colon := splitTopLevel(eq[0], ':')
		name := strings.TrimSpace(colon[0])
		if name == "self" || name == "cls" || !isIdentifier(name) {
			continue
		}

		p := Param{Name: name, Default: def}
		if len(colon) > 1 {
			p.Type = canonicalAnnotation(strings.Join(colon[1:], ":"))
		}
		params = append(params, p)
	}
	return params
}

// scanStringFrom consumes a string literal starting at t[0]. Unterminated
// short strings run to the end of the line; an unterminated triple-quoted
// string reports closed=false so the caller can carry the delimiter forward.
func scanStringFrom(t string) (delim, rest string, closed bool) {
	q := t[0]
	delim = t[:1]
	if len(t) >= 3 && t[1] == q && t[2] == q {
		delim = t[:3]
	}
	for j := len(delim); j < len(t); j++ {
		if t[j] == '\\' {
			j++
			continue
		}
		if strings.HasPrefix(t[j:], delim) {
			return delim, t[j+len(delim):], true
		}
	}
	if len(delim) == 1 {
		return delim, "", true
	}
	return delim, "", false
}

// closeString finds the closing delimiter on a continuation line of an open
// string and returns the text on either side of it.
func closeString(line, delim string) (before, after string, ok bool) {
	for j := 0; j < len(line); j++ {
		if line[j] == '\\' {
			j++
			continue
		}
		if strings.HasPrefix(line[j:], delim) {
			return line[:j], line[j+len(delim):], true
		}
	}
	return "", "", false
}

// stringPrefix reports whether content begins a plain string literal,
// allowing r and u prefixes. Bytes and f-strings are not docstrings.
func stringPrefix(content string) (raw bool, qpos int, ok bool) {
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case 'r', 'R':
			raw = true
		case 'u', 'U':
		case '\'', '"':
			return raw, i, true
		default:
			return false, 0, false
		}
	}
	return false, 0, false
}

func unescapeDoc(s string, raw bool) string {
	if raw || !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '\'', '"':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func keywordRest(s, kw string) (string, bool) {
	if !strings.HasPrefix(s, kw) {
		return "", false
	}
	rest := s[len(kw):]
	if rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return "", false
	}
	return strings.TrimLeft(rest, " \t"), true
}

func leadingIdent(s string) string {
	if s == "" || !isIdentStart(s[0]) {
		return ""
	}
	i := 1
	for i < len(s) && isIdentPart(s[i]) {
		i++
	}
	return s[:i]
}

func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}

func splitIndent(line string) (int, string) {
	col := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case ' ':
			col++
		case '\t':
			col += 8 - col%8
		default:
			return col, line[i:]
		}
	}
	return col, ""
}
