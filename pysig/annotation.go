package pysig

import "strings"

// canonicalAnnotation rewrites a type annotation into the canonical spelling
// used downstream: whitespace collapsed, PEP 604 unions rewritten as
// Union[...], forward-reference quotes preserved. Unparseable annotations
// degrade to Any rather than failing extraction.
func canonicalAnnotation(src string) string {
	p := &annotParser{src: src}
	out, ok := p.orExpr()
	p.skipSpace()
	if !ok || p.pos != len(p.src) {
		return "Any"
	}
	return out
}

type annotParser struct {
	src string
	pos int
}

func (p *annotParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *annotParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

// orExpr parses a '|' chain. PEP 604 unions fold pairwise from the left, so
// a | b | c becomes Union[Union[a, b], c].
func (p *annotParser) orExpr() (string, bool) {
	out, ok := p.term()
	if !ok {
		return "", false
	}
	for {
		p.skipSpace()
		if p.peek() != '|' {
			return out, true
		}
		p.pos++
		arm, ok := p.term()
		if !ok {
			return "", false
		}
		out = "Union[" + out + ", " + arm + "]"
	}
}

func (p *annotParser) term() (string, bool) {
	out, ok := p.atom()
	if !ok {
		return "", false
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '.':
			if strings.HasPrefix(p.src[p.pos:], "...") {
				return out, true
			}
			p.pos++
			p.skipSpace()
			name, ok := p.ident()
			if !ok {
				return "", false
			}
			out += "." + name
		case '[':
			args, ok := p.subscript()
			if !ok {
				return "", false
			}
			out += "[" + args + "]"
		default:
			return out, true
		}
	}
}

func (p *annotParser) atom() (string, bool) {
	p.skipSpace()
	c := p.peek()
	switch {
	case c == 0:
		return "", false
	case isIdentStart(c):
		return p.ident()
	case c == '\'' || c == '"':
		return p.stringAtom()
	case isDigit(c):
		return p.numberAtom(), true
	case c == '.':
		if strings.HasPrefix(p.src[p.pos:], "...") {
			p.pos += 3
			return "Ellipsis", true
		}
		return "", false
	case c == '[' || c == '(':
		// Callable parameter lists and other bracketed forms carry no
		// schema information, so they collapse to Any.
		if !p.skipBalanced() {
			return "", false
		}
		return "Any", true
	default:
		return "", false
	}
}

func (p *annotParser) ident() (string, bool) {
	start := p.pos
	if p.pos >= len(p.src) || !isIdentStart(p.src[p.pos]) {
		return "", false
	}
	p.pos++
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos], true
}

// stringAtom consumes a quoted forward reference and normalizes it to single
// quotes with the inner text kept verbatim.
func (p *annotParser) stringAtom() (string, bool) {
	q := p.src[p.pos]
	j := p.pos + 1
	for j < len(p.src) {
		if p.src[j] == '\\' {
			j += 2
			continue
		}
		if p.src[j] == q {
			inner := p.src[p.pos+1 : j]
			p.pos = j + 1
			return "'" + inner + "'", true
		}
		j++
	}
	return "", false
}

func (p *annotParser) numberAtom() string {
	start := p.pos
	for p.pos < len(p.src) && (isIdentPart(p.src[p.pos]) || p.src[p.pos] == '.') {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *annotParser) subscript() (string, bool) {
	p.pos++
	p.skipSpace()
	if p.peek() == ']' {
		p.pos++
		return "", true
	}
	var args []string
	for {
		arg, ok := p.orExpr()
		p.skipSpace()
		if !ok || (p.peek() != ',' && p.peek() != ']') {
			// Expressions the grammar does not cover (unary minus,
			// lambdas) degrade to Any for this argument only.
			if !p.skipArg() {
				return "", false
			}
			arg = "Any"
		}
		args = append(args, arg)
		if p.peek() != ',' {
			break
		}
		p.pos++
		p.skipSpace()
		if p.peek() == ']' {
			break
		}
	}
	if p.peek() != ']' {
		return "", false
	}
	p.pos++
	return strings.Join(args, ", "), true
}

// skipArg consumes input up to the next top-level ',' or the closing ']' of
// the current subscript.
func (p *annotParser) skipArg() bool {
	depth := 0
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			if depth == 0 {
				return true
			}
			depth--
		case ',':
			if depth == 0 {
				return true
			}
		case '\'', '"':
			p.pos = skipString(p.src, p.pos)
		}
		p.pos++
	}
	return false
}

func (p *annotParser) skipBalanced() bool {
	depth := 0
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
			if depth == 0 {
				p.pos++
				return true
			}
		case '\'', '"':
			p.pos = skipString(p.src, p.pos)
		}
		p.pos++
	}
	return false
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
