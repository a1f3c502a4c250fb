package pysig

import (
	"regexp"
	"strings"
)

// argsSectionRE captures the indented block following an "Args:" line. The
// block extends through any run of lines that begin with whitespace and a
// word character, so blank lines inside the section are absorbed.
var argsSectionRE = regexp.MustCompile(`Args:\s*\n((?:\s+\w+[^\n]*\n?)*)`)

// paramDoc returns the description for name from the docstring's Args
// section, or "" when the section or the parameter is absent.
func paramDoc(docstring, name string) string {
	if docstring == "" {
		return ""
	}
	m := argsSectionRE.FindStringSubmatch(docstring)
	if m == nil {
		return ""
	}
	paramRE, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(name) + `:\s*([^\n]+)`)
	if err != nil {
		return ""
	}
	pm := paramRE.FindStringSubmatch(m[1])
	if pm == nil {
		return ""
	}
	return strings.TrimSpace(pm[1])
}

// cleanDocstring normalizes a docstring the way Python's inspect.cleandoc
// does: tabs expanded, the first line stripped of leading whitespace, the
// common indentation removed from the rest, and leading and trailing blank
// lines dropped.
func cleanDocstring(doc string) string {
	lines := strings.Split(expandTabs(doc), "\n")

	margin := -1
	for _, line := range lines[1:] {
		trimmed := strings.TrimLeft(line, " \r\v\f")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if margin < 0 || indent < margin {
			margin = indent
		}
	}

	lines[0] = strings.TrimLeft(lines[0], " \r\v\f")
	if margin > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) > margin {
				lines[i] = lines[i][margin:]
			} else {
				lines[i] = ""
			}
		}
	}

	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

func expandTabs(s string) string {
	if !strings.ContainsRune(s, '\t') {
		return s
	}
	var b strings.Builder
	col := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\t':
			for n := 8 - col%8; n > 0; n-- {
				b.WriteByte(' ')
				col++
			}
		case '\n', '\r':
			b.WriteByte(c)
			col = 0
		default:
			b.WriteByte(c)
			col++
		}
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
