package workspace

import "strings"

// splitFrontmatter splits a markdown document into its metadata header and
// body. The header is the YAML block between the leading "---" line and the
// next "---" line. Returns ok=false when the document has no header, in which
// case the whole content is the body.
func splitFrontmatter(content string) (header, body string, ok bool) {
	if !strings.HasPrefix(content, "---") {
		return "", content, false
	}
	rest := content[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", content, false
	}
	header = rest[:end]
	body = rest[end+len("\n---"):]
	// Drop the remainder of the closing delimiter line.
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return header, strings.TrimSpace(body), true
}
