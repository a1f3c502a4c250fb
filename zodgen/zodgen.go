// Package zodgen maps extracted type annotations to the Zod schema
// expressions embedded in generated tool adapters.
package zodgen

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/loomworks/loom/pysig"
)

var (
	optionalRE = regexp.MustCompile(`^Optional\[(.+)\]`)
	listRE     = regexp.MustCompile(`(?i)^List\[(.+)\]`)
	dictRE     = regexp.MustCompile(`(?i)^Dict\[(.+),\s*(.+)\]`)
)

// basicSchemas is the fixed mapping for unparameterized type tokens. Tokens
// outside the table produce an any() schema.
var basicSchemas = map[string]string{
	"str":   "tool.schema.string()",
	"int":   "tool.schema.number().int()",
	"float": "tool.schema.number()",
	"bool":  "tool.schema.boolean()",
	"Any":   "tool.schema.any()",
	"dict":  "tool.schema.object()",
	"list":  "tool.schema.array(tool.schema.any())",
	"Dict":  "tool.schema.object()",
	"List":  "tool.schema.array(tool.schema.any())",
}

// Synthesize converts a type annotation and resolved literal default into a
// schema expression. The same inputs always yield the same text. A null
// default means the parameter defaults to no value, so no clause is added.
func Synthesize(hint string, def *pysig.Literal) string {
	expr := convert(hint)
	if def != nil && def.Kind != pysig.LiteralNull {
		expr += ".default(" + renderLiteral(*def) + ")"
	}
	return expr
}

func convert(hint string) string {
	if hint == "" {
		return "tool.schema.any()"
	}

	if m := optionalRE.FindStringSubmatch(hint); m != nil {
		inner := strings.TrimSpace(m[1])
		if !strings.Contains(inner, "None") {
			return basic(inner) + ".optional()"
		}
	}

	if strings.Contains(hint, "Union[") {
		inner := unionBody(hint)
		var arms []string
		for _, t := range strings.Split(inner, ",") {
			if t = strings.TrimSpace(t); t != "None" {
				arms = append(arms, basic(t))
			}
		}
		if len(arms) == 0 {
			return "tool.schema.any()"
		}
		return "tool.schema.union([" + strings.Join(arms, ", ") + "])"
	}

	if m := listRE.FindStringSubmatch(hint); m != nil {
		return "tool.schema.array(" + basic(strings.TrimSpace(m[1])) + ")"
	}

	if dictRE.MatchString(hint) {
		return "tool.schema.object()"
	}

	return basic(hint)
}

// unionBody slices the text between the first '[' and the last ']'. Union
// arms are split on bare commas; nested generics inside a union degrade to
// any() via the basic table rather than recursing.
func unionBody(hint string) string {
	open := strings.Index(hint, "[")
	if open < 0 {
		return ""
	}
	end := strings.LastIndex(hint, "]")
	if end < 0 {
		end = len(hint) - 1
	}
	if end <= open {
		return ""
	}
	return hint[open+1 : end]
}

func basic(token string) string {
	if schema, ok := basicSchemas[strings.TrimSpace(token)]; ok {
		return schema
	}
	return "tool.schema.any()"
}

func renderLiteral(lit pysig.Literal) string {
	switch lit.Kind {
	case pysig.LiteralString:
		return strconv.Quote(lit.Str)
	case pysig.LiteralBool:
		if lit.Bool {
			return "true"
		}
		return "false"
	case pysig.LiteralNumber:
		return lit.Num
	case pysig.LiteralList:
		parts := make([]string, len(lit.List))
		for i, el := range lit.List {
			parts[i] = renderLiteral(el)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case pysig.LiteralObject:
		parts := make([]string, len(lit.Object))
		for i, f := range lit.Object {
			parts[i] = strconv.Quote(f.Key) + ": " + renderLiteral(f.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "null"
}
