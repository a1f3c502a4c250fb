package platform

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/loomworks/loom/diag"
)

// Published-schema allow-lists for opencode.json, keyed by record subtype.
// A field outside its record's list is stripped; a key the schema spells
// differently is coerced. Everything else passes through untouched.
var (
	openCodeTopAllow = map[string]bool{
		"$schema":      true,
		"mcp":          true,
		"agent":        true,
		"instructions": true,
		"tools":        true,
	}
	openCodeServerAllow = map[string]map[string]bool{
		"local": {
			"type":        true,
			"command":     true,
			"environment": true,
			"enabled":     true,
		},
		"remote": {
			"type":    true,
			"url":     true,
			"headers": true,
			"enabled": true,
		},
	}
	openCodeAgentAllow = map[string]bool{
		"description": true,
		"model":       true,
		"prompt":      true,
		"tools":       true,
	}
)

// Normalize rewrites doc in place so it fits the target platform's published
// schema: fields outside the allow-list for their record subtype are removed,
// and the definition-side "rules" key is re-expressed as the platform's
// "instructions" list. One warning per removal or coercion. Applying
// Normalize to its own output changes nothing and emits nothing. Documents
// without a published shape table pass through untouched.
func Normalize(doc *Document) []diag.Diagnostic {
	if doc.Filename != "opencode.json" {
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(doc.Body, &raw); err != nil {
		return []diag.Diagnostic{{
			Code:     "normalize_parse",
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("Cannot normalize: %v", err),
			Path:     doc.Filename,
		}}
	}

	var diags []diag.Diagnostic

	if rules, ok := raw["rules"]; ok {
		delete(raw, "rules")
		if _, clash := raw["instructions"]; clash {
			diags = append(diags, normWarn("normalize_strip", "rules",
				`Key "rules" dropped; "instructions" is already present`))
		} else {
			raw["instructions"] = rules
			diags = append(diags, normWarn("normalize_coerce", "rules",
				`Key "rules" re-expressed as "instructions"`))
		}
	}

	for _, key := range sortedKeys(raw) {
		if !openCodeTopAllow[key] {
			delete(raw, key)
			diags = append(diags, normWarn("normalize_strip", key,
				"Field %q is not in the published schema; removed", key))
		}
	}

	if mcp, ok := raw["mcp"].(map[string]any); ok {
		for _, name := range sortedKeys(mcp) {
			rec, ok := mcp[name].(map[string]any)
			if !ok {
				continue
			}
			typ, _ := rec["type"].(string)
			allow, known := openCodeServerAllow[typ]
			if !known {
				// Unknown subtype, no list to key by. Validation flags it.
				continue
			}
			for _, key := range sortedKeys(rec) {
				if !allow[key] {
					delete(rec, key)
					diags = append(diags, normWarn("normalize_strip", "mcp."+name+"."+key,
						"Field %q is not in the published schema for %s servers; removed", key, typ))
				}
			}
		}
	}

	if agents, ok := raw["agent"].(map[string]any); ok {
		for _, name := range sortedKeys(agents) {
			rec, ok := agents[name].(map[string]any)
			if !ok {
				continue
			}
			for _, key := range sortedKeys(rec) {
				if !openCodeAgentAllow[key] {
					delete(rec, key)
					diags = append(diags, normWarn("normalize_strip", "agent."+name+"."+key,
						"Field %q is not in the published schema for agents; removed", key))
				}
			}
		}
	}

	out := struct {
		Schema       any `json:"$schema,omitempty"`
		MCP          any `json:"mcp,omitempty"`
		Agent        any `json:"agent,omitempty"`
		Instructions any `json:"instructions,omitempty"`
		Tools        any `json:"tools,omitempty"`
	}{
		Schema:       raw["$schema"],
		MCP:          raw["mcp"],
		Agent:        raw["agent"],
		Instructions: raw["instructions"],
		Tools:        raw["tools"],
	}
	body, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return append(diags, diag.Diagnostic{
			Code:     "normalize_render",
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("Cannot re-render: %v", err),
			Path:     doc.Filename,
		})
	}
	doc.Body = append(body, '\n')
	return diags
}

func normWarn(code, path, format string, args ...any) diag.Diagnostic {
	return diag.Diagnostic{
		Code:     code,
		Severity: diag.SeverityWarning,
		Message:  fmt.Sprintf(format, args...),
		Path:     path,
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
