package platform

import (
	"fmt"
	"strings"

	"github.com/loomworks/loom/diag"
	"github.com/loomworks/loom/workspace"
)

// Claude renders CLAUDE.md, a single markdown document carrying every agent
// and rule inline. Nothing is dropped, so shaping never warns; permissions
// and servers are listed informationally rather than enforced.
type Claude struct{}

func (*Claude) Name() string { return "claude" }

func (*Claude) Filename() string { return "CLAUDE.md" }

func (*Claude) Generate(ws *workspace.Workspace) (*Document, []diag.Diagnostic, error) {
	sections := []string{"# Agent Workspace for Claude Code\n"}

	for _, a := range ws.Agents {
		sections = append(sections, fmt.Sprintf("## %s\n", a.Name))
		sections = append(sections, fmt.Sprintf("**Description:** %s\n", a.Description))

		if a.SystemPrompt != "" {
			sections = append(sections, strings.TrimRight(a.SystemPrompt, "\n")+"\n")
		}
		if len(a.Skills) > 0 {
			var b strings.Builder
			b.WriteString("### Available Skills\n")
			for _, s := range a.Skills {
				fmt.Fprintf(&b, "- %s\n", s)
			}
			sections = append(sections, b.String())
		}
		if len(a.MCPServers) > 0 {
			var b strings.Builder
			b.WriteString("### MCP Servers\n")
			for _, s := range a.MCPServers {
				fmt.Fprintf(&b, "- %s\n", s)
			}
			sections = append(sections, b.String())
		}
	}

	if len(ws.Rules) > 0 {
		sections = append(sections, "## Rules\n")
		for _, r := range ws.Rules {
			sections = append(sections, fmt.Sprintf("### %s\n%s\n", r.Ref(), r.Body))
		}
	}

	return &Document{
		Filename: "CLAUDE.md",
		Body:     []byte(strings.Join(sections, "\n")),
	}, nil, nil
}
