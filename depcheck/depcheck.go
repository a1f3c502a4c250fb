// Package depcheck cross-references the dependencies skills and agents
// declare against the definitions actually loaded. Every check is a pure set
// difference at the declaration site: nothing resolves transitively, so a
// skill with a missing server is reported even when no agent uses the skill,
// and an agent using that skill is not.
package depcheck

import (
	"fmt"
	"sort"

	"github.com/loomworks/loom/diag"
	"github.com/loomworks/loom/workspace"
)

// SkillReport lists a skill's declared dependencies with no loaded
// definition behind them.
type SkillReport struct {
	Skill   string
	Path    string
	Servers []string
	Tools   []string
}

// AgentReport lists an agent's declared dependencies with no loaded
// definition behind them.
type AgentReport struct {
	Agent   string
	Path    string
	Skills  []string
	Servers []string
	Rules   []string
}

// Report aggregates missing references per declaration site. Sites with
// nothing missing are absent.
type Report struct {
	Skills []SkillReport
	Agents []AgentReport
}

// Clean reports whether every declared dependency resolved.
func (r *Report) Clean() bool {
	return len(r.Skills) == 0 && len(r.Agents) == 0
}

// Check resolves every declared reference in ws. Sites appear in name order;
// each missing list is sorted with duplicates collapsed.
func Check(ws *workspace.Workspace) *Report {
	servers := ws.ServerNames()
	tools := ws.ToolNames()
	skills := ws.SkillNames()
	rules := ws.RuleRefs()

	report := &Report{}
	for _, s := range ws.Skills {
		sr := SkillReport{
			Skill:   s.Name,
			Path:    s.Path,
			Servers: missing(s.MCPServers, servers),
			Tools:   missing(s.CustomTools, tools),
		}
		if len(sr.Servers) > 0 || len(sr.Tools) > 0 {
			report.Skills = append(report.Skills, sr)
		}
	}
	for _, a := range ws.Agents {
		ar := AgentReport{
			Agent:   a.Name,
			Path:    a.Path,
			Skills:  missing(a.Skills, skills),
			Servers: missing(a.MCPServers, servers),
			Rules:   missing(a.Rules, rules),
		}
		if len(ar.Skills) > 0 || len(ar.Servers) > 0 || len(ar.Rules) > 0 {
			report.Agents = append(report.Agents, ar)
		}
	}
	return report
}

// Diagnostics renders the report as one error diagnostic per missing
// reference, in report order.
func (r *Report) Diagnostics() []diag.Diagnostic {
	var diags []diag.Diagnostic
	add := func(path, format string, args ...any) {
		diags = append(diags, diag.Diagnostic{
			Code:     "dependency_missing",
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf(format, args...),
			Path:     path,
		})
	}

	for _, sr := range r.Skills {
		for _, name := range sr.Servers {
			add(sr.Path, "Skill %q references unknown MCP server %q", sr.Skill, name)
		}
		for _, name := range sr.Tools {
			add(sr.Path, "Skill %q references unknown custom tool %q", sr.Skill, name)
		}
	}
	for _, ar := range r.Agents {
		for _, name := range ar.Skills {
			add(ar.Path, "Agent %q references unknown skill %q", ar.Agent, name)
		}
		for _, name := range ar.Servers {
			add(ar.Path, "Agent %q references unknown MCP server %q", ar.Agent, name)
		}
		for _, name := range ar.Rules {
			add(ar.Path, "Agent %q references unknown rule %q", ar.Agent, name)
		}
	}
	return diags
}

func missing(declared []string, known map[string]bool) []string {
	var out []string
	seen := make(map[string]bool, len(declared))
	for _, name := range declared {
		if !known[name] && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
