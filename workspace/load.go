// Package workspace loads the declarative definitions a transpilation run
// operates on: skills, agents, message servers, callable tools and rule
// documents. Loading is purely syntactic; a malformed document excludes only
// itself and surfaces as a diagnostic while the rest of the run continues.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/loomworks/loom/diag"
)

// Layout of a definition tree relative to the workspace dir.
const (
	agentsDir  = "agents"
	serversDir = "mcp-servers"
	skillsDir  = "skills"
	toolsDir   = "tools"
	rulesDir   = "rules"
)

// Load reads every definition under dir: agents/*.yaml, mcp-servers/*.json,
// skills/<name>/SKILL.md, tools/<name>/tool.yaml and rules/<category>/*.md.
// Missing subdirectories are fine. The returned diagnostics carry one entry
// per excluded or suspicious definition; the error is reserved for an
// unusable workspace dir.
func Load(dir string) (*Workspace, []diag.Diagnostic, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("workspace dir: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("workspace dir %s is not a directory", dir)
	}

	ws := &Workspace{Dir: dir}
	var diags []diag.Diagnostic

	diags = append(diags, loadAgents(dir, ws)...)
	diags = append(diags, loadServers(dir, ws)...)
	diags = append(diags, loadSkills(dir, ws)...)
	diags = append(diags, loadTools(dir, ws)...)
	diags = append(diags, loadRules(dir, ws)...)

	return ws, diags, nil
}

func loadAgents(dir string, ws *Workspace) []diag.Diagnostic {
	var diags []diag.Diagnostic
	seen := make(map[string]bool)

	for _, path := range glob(dir, agentsDir, "*.yaml") {
		data, err := os.ReadFile(path) // #nosec G304 -- path from workspace glob
		if err != nil {
			diags = append(diags, parseDiag(path, "Failed to read agent: %v", err))
			continue
		}

		var a Agent
		if err := yaml.Unmarshal(data, &a); err != nil {
			diags = append(diags, parseDiag(path, "Failed to parse agent: %v", err))
			continue
		}
		if a.Name == "" {
			a.Name = stem(path)
		}

		valid := true
		for tool, perm := range a.Tools {
			if !perm.Valid() {
				diags = append(diags, parseDiag(path, "Agent %q: tool %q has unknown permission %q", a.Name, tool, perm))
				valid = false
			}
		}
		if !valid {
			continue
		}

		if seen[a.Name] {
			diags = append(diags, parseDiag(path, "Duplicate agent name %q", a.Name))
			continue
		}
		seen[a.Name] = true

		a.Path = path
		ws.Agents = append(ws.Agents, a)
	}

	sort.Slice(ws.Agents, func(i, j int) bool { return ws.Agents[i].Name < ws.Agents[j].Name })
	return diags
}

// serverDoc is the flat on-disk shape of a server definition. JSON is read
// leniently: comments and trailing commas are tolerated because server
// documents are maintained by hand.
type serverDoc struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Command     []string          `json:"command"`
	Environment map[string]string `json:"environment"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers"`
	OAuth       map[string]any    `json:"oauth"`
	Enabled     *bool             `json:"enabled"`
	Timeout     int               `json:"timeout"`
}

func loadServers(dir string, ws *Workspace) []diag.Diagnostic {
	var diags []diag.Diagnostic
	seen := make(map[string]bool)

	for _, path := range glob(dir, serversDir, "*.json") {
		data, err := os.ReadFile(path) // #nosec G304 -- path from workspace glob
		if err != nil {
			diags = append(diags, parseDiag(path, "Failed to read server: %v", err))
			continue
		}

		std, err := hujson.Standardize(data)
		if err != nil {
			diags = append(diags, parseDiag(path, "Failed to parse server: %v", err))
			continue
		}
		var doc serverDoc
		if err := json.Unmarshal(std, &doc); err != nil {
			diags = append(diags, parseDiag(path, "Failed to parse server: %v", err))
			continue
		}
		if doc.Name == "" {
			doc.Name = stem(path)
		}

		srv := Server{
			Name:    doc.Name,
			Enabled: doc.Enabled,
			Timeout: doc.Timeout,
			Path:    path,
		}
		switch ServerType(doc.Type) {
		case ServerLocal:
			if len(doc.Command) == 0 {
				diags = append(diags, parseDiag(path, "Server %q: local servers require a command", doc.Name))
				continue
			}
			srv.Type = ServerLocal
			srv.Local = &LocalServer{Command: doc.Command, Environment: doc.Environment}
		case ServerRemote:
			if doc.URL == "" {
				diags = append(diags, parseDiag(path, "Server %q: remote servers require a url", doc.Name))
				continue
			}
			srv.Type = ServerRemote
			srv.Remote = &RemoteServer{URL: doc.URL, Headers: doc.Headers, OAuth: doc.OAuth}
		default:
			diags = append(diags, parseDiag(path, "Server %q: type must be %q or %q, got %q", doc.Name, ServerLocal, ServerRemote, doc.Type))
			continue
		}

		if seen[srv.Name] {
			diags = append(diags, parseDiag(path, "Duplicate server name %q", srv.Name))
			continue
		}
		seen[srv.Name] = true

		ws.Servers = append(ws.Servers, srv)
	}

	sort.Slice(ws.Servers, func(i, j int) bool { return ws.Servers[i].Name < ws.Servers[j].Name })
	return diags
}

func loadSkills(dir string, ws *Workspace) []diag.Diagnostic {
	var diags []diag.Diagnostic
	seen := make(map[string]bool)

	for _, path := range glob(dir, skillsDir, "*/SKILL.md") {
		data, err := os.ReadFile(path) // #nosec G304 -- path from workspace glob
		if err != nil {
			diags = append(diags, parseDiag(path, "Failed to read skill: %v", err))
			continue
		}

		dirName := filepath.Base(filepath.Dir(path))
		header, body, ok := splitFrontmatter(string(data))

		var s Skill
		if ok {
			if err := yaml.Unmarshal([]byte(header), &s); err != nil {
				diags = append(diags, parseDiag(path, "Failed to parse skill header: %v", err))
				continue
			}
		}
		if s.Name == "" {
			s.Name = dirName
		}
		s.Body = strings.TrimSpace(body)
		s.Path = path

		if seen[s.Name] {
			diags = append(diags, parseDiag(path, "Duplicate skill name %q", s.Name))
			continue
		}
		seen[s.Name] = true

		ws.Skills = append(ws.Skills, s)
	}

	sort.Slice(ws.Skills, func(i, j int) bool { return ws.Skills[i].Name < ws.Skills[j].Name })
	return diags
}

// toolDoc is the on-disk shape of tool.yaml.
type toolDoc struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	Implementation struct {
		Entry string `yaml:"entry"`
	} `yaml:"implementation"`
	Exports []Export `yaml:"exports"`
}

func loadTools(dir string, ws *Workspace) []diag.Diagnostic {
	var diags []diag.Diagnostic
	seen := make(map[string]bool)

	for _, path := range glob(dir, toolsDir, "*/tool.yaml") {
		data, err := os.ReadFile(path) // #nosec G304 -- path from workspace glob
		if err != nil {
			diags = append(diags, parseDiag(path, "Failed to read tool: %v", err))
			continue
		}

		var doc toolDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			diags = append(diags, parseDiag(path, "Failed to parse tool: %v", err))
			continue
		}

		toolDir := filepath.Dir(path)
		if doc.Name == "" {
			doc.Name = filepath.Base(toolDir)
		}
		if doc.Implementation.Entry == "" {
			diags = append(diags, parseDiag(path, "Tool %q: implementation.entry is required", doc.Name))
			continue
		}
		if _, err := os.Stat(filepath.Join(toolDir, doc.Implementation.Entry)); err != nil {
			diags = append(diags, parseDiag(path, "Tool %q: implementation file %q not found", doc.Name, doc.Implementation.Entry))
			continue
		}

		valid := true
		for i, exp := range doc.Exports {
			switch exp.Kind {
			case ExportFunction, ExportClass:
			default:
				diags = append(diags, parseDiag(path, "Tool %q: exports[%d].type must be %q or %q, got %q", doc.Name, i, ExportFunction, ExportClass, exp.Kind))
				valid = false
			}
			if exp.Name == "" || exp.Object == "" {
				diags = append(diags, parseDiag(path, "Tool %q: exports[%d] requires name and object", doc.Name, i))
				valid = false
			}
		}
		if !valid {
			continue
		}

		if seen[doc.Name] {
			diags = append(diags, parseDiag(path, "Duplicate tool name %q", doc.Name))
			continue
		}
		seen[doc.Name] = true

		ws.Tools = append(ws.Tools, Tool{
			Name:        doc.Name,
			Description: doc.Description,
			Dir:         toolDir,
			Entry:       doc.Implementation.Entry,
			Exports:     doc.Exports,
			Path:        path,
		})
	}

	sort.Slice(ws.Tools, func(i, j int) bool { return ws.Tools[i].Name < ws.Tools[j].Name })
	return diags
}

func loadRules(dir string, ws *Workspace) []diag.Diagnostic {
	var diags []diag.Diagnostic
	seen := make(map[string]bool)

	for _, path := range glob(dir, rulesDir, "*/*.md") {
		data, err := os.ReadFile(path) // #nosec G304 -- path from workspace glob
		if err != nil {
			diags = append(diags, parseDiag(path, "Failed to read rule: %v", err))
			continue
		}

		_, body, _ := splitFrontmatter(string(data))
		r := Rule{
			Category: filepath.Base(filepath.Dir(path)),
			Name:     stem(path),
			Body:     strings.TrimSpace(body),
			Path:     path,
		}

		if seen[r.Ref()] {
			diags = append(diags, parseDiag(path, "Duplicate rule %q", r.Ref()))
			continue
		}
		seen[r.Ref()] = true

		ws.Rules = append(ws.Rules, r)
	}

	sort.Slice(ws.Rules, func(i, j int) bool { return ws.Rules[i].Ref() < ws.Rules[j].Ref() })
	return diags
}

// glob matches pattern under dir/sub and returns the hits in lexical order.
func glob(dir, sub, pattern string) []string {
	matches, err := doublestar.FilepathGlob(filepath.Join(dir, sub, pattern))
	if err != nil {
		// Patterns are compile-time constants; a malformed one is a bug.
		panic(fmt.Sprintf("workspace: bad glob pattern %q: %v", pattern, err))
	}
	sort.Strings(matches)
	return matches
}

func parseDiag(path, format string, args ...any) diag.Diagnostic {
	return diag.Diagnostic{
		Code:     "definition_parse",
		Severity: diag.SeverityError,
		Message:  fmt.Sprintf(format, args...),
		Path:     path,
	}
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
