package workspace_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loomworks/loom/diag"
	"github.com/loomworks/loom/workspace"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadFullWorkspace(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "agents", "coder.yaml"), `name: coder
description: Implements features
model:
  provider: anthropic
  model: claude-sonnet
tools:
  edit: allow
  bash: ask
  deploy: deny
skills:
  - pair-programming
mcp_servers:
  - web
rules:
  - coding/style
system_prompt: You are a careful coder.
`)

	// Comments and a trailing comma exercise the lenient JSON reader.
	writeFile(t, filepath.Join(dir, "mcp-servers", "web.json"), `{
  // search backend
  "name": "web",
  "type": "local",
  "command": ["npx", "web-server"],
  "environment": {"API_KEY": "x"},
  "enabled": true,
}`)
	writeFile(t, filepath.Join(dir, "mcp-servers", "db.json"), `{
  "name": "db",
  "type": "remote",
  "url": "https://db.example.com/mcp",
  "headers": {"Authorization": "Bearer t"}
}`)

	writeFile(t, filepath.Join(dir, "skills", "pair-programming", "SKILL.md"), `---
name: pair-programming
description: Structured pairing sessions
mcp_servers:
  - web
custom_tools:
  - pomodoro-timer
allowed_tools:
  - edit
---

# Pair Programming

Work in short rounds.
`)

	writeFile(t, filepath.Join(dir, "tools", "pomodoro-timer", "tool.yaml"), `name: pomodoro-timer
description: Timed coding rounds
implementation:
  entry: script.py
exports:
  - type: class
    name: timer
    object: PomodoroTimer
    methods: [start, stop]
`)
	writeFile(t, filepath.Join(dir, "tools", "pomodoro-timer", "script.py"), "def noop():\n    pass\n")

	writeFile(t, filepath.Join(dir, "rules", "coding", "style.md"), `---
description: Style rules
---

Use small functions.
`)
	writeFile(t, filepath.Join(dir, "rules", "process", "reviews.md"), "Always request review.\n")

	ws, diags, err := workspace.Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("Load() diagnostics = %v, want none", diags)
	}

	if len(ws.Agents) != 1 {
		t.Fatalf("agents = %d, want 1", len(ws.Agents))
	}
	a := ws.Agents[0]
	if a.Name != "coder" || a.Model.Provider != "anthropic" || a.Model.Model != "claude-sonnet" {
		t.Fatalf("agent = %+v", a)
	}
	if a.Tools["bash"] != workspace.PermissionAsk {
		t.Fatalf("agent tools[bash] = %q, want ask", a.Tools["bash"])
	}

	if len(ws.Servers) != 2 {
		t.Fatalf("servers = %d, want 2", len(ws.Servers))
	}
	// Sorted by name: db first.
	db, web := ws.Servers[0], ws.Servers[1]
	if db.Type != workspace.ServerRemote || db.Remote == nil || db.Remote.URL != "https://db.example.com/mcp" {
		t.Fatalf("db server = %+v", db)
	}
	if db.Remote.Headers["Authorization"] != "Bearer t" {
		t.Fatalf("db headers = %v", db.Remote.Headers)
	}
	if web.Type != workspace.ServerLocal || web.Local == nil {
		t.Fatalf("web server = %+v", web)
	}
	if got := web.Local.Command; len(got) != 2 || got[0] != "npx" {
		t.Fatalf("web command = %v", got)
	}
	if web.Enabled == nil || !*web.Enabled {
		t.Fatalf("web enabled = %v, want true", web.Enabled)
	}

	if len(ws.Skills) != 1 {
		t.Fatalf("skills = %d, want 1", len(ws.Skills))
	}
	s := ws.Skills[0]
	if s.Name != "pair-programming" || len(s.MCPServers) != 1 || s.MCPServers[0] != "web" {
		t.Fatalf("skill = %+v", s)
	}
	if s.Body == "" || s.Body[0] != '#' {
		t.Fatalf("skill body not stripped of header: %q", s.Body)
	}

	if len(ws.Tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(ws.Tools))
	}
	tool := ws.Tools[0]
	if tool.Entry != "script.py" || len(tool.Exports) != 1 {
		t.Fatalf("tool = %+v", tool)
	}
	if tool.Exports[0].Kind != workspace.ExportClass || len(tool.Exports[0].Methods) != 2 {
		t.Fatalf("tool export = %+v", tool.Exports[0])
	}

	if len(ws.Rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(ws.Rules))
	}
	if ws.Rules[0].Ref() != "coding/style" || ws.Rules[1].Ref() != "process/reviews" {
		t.Fatalf("rule refs = %q, %q", ws.Rules[0].Ref(), ws.Rules[1].Ref())
	}
	if ws.Rules[0].Body != "Use small functions." {
		t.Fatalf("rule body = %q", ws.Rules[0].Body)
	}
}

func TestLoadMissingSubdirsIsEmpty(t *testing.T) {
	ws, diags, err := workspace.Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("diagnostics = %v, want none", diags)
	}
	if len(ws.Agents)+len(ws.Servers)+len(ws.Skills)+len(ws.Tools)+len(ws.Rules) != 0 {
		t.Fatalf("workspace not empty: %+v", ws)
	}
}

func TestLoadMissingDirFails(t *testing.T) {
	if _, _, err := workspace.Load(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("Load() on missing dir should fail")
	}
}

func TestLoadMalformedAgentExcludesOnlyItself(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "agents", "bad.yaml"), "name: [unclosed\n")
	writeFile(t, filepath.Join(dir, "agents", "good.yaml"), "name: good\ndescription: ok\n")

	ws, diags, err := workspace.Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(ws.Agents) != 1 || ws.Agents[0].Name != "good" {
		t.Fatalf("agents = %+v, want only good", ws.Agents)
	}
	errs := diag.Errors(diags)
	if len(errs) != 1 || errs[0].Code != "definition_parse" {
		t.Fatalf("diagnostics = %v, want one definition_parse error", diags)
	}
}

func TestLoadRejectsUnknownPermission(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "agents", "a.yaml"), "name: a\ntools:\n  edit: maybe\n")

	ws, diags, err := workspace.Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(ws.Agents) != 0 {
		t.Fatalf("agents = %+v, want none", ws.Agents)
	}
	if !diag.HasErrors(diags) {
		t.Fatal("expected a diagnostic for unknown permission")
	}
}

func TestLoadDuplicateNameFirstWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "agents", "a.yaml"), "name: same\ndescription: first\n")
	writeFile(t, filepath.Join(dir, "agents", "b.yaml"), "name: same\ndescription: second\n")

	ws, diags, err := workspace.Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(ws.Agents) != 1 {
		t.Fatalf("agents = %d, want 1", len(ws.Agents))
	}
	if ws.Agents[0].Description != "first" {
		t.Fatalf("kept agent description = %q, want the first definition", ws.Agents[0].Description)
	}
	if !diag.HasErrors(diags) {
		t.Fatal("expected a duplicate-name diagnostic")
	}
}

func TestLoadServerValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown type", `{"name": "x", "type": "socket"}`},
		{"local without command", `{"name": "x", "type": "local"}`},
		{"remote without url", `{"name": "x", "type": "remote"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "mcp-servers", "x.json"), tt.doc)

			ws, diags, err := workspace.Load(dir)
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if len(ws.Servers) != 0 {
				t.Fatalf("servers = %+v, want none", ws.Servers)
			}
			if !diag.HasErrors(diags) {
				t.Fatal("expected a server validation diagnostic")
			}
		})
	}
}

func TestLoadToolMissingEntryFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tools", "t", "tool.yaml"), "name: t\nimplementation:\n  entry: gone.py\n")

	ws, diags, err := workspace.Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(ws.Tools) != 0 {
		t.Fatalf("tools = %+v, want none", ws.Tools)
	}
	if !diag.HasErrors(diags) {
		t.Fatal("expected a missing-implementation diagnostic")
	}
}

func TestLoadSkillWithoutHeaderUsesDirName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "skills", "notes", "SKILL.md"), "Just a body, no header.\n")

	ws, diags, err := workspace.Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("diagnostics = %v, want none", diags)
	}
	if len(ws.Skills) != 1 || ws.Skills[0].Name != "notes" {
		t.Fatalf("skills = %+v", ws.Skills)
	}
	if ws.Skills[0].Body == "" {
		t.Fatal("skill body should keep the full content")
	}
}
