package platform

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/loomworks/loom/diag"
	"github.com/loomworks/loom/workspace"
)

// Continue renders config.yaml for continue. The format is narrower than the
// definitions: remote servers collapse to a curl fetch, server environments
// are dropped, and tool permissions are boolean. Every narrowing either
// warns or, for "ask" under AskFoldReject, fails the shaping.
type Continue struct {
	AskFold AskFoldPolicy
}

func (*Continue) Name() string { return "continue" }

func (*Continue) Filename() string { return "config.yaml" }

type continueConfig struct {
	Name       string           `yaml:"name"`
	Version    string           `yaml:"version"`
	Schema     string           `yaml:"schema"`
	Models     []any            `yaml:"models"`
	MCPServers []continueServer `yaml:"mcpServers"`
	Rules      []continueRule   `yaml:"rules"`
	Prompts    []continuePrompt `yaml:"prompts"`
}

type continueServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type continueRule struct {
	Uses string `yaml:"uses"`
}

type continuePrompt struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Prompt      string          `yaml:"prompt"`
	Tools       map[string]bool `yaml:"tools,omitempty"`
}

func (c *Continue) Generate(ws *workspace.Workspace) (*Document, []diag.Diagnostic, error) {
	cfg := continueConfig{
		Name:       "Agent Workspace",
		Version:    "1.0.0",
		Schema:     "v1",
		Models:     []any{},
		MCPServers: []continueServer{},
		Rules:      []continueRule{},
		Prompts:    []continuePrompt{},
	}
	var diags []diag.Diagnostic

	for _, srv := range ws.Servers {
		switch srv.Type {
		case workspace.ServerLocal:
			cfg.MCPServers = append(cfg.MCPServers, continueServer{
				Name:    srv.Name,
				Command: srv.Local.Command[0],
				Args:    append([]string{}, srv.Local.Command[1:]...),
			})
			if len(srv.Local.Environment) > 0 {
				diags = append(diags, lossy(srv.Path, "Server %q: environment variables are not carried in continue mcpServers", srv.Name))
			}
		case workspace.ServerRemote:
			cfg.MCPServers = append(cfg.MCPServers, continueServer{
				Name:    srv.Name,
				Command: "curl",
				Args:    []string{"-s", srv.Remote.URL},
			})
			diags = append(diags, lossy(srv.Path, "Server %q: remote transport collapsed to a curl fetch; headers and auth are not carried", srv.Name))
		}
	}

	for _, r := range ws.Rules {
		base := filepath.Base(r.Path)
		if r.Path == "" {
			base = r.Name + ".md"
		}
		cfg.Rules = append(cfg.Rules, continueRule{
			Uses: "file://rules/" + r.Category + "/" + base,
		})
	}

	for _, a := range ws.Agents {
		prompt := continuePrompt{
			Name:        a.Name,
			Description: a.Description,
			Prompt:      a.SystemPrompt,
		}
		if len(a.Tools) > 0 {
			tools := make(map[string]bool, len(a.Tools))
			names := make([]string, 0, len(a.Tools))
			for name := range a.Tools {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				switch a.Tools[name] {
				case workspace.PermissionAllow:
					tools[name] = true
				case workspace.PermissionDeny:
					tools[name] = false
				case workspace.PermissionAsk:
					if c.AskFold == AskFoldReject {
						return nil, diags, fmt.Errorf("agent %s: tool %s permission is %q; continue permissions are boolean and the fold policy rejects it", a.Name, name, workspace.PermissionAsk)
					}
					tools[name] = false
					diags = append(diags, diag.Diagnostic{
						Code:     "ask_folded",
						Severity: diag.SeverityWarning,
						Message:  fmt.Sprintf("Agent %q: tool %q permission %q folded to deny", a.Name, name, workspace.PermissionAsk),
						Path:     a.Path,
					})
				}
			}
			prompt.Tools = tools
		}
		cfg.Prompts = append(cfg.Prompts, prompt)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, diags, fmt.Errorf("render config.yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, diags, fmt.Errorf("render config.yaml: %w", err)
	}
	return &Document{Filename: "config.yaml", Body: buf.Bytes()}, diags, nil
}

func lossy(path, format string, args ...any) diag.Diagnostic {
	return diag.Diagnostic{
		Code:     "lossy_shaping",
		Severity: diag.SeverityWarning,
		Message:  fmt.Sprintf(format, args...),
		Path:     path,
	}
}
