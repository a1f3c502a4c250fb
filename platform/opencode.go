package platform

import (
	"encoding/json"
	"fmt"

	"github.com/loomworks/loom/diag"
	"github.com/loomworks/loom/workspace"
)

const openCodeSchemaURL = "https://opencode.ai/config.json"

// OpenCode renders opencode.json. Server records pass through with every
// loaded field intact; trimming them to the published schema is Normalize's
// job so the stripping is reported in one place.
type OpenCode struct{}

func (*OpenCode) Name() string { return "opencode" }

func (*OpenCode) Filename() string { return "opencode.json" }

// openCodeConfig is the document layout. Field order matches the layout the
// platform documents.
type openCodeConfig struct {
	Schema string                    `json:"$schema"`
	MCP    map[string]openCodeServer `json:"mcp"`
	Agent  map[string]openCodeAgent  `json:"agent"`
	Rules  []string                  `json:"rules"`
	Tools  map[string]bool           `json:"tools"`
}

type openCodeServer struct {
	Type        workspace.ServerType `json:"type"`
	Command     []string             `json:"command,omitempty"`
	Environment map[string]string    `json:"environment,omitempty"`
	URL         string               `json:"url,omitempty"`
	Headers     map[string]string    `json:"headers,omitempty"`
	OAuth       map[string]any       `json:"oauth,omitempty"`
	Enabled     *bool                `json:"enabled,omitempty"`
	Timeout     int                  `json:"timeout,omitempty"`
}

type openCodeAgent struct {
	Description string         `json:"description"`
	Model       string         `json:"model,omitempty"`
	Tools       map[string]any `json:"tools,omitempty"`
	Prompt      string         `json:"prompt,omitempty"`
}

func (*OpenCode) Generate(ws *workspace.Workspace) (*Document, []diag.Diagnostic, error) {
	cfg := openCodeConfig{
		Schema: openCodeSchemaURL,
		MCP:    make(map[string]openCodeServer, len(ws.Servers)),
		Agent:  make(map[string]openCodeAgent, len(ws.Agents)),
		Rules:  []string{},
		Tools:  map[string]bool{},
	}

	for _, srv := range ws.Servers {
		entry := openCodeServer{
			Type:    srv.Type,
			Enabled: srv.Enabled,
			Timeout: srv.Timeout,
		}
		switch srv.Type {
		case workspace.ServerLocal:
			entry.Command = srv.Local.Command
			entry.Environment = srv.Local.Environment
		case workspace.ServerRemote:
			entry.URL = srv.Remote.URL
			entry.Headers = srv.Remote.Headers
			entry.OAuth = srv.Remote.OAuth
		}
		cfg.MCP[srv.Name] = entry
	}

	for _, a := range ws.Agents {
		entry := openCodeAgent{Description: a.Description}
		if a.Model != (workspace.ModelRef{}) {
			entry.Model = a.Model.Provider + "/" + a.Model.Model
		}
		if a.Tools != nil {
			tools := make(map[string]any, len(a.Tools))
			for name, perm := range a.Tools {
				switch perm {
				case workspace.PermissionAllow:
					tools[name] = true
				case workspace.PermissionAsk:
					tools[name] = "ask"
				case workspace.PermissionDeny:
					tools[name] = false
				}
			}
			entry.Tools = tools
		}
		if a.SystemPrompt != "" {
			entry.Prompt = a.SystemPrompt
		}
		cfg.Agent[a.Name] = entry
	}

	for _, r := range ws.Rules {
		cfg.Rules = append(cfg.Rules, r.Body)
	}

	body, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("render opencode.json: %w", err)
	}
	return &Document{Filename: "opencode.json", Body: append(body, '\n')}, nil, nil
}
