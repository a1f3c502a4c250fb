package workspace

// Permission is the tri-state tool permission an agent grants: allow, ask or
// deny. Parsing rejects anything outside the closed set.
type Permission string

const (
	PermissionAllow Permission = "allow"
	PermissionAsk   Permission = "ask"
	PermissionDeny  Permission = "deny"
)

// Valid reports whether p is one of the three known states.
func (p Permission) Valid() bool {
	switch p {
	case PermissionAllow, PermissionAsk, PermissionDeny:
		return true
	}
	return false
}

// Skill is a loaded skill definition: the metadata header of a SKILL.md file
// plus its free-text body.
type Skill struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	MCPServers   []string `yaml:"mcp_servers"`
	CustomTools  []string `yaml:"custom_tools"`
	AllowedTools []string `yaml:"allowed_tools"`

	// Body is the markdown after the metadata header, trimmed.
	Body string `yaml:"-"`
	// Path is the SKILL.md the definition was loaded from.
	Path string `yaml:"-"`
}

// ModelRef identifies the model an agent runs on. The transpiler treats both
// fields as opaque strings; resolving them is the platform's concern.
type ModelRef struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Agent is a loaded agent definition.
type Agent struct {
	Name         string                `yaml:"name"`
	Description  string                `yaml:"description"`
	Model        ModelRef              `yaml:"model"`
	Tools        map[string]Permission `yaml:"tools"`
	Skills       []string              `yaml:"skills"`
	MCPServers   []string              `yaml:"mcp_servers"`
	Rules        []string              `yaml:"rules"`
	SystemPrompt string                `yaml:"system_prompt"`

	Path string `yaml:"-"`
}

// ServerType distinguishes local (subprocess) from remote (URL) servers.
type ServerType string

const (
	ServerLocal  ServerType = "local"
	ServerRemote ServerType = "remote"
)

// Server is a loaded message-server definition. Exactly one of Local or
// Remote is set, matching Type.
type Server struct {
	Name    string
	Type    ServerType
	Local   *LocalServer
	Remote  *RemoteServer
	Enabled *bool
	Timeout int

	Path string
}

// LocalServer describes a server started as a subprocess.
type LocalServer struct {
	Command     []string
	Environment map[string]string
}

// RemoteServer describes a server reached over HTTP.
type RemoteServer struct {
	URL     string
	Headers map[string]string
	OAuth   map[string]any
}

// ExportKind distinguishes function exports from class exports.
type ExportKind string

const (
	ExportFunction ExportKind = "function"
	ExportClass    ExportKind = "class"
)

// Export declares one callable a tool exposes. Function exports name a
// top-level function; class exports name a class plus the methods to expose.
type Export struct {
	Kind    ExportKind `yaml:"type"`
	Name    string     `yaml:"name"`
	Object  string     `yaml:"object"`
	Methods []string   `yaml:"methods"`
}

// Tool is a loaded tool definition. Entry is the implementation file relative
// to Dir; an empty Exports slice means exports are auto-discovered.
type Tool struct {
	Name        string
	Description string
	Dir         string
	Entry       string
	Exports     []Export

	Path string
}

// Rule is a loaded rule document. The reference form used by agents and the
// dependency checker is "Category/Name".
type Rule struct {
	Category string
	Name     string
	Body     string

	Path string
}

// Ref returns the stable "category/name" locator for the rule.
func (r Rule) Ref() string {
	return r.Category + "/" + r.Name
}

// Workspace is the read-only definition snapshot one transpilation run
// operates on. Loaded once, shared by every target, never mutated.
type Workspace struct {
	Dir     string
	Skills  []Skill
	Agents  []Agent
	Servers []Server
	Tools   []Tool
	Rules   []Rule
}

// SkillNames returns the set of loaded skill names.
func (ws *Workspace) SkillNames() map[string]bool {
	names := make(map[string]bool, len(ws.Skills))
	for _, s := range ws.Skills {
		names[s.Name] = true
	}
	return names
}

// ServerNames returns the set of loaded server names.
func (ws *Workspace) ServerNames() map[string]bool {
	names := make(map[string]bool, len(ws.Servers))
	for _, s := range ws.Servers {
		names[s.Name] = true
	}
	return names
}

// ToolNames returns the set of loaded tool names.
func (ws *Workspace) ToolNames() map[string]bool {
	names := make(map[string]bool, len(ws.Tools))
	for _, t := range ws.Tools {
		names[t.Name] = true
	}
	return names
}

// RuleRefs returns the set of loaded "category/name" rule locators.
func (ws *Workspace) RuleRefs() map[string]bool {
	refs := make(map[string]bool, len(ws.Rules))
	for _, r := range ws.Rules {
		refs[r.Ref()] = true
	}
	return refs
}
