package adapter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/loomworks/loom/pysig"
	"github.com/loomworks/loom/workspace"
)

func extract(t *testing.T, script []byte) []pysig.Signature {
	t.Helper()
	sigs, err := pysig.Extract(script)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	return sigs
}

func TestGenerateAutoDiscovery(t *testing.T) {
	script := []byte(`def add(a: int, b: int = 0) -> int:
    """Add two numbers."""
    return a + b
`)
	tool := workspace.Tool{
		Name:  "calculator",
		Entry: "calc.py",
		Path:  "core/tools/calculator/tool.yaml",
	}

	var g Generator
	arts, diags, err := g.Generate(tool, extract(t, script), script)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("Generate() diagnostics = %+v, want none", diags)
	}
	if len(arts) != 2 {
		t.Fatalf("Generate() returned %d artifacts, want adapter plus script copy", len(arts))
	}

	if arts[0].Name != "add.ts" {
		t.Fatalf("adapter name = %q, want add.ts", arts[0].Name)
	}
	body := string(arts[0].Body)
	for _, want := range []string{
		`description: "Add two numbers."`,
		"    a: tool.schema.number().int(),\n    b: tool.schema.number().int().default(0)",
		`path.join(context.worktree, "platforms/opencode/tools/calculator/calc.py")`,
		"python3 ${script} add ${argList}",
		"--${k}=${JSON.stringify(v)}",
		"JSON.parse(result.trim())",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("adapter body missing %q:\n%s", want, body)
		}
	}

	copyArt := arts[1]
	if copyArt.Name != "calc.py" || !bytes.Equal(copyArt.Body, script) {
		t.Fatalf("script copy = %q (%d bytes), want verbatim calc.py", copyArt.Name, len(copyArt.Body))
	}
}

func TestGenerateSkipsMethodsInAutoDiscovery(t *testing.T) {
	script := []byte(`def fetch(url: str) -> str:
    return url

class Helper:
    def run(self, count: int):
        return count
`)
	tool := workspace.Tool{Name: "web", Entry: "script.py"}

	var g Generator
	arts, _, err := g.Generate(tool, extract(t, script), script)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(arts) != 2 {
		t.Fatalf("Generate() returned %d artifacts, want only fetch.ts and the copy", len(arts))
	}
	if arts[0].Name != "fetch.ts" {
		t.Fatalf("adapter name = %q, want fetch.ts", arts[0].Name)
	}
}

func TestGenerateClassExport(t *testing.T) {
	script := []byte(`class PomodoroTimer:
    def start(self, duration: int = 25) -> str:
        """Start a timer.

        Args:
            duration: Duration in minutes
        """
        return "ok"
`)
	tool := workspace.Tool{
		Name:  "pomodoro-timer",
		Entry: "script.py",
		Exports: []workspace.Export{{
			Kind:    workspace.ExportClass,
			Name:    "timer",
			Object:  "PomodoroTimer",
			Methods: []string{"start", "stop"},
		}},
	}

	var g Generator
	arts, diags, err := g.Generate(tool, extract(t, script), script)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(arts) != 2 {
		t.Fatalf("Generate() returned %d artifacts, want timer_start.ts and the copy", len(arts))
	}
	if arts[0].Name != "timer_start.ts" {
		t.Fatalf("adapter name = %q, want timer_start.ts", arts[0].Name)
	}
	body := string(arts[0].Body)
	if !strings.Contains(body, "python3 ${script} PomodoroTimer start ${argList}") {
		t.Fatalf("adapter body missing class dispatch:\n%s", body)
	}
	if !strings.Contains(body, `.describe("Duration in minutes")`) {
		t.Fatalf("adapter body missing parameter description:\n%s", body)
	}

	if len(diags) != 1 {
		t.Fatalf("Generate() diagnostics = %+v, want one skipped export", diags)
	}
	if diags[0].Code != "missing_signature" {
		t.Fatalf("diagnostic code = %q, want missing_signature", diags[0].Code)
	}
}

func TestGenerateFailMissing(t *testing.T) {
	tool := workspace.Tool{
		Name:  "web",
		Entry: "script.py",
		Exports: []workspace.Export{{
			Kind:   workspace.ExportFunction,
			Name:   "missing",
			Object: "missing",
		}},
	}

	g := Generator{Missing: FailMissing}
	if _, _, err := g.Generate(tool, nil, nil); err == nil {
		t.Fatal("Generate() error = nil, want failure for unresolved export")
	}
}
