// Package adapter generates per-export TypeScript tool adapters that shell
// out to the staged Python implementation at invocation time.
package adapter

import (
	"fmt"
	"path"
	"strings"

	"github.com/loomworks/loom/diag"
	"github.com/loomworks/loom/pysig"
	"github.com/loomworks/loom/workspace"
	"github.com/loomworks/loom/zodgen"
)

// MissingSignaturePolicy decides what happens when a declared export names a
// callable the extractor did not find.
type MissingSignaturePolicy string

const (
	// SkipMissing drops the export with a warning and keeps going.
	SkipMissing MissingSignaturePolicy = "skip"
	// FailMissing aborts adapter generation for the tool.
	FailMissing MissingSignaturePolicy = "fail"
)

// DefaultScriptBase is where staged implementations land relative to the
// workspace root, mirrored inside each generated adapter.
const DefaultScriptBase = "platforms/opencode/tools"

// Artifact is one file to write into the tool's output directory.
type Artifact struct {
	Name string
	Body []byte
}

// Generator turns a tool definition plus extracted signatures into adapter
// artifacts. The zero value generates with SkipMissing and DefaultScriptBase.
type Generator struct {
	ScriptBase string
	Missing    MissingSignaturePolicy
}

// Generate produces one adapter per exported callable plus a verbatim copy
// of the implementation script. Auto-discovery applies only when the tool
// declares no exports: every top-level signature is exported under its own
// name, and methods are never picked up bare.
func (g *Generator) Generate(tool workspace.Tool, sigs []pysig.Signature, script []byte) ([]Artifact, []diag.Diagnostic, error) {
	byName := make(map[string]pysig.Signature, len(sigs))
	for _, sig := range sigs {
		byName[sig.Name] = sig
	}

	exports := tool.Exports
	if len(exports) == 0 {
		for _, sig := range pysig.TopLevel(sigs) {
			exports = append(exports, workspace.Export{
				Kind:   workspace.ExportFunction,
				Name:   sig.Name,
				Object: sig.Name,
			})
		}
	}

	scriptPath := path.Join(g.scriptBase(), tool.Name, tool.Entry)

	var artifacts []Artifact
	var diags []diag.Diagnostic
	for _, exp := range exports {
		switch exp.Kind {
		case workspace.ExportFunction:
			sig, ok := byName[exp.Object]
			if !ok {
				d, err := g.missing(tool, exp.Name, exp.Object)
				if err != nil {
					return nil, nil, err
				}
				diags = append(diags, d)
				continue
			}
			artifacts = append(artifacts, Artifact{
				Name: exp.Name + ".ts",
				Body: renderAdapter(sig, scriptPath, exp.Object),
			})

		case workspace.ExportClass:
			for _, method := range exp.Methods {
				ref := exp.Object + "." + method
				sig, ok := byName[ref]
				if !ok {
					d, err := g.missing(tool, exp.Name, ref)
					if err != nil {
						return nil, nil, err
					}
					diags = append(diags, d)
					continue
				}
				artifacts = append(artifacts, Artifact{
					Name: exp.Name + "_" + method + ".ts",
					Body: renderAdapter(sig, scriptPath, exp.Object+" "+method),
				})
			}
		}
	}

	// The adapters dispatch to a copy of the implementation staged next to
	// them, so out-of-process invocation never reaches back into the
	// definition workspace.
	artifacts = append(artifacts, Artifact{Name: tool.Entry, Body: script})

	return artifacts, diags, nil
}

func (g *Generator) scriptBase() string {
	if g.ScriptBase != "" {
		return g.ScriptBase
	}
	return DefaultScriptBase
}

func (g *Generator) missing(tool workspace.Tool, export, ref string) (diag.Diagnostic, error) {
	if g.Missing == FailMissing {
		return diag.Diagnostic{}, fmt.Errorf("tool %s: export %q references unknown callable %q", tool.Name, export, ref)
	}
	return diag.Diagnostic{
		Code:     "missing_signature",
		Severity: diag.SeverityWarning,
		Message:  fmt.Sprintf("Tool %q: export %q references unknown callable %q, skipping", tool.Name, export, ref),
		Path:     tool.Path,
	}, nil
}

const adapterTemplate = `import { tool } from "@opencode-ai/plugin"
import path from "path"

export default tool({
  description: "%s",
  args: {
%s
  },
  async execute(args, context) {
    const script = path.join(context.worktree, "%s")
    const argList = Object.entries(args).flatMap(([k, v]) => [` + "`--${k}=${JSON.stringify(v)}`" + `])
    const result = await Bun.$` + "`python3 ${script} %s ${argList}`" + `.text()
    return JSON.parse(result.trim())
  }
})
`

func renderAdapter(sig pysig.Signature, scriptPath, dispatch string) []byte {
	lines := make([]string, 0, len(sig.Params))
	for _, p := range sig.Params {
		line := "    " + p.Name + ": " + zodgen.Synthesize(p.Type, p.Default)
		if p.Description != "" {
			line += `.describe("` + p.Description + `")`
		}
		lines = append(lines, line)
	}
	return []byte(fmt.Sprintf(adapterTemplate, sig.Description, strings.Join(lines, ",\n"), scriptPath, dispatch))
}
