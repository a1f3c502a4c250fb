package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/adapter"
	"github.com/loomworks/loom/diag"
	"github.com/loomworks/loom/pysig"
	"github.com/loomworks/loom/workspace"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and generate custom tool adapters",
	}
	cmd.PersistentFlags().StringP("workspace", "w", "", "Workspace directory (default: $LOOM_WORKSPACE or .)")

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsGenerateCmd())

	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tool definitions and their exports",
		Args:  cobra.NoArgs,
		RunE:  runToolsList,
	}
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	ws, diags, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	printDiagnosticLines(cmd.ErrOrStderr(), diags)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tENTRY\tEXPORTS\tDESCRIPTION")
	for _, t := range ws.Tools {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, t.Entry, formatExports(t.Exports), placeholder(t.Description))
	}
	return w.Flush()
}

func formatExports(exports []workspace.Export) string {
	if len(exports) == 0 {
		return "(auto)"
	}
	names := make([]string, len(exports))
	for i, e := range exports {
		names[i] = e.Name
	}
	return strings.Join(names, ",")
}

func placeholder(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newToolsGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate TypeScript adapters for every tool",
		Args:  cobra.NoArgs,
		RunE:  runToolsGenerate,
	}
	cmd.Flags().StringP("out", "o", "", "Output directory (default: $LOOM_OUT or build)")
	cmd.Flags().Bool("fail-missing-exports", false, "Fail a tool when an export's callable is missing")
	return cmd
}

func runToolsGenerate(cmd *cobra.Command, _ []string) error {
	ws, loadDiags, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	errOut := cmd.ErrOrStderr()
	printDiagnosticLines(errOut, loadDiags)

	missing, err := resolveMissingPolicy(cmd)
	if err != nil {
		return err
	}
	targetDir := filepath.Join(resolveOutDir(cmd), "opencode")

	failed := diag.HasErrors(loadDiags)
	for _, t := range ws.Tools {
		written, diags, err := generateToolAdapters(targetDir, t, missing)
		printDiagnosticLines(errOut, diags)
		if err != nil {
			failed = true
			fmt.Fprintf(errOut, "tool %s: %v\n", t.Name, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d %s\n", t.Name, len(written), pluralize("artifact", len(written)))
	}

	if failed {
		return exitError(exitValidation, "tool generation failed")
	}
	return nil
}

// generateToolAdapters runs the adapter flow for one tool, writing artifacts
// under <targetDir>/tools/<name>/ the same way a full build does.
func generateToolAdapters(targetDir string, t workspace.Tool, missing adapter.MissingSignaturePolicy) ([]string, []diag.Diagnostic, error) {
	script, err := os.ReadFile(filepath.Join(t.Dir, t.Entry)) // #nosec G304 -- path from loaded definition
	if err != nil {
		return nil, nil, err
	}
	sigs, err := pysig.Extract(script)
	if err != nil {
		return nil, nil, err
	}

	gen := adapter.Generator{Missing: missing}
	artifacts, diags, err := gen.Generate(t, sigs, script)
	if err != nil {
		return nil, diags, err
	}

	var written []string
	for _, a := range artifacts {
		path := filepath.Join(targetDir, "tools", t.Name, a.Name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, diags, err
		}
		if err := os.WriteFile(path, a.Body, 0o644); err != nil {
			return nil, diags, err
		}
		written = append(written, path)
	}
	return written, diags, nil
}
