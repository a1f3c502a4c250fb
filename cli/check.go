package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/depcheck"
	"github.com/loomworks/loom/diag"
	"github.com/loomworks/loom/workspace"
)

// NewCheckCmd creates the "check" subcommand, which verifies that every
// cross-reference between workspace definitions resolves.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check cross-references between workspace definitions",
		Long: `Check loads the workspace and verifies that skills, agents, servers and
tools referenced by name actually exist. Nothing is generated.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}

	cmd.Flags().StringP("workspace", "w", "", "Workspace directory (default: $LOOM_WORKSPACE or .)")
	cmd.Flags().String("format", "text", "Output format: text | json")
	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()

	ws, loadDiags, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}

	report := depcheck.Check(ws)

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		printDiagnosticLines(cmd.ErrOrStderr(), loadDiags)
		printCheckReport(out, report)
	}

	if diag.HasErrors(loadDiags) || !report.Clean() {
		return exitError(exitValidation, "dependency check failed")
	}
	return nil
}

func printCheckReport(w io.Writer, report *depcheck.Report) {
	if report.Clean() {
		fmt.Fprintln(w, "All references resolve.")
		return
	}
	printDiagnosticLines(w, report.Diagnostics())
}

// loadWorkspace loads the definition tree for a command, mapping a missing
// directory to the file-not-found exit code.
func loadWorkspace(cmd *cobra.Command) (*workspace.Workspace, []diag.Diagnostic, error) {
	ws, diags, err := workspace.Load(resolveWorkspaceDir(cmd))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, exitError(exitFileNotFound, "%v", err)
		}
		return nil, nil, exitError(exitRuntime, "%v", err)
	}
	return ws, diags, nil
}
