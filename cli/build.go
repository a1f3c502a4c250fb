package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/adapter"
	"github.com/loomworks/loom/diag"
	"github.com/loomworks/loom/notify"
	"github.com/loomworks/loom/pipeline"
	"github.com/loomworks/loom/platform"
	"github.com/loomworks/loom/schemaval"
)

// NewBuildCmd creates the build command, which transpiles a workspace into
// per-platform configuration documents and tool adapters.
func NewBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build platform configurations from a workspace",
		Long: `Build loads the workspace definition tree, shapes one configuration document
per platform target, generates TypeScript adapters for custom tools and
writes everything under the output directory.`,
		Args: cobra.NoArgs,
		RunE: runBuild,
	}
	addBuildFlags(cmd)
	return cmd
}

// addBuildFlags registers the flags shared between build and watch.
func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("workspace", "w", "", "Workspace directory (default: $LOOM_WORKSPACE or .)")
	cmd.Flags().StringP("out", "o", "", "Output directory (default: $LOOM_OUT or build)")
	cmd.Flags().StringArrayP("target", "t", nil, "Target to build, repeatable (default: all targets)")
	cmd.Flags().Bool("validate", false, "Validate generated JSON documents against their declared schema")
	cmd.Flags().Duration("schema-timeout", schemaval.DefaultTimeout, "Schema fetch timeout for --validate")
	cmd.Flags().String("ask-fold", "deny", `Shaping of "ask" permissions on boolean platforms: deny | reject`)
	cmd.Flags().Bool("skip-missing-exports", false, "Skip exports whose callable is missing (default)")
	cmd.Flags().Bool("fail-missing-exports", false, "Fail a tool when an export's callable is missing")
	cmd.Flags().String("otlp-endpoint", "", "OTLP trace endpoint, e.g. localhost:4318 (default: $LOOM_OTLP_ENDPOINT)")
	cmd.Flags().Bool("notify", false, "Notify the running opencode session when the build finishes")
	cmd.Flags().String("notify-base-url", "", "opencode server base URL for --notify (default: "+notify.DefaultBaseURL+")")
}

func runBuild(cmd *cobra.Command, _ []string) error {
	runner, cleanup, err := buildRunner(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := runner.Run(cmd.Context())
	if err != nil {
		return buildRunError(err)
	}

	printReport(cmd, report)
	if !report.Success() {
		return exitError(exitValidation, "build failed")
	}
	return nil
}

// buildRunner assembles the pipeline runner from command flags. The cleanup
// func flushes telemetry and must run after the final Run call.
func buildRunner(cmd *cobra.Command) (*pipeline.Runner, func(), error) {
	nop := func() {}

	targets, _ := cmd.Flags().GetStringArray("target")
	for _, name := range targets {
		if _, ok := platform.Lookup(name, platform.Options{}); !ok {
			return nil, nop, exitError(exitValidation, "unknown target %q (known targets: %s)",
				name, strings.Join(platform.Names(), ", "))
		}
	}

	askFold, err := resolveAskFold(cmd)
	if err != nil {
		return nil, nop, err
	}
	missing, err := resolveMissingPolicy(cmd)
	if err != nil {
		return nil, nop, err
	}

	logger := newLogger(cmd)
	handler, cleanup, err := buildEventHandler(cmd, logger)
	if err != nil {
		return nil, nop, err
	}

	validate, _ := cmd.Flags().GetBool("validate")
	schemaTimeout, _ := cmd.Flags().GetDuration("schema-timeout")

	return &pipeline.Runner{
		WorkspaceDir:  resolveWorkspaceDir(cmd),
		OutDir:        resolveOutDir(cmd),
		Targets:       targets,
		Validate:      validate,
		SchemaTimeout: schemaTimeout,
		AskFold:       askFold,
		Missing:       missing,
		Handler:       handler,
		Notifier:      resolveNotifier(cmd),
		Logger:        logger,
	}, cleanup, nil
}

// buildRunError maps a pipeline error to the exit code contract. Per-target
// and per-tool failures never surface here; they live in the report.
func buildRunError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return exitError(exitFileNotFound, "%v", err)
	}
	return exitError(exitRuntime, "%v", err)
}

// resolveWorkspaceDir resolves the definition root: flag, then
// LOOM_WORKSPACE, then the current directory.
func resolveWorkspaceDir(cmd *cobra.Command) string {
	if dir, _ := cmd.Flags().GetString("workspace"); strings.TrimSpace(dir) != "" {
		return dir
	}
	if dir := strings.TrimSpace(os.Getenv("LOOM_WORKSPACE")); dir != "" {
		return dir
	}
	return "."
}

// resolveOutDir resolves the output root: flag, then LOOM_OUT, then "build".
func resolveOutDir(cmd *cobra.Command) string {
	if dir, _ := cmd.Flags().GetString("out"); strings.TrimSpace(dir) != "" {
		return dir
	}
	if dir := strings.TrimSpace(os.Getenv("LOOM_OUT")); dir != "" {
		return dir
	}
	return "build"
}

func resolveOTLPEndpoint(cmd *cobra.Command) string {
	if endpoint, _ := cmd.Flags().GetString("otlp-endpoint"); strings.TrimSpace(endpoint) != "" {
		return endpoint
	}
	return strings.TrimSpace(os.Getenv("LOOM_OTLP_ENDPOINT"))
}

func resolveAskFold(cmd *cobra.Command) (platform.AskFoldPolicy, error) {
	mode, _ := cmd.Flags().GetString("ask-fold")
	switch mode {
	case "", "deny":
		return platform.AskFoldDeny, nil
	case "reject":
		return platform.AskFoldReject, nil
	}
	return 0, exitError(exitValidation, "invalid --ask-fold %q (expected deny or reject)", mode)
}

func resolveMissingPolicy(cmd *cobra.Command) (adapter.MissingSignaturePolicy, error) {
	skip, _ := cmd.Flags().GetBool("skip-missing-exports")
	fail, _ := cmd.Flags().GetBool("fail-missing-exports")
	if skip && fail {
		return "", exitError(exitValidation, "cannot use --skip-missing-exports and --fail-missing-exports together")
	}
	if fail {
		return adapter.FailMissing, nil
	}
	return adapter.SkipMissing, nil
}

func resolveNotifier(cmd *cobra.Command) notify.Notifier {
	if on, _ := cmd.Flags().GetBool("notify"); !on {
		return nil
	}
	baseURL, _ := cmd.Flags().GetString("notify-base-url")
	return notify.NewSession(baseURL)
}

// newLogger builds the slog logger from the root --verbose/--quiet flags.
// The pipeline logs progress at info level; the default keeps stderr quiet
// unless something needs attention.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")

	level := slog.LevelWarn
	switch {
	case quiet:
		level = slog.LevelError
	case verbose:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// printReport renders diagnostics and per-target failures to stderr, written
// documents and the run summary to stdout.
func printReport(cmd *cobra.Command, report *pipeline.Report) {
	quiet, _ := cmd.Flags().GetBool("quiet")
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	var diags []diag.Diagnostic
	diags = append(diags, report.LoadDiags...)
	for _, t := range report.Targets {
		diags = append(diags, t.Diags...)
	}
	for _, t := range report.Tools {
		diags = append(diags, t.Diags...)
	}
	diag.SortByPath(diags)
	printDiagnosticLines(errOut, diags)

	for _, t := range report.Targets {
		switch {
		case t.Err != nil:
			fmt.Fprintf(errOut, "%s: %v\n", t.Target, t.Err)
		case len(t.Issues) > 0:
			fmt.Fprintf(errOut, "%s: %d schema %s\n", t.Target, len(t.Issues), pluralize("issue", len(t.Issues)))
			printIssues(errOut, t.Issues)
		case !quiet:
			fmt.Fprintf(out, "%s: wrote %s\n", t.Target, t.Document)
		}
	}
	for _, t := range report.Tools {
		if t.Err != nil {
			fmt.Fprintf(errOut, "tool %s: %v\n", t.Tool, t.Err)
		}
	}

	if !quiet {
		fmt.Fprintln(out, report.Summary())
	}
}

func printDiagnosticLines(w io.Writer, diags []diag.Diagnostic) {
	for _, d := range diags {
		if d.Path != "" {
			fmt.Fprintf(w, "%s [%s]: %s (at %s)\n", strings.ToUpper(d.Severity), d.Code, d.Message, d.Path)
		} else {
			fmt.Fprintf(w, "%s [%s]: %s\n", strings.ToUpper(d.Severity), d.Code, d.Message)
		}
	}
}

func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}
