package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/platform"
	"github.com/loomworks/loom/schemaval"
)

// NewValidateCmd creates the "validate" subcommand, which checks a generated
// document against the schema it declares.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a generated document against its declared schema",
		Long: `Validate reads a generated configuration document, fetches the schema its
$schema field references and reports violations. With no file argument the
document is located under the output directory for the chosen target.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runValidate,
	}

	cmd.Flags().String("file", "", "Document to validate (overrides the target lookup)")
	cmd.Flags().StringP("out", "o", "", "Output directory the document was built into (default: $LOOM_OUT or build)")
	cmd.Flags().StringP("target", "t", "opencode", "Target whose built document to validate")
	cmd.Flags().Duration("schema-timeout", schemaval.DefaultTimeout, "Schema fetch timeout")
	cmd.Flags().Bool("strict", false, "Treat extra top-level keys as errors")
	cmd.Flags().String("format", "text", "Output format: text | json")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")
	timeout, _ := cmd.Flags().GetDuration("schema-timeout")
	out := cmd.OutOrStdout()

	path, err := resolveValidatePath(cmd, args)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the CLI invocation
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(exitFileNotFound, "file not found: %s", path)
		}
		return exitError(exitRuntime, "reading document: %v", err)
	}

	schema, err := schemaval.New(timeout).Fetch(cmd.Context(), data)
	if err != nil {
		if errors.Is(err, schemaval.ErrNoSchemaRef) {
			return exitError(exitNoSchemaRef, "%s declares no $schema reference", path)
		}
		var fetchErr *schemaval.FetchError
		if errors.As(err, &fetchErr) {
			return exitError(exitFetch, "fetching schema: %v", err)
		}
		return exitError(exitValidation, "%v", err)
	}

	extra, err := schema.ExtraKeys(data)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	issues, err := schema.Validate(data)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	failed := len(issues) > 0 || (strict && len(extra) > 0)

	if format == "json" {
		printValidationJSON(out, issues, extra)
		if failed {
			return exitError(exitValidation, "validation failed")
		}
		return nil
	}

	for _, key := range extra {
		fmt.Fprintf(out, "WARNING: key %q is not in the schema\n", key)
	}

	if len(issues) == 0 {
		if len(extra) == 0 {
			fmt.Fprintln(out, "Valid!")
		} else {
			fmt.Fprintf(out, "\nValid! (%d extra %s)\n", len(extra), pluralize("key", len(extra)))
		}
		if failed {
			return exitError(exitValidation, "validation failed")
		}
		return nil
	}

	// The strict pass failed. Re-validate with extra properties allowed to
	// tell unknown keys apart from real violations.
	relaxed, err := schema.ValidateRelaxed(data)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	if len(relaxed) == 0 {
		fmt.Fprintln(out, "Only extra keys block validation. Remove:")
		for _, key := range extra {
			fmt.Fprintf(out, "    - %q\n", key)
		}
		return exitError(exitValidation, "validation failed")
	}

	printIssues(out, relaxed)
	return exitError(exitValidation, "validation failed with %d %s", len(relaxed), pluralize("error", len(relaxed)))
}

// resolveValidatePath finds the document: positional argument, then --file,
// then the target's document under the output directory.
func resolveValidatePath(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		return file, nil
	}

	name, _ := cmd.Flags().GetString("target")
	target, ok := platform.Lookup(name, platform.Options{})
	if !ok {
		return "", exitError(exitValidation, "unknown target %q", name)
	}
	return filepath.Join(resolveOutDir(cmd), name, target.Filename()), nil
}

// printIssues renders schema violations, capped at five.
func printIssues(w io.Writer, issues []schemaval.Issue) {
	show := issues
	if len(show) > 5 {
		show = show[:5]
	}
	for i, issue := range show {
		fmt.Fprintf(w, "%d. [%s] %s\n", i+1, issue.Path, issue.Message)
	}
	if rest := len(issues) - len(show); rest > 0 {
		fmt.Fprintf(w, "... and %d more %s\n", rest, pluralize("error", rest))
	}
}

func printValidationJSON(w io.Writer, issues []schemaval.Issue, extra []string) {
	// Output empty arrays rather than null.
	if issues == nil {
		issues = []schemaval.Issue{}
	}
	if extra == nil {
		extra = []string{}
	}
	result := struct {
		Issues    []schemaval.Issue `json:"issues"`
		ExtraKeys []string          `json:"extra_keys"`
	}{Issues: issues, ExtraKeys: extra}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}
