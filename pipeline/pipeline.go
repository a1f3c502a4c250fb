// Package pipeline orchestrates a transpilation run: the workspace is loaded
// once, then each requested target is shaped, normalized, written and
// validated in order. Definition problems exclude only the definition they
// belong to; a schema fetch failure fails only the platform that needed the
// schema. Everything observable about a run flows through events and the
// final Report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/adapter"
	"github.com/loomworks/loom/diag"
	"github.com/loomworks/loom/notify"
	"github.com/loomworks/loom/platform"
	"github.com/loomworks/loom/pysig"
	"github.com/loomworks/loom/schemaval"
	"github.com/loomworks/loom/workspace"
)

// Runner drives one or more sequential build runs over a workspace.
type Runner struct {
	WorkspaceDir string
	OutDir       string

	// Targets filters the platforms built; empty builds all of them.
	Targets []string

	// Validate checks each JSON document against its declared schema.
	Validate      bool
	SchemaTimeout time.Duration

	AskFold platform.AskFoldPolicy
	Missing adapter.MissingSignaturePolicy

	Handler  EventHandler
	Notifier notify.Notifier
	Logger   *slog.Logger

	validator documentValidator
}

type documentValidator interface {
	Validate(ctx context.Context, doc []byte) ([]schemaval.Issue, error)
}

// TargetResult is the outcome for one platform.
type TargetResult struct {
	Target   string
	Document string // written path, empty when generation failed
	Issues   []schemaval.Issue
	Diags    []diag.Diagnostic
	Err      error
}

// ToolResult is the outcome for one custom tool's adapter generation.
type ToolResult struct {
	Tool      string
	Artifacts []string
	Diags     []diag.Diagnostic
	Err       error
}

// Report aggregates everything a run produced.
type Report struct {
	RunID     string
	Started   time.Time
	Elapsed   time.Duration
	LoadDiags []diag.Diagnostic
	Targets   []TargetResult
	Tools     []ToolResult
}

// Success reports whether the run finished with no errors, no validation
// issues and no failed targets or tools.
func (r *Report) Success() bool {
	if diag.HasErrors(r.LoadDiags) {
		return false
	}
	for _, t := range r.Targets {
		if t.Err != nil || len(t.Issues) > 0 || diag.HasErrors(t.Diags) {
			return false
		}
	}
	for _, t := range r.Tools {
		if t.Err != nil || diag.HasErrors(t.Diags) {
			return false
		}
	}
	return true
}

// AllWarnings returns every warning-severity diagnostic across phases.
func (r *Report) AllWarnings() []diag.Diagnostic {
	var out []diag.Diagnostic
	out = append(out, diag.Warnings(r.LoadDiags)...)
	for _, t := range r.Targets {
		out = append(out, diag.Warnings(t.Diags)...)
	}
	for _, t := range r.Tools {
		out = append(out, diag.Warnings(t.Diags)...)
	}
	return out
}

// Summary renders the one-line outcome used for notifications.
func (r *Report) Summary() string {
	written := 0
	for _, t := range r.Targets {
		if t.Document != "" {
			written++
		}
	}
	status := "ok"
	if !r.Success() {
		status = "failed"
	}
	return fmt.Sprintf("%s: %d/%d targets written, %d warnings",
		status, written, len(r.Targets), len(r.AllWarnings()))
}

// run bundles the per-run state threaded through the phases.
type run struct {
	*Runner
	ws     *workspace.Workspace
	runID  string
	report *Report
	emit   func(Event)
}

// Run executes one build. The returned error covers only conditions that
// prevent the run from proceeding at all; per-target and per-tool failures
// land in the Report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	targets, err := r.resolveTargets()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	rn := &run{
		Runner: r,
		runID:  runID,
		report: &Report{RunID: runID, Started: time.Now()},
	}
	rn.emit = rn.emitter(rn.report.Started)
	log := r.log()

	rn.emit(NewEvent(EventBuildStarted, runID).WithPayload("workspace", r.WorkspaceDir))

	ws, loadDiags, err := workspace.Load(r.WorkspaceDir)
	if err != nil {
		return nil, err
	}
	rn.ws = ws
	rn.report.LoadDiags = loadDiags
	rn.warnings("", loadDiags)
	rn.emit(NewEvent(EventDefinitionsLoaded, runID).
		WithPayload("agents", len(ws.Agents)).
		WithPayload("skills", len(ws.Skills)).
		WithPayload("servers", len(ws.Servers)).
		WithPayload("tools", len(ws.Tools)).
		WithPayload("rules", len(ws.Rules)))
	log.Info("definitions loaded",
		"agents", len(ws.Agents), "skills", len(ws.Skills),
		"servers", len(ws.Servers), "tools", len(ws.Tools),
		"rules", len(ws.Rules), "diagnostics", len(loadDiags))

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return rn.report, err
		}
		rn.report.Targets = append(rn.report.Targets, rn.target(ctx, target))
	}

	rn.report.Elapsed = time.Since(rn.report.Started)
	rn.emit(NewEvent(EventBuildFinished, runID).
		WithPayload("success", rn.report.Success()).
		WithPayload("targets", len(rn.report.Targets)).
		WithPayload("warnings", len(rn.report.AllWarnings())))
	log.Info("build finished", "run_id", runID, "summary", rn.report.Summary(), "elapsed", rn.report.Elapsed)

	rn.notifyDone(ctx)
	return rn.report, nil
}

func (r *Runner) resolveTargets() ([]platform.Target, error) {
	opts := platform.Options{AskFold: r.AskFold}
	if len(r.Targets) == 0 {
		return platform.Targets(opts), nil
	}
	var out []platform.Target
	for _, name := range r.Targets {
		t, ok := platform.Lookup(name, opts)
		if !ok {
			return nil, fmt.Errorf("unknown target %q", name)
		}
		out = append(out, t)
	}
	return out, nil
}

// target runs generate, normalize, write, skills copy, tool generation for
// the opencode target, then validation. The document is written before
// validation so a failing document stays on disk for inspection.
func (rn *run) target(ctx context.Context, t platform.Target) TargetResult {
	name := t.Name()
	res := TargetResult{Target: name}

	doc, diags, err := t.Generate(rn.ws)
	if err != nil {
		res.Err = fmt.Errorf("generate %s: %w", name, err)
		return res
	}
	res.Diags = append(res.Diags, diags...)
	rn.warnings(name, diags)
	rn.emit(NewEvent(EventTargetGenerated, rn.runID).WithTarget(name).
		WithPayload("filename", doc.Filename))

	normDiags := platform.Normalize(doc)
	res.Diags = append(res.Diags, normDiags...)
	rn.warnings(name, normDiags)

	targetDir := filepath.Join(rn.OutDir, name)
	path := filepath.Join(targetDir, doc.Filename)
	if err := writeFile(path, doc.Body); err != nil {
		res.Err = fmt.Errorf("write %s: %w", doc.Filename, err)
		return res
	}
	res.Document = path
	rn.emit(NewEvent(EventTargetWritten, rn.runID).WithTarget(name).WithPayload("path", path))
	rn.log().Info("target written", "target", name, "path", path)

	if err := copySkills(rn.ws.Dir, targetDir); err != nil {
		res.Err = fmt.Errorf("copy skills: %w", err)
		return res
	}

	if name == "opencode" {
		rn.tools(ctx, targetDir)
	}

	if rn.Validate && filepath.Ext(doc.Filename) == ".json" {
		issues, err := rn.docValidator().Validate(ctx, doc.Body)
		if err != nil {
			res.Err = fmt.Errorf("validate %s: %w", doc.Filename, err)
			return res
		}
		res.Issues = issues
		rn.emit(NewEvent(EventTargetValidated, rn.runID).WithTarget(name).
			WithPayload("issues", len(issues)))
		if len(issues) > 0 {
			rn.log().Warn("schema validation failed", "target", name, "issues", len(issues))
		}
	}
	return res
}

// tools generates adapter artifacts for every loaded tool. Each tool is
// isolated: a script that cannot be read or scanned skips that tool only.
func (rn *run) tools(ctx context.Context, targetDir string) {
	for _, tool := range rn.ws.Tools {
		if ctx.Err() != nil {
			return
		}
		rn.report.Tools = append(rn.report.Tools, rn.tool(targetDir, tool))
	}
}

func (rn *run) tool(targetDir string, tool workspace.Tool) ToolResult {
	tr := ToolResult{Tool: tool.Name}
	scriptPath := filepath.Join(tool.Dir, tool.Entry)

	script, err := os.ReadFile(scriptPath) // #nosec G304 -- path from loaded definition
	if err != nil {
		tr.Err = err
		tr.Diags = append(tr.Diags, diag.Diagnostic{
			Code:     "tool_read",
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("Failed to read implementation: %v", err),
			Path:     scriptPath,
		})
		rn.emit(NewEvent(EventToolSkipped, rn.runID).WithTarget("opencode").
			WithPayload("tool", tool.Name).WithPayload("reason", "unreadable implementation"))
		return tr
	}

	sigs, err := pysig.Extract(script)
	if err != nil {
		tr.Err = err
		d := diag.Diagnostic{
			Code:     "signature_extraction",
			Severity: diag.SeverityError,
			Message:  err.Error(),
			Path:     scriptPath,
		}
		var xe *pysig.ExtractionError
		if errors.As(err, &xe) {
			d.Line = xe.Line
			d.Message = xe.Msg
		}
		tr.Diags = append(tr.Diags, d)
		rn.emit(NewEvent(EventToolSkipped, rn.runID).WithTarget("opencode").
			WithPayload("tool", tool.Name).WithPayload("reason", "signature extraction failed"))
		rn.log().Warn("tool skipped", "tool", tool.Name, "err", err)
		return tr
	}

	gen := adapter.Generator{Missing: rn.Missing}
	artifacts, adiags, err := gen.Generate(tool, sigs, script)
	tr.Diags = append(tr.Diags, adiags...)
	rn.warnings("opencode", adiags)
	if err != nil {
		tr.Err = err
		rn.emit(NewEvent(EventToolSkipped, rn.runID).WithTarget("opencode").
			WithPayload("tool", tool.Name).WithPayload("reason", "unresolved exports"))
		return tr
	}

	for _, a := range artifacts {
		path := filepath.Join(targetDir, "tools", tool.Name, a.Name)
		if err := writeFile(path, a.Body); err != nil {
			tr.Err = fmt.Errorf("write %s: %w", a.Name, err)
			return tr
		}
		tr.Artifacts = append(tr.Artifacts, path)
	}
	rn.emit(NewEvent(EventToolGenerated, rn.runID).WithTarget("opencode").
		WithPayload("tool", tool.Name).WithPayload("artifacts", len(tr.Artifacts)))
	return tr
}

func (rn *run) notifyDone(ctx context.Context) {
	if rn.Notifier == nil {
		return
	}
	msg := notify.Message{Title: "loom build", Text: rn.report.Summary()}
	if err := rn.Notifier.Notify(ctx, msg); err != nil {
		rn.log().Warn("notification failed", "err", err)
	}
}

// emitter stamps sequence numbers and elapsed time on outgoing events. Runs
// are single-threaded, so a plain counter is enough.
func (rn *run) emitter(started time.Time) func(Event) {
	var seq uint64
	return func(e Event) {
		if rn.Handler == nil {
			return
		}
		seq++
		e.Seq = seq
		e.Elapsed = time.Since(started)
		rn.Handler(e)
	}
}

// warnings emits one warning.emitted event per warning-severity diagnostic.
func (rn *run) warnings(target string, diags []diag.Diagnostic) {
	for _, d := range diag.Warnings(diags) {
		rn.emit(NewEvent(EventWarning, rn.runID).WithTarget(target).
			WithPayload("code", d.Code).
			WithPayload("message", d.Message).
			WithPayload("path", d.Path))
	}
}

func (rn *run) docValidator() documentValidator {
	if rn.validator == nil {
		rn.validator = schemaval.New(rn.SchemaTimeout)
	}
	return rn.validator
}

func (r *Runner) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// writeFile replaces path in one step: the full content goes to a temp file
// in the destination directory, then a rename swaps it in.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".loom-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

// copySkills mirrors the workspace skills tree into the target's output
// directory, replacing whatever was there.
func copySkills(wsDir, targetDir string) error {
	src := filepath.Join(wsDir, "skills")
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	dst := filepath.Join(targetDir, "skills")
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(out, 0o755)
		}
		data, err := os.ReadFile(path) // #nosec G304 -- path from workspace walk
		if err != nil {
			return err
		}
		return os.WriteFile(out, data, 0o644)
	})
}
