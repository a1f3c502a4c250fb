// Package loom transpiles a single agent workspace definition tree into the
// configuration each supported agent platform consumes.
//
// This file re-exports the types and constructors most callers need. Code
// using loom.* imports keeps working as subpackages evolve; for finer-grained
// dependencies import the subpackages directly:
//
//	import "github.com/loomworks/loom/workspace"
//	import "github.com/loomworks/loom/platform"
//	import "github.com/loomworks/loom/pipeline"
package loom

import (
	"context"

	"github.com/loomworks/loom/depcheck"
	"github.com/loomworks/loom/diag"
	"github.com/loomworks/loom/notify"
	"github.com/loomworks/loom/pipeline"
	"github.com/loomworks/loom/platform"
	"github.com/loomworks/loom/workspace"
)

// Type aliases from the workspace package
type (
	// Workspace is one loaded definition tree.
	Workspace = workspace.Workspace

	// Agent is a loaded agent definition.
	Agent = workspace.Agent

	// Skill is a loaded skill definition.
	Skill = workspace.Skill

	// Server is a loaded MCP server definition.
	Server = workspace.Server

	// Tool is a loaded custom tool definition.
	Tool = workspace.Tool

	// Export declares one callable a tool exposes.
	Export = workspace.Export

	// Rule is a loaded rule document.
	Rule = workspace.Rule

	// Permission is one tool permission level: allow, deny or ask.
	Permission = workspace.Permission
)

// Type aliases from the diag package
type (
	// Diagnostic is one error or warning produced by any phase.
	Diagnostic = diag.Diagnostic
)

// Type aliases from the platform package
type (
	// Target shapes a workspace into one platform's configuration.
	Target = platform.Target

	// Document is one rendered configuration file.
	Document = platform.Document

	// Options carries the shaping policies targets consult.
	Options = platform.Options

	// AskFoldPolicy decides what happens to "ask" permissions on platforms
	// whose permission space is boolean.
	AskFoldPolicy = platform.AskFoldPolicy
)

// AskFoldPolicy constants
const (
	AskFoldDeny   = platform.AskFoldDeny
	AskFoldReject = platform.AskFoldReject
)

// Type aliases from the pipeline package
type (
	// Runner drives build runs end to end.
	Runner = pipeline.Runner

	// Report aggregates everything a run produced.
	Report = pipeline.Report

	// TargetResult is the outcome for one platform.
	TargetResult = pipeline.TargetResult

	// ToolResult is the outcome for one custom tool's adapter generation.
	ToolResult = pipeline.ToolResult

	// Event is a structured record of what happened during a run.
	Event = pipeline.Event

	// EventKind identifies the type of event emitted during a run.
	EventKind = pipeline.EventKind

	// EventHandler receives events as a run progresses.
	EventHandler = pipeline.EventHandler
)

// EventKind constants
const (
	EventBuildStarted      = pipeline.EventBuildStarted
	EventDefinitionsLoaded = pipeline.EventDefinitionsLoaded
	EventToolGenerated     = pipeline.EventToolGenerated
	EventToolSkipped       = pipeline.EventToolSkipped
	EventTargetGenerated   = pipeline.EventTargetGenerated
	EventTargetWritten     = pipeline.EventTargetWritten
	EventTargetValidated   = pipeline.EventTargetValidated
	EventWarning           = pipeline.EventWarning
	EventBuildFinished     = pipeline.EventBuildFinished
)

// Type aliases from the depcheck and notify packages
type (
	// CheckReport lists declared references with no loaded definition.
	CheckReport = depcheck.Report

	// Notifier delivers one message.
	Notifier = notify.Notifier

	// Message is one notification.
	Message = notify.Message
)

// Constructors and helpers re-exported from subpackages
var (
	Load                = workspace.Load
	Targets             = platform.Targets
	LookupTarget        = platform.Lookup
	TargetNames         = platform.Names
	CheckDependencies   = depcheck.Check
	MultiEventHandler   = pipeline.MultiEventHandler
	ChannelEventHandler = pipeline.ChannelEventHandler
	NewSessionNotifier  = notify.NewSession
)

// Build is a convenience function that transpiles the workspace at dir into
// outDir with default policies. Use a Runner directly for validation,
// events or notification.
func Build(ctx context.Context, dir, outDir string) (*Report, error) {
	r := &Runner{WorkspaceDir: dir, OutDir: outDir}
	return r.Run(ctx)
}
