// Package platform shapes a loaded workspace into the configuration document
// each supported agent platform consumes. Every target produces exactly one
// document; tool adapters and skill copy-through are handled by the pipeline.
//
// Shaping is explicit about loss: whenever a target's format cannot carry a
// definition field, the target either emits a warning diagnostic or, where a
// policy says so, fails the shaping. A clean round through Generate followed
// by Normalize yields a document that passes the platform's published schema.
package platform

import (
	"github.com/loomworks/loom/diag"
	"github.com/loomworks/loom/workspace"
)

// Document is one rendered configuration file. Filename is relative to the
// target's output directory.
type Document struct {
	Filename string
	Body     []byte
}

// Target shapes a workspace snapshot into one platform's configuration.
// Implementations never mutate the workspace.
type Target interface {
	// Name is the stable target name used in CLI flags and output paths.
	Name() string

	// Filename is the document filename inside the target's output directory.
	Filename() string

	// Generate renders the target's document. Warnings about lossy shaping
	// come back as diagnostics; the error is reserved for failures that make
	// the document unusable.
	Generate(ws *workspace.Workspace) (*Document, []diag.Diagnostic, error)
}

// AskFoldPolicy decides what happens to an "ask" tool permission on platforms
// whose permission space is boolean.
type AskFoldPolicy int

const (
	// AskFoldDeny folds "ask" to deny and records a warning per folded tool.
	AskFoldDeny AskFoldPolicy = iota
	// AskFoldReject turns "ask" into a shaping error.
	AskFoldReject
)

// Options carries the shaping policies targets consult.
type Options struct {
	AskFold AskFoldPolicy
}

// Targets returns every supported target in generation order.
func Targets(opts Options) []Target {
	return []Target{
		&OpenCode{},
		&Continue{AskFold: opts.AskFold},
		&Claude{},
	}
}

// Lookup returns the named target.
func Lookup(name string, opts Options) (Target, bool) {
	for _, t := range Targets(opts) {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Names returns the supported target names in generation order.
func Names() []string {
	targets := Targets(Options{})
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Name()
	}
	return names
}
