// Package pysig recovers callable signatures from Python tool sources by
// scanning the text. Nothing is ever imported or executed: the scanner walks
// lines, tracks strings and indentation, and reads def headers syntactically.
//
// Extracted names are bare for top-level functions and "Class.method" for
// methods, which is the keying convention the adapter generator dispatches on.
package pysig

import (
	"fmt"
	"strings"
)

// Signature describes one extracted callable.
type Signature struct {
	// Name is the export key: "fetch" or "Helper.run".
	Name string
	// Params are the callable's parameters in declaration order, with
	// receiver parameters (self, cls) already removed.
	Params []Param
	// ReturnType is the canonical annotation string, or "" when absent.
	ReturnType string
	// Docstring is the cleaned docstring, or "" when absent.
	Docstring string
	// Description is the docstring's first line.
	Description string
}

// Param is a single parameter of an extracted signature.
type Param struct {
	Name string
	// Type is the canonical annotation string, or "" when unannotated.
	Type string
	// Default is the resolved literal default. Nil means no default: either
	// none was written, or the expression was not a literal.
	Default *Literal
	// Description comes from the docstring's Args block, or "".
	Description string
}

// LiteralKind enumerates the closed set of default-literal shapes.
type LiteralKind string

const (
	LiteralString LiteralKind = "string"
	LiteralNumber LiteralKind = "number"
	LiteralBool   LiteralKind = "bool"
	LiteralNull   LiteralKind = "null"
	LiteralList   LiteralKind = "list"
	LiteralObject LiteralKind = "object"
)

// Literal is a resolved literal default value. Exactly the field matching
// Kind is meaningful.
type Literal struct {
	Kind   LiteralKind
	Str    string // LiteralString: the decoded value
	Num    string // LiteralNumber: the numeral as written in source
	Bool   bool   // LiteralBool
	List   []Literal
	Object []ObjectField
}

// ObjectField is one key/value pair of an object literal. Fields keep their
// source order so rendered defaults are deterministic.
type ObjectField struct {
	Key   string
	Value Literal
}

// ExtractionError reports a source that could not be scanned. No partial
// signature map accompanies it.
type ExtractionError struct {
	Line int
	Msg  string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("signature extraction failed at line %d: %s", e.Line, e.Msg)
}

// TopLevel filters signatures down to the names containing no namespace
// separator, i.e. the plain functions, keeping source order. Auto-discovery
// is defined over exactly this set: methods are never auto-discovered.
func TopLevel(sigs []Signature) []Signature {
	var out []Signature
	for _, sig := range sigs {
		if !strings.Contains(sig.Name, ".") {
			out = append(out, sig)
		}
	}
	return out
}
