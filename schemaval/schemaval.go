// Package schemaval validates generated documents against the JSON Schema
// they declare via $schema. The schema is fetched with a single bounded GET
// per validation run, remote refs inside the schema are never followed, and
// validation always returns the complete issue list ordered by instance path
// rather than stopping at the first failure.
package schemaval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefaultTimeout bounds the schema fetch when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// ErrNoSchemaRef is returned when the document carries no $schema reference.
var ErrNoSchemaRef = errors.New("document declares no $schema reference")

// FetchError reports a failed schema fetch. Fetch failures are fatal for the
// platform run that needed the schema.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch schema %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// Issue is one validation finding. Path is the instance location in display
// form ("root" for the document itself, "agent -> helper" below it).
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Validator fetches and caches nothing between runs; each Fetch is one GET.
type Validator struct {
	client *http.Client
}

// New returns a Validator whose fetches are bounded by timeout.
func New(timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Validator{client: &http.Client{Timeout: timeout}}
}

// Schema is one fetched and compiled schema. It can check several documents
// without refetching, which is how strict-then-relaxed validation stays
// within the single-fetch budget.
type Schema struct {
	URL string

	raw      map[string]any
	data     []byte
	compiled *jsonschema.Schema
	relaxed  *jsonschema.Schema
}

// Validate fetches the schema doc references and validates doc against it.
func (v *Validator) Validate(ctx context.Context, doc []byte) ([]Issue, error) {
	s, err := v.Fetch(ctx, doc)
	if err != nil {
		return nil, err
	}
	return s.Validate(doc)
}

// Fetch resolves the document's $schema reference with one bounded GET and
// compiles it with a validator matching the schema's declared draft. Refs to
// other remote schemas are refused rather than fetched.
func (v *Validator) Fetch(ctx context.Context, doc []byte) (*Schema, error) {
	var parsed struct {
		Schema string `json:"$schema"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if parsed.Schema == "" {
		return nil, ErrNoSchemaRef
	}
	url := parsed.Schema

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema %s is not valid JSON: %w", url, err)
	}

	compiled, err := compile(url, data)
	if err != nil {
		return nil, err
	}
	return &Schema{URL: url, raw: raw, data: data, compiled: compiled}, nil
}

// Validate checks doc and returns every finding, ordered by instance path.
func (s *Schema) Validate(doc []byte) ([]Issue, error) {
	return validate(s.compiled, doc)
}

// ValidateRelaxed checks doc against a copy of the schema whose top level
// admits additional properties. A document that passes relaxed validation
// but fails strict validation only needs its extra keys removed.
func (s *Schema) ValidateRelaxed(doc []byte) ([]Issue, error) {
	if s.relaxed == nil {
		loose := make(map[string]any, len(s.raw)+1)
		for k, val := range s.raw {
			loose[k] = val
		}
		loose["additionalProperties"] = true
		data, err := json.Marshal(loose)
		if err != nil {
			return nil, fmt.Errorf("relax schema: %w", err)
		}
		s.relaxed, err = compile(s.URL, data)
		if err != nil {
			return nil, err
		}
	}
	return validate(s.relaxed, doc)
}

// ExtraKeys returns the document's top-level keys that the schema's
// properties do not mention, sorted.
func (s *Schema) ExtraKeys(doc []byte) ([]string, error) {
	var val map[string]any
	if err := json.Unmarshal(doc, &val); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	props, _ := s.raw["properties"].(map[string]any)

	var extra []string
	for key := range val {
		if _, ok := props[key]; !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return extra, nil
}

func compile(url string, data []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.LoadURL = func(ref string) (io.ReadCloser, error) {
		return nil, fmt.Errorf("schema %s: remote refs are not fetched", ref)
	}
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("schema %s: %w", url, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", url, err)
	}
	return compiled, nil
}

func validate(schema *jsonschema.Schema, doc []byte) ([]Issue, error) {
	var val any
	if err := json.Unmarshal(doc, &val); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	err := schema.Validate(val)
	if err == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, fmt.Errorf("validate document: %w", err)
	}

	var issues []Issue
	collect(ve, &issues)
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Path != issues[j].Path {
			return issues[i].Path < issues[j].Path
		}
		return issues[i].Message < issues[j].Message
	})
	// anyOf branches repeat leaves; identical findings collapse to one.
	deduped := issues[:0]
	for i, issue := range issues {
		if i == 0 || issue != issues[i-1] {
			deduped = append(deduped, issue)
		}
	}
	return deduped, nil
}

// collect walks to the leaves of the validation tree; inner nodes repeat
// their causes without adding a location.
func collect(ve *jsonschema.ValidationError, issues *[]Issue) {
	if len(ve.Causes) == 0 {
		*issues = append(*issues, Issue{
			Path:    displayPath(ve.InstanceLocation),
			Message: ve.Message,
		})
		return
	}
	for _, cause := range ve.Causes {
		collect(cause, issues)
	}
}

// displayPath renders a JSON pointer the way reports show it: "root" for the
// document, path segments joined with arrows below it.
func displayPath(pointer string) string {
	if pointer == "" || pointer == "/" {
		return "root"
	}
	segments := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	for i, seg := range segments {
		seg = strings.ReplaceAll(seg, "~1", "/")
		segments[i] = strings.ReplaceAll(seg, "~0", "~")
	}
	return strings.Join(segments, " -> ")
}
