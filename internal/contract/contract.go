// Package contract validates model output against the executor output schema.
//
// The schema document is the single source of truth for the shape of a
// response. The Go code here only compiles it, runs it and converts the
// accepted value into domain types.
package contract

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hochfrequenz/prompt-executor/internal/domain"
	"github.com/hochfrequenz/prompt-executor/internal/pathsafe"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Version of the embedded contract document
const Version = "v1"

const (
	embeddedPath = "schema/executor-output.v1.schema.json"
	resourceURL  = "https://prompt-executor.local/contracts/executor-output.v1.schema.json"
)

// fallbackMessage is reported when the schema rejects a value without
// producing any individual violation.
const fallbackMessage = "Invalid schema"

//go:embed schema/*.json
var schemaFS embed.FS

// Result is the outcome of a validation: either Value is set, or Errors
// holds every violation joined into one diagnostic string.
type Result struct {
	Value  *domain.ExecutorOutput
	Errors string
}

// OK reports whether the value conformed to the contract
func (r Result) OK() bool {
	return r.Value != nil
}

// Validator runs values through a compiled contract document
type Validator struct {
	schema   *jsonschema.Schema
	document []byte
}

// EmbeddedDocument returns the built-in contract document
func EmbeddedDocument() []byte {
	doc, err := schemaFS.ReadFile(embeddedPath)
	if err != nil {
		panic(fmt.Sprintf("contract: embedded schema missing: %v", err))
	}
	return doc
}

// New compiles the embedded contract document
func New() (*Validator, error) {
	return Compile(EmbeddedDocument())
}

// Load compiles the contract document at path, or the embedded one when
// path is empty.
func Load(path string) (*Validator, error) {
	if path == "" {
		return New()
	}
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading contract %s: %w", path, err)
	}
	return Compile(doc)
}

// Compile builds a Validator from a JSON-Schema document
func Compile(document []byte) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(resourceURL, bytes.NewReader(document)); err != nil {
		return nil, fmt.Errorf("adding contract resource: %w", err)
	}
	schema, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compiling contract: %w", err)
	}
	return &Validator{schema: schema, document: document}, nil
}

// Document returns the raw contract document the validator was built from
func (v *Validator) Document() []byte {
	return v.document
}

// Decode parses a single JSON document for Validate. Numbers are kept as
// json.Number so values outside float64 range reach the schema instead of
// failing the parse. Trailing data after the document is an error.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid character after top-level value")
	}
	return data, nil
}

// Validate checks data, a value produced by Decode or encoding/json, against the
// contract. It never panics on malformed input.
func (v *Validator) Validate(data any) Result {
	if err := v.schema.Validate(data); err != nil {
		return Result{Errors: describe(err)}
	}

	out, err := toOutput(data)
	if err != nil {
		return Result{Errors: err.Error()}
	}
	return Result{Value: out}
}

// SanitizePaths rewrites every string files[i].path in place with
// pathsafe.Sanitize. Shapes that do not look like an output are left alone
// for Validate to reject.
func SanitizePaths(data any) {
	obj, ok := data.(map[string]any)
	if !ok {
		return
	}
	files, ok := obj["files"].([]any)
	if !ok {
		return
	}
	for _, f := range files {
		entry, ok := f.(map[string]any)
		if !ok {
			continue
		}
		if p, ok := entry["path"].(string); ok {
			entry["path"] = pathsafe.Sanitize(p)
		}
	}
}

// describe renders every leaf violation as "<location> <message>".
func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}

	var parts []string
	collectLeaves(ve, &parts)
	if len(parts) == 0 {
		return fallbackMessage
	}
	return strings.Join(parts, "; ")
}

func collectLeaves(ve *jsonschema.ValidationError, parts *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*parts = append(*parts, loc+" "+ve.Message)
		return
	}
	for _, cause := range ve.Causes {
		collectLeaves(cause, parts)
	}
}

// toOutput converts an accepted value into domain types. A loosened
// override contract can let through shapes that do not fit; those are
// reported instead of panicking.
func toOutput(data any) (*domain.ExecutorOutput, error) {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("/ value is not an object")
	}

	var out domain.ExecutorOutput
	if name, ok := obj["project_name"].(string); ok {
		out.ProjectName = name
	}

	files, ok := obj["files"].([]any)
	if !ok {
		return nil, fmt.Errorf("/files value is not an array")
	}
	out.Files = make([]domain.ExecutorFile, 0, len(files))
	for i, f := range files {
		entry, ok := f.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("/files/%d value is not an object", i)
		}
		path, okPath := entry["path"].(string)
		contents, okContents := entry["contents"].(string)
		if !okPath || !okContents {
			return nil, fmt.Errorf("/files/%d path and contents must be strings", i)
		}
		out.Files = append(out.Files, domain.ExecutorFile{Path: path, Contents: contents})
	}

	if notes, ok := obj["notes"].([]any); ok {
		out.Notes = make([]string, 0, len(notes))
		for i, n := range notes {
			s, ok := n.(string)
			if !ok {
				return nil, fmt.Errorf("/notes/%d value is not a string", i)
			}
			out.Notes = append(out.Notes, s)
		}
	}

	return &out, nil
}
