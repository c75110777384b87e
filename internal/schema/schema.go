// Package schema validates device payloads against embedded JSON Schema
// documents compiled once at startup.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed create.json update.json response.json
var documents embed.FS

var (
	ErrInvalidJSON = errors.New("invalid JSON body")
	ErrEmptyUpdate = errors.New("no fields to update")
)

// FieldError names one violated constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a payload parses but breaks the schema.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// CreateInput is a validated create payload with defaults applied.
type CreateInput struct {
	Name      string  `json:"name"`
	IPAddress string  `json:"ip_address"`
	Type      string  `json:"type"`
	Location  *string `json:"location"`
	Status    string  `json:"status"`
	Notes     *string `json:"notes"`
}

type Validator struct {
	create   *jsonschema.Schema
	update   *jsonschema.Schema
	response *jsonschema.Schema
}

func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	compiler.AssertFormat = true
	for _, name := range []string{"create.json", "update.json", "response.json"} {
		b, err := documents.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("load schema %s: %w", name, err)
		}
	}
	v := &Validator{}
	var err error
	if v.create, err = compiler.Compile("create.json"); err != nil {
		return nil, fmt.Errorf("compile create schema: %w", err)
	}
	if v.update, err = compiler.Compile("update.json"); err != nil {
		return nil, fmt.Errorf("compile update schema: %w", err)
	}
	if v.response, err = compiler.Compile("response.json"); err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}
	return v, nil
}

// Create validates a create body. Status defaults to "offline".
func (v *Validator) Create(body []byte) (CreateInput, error) {
	var in CreateInput
	if _, err := validate(v.create, body); err != nil {
		return in, err
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return in, ErrInvalidJSON
	}
	if in.Status == "" {
		in.Status = "offline"
	}
	return in, nil
}

// Update validates an update body and returns only the fields present.
// A null location or notes maps to a nil value.
func (v *Validator) Update(body []byte) (map[string]any, error) {
	doc, err := validate(v.update, body)
	if err != nil {
		return nil, err
	}
	fields, _ := doc.(map[string]any)
	if len(fields) == 0 {
		return nil, ErrEmptyUpdate
	}
	return fields, nil
}

// Response checks a serialized device against the response shape.
func (v *Validator) Response(body []byte) error {
	_, err := validate(v.response, body)
	return err
}

func validate(s *jsonschema.Schema, body []byte) (any, error) {
	var doc any
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrInvalidJSON
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, ErrInvalidJSON
	}
	if err := s.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, &ValidationError{Errors: fieldErrors(ve)}
		}
		return nil, err
	}
	return doc, nil
}

var quoted = regexp.MustCompile(`'([^']*)'`)

func fieldErrors(root *jsonschema.ValidationError) []FieldError {
	var out []FieldError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		out = append(out, leafErrors(e)...)
	}
	walk(root)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func leafErrors(e *jsonschema.ValidationError) []FieldError {
	field := strings.TrimPrefix(e.InstanceLocation, "/")
	kw := e.KeywordLocation[strings.LastIndex(e.KeywordLocation, "/")+1:]
	switch kw {
	case "required", "additionalProperties":
		msg := "is required"
		if kw == "additionalProperties" {
			msg = "unknown field"
		}
		var out []FieldError
		for _, m := range quoted.FindAllStringSubmatch(e.Message, -1) {
			name := m[1]
			if field != "" {
				name = field + "." + name
			}
			out = append(out, FieldError{Field: name, Message: msg})
		}
		if len(out) > 0 {
			return out
		}
	}
	if field == "" {
		field = "body"
	}
	return []FieldError{{Field: field, Message: e.Message}}
}
