// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationResult carries every schema violation found in a document.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error joins the violations into one line.
func (r *ValidationResult) Error() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// Schema is a compiled JSON schema.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// Compile parses a JSON schema document.
func Compile(name, source string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: s}, nil
}

// MustCompile is Compile for package-level schemas.
func MustCompile(name, source string) *Schema {
	s, err := Compile(name, source)
	if err != nil {
		panic(err)
	}
	return s
}

// ValidateBytes validates a raw JSON document.
func (s *Schema) ValidateBytes(doc []byte) (*ValidationResult, error) {
	return s.validate(gojsonschema.NewBytesLoader(doc))
}

func (s *Schema) validate(loader gojsonschema.JSONLoader) (*ValidationResult, error) {
	result, err := s.schema.Validate(loader)
	if err != nil {
		return nil, fmt.Errorf("validate against %s: %w", s.name, err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

// SocketFrameSchema describes every inbound live-connection frame.
const SocketFrameSchema = `{
  "type": "object",
  "required": ["event"],
  "properties": {
    "event": {"type": "string", "enum": ["join", "leave", "ping"]},
    "data": {"type": "object"}
  },
  "allOf": [
    {
      "if": {"properties": {"event": {"const": "join"}}},
      "then": {
        "required": ["data"],
        "properties": {
          "data": {
            "type": "object",
            "required": ["userId"],
            "properties": {"userId": {"type": "string", "minLength": 1, "maxLength": 128}}
          }
        }
      }
    }
  ]
}`

// ApplicationPayloadSchema describes create/update bodies on the HTTP API.
const ApplicationPayloadSchema = `{
  "type": "object",
  "properties": {
    "title": {"type": "string", "maxLength": 200},
    "status": {"type": "string", "minLength": 1, "maxLength": 64},
    "fields": {
      "type": "object",
      "additionalProperties": {"type": "string", "maxLength": 2000}
    }
  },
  "additionalProperties": false
}`
