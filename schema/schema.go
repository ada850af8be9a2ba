// Package schema provides declarative descriptions of the structured
// output expected from a text-generation backend.
//
// A Descriptor lists the fields a payload must carry, along with type
// tags and per-field constraints (required, enumerated values, numeric
// ranges, defaults). Descriptors are immutable once constructed:
// callers build one, validate it, and pass it with each extraction
// request. The same Descriptor renders deterministically into prompt
// text (see Render) and checks decoded payloads field by field (see
// Check).
package schema

import (
	"fmt"
	"strings"
)

// FieldType is the type tag for a schema field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeList    FieldType = "list"
	TypeObject  FieldType = "object"
)

// Field describes a single expected field in the output payload.
type Field struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`

	// Enum restricts a string field to the listed values.
	Enum []string `json:"enum,omitempty" yaml:"enum,omitempty"`

	// Min and Max bound a number field (inclusive).
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`

	// Default is applied to the payload before validation when an
	// optional field is absent. Not allowed on required fields.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`

	// Items describes the element type of a list field.
	Items *Field `json:"items,omitempty" yaml:"items,omitempty"`

	// Fields describes the members of a nested object field.
	Fields []Field `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Descriptor is an ordered collection of fields describing the
// expected output shape. Field order is preserved through rendering.
type Descriptor struct {
	Fields []Field `json:"fields" yaml:"fields"`
}

// New creates a Descriptor from the given fields.
func New(fields ...Field) Descriptor {
	return Descriptor{Fields: fields}
}

// Validate performs a structural self-check of the descriptor.
// It is a caller error, not a backend failure, for this to fail:
// extraction refuses malformed descriptors before any network call.
func (d Descriptor) Validate() error {
	if len(d.Fields) == 0 {
		return fmt.Errorf("descriptor has no fields")
	}
	return validateFields(d.Fields, "")
}

func validateFields(fields []Field, path string) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		name := joinPath(path, f.Name)
		if f.Name == "" {
			return fmt.Errorf("field with empty name at %q", path)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", name)
		}
		seen[f.Name] = true

		switch f.Type {
		case TypeString, TypeNumber, TypeBoolean, TypeList, TypeObject:
		default:
			return fmt.Errorf("field %q has unknown type %q", name, f.Type)
		}

		if len(f.Enum) > 0 && f.Type != TypeString {
			return fmt.Errorf("field %q: enum constraint requires string type, got %s", name, f.Type)
		}
		if (f.Min != nil || f.Max != nil) && f.Type != TypeNumber {
			return fmt.Errorf("field %q: range constraint requires number type, got %s", name, f.Type)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("field %q: min %v exceeds max %v", name, *f.Min, *f.Max)
		}
		if f.Required && f.Default != nil {
			return fmt.Errorf("field %q: required fields cannot carry a default", name)
		}

		switch f.Type {
		case TypeList:
			if f.Items == nil {
				return fmt.Errorf("field %q: list fields require an item type", name)
			}
			// Item fields describe elements, not members: validate as a
			// single-element field list under the parent path.
			item := *f.Items
			if item.Name == "" {
				item.Name = "item"
			}
			if err := validateFields([]Field{item}, name); err != nil {
				return err
			}
		case TypeObject:
			if len(f.Fields) == 0 {
				return fmt.Errorf("field %q: object fields require nested fields", name)
			}
			if err := validateFields(f.Fields, name); err != nil {
				return err
			}
		default:
			if f.Items != nil {
				return fmt.Errorf("field %q: item type only allowed on lists", name)
			}
			if len(f.Fields) > 0 {
				return fmt.Errorf("field %q: nested fields only allowed on objects", name)
			}
		}
	}
	return nil
}

// Violation reports a single failed constraint in a checked payload.
// The String form is stable: it is fed back verbatim into corrective
// prompts, so changing the wording changes retry behavior.
type Violation struct {
	Path    string
	Message string
}

func (v Violation) String() string {
	return v.Path + ": " + v.Message
}

// ViolationList renders violations one per line for prompt embedding.
func ViolationList(violations []Violation) string {
	lines := make([]string, len(violations))
	for i, v := range violations {
		lines[i] = "- " + v.String()
	}
	return strings.Join(lines, "\n")
}

// WithDefaults returns a copy of the payload with defaults filled in
// for absent optional fields. The input map is not modified.
func (d Descriptor) WithDefaults(payload map[string]any) map[string]any {
	return withDefaults(d.Fields, payload)
}

func withDefaults(fields []Field, payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	for _, f := range fields {
		v, present := out[f.Name]
		if !present {
			if f.Default != nil {
				out[f.Name] = f.Default
			}
			continue
		}
		if f.Type == TypeObject {
			if nested, ok := v.(map[string]any); ok {
				out[f.Name] = withDefaults(f.Fields, nested)
			}
		}
	}
	return out
}

// Check validates a decoded payload field by field and returns every
// violated constraint. An empty result means the payload conforms.
// Fields not named by the descriptor are ignored: backends routinely
// volunteer extras, and rejecting them would only burn retries.
func (d Descriptor) Check(payload map[string]any) []Violation {
	return checkFields(d.Fields, payload, "")
}

func checkFields(fields []Field, payload map[string]any, path string) []Violation {
	var violations []Violation
	for _, f := range fields {
		name := joinPath(path, f.Name)
		value, present := payload[f.Name]
		if !present || value == nil {
			if f.Required {
				violations = append(violations, Violation{
					Path:    name,
					Message: "required field is missing",
				})
			}
			continue
		}
		violations = append(violations, checkValue(f, name, value)...)
	}
	return violations
}

// checkValue validates a single present value against its field.
// JSON decoding yields float64 for numbers, so that is the only
// numeric representation accepted.
func checkValue(f Field, name string, value any) []Violation {
	switch f.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return typeViolation(name, f.Type, value)
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			return []Violation{{
				Path:    name,
				Message: fmt.Sprintf("value %q is not one of the allowed values [%s]", s, strings.Join(f.Enum, ", ")),
			}}
		}
	case TypeNumber:
		n, ok := value.(float64)
		if !ok {
			if i, isInt := value.(int); isInt {
				n, ok = float64(i), true
			}
		}
		if !ok {
			return typeViolation(name, f.Type, value)
		}
		if f.Min != nil && n < *f.Min {
			return []Violation{{
				Path:    name,
				Message: fmt.Sprintf("value %v is below the minimum %v", n, *f.Min),
			}}
		}
		if f.Max != nil && n > *f.Max {
			return []Violation{{
				Path:    name,
				Message: fmt.Sprintf("value %v is above the maximum %v", n, *f.Max),
			}}
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return typeViolation(name, f.Type, value)
		}
	case TypeList:
		items, ok := value.([]any)
		if !ok {
			return typeViolation(name, f.Type, value)
		}
		if f.Items == nil {
			return nil
		}
		var violations []Violation
		for i, item := range items {
			violations = append(violations, checkValue(*f.Items, fmt.Sprintf("%s[%d]", name, i), item)...)
		}
		return violations
	case TypeObject:
		nested, ok := value.(map[string]any)
		if !ok {
			return typeViolation(name, f.Type, value)
		}
		return checkFields(f.Fields, nested, name)
	}
	return nil
}

func typeViolation(name string, want FieldType, got any) []Violation {
	return []Violation{{
		Path:    name,
		Message: fmt.Sprintf("expected %s, got %s", want, typeName(got)),
	}}
}

// typeName maps a decoded JSON value back to schema type vocabulary
// so violation messages speak the same language as the prompt.
func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, int:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
