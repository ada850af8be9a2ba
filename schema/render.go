// Schema rendering for prompt embedding.
//
// The rendered text is what the backend actually sees, so it is part
// of the extraction contract: rendering is deterministic (same
// descriptor and mode always produce identical text) and the indented
// mode spreads the schema over multiple lines. Collapsing the schema
// onto one line measurably degrades how well backends honor the shape,
// which is why indented is the default and compact exists only for
// callers who explicitly trade quality for prompt size.

package schema

import (
	"fmt"
	"strings"
)

// FormatMode selects how a descriptor is serialized into prompt text.
type FormatMode string

const (
	// FormatIndented renders one field per line with two-space
	// indentation. Default.
	FormatIndented FormatMode = "indented"
	// FormatCompact renders the whole schema on a single line.
	FormatCompact FormatMode = "compact"
)

// ParseFormatMode parses a format mode from string (case-insensitive).
func ParseFormatMode(s string) (FormatMode, error) {
	switch strings.ToLower(s) {
	case "", "indented":
		return FormatIndented, nil
	case "compact":
		return FormatCompact, nil
	default:
		return "", fmt.Errorf("unknown format mode: %q", s)
	}
}

// Render serializes the descriptor into the human-readable form
// embedded in prompts: field name, type, required/optional, and any
// constraints. Field order follows the descriptor.
func (d Descriptor) Render(mode FormatMode) string {
	var b strings.Builder
	if mode == FormatCompact {
		b.WriteString("{")
		renderCompact(&b, d.Fields)
		b.WriteString("}")
		return b.String()
	}
	b.WriteString("{\n")
	renderIndented(&b, d.Fields, 1)
	b.WriteString("}")
	return b.String()
}

func renderIndented(b *strings.Builder, fields []Field, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range fields {
		b.WriteString(indent)
		b.WriteString(fieldLabel(f))
		if f.Type == TypeObject {
			b.WriteString(" {\n")
			renderIndented(b, f.Fields, depth+1)
			b.WriteString(indent)
			b.WriteString("}")
		}
		b.WriteString("\n")
	}
}

func renderCompact(b *strings.Builder, fields []Field) {
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fieldLabel(f))
		if f.Type == TypeObject {
			b.WriteString(" {")
			renderCompact(b, f.Fields)
			b.WriteString("}")
		}
	}
}

// fieldLabel renders one field's name, type, and constraint summary.
func fieldLabel(f Field) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q: %s", f.Name, typeLabel(f))

	attrs := []string{requiredLabel(f.Required)}
	if len(f.Enum) > 0 {
		attrs = append(attrs, "one of: "+strings.Join(f.Enum, ", "))
	}
	if f.Min != nil && f.Max != nil {
		attrs = append(attrs, fmt.Sprintf("range %v to %v", *f.Min, *f.Max))
	} else if f.Min != nil {
		attrs = append(attrs, fmt.Sprintf("minimum %v", *f.Min))
	} else if f.Max != nil {
		attrs = append(attrs, fmt.Sprintf("maximum %v", *f.Max))
	}
	if f.Default != nil {
		attrs = append(attrs, fmt.Sprintf("default %v", f.Default))
	}
	fmt.Fprintf(&b, " (%s)", strings.Join(attrs, ", "))

	if f.Description != "" {
		fmt.Fprintf(&b, " - %s", f.Description)
	}
	return b.String()
}

func typeLabel(f Field) string {
	if f.Type == TypeList && f.Items != nil {
		return fmt.Sprintf("list of %s", typeLabel(*f.Items))
	}
	return string(f.Type)
}

func requiredLabel(required bool) string {
	if required {
		return "required"
	}
	return "optional"
}
