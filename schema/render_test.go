package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func demoDescriptor() Descriptor {
	return New(
		Field{Name: "name", Type: TypeString, Required: true, Description: "full name"},
		Field{Name: "age", Type: TypeNumber, Required: true, Min: floatPtr(0), Max: floatPtr(150)},
		Field{Name: "status", Type: TypeString, Enum: []string{"active", "inactive"}, Default: "active"},
		Field{Name: "tags", Type: TypeList, Items: &Field{Type: TypeString}},
		Field{Name: "address", Type: TypeObject, Fields: []Field{
			{Name: "city", Type: TypeString, Required: true},
		}},
	)
}

func TestRenderDeterministic(t *testing.T) {
	d := demoDescriptor()
	for _, mode := range []FormatMode{FormatIndented, FormatCompact} {
		first := d.Render(mode)
		second := d.Render(mode)
		if first != second {
			t.Errorf("%s rendering not deterministic:\n%s\nvs\n%s", mode, first, second)
		}
	}
}

func TestRenderIndentedIsMultiLine(t *testing.T) {
	text := demoDescriptor().Render(FormatIndented)
	if !strings.Contains(text, "\n") {
		t.Fatal("indented rendering must span multiple lines")
	}
	// One line per field plus braces; nested object adds its own lines.
	lines := strings.Split(text, "\n")
	if len(lines) < 7 {
		t.Errorf("expected at least 7 lines, got %d:\n%s", len(lines), text)
	}
	if !strings.Contains(text, `  "name": string (required)`) {
		t.Errorf("expected indented field line, got:\n%s", text)
	}
}

func TestRenderCompactIsSingleLine(t *testing.T) {
	text := demoDescriptor().Render(FormatCompact)
	if strings.Contains(text, "\n") {
		t.Errorf("compact rendering must be a single line, got:\n%s", text)
	}
}

func TestRenderConstraints(t *testing.T) {
	text := demoDescriptor().Render(FormatIndented)
	for _, want := range []string{
		"range 0 to 150",
		"one of: active, inactive",
		"default active",
		"list of string",
		"full name",
		"optional",
		"required",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected rendering to contain %q:\n%s", want, text)
		}
	}
}

func TestRenderPreservesFieldOrder(t *testing.T) {
	text := demoDescriptor().Render(FormatIndented)
	nameIdx := strings.Index(text, `"name"`)
	ageIdx := strings.Index(text, `"age"`)
	statusIdx := strings.Index(text, `"status"`)
	if !(nameIdx < ageIdx && ageIdx < statusIdx) {
		t.Errorf("fields rendered out of order:\n%s", text)
	}
}

func TestParseFormatMode(t *testing.T) {
	tests := []struct {
		in      string
		want    FormatMode
		wantErr bool
	}{
		{"", FormatIndented, false},
		{"indented", FormatIndented, false},
		{"Compact", FormatCompact, false},
		{"pretty", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormatMode(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormatMode(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormatMode(%q): unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormatMode(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLoadFileYAML(t *testing.T) {
	content := `fields:
  - name: name
    type: string
    required: true
  - name: status
    type: string
    enum: [active, inactive]
    default: active
`
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(d.Fields))
	}
	if d.Fields[1].Default != "active" {
		t.Errorf("expected default carried through, got %v", d.Fields[1].Default)
	}
}

func TestLoadFileJSON(t *testing.T) {
	content := `{"fields": [{"name": "age", "type": "number", "required": true, "min": 0, "max": 150}]}`
	path := filepath.Join(t.TempDir(), "schema.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Fields[0].Max == nil || *d.Fields[0].Max != 150 {
		t.Errorf("expected max constraint loaded, got %v", d.Fields[0].Max)
	}
}

func TestLoadFileRejectsInvalidSchema(t *testing.T) {
	content := `fields: []`
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for schema with no fields")
	}
}
