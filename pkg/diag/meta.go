package diag

import "fmt"

// ConfigMeta is the source location attached to a configuration value when it
// is constructed. It is never mutated after construction.
type ConfigMeta struct {
	// Filename is the source file path.
	Filename string `json:"filename,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`
}

// Meta builds a ConfigMeta.
func Meta(filename string, line, column int) ConfigMeta {
	return ConfigMeta{Filename: filename, Line: line, Column: column}
}

// IsZero reports whether the location is unknown.
func (m ConfigMeta) IsZero() bool {
	return m.Filename == "" && m.Line == 0 && m.Column == 0
}

// String formats the location as file:line:col.
func (m ConfigMeta) String() string {
	if m.IsZero() {
		return "<unknown>"
	}
	filename := m.Filename
	if filename == "" {
		filename = "<inline>"
	}
	if m.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", filename, m.Line, m.Column)
	}
	return fmt.Sprintf("%s:%d", filename, m.Line)
}
