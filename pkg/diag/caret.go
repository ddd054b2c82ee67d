package diag

import (
	"fmt"
	"strings"
)

// Caret renders the error with the offending source line and a caret under
// the reported column. source is the full text of e.Meta.Filename; when the
// line is not available only the error line is returned.
func (e *Error) Caret(source string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "error[%s]: %s\n", e.Kind, e.headline())
	if e.Meta.IsZero() {
		return b.String()
	}
	fmt.Fprintf(&b, " --> %s\n", e.Meta)
	line, ok := sourceLine(source, e.Meta.Line)
	if !ok {
		return b.String()
	}
	gutter := fmt.Sprintf("%d", e.Meta.Line)
	pad := strings.Repeat(" ", len(gutter))
	fmt.Fprintf(&b, "%s |\n", pad)
	fmt.Fprintf(&b, "%s | %s\n", gutter, line)
	col := e.Meta.Column
	if col < 1 {
		col = 1
	}
	// Keep tabs so the caret lines up with the rendered source.
	var indent strings.Builder
	n := 0
	for _, r := range line {
		if n >= col-1 {
			break
		}
		if r == '\t' {
			indent.WriteRune('\t')
		} else {
			indent.WriteRune(' ')
		}
		n++
	}
	fmt.Fprintf(&b, "%s | %s^\n", pad, indent.String())
	for _, rel := range e.Related {
		fmt.Fprintf(&b, "%s = note: %s %s\n", pad, e.relatedNote(), rel)
	}
	return b.String()
}

func (e *Error) headline() string {
	var parts []string
	if e.Schema != "" {
		parts = append(parts, "schema "+e.Schema)
	}
	if e.Attr != "" {
		parts = append(parts, "attribute '"+e.Attr+"'")
	}
	msg := e.message()
	if len(parts) == 0 {
		return msg
	}
	return strings.Join(parts, ", ") + ": " + msg
}

// relatedNote describes what the secondary locations of e point at.
func (e *Error) relatedNote() string {
	switch e.Kind {
	case KindTypeConflict:
		return "conflicting value defined at"
	case KindNamingConflict:
		return "previously declared at"
	case KindRequiredAttributeMissing:
		return "attribute declared at"
	case KindIndexSignatureViolation:
		return "index signature declared at"
	case KindSchemaCheckFailure:
		if e.Expr != "" {
			return "instance defined at"
		}
		return "constraint declared at"
	}
	return "see"
}

func sourceLine(source string, line int) (string, bool) {
	if line < 1 || source == "" {
		return "", false
	}
	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[line-1], "\r"), true
}
