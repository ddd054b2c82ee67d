package policy

import (
	"github.com/openfroyo/confeval/pkg/diag"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are logged but do not fail
	// evaluation.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that fail evaluation.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of this severity fail evaluation.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code. The module must define
// a partial set rule named deny whose elements are strings or objects with a
// "message" and an optional "severity" and "attr".
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name" validate:"required"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego" validate:"required"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity" validate:"omitempty,oneof=info warning error critical"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from.
	Source string `json:"source,omitempty"`
}

// Violation is one element of a policy's deny set.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Schema is the schema of the offending instance.
	Schema string `json:"schema"`

	// Attr is the offending attribute, when the policy names one.
	Attr string `json:"attr,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Meta is the location of the instance.
	Meta diag.ConfigMeta `json:"meta"`
}

// Error converts the violation to a diagnostic.
func (v Violation) Error() *diag.Error {
	return diag.Newf(diag.KindPolicyViolation, "policy %s: %s", v.Policy, v.Message).
		WithSchema(v.Schema).WithAttr(v.Attr).WithMeta(v.Meta)
}

// Input is the document a policy sees as `input`.
type Input struct {
	// Schema is the schema name of the instance.
	Schema string `json:"schema"`

	// Attrs are the projected attributes of the instance.
	Attrs interface{} `json:"attrs"`

	// SubSchema is set for instances nested inside another instance.
	SubSchema bool `json:"sub_schema"`

	// File and Line locate the instance.
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}
