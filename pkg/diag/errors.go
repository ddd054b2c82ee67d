package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an evaluation failure.
type Kind string

const (
	// KindTypeConflict indicates incompatible operands in a merge write.
	KindTypeConflict Kind = "TypeConflict"

	// KindRequiredAttributeMissing indicates a non-optional attribute without a value.
	KindRequiredAttributeMissing Kind = "RequiredAttributeMissing"

	// KindSchemaCheckFailure indicates a check expression evaluated to false.
	KindSchemaCheckFailure Kind = "SchemaCheckFailure"

	// KindIndexSignatureViolation indicates an undeclared attribute that does
	// not satisfy the schema index signature.
	KindIndexSignatureViolation Kind = "IndexSignatureViolation"

	// KindRecursiveAttributeError indicates a genuine reference cycle between
	// attributes of one instance.
	KindRecursiveAttributeError Kind = "RecursiveAttributeError"

	// KindIllegalInheritance indicates a mixin used as a base, multiple bases,
	// or a cyclic base chain.
	KindIllegalInheritance Kind = "IllegalInheritance"

	// KindNamingConflict indicates duplicate schema or attribute names.
	KindNamingConflict Kind = "NamingConflict"

	// KindUndeclaredAttribute indicates a config key outside the declared
	// attribute set of a schema without an index signature.
	KindUndeclaredAttribute Kind = "UndeclaredAttribute"

	// KindTypeMismatch indicates a value that does not match the declared
	// attribute type.
	KindTypeMismatch Kind = "TypeMismatch"

	// KindUnknownSchema indicates a reference to a schema that is not registered.
	KindUnknownSchema Kind = "UnknownSchema"

	// KindInvalidIndex indicates a list slot outside the list.
	KindInvalidIndex Kind = "InvalidIndex"

	// KindImmutableWrite indicates a write into a finished instance.
	KindImmutableWrite Kind = "ImmutableWrite"

	// KindEvaluationFailure indicates an attribute or check expression raised.
	KindEvaluationFailure Kind = "EvaluationFailure"

	// KindPolicyViolation indicates an evaluated instance denied by a policy.
	KindPolicyViolation Kind = "PolicyViolation"

	// KindRecursionLimitExceeded indicates the configured depth limit was hit.
	// It is always fatal to the current evaluation.
	KindRecursionLimitExceeded Kind = "RecursionLimitExceeded"
)

// Fatal reports whether errors of this kind abort evaluation regardless of mode.
func (k Kind) Fatal() bool {
	return k == KindRecursionLimitExceeded
}

// Error is a located, classified evaluation diagnostic.
type Error struct {
	// Kind is the error classification.
	Kind Kind `json:"kind"`

	// Schema is the schema being instantiated, if any.
	Schema string `json:"schema,omitempty"`

	// Attr is the attribute being computed or checked, if any.
	Attr string `json:"attr,omitempty"`

	// Meta is the primary source location.
	Meta ConfigMeta `json:"meta"`

	// Related holds secondary locations, e.g. the other operand of a conflict.
	Related []ConfigMeta `json:"related,omitempty"`

	// Message is the human-readable message.
	Message string `json:"message"`

	// Expr is the expression text for check failures.
	Expr string `json:"expr,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if !e.Meta.IsZero() {
		b.WriteString(e.Meta.String())
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	switch {
	case e.Schema != "" && e.Attr != "":
		fmt.Fprintf(&b, " (schema=%s, attr=%s)", e.Schema, e.Attr)
	case e.Schema != "":
		fmt.Fprintf(&b, " (schema=%s)", e.Schema)
	case e.Attr != "":
		fmt.Fprintf(&b, " (attr=%s)", e.Attr)
	}
	b.WriteString(": ")
	b.WriteString(e.message())
	return b.String()
}

// message is the message followed by the offending expression and the
// underlying error, when set.
func (e *Error) message() string {
	msg := e.Message
	if e.Expr != "" {
		msg += ": `" + e.Expr + "`"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithSchema sets the schema name unless already set.
func (e *Error) WithSchema(name string) *Error {
	if e.Schema == "" {
		e.Schema = name
	}
	return e
}

// WithAttr sets the attribute name unless already set.
func (e *Error) WithAttr(name string) *Error {
	if e.Attr == "" {
		e.Attr = name
	}
	return e
}

// WithMeta sets the primary location unless already known.
func (e *Error) WithMeta(meta ConfigMeta) *Error {
	if e.Meta.IsZero() {
		e.Meta = meta
	}
	return e
}

// WithRelated appends secondary locations.
func (e *Error) WithRelated(metas ...ConfigMeta) *Error {
	for _, m := range metas {
		if !m.IsZero() {
			e.Related = append(e.Related, m)
		}
	}
	return e
}

// WithExpr sets the offending expression text.
func (e *Error) WithExpr(expr string) *Error {
	e.Expr = expr
	return e
}

// Sentinels usable with errors.Is.
var (
	ErrTypeConflict             = New(KindTypeConflict, "")
	ErrRequiredAttributeMissing = New(KindRequiredAttributeMissing, "")
	ErrSchemaCheckFailure       = New(KindSchemaCheckFailure, "")
	ErrIndexSignatureViolation  = New(KindIndexSignatureViolation, "")
	ErrRecursiveAttribute       = New(KindRecursiveAttributeError, "")
	ErrIllegalInheritance       = New(KindIllegalInheritance, "")
	ErrNamingConflict           = New(KindNamingConflict, "")
	ErrUndeclaredAttribute      = New(KindUndeclaredAttribute, "")
	ErrTypeMismatch             = New(KindTypeMismatch, "")
	ErrUnknownSchema            = New(KindUnknownSchema, "")
	ErrInvalidIndex             = New(KindInvalidIndex, "")
	ErrImmutableWrite           = New(KindImmutableWrite, "")
	ErrEvaluationFailure        = New(KindEvaluationFailure, "")
	ErrRecursionLimitExceeded   = New(KindRecursionLimitExceeded, "")
)

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err, or any error it aggregates, has the given kind.
func IsKind(err error, kind Kind) bool {
	var list List
	if errors.As(err, &list) {
		for _, e := range list {
			if e.Kind == kind {
				return true
			}
		}
		return false
	}
	if e, ok := As(err); ok {
		return e.Kind == kind
	}
	return false
}

// IsFatal reports whether err must abort evaluation in every mode.
func IsFatal(err error) bool {
	return IsKind(err, KindRecursionLimitExceeded)
}

// From converts any error into an *Error, classifying unknown errors with kind.
func From(err error, kind Kind) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return Wrap(kind, err, "evaluation failed")
}
