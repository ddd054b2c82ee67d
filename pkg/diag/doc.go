// Package diag provides the diagnostics shared by every layer of the
// configuration evaluation engine.
//
// # Overview
//
// Every failure raised while merging values or instantiating schemas is an
// *Error value carrying a Kind, the schema and attribute names involved, and
// the ConfigMeta source location of the offending value:
//
//	Error{
//	    Kind:    KindRequiredAttributeMissing,
//	    Schema:  "Person",
//	    Attr:    "age",
//	    Meta:    ConfigMeta{Filename: "main.yaml", Line: 12, Column: 5},
//	    Message: "attribute 'age' of Person is required and can't be None or Undefined",
//	}
//
// # Propagation
//
// A Collector routes errors according to a Mode. In FailFast mode the first
// reported error is returned to the caller, which aborts the current
// instantiation. In CollectAll mode errors are recorded and evaluation
// continues; the aggregated List is returned once evaluation completes.
// KindRecursionLimitExceeded is fatal in both modes.
//
// # Rendering
//
// Error.Caret renders a caret-style snippet given the source text of the file
// named by the error location.
package diag
