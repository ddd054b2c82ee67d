// Package schema implements schema declarations and the instantiation state
// machine of the configuration evaluation engine.
//
// # Declarations
//
// A Schema has at most one base, an ordered list of mixins, declared
// attributes with optional defaults, body statements and checks. Expressions
// are Go closures over a *Frame:
//
//	reg := schema.NewRegistry().MustRegister(&schema.Schema{
//	    Name: "Person",
//	    Attrs: []schema.Attr{
//	        {Name: "name", Type: "str", Default: schema.Const(value.Str("kcl"))},
//	        {Name: "age", Type: "int"},
//	    },
//	    Checks: []schema.Check{{Cond: ageOver10, Text: "age > 10"}},
//	})
//
// The expr package compiles expression text into the same closures.
//
// # Instantiation
//
// Context.Instantiate resolves the ancestry of a schema into one
// initialization order (base chain, the schema itself, its mixins) and runs
// the instance through
//
//	Init -> DefaultsApplied -> BodyApplied -> MixinsApplied ->
//	IndexSignatureChecked -> OptionalChecked -> ValidationChecked -> Done
//
// Every attribute is computed on first access through a per-instance Cache.
// Reading an attribute that has not been computed yet computes it on the
// spot, so declaration order does not matter. Reading an attribute from its
// own setter sees the partial value; any other re-entry is a
// RecursiveAttributeError.
//
// Finished instances are frozen. Further writes fail with ImmutableWrite.
package schema
