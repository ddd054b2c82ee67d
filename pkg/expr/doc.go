// Package expr compiles Starlark expressions into attribute defaults, body
// statements, guards and checks for the schema package.
//
// An expression sees the instance under construction through its free
// identifiers. Each name resolves, in order, to:
//
//   - the index signature key of a check, when one is named
//   - an attribute of the instance
//   - a constructor for a registered schema, e.g. Server(name="web")
//   - the Starlark universe (len, str, range, ...)
//
// Attributes are read when evaluation reaches them, so a branch that is not
// taken never computes what it names:
//
//	port = override if has_override else 8080
//
// self.name reads the same attribute explicitly. Names bound by a
// comprehension or lambda shadow attributes inside it only.
//
// Instances are exposed read-only with dot and index access. Dicts and lists
// are copied in and out, so an expression never aliases engine state.
//
// Each call runs on its own thread. Options.MaxSteps bounds the Starlark
// execution steps of a single call.
package expr
