// Package value implements the runtime value model of the evaluation engine.
//
// A Value is a tagged union over Undefined, None, bool, int, float, str,
// List, Dict, schema Instance, Function and Error. Dict preserves insertion
// order, which is both the serialization order and the order in which
// override-wins semantics are decided.
//
// Writes into a Dict are operator-tagged:
//
//	d.Insert("labels", value.DictOf(value.Pair("app", value.Str("web"))), value.OpUnion)
//	d.Insert("replicas", value.Int(3), value.OpOverride)
//	d.Insert("ports", value.ListOf(value.Int(443)), value.OpAdd)
//
// A config Literal is an ordered list of such writes, applied in textual
// order. Plan projects a finished value graph onto ordered plain data for
// serialization.
package value
