package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/openfroyo/confeval/pkg/diag"
)

// Kind is the tag of a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNone
	KindBool
	KindInt
	KindFloat
	KindStr
	KindList
	KindDict
	KindSchema
	KindFunc
	KindError
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNone:      "None",
	KindBool:      "bool",
	KindInt:       "int",
	KindFloat:     "float",
	KindStr:       "str",
	KindList:      "list",
	KindDict:      "dict",
	KindSchema:    "schema",
	KindFunc:      "function",
	KindError:     "error",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Function is a callable value. Functions are never serialized.
type Function struct {
	Name string
	Call func(args ...Value) (Value, error)
}

// Value is the tagged union every layer of the engine operates on. The zero
// Value is Undefined. Scalars are stored inline; List, Dict and Instance are
// referenced, so copying a Value aliases its container. Use DeepCopy when a
// value crosses an ownership boundary.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list *List
	dict *Dict
	inst *Instance
	fn   *Function
	err  error
	meta diag.ConfigMeta
}

// Undefined returns the undefined value, used for absent attributes and
// reserved list slots.
func Undefined() Value { return Value{} }

// None returns the None value.
func None() Value { return Value{kind: KindNone} }

// Bool returns a bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an int value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Str returns a string value.
func Str(s string) Value { return Value{kind: KindStr, s: s} }

// FromList wraps a list container.
func FromList(l *List) Value {
	if l == nil {
		l = NewList()
	}
	return Value{kind: KindList, list: l}
}

// FromDict wraps a dict container.
func FromDict(d *Dict) Value {
	if d == nil {
		d = NewDict()
	}
	return Value{kind: KindDict, dict: d}
}

// FromInstance wraps a schema instance.
func FromInstance(inst *Instance) Value {
	return Value{kind: KindSchema, inst: inst, meta: inst.Meta}
}

// ListOf builds a list value from items.
func ListOf(items ...Value) Value { return FromList(NewList(items...)) }

// DictOf builds a dict value from pairs.
func DictOf(pairs ...KV) Value { return FromDict(NewDict(pairs...)) }

// Func returns a function value.
func Func(name string, call func(args ...Value) (Value, error)) Value {
	return Value{kind: KindFunc, fn: &Function{Name: name, Call: call}}
}

// Err returns an error value.
func Err(err error) Value { return Value{kind: KindError, err: err} }

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// Meta returns the source location attached at construction.
func (v Value) Meta() diag.ConfigMeta { return v.meta }

// WithMeta returns a copy of v carrying meta.
func (v Value) WithMeta(meta diag.ConfigMeta) Value {
	v.meta = meta
	return v
}

// IsUndefined reports whether v is Undefined.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsNone reports whether v is None.
func (v Value) IsNone() bool { return v.kind == KindNone }

// IsNoneOrUndefined reports whether v carries no configuration value.
func (v Value) IsNoneOrUndefined() bool {
	return v.kind == KindUndefined || v.kind == KindNone
}

// IsNumber reports whether v is an int or a float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// IsConfig reports whether v is a dict or a schema instance.
func (v Value) IsConfig() bool { return v.kind == KindDict || v.kind == KindSchema }

// AsBool returns the bool payload.
func (v Value) AsBool() bool { return v.b }

// AsInt returns the int payload, truncating floats.
func (v Value) AsInt() int64 {
	if v.kind == KindFloat {
		return int64(v.f)
	}
	return v.i
}

// AsFloat returns the numeric payload as float64.
func (v Value) AsFloat() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// AsStr returns the string payload.
func (v Value) AsStr() string { return v.s }

// AsList returns the list container, or nil.
func (v Value) AsList() *List { return v.list }

// AsDict returns the dict container. For schema instances it returns the
// instance attributes.
func (v Value) AsDict() *Dict {
	if v.kind == KindSchema {
		return v.inst.Attrs
	}
	return v.dict
}

// AsInstance returns the schema instance, or nil.
func (v Value) AsInstance() *Instance { return v.inst }

// AsFunc returns the function payload, or nil.
func (v Value) AsFunc() *Function { return v.fn }

// AsError returns the error payload, or nil.
func (v Value) AsError() error { return v.err }

// TypeName returns the runtime type name, the schema name for instances.
func (v Value) TypeName() string {
	if v.kind == KindSchema {
		return v.inst.TypeName
	}
	return v.kind.String()
}

// Truthy reports the boolean interpretation of v.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindUndefined, KindNone, KindError:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindStr:
		return v.s != ""
	case KindList:
		return v.list.Len() > 0
	case KindDict:
		return v.dict.Len() > 0
	default:
		return true
	}
}

// String renders v for diagnostics.
func (v Value) String() string {
	var b strings.Builder
	v.write(&b)
	return b.String()
}

func (v Value) write(b *strings.Builder) {
	switch v.kind {
	case KindUndefined:
		b.WriteString("Undefined")
	case KindNone:
		b.WriteString("None")
	case KindBool:
		if v.b {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case KindInt:
		b.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		b.WriteString(formatFloat(v.f))
	case KindStr:
		b.WriteString(strconv.Quote(v.s))
	case KindList:
		b.WriteByte('[')
		for i, item := range v.list.items {
			if i > 0 {
				b.WriteString(", ")
			}
			item.write(b)
		}
		b.WriteByte(']')
	case KindDict:
		v.dict.write(b)
	case KindSchema:
		b.WriteString(v.inst.TypeName)
		v.inst.Attrs.write(b)
	case KindFunc:
		fmt.Fprintf(b, "<function %s>", v.fn.Name)
	case KindError:
		fmt.Fprintf(b, "<error %v>", v.err)
	}
}

func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
