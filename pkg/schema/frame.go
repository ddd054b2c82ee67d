package schema

import (
	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/value"
)

// Frame is the scope an expression runs in: the instance under construction
// and the attribute being computed. Frames are only valid for the duration
// of the expression call that received them.
type Frame struct {
	b    *builder
	attr string
}

func (b *builder) frame(attr string) *Frame {
	return &Frame{b: b, attr: attr}
}

// Get returns the named attribute, computing it first when needed. Names
// bound by the index signature shadow attributes.
func (f *Frame) Get(name string) (value.Value, error) {
	v, ok, err := f.Lookup(name)
	if err != nil {
		return value.Undefined(), err
	}
	if !ok {
		return value.Undefined(), diag.Newf(diag.KindEvaluationFailure, "name '%s' is not defined", name).
			WithSchema(f.b.anc.Schema.Name).WithAttr(f.attr)
	}
	return v, nil
}

// Lookup is like Get but reports unknown names with ok=false instead of an
// error.
func (f *Frame) Lookup(name string) (v value.Value, ok bool, err error) {
	if v, ok := f.b.locals[name]; ok {
		return v, true, nil
	}
	if !f.b.known(name) {
		return value.Undefined(), false, nil
	}
	v, err = f.b.resolve(name)
	return v, true, err
}

// Has reports whether name is an attribute of the instance or a bound local.
func (f *Frame) Has(name string) bool {
	if _, ok := f.b.locals[name]; ok {
		return true
	}
	return f.b.known(name)
}

// IsAttr reports whether name is an attribute of the instance that no bound
// local shadows.
func (f *Frame) IsAttr(name string) bool {
	if _, ok := f.b.locals[name]; ok {
		return false
	}
	return f.b.known(name)
}

// Set writes v into the named attribute with op. Setters of an attribute
// that is still Unvisited run on top of the write when it is first read.
// Writes after the instance is finished fail with ImmutableWrite.
func (f *Frame) Set(name string, v value.Value, op value.Op) error {
	if err := f.b.inst.Attrs.Insert(name, v, op); err != nil {
		return err
	}
	if f.b.cache.State(name).Phase == Resolved {
		f.b.cache.Resolve(name, f.b.inst.Attrs.Lookup(name))
	}
	return nil
}

// Config returns what the caller's config literal alone writes to name.
func (f *Frame) Config(name string) (value.Value, bool) {
	entries := f.b.lit.EntriesFor(name)
	if len(entries) == 0 {
		return value.Undefined(), false
	}
	d := value.NewDict()
	for _, e := range entries {
		if err := e.Apply(d); err != nil {
			return value.Undefined(), false
		}
	}
	return d.Lookup(name), true
}

// Instantiate constructs a nested instance of the named schema.
func (f *Frame) Instantiate(name string, lit *value.Literal, meta diag.ConfigMeta) (value.Value, error) {
	if meta.IsZero() {
		meta = f.b.declMeta(f.attr)
	}
	return f.b.c.instantiate(name, lit, meta)
}

// Schema returns the name of the schema under construction.
func (f *Frame) Schema() string {
	return f.b.anc.Schema.Name
}

// Instance returns the instance under construction.
func (f *Frame) Instance() *value.Instance {
	return f.b.inst
}

// Attr returns the attribute being computed, or "" while checks run.
func (f *Frame) Attr() string {
	return f.attr
}

// Context returns the evaluation context.
func (f *Frame) Context() *Context {
	return f.b.c
}

// Cache returns the backtracking cache of the instance.
func (f *Frame) Cache() *Cache {
	return f.b.cache
}
