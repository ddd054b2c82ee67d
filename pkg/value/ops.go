package value

import (
	"fmt"

	"github.com/openfroyo/confeval/pkg/diag"
)

// OpKind is the operator of a merge write.
type OpKind uint8

const (
	// Union merges dicts key by key and replaces everything else.
	Union OpKind = iota
	// Override replaces the existing value.
	Override
	// Add concatenates lists and strings and adds numbers.
	Add
	// Subtract removes list elements and subtracts numbers.
	Subtract
	// InsertAtIndex splices into a list at a position.
	InsertAtIndex
)

// Op is the operator argument of Dict.Insert. It is never stored.
type Op struct {
	Kind OpKind

	// Index is the list slot for InsertAtIndex and indexed Override.
	Index int

	indexed bool
}

// Operators without an index.
var (
	OpUnion    = Op{Kind: Union}
	OpOverride = Op{Kind: Override}
	OpAdd      = Op{Kind: Add}
	OpSubtract = Op{Kind: Subtract}
)

// OpInsertAt returns an InsertAtIndex operator. A negative index appends.
func OpInsertAt(i int) Op {
	return Op{Kind: InsertAtIndex, Index: i, indexed: true}
}

// OpOverrideAt returns an Override that replaces list slot i.
func OpOverrideAt(i int) Op {
	return Op{Kind: Override, Index: i, indexed: true}
}

// Indexed reports whether the operator targets a list slot.
func (o Op) Indexed() bool { return o.indexed }

// String returns the surface form of the operator.
func (o Op) String() string {
	switch o.Kind {
	case Union:
		return ":"
	case Override:
		if o.indexed {
			return fmt.Sprintf("[%d]=", o.Index)
		}
		return "="
	case Add:
		return "+="
	case Subtract:
		return "-="
	case InsertAtIndex:
		return fmt.Sprintf("[%d]+=", o.Index)
	}
	return "?"
}

// ParseOp parses the surface operators ":", "=", "+=" and "-=".
func ParseOp(s string) (Op, error) {
	switch s {
	case ":", "", "union":
		return OpUnion, nil
	case "=", "override":
		return OpOverride, nil
	case "+=", "add":
		return OpAdd, nil
	case "-=", "subtract":
		return OpSubtract, nil
	}
	return Op{}, fmt.Errorf("unknown operator %q", s)
}

// Insert writes v under key according to op. The stored value never aliases
// v's containers. Errors are *diag.Error values naming the key path.
func (d *Dict) Insert(key string, v Value, op Op) error {
	if d.frozen {
		return immutableWrite(key, v)
	}
	existing, _ := d.m.Get(key)
	merged, err := Merge(existing, v, op)
	if err != nil {
		if e, ok := diag.As(err); ok {
			if e.Attr == "" {
				e.Attr = key
			} else {
				e.Attr = key + "." + e.Attr
			}
		}
		return err
	}
	d.m.Set(key, merged)
	return nil
}

// Merge combines an existing value with v under op and returns the result.
// existing may be modified in place when it is a container; v is copied.
func Merge(existing, v Value, op Op) (Value, error) {
	switch op.Kind {
	case Override:
		if op.indexed {
			return overrideAt(existing, v, op.Index)
		}
		return v.DeepCopy(), nil
	case Union:
		return union(existing, v)
	case Add:
		return add(existing, v)
	case Subtract:
		return subtract(existing, v)
	case InsertAtIndex:
		return insertAt(existing, v, op.Index)
	}
	return Undefined(), fmt.Errorf("unknown operator kind %d", op.Kind)
}

func union(existing, v Value) (Value, error) {
	if existing.IsNoneOrUndefined() {
		return v.DeepCopy(), nil
	}
	if v.IsNoneOrUndefined() {
		return existing, nil
	}
	switch {
	case existing.IsConfig() && v.IsConfig():
		return unionConfig(existing, v)
	case existing.kind == KindList && v.kind == KindList:
		return v.DeepCopy(), nil
	case sameFamily(existing, v):
		return v.DeepCopy(), nil
	}
	return Undefined(), conflict("union", existing, v)
}

func unionConfig(existing, v Value) (Value, error) {
	target := existing
	if existing.kind == KindSchema {
		inst := existing.inst
		if inst.Frozen() {
			inst = inst.clone()
			inst.Attrs.thaw()
			inst.Merged = true
		}
		target = FromInstance(inst).WithMeta(existing.meta)
	} else if existing.dict.Frozen() {
		d := existing.dict.DeepCopy()
		d.thaw()
		target = FromDict(d).WithMeta(existing.meta)
	}
	dst := target.AsDict()
	var err error
	v.AsDict().Range(func(key string, item Value) bool {
		err = dst.Insert(key, item, OpUnion)
		return err == nil
	})
	if err != nil {
		return Undefined(), err
	}
	if existing.kind == KindSchema && existing.inst.Frozen() {
		target.inst.Freeze()
	}
	return target, nil
}

func add(existing, v Value) (Value, error) {
	if existing.IsNoneOrUndefined() {
		return v.DeepCopy(), nil
	}
	switch {
	case existing.kind == KindList:
		l := ownedList(existing)
		if v.kind == KindList {
			for _, item := range v.list.items {
				l.items = append(l.items, item.DeepCopy())
			}
		} else {
			l.items = append(l.items, v.DeepCopy())
		}
		return FromList(l).WithMeta(existing.meta), nil
	case existing.kind == KindInt && v.kind == KindInt:
		return Int(existing.i + v.i).WithMeta(v.meta), nil
	case existing.IsNumber() && v.IsNumber():
		return Float(existing.AsFloat() + v.AsFloat()).WithMeta(v.meta), nil
	case existing.kind == KindStr && v.kind == KindStr:
		return Str(existing.s + v.s).WithMeta(v.meta), nil
	}
	return Undefined(), conflict("add", existing, v)
}

func subtract(existing, v Value) (Value, error) {
	if existing.IsUndefined() {
		return Undefined(), diag.Newf(diag.KindTypeConflict,
			"cannot subtract %s from an absent attribute", v.TypeName()).WithMeta(v.meta)
	}
	switch {
	case existing.kind == KindList:
		remove := []Value{v}
		if v.kind == KindList {
			remove = v.list.items
		}
		l := ownedList(existing)
		kept := l.items[:0]
		for _, item := range l.items {
			if !containsEqual(remove, item) {
				kept = append(kept, item)
			}
		}
		l.items = kept
		return FromList(l).WithMeta(existing.meta), nil
	case existing.kind == KindInt && v.kind == KindInt:
		return Int(existing.i - v.i).WithMeta(v.meta), nil
	case existing.IsNumber() && v.IsNumber():
		return Float(existing.AsFloat() - v.AsFloat()).WithMeta(v.meta), nil
	}
	return Undefined(), conflict("subtract", existing, v)
}

func insertAt(existing, v Value, i int) (Value, error) {
	var l *List
	switch {
	case existing.IsNoneOrUndefined():
		l = NewList()
	case existing.kind == KindList:
		l = ownedList(existing)
	default:
		return Undefined(), diag.Newf(diag.KindTypeConflict,
			"cannot insert into %s, only list attributes accept indexed inserts", existing.TypeName()).
			WithMeta(v.meta).WithRelated(existing.meta)
	}
	n := len(l.items)
	if i > n {
		return Undefined(), invalidIndex(i, n).WithMeta(v.meta)
	}
	if i < 0 {
		i = n
	}
	switch {
	case v.kind == KindList:
		items := make([]Value, len(v.list.items))
		for j, item := range v.list.items {
			items[j] = item.DeepCopy()
		}
		l.insert(i, items...)
	case v.IsNoneOrUndefined():
		// Nothing to fill; the slot stays reserved.
	case i == n:
		l.items = append(l.items, v.DeepCopy())
	case l.items[i].IsUndefined():
		l.items[i] = v.DeepCopy()
	default:
		l.insert(i, v.DeepCopy())
	}
	out := FromList(l)
	if existing.kind == KindList {
		out = out.WithMeta(existing.meta)
	} else {
		out = out.WithMeta(v.meta)
	}
	return out, nil
}

func overrideAt(existing, v Value, i int) (Value, error) {
	if existing.kind != KindList {
		return Undefined(), diag.Newf(diag.KindTypeConflict,
			"indexed override requires a list, got %s", existing.TypeName()).
			WithMeta(v.meta).WithRelated(existing.meta)
	}
	l := ownedList(existing)
	if i < 0 || i >= len(l.items) {
		return Undefined(), invalidIndex(i, len(l.items)).WithMeta(v.meta)
	}
	if v.IsNoneOrUndefined() {
		l.items = append(l.items[:i], l.items[i+1:]...)
	} else {
		l.items[i] = v.DeepCopy()
	}
	return FromList(l).WithMeta(existing.meta), nil
}

// ownedList returns a writable list for existing, copying a frozen one.
func ownedList(existing Value) *List {
	if existing.list.Frozen() {
		l := existing.list.DeepCopy()
		l.frozen = false
		return l
	}
	return existing.list
}

func sameFamily(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return true
	}
	return a.kind == b.kind
}

func containsEqual(vs []Value, v Value) bool {
	for _, candidate := range vs {
		if Equal(candidate, v) {
			return true
		}
	}
	return false
}

func conflict(op string, existing, v Value) *diag.Error {
	return diag.Newf(diag.KindTypeConflict, "conflicting values: cannot %s %s with %s",
		op, existing.TypeName(), v.TypeName()).
		WithMeta(v.meta).WithRelated(existing.meta)
}
