package value

import (
	"github.com/openfroyo/confeval/pkg/diag"
)

// List is an ordered, index-addressable sequence of values. Slots holding
// Undefined are placeholders; they keep positions stable while conditional
// entries are evaluated and are removed by Compact.
type List struct {
	items  []Value
	frozen bool
}

// NewList creates a list holding items.
func NewList(items ...Value) *List {
	l := &List{items: make([]Value, 0, len(items))}
	l.items = append(l.items, items...)
	return l
}

// Len returns the number of slots, placeholders included.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// Index returns the value in slot i, or Undefined when i is out of range.
func (l *List) Index(i int) Value {
	if l == nil || i < 0 || i >= len(l.items) {
		return Undefined()
	}
	return l.items[i]
}

// Items returns a copy of the slot slice.
func (l *List) Items() []Value {
	if l == nil {
		return nil
	}
	out := make([]Value, len(l.items))
	copy(out, l.items)
	return out
}

// Append adds values at the end. Values are stored as given.
func (l *List) Append(vs ...Value) error {
	if l.frozen {
		return immutableList()
	}
	l.items = append(l.items, vs...)
	return nil
}

// Set replaces slot i.
func (l *List) Set(i int, v Value) error {
	if l.frozen {
		return immutableList()
	}
	if i < 0 || i >= len(l.items) {
		return invalidIndex(i, len(l.items)).WithMeta(v.meta)
	}
	l.items[i] = v
	return nil
}

// Reserve appends a placeholder slot and returns its index. It is a
// primitive for embedders that build list literals with conditional
// entries: reserve a slot per entry, fill the taken ones with Set or an
// InsertAtIndex write, and leave the rest to Compact. The YAML and Starlark
// surfaces of this module only produce plain lists.
func (l *List) Reserve() int {
	l.items = append(l.items, Undefined())
	return len(l.items) - 1
}

// Compact removes placeholder slots and returns how many were removed.
func (l *List) Compact() int {
	if l == nil || l.frozen {
		return 0
	}
	kept := l.items[:0]
	for _, item := range l.items {
		if !item.IsUndefined() {
			kept = append(kept, item)
		}
	}
	removed := len(l.items) - len(kept)
	for i := len(kept); i < len(l.items); i++ {
		l.items[i] = Value{}
	}
	l.items = kept
	return removed
}

// Freeze makes the list and its elements read-only.
func (l *List) Freeze() {
	if l == nil || l.frozen {
		return
	}
	l.frozen = true
	for _, item := range l.items {
		freezeValue(item)
	}
}

// Frozen reports whether the list rejects writes.
func (l *List) Frozen() bool {
	return l != nil && l.frozen
}

// insert splices vs at position i.
func (l *List) insert(i int, vs ...Value) {
	tail := append([]Value(nil), l.items[i:]...)
	l.items = append(append(l.items[:i], vs...), tail...)
}

func immutableList() *diag.Error {
	return diag.New(diag.KindImmutableWrite, "cannot modify a list of a finished instance")
}

func invalidIndex(i, n int) *diag.Error {
	return diag.Newf(diag.KindInvalidIndex, "list index %d out of range for list of length %d", i, n)
}
