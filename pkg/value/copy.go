package value

// DeepCopy returns a value that shares no container with v. Frozen
// containers stay frozen in the copy.
func (v Value) DeepCopy() Value {
	switch v.kind {
	case KindList:
		v.list = v.list.DeepCopy()
	case KindDict:
		v.dict = v.dict.DeepCopy()
	case KindSchema:
		v.inst = v.inst.clone()
	}
	return v
}

// DeepCopy copies the dict and everything reachable from it.
func (d *Dict) DeepCopy() *Dict {
	if d == nil {
		return nil
	}
	out := NewDict()
	for pair := d.m.Oldest(); pair != nil; pair = pair.Next() {
		out.m.Set(pair.Key, pair.Value.DeepCopy())
	}
	out.frozen = d.frozen
	return out
}

// DeepCopy copies the list and everything reachable from it.
func (l *List) DeepCopy() *List {
	if l == nil {
		return nil
	}
	out := &List{items: make([]Value, len(l.items)), frozen: l.frozen}
	for i, item := range l.items {
		out.items[i] = item.DeepCopy()
	}
	return out
}

// Equal reports structural equality. Ints and floats compare numerically,
// dicts compare by key set regardless of order, and instances additionally
// compare their type names.
func Equal(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		if a.kind == KindInt && b.kind == KindInt {
			return a.i == b.i
		}
		return a.AsFloat() == b.AsFloat()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNone:
		return true
	case KindBool:
		return a.b == b.b
	case KindStr:
		return a.s == b.s
	case KindList:
		if a.list.Len() != b.list.Len() {
			return false
		}
		for i := range a.list.items {
			if !Equal(a.list.items[i], b.list.items[i]) {
				return false
			}
		}
		return true
	case KindDict:
		return dictEqual(a.dict, b.dict)
	case KindSchema:
		return a.inst.TypeName == b.inst.TypeName && dictEqual(a.inst.Attrs, b.inst.Attrs)
	case KindFunc:
		return a.fn == b.fn
	case KindError:
		return a.err == b.err
	}
	return false
}

func dictEqual(a, b *Dict) bool {
	if a.Len() != b.Len() {
		return false
	}
	equal := true
	a.Range(func(key string, av Value) bool {
		bv, ok := b.Get(key)
		if !ok || !Equal(av, bv) {
			equal = false
		}
		return equal
	})
	return equal
}
