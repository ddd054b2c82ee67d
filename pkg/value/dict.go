package value

import (
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/openfroyo/confeval/pkg/diag"
)

// KV is a key/value pair used to build dicts.
type KV struct {
	Key   string
	Value Value
}

// Pair returns a KV.
func Pair(key string, v Value) KV {
	return KV{Key: key, Value: v}
}

// Dict is an insertion-ordered mapping from string keys to values. The
// order of first insertion is the serialization order.
type Dict struct {
	m      *orderedmap.OrderedMap[string, Value]
	frozen bool
}

// NewDict creates a dict holding pairs in order. Later pairs with a
// repeated key replace earlier ones in place.
func NewDict(pairs ...KV) *Dict {
	d := &Dict{m: orderedmap.New[string, Value]()}
	for _, p := range pairs {
		d.m.Set(p.Key, p.Value)
	}
	return d
}

// Len returns the number of keys.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return d.m.Len()
}

// Get returns the value stored under key.
func (d *Dict) Get(key string) (Value, bool) {
	if d == nil {
		return Undefined(), false
	}
	return d.m.Get(key)
}

// Lookup returns the value stored under key, or Undefined.
func (d *Dict) Lookup(key string) Value {
	v, _ := d.Get(key)
	return v
}

// Has reports whether key is present.
func (d *Dict) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, d.m.Len())
	for pair := d.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Range calls fn for each entry in order until fn returns false.
func (d *Dict) Range(fn func(key string, v Value) bool) {
	if d == nil {
		return
	}
	for pair := d.m.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Set stores v under key, keeping the key's position if it already exists.
// It performs no merge; use Insert for operator-tagged writes.
func (d *Dict) Set(key string, v Value) error {
	if d.frozen {
		return immutableWrite(key, v)
	}
	d.m.Set(key, v)
	return nil
}

// Delete removes key and reports whether it was present.
func (d *Dict) Delete(key string) (bool, error) {
	if d.frozen {
		return false, immutableWrite(key, Undefined())
	}
	_, ok := d.m.Delete(key)
	return ok, nil
}

// Frozen reports whether the dict rejects writes.
func (d *Dict) Frozen() bool {
	return d != nil && d.frozen
}

// Freeze makes the dict and every container reachable from it read-only.
func (d *Dict) Freeze() {
	if d == nil || d.frozen {
		return
	}
	d.frozen = true
	for pair := d.m.Oldest(); pair != nil; pair = pair.Next() {
		freezeValue(pair.Value)
	}
}

func freezeValue(v Value) {
	switch v.kind {
	case KindDict:
		v.dict.Freeze()
	case KindList:
		v.list.Freeze()
	case KindSchema:
		v.inst.Freeze()
	}
}

// thaw clears the frozen flag on d only. Used on private copies.
func (d *Dict) thaw() {
	d.frozen = false
}

func immutableWrite(key string, v Value) error {
	return diag.Newf(diag.KindImmutableWrite, "cannot modify attribute '%s' of a finished instance", key).
		WithAttr(key).WithMeta(v.meta)
}

func (d *Dict) write(b *strings.Builder) {
	b.WriteByte('{')
	first := true
	d.Range(func(key string, v Value) bool {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(strconv.Quote(key))
		b.WriteString(": ")
		v.write(b)
		return true
	})
	b.WriteByte('}')
}
