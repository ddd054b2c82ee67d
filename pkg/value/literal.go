package value

import (
	"github.com/openfroyo/confeval/pkg/diag"
)

// Entry is one `key <op> value` entry of a config literal.
type Entry struct {
	Key   string
	Value Value
	Op    Op
	Meta  diag.ConfigMeta
}

// Literal is an ordered list of config entries. A key may repeat; entries
// apply in order.
type Literal struct {
	Entries []Entry
	Meta    diag.ConfigMeta
}

// NewLiteral creates an empty literal located at meta.
func NewLiteral(meta diag.ConfigMeta) *Literal {
	return &Literal{Meta: meta}
}

// Add appends an entry located at v's meta and returns l.
func (l *Literal) Add(key string, v Value, op Op) *Literal {
	l.Entries = append(l.Entries, Entry{Key: key, Value: v, Op: op, Meta: v.meta})
	return l
}

// Union appends a Union entry.
func (l *Literal) Union(key string, v Value) *Literal { return l.Add(key, v, OpUnion) }

// Override appends an Override entry.
func (l *Literal) Override(key string, v Value) *Literal { return l.Add(key, v, OpOverride) }

// Len returns the number of entries.
func (l *Literal) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Entries)
}

// Keys returns the distinct keys in order of first appearance.
func (l *Literal) Keys() []string {
	if l == nil {
		return nil
	}
	seen := make(map[string]bool, len(l.Entries))
	var keys []string
	for _, e := range l.Entries {
		if !seen[e.Key] {
			seen[e.Key] = true
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// Has reports whether some entry writes key.
func (l *Literal) Has(key string) bool {
	if l == nil {
		return false
	}
	for _, e := range l.Entries {
		if e.Key == key {
			return true
		}
	}
	return false
}

// EntriesFor returns the entries writing key, in order.
func (l *Literal) EntriesFor(key string) []Entry {
	if l == nil {
		return nil
	}
	var out []Entry
	for _, e := range l.Entries {
		if e.Key == key {
			out = append(out, e)
		}
	}
	return out
}

// Concat returns a literal holding l's entries followed by other's.
func (l *Literal) Concat(other *Literal) *Literal {
	out := &Literal{}
	if l != nil {
		out.Meta = l.Meta
		out.Entries = append(out.Entries, l.Entries...)
	}
	if other != nil {
		if out.Meta.IsZero() {
			out.Meta = other.Meta
		}
		out.Entries = append(out.Entries, other.Entries...)
	}
	return out
}

// Apply writes entry e into d.
func (e Entry) Apply(d *Dict) error {
	v := e.Value
	if v.meta.IsZero() {
		v = v.WithMeta(e.Meta)
	}
	if err := d.Insert(e.Key, v, e.Op); err != nil {
		if de, ok := diag.As(err); ok {
			de.WithMeta(e.Meta)
		}
		return err
	}
	return nil
}

// ApplyTo writes every entry into d in textual order, stopping at the
// first error.
func (l *Literal) ApplyTo(d *Dict) error {
	if l == nil {
		return nil
	}
	for _, e := range l.Entries {
		if err := e.Apply(d); err != nil {
			return err
		}
	}
	return nil
}

// Eval builds a fresh dict from the literal.
func (l *Literal) Eval() (*Dict, error) {
	d := NewDict()
	if err := l.ApplyTo(d); err != nil {
		return nil, err
	}
	return d, nil
}

// LiteralFromDict returns a literal writing every entry of d with op.
func LiteralFromDict(d *Dict, op Op) *Literal {
	l := &Literal{}
	d.Range(func(key string, v Value) bool {
		l.Add(key, v, op)
		return true
	})
	return l
}
