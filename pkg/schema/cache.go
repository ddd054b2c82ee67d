package schema

import (
	"strings"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/value"
)

// Phase is the resolution state of one attribute.
type Phase uint8

const (
	// Unvisited attributes have not been computed yet.
	Unvisited Phase = iota
	// Pending attributes are being computed.
	Pending
	// Resolved attributes hold their final value.
	Resolved
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Unvisited:
		return "unvisited"
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	}
	return "unknown"
}

// CacheEntry is the memo of one attribute.
type CacheEntry struct {
	Phase Phase
	Depth int
	Value value.Value
}

// Cache memoizes attribute resolution for one instance under construction.
// Pending attributes form a stack: an attribute starts computing only from
// inside the computation of the attribute below it.
type Cache struct {
	instance int
	entries  map[string]*CacheEntry
	pending  []string
}

// NewCache creates the cache of the given instance.
func NewCache(instance int) *Cache {
	return &Cache{instance: instance, entries: make(map[string]*CacheEntry)}
}

// Instance returns the ID of the owning instance.
func (c *Cache) Instance() int {
	return c.instance
}

// State returns the entry of name. Names never seen are Unvisited.
func (c *Cache) State(name string) CacheEntry {
	if e, ok := c.entries[name]; ok {
		return *e
	}
	return CacheEntry{Phase: Unvisited}
}

// Begin marks name Pending at depth. Beginning a name that is not Unvisited
// is a RecursiveAttributeError.
func (c *Cache) Begin(name string, depth int) error {
	if e, ok := c.entries[name]; ok && e.Phase != Unvisited {
		return c.cycleError(name)
	}
	c.entries[name] = &CacheEntry{Phase: Pending, Depth: depth}
	c.pending = append(c.pending, name)
	return nil
}

// Resolve records the final value of name and pops it off the pending stack.
func (c *Cache) Resolve(name string, v value.Value) {
	e, ok := c.entries[name]
	if !ok {
		e = &CacheEntry{}
		c.entries[name] = e
	}
	e.Phase = Resolved
	e.Value = v
	for i := len(c.pending) - 1; i >= 0; i-- {
		if c.pending[i] == name {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
}

// Value returns the memoized value of a Resolved name.
func (c *Cache) Value(name string) (value.Value, bool) {
	if e, ok := c.entries[name]; ok && e.Phase == Resolved {
		return e.Value, true
	}
	return value.Undefined(), false
}

// Current returns the innermost Pending name, or "".
func (c *Cache) Current() string {
	if len(c.pending) == 0 {
		return ""
	}
	return c.pending[len(c.pending)-1]
}

// Cycle returns the reference path closed by reading name, e.g. [a b a].
func (c *Cache) Cycle(name string) []string {
	for i, p := range c.pending {
		if p == name {
			return append(append([]string(nil), c.pending[i:]...), name)
		}
	}
	return []string{name, name}
}

// Len returns the number of tracked names.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Reset discards every entry.
func (c *Cache) Reset() {
	c.entries = make(map[string]*CacheEntry)
	c.pending = nil
}

func (c *Cache) cycleError(name string) *diag.Error {
	return diag.Newf(diag.KindRecursiveAttributeError,
		"attribute '%s' is referenced recursively: %s", name, strings.Join(c.Cycle(name), " -> ")).
		WithAttr(name)
}
