package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/value"
)

// Registry holds schema declarations by SchemaID. Registration is guarded by
// a RWMutex; once populated the registry is read-only and may be shared by
// concurrent evaluation contexts.
type Registry struct {
	mu        sync.RWMutex
	schemas   []*Schema
	types     [][]*Type
	byName    map[string]value.SchemaID
	validator *validator.Validate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]value.SchemaID),
		validator: validator.New(),
	}
}

// Register adds a declaration and returns its ID. Duplicate schema names and
// attributes declared twice in one schema are NamingConflict errors.
// Inheritance is checked when the schema is first resolved.
func (r *Registry) Register(s *Schema) (value.SchemaID, error) {
	if err := r.validator.Struct(s); err != nil {
		return value.NoSchema, diag.Wrap(diag.KindNamingConflict, err, "invalid schema declaration").
			WithSchema(s.Name).WithMeta(s.Meta)
	}

	seen := make(map[string]bool, len(s.Attrs))
	types := make([]*Type, len(s.Attrs))
	for i, a := range s.Attrs {
		if seen[a.Name] {
			return value.NoSchema, diag.Newf(diag.KindNamingConflict,
				"attribute '%s' is declared more than once", a.Name).
				WithSchema(s.Name).WithAttr(a.Name).WithMeta(a.Meta)
		}
		seen[a.Name] = true
		t, err := ParseType(a.Type)
		if err != nil {
			return value.NoSchema, diag.Wrap(diag.KindTypeMismatch, err, "invalid attribute type").
				WithSchema(s.Name).WithAttr(a.Name).WithMeta(a.Meta)
		}
		types[i] = t
	}
	if sig := s.IndexSignature; sig != nil {
		if _, err := ParseType(sig.KeyType); err != nil {
			return value.NoSchema, diag.Wrap(diag.KindTypeMismatch, err, "invalid index signature key type").
				WithSchema(s.Name).WithMeta(sig.Meta)
		}
		if _, err := ParseType(sig.ValueType); err != nil {
			return value.NoSchema, diag.Wrap(diag.KindTypeMismatch, err, "invalid index signature value type").
				WithSchema(s.Name).WithMeta(sig.Meta)
		}
		if sig.KeyName != "" && seen[sig.KeyName] {
			return value.NoSchema, diag.Newf(diag.KindNamingConflict,
				"index signature key name '%s' shadows an attribute", sig.KeyName).
				WithSchema(s.Name).WithMeta(sig.Meta)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.byName[s.Name]; exists {
		return value.NoSchema, diag.Newf(diag.KindNamingConflict, "schema '%s' is already declared", s.Name).
			WithSchema(s.Name).WithMeta(s.Meta).WithRelated(r.schemas[prev].Meta)
	}

	id := value.SchemaID(len(r.schemas))
	r.schemas = append(r.schemas, s)
	r.types = append(r.types, types)
	r.byName[s.Name] = id
	return id, nil
}

// MustRegister registers every declaration and panics on error.
func (r *Registry) MustRegister(schemas ...*Schema) *Registry {
	for _, s := range schemas {
		if _, err := r.Register(s); err != nil {
			panic(fmt.Sprintf("register schema %s: %v", s.Name, err))
		}
	}
	return r
}

// Lookup returns the declaration and ID registered under name.
func (r *Registry) Lookup(name string) (*Schema, value.SchemaID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return nil, value.NoSchema, diag.Newf(diag.KindUnknownSchema, "schema '%s' is not defined", name).
			WithSchema(name)
	}
	return r.schemas[id], id, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byName[name]
	return ok
}

// Get returns the declaration with the given ID.
func (r *Registry) Get(id value.SchemaID) *Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id < 0 || int(id) >= len(r.schemas) {
		return nil
	}
	return r.schemas[id]
}

// attrType returns the parsed type of the i-th attribute of schema id.
func (r *Registry) attrType(id value.SchemaID, i int) *Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.types[id][i]
}

// Names returns the registered schema names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.schemas))
	for i, s := range r.schemas {
		names[i] = s.Name
	}
	return names
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.schemas)
}

// Describe renders a one-line summary of a declaration, e.g.
// "schema Server(Base) mixin [Labels]: 3 attrs, 1 check".
func Describe(s *Schema) string {
	var b strings.Builder
	if s.Mixin {
		b.WriteString("mixin ")
	} else {
		b.WriteString("schema ")
	}
	b.WriteString(s.Name)
	if len(s.Bases) > 0 {
		fmt.Fprintf(&b, "(%s)", strings.Join(s.Bases, ", "))
	}
	if len(s.Mixins) > 0 {
		fmt.Fprintf(&b, " mixin [%s]", strings.Join(s.Mixins, ", "))
	}
	fmt.Fprintf(&b, ": %d %s, %d %s", len(s.Attrs), plural(len(s.Attrs), "attr"), len(s.Checks), plural(len(s.Checks), "check"))
	if s.IndexSignature != nil {
		b.WriteString(", index signature")
	}
	return b.String()
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
