package schema

import (
	"strings"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/value"
)

// Role is the part a declaration plays in an initialization order.
type Role uint8

const (
	// RoleBase is a schema on the base chain.
	RoleBase Role = iota
	// RoleSelf is the schema being instantiated.
	RoleSelf
	// RoleMixin is a mixin, applied after the schema that lists it.
	RoleMixin
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleBase:
		return "base"
	case RoleSelf:
		return "self"
	case RoleMixin:
		return "mixin"
	}
	return "unknown"
}

// Segment is one declaration in an initialization order.
type Segment struct {
	ID     value.SchemaID
	Schema *Schema
	Role   Role
}

// Ancestry is the resolved inheritance plan of a schema: its direct base,
// its mixins, and the flattened initialization order. Each base contributes
// its own base chain and mixins before the schema that extends it.
type Ancestry struct {
	ID     value.SchemaID
	Schema *Schema
	Base   value.SchemaID
	Mixins []value.SchemaID

	// Order lists base chain segments (root first), then the schema itself,
	// then its mixins in declared order.
	Order []Segment

	// Self is the index of the RoleSelf segment in Order.
	Self int
}

// Chain returns the names of the schema and its bases, most derived first.
func (a *Ancestry) Chain() []string {
	var names []string
	for i := a.Self; i >= 0; i-- {
		if a.Order[i].Role != RoleMixin {
			names = append(names, a.Order[i].Schema.Name)
		}
	}
	return names
}

// IsA reports whether the schema is target or extends it.
func (a *Ancestry) IsA(target string) bool {
	for _, name := range a.Chain() {
		if name == target {
			return true
		}
	}
	return false
}

// Resolve computes the ancestry of the named schema. Mixins used as bases,
// multiple bases, cyclic base chains, mixins with a base, non-mixins listed
// as mixins and mixins instantiated directly are IllegalInheritance errors.
func (r *Registry) Resolve(name string) (*Ancestry, error) {
	decl, id, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if decl.Mixin {
		return nil, illegal(decl, "cannot instantiate mixin '%s'", decl.Name)
	}

	res := &resolver{reg: r, visiting: make(map[value.SchemaID]bool)}
	order, err := res.linearize(id, decl, RoleSelf, nil)
	if err != nil {
		return nil, err
	}

	a := &Ancestry{ID: id, Schema: decl, Base: value.NoSchema, Order: order}
	for i, seg := range order {
		if seg.Role == RoleSelf {
			a.Self = i
		}
	}
	if len(decl.Bases) == 1 {
		_, a.Base, _ = r.Lookup(decl.Bases[0])
	}
	for _, m := range decl.Mixins {
		_, mid, _ := r.Lookup(m)
		a.Mixins = append(a.Mixins, mid)
	}
	return a, nil
}

// resolver walks base and mixin edges depth first. visiting holds the
// declarations on the current path so a revisit is a cycle.
type resolver struct {
	reg      *Registry
	visiting map[value.SchemaID]bool
	path     []string
}

func (res *resolver) linearize(id value.SchemaID, decl *Schema, role Role, order []Segment) ([]Segment, error) {
	if res.visiting[id] {
		return nil, illegal(decl, "cyclic inheritance: %s", formatCycle(res.path, decl.Name))
	}
	res.visiting[id] = true
	res.path = append(res.path, decl.Name)
	defer func() {
		res.visiting[id] = false
		res.path = res.path[:len(res.path)-1]
	}()

	if len(decl.Bases) > 1 {
		return nil, illegal(decl, "schema '%s' has %d bases, at most one is allowed", decl.Name, len(decl.Bases))
	}
	if decl.Mixin && len(decl.Bases) > 0 {
		return nil, illegal(decl, "mixin '%s' cannot inherit from '%s'", decl.Name, decl.Bases[0])
	}

	if len(decl.Bases) == 1 {
		base, baseID, err := res.reg.Lookup(decl.Bases[0])
		if err != nil {
			return nil, wrapAt(err, decl)
		}
		if base.Mixin {
			return nil, illegal(decl, "mixin '%s' cannot be used as the base of '%s'", base.Name, decl.Name)
		}
		if order, err = res.linearize(baseID, base, RoleBase, order); err != nil {
			return nil, err
		}
	}

	order = append(order, Segment{ID: id, Schema: decl, Role: role})

	for _, name := range decl.Mixins {
		mixin, mixinID, err := res.reg.Lookup(name)
		if err != nil {
			return nil, wrapAt(err, decl)
		}
		if !mixin.Mixin {
			return nil, illegal(decl, "'%s' is not a mixin and cannot be mixed into '%s'", mixin.Name, decl.Name)
		}
		if order, err = res.linearize(mixinID, mixin, RoleMixin, order); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func illegal(decl *Schema, format string, args ...interface{}) *diag.Error {
	return diag.Newf(diag.KindIllegalInheritance, format, args...).
		WithSchema(decl.Name).WithMeta(decl.Meta)
}

func wrapAt(err error, decl *Schema) error {
	if e, ok := diag.As(err); ok {
		e.Meta = decl.Meta
	}
	return err
}

// formatCycle renders the cycle closed by name, e.g. "A -> B -> A".
func formatCycle(path []string, name string) string {
	start := 0
	for i, p := range path {
		if p == name {
			start = i
			break
		}
	}
	cycle := append(append([]string(nil), path[start:]...), name)
	return strings.Join(cycle, " -> ")
}
