package schema

import (
	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/value"
)

// Expr computes a value in the scope of an instance under construction.
// Reads of sibling attributes go through the Frame and may trigger their
// computation.
type Expr func(f *Frame) (value.Value, error)

// Const returns an expression yielding v.
func Const(v value.Value) Expr {
	return func(*Frame) (value.Value, error) { return v, nil }
}

// Ref returns an expression reading the named attribute.
func Ref(name string) Expr {
	return func(f *Frame) (value.Value, error) { return f.Get(name) }
}

// Schema is a schema declaration.
type Schema struct {
	// Name is the schema name.
	Name string `json:"name" validate:"required"`

	// Mixin marks the declaration as a mixin. Mixins contribute statements
	// and checks to other schemas and cannot be instantiated.
	Mixin bool `json:"mixin,omitempty"`

	// Bases names the base schema. At most one is allowed.
	Bases []string `json:"bases,omitempty"`

	// Mixins names the mixins applied after the schema body, in order.
	Mixins []string `json:"mixins,omitempty"`

	// Attrs are the declared attributes.
	Attrs []Attr `json:"attrs,omitempty" validate:"dive"`

	// Body holds assignment statements run after attribute defaults.
	Body []Stmt `json:"body,omitempty" validate:"dive"`

	// Checks are the validation expressions.
	Checks []Check `json:"checks,omitempty" validate:"dive"`

	// IndexSignature admits attributes outside the declared set.
	IndexSignature *IndexSignature `json:"index_signature,omitempty"`

	Meta diag.ConfigMeta `json:"meta"`
}

// Attr is a declared attribute.
type Attr struct {
	Name string `json:"name" validate:"required"`

	// Type is the type expression, e.g. "int", "[str]", "{str:Server}",
	// "A|B" or "\"blue\"". Empty means any.
	Type string `json:"type,omitempty"`

	// Optional attributes may be None or Undefined once instantiated.
	Optional bool `json:"optional,omitempty"`

	// Default computes the default value. nil means no default.
	Default Expr `json:"-"`

	Meta diag.ConfigMeta `json:"meta"`
}

// Guard gates a statement on the truthiness of Cond.
type Guard struct {
	Cond Expr `validate:"required"`
	Want bool
}

// Stmt is a body statement `Target <Op> Value`, applied only when every
// guard holds.
type Stmt struct {
	Target string   `json:"target" validate:"required"`
	Op     value.Op `json:"-"`
	Value  Expr     `json:"-" validate:"required"`
	Guards []Guard  `json:"-" validate:"dive"`
	Meta   diag.ConfigMeta
}

// Check is a validation expression. A falsy result fails the instance.
type Check struct {
	Cond Expr `json:"-" validate:"required"`

	// Text is the source text of Cond, reported on failure.
	Text string `json:"text"`

	// Message is the optional failure message.
	Message string `json:"message,omitempty"`

	Meta diag.ConfigMeta `json:"meta"`
}

// IndexSignature is the declared form of value.IndexSignature.
type IndexSignature struct {
	KeyName   string `json:"key_name,omitempty"`
	KeyType   string `json:"key_type"`
	ValueType string `json:"value_type"`
	Meta      diag.ConfigMeta
}

// Assign returns an Override statement.
func Assign(target string, v Expr) Stmt {
	return Stmt{Target: target, Op: value.OpOverride, Value: v}
}

// Unify returns a Union statement.
func Unify(target string, v Expr) Stmt {
	return Stmt{Target: target, Op: value.OpUnion, Value: v}
}

// When gates stmts on cond being truthy.
func When(cond Expr, stmts ...Stmt) []Stmt {
	return guard(Guard{Cond: cond, Want: true}, stmts)
}

// Unless gates stmts on cond being falsy.
func Unless(cond Expr, stmts ...Stmt) []Stmt {
	return guard(Guard{Cond: cond, Want: false}, stmts)
}

// If flattens an if/else block into guarded statements. An elif chain is an
// If nested in otherwise.
func If(cond Expr, then []Stmt, otherwise []Stmt) []Stmt {
	return append(When(cond, then...), Unless(cond, otherwise...)...)
}

func guard(g Guard, stmts []Stmt) []Stmt {
	out := make([]Stmt, len(stmts))
	for i, s := range stmts {
		s.Guards = append([]Guard{g}, s.Guards...)
		out[i] = s
	}
	return out
}

func (s *Schema) attr(name string) *Attr {
	for i := range s.Attrs {
		if s.Attrs[i].Name == name {
			return &s.Attrs[i]
		}
	}
	return nil
}
