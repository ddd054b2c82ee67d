package decl

import (
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/confeval/pkg/diag"
)

// File is the layout of a YAML declaration file.
type File struct {
	// Schemas are the schema and mixin declarations.
	Schemas []SchemaDecl `yaml:"schemas" validate:"dive"`

	// Instances are the named top-level instances to evaluate, in order.
	Instances []InstanceDecl `yaml:"instances" validate:"dive"`
}

// SchemaDecl declares a schema or mixin.
type SchemaDecl struct {
	Name   string   `yaml:"name" validate:"required"`
	Mixin  bool     `yaml:"mixin,omitempty"`
	Base   string   `yaml:"base,omitempty"`
	Mixins []string `yaml:"mixins,omitempty" validate:"dive,required"`

	Attrs  []AttrDecl  `yaml:"attrs,omitempty" validate:"dive"`
	Body   []StmtDecl  `yaml:"body,omitempty" validate:"dive"`
	Checks []CheckDecl `yaml:"checks,omitempty" validate:"dive"`

	// Index declares the index signature `[key: key_type]: value_type`.
	Index *IndexDecl `yaml:"index,omitempty"`

	Meta diag.ConfigMeta `yaml:"-"`
}

// AttrDecl declares an attribute. Default is a Starlark expression.
type AttrDecl struct {
	Name     string `yaml:"name" validate:"required"`
	Type     string `yaml:"type,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
	Default  string `yaml:"default,omitempty"`

	Meta diag.ConfigMeta `yaml:"-"`
}

// StmtDecl is a body statement `target <op> value`, optionally guarded.
// With Index set, "=" replaces the list slot and "+=" inserts at it.
type StmtDecl struct {
	Target string `yaml:"target" validate:"required"`
	Op     string `yaml:"op,omitempty" validate:"omitempty,oneof=: = += -= union override add subtract"`
	Value  string `yaml:"value" validate:"required"`
	Index  *int   `yaml:"index,omitempty"`

	// If and Unless are guard expressions. Both may be set.
	If     string `yaml:"if,omitempty"`
	Unless string `yaml:"unless,omitempty"`

	Meta diag.ConfigMeta `yaml:"-"`
}

// CheckDecl is a check block entry.
type CheckDecl struct {
	Expr    string `yaml:"expr" validate:"required"`
	Message string `yaml:"message,omitempty"`

	Meta diag.ConfigMeta `yaml:"-"`
}

// IndexDecl declares an index signature.
type IndexDecl struct {
	Key       string `yaml:"key,omitempty"`
	KeyType   string `yaml:"key_type" validate:"required"`
	ValueType string `yaml:"value_type"`

	Meta diag.ConfigMeta `yaml:"-"`
}

// InstanceDecl names a top-level instance. Config keys may carry the tags
// !override, !add or !subtract to select the operator; untagged keys union.
type InstanceDecl struct {
	Name   string    `yaml:"name" validate:"required"`
	Schema string    `yaml:"schema" validate:"required"`
	Config yaml.Node `yaml:"config"`

	Meta diag.ConfigMeta `yaml:"-"`
}

// at returns the position of n. The filename is filled in after decoding.
func at(n *yaml.Node) diag.ConfigMeta {
	return diag.ConfigMeta{Line: n.Line, Column: n.Column}
}

func (d *SchemaDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain SchemaDecl
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.Meta = at(n)
	return nil
}

func (d *AttrDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain AttrDecl
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.Meta = at(n)
	return nil
}

func (d *StmtDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain StmtDecl
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.Meta = at(n)
	return nil
}

func (d *CheckDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain CheckDecl
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.Meta = at(n)
	return nil
}

func (d *IndexDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain IndexDecl
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.Meta = at(n)
	return nil
}

func (d *InstanceDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain InstanceDecl
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.Meta = at(n)
	return nil
}

// locate stamps filename on every position of f.
func (f *File) locate(filename string) {
	stamp := func(m *diag.ConfigMeta) { m.Filename = filename }
	for i := range f.Schemas {
		s := &f.Schemas[i]
		stamp(&s.Meta)
		for j := range s.Attrs {
			stamp(&s.Attrs[j].Meta)
		}
		for j := range s.Body {
			stamp(&s.Body[j].Meta)
		}
		for j := range s.Checks {
			stamp(&s.Checks[j].Meta)
		}
		if s.Index != nil {
			stamp(&s.Index.Meta)
		}
	}
	for i := range f.Instances {
		stamp(&f.Instances[i].Meta)
	}
}
