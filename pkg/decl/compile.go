package decl

import (
	"errors"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/expr"
	"github.com/openfroyo/confeval/pkg/schema"
	"github.com/openfroyo/confeval/pkg/value"
)

// Compile registers the schemas of f and builds the instance literals. Every
// declaration error is reported; the result is nil when any occurred.
func Compile(f *File) (*Program, error) {
	p := &Program{Registry: schema.NewRegistry()}
	var errs diag.List
	note := func(err error) {
		var list diag.List
		if errors.As(err, &list) {
			errs = append(errs, list...)
			return
		}
		errs = append(errs, diag.From(err, diag.KindEvaluationFailure))
	}

	for i := range f.Schemas {
		s, err := compileSchema(&f.Schemas[i])
		if err != nil {
			note(err)
			continue
		}
		if _, err := p.Registry.Register(s); err != nil {
			note(err)
		}
	}

	seen := make(map[string]diag.ConfigMeta, len(f.Instances))
	for i := range f.Instances {
		d := &f.Instances[i]
		if prev, ok := seen[d.Name]; ok {
			errs = append(errs, diag.Newf(diag.KindNamingConflict, "instance '%s' is declared twice", d.Name).
				WithMeta(d.Meta).WithRelated(prev))
			continue
		}
		seen[d.Name] = d.Meta

		lit, err := literal(d.Meta.Filename, &d.Config, d.Meta)
		if err != nil {
			note(err)
			continue
		}
		p.Instances = append(p.Instances, Instance{Name: d.Name, Schema: d.Schema, Config: lit, Meta: d.Meta})
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func compileSchema(d *SchemaDecl) (*schema.Schema, error) {
	s := &schema.Schema{
		Name:   d.Name,
		Mixin:  d.Mixin,
		Mixins: d.Mixins,
		Meta:   d.Meta,
	}
	if d.Base != "" {
		s.Bases = []string{d.Base}
	}

	var errs diag.List
	compile := func(src string, meta diag.ConfigMeta) schema.Expr {
		fn, err := expr.CompileAt(src, meta)
		if err != nil {
			e := diag.From(err, diag.KindEvaluationFailure).WithSchema(d.Name)
			errs = append(errs, e)
			return nil
		}
		return fn
	}

	for _, a := range d.Attrs {
		attr := schema.Attr{Name: a.Name, Type: a.Type, Optional: a.Optional, Meta: a.Meta}
		if a.Default != "" {
			attr.Default = compile(a.Default, a.Meta)
		}
		s.Attrs = append(s.Attrs, attr)
	}

	for _, b := range d.Body {
		op, err := value.ParseOp(b.Op)
		if err != nil {
			errs = append(errs, diag.Wrap(diag.KindTypeConflict, err, "invalid statement").WithSchema(d.Name).WithMeta(b.Meta))
			continue
		}
		if b.Index != nil {
			switch op.Kind {
			case value.Override:
				op = value.OpOverrideAt(*b.Index)
			case value.Add:
				op = value.OpInsertAt(*b.Index)
			default:
				errs = append(errs, diag.Newf(diag.KindTypeConflict, "operator %s does not take an index", op).
					WithSchema(d.Name).WithMeta(b.Meta))
				continue
			}
		}
		stmt := schema.Stmt{Target: b.Target, Op: op, Value: compile(b.Value, b.Meta), Meta: b.Meta}
		if b.If != "" {
			stmt.Guards = append(stmt.Guards, schema.Guard{Cond: compile(b.If, b.Meta), Want: true})
		}
		if b.Unless != "" {
			stmt.Guards = append(stmt.Guards, schema.Guard{Cond: compile(b.Unless, b.Meta), Want: false})
		}
		s.Body = append(s.Body, stmt)
	}

	for _, c := range d.Checks {
		check, err := expr.Check(c.Expr, c.Message, c.Meta)
		if err != nil {
			errs = append(errs, diag.From(err, diag.KindEvaluationFailure).WithSchema(d.Name))
			continue
		}
		s.Checks = append(s.Checks, check)
	}

	if d.Index != nil {
		s.IndexSignature = &schema.IndexSignature{
			KeyName:   d.Index.Key,
			KeyType:   d.Index.KeyType,
			ValueType: d.Index.ValueType,
			Meta:      d.Index.Meta,
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return s, nil
}
