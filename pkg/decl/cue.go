package decl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/value"
)

// Fragment is extra configuration for a named instance, unioned after the
// instance's own config.
type Fragment struct {
	Instance string
	Config   *value.Literal
	Meta     diag.ConfigMeta
}

// Overlay is the content of a CUE file or package. Regular top-level fields
// are config fragments keyed by instance name. Definitions named after a
// schema (#Server) constrain every instance of that schema after evaluation.
// Definitions are closed, so constraints that only name some attributes must
// end with "...".
type Overlay struct {
	Fragments []Fragment

	ctx         *cue.Context
	constraints map[string]cue.Value
}

// LoadCUE loads an overlay from a .cue file or a directory holding a CUE
// package.
func LoadCUE(path string) (*Overlay, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat overlay %s: %w", path, err)
	}

	ctx := cuecontext.New()
	if !info.IsDir() {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read overlay: %w", err)
		}
		return newOverlay(ctx, ctx.CompileBytes(content, cue.Filename(path)))
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", path)
	}
	if err := instances[0].Err; err != nil {
		return nil, cueError(err, "failed to load overlay")
	}
	return newOverlay(ctx, ctx.BuildInstance(instances[0]))
}

// CompileCUE compiles an overlay from source.
func CompileCUE(filename string, src []byte) (*Overlay, error) {
	ctx := cuecontext.New()
	return newOverlay(ctx, ctx.CompileBytes(src, cue.Filename(filename)))
}

func newOverlay(ctx *cue.Context, v cue.Value) (*Overlay, error) {
	if err := v.Err(); err != nil {
		return nil, cueError(err, "invalid overlay")
	}

	o := &Overlay{ctx: ctx, constraints: make(map[string]cue.Value)}
	iter, err := v.Fields(cue.Definitions(true))
	if err != nil {
		return nil, cueError(err, "invalid overlay")
	}
	for iter.Next() {
		sel := iter.Selector()
		if sel.IsDefinition() {
			o.constraints[strings.TrimPrefix(sel.String(), "#")] = iter.Value()
			continue
		}
		frag, err := fragment(sel.Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		o.Fragments = append(o.Fragments, frag)
	}
	return o, nil
}

func fragment(name string, v cue.Value) (Fragment, error) {
	meta := posMeta(v.Pos())
	if v.Kind() != cue.StructKind {
		return Fragment{}, diag.Newf(diag.KindTypeConflict,
			"overlay for instance '%s' must be a struct, got %s", name, v.IncompleteKind()).WithMeta(meta)
	}

	lit := value.NewLiteral(meta)
	iter, err := v.Fields()
	if err != nil {
		return Fragment{}, cueError(err, "invalid overlay")
	}
	for iter.Next() {
		fv, err := fromCUE(iter.Value())
		if err != nil {
			return Fragment{}, err
		}
		lit.Entries = append(lit.Entries, value.Entry{
			Key:   iter.Selector().Unquoted(),
			Value: fv,
			Op:    value.OpUnion,
			Meta:  posMeta(iter.Value().Pos()),
		})
	}
	return Fragment{Instance: name, Config: lit, Meta: meta}, nil
}

// fromCUE converts a concrete CUE value.
func fromCUE(v cue.Value) (value.Value, error) {
	meta := posMeta(v.Pos())
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return value.Undefined(), cueError(err, "overlay values must be concrete")
	}

	switch v.Kind() {
	case cue.NullKind:
		return value.None().WithMeta(meta), nil
	case cue.BoolKind:
		b, err := v.Bool()
		return value.Bool(b).WithMeta(meta), err
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return value.Undefined(), cueError(err, "integer out of range")
		}
		return value.Int(i).WithMeta(meta), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return value.Undefined(), cueError(err, "invalid number")
		}
		return value.Float(f).WithMeta(meta), nil
	case cue.StringKind:
		s, err := v.String()
		return value.Str(s).WithMeta(meta), err
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return value.Undefined(), cueError(err, "invalid list")
		}
		var items []value.Value
		for iter.Next() {
			item, err := fromCUE(iter.Value())
			if err != nil {
				return value.Undefined(), err
			}
			items = append(items, item)
		}
		return value.ListOf(items...).WithMeta(meta), nil
	case cue.StructKind:
		d := value.NewDict()
		iter, err := v.Fields()
		if err != nil {
			return value.Undefined(), cueError(err, "invalid struct")
		}
		for iter.Next() {
			fv, err := fromCUE(iter.Value())
			if err != nil {
				return value.Undefined(), err
			}
			if err := d.Set(iter.Selector().Unquoted(), fv); err != nil {
				return value.Undefined(), err
			}
		}
		return value.FromDict(d).WithMeta(meta), nil
	default:
		return value.Undefined(), diag.Newf(diag.KindTypeConflict, "unsupported CUE kind %s", v.Kind()).WithMeta(meta)
	}
}

// Constraints returns the names of the constrained schemas.
func (o *Overlay) Constraints() []string {
	names := make([]string, 0, len(o.constraints))
	for name := range o.constraints {
		names = append(names, name)
	}
	return names
}

// Constrain validates every instance reachable from v against the
// definition named after its schema.
func (o *Overlay) Constrain(_ context.Context, v value.Value) diag.List {
	var errs diag.List
	for _, inst := range value.Instances(v) {
		def, ok := o.constraints[inst.TypeName]
		if !ok {
			continue
		}
		if err := o.validate(def, inst); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (o *Overlay) validate(def cue.Value, inst *value.Instance) *diag.Error {
	data, err := json.Marshal(value.Plan(value.FromInstance(inst), value.PlanOptions{}))
	if err != nil {
		return diag.Wrap(diag.KindSchemaCheckFailure, err, "failed to encode instance").
			WithSchema(inst.TypeName).WithMeta(inst.Meta)
	}

	unified := def.Unify(o.ctx.CompileBytes(data, cue.Filename(inst.TypeName+".json")))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		e := diag.Newf(diag.KindSchemaCheckFailure, "constraint #%s failed: %s",
			inst.TypeName, strings.TrimSpace(cueerrors.Details(err, nil))).
			WithSchema(inst.TypeName).WithMeta(inst.Meta)
		if pos := def.Pos(); pos.IsValid() {
			e.WithRelated(posMeta(pos))
		}
		return e
	}
	return nil
}

// cueError converts CUE errors to a diagnostic located at the first
// position CUE reports.
func cueError(err error, message string) error {
	errs := cueerrors.Errors(err)
	var list diag.List
	for _, e := range errs {
		d := diag.Newf(diag.KindEvaluationFailure, "%s: %s", message, strings.TrimSpace(cueerrors.Details(e, nil)))
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			d.WithMeta(posMeta(pos[0]))
		}
		list = append(list, d)
	}
	if len(list) == 0 {
		return diag.Wrap(diag.KindEvaluationFailure, err, message)
	}
	return list.Err()
}

func posMeta(pos token.Pos) diag.ConfigMeta {
	if !pos.IsValid() {
		return diag.ConfigMeta{}
	}
	return diag.Meta(pos.Filename(), pos.Line(), pos.Column())
}
