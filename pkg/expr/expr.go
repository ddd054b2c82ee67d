package expr

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/schema"
	"github.com/openfroyo/confeval/pkg/value"
)

var fileOptions = &syntax.FileOptions{Set: true, Recursion: true}

// Expression is a parsed Starlark expression bound to its source location.
type Expression struct {
	// Source is the expression text.
	Source string

	// Meta locates the expression in its declaration file.
	Meta diag.ConfigMeta

	names []string
}

// Parse parses src as a single Starlark expression.
func Parse(src string, meta diag.ConfigMeta) (*Expression, error) {
	e, err := fileOptions.ParseExpr(filename(meta), src, 0)
	if err != nil {
		msg := err.Error()
		var serr syntax.Error
		if errors.As(err, &serr) {
			msg = serr.Msg
		}
		return nil, diag.Newf(diag.KindEvaluationFailure, "invalid expression: %s", msg).
			WithExpr(src).WithMeta(meta)
	}
	return &Expression{Source: src, Meta: meta, names: freeNames(e)}, nil
}

// Names returns the free identifiers of the expression.
func (e *Expression) Names() []string {
	return append([]string(nil), e.names...)
}

// selfName is bound to the instance under construction. Free attribute
// names are rewritten to selectors on it, so an attribute is computed only
// when the branch that reads it runs.
const selfName = "__self__"

// Eval evaluates the expression in f. Free identifiers resolve, in order, to
// locals bound by the index signature, attributes of the instance, schema
// constructors, and the Starlark universe. Attributes are read lazily,
// whether named directly or through self.
func (e *Expression) Eval(f *schema.Frame) (value.Value, error) {
	// The resolver annotates the tree it evaluates, so each call parses a
	// fresh one.
	tree, err := fileOptions.ParseExpr(filename(e.Meta), e.Source, 0)
	if err != nil {
		return value.Undefined(), e.wrap(err)
	}
	tree, env, err := e.bind(f, tree)
	if err != nil {
		return value.Undefined(), err
	}

	log := f.Context().Logger()
	thread := &starlark.Thread{
		Name: f.Schema(),
		Print: func(_ *starlark.Thread, msg string) {
			log.WithField("schema", f.Schema()).WithField("attr", f.Attr()).Info(msg)
		},
	}
	if steps := f.Context().Options().MaxSteps; steps > 0 {
		thread.SetMaxExecutionSteps(steps)
	}

	result, err := starlark.EvalExprOptions(fileOptions, thread, tree, env)
	if err != nil {
		return value.Undefined(), e.wrap(err)
	}
	v, err := fromStarlark(result)
	if err != nil {
		return value.Undefined(), e.wrap(err)
	}
	return v, nil
}

// bind builds the environment of tree in f and rewrites free attribute
// names into lazy selectors.
func (e *Expression) bind(f *schema.Frame, tree syntax.Expr) (syntax.Expr, starlark.StringDict, error) {
	env := starlark.StringDict{
		"struct": starlarkstruct.Default,
		"typeof": starlark.NewBuiltin("typeof", typeOf),
	}
	reg := f.Context().Registry()
	lazy := &self{f: f}
	seen := make(map[string]bool)

	var err error
	tree = rewriteFree(tree, func(id *syntax.Ident) syntax.Expr {
		if err != nil {
			return id
		}
		if f.IsAttr(id.Name) {
			env[selfName] = lazy
			return &syntax.DotExpr{
				X:       &syntax.Ident{NamePos: id.NamePos, Name: selfName},
				Dot:     id.NamePos,
				NamePos: id.NamePos,
				Name:    &syntax.Ident{NamePos: id.NamePos, Name: id.Name},
			}
		}
		if seen[id.Name] {
			return id
		}
		seen[id.Name] = true

		v, ok, lerr := f.Lookup(id.Name)
		switch {
		case lerr != nil:
			err = lerr
		case ok:
			sv, cerr := toStarlark(v)
			if cerr != nil {
				err = e.wrap(cerr)
				break
			}
			env[id.Name] = sv
		case id.Name == "self":
			env[id.Name] = lazy
		case reg.Has(id.Name):
			env[id.Name] = e.constructor(f, id.Name)
		}
		return id
	})
	if err != nil {
		return nil, nil, err
	}
	return tree, env, nil
}

// constructor returns a builtin instantiating the named schema from either a
// single dict argument or keyword arguments, unioned in order.
func (e *Expression) constructor(f *schema.Frame, name string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		lit := value.NewLiteral(e.Meta)
		switch len(args) {
		case 0:
		case 1:
			cfg, err := fromStarlark(args[0])
			if err != nil {
				return nil, err
			}
			if !cfg.IsConfig() {
				return nil, fmt.Errorf("%s: expected a dict, got %s", b.Name(), cfg.TypeName())
			}
			lit = lit.Concat(value.LiteralFromDict(configDict(cfg), value.OpUnion))
		default:
			return nil, fmt.Errorf("%s: got %d positional arguments, want at most 1", b.Name(), len(args))
		}
		for _, kv := range kwargs {
			v, err := fromStarlark(kv[1])
			if err != nil {
				return nil, err
			}
			lit.Union(string(kv[0].(starlark.String)), v)
		}

		v, err := f.Instantiate(name, lit, e.Meta)
		if err != nil {
			return nil, err
		}
		return toStarlark(v)
	})
}

func configDict(v value.Value) *value.Dict {
	if v.Kind() == value.KindSchema {
		return v.AsInstance().Attrs
	}
	return v.AsDict()
}

// wrap classifies an evaluation error. Engine errors raised below the
// expression keep their identity.
func (e *Expression) wrap(err error) error {
	if de, ok := diag.As(err); ok {
		return de
	}
	msg := err.Error()
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		msg = evalErr.Msg
	}
	return diag.New(diag.KindEvaluationFailure, msg).WithExpr(e.Source).WithMeta(e.Meta)
}

func typeOf(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	v, err := fromStarlark(x)
	if err != nil {
		return starlark.String(x.Type()), nil
	}
	return starlark.String(v.TypeName()), nil
}

func filename(meta diag.ConfigMeta) string {
	if meta.Filename != "" {
		return meta.Filename
	}
	return "<expr>"
}

// Compile parses src and returns it as an attribute expression.
func Compile(src string) (schema.Expr, error) {
	return CompileAt(src, diag.ConfigMeta{})
}

// CompileAt is like Compile with a source location for diagnostics.
func CompileAt(src string, meta diag.ConfigMeta) (schema.Expr, error) {
	e, err := Parse(src, meta)
	if err != nil {
		return nil, err
	}
	return e.Eval, nil
}

// MustCompile is like Compile but panics on syntax errors.
func MustCompile(src string) schema.Expr {
	fn, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return fn
}

// Check compiles src into a check block entry with an optional failure
// message.
func Check(src, message string, meta diag.ConfigMeta) (schema.Check, error) {
	fn, err := CompileAt(src, meta)
	if err != nil {
		return schema.Check{}, err
	}
	return schema.Check{Cond: fn, Text: src, Message: message, Meta: meta}, nil
}
