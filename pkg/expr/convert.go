package expr

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/confeval/pkg/value"
)

// toStarlark converts an engine value into a Starlark value. Lists and dicts
// are copied; instances are wrapped and stay read-only.
func toStarlark(v value.Value) (starlark.Value, error) {
	switch v.Kind() {
	case value.KindUndefined, value.KindNone:
		return starlark.None, nil
	case value.KindBool:
		return starlark.Bool(v.AsBool()), nil
	case value.KindInt:
		return starlark.MakeInt64(v.AsInt()), nil
	case value.KindFloat:
		return starlark.Float(v.AsFloat()), nil
	case value.KindStr:
		return starlark.String(v.AsStr()), nil
	case value.KindList:
		items := v.AsList().Items()
		list := make([]starlark.Value, 0, len(items))
		for _, item := range items {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			list = append(list, sv)
		}
		return starlark.NewList(list), nil
	case value.KindDict:
		d := v.AsDict()
		dict := starlark.NewDict(d.Len())
		var err error
		d.Range(func(key string, item value.Value) bool {
			var sv starlark.Value
			if sv, err = toStarlark(item); err != nil {
				return false
			}
			err = dict.SetKey(starlark.String(key), sv)
			return err == nil
		})
		if err != nil {
			return nil, err
		}
		return dict, nil
	case value.KindSchema:
		return &Instance{inst: v.AsInstance()}, nil
	case value.KindFunc:
		fn := v.AsFunc()
		return starlark.NewBuiltin(fn.Name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(kwargs) > 0 {
				return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
			}
			in := make([]value.Value, len(args))
			for i, arg := range args {
				av, err := fromStarlark(arg)
				if err != nil {
					return nil, err
				}
				in[i] = av
			}
			out, err := fn.Call(in...)
			if err != nil {
				return nil, err
			}
			return toStarlark(out)
		}), nil
	case value.KindError:
		return nil, v.AsError()
	default:
		return nil, fmt.Errorf("unsupported value kind: %s", v.Kind())
	}
}

// fromStarlark converts a Starlark value back into an engine value.
func fromStarlark(v starlark.Value) (value.Value, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return value.None(), nil
	case starlark.Bool:
		return value.Bool(bool(val)), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return value.Undefined(), fmt.Errorf("integer too large: %s", val)
		}
		return value.Int(i), nil
	case starlark.Float:
		return value.Float(float64(val)), nil
	case starlark.String:
		return value.Str(string(val)), nil
	case *starlark.List:
		return listFrom(val)
	case starlark.Tuple:
		return listFrom(val)
	case *starlark.Dict:
		d := value.NewDict()
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return value.Undefined(), fmt.Errorf("dict keys must be strings, got %s", item[0].Type())
			}
			iv, err := fromStarlark(item[1])
			if err != nil {
				return value.Undefined(), err
			}
			if err := d.Set(string(key), iv); err != nil {
				return value.Undefined(), err
			}
		}
		return value.FromDict(d), nil
	case *starlarkstruct.Struct:
		d := value.NewDict()
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				return value.Undefined(), err
			}
			av, err := fromStarlark(attr)
			if err != nil {
				return value.Undefined(), err
			}
			if err := d.Set(name, av); err != nil {
				return value.Undefined(), err
			}
		}
		return value.FromDict(d), nil
	case *Instance:
		return value.FromInstance(val.inst), nil
	case *self:
		return value.FromInstance(val.f.Instance()), nil
	default:
		return value.Undefined(), fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func listFrom(seq starlark.Indexable) (value.Value, error) {
	items := make([]value.Value, seq.Len())
	for i := range items {
		item, err := fromStarlark(seq.Index(i))
		if err != nil {
			return value.Undefined(), err
		}
		items[i] = item
	}
	return value.ListOf(items...), nil
}
