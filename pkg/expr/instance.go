package expr

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/openfroyo/confeval/pkg/schema"
	"github.com/openfroyo/confeval/pkg/value"
)

// Instance exposes a schema instance to Starlark. Attributes are read with
// dot or index syntax. Instances cannot be modified from expressions.
type Instance struct {
	inst *value.Instance
}

var (
	_ starlark.HasAttrs = (*Instance)(nil)
	_ starlark.Mapping  = (*Instance)(nil)
)

// Value returns the wrapped instance.
func (i *Instance) Value() *value.Instance { return i.inst }

func (i *Instance) String() string       { return value.FromInstance(i.inst).String() }
func (i *Instance) Type() string         { return i.inst.TypeName }
func (i *Instance) Freeze()              {}
func (i *Instance) Truth() starlark.Bool { return starlark.True }

func (i *Instance) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: %s", i.inst.TypeName)
}

func (i *Instance) Attr(name string) (starlark.Value, error) {
	v, ok := i.inst.Get(name)
	if !ok {
		return nil, nil
	}
	return toStarlark(v)
}

func (i *Instance) AttrNames() []string {
	return i.inst.Attrs.Keys()
}

func (i *Instance) Get(k starlark.Value) (starlark.Value, bool, error) {
	key, ok := k.(starlark.String)
	if !ok {
		return nil, false, fmt.Errorf("%s: attribute names must be strings, got %s", i.inst.TypeName, k.Type())
	}
	v, found := i.inst.Get(string(key))
	if !found {
		return nil, false, nil
	}
	sv, err := toStarlark(v)
	return sv, err == nil, err
}

// self reads attributes of the instance under construction on demand, so
// branches that are not taken never compute what they reference.
type self struct {
	f *schema.Frame
}

var _ starlark.HasAttrs = (*self)(nil)

func (s *self) String() string       { return fmt.Sprintf("<self %s>", s.f.Schema()) }
func (s *self) Type() string         { return s.f.Schema() }
func (s *self) Freeze()              {}
func (s *self) Truth() starlark.Bool { return starlark.True }

func (s *self) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: %s", s.f.Schema())
}

func (s *self) Attr(name string) (starlark.Value, error) {
	v, ok, err := s.f.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return toStarlark(v)
}

func (s *self) AttrNames() []string {
	return s.f.Instance().Attrs.Keys()
}
