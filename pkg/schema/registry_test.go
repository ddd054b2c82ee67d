package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/value"
)

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()

	id, err := reg.Register(&Schema{Name: "Person", Meta: diag.Meta("a.k", 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, value.SchemaID(0), id)
	assert.True(t, reg.Has("Person"))
	assert.Equal(t, 1, reg.Len())

	_, err = reg.Register(&Schema{Name: "Person", Meta: diag.Meta("b.k", 3, 1)})
	e, ok := diag.As(err)
	require.True(t, ok)
	assert.Equal(t, diag.KindNamingConflict, e.Kind)
	assert.Equal(t, diag.Meta("b.k", 3, 1), e.Meta)
	assert.Equal(t, []diag.ConfigMeta{diag.Meta("a.k", 1, 1)}, e.Related)

	decl, gotID, err := reg.Lookup("Person")
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Same(t, decl, reg.Get(id))
	assert.Nil(t, reg.Get(5))
}

func TestRegistry_RegisterRejectsInvalidDeclarations(t *testing.T) {
	tests := []struct {
		name     string
		decl     *Schema
		wantKind diag.Kind
	}{
		{"missing name", &Schema{}, diag.KindNamingConflict},
		{"duplicate attribute", &Schema{Name: "S", Attrs: []Attr{{Name: "a"}, {Name: "a"}}}, diag.KindNamingConflict},
		{"unnamed attribute", &Schema{Name: "S", Attrs: []Attr{{Type: "int"}}}, diag.KindNamingConflict},
		{"bad type", &Schema{Name: "S", Attrs: []Attr{{Name: "a", Type: "[int"}}}, diag.KindTypeMismatch},
		{"statement without value", &Schema{Name: "S", Body: []Stmt{{Target: "a"}}}, diag.KindNamingConflict},
		{"check without condition", &Schema{Name: "S", Checks: []Check{{Text: "x"}}}, diag.KindNamingConflict},
		{
			"index key shadows attribute",
			&Schema{Name: "S", Attrs: []Attr{{Name: "k"}}, IndexSignature: &IndexSignature{KeyName: "k", KeyType: "str"}},
			diag.KindNamingConflict,
		},
		{
			"bad index value type",
			&Schema{Name: "S", IndexSignature: &IndexSignature{KeyType: "str", ValueType: "{int"}},
			diag.KindTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry().Register(tt.decl)
			require.Error(t, err)
			assert.True(t, diag.IsKind(err, tt.wantKind), "got %v", err)
		})
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	_, id, err := NewRegistry().Lookup("Nope")
	assert.Equal(t, value.NoSchema, id)
	assert.True(t, diag.IsKind(err, diag.KindUnknownSchema))
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewRegistry().MustRegister(&Schema{Name: "A"}, &Schema{Name: "A"})
	})
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		decl *Schema
		want string
	}{
		{&Schema{Name: "A"}, "schema A: 0 attrs, 0 checks"},
		{&Schema{Name: "M", Mixin: true, Checks: []Check{{}}}, "mixin M: 0 attrs, 1 check"},
		{
			&Schema{Name: "Server", Bases: []string{"Base"}, Mixins: []string{"Labels"}, Attrs: []Attr{{Name: "a"}}},
			"schema Server(Base) mixin [Labels]: 1 attr, 0 checks",
		},
		{
			&Schema{Name: "Env", IndexSignature: &IndexSignature{KeyType: "str", ValueType: "str"}},
			"schema Env: 0 attrs, 0 checks, index signature",
		},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Describe(tt.decl))
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry().MustRegister(&Schema{Name: "B"}, &Schema{Name: "A"})
	assert.Equal(t, []string{"B", "A"}, reg.Names())
}
