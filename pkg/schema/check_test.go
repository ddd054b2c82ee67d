package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/value"
)

func TestCheckOptional(t *testing.T) {
	inner := value.NewInstance("Server", diag.Meta("main.k", 4, 1))
	inner.SetOptional("port", false)
	require.NoError(t, inner.Attrs.Set("port", value.None()))

	outer := value.NewInstance("App", diag.Meta("main.k", 1, 1))
	outer.SetOptional("name", false)
	outer.SetOptional("servers", true)
	require.NoError(t, outer.Attrs.Set("name", value.Str("web")))
	require.NoError(t, outer.Attrs.Set("servers", value.ListOf(value.FromInstance(inner))))

	assert.NoError(t, CheckOptional(outer, false))

	err := CheckOptional(outer, true)
	e, ok := diag.As(err)
	require.True(t, ok)
	assert.Equal(t, diag.KindRequiredAttributeMissing, e.Kind)
	assert.Equal(t, "Server", e.Schema)
	assert.Equal(t, "port", e.Attr)
	assert.Equal(t, diag.Meta("main.k", 4, 1), e.Meta)
}

func TestCheckIndexSignature(t *testing.T) {
	reg := NewRegistry()

	plain := value.NewInstance("Plain", diag.ConfigMeta{})
	plain.SetOptional("name", false)
	require.NoError(t, plain.Attrs.Set("name", value.Str("x")))
	require.NoError(t, plain.Attrs.Set("_private", value.Int(1)))
	assert.NoError(t, CheckIndexSignature(reg, plain))

	require.NoError(t, plain.Attrs.Set("extra", value.Int(1)))
	err := CheckIndexSignature(reg, plain)
	assert.True(t, diag.IsKind(err, diag.KindUndeclaredAttribute), "got %v", err)

	env := value.NewInstance("Env", diag.ConfigMeta{})
	env.IndexSignature = &value.IndexSignature{KeyType: "str", ValueType: "int"}
	require.NoError(t, env.Attrs.Set("a", value.Int(1)))
	assert.NoError(t, CheckIndexSignature(reg, env))

	require.NoError(t, env.Attrs.Set("b", value.Str("x")))
	err = CheckIndexSignature(reg, env)
	assert.True(t, diag.IsKind(err, diag.KindIndexSignatureViolation), "got %v", err)
}

func TestCheckOptional_FinishedInstances(t *testing.T) {
	reg := NewRegistry().MustRegister(&Schema{
		Name:  "App",
		Attrs: []Attr{{Name: "name", Type: "str", Default: Const(value.Str("web"))}},
	})
	v, err := Instantiate(reg, "App", nil, diag.ConfigMeta{}, Options{})
	require.NoError(t, err)

	assert.NoError(t, CheckOptional(v.AsInstance(), true))
	assert.NoError(t, CheckIndexSignature(reg, v.AsInstance()))
}
