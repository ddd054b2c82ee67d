package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/schema"
	"github.com/openfroyo/confeval/pkg/value"
)

func attrOf(t *testing.T, v value.Value, name string) value.Value {
	t.Helper()
	require.Equal(t, value.KindSchema, v.Kind(), "got %s", v)
	got, ok := v.AsInstance().Get(name)
	require.True(t, ok, "attribute %s missing", name)
	return got
}

func mustEval(t *testing.T, src string) starlark.Value {
	t.Helper()
	v, err := starlark.EvalOptions(fileOptions, &starlark.Thread{Name: "test"}, "test", src,
		starlark.StringDict{"struct": starlarkstruct.Default})
	require.NoError(t, err)
	return v
}

func config(pairs ...value.KV) *value.Literal {
	lit := value.NewLiteral(diag.Meta("main.k", 1, 1))
	for _, kv := range pairs {
		lit.Union(kv.Key, kv.Value)
	}
	return lit
}

func TestFreeNames(t *testing.T) {
	tests := []struct {
		src  string
		want []string
	}{
		{"a + b.c", []string{"a", "b"}},
		{"f(x, key=y)", []string{"f", "x", "y"}},
		{"[v for v in items if v > limit]", []string{"items", "limit"}},
		{"{k: v for k, v in m.items()}", []string{"m"}},
		{"(lambda p, q=d: p + q + r)(1)", []string{"d", "r"}},
		{"n if n > 0 else -n", []string{"n"}},
		{"[x for x in [1, 2]] + [x]", []string{"x"}},
		{"[y for y in ys] + [y]", []string{"ys", "y"}},
		{"(lambda p: p)(1) + p", []string{"p"}},
		{"[c for a in b for c in a if c > d]", []string{"b", "d"}},
		{"{k: v for k in ks}", []string{"ks", "v"}},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := fileOptions.ParseExpr("test", tt.src, 0)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, freeNames(e))
		})
	}
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse("1 +", diag.Meta("schema.k", 3, 9))
	e, ok := diag.As(err)
	require.True(t, ok)
	assert.Equal(t, diag.KindEvaluationFailure, e.Kind)
	assert.Contains(t, e.Message, "invalid expression")
	assert.Equal(t, "1 +", e.Expr)
	assert.Equal(t, diag.Meta("schema.k", 3, 9), e.Meta)

	assert.Panics(t, func() { MustCompile("(") })
}

func TestEval_Fibonacci(t *testing.T) {
	reg := schema.NewRegistry().MustRegister(&schema.Schema{
		Name: "Fib",
		Attrs: []schema.Attr{
			{Name: "n1", Default: MustCompile("n - 1")},
			{Name: "n2", Default: MustCompile("n1 - 1")},
			{Name: "n", Type: "int"},
			{Name: "value", Type: "int"},
		},
		Body: schema.If(MustCompile("n <= 2"),
			[]schema.Stmt{schema.Assign("value", MustCompile("1"))},
			[]schema.Stmt{schema.Assign("value", MustCompile("Fib(n=n1).value + Fib(n=n2).value"))},
		),
	})

	v, err := schema.Instantiate(reg, "Fib", config(value.Pair("n", value.Int(8))), diag.ConfigMeta{}, schema.Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(21), attrOf(t, v, "value").AsInt())
	assert.Equal(t, []string{"n1", "n2", "n", "value"}, v.AsInstance().Attrs.Keys())
}

func serverRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	check, err := Check("port > 0 and port < 65536", "port out of range", diag.Meta("schema.k", 5, 9))
	require.NoError(t, err)

	return schema.NewRegistry().MustRegister(
		&schema.Schema{
			Name: "Server",
			Attrs: []schema.Attr{
				{Name: "name", Type: "str"},
				{Name: "port", Type: "int", Default: MustCompile("80")},
			},
			Checks: []schema.Check{check},
		},
		&schema.Schema{
			Name: "App",
			Attrs: []schema.Attr{
				{Name: "web", Type: "Server", Default: MustCompile(`Server(name="web")`)},
				{Name: "db", Type: "Server", Default: MustCompile(`Server({"name": "db", "port": 5432})`)},
				{Name: "url", Type: "str", Default: MustCompile(`web.name + ":" + str(web.port)`)},
				{Name: "kind", Type: "str", Default: MustCompile("typeof(db)")},
			},
		},
	)
}

func TestEval_SchemaConstructors(t *testing.T) {
	v, err := schema.Instantiate(serverRegistry(t), "App", nil, diag.ConfigMeta{}, schema.Options{})
	require.NoError(t, err)

	web := attrOf(t, v, "web")
	assert.Equal(t, "web", attrOf(t, web, "name").AsStr())
	assert.Equal(t, int64(80), attrOf(t, web, "port").AsInt())
	assert.Equal(t, int64(5432), attrOf(t, attrOf(t, v, "db"), "port").AsInt())
	assert.Equal(t, "web:80", attrOf(t, v, "url").AsStr())
	assert.Equal(t, "Server", attrOf(t, v, "kind").AsStr())
}

func TestEval_CheckFailure(t *testing.T) {
	_, err := schema.Instantiate(serverRegistry(t), "Server",
		config(value.Pair("name", value.Str("x")), value.Pair("port", value.Int(70000))),
		diag.Meta("main.k", 1, 1), schema.Options{})

	e, ok := diag.As(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, diag.KindSchemaCheckFailure, e.Kind)
	assert.Equal(t, "port out of range", e.Message)
	assert.Equal(t, "port > 0 and port < 65536", e.Expr)
}

func TestEval_NestedErrorsKeepTheirKind(t *testing.T) {
	reg := schema.NewRegistry().MustRegister(
		&schema.Schema{Name: "Server", Attrs: []schema.Attr{{Name: "port", Type: "int"}}},
		&schema.Schema{Name: "App", Attrs: []schema.Attr{{Name: "web", Default: MustCompile(`Server(port="http")`)}}},
	)

	_, err := schema.Instantiate(reg, "App", nil, diag.ConfigMeta{}, schema.Options{})
	assert.True(t, diag.IsKind(err, diag.KindTypeMismatch), "got %v", err)
}

func TestEval_Cycle(t *testing.T) {
	reg := schema.NewRegistry().MustRegister(&schema.Schema{
		Name: "Loop",
		Attrs: []schema.Attr{
			{Name: "a", Default: MustCompile("b + 1")},
			{Name: "b", Default: MustCompile("a + 1")},
		},
	})

	_, err := schema.Instantiate(reg, "Loop", nil, diag.ConfigMeta{}, schema.Options{})
	require.Error(t, err)
	assert.True(t, diag.IsKind(err, diag.KindRecursiveAttributeError), "got %v", err)
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestEval_SelfIsLazy(t *testing.T) {
	reg := schema.NewRegistry().MustRegister(&schema.Schema{
		Name: "Lazy",
		Attrs: []schema.Attr{
			{Name: "a", Default: MustCompile("self.b if False else 1")},
			{Name: "b", Default: MustCompile("a + 1")},
		},
	})

	v, err := schema.Instantiate(reg, "Lazy", nil, diag.ConfigMeta{}, schema.Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), attrOf(t, v, "a").AsInt())
	assert.Equal(t, int64(2), attrOf(t, v, "b").AsInt())
}

func TestEval_UntakenBranchIsNotComputed(t *testing.T) {
	reg := schema.NewRegistry().MustRegister(&schema.Schema{
		Name: "Toggle",
		Attrs: []schema.Attr{
			{Name: "flag", Type: "bool", Default: MustCompile("True")},
			{Name: "a", Default: MustCompile("b if flag else 1")},
			{Name: "b", Default: MustCompile("2 if flag else a")},
		},
	})

	tests := []struct {
		name   string
		config *value.Literal
		a, b   int64
	}{
		{"flag set", nil, 2, 2},
		{"flag cleared", config(value.Pair("flag", value.Bool(false))), 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := schema.Instantiate(reg, "Toggle", tt.config, diag.ConfigMeta{}, schema.Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.a, attrOf(t, v, "a").AsInt())
			assert.Equal(t, tt.b, attrOf(t, v, "b").AsInt())
		})
	}
}

func TestEval_ScopedBindingsShadowAttributes(t *testing.T) {
	reg := schema.NewRegistry().MustRegister(&schema.Schema{
		Name: "Shadow",
		Attrs: []schema.Attr{
			{Name: "x", Default: MustCompile("7")},
			{Name: "ys", Default: MustCompile("[x for x in [1, 2]] + [x]")},
			{Name: "z", Default: MustCompile("(lambda x: x * 2)(3) + x")},
		},
	})

	v, err := schema.Instantiate(reg, "Shadow", nil, diag.ConfigMeta{}, schema.Options{})
	require.NoError(t, err)
	assert.True(t, value.Equal(value.ListOf(value.Int(1), value.Int(2), value.Int(7)), attrOf(t, v, "ys")),
		"got %s", attrOf(t, v, "ys"))
	assert.Equal(t, int64(13), attrOf(t, v, "z").AsInt())
}

func TestEval_IndexSignatureKeyIsBound(t *testing.T) {
	check, err := Check("len(key) <= 3", "", diag.ConfigMeta{})
	require.NoError(t, err)
	reg := schema.NewRegistry().MustRegister(&schema.Schema{
		Name:           "Short",
		IndexSignature: &schema.IndexSignature{KeyName: "key", KeyType: "str", ValueType: "int"},
		Checks:         []schema.Check{check},
	})

	_, err = schema.Instantiate(reg, "Short", config(value.Pair("abc", value.Int(1))), diag.ConfigMeta{}, schema.Options{})
	assert.NoError(t, err)

	_, err = schema.Instantiate(reg, "Short", config(value.Pair("abcd", value.Int(1))), diag.ConfigMeta{}, schema.Options{})
	assert.True(t, diag.IsKind(err, diag.KindSchemaCheckFailure), "got %v", err)
}

func TestEval_Failures(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		opts    schema.Options
		wantMsg string
	}{
		{"undefined name", "missing + 1", schema.Options{}, "undefined: missing"},
		{"runtime error", "1 // 0", schema.Options{}, "floored division by zero"},
		{"step budget", "len([i for i in range(100000)])", schema.Options{MaxSteps: 1000}, "too many steps"},
		{"unsupported result", "lambda: 1", schema.Options{}, "unsupported starlark type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := schema.NewRegistry().MustRegister(&schema.Schema{
				Name:  "S",
				Attrs: []schema.Attr{{Name: "x", Default: MustCompile(tt.src)}},
			})

			_, err := schema.Instantiate(reg, "S", nil, diag.ConfigMeta{}, tt.opts)
			e, ok := diag.As(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, diag.KindEvaluationFailure, e.Kind)
			assert.Contains(t, e.Error(), tt.wantMsg)
			assert.Equal(t, tt.src, e.Expr)
		})
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		in   value.Value
	}{
		{"none", value.None()},
		{"scalars", value.ListOf(value.Bool(true), value.Int(-3), value.Float(1.5), value.Str("x"))},
		{"nested", value.DictOf(
			value.Pair("b", value.ListOf(value.Int(1))),
			value.Pair("a", value.DictOf(value.Pair("k", value.Str("v")))),
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sv, err := toStarlark(tt.in)
			require.NoError(t, err)
			out, err := fromStarlark(sv)
			require.NoError(t, err)
			assert.True(t, value.Equal(tt.in, out), "got %s", out)
		})
	}

	out, err := fromStarlark(mustEval(t, "struct(b=2, a=[1])"))
	require.NoError(t, err)
	assert.Equal(t, value.KindDict, out.Kind())
	assert.ElementsMatch(t, []string{"a", "b"}, out.AsDict().Keys())

	_, err = fromStarlark(mustEval(t, "{1: 2}"))
	assert.ErrorContains(t, err, "dict keys must be strings")
}

func TestInstance_Attrs(t *testing.T) {
	inst := value.NewInstance("Server", diag.ConfigMeta{})
	require.NoError(t, inst.Attrs.Set("name", value.Str("web")))
	w := &Instance{inst: inst}

	got, err := w.Attr("name")
	require.NoError(t, err)
	assert.Equal(t, `"web"`, got.String())

	got, err = w.Attr("missing")
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, found, err := w.Get(starlark.String("name"))
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Server", w.Type())
	assert.Equal(t, []string{"name"}, w.AttrNames())

	_, err = w.Hash()
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	e, err := Parse("a + b", diag.ConfigMeta{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, e.Names())
}
