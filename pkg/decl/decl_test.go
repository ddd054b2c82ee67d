package decl

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/schema"
	"github.com/openfroyo/confeval/pkg/telemetry"
	"github.com/openfroyo/confeval/pkg/value"
)

func planJSON(t *testing.T, v value.Value) string {
	t.Helper()
	data, err := json.Marshal(value.Plan(v, value.PlanOptions{}))
	require.NoError(t, err)
	return string(data)
}

func evaluate(t *testing.T, p *Program, opts schema.Options) (*value.Dict, error) {
	t.Helper()
	return p.Evaluate(context.Background(), opts)
}

func TestLoadFile_Evaluate(t *testing.T) {
	p, err := LoadFile("testdata/app.yaml")
	require.NoError(t, err)

	out, err := evaluate(t, p, schema.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"frontend", "env", "fib"}, out.Keys())

	assert.Equal(t,
		`{"name":"frontend","port":443,"labels":{"app":"frontend"},"replicas":3,"tls":true,"scheme":"https"}`,
		planJSON(t, out.Lookup("frontend")))
	assert.Equal(t, `{"HOME":"/root","PATH":"/bin"}`, planJSON(t, out.Lookup("env")))
	assert.Equal(t, `{"n":8,"n1":7,"n2":6,"value":21}`, planJSON(t, out.Lookup("fib")))
}

func TestProgram_Schemas(t *testing.T) {
	p, err := LoadFile("testdata/app.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"mixin Labeled: 0 attrs, 1 check",
		"schema Server mixin [Labeled]: 3 attrs, 1 check",
		"schema Web(Server): 3 attrs, 0 checks",
		"schema Env: 0 attrs, 1 check, index signature",
		"schema Fib: 4 attrs, 0 checks",
	}, p.Schemas())
}

func TestProgram_ApplyOverlay(t *testing.T) {
	p, err := LoadFile("testdata/app.yaml")
	require.NoError(t, err)
	o, err := LoadCUE("testdata/overlay.cue")
	require.NoError(t, err)
	assert.Equal(t, []string{"Web"}, o.Constraints())
	require.NoError(t, p.Apply(o))

	out, err := evaluate(t, p, schema.Options{})
	require.NoError(t, err)
	assert.Equal(t,
		`{"name":"frontend","port":443,"labels":{"app":"frontend","tier":"web"},"replicas":5,"tls":true,"scheme":"https"}`,
		planJSON(t, out.Lookup("frontend")))
}

func TestProgram_OverlayConstraintFails(t *testing.T) {
	p, err := LoadFile("testdata/app.yaml")
	require.NoError(t, err)
	o, err := CompileCUE("limits.cue", []byte("frontend: replicas: 50\n#Web: {\n\treplicas: <=10\n\t...\n}\n"))
	require.NoError(t, err)
	require.NoError(t, p.Apply(o))

	_, err = evaluate(t, p, schema.Options{})
	e, ok := diag.As(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, diag.KindSchemaCheckFailure, e.Kind)
	assert.Equal(t, "Web", e.Schema)
	assert.Contains(t, e.Message, "constraint #Web failed")
	assert.Equal(t, "testdata/app.yaml", e.Meta.Filename)
}

// denyAll rejects every instance it sees.
type denyAll struct{}

func (denyAll) Constrain(context.Context, value.Value) diag.List {
	return diag.List{diag.New(diag.KindPolicyViolation, "policy deny-all: denied")}
}

func TestProgram_ConstraintFailureMarksEvaluationFailed(t *testing.T) {
	for _, mode := range []diag.Mode{diag.FailFast, diag.CollectAll} {
		t.Run(mode.String(), func(t *testing.T) {
			p, err := LoadFile("testdata/app.yaml")
			require.NoError(t, err)
			p.Constrain(denyAll{})

			metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "confeval"})
			require.NoError(t, err)
			tel := telemetry.NopTelemetry()
			tel.Metrics = metrics

			_, err = evaluate(t, p, schema.Options{Mode: mode, Telemetry: tel})
			assert.True(t, diag.IsKind(err, diag.KindPolicyViolation), "got %v", err)

			expected := `
# HELP confeval_evaluations_total Total number of evaluation contexts completed
# TYPE confeval_evaluations_total counter
confeval_evaluations_total{status="failure"} 1
`
			require.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "confeval_evaluations_total"))
		})
	}
}

func TestProgram_ApplyUnknownInstance(t *testing.T) {
	p, err := LoadFile("testdata/app.yaml")
	require.NoError(t, err)
	o, err := CompileCUE("extra.cue", []byte("backend: {port: 1}\n"))
	require.NoError(t, err)

	err = p.Apply(o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlay names unknown instance 'backend'")
	assert.Equal(t, "extra.cue", diagMeta(t, err).Filename)
}

func TestCompileCUE_Errors(t *testing.T) {
	_, err := CompileCUE("bad.cue", []byte("a: {"))
	assert.True(t, diag.IsKind(err, diag.KindEvaluationFailure), "got %v", err)

	_, err = CompileCUE("open.cue", []byte("frontend: replicas: int\n"))
	assert.ErrorContains(t, err, "overlay values must be concrete")

	_, err = CompileCUE("scalar.cue", []byte("frontend: 3\n"))
	assert.True(t, diag.IsKind(err, diag.KindTypeConflict), "got %v", err)
}

func diagMeta(t *testing.T, err error) diag.ConfigMeta {
	t.Helper()
	e, ok := diag.As(err)
	require.True(t, ok, "got %v", err)
	return e.Meta
}

const people = `schemas:
  - name: Person
    attrs:
      - name: age
        type: int
instances:
  - name: bob
    schema: Person
    config: {}
`

func TestLoad_Positions(t *testing.T) {
	p, err := Load("people.yaml", []byte(people))
	require.NoError(t, err)

	_, err = evaluate(t, p, schema.Options{})
	e, ok := diag.As(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, diag.KindRequiredAttributeMissing, e.Kind)
	assert.Equal(t, "age", e.Attr)
	assert.Equal(t, diag.Meta("people.yaml", 7, 5), e.Meta)
	assert.Equal(t, []diag.ConfigMeta{diag.Meta("people.yaml", 4, 9)}, e.Related)
}

const counters = `schemas:
  - name: Counter
    attrs:
      - name: tags
        type: "[str]"
        default: '["a"]'
      - name: count
        type: int
        default: "5"
      - name: items
        type: "[str]"
        default: '["p", "q"]'
    body:
      - target: items
        op: "="
        index: 0
        value: '"x"'
      - target: items
        op: "+="
        index: 1
        value: '"y"'
instances:
  - name: c
    schema: Counter
    config:
      tags: !add [b]
      count: !subtract 2
`

func TestLoad_OperatorTags(t *testing.T) {
	p, err := Load("counters.yaml", []byte(counters))
	require.NoError(t, err)

	lit := p.Instances[0].Config
	require.Len(t, lit.Entries, 2)
	assert.Equal(t, value.OpAdd, lit.Entries[0].Op)
	assert.Equal(t, value.OpSubtract, lit.Entries[1].Op)
	assert.Equal(t, diag.Meta("counters.yaml", 26, 7), lit.Entries[0].Meta)

	out, err := evaluate(t, p, schema.Options{})
	require.NoError(t, err)
	assert.Equal(t, `{"tags":["a","b"],"count":3,"items":["x","y","q"]}`, planJSON(t, out.Lookup("c")))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "missing schema name",
			src:     "schemas:\n  - attrs: []\n",
			wantErr: "invalid schema",
		},
		{
			name:    "unknown operator",
			src:     "schemas:\n  - name: S\n    body:\n      - target: a\n        op: '*='\n        value: '1'\n",
			wantErr: "invalid schema",
		},
		{
			name:    "unknown field",
			src:     "schemas:\n  - name: S\nextra: 1\n",
			wantErr: "failed to parse declarations",
		},
		{
			name:    "instance without schema",
			src:     "instances:\n  - name: a\n",
			wantErr: "invalid instance",
		},
		{
			name:    "unknown tag",
			src:     "schemas:\n  - name: S\ninstances:\n  - name: a\n    schema: S\n    config:\n      x: !weird 1\n",
			wantErr: "unknown operator tag !weird",
		},
		{
			name:    "nested tag",
			src:     "schemas:\n  - name: S\ninstances:\n  - name: a\n    schema: S\n    config:\n      x:\n        y: !override 1\n",
			wantErr: "only allowed on top-level config keys",
		},
		{
			name:    "config not a mapping",
			src:     "schemas:\n  - name: S\ninstances:\n  - name: a\n    schema: S\n    config: [1]\n",
			wantErr: "instance config must be a mapping",
		},
		{
			name:    "index on union",
			src:     "schemas:\n  - name: S\n    body:\n      - target: a\n        index: 0\n        value: '1'\n",
			wantErr: "operator : does not take an index",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("bad.yaml", []byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompile_CollectsEveryDeclarationError(t *testing.T) {
	src := `schemas:
  - name: S
    attrs:
      - name: a
        default: "1 +"
    checks:
      - expr: "("
  - name: S
instances:
  - name: x
    schema: S
  - name: x
    schema: S
`
	_, err := Load("multi.yaml", []byte(src))
	require.Error(t, err)

	var list diag.List
	require.ErrorAs(t, err, &list)
	assert.Equal(t, []diag.Kind{
		diag.KindEvaluationFailure,
		diag.KindEvaluationFailure,
		diag.KindNamingConflict,
	}, list.Kinds())
	assert.Equal(t, diag.Meta("multi.yaml", 4, 9), list[0].Meta)
	assert.Equal(t, "S", list[0].Schema)
	assert.Equal(t, diag.Meta("multi.yaml", 12, 5), list[2].Meta)
	assert.Equal(t, []diag.ConfigMeta{diag.Meta("multi.yaml", 10, 5)}, list[2].Related)
}

func TestProgram_CollectAll(t *testing.T) {
	src := `schemas:
  - name: Person
    attrs:
      - name: name
        type: str
      - name: age
        type: int
    checks:
      - expr: age >= 0
instances:
  - name: a
    schema: Person
    config:
      name: a
      age: -1
  - name: b
    schema: Person
    config:
      age: 3
  - name: c
    schema: Person
    config:
      name: c
      age: 30
`
	p, err := Load("people.yaml", []byte(src))
	require.NoError(t, err)

	out, err := evaluate(t, p, schema.Options{Mode: diag.CollectAll})
	require.Error(t, err)
	var list diag.List
	require.ErrorAs(t, err, &list)
	assert.Equal(t, []diag.Kind{diag.KindSchemaCheckFailure, diag.KindRequiredAttributeMissing}, list.Kinds())
	assert.Equal(t, []string{"a", "b", "c"}, out.Keys())

	assert.Equal(t, err.Error(), p.Validate(context.Background(), schema.Options{}).Error())
}
