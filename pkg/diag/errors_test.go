package diag

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind and message",
			err:  New(KindNamingConflict, "duplicate schema 'A'"),
			want: "NamingConflict: duplicate schema 'A'",
		},
		{
			name: "schema and attribute",
			err: Newf(KindRequiredAttributeMissing, "attribute '%s' is required", "age").
				WithSchema("Person").WithAttr("age").WithMeta(Meta("main.k", 3, 5)),
			want: "main.k:3:5: RequiredAttributeMissing (schema=Person, attr=age): attribute 'age' is required",
		},
		{
			name: "wrapped",
			err:  Wrap(KindEvaluationFailure, errors.New("division by zero"), "evaluating 'x'"),
			want: "EvaluationFailure: evaluating 'x': division by zero",
		},
		{
			name: "check expression",
			err: New(KindSchemaCheckFailure, "Instance check failed").
				WithSchema("Person").WithExpr("age > 10").WithMeta(Meta("main.k", 4, 9)),
			want: "main.k:4:9: SchemaCheckFailure (schema=Person): Instance check failed: `age > 10`",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_BuildersKeepFirstValue(t *testing.T) {
	e := New(KindTypeMismatch, "bad").
		WithSchema("Inner").WithSchema("Outer").
		WithAttr("a").WithAttr("b").
		WithMeta(Meta("x.k", 1, 1)).WithMeta(Meta("y.k", 2, 2))

	assert.Equal(t, "Inner", e.Schema)
	assert.Equal(t, "a", e.Attr)
	assert.Equal(t, "x.k", e.Meta.Filename)
}

func TestIsKind(t *testing.T) {
	base := New(KindSchemaCheckFailure, "check failed")
	wrapped := fmt.Errorf("instance alice: %w", base)

	assert.True(t, IsKind(wrapped, KindSchemaCheckFailure))
	assert.False(t, IsKind(wrapped, KindTypeConflict))
	assert.True(t, errors.Is(wrapped, ErrSchemaCheckFailure))

	list := List{New(KindTypeConflict, "a"), New(KindRequiredAttributeMissing, "b")}
	assert.True(t, IsKind(list, KindRequiredAttributeMissing))
	assert.False(t, IsKind(list, KindNamingConflict))
	assert.False(t, IsKind(errors.New("plain"), KindTypeConflict))
}

func TestCollector_Modes(t *testing.T) {
	t.Run("fail fast stops on first error", func(t *testing.T) {
		c := NewCollector(FailFast)
		err := c.Report(New(KindTypeConflict, "x"))
		require.Error(t, err)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("collect all continues", func(t *testing.T) {
		c := NewCollector(CollectAll)
		assert.NoError(t, c.Report(New(KindTypeConflict, "x")))
		assert.NoError(t, c.Report(New(KindRequiredAttributeMissing, "y")))
		assert.Equal(t, []Kind{KindTypeConflict, KindRequiredAttributeMissing}, c.Errors().Kinds())
		assert.Error(t, c.Err())
	})

	t.Run("recursion limit is fatal in collect all", func(t *testing.T) {
		c := NewCollector(CollectAll)
		assert.Error(t, c.Report(New(KindRecursionLimitExceeded, "too deep")))
	})

	t.Run("same error reported twice is recorded once", func(t *testing.T) {
		c := NewCollector(CollectAll)
		e := New(KindTypeConflict, "x")
		_ = c.Report(e)
		_ = c.Report(fmt.Errorf("outer: %w", e))
		assert.Equal(t, 1, c.Len())
	})

	t.Run("plain errors are classified", func(t *testing.T) {
		c := NewCollector(CollectAll)
		_ = c.Report(errors.New("boom"))
		require.Equal(t, 1, c.Len())
		assert.Equal(t, KindEvaluationFailure, c.Errors()[0].Kind)
	})
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("collect-all")
	require.NoError(t, err)
	assert.Equal(t, CollectAll, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, FailFast, m)

	_, err = ParseMode("sometimes")
	assert.Error(t, err)
}

func TestError_Caret(t *testing.T) {
	src := "schema Person:\n    age: int\n    check:\n        age > 10\n"
	e := New(KindSchemaCheckFailure, "check 'age > 10' failed").
		WithSchema("Person").WithMeta(Meta("person.k", 4, 9))

	out := e.Caret(src)
	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Equal(t, "error[SchemaCheckFailure]: schema Person: check 'age > 10' failed", lines[0])
	assert.Equal(t, " --> person.k:4:9", lines[1])
	assert.Equal(t, "4 |         age > 10", lines[3])
	assert.Equal(t, "  |         ^", lines[4])
}

func TestError_CaretWithoutSource(t *testing.T) {
	e := New(KindNamingConflict, "duplicate").WithMeta(Meta("a.k", 10, 1))
	out := e.Caret("")
	assert.Equal(t, "error[NamingConflict]: duplicate\n --> a.k:10:1\n", out)
}

func TestError_CaretNamesExpression(t *testing.T) {
	e := New(KindSchemaCheckFailure, "Instance check failed").WithSchema("Person").WithExpr("age > 10")
	assert.Equal(t, "error[SchemaCheckFailure]: schema Person: Instance check failed: `age > 10`\n", e.Caret(""))
}

func TestError_CaretMultibyteColumn(t *testing.T) {
	src := "name: \"żółw\" + 1\n"
	e := New(KindTypeMismatch, "bad").WithMeta(Meta("a.k", 1, 13))

	lines := strings.Split(e.Caret(src), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Equal(t, "1 | name: \"żółw\" + 1", lines[3])
	assert.Equal(t, "  |             ^", lines[4])
}

func TestError_CaretRelatedNotes(t *testing.T) {
	src := "a: 1\n"
	declared := Meta("schema.k", 7, 5)
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"conflict", New(KindTypeConflict, "x"), "conflicting value defined at schema.k:7:5"},
		{"required", New(KindRequiredAttributeMissing, "x"), "attribute declared at schema.k:7:5"},
		{"index signature", New(KindIndexSignatureViolation, "x"), "index signature declared at schema.k:7:5"},
		{"naming", New(KindNamingConflict, "x"), "previously declared at schema.k:7:5"},
		{"instance check", New(KindSchemaCheckFailure, "x").WithExpr("a > 1"), "instance defined at schema.k:7:5"},
		{"constraint", New(KindSchemaCheckFailure, "x"), "constraint declared at schema.k:7:5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.err.WithMeta(Meta("a.k", 1, 1)).WithRelated(declared).Caret(src)
			assert.Contains(t, out, "  = note: "+tt.want+"\n")
		})
	}
}
