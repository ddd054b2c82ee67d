package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openfroyo/confeval/pkg/value"
)

type typeKind uint8

const (
	typeAny typeKind = iota
	typeBool
	typeInt
	typeFloat
	typeStr
	typeNone
	typeList
	typeDict
	typeSchema
	typeUnion
	typeLiteral
)

// Type is a parsed attribute type expression.
type Type struct {
	kind typeKind
	name string
	key  *Type
	elem *Type
	alts []*Type
	lit  value.Value
	text string
}

// ParseType parses a type expression. The grammar covers any, bool, int,
// float, str, None, [T], {K:V}, schema names, unions A|B and literal types
// such as "blue", 8080 or True. An empty string is any.
func ParseType(s string) (*Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return &Type{kind: typeAny, text: "any"}, nil
	}
	alts, err := splitTop(s, '|')
	if err != nil {
		return nil, err
	}
	if len(alts) > 1 {
		t := &Type{kind: typeUnion, text: s}
		for _, a := range alts {
			at, err := ParseType(a)
			if err != nil {
				return nil, err
			}
			t.alts = append(t.alts, at)
		}
		return t, nil
	}
	return parseSingle(s)
}

func parseSingle(s string) (*Type, error) {
	switch s {
	case "any":
		return &Type{kind: typeAny, text: s}, nil
	case "bool":
		return &Type{kind: typeBool, text: s}, nil
	case "int":
		return &Type{kind: typeInt, text: s}, nil
	case "float":
		return &Type{kind: typeFloat, text: s}, nil
	case "str":
		return &Type{kind: typeStr, text: s}, nil
	case "None":
		return &Type{kind: typeNone, text: s}, nil
	case "True", "False":
		return &Type{kind: typeLiteral, lit: value.Bool(s == "True"), text: s}, nil
	case "[]", "list":
		return &Type{kind: typeList, elem: &Type{kind: typeAny, text: "any"}, text: s}, nil
	case "{}", "dict":
		return &Type{kind: typeDict, key: &Type{kind: typeStr, text: "str"}, elem: &Type{kind: typeAny, text: "any"}, text: s}, nil
	}

	switch {
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		elem, err := ParseType(s[1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		return &Type{kind: typeList, elem: elem, text: s}, nil

	case strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}"):
		parts, err := splitTop(s[1:len(s)-1], ':')
		if err != nil {
			return nil, err
		}
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid dict type %q", s)
		}
		key, err := ParseType(parts[0])
		if err != nil {
			return nil, err
		}
		elem, err := ParseType(parts[1])
		if err != nil {
			return nil, err
		}
		return &Type{kind: typeDict, key: key, elem: elem, text: s}, nil

	case strings.HasPrefix(s, `"`) || strings.HasPrefix(s, `'`):
		lit, err := unquote(s)
		if err != nil {
			return nil, fmt.Errorf("invalid literal type %s: %w", s, err)
		}
		return &Type{kind: typeLiteral, lit: value.Str(lit), text: s}, nil
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &Type{kind: typeLiteral, lit: value.Int(i), text: s}, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return &Type{kind: typeLiteral, lit: value.Float(f), text: s}, nil
	}
	if !isIdent(s) {
		return nil, fmt.Errorf("invalid type expression %q", s)
	}
	return &Type{kind: typeSchema, name: s, text: s}, nil
}

// String returns the type expression text.
func (t *Type) String() string { return t.text }

// IsAny reports whether the type accepts every value.
func (t *Type) IsAny() bool { return t.kind == typeAny }

// SchemaName returns the schema name for a schema type, or "".
func (t *Type) SchemaName() string {
	if t.kind == typeSchema {
		return t.name
	}
	return ""
}

// Match reports whether v conforms to t without conversion. None and
// Undefined conform to every type; optionality is checked separately.
// isA reports whether an instance of schema inst satisfies schema target.
func (t *Type) Match(v value.Value, isA func(inst, target string) bool) bool {
	if v.IsNoneOrUndefined() {
		return true
	}
	switch t.kind {
	case typeAny:
		return true
	case typeBool:
		return v.Kind() == value.KindBool
	case typeInt:
		return v.Kind() == value.KindInt
	case typeFloat:
		return v.IsNumber()
	case typeStr:
		return v.Kind() == value.KindStr
	case typeNone:
		return false
	case typeLiteral:
		return value.Equal(t.lit, v) && sameLiteralKind(t.lit, v)
	case typeList:
		if v.Kind() != value.KindList {
			return false
		}
		for _, item := range v.AsList().Items() {
			if !t.elem.Match(item, isA) {
				return false
			}
		}
		return true
	case typeDict:
		if v.Kind() != value.KindDict {
			return false
		}
		ok := true
		v.AsDict().Range(func(key string, item value.Value) bool {
			ok = t.key.Match(value.Str(key), isA) && t.elem.Match(item, isA)
			return ok
		})
		return ok
	case typeSchema:
		return v.Kind() == value.KindSchema && isA(v.TypeName(), t.name)
	case typeUnion:
		for _, alt := range t.alts {
			if alt.Match(v, isA) {
				return true
			}
		}
		return false
	}
	return false
}

func sameLiteralKind(lit, v value.Value) bool {
	if lit.IsNumber() {
		return v.IsNumber()
	}
	return lit.Kind() == v.Kind()
}

// splitTop splits s on sep outside brackets and quotes.
func splitTop(s string, sep byte) ([]string, error) {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '{' || c == '(':
			depth++
		case c == ']' || c == '}' || c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced brackets in type %q", s)
			}
		case c == sep && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if depth != 0 || quote != 0 {
		return nil, fmt.Errorf("unbalanced type expression %q", s)
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("empty component in type %q", s)
		}
	}
	return parts, nil
}

func unquote(s string) (string, error) {
	if strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 2 {
		s = `"` + strings.ReplaceAll(s[1:len(s)-1], `"`, `\"`) + `"`
	}
	return strconv.Unquote(s)
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_' || r == '.' && i > 0:
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}
