package decl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/value"
)

var declValidator = validator.New()

// Operator tags accepted on instance config keys.
const (
	tagOverride = "!override"
	tagAdd      = "!add"
	tagSubtract = "!subtract"
	tagUnion    = "!union"
)

// LoadFile reads and compiles a YAML declaration file.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read declarations: %w", err)
	}
	return Load(path, data)
}

// Load decodes a YAML declaration file and compiles it into a Program.
func Load(filename string, data []byte) (*Program, error) {
	f, err := Decode(filename, data)
	if err != nil {
		return nil, err
	}
	return Compile(f)
}

// Decode parses and validates a YAML declaration file without compiling
// expressions.
func Decode(filename string, data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: failed to parse declarations: %w", filename, err)
	}
	f.locate(filename)

	for i := range f.Schemas {
		s := &f.Schemas[i]
		if err := declValidator.Struct(s); err != nil {
			return nil, fmt.Errorf("%s: invalid schema %q: %w", s.Meta, s.Name, err)
		}
	}
	for i := range f.Instances {
		inst := &f.Instances[i]
		if err := declValidator.Struct(inst); err != nil {
			return nil, fmt.Errorf("%s: invalid instance %q: %w", inst.Meta, inst.Name, err)
		}
	}
	return &f, nil
}

// literal converts an instance config mapping into a config literal. Each
// top-level key becomes one entry located at the key.
func literal(filename string, n *yaml.Node, meta diag.ConfigMeta) (*value.Literal, error) {
	lit := value.NewLiteral(meta)
	if n.Kind == 0 {
		return lit, nil
	}
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind != yaml.MappingNode {
		return nil, diag.Newf(diag.KindTypeConflict, "instance config must be a mapping, got %s", kindName(n)).
			WithMeta(locate(filename, n))
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		op, err := opOf(val)
		if err != nil {
			return nil, diag.Wrap(diag.KindTypeConflict, err, "invalid operator tag").WithMeta(locate(filename, val))
		}
		v, err := fromNode(filename, val)
		if err != nil {
			return nil, err
		}
		lit.Entries = append(lit.Entries, value.Entry{
			Key:   key.Value,
			Value: v,
			Op:    op,
			Meta:  locate(filename, key),
		})
	}
	return lit, nil
}

func opOf(n *yaml.Node) (value.Op, error) {
	switch n.Tag {
	case tagOverride:
		return value.OpOverride, nil
	case tagAdd:
		return value.OpAdd, nil
	case tagSubtract:
		return value.OpSubtract, nil
	case tagUnion:
		return value.OpUnion, nil
	}
	if isOperatorTag(n.Tag) {
		return value.Op{}, fmt.Errorf("unknown operator tag %s", n.Tag)
	}
	return value.OpUnion, nil
}

// isOperatorTag reports whether tag is a local tag rather than a YAML core
// schema tag.
func isOperatorTag(tag string) bool {
	return len(tag) > 1 && tag[0] == '!' && tag[1] != '!'
}

// fromNode converts a YAML node into a value located at the node.
func fromNode(filename string, n *yaml.Node) (value.Value, error) {
	meta := locate(filename, n)
	switch n.Kind {
	case yaml.AliasNode:
		return fromNode(filename, n.Alias)
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return value.None().WithMeta(meta), nil
		}
		return fromNode(filename, n.Content[0])
	case yaml.SequenceNode:
		items := make([]value.Value, len(n.Content))
		for i, c := range n.Content {
			if err := nestedTag(filename, c); err != nil {
				return value.Undefined(), err
			}
			item, err := fromNode(filename, c)
			if err != nil {
				return value.Undefined(), err
			}
			items[i] = item
		}
		return value.ListOf(items...).WithMeta(meta), nil
	case yaml.MappingNode:
		d := value.NewDict()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if err := nestedTag(filename, val); err != nil {
				return value.Undefined(), err
			}
			v, err := fromNode(filename, val)
			if err != nil {
				return value.Undefined(), err
			}
			if err := d.Set(key.Value, v); err != nil {
				return value.Undefined(), err
			}
		}
		return value.FromDict(d).WithMeta(meta), nil
	case yaml.ScalarNode:
		plain := *n
		if isOperatorTag(plain.Tag) {
			plain.Tag = ""
		}
		var x interface{}
		if err := plain.Decode(&x); err != nil {
			return value.Undefined(), diag.Wrap(diag.KindTypeConflict, err, "invalid scalar").WithMeta(meta)
		}
		v, err := fromGo(x)
		if err != nil {
			return value.Undefined(), diag.Wrap(diag.KindTypeConflict, err, "invalid scalar").WithMeta(meta)
		}
		return v.WithMeta(meta), nil
	default:
		return value.Undefined(), diag.Newf(diag.KindTypeConflict, "unsupported YAML node %s", kindName(n)).WithMeta(meta)
	}
}

func nestedTag(filename string, n *yaml.Node) error {
	if isOperatorTag(n.Tag) {
		return diag.Newf(diag.KindTypeConflict, "operator tag %s is only allowed on top-level config keys", n.Tag).
			WithMeta(locate(filename, n))
	}
	return nil
}

// fromGo converts a decoded YAML scalar.
func fromGo(x interface{}) (value.Value, error) {
	switch v := x.(type) {
	case nil:
		return value.None(), nil
	case bool:
		return value.Bool(v), nil
	case int:
		return value.Int(int64(v)), nil
	case int64:
		return value.Int(v), nil
	case uint64:
		return value.Undefined(), fmt.Errorf("integer %d out of range", v)
	case float64:
		return value.Float(v), nil
	case string:
		return value.Str(v), nil
	default:
		return value.Undefined(), fmt.Errorf("unsupported scalar type %T", x)
	}
}

func locate(filename string, n *yaml.Node) diag.ConfigMeta {
	return diag.Meta(filename, n.Line, n.Column)
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return fmt.Sprintf("node kind %d", n.Kind)
	}
}
