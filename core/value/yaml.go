package value

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/orirocks/orirocks/core/diag"
)

// DecodeYAML converts an untagged YAML node into a Value. Scalars map by
// their resolved tag; sequences become arrays; mappings become dicts with
// string keys. Malformed nodes yield a structural error at loc, with a crumb
// pushed for the offending child.
func DecodeYAML(node *yaml.Node, loc *diag.YamlLocation) (Value, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	switch node.Kind {
	case yaml.ScalarNode:
		return decodeScalar(node, loc)
	case yaml.SequenceNode:
		elems := make([]Value, 0, len(node.Content))
		for i, child := range node.Content {
			loc.Push(fmt.Sprintf("[%d]", i))
			v, err := DecodeYAML(child, loc)
			if err != nil {
				return Value{}, err
			}
			loc.Pop()
			elems = append(elems, v)
		}
		return Value{Kind: KindArray, Arr: elems}, nil
	case yaml.MappingNode:
		m := make(map[string]Value, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valNode := node.Content[i], node.Content[i+1]
			var key string
			if err := keyNode.Decode(&key); err != nil {
				return Value{}, &diag.GenericInvalidError{Location: loc.Clone()}
			}
			loc.Push(key)
			v, err := DecodeYAML(valNode, loc)
			if err != nil {
				return Value{}, err
			}
			loc.Pop()
			m[key] = v
		}
		return Value{Kind: KindDict, Map: m}, nil
	default:
		return Value{}, &diag.GenericInvalidError{Location: loc.Clone()}
	}
}

func decodeScalar(node *yaml.Node, loc *diag.YamlLocation) (Value, error) {
	switch node.Tag {
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return Value{}, &diag.GenericInvalidError{Location: loc.Clone()}
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := node.Decode(&i); err != nil {
			return Value{}, &diag.GenericInvalidError{Location: loc.Clone()}
		}
		return Int(i), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return Value{}, &diag.GenericInvalidError{Location: loc.Clone()}
		}
		return Float(f), nil
	case "!!str", "!!timestamp":
		return String(node.Value), nil
	default:
		return Value{}, &diag.GenericInvalidError{Location: loc.Clone()}
	}
}

// EncodeYAML converts a Value back into its untagged YAML form. Dict keys are
// emitted sorted so round-tripping is deterministic.
func (v Value) EncodeYAML() *yaml.Node {
	n := &yaml.Node{}
	switch v.Kind {
	case KindBool:
		n.SetString(fmt.Sprintf("%t", v.Bool))
		n.Tag = "!!bool"
	case KindInt:
		n.SetString(fmt.Sprintf("%d", v.Int))
		n.Tag = "!!int"
	case KindFloat:
		_ = n.Encode(float64(v.Float))
	case KindString:
		n.SetString(v.Str)
	case KindArray:
		n.Kind = yaml.SequenceNode
		n.Tag = "!!seq"
		for _, e := range v.Arr {
			n.Content = append(n.Content, e.EncodeYAML())
		}
	case KindDict:
		n.Kind = yaml.MappingNode
		n.Tag = "!!map"
		for _, k := range v.sortedKeys() {
			key := &yaml.Node{}
			key.SetString(k)
			n.Content = append(n.Content, key, v.Map[k].EncodeYAML())
		}
	}
	return n
}

// DecodeYAMLType parses a ValueType from its YAML form: either a bare token
// from {integer, float, string, bool}, or a single-key mapping
// `array:`/`dict:` whose child carries an `inner` type. A bare `array` or
// `dict` token is rejected.
func DecodeYAMLType(node *yaml.Node, loc *diag.YamlLocation) (Type, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	switch node.Kind {
	case yaml.ScalarNode:
		kind, ok := typeTokens[node.Value]
		if !ok || kind == TypeArray || kind == TypeDict {
			return Type{}, &diag.GenericInvalidError{Location: loc.Clone()}
		}
		return Type{Kind: kind}, nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return Type{}, &diag.GenericInvalidError{Location: loc.Clone()}
		}
		tok := node.Content[0].Value
		kind, ok := typeTokens[tok]
		if !ok || (kind != TypeArray && kind != TypeDict) {
			return Type{}, &diag.GenericInvalidError{Location: loc.Clone()}
		}
		child := node.Content[1]
		if child.Kind != yaml.MappingNode || len(child.Content) != 2 || child.Content[0].Value != "inner" {
			return Type{}, &diag.GenericInvalidError{Location: loc.Clone()}
		}
		loc.Push(tok)
		inner, err := DecodeYAMLType(child.Content[1], loc)
		if err != nil {
			return Type{}, err
		}
		loc.Pop()
		return Type{Kind: kind, Inner: &inner}, nil
	default:
		return Type{}, &diag.GenericInvalidError{Location: loc.Clone()}
	}
}
