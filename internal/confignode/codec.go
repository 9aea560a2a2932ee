package confignode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseJSON decodes a JSON document keeping object key order.
func ParseJSON(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	n, err := decodeJSON(dec)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("parse json: trailing data after document")
	}
	return n, nil
}

func decodeJSON(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key %v is not a string", keyTok)
				}
				child, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				m.Set(key, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		case '[':
			l := NewList()
			for dec.More() {
				child, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				l.Append(child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return l, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		return NewScalar(parseNumber(string(t))), nil
	default:
		return NewScalar(t), nil
	}
}

func parseNumber(s string) any {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return f
}

// MarshalJSON writes the tree with mapping keys in insertion order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON lets a Node sit inside structs decoded with encoding/json.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}
	switch n.kind {
	case KindMap:
		buf.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := n.vals[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindList:
		buf.WriteByte('[')
		for i, it := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(n.value)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// Decode fills a Go value from the tree through its JSON form.
func (n *Node) Decode(v any) error {
	data, err := n.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ParseYAML decodes a YAML document keeping mapping key order.
func ParseYAML(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc.Kind == 0 {
		return NewMap(), nil
	}
	n, err := fromYAML(&doc)
	if err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return n, nil
}

func fromYAML(y *yaml.Node) (*Node, error) {
	switch y.Kind {
	case yaml.DocumentNode:
		if len(y.Content) == 0 {
			return NewMap(), nil
		}
		return fromYAML(y.Content[0])
	case yaml.AliasNode:
		return fromYAML(y.Alias)
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(y.Content); i += 2 {
			child, err := fromYAML(y.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.Set(y.Content[i].Value, child)
		}
		return m, nil
	case yaml.SequenceNode:
		l := NewList()
		for _, c := range y.Content {
			child, err := fromYAML(c)
			if err != nil {
				return nil, err
			}
			l.Append(child)
		}
		return l, nil
	case yaml.ScalarNode:
		if y.ShortTag() == "!!timestamp" {
			return NewString(y.Value), nil
		}
		var v any
		if err := y.Decode(&v); err != nil {
			return nil, err
		}
		return NewScalar(v), nil
	default:
		return nil, fmt.Errorf("unsupported yaml node kind %d at line %d", y.Kind, y.Line)
	}
}
