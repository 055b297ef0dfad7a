package workflow

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mapping builds a YAML mapping whose keys keep insertion order, so
// generated files are stable across runs.
type Mapping struct {
	node *yaml.Node
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{node: &yaml.Node{Kind: yaml.MappingNode}}
}

// Set appends key with value. Supported values are string, bool, int,
// []string, *Mapping, []*Mapping and *yaml.Node. Empty strings, empty slices
// and empty mappings are skipped.
func (m *Mapping) Set(key string, value any) *Mapping {
	v := toNode(value)
	if v == nil {
		return m
	}
	m.node.Content = append(m.node.Content, scalar(key), v)
	return m
}

// Len returns the number of keys.
func (m *Mapping) Len() int {
	return len(m.node.Content) / 2
}

// Node returns the underlying node.
func (m *Mapping) Node() *yaml.Node {
	return m.node
}

// Flow renders the mapping inline.
func (m *Mapping) Flow() *Mapping {
	m.node.Style = yaml.FlowStyle
	return m
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func toNode(value any) *yaml.Node {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		n := scalar(v)
		if strings.Contains(v, "\n") {
			n.Style = yaml.LiteralStyle
		}
		return n
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
	case int:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
	case []string:
		if len(v) == 0 {
			return nil
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, s := range v {
			seq.Content = append(seq.Content, scalar(s))
		}
		return seq
	case *Mapping:
		if v == nil || v.Len() == 0 {
			return nil
		}
		return v.node
	case []*Mapping:
		if len(v) == 0 {
			return nil
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, item := range v {
			seq.Content = append(seq.Content, item.node)
		}
		return seq
	case *yaml.Node:
		return v
	default:
		panic(fmt.Sprintf("workflow: unsupported YAML value %T", value))
	}
}

// Marshal encodes m with two-space indentation and a leading comment.
func Marshal(comment string, m *Mapping) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.DocumentNode, HeadComment: comment, Content: []*yaml.Node{m.node}}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode workflow: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode workflow: %w", err)
	}
	return buf.Bytes(), nil
}
