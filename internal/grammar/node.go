package grammar

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/KromDaniel/annfsa/feature"
	"github.com/KromDaniel/annfsa/pkg/annfsa"
)

// NodeSpec is an undecoded pattern node. It is resolved against a feature
// system by Build.
//
// A node is one of:
//
//	"^" or "$"                     edge anchors
//	[n1, n2, ...]                  sequence
//	seq: [...] / alt: [...]        sequence, alternation
//	star / plus / opt: n           greedy repetition
//	repeat: {min, max, lazy, node} bounded repetition; no max is unbounded
//	group: {name, node}            capture
//	match: {feature: values}       constraint
//	anchor: left | right           edge anchor
//	expr: {name, nodes: [...]}     expression
type NodeSpec struct {
	node yaml.Node
}

// UnmarshalYAML keeps the raw node.
func (s *NodeSpec) UnmarshalYAML(n *yaml.Node) error {
	s.node = *n
	return nil
}

// Build resolves the node.
func (s *NodeSpec) Build(sys *feature.System) (annfsa.Node, error) {
	if s.node.Kind == 0 {
		return nil, invalid(&s.node, "missing pattern root")
	}
	b := builder{sys: sys}
	return b.node(&s.node)
}

type builder struct {
	sys *feature.System
}

type repeatSpec struct {
	Min  int       `yaml:"min"`
	Max  *int      `yaml:"max"`
	Lazy bool      `yaml:"lazy"`
	Node yaml.Node `yaml:"node"`
}

type groupSpec struct {
	Name string    `yaml:"name"`
	Node yaml.Node `yaml:"node"`
}

type exprSpec struct {
	Name  string      `yaml:"name"`
	Nodes []yaml.Node `yaml:"nodes"`
}

func (b *builder) node(n *yaml.Node) (annfsa.Node, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.Value {
		case "^":
			return &annfsa.Anchor{Side: annfsa.Left}, nil
		case "$":
			return &annfsa.Anchor{Side: annfsa.Right}, nil
		}
		return nil, invalid(n, "unknown node %q", n.Value)
	case yaml.SequenceNode:
		children, err := b.nodes(n.Content)
		if err != nil {
			return nil, err
		}
		return &annfsa.Sequence{Children: children}, nil
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return nil, invalid(n, "a node has exactly one key")
		}
		return b.keyed(n.Content[0].Value, n.Content[1])
	}
	return nil, invalid(n, "unexpected node")
}

func (b *builder) nodes(ns []*yaml.Node) ([]annfsa.Node, error) {
	out := make([]annfsa.Node, len(ns))
	for i, n := range ns {
		var err error
		if out[i], err = b.node(n); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *builder) list(v *yaml.Node) ([]annfsa.Node, error) {
	if v.Kind != yaml.SequenceNode {
		return nil, invalid(v, "expected a list of nodes")
	}
	return b.nodes(v.Content)
}

func (b *builder) keyed(key string, v *yaml.Node) (annfsa.Node, error) {
	switch key {
	case "seq":
		children, err := b.list(v)
		if err != nil {
			return nil, err
		}
		return &annfsa.Sequence{Children: children}, nil
	case "alt":
		children, err := b.list(v)
		if err != nil {
			return nil, err
		}
		return &annfsa.Alternation{Children: children}, nil
	case "star", "plus", "opt":
		child, err := b.node(v)
		if err != nil {
			return nil, err
		}
		q := &annfsa.Quantifier{Min: 0, Max: annfsa.Infinite, Greedy: true, Child: child}
		switch key {
		case "plus":
			q.Min = 1
		case "opt":
			q.Max = 1
		}
		return q, nil
	case "repeat":
		var spec repeatSpec
		if err := v.Decode(&spec); err != nil {
			return nil, err
		}
		child, err := b.node(&spec.Node)
		if err != nil {
			return nil, err
		}
		max := annfsa.Infinite
		if spec.Max != nil {
			max = *spec.Max
		}
		return &annfsa.Quantifier{Min: spec.Min, Max: max, Greedy: !spec.Lazy, Child: child}, nil
	case "group":
		var spec groupSpec
		if err := v.Decode(&spec); err != nil {
			return nil, err
		}
		child, err := b.node(&spec.Node)
		if err != nil {
			return nil, err
		}
		return &annfsa.Group{Name: spec.Name, Child: child}, nil
	case "anchor":
		switch strings.ToLower(v.Value) {
		case "left":
			return &annfsa.Anchor{Side: annfsa.Left}, nil
		case "right":
			return &annfsa.Anchor{Side: annfsa.Right}, nil
		}
		return nil, invalid(v, "anchor side must be left or right")
	case "match":
		return b.match(v)
	case "expr":
		var spec exprSpec
		if err := v.Decode(&spec); err != nil {
			return nil, err
		}
		e := &annfsa.Expression{Name: spec.Name}
		for i := range spec.Nodes {
			child, err := b.node(&spec.Nodes[i])
			if err != nil {
				return nil, err
			}
			e.Children = append(e.Children, child)
		}
		return e, nil
	}
	return nil, invalid(v, "unknown node kind %q", key)
}

// match builds a constraint. "$x" binds variable x, "!sym" excludes sym.
func (b *builder) match(v *yaml.Node) (annfsa.Node, error) {
	if v.Kind != yaml.MappingNode {
		return nil, invalid(v, "match must be a mapping")
	}
	var cs []feature.Constraint
	for i := 0; i+1 < len(v.Content); i += 2 {
		name := v.Content[i].Value
		var values Values
		if err := v.Content[i+1].Decode(&values); err != nil {
			return nil, err
		}
		c, err := constraint(name, values)
		if err != nil {
			return nil, invalid(v.Content[i+1], "%s: %v", name, err)
		}
		cs = append(cs, c)
	}
	cond, err := b.sys.Condition(cs...)
	if err != nil {
		return nil, invalid(v, "%v", err)
	}
	return &annfsa.Constraint{Condition: cond}, nil
}

func constraint(name string, values Values) (feature.Constraint, error) {
	if len(values) == 1 && strings.HasPrefix(values[0], "$") {
		return feature.Var(name, values[0][1:]), nil
	}
	negated := 0
	syms := make([]string, len(values))
	for i, v := range values {
		switch {
		case strings.HasPrefix(v, "$"):
			return feature.Constraint{}, fmt.Errorf("variable %s must stand alone", v)
		case strings.HasPrefix(v, "!"):
			negated++
			syms[i] = v[1:]
		default:
			syms[i] = v
		}
	}
	switch negated {
	case 0:
		return feature.Is(name, syms...), nil
	case len(syms):
		return feature.Not(name, syms...), nil
	}
	return feature.Constraint{}, fmt.Errorf("cannot mix negated and plain symbols")
}
