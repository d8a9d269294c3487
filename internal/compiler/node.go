package compiler

import (
	"fmt"
	"strings"

	"github.com/KromDaniel/annfsa/internal/fsa"
)

// Infinite is the Quantifier.Max value for unbounded repetition.
const Infinite = -1

// Entire is the reserved group spanning the whole match.
const Entire = "*entire*"

// PathSeparator joins expression names into a match id.
const PathSeparator = "."

// Side selects the edge an Anchor pins to.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// Node is a pattern AST node. The set of node types is closed.
type Node interface {
	node()
	String() string
}

// Sequence matches its children one after another.
type Sequence struct {
	Children []Node
}

// Alternation matches any one of its children. Earlier children are
// preferred.
type Alternation struct {
	Children []Node
}

// Quantifier repeats Child between Min and Max times.
type Quantifier struct {
	Min, Max int
	Greedy   bool
	Child    Node
}

// Group captures the span matched by Child under Name. An unnamed group
// only groups.
type Group struct {
	Name  string
	Child Node
}

// Constraint consumes one annotation satisfying Condition.
type Constraint struct {
	Condition fsa.Condition
}

// Anchor pins the adjoining constraint to the leftmost or rightmost
// annotation of the input.
type Anchor struct {
	Side Side
}

// Expression names one alternative of a pattern. An expression holds either
// only sub-expressions or only plain nodes, which are matched in sequence.
// Acceptable, if set, vets every match of the expression and its
// sub-expressions.
type Expression struct {
	Name       string
	Acceptable fsa.Acceptor
	Children   []Node
}

func (*Sequence) node()    {}
func (*Alternation) node() {}
func (*Quantifier) node()  {}
func (*Group) node()       {}
func (*Constraint) node()  {}
func (*Anchor) node()      {}
func (*Expression) node()  {}

func join(nodes []Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, sep)
}

func (n *Sequence) String() string    { return join(n.Children, " ") }
func (n *Alternation) String() string { return "(" + join(n.Children, "|") + ")" }
func (n *Constraint) String() string  { return n.Condition.String() }
func (n *Expression) String() string  { return n.Name + ":{" + join(n.Children, " ") + "}" }

func (n *Quantifier) String() string {
	var q string
	switch {
	case n.Min == 0 && n.Max == 1:
		q = "?"
	case n.Min == 0 && n.Max == Infinite:
		q = "*"
	case n.Min == 1 && n.Max == Infinite:
		q = "+"
	case n.Max == Infinite:
		q = fmt.Sprintf("{%d,}", n.Min)
	default:
		q = fmt.Sprintf("{%d,%d}", n.Min, n.Max)
	}
	if !n.Greedy {
		q += "?"
	}
	return "(" + n.Child.String() + ")" + q
}

func (n *Group) String() string {
	if n.Name == "" {
		return "(" + n.Child.String() + ")"
	}
	return "(?<" + n.Name + ">" + n.Child.String() + ")"
}

func (n *Anchor) String() string {
	if n.Side == Right {
		return "$"
	}
	return "^"
}

// HasAnchors reports whether the tree contains an Anchor.
func HasAnchors(n Node) bool {
	switch n := n.(type) {
	case *Anchor:
		return true
	case *Quantifier:
		return HasAnchors(n.Child)
	case *Group:
		return HasAnchors(n.Child)
	case *Sequence:
		return anyAnchors(n.Children)
	case *Alternation:
		return anyAnchors(n.Children)
	case *Expression:
		return anyAnchors(n.Children)
	}
	return false
}

func anyAnchors(nodes []Node) bool {
	for _, n := range nodes {
		if HasAnchors(n) {
			return true
		}
	}
	return false
}

// clone deep-copies a tree so every Constraint occurrence is a distinct
// pointer.
func clone(n Node) Node {
	switch n := n.(type) {
	case *Sequence:
		return &Sequence{Children: cloneAll(n.Children)}
	case *Alternation:
		return &Alternation{Children: cloneAll(n.Children)}
	case *Quantifier:
		return &Quantifier{Min: n.Min, Max: n.Max, Greedy: n.Greedy, Child: clone(n.Child)}
	case *Group:
		return &Group{Name: n.Name, Child: clone(n.Child)}
	case *Constraint:
		return &Constraint{Condition: n.Condition}
	case *Anchor:
		return &Anchor{Side: n.Side}
	case *Expression:
		return &Expression{Name: n.Name, Acceptable: n.Acceptable, Children: cloneAll(n.Children)}
	}
	panic(fmt.Sprintf("compiler: unknown node %T", n))
}

func cloneAll(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = clone(n)
	}
	return out
}

func isTerminal(e *Expression) bool {
	for _, ch := range e.Children {
		if _, ok := ch.(*Expression); ok {
			return false
		}
	}
	return true
}

// validate checks the tree shape. Expressions may only appear at the root
// or directly under another expression.
func validate(n Node, underExpression bool) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidNode)
	}
	if _, ok := n.(*Expression); !ok {
		underExpression = false
	}
	switch n := n.(type) {
	case *Sequence:
		return validateAll(n.Children, false)
	case *Alternation:
		if len(n.Children) == 0 {
			return fmt.Errorf("%w: empty alternation", ErrInvalidNode)
		}
		return validateAll(n.Children, false)
	case *Quantifier:
		if n.Min < 0 || n.Max == 0 || (n.Max != Infinite && n.Max < n.Min) {
			return fmt.Errorf("%w: min %d, max %d", ErrInvalidQuantifier, n.Min, n.Max)
		}
		return validate(n.Child, false)
	case *Group:
		if n.Name == Entire {
			return fmt.Errorf("%w: group name %q is reserved", ErrInvalidNode, Entire)
		}
		return validate(n.Child, false)
	case *Constraint:
		if n.Condition == nil {
			return fmt.Errorf("%w: constraint without condition", ErrInvalidNode)
		}
	case *Anchor:
		if n.Side != Left && n.Side != Right {
			return fmt.Errorf("%w: anchor side %d", ErrInvalidNode, n.Side)
		}
	case *Expression:
		if !underExpression {
			return fmt.Errorf("%w: expression %q nested in a plain node", ErrInvalidNode, n.Name)
		}
		if strings.Contains(n.Name, PathSeparator) {
			return fmt.Errorf("%w: expression name %q contains %q", ErrInvalidNode, n.Name, PathSeparator)
		}
		subs := 0
		for _, ch := range n.Children {
			if _, ok := ch.(*Expression); ok {
				subs++
			}
		}
		if subs > 0 && subs != len(n.Children) {
			return fmt.Errorf("%w: %q", ErrMixedExpression, n.Name)
		}
		return validateAll(n.Children, true)
	default:
		return fmt.Errorf("%w: %T", ErrInvalidNode, n)
	}
	return nil
}

func validateAll(nodes []Node, underExpression bool) error {
	for _, n := range nodes {
		if err := validate(n, underExpression); err != nil {
			return err
		}
	}
	return nil
}
