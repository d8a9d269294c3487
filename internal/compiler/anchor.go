package compiler

import "fmt"

type sides uint8

const (
	leftSide sides = 1 << iota
	rightSide

	bothSides = leftSide | rightSide
)

// anchor resolves every Anchor in the tree to the constraints adjoining it
// and records their sides in c.anchors. Repeating quantifiers on an anchored
// edge are unrolled so only the edge copy carries the anchor.
func (c *compiler) anchor(n Node) (Node, error) {
	var err error
	switch n := n.(type) {
	case *Sequence:
		if n.Children, err = c.anchorChildren(n.Children); err != nil {
			return nil, err
		}
		return n, c.anchorEach(n.Children, true)
	case *Expression:
		if isTerminal(n) {
			if n.Children, err = c.anchorChildren(n.Children); err != nil {
				return nil, err
			}
		}
		return n, c.anchorEach(n.Children, true)
	case *Alternation:
		return n, c.anchorEach(n.Children, false)
	case *Quantifier:
		n.Child, err = c.anchor(n.Child)
		return n, err
	case *Group:
		n.Child, err = c.anchor(n.Child)
		return n, err
	case *Anchor:
		return nil, fmt.Errorf("%w: %s must be the first or last element of a sequence", ErrAnchor, n)
	}
	return n, nil
}

// anchorEach recurses into nodes. Anchors among them were already placed
// by anchorChildren when placed is set.
func (c *compiler) anchorEach(nodes []Node, placed bool) error {
	for i, ch := range nodes {
		if _, ok := ch.(*Anchor); ok && placed {
			continue
		}
		var err error
		if nodes[i], err = c.anchor(ch); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) anchorChildren(children []Node) ([]Node, error) {
	var left, right bool
	first, last := -1, -1
	for i, ch := range children {
		a, ok := ch.(*Anchor)
		if !ok {
			if first < 0 {
				first = i
			}
			last = i
			continue
		}
		switch {
		case a.Side == Left && i == 0:
			left = true
		case a.Side == Right && i == len(children)-1:
			right = true
		default:
			return nil, fmt.Errorf("%w: misplaced %s", ErrAnchor, a)
		}
	}
	if !left && !right {
		return children, nil
	}
	if first < 0 {
		return nil, fmt.Errorf("%w: anchor adjoins nothing", ErrAnchor)
	}
	if c.cfg.AnchorCondition == nil {
		return nil, fmt.Errorf("%w: no anchor condition configured", ErrAnchor)
	}

	var err error
	if left && right && first == last {
		children[first], err = c.mark(children[first], bothSides)
		return children, err
	}
	if left {
		if children[first], err = c.mark(children[first], leftSide); err != nil {
			return nil, err
		}
	}
	if right {
		if children[last], err = c.mark(children[last], rightSide); err != nil {
			return nil, err
		}
	}
	return children, nil
}

// mark anchors the constraints of n lying on the given edges.
func (c *compiler) mark(n Node, s sides) (Node, error) {
	var err error
	switch n := n.(type) {
	case *Constraint:
		c.anchors[n] |= s
		return n, nil
	case *Group:
		n.Child, err = c.mark(n.Child, s)
		return n, err
	case *Alternation:
		for i, ch := range n.Children {
			if n.Children[i], err = c.mark(ch, s); err != nil {
				return nil, err
			}
		}
		return n, nil
	case *Sequence:
		return c.markSequence(n, s)
	case *Quantifier:
		return c.markQuantifier(n, s)
	}
	return nil, fmt.Errorf("%w: cannot anchor %s", ErrAnchor, n)
}

func (c *compiler) markSequence(n *Sequence, s sides) (Node, error) {
	if len(n.Children) == 0 {
		return nil, fmt.Errorf("%w: anchor adjoins an empty sequence", ErrAnchor)
	}
	var err error
	first, last := 0, len(n.Children)-1
	if s == bothSides && first == last {
		n.Children[0], err = c.mark(n.Children[0], bothSides)
		return n, err
	}
	if s&leftSide != 0 {
		if n.Children[first], err = c.mark(n.Children[first], leftSide); err != nil {
			return nil, err
		}
	}
	if s&rightSide != 0 {
		if n.Children[last], err = c.mark(n.Children[last], rightSide); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func decrement(max, by int) int {
	if max == Infinite {
		return Infinite
	}
	return max - by
}

// markQuantifier anchors the edge copies of a quantifier. A single-copy
// quantifier is anchored in place; otherwise one copy is peeled off each
// anchored edge.
func (c *compiler) markQuantifier(q *Quantifier, s sides) (Node, error) {
	if q.Min == 0 {
		return nil, fmt.Errorf("%w: anchor adjoins optional %s", ErrAnchor, q)
	}
	var err error
	if q.Max == 1 {
		q.Child, err = c.mark(q.Child, s)
		return q, err
	}

	rest := func(by int) Node {
		min, max := q.Min-by, decrement(q.Max, by)
		if min < 0 {
			min = 0
		}
		if max == 0 {
			return nil
		}
		return &Quantifier{Min: min, Max: max, Greedy: q.Greedy, Child: clone(q.Child)}
	}
	edge := func(side sides) (Node, error) {
		return c.mark(clone(q.Child), side)
	}

	switch s {
	case leftSide:
		head, err := edge(leftSide)
		if err != nil {
			return nil, err
		}
		return seq(head, rest(1)), nil
	case rightSide:
		tail, err := edge(rightSide)
		if err != nil {
			return nil, err
		}
		return seq(rest(1), tail), nil
	}

	// Both edges: either one copy anchored on both sides, or a left copy,
	// the middle and a right copy.
	alt := &Alternation{}
	if q.Min <= 1 {
		one, err := edge(bothSides)
		if err != nil {
			return nil, err
		}
		alt.Children = append(alt.Children, one)
	}
	head, err := edge(leftSide)
	if err != nil {
		return nil, err
	}
	tail, err := edge(rightSide)
	if err != nil {
		return nil, err
	}
	alt.Children = append(alt.Children, seq(head, rest(2), tail))
	if len(alt.Children) == 1 {
		return alt.Children[0], nil
	}
	if q.Greedy {
		alt.Children[0], alt.Children[1] = alt.Children[1], alt.Children[0]
	}
	return alt, nil
}

func seq(nodes ...Node) Node {
	s := &Sequence{}
	for _, n := range nodes {
		if n != nil {
			s.Children = append(s.Children, n)
		}
	}
	return s
}
