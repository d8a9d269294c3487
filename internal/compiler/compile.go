// Package compiler turns a pattern AST into a tagged NFA.
package compiler

import (
	"fmt"
	"strings"

	"github.com/KromDaniel/annfsa/annotation"
	"github.com/KromDaniel/annfsa/internal/fsa"
)

// Config holds the configuration for pattern compilation.
type Config struct {
	Name      string
	Direction annotation.Direction
	Filter    annotation.Filter
	MaxStates int
	// AnchorCondition returns the condition satisfied only by the leftmost
	// (left true) or rightmost annotation. Required by patterns with anchors.
	AnchorCondition func(left bool) fsa.Condition
	Logger          *Logger
}

type compiler struct {
	cfg     Config
	a       *fsa.Automaton
	log     *Logger
	anchors map[*Constraint]sides
	accepts int
}

// Compile builds the NFA for root with arc priorities marked. The caller
// owns the result and may Determinize it.
func Compile(root Node, cfg Config) (*fsa.Automaton, error) {
	a, err := compile(root, cfg)
	if err != nil {
		return nil, &CompileError{Pattern: cfg.Name, Err: err}
	}
	return a, nil
}

func compile(root Node, cfg Config) (*fsa.Automaton, error) {
	c := &compiler{cfg: cfg, log: cfg.Logger.For(cfg.Name), anchors: make(map[*Constraint]sides)}
	c.log.Section("Compile")

	if err := validate(root, true); err != nil {
		return nil, err
	}
	root, err := c.anchor(clone(root))
	if err != nil {
		return nil, err
	}
	c.log.Log("pattern: %s", root)
	if len(c.anchors) > 0 {
		c.log.Log("anchored constraints: %d", len(c.anchors))
	}

	fc := fsa.Config{
		Direction: cfg.Direction,
		Filter:    cfg.Filter,
		MaxStates: cfg.MaxStates,
	}
	if c.log.Enabled() {
		fc.Logger = c.log
	}
	c.a = fsa.New(fc)
	start := c.a.CreateState()
	c.a.CreateTag(c.a.StartState(), start, Entire, true)

	if e, ok := root.(*Expression); ok {
		if err := c.expression(e, start, exprContext{}, true); err != nil {
			return nil, err
		}
	} else {
		end, err := c.node(root, start)
		if err != nil {
			return nil, err
		}
		c.accept(end, exprContext{})
	}

	c.a.MarkPriorities()
	c.log.Log("NFA: %s", c.a.Stats())
	c.log.Log("groups: %s", strings.Join(c.a.GroupNames(), ", "))
	return c.a, nil
}

// exprContext carries the enclosing expression names and acceptors.
type exprContext struct {
	path      []string
	acceptors []fsa.Acceptor
}

func (x exprContext) child(e *Expression) exprContext {
	next := exprContext{
		path:      append(append([]string(nil), x.path...), e.Name),
		acceptors: x.acceptors,
	}
	if e.Name == "" {
		next.path = x.path
	}
	if e.Acceptable != nil {
		next.acceptors = append(append([]fsa.Acceptor(nil), x.acceptors...), e.Acceptable)
	}
	return next
}

func (x exprContext) id() string {
	return strings.Join(x.path, PathSeparator)
}

func (x exprContext) acceptor() fsa.Acceptor {
	switch len(x.acceptors) {
	case 0:
		return nil
	case 1:
		return x.acceptors[0]
	}
	accs := x.acceptors
	return fsa.AcceptorFunc(func(input *annotation.List, m *fsa.Match) bool {
		for _, acc := range accs {
			if !acc.Accept(input, m) {
				return false
			}
		}
		return true
	})
}

// accept closes the entire-match group after end and adds the accepting
// state for the expression in x.
func (c *compiler) accept(end *fsa.State, x exprContext) {
	t := c.a.CreateState()
	c.a.CreateTag(end, t, Entire, false)
	acc := c.a.CreateAcceptingState(fsa.AcceptInfo{ID: x.id(), Acceptor: x.acceptor(), Priority: c.accepts})
	c.accepts++
	c.a.AddEpsilon(t, acc, fsa.Normal)
	c.log.Log("accept state %d for %q", acc.Index, x.id())
}

// expression compiles each sub-expression from the same start state. A
// terminal expression below the root captures its span under its path.
func (c *compiler) expression(e *Expression, start *fsa.State, parent exprContext, root bool) error {
	x := parent.child(e)
	if !isTerminal(e) {
		for _, ch := range e.Children {
			if err := c.expression(ch.(*Expression), start, x, false); err != nil {
				return err
			}
		}
		return nil
	}

	group := x.id()
	named := !root && group != ""
	s := start
	if named {
		s = c.a.CreateState()
		c.a.CreateTag(start, s, group, true)
	}
	end, err := c.sequence(e.Children, s)
	if err != nil {
		return err
	}
	if named {
		t := c.a.CreateState()
		c.a.CreateTag(end, t, group, false)
		end = t
	}
	c.accept(end, x)
	return nil
}

func (c *compiler) node(n Node, start *fsa.State) (*fsa.State, error) {
	switch n := n.(type) {
	case *Constraint:
		return c.constraint(n, start)
	case *Sequence:
		return c.sequence(n.Children, start)
	case *Alternation:
		end := c.a.CreateState()
		for _, ch := range n.Children {
			e, err := c.node(ch, start)
			if err != nil {
				return nil, err
			}
			c.a.AddEpsilon(e, end, fsa.Normal)
		}
		return end, nil
	case *Group:
		if n.Name == "" {
			return c.node(n.Child, start)
		}
		s := c.a.CreateState()
		c.a.CreateTag(start, s, n.Name, true)
		e, err := c.node(n.Child, s)
		if err != nil {
			return nil, err
		}
		t := c.a.CreateState()
		c.a.CreateTag(e, t, n.Name, false)
		return t, nil
	case *Quantifier:
		return c.quantifier(n, start)
	case *Anchor:
		return start, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidNode, n)
}

// sequence threads children in scan order: reversed for right-to-left.
func (c *compiler) sequence(children []Node, start *fsa.State) (*fsa.State, error) {
	cur := start
	for i := range children {
		ch := children[i]
		if c.cfg.Direction == annotation.RightToLeft {
			ch = children[len(children)-1-i]
		}
		next, err := c.node(ch, cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func (c *compiler) constraint(n *Constraint, start *fsa.State) (*fsa.State, error) {
	cond := n.Condition
	s := c.anchors[n]
	for _, side := range []sides{leftSide, rightSide} {
		if s&side == 0 {
			continue
		}
		var ok bool
		cond, ok = cond.Conjoin(c.cfg.AnchorCondition(side == leftSide))
		if !ok {
			return nil, fmt.Errorf("%w: %s cannot be anchored", ErrAnchor, n)
		}
	}
	end := c.a.CreateState()
	c.a.AddArc(start, end, cond)
	return end, nil
}

// quantifier wires repetition. The body is entered from a fresh state so a
// loop never re-enters arcs of siblings sharing start. Entry and loop arcs
// carry the greedy or lazy priority; skip arcs are Normal.
func (c *compiler) quantifier(q *Quantifier, start *fsa.State) (*fsa.State, error) {
	pt := fsa.Lazy
	if q.Greedy {
		pt = fsa.Greedy
	}
	entry := c.a.CreateState()
	c.a.AddEpsilon(start, entry, fsa.Normal)

	cur := entry
	var end *fsa.State
	var skips []*fsa.State
	var err error
	if q.Min == 0 {
		body := c.a.CreateState()
		c.a.AddEpsilon(cur, body, pt)
		if end, err = c.node(q.Child, body); err != nil {
			return nil, err
		}
		skips = append(skips, cur)
	} else {
		end = cur
		for i := 0; i < q.Min; i++ {
			cur = end
			if end, err = c.node(q.Child, cur); err != nil {
				return nil, err
			}
		}
	}

	if q.Max == Infinite {
		c.a.AddEpsilon(end, cur, pt)
		if q.Min == 0 {
			end = c.a.CreateState()
		}
	} else {
		copies := q.Max - q.Min
		if q.Min == 0 {
			copies--
		}
		for i := 0; i < copies; i++ {
			skips = append(skips, end)
			body := c.a.CreateState()
			c.a.AddEpsilon(end, body, pt)
			if end, err = c.node(q.Child, body); err != nil {
				return nil, err
			}
		}
	}
	for _, s := range skips {
		c.a.AddEpsilon(s, end, fsa.Normal)
	}
	return end, nil
}
