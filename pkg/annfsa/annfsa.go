// Package annfsa matches patterns over annotation sequences.
//
// A pattern is a tree of Nodes whose Constraints test single annotations
// through a feature.System condition. Compile turns the tree into a tagged
// automaton, determinized by default, which can then be matched against
// any number of annotation lists concurrently.
package annfsa

import (
	"fmt"
	"io"

	"github.com/KromDaniel/annfsa/annotation"
	"github.com/KromDaniel/annfsa/feature"
	"github.com/KromDaniel/annfsa/internal/compiler"
	"github.com/KromDaniel/annfsa/internal/fsa"
)

// Pattern AST node types.
type (
	Node        = compiler.Node
	Sequence    = compiler.Sequence
	Alternation = compiler.Alternation
	Quantifier  = compiler.Quantifier
	Group       = compiler.Group
	Constraint  = compiler.Constraint
	Anchor      = compiler.Anchor
	Expression  = compiler.Expression
	Side        = compiler.Side
)

// Automaton-level types shared with callers.
type (
	Condition        = fsa.Condition
	VariableBindings = fsa.VariableBindings
	Acceptor         = fsa.Acceptor
	AcceptorFunc     = fsa.AcceptorFunc
	RawMatch         = fsa.Match
)

const (
	Left     = compiler.Left
	Right    = compiler.Right
	Infinite = compiler.Infinite
	// Entire names the group spanning the whole match.
	Entire = compiler.Entire
)

// Errors returned by Compile, usable with errors.Is.
var (
	ErrInvalidQuantifier = compiler.ErrInvalidQuantifier
	ErrInvalidNode       = compiler.ErrInvalidNode
	ErrMixedExpression   = compiler.ErrMixedExpression
	ErrAnchor            = compiler.ErrAnchor
	ErrTooManyStates     = fsa.ErrTooManyStates
)

// Edges selects input edges a whole pattern is pinned to.
type Edges uint8

const (
	LeftEdge Edges = 1 << iota
	RightEdge

	BothEdges = LeftEdge | RightEdge
)

// Options configures pattern compilation.
type Options struct {
	// Name labels the pattern in errors and logs
	Name string

	// Direction is the scanning direction (default LeftToRight)
	Direction annotation.Direction

	// Filter restricts the annotations the pattern sees (default: all)
	Filter annotation.Filter

	// Acceptable vets every match of the pattern before it is reported
	Acceptable func(input *annotation.List, m *PatternMatch) bool

	// NoDeterminize keeps the NFA and matches by backtracking over it
	NoDeterminize bool

	// MaxStates bounds determinization (default 10000)
	MaxStates int

	// Anchors pins the whole pattern to input edges, as if it were written
	// between ^ and $
	Anchors Edges

	// Verbose logs compilation and determinization
	Verbose bool

	// LogOutput receives verbose output (default os.Stderr)
	LogOutput io.Writer
}

// Validate checks if the options are valid.
func (o Options) Validate() error {
	if o.Direction != annotation.LeftToRight && o.Direction != annotation.RightToLeft {
		return fmt.Errorf("invalid direction %d", o.Direction)
	}
	if o.MaxStates < 0 {
		return fmt.Errorf("max states cannot be negative")
	}
	if o.Anchors&^BothEdges != 0 {
		return fmt.Errorf("invalid anchors %d", o.Anchors)
	}
	return nil
}

// Pattern is a compiled pattern. It is safe for concurrent use.
type Pattern struct {
	sys      *feature.System
	root     Node
	opts     Options
	fsa      *fsa.Automaton
	anchored bool
}

// Compile compiles root against the conditions of sys.
func Compile(sys *feature.System, root Node, opts Options) (*Pattern, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if sys == nil {
		return nil, fmt.Errorf("invalid options: feature system cannot be nil")
	}

	p := &Pattern{sys: sys, root: root, opts: opts}
	tree := pin(root, opts.Anchors)
	if opts.Acceptable != nil {
		tree = p.guard(tree)
	}
	p.anchored = compiler.HasAnchors(tree)

	a, err := compiler.Compile(tree, compiler.Config{
		Name:      opts.Name,
		Direction: opts.Direction,
		Filter:    opts.Filter,
		MaxStates: opts.MaxStates,
		AnchorCondition: func(left bool) fsa.Condition {
			return sys.AnchorCondition(left)
		},
		Logger: compiler.NewLogger(opts.Verbose, opts.LogOutput),
	})
	if err != nil {
		return nil, err
	}
	if !opts.NoDeterminize {
		if err := a.Determinize(); err != nil {
			return nil, fmt.Errorf("failed to determinize pattern %q: %w", opts.Name, err)
		}
	}
	p.fsa = a
	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(sys *feature.System, root Node, opts Options) *Pattern {
	p, err := Compile(sys, root, opts)
	if err != nil {
		panic(err)
	}
	return p
}

// guard attaches the pattern-level Acceptable callback to the root
// expression, wrapping a plain tree in an unnamed one.
func (p *Pattern) guard(n Node) Node {
	acc := fsa.AcceptorFunc(func(input *annotation.List, m *fsa.Match) bool {
		return p.opts.Acceptable(input, p.convert(m))
	})
	e, ok := n.(*Expression)
	if !ok {
		return &Expression{Acceptable: acc, Children: []Node{n}}
	}
	guarded := *e
	if e.Acceptable != nil {
		inner := e.Acceptable
		guarded.Acceptable = fsa.AcceptorFunc(func(input *annotation.List, m *fsa.Match) bool {
			return acc.Accept(input, m) && inner.Accept(input, m)
		})
	} else {
		guarded.Acceptable = acc
	}
	return &guarded
}

// pin wraps the tree in edge anchors. Expressions are pinned per terminal
// alternative.
func pin(n Node, edges Edges) Node {
	if edges == 0 {
		return n
	}
	if e, ok := n.(*Expression); ok {
		pinned := *e
		pinned.Children = make([]Node, len(e.Children))
		terminal := true
		for i, ch := range e.Children {
			if sub, ok := ch.(*Expression); ok {
				terminal = false
				pinned.Children[i] = pin(sub, edges)
			} else {
				pinned.Children[i] = ch
			}
		}
		if terminal {
			pinned.Children = edge(pinned.Children, edges)
		}
		return &pinned
	}
	return &Sequence{Children: edge([]Node{n}, edges)}
}

func edge(children []Node, edges Edges) []Node {
	var out []Node
	if edges&LeftEdge != 0 {
		out = append(out, &Anchor{Side: Left})
	}
	out = append(out, children...)
	if edges&RightEdge != 0 {
		out = append(out, &Anchor{Side: Right})
	}
	return out
}

// Name returns the pattern name.
func (p *Pattern) Name() string { return p.opts.Name }

// Direction returns the scanning direction.
func (p *Pattern) Direction() annotation.Direction { return p.opts.Direction }

// IsDeterministic reports whether the pattern runs as a DFA.
func (p *Pattern) IsDeterministic() bool { return p.fsa.IsDeterministic() }

// Automaton exposes the compiled automaton for export and diagnostics.
func (p *Pattern) Automaton() *fsa.Automaton { return p.fsa }

// GroupNames lists the capture groups in declaration order, excluding
// Entire. Terminal sub-expressions contribute a group named by their path.
func (p *Pattern) GroupNames() []string {
	var names []string
	for _, g := range p.fsa.GroupNames() {
		if g != Entire {
			names = append(names, g)
		}
	}
	return names
}

// Reverse compiles the same tree scanning in the opposite direction.
func (p *Pattern) Reverse() (*Pattern, error) {
	opts := p.opts
	opts.Direction = opts.Direction.Reverse()
	return Compile(p.sys, p.root, opts)
}

// WriteGraphViz writes the automaton in DOT format.
func (p *Pattern) WriteGraphViz(w io.Writer) error {
	return p.fsa.WriteGraphViz(w)
}

func (p *Pattern) String() string {
	return p.root.String()
}
