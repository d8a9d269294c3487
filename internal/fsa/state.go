package fsa

import (
	"fmt"
	"strings"

	"github.com/KromDaniel/annfsa/annotation"
)

// NoTag marks an arc that carries no capture tag.
const NoTag = -1

// CurrentPosition is the TagMapCommand source meaning "the position at which
// the command executes".
const CurrentPosition = -1

// Unset is the TagMapCommand source that clears Dest.
const Unset = -2

// PriorityType ranks epsilon arcs created by the compiler.
type PriorityType int

const (
	Greedy PriorityType = iota
	Normal
	Lazy

	numPriorityTypes
)

func (p PriorityType) String() string {
	switch p {
	case Greedy:
		return "greedy"
	case Lazy:
		return "lazy"
	}
	return "normal"
}

// TagMapCommand copies register Src into register Dest. Src may also be
// CurrentPosition, recording the position at which the command executes, or
// Unset, clearing Dest.
type TagMapCommand struct {
	Dest int
	Src  int
}

func (c TagMapCommand) String() string {
	switch c.Src {
	case CurrentPosition:
		return fmt.Sprintf("%d<-CP", c.Dest)
	case Unset:
		return fmt.Sprintf("%d<-nil", c.Dest)
	}
	return fmt.Sprintf("%d<-%d", c.Dest, c.Src)
}

func commandsString(cmds []TagMapCommand) string {
	parts := make([]string, len(cmds))
	for i, c := range cmds {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Acceptor is a final predicate run on a candidate match before it is
// reported. It receives the full input and the candidate.
type Acceptor interface {
	Accept(input *annotation.List, m *Match) bool
}

// AcceptorFunc adapts a plain function to Acceptor.
type AcceptorFunc func(input *annotation.List, m *Match) bool

// Accept calls f.
func (f AcceptorFunc) Accept(input *annotation.List, m *Match) bool {
	return f(input, m)
}

// AcceptInfo labels an accepting state with the expression it completes.
type AcceptInfo struct {
	ID       string
	Acceptor Acceptor
	Priority int
	// Finishers settle the registers of this candidate. Set on DFA states
	// only.
	Finishers []TagMapCommand
}

// State is a node of the automaton arena. Arcs refer to states by Index.
type State struct {
	Index       int
	AcceptInfos []AcceptInfo
	// Finishers of the best AcceptInfo.
	Finishers []TagMapCommand
	Arcs      []*Arc
	InArcs    []*Arc

	accepting bool
	lazy      bool
}

// IsAccepting reports whether reaching the state completes a match.
func (s *State) IsAccepting() bool { return s.accepting }

// IsLazy reports whether the state accepts as early as possible.
func (s *State) IsLazy() bool { return s.lazy }

func (s *State) String() string {
	if s.accepting {
		return fmt.Sprintf("(%d)", s.Index)
	}
	return fmt.Sprintf("%d", s.Index)
}

// Arc is a directed transition. A nil Condition makes it an epsilon arc.
type Arc struct {
	Source       int
	Target       int
	Condition    Condition
	Tag          int
	Commands     []TagMapCommand
	PriorityType PriorityType
	Priority     int
}

// IsEpsilon reports whether the arc consumes nothing.
func (a *Arc) IsEpsilon() bool { return a.Condition == nil }

func (a *Arc) String() string {
	var b strings.Builder
	if a.Condition != nil {
		b.WriteString(a.Condition.String())
	} else {
		b.WriteString("ε")
	}
	if a.Tag != NoTag {
		fmt.Fprintf(&b, ",%d", a.Tag)
	}
	if len(a.Commands) > 0 {
		b.WriteString(",")
		b.WriteString(commandsString(a.Commands))
	}
	return b.String()
}

// Offset is a register slot that may be unset.
type Offset struct {
	Value int
	Valid bool
}

func at(v int) Offset { return Offset{Value: v, Valid: true} }

// Registers holds a (start, end) offset pair per register.
type Registers [][2]Offset

// NewRegisters allocates n unset registers.
func NewRegisters(n int) Registers {
	return make(Registers, n)
}

// Clone returns an independent copy.
func (r Registers) Clone() Registers {
	c := make(Registers, len(r))
	copy(c, r)
	return c
}

// apply executes cmds with parallel-assignment semantics: every source is
// read from src, every destination is written to dst.
func apply(dst, src Registers, cmds []TagMapCommand, start, end Offset) {
	for _, cmd := range cmds {
		switch cmd.Src {
		case CurrentPosition:
			dst[cmd.Dest] = [2]Offset{start, end}
		case Unset:
			dst[cmd.Dest] = [2]Offset{}
		default:
			dst[cmd.Dest] = src[cmd.Src]
		}
	}
}
