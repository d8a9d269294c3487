package fsa

import (
	"fmt"
	"io"
	"strings"
)

// WriteGraphViz renders the states reachable from the start state in DOT.
func (a *Automaton) WriteGraphViz(w io.Writer) error {
	var b strings.Builder
	b.WriteString("digraph G {\n")
	b.WriteString("  rankdir=LR;\n")

	live := a.Reachable()
	for i, ok := live.NextSet(0); ok; i, ok = live.NextSet(i + 1) {
		s := a.states[i]
		attrs := "shape=circle"
		switch {
		case s == a.start:
			attrs = "shape=diamond, color=green"
		case s.accepting:
			attrs = "shape=circle, color=red, peripheries=2"
		}
		label := fmt.Sprintf("%d", s.Index)
		if len(s.Finishers) > 0 {
			label += " : " + commandsString(s.Finishers)
		}
		if s == a.start && len(a.initializers) > 0 {
			label += " : " + commandsString(a.initializers)
		}
		fmt.Fprintf(&b, "  %d [%s, label=%q];\n", s.Index, attrs, label)
		for _, arc := range s.Arcs {
			fmt.Fprintf(&b, "  %d -> %d [label=%q];\n", s.Index, arc.Target, arc.String())
		}
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}
