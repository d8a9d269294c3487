// Package fsa implements the tagged finite state automaton at the heart of the
// annotation matcher.
//
// An Automaton is first built as an NFA by the pattern compiler: arcs either
// consume one annotation (they carry a Condition), mark a capture boundary
// (they carry a tag) or are plain epsilon arcs stamped with a PriorityType.
// Determinize converts the NFA in place into a DFA using tagged subset
// construction: capture tags become register commands on consuming arcs,
// initializers and finishers. Match runs either form against an
// annotation.List.
package fsa

import (
	"errors"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/KromDaniel/annfsa/annotation"
)

// ErrTooManyStates indicates determinization exceeded the state limit.
var ErrTooManyStates = errors.New("automaton state explosion")

// Condition is an opaque test over a single annotation.
//
// IsMatch may bind pattern variables in bindings; callers clone bindings
// before every test. Negate and Conjoin report false when the result has no
// closed form or is unsatisfiable. Key is a structural identity used to
// deduplicate conditions during determinization.
type Condition interface {
	IsMatch(ann *annotation.Annotation, bindings VariableBindings) bool
	Negate() (Condition, bool)
	Conjoin(other Condition) (Condition, bool)
	Key() string
	String() string
}

// VariableBindings maps pattern variable names to the symbols they are bound to.
type VariableBindings map[string]string

// Clone returns an independent copy.
func (b VariableBindings) Clone() VariableBindings {
	c := make(VariableBindings, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

func (b VariableBindings) String() string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + b[k]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Logger receives verbose construction diagnostics.
type Logger interface {
	Log(format string, args ...interface{})
	Section(name string)
}

type nopLogger struct{}

func (nopLogger) Log(string, ...interface{}) {}
func (nopLogger) Section(string)             {}
