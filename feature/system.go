// Package feature provides a finite feature system and the Condition
// implementation the automaton consumes.
//
// Every feature has a closed domain of symbols. A Condition is kept in
// disjunctive normal form: a list of terms, each restricting some features
// to sets of allowed symbols and optionally binding pattern variables. The
// closed domains make negation and conjunction exact.
package feature

import (
	"fmt"

	"github.com/KromDaniel/annfsa/annotation"
)

// TypeFeature names the pseudo-feature that reads an annotation's Type.
const TypeFeature = "type"

// Reserved features marking the outermost annotations of an input.
const (
	AnchorLeft  = "*anchor-left*"
	AnchorRight = "*anchor-right*"
)

// Anchor symbols.
const (
	Unanchored = "-"
	Anchored   = "+"
)

// unspecified is the domain index of a missing or unknown symbol.
const unspecified = 0

// Error reports a reference to an unknown feature or symbol.
type Error struct {
	Feature string
	Symbol  string
	Msg     string
}

func (e *Error) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("feature %q, symbol %q: %s", e.Feature, e.Symbol, e.Msg)
	}
	return fmt.Sprintf("feature %q: %s", e.Feature, e.Msg)
}

// Feature is a named feature with a closed symbol domain. Domain index 0 is
// reserved for "unspecified"; symbols occupy 1..len(Symbols).
type Feature struct {
	Name    string
	Symbols []string

	id    int
	index map[string]int
}

func (f *Feature) domain() uint {
	return uint(len(f.Symbols) + 1)
}

func (f *Feature) symbol(i int) string {
	if i == unspecified {
		return "?"
	}
	return f.Symbols[i-1]
}

// System is the set of features conditions may test.
type System struct {
	features []*Feature
	byName   map[string]*Feature
}

// NewSystem creates a system holding the reserved anchor features.
func NewSystem() *System {
	s := &System{byName: make(map[string]*Feature)}
	s.mustAdd(AnchorLeft, Unanchored, Anchored)
	s.mustAdd(AnchorRight, Unanchored, Anchored)
	return s
}

func (s *System) mustAdd(name string, symbols ...string) {
	if _, err := s.Add(name, symbols...); err != nil {
		panic(err)
	}
}

// Add declares a feature. Names and symbols must be unique.
func (s *System) Add(name string, symbols ...string) (*Feature, error) {
	if name == "" {
		return nil, &Error{Msg: "empty feature name"}
	}
	if _, ok := s.byName[name]; ok {
		return nil, &Error{Feature: name, Msg: "declared twice"}
	}
	if len(symbols) == 0 {
		return nil, &Error{Feature: name, Msg: "empty domain"}
	}
	f := &Feature{Name: name, Symbols: symbols, id: len(s.features), index: make(map[string]int, len(symbols))}
	for i, sym := range symbols {
		if _, ok := f.index[sym]; ok {
			return nil, &Error{Feature: name, Symbol: sym, Msg: "declared twice"}
		}
		f.index[sym] = i + 1
	}
	s.features = append(s.features, f)
	s.byName[name] = f
	return f, nil
}

// Feature looks a feature up by name.
func (s *System) Feature(name string) (*Feature, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Features returns every declared feature, reserved ones included.
func (s *System) Features() []*Feature {
	return s.features
}

// value returns the domain index of f on ann.
func (s *System) value(f *Feature, ann *annotation.Annotation) int {
	var v string
	var ok bool
	if f.Name == TypeFeature {
		v, ok = ann.Type, true
	} else {
		v, ok = ann.Features[f.Name]
	}
	if !ok {
		return unspecified
	}
	return f.index[v]
}

// AnchorCondition returns the condition satisfied only by an annotation
// marked as the leftmost (left true) or rightmost input annotation.
func (s *System) AnchorCondition(left bool) *Condition {
	name := AnchorRight
	if left {
		name = AnchorLeft
	}
	c, err := s.Condition(Is(name, Anchored))
	if err != nil {
		panic(err)
	}
	return c
}
