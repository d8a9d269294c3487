package fsa

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/exp/slices"

	"github.com/KromDaniel/annfsa/annotation"
)

// DefaultMaxStates bounds the number of DFA states Determinize may create.
const DefaultMaxStates = 10000

// Config configures a new Automaton.
type Config struct {
	Direction annotation.Direction
	Filter    annotation.Filter
	MaxStates int
	Logger    Logger
}

// Automaton is a tagged NFA or, after Determinize, a tagged DFA.
//
// Construction is single-goroutine. Once built and determinized an Automaton
// is immutable and Match may be called concurrently.
type Automaton struct {
	dir       annotation.Direction
	filter    annotation.Filter
	maxStates int
	logger    Logger

	states []*State
	start  *State

	nextTag    int
	groups     map[string]int
	groupOrder []string

	initializers  []TagMapCommand
	registerCount int

	deterministic bool
	prioritized   bool
}

// New creates an empty automaton holding only its start state.
func New(cfg Config) *Automaton {
	a := &Automaton{
		dir:       cfg.Direction,
		filter:    cfg.Filter,
		maxStates: cfg.MaxStates,
		logger:    cfg.Logger,
		groups:    make(map[string]int),
	}
	if a.filter == nil {
		a.filter = annotation.All
	}
	if a.maxStates <= 0 {
		a.maxStates = DefaultMaxStates
	}
	if a.logger == nil {
		a.logger = nopLogger{}
	}
	a.start = a.CreateState()
	return a
}

// Direction returns the scanning direction.
func (a *Automaton) Direction() annotation.Direction { return a.dir }

// Filter returns the annotation filter.
func (a *Automaton) Filter() annotation.Filter { return a.filter }

// StartState returns the start state.
func (a *Automaton) StartState() *State { return a.start }

// States returns the state arena.
func (a *Automaton) States() []*State { return a.states }

// State returns the state at index i.
func (a *Automaton) State(i int) *State { return a.states[i] }

// IsDeterministic reports whether Determinize has run.
func (a *Automaton) IsDeterministic() bool { return a.deterministic }

// RegisterCount returns the number of registers a match needs.
func (a *Automaton) RegisterCount() int { return a.registerCount }

// Initializers returns the register commands run before the first annotation.
func (a *Automaton) Initializers() []TagMapCommand { return a.initializers }

// GroupNames returns capture group names in order of first reference.
func (a *Automaton) GroupNames() []string { return a.groupOrder }

// HasGroup reports whether a capture group has been allocated.
func (a *Automaton) HasGroup(name string) bool {
	_, ok := a.groups[name]
	return ok
}

// CreateState appends a non-accepting state to the arena.
func (a *Automaton) CreateState() *State {
	s := &State{Index: len(a.states)}
	a.states = append(a.states, s)
	return s
}

// CreateAcceptingState appends an accepting state labelled with info.
func (a *Automaton) CreateAcceptingState(info AcceptInfo) *State {
	s := a.CreateState()
	s.accepting = true
	s.AcceptInfos = append(s.AcceptInfos, info)
	return s
}

func (a *Automaton) addArc(source, target *State, arc *Arc) *Arc {
	arc.Source = source.Index
	arc.Target = target.Index
	source.Arcs = append(source.Arcs, arc)
	target.InArcs = append(target.InArcs, arc)
	return arc
}

// AddArc adds a consuming arc from source to target.
func (a *Automaton) AddArc(source, target *State, cond Condition) *Arc {
	if cond == nil {
		panic("fsa: consuming arc requires a condition")
	}
	return a.addArc(source, target, &Arc{Condition: cond, Tag: NoTag, PriorityType: Normal})
}

// AddEpsilon adds an epsilon arc with the given priority type.
func (a *Automaton) AddEpsilon(source, target *State, pt PriorityType) *Arc {
	return a.addArc(source, target, &Arc{Tag: NoTag, PriorityType: pt})
}

// CreateTag adds a tagged epsilon arc marking the start or end of group.
// The first reference to a group allocates the consecutive tag pair
// (start, end). An end tag for a group never opened panics.
func (a *Automaton) CreateTag(source, target *State, group string, start bool) *Arc {
	tag, ok := a.groups[group]
	if !ok {
		if !start {
			panic(fmt.Sprintf("fsa: end tag for unknown group %q", group))
		}
		tag = a.nextTag
		a.nextTag += 2
		a.groups[group] = tag
		a.groupOrder = append(a.groupOrder, group)
		a.registerCount = a.nextTag
	}
	if !start {
		tag++
	}
	return a.addArc(source, target, &Arc{Tag: tag, PriorityType: Normal})
}

// GetOffsets reads the span captured for group from a register file.
// ok is false when the group did not participate in the match. An unknown
// group is a programming error and panics.
func (a *Automaton) GetOffsets(group string, regs Registers) (start, end int, ok bool) {
	tag, found := a.groups[group]
	if !found {
		panic(fmt.Sprintf("fsa: unknown group %q", group))
	}
	if tag+1 >= len(regs) {
		return 0, 0, false
	}
	s, e := regs[tag][0], regs[tag+1][1]
	if !s.Valid || !e.Valid {
		return 0, 0, false
	}
	if a.dir == annotation.RightToLeft {
		return e.Value, s.Value, true
	}
	return s.Value, e.Value, true
}

// MarkPriorities numbers every arc: Greedy arcs first, then Normal, then
// Lazy, each bucket in creation order. Lower numbers win. Outgoing arcs of
// each state are then sorted by priority.
func (a *Automaton) MarkPriorities() {
	var buckets [numPriorityTypes][]*Arc
	for _, s := range a.states {
		for _, arc := range s.Arcs {
			buckets[arc.PriorityType] = append(buckets[arc.PriorityType], arc)
		}
	}
	next := 0
	for _, bucket := range buckets {
		for _, arc := range bucket {
			arc.Priority = next
			next++
		}
	}
	for _, s := range a.states {
		slices.SortStableFunc(s.Arcs, func(x, y *Arc) int {
			return x.Priority - y.Priority
		})
	}
	a.prioritized = true
}

// Reachable returns the set of state indices reachable from the start state.
func (a *Automaton) Reachable() *bitset.BitSet {
	seen := bitset.New(uint(len(a.states)))
	stack := []int{a.start.Index}
	seen.Set(uint(a.start.Index))
	for len(stack) > 0 {
		s := a.states[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		for _, arc := range s.Arcs {
			if !seen.Test(uint(arc.Target)) {
				seen.Set(uint(arc.Target))
				stack = append(stack, arc.Target)
			}
		}
	}
	return seen
}

// Stats summarizes the automaton for logging.
type Stats struct {
	States    int
	Accepting int
	Arcs      int
	Epsilon   int
	Registers int
}

func (s Stats) String() string {
	return fmt.Sprintf("%d states (%d accepting), %d arcs (%d epsilon), %d registers",
		s.States, s.Accepting, s.Arcs, s.Epsilon, s.Registers)
}

// Stats counts states, arcs and registers.
func (a *Automaton) Stats() Stats {
	st := Stats{States: len(a.states), Registers: a.registerCount}
	for _, s := range a.states {
		if s.accepting {
			st.Accepting++
		}
		for _, arc := range s.Arcs {
			st.Arcs++
			if arc.IsEpsilon() {
				st.Epsilon++
			}
		}
	}
	return st
}
