package fsa

import (
	"context"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/exp/slices"

	"github.com/KromDaniel/annfsa/annotation"
)

// Match is one accepted candidate.
type Match struct {
	ID        string
	Registers Registers
	Bindings  VariableBindings
	Priority  int
	Lazy      bool

	origin int
	serial int
}

// MatchOptions tunes a scan.
type MatchOptions struct {
	// AllMatches reports every accepted candidate instead of stopping at the
	// best match of the first start position that matches.
	AllMatches bool
	// Start begins the scan at this annotation instead of the first one.
	Start *annotation.Annotation
	// Anchored tries only the start position of Start (or the first one).
	Anchored bool
}

type instance struct {
	state    *State
	ann      *annotation.Annotation
	origin   int
	regs     Registers
	bindings VariableBindings
	// NFA only: states visited through epsilon arcs since the last
	// consumed annotation, and whether anything was consumed yet.
	visited  *bitset.BitSet
	consumed bool
	prevEnd  Offset
}

type matcher struct {
	a     *Automaton
	input *annotation.List
	opts  MatchOptions
	stack []*instance
	found []*Match
}

// Match scans input for matches. Candidates from one start position are
// ranked and, unless AllMatches is set, the scan stops at the first start
// position that produced a match. The context is checked once per explored
// instance.
func (a *Automaton) Match(ctx context.Context, input *annotation.List, opts MatchOptions) ([]*Match, error) {
	m := &matcher{a: a, input: input, opts: opts}
	ann := opts.Start
	if ann == nil {
		ann = input.First(a.dir, a.filter)
	}

	var result []*Match
	initAnns := make(map[*annotation.Annotation]bool)
	for ann != nil {
		m.stack = m.stack[:0]
		m.found = nil
		ann = m.initialize(ann, NewRegisters(a.registerCount), initAnns)

		for len(m.stack) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			inst := m.stack[len(m.stack)-1]
			m.stack = m.stack[:len(m.stack)-1]
			if a.deterministic {
				m.step(inst)
				continue
			}
			m.stepNondeterministic(inst)
			if !opts.AllMatches && len(m.found) > 0 {
				break
			}
		}

		if len(m.found) > 0 {
			if a.deterministic {
				slices.SortStableFunc(m.found, m.rank)
			} else {
				slices.SortStableFunc(m.found, func(x, y *Match) int {
					if c := m.byOrigin(x, y); c != 0 {
						return c
					}
					return x.Priority - y.Priority
				})
			}
			if !opts.AllMatches {
				return m.found[:1], nil
			}
			result = append(result, m.found...)
		}
		if opts.Anchored {
			break
		}
	}
	return result, nil
}

// byOrigin puts candidates starting earlier in scan order first. Anchored
// scans seed offsets behind optional start annotations.
func (m *matcher) byOrigin(x, y *Match) int {
	if m.a.dir == annotation.RightToLeft {
		return y.origin - x.origin
	}
	return x.origin - y.origin
}

// rank orders DFA candidates: earliest start first, then expression
// priority, then lazy states before greedy ones; lazy candidates prefer the
// earliest, greedy ones the latest.
func (m *matcher) rank(x, y *Match) int {
	if c := m.byOrigin(x, y); c != 0 {
		return c
	}
	if x.Priority != y.Priority {
		return x.Priority - y.Priority
	}
	if x.Lazy != y.Lazy {
		if x.Lazy {
			return -1
		}
		return 1
	}
	if x.Lazy {
		return x.serial - y.serial
	}
	return y.serial - x.serial
}

func (m *matcher) offsetAfter(ann *annotation.Annotation) (*annotation.Annotation, Offset) {
	dir := m.a.dir
	next := ann.NextNonOverlapping(dir, m.a.filter)
	if next != nil {
		return next, at(next.Span.GetStart(dir))
	}
	return nil, at(m.input.Last(dir, m.a.filter).Span.GetEnd(dir))
}

// initialize pushes one start instance per annotation at ann's start
// offset. In anchored scans, optional annotations there also seed the
// offsets behind them; unanchored scans reach those offsets on their own.
// It returns the first annotation at a later start offset.
func (m *matcher) initialize(ann *annotation.Annotation, regs Registers, initAnns map[*annotation.Annotation]bool) *annotation.Annotation {
	dir, filter := m.a.dir, m.a.filter
	offset := ann.Span.GetStart(dir)
	seeded := regs.Clone()
	apply(seeded, regs, m.a.initializers, at(offset), Offset{})

	for x := ann; m.opts.Anchored && x != nil && x.Span.GetStart(dir) == offset; x = x.Next(dir, filter) {
		if !x.Optional {
			continue
		}
		if next := x.NextNonOverlapping(dir, filter); next != nil {
			m.initialize(next, regs, initAnns)
		}
	}

	for ; ann != nil && ann.Span.GetStart(dir) == offset; ann = ann.Next(dir, filter) {
		if initAnns[ann] {
			continue
		}
		initAnns[ann] = true
		m.push(&instance{
			state:    m.a.start,
			ann:      ann,
			origin:   offset,
			regs:     seeded.Clone(),
			bindings: VariableBindings{},
			visited:  m.visitedFrom(m.a.start),
		})
	}
	return ann
}

func (m *matcher) visitedFrom(s *State) *bitset.BitSet {
	if m.a.deterministic {
		return nil
	}
	v := bitset.New(uint(len(m.a.states)))
	v.Set(uint(s.Index))
	return v
}

func (m *matcher) push(inst *instance) {
	m.stack = append(m.stack, inst)
}

func (m *matcher) step(inst *instance) {
	for _, arc := range inst.state.Arcs {
		b := inst.bindings.Clone()
		if arc.Condition.IsMatch(inst.ann, b) {
			m.advance(inst, arc, b, inst.ann, inst.ann.Span.GetEnd(m.a.dir))
		}
	}
}

// stepNondeterministic pushes arcs in reverse priority order so the
// highest-priority arc is explored first.
func (m *matcher) stepNondeterministic(inst *instance) {
	arcs := inst.state.Arcs
	for i := len(arcs) - 1; i >= 0; i-- {
		arc := arcs[i]
		if arc.IsEpsilon() {
			if !inst.visited.Test(uint(arc.Target)) {
				m.epsilon(inst, arc)
			}
			continue
		}
		if inst.ann == nil {
			continue
		}
		b := inst.bindings.Clone()
		if arc.Condition.IsMatch(inst.ann, b) {
			m.advance(inst, arc, b, inst.ann, inst.ann.Span.GetEnd(m.a.dir))
		}
	}
}

// advance follows a consuming arc that matched ann. end is the end of the
// consumed stretch; optional annotations after ann are skipped with the
// same end.
func (m *matcher) advance(inst *instance, arc *Arc, b VariableBindings, ann *annotation.Annotation, end int) {
	dir, filter := m.a.dir, m.a.filter
	next, nextOffset := m.offsetAfter(ann)
	endOffset := at(end)

	regs := inst.regs.Clone()
	apply(regs, inst.regs, arc.Commands, nextOffset, endOffset)
	target := m.a.states[arc.Target]
	m.accept(target, regs, b, inst.origin)

	if next == nil {
		if !m.a.deterministic {
			m.push(&instance{state: target, origin: inst.origin, regs: regs, bindings: b, visited: m.visitedFrom(target), consumed: true, prevEnd: endOffset})
		}
		return
	}

	for x := next; x != nil && x.Span.GetStart(dir) == nextOffset.Value; x = x.Next(dir, filter) {
		if x.Optional {
			m.advance(inst, arc, b, x, end)
		}
	}
	for x := next; x != nil && x.Span.GetStart(dir) == nextOffset.Value; x = x.Next(dir, filter) {
		m.push(&instance{
			state:    target,
			ann:      x,
			origin:   inst.origin,
			regs:     regs.Clone(),
			bindings: b,
			visited:  m.visitedFrom(target),
			consumed: true,
			prevEnd:  endOffset,
		})
	}
}

// epsilon follows an NFA epsilon arc without consuming. Tags record the
// start of the pending annotation and the end of the last consumed one.
func (m *matcher) epsilon(inst *instance, arc *Arc) {
	var start Offset
	if inst.ann != nil {
		start = at(inst.ann.Span.GetStart(m.a.dir))
	} else {
		start = at(m.input.Last(m.a.dir, m.a.filter).Span.GetEnd(m.a.dir))
	}
	regs := inst.regs
	if arc.Tag != NoTag || len(arc.Commands) > 0 {
		regs = inst.regs.Clone()
		cmds := arc.Commands
		if arc.Tag != NoTag {
			cmds = []TagMapCommand{{Dest: arc.Tag, Src: CurrentPosition}}
		}
		apply(regs, inst.regs, cmds, start, inst.prevEnd)
	}

	target := m.a.states[arc.Target]
	if inst.consumed {
		m.accept(target, regs, inst.bindings, inst.origin)
	}
	visited := inst.visited.Clone()
	visited.Set(uint(target.Index))
	m.push(&instance{
		state:    target,
		ann:      inst.ann,
		origin:   inst.origin,
		regs:     regs,
		bindings: inst.bindings,
		visited:  visited,
		consumed: inst.consumed,
		prevEnd:  inst.prevEnd,
	})
}

func (m *matcher) accept(target *State, regs Registers, b VariableBindings, origin int) {
	if !target.accepting {
		return
	}
	infos := target.AcceptInfos
	if len(infos) == 0 {
		infos = []AcceptInfo{{Finishers: target.Finishers}}
	}
	for _, info := range infos {
		final := regs
		if len(info.Finishers) > 0 {
			final = regs.Clone()
			apply(final, regs, info.Finishers, Offset{}, Offset{})
		}
		cand := &Match{
			ID:        info.ID,
			Registers: final,
			Bindings:  b,
			Priority:  info.Priority,
			Lazy:      target.lazy,
			origin:    origin,
			serial:    len(m.found),
		}
		if info.Acceptor == nil || info.Acceptor.Accept(m.input, cand) {
			m.found = append(m.found, cand)
		}
	}
}
