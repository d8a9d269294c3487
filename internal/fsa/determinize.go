package fsa

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/exp/slices"
)

// nfaStateInfo is one NFA state inside a DFA subset, together with the
// priority of the best path that reached it and the register index bound to
// each tag seen along that path.
type nfaStateInfo struct {
	state        *State
	maxPriority  int
	lastPriority int
	tags         map[int]int
}

func (n *nfaStateInfo) compare(o *nfaStateInfo) int {
	if n.maxPriority != o.maxPriority {
		return n.maxPriority - o.maxPriority
	}
	return n.lastPriority - o.lastPriority
}

func (n *nfaStateInfo) less(o *nfaStateInfo) bool {
	return n.compare(o) < 0
}

func byDest(x, y TagMapCommand) int {
	return x.Dest - y.Dest
}

func (n *nfaStateInfo) hasConsumingArc() bool {
	for _, arc := range n.state.Arcs {
		if !arc.IsEpsilon() {
			return true
		}
	}
	return false
}

func sortedTags(tags map[int]int) []int {
	keys := make([]int, 0, len(tags))
	for t := range tags {
		keys = append(keys, t)
	}
	slices.Sort(keys)
	return keys
}

func cloneTags(tags map[int]int) map[int]int {
	c := make(map[int]int, len(tags))
	for t, i := range tags {
		c[t] = i
	}
	return c
}

// subsetState is a DFA state under construction. Two subsets are the same
// DFA state when they hold the same NFA states with the same tag keys and
// the same pattern of shared register indices per tag. The indices
// themselves may differ and are reconciled with copy commands.
type subsetState struct {
	infos []*nfaStateInfo
	key   string
	dfa   *State
}

func newSubset(infos map[int]*nfaStateInfo) *subsetState {
	s := &subsetState{infos: make([]*nfaStateInfo, 0, len(infos))}
	for _, info := range infos {
		s.infos = append(s.infos, info)
	}
	slices.SortFunc(s.infos, func(x, y *nfaStateInfo) int {
		return x.state.Index - y.state.Index
	})
	var b strings.Builder
	classes := make(map[int]map[int]int)
	for _, info := range s.infos {
		b.WriteString(strconv.Itoa(info.state.Index))
		b.WriteByte('{')
		for i, t := range sortedTags(info.tags) {
			if i > 0 {
				b.WriteByte(',')
			}
			c, ok := classes[t]
			if !ok {
				c = make(map[int]int)
				classes[t] = c
			}
			k, ok := c[info.tags[t]]
			if !ok {
				k = len(c)
				c[info.tags[t]] = k
			}
			b.WriteString(strconv.Itoa(t))
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(k))
		}
		b.WriteString("};")
	}
	s.key = b.String()
	return s
}

func (s *subsetState) has(tag, idx int) bool {
	for _, info := range s.infos {
		if i, ok := info.tags[tag]; ok && i == idx {
			return true
		}
	}
	return false
}

func (s *subsetState) best() *nfaStateInfo {
	best := s.infos[0]
	for _, info := range s.infos[1:] {
		if info.less(best) {
			best = info
		}
	}
	return best
}

type determinizer struct {
	a         *Automaton
	nfa       []*State
	registers map[[2]int]int
	subsets   map[string]*subsetState
	queue     []*subsetState
	err       error
}

// Determinize converts the NFA into an equivalent tagged DFA in place.
// Priorities are marked first if MarkPriorities has not run. Calling it on
// an automaton that is already deterministic is a no-op. On failure the
// automaton is left as it was.
func (a *Automaton) Determinize() error {
	if a.deterministic {
		return nil
	}
	if !a.prioritized {
		a.MarkPriorities()
	}
	a.logger.Section("Determinize")
	a.logger.Log("NFA: %s", a.Stats())

	nfaStart := a.start
	d := &determinizer{
		a:         a,
		nfa:       a.states,
		registers: make(map[[2]int]int),
		subsets:   make(map[string]*subsetState),
	}
	if err := d.run(); err != nil {
		a.states = d.nfa
		a.start = nfaStart
		a.initializers = nil
		a.logger.Log("determinization failed: %v", err)
		return err
	}
	a.registerCount = a.nextTag + len(d.registers)
	a.deterministic = true
	a.logger.Log("DFA: %s", a.Stats())
	return nil
}

func (d *determinizer) run() error {
	a := d.a
	seed := &subsetState{infos: []*nfaStateInfo{{state: a.start, tags: map[int]int{}}}}
	start := d.closure(seed.infos, seed)

	a.states = nil
	a.start = a.CreateState()
	start.dfa = a.start

	var inits []TagMapCommand
	seen := make(map[int]bool)
	for _, info := range start.infos {
		for _, tag := range sortedTags(info.tags) {
			r := d.register(tag, info.tags[tag])
			if !seen[r] {
				seen[r] = true
				inits = append(inits, TagMapCommand{Dest: r, Src: CurrentPosition})
			}
		}
	}
	slices.SortFunc(inits, byDest)
	a.initializers = inits

	d.subsets[start.key] = start
	d.queue = append(d.queue, start)
	a.logger.Log("state %d = %s", start.dfa.Index, start.key)

	for len(d.queue) > 0 {
		cur := d.queue[0]
		d.queue = d.queue[1:]
		d.partition(cur, d.conditions(cur), 0, nil, make(map[string]bool))
		if d.err != nil {
			return d.err
		}
	}
	return nil
}

// conditions collects the distinct conditions on consuming arcs leaving cur.
func (d *determinizer) conditions(cur *subsetState) []Condition {
	var conds []Condition
	seen := make(map[string]bool)
	for _, info := range cur.infos {
		for _, arc := range info.state.Arcs {
			if arc.IsEpsilon() {
				continue
			}
			k := arc.Condition.Key()
			if !seen[k] {
				seen[k] = true
				conds = append(conds, arc.Condition)
			}
		}
	}
	return conds
}

// partition walks every positive/negated combination of conds. acc is the
// conjunction so far (nil means true); infeasible prefixes are pruned.
func (d *determinizer) partition(cur *subsetState, conds []Condition, i int, acc Condition, positive map[string]bool) {
	if d.err != nil {
		return
	}
	if i == len(conds) {
		if len(positive) > 0 {
			d.transition(cur, acc, positive)
		}
		return
	}

	c := conds[i]
	next, ok := c, true
	if acc != nil {
		next, ok = acc.Conjoin(c)
	}
	if ok {
		positive[c.Key()] = true
		d.partition(cur, conds, i+1, next, positive)
		delete(positive, c.Key())
	}

	// A condition without a closed-form negation is left out of the cell,
	// so cells may overlap.
	neg, ok := c.Negate()
	if !ok {
		d.partition(cur, conds, i+1, acc, positive)
		return
	}
	if acc != nil {
		neg, ok = acc.Conjoin(neg)
		if !ok {
			return
		}
	}
	d.partition(cur, conds, i+1, neg, positive)
}

func (d *determinizer) transition(cur *subsetState, cond Condition, positive map[string]bool) {
	var targets []*nfaStateInfo
	for _, info := range cur.infos {
		for _, arc := range info.state.Arcs {
			if arc.IsEpsilon() || !positive[arc.Condition.Key()] {
				continue
			}
			targets = append(targets, &nfaStateInfo{
				state:        d.nfa[arc.Target],
				maxPriority:  max(arc.Priority, info.maxPriority),
				lastPriority: arc.Priority,
				tags:         cloneTags(info.tags),
			})
		}
	}
	target := d.closure(targets, cur)
	if len(target.infos) == 0 {
		return
	}
	d.connect(cur, target, cond)
}

// closure expands from through epsilon arcs. A state reached again keeps the
// path with the lower (maxPriority, lastPriority). Tag arcs bind their tag to
// the smallest register index not used for that tag in prev.
func (d *determinizer) closure(from []*nfaStateInfo, prev *subsetState) *subsetState {
	infos := make(map[int]*nfaStateInfo)
	var stack []*nfaStateInfo
	for _, s := range from {
		if ex, ok := infos[s.state.Index]; ok && !s.less(ex) {
			continue
		}
		infos[s.state.Index] = s
		stack = append(stack, s)
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if infos[top.state.Index] != top {
			continue
		}
		for _, arc := range top.state.Arcs {
			if !arc.IsEpsilon() {
				continue
			}
			maxP := max(arc.Priority, top.maxPriority)
			if ex, ok := infos[arc.Target]; ok {
				if ex.maxPriority < maxP || (ex.maxPriority == maxP && ex.lastPriority <= arc.Priority) {
					continue
				}
			}
			next := &nfaStateInfo{
				state:        d.nfa[arc.Target],
				maxPriority:  maxP,
				lastPriority: arc.Priority,
				tags:         cloneTags(top.tags),
			}
			if arc.Tag != NoTag {
				next.tags[arc.Tag] = d.freeIndex(prev, arc.Tag)
			}
			infos[arc.Target] = next
			stack = append(stack, next)
		}
	}
	return newSubset(infos)
}

func (d *determinizer) freeIndex(prev *subsetState, tag int) int {
	used := bitset.New(8)
	for _, info := range prev.infos {
		if idx, ok := info.tags[tag]; ok {
			used.Set(uint(idx))
		}
	}
	i := uint(0)
	for used.Test(i) {
		i++
	}
	return int(i)
}

// register maps a (tag, index) pair to a register. Index zero is the tag's
// own register; other indices get registers past the tag range.
func (d *determinizer) register(tag, idx int) int {
	if idx == 0 {
		return tag
	}
	k := [2]int{tag, idx}
	if r, ok := d.registers[k]; ok {
		return r
	}
	r := d.a.nextTag + len(d.registers)
	d.registers[k] = r
	return r
}

func (d *determinizer) connect(cur, target *subsetState, cond Condition) {
	fresh := make(map[[2]int]bool)
	for _, info := range target.infos {
		for tag, idx := range info.tags {
			if !cur.has(tag, idx) {
				fresh[[2]int{tag, idx}] = true
			}
		}
	}

	dest, ok := d.subsets[target.key]
	if !ok {
		if len(d.a.states) >= d.a.maxStates {
			d.err = fmt.Errorf("%w: more than %d states", ErrTooManyStates, d.a.maxStates)
			return
		}
		dest = target
		dest.dfa = d.a.CreateState()
		d.finish(dest)
		d.subsets[dest.key] = dest
		d.queue = append(d.queue, dest)
		d.a.logger.Log("state %d = %s", dest.dfa.Index, dest.key)
	}

	cmds := d.commands(target, dest, fresh)
	d.a.addArc(cur.dfa, dest.dfa, &Arc{Condition: cond, Tag: NoTag, Commands: cmds, PriorityType: Normal})
}

// commands moves the register layout of target onto the layout of dest,
// recording fresh tags at the current position. Both subsets share
// registers the same way, so the moves form a permutation; NFA states
// sharing a register write it once.
func (d *determinizer) commands(target, dest *subsetState, fresh map[[2]int]bool) []TagMapCommand {
	order := make([]int, len(target.infos))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(i, j int) int {
		return target.infos[i].compare(target.infos[j])
	})

	var cmds []TagMapCommand
	written := make(map[int]bool)
	for _, i := range order {
		t, e := target.infos[i], dest.infos[i]
		for _, tag := range sortedTags(t.tags) {
			dst := d.register(tag, e.tags[tag])
			if written[dst] {
				continue
			}
			written[dst] = true
			if fresh[[2]int{tag, t.tags[tag]}] {
				cmds = append(cmds, TagMapCommand{Dest: dst, Src: CurrentPosition})
				continue
			}
			if src := d.register(tag, t.tags[tag]); src != dst {
				cmds = append(cmds, TagMapCommand{Dest: dst, Src: src})
			}
		}
	}
	slices.SortFunc(cmds, byDest)
	return cmds
}

// finish makes a new DFA state accepting when its subset holds accepting NFA
// states. AcceptInfos follow NFA priority, one per expression, each with the
// finishers of the NFA state that contributed it.
func (d *determinizer) finish(s *subsetState) {
	var accepting []*nfaStateInfo
	for _, info := range s.infos {
		if info.state.accepting {
			accepting = append(accepting, info)
		}
	}
	if len(accepting) == 0 {
		return
	}
	slices.SortStableFunc(accepting, (*nfaStateInfo).compare)

	st := s.dfa
	st.accepting = true
	seen := make(map[string]bool)
	for _, info := range accepting {
		fin := d.finishers(info)
		for _, ai := range info.state.AcceptInfos {
			if seen[ai.ID] {
				continue
			}
			seen[ai.ID] = true
			ai.Finishers = fin
			st.AcceptInfos = append(st.AcceptInfos, ai)
		}
	}
	if len(st.AcceptInfos) > 0 {
		st.Finishers = st.AcceptInfos[0].Finishers
	}
	st.lazy = d.isLazy(s)
}

// finishers moves every tag bound by info into its canonical register and
// clears the tags info never crossed; other paths of the subset may have
// written them.
func (d *determinizer) finishers(info *nfaStateInfo) []TagMapCommand {
	var cmds []TagMapCommand
	for tag := 0; tag < d.a.nextTag; tag++ {
		idx, ok := info.tags[tag]
		switch {
		case !ok:
			cmds = append(cmds, TagMapCommand{Dest: tag, Src: Unset})
		case idx != 0:
			cmds = append(cmds, TagMapCommand{Dest: tag, Src: d.register(tag, idx)})
		}
	}
	return cmds
}

// isLazy follows the best NFA state's highest-priority arcs while they are
// epsilon arcs. A subset that reaches acceptance that way and can still
// consume input prefers stopping over continuing.
func (d *determinizer) isLazy(s *subsetState) bool {
	cur := s.best().state
	seen := bitset.New(uint(len(d.nfa)))
	for !cur.accepting {
		if len(cur.Arcs) == 0 || seen.Test(uint(cur.Index)) {
			return false
		}
		seen.Set(uint(cur.Index))
		arc := cur.Arcs[0]
		for _, a := range cur.Arcs[1:] {
			if a.Priority < arc.Priority {
				arc = a
			}
		}
		if !arc.IsEpsilon() {
			return false
		}
		cur = d.nfa[arc.Target]
	}
	for _, info := range s.infos {
		if info.hasConsumingArc() {
			return true
		}
	}
	return false
}
