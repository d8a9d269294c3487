package feature

import (
	"cmp"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/exp/slices"

	"github.com/KromDaniel/annfsa/annotation"
	"github.com/KromDaniel/annfsa/internal/fsa"
)

// Constraint restricts one feature of an annotation.
type Constraint struct {
	Feature  string
	Values   []string
	Negated  bool
	Variable string
}

// Is requires the feature to hold one of values.
func Is(feature string, values ...string) Constraint {
	return Constraint{Feature: feature, Values: values}
}

// Not requires the feature to hold none of values. A missing feature
// satisfies it.
func Not(feature string, values ...string) Constraint {
	return Constraint{Feature: feature, Values: values, Negated: true}
}

// Var binds the feature's symbol to a pattern variable. Every occurrence of
// the variable within one match must see the same symbol.
func Var(feature, name string) Constraint {
	return Constraint{Feature: feature, Variable: name}
}

type varRef struct {
	feature int
	name    string
}

// term is a conjunction of per-feature symbol sets and variable bindings.
type term struct {
	sets map[int]*bitset.BitSet
	vars []varRef
}

func (t *term) featureIDs() []int {
	ids := make([]int, 0, len(t.sets))
	for id := range t.sets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (t *term) key() string {
	var b strings.Builder
	for _, id := range t.featureIDs() {
		b.WriteString(strconv.Itoa(id))
		b.WriteByte('=')
		set := t.sets[id]
		first := true
		for i, ok := set.NextSet(0); ok; i, ok = set.NextSet(i + 1) {
			if !first {
				b.WriteByte(',')
			}
			first = false
			b.WriteString(strconv.FormatUint(uint64(i), 10))
		}
		b.WriteByte(';')
	}
	for _, v := range t.vars {
		b.WriteString(strconv.Itoa(v.feature))
		b.WriteByte('$')
		b.WriteString(v.name)
		b.WriteByte(';')
	}
	return b.String()
}

func (t *term) matchSets(sys *System, ann *annotation.Annotation) bool {
	for id, set := range t.sets {
		if !set.Test(uint(sys.value(sys.features[id], ann))) {
			return false
		}
	}
	return true
}

func (t *term) bind(sys *System, ann *annotation.Annotation, b fsa.VariableBindings) bool {
	for _, v := range t.vars {
		f := sys.features[v.feature]
		val := sys.value(f, ann)
		if val == unspecified {
			return false
		}
		sym := f.symbol(val)
		if bound, ok := b[v.name]; ok {
			if bound != sym {
				return false
			}
			continue
		}
		b[v.name] = sym
	}
	return true
}

func merge(x, y *term) *term {
	t := &term{sets: make(map[int]*bitset.BitSet, len(x.sets)+len(y.sets))}
	for id, s := range x.sets {
		t.sets[id] = s
	}
	for id, s := range y.sets {
		if e, ok := t.sets[id]; ok {
			t.sets[id] = e.Intersection(s)
		} else {
			t.sets[id] = s
		}
	}
	t.vars = append(append(t.vars, x.vars...), y.vars...)
	return t
}

func product(xs, ys []*term) []*term {
	out := make([]*term, 0, len(xs)*len(ys))
	for _, x := range xs {
		for _, y := range ys {
			out = append(out, merge(x, y))
		}
	}
	return out
}

func complement(set *bitset.BitSet, f *Feature) *bitset.BitSet {
	out := bitset.New(f.domain())
	for i := uint(0); i < f.domain(); i++ {
		if !set.Test(i) {
			out.Set(i)
		}
	}
	return out
}

// normalize drops unsatisfiable terms and unconstrained sets, sorts
// variables and removes duplicate terms.
func normalize(sys *System, terms []*term) []*term {
	var out []*term
	seen := make(map[string]bool)
	for _, t := range terms {
		empty := false
		for id, set := range t.sets {
			switch {
			case set.None():
				empty = true
			case set.Count() == sys.features[id].domain():
				delete(t.sets, id)
			}
		}
		if empty {
			continue
		}
		slices.SortFunc(t.vars, func(a, b varRef) int {
			if c := cmp.Compare(a.feature, b.feature); c != 0 {
				return c
			}
			return cmp.Compare(a.name, b.name)
		})
		k := t.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	slices.SortStableFunc(out, func(a, b *term) int { return cmp.Compare(a.key(), b.key()) })
	return out
}

// Condition is a disjunction of terms over a System.
type Condition struct {
	sys   *System
	terms []*term
	key   string
}

var _ fsa.Condition = (*Condition)(nil)

func newCondition(sys *System, terms []*term) *Condition {
	keys := make([]string, len(terms))
	for i, t := range terms {
		keys[i] = t.key()
	}
	return &Condition{sys: sys, terms: terms, key: strings.Join(keys, "|")}
}

// Condition builds a single-term condition from constraints. No
// constraints yields the condition every annotation satisfies.
func (s *System) Condition(cs ...Constraint) (*Condition, error) {
	t := &term{sets: make(map[int]*bitset.BitSet)}
	for _, c := range cs {
		f, ok := s.byName[c.Feature]
		if !ok {
			return nil, &Error{Feature: c.Feature, Msg: "unknown feature"}
		}
		if c.Variable != "" {
			t.vars = append(t.vars, varRef{feature: f.id, name: c.Variable})
			continue
		}
		if len(c.Values) == 0 {
			return nil, &Error{Feature: c.Feature, Msg: "no values"}
		}
		set := bitset.New(f.domain())
		for _, v := range c.Values {
			i, ok := f.index[v]
			if !ok {
				return nil, &Error{Feature: c.Feature, Symbol: v, Msg: "unknown symbol"}
			}
			set.Set(uint(i))
		}
		if c.Negated {
			set = complement(set, f)
		}
		if e, ok := t.sets[f.id]; ok {
			set = e.Intersection(set)
		}
		t.sets[f.id] = set
	}
	terms := normalize(s, []*term{t})
	if len(terms) == 0 {
		return nil, &Error{Feature: cs[0].Feature, Msg: "constraints are unsatisfiable"}
	}
	return newCondition(s, terms), nil
}

// IsMatch reports whether some term accepts ann. Variables of the first
// accepting term are bound in bindings.
func (c *Condition) IsMatch(ann *annotation.Annotation, bindings fsa.VariableBindings) bool {
	for _, t := range c.terms {
		if !t.matchSets(c.sys, ann) {
			continue
		}
		if len(t.vars) == 0 {
			return true
		}
		trial := bindings.Clone()
		if t.bind(c.sys, ann, trial) {
			for k, v := range trial {
				bindings[k] = v
			}
			return true
		}
	}
	return false
}

// Negate returns the complement. Conditions with variables, and the
// condition accepting everything, have no closed-form negation.
func (c *Condition) Negate() (fsa.Condition, bool) {
	result := []*term{{sets: map[int]*bitset.BitSet{}}}
	for _, t := range c.terms {
		if len(t.vars) > 0 || len(t.sets) == 0 {
			return nil, false
		}
		neg := make([]*term, 0, len(t.sets))
		for _, id := range t.featureIDs() {
			neg = append(neg, &term{sets: map[int]*bitset.BitSet{
				id: complement(t.sets[id], c.sys.features[id]),
			}})
		}
		result = normalize(c.sys, product(result, neg))
		if len(result) == 0 {
			return nil, false
		}
	}
	return newCondition(c.sys, result), true
}

// Conjoin intersects two conditions of the same system. It fails when the
// result is unsatisfiable.
func (c *Condition) Conjoin(other fsa.Condition) (fsa.Condition, bool) {
	o, ok := other.(*Condition)
	if !ok || o.sys != c.sys {
		return nil, false
	}
	terms := normalize(c.sys, product(c.terms, o.terms))
	if len(terms) == 0 {
		return nil, false
	}
	return newCondition(c.sys, terms), true
}

// Key is a canonical structural identity.
func (c *Condition) Key() string { return c.key }

func (c *Condition) String() string {
	parts := make([]string, len(c.terms))
	for i, t := range c.terms {
		var fs []string
		for _, id := range t.featureIDs() {
			f := c.sys.features[id]
			var syms []string
			set := t.sets[id]
			for j, ok := set.NextSet(0); ok; j, ok = set.NextSet(j + 1) {
				syms = append(syms, f.symbol(int(j)))
			}
			fs = append(fs, f.Name+":"+strings.Join(syms, ","))
		}
		for _, v := range t.vars {
			fs = append(fs, c.sys.features[v.feature].Name+":$"+v.name)
		}
		parts[i] = "[" + strings.Join(fs, " ") + "]"
	}
	return strings.Join(parts, "|")
}
