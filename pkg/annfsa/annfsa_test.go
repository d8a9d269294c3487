package annfsa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/KromDaniel/annfsa/annotation"
	"github.com/KromDaniel/annfsa/feature"
)

var sys = func() *feature.System {
	s := feature.NewSystem()
	if _, err := s.Add(feature.TypeFeature, "A", "B", "C"); err != nil {
		panic(err)
	}
	if _, err := s.Add("num", "sg", "pl"); err != nil {
		panic(err)
	}
	return s
}()

func lit(typ string, cs ...feature.Constraint) *Constraint {
	c, err := sys.Condition(append([]feature.Constraint{feature.Is(feature.TypeFeature, typ)}, cs...)...)
	if err != nil {
		panic(err)
	}
	return &Constraint{Condition: c}
}

func seq(nodes ...Node) *Sequence { return &Sequence{Children: nodes} }

func plus(n Node, greedy bool) *Quantifier {
	return &Quantifier{Min: 1, Max: Infinite, Greedy: greedy, Child: n}
}

func star(n Node) *Quantifier {
	return &Quantifier{Min: 0, Max: Infinite, Greedy: true, Child: n}
}

func input(types ...string) *annotation.List {
	anns := make([]*annotation.Annotation, len(types))
	for i, t := range types {
		anns[i] = annotation.New(t, i, i+1, nil)
	}
	return annotation.NewList(anns...)
}

func mustCompile(t *testing.T, root Node, opts Options) *Pattern {
	t.Helper()
	p, err := Compile(sys, root, opts)
	if err != nil {
		t.Fatalf("Compile(%s): %v", root, err)
	}
	return p
}

// both compiles root as a DFA and as an NFA.
func both(t *testing.T, root Node, opts Options) map[string]*Pattern {
	t.Helper()
	nfa := opts
	nfa.NoDeterminize = true
	return map[string]*Pattern{
		"dfa": mustCompile(t, root, opts),
		"nfa": mustCompile(t, root, nfa),
	}
}

func match(t *testing.T, p *Pattern, in *annotation.List) *PatternMatch {
	t.Helper()
	m, err := p.Match(context.Background(), in)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	return m
}

func span(start, end int) annotation.Span {
	return annotation.Span{Start: start, End: end}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"zero", Options{}, false},
		{"rtl", Options{Direction: annotation.RightToLeft, Anchors: BothEdges}, false},
		{"bad direction", Options{Direction: 7}, true},
		{"negative max states", Options{MaxStates: -1}, true},
		{"bad anchors", Options{Anchors: 8}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		root Node
		want error
	}{
		{"max below min", &Quantifier{Min: 3, Max: 2, Child: lit("A")}, ErrInvalidQuantifier},
		{"negative min", &Quantifier{Min: -1, Max: Infinite, Child: lit("A")}, ErrInvalidQuantifier},
		{"misplaced anchor", seq(lit("A"), &Anchor{Side: Left}, lit("B")), ErrAnchor},
		{"mixed expression", &Expression{Name: "x", Children: []Node{&Expression{Name: "y", Children: []Node{lit("A")}}, lit("B")}}, ErrMixedExpression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(sys, tt.root, Options{Name: "bad"})
			if !errors.Is(err, tt.want) {
				t.Errorf("Compile() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Compile(nil, lit("A"), Options{}); err == nil {
		t.Errorf("Compile without a feature system succeeded")
	}
}

func TestStateLimit(t *testing.T) {
	root := seq(star(&Alternation{Children: []Node{lit("A"), lit("B")}}), lit("A"), lit("B"))
	_, err := Compile(sys, root, Options{Name: "explode", MaxStates: 2})
	if !errors.Is(err, ErrTooManyStates) {
		t.Fatalf("Compile() error = %v, want %v", err, ErrTooManyStates)
	}
}

func TestGreedyAndLazy(t *testing.T) {
	in := input("A", "A", "A")
	tests := []struct {
		name   string
		greedy bool
		want   annotation.Span
	}{
		{"greedy", true, span(0, 3)},
		{"lazy", false, span(0, 1)},
	}
	for _, tt := range tests {
		for kind, p := range both(t, plus(lit("A"), tt.greedy), Options{}) {
			t.Run(tt.name+"/"+kind, func(t *testing.T) {
				m := match(t, p, in)
				if m == nil || m.Span != tt.want {
					t.Errorf("Match = %v, want %s", m, tt.want)
				}
			})
		}
	}
}

func TestCaptureRebinding(t *testing.T) {
	root := seq(
		&Group{Name: "first", Child: lit("A")},
		star(&Group{Name: "rest", Child: lit("B")}),
	)
	for kind, p := range both(t, root, Options{}) {
		t.Run(kind, func(t *testing.T) {
			m := match(t, p, input("A", "B", "B"))
			if m == nil {
				t.Fatalf("no match")
			}
			want := map[string]annotation.Span{"first": span(0, 1), "rest": span(2, 3)}
			if !reflect.DeepEqual(m.Groups, want) {
				t.Errorf("Groups = %v, want %v", m.Groups, want)
			}
			if m.Span != span(0, 3) {
				t.Errorf("Span = %s, want [0,3)", m.Span)
			}
		})
	}
}

func TestGroups(t *testing.T) {
	p := mustCompile(t, seq(&Group{Name: "g", Child: lit("A")}, lit("B")), Options{})
	if got := p.GroupNames(); !reflect.DeepEqual(got, []string{"g"}) {
		t.Fatalf("GroupNames() = %v, want [g]", got)
	}
	m := match(t, p, input("C", "A", "B"))
	if m == nil {
		t.Fatalf("no match")
	}
	if s, ok := m.Group("g"); !ok || s != span(1, 2) {
		t.Errorf("Group(g) = %s, %v; want [1,2)", s, ok)
	}
	if _, ok := m.Group(Entire); ok {
		t.Errorf("Entire reported as a group")
	}
}

func TestAnchors(t *testing.T) {
	tests := []struct {
		name  string
		root  Node
		opts  Options
		input []string
		want  string
	}{
		{"start anchor at start", seq(&Anchor{Side: Left}, lit("A")), Options{}, []string{"A", "B"}, "[0,1)"},
		{"start anchor not at start", seq(&Anchor{Side: Left}, lit("A")), Options{}, []string{"B", "A"}, ""},
		{"end anchor at end", seq(lit("A"), &Anchor{Side: Right}), Options{}, []string{"B", "A"}, "[1,2)"},
		{"end anchor not at end", seq(lit("A"), &Anchor{Side: Right}), Options{}, []string{"A", "B"}, ""},
		{"anchored repetition", seq(&Anchor{Side: Left}, plus(lit("A"), true), &Anchor{Side: Right}), Options{}, []string{"A", "A", "A"}, "[0,3)"},
		{"anchored repetition fails", seq(&Anchor{Side: Left}, plus(lit("A"), true), &Anchor{Side: Right}), Options{}, []string{"A", "A", "B"}, ""},
		{"option anchors", plus(lit("A"), false), Options{Anchors: BothEdges}, []string{"A", "A"}, "[0,2)"},
		{"option anchors fail", lit("A"), Options{Anchors: LeftEdge}, []string{"B", "A"}, ""},
		{"rtl start anchor", seq(&Anchor{Side: Left}, lit("A")), Options{Direction: annotation.RightToLeft}, []string{"A", "A"}, "[0,1)"},
	}
	for _, tt := range tests {
		for kind, p := range both(t, tt.root, tt.opts) {
			t.Run(tt.name+"/"+kind, func(t *testing.T) {
				m := match(t, p, input(tt.input...))
				got := ""
				if m != nil {
					got = m.Span.String()
				}
				if got != tt.want {
					t.Errorf("Match(%v) = %q, want %q", tt.input, got, tt.want)
				}
			})
		}
	}
}

func TestOptionalAnnotations(t *testing.T) {
	x := annotation.New("A", 0, 1, nil)
	y := annotation.New("C", 0, 1, nil)
	y.Optional = true
	z := annotation.New("B", 1, 2, nil)
	in := annotation.NewList(x, y, z)

	for kind, p := range both(t, seq(lit("A"), lit("B")), Options{}) {
		t.Run(kind, func(t *testing.T) {
			m := match(t, p, in)
			if m == nil || m.Span != span(0, 2) {
				t.Errorf("Match = %v, want [0,2)", m)
			}
		})
	}

	lead := annotation.New("C", 0, 1, nil)
	lead.Optional = true
	in = annotation.NewList(lead, annotation.New("A", 1, 2, nil))
	for kind, p := range both(t, seq(&Anchor{Side: Left}, lit("A")), Options{}) {
		t.Run("anchor behind optional/"+kind, func(t *testing.T) {
			m := match(t, p, in)
			if m == nil || m.Span != span(1, 2) {
				t.Errorf("Match = %v, want [1,2)", m)
			}
		})
	}
}

func TestLeftmostBesideOptional(t *testing.T) {
	extra := annotation.New("B", 0, 1, nil)
	extra.Optional = true
	in := annotation.NewList(annotation.New("A", 0, 1, nil), extra, annotation.New("A", 1, 2, nil))
	root := &Group{Name: "g", Child: lit("A")}

	for kind, p := range both(t, root, Options{}) {
		t.Run(kind, func(t *testing.T) {
			m := match(t, p, in)
			if m == nil || m.Span != span(0, 1) {
				t.Fatalf("Match = %v, want [0,1)", m)
			}
			if g, _ := m.Group("g"); g != span(0, 1) {
				t.Errorf("g = %s, want [0,1)", g)
			}

			m, err := p.MatchAt(context.Background(), in, in.Annotations()[0])
			if err != nil {
				t.Fatal(err)
			}
			if m == nil || m.Span != span(0, 1) {
				t.Errorf("MatchAt = %v, want [0,1)", m)
			}
			all, err := p.AllMatches(context.Background(), in)
			if err != nil {
				t.Fatal(err)
			}
			if got := spanSet(all); !reflect.DeepEqual(got, []string{"[0,1)", "[1,2)"}) {
				t.Errorf("AllMatches = %v", got)
			}
		})
	}

	lead := annotation.New("C", 0, 1, nil)
	lead.Optional = true
	in = annotation.NewList(lead, annotation.New("A", 1, 2, nil))
	for kind, p := range both(t, root, Options{}) {
		t.Run("anchored behind optional/"+kind, func(t *testing.T) {
			m, err := p.MatchAt(context.Background(), in, in.Annotations()[0])
			if err != nil {
				t.Fatal(err)
			}
			if m == nil || m.Span != span(1, 2) {
				t.Errorf("MatchAt = %v, want [1,2)", m)
			}
		})
	}
}

func TestAbandonedBranchCaptures(t *testing.T) {
	tests := []struct {
		name  string
		root  Node
		input *annotation.List
		want  annotation.Span
	}{
		{
			name: "group on failed alternative",
			root: &Alternation{Children: []Node{
				seq(&Group{Name: "x", Child: lit("A")}, lit("B")),
				seq(lit("A"), lit("C")),
			}},
			input: input("A", "C"),
			want:  span(0, 2),
		},
		{
			name: "group on lower priority path",
			root: &Alternation{Children: []Node{
				&Alternation{Children: []Node{lit("C"), &Group{Name: "g2", Child: lit("C")}}},
				lit("A"),
			}},
			input: input("B", "C", "A"),
			want:  span(1, 2),
		},
	}
	for _, tt := range tests {
		for kind, p := range both(t, tt.root, Options{}) {
			t.Run(tt.name+"/"+kind, func(t *testing.T) {
				m := match(t, p, tt.input)
				if m == nil || m.Span != tt.want {
					t.Fatalf("Match = %v, want %s", m, tt.want)
				}
				if len(m.Groups) != 0 {
					t.Errorf("Groups = %v, want none", m.Groups)
				}
			})
		}
	}
}

func TestExpressions(t *testing.T) {
	var seen []string
	root := &Expression{Name: "np", Children: []Node{
		&Expression{Name: "pair", Children: []Node{lit("A"), lit("B")}},
		&Expression{Name: "single", Children: []Node{lit("C")}},
	}}
	p := mustCompile(t, root, Options{
		Acceptable: func(_ *annotation.List, m *PatternMatch) bool {
			seen = append(seen, m.ID)
			return m.ID != "np.single"
		},
	})

	m := match(t, p, input("A", "B"))
	if m == nil {
		t.Fatalf("no match")
	}
	if m.ID != "np.pair" || !reflect.DeepEqual(m.ExpressionPath, []string{"np", "pair"}) {
		t.Errorf("ID = %q, path = %v", m.ID, m.ExpressionPath)
	}
	if s, ok := m.Group("np.pair"); !ok || s != span(0, 2) {
		t.Errorf("Group(np.pair) = %s, %v; want [0,2)", s, ok)
	}
	if m := match(t, p, input("C")); m != nil {
		t.Errorf("rejected expression matched: %v", m)
	}
	if len(seen) == 0 {
		t.Errorf("Acceptable never called")
	}
}

func TestVariableBindings(t *testing.T) {
	agree := seq(lit("A", feature.Var("num", "n")), lit("B", feature.Var("num", "n")))
	tests := []struct {
		name string
		nums [2]string
		want bool
	}{
		{"agree", [2]string{"pl", "pl"}, true},
		{"disagree", [2]string{"sg", "pl"}, false},
	}
	for _, tt := range tests {
		in := annotation.NewList(
			annotation.New("A", 0, 1, annotation.Features{"num": tt.nums[0]}),
			annotation.New("B", 1, 2, annotation.Features{"num": tt.nums[1]}),
		)
		for kind, p := range both(t, agree, Options{}) {
			t.Run(tt.name+"/"+kind, func(t *testing.T) {
				m := match(t, p, in)
				if (m != nil) != tt.want {
					t.Fatalf("Match = %v, want match %v", m, tt.want)
				}
				if m != nil && m.Bindings["n"] != tt.nums[0] {
					t.Errorf("Bindings = %v, want n=%s", m.Bindings, tt.nums[0])
				}
			})
		}
	}
}

func TestMatchAt(t *testing.T) {
	p := mustCompile(t, seq(lit("A"), lit("B")), Options{Anchors: RightEdge})
	in := input("A", "B", "A", "B")
	anns := in.Annotations()

	m, err := p.MatchAt(context.Background(), in, anns[0])
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Errorf("MatchAt(0) = %v, want no match", m)
	}
	m, err = p.MatchAt(context.Background(), in, anns[2])
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Span != span(2, 4) {
		t.Errorf("MatchAt(2) = %v, want [2,4)", m)
	}
	if _, err := p.MatchAt(context.Background(), in, annotation.New("A", 0, 1, nil)); err == nil {
		t.Errorf("MatchAt with a foreign annotation succeeded")
	}
}

func TestReverse(t *testing.T) {
	root := seq(&Group{Name: "a", Child: lit("A")}, lit("B"))
	p := mustCompile(t, root, Options{Name: "ab"})
	r, err := p.Reverse()
	if err != nil {
		t.Fatal(err)
	}
	if r.Direction() != annotation.RightToLeft {
		t.Fatalf("Direction() = %s, want rtl", r.Direction())
	}
	in := input("A", "B", "A", "B")
	if m := match(t, p, in); m == nil || m.Span != span(0, 2) {
		t.Errorf("forward Match = %v, want [0,2)", m)
	}
	m := match(t, r, in)
	if m == nil || m.Span != span(2, 4) {
		t.Fatalf("reverse Match = %v, want [2,4)", m)
	}
	if s, _ := m.Group("a"); s != span(2, 3) {
		t.Errorf("reverse Group(a) = %s, want [2,3)", s)
	}
}

func TestDeterminism(t *testing.T) {
	root := seq(plus(&Alternation{Children: []Node{lit("A"), lit("B")}}, true), &Group{Name: "c", Child: lit("C")})
	in := input("A", "B", "C", "A", "C", "B", "C")
	for kind, p := range both(t, root, Options{}) {
		t.Run(kind, func(t *testing.T) {
			first, err := p.AllMatches(context.Background(), in)
			if err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 5; i++ {
				again, err := p.AllMatches(context.Background(), in)
				if err != nil {
					t.Fatal(err)
				}
				if !reflect.DeepEqual(first, again) {
					t.Fatalf("run %d differs: %v vs %v", i, again, first)
				}
			}
		})
	}
}

func TestIdempotentDeterminize(t *testing.T) {
	p := mustCompile(t, seq(star(lit("A")), lit("B")), Options{})
	before := p.Automaton().Stats()
	if err := p.Automaton().Determinize(); err != nil {
		t.Fatal(err)
	}
	if after := p.Automaton().Stats(); after != before {
		t.Errorf("Determinize on a DFA: %s, want %s", after, before)
	}
}

func TestMatchCancelled(t *testing.T) {
	p := mustCompile(t, lit("A"), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Match(ctx, input("A")); !errors.Is(err, context.Canceled) {
		t.Errorf("Match() error = %v, want %v", err, context.Canceled)
	}
}

func TestVerboseAndGraphViz(t *testing.T) {
	var log bytes.Buffer
	p := mustCompile(t, seq(lit("A"), lit("B")), Options{Name: "ab", Verbose: true, LogOutput: &log})
	if !strings.Contains(log.String(), "[annfsa:ab] === Compile ===") {
		t.Errorf("verbose output missing:\n%s", log.String())
	}
	var dot bytes.Buffer
	if err := p.WriteGraphViz(&dot); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(dot.String(), "digraph") {
		t.Errorf("GraphViz output:\n%s", dot.String())
	}
}

// randomNode builds a small pattern over A, B and C. A solid node never
// matches the empty sequence. With solid bodies every quantifier repeats a
// solid node, so the automaton has no epsilon cycles.
func randomNode(r *rand.Rand, depth int, solid, solidBodies bool) Node {
	atoms := []string{"A", "B", "C"}
	if depth == 0 || r.Intn(3) == 0 {
		return lit(atoms[r.Intn(len(atoms))])
	}
	switch r.Intn(4) {
	case 0:
		return seq(randomNode(r, depth-1, solid, solidBodies), randomNode(r, depth-1, false, solidBodies))
	case 1:
		return &Alternation{Children: []Node{
			randomNode(r, depth-1, solid, solidBodies),
			randomNode(r, depth-1, solid, solidBodies),
		}}
	case 2:
		q := &Quantifier{Min: r.Intn(2), Max: Infinite, Greedy: r.Intn(2) == 0}
		if r.Intn(2) == 0 {
			q.Max = q.Min + 1 + r.Intn(2)
		}
		if solid && q.Min == 0 {
			q.Min = 1
		}
		q.Child = randomNode(r, depth-1, solidBodies, solidBodies)
		return q
	default:
		return &Group{Name: fmt.Sprintf("g%d", r.Intn(3)), Child: randomNode(r, depth-1, solid, solidBodies)}
	}
}

// randomInput lays out up to five annotations; some offsets also carry an
// optional annotation over the same span.
func randomInput(r *rand.Rand) (*annotation.List, string) {
	types := []string{"A", "B", "C"}
	var anns []*annotation.Annotation
	var desc []string
	for i, n := 0, r.Intn(6); i < n; i++ {
		a := annotation.New(types[r.Intn(3)], i, i+1, nil)
		anns = append(anns, a)
		desc = append(desc, a.String())
		if r.Intn(4) == 0 {
			o := annotation.New(types[r.Intn(3)], i, i+1, nil)
			o.Optional = true
			anns = append(anns, o)
			desc = append(desc, o.String())
		}
	}
	return annotation.NewList(anns...), strings.Join(desc, " ")
}

func spanSet(ms []*PatternMatch) []string {
	set := map[string]bool{}
	for _, m := range ms {
		set[m.Span.String()] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// captureKey identifies a match by its span and every captured group.
func captureKey(m *PatternMatch) string {
	names := make([]string, 0, len(m.Groups))
	for g := range m.Groups {
		names = append(names, g)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(m.Span.String())
	for _, g := range names {
		fmt.Fprintf(&b, " %s=%s", g, m.Groups[g])
	}
	return b.String()
}

func TestNFADFAEquivalence(t *testing.T) {
	tests := []struct {
		name        string
		solidBodies bool
	}{
		// Quantified nullable bodies: spans only, the two automata may
		// settle empty iterations differently.
		{"nullable bodies", false},
		// Every capture the DFA reports must come from a real NFA path.
		{"captures", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rand.New(rand.NewSource(42))
			for i := 0; i < 300; i++ {
				root := randomNode(r, 3, false, tt.solidBodies)
				in, desc := randomInput(r)

				ps, err := func() (map[string]*Pattern, error) {
					dfa, err := Compile(sys, root, Options{})
					if err != nil {
						return nil, err
					}
					nfa, err := Compile(sys, root, Options{NoDeterminize: true})
					if err != nil {
						return nil, err
					}
					return map[string]*Pattern{"dfa": dfa, "nfa": nfa}, nil
				}()
				if err != nil {
					t.Fatalf("%s: %v", root, err)
				}

				var (
					spans    [2][]string
					captures [2]map[string]bool
					matched  [2]bool
					first    [2]*PatternMatch
				)
				for k, kind := range []string{"nfa", "dfa"} {
					ms, err := ps[kind].AllMatches(context.Background(), in)
					if err != nil {
						t.Fatal(err)
					}
					spans[k] = spanSet(ms)
					captures[k] = map[string]bool{}
					for _, m := range ms {
						captures[k][captureKey(m)] = true
					}
					ok, err := ps[kind].IsMatch(context.Background(), in)
					if err != nil {
						t.Fatal(err)
					}
					matched[k] = ok
					first[k] = match(t, ps[kind], in)
				}

				if !reflect.DeepEqual(spans[0], spans[1]) {
					t.Errorf("%s on %s: nfa %v, dfa %v", root, desc, spans[0], spans[1])
				}
				if matched[0] != matched[1] {
					t.Errorf("%s on %s: nfa match %v, dfa match %v", root, desc, matched[0], matched[1])
				}
				if (first[0] == nil) != (first[1] == nil) {
					t.Errorf("%s on %s: nfa Match %v, dfa Match %v", root, desc, first[0], first[1])
				} else if first[0] != nil && first[0].Span.Start != first[1].Span.Start {
					t.Errorf("%s on %s: nfa Match starts at %d, dfa at %d", root, desc, first[0].Span.Start, first[1].Span.Start)
				}
				if !tt.solidBodies {
					continue
				}
				for key := range captures[1] {
					if !captures[0][key] {
						t.Errorf("%s on %s: dfa reports %s, no nfa path does", root, desc, key)
					}
				}
			}
		})
	}
}
