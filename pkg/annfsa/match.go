package annfsa

import (
	"context"
	"fmt"
	"strings"

	"github.com/KromDaniel/annfsa/annotation"
	"github.com/KromDaniel/annfsa/feature"
	"github.com/KromDaniel/annfsa/internal/compiler"
	"github.com/KromDaniel/annfsa/internal/fsa"
)

// PatternMatch is a reported match.
type PatternMatch struct {
	// Span covers the whole match, in absolute offsets
	Span annotation.Span
	// ID is the dot-joined path of the matched expression ("" for plain
	// patterns)
	ID string
	// ExpressionPath is ID split into expression names
	ExpressionPath []string
	// Groups holds the participating capture groups inside Span
	Groups map[string]annotation.Span
	// Bindings holds the pattern variables bound by the match
	Bindings VariableBindings
}

// Group returns the span captured by name.
func (m *PatternMatch) Group(name string) (annotation.Span, bool) {
	s, ok := m.Groups[name]
	return s, ok
}

func (m *PatternMatch) String() string {
	var b strings.Builder
	if m.ID != "" {
		b.WriteString(m.ID)
	}
	b.WriteString(m.Span.String())
	if len(m.Bindings) > 0 {
		b.WriteString(m.Bindings.String())
	}
	return b.String()
}

func (p *Pattern) convert(m *fsa.Match) *PatternMatch {
	pm := &PatternMatch{ID: m.ID, Bindings: m.Bindings, Groups: make(map[string]annotation.Span)}
	if m.ID != "" {
		pm.ExpressionPath = strings.Split(m.ID, compiler.PathSeparator)
	}
	if start, end, ok := p.fsa.GetOffsets(Entire, m.Registers); ok {
		pm.Span = annotation.Span{Start: start, End: end}
	}
	for _, g := range p.GroupNames() {
		start, end, ok := p.fsa.GetOffsets(g, m.Registers)
		if !ok {
			continue
		}
		span := annotation.Span{Start: start, End: end}
		if pm.Span.Contains(span) {
			pm.Groups[g] = span
		}
	}
	return pm
}

// Match returns the best match at the first start position that matches,
// or nil.
func (p *Pattern) Match(ctx context.Context, input *annotation.List) (*PatternMatch, error) {
	ms, err := p.run(ctx, input, fsa.MatchOptions{})
	if err != nil || len(ms) == 0 {
		return nil, err
	}
	return ms[0], nil
}

// IsMatch reports whether the pattern matches anywhere in input.
func (p *Pattern) IsMatch(ctx context.Context, input *annotation.List) (bool, error) {
	m, err := p.Match(ctx, input)
	return m != nil, err
}

// AllMatches returns every match at every start position, ranked within
// each start position.
func (p *Pattern) AllMatches(ctx context.Context, input *annotation.List) ([]*PatternMatch, error) {
	return p.run(ctx, input, fsa.MatchOptions{AllMatches: true})
}

// MatchAt returns the best match starting exactly at start, or nil. start
// must belong to input.
func (p *Pattern) MatchAt(ctx context.Context, input *annotation.List, start *annotation.Annotation) (*PatternMatch, error) {
	if !input.Contains(start) {
		return nil, fmt.Errorf("start annotation %s does not belong to the input", start)
	}
	ms, err := p.run(ctx, input, fsa.MatchOptions{Start: start, Anchored: true})
	if err != nil || len(ms) == 0 {
		return nil, err
	}
	return ms[0], nil
}

func (p *Pattern) run(ctx context.Context, input *annotation.List, opts fsa.MatchOptions) ([]*PatternMatch, error) {
	if p.anchored {
		marked := markEdges(input, p.fsa.Filter())
		if opts.Start != nil {
			opts.Start = marked.Get(annotation.LeftToRight, opts.Start.Index(annotation.LeftToRight))
		}
		input = marked
	}
	raw, err := p.fsa.Match(ctx, input, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*PatternMatch, len(raw))
	for i, m := range raw {
		out[i] = p.convert(m)
	}
	return out, nil
}

// markEdges copies input with the leftmost and rightmost annotations
// flagged for anchored constraints. Annotations behind optional edge
// annotations are edges too.
func markEdges(input *annotation.List, filter annotation.Filter) *annotation.List {
	extra := make(map[*annotation.Annotation]annotation.Features)
	markFrom(input.First(annotation.LeftToRight, filter), annotation.LeftToRight, filter, feature.AnchorLeft, extra)
	markFrom(input.First(annotation.RightToLeft, filter), annotation.RightToLeft, filter, feature.AnchorRight, extra)
	return input.WithFeatures(extra)
}

func markFrom(first *annotation.Annotation, dir annotation.Direction, filter annotation.Filter, name string, extra map[*annotation.Annotation]annotation.Features) {
	if first == nil {
		return
	}
	offset := first.Span.GetStart(dir)
	for x := first; x != nil && x.Span.GetStart(dir) == offset; x = x.Next(dir, filter) {
		f, ok := extra[x]
		if !ok {
			f = annotation.Features{}
			extra[x] = f
		}
		if f[name] == feature.Anchored {
			continue
		}
		f[name] = feature.Anchored
		if x.Optional {
			markFrom(x.NextNonOverlapping(dir, filter), dir, filter, name, extra)
		}
	}
}
