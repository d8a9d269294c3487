// Package annotation provides the annotation sequence model consumed by the
// automaton matcher.
//
// An annotation is a typed, feature-bearing span over an underlying sequence
// (phonemes, words, morphemes). A List keeps annotations ordered for both
// scanning directions so the matcher can walk the sequence left-to-right or
// right-to-left with the same code.
package annotation

import (
	"cmp"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Direction is the scanning direction of a pattern.
type Direction int

const (
	// LeftToRight scans from the lowest offset to the highest.
	LeftToRight Direction = iota
	// RightToLeft scans from the highest offset to the lowest.
	RightToLeft
)

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == LeftToRight {
		return RightToLeft
	}
	return LeftToRight
}

func (d Direction) String() string {
	if d == RightToLeft {
		return "rtl"
	}
	return "ltr"
}

// ParseDirection parses "ltr" or "rtl" (case-insensitive).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "ltr", "lefttoright":
		return LeftToRight, nil
	case "rtl", "righttoleft":
		return RightToLeft, nil
	}
	return LeftToRight, fmt.Errorf("unknown direction %q", s)
}

// Span is a half-open offset range [Start, End).
type Span struct {
	Start int
	End   int
}

// GetStart returns the direction-relative start of the span.
func (s Span) GetStart(dir Direction) int {
	if dir == RightToLeft {
		return s.End
	}
	return s.Start
}

// GetEnd returns the direction-relative end of the span.
func (s Span) GetEnd(dir Direction) int {
	if dir == RightToLeft {
		return s.Start
	}
	return s.End
}

// Overlaps reports whether the two spans share at least one offset.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// Contains reports whether other lies entirely inside s.
func (s Span) Contains(other Span) bool {
	return s.Start <= other.Start && other.End <= s.End
}

// IsValid reports whether Start <= End.
func (s Span) IsValid() bool {
	return s.Start <= s.End
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}

// Features maps a feature name to its symbol.
type Features map[string]string

// Clone returns a copy of the feature map.
func (f Features) Clone() Features {
	c := make(Features, len(f))
	for k, v := range f {
		c[k] = v
	}
	return c
}

func (f Features) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	b.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(f[k])
	}
	b.WriteByte(']')
	return b.String()
}

// Annotation is one element of a List.
type Annotation struct {
	Type     string
	Span     Span
	Features Features
	// Optional annotations may be treated as absent by the matcher.
	Optional bool

	list *List
	pos  [2]int
}

// New creates a detached annotation.
func New(typ string, start, end int, features Features) *Annotation {
	return &Annotation{Type: typ, Span: Span{Start: start, End: end}, Features: features}
}

func (a *Annotation) String() string {
	s := a.Type + a.Span.String()
	if a.Optional {
		s += "?"
	}
	if len(a.Features) > 0 {
		s += a.Features.String()
	}
	return s
}

// Filter selects the annotations a scan may consider.
type Filter func(*Annotation) bool

// All is the filter accepting every annotation.
func All(*Annotation) bool { return true }

// List is an immutable, direction-indexed sequence of annotations.
type List struct {
	order [2][]*Annotation
}

// NewList copies the given annotations into a new list. The copies share
// feature maps with the originals; the list owns the copies.
func NewList(anns ...*Annotation) *List {
	l := &List{}
	owned := make([]*Annotation, len(anns))
	for i, a := range anns {
		c := *a
		c.list = l
		owned[i] = &c
	}

	ltr := make([]*Annotation, len(owned))
	copy(ltr, owned)
	slices.SortStableFunc(ltr, func(a, b *Annotation) int {
		if c := cmp.Compare(a.Span.Start, b.Span.Start); c != 0 {
			return c
		}
		return cmp.Compare(b.Span.End, a.Span.End)
	})

	rtl := make([]*Annotation, len(owned))
	copy(rtl, owned)
	slices.SortStableFunc(rtl, func(a, b *Annotation) int {
		if c := cmp.Compare(b.Span.End, a.Span.End); c != 0 {
			return c
		}
		return cmp.Compare(a.Span.Start, b.Span.Start)
	})

	for i, a := range ltr {
		a.pos[LeftToRight] = i
	}
	for i, a := range rtl {
		a.pos[RightToLeft] = i
	}
	l.order[LeftToRight] = ltr
	l.order[RightToLeft] = rtl
	return l
}

// Len returns the number of annotations.
func (l *List) Len() int {
	return len(l.order[LeftToRight])
}

// Annotations returns the annotations in left-to-right order.
func (l *List) Annotations() []*Annotation {
	return l.order[LeftToRight]
}

// First returns the first annotation in dir accepted by filter, or nil.
func (l *List) First(dir Direction, filter Filter) *Annotation {
	for _, a := range l.order[dir] {
		if filter == nil || filter(a) {
			return a
		}
	}
	return nil
}

// Last returns the last annotation in dir accepted by filter, or nil.
func (l *List) Last(dir Direction, filter Filter) *Annotation {
	anns := l.order[dir]
	for i := len(anns) - 1; i >= 0; i-- {
		if filter == nil || filter(anns[i]) {
			return anns[i]
		}
	}
	return nil
}

// Get returns the i-th annotation in dir.
func (l *List) Get(dir Direction, i int) *Annotation {
	return l.order[dir][i]
}

// Contains reports whether a belongs to l.
func (l *List) Contains(a *Annotation) bool {
	return a != nil && a.list == l
}

// Index returns the position of a within its list in dir.
func (a *Annotation) Index(dir Direction) int {
	return a.pos[dir]
}

// WithFeatures returns a new list in which the annotations found in extra
// carry the additional features. The receiver is left untouched.
func (l *List) WithFeatures(extra map[*Annotation]Features) *List {
	anns := make([]*Annotation, 0, l.Len())
	for _, a := range l.order[LeftToRight] {
		add, ok := extra[a]
		if !ok {
			anns = append(anns, a)
			continue
		}
		c := *a
		c.Features = a.Features.Clone()
		for k, v := range add {
			c.Features[k] = v
		}
		anns = append(anns, &c)
	}
	return NewList(anns...)
}

// Next returns the following annotation in dir accepted by filter, or nil.
func (a *Annotation) Next(dir Direction, filter Filter) *Annotation {
	anns := a.list.order[dir]
	for i := a.pos[dir] + 1; i < len(anns); i++ {
		if filter == nil || filter(anns[i]) {
			return anns[i]
		}
	}
	return nil
}

// Prev returns the preceding annotation in dir accepted by filter, or nil.
func (a *Annotation) Prev(dir Direction, filter Filter) *Annotation {
	anns := a.list.order[dir]
	for i := a.pos[dir] - 1; i >= 0; i-- {
		if filter == nil || filter(anns[i]) {
			return anns[i]
		}
	}
	return nil
}

// NextNonOverlapping returns the following annotation in dir that does not
// overlap a and is accepted by filter, or nil.
func (a *Annotation) NextNonOverlapping(dir Direction, filter Filter) *Annotation {
	anns := a.list.order[dir]
	for i := a.pos[dir] + 1; i < len(anns); i++ {
		next := anns[i]
		if !a.Span.Overlaps(next.Span) && (filter == nil || filter(next)) {
			return next
		}
	}
	return nil
}

// PrevNonOverlapping returns the preceding annotation in dir that does not
// overlap a and is accepted by filter, or nil.
func (a *Annotation) PrevNonOverlapping(dir Direction, filter Filter) *Annotation {
	anns := a.list.order[dir]
	for i := a.pos[dir] - 1; i >= 0; i-- {
		prev := anns[i]
		if !a.Span.Overlaps(prev.Span) && (filter == nil || filter(prev)) {
			return prev
		}
	}
	return nil
}
