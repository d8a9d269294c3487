// Package lexicon builds annotation lists from plain text using a word and
// phrase lexicon.
package lexicon

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/coregx/ahocorasick"
	"golang.org/x/exp/slices"

	"github.com/KromDaniel/annfsa/annotation"
)

// ErrEmptyEntry indicates a lexicon entry without words or type.
var ErrEmptyEntry = errors.New("empty lexicon entry")

// Entry is one lexicon item. A Phrase of several words yields one
// annotation spanning all of them.
type Entry struct {
	Phrase   string
	Type     string
	Features annotation.Features
	// Optional entries may be skipped by patterns.
	Optional bool
}

// Gazetteer annotates token sequences. Offsets are token indices.
type Gazetteer struct {
	words   map[string][]Entry
	phrases map[string][]Entry
	ac      *ahocorasick.Automaton
	longest int
	unknown string
}

// Option configures a Gazetteer.
type Option func(*Gazetteer)

// WithUnknown annotates tokens missing from the lexicon with type typ.
// By default they are left unannotated.
func WithUnknown(typ string) Option {
	return func(g *Gazetteer) { g.unknown = typ }
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// New builds a gazetteer. Multiword phrases are located with an
// Aho-Corasick automaton; single words by lookup.
func New(entries []Entry, opts ...Option) (*Gazetteer, error) {
	g := &Gazetteer{
		words:   make(map[string][]Entry),
		phrases: make(map[string][]Entry),
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, e := range entries {
		key := normalize(e.Phrase)
		if key == "" || e.Type == "" {
			return nil, fmt.Errorf("%w: %q", ErrEmptyEntry, e.Phrase)
		}
		if n := len(strings.Fields(key)); n > 1 {
			g.phrases[key] = append(g.phrases[key], e)
			if n > g.longest {
				g.longest = n
			}
		} else {
			g.words[key] = append(g.words[key], e)
		}
	}
	if len(g.phrases) == 0 {
		return g, nil
	}

	keys := make([]string, 0, len(g.phrases))
	for k := range g.phrases {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	builder := ahocorasick.NewBuilder()
	for _, k := range keys {
		builder.AddPattern([]byte(k))
	}
	ac, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build phrase automaton: %w", err)
	}
	g.ac = ac
	return g, nil
}

// Tokenize splits text into lower-cased words. Punctuation is dropped.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
}

// Annotate tokenizes text and annotates it.
func (g *Gazetteer) Annotate(text string) *annotation.List {
	return g.AnnotateTokens(Tokenize(text))
}

// AnnotateTokens annotates an already tokenized sequence. Token i spans
// [i, i+1).
func (g *Gazetteer) AnnotateTokens(tokens []string) *annotation.List {
	lower := make([]string, len(tokens))
	for i, tok := range tokens {
		lower[i] = strings.ToLower(tok)
	}
	tokens = lower

	var anns []*annotation.Annotation
	emit := func(entries []Entry, start, end int) {
		for _, e := range entries {
			a := annotation.New(e.Type, start, end, e.Features.Clone())
			a.Optional = e.Optional
			anns = append(anns, a)
		}
	}

	for i, tok := range tokens {
		entries, ok := g.words[tok]
		if !ok && g.unknown != "" {
			entries = []Entry{{Type: g.unknown}}
		}
		emit(entries, i, i+1)
	}

	if g.ac != nil && len(tokens) > 1 {
		g.findPhrases(tokens, emit)
	}
	return annotation.NewList(anns...)
}

// findPhrases locates token starts where some phrase occurs and emits
// every phrase beginning at that token.
func (g *Gazetteer) findPhrases(tokens []string, emit func([]Entry, int, int)) {
	haystack := []byte(strings.Join(tokens, " "))
	starts := make(map[int]int, len(tokens))
	pos := 0
	for i, tok := range tokens {
		starts[pos] = i
		pos += len(tok) + 1
	}

	for at := 0; at < len(haystack); {
		m := g.ac.Find(haystack, at)
		if m == nil {
			return
		}
		if first, ok := starts[m.Start]; ok {
			for last := first + 2; last <= len(tokens) && last-first <= g.longest; last++ {
				if entries, ok := g.phrases[strings.Join(tokens[first:last], " ")]; ok {
					emit(entries, first, last)
				}
			}
		}
		next := m.Start + 1
		for next < len(haystack) {
			if _, ok := starts[next]; ok {
				break
			}
			next++
		}
		at = next
	}
}
