// Package grammar loads feature systems, lexicons and patterns from YAML.
//
// A grammar file looks like:
//
//	features:
//	  type: [Det, Adj, Noun]
//	  num: [sg, pl]
//	lexicon:
//	  - {phrase: the, type: Det}
//	  - {phrase: dogs, type: Noun, features: {num: pl}}
//	patterns:
//	  - name: np
//	    root:
//	      seq:
//	        - match: {type: Det}
//	        - star: {match: {type: Adj}}
//	        - group:
//	            name: head
//	            node: {match: {type: Noun, num: $n}}
//	inputs:
//	  - the big dogs
//
// Match values are a symbol or a list of symbols. A "$name" value binds
// a pattern variable and a quoted "!sym" excludes sym.
package grammar

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/KromDaniel/annfsa/annotation"
	"github.com/KromDaniel/annfsa/feature"
	"github.com/KromDaniel/annfsa/internal/lexicon"
	"github.com/KromDaniel/annfsa/pkg/annfsa"
)

// ErrInvalidGrammar indicates a malformed grammar file.
var ErrInvalidGrammar = errors.New("invalid grammar")

func invalid(n *yaml.Node, format string, args ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrInvalidGrammar, n.Line, fmt.Sprintf(format, args...))
}

// File is a decoded grammar file.
type File struct {
	Features FeatureSpecs  `yaml:"features"`
	Lexicon  []EntrySpec   `yaml:"lexicon"`
	Patterns []PatternSpec `yaml:"patterns"`
	Inputs   []string      `yaml:"inputs"`
}

// Values is a symbol list written either as a scalar or as a sequence.
type Values []string

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (v *Values) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*v = Values{n.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return err
		}
		*v = list
		return nil
	}
	return invalid(n, "expected a symbol or a list of symbols")
}

// FeatureSpec declares a feature and its symbols.
type FeatureSpec struct {
	Name    string
	Symbols Values
}

// FeatureSpecs keeps features in declaration order.
type FeatureSpecs []FeatureSpec

// UnmarshalYAML decodes a mapping of feature name to symbols.
func (f *FeatureSpecs) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return invalid(n, "features must be a mapping")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		var syms Values
		if err := n.Content[i+1].Decode(&syms); err != nil {
			return err
		}
		*f = append(*f, FeatureSpec{Name: n.Content[i].Value, Symbols: syms})
	}
	return nil
}

// EntrySpec is a lexicon entry.
type EntrySpec struct {
	Phrase   string            `yaml:"phrase"`
	Type     string            `yaml:"type"`
	Features map[string]string `yaml:"features"`
	Optional bool              `yaml:"optional"`
}

// PatternSpec is a named pattern.
type PatternSpec struct {
	Name      string   `yaml:"name"`
	Direction string   `yaml:"direction"`
	Anchors   string   `yaml:"anchors"`
	MaxStates int      `yaml:"max_states"`
	Root      NodeSpec `yaml:"root"`
}

// Load decodes a grammar. Unknown fields are rejected.
func Load(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to decode grammar: %w", err)
	}
	return &f, nil
}

// LoadFile decodes the grammar at path.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	f, err := Load(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// System builds the feature system the grammar declares.
func (f *File) System() (*feature.System, error) {
	sys := feature.NewSystem()
	for _, spec := range f.Features {
		if _, err := sys.Add(spec.Name, spec.Symbols...); err != nil {
			return nil, err
		}
	}
	return sys, nil
}

// Gazetteer builds the lexicon annotator.
func (f *File) Gazetteer(opts ...lexicon.Option) (*lexicon.Gazetteer, error) {
	entries := make([]lexicon.Entry, len(f.Lexicon))
	for i, e := range f.Lexicon {
		entries[i] = lexicon.Entry{
			Phrase:   e.Phrase,
			Type:     e.Type,
			Features: annotation.Features(e.Features),
			Optional: e.Optional,
		}
	}
	return lexicon.New(entries, opts...)
}

// Options carries the settings shared by every pattern of a grammar.
type Options struct {
	NoDeterminize bool
	Verbose       bool
	LogOutput     io.Writer
}

// Compile compiles every pattern against sys.
func (f *File) Compile(sys *feature.System, opts Options) ([]*annfsa.Pattern, error) {
	patterns := make([]*annfsa.Pattern, 0, len(f.Patterns))
	for _, spec := range f.Patterns {
		p, err := spec.compile(sys, opts)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func parseAnchors(s string) (annfsa.Edges, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return 0, nil
	case "left":
		return annfsa.LeftEdge, nil
	case "right":
		return annfsa.RightEdge, nil
	case "both":
		return annfsa.BothEdges, nil
	}
	return 0, fmt.Errorf("%w: unknown anchors %q", ErrInvalidGrammar, s)
}

func (spec PatternSpec) compile(sys *feature.System, opts Options) (*annfsa.Pattern, error) {
	dir, err := annotation.ParseDirection(spec.Direction)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", spec.Name, err)
	}
	anchors, err := parseAnchors(spec.Anchors)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", spec.Name, err)
	}
	root, err := spec.Root.Build(sys)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", spec.Name, err)
	}
	return annfsa.Compile(sys, root, annfsa.Options{
		Name:          spec.Name,
		Direction:     dir,
		NoDeterminize: opts.NoDeterminize,
		MaxStates:     spec.MaxStates,
		Anchors:       anchors,
		Verbose:       opts.Verbose,
		LogOutput:     opts.LogOutput,
	})
}
