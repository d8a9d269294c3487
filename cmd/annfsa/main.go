package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/KromDaniel/annfsa/annotation"
	"github.com/KromDaniel/annfsa/internal/codegen"
	"github.com/KromDaniel/annfsa/internal/grammar"
	"github.com/KromDaniel/annfsa/internal/lexicon"
	"github.com/KromDaniel/annfsa/pkg/annfsa"
)

const (
	appVersion = "1.0.0"
	appName    = "annfsa"
)

// arrayFlags collects a repeatable string flag.
type arrayFlags []string

func (a *arrayFlags) String() string {
	return strings.Join(*a, ", ")
}

func (a *arrayFlags) Set(value string) error {
	*a = append(*a, value)
	return nil
}

type config struct {
	grammar  string
	inputs   arrayFlags
	patterns arrayFlags
	all      bool
	nfa      bool
	unknown  string
	dotDir   string
	genDir   string
	pkg      string
	verbose  bool
	version  bool
}

func parseFlags(args []string, stderr io.Writer) (*config, error) {
	cfg := &config{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.grammar, "grammar", "", "YAML grammar file (required)")
	fs.Var(&cfg.inputs, "input", "Text to match (repeatable, default: the grammar's inputs)")
	fs.Var(&cfg.patterns, "pattern", "Only run the named pattern (repeatable)")
	fs.BoolVar(&cfg.all, "all", false, "Report every match instead of the first")
	fs.BoolVar(&cfg.nfa, "nfa", false, "Match with the NFA instead of the determinized automaton")
	fs.StringVar(&cfg.unknown, "unknown", "", "Annotation type for words missing from the lexicon")
	fs.StringVar(&cfg.dotDir, "dot", "", "Write a GraphViz file per pattern into this directory")
	fs.StringVar(&cfg.genDir, "gen", "", "Write Go automaton tables per pattern into this directory")
	fs.StringVar(&cfg.pkg, "package", "tables", "Package name for -gen output")
	fs.BoolVar(&cfg.verbose, "v", false, "Log compilation and determinization")
	fs.BoolVar(&cfg.version, "version", false, "Print version information")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if cfg.version {
		fmt.Fprintf(stdout, "%s version %s\n", appName, appVersion)
		return nil
	}
	if cfg.grammar == "" {
		return fmt.Errorf("-grammar flag is required")
	}

	g, err := grammar.LoadFile(cfg.grammar)
	if err != nil {
		return err
	}
	sys, err := g.System()
	if err != nil {
		return fmt.Errorf("failed to build feature system: %w", err)
	}
	var lexOpts []lexicon.Option
	if cfg.unknown != "" {
		lexOpts = append(lexOpts, lexicon.WithUnknown(cfg.unknown))
	}
	gaz, err := g.Gazetteer(lexOpts...)
	if err != nil {
		return fmt.Errorf("failed to build lexicon: %w", err)
	}
	patterns, err := g.Compile(sys, grammar.Options{NoDeterminize: cfg.nfa, Verbose: cfg.verbose, LogOutput: stderr})
	if err != nil {
		return err
	}
	if patterns, err = selectPatterns(patterns, cfg.patterns); err != nil {
		return err
	}

	if cfg.dotDir != "" {
		if err := writeDot(patterns, cfg.dotDir); err != nil {
			return err
		}
	}
	if cfg.genDir != "" {
		if err := writeTables(patterns, cfg.genDir, cfg.pkg); err != nil {
			return err
		}
	}

	inputs := []string(cfg.inputs)
	if len(inputs) == 0 {
		inputs = g.Inputs
	}
	ctx := context.Background()
	for _, text := range inputs {
		fmt.Fprintf(stdout, "%s\n", text)
		anns := gaz.Annotate(text)
		for _, p := range patterns {
			ms, err := matches(ctx, p, anns, cfg.all)
			if err != nil {
				return fmt.Errorf("pattern %q: %w", p.Name(), err)
			}
			if len(ms) == 0 {
				fmt.Fprintf(stdout, "  %s: no match\n", p.Name())
				continue
			}
			for _, m := range ms {
				fmt.Fprintf(stdout, "  %s: %s\n", p.Name(), describe(m))
			}
		}
	}
	return nil
}

func selectPatterns(patterns []*annfsa.Pattern, names []string) ([]*annfsa.Pattern, error) {
	if len(names) == 0 {
		return patterns, nil
	}
	byName := make(map[string]*annfsa.Pattern, len(patterns))
	for _, p := range patterns {
		byName[p.Name()] = p
	}
	selected := make([]*annfsa.Pattern, 0, len(names))
	for _, n := range names {
		p, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown pattern %q", n)
		}
		selected = append(selected, p)
	}
	return selected, nil
}

func matches(ctx context.Context, p *annfsa.Pattern, anns *annotation.List, all bool) ([]*annfsa.PatternMatch, error) {
	if all {
		return p.AllMatches(ctx, anns)
	}
	m, err := p.Match(ctx, anns)
	if err != nil || m == nil {
		return nil, err
	}
	return []*annfsa.PatternMatch{m}, nil
}

// describe renders a match with its groups in name order.
func describe(m *annfsa.PatternMatch) string {
	parts := []string{m.String()}
	names := make([]string, 0, len(m.Groups))
	for name := range m.Groups {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		parts = append(parts, name+"="+m.Groups[name].String())
	}
	return strings.Join(parts, " ")
}

func fileName(p *annfsa.Pattern, suffix string) string {
	return codegen.LowerFirst(codegen.Identifier(p.Name())) + suffix
}

func writeDot(patterns []*annfsa.Pattern, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, p := range patterns {
		path := filepath.Join(dir, fileName(p, ".dot"))
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		err = p.WriteGraphViz(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

func writeTables(patterns []*annfsa.Pattern, dir, pkg string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, p := range patterns {
		file, err := codegen.GenerateTables(p.Automaton(), codegen.Config{Package: pkg, Name: p.Name()})
		if err != nil {
			return fmt.Errorf("pattern %q: %w", p.Name(), err)
		}
		if err := codegen.Save(file, filepath.Join(dir, fileName(p, "_tables.go"))); err != nil {
			return fmt.Errorf("pattern %q: %w", p.Name(), err)
		}
	}
	return nil
}
