package codegen

import (
	"fmt"
	"go/format"
	"os"

	"github.com/dave/jennifer/jen"

	"github.com/KromDaniel/annfsa/internal/fsa"
)

// Config controls table generation.
type Config struct {
	Package string
	// Name prefixes every declared identifier.
	Name string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Package == "" {
		return fmt.Errorf("package name is required")
	}
	if c.Name == "" {
		return fmt.Errorf("table name is required")
	}
	return nil
}

type generator struct {
	cfg  Config
	a    *fsa.Automaton
	file *jen.File
	name string
}

// GenerateTables renders a as a Go file declaring its states, arcs,
// register commands and capture groups as static tables. Conditions are
// emitted by key and display string; they are not executable.
func GenerateTables(a *fsa.Automaton, cfg Config) (*jen.File, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &generator{
		cfg:  cfg,
		a:    a,
		file: jen.NewFile(cfg.Package),
		name: Identifier(cfg.Name),
	}
	g.file.HeaderComment("Code generated by annfsa. DO NOT EDIT.")
	g.types()
	g.constants()
	g.tables()
	return g.file, nil
}

// Save writes f to path and gofmt's the result.
func Save(f *jen.File, path string) error {
	if err := f.Save(path); err != nil {
		return fmt.Errorf("failed to save generated code: %w", err)
	}
	if err := formatFile(path); err != nil {
		return fmt.Errorf("failed to format generated code: %w", err)
	}
	return nil
}

func formatFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	formatted, err := format.Source(src)
	if err != nil {
		return err
	}

	return os.WriteFile(path, formatted, 0644)
}

func (g *generator) id(suffix string) string {
	return g.name + suffix
}

func (g *generator) types() {
	g.file.Commentf("%s copies register Src into Dest. Src %s records the current position, %s clears Dest.",
		g.id(CommandTypeName), g.id(CurrentPositionName), g.id(UnsetName))
	g.file.Type().Id(g.id(CommandTypeName)).Struct(
		jen.Id("Dest").Int(),
		jen.Id("Src").Int(),
	)

	g.file.Commentf("%s is a transition. An empty ConditionKey marks an epsilon arc.", g.id(ArcTypeName))
	g.file.Type().Id(g.id(ArcTypeName)).Struct(
		jen.Id("Target").Int(),
		jen.Id("ConditionKey").String(),
		jen.Id("Label").String(),
		jen.Id("Tag").Int(),
		jen.Id("Priority").Int(),
		jen.Id("Commands").Index().Id(g.id(CommandTypeName)),
	)

	g.file.Commentf("%s is one candidate produced by an accepting state.", g.id(AcceptTypeName))
	g.file.Type().Id(g.id(AcceptTypeName)).Struct(
		jen.Id("ID").String(),
		jen.Id("Finishers").Index().Id(g.id(CommandTypeName)),
	)

	g.file.Commentf("%s is one automaton state.", g.id(StateTypeName))
	g.file.Type().Id(g.id(StateTypeName)).Struct(
		jen.Id("Accepting").Bool(),
		jen.Id("Lazy").Bool(),
		jen.Id("Accepts").Index().Id(g.id(AcceptTypeName)),
		jen.Id("Finishers").Index().Id(g.id(CommandTypeName)),
		jen.Id("Arcs").Index().Id(g.id(ArcTypeName)),
	)
}

func (g *generator) constants() {
	g.file.Const().Defs(
		jen.Id(g.id(CurrentPositionName)).Op("=").Lit(fsa.CurrentPosition),
		jen.Id(g.id(UnsetName)).Op("=").Lit(fsa.Unset),
		jen.Id(g.id(StartName)).Op("=").Lit(g.a.StartState().Index),
		jen.Id(g.id(RegisterCountName)).Op("=").Lit(g.a.RegisterCount()),
		jen.Id(g.id(DirectionName)).Op("=").Lit(g.a.Direction().String()),
		jen.Id(g.id(DeterministicName)).Op("=").Lit(g.a.IsDeterministic()),
	)
}

func (g *generator) commands(cmds []fsa.TagMapCommand) jen.Code {
	values := make([]jen.Code, len(cmds))
	for i, c := range cmds {
		values[i] = jen.Values(jen.Lit(c.Dest), jen.Lit(c.Src))
	}
	return jen.Index().Id(g.id(CommandTypeName)).Values(values...)
}

func (g *generator) arc(arc *fsa.Arc) jen.Code {
	key, label := "", "ε"
	if !arc.IsEpsilon() {
		key, label = arc.Condition.Key(), arc.Condition.String()
	}
	d := jen.Dict{
		jen.Id("Target"): jen.Lit(arc.Target),
		jen.Id("Label"):  jen.Lit(label),
		jen.Id("Tag"):    jen.Lit(arc.Tag),
	}
	if key != "" {
		d[jen.Id("ConditionKey")] = jen.Lit(key)
	}
	if arc.Priority != 0 {
		d[jen.Id("Priority")] = jen.Lit(arc.Priority)
	}
	if len(arc.Commands) > 0 {
		d[jen.Id("Commands")] = g.commands(arc.Commands)
	}
	return jen.Values(d)
}

func (g *generator) state(s *fsa.State) jen.Code {
	d := jen.Dict{}
	if s.IsAccepting() {
		d[jen.Id("Accepting")] = jen.True()
		accepts := make([]jen.Code, len(s.AcceptInfos))
		for i, info := range s.AcceptInfos {
			ad := jen.Dict{jen.Id("ID"): jen.Lit(info.ID)}
			if len(info.Finishers) > 0 {
				ad[jen.Id("Finishers")] = g.commands(info.Finishers)
			}
			accepts[i] = jen.Values(ad)
		}
		d[jen.Id("Accepts")] = jen.Index().Id(g.id(AcceptTypeName)).Values(accepts...)
	}
	if s.IsLazy() {
		d[jen.Id("Lazy")] = jen.True()
	}
	if len(s.Finishers) > 0 {
		d[jen.Id("Finishers")] = g.commands(s.Finishers)
	}
	if len(s.Arcs) > 0 {
		arcs := make([]jen.Code, len(s.Arcs))
		for i, arc := range s.Arcs {
			arcs[i] = jen.Line().Add(g.arc(arc))
		}
		arcs = append(arcs, jen.Line())
		d[jen.Id("Arcs")] = jen.Index().Id(g.id(ArcTypeName)).Values(arcs...)
	}
	return jen.Comment(StateName(s.Index)).Line().Values(d)
}

func (g *generator) tables() {
	states := g.a.States()
	values := make([]jen.Code, 0, len(states)+1)
	for _, s := range states {
		values = append(values, jen.Line().Add(g.state(s)))
	}
	values = append(values, jen.Line())

	groups := make([]jen.Code, 0, len(g.a.GroupNames()))
	for _, name := range g.a.GroupNames() {
		groups = append(groups, jen.Lit(name))
	}

	g.file.Commentf("%s[i] spans registers 2i (start) and 2i+1 (end).", g.id(GroupsName))
	g.file.Var().Defs(
		jen.Id(g.id(StatesName)).Op("=").Index().Id(g.id(StateTypeName)).Values(values...),
		jen.Id(g.id(InitializersName)).Op("=").Add(g.commands(g.a.Initializers())),
		jen.Id(g.id(GroupsName)).Op("=").Index().String().Values(groups...),
	)
}
