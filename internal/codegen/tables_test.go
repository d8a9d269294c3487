package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/KromDaniel/annfsa/annotation"
	"github.com/KromDaniel/annfsa/internal/fsa"
)

type typeIs string

func (c typeIs) IsMatch(ann *annotation.Annotation, _ fsa.VariableBindings) bool {
	return ann.Type == string(c)
}
func (c typeIs) Negate() (fsa.Condition, bool)               { return nil, false }
func (c typeIs) Conjoin(fsa.Condition) (fsa.Condition, bool) { return nil, false }
func (c typeIs) Key() string                                 { return "type=" + string(c) }
func (c typeIs) String() string                              { return string(c) }

// buildAB returns the determinized automaton for (?<x>A) B.
func buildAB(t *testing.T) *fsa.Automaton {
	t.Helper()
	a := fsa.New(fsa.Config{})
	s1 := a.CreateState()
	a.CreateTag(a.StartState(), s1, "x", true)
	s2 := a.CreateState()
	a.AddArc(s1, s2, typeIs("A"))
	s3 := a.CreateState()
	a.CreateTag(s2, s3, "x", false)
	s4 := a.CreateState()
	a.AddArc(s3, s4, typeIs("B"))
	acc := a.CreateAcceptingState(fsa.AcceptInfo{ID: "ab"})
	a.AddEpsilon(s4, acc, fsa.Normal)
	a.MarkPriorities()
	if err := a.Determinize(); err != nil {
		t.Fatalf("Determinize() error = %v", err)
	}
	return a
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Package: "tables", Name: "ab"}, false},
		{"missing package", Config{Name: "ab"}, true},
		{"missing name", Config{Package: "tables"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateTables(t *testing.T) {
	a := buildAB(t)
	f, err := GenerateTables(a, Config{Package: "tables", Name: "a-b"})
	if err != nil {
		t.Fatalf("GenerateTables() error = %v", err)
	}
	src := fmt.Sprintf("%#v", f)

	for _, want := range []string{
		"// Code generated by annfsa. DO NOT EDIT.",
		"package tables",
		"type ABCommand struct",
		"type ABArc struct",
		"type ABState struct",
		"ABDeterministic",
		"ABRegisterCount",
		"type ABAccept struct",
		"ABUnset",
		`ConditionKey: "type=A"`,
		`ConditionKey: "type=B"`,
		`"ab"`,
		`"x"`,
		"// S0",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated source missing %q:\n%s", want, src)
		}
	}
	if strings.Contains(src, "ε") {
		t.Errorf("determinized tables contain an epsilon arc:\n%s", src)
	}
}

var epsilonLabel = regexp.MustCompile(`Label:\s+"ε"`)

func TestGenerateTablesNFA(t *testing.T) {
	a := fsa.New(fsa.Config{})
	s := a.CreateState()
	a.AddEpsilon(a.StartState(), s, fsa.Greedy)
	acc := a.CreateAcceptingState(fsa.AcceptInfo{ID: "e"})
	a.AddArc(s, acc, typeIs("A"))
	a.MarkPriorities()

	f, err := GenerateTables(a, Config{Package: "tables", Name: "nfa"})
	if err != nil {
		t.Fatalf("GenerateTables() error = %v", err)
	}
	src := fmt.Sprintf("%#v", f)
	if !epsilonLabel.MatchString(src) {
		t.Errorf("NFA tables missing epsilon arc:\n%s", src)
	}
	if !strings.Contains(src, "[]NfaCommand{}") {
		t.Errorf("NFA tables missing empty initializers:\n%s", src)
	}
}

func TestSave(t *testing.T) {
	f, err := GenerateTables(buildAB(t), Config{Package: "tables", Name: "ab"})
	if err != nil {
		t.Fatalf("GenerateTables() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "ab_tables.go")
	if err := Save(f, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "// Code generated by annfsa. DO NOT EDIT.") {
		t.Errorf("saved file does not start with the generated header:\n%s", data)
	}
}
