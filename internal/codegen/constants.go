// Package codegen exports compiled automata as Go source.
package codegen

import (
	"fmt"
	"strings"
	"unicode"
)

// Suffixes of the identifiers declared in generated files
const (
	CommandTypeName     = "Command"
	AcceptTypeName      = "Accept"
	ArcTypeName         = "Arc"
	StateTypeName       = "State"
	StatesName          = "States"
	StartName           = "Start"
	InitializersName    = "Initializers"
	GroupsName          = "Groups"
	RegisterCountName   = "RegisterCount"
	DirectionName       = "Direction"
	DeterministicName   = "Deterministic"
	CurrentPositionName = "CurrentPosition"
	UnsetName           = "Unset"
)

// StateName returns the comment label for a state.
func StateName(index int) string {
	return fmt.Sprintf("S%d", index)
}

// Identifier turns a pattern name into an exported Go identifier:
// separators are dropped and the following letter is upper-cased.
func Identifier(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, w := range words {
		b.WriteString(UpperFirst(w))
	}
	id := b.String()
	if id == "" || unicode.IsDigit(rune(id[0])) {
		id = "P" + id
	}
	return id
}

// LowerFirst converts the first character of a string to lowercase.
func LowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// UpperFirst converts the first character of a string to uppercase.
func UpperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
