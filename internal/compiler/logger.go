package compiler

import (
	"fmt"
	"io"
	"os"
)

// Logger writes verbose diagnostics while a pattern is compiled and
// determinized. Lines are tagged with the pattern name. A nil Logger
// discards everything.
type Logger struct {
	out     io.Writer
	pattern string
}

// NewLogger returns a Logger writing to w, or to os.Stderr when w is nil.
// A disabled Logger is nil.
func NewLogger(enabled bool, w io.Writer) *Logger {
	if !enabled {
		return nil
	}
	if w == nil {
		w = os.Stderr
	}
	return &Logger{out: w}
}

// For returns a Logger tagging its lines with pattern.
func (l *Logger) For(pattern string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{out: l.out, pattern: pattern}
}

func (l *Logger) prefix() string {
	if l.pattern == "" {
		return "[annfsa]"
	}
	return "[annfsa:" + l.pattern + "]"
}

// Log prints a formatted line.
func (l *Logger) Log(format string, args ...interface{}) {
	if l == nil {
		return
	}
	fmt.Fprintf(l.out, l.prefix()+" "+format+"\n", args...)
}

// Section prints a header separating construction phases.
func (l *Logger) Section(name string) {
	if l == nil {
		return
	}
	fmt.Fprintf(l.out, "\n%s === %s ===\n", l.prefix(), name)
}

// Enabled reports whether l writes anything.
func (l *Logger) Enabled() bool {
	return l != nil
}
