package compiler

import (
	"errors"
	"fmt"
)

// Common compilation errors
var (
	// ErrInvalidQuantifier indicates malformed repetition bounds
	ErrInvalidQuantifier = errors.New("invalid quantifier bounds")

	// ErrInvalidNode indicates a malformed pattern node
	ErrInvalidNode = errors.New("invalid pattern node")

	// ErrMixedExpression indicates an expression mixing sub-expressions with other nodes
	ErrMixedExpression = errors.New("expression mixes sub-expressions and plain nodes")

	// ErrAnchor indicates an anchor that cannot be attached to a constraint
	ErrAnchor = errors.New("invalid anchor")
)

// CompileError wraps compilation errors with the pattern name
type CompileError struct {
	Pattern string
	Err     error
}

// Error implements the error interface
func (e *CompileError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("pattern compilation failed for %q: %v", e.Pattern, e.Err)
	}
	return fmt.Sprintf("pattern compilation failed: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *CompileError) Unwrap() error {
	return e.Err
}
