// Package espresso implements the Espresso (.esp) line interpreter.
package espresso

import (
	"errors"
	"fmt"
)

// Kind classifies a script failure. Every ScriptError has exactly one kind.
type Kind int

const (
	KindInvalidSyntax Kind = iota + 1
	KindUndefinedVariable
	KindInvalidIdentifier
	KindArithmetic
	KindOperator
	KindIO
	KindCancelled
)

var kindNames = map[Kind]string{
	KindInvalidSyntax:     "InvalidSyntax",
	KindUndefinedVariable: "UndefinedVariable",
	KindInvalidIdentifier: "InvalidIdentifier",
	KindArithmetic:        "ArithmeticError",
	KindOperator:          "OperatorError",
	KindIO:                "IOError",
	KindCancelled:         "Cancelled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinel errors, one per kind. A *ScriptError matches the sentinel of its
// kind with errors.Is.
var (
	ErrInvalidSyntax     = errors.New("invalid syntax")
	ErrUndefinedVariable = errors.New("undefined variable")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrArithmetic        = errors.New("arithmetic error")
	ErrOperator          = errors.New("operator error")
	ErrIO                = errors.New("console i/o error")
	ErrCancelled         = errors.New("execution cancelled")
)

var kindSentinels = map[Kind]error{
	KindInvalidSyntax:     ErrInvalidSyntax,
	KindUndefinedVariable: ErrUndefinedVariable,
	KindInvalidIdentifier: ErrInvalidIdentifier,
	KindArithmetic:        ErrArithmetic,
	KindOperator:          ErrOperator,
	KindIO:                ErrIO,
	KindCancelled:         ErrCancelled,
}

// ScriptError is the single error type produced by the interpreter.
// Line is 1-based and zero while the error has not yet been attributed to a
// program line (e.g. when returned directly by the evaluator).
type ScriptError struct {
	Kind    Kind
	Message string
	Line    int
	Source  string
	Cause   error
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is the sentinel for the error's kind.
func (e *ScriptError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Unwrap returns the underlying cause, if any.
func (e *ScriptError) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, format string, args ...interface{}) *ScriptError {
	return &ScriptError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func syntaxError(format string, args ...interface{}) *ScriptError {
	return newError(KindInvalidSyntax, format, args...)
}

// atLine attributes err to a program line. Errors that are not ScriptErrors
// become IOError, since only collaborators produce foreign errors.
func atLine(err error, lineNum int, source string) *ScriptError {
	var se *ScriptError
	if !errors.As(err, &se) {
		se = &ScriptError{Kind: KindIO, Message: err.Error(), Cause: err}
	}
	if se.Line == 0 {
		se.Line = lineNum + 1
		se.Source = source
	}
	return se
}

// KindOf returns the kind of err, or 0 when err is not a ScriptError.
func KindOf(err error) Kind {
	var se *ScriptError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}
