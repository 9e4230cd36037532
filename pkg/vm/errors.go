// Package vm - error handling with stack traces
package vm

import (
	"fmt"
	"strings"
)

// ErrorKind tags a RuntimeError with the category of failure, mirroring
// the error-kind prefixes printed alongside the message.
type ErrorKind string

const (
	ValueError    ErrorKind = "ValueError"
	ArgumentError ErrorKind = "ArgumentError"
	FrameError    ErrorKind = "FrameError"
	CallError     ErrorKind = "CallError"
)

// StackFrame captures one call frame's position at the moment a runtime
// error was raised: the function it belongs to and the source line its
// instruction pointer (already decremented past the failing opcode) maps
// to.
type StackFrame struct {
	Name       string
	SourceLine int
}

// RuntimeError is raised by the VM's dispatch loop. It carries an error-kind tag,
// a message, and a snapshot of the call-frame stack at the moment of
// failure, top frame first.
type RuntimeError struct {
	Kind       ErrorKind
	Message    string
	StackTrace []StackFrame
}

// Error formats the error the way the VM prints it to stderr: an error-kind
// prefix and message, then one "[line L] in <name>" line per frame, walked
// top-to-bottom (innermost call first).
func (e *RuntimeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)
	for _, frame := range e.StackTrace {
		name := frame.Name
		if name == "" {
			name = "script"
		}
		fmt.Fprintf(&b, "\n[line %d] in %s", frame.SourceLine, name)
	}
	return b.String()
}

func newRuntimeError(kind ErrorKind, message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: message, StackTrace: stack}
}
