package compiler

import "strings"

// CompileError wraps every diagnostic produced during one Compile call.
// Individual messages are already fully formatted ("[line L] Error ...");
// Error joins them for callers that only want a single string.
type CompileError struct {
	Messages []string
}

func (e *CompileError) Error() string {
	return strings.Join(e.Messages, "\n")
}
