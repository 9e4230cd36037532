package compiler

import (
	"fmt"
	"io"

	"github.com/kristofer/pythowon/pkg/scanner"
)

// parser carries the single-token lookahead and error-recovery state shared
// by every nested function compiler during one Compile call. There is
// exactly one parser per top-level compile; function bodies borrow it
// rather than starting their own, since panic-mode recovery must cross
// function boundaries the same way it crosses block boundaries.
type parser struct {
	scanner *scanner.Scanner

	current  scanner.Token
	previous scanner.Token

	hadError  bool
	panicMode bool

	errOut io.Writer
	errors []string

	// stringConstants remembers, for each identifier name interned during a
	// single compile, the constant-pool index it was last given, so that
	// repeated references to the same global or function name within one
	// chunk share one constant-pool slot (see identifierConstant).
	stringConstants map[string]int
}

func newParser(source string, errOut io.Writer) *parser {
	return &parser{
		scanner:         scanner.New(source),
		errOut:          errOut,
		stringConstants: make(map[string]int),
	}
}

func (p *parser) advance() {
	p.previous = p.current
	for {
		p.current = p.scanner.Next()
		if p.current.Type != scanner.TokenError {
			break
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *parser) check(t scanner.TokenType) bool {
	return p.current.Type == t
}

func (p *parser) match(t scanner.TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) consume(t scanner.TokenType, message string) {
	if p.current.Type == t {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

func (p *parser) errorAtCurrent(message string) {
	p.errorAt(p.current, message)
}

func (p *parser) error(message string) {
	p.errorAt(p.previous, message)
}

// errorAt formats a compile error as "[line L] Error at '<lexeme>'|at end:
// <message>" and suppresses everything until the next call to
// synchronize -- cascading errors from the same bad token are noise.
func (p *parser) errorAt(tok scanner.Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true

	var where string
	switch tok.Type {
	case scanner.TokenEOF:
		where = " at end"
	case scanner.TokenError:
		where = ""
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}

	formatted := fmt.Sprintf("[line %d] Error%s: %s", tok.Line, where, message)
	p.errors = append(p.errors, formatted)
	if p.errOut != nil {
		fmt.Fprintln(p.errOut, formatted)
	}
	p.hadError = true
}

// synchronize skips tokens until it reaches a likely statement boundary: the
// token after a semicolon, or a keyword that starts a new declaration or
// statement. It does not unwind any Go call stack -- each recursive-descent
// caller simply returns once this settles panicMode.
func (p *parser) synchronize() {
	p.panicMode = false

	for p.current.Type != scanner.TokenEOF {
		if p.previous.Type == scanner.TokenSemicolon {
			return
		}
		switch p.current.Type {
		case scanner.TokenClass, scanner.TokenDef, scanner.TokenVar,
			scanner.TokenFor, scanner.TokenIf, scanner.TokenWhile,
			scanner.TokenPrint, scanner.TokenReturn, scanner.TokenSwitch:
			return
		}
		p.advance()
	}
}
