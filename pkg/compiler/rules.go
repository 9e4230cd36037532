package compiler

import "github.com/kristofer/pythowon/pkg/scanner"

// precedence orders binding strength from loosest to tightest. Each level
// parses everything at its own precedence or higher: parsePrecedence(p)
// stops consuming infix operators once it meets one whose rule binds looser
// than p.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precShift                 // << >>
	precTerm                  // + -
	precFactor                // * / %
	precUnary                 // ! -
	precCall                  // ( )
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

// rules is the static Pratt table: for every token type, the prefix handler
// invoked when it starts an expression, the infix handler invoked when it
// follows one, and the precedence of that infix use. Most token types
// participate in neither position and are left at the zero value.
var rules [int(scanner.TokenRightShift) + 1]parseRule

func init() {
	rules[scanner.TokenLParen] = parseRule{grouping, call, precCall}
	rules[scanner.TokenMinus] = parseRule{unary, binary, precTerm}
	rules[scanner.TokenPlus] = parseRule{nil, binary, precTerm}
	rules[scanner.TokenSlash] = parseRule{nil, binary, precFactor}
	rules[scanner.TokenStar] = parseRule{nil, binary, precFactor}
	rules[scanner.TokenPercent] = parseRule{nil, binary, precFactor}
	rules[scanner.TokenLeftShift] = parseRule{nil, binary, precShift}
	rules[scanner.TokenRightShift] = parseRule{nil, binary, precShift}
	rules[scanner.TokenBang] = parseRule{unary, nil, precNone}
	rules[scanner.TokenBangEqual] = parseRule{nil, binary, precEquality}
	rules[scanner.TokenEqualEqual] = parseRule{nil, binary, precEquality}
	rules[scanner.TokenGreater] = parseRule{nil, binary, precComparison}
	rules[scanner.TokenGreaterEqual] = parseRule{nil, binary, precComparison}
	rules[scanner.TokenLess] = parseRule{nil, binary, precComparison}
	rules[scanner.TokenLessEqual] = parseRule{nil, binary, precComparison}
	rules[scanner.TokenIdentifier] = parseRule{variable, nil, precNone}
	rules[scanner.TokenString] = parseRule{stringLiteral, nil, precNone}
	rules[scanner.TokenInteger] = parseRule{number, nil, precNone}
	rules[scanner.TokenNumber] = parseRule{number, nil, precNone}
	rules[scanner.TokenAnd] = parseRule{nil, and_, precAnd}
	rules[scanner.TokenOr] = parseRule{nil, or_, precOr}
	rules[scanner.TokenFalse] = parseRule{literal, nil, precNone}
	rules[scanner.TokenTrue] = parseRule{literal, nil, precNone}
	rules[scanner.TokenNone] = parseRule{literal, nil, precNone}
}

func getRule(t scanner.TokenType) parseRule {
	if int(t) < len(rules) {
		return rules[t]
	}
	return parseRule{}
}
