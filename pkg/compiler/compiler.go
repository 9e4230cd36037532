// Package compiler implements the single-pass Pratt compiler: source text
// goes in, a compiled bytecode.FunctionObj comes out, with no intermediate
// AST ever built. Parsing and code generation are the same pass --
// parsePrecedence both recognizes the grammar and emits the bytecode for it
// as it goes, one token of lookahead at a time.
//
// A Compiler value corresponds to one function body being compiled (the
// top-level script counts as a function with no name). Compiling a nested
// `def` pushes a new Compiler linked to its enclosing one via the
// enclosing field; the chain unwinds as each nested function finishes.
package compiler

import (
	"io"
	"strconv"

	"github.com/kristofer/pythowon/pkg/bytecode"
	"github.com/kristofer/pythowon/pkg/scanner"
)

const (
	maxLocals    = 256
	maxParams    = 255
	maxArguments = 255
)

type functionType int

const (
	typeScript functionType = iota
	typeFunction
)

// local is one entry in a Compiler's locals array. depth == -1 means
// "declared but its initializer hasn't finished running yet" -- reading the
// variable in that window is an error, since on the stack the slot exists
// but doesn't hold the variable's value yet.
type local struct {
	name  string
	depth int
}

// loopState tracks the innermost enclosing loop so continue/break know
// where to jump and how many block-local slots to discard first.
type loopState struct {
	start      int
	scopeDepth int
	breakJumps []int
}

// Compiler compiles one function body (or the top-level script) into a
// bytecode.FunctionObj. Source-level lexical scoping is tracked here via
// locals/scopeDepth; the shared parser and heap are threaded through every
// Compiler in the enclosing chain.
type Compiler struct {
	parser *parser
	heap   *bytecode.Heap

	enclosing *Compiler
	function  *bytecode.FunctionObj
	funcType  functionType

	locals     []local
	scopeDepth int
	loops      []*loopState
}

// Compile compiles source into a top-level script function. errOut receives
// formatted compile-error lines (pass nil to suppress); the returned error
// is a *CompileError listing every diagnostic produced, non-nil exactly
// when parsing failed.
func Compile(source string, heap *bytecode.Heap, errOut io.Writer) (*bytecode.FunctionObj, error) {
	p := newParser(source, errOut)
	c := &Compiler{
		parser:   p,
		heap:     heap,
		function: heap.NewFunction(),
		funcType: typeScript,
	}
	c.locals = append(c.locals, local{name: "", depth: 0})

	p.advance()
	for !p.match(scanner.TokenEOF) {
		c.declaration()
	}

	fn := c.endCompiler()
	if p.hadError {
		return nil, &CompileError{Messages: p.errors}
	}
	return fn, nil
}

func (c *Compiler) currentChunk() *bytecode.Chunk {
	return c.function.Chunk
}

func (c *Compiler) emitByte(b byte, line int) {
	c.currentChunk().Write(b, line)
}

func (c *Compiler) emitOp(op bytecode.OpCode) {
	c.emitByte(byte(op), c.parser.previous.Line)
}

func (c *Compiler) emitOps(op1, op2 bytecode.OpCode) {
	c.emitOp(op1)
	c.emitOp(op2)
}

// emitConstant appends value to the constant pool (erroring if it would
// overflow the 16-bit index space) and emits OP_CONSTANT for it.
func (c *Compiler) emitConstant(value bytecode.Value) {
	idx := c.makeConstant(value)
	c.currentChunk().WriteConstant(idx, c.parser.previous.Line)
}

func (c *Compiler) makeConstant(value bytecode.Value) int {
	if len(c.currentChunk().Constants) >= (1 << 16) {
		c.parser.error("Too many constants in one chunk.")
		return 0
	}
	return c.currentChunk().AddConstant(value)
}

// emitConstantRef16 emits op followed by a 16-bit constant-pool index, the
// encoding shared by OP_GET_GLOBAL/OP_DEF_GLOBAL/OP_SET_GLOBAL.
func (c *Compiler) emitConstantRef16(op bytecode.OpCode, index int) {
	c.emitOp(op)
	c.currentChunk().WriteUint16(uint16(index), c.parser.previous.Line)
}

// emitSlotRef8 emits op followed by an 8-bit stack-slot offset, the
// encoding shared by OP_GET_LOCAL/OP_SET_LOCAL.
func (c *Compiler) emitSlotRef8(op bytecode.OpCode, slot int) {
	c.emitOp(op)
	c.emitByte(byte(slot), c.parser.previous.Line)
}

// emitJump reserves a 32-bit placeholder operand after op and returns the
// chunk offset of that placeholder, to be filled in later by patchJump.
func (c *Compiler) emitJump(op bytecode.OpCode) int {
	c.emitOp(op)
	offset := c.currentChunk().Len()
	c.currentChunk().WriteUint32(0, c.parser.previous.Line)
	return offset
}

// patchJump overwrites the placeholder at offset with the distance from
// just past it to the current end of the chunk.
func (c *Compiler) patchJump(offset int) {
	jump := c.currentChunk().Len() - offset - 4
	c.currentChunk().PatchUint32(offset, uint32(jump))
}

// emitLoop emits OP_LOOP with a 32-bit backward offset to loopStart.
func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(bytecode.OpLoop)
	offset := c.currentChunk().Len() - loopStart + 4
	c.currentChunk().WriteUint32(uint32(offset), c.parser.previous.Line)
}

func (c *Compiler) emitReturn() {
	c.emitOp(bytecode.OpNone)
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) endCompiler() *bytecode.FunctionObj {
	c.emitReturn()
	return c.function
}

func (c *Compiler) beginScope() {
	c.scopeDepth++
}

// endScope closes the current block scope, popping every local declared in
// it off the runtime stack and off the compiler's own bookkeeping.
func (c *Compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		c.emitOp(bytecode.OpPop)
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// popLocalsAbove emits OP_POP for every local currently in scope deeper
// than depth, without removing them from the compiler's bookkeeping -- used
// by continue/break, which jump out of a block early and so can't rely on
// that block's own endScope to run.
func (c *Compiler) popLocalsAbove(depth int) {
	for i := len(c.locals) - 1; i >= 0 && c.locals[i].depth > depth; i-- {
		c.emitOp(bytecode.OpPop)
	}
}

func (c *Compiler) currentLoop() *loopState {
	if len(c.loops) == 0 {
		return nil
	}
	return c.loops[len(c.loops)-1]
}

func (c *Compiler) pushLoop(start int) *loopState {
	l := &loopState{start: start, scopeDepth: c.scopeDepth}
	c.loops = append(c.loops, l)
	return l
}

func (c *Compiler) popLoop() *loopState {
	l := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]
	for _, jump := range l.breakJumps {
		c.patchJump(jump)
	}
	return l
}

// identifierConstant interns name and returns its constant-pool index in the
// current chunk. The parser's stringConstants table is shared across the
// whole enclosing chain, but each function body has its own chunk, so a
// remembered index is reused only when the current chunk's constant at that
// index is this same name.
func (c *Compiler) identifierConstant(name string) int {
	constants := c.currentChunk().Constants
	if idx, ok := c.parser.stringConstants[name]; ok && idx < len(constants) &&
		constants[idx].IsString() && constants[idx].AsString().Chars == name {
		return idx
	}
	str := c.heap.CopyString(name)
	idx := c.makeConstant(bytecode.FromString(str))
	c.parser.stringConstants[name] = idx
	return idx
}

func (c *Compiler) resolveLocal(name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			if c.locals[i].depth == -1 {
				c.parser.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) addLocal(name string) {
	if len(c.locals) >= maxLocals {
		c.parser.error("Too many local variables in function.")
		return
	}
	c.locals = append(c.locals, local{name: name, depth: -1})
}

func (c *Compiler) declareVariable(name string) {
	if c.scopeDepth == 0 {
		return
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == name {
			c.parser.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

// parseVariable consumes an identifier naming a variable being declared,
// returning the constant-pool index to pass to defineVariable if it turns
// out to be a global (the return value is unused for locals).
func (c *Compiler) parseVariable(errorMessage string) int {
	c.parser.consume(scanner.TokenIdentifier, errorMessage)
	name := c.parser.previous.Lexeme
	c.declareVariable(name)
	if c.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(name)
}

func (c *Compiler) defineVariable(global int) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitConstantRef16(bytecode.OpDefGlobal, global)
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp bytecode.OpCode
	arg := c.resolveLocal(name)
	isLocal := arg != -1
	if isLocal {
		getOp, setOp = bytecode.OpGetLocal, bytecode.OpSetLocal
	} else {
		arg = c.identifierConstant(name)
		getOp, setOp = bytecode.OpGetGlobal, bytecode.OpSetGlobal
	}

	if canAssign && c.parser.match(scanner.TokenEqual) {
		c.expression()
		if isLocal {
			c.emitSlotRef8(setOp, arg)
		} else {
			c.emitConstantRef16(setOp, arg)
		}
		return
	}

	if isLocal {
		c.emitSlotRef8(getOp, arg)
	} else {
		c.emitConstantRef16(getOp, arg)
	}
}

// ---- expressions ----

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func (c *Compiler) parsePrecedence(prec precedence) {
	c.parser.advance()
	prefixRule := getRule(c.parser.previous.Type).prefix
	if prefixRule == nil {
		c.parser.error("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefixRule(c, canAssign)

	for prec <= getRule(c.parser.current.Type).precedence {
		c.parser.advance()
		infixRule := getRule(c.parser.previous.Type).infix
		infixRule(c, canAssign)
	}

	if canAssign && c.parser.match(scanner.TokenEqual) {
		c.parser.error("Invalid assignment target.")
	}
}

func number(c *Compiler, _ bool) {
	lexeme := c.parser.previous.Lexeme
	if c.parser.previous.Type == scanner.TokenInteger {
		v, err := strconv.ParseUint(lexeme, 10, 64)
		if err != nil {
			c.parser.error("Invalid integer literal.")
			return
		}
		c.emitConstant(bytecode.Integer(v))
		return
	}
	v, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		c.parser.error("Invalid number literal.")
		return
	}
	c.emitConstant(bytecode.Number(v))
}

func stringLiteral(c *Compiler, _ bool) {
	decoded := scanner.Unescape(c.parser.previous.Lexeme)
	str := c.heap.CopyString(decoded)
	c.emitConstant(bytecode.FromString(str))
}

func literal(c *Compiler, _ bool) {
	switch c.parser.previous.Type {
	case scanner.TokenFalse:
		c.emitOp(bytecode.OpFalse)
	case scanner.TokenTrue:
		c.emitOp(bytecode.OpTrue)
	case scanner.TokenNone:
		c.emitOp(bytecode.OpNone)
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.parser.consume(scanner.TokenRParen, "Expect ')' after expression.")
}

func unary(c *Compiler, _ bool) {
	operatorType := c.parser.previous.Type
	c.parsePrecedence(precUnary)
	switch operatorType {
	case scanner.TokenBang:
		c.emitOp(bytecode.OpNot)
	case scanner.TokenMinus:
		c.emitOp(bytecode.OpNegate)
	}
}

// binary compiles an infix operator: the left operand is already on the
// stack (it was compiled by whatever ran before this was invoked);
// binary compiles the right operand at one precedence level tighter than
// its own, so that `a - b - c` associates left, then emits the opcode(s)
// for the operator. `!= <= >=` are not primitive opcodes: they lower to
// their complement (`==`, `>`, `<`) followed by OP_NOT.
func binary(c *Compiler, _ bool) {
	operatorType := c.parser.previous.Type
	rule := getRule(operatorType)
	c.parsePrecedence(rule.precedence + 1)

	switch operatorType {
	case scanner.TokenPlus:
		c.emitOp(bytecode.OpAdd)
	case scanner.TokenMinus:
		c.emitOp(bytecode.OpSubtract)
	case scanner.TokenStar:
		c.emitOp(bytecode.OpMultiply)
	case scanner.TokenSlash:
		c.emitOp(bytecode.OpDivide)
	case scanner.TokenPercent:
		c.emitOp(bytecode.OpModulo)
	case scanner.TokenLeftShift:
		c.emitOp(bytecode.OpLeftShift)
	case scanner.TokenRightShift:
		c.emitOp(bytecode.OpRightShift)
	case scanner.TokenEqualEqual:
		c.emitOp(bytecode.OpEqual)
	case scanner.TokenBangEqual:
		c.emitOps(bytecode.OpEqual, bytecode.OpNot)
	case scanner.TokenGreater:
		c.emitOp(bytecode.OpGreater)
	case scanner.TokenGreaterEqual:
		c.emitOps(bytecode.OpLess, bytecode.OpNot)
	case scanner.TokenLess:
		c.emitOp(bytecode.OpLess)
	case scanner.TokenLessEqual:
		c.emitOps(bytecode.OpGreater, bytecode.OpNot)
	}
}

func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(bytecode.OpJumpFalse)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(bytecode.OpJumpFalse)
	endJump := c.emitJump(bytecode.OpJump)
	c.patchJump(elseJump)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func variable(c *Compiler, canAssign bool) {
	c.namedVariable(c.parser.previous.Lexeme, canAssign)
}

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOp(bytecode.OpCall)
	c.emitByte(byte(argCount), c.parser.previous.Line)
}

func (c *Compiler) argumentList() int {
	count := 0
	if !c.parser.check(scanner.TokenRParen) {
		for {
			c.expression()
			if count == maxArguments {
				c.parser.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.parser.match(scanner.TokenComma) {
				break
			}
		}
	}
	c.parser.consume(scanner.TokenRParen, "Expect ')' after arguments.")
	return count
}

// ---- declarations and statements ----

func (c *Compiler) declaration() {
	switch {
	case c.parser.match(scanner.TokenVar):
		c.varDeclaration()
	case c.parser.match(scanner.TokenDef):
		c.funDeclaration()
	default:
		c.statement()
	}

	if c.parser.panicMode {
		c.parser.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.parser.match(scanner.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(bytecode.OpNone)
	}
	c.parser.consume(scanner.TokenSemicolon, "Expect ';' after variable declaration.")

	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.compileFunction(typeFunction)
	c.defineVariable(global)
}

// compileFunction compiles a nested `def` as a child Compiler, returning control
// to c once the body (and its implicit trailing return) is compiled. Its
// only trace in c's own chunk is the OP_CONSTANT that loads the finished
// FunctionObj plus whatever defineVariable binds it to.
func (c *Compiler) compileFunction(ftype functionType) {
	name := c.parser.previous.Lexeme
	fn := c.heap.NewFunction()
	fn.Name = c.heap.CopyString(name)

	child := &Compiler{
		parser:    c.parser,
		heap:      c.heap,
		enclosing: c,
		function:  fn,
		funcType:  ftype,
	}
	child.locals = append(child.locals, local{name: "", depth: 0})
	child.beginScope()

	child.parser.consume(scanner.TokenLParen, "Expect '(' after function name.")
	if !child.parser.check(scanner.TokenRParen) {
		for {
			fn.Arity++
			if fn.Arity > maxParams {
				child.parser.errorAtCurrent("Can't have more than 255 parameters.")
			}
			child.parseVariable("Expect parameter name.")
			child.markInitialized()
			if child.parser.match(scanner.TokenEqual) {
				fn.DefArity++
				child.expression()
			}
			if !child.parser.match(scanner.TokenComma) {
				break
			}
		}
	}
	child.parser.consume(scanner.TokenRParen, "Expect ')' after parameters.")
	fn.BodyStart = child.currentChunk().Len()

	child.parser.consume(scanner.TokenLBrace, "Expect '{' before function body.")
	child.block()

	compiled := child.endCompiler()
	c.emitConstant(bytecode.FromObj(compiled))
}

func (c *Compiler) block() {
	for !c.parser.check(scanner.TokenRBrace) && !c.parser.check(scanner.TokenEOF) {
		c.declaration()
	}
	c.parser.consume(scanner.TokenRBrace, "Expect '}' after block.")
}

func (c *Compiler) statement() {
	switch {
	case c.parser.match(scanner.TokenPrint):
		c.printStatement()
	case c.parser.match(scanner.TokenIf):
		c.ifStatement()
	case c.parser.match(scanner.TokenWhile):
		c.whileStatement()
	case c.parser.match(scanner.TokenFor):
		c.forStatement()
	case c.parser.match(scanner.TokenSwitch):
		c.switchStatement()
	case c.parser.match(scanner.TokenReturn):
		c.returnStatement()
	case c.parser.match(scanner.TokenContinue):
		c.continueStatement()
	case c.parser.match(scanner.TokenBreak):
		c.breakStatement()
	case c.parser.match(scanner.TokenLBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.parser.consume(scanner.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(bytecode.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.parser.consume(scanner.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) ifStatement() {
	c.parser.consume(scanner.TokenLParen, "Expect '(' after 'if'.")
	c.expression()
	c.parser.consume(scanner.TokenRParen, "Expect ')' after condition.")

	thenJump := c.emitJump(bytecode.OpJumpFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)

	if c.parser.match(scanner.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := c.currentChunk().Len()
	c.pushLoop(loopStart)

	c.parser.consume(scanner.TokenLParen, "Expect '(' after 'while'.")
	c.expression()
	c.parser.consume(scanner.TokenRParen, "Expect ')' after condition.")

	exitJump := c.emitJump(bytecode.OpJumpFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)
	c.popLoop()
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.parser.consume(scanner.TokenLParen, "Expect '(' after 'for'.")

	switch {
	case c.parser.match(scanner.TokenSemicolon):
		// no initializer
	case c.parser.match(scanner.TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := c.currentChunk().Len()
	exitJump := -1
	if !c.parser.match(scanner.TokenSemicolon) {
		c.expression()
		c.parser.consume(scanner.TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(bytecode.OpJumpFalse)
		c.emitOp(bytecode.OpPop)
	}

	if !c.parser.check(scanner.TokenRParen) {
		bodyJump := c.emitJump(bytecode.OpJump)
		incrementStart := c.currentChunk().Len()
		c.expression()
		c.emitOp(bytecode.OpPop)
		c.parser.consume(scanner.TokenRParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	} else {
		c.parser.consume(scanner.TokenRParen, "Expect ')' after for clauses.")
	}

	c.pushLoop(loopStart)
	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(bytecode.OpPop)
	}

	c.popLoop()
	c.endScope()
}

func (c *Compiler) switchStatement() {
	c.parser.consume(scanner.TokenLParen, "Expect '(' after 'switch'.")
	c.expression()
	c.parser.consume(scanner.TokenRParen, "Expect ')' after switch value.")
	c.parser.consume(scanner.TokenLBrace, "Expect '{' before switch body.")

	var endJumps []int
	for c.parser.match(scanner.TokenCase) {
		c.emitOp(bytecode.OpDup)
		c.expression()
		c.parser.consume(scanner.TokenColon, "Expect ':' after case value.")
		c.emitOp(bytecode.OpEqual)

		skipJump := c.emitJump(bytecode.OpJumpFalse)
		c.emitOp(bytecode.OpPop)

		for !c.parser.check(scanner.TokenCase) && !c.parser.check(scanner.TokenDefault) &&
			!c.parser.check(scanner.TokenRBrace) && !c.parser.check(scanner.TokenEOF) {
			c.declaration()
		}

		endJumps = append(endJumps, c.emitJump(bytecode.OpJump))
		c.patchJump(skipJump)
		c.emitOp(bytecode.OpPop)
	}

	if c.parser.match(scanner.TokenDefault) {
		c.parser.consume(scanner.TokenColon, "Expect ':' after 'default'.")
		for !c.parser.check(scanner.TokenRBrace) && !c.parser.check(scanner.TokenEOF) {
			c.declaration()
		}
	}

	c.parser.consume(scanner.TokenRBrace, "Expect '}' after switch body.")
	for _, jump := range endJumps {
		c.patchJump(jump)
	}
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) returnStatement() {
	if c.parser.match(scanner.TokenSemicolon) {
		c.emitReturn()
		return
	}

	if c.funcType == typeScript {
		c.parser.error("Can't return a value from top-level code.")
	}
	c.expression()
	c.parser.consume(scanner.TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) continueStatement() {
	loop := c.currentLoop()
	if loop == nil {
		c.parser.error("Can't use 'continue' outside of a loop.")
	} else {
		c.popLocalsAbove(loop.scopeDepth)
		c.emitLoop(loop.start)
	}
	c.parser.consume(scanner.TokenSemicolon, "Expect ';' after 'continue'.")
}

func (c *Compiler) breakStatement() {
	loop := c.currentLoop()
	if loop == nil {
		c.parser.error("Can't use 'break' outside of a loop.")
	} else {
		c.popLocalsAbove(loop.scopeDepth)
		jump := c.emitJump(bytecode.OpJump)
		loop.breakJumps = append(loop.breakJumps, jump)
	}
	c.parser.consume(scanner.TokenSemicolon, "Expect ';' after 'break'.")
}
