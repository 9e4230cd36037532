package compiler

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/pythowon/pkg/bytecode"
)

// disassemble walks a chunk's code stream and returns the opcode mnemonics
// in order, skipping over operand bytes -- enough to assert on shape
// without hand-decoding every operand width.
func disassemble(t *testing.T, chunk *bytecode.Chunk) []string {
	t.Helper()
	var ops []string
	i := 0
	for i < len(chunk.Code) {
		op := bytecode.OpCode(chunk.Code[i])
		ops = append(ops, op.String())
		i++
		switch op {
		case bytecode.OpConstant, bytecode.OpGetGlobal, bytecode.OpDefGlobal, bytecode.OpSetGlobal:
			i += 2
		case bytecode.OpGetLocal, bytecode.OpSetLocal, bytecode.OpCall:
			i++
		case bytecode.OpJump, bytecode.OpJumpFalse, bytecode.OpLoop:
			i += 4
		}
	}
	return ops
}

func compileOK(t *testing.T, source string) *bytecode.FunctionObj {
	t.Helper()
	heap := bytecode.NewHeap()
	fn, err := Compile(source, heap, nil)
	require.NoError(t, err)
	require.NotNil(t, fn)
	return fn
}

func TestCompilePrintArithmeticEmitsExpectedOps(t *testing.T) {
	fn := compileOK(t, `print 1 + 2 * 3;`)
	ops := disassemble(t, fn.Chunk)
	require.Equal(t, []string{
		"OP_CONSTANT", "OP_CONSTANT", "OP_CONSTANT",
		"OP_MULTIPLY", "OP_ADD", "OP_PRINT",
		"OP_NONE", "OP_RETURN",
	}, ops)
}

func TestCompileGlobalVarDeclarationAndAssignment(t *testing.T) {
	fn := compileOK(t, `var a = 1; a = 2;`)
	ops := disassemble(t, fn.Chunk)
	require.Equal(t, []string{
		"OP_CONSTANT", "OP_DEF_GLOBAL",
		"OP_CONSTANT", "OP_SET_GLOBAL", "OP_POP",
		"OP_NONE", "OP_RETURN",
	}, ops)
}

func TestCompileBlockLocalsUseLocalOps(t *testing.T) {
	fn := compileOK(t, `{ var a = 1; print a; }`)
	ops := disassemble(t, fn.Chunk)
	require.Equal(t, []string{
		"OP_CONSTANT", "OP_GET_LOCAL", "OP_PRINT", "OP_POP",
		"OP_NONE", "OP_RETURN",
	}, ops)
}

func TestCompileIfElseEmitsJumps(t *testing.T) {
	fn := compileOK(t, `if (true) { print 1; } else { print 2; }`)
	ops := disassemble(t, fn.Chunk)
	require.Equal(t, []string{
		"OP_TRUE", "OP_JUMP_FALSE", "OP_POP",
		"OP_CONSTANT", "OP_PRINT",
		"OP_JUMP", "OP_POP",
		"OP_CONSTANT", "OP_PRINT",
		"OP_NONE", "OP_RETURN",
	}, ops)
}

func TestCompileWhileEmitsBackwardLoop(t *testing.T) {
	fn := compileOK(t, `while (true) { print 1; }`)
	ops := disassemble(t, fn.Chunk)
	require.Equal(t, []string{
		"OP_TRUE", "OP_JUMP_FALSE", "OP_POP",
		"OP_CONSTANT", "OP_PRINT",
		"OP_LOOP",
		"OP_POP",
		"OP_NONE", "OP_RETURN",
	}, ops)
}

func TestCompileSwitchDupsDispatchValueBeforeEachCase(t *testing.T) {
	fn := compileOK(t, `
		switch (1) {
			case 1:
				print 1;
			default:
				print 2;
		}
	`)
	ops := disassemble(t, fn.Chunk)
	require.Equal(t, []string{
		"OP_CONSTANT", // dispatch value
		"OP_DUP", "OP_CONSTANT", "OP_EQUAL", "OP_JUMP_FALSE", "OP_POP",
		"OP_CONSTANT", "OP_PRINT",
		"OP_JUMP", "OP_POP",
		"OP_CONSTANT", "OP_PRINT",
		"OP_POP",
		"OP_NONE", "OP_RETURN",
	}, ops)
}

func TestCompileFunctionWithDefaultParameterRecordsBodyStart(t *testing.T) {
	heap := bytecode.NewHeap()
	fn, err := Compile(`
		def greet(name, greeting = "hello") {
			print greeting;
		}
	`, heap, nil)
	require.NoError(t, err)

	idx := 0
	for _, c := range fn.Chunk.Constants {
		if c.IsObj() {
			if inner, ok := c.AsObj().(*bytecode.FunctionObj); ok {
				require.Equal(t, 2, inner.Arity)
				require.Equal(t, 1, inner.DefArity)
				require.Greater(t, inner.BodyStart, 0)
				idx++
			}
		}
	}
	require.Equal(t, 1, idx)
}

func TestCompileMissingSemicolonIsCompileError(t *testing.T) {
	heap := bytecode.NewHeap()
	_, err := Compile(`var a = 1`, heap, nil)
	require.Error(t, err)
	cerr, ok := err.(*CompileError)
	require.True(t, ok)
	require.NotEmpty(t, cerr.Messages)
	require.True(t, strings.Contains(cerr.Messages[0], "[line 1] Error at end"))
}

func TestCompileUnexpectedTokenReportsLexemeAndLine(t *testing.T) {
	heap := bytecode.NewHeap()
	_, err := Compile("print 1 +;\n", heap, nil)
	require.Error(t, err)
	cerr, ok := err.(*CompileError)
	require.True(t, ok)
	require.True(t, strings.Contains(cerr.Messages[0], "[line 1] Error at ';'"))
}

func TestCompileContinueOutsideLoopIsError(t *testing.T) {
	heap := bytecode.NewHeap()
	_, err := Compile(`continue;`, heap, nil)
	require.Error(t, err)
}

func TestCompileBreakOutsideLoopIsError(t *testing.T) {
	heap := bytecode.NewHeap()
	_, err := Compile(`break;`, heap, nil)
	require.Error(t, err)
}

func TestCompileReturnValueAtTopLevelIsError(t *testing.T) {
	heap := bytecode.NewHeap()
	_, err := Compile(`return 1;`, heap, nil)
	require.Error(t, err)
}

func TestCompileRedeclaringLocalInSameScopeIsError(t *testing.T) {
	heap := bytecode.NewHeap()
	_, err := Compile(`{ var a = 1; var a = 2; }`, heap, nil)
	require.Error(t, err)
}

func TestCompileTooManyConstantsOverflowIsError(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 70000; i++ {
		b.WriteString("1;\n")
	}
	heap := bytecode.NewHeap()
	_, err := Compile(b.String(), heap, nil)
	require.Error(t, err)
}

func TestCompileCallEmitsArgCount(t *testing.T) {
	fn := compileOK(t, `
		def add(a, b) { return a + b; }
		add(1, 2);
	`)
	ops := disassemble(t, fn.Chunk)
	require.Contains(t, ops, "OP_CALL")

	// The script ends OP_CALL <argc> OP_POP OP_NONE OP_RETURN.
	code := fn.Chunk.Code
	require.Equal(t, byte(bytecode.OpCall), code[len(code)-5])
	require.Equal(t, byte(2), code[len(code)-4])
}

func TestCompileNestedFunctionRecursesThroughGlobalName(t *testing.T) {
	fn := compileOK(t, `
		def fact(n) {
			if (n < 2) { return 1; }
			return n * fact(n - 1);
		}
	`)
	require.NotNil(t, fn)
}

func TestCompileTooManyLocalsOverflowIsError(t *testing.T) {
	var b strings.Builder
	b.WriteString("{\n")
	for i := 0; i < 300; i++ {
		b.WriteString("var v")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(" = 0;\n")
	}
	b.WriteString("}\n")

	heap := bytecode.NewHeap()
	_, err := Compile(b.String(), heap, nil)
	require.Error(t, err)
	cerr, ok := err.(*CompileError)
	require.True(t, ok)
	require.NotEmpty(t, cerr.Messages)

	found := false
	for _, msg := range cerr.Messages {
		if strings.Contains(msg, "Too many local variables in function.") {
			found = true
			break
		}
	}
	require.True(t, found, "expected one message to report the local-count overflow, got: %v", cerr.Messages)
}
