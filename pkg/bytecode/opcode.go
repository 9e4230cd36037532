package bytecode

// OpCode identifies a single bytecode instruction. Operand widths are fixed
// per opcode (see DESIGN.md "Opcode width decisions"): constants are a
// uniform 16-bit index, jumps and loops a uniform 32-bit offset, locals an
// 8-bit slot, and CALL an 8-bit argument count. There is no long/short split
// for any of these the way the reference implementation has for constants
// and jumps.
type OpCode byte

const (
	// OpConstant pushes constants[operand] where operand is a 16-bit,
	// big-endian constant pool index.
	OpConstant OpCode = iota
	OpNone
	OpTrue
	OpFalse
	OpPop
	OpDup

	// OpGetLocal/OpSetLocal carry an 8-bit stack-slot offset from the
	// current frame's base. SetLocal leaves the assigned value in place.
	OpGetLocal
	OpSetLocal

	// OpGetGlobal/OpDefGlobal/OpSetGlobal carry a 16-bit constant pool
	// index naming an interned string. SetGlobal is a runtime error if the
	// name was never defined.
	OpGetGlobal
	OpDefGlobal
	OpSetGlobal

	OpEqual
	OpGreater
	OpLess

	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpLeftShift
	OpRightShift

	OpNot
	OpNegate

	OpPrint

	// OpJump and OpJumpFalse carry a 32-bit big-endian forward offset.
	// OpJumpFalse peeks rather than pops its condition.
	OpJump
	OpJumpFalse

	// OpLoop carries a 32-bit big-endian backward offset subtracted from
	// ip.
	OpLoop

	// OpCall carries an 8-bit argument count.
	OpCall

	OpReturn
)

var opCodeNames = [...]string{
	OpConstant:  "OP_CONSTANT",
	OpNone:      "OP_NONE",
	OpTrue:      "OP_TRUE",
	OpFalse:     "OP_FALSE",
	OpPop:       "OP_POP",
	OpDup:       "OP_DUP",
	OpGetLocal:  "OP_GET_LOCAL",
	OpSetLocal:  "OP_SET_LOCAL",
	OpGetGlobal: "OP_GET_GLOBAL",
	OpDefGlobal: "OP_DEF_GLOBAL",
	OpSetGlobal: "OP_SET_GLOBAL",
	OpEqual:     "OP_EQUAL",
	OpGreater:   "OP_GREATER",
	OpLess:      "OP_LESS",
	OpAdd:       "OP_ADD",
	OpSubtract:  "OP_SUBTRACT",
	OpMultiply:  "OP_MULTIPLY",
	OpDivide:    "OP_DIVIDE",
	OpModulo:    "OP_MODULO",
	OpLeftShift: "OP_LEFTSHIFT",
	OpRightShift: "OP_RIGHTSHIFT",
	OpNot:       "OP_NOT",
	OpNegate:    "OP_NEGATE",
	OpPrint:     "OP_PRINT",
	OpJump:      "OP_JUMP",
	OpJumpFalse: "OP_JUMP_FALSE",
	OpLoop:      "OP_LOOP",
	OpCall:      "OP_CALL",
	OpReturn:    "OP_RETURN",
}

// String renders the opcode's mnemonic, used by disassembly and error
// messages. Unknown values (never produced by this package) render as
// "OP_UNKNOWN" rather than panicking.
func (op OpCode) String() string {
	if int(op) < len(opCodeNames) && opCodeNames[op] != "" {
		return opCodeNames[op]
	}
	return "OP_UNKNOWN"
}
