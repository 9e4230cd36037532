package bytecode

import "encoding/binary"

// maxConstants is the constant pool cap: a 16-bit operand can address
// exactly this many entries.
const maxConstants = 1 << 16

// Chunk is a unit of compiled bytecode: a flat byte stream, a parallel
// per-byte line table for error reporting, and the constant pool the
// stream's OP_CONSTANT/OP_GET_GLOBAL/... operands index into. A Chunk
// belongs to exactly one FunctionObj.
type Chunk struct {
	Code      []byte
	Lines     []int
	Constants []Value
}

// NewChunk returns an empty chunk ready for Write/AddConstant.
func NewChunk() *Chunk {
	return &Chunk{}
}

// Write appends one byte to the code stream, recording line as the source
// line that produced it. Lines is kept in lockstep with Code so that any
// byte offset can be mapped back to a line for error reporting.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteUint16 appends a big-endian 16-bit operand, used for the
// constant-pool index of OP_CONSTANT and OP_GET_GLOBAL/OP_DEF_GLOBAL/
// OP_SET_GLOBAL.
func (c *Chunk) WriteUint16(v uint16, line int) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	c.Write(buf[0], line)
	c.Write(buf[1], line)
}

// WriteUint32 appends a big-endian 32-bit operand, used by OP_JUMP,
// OP_JUMP_FALSE, and OP_LOOP.
func (c *Chunk) WriteUint32(v uint32, line int) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	for _, b := range buf {
		c.Write(b, line)
	}
}

// PatchUint16 overwrites the 16-bit operand already written at code offset
// at. Jump targets are 32-bit and are back-patched with PatchUint32.
func (c *Chunk) PatchUint16(at int, v uint16) {
	binary.BigEndian.PutUint16(c.Code[at:at+2], v)
}

// PatchUint32 is PatchUint16's 32-bit counterpart, used for OP_JUMP and
// OP_JUMP_FALSE targets.
func (c *Chunk) PatchUint32(at int, v uint32) {
	binary.BigEndian.PutUint32(c.Code[at:at+4], v)
}

// ReadUint16 decodes a big-endian 16-bit operand at offset at.
func (c *Chunk) ReadUint16(at int) uint16 {
	return binary.BigEndian.Uint16(c.Code[at : at+2])
}

// ReadUint32 decodes a big-endian 32-bit operand at offset at.
func (c *Chunk) ReadUint32(at int) uint32 {
	return binary.BigEndian.Uint32(c.Code[at : at+4])
}

// AddConstant appends value to the constant pool and returns its index.
// Unlike the reference implementation's addConstant, this does not push the
// value onto a VM stack around the append: that dance exists there to
// protect the value from a concurrent collector, and this design has
// neither a collector nor a window in which one could run mid-append (see
// DESIGN.md). The caller is responsible for rejecting an index that would
// overflow maxConstants as a compile error before emitting it.
func (c *Chunk) AddConstant(value Value) int {
	c.Constants = append(c.Constants, value)
	return len(c.Constants) - 1
}

// WriteConstant emits an OP_CONSTANT referencing the constant at index,
// always using the uniform 16-bit operand form.
func (c *Chunk) WriteConstant(index int, line int) {
	c.Write(byte(OpConstant), line)
	c.WriteUint16(uint16(index), line)
}

// Len reports the current length of the code stream, i.e. the offset the
// next Write will land at -- used by the compiler to remember jump-patch
// sites and loop start targets.
func (c *Chunk) Len() int {
	return len(c.Code)
}
