package bytecode

import "testing"

func TestChunkCodeAndLinesStayInLockstep(t *testing.T) {
	c := NewChunk()
	c.Write(byte(OpTrue), 1)
	c.Write(byte(OpPop), 1)
	c.Write(byte(OpNone), 2)

	if len(c.Code) != len(c.Lines) {
		t.Fatalf("len(Code)=%d != len(Lines)=%d", len(c.Code), len(c.Lines))
	}
	if c.Lines[2] != 2 {
		t.Fatalf("expected line 2 recorded for the third byte, got %d", c.Lines[2])
	}
}

func TestChunkAddConstantReturnsEncounterOrderIndex(t *testing.T) {
	c := NewChunk()
	i0 := c.AddConstant(Integer(10))
	i1 := c.AddConstant(Integer(20))
	i2 := c.AddConstant(Integer(10)) // duplicate value, not deduped by Chunk itself

	if i0 != 0 || i1 != 1 || i2 != 2 {
		t.Fatalf("expected indices 0,1,2, got %d,%d,%d", i0, i1, i2)
	}
	if len(c.Constants) != 3 {
		t.Fatalf("expected 3 constants (no dedup), got %d", len(c.Constants))
	}
}

func TestChunkWriteConstantEmitsOpAndUint16Index(t *testing.T) {
	c := NewChunk()
	idx := c.AddConstant(Number(3.5))
	c.WriteConstant(idx, 7)

	if OpCode(c.Code[0]) != OpConstant {
		t.Fatalf("expected first byte to be OP_CONSTANT, got %s", OpCode(c.Code[0]))
	}
	if got := c.ReadUint16(1); int(got) != idx {
		t.Fatalf("expected encoded index %d, got %d", idx, got)
	}
	if c.Lines[0] != 7 || c.Lines[1] != 7 || c.Lines[2] != 7 {
		t.Fatal("expected every byte of the OP_CONSTANT instruction to carry line 7")
	}
}

func TestChunkPatchUint32RoundTrips(t *testing.T) {
	c := NewChunk()
	c.Write(byte(OpJump), 1)
	at := c.Len()
	c.WriteUint32(0, 1)

	c.PatchUint32(at, 0xdeadbeef)
	if got := c.ReadUint32(at); got != 0xdeadbeef {
		t.Fatalf("expected patched value 0xdeadbeef, got %#x", got)
	}
}

func TestChunkLenTracksNextWriteOffset(t *testing.T) {
	c := NewChunk()
	if c.Len() != 0 {
		t.Fatalf("expected empty chunk to have Len()==0, got %d", c.Len())
	}
	c.Write(byte(OpPop), 1)
	if c.Len() != 1 {
		t.Fatalf("expected Len()==1 after one byte, got %d", c.Len())
	}
}
