// Package bytecode defines the value representation, object heap, hash
// table, and chunk format shared by the smog compiler and virtual machine.
//
// These four concerns live in one package rather than four because they are
// mutually recursive: a Function object owns a Chunk, a Chunk's constant
// pool is a slice of Value, a Value can hold an Obj (so a Value can *be* a
// Function), and the string-intern Table is keyed by Value and hands back
// *StringObj. The reference C implementation keeps this working by
// forward-declaring pointer types across value.h/object.h/table.h/chunk.h;
// Go has no forward declaration, so the four become files in one package
// instead of four packages that would need to import each other in a
// cycle.
package bytecode

import (
	"fmt"
	"math"
)

// Kind discriminates the variants of a Value.
//
// A Value is a tagged union over six variants. Empty is an internal
// sentinel never exposed to the source program: it is the "never occupied"
// marker used by Table to distinguish a vacant slot from one holding the
// source-level None.
type Kind uint8

const (
	KindBool Kind = iota
	KindNone
	KindNumber
	KindInteger
	KindObj
	KindEmpty
)

// Value is a tagged, fixed-size union. Only the field matching Kind is
// meaningful; the others are left at their zero value.
type Value struct {
	Kind    Kind
	boolean bool
	number  float64
	integer uint64
	obj     Obj
}

// Constructors. These mirror the BOOL_VAL/NUMBER_VAL/... macros of the
// reference implementation.

func Bool(b bool) Value            { return Value{Kind: KindBool, boolean: b} }
func None() Value                  { return Value{Kind: KindNone} }
func Number(n float64) Value       { return Value{Kind: KindNumber, number: n} }
func Integer(i uint64) Value       { return Value{Kind: KindInteger, integer: i} }
func FromObj(o Obj) Value          { return Value{Kind: KindObj, obj: o} }
func Empty() Value                 { return Value{Kind: KindEmpty} }
func FromString(s *StringObj) Value { return FromObj(s) }

func (v Value) IsBool() bool    { return v.Kind == KindBool }
func (v Value) IsNone() bool    { return v.Kind == KindNone }
func (v Value) IsNumber() bool  { return v.Kind == KindNumber }
func (v Value) IsInteger() bool { return v.Kind == KindInteger }
func (v Value) IsObj() bool     { return v.Kind == KindObj }
func (v Value) IsEmpty() bool   { return v.Kind == KindEmpty }

// IsNumeric reports whether the value is a Number or an Integer -- the two
// variants the arithmetic opcodes accept.
func (v Value) IsNumeric() bool { return v.Kind == KindNumber || v.Kind == KindInteger }

func (v Value) IsString() bool {
	if v.Kind != KindObj {
		return false
	}
	_, ok := v.obj.(*StringObj)
	return ok
}

func (v Value) AsBool() bool    { return v.boolean }
func (v Value) AsNumber() float64 { return v.number }
func (v Value) AsInteger() uint64 { return v.integer }
func (v Value) AsObj() Obj        { return v.obj }

// AsFloat64 returns the value as a float64 regardless of whether it is a
// Number or an Integer, for callers that accept either (binary comparisons,
// mixed-width arithmetic). For any other kind it returns the unused number
// field (0) without reporting an error; callers check IsNumeric first.
func (v Value) AsFloat64() float64 {
	if v.Kind == KindInteger {
		return float64(v.integer)
	}
	return v.number
}

func (v Value) AsString() *StringObj {
	return v.obj.(*StringObj)
}

// Equal implements valuesEqual: Integer/Number compare cross-type by
// promotion to double; all other comparisons require matching Kind.
func (a Value) Equal(b Value) bool {
	if a.Kind == KindInteger && b.Kind == KindNumber {
		return float64(a.integer) == b.number
	}
	if a.Kind == KindNumber && b.Kind == KindInteger {
		return a.number == float64(b.integer)
	}

	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindBool:
		return a.boolean == b.boolean
	case KindNone:
		return true
	case KindNumber:
		return a.number == b.number
	case KindInteger:
		return a.integer == b.integer
	case KindObj:
		return a.obj == b.obj
	case KindEmpty:
		return true
	default:
		return false
	}
}

// Hash implements hashValue. Bool and None hash to fixed small constants
// (chosen in the reference implementation, not derived from anything);
// Number and Integer use bit-mixing hashes; Obj (always a string here)
// reuses its precomputed hash; Empty hashes to zero.
func (v Value) Hash() uint32 {
	switch v.Kind {
	case KindBool:
		if v.boolean {
			return 3
		}
		return 5
	case KindNone:
		return 7
	case KindNumber:
		return hashDouble(v.number)
	case KindInteger:
		return hashInt(v.integer)
	case KindObj:
		return v.obj.(*StringObj).Hash
	case KindEmpty:
		return 0
	default:
		return 0
	}
}

func hashInt(value uint64) uint32 {
	value = ((value >> 16) ^ value) * 0x45d9f3b
	value = ((value >> 16) ^ value) * 0x45d9f3b
	value = (value >> 16) ^ value
	return uint32(value)
}

func hashDouble(value float64) uint32 {
	bits := math.Float64bits(value + 1.0)
	lo := uint32(bits)
	hi := uint32(bits >> 32)
	return lo ^ hi
}

// Truthy implements isFalsey (inverted). A Number is truthy unless it is
// strictly negative -- zero and positive numbers, including 0, are truthy.
// This is the language's deliberately idiosyncratic rule (see DESIGN.md);
// every other kind routes through the same truthiness table as asBool in
// the reference implementation.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNumber:
		return v.number >= 0
	case KindNone:
		return false
	case KindBool:
		return v.boolean
	case KindInteger:
		return v.integer > 0
	case KindObj:
		s, ok := v.obj.(*StringObj)
		if !ok {
			return true
		}
		if s.Chars == "true" {
			return true
		}
		if s.Chars == "false" {
			return false
		}
		return len(s.Chars) != 1
	default:
		return false
	}
}

// Display renders a value the way OP_PRINT and string coercion do.
func (v Value) Display() string {
	switch v.Kind {
	case KindBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case KindNone:
		return "none"
	case KindNumber:
		return formatNumber(v.number)
	case KindInteger:
		return fmt.Sprintf("%d", v.integer)
	case KindObj:
		return v.obj.Display()
	case KindEmpty:
		return "<empty>"
	default:
		return ""
	}
}

func formatNumber(n float64) string {
	return fmt.Sprintf("%g", n)
}
