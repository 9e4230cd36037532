// Package vm implements the fetch-decode-execute loop that runs compiled
// bytecode.Chunks: an explicit value stack, a fixed-depth call-frame stack,
// the global variable table, and the object heap all live here.
//
// Design philosophy: one opcode per loop turn, no recursion into Go's own
// call stack for source-level function calls (CallFrame models that
// explicitly), and no suspension -- run either returns a result or a
// *RuntimeError, never partway through an instruction.
package vm

import (
	"fmt"
	"io"
	"time"

	"github.com/kristofer/pythowon/pkg/bytecode"
	"github.com/kristofer/pythowon/pkg/compiler"
)

// FramesMax bounds the call-frame stack; exceeding it during a CALL raises
// a FrameError rather than overflowing Go's own stack.
const FramesMax = 255

// InterpretResult summarizes how an Interpret call ended, mapped by the
// CLI to the process exit codes from the external-interfaces contract.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// CallFrame is one activation record: the function being executed, its
// instruction pointer into that function's Chunk, and the base index into
// the VM's shared value stack where this call's slot window starts. Slot 0
// of that window is the callee value itself; argument N lives at slot N.
type CallFrame struct {
	function *bytecode.FunctionObj
	ip       int
	base     int
}

// VM owns the value stack, the call-frame stack, the global table, the
// string-intern/object heap, and the sink PRINT writes to.
type VM struct {
	stack []bytecode.Value

	frames     []CallFrame
	frameCount int

	globals *bytecode.Table
	heap    *bytecode.Heap

	stdout io.Writer
	errOut io.Writer

	startedAt time.Time
}

// New returns a VM with its globals table freshly populated with the
// built-in native functions, ready for repeated Interpret calls -- globals
// persist across calls the way a REPL session expects.
func New(stdout, errOut io.Writer) *VM {
	vm := &VM{
		frames:    make([]CallFrame, FramesMax),
		globals:   bytecode.NewTable(),
		heap:      bytecode.NewHeap(),
		stdout:    stdout,
		errOut:    errOut,
		startedAt: time.Now(),
	}
	vm.defineNative("clock", vm.nativeClock)
	return vm
}

// Heap exposes the VM's object heap so a host embedding the VM (the REPL,
// tests) can intern strings or inspect live objects between calls.
func (vm *VM) Heap() *bytecode.Heap { return vm.heap }

func (vm *VM) defineNative(name string, fn bytecode.NativeFn) {
	native := vm.heap.NewNative(name, fn)
	vm.globals.Set(bytecode.FromString(vm.heap.CopyString(name)), bytecode.FromObj(native))
}

func (vm *VM) nativeClock(argCount int, args []bytecode.Value) bytecode.Value {
	return bytecode.Number(time.Since(vm.startedAt).Seconds())
}

// Interpret compiles source and, if compilation succeeds, runs the
// resulting script function to completion.
func (vm *VM) Interpret(source string) (InterpretResult, error) {
	fn, err := compiler.Compile(source, vm.heap, vm.errOut)
	if err != nil {
		return InterpretCompileError, err
	}
	return vm.run(fn)
}

func (vm *VM) run(fn *bytecode.FunctionObj) (InterpretResult, error) {
	vm.push(bytecode.FromObj(fn))
	if rerr := vm.call(fn, 0); rerr != nil {
		vm.printAndReset(rerr)
		return InterpretRuntimeError, rerr
	}

	if rerr := vm.dispatch(); rerr != nil {
		vm.printAndReset(rerr)
		return InterpretRuntimeError, rerr
	}
	return InterpretOK, nil
}

func (vm *VM) printAndReset(rerr *RuntimeError) {
	if vm.errOut != nil {
		fmt.Fprintln(vm.errOut, rerr.Error())
	}
	vm.stack = vm.stack[:0]
	vm.frameCount = 0
}

func (vm *VM) push(v bytecode.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() bytecode.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) bytecode.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) currentFrame() *CallFrame {
	return &vm.frames[vm.frameCount-1]
}

func (vm *VM) readByte(frame *CallFrame) byte {
	b := frame.function.Chunk.Code[frame.ip]
	frame.ip++
	return b
}

func (vm *VM) readUint16(frame *CallFrame) uint16 {
	v := frame.function.Chunk.ReadUint16(frame.ip)
	frame.ip += 2
	return v
}

func (vm *VM) readUint32(frame *CallFrame) uint32 {
	v := frame.function.Chunk.ReadUint32(frame.ip)
	frame.ip += 4
	return v
}

func (vm *VM) readConstant(frame *CallFrame) bytecode.Value {
	idx := vm.readUint16(frame)
	return frame.function.Chunk.Constants[idx]
}

func (vm *VM) readStringConstant(frame *CallFrame) *bytecode.StringObj {
	return vm.readConstant(frame).AsString()
}

// call validates argCount against fn's call protocol and pushes a new
// frame for it. requiredArity is fn.Arity-fn.DefArity; the caller must
// supply exactly one of the two (no partial default fill), matching the
// original implementation's argument-count check.
func (vm *VM) call(fn *bytecode.FunctionObj, argCount int) *RuntimeError {
	requiredArity := fn.Arity - fn.DefArity
	if argCount != fn.Arity && argCount != requiredArity {
		return vm.runtimeErrorf(ArgumentError,
			"Expected %d arguments (or %d) but got %d.", fn.Arity, requiredArity, argCount)
	}
	if vm.frameCount == FramesMax {
		return vm.runtimeErrorf(FrameError, "Stack overflow.")
	}

	ip := 0
	if argCount == fn.Arity {
		ip = fn.BodyStart
	}

	vm.frames[vm.frameCount] = CallFrame{
		function: fn,
		ip:       ip,
		base:     len(vm.stack) - 1 - argCount,
	}
	vm.frameCount++
	return nil
}

// callValue implements OP_CALL's dispatch: a Native runs synchronously in
// Go, a Function gets a new CallFrame, anything else is not callable.
func (vm *VM) callValue(callee bytecode.Value, argCount int) *RuntimeError {
	if callee.IsObj() {
		switch obj := callee.AsObj().(type) {
		case *bytecode.NativeObj:
			args := vm.stack[len(vm.stack)-argCount:]
			result := obj.Fn(argCount, args)
			vm.stack = vm.stack[:len(vm.stack)-argCount-1]
			vm.push(result)
			return nil
		case *bytecode.FunctionObj:
			return vm.call(obj, argCount)
		}
	}
	return vm.runtimeErrorf(CallError, "Can only call functions.")
}

func (vm *VM) runtimeErrorf(kind ErrorKind, format string, args ...any) *RuntimeError {
	message := fmt.Sprintf(format, args...)

	trace := make([]StackFrame, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := vm.frames[i]
		line := 0
		if f.ip-1 >= 0 && f.ip-1 < len(f.function.Chunk.Lines) {
			line = f.function.Chunk.Lines[f.ip-1]
		}
		name := "script"
		if f.function.Name != nil {
			name = f.function.Name.Chars
		}
		trace = append(trace, StackFrame{Name: name, SourceLine: line})
	}

	return newRuntimeError(kind, message, trace)
}

// dispatch is the fetch-decode-execute loop proper. It runs until the
// outermost frame (the script) returns, or until an opcode raises a
// *RuntimeError.
func (vm *VM) dispatch() *RuntimeError {
	for {
		frame := vm.currentFrame()
		op := bytecode.OpCode(vm.readByte(frame))

		switch op {
		case bytecode.OpConstant:
			vm.push(vm.readConstant(frame))

		case bytecode.OpNone:
			vm.push(bytecode.None())
		case bytecode.OpTrue:
			vm.push(bytecode.Bool(true))
		case bytecode.OpFalse:
			vm.push(bytecode.Bool(false))

		case bytecode.OpPop:
			vm.pop()
		case bytecode.OpDup:
			vm.push(vm.peek(0))

		case bytecode.OpGetLocal:
			slot := int(vm.readByte(frame))
			vm.push(vm.stack[frame.base+slot])
		case bytecode.OpSetLocal:
			slot := int(vm.readByte(frame))
			vm.stack[frame.base+slot] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := vm.readStringConstant(frame)
			value, ok := vm.globals.Get(bytecode.FromString(name))
			if !ok {
				return vm.runtimeErrorf(ValueError, "Undefined variable '%s'.", name.Chars)
			}
			vm.push(value)

		case bytecode.OpDefGlobal:
			name := vm.readStringConstant(frame)
			vm.globals.Set(bytecode.FromString(name), vm.peek(0))
			vm.pop()

		case bytecode.OpSetGlobal:
			name := vm.readStringConstant(frame)
			if isNew := vm.globals.Set(bytecode.FromString(name), vm.peek(0)); isNew {
				vm.globals.Delete(bytecode.FromString(name))
				return vm.runtimeErrorf(ValueError, "Undefined variable '%s'.", name.Chars)
			}

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(bytecode.Bool(a.Equal(b)))

		case bytecode.OpGreater:
			if rerr := vm.binaryCompare(func(a, b float64) bool { return a > b }); rerr != nil {
				return rerr
			}
		case bytecode.OpLess:
			if rerr := vm.binaryCompare(func(a, b float64) bool { return a < b }); rerr != nil {
				return rerr
			}

		case bytecode.OpAdd:
			if rerr := vm.add(); rerr != nil {
				return rerr
			}
		case bytecode.OpSubtract:
			if rerr := vm.numericBinary(func(a, b float64) float64 { return a - b },
				func(a, b uint64) uint64 { return a - b }); rerr != nil {
				return rerr
			}
		case bytecode.OpMultiply:
			if rerr := vm.multiply(); rerr != nil {
				return rerr
			}
		case bytecode.OpDivide:
			b := vm.pop()
			a := vm.pop()
			if !a.IsNumeric() || !b.IsNumeric() {
				return vm.runtimeErrorf(ValueError, "Operands must be numbers.")
			}
			vm.push(bytecode.Number(a.AsFloat64() / b.AsFloat64()))
		case bytecode.OpModulo:
			if rerr := vm.integerBinary(func(a, b uint64) uint64 { return a % b }); rerr != nil {
				return rerr
			}
		case bytecode.OpLeftShift:
			if rerr := vm.integerBinary(func(a, b uint64) uint64 { return a << b }); rerr != nil {
				return rerr
			}
		case bytecode.OpRightShift:
			if rerr := vm.integerBinary(func(a, b uint64) uint64 { return a >> b }); rerr != nil {
				return rerr
			}

		case bytecode.OpNot:
			v := vm.pop()
			vm.push(bytecode.Bool(!v.Truthy()))

		case bytecode.OpNegate:
			v := vm.pop()
			switch {
			case v.IsInteger():
				vm.push(bytecode.Number(-float64(v.AsInteger())))
			case v.IsNumber():
				vm.push(bytecode.Number(-v.AsNumber()))
			default:
				return vm.runtimeErrorf(ValueError, "Operand must be a number.")
			}

		case bytecode.OpPrint:
			v := vm.pop()
			fmt.Fprintln(vm.stdout, v.Display())

		case bytecode.OpJump:
			offset := vm.readUint32(frame)
			frame.ip += int(offset)
		case bytecode.OpJumpFalse:
			offset := vm.readUint32(frame)
			if !vm.peek(0).Truthy() {
				frame.ip += int(offset)
			}
		case bytecode.OpLoop:
			offset := vm.readUint32(frame)
			frame.ip -= int(offset)

		case bytecode.OpCall:
			argCount := int(vm.readByte(frame))
			callee := vm.peek(argCount)
			if rerr := vm.callValue(callee, argCount); rerr != nil {
				return rerr
			}

		case bytecode.OpReturn:
			result := vm.pop()
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stack = vm.stack[:frame.base]
			vm.push(result)
		}
	}
}

func (vm *VM) binaryCompare(cmp func(a, b float64) bool) *RuntimeError {
	b := vm.pop()
	a := vm.pop()
	if !a.IsNumeric() || !b.IsNumeric() {
		return vm.runtimeErrorf(ValueError, "Operands must be numbers.")
	}
	vm.push(bytecode.Bool(cmp(a.AsFloat64(), b.AsFloat64())))
	return nil
}

func (vm *VM) integerBinary(op func(a, b uint64) uint64) *RuntimeError {
	b := vm.pop()
	a := vm.pop()
	if !a.IsInteger() || !b.IsInteger() {
		return vm.runtimeErrorf(ValueError, "Operands must be integers.")
	}
	vm.push(bytecode.Integer(op(a.AsInteger(), b.AsInteger())))
	return nil
}

// numericBinary implements an operator that is integer-preserving when both
// operands are Integer, and falls back to double arithmetic (with the
// usual Integer->float64 promotion) otherwise.
func (vm *VM) numericBinary(floatOp func(a, b float64) float64, intOp func(a, b uint64) uint64) *RuntimeError {
	b := vm.pop()
	a := vm.pop()
	if !a.IsNumeric() || !b.IsNumeric() {
		return vm.runtimeErrorf(ValueError, "Operands must be numbers.")
	}
	if a.IsInteger() && b.IsInteger() {
		vm.push(bytecode.Integer(intOp(a.AsInteger(), b.AsInteger())))
		return nil
	}
	vm.push(bytecode.Number(floatOp(a.AsFloat64(), b.AsFloat64())))
	return nil
}

// add implements OP_ADD: string concatenation whenever either operand is a
// string (the other side is coerced to its display form even if it is not
// itself a string), otherwise the same integer-preserving arithmetic as
// every other numeric binary operator.
func (vm *VM) add() *RuntimeError {
	b := vm.peek(0)
	a := vm.peek(1)

	if a.IsString() || b.IsString() {
		vm.pop()
		vm.pop()
		concatenated := a.Display() + b.Display()
		vm.push(bytecode.FromString(vm.heap.TakeString(concatenated)))
		return nil
	}

	if !a.IsNumeric() || !b.IsNumeric() {
		return vm.runtimeErrorf(ValueError, "Operands must be numbers or a string and a value.")
	}

	vm.pop()
	vm.pop()
	if a.IsInteger() && b.IsInteger() {
		vm.push(bytecode.Integer(a.AsInteger() + b.AsInteger()))
		return nil
	}
	vm.push(bytecode.Number(a.AsFloat64() + b.AsFloat64()))
	return nil
}

// multiply implements OP_MULTIPLY: string*integer (either operand order)
// replicates the string; otherwise it is the usual numeric multiply.
func (vm *VM) multiply() *RuntimeError {
	b := vm.peek(0)
	a := vm.peek(1)

	switch {
	case a.IsString() && b.IsInteger():
		vm.pop()
		vm.pop()
		vm.push(bytecode.FromString(vm.heap.TakeString(repeatString(a.AsString().Chars, b.AsInteger()))))
		return nil
	case b.IsString() && a.IsInteger():
		vm.pop()
		vm.pop()
		vm.push(bytecode.FromString(vm.heap.TakeString(repeatString(b.AsString().Chars, a.AsInteger()))))
		return nil
	}

	return vm.numericBinary(func(a, b float64) float64 { return a * b },
		func(a, b uint64) uint64 { return a * b })
}

func repeatString(s string, count uint64) string {
	out := make([]byte, 0, len(s)*int(count))
	for i := uint64(0); i < count; i++ {
		out = append(out, s...)
	}
	return string(out)
}
