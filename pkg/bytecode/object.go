package bytecode

import "fmt"

// ObjKind discriminates the heap object variants.
type ObjKind uint8

const (
	ObjKindString ObjKind = iota
	ObjKindFunction
	ObjKindNative
)

// Obj is the interface implemented by every heap-allocated object. Every
// Obj is threaded into a single process-wide freelist (see Heap) so that
// shutdown can walk and release everything in one pass -- there is no
// garbage collector in this design, only that one intrusive list.
type Obj interface {
	Kind() ObjKind
	Display() string
	next() Obj
	setNext(Obj)
}

type objHeader struct {
	link Obj
}

func (h *objHeader) next() Obj      { return h.link }
func (h *objHeader) setNext(o Obj)  { h.link = o }

// StringObj is an immutable byte sequence plus its precomputed hash. All
// strings pass through the Heap's intern table so that equality between
// two interned strings reduces to pointer identity.
type StringObj struct {
	objHeader
	Chars string
	Hash  uint32
}

func (s *StringObj) Kind() ObjKind   { return ObjKindString }
func (s *StringObj) Display() string { return s.Chars }

// FunctionObj holds a compiled function: its arity (required and
// default-bearing parameter counts), the chunk of bytecode for its body,
// and an optional name. The top-level script is a FunctionObj with Name
// == nil.
type FunctionObj struct {
	objHeader
	Name     *StringObj
	Arity    int
	DefArity int
	Chunk    *Chunk

	// BodyStart is the Chunk offset where the function's body proper
	// begins, after the prologue that evaluates default-parameter
	// expressions. A call supplying all Arity arguments starts execution
	// here, skipping the prologue; a call supplying only the required
	// Arity-DefArity arguments starts at offset 0 and falls through the
	// prologue first. Zero when DefArity is zero.
	BodyStart int
}

func (f *FunctionObj) Kind() ObjKind { return ObjKindFunction }
func (f *FunctionObj) Display() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// NativeFn is a host-implemented function: it receives the argument count
// and a slice over exactly that many stack slots, and returns a Value.
type NativeFn func(argCount int, args []Value) Value

// NativeObj wraps a NativeFn so it can be stored in a Value and called
// through the same OP_CALL path as a FunctionObj.
type NativeObj struct {
	objHeader
	Name string
	Fn   NativeFn
}

func (n *NativeObj) Kind() ObjKind   { return ObjKindNative }
func (n *NativeObj) Display() string { return fmt.Sprintf("<native %s>", n.Name) }

// Heap owns every object the VM allocates and the intern set used to
// dedupe strings. It is embedded in the VM; values referencing an Obj are
// non-owning views whose lifetime is the Heap's (and so the VM's).
type Heap struct {
	head    Obj
	strings *Table
}

// NewHeap creates an empty heap with its intern table initialized.
func NewHeap() *Heap {
	return &Heap{strings: NewTable()}
}

func (h *Heap) track(o Obj) {
	o.setNext(h.head)
	h.head = o
}

// CopyString interns chars, allocating a new StringObj only on a miss.
// Two CopyString calls with byte-equal input always return the same
// pointer once interned (the invariant string identity depends on).
func (h *Heap) CopyString(chars string) *StringObj {
	hash := fnv1a(chars)
	if existing, ok := h.strings.FindString(chars, hash); ok {
		return existing
	}
	s := &StringObj{Chars: chars, Hash: hash}
	h.track(s)
	h.strings.Set(FromString(s), Bool(true))
	return s
}

// TakeString is the adopting variant used by concatenation and
// replication: the caller has already built the final byte sequence and
// hands it over, still going through interning so identity is preserved.
func (h *Heap) TakeString(chars string) *StringObj {
	return h.CopyString(chars)
}

// NewFunction allocates an empty function: name unset, zero arity, empty
// chunk. The compiler fills in the rest as it compiles the function body.
func (h *Heap) NewFunction() *FunctionObj {
	f := &FunctionObj{Chunk: NewChunk()}
	h.track(f)
	return f
}

// NewNative wraps fn as a heap object so it can live in the global table
// and be invoked via OP_CALL like any other callable Value.
func (h *Heap) NewNative(name string, fn NativeFn) *NativeObj {
	n := &NativeObj{Name: name, Fn: fn}
	h.track(n)
	return n
}

// FreeObjects walks the freelist releasing every object. Go's own garbage
// collector will reclaim the backing memory regardless; this exists so the
// object model's lifetime story -- "the VM frees everything it allocated,
// in one pass, at shutdown" -- has a concrete walk to point to, matching
// the reference implementation's freeObjects().
func (h *Heap) FreeObjects() {
	for o := h.head; o != nil; {
		next := o.next()
		o.setNext(nil)
		o = next
	}
	h.head = nil
}

// fnv1a computes the 32-bit FNV-1a hash used for string objects, matching
// the magnitude and mixing style of the reference implementation's
// hashString (it uses the same offset basis/prime as FNV-1a).
func fnv1a(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}
