package bytecode

import "testing"

func TestValueEqualIsReflexiveAndSymmetric(t *testing.T) {
	heap := NewHeap()
	values := []Value{
		Bool(true), Bool(false), None(), Number(1.5), Integer(7),
		FromString(heap.CopyString("hi")), Empty(),
	}

	for _, v := range values {
		if !v.Equal(v) {
			t.Fatalf("%#v is not equal to itself", v)
		}
	}

	for _, a := range values {
		for _, b := range values {
			if a.Equal(b) != b.Equal(a) {
				t.Fatalf("Equal not symmetric for %#v and %#v", a, b)
			}
		}
	}
}

func TestValueEqualCrossComparesIntegerAndNumberByPromotion(t *testing.T) {
	if !Integer(4).Equal(Number(4.0)) {
		t.Fatal("Integer(4) should equal Number(4.0) by promotion")
	}
	if !Number(4.0).Equal(Integer(4)) {
		t.Fatal("Number(4.0) should equal Integer(4) by promotion")
	}
	if Integer(4).Equal(Number(4.5)) {
		t.Fatal("Integer(4) should not equal Number(4.5)")
	}
}

func TestValueEqualRequiresMatchingKindOtherwise(t *testing.T) {
	if Bool(true).Equal(Integer(1)) {
		t.Fatal("Bool and Integer should never compare equal")
	}
	if None().Equal(Empty()) {
		t.Fatal("None and Empty are distinct kinds and must not compare equal")
	}
}

func TestValueHashConsistentWithEqualForBoolNoneInteger(t *testing.T) {
	pairs := [][2]Value{
		{Bool(true), Bool(true)},
		{Bool(false), Bool(false)},
		{None(), None()},
		{Integer(42), Integer(42)},
	}
	for _, p := range pairs {
		if !p[0].Equal(p[1]) {
			t.Fatalf("test setup bug: %#v should equal %#v", p[0], p[1])
		}
		if p[0].Hash() != p[1].Hash() {
			t.Fatalf("equal values %#v and %#v hashed differently", p[0], p[1])
		}
	}
}

func TestValueHashConsistentWithEqualForInternedObj(t *testing.T) {
	heap := NewHeap()
	a := FromString(heap.CopyString("shared"))
	b := FromString(heap.CopyString("shared"))
	if !a.Equal(b) {
		t.Fatal("two interned copies of the same string should be equal")
	}
	if a.Hash() != b.Hash() {
		t.Fatal("equal interned strings should hash identically")
	}
}

func TestTruthinessNumberIsFalseyOnlyWhenNegative(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Number(0), true},
		{Number(1.5), true},
		{Number(-0.001), false},
		{Integer(0), false},
		{Integer(1), true},
		{None(), false},
		{Bool(true), true},
		{Bool(false), false},
	}
	for _, c := range cases {
		if got := c.v.Truthy(); got != c.want {
			t.Errorf("Truthy(%#v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestTruthinessStringRule(t *testing.T) {
	heap := NewHeap()
	cases := []struct {
		s    string
		want bool
	}{
		{"false", false},
		{"true", true},
		{"x", false}, // any other length-1 string is falsey
		{"", true},   // empty string has length 0, not 1
		{"hello", true},
	}
	for _, c := range cases {
		v := FromString(heap.CopyString(c.s))
		if got := v.Truthy(); got != c.want {
			t.Errorf("Truthy(%q) = %v, want %v", c.s, got, c.want)
		}
	}
}

func TestDisplayFormatsEachKind(t *testing.T) {
	heap := NewHeap()
	cases := []struct {
		v    Value
		want string
	}{
		{Bool(true), "true"},
		{Bool(false), "false"},
		{None(), "none"},
		{Integer(42), "42"},
		{Number(1.5), "1.5"},
		{FromString(heap.CopyString("hi")), "hi"},
	}
	for _, c := range cases {
		if got := c.v.Display(); got != c.want {
			t.Errorf("Display(%#v) = %q, want %q", c.v, got, c.want)
		}
	}
}
