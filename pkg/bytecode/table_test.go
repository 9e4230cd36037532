package bytecode

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTableGetReturnsLastSetValue(t *testing.T) {
	tbl := NewTable()
	tbl.Set(Integer(1), Integer(100))
	tbl.Set(Integer(1), Integer(200))

	got, ok := tbl.Get(Integer(1))
	if !ok {
		t.Fatal("expected key 1 to be present")
	}
	if !got.Equal(Integer(200)) {
		t.Fatalf("expected last-set value 200, got %#v", got)
	}
}

func TestTableGetMissingKeyReturnsNotOk(t *testing.T) {
	tbl := NewTable()
	tbl.Set(Integer(1), Integer(1))
	if _, ok := tbl.Get(Integer(2)); ok {
		t.Fatal("expected missing key to report not-ok")
	}
}

func TestTableDeleteThenGetReturnsNotOk(t *testing.T) {
	tbl := NewTable()
	tbl.Set(Integer(5), Bool(true))
	if !tbl.Delete(Integer(5)) {
		t.Fatal("Delete should report true for a present key")
	}
	if _, ok := tbl.Get(Integer(5)); ok {
		t.Fatal("deleted key should no longer be gettable")
	}
}

// TestTableTombstoneDoesNotBreakProbingToLaterKeys inserts enough keys that
// at least two collide in the same probe chain, deletes the first, and
// checks that the second -- which only resolved its collision by probing
// past the first's slot -- is still reachable. This is the behavior the
// tombstone state exists to preserve (see Table's doc comment).
func TestTableTombstoneDoesNotBreakProbingToLaterKeys(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < 8; i++ {
		tbl.Set(Integer(uint64(i)), Integer(uint64(i*10)))
	}

	// Keys 2 and 6 share a home slot at capacity 16; 6 sits one slot past 2.
	tbl.Delete(Integer(2))

	for i := 0; i < 8; i++ {
		if i == 2 {
			continue
		}
		got, ok := tbl.Get(Integer(uint64(i)))
		if !ok {
			t.Fatalf("key %d should still be reachable after deleting key 2", i)
		}
		if !got.Equal(Integer(uint64(i * 10))) {
			t.Fatalf("key %d: expected %d, got %#v", i, i*10, got)
		}
	}
}

func TestTableSetReportsWhetherKeyIsNew(t *testing.T) {
	tbl := NewTable()
	if isNew := tbl.Set(Integer(1), Integer(1)); !isNew {
		t.Fatal("first Set of a key should report isNew=true")
	}
	if isNew := tbl.Set(Integer(1), Integer(2)); isNew {
		t.Fatal("second Set of the same key should report isNew=false")
	}
}

func TestTableRehashGrowsPastLoadFactor(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < 100; i++ {
		tbl.Set(Integer(uint64(i)), Integer(uint64(i)))
	}
	for i := 0; i < 100; i++ {
		got, ok := tbl.Get(Integer(uint64(i)))
		if !ok || !got.Equal(Integer(uint64(i))) {
			t.Fatalf("key %d lost across rehash: ok=%v got=%#v", i, ok, got)
		}
	}
}

func TestTableAddAllCopiesEveryLiveEntry(t *testing.T) {
	src := NewTable()
	src.Set(Integer(1), Integer(10))
	src.Set(Integer(2), Integer(20))
	src.Set(Integer(3), Integer(30))
	src.Delete(Integer(2))

	dst := NewTable()
	src.AddAll(dst)

	got, ok := dst.Get(Integer(1))
	if !ok || !got.Equal(Integer(10)) {
		t.Fatalf("expected dst[1]=10, got ok=%v v=%#v", ok, got)
	}
	if _, ok := dst.Get(Integer(2)); ok {
		t.Fatal("tombstoned key 2 should not have been copied")
	}
	got, ok = dst.Get(Integer(3))
	if !ok || !got.Equal(Integer(30)) {
		t.Fatalf("expected dst[3]=30, got ok=%v v=%#v", ok, got)
	}
}

// TestTableFindStringUsesBytesNotIdentity exercises the intern set's lookup
// path directly: FindString must locate a string by content even before the
// caller holds a *StringObj to compare by pointer.
func TestTableFindStringUsesBytesNotIdentity(t *testing.T) {
	heap := NewHeap()
	s := heap.CopyString("needle")

	found, ok := heap.strings.FindString("needle", s.Hash)
	if !ok {
		t.Fatal("expected FindString to locate the interned string by content")
	}
	if found != s {
		t.Fatal("FindString should return the same *StringObj the intern set holds")
	}

	if _, ok := heap.strings.FindString("haystack", fnv1a("haystack")); ok {
		t.Fatal("FindString should report not-found for a never-interned string")
	}
}

// TestTableStructuralDiffAfterOperations uses go-cmp to compare the set of
// live (non-tombstone, non-vacant) key/value pairs across two tables built
// by different sequences of operations that should converge on the same
// logical contents, independent of table capacity or probe order.
func TestTableStructuralDiffAfterOperations(t *testing.T) {
	buildA := func() *Table {
		tbl := NewTable()
		tbl.Set(Integer(1), Integer(10))
		tbl.Set(Integer(2), Integer(20))
		tbl.Set(Integer(3), Integer(30))
		tbl.Delete(Integer(2))
		tbl.Set(Integer(4), Integer(40))
		return tbl
	}
	buildB := func() *Table {
		tbl := NewTable()
		tbl.Set(Integer(3), Integer(30))
		tbl.Set(Integer(2), Integer(999))
		tbl.Set(Integer(1), Integer(10))
		tbl.Delete(Integer(2))
		tbl.Set(Integer(4), Integer(40))
		return tbl
	}

	type pair struct {
		Key   uint64
		Value uint64
	}
	snapshot := func(tbl *Table) []pair {
		var rows []pair
		for i := uint64(0); i < 16; i++ {
			if v, ok := tbl.Get(Integer(i)); ok {
				rows = append(rows, pair{Key: i, Value: v.AsInteger()})
			}
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
		return rows
	}

	a, b := snapshot(buildA()), snapshot(buildB())
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("tables built via different operation orders diverged (-a +b):\n%s", diff)
	}
}
