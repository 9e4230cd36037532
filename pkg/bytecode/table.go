package bytecode

const tableMaxLoad = 0.75

type entry struct {
	key   Value
	value Value
}

func vacantEntry() entry {
	return entry{key: Empty(), value: None()}
}

func (e entry) isVacant() bool {
	return e.key.Kind == KindEmpty && e.value.Kind == KindNone
}

func (e entry) isTombstone() bool {
	return e.key.Kind == KindEmpty && e.value.Kind == KindBool && e.value.boolean
}

// Table is an open-addressed hash table keyed by Value, used both for the
// VM's global variable store and for the heap's string-intern set.
//
// Deletion does not rehash: a deleted slot becomes a tombstone (key=Empty,
// value=true) so that probe sequences through it keep working for keys
// that were inserted past it. count includes tombstones for load-factor
// accounting; only a rehash resets count to the number of live entries.
type Table struct {
	entries  []entry
	count    int
}

// NewTable returns an empty table. Its backing array is allocated lazily,
// on the first Set.
func NewTable() *Table {
	return &Table{}
}

// findEntry implements the shared probe sequence used by Get/Set/Delete:
// linear probing from hash mod capacity, remembering the first tombstone
// seen as a candidate insertion slot but continuing past it so that a
// matching key further down the probe chain is still found.
func findEntry(entries []entry, key Value) int {
	capacity := len(entries)
	index := int(key.Hash() % uint32(capacity))
	tombstone := -1

	for {
		e := &entries[index]
		if e.key.Kind == KindEmpty {
			if e.isVacant() {
				if tombstone != -1 {
					return tombstone
				}
				return index
			}
			if tombstone == -1 {
				tombstone = index
			}
		} else if e.key.Equal(key) {
			return index
		}

		index = (index + 1) % capacity
	}
}

// Get returns the value stored for key, if any.
func (t *Table) Get(key Value) (Value, bool) {
	if t.count == 0 {
		return Value{}, false
	}
	idx := findEntry(t.entries, key)
	e := t.entries[idx]
	if e.key.Kind == KindEmpty {
		return Value{}, false
	}
	return e.value, true
}

func (t *Table) adjustCapacity(capacity int) {
	entries := make([]entry, capacity)
	for i := range entries {
		entries[i] = vacantEntry()
	}

	liveCount := 0
	for _, old := range t.entries {
		if old.key.Kind == KindEmpty {
			continue
		}
		idx := findEntry(entries, old.key)
		entries[idx] = old
		liveCount++
	}

	t.entries = entries
	t.count = liveCount
}

// Set inserts or overwrites key's value, growing and rehashing (dropping
// tombstones) whenever the load factor would exceed 0.75. Reports whether
// key was newly inserted (as opposed to overwriting an existing entry).
func (t *Table) Set(key, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		capacity := growCapacity(len(t.entries))
		t.adjustCapacity(capacity)
	}

	idx := findEntry(t.entries, key)
	e := &t.entries[idx]
	isNewKey := e.key.Kind == KindEmpty
	if isNewKey && e.isVacant() {
		t.count++
	}

	e.key = key
	e.value = value
	return isNewKey
}

// Delete converts an occupied slot into a tombstone. count is left
// unchanged, consistent with count tracking load factor, not live entries.
func (t *Table) Delete(key Value) bool {
	if t.count == 0 {
		return false
	}

	idx := findEntry(t.entries, key)
	e := &t.entries[idx]
	if e.key.Kind == KindEmpty {
		return false
	}

	e.key = Empty()
	e.value = Bool(true)
	return true
}

// AddAll copies every live entry of t into dst.
func (t *Table) AddAll(dst *Table) {
	for _, e := range t.entries {
		if e.key.Kind != KindEmpty {
			dst.Set(e.key, e.value)
		}
	}
}

// FindString looks up an interned string by its bytes and hash rather than
// by pointer identity -- this is how the intern set itself performs
// lookups before it has a *StringObj to compare by identity.
//
// Like the reference implementation's tableFindString, this does not skip
// over tombstones: it stops at the first Empty-keyed slot, whether vacant
// or a tombstone. See DESIGN.md for why that inconsistency with
// findEntry's tombstone-skipping is kept rather than "fixed".
func (t *Table) FindString(chars string, hash uint32) (*StringObj, bool) {
	if t.count == 0 {
		return nil, false
	}

	capacity := len(t.entries)
	index := int(hash % uint32(capacity))
	for {
		e := &t.entries[index]
		if e.key.Kind == KindEmpty {
			return nil, false
		}
		if s, ok := e.key.obj.(*StringObj); ok && s.Hash == hash && s.Chars == chars {
			return s, true
		}
		index = (index + 1) % capacity
	}
}

// Count reports the number of slots counted toward the load factor
// (live entries plus tombstones).
func (t *Table) Count() int { return t.count }

func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}
