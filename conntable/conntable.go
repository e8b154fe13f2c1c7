// Package conntable provides a sparse, append-only arena of connection slots.
// Slot indices double as reactor tokens, so an index is never handed out twice
// during the lifetime of a Table; a cleared slot stays vacant.
package conntable

// Index identifies a slot in a Table. Indices are assigned in increasing order
// starting at 0 and are stable for the lifetime of the table.
type Index = uint32

type slot[T any] struct {
	value    T
	occupied bool
}

// Table is an arena of optional values addressed by Index. It is not safe for
// concurrent use; it is meant to be owned by a single event loop.
type Table[T any] struct {
	slots    []slot[T]
	occupied int
}

// New creates an empty Table with room for capacity slots before growing.
//
// Parameters:
//   - capacity: Initial slot capacity hint; may be 0
//
// Returns:
//   - A new, empty *Table[T]
func New[T any](capacity int) *Table[T] {
	return &Table[T]{slots: make([]slot[T], 0, capacity)}
}

// Insert stores v in a fresh slot and returns its index. Vacant slots are
// never reused, so the returned index has never been seen before.
//
// Parameters:
//   - v: The value to store
//
// Returns:
//   - The index of the new slot
func (t *Table[T]) Insert(v T) Index {
	t.slots = append(t.slots, slot[T]{value: v, occupied: true})
	t.occupied++
	return Index(len(t.slots) - 1)
}

// Get returns the value stored at i.
//
// Parameters:
//   - i: The slot index to look up
//
// Returns:
//   - The stored value, or the zero value of T if i is vacant or out of range
//   - true if the slot is occupied, false otherwise
func (t *Table[T]) Get(i Index) (T, bool) {
	if int(i) >= len(t.slots) || !t.slots[i].occupied {
		var zero T
		return zero, false
	}

	return t.slots[i].value, true
}

// Clear vacates the slot at i and returns the value it held. The index is
// retired: it will not be returned by a later Insert.
//
// Parameters:
//   - i: The slot index to clear
//
// Returns:
//   - The value that was stored, or the zero value of T
//   - true if the slot was occupied before the call
func (t *Table[T]) Clear(i Index) (T, bool) {
	v, ok := t.Get(i)
	if !ok {
		return v, false
	}

	var zero T
	t.slots[i] = slot[T]{value: zero}
	t.occupied--
	return v, true
}

// Len returns the number of occupied slots.
func (t *Table[T]) Len() int {
	return t.occupied
}

// Assigned returns the number of indices handed out so far, occupied or not.
func (t *Table[T]) Assigned() int {
	return len(t.slots)
}

// Range calls f for every occupied slot in index order. Iteration stops when
// f returns false. f must not insert into or clear the table.
//
// Parameters:
//   - f: Function called with each occupied index and its value
func (t *Table[T]) Range(f func(i Index, v T) bool) {
	for i := range t.slots {
		if !t.slots[i].occupied {
			continue
		}

		if !f(Index(i), t.slots[i].value) {
			return
		}
	}
}
