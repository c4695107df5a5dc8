package binmap

// Entry is a temporary view of a map entry.
// It can be updated or deleted during the callback.
//
// WARNING:
// - Only valid inside the callback; do NOT keep, return, or use it outside.
// - Not safe across goroutines.
type Entry[K comparable, V any] struct {
	key    K
	value  V
	loaded bool
	op     computeOp
}

// Key returns the entry's key.
func (e *Entry[K, V]) Key() K {
	return e.key
}

// Value returns the entry's value. Returns zero value if not loaded.
func (e *Entry[K, V]) Value() V {
	return e.value
}

// Loaded reports whether the entry exists in the map.
func (e *Entry[K, V]) Loaded() bool {
	return e.loaded
}

// Update sets the entry's value. Inserts it if not loaded, replaces if loaded.
func (e *Entry[K, V]) Update(value V) {
	e.value = value
	e.op = updateOp
}

// Delete marks the entry for removal and clears its value.
func (e *Entry[K, V]) Delete() {
	e.value = *new(V)
	e.op = deleteOp
}
