package binmap

import (
	"iter"

	"github.com/pkg/errors"
)

// Iterator is a fail-fast cursor over the entries of a Map in bin order.
//
// Usage:
//
//	it := m.Iter()
//	for it.Next() {
//		if it.Value() < 0 {
//			_ = it.Remove()
//		}
//	}
//	if err := it.Err(); err != nil {
//		// the map was modified behind the iterator's back
//	}
//
// A structural change that did not go through the iterator ends the
// iteration and Err reports ErrConcurrentModification. Detection is
// best-effort only.
type Iterator[K comparable, V any] struct {
	m                *Map[K, V]
	tab              []*node[K, V]
	next             *node[K, V]
	current          *node[K, V]
	index            int // bin of next
	curIndex         int // bin of current
	expectedModCount int
	err              error
}

// Iter returns an iterator positioned before the first entry.
func (m *Map[K, V]) Iter() *Iterator[K, V] {
	if m.pending != 0 {
		m.settleAnchor(m.pending - 1)
	}
	it := &Iterator[K, V]{
		m:                m,
		tab:              m.table,
		curIndex:         -1,
		expectedModCount: m.modCount,
	}
	if m.size > 0 {
		it.advance(0)
	}
	return it
}

// advance points next at the head of the first non-empty bin at or after i.
func (it *Iterator[K, V]) advance(i int) {
	for ; i < len(it.tab); i++ {
		if e := it.tab[i]; e != nil {
			it.index = i
			it.next = e
			return
		}
	}
	it.index = len(it.tab)
	it.next = nil
}

// Next moves to the next entry and reports whether there is one.
func (it *Iterator[K, V]) Next() bool {
	if it.err != nil {
		return false
	}
	if it.m.modCount != it.expectedModCount {
		it.err = concurrentModification("Iterator.Next")
		it.current = nil
		return false
	}
	e := it.next
	if e == nil || it.index != it.curIndex {
		// leaving the bin of the previous entry
		it.m.settleAnchor(it.curIndex)
	}
	if e == nil {
		it.current = nil
		return false
	}
	it.current = e
	it.curIndex = it.index
	if it.next = e.next; it.next == nil {
		it.advance(it.index + 1)
	}
	return true
}

// Key returns the key of the current entry.
func (it *Iterator[K, V]) Key() K {
	if it.current == nil {
		return *new(K)
	}
	return it.current.key
}

// Value returns the value of the current entry.
func (it *Iterator[K, V]) Value() V {
	if it.current == nil {
		return *new(V)
	}
	return it.current.value
}

// SetValue replaces the value of the current entry. This is not a
// structural modification.
func (it *Iterator[K, V]) SetValue(value V) error {
	if it.current == nil {
		return errors.Wrap(ErrIllegalState, "Iterator.SetValue without a current entry")
	}
	it.current.value = value
	return nil
}

// Remove deletes the current entry from the map. The iterator stays
// valid; Remove is the only structural modification allowed during
// iteration.
func (it *Iterator[K, V]) Remove() error {
	if it.err != nil {
		return it.err
	}
	p := it.current
	if p == nil {
		return errors.Wrap(ErrIllegalState, "Iterator.Remove without a current entry")
	}
	if it.m.modCount != it.expectedModCount {
		it.err = concurrentModification("Iterator.Remove")
		return it.err
	}
	it.current = nil
	tree := p.isTree()
	// the root must not move in front of entries not visited yet
	if !it.m.unlinkNode(p, false) {
		return errors.Wrap(ErrIllegalState, "Iterator.Remove of an entry no longer in the map")
	}
	if tree {
		it.m.deferAnchor(it.curIndex)
	}
	it.expectedModCount = it.m.modCount
	return nil
}

// Err returns the error that ended the iteration, if any.
func (it *Iterator[K, V]) Err() error {
	return it.err
}

// stop ends the iteration early.
func (it *Iterator[K, V]) stop() {
	if it.err == nil && it.m.modCount == it.expectedModCount {
		it.m.settleAnchor(it.curIndex)
	}
	it.current, it.next = nil, nil
	it.index = len(it.tab)
}

// deferAnchor records that the tree bin at index may have its root off the bin
// head. A bin recorded earlier has been left by the iterator and is
// re-anchored now.
func (m *Map[K, V]) deferAnchor(index int) {
	if m.pending != 0 && m.pending != index+1 {
		m.settleAnchor(m.pending - 1)
	}
	m.pending = index + 1
}

// settleAnchor re-anchors the tree bin at index if it was deferred.
func (m *Map[K, V]) settleAnchor(index int) {
	if m.pending == 0 || m.pending != index+1 {
		return
	}
	m.pending = 0
	if index < len(m.table) {
		if first := m.table[index]; first != nil && first.isTree() {
			m.moveRootToFront(m.table, treeRoot(first))
		}
	}
}

// ============================================================================
// Range-style iteration
// ============================================================================

// All returns an iterator over all key-value pairs.
// It panics with ErrConcurrentModification if the map is structurally
// modified during the iteration.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return m.Range
}

// Keys returns an iterator over all keys.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		m.Range(func(k K, _ V) bool {
			return yield(k)
		})
	}
}

// Values returns an iterator over all values.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		m.Range(func(_ K, v V) bool {
			return yield(v)
		})
	}
}

// Range calls yield sequentially for each key and value present in the
// map. If yield returns false, Range stops the iteration.
//
// It panics with ErrConcurrentModification if yield structurally modifies
// the map.
func (m *Map[K, V]) Range(yield func(key K, value V) bool) {
	it := m.Iter()
	for it.Next() {
		if !yield(it.current.key, it.current.value) {
			return
		}
	}
	if it.err != nil {
		panic(it.err)
	}
}

// ForEach calls fn for every entry.
//
// It panics with ErrConcurrentModification if fn structurally modifies
// the map.
func (m *Map[K, V]) ForEach(fn func(key K, value V)) {
	if fn == nil {
		panic(nilFunction("ForEach"))
	}
	m.Range(func(k K, v V) bool {
		fn(k, v)
		return true
	})
}

// Entries returns an iterator over modifiable entry views. Inside the
// loop, e.Update replaces the value and e.Delete removes the entry. The
// change made during the last iteration is applied even when the loop
// breaks early.
//
// Usage:
//
//	for e := range m.Entries() {
//		if e.Value() == 0 {
//			e.Delete()
//		}
//	}
//
// Any other structural modification during the loop panics with
// ErrConcurrentModification.
func (m *Map[K, V]) Entries() iter.Seq[*Entry[K, V]] {
	return func(yield func(*Entry[K, V]) bool) {
		it := m.Iter()
		for it.Next() {
			e := it.current
			view := Entry[K, V]{key: e.key, value: e.value, loaded: true}
			cont := yield(&view)
			switch view.op {
			case updateOp:
				e.value = view.value
				m.afterAccess(e)
			case deleteOp:
				if err := it.Remove(); err != nil {
					panic(err)
				}
			}
			if !cont {
				it.stop()
				return
			}
		}
		if it.err != nil {
			panic(it.err)
		}
	}
}
