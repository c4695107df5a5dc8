package binmap

import (
	"math"
	"slices"
	"strconv"
	"testing"

	"github.com/pkg/errors"
)

func TestIterator(t *testing.T) {
	const numEntries = 1000
	m := newMap[string, int](t)
	for i := range numEntries {
		m.Put(strconv.Itoa(i), i)
	}
	met := make(map[string]int)
	it := m.Iter()
	for it.Next() {
		if it.Key() != strconv.Itoa(it.Value()) {
			t.Fatalf("got unexpected key/value: %v/%v", it.Key(), it.Value())
		}
		met[it.Key()]++
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if len(met) != numEntries {
		t.Fatalf("got unexpected number of keys: %d", len(met))
	}
	for k, c := range met {
		if c != 1 {
			t.Fatalf("key %s visited %d times", k, c)
		}
	}
	if it.Next() {
		t.Fatal("exhausted iterator moved on")
	}

	var empty Map[int, int]
	if empty.Iter().Next() {
		t.Fatal("empty map yielded an entry")
	}
}

func TestIterator_ConcurrentModification(t *testing.T) {
	m := newMap[int, int](t)
	for i := range 100 {
		m.Put(i, i)
	}
	it := m.Iter()
	if !it.Next() {
		t.Fatal("expected an entry")
	}
	// replacing a value is not a structural change
	m.Put(it.Key(), -1)
	if !it.Next() {
		t.Fatal("value update ended the iteration")
	}
	m.Put(1000, 1000)
	if it.Next() {
		t.Fatal("iteration continued after a structural change")
	}
	if !errors.Is(it.Err(), ErrConcurrentModification) {
		t.Fatalf("unexpected error: %v", it.Err())
	}
	if err := it.Remove(); !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIterator_IllegalState(t *testing.T) {
	m := newMap[int, int](t)
	m.Put(1, 1)
	it := m.Iter()
	if err := it.Remove(); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := it.SetValue(2); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("unexpected error: %v", err)
	}
	if !it.Next() {
		t.Fatal("expected an entry")
	}
	if err := it.SetValue(2); err != nil {
		t.Fatal(err)
	}
	if err := it.Remove(); err != nil {
		t.Fatal(err)
	}
	if err := it.Remove(); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Size() != 0 {
		t.Fatalf("unexpected size: %d", m.Size())
	}
}

func TestIterator_Remove(t *testing.T) {
	const numEntries = 1000
	m := newMap[int, int](t)
	for i := range numEntries {
		m.Put(i, i)
	}
	visited := 0
	it := m.Iter()
	for it.Next() {
		visited++
		if it.Key()%2 == 0 {
			if err := it.Remove(); err != nil {
				t.Fatal(err)
			}
		}
	}
	if visited != numEntries || m.Size() != numEntries/2 {
		t.Fatalf("visited %d, size %d", visited, m.Size())
	}
	for i := range numEntries {
		if _, ok := m.Get(i); ok != (i%2 == 1) {
			t.Fatalf("key %d: present %v", i, ok)
		}
	}
	mustVerify(t, m)
}

func TestIterator_RemoveNaN(t *testing.T) {
	m := newMap[float64, int](t)
	fill := func() {
		m.Clear()
		m.Put(math.NaN(), 1)
		m.Put(math.NaN(), 2)
		m.Put(1.5, 3)
		if m.Size() != 3 {
			t.Fatalf("unexpected size: %d", m.Size())
		}
	}

	fill()
	it := m.Iter()
	for it.Next() {
		if k := it.Key(); k != k {
			if err := it.Remove(); err != nil {
				t.Fatal(err)
			}
		}
	}
	if m.Size() != 1 || !m.ContainsKey(1.5) {
		t.Fatalf("NaN keys were not removed: size %d", m.Size())
	}
	mustVerify(t, m)

	fill()
	for e := range m.Entries() {
		if k := e.Key(); k != k {
			e.Delete()
		}
	}
	if m.Size() != 1 || !m.ContainsKey(1.5) {
		t.Fatalf("NaN keys were not deleted: size %d", m.Size())
	}
	mustVerify(t, m)
}

func TestIterator_RemoveInTreeBin(t *testing.T) {
	const numEntries = 30
	m := newMap[int, int](t, WithCapacity(64), WithKeyHasher(constHasher[int](7)))
	for i := range numEntries {
		m.Put(i, i)
	}
	if !m.table[7].isTree() {
		t.Fatal("expected a tree bin")
	}
	var visited []int
	it := m.Iter()
	for it.Next() {
		visited = append(visited, it.Key())
		if it.Key()%3 == 0 {
			if err := it.Remove(); err != nil {
				t.Fatal(err)
			}
			// the root may sit off the bin head until the iterator
			// leaves the bin, lookups must still work
			mustVerify(t, m)
			for _, k := range []int{1, 2, 29} {
				if _, ok := m.Get(k); !ok {
					t.Fatalf("key %d lost after removing %d", k, it.Key())
				}
			}
		}
	}
	if m.pending != 0 {
		t.Fatal("bin was not re-anchored after the iteration")
	}
	if err := checkTreeBin(m.table, 7); err != nil {
		t.Fatal(err)
	}
	slices.Sort(visited)
	for i, k := range visited {
		if k != i {
			t.Fatalf("visited %v", visited)
		}
	}
	if len(visited) != numEntries || m.Size() != numEntries-10 {
		t.Fatalf("visited %d, size %d", len(visited), m.Size())
	}
}

func TestIterator_RemoveRootThenAbandon(t *testing.T) {
	m := newMap[int, int](t, WithCapacity(64), WithKeyHasher(constHasher[int](7)))
	for i := range 20 {
		m.Put(i, i)
	}
	root := m.table[7]
	it := m.Iter()
	if !it.Next() || it.Key() != root.key {
		t.Fatal("iteration does not start at the tree root")
	}
	if err := it.Remove(); err != nil {
		t.Fatal(err)
	}
	if m.pending != 8 {
		t.Fatalf("unexpected pending bin: %d", m.pending)
	}
	mustVerify(t, m)

	// a new iteration settles the abandoned bin first
	n := 0
	for range m.Keys() {
		n++
	}
	if n != 19 || m.pending != 0 {
		t.Fatalf("visited %d, pending %d", n, m.pending)
	}
	if err := checkTreeBin(m.table, 7); err != nil {
		t.Fatal(err)
	}

	// so does a structural change through the map
	it = m.Iter()
	if !it.Next() {
		t.Fatal("expected an entry")
	}
	removed := it.Key()
	if err := it.Remove(); err != nil {
		t.Fatal(err)
	}
	if m.pending != 8 {
		t.Fatalf("unexpected pending bin: %d", m.pending)
	}
	for k := range 20 {
		if k != removed && m.ContainsKey(k) {
			m.Remove(k)
			break
		}
	}
	if m.Size() != 17 || m.pending != 0 {
		t.Fatal("remove did not settle the bin")
	}
	mustVerify(t, m)
	if err := checkTreeBin(m.table, 7); err != nil {
		t.Fatal(err)
	}
}

func TestMap_Range(t *testing.T) {
	m := newMap[string, int](t)
	for i := range 100 {
		m.Put(strconv.Itoa(i), i)
	}
	iters := 0
	m.Range(func(string, int) bool {
		iters++
		return iters != 13
	})
	if iters != 13 {
		t.Fatalf("got unexpected number of iterations: %d", iters)
	}

	sum := 0
	m.ForEach(func(_ string, v int) { sum += v })
	if sum != 99*100/2 {
		t.Fatalf("unexpected sum: %d", sum)
	}
	keys, values := 0, 0
	for range m.Keys() {
		keys++
	}
	for range m.Values() {
		values++
	}
	pairs := 0
	for k, v := range m.All() {
		if k != strconv.Itoa(v) {
			t.Fatalf("got unexpected key/value: %v/%v", k, v)
		}
		pairs++
	}
	if keys != 100 || values != 100 || pairs != 100 {
		t.Fatalf("unexpected counts: %d %d %d", keys, values, pairs)
	}

	expectPanic(t, ErrConcurrentModification, func() {
		m.Range(func(k string, _ int) bool {
			m.Remove(k)
			return true
		})
	})
}

func TestMap_Entries(t *testing.T) {
	m := newMap[int, int](t, WithCapacity(64), WithKeyHasher(func(k int, _ uintptr) uintptr {
		return uintptr(k % 4)
	}))
	for i := range 40 {
		m.Put(i, i)
	}
	for e := range m.Entries() {
		if !e.Loaded() {
			t.Fatal("entry view is not loaded")
		}
		if e.Key()%2 == 1 {
			e.Delete()
		} else {
			e.Update(e.Value() * 10)
		}
	}
	if m.Size() != 20 {
		t.Fatalf("unexpected size: %d", m.Size())
	}
	for i := range 40 {
		v, ok := m.Get(i)
		if ok != (i%2 == 0) || (ok && v != i*10) {
			t.Fatalf("key %d: %v, %v", i, v, ok)
		}
	}
	mustVerify(t, m)

	// the change of the last iteration is applied on break
	for e := range m.Entries() {
		e.Delete()
		break
	}
	if m.Size() != 19 || m.pending != 0 {
		t.Fatalf("size %d, pending %d", m.Size(), m.pending)
	}
	mustVerify(t, m)
	for i := range 4 {
		if first := m.table[i]; first != nil && first.isTree() {
			if err := checkTreeBin(m.table, i); err != nil {
				t.Fatal(err)
			}
		}
	}

	expectPanic(t, ErrConcurrentModification, func() {
		for e := range m.Entries() {
			m.Put(e.Key()+1000, 0)
		}
	})
}
