package binmap

import (
	"math/rand/v2"
	"slices"
	"testing"
)

func inOrder[K comparable, V any](n *node[K, V], visit func(*node[K, V])) {
	if n == nil {
		return
	}
	inOrder(n.t.left, visit)
	visit(n)
	inOrder(n.t.right, visit)
}

func binKeys[K comparable, V any](first *node[K, V]) []K {
	var keys []K
	for e := first; e != nil; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

func TestTreeify_AtNineEntries(t *testing.T) {
	m := newMap[int, int](t, WithCapacity(64), WithKeyHasher(identityHasher))
	// descending so that list order and hash order differ
	for j := treeifyThreshold; j >= 1; j-- {
		m.Put(5+64*j, j)
	}
	if s := m.Stats(); s.TreeBins != 0 || s.MaxListLen != treeifyThreshold {
		t.Fatalf("bin was treeified too early: %s", s.String())
	}
	m.Put(5, 0)
	if s := m.Stats(); s.TreeBins != 1 || s.TotalTreeifies != 1 {
		t.Fatalf("bin was not treeified: %s", s.String())
	}
	root := m.table[5]
	if root.t.parent != nil {
		t.Fatal("bin head is not the tree root")
	}
	var hashes []uint32
	inOrder(root, func(n *node[int, int]) {
		hashes = append(hashes, n.hash)
	})
	if len(hashes) != treeifyThreshold+1 || !slices.IsSorted(hashes) {
		t.Fatalf("in-order traversal is not in hash order: %v", hashes)
	}
	for j := range treeifyThreshold + 1 {
		if v, ok := m.Get(5 + 64*j); !ok || v != j {
			t.Fatalf("unexpected value for %d: %v, %v", 5+64*j, v, ok)
		}
	}
	mustVerify(t, m)
}

func TestTreeify_SmallTableResizes(t *testing.T) {
	m := newMap[int, int](t, WithKeyHasher(constHasher[int](3)))
	for i := range treeifyThreshold {
		m.Put(i, i)
	}
	if m.Capacity() != 16 {
		t.Fatalf("unexpected capacity: %d", m.Capacity())
	}
	m.Put(8, 8)
	if s := m.Stats(); s.Capacity != 32 || s.TreeBins != 0 {
		t.Fatalf("expected a resize instead of treeify: %s", s.String())
	}
	m.Put(9, 9)
	if s := m.Stats(); s.Capacity != 64 || s.TreeBins != 0 || s.MaxListLen != 10 {
		t.Fatalf("expected a resize instead of treeify: %s", s.String())
	}
	m.Put(10, 10)
	if s := m.Stats(); s.Capacity != 64 || s.TreeBins != 1 || s.TreeEntries != 11 {
		t.Fatalf("expected a tree bin: %s", s.String())
	}
	mustVerify(t, m)
}

func TestResize_SplitPreservesOrder(t *testing.T) {
	m := newMap[int, int](t,
		WithCapacity(16),
		WithLoadFactor(8),
		WithKeyHasher(identityHasher),
	)
	for j := range 6 {
		for i := range 16 {
			m.Put(i+16*j, j)
		}
	}
	if m.Capacity() != 16 {
		t.Fatalf("unexpected capacity: %d", m.Capacity())
	}
	var before [16][]int
	for i := range before {
		before[i] = binKeys(m.table[i])
	}

	m.resize()
	if m.Capacity() != 32 || m.Stats().TotalGrowths != 1 {
		t.Fatalf("unexpected table: %s", m.Stats().String())
	}
	for i, keys := range before {
		var lo, hi []int
		for _, k := range keys {
			if k&16 == 0 {
				lo = append(lo, k)
			} else {
				hi = append(hi, k)
			}
		}
		if got := binKeys(m.table[i]); !slices.Equal(got, lo) {
			t.Fatalf("bin %d: got %v, want %v", i, got, lo)
		}
		if got := binKeys(m.table[i+16]); !slices.Equal(got, hi) {
			t.Fatalf("bin %d: got %v, want %v", i+16, got, hi)
		}
	}
	mustVerify(t, m)
}

func TestResize_SplitTreeBins(t *testing.T) {
	tests := []struct {
		name           string
		lo, hi         int
		loTree, hiTree bool
		treeifies      uint32
		untreeifies    uint32
	}{
		{"six and three", 6, 3, false, false, 1, 2},
		{"seven and three", 7, 3, true, false, 2, 1},
		{"three and seven", 3, 7, false, true, 2, 1},
		{"all low", 10, 0, true, false, 1, 0},
		{"all high", 0, 9, false, true, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMap[int, int](t, WithCapacity(64), WithKeyHasher(identityHasher))
			for j := range tt.lo {
				m.Put(5+128*j, j)
			}
			for j := range tt.hi {
				m.Put(69+128*j, j)
			}
			if !m.table[5].isTree() {
				t.Fatalf("bin was not treeified: %s", m.Stats().String())
			}
			m.resize()
			mustVerify(t, m)

			checkBin := func(index, want int, tree bool) {
				t.Helper()
				first := m.table[index]
				if got := len(binKeys(first)); got != want {
					t.Fatalf("bin %d holds %d entries, want %d", index, got, want)
				}
				if first != nil && first.isTree() != tree {
					t.Fatalf("bin %d: tree %v, want %v", index, first.isTree(), tree)
				}
			}
			checkBin(5, tt.lo, tt.loTree)
			checkBin(69, tt.hi, tt.hiTree)
			s := m.Stats()
			if s.TotalTreeifies != tt.treeifies || s.TotalUntreeifies != tt.untreeifies {
				t.Fatalf("unexpected counters: %s", s.String())
			}
			for j := range tt.lo {
				if v, ok := m.Get(5 + 128*j); !ok || v != j {
					t.Fatalf("lost key %d", 5+128*j)
				}
			}
			for j := range tt.hi {
				if v, ok := m.Get(69 + 128*j); !ok || v != j {
					t.Fatalf("lost key %d", 69+128*j)
				}
			}
		})
	}
}

func TestTree_RemoveTwoChildren(t *testing.T) {
	m := newMap[int, int](t, WithCapacity(64), WithKeyHasher(constHasher[int](7)))
	for i := range 10 {
		m.Put(i, i)
	}
	root := m.table[7]
	if !root.isTree() || root.t.left == nil || root.t.right == nil {
		t.Fatal("expected a tree root with two children")
	}
	succ := root.t.right
	for succ.t.left != nil {
		succ = succ.t.left
	}

	removed := []int{root.key}
	if v, ok := m.Remove(root.key); !ok || v != removed[0] {
		t.Fatalf("unexpected removal: %v, %v", v, ok)
	}
	mustVerify(t, m)
	// the in-order successor node is relinked into the root's place
	if m.table[7] != succ || succ.t.parent != nil || succ.key != root.key+1 {
		t.Fatalf("root is %d, want successor %d", m.table[7].key, succ.key)
	}

	var inner *node[int, int]
	inOrder(m.table[7], func(n *node[int, int]) {
		if n != m.table[7] && n.t.left != nil && n.t.right != nil {
			inner = n
		}
	})
	if inner != nil {
		next := inner.t.right
		for next.t.left != nil {
			next = next.t.left
		}
		removed = append(removed, inner.key)
		if _, ok := m.Remove(inner.key); !ok {
			t.Fatalf("key %d not removed", inner.key)
		}
		mustVerify(t, m)
		if m.getTreeNode(m.table[7], next.hash, &next.key) != next {
			t.Fatalf("successor %d was not relinked", next.key)
		}
	}
	for i := range 10 {
		_, ok := m.Get(i)
		if ok == slices.Contains(removed, i) {
			t.Fatalf("key %d: present %v", i, ok)
		}
	}
}

func TestTree_RemoveKeepsTreeBin(t *testing.T) {
	m := newMap[int, int](t, WithCapacity(64), WithKeyHasher(constHasher[int](7)))
	for i := range 12 {
		m.Put(i, i)
	}
	for i := range 11 {
		m.Remove(i)
		mustVerify(t, m)
		if !m.table[7].isTree() {
			t.Fatalf("bin was demoted after %d removals", i+1)
		}
	}
	m.Remove(11)
	if m.table[7] != nil || m.Size() != 0 {
		t.Fatal("bin was not emptied")
	}
	// the emptied bin starts over as a list
	m.Put(1, 1)
	if m.table[7].isTree() {
		t.Fatal("new entry in an empty bin is a tree node")
	}
	mustVerify(t, m)
}

// unorderedKey has no total order, so tree bins fall back to the
// insertion sequence tie-break.
type unorderedKey struct {
	a, b int
}

func TestTree_RandomOps(t *testing.T) {
	t.Run("ordered keys", func(t *testing.T) {
		m := newMap[int, int](t, WithCapacity(64), WithKeyHasher(constHasher[int](7)))
		randomTreeOps(t, m, func(i int) int { return i })
	})
	t.Run("unordered keys", func(t *testing.T) {
		m := newMap[unorderedKey, int](t, WithCapacity(64), WithKeyHasher(constHasher[unorderedKey](7)))
		randomTreeOps(t, m, func(i int) unorderedKey { return unorderedKey{i % 7, i / 7} })
	})
	t.Run("few hashes", func(t *testing.T) {
		m := newMap[unorderedKey, int](t, WithCapacity(64), WithKeyHasher(func(k unorderedKey, _ uintptr) uintptr {
			return uintptr(k.a%3) << 6
		}))
		randomTreeOps(t, m, func(i int) unorderedKey { return unorderedKey{i, -i} })
	})
}

func randomTreeOps[K comparable](t *testing.T, m *Map[K, int], key func(int) K) {
	t.Helper()
	r := rand.New(rand.NewPCG(3, 4))
	ref := make(map[K]int)
	for i := range 1000 {
		k := key(r.IntN(64))
		switch r.IntN(4) {
		case 0, 1:
			prev, loaded := m.Put(k, i)
			if want, ok := ref[k]; loaded != ok || prev != want {
				t.Fatalf("op %d: put %v returned (%d, %v), want (%d, %v)", i, k, prev, loaded, want, ok)
			}
			ref[k] = i
		case 2:
			v, ok := m.Remove(k)
			if want, wantOK := ref[k]; ok != wantOK || v != want {
				t.Fatalf("op %d: remove %v returned (%d, %v), want (%d, %v)", i, k, v, ok, want, wantOK)
			}
			delete(ref, k)
		case 3:
			v, ok := m.Get(k)
			if want, wantOK := ref[k]; ok != wantOK || v != want {
				t.Fatalf("op %d: get %v returned (%d, %v), want (%d, %v)", i, k, v, ok, want, wantOK)
			}
		}
		if err := m.Verify(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
		if m.Size() != len(ref) {
			t.Fatalf("op %d: size %d, want %d", i, m.Size(), len(ref))
		}
	}
	if m.Stats().TreeBins == 0 {
		t.Fatalf("no tree bin was exercised: %s", m.Stats().String())
	}
}

func TestVerify_RedRoot(t *testing.T) {
	m := newMap[int, int](t, WithCapacity(64), WithKeyHasher(constHasher[int](7)))
	for i := range 20 {
		m.Put(i, i)
	}
	if err := checkTreeBin(m.table, 7); err != nil {
		t.Fatal(err)
	}
	// break the red-black coloring and expect the checker to notice
	m.table[7].t.red = true
	if err := checkTreeBin(m.table, 7); err == nil {
		t.Fatal("red root was not detected")
	}
	if err := m.Verify(); err == nil {
		t.Fatal("Verify missed a red root")
	}
}
