package binmap

import (
	"github.com/pkg/errors"
)

// Verify walks every bin and checks the structural invariants of the map:
//   - the table length is a power of two
//   - every entry sits in the bin its hash indexes to
//   - list bins hold only plain entries
//   - tree bins are consistent doubly linked lists and red-black trees
//     ordered by hash, whose root is the bin head
//   - the entry count matches Size
//
// It returns an error wrapping ErrCorrupted for the first violation. Verify
// is meant for tests and diagnostics; it runs in O(n).
func (m *Map[K, V]) Verify() error {
	tab := m.table
	n := len(tab)
	if n == 0 {
		if m.size != 0 {
			return errors.Wrapf(ErrCorrupted, "size %d without a table", m.size)
		}
		return nil
	}
	if n&(n-1) != 0 {
		return errors.Wrapf(ErrCorrupted, "capacity %d is not a power of two", n)
	}
	if n > maxCapacity {
		return errors.Wrapf(ErrCorrupted, "capacity %d exceeds the maximum", n)
	}
	count := 0
	for i, first := range tab {
		if first == nil {
			continue
		}
		if first.isTree() {
			// a bin deferred by an iterator may have its root off the head
			c, err := checkTree(tab, i, m.pending != i+1)
			if err != nil {
				return err
			}
			count += c
			continue
		}
		for e := first; e != nil; e = e.next {
			if e.isTree() {
				return corrupted(i, "tree entry in a list bin")
			}
			if int(uint32(n-1)&e.hash) != i {
				return corrupted(i, "entry with hash %#x belongs to bin %d",
					e.hash, uint32(n-1)&e.hash)
			}
			count++
		}
	}
	if count != m.size {
		return errors.Wrapf(ErrCorrupted, "size %d but %d entries reachable", m.size, count)
	}
	return nil
}

// checkTreeBin checks the tree bin at index, including that its root is
// the bin head.
func checkTreeBin[K comparable, V any](tab []*node[K, V], index int) error {
	_, err := checkTree(tab, index, true)
	return err
}

// checkTree checks the list view and the tree view of the bin at index and
// returns the number of entries.
func checkTree[K comparable, V any](
	tab []*node[K, V],
	index int,
	anchored bool,
) (int, error) {
	first := tab[index]
	if first == nil {
		return 0, nil
	}
	mask := uint32(len(tab) - 1)
	if first.t.prev != nil {
		return 0, corrupted(index, "bin head has a predecessor")
	}
	listLen := 0
	for e := first; e != nil; e = e.next {
		if !e.isTree() {
			return 0, corrupted(index, "plain entry in a tree bin")
		}
		if int(mask&e.hash) != index {
			return 0, corrupted(index, "entry with hash %#x belongs to bin %d",
				e.hash, mask&e.hash)
		}
		if next := e.next; next != nil && (!next.isTree() || next.t.prev != e) {
			return 0, corrupted(index, "broken prev link after hash %#x", e.hash)
		}
		listLen++
	}

	root := treeRoot(first)
	if anchored && root != first {
		return 0, corrupted(index, "tree root is not the bin head")
	}
	if root.t.red {
		return 0, corrupted(index, "red root")
	}
	treeLen, _, err := checkSubtree(index, root, 0, ^uint32(0))
	if err != nil {
		return 0, err
	}
	if treeLen != listLen {
		return 0, corrupted(index, "tree holds %d entries, list holds %d", treeLen, listLen)
	}
	return listLen, nil
}

// checkSubtree checks the subtree rooted at x, whose hashes must lie in
// [lo, hi]. It returns the node count and the black height.
func checkSubtree[K comparable, V any](
	index int,
	x *node[K, V],
	lo, hi uint32,
) (count, blackHeight int, err error) {
	if x == nil {
		return 0, 1, nil
	}
	if !x.isTree() {
		return 0, 0, corrupted(index, "plain entry linked into the tree")
	}
	if x.hash < lo || x.hash > hi {
		return 0, 0, corrupted(index, "hash %#x out of order", x.hash)
	}
	xl, xr := x.t.left, x.t.right
	if xl != nil && xl.t.parent != x {
		return 0, 0, corrupted(index, "broken parent link under hash %#x", x.hash)
	}
	if xr != nil && xr.t.parent != x {
		return 0, 0, corrupted(index, "broken parent link under hash %#x", x.hash)
	}
	if x.t.red && (isRed(xl) || isRed(xr)) {
		return 0, 0, corrupted(index, "red entry with hash %#x has a red child", x.hash)
	}
	lc, lbh, err := checkSubtree(index, xl, lo, x.hash)
	if err != nil {
		return 0, 0, err
	}
	rc, rbh, err := checkSubtree(index, xr, x.hash, hi)
	if err != nil {
		return 0, 0, err
	}
	if lbh != rbh {
		return 0, 0, corrupted(index, "black height %d/%d below hash %#x", lbh, rbh, x.hash)
	}
	if !x.t.red {
		lbh++
	}
	return lc + rc + 1, lbh, nil
}
