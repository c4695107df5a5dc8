package binmap

import (
	"unsafe"

	"github.com/llxisdsh/binmap/internal/opt"
)

// ============================================================================
// Tree bins
// ============================================================================

// Tree bins are ordered primarily by hash. Nodes with equal hashes are
// ordered by the key total order when one exists, and otherwise by their
// insertion sequence number. The sequence tie-break keeps tree shapes
// reproducible across runs; lookups never rely on it and probe both
// subtrees instead.

// compareKeys returns the key order of a and b, or 0 when keys have no
// total order.
func (m *Map[K, V]) compareKeys(a, b *K) int {
	if m.keyCmp == nil {
		return 0
	}
	return m.keyCmp(noescape(unsafe.Pointer(a)), noescape(unsafe.Pointer(b)))
}

// tieBreakOrder orders two nodes that cannot be ordered by hash or key.
// It never returns 0.
//
//go:nosplit
func tieBreakOrder(seq, other uint64) int {
	if seq <= other {
		return -1
	}
	return 1
}

func (m *Map[K, V]) nextSeq() uint64 {
	m.seq++
	return m.seq
}

// moveRootToFront makes root the first node of its bin, so that list
// traversal and tree lookup share the same entry point.
func (m *Map[K, V]) moveRootToFront(tab []*node[K, V], root *node[K, V]) {
	n := len(tab)
	if root == nil || n == 0 {
		return
	}
	index := int(uint32(n-1) & root.hash)
	if m.pending == index+1 {
		m.pending = 0
	}
	first := tab[index]
	if root != first {
		tab[index] = root
		rp := root.t.prev
		if rn := root.next; rn != nil {
			rn.t.prev = rp
		}
		if rp != nil {
			rp.next = root.next
		}
		if first != nil {
			first.t.prev = root
		}
		root.next = first
		root.t.prev = nil
	}
	if opt.Debug_ {
		if err := checkTreeBin(tab, index); err != nil {
			panic(err)
		}
	}
}

// find returns the node matching h and key in the subtree rooted at p.
func (m *Map[K, V]) find(p *node[K, V], h uint32, key *K) *node[K, V] {
	for p != nil {
		pl, pr := p.t.left, p.t.right
		switch ph := p.hash; {
		case ph > h:
			p = pl
		case ph < h:
			p = pr
		case p.key == *key:
			return p
		case pl == nil:
			p = pr
		case pr == nil:
			p = pl
		default:
			if dir := m.compareKeys(key, &p.key); dir != 0 {
				if dir < 0 {
					p = pl
				} else {
					p = pr
				}
			} else if q := m.find(pr, h, key); q != nil {
				return q
			} else {
				p = pl
			}
		}
	}
	return nil
}

// getTreeNode looks up key in the tree bin starting at first.
func (m *Map[K, V]) getTreeNode(first *node[K, V], h uint32, key *K) *node[K, V] {
	return m.find(treeRoot(first), h, key)
}

// treeifyBin promotes the list bin holding hash to a tree bin, unless the
// table is too small, in which case it is resized instead.
func (m *Map[K, V]) treeifyBin(tab []*node[K, V], hash uint32) {
	n := len(tab)
	if n < minTreeifyCapacity {
		m.resize()
		return
	}
	index := int(uint32(n-1) & hash)
	hd := tab[index]
	if hd == nil {
		return
	}
	var tl *node[K, V]
	for e := hd; e != nil; e = e.next {
		e.t = &treeLinks[K, V]{prev: tl, seq: m.nextSeq()}
		tl = e
	}
	m.treeify(tab, hd)
}

// treeify builds a red-black tree out of the linked tree nodes starting at
// head, inserting them in list order, then anchors the root at the bin head.
func (m *Map[K, V]) treeify(tab []*node[K, V], head *node[K, V]) {
	m.treeifies++
	var root *node[K, V]
	for x := head; x != nil; x = x.next {
		x.t.left, x.t.right = nil, nil
		if root == nil {
			x.t.parent = nil
			x.t.red = false
			root = x
			continue
		}
		h := x.hash
		for p := root; ; {
			var dir int
			if ph := p.hash; ph > h {
				dir = -1
			} else if ph < h {
				dir = 1
			} else if dir = m.compareKeys(&x.key, &p.key); dir == 0 {
				dir = tieBreakOrder(x.t.seq, p.t.seq)
			}
			xp := p
			if dir <= 0 {
				p = p.t.left
			} else {
				p = p.t.right
			}
			if p == nil {
				x.t.parent = xp
				if dir <= 0 {
					xp.t.left = x
				} else {
					xp.t.right = x
				}
				root = m.balanceInsertion(root, x)
				break
			}
		}
	}
	m.moveRootToFront(tab, root)
}

// untreeify drops the tree links of every node in the list starting at
// head, turning it back into a plain list bin.
func (m *Map[K, V]) untreeify(head *node[K, V]) *node[K, V] {
	for q := head; q != nil; q = q.next {
		q.t = nil
	}
	m.untreeifies++
	return head
}

// putTreeVal returns the existing node for key, or links a new node into
// both the tree and the list view and returns nil.
func (m *Map[K, V]) putTreeVal(
	tab []*node[K, V],
	first *node[K, V],
	h uint32,
	key *K,
	value V,
) *node[K, V] {
	searched := false
	root := treeRoot(first)
	for p := root; ; {
		var dir int
		if ph := p.hash; ph > h {
			dir = -1
		} else if ph < h {
			dir = 1
		} else if p.key == *key {
			return p
		} else if dir = m.compareKeys(key, &p.key); dir == 0 {
			if !searched {
				searched = true
				if q := m.find(p.t.left, h, key); q != nil {
					return q
				}
				if q := m.find(p.t.right, h, key); q != nil {
					return q
				}
			}
			dir = tieBreakOrder(m.seq+1, p.t.seq)
		}
		xp := p
		if dir <= 0 {
			p = p.t.left
		} else {
			p = p.t.right
		}
		if p == nil {
			xpn := xp.next
			x := &node[K, V]{
				hash:  h,
				key:   *key,
				value: value,
				next:  xpn,
				t:     &treeLinks[K, V]{parent: xp, prev: xp, seq: m.nextSeq()},
			}
			if dir <= 0 {
				xp.t.left = x
			} else {
				xp.t.right = x
			}
			xp.next = x
			if xpn != nil {
				xpn.t.prev = x
			}
			m.moveRootToFront(tab, m.balanceInsertion(root, x))
			return nil
		}
	}
}

// removeTreeNode unlinks p from its tree bin. p must be present.
//
// The node is first unlinked from the list view. A node with two children
// is then swapped with its in-order successor by relinking, never by
// copying payloads, so that other nodes' list links stay valid.
//
// The bin is never converted back to a list here, however small it gets:
// only split demotes tree bins. If movable is false the root is not moved
// to the bin head; the iterator uses this to keep its traversal stable.
func (m *Map[K, V]) removeTreeNode(tab []*node[K, V], p *node[K, V], movable bool) {
	n := len(tab)
	if n == 0 {
		return
	}
	index := int(uint32(n-1) & p.hash)
	first := tab[index]
	succ, pred := p.next, p.t.prev
	if pred == nil {
		tab[index] = succ
		first = succ
	} else {
		pred.next = succ
	}
	if succ != nil {
		succ.t.prev = pred
	}
	if first == nil {
		// p was the last node of the bin
		return
	}
	root := treeRoot(first)

	var replacement *node[K, V]
	pl, pr := p.t.left, p.t.right
	if pl != nil && pr != nil {
		s := pr
		for s.t.left != nil {
			s = s.t.left
		}
		s.t.red, p.t.red = p.t.red, s.t.red
		sr := s.t.right
		pp := p.t.parent
		if s == pr {
			// p was s's direct parent
			p.t.parent = s
			s.t.right = p
		} else {
			sp := s.t.parent
			p.t.parent = sp
			if sp != nil {
				if s == sp.t.left {
					sp.t.left = p
				} else {
					sp.t.right = p
				}
			}
			s.t.right = pr
			pr.t.parent = s
		}
		p.t.left = nil
		p.t.right = sr
		if sr != nil {
			sr.t.parent = p
		}
		s.t.left = pl
		pl.t.parent = s
		s.t.parent = pp
		if pp == nil {
			root = s
		} else if p == pp.t.left {
			pp.t.left = s
		} else {
			pp.t.right = s
		}
		if sr != nil {
			replacement = sr
		} else {
			replacement = p
		}
	} else if pl != nil {
		replacement = pl
	} else if pr != nil {
		replacement = pr
	} else {
		replacement = p
	}

	if replacement != p {
		pp := p.t.parent
		replacement.t.parent = pp
		if pp == nil {
			root = replacement
			replacement.t.red = false
		} else if p == pp.t.left {
			pp.t.left = replacement
		} else {
			pp.t.right = replacement
		}
		p.t.left, p.t.right, p.t.parent = nil, nil, nil
	}

	r := root
	if !p.t.red {
		r = m.balanceDeletion(root, replacement)
	}

	if replacement == p {
		// detach the leaf
		pp := p.t.parent
		p.t.parent = nil
		if pp != nil {
			if p == pp.t.left {
				pp.t.left = nil
			} else if p == pp.t.right {
				pp.t.right = nil
			}
		}
	}
	if movable {
		m.moveRootToFront(tab, r)
	}
}

// split partitions the tree bin b of the old table into the lo bin (index)
// and the hi bin (index+bit) of newTab. A half of at most
// untreeifyThreshold nodes is converted to a list bin; a larger half is
// re-treeified only if the other half took nodes away from it.
func (m *Map[K, V]) split(newTab []*node[K, V], index, bit int, b *node[K, V]) {
	var loHead, loTail, hiHead, hiTail *node[K, V]
	lc, hc := 0, 0
	for e := b; e != nil; {
		next := e.next
		e.next = nil
		if e.hash&uint32(bit) == 0 {
			e.t.prev = loTail
			if loTail == nil {
				loHead = e
			} else {
				loTail.next = e
			}
			loTail = e
			lc++
		} else {
			e.t.prev = hiTail
			if hiTail == nil {
				hiHead = e
			} else {
				hiTail.next = e
			}
			hiTail = e
			hc++
		}
		e = next
	}

	if loHead != nil {
		newTab[index] = loHead
		if lc <= untreeifyThreshold {
			m.untreeify(loHead)
		} else if hiHead != nil {
			m.treeify(newTab, loHead)
		} else {
			// whole tree moved as is
			m.moveRootToFront(newTab, treeRoot(loHead))
		}
	}
	if hiHead != nil {
		newTab[index+bit] = hiHead
		if hc <= untreeifyThreshold {
			m.untreeify(hiHead)
		} else if loHead != nil {
			m.treeify(newTab, hiHead)
		} else {
			m.moveRootToFront(newTab, treeRoot(hiHead))
		}
	}
}

// ============================================================================
// Red-black balancing
// ============================================================================

func (m *Map[K, V]) rotateLeft(root, p *node[K, V]) *node[K, V] {
	if p == nil {
		return root
	}
	r := p.t.right
	if r == nil {
		return root
	}
	rl := r.t.left
	p.t.right = rl
	if rl != nil {
		rl.t.parent = p
	}
	pp := p.t.parent
	r.t.parent = pp
	if pp == nil {
		root = r
		r.t.red = false
	} else if pp.t.left == p {
		pp.t.left = r
	} else {
		pp.t.right = r
	}
	r.t.left = p
	p.t.parent = r
	return root
}

func (m *Map[K, V]) rotateRight(root, p *node[K, V]) *node[K, V] {
	if p == nil {
		return root
	}
	l := p.t.left
	if l == nil {
		return root
	}
	lr := l.t.right
	p.t.left = lr
	if lr != nil {
		lr.t.parent = p
	}
	pp := p.t.parent
	l.t.parent = pp
	if pp == nil {
		root = l
		l.t.red = false
	} else if pp.t.right == p {
		pp.t.right = l
	} else {
		pp.t.left = l
	}
	l.t.right = p
	p.t.parent = l
	return root
}

// balanceInsertion restores the red-black invariants after x was linked
// as a leaf and returns the (possibly new) root.
func (m *Map[K, V]) balanceInsertion(root, x *node[K, V]) *node[K, V] {
	x.t.red = true
	for {
		xp := x.t.parent
		if xp == nil {
			x.t.red = false
			return x
		}
		xpp := xp.t.parent
		if !xp.t.red || xpp == nil {
			return root
		}
		if xppl := xpp.t.left; xp == xppl {
			if xppr := xpp.t.right; isRed(xppr) {
				xppr.t.red = false
				xp.t.red = false
				xpp.t.red = true
				x = xpp
				continue
			}
			if x == xp.t.right {
				x = xp
				root = m.rotateLeft(root, x)
				xp = x.t.parent
				xpp = nil
				if xp != nil {
					xpp = xp.t.parent
				}
			}
			if xp != nil {
				xp.t.red = false
				if xpp != nil {
					xpp.t.red = true
					root = m.rotateRight(root, xpp)
				}
			}
		} else {
			if isRed(xppl) {
				xppl.t.red = false
				xp.t.red = false
				xpp.t.red = true
				x = xpp
				continue
			}
			if x == xp.t.left {
				x = xp
				root = m.rotateRight(root, x)
				xp = x.t.parent
				xpp = nil
				if xp != nil {
					xpp = xp.t.parent
				}
			}
			if xp != nil {
				xp.t.red = false
				if xpp != nil {
					xpp.t.red = true
					root = m.rotateLeft(root, xpp)
				}
			}
		}
	}
}

// balanceDeletion restores the red-black invariants after a black node was
// excised and x took its place, and returns the (possibly new) root.
func (m *Map[K, V]) balanceDeletion(root, x *node[K, V]) *node[K, V] {
	for {
		if x == nil || x == root {
			return root
		}
		xp := x.t.parent
		if xp == nil {
			x.t.red = false
			return x
		}
		if x.t.red {
			x.t.red = false
			return root
		}
		if xpl := xp.t.left; xpl == x {
			xpr := xp.t.right
			if isRed(xpr) {
				xpr.t.red = false
				xp.t.red = true
				root = m.rotateLeft(root, xp)
				xp = x.t.parent
				xpr = nil
				if xp != nil {
					xpr = xp.t.right
				}
			}
			if xpr == nil {
				x = xp
				continue
			}
			sl, sr := xpr.t.left, xpr.t.right
			if !isRed(sr) && !isRed(sl) {
				xpr.t.red = true
				x = xp
				continue
			}
			if !isRed(sr) {
				if sl != nil {
					sl.t.red = false
				}
				xpr.t.red = true
				root = m.rotateRight(root, xpr)
				xp = x.t.parent
				xpr = nil
				if xp != nil {
					xpr = xp.t.right
				}
			}
			if xpr != nil {
				xpr.t.red = xp != nil && xp.t.red
				if sr = xpr.t.right; sr != nil {
					sr.t.red = false
				}
			}
			if xp != nil {
				xp.t.red = false
				root = m.rotateLeft(root, xp)
			}
			x = root
		} else {
			if isRed(xpl) {
				xpl.t.red = false
				xp.t.red = true
				root = m.rotateRight(root, xp)
				xp = x.t.parent
				xpl = nil
				if xp != nil {
					xpl = xp.t.left
				}
			}
			if xpl == nil {
				x = xp
				continue
			}
			sl, sr := xpl.t.left, xpl.t.right
			if !isRed(sl) && !isRed(sr) {
				xpl.t.red = true
				x = xp
				continue
			}
			if !isRed(sl) {
				if sr != nil {
					sr.t.red = false
				}
				xpl.t.red = true
				root = m.rotateLeft(root, xpl)
				xp = x.t.parent
				xpl = nil
				if xp != nil {
					xpl = xp.t.left
				}
			}
			if xpl != nil {
				xpl.t.red = xp != nil && xp.t.red
				if sl = xpl.t.left; sl != nil {
					sl.t.red = false
				}
			}
			if xp != nil {
				xp.t.red = false
				root = m.rotateRight(root, xp)
			}
			x = root
		}
	}
}
