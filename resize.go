package binmap

// resize allocates the table on first use, or doubles it. Every bin of the
// old table is split in place into a lo bin (same index) and a hi bin
// (index+oldCap) by testing the single hash bit that the doubled mask adds,
// so hashes are never recomputed.
//
// A table already at maxCapacity is never grown; the threshold is pinned
// to the largest int instead and bins simply get longer.
func (m *Map[K, V]) resize() []*node[K, V] {
	oldTab := m.table
	oldCap := len(oldTab)
	oldThr := m.threshold
	newCap, newThr := 0, 0
	if oldCap > 0 {
		if oldCap >= maxCapacity {
			m.threshold = maxInt
			return oldTab
		}
		newCap = oldCap << 1
		if newCap < maxCapacity && oldCap >= defaultCapacity {
			if oldThr > maxInt>>1 {
				newThr = maxInt
			} else {
				newThr = oldThr << 1
			}
		}
	} else if oldThr > 0 {
		// initial capacity was placed in threshold
		newCap = oldThr
	} else {
		newCap = defaultCapacity
	}
	if newThr == 0 {
		ft := float64(newCap) * m.loadFactor
		if newCap < maxCapacity && ft < float64(maxCapacity) {
			newThr = int(ft)
		} else {
			newThr = maxInt
		}
	}
	m.threshold = newThr

	newTab := make([]*node[K, V], newCap)
	m.table = newTab
	m.pending = 0
	if oldCap > 0 {
		m.growths++
	}
	for j, e := range oldTab {
		if e == nil {
			continue
		}
		oldTab[j] = nil
		switch {
		case e.next == nil:
			newTab[int(uint32(newCap-1)&e.hash)] = e
		case e.isTree():
			m.split(newTab, j, oldCap, e)
		default:
			splitList(newTab, j, oldCap, e)
		}
	}
	return newTab
}

// splitList partitions the list bin e into its lo and hi halves, preserving
// the relative order of entries in each half.
func splitList[K comparable, V any](newTab []*node[K, V], j, bit int, e *node[K, V]) {
	var loHead, loTail, hiHead, hiTail *node[K, V]
	for e != nil {
		next := e.next
		if e.hash&uint32(bit) == 0 {
			if loTail == nil {
				loHead = e
			} else {
				loTail.next = e
			}
			loTail = e
		} else {
			if hiTail == nil {
				hiHead = e
			} else {
				hiTail.next = e
			}
			hiTail = e
		}
		e = next
	}
	if loTail != nil {
		loTail.next = nil
		newTab[j] = loHead
	}
	if hiTail != nil {
		hiTail.next = nil
		newTab[j+bit] = hiHead
	}
}
