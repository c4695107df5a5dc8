package binmap

// node is a map entry. Plain entries form a singly linked list within
// their bin. Tree entries additionally carry treeLinks: the bin is then
// both a doubly linked list (next/prev) and a red-black tree
// (parent/left/right) whose root is always the first list node.
//
// A bin is a tree bin iff its first node has tree links.
type node[K comparable, V any] struct {
	hash  uint32
	key   K
	value V
	next  *node[K, V]
	t     *treeLinks[K, V]
}

// treeLinks holds the tree-bin only fields of a node.
type treeLinks[K comparable, V any] struct {
	parent *node[K, V]
	left   *node[K, V]
	right  *node[K, V]
	prev   *node[K, V]
	// seq orders nodes whose hashes are equal and whose keys have no
	// total order. It is unique per map and assigned when a node joins a
	// tree bin.
	seq uint64
	red bool
}

//go:nosplit
func (n *node[K, V]) isTree() bool {
	return n.t != nil
}

//go:nosplit
func isRed[K comparable, V any](n *node[K, V]) bool {
	return n != nil && n.t.red
}

// treeRoot returns the root of the tree containing n.
func treeRoot[K comparable, V any](n *node[K, V]) *node[K, V] {
	for {
		p := n.t.parent
		if p == nil {
			return n
		}
		n = p
	}
}
