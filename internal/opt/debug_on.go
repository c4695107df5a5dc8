//go:build binmap_debug

package opt

// Debug_ enables tree bin invariant assertions after every structural
// change to a tree bin. A failed assertion panics.
const Debug_ = true
