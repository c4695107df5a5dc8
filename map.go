package binmap

import (
	"math/rand/v2"
	"unsafe"

	"github.com/pkg/errors"
)

// Map is a hash map whose collision chains (bins) are plain linked lists
// while short and red-black trees once they grow long, which bounds the
// worst case of adversarial or badly distributed hashes to O(log n) per
// bin.
//
// Core properties:
//   - Average O(1) lookup, insert and remove
//   - Table length is always a power of two; growth splits every bin into
//     two without rehashing
//   - Zero-value ready with lazy initialization
//   - Custom hash, key order and value comparison function support
//
// Usage recommendations:
//   - Direct declaration: var m Map[string, int]
//   - Pre-allocate capacity: NewMap[string, int](WithCapacity(1000))
//
// Notes:
//   - Map is not safe for concurrent use. Concurrent structural
//     modification is undefined behavior; the modification counter only
//     detects it on a best-effort basis.
//   - Map must not be copied after first use.
type Map[K comparable, V any] struct {
	_          noCopy
	table      []*node[K, V]
	size       int
	modCount   int
	threshold  int
	loadFactor float64
	seq        uint64
	seed       uintptr
	keyHash    HashFunc     // WithKeyHasher
	keyCmp     CompareFunc  // WithKeyCompare
	valEqual   EqualFunc    // WithValueEqual
	hooks      *Hooks[K, V] // WithHooks
	nilable    bool
	// pending is index+1 of a tree bin whose root was left off the bin
	// head by Iterator.Remove, or 0.
	pending int

	growths     uint32
	treeifies   uint32
	untreeifies uint32
}

// NewMap creates a new Map instance. Direct initialization is also
// supported.
//
// Parameters:
//   - options: configuration options (WithCapacity, WithLoadFactor,
//     WithKeyHasher, etc.)
//
// Returns an error wrapping ErrInvalidArgument for a negative capacity,
// a non-positive or NaN load factor, or hooks of a different type.
func NewMap[K comparable, V any](
	options ...func(*MapConfig),
) (*Map[K, V], error) {
	var cfg MapConfig
	for _, o := range options {
		o(noEscape(&cfg))
	}
	m := &Map[K, V]{}
	if err := m.init(noEscape(&cfg)); err != nil {
		return nil, err
	}
	return m, nil
}

// init configures the map.
//
// Configuration Priority (highest to lowest):
//   - Explicit With* functions (WithKeyHasher, WithKeyCompare, WithValueEqual)
//   - Interface implementations (IHashFunc, IComparable, IEqualFunc)
//   - Default built-in implementations
func (m *Map[K, V]) init(cfg *MapConfig) error {
	if cfg.hasCapacity && cfg.capacity < 0 {
		return errors.Wrapf(ErrInvalidArgument,
			"illegal initial capacity: %d", cfg.capacity)
	}
	loadFactor := defaultLoadFactor
	if cfg.hasLoadFactor {
		// also rejects NaN
		if !(cfg.loadFactor > 0) {
			return errors.Wrapf(ErrInvalidArgument,
				"illegal load factor: %v", cfg.loadFactor)
		}
		loadFactor = cfg.loadFactor
	}
	var hooks *Hooks[K, V]
	if cfg.hooks != nil {
		h, ok := cfg.hooks.(*Hooks[K, V])
		if !ok {
			return errors.Wrapf(ErrInvalidArgument,
				"hooks of type %T do not match the map", cfg.hooks)
		}
		hooks = h
	}

	// parse interface
	keyHash, keyCmp := parseKeyInterface[K]()
	if cfg.keyHash == nil {
		cfg.keyHash = keyHash
	}
	if cfg.keyCmp == nil {
		cfg.keyCmp = keyCmp
	}
	if cfg.valEqual == nil {
		cfg.valEqual = parseValueInterface[V]()
	}

	// perform initialization
	m.keyHash, m.valEqual = defaultHasher[K, V]()
	if cfg.keyHash != nil {
		m.keyHash = cfg.keyHash
	}
	if cfg.valEqual != nil {
		m.valEqual = cfg.valEqual
	}
	m.keyCmp = defaultComparer[K]()
	if cfg.keyCmp != nil {
		m.keyCmp = cfg.keyCmp
	}
	m.nilable = isNilable[K]()
	m.hooks = hooks
	m.seed = uintptr(rand.Uint64())
	m.loadFactor = loadFactor
	if cfg.hasCapacity {
		m.threshold = tableSizeFor(cfg.capacity)
	}
	return nil
}

// initSlow initializes a zero-value Map with the default configuration.
//
//go:noinline
func (m *Map[K, V]) initSlow() {
	var cfg MapConfig
	_ = m.init(&cfg)
}

// hash derives the 32-bit spread hash of key. The nil key hashes to 0.
func (m *Map[K, V]) hash(key *K) uint32 {
	if m.nilable && *key == *new(K) {
		return 0
	}
	return spread(fold(m.keyHash(noescape(unsafe.Pointer(key)), m.seed)))
}

// Get returns the value stored for key.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	if m.size == 0 {
		return *new(V), false
	}
	if e := m.getNode(m.hash(&key), &key); e != nil {
		m.afterAccess(e)
		return e.value, true
	}
	return *new(V), false
}

// GetOrDefault returns the value stored for key, or defaultValue.
func (m *Map[K, V]) GetOrDefault(key K, defaultValue V) V {
	if v, ok := m.Get(key); ok {
		return v
	}
	return defaultValue
}

// ContainsKey reports whether key is mapped.
func (m *Map[K, V]) ContainsKey(key K) bool {
	if m.size == 0 {
		return false
	}
	return m.getNode(m.hash(&key), &key) != nil
}

// Put maps key to value and returns the previous value, if any.
func (m *Map[K, V]) Put(key K, value V) (previous V, loaded bool) {
	if m.keyHash == nil {
		m.initSlow()
	}
	return m.putVal(m.hash(&key), &key, value, false)
}

// PutIfAbsent maps key to value only if key is not mapped yet. It returns
// the existing value and true, or value and false when it was stored.
func (m *Map[K, V]) PutIfAbsent(key K, value V) (actual V, loaded bool) {
	if m.keyHash == nil {
		m.initSlow()
	}
	if prev, ok := m.putVal(m.hash(&key), &key, value, true); ok {
		return prev, true
	}
	return value, false
}

// Remove deletes key and returns the value it was mapped to.
func (m *Map[K, V]) Remove(key K) (value V, loaded bool) {
	if m.size == 0 {
		return *new(V), false
	}
	if e := m.removeNode(m.hash(&key), &key, nil, true); e != nil {
		return e.value, true
	}
	return *new(V), false
}

// RemoveIf deletes key only if it is currently mapped to expected.
func (m *Map[K, V]) RemoveIf(key K, expected V) (removed bool) {
	if m.valEqual == nil && m.keyHash != nil {
		panic("called RemoveIf when value is not of comparable type")
	}
	if m.size == 0 {
		return false
	}
	return m.removeNode(m.hash(&key), &key, &expected, true) != nil
}

// Replace updates the value of key only if key is mapped, and returns the
// previous value.
func (m *Map[K, V]) Replace(key K, value V) (previous V, replaced bool) {
	if m.size == 0 {
		return *new(V), false
	}
	if e := m.getNode(m.hash(&key), &key); e != nil {
		previous = e.value
		e.value = value
		m.afterAccess(e)
		return previous, true
	}
	return *new(V), false
}

// ReplaceIf updates the value of key only if it is currently mapped to old.
func (m *Map[K, V]) ReplaceIf(key K, old V, new V) (replaced bool) {
	if m.valEqual == nil && m.keyHash != nil {
		panic("called ReplaceIf when value is not of comparable type")
	}
	if m.size == 0 {
		return false
	}
	e := m.getNode(m.hash(&key), &key)
	if e == nil || !m.equalValues(&e.value, &old) {
		return false
	}
	e.value = new
	m.afterAccess(e)
	return true
}

// ContainsValue reports whether any key is mapped to value.
// This is an O(n) operation.
func (m *Map[K, V]) ContainsValue(value V) bool {
	if m.valEqual == nil && m.keyHash != nil {
		panic("called ContainsValue when value is not of comparable type")
	}
	if m.size == 0 {
		return false
	}
	for _, e := range m.table {
		for ; e != nil; e = e.next {
			if m.equalValues(&e.value, &value) {
				return true
			}
		}
	}
	return false
}

// Size returns the number of key-value pairs in the map.
// This is an O(1) operation.
func (m *Map[K, V]) Size() int {
	return m.size
}

// IsEmpty reports whether the map holds no entries.
func (m *Map[K, V]) IsEmpty() bool {
	return m.size == 0
}

// Clear removes all entries. The table keeps its capacity.
func (m *Map[K, V]) Clear() {
	m.modCount++
	m.pending = 0
	if m.table != nil && m.size > 0 {
		m.size = 0
		clear(m.table)
	}
}

// Capacity returns the current table length, or the length the table will
// be allocated with.
func (m *Map[K, V]) Capacity() int {
	if m.table != nil {
		return len(m.table)
	}
	if m.threshold > 0 {
		return m.threshold
	}
	return defaultCapacity
}

// LoadFactor returns the configured load factor.
func (m *Map[K, V]) LoadFactor() float64 {
	if m.keyHash == nil {
		return defaultLoadFactor
	}
	return m.loadFactor
}

// ComputeIfAbsent returns the value of key, computing and storing it with
// fn if key is not mapped. If fn returns false nothing is stored and ok is
// false.
//
// fn must not modify the map; doing so panics with
// ErrConcurrentModification.
func (m *Map[K, V]) ComputeIfAbsent(
	key K,
	fn func(key K) (V, bool),
) (actual V, ok bool) {
	if fn == nil {
		panic(nilFunction("ComputeIfAbsent"))
	}
	if m.keyHash == nil {
		m.initSlow()
	}
	h := m.hash(&key)
	tab, i, first, old, binCount := m.locate(h, &key)
	if old != nil {
		m.afterAccess(old)
		return old.value, true
	}
	mc := m.modCount
	v, ok := fn(key)
	if m.modCount != mc {
		panic(concurrentModification("ComputeIfAbsent"))
	}
	if !ok {
		return *new(V), false
	}
	m.insertAt(tab, i, first, binCount, h, &key, v)
	return v, true
}

// ComputeIfPresent recomputes the value of a mapped key with fn. If fn
// returns false the entry is removed. ok reports whether key is mapped
// after the call.
//
// fn must not modify the map; doing so panics with
// ErrConcurrentModification.
func (m *Map[K, V]) ComputeIfPresent(
	key K,
	fn func(key K, value V) (V, bool),
) (actual V, ok bool) {
	if fn == nil {
		panic(nilFunction("ComputeIfPresent"))
	}
	if m.size == 0 {
		return *new(V), false
	}
	h := m.hash(&key)
	e := m.getNode(h, &key)
	if e == nil {
		return *new(V), false
	}
	mc := m.modCount
	v, keep := fn(key, e.value)
	if m.modCount != mc {
		panic(concurrentModification("ComputeIfPresent"))
	}
	if !keep {
		m.removeNode(h, &key, nil, true)
		return *new(V), false
	}
	e.value = v
	m.afterAccess(e)
	return v, true
}

// Compute performs a read-modify-write of key in a single bin traversal.
//
// Callback signature:
//
//	fn(e *Entry[K, V])
//
//	  - Use e.Loaded() and e.Value() to inspect the current state
//	  - Use e.Update(newV) to upsert; Use e.Delete() to remove
//	  - Doing neither leaves the map unchanged
//
// Returns:
//   - actual: The value as left by the callback.
//   - loaded: True if the key existed before the callback, false otherwise.
//
// fn must not modify the map; doing so panics with
// ErrConcurrentModification.
func (m *Map[K, V]) Compute(
	key K,
	fn func(e *Entry[K, V]),
) (actual V, loaded bool) {
	if fn == nil {
		panic(nilFunction("Compute"))
	}
	if m.keyHash == nil {
		m.initSlow()
	}
	h := m.hash(&key)
	tab, i, first, old, binCount := m.locate(h, &key)
	it := Entry[K, V]{key: key}
	if old != nil {
		it.value = old.value
		it.loaded = true
	}
	mc := m.modCount
	fn(noEscape(&it))
	if m.modCount != mc {
		panic(concurrentModification("Compute"))
	}
	switch it.op {
	case updateOp:
		if old != nil {
			old.value = it.value
			m.afterAccess(old)
		} else {
			m.insertAt(tab, i, first, binCount, h, &key, it.value)
		}
	case deleteOp:
		if old != nil {
			m.removeNode(h, &key, nil, true)
		}
	}
	return it.value, it.loaded
}

// Merge stores value if key is not mapped; otherwise it replaces the
// current value with fn(current, value), removing the entry if fn returns
// false. ok reports whether key is mapped after the call.
//
// fn must not modify the map; doing so panics with
// ErrConcurrentModification.
func (m *Map[K, V]) Merge(
	key K,
	value V,
	fn func(old, value V) (V, bool),
) (actual V, ok bool) {
	if fn == nil {
		panic(nilFunction("Merge"))
	}
	if m.keyHash == nil {
		m.initSlow()
	}
	h := m.hash(&key)
	tab, i, first, old, binCount := m.locate(h, &key)
	if old == nil {
		m.insertAt(tab, i, first, binCount, h, &key, value)
		return value, true
	}
	mc := m.modCount
	v, keep := fn(old.value, value)
	if m.modCount != mc {
		panic(concurrentModification("Merge"))
	}
	if !keep {
		m.removeNode(h, &key, nil, true)
		return *new(V), false
	}
	old.value = v
	m.afterAccess(old)
	return v, true
}

// PutAll copies every entry of other into m. The table is pre-sized once
// for the incoming entries instead of growing step by step.
func (m *Map[K, V]) PutAll(other *Map[K, V]) {
	if other == nil || other.size == 0 {
		return
	}
	if m.keyHash == nil {
		m.initSlow()
	}
	m.presize(other.size)
	for _, e := range other.table {
		for ; e != nil; e = e.next {
			m.putVal(m.hash(&e.key), &e.key, e.value, false)
		}
	}
}

// PutMap copies every entry of a built-in map into m.
func (m *Map[K, V]) PutMap(src map[K]V) {
	if len(src) == 0 {
		return
	}
	if m.keyHash == nil {
		m.initSlow()
	}
	m.presize(len(src))
	for k, v := range src {
		m.putVal(m.hash(&k), &k, v, false)
	}
}

// ReplaceAll replaces every value with fn(key, value).
func (m *Map[K, V]) ReplaceAll(fn func(key K, value V) V) {
	if fn == nil {
		panic(nilFunction("ReplaceAll"))
	}
	if m.size == 0 {
		return
	}
	mc := m.modCount
	for _, e := range m.table {
		for ; e != nil; e = e.next {
			e.value = fn(e.key, e.value)
		}
		if m.modCount != mc {
			panic(concurrentModification("ReplaceAll"))
		}
	}
}

// ToMap collect up to limit entries into a map[K]V, limit < 0 is no limit
func (m *Map[K, V]) ToMap(limit ...int) map[K]V {
	l := maxInt
	if len(limit) != 0 {
		l = limit[0]
		if l < 0 {
			l = maxInt
		} else if l == 0 {
			return map[K]V{}
		}
	}

	a := make(map[K]V, min(m.size, l))
	m.Range(func(k K, v V) bool {
		a[k] = v
		l--
		return l > 0
	})
	return a
}

// Clone returns a copy of the map with the same configuration. Keys and
// values themselves are not copied.
func (m *Map[K, V]) Clone() *Map[K, V] {
	clone := &Map[K, V]{
		loadFactor: m.loadFactor,
		seed:       m.seed,
		keyHash:    m.keyHash,
		keyCmp:     m.keyCmp,
		valEqual:   m.valEqual,
		hooks:      m.hooks,
		nilable:    m.nilable,
	}
	if clone.keyHash == nil {
		return clone
	}
	clone.presize(m.size)
	for _, e := range m.table {
		for ; e != nil; e = e.next {
			clone.putVal(e.hash, &e.key, e.value, false)
		}
	}
	return clone
}

// presize grows the table ahead of inserting s entries.
func (m *Map[K, V]) presize(s int) {
	if len(m.table) == 0 {
		ft := float64(s)/m.loadFactor + 1.0
		t := maxCapacity
		if ft < float64(maxCapacity) {
			t = int(ft)
		}
		if t > m.threshold {
			m.threshold = tableSizeFor(t)
		}
		return
	}
	for s > m.threshold && len(m.table) < maxCapacity {
		m.resize()
	}
}

// ============================================================================
// Bin operations
// ============================================================================

// getNode returns the node for key, dispatching on the bin representation.
func (m *Map[K, V]) getNode(h uint32, key *K) *node[K, V] {
	tab := m.table
	n := len(tab)
	if n == 0 {
		return nil
	}
	first := tab[int(uint32(n-1)&h)]
	if first == nil {
		return nil
	}
	if first.hash == h && first.key == *key {
		return first
	}
	if first.next == nil {
		return nil
	}
	if first.isTree() {
		return m.getTreeNode(first, h, key)
	}
	for e := first.next; e != nil; e = e.next {
		if e.hash == h && e.key == *key {
			return e
		}
	}
	return nil
}

// putVal inserts or updates key. With onlyIfAbsent an existing value is
// left untouched. It returns the previous value of an existing key.
func (m *Map[K, V]) putVal(
	h uint32,
	key *K,
	value V,
	onlyIfAbsent bool,
) (previous V, loaded bool) {
	tab := m.table
	if len(tab) == 0 {
		tab = m.resize()
	}
	i := int(uint32(len(tab)-1) & h)
	var e *node[K, V]
	if p := tab[i]; p == nil {
		tab[i] = &node[K, V]{hash: h, key: *key, value: value}
	} else if p.hash == h && p.key == *key {
		e = p
	} else if p.isTree() {
		e = m.putTreeVal(tab, p, h, key, value)
	} else {
		for binCount := 0; ; binCount++ {
			if e = p.next; e == nil {
				p.next = &node[K, V]{hash: h, key: *key, value: value}
				if binCount >= treeifyThreshold-1 {
					m.treeifyBin(tab, h)
				}
				break
			}
			if e.hash == h && e.key == *key {
				break
			}
			p = e
		}
	}
	if e != nil {
		previous = e.value
		if !onlyIfAbsent {
			e.value = value
		}
		m.afterAccess(e)
		return previous, true
	}
	m.modCount++
	m.size++
	if m.size > m.threshold {
		m.resize()
	}
	m.afterInsertion(*key, value)
	return *new(V), false
}

// locate finds the bin of h, allocating the table if needed, and the node
// for key within it. binCount is the length of a list bin without a match.
func (m *Map[K, V]) locate(h uint32, key *K) (
	tab []*node[K, V],
	i int,
	first, old *node[K, V],
	binCount int,
) {
	tab = m.table
	if len(tab) == 0 {
		tab = m.resize()
	}
	i = int(uint32(len(tab)-1) & h)
	first = tab[i]
	if first == nil {
		return
	}
	if first.isTree() {
		old = m.getTreeNode(first, h, key)
		return
	}
	for e := first; e != nil; e = e.next {
		if e.hash == h && e.key == *key {
			old = e
			return
		}
		binCount++
	}
	return
}

// insertAt links a new entry into the bin located by locate. List bins
// get the entry at their head.
func (m *Map[K, V]) insertAt(
	tab []*node[K, V],
	i int,
	first *node[K, V],
	binCount int,
	h uint32,
	key *K,
	value V,
) {
	if first != nil && first.isTree() {
		m.putTreeVal(tab, first, h, key, value)
	} else {
		tab[i] = &node[K, V]{hash: h, key: *key, value: value, next: first}
		if binCount >= treeifyThreshold {
			m.treeifyBin(tab, h)
		}
	}
	m.modCount++
	m.size++
	if m.size > m.threshold {
		m.resize()
	}
	m.afterInsertion(*key, value)
}

// removeNode unlinks the node for key and returns it. If expected is not
// nil the node is only removed when its value equals *expected.
func (m *Map[K, V]) removeNode(
	h uint32,
	key *K,
	expected *V,
	movable bool,
) *node[K, V] {
	tab := m.table
	n := len(tab)
	if n == 0 {
		return nil
	}
	index := int(uint32(n-1) & h)
	p := tab[index]
	if p == nil {
		return nil
	}
	var nd *node[K, V]
	if p.hash == h && p.key == *key {
		nd = p
	} else if e := p.next; e != nil {
		if p.isTree() {
			nd = m.getTreeNode(p, h, key)
		} else {
			for ; e != nil; e = e.next {
				if e.hash == h && e.key == *key {
					nd = e
					break
				}
				p = e
			}
		}
	}
	if nd == nil {
		return nil
	}
	if expected != nil && !m.equalValues(&nd.value, expected) {
		return nil
	}
	if nd.isTree() {
		m.removeTreeNode(tab, nd, movable)
	} else if nd == p {
		tab[index] = nd.next
	} else {
		p.next = nd.next
	}
	m.removed(nd)
	return nd
}

// unlinkNode removes nd itself from its bin without a key lookup, so
// entries whose key is not equal to itself can still be removed. It
// reports false if nd is no longer in the table.
func (m *Map[K, V]) unlinkNode(nd *node[K, V], movable bool) bool {
	tab := m.table
	n := len(tab)
	if n == 0 {
		return false
	}
	index := int(uint32(n-1) & nd.hash)
	var pred *node[K, V]
	e := tab[index]
	for ; e != nil && e != nd; e = e.next {
		pred = e
	}
	if e == nil {
		return false
	}
	if nd.isTree() {
		m.removeTreeNode(tab, nd, movable)
	} else if pred == nil {
		tab[index] = nd.next
	} else {
		pred.next = nd.next
	}
	m.removed(nd)
	return true
}

func (m *Map[K, V]) removed(nd *node[K, V]) {
	m.modCount++
	m.size--
	m.afterRemoval(nd)
}

func (m *Map[K, V]) equalValues(v, other *V) bool {
	if m.valEqual == nil {
		panic("called value comparison when value is not of comparable type")
	}
	return m.valEqual(noescape(unsafe.Pointer(v)), noescape(unsafe.Pointer(other)))
}

// ============================================================================
// Hooks
// ============================================================================

func (m *Map[K, V]) afterAccess(e *node[K, V]) {
	if m.hooks != nil && m.hooks.AfterAccess != nil {
		m.hooks.AfterAccess(e.key, e.value)
	}
}

func (m *Map[K, V]) afterInsertion(key K, value V) {
	if m.hooks != nil && m.hooks.AfterInsertion != nil {
		m.hooks.AfterInsertion(key, value)
	}
}

func (m *Map[K, V]) afterRemoval(e *node[K, V]) {
	if m.hooks != nil && m.hooks.AfterRemoval != nil {
		m.hooks.AfterRemoval(e.key, e.value)
	}
}
