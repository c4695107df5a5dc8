package binmap

import (
	"unsafe"
)

// ============================================================================
// Configuration
// ============================================================================

// MapConfig defines configurable options for Map initialization.
// This structure contains all the configuration parameters that can be used
// to customize the behavior and performance characteristics of a Map
// instance.
type MapConfig struct {
	// keyHash specifies a custom hash function for keys.
	// If nil, the built-in hash function will be used.
	keyHash HashFunc

	// keyCmp specifies a total order for keys. It is only consulted
	// inside tree bins, to order keys whose hashes are equal.
	// If nil, keys of ordered kinds use cmp.Compare and all other keys
	// fall back to the insertion sequence tie-break.
	keyCmp CompareFunc

	// valEqual specifies a custom equality function for values.
	// If nil, the built-in equality comparison will be used.
	// Note: Using ContainsValue, RemoveIf or ReplaceIf with non-comparable
	// value types will panic if valEqual is nil.
	valEqual EqualFunc

	// capacity is the initial table capacity. It is rounded up to the
	// next power of 2 when the table is first allocated.
	capacity    int
	hasCapacity bool

	// loadFactor controls when the table grows:
	// threshold = capacity * loadFactor.
	loadFactor    float64
	hasLoadFactor bool

	// hooks holds a *Hooks[K, V]; the type is checked by NewMap.
	hooks any
}

// WithCapacity configures the initial capacity of the table. The table is
// allocated lazily on first insert, with a length of the next power of 2
// greater than or equal to cap. A negative cap makes NewMap fail with
// ErrInvalidArgument.
func WithCapacity(cap int) func(*MapConfig) {
	return func(c *MapConfig) {
		c.capacity = cap
		c.hasCapacity = true
	}
}

// WithLoadFactor configures the ratio of size to capacity at which the
// table doubles. A non-positive or NaN factor makes NewMap fail with
// ErrInvalidArgument. The default is 0.75.
func WithLoadFactor(loadFactor float64) func(*MapConfig) {
	return func(c *MapConfig) {
		c.loadFactor = loadFactor
		c.hasLoadFactor = true
	}
}

// WithKeyHasher sets a custom key hashing function for the map.
// The returned hash code is folded to 32 bits and spread before indexing,
// so a hasher only needs to be consistent with key equality.
//
// Usage:
//
//	m, _ := NewMap[string, int](WithKeyHasher(func(k string, seed uintptr) uintptr {
//		return uintptr(len(k))
//	}))
//
// Use cases:
//   - Implement case-insensitive string hashing
//   - Reproduce hash collisions in tests
func WithKeyHasher[K comparable](
	keyHash func(key K, seed uintptr) uintptr,
) func(*MapConfig) {
	return func(c *MapConfig) {
		if keyHash != nil {
			c.keyHash = func(pointer unsafe.Pointer, u uintptr) uintptr {
				return keyHash(*(*K)(pointer), u)
			}
		}
	}
}

// WithKeyHasherUnsafe sets a low-level unsafe key hashing function.
// The pointer points to the key data in memory. Pass nil to use the
// default built-in hasher.
//
// Notes:
//   - You must correctly cast unsafe.Pointer to the actual key type
//   - Incorrect pointer operations will cause crashes or memory corruption
func WithKeyHasherUnsafe(hs HashFunc) func(*MapConfig) {
	return func(c *MapConfig) {
		c.keyHash = hs
	}
}

// WithBuiltInHasher returns a MapConfig option that explicitly sets the
// built-in hash function for the specified type, bypassing the identity
// hashers used for integer keys.
func WithBuiltInHasher[T comparable]() func(*MapConfig) {
	return func(c *MapConfig) {
		c.keyHash = GetBuiltInHasher[T]()
	}
}

// GetBuiltInHasher returns Go's built-in hash function for the specified type.
// This function provides direct access to the same hash function that Go's
// built-in map uses internally.
func GetBuiltInHasher[T comparable]() HashFunc {
	keyHash, _ := defaultHasherUsingBuiltIn[T, struct{}]()
	return keyHash
}

// WithKeyCompare sets a total order for keys. Tree bins use it to order
// keys with equal hashes, which keeps lookups logarithmic under adversarial
// collisions. The order must be consistent with key equality.
func WithKeyCompare[K comparable](
	keyCmp func(key, other K) int,
) func(*MapConfig) {
	return func(c *MapConfig) {
		if keyCmp != nil {
			c.keyCmp = func(ptr unsafe.Pointer, other unsafe.Pointer) int {
				return keyCmp(*(*K)(ptr), *(*K)(other))
			}
		}
	}
}

// WithValueEqual sets a custom value equality function for the map.
// This is required for ContainsValue, RemoveIf and ReplaceIf when
// working with non-comparable value types or custom equality logic.
//
// Usage:
//
//	m, _ := NewMap[string, []byte](WithValueEqual(bytes.Equal))
func WithValueEqual[V any](
	valEqual func(val, val2 V) bool,
) func(*MapConfig) {
	return func(c *MapConfig) {
		if valEqual != nil {
			c.valEqual = func(val unsafe.Pointer, val2 unsafe.Pointer) bool {
				return valEqual(*(*V)(val), *(*V)(val2))
			}
		}
	}
}

// WithValueEqualUnsafe sets a low-level unsafe value equality function.
// Both pointers point to value data in memory.
func WithValueEqualUnsafe(eq EqualFunc) func(*MapConfig) {
	return func(c *MapConfig) {
		c.valEqual = eq
	}
}

// Hooks are callbacks fired by the map after it touches entries.
// Collaborators that track entry order (LRU layers, auditing) plug in here
// instead of wrapping the map. Any field may be nil.
//
// Hooks run synchronously and must not modify the map.
type Hooks[K comparable, V any] struct {
	// AfterAccess runs after an existing entry was found by Get, a
	// Put-family or a Compute-family operation, or had its value replaced.
	AfterAccess func(key K, value V)
	// AfterInsertion runs after a new entry was linked into the map.
	AfterInsertion func(key K, value V)
	// AfterRemoval runs after an entry was unlinked from the map.
	AfterRemoval func(key K, value V)
}

// WithHooks injects entry callbacks. The hooks type parameters must match
// the map's; otherwise NewMap fails with ErrInvalidArgument.
func WithHooks[K comparable, V any](hooks Hooks[K, V]) func(*MapConfig) {
	return func(c *MapConfig) {
		c.hooks = &hooks
	}
}

// IHashFunc defines a custom hash function interface for key types.
// Key types implementing this interface can provide their own hash computation,
// serving as an alternative to WithKeyHasher for type-specific optimization.
//
// This interface is automatically detected during Map initialization and
// takes precedence over the default built-in hasher but is overridden by
// explicit WithKeyHasher configuration.
//
// Usage:
//
//	type UserID struct {
//		ID int64
//		Tenant string
//	}
//
//	func (u *UserID) HashFunc(seed uintptr) uintptr {
//		return uintptr(u.ID) ^ seed
//	}
type IHashFunc interface {
	HashFunc(seed uintptr) uintptr
}

// IComparable defines a total order for key types. It is detected during
// Map initialization and overridden by explicit WithKeyCompare configuration.
//
// Usage:
//
//	type Version struct{ Major, Minor int }
//
//	func (v *Version) Compare(other Version) int {
//		if c := cmp.Compare(v.Major, other.Major); c != 0 {
//			return c
//		}
//		return cmp.Compare(v.Minor, other.Minor)
//	}
type IComparable[T any] interface {
	Compare(other T) int
}

// IEqualFunc defines a custom equality comparison interface for value types.
// Value types implementing this interface can provide their own equality logic,
// serving as an alternative to WithValueEqual for type-specific comparison.
type IEqualFunc[T any] interface {
	EqualFunc(other T) bool
}

func parseKeyInterface[K comparable]() (keyHash HashFunc, keyCmp CompareFunc) {
	var k *K
	if _, ok := any(k).(IHashFunc); ok {
		keyHash = func(ptr unsafe.Pointer, seed uintptr) uintptr {
			return any((*K)(ptr)).(IHashFunc).HashFunc(seed)
		}
	}
	if _, ok := any(k).(IComparable[K]); ok {
		keyCmp = func(ptr unsafe.Pointer, other unsafe.Pointer) int {
			return any((*K)(ptr)).(IComparable[K]).Compare(*(*K)(other))
		}
	}
	return
}

func parseValueInterface[V any]() (valEqual EqualFunc) {
	var v *V
	if _, ok := any(v).(IEqualFunc[V]); ok {
		valEqual = func(ptr unsafe.Pointer, other unsafe.Pointer) bool {
			return any((*V)(ptr)).(IEqualFunc[V]).EqualFunc(*(*V)(other))
		}
	}
	return
}
