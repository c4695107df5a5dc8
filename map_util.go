package binmap

import (
	"cmp"
	"math"
	"math/bits"
	"reflect"
	"unsafe"
)

// ============================================================================
// Private Constants
// ============================================================================

const (
	// defaultCapacity is the table length used when none was configured.
	defaultCapacity = 1 << 4
	// maxCapacity bounds the table length; it must stay a power of two
	// that fits the 32-bit hash space.
	maxCapacity = 1 << 30
	// defaultLoadFactor: resize table when size > capacity*loadFactor
	defaultLoadFactor = 0.75

	// treeifyThreshold is the bin length at which a list bin is promoted
	// to a tree bin. A bin reaching treeifyThreshold+1 entries is treeified.
	treeifyThreshold = 8
	// untreeifyThreshold is the largest split half that is demoted back
	// to a list bin during resize.
	untreeifyThreshold = 6
	// minTreeifyCapacity is the smallest table length for which bins are
	// treeified. Smaller tables are resized instead.
	minTreeifyCapacity = 64
)

const (
	intSize = 32 << (^uint(0) >> 63) // 32 or 64
	maxInt  = math.MaxInt
)

type computeOp uint8

const (
	cancelOp computeOp = iota
	updateOp
	deleteOp
)

// ============================================================================
// Utility Functions
// ============================================================================

// tableSizeFor returns the smallest power of 2 that is greater than or equal
// to c, clamped to [1, maxCapacity].
//
//go:nosplit
func tableSizeFor(c int) int {
	if c <= 1 {
		return 1
	}
	if c >= maxCapacity {
		return maxCapacity
	}
	return 1 << bits.Len(uint(c-1))
}

// fold reduces a machine-word hash code to the 32-bit hash space used for
// indexing and tree ordering.
//
//go:nosplit
func fold(h uintptr) uint32 {
	if intSize == 64 {
		return uint32(h) ^ uint32(uint64(h)>>32)
	}
	return uint32(h)
}

// spread folds the high 16 bits of the hash into the low 16 bits.
// Table masking only uses the low bits, so without spreading keys that
// differ only in their high bits would always collide.
//
//go:nosplit
func spread(h uint32) uint32 {
	return h ^ (h >> 16)
}

// noescape hides a pointer from escape analysis. noescape is
// the identity function, but escape analysis doesn't think the
// output depends on the input.  noescape is inlined and currently
// compiles down to zero instructions.
// USE CAREFULLY!
//
//go:nosplit
//go:nocheckptr
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	//nolint:all
	//goland:noinspection ALL
	return unsafe.Pointer(x ^ 0)
}

//go:nosplit
//go:nocheckptr
func noEscape[T any](p *T) *T {
	return (*T)(noescape(unsafe.Pointer(p)))
}

// noCopy may be added to structs which must not be copied
// after the first use.
//
// See https://golang.org/issues/8005#issuecomment-190753527
// for details.
//
// Note that it must not be embedded, due to the Lock and Unlock methods.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// ============================================================================
// Hash Utilities
// ============================================================================

type (
	// HashFunc is the function to hash a value of type K.
	HashFunc func(ptr unsafe.Pointer, seed uintptr) uintptr
	// EqualFunc is the function to compare two values of type V.
	EqualFunc func(ptr unsafe.Pointer, other unsafe.Pointer) bool
	// CompareFunc is a total order over keys of type K. It returns a
	// negative number, zero or a positive number like cmp.Compare.
	CompareFunc func(ptr unsafe.Pointer, other unsafe.Pointer) int
)

func defaultHasher[K comparable, V any]() (
	keyHash HashFunc,
	valEqual EqualFunc,
) {
	keyHash, valEqual = defaultHasherUsingBuiltIn[K, V]()

	switch any(*new(K)).(type) {
	case uint, int, uintptr:
		return hashUintptr, valEqual
	case uint64, int64:
		if intSize == 64 {
			return hashUint64, valEqual
		} else {
			return hashUint64On32Bit, valEqual
		}
	case uint32, int32:
		return hashUint32, valEqual
	case uint16, int16:
		return hashUint16, valEqual
	case uint8, int8:
		return hashUint8, valEqual
	case string:
		return hashString, valEqual
	default:
		kType := reflect.TypeFor[K]()
		if kType == nil {
			// Handle nil interface types
			return keyHash, valEqual
		}
		switch kType.Kind() {
		case reflect.Uint, reflect.Int, reflect.Uintptr:
			return hashUintptr, valEqual
		case reflect.Int64, reflect.Uint64:
			if intSize == 64 {
				return hashUint64, valEqual
			} else {
				return hashUint64On32Bit, valEqual
			}
		case reflect.Int32, reflect.Uint32:
			return hashUint32, valEqual
		case reflect.Int16, reflect.Uint16:
			return hashUint16, valEqual
		case reflect.Int8, reflect.Uint8:
			return hashUint8, valEqual
		case reflect.String:
			return hashString, valEqual
		default:
			return keyHash, valEqual
		}
	}
}

//go:nosplit
func hashUintptr(ptr unsafe.Pointer, _ uintptr) uintptr {
	return *(*uintptr)(ptr)
}

//go:nosplit
func hashUint64On32Bit(ptr unsafe.Pointer, _ uintptr) uintptr {
	v := *(*uint64)(ptr)
	return uintptr(v) ^ uintptr(v>>32)
}

//go:nosplit
func hashUint64(ptr unsafe.Pointer, _ uintptr) uintptr {
	return uintptr(*(*uint64)(ptr))
}

//go:nosplit
func hashUint32(ptr unsafe.Pointer, _ uintptr) uintptr {
	return uintptr(*(*uint32)(ptr))
}

//go:nosplit
func hashUint16(ptr unsafe.Pointer, _ uintptr) uintptr {
	return uintptr(*(*uint16)(ptr))
}

//go:nosplit
func hashUint8(ptr unsafe.Pointer, _ uintptr) uintptr {
	return uintptr(*(*uint8)(ptr))
}

//go:nosplit
func hashString(ptr unsafe.Pointer, seed uintptr) uintptr {
	type stringHeader struct {
		data unsafe.Pointer
		len  int
	}
	s := (*stringHeader)(ptr)
	if s.len <= 12 {
		for i := range s.len {
			seed = seed*31 + uintptr(*(*uint8)(unsafe.Add(s.data, i)))
		}
		return seed
	}
	// Fallback to the built-in hash function
	return builtInStringHasher(ptr, seed)
}

var builtInStringHasher, _ = defaultHasherUsingBuiltIn[string, struct{}]()

// defaultComparer returns a total order for key kinds that have one
// (integers, floats, strings), or nil.
func defaultComparer[K comparable]() CompareFunc {
	kType := reflect.TypeFor[K]()
	if kType == nil {
		return nil
	}
	switch kType.Kind() {
	case reflect.Int:
		return compareAs[int]
	case reflect.Int8:
		return compareAs[int8]
	case reflect.Int16:
		return compareAs[int16]
	case reflect.Int32:
		return compareAs[int32]
	case reflect.Int64:
		return compareAs[int64]
	case reflect.Uint:
		return compareAs[uint]
	case reflect.Uint8:
		return compareAs[uint8]
	case reflect.Uint16:
		return compareAs[uint16]
	case reflect.Uint32:
		return compareAs[uint32]
	case reflect.Uint64:
		return compareAs[uint64]
	case reflect.Uintptr:
		return compareAs[uintptr]
	case reflect.Float32:
		return compareAs[float32]
	case reflect.Float64:
		return compareAs[float64]
	case reflect.String:
		return compareAs[string]
	default:
		return nil
	}
}

//go:nosplit
func compareAs[T cmp.Ordered](ptr, other unsafe.Pointer) int {
	return cmp.Compare(*(*T)(ptr), *(*T)(other))
}

// isNilable reports whether the zero value of K is a nil reference.
// Such keys are treated as the absent key and always hash to 0.
func isNilable[K comparable]() bool {
	kType := reflect.TypeFor[K]()
	if kType == nil {
		return true
	}
	switch kType.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return true
	default:
		return false
	}
}

// defaultHasherUsingBuiltIn gets Go's built-in hash and equality functions
// for the specified types using reflection.
//
// This approach provides direct access to the type-specific functions without
// the overhead of switch statements, resulting in better performance.
//
// Notes:
//   - This implementation relies on Go's internal type representation
//   - It should be verified for compatibility with each Go version upgrade
func defaultHasherUsingBuiltIn[K comparable, V any]() (
	keyHash HashFunc,
	valEqual EqualFunc,
) {
	var m map[K]V
	mapType := iTypeOf(m).MapType()
	return mapType.Hasher, mapType.Elem.Equal
}

type (
	iTFlag   uint8
	iKind    uint8
	iNameOff int32
)

// TypeOff is the offset to a type from moduledata.types.  See resolveTypeOff in
// runtime.
type iTypeOff int32

type iType struct {
	Size_       uintptr
	PtrBytes    uintptr // number of (prefix) bytes in the type that can contain pointers
	Hash        uint32  // hash of type; avoids computation in hash tables
	TFlag       iTFlag  // extra type information flags
	Align_      uint8   // alignment of variable with this type
	FieldAlign_ uint8   // alignment of struct field with this type
	Kind_       iKind   // enumeration for C
	// function for comparing objects of this type
	// (ptr to object A, ptr to object B) -> ==?
	Equal     func(unsafe.Pointer, unsafe.Pointer) bool
	GCData    *byte
	Str       iNameOff // string form
	PtrToThis iTypeOff // type for pointer to this type, may be zero
}

func (t *iType) MapType() *iMapType {
	return (*iMapType)(unsafe.Pointer(t))
}

type iMapType struct {
	iType
	Key   *iType
	Elem  *iType
	Group *iType // internal type representing a slot group
	// function for hashing keys (ptr to key, seed) -> hash
	Hasher func(unsafe.Pointer, uintptr) uintptr
}

func iTypeOf(a any) *iType {
	eface := *(*iEmptyInterface)(unsafe.Pointer(&a))
	// Types are either static (for compiler-created types) or
	// heap-allocated but always reachable (for reflection-created
	// types, held in the central map). So there is no need to
	// escape types.
	return (*iType)(noescape(unsafe.Pointer(eface.Type)))
}

type iEmptyInterface struct {
	Type *iType
	Data unsafe.Pointer
}
