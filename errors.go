package binmap

import "github.com/pkg/errors"

var (
	// ErrInvalidArgument is returned by NewMap for a negative capacity,
	// a non-positive or NaN load factor, or hooks of the wrong type.
	ErrInvalidArgument = errors.New("binmap: invalid argument")

	// ErrNilFunction is the panic value when a required callback is nil.
	ErrNilFunction = errors.New("binmap: nil function")

	// ErrConcurrentModification reports that the map was structurally
	// modified while it was being traversed or while a callback ran.
	// Detection is best-effort and must not be relied upon for correctness.
	ErrConcurrentModification = errors.New("binmap: concurrent modification")

	// ErrIllegalState is returned by Iterator.Remove when there is no
	// current entry.
	ErrIllegalState = errors.New("binmap: illegal iterator state")

	// ErrCorrupted is returned by Verify when a bin violates a structural
	// invariant. It always indicates a bug, never bad input.
	ErrCorrupted = errors.New("binmap: corrupted bin")
)

// nilFunction is the panic value for a nil callback passed to op.
func nilFunction(op string) error {
	return errors.Wrapf(ErrNilFunction, "called %s with nil function", op)
}

// concurrentModification is the panic value for a structural change
// observed by op.
func concurrentModification(op string) error {
	return errors.Wrapf(ErrConcurrentModification, "%s", op)
}

// corrupted reports an invariant violation found in bin index.
func corrupted(index int, format string, args ...any) error {
	return errors.Wrapf(ErrCorrupted, "bin %d: "+format, append([]any{index}, args...)...)
}
