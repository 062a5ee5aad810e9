package dynbvh

import "github.com/pkg/errors"

// Errors returned by the tree. They are usually wrapped with context, so match them with errors.Is.
var (
	// ErrCapacityExceeded means a node or bucket pool has no free slot. The failed call leaves the tree unchanged.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrItemNotFound means the item is not stored in the tree.
	ErrItemNotFound = errors.New("item not found")

	// ErrDuplicateItem means an item with the same identity is already stored.
	ErrDuplicateItem = errors.New("item already present")

	// ErrInvalidConfiguration is returned for bad construction parameters, and by Optimize
	// when leaves may hold more than one item.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvariantViolation signals a broken tree. It indicates a bug, not a usage error.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = errors.New("bvh disposed")
)

// violation panics with an ErrInvariantViolation. Only used for states that correct code cannot reach.
func violation(format string, args ...interface{}) {
	panic(errors.Wrapf(ErrInvariantViolation, format, args...))
}
