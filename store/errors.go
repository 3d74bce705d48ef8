package store

import "errors"

// Sentinel errors returned by store implementations. The root package
// wraps these in its own error taxonomy; callers outside the library
// should rarely see them directly.
var (
	// ErrNotFound indicates the requested record or edge does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateHash indicates a create collided with an existing hash.
	ErrDuplicateHash = errors.New("store: duplicate hash")

	// ErrStatusConflict indicates a compare-and-set status update lost a
	// race: the record's current status did not match the expected one.
	ErrStatusConflict = errors.New("store: status conflict")

	// ErrInvalidFilter indicates an unknown filter field or operator.
	ErrInvalidFilter = errors.New("store: invalid filter")

	// ErrInvalidRecord indicates a record failed store-level validation,
	// e.g. an empty hash.
	ErrInvalidRecord = errors.New("store: invalid record")

	// ErrNotConnected indicates the store is not connected.
	ErrNotConnected = errors.New("store: not connected")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateHash reports whether err wraps ErrDuplicateHash.
func IsDuplicateHash(err error) bool {
	return errors.Is(err, ErrDuplicateHash)
}

// IsStatusConflict reports whether err wraps ErrStatusConflict.
func IsStatusConflict(err error) bool {
	return errors.Is(err, ErrStatusConflict)
}
