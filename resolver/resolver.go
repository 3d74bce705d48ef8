// Package resolver defines the user directory boundary.
//
// The message library does not manage user accounts. It asks a Directory
// whether a user exists, what their notification address is, and whether
// they hold an elevated role (which unlocks the duplicate-title sequence
// annotation in search results).
package resolver

import (
	"context"
	"errors"
)

// ErrUnknownUser indicates the directory has no such user.
var ErrUnknownUser = errors.New("resolver: unknown user")

// User is a directory entry.
type User struct {
	// ID is the user identifier used throughout the message library.
	ID string

	// Name is a display name.
	Name string

	// Email receives message notifications. Empty disables notification
	// delivery for this user.
	Email string

	// Elevated marks users with an administrative role.
	Elevated bool
}

// Directory resolves user IDs to directory entries.
type Directory interface {
	// Resolve returns the user with the given ID, or ErrUnknownUser.
	Resolve(ctx context.Context, userID string) (*User, error)

	// ResolveBatch resolves multiple IDs at once. Unknown IDs are simply
	// absent from the result; it is not an error.
	ResolveBatch(ctx context.Context, userIDs []string) (map[string]*User, error)
}
