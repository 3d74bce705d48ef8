package store

import "time"

// BlockEntry is one row of a user's block list.
type BlockEntry struct {
	// Owner is the user who created the block.
	Owner string

	// Blocked is the user whose messages are refused.
	Blocked string

	// CreatedAt is when the block was created.
	CreatedAt time.Time
}

// AllowEntry is one directional allowed-contact edge. A successful
// delivery between two users produces both directions.
type AllowEntry struct {
	// Owner is the user who holds the contact.
	Owner string

	// Contact is the allowed contact.
	Contact string

	// CreatedAt is when the edge was first created. Upserts never move it.
	CreatedAt time.Time

	// UpdatedAt is bumped on every upsert of the edge.
	UpdatedAt time.Time
}
