// Package store defines the storage contracts for the message library.
//
// A Store keeps three kinds of state: message records, block edges and
// allow edges. Implementations are provided for MongoDB, PostgreSQL and
// in-memory (for tests). All implementations must be safe for concurrent
// use.
//
// # Consistency Model
//
// The store does NOT use distributed locks. Correctness under concurrency
// relies on database-level primitives instead:
//
//   - Record creation is guarded by a unique index on the hash column.
//     Two concurrent creates with the same hash: one wins, the other gets
//     ErrDuplicateHash.
//   - Status changes go through UpdateStatus, which is a compare-and-set
//     on the current status. A lost race returns ErrStatusConflict and the
//     caller decides whether to re-read or give up.
//   - Allow edges are upserted against their (owner, contact) primary key.
//     Concurrent upserts for the same pair converge on a single row; the
//     first writer sets the creation timestamp, later writers only bump
//     the updated timestamp.
//
// Records are never physically removed by any operation in this package.
// Deletion is a status transition and deleted records stay queryable.
package store

import "context"

// SortOrder defines the sort direction for listings.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListOptions controls pagination and ordering of Find results.
type ListOptions struct {
	// Limit is the maximum number of records to return. Zero means the
	// caller's default applies.
	Limit int

	// Offset skips the first N matching records. Ignored when StartAfter
	// is set.
	Offset int

	// SortBy names the record field to sort on ("id", "created_at",
	// "title", "status"). Empty means created_at.
	SortBy string

	// SortOrder is the direction for SortBy. Ties are always broken by
	// ascending ID so pagination is stable.
	SortOrder SortOrder

	// StartAfter enables keyset pagination: only records with ID strictly
	// greater than this value are returned. Setting it overrides SortBy,
	// SortOrder and Offset; cursor walks are always in ascending ID order,
	// since resuming from an ID bound under any other order would repeat
	// or skip rows between pages. Zero disables it.
	StartAfter int64
}

// IDOrdered reports whether the options produce a page in ascending ID
// order, the only order NextCursor is defined for.
func (o ListOptions) IDOrdered() bool {
	return o.StartAfter > 0 || (o.SortBy == FieldID && o.SortOrder != SortDesc)
}

// RecordList is a page of records plus pagination state.
type RecordList struct {
	Records []*Record
	Total   int64
	HasMore bool

	// NextCursor is the StartAfter value for the next page. It is only
	// populated when the page is in ascending ID order and more records
	// remain; pages under any other order report zero.
	NextCursor int64
}

// RecordStore provides message record persistence.
type RecordStore interface {
	// Create persists a new record and returns it with the store-assigned
	// ID and creation timestamp populated. The record's hash must be
	// non-empty and unique; a duplicate returns ErrDuplicateHash.
	Create(ctx context.Context, rec Record) (*Record, error)

	// Get retrieves a record by its numeric ID.
	Get(ctx context.Context, id int64) (*Record, error)

	// GetByHash retrieves a record by its public hash token.
	GetByHash(ctx context.Context, hash string) (*Record, error)

	// Find returns records matching all filters, paginated by opts.
	Find(ctx context.Context, filters []Filter, opts ListOptions) (*RecordList, error)

	// Count returns the number of records matching all filters.
	Count(ctx context.Context, filters []Filter) (int64, error)

	// UpdateStatus transitions a record from one status to another as a
	// compare-and-set. Returns ErrNotFound if the record does not exist
	// and ErrStatusConflict if its current status is not from. A
	// transition to StatusRead stamps the acknowledgement time if unset.
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
}

// BlockStore provides the per-user block list.
//
// Direction matters: Block(owner, other) means owner refuses messages
// FROM other. IsBlocked is always asked from the recipient's side.
type BlockStore interface {
	// Block adds other to owner's block list. Idempotent.
	Block(ctx context.Context, owner, other string) error

	// Unblock removes other from owner's block list. Removing an absent
	// entry is not an error.
	Unblock(ctx context.Context, owner, other string) error

	// IsBlocked reports whether owner has blocked other.
	IsBlocked(ctx context.Context, owner, other string) (bool, error)

	// ListBlocked returns owner's block list.
	ListBlocked(ctx context.Context, owner string) ([]BlockEntry, error)
}

// AllowStore provides the per-user allowed-contacts list. Edges are
// directional; a mutual relationship is two edges.
type AllowStore interface {
	// UpsertAllow records that contact is an allowed contact of owner.
	// Creates the edge on first call, refreshes its updated timestamp on
	// later calls. Never returns an error for an existing edge.
	UpsertAllow(ctx context.Context, owner, contact string) error

	// HasAllow reports whether the owner -> contact edge exists.
	HasAllow(ctx context.Context, owner, contact string) (bool, error)

	// ListAllowed returns owner's allowed contacts.
	ListAllowed(ctx context.Context, owner string) ([]AllowEntry, error)
}

// Store is the full storage contract used by the message service.
type Store interface {
	// Connect establishes the connection and ensures schema/indexes exist.
	Connect(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	RecordStore
	BlockStore
	AllowStore
}

// FindWithCounter is an optional capability: stores that can produce a
// page and its total count in one round trip implement it. Callers fall
// back to Find + Count otherwise.
type FindWithCounter interface {
	FindWithCount(ctx context.Context, filters []Filter, opts ListOptions) (*RecordList, int64, error)
}
