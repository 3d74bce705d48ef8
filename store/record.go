package store

import "time"

// Status is the lifecycle state of a record. Values are part of the
// stored representation and must not be renumbered.
type Status int

const (
	// StatusDeleted marks a soft-deleted record. The row is retained and
	// remains visible in the sender's sent listing.
	StatusDeleted Status = -1
	// StatusUnread is the initial status of a delivered message.
	StatusUnread Status = 0
	// StatusRead means the recipient has opened the message.
	StatusRead Status = 1
	// StatusAnswered means the recipient has replied.
	StatusAnswered Status = 2
	// StatusDraft is an unsent message kept by its author.
	StatusDraft Status = 3
	// StatusTemplate is a reusable message body kept by its author.
	StatusTemplate Status = 4
	// StatusSignature holds a user's signature text and optional image.
	StatusSignature Status = 5
	// StatusOutOfOfficeInactive is a disabled out-of-office reply.
	StatusOutOfOfficeInactive Status = 6
	// StatusOutOfOfficeActive is an enabled out-of-office reply.
	StatusOutOfOfficeActive Status = 7
)

// String returns a human-readable name for logging.
func (s Status) String() string {
	switch s {
	case StatusDeleted:
		return "deleted"
	case StatusUnread:
		return "unread"
	case StatusRead:
		return "read"
	case StatusAnswered:
		return "answered"
	case StatusDraft:
		return "draft"
	case StatusTemplate:
		return "template"
	case StatusSignature:
		return "signature"
	case StatusOutOfOfficeInactive:
		return "out_of_office_inactive"
	case StatusOutOfOfficeActive:
		return "out_of_office_active"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	return s >= StatusDeleted && s <= StatusOutOfOfficeActive
}

// Special reports whether s is an authoring status that never takes part
// in delivery: drafts, templates, signatures and out-of-office replies.
func (s Status) Special() bool {
	switch s {
	case StatusDraft, StatusTemplate, StatusSignature,
		StatusOutOfOfficeInactive, StatusOutOfOfficeActive:
		return true
	}
	return false
}

// RequiresRecipient reports whether a record with this status must name
// a recipient at creation time. Templates are authoring records but
// still carry the recipient they will be sent to; only drafts,
// signatures and out-of-office replies are exempt.
func (s Status) RequiresRecipient() bool {
	switch s {
	case StatusDraft, StatusSignature,
		StatusOutOfOfficeInactive, StatusOutOfOfficeActive:
		return false
	}
	return true
}

// CanTransition reports whether the s -> to transition is legal.
//
// Delivered messages walk unread -> read -> answered. Any status except
// deleted may soft-delete. Out-of-office toggles between its two states.
// Authoring statuses never become read or answered.
func (s Status) CanTransition(to Status) bool {
	if !to.Valid() || s == to {
		return false
	}
	switch to {
	case StatusDeleted:
		return s != StatusDeleted
	case StatusRead:
		return s == StatusUnread
	case StatusAnswered:
		return s == StatusRead
	case StatusOutOfOfficeActive:
		return s == StatusOutOfOfficeInactive
	case StatusOutOfOfficeInactive:
		return s == StatusOutOfOfficeActive
	}
	return false
}

// Record is a stored message row. Fields are plain values; the store
// assigns ID and CreatedAt on Create and everything else is immutable
// except Status and AckAt.
type Record struct {
	// ID is the store-assigned numeric identifier. Monotonically
	// increasing within a store; never reused.
	ID int64

	// Hash is the public lookup token. Generated once, unique.
	Hash string

	// From is the sender's user ID. Empty only for system records.
	From string

	// To is the recipient's user ID. Empty for authoring statuses.
	To string

	// Title is the subject line.
	Title string

	// Body is the message text.
	Body string

	// Context is a free-form origin reference, e.g. the URL or entity
	// the message was written from.
	Context string

	// Params carries serialized auxiliary data. Auto-replies are marked
	// here so they can be recognized and never re-answered.
	Params string

	// Status is the lifecycle state.
	Status Status

	// DocumentID references an uploaded document, when attached.
	DocumentID string

	// SignatureImageID references an uploaded signature image.
	SignatureImageID string

	// CreatedAt is stamped by the store on Create.
	CreatedAt time.Time

	// ExpiresAt, when set, marks the record for soft deletion by
	// maintenance sweeps after this time.
	ExpiresAt *time.Time

	// AckAt is stamped when the record first transitions to read.
	AckAt *time.Time
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	if r.AckAt != nil {
		t := *r.AckAt
		c.AckAt = &t
	}
	return &c
}

// Deleted reports whether the record is soft-deleted.
func (r *Record) Deleted() bool { return r.Status == StatusDeleted }
