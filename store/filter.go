package store

import (
	"fmt"
	"time"
)

// Field keys understood by all store implementations. Implementations map
// these to their native column or document field names.
const (
	FieldID        = "id"
	FieldHash      = "hash"
	FieldFrom      = "from"
	FieldTo        = "to"
	FieldTitle     = "title"
	FieldBody      = "body"
	FieldContext   = "context"
	FieldParams    = "params"
	FieldStatus    = "status"
	FieldCreatedAt = "created_at"
	FieldExpiresAt = "expires_at"
)

// Comparison operators supported by filters.
const (
	OpEqual        = "eq"
	OpNotEqual     = "ne"
	OpGreater      = "gt"
	OpGreaterEqual = "gte"
	OpLess         = "lt"
	OpLessEqual    = "lte"
	OpIn           = "in"
	OpNotIn        = "nin"
	OpContains     = "contains"
)

var validOperators = map[string]bool{
	OpEqual:        true,
	OpNotEqual:     true,
	OpGreater:      true,
	OpGreaterEqual: true,
	OpLess:         true,
	OpLessEqual:    true,
	OpIn:           true,
	OpNotIn:        true,
	OpContains:     true,
}

var validFields = map[string]bool{
	FieldID:        true,
	FieldHash:      true,
	FieldFrom:      true,
	FieldTo:        true,
	FieldTitle:     true,
	FieldBody:      true,
	FieldContext:   true,
	FieldParams:    true,
	FieldStatus:    true,
	FieldCreatedAt: true,
	FieldExpiresAt: true,
}

// Filter is a single field comparison. Filters combine with AND.
// The zero value is invalid; construct filters with NewFilter or the
// convenience constructors below.
type Filter struct {
	key      string
	value    any
	operator string
}

// NewFilter creates a filter. Invalid fields or operators are caught by
// Validate, which every store calls before executing a query.
func NewFilter(key string, operator string, value any) Filter {
	return Filter{key: key, value: value, operator: operator}
}

// Key returns the field key.
func (f Filter) Key() string { return f.key }

// Value returns the comparison value.
func (f Filter) Value() any { return f.value }

// Operator returns the comparison operator.
func (f Filter) Operator() string { return f.operator }

// Validate checks the filter's field and operator.
func (f Filter) Validate() error {
	if !validFields[f.key] {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, f.key)
	}
	if !validOperators[f.operator] {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.operator)
	}
	if f.operator == OpContains {
		if _, ok := f.value.(string); !ok {
			return fmt.Errorf("%w: contains requires a string value", ErrInvalidFilter)
		}
	}
	return nil
}

// ValidateFilters validates a filter set.
func ValidateFilters(filters []Filter) error {
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Convenience constructors for the common cases.

// FromIs matches records sent by the given user.
func FromIs(userID string) Filter {
	return NewFilter(FieldFrom, OpEqual, userID)
}

// ToIs matches records addressed to the given user.
func ToIs(userID string) Filter {
	return NewFilter(FieldTo, OpEqual, userID)
}

// HashIs matches a record by its exact hash.
func HashIs(hash string) Filter {
	return NewFilter(FieldHash, OpEqual, hash)
}

// TitleIs matches records with the exact title.
func TitleIs(title string) Filter {
	return NewFilter(FieldTitle, OpEqual, title)
}

// StatusIs matches records in the given status.
func StatusIs(s Status) Filter {
	return NewFilter(FieldStatus, OpEqual, s)
}

// StatusIn matches records in any of the given statuses.
func StatusIn(statuses ...Status) Filter {
	return NewFilter(FieldStatus, OpIn, statuses)
}

// StatusNotIn matches records in none of the given statuses.
func StatusNotIn(statuses ...Status) Filter {
	return NewFilter(FieldStatus, OpNotIn, statuses)
}

// NotDeleted excludes soft-deleted records.
func NotDeleted() Filter {
	return NewFilter(FieldStatus, OpNotEqual, StatusDeleted)
}

// TitleContains matches records whose title contains the substring
// (case-insensitive).
func TitleContains(s string) Filter {
	return NewFilter(FieldTitle, OpContains, s)
}

// BodyContains matches records whose body contains the substring
// (case-insensitive).
func BodyContains(s string) Filter {
	return NewFilter(FieldBody, OpContains, s)
}

// HashContains matches records whose hash contains the substring.
func HashContains(s string) Filter {
	return NewFilter(FieldHash, OpContains, s)
}

// IDIs matches a record by exact ID.
func IDIs(id int64) Filter {
	return NewFilter(FieldID, OpEqual, id)
}

// IDGreaterOrEqual matches records with ID >= id. Used for windowed
// duplicate-title counting.
func IDGreaterOrEqual(id int64) Filter {
	return NewFilter(FieldID, OpGreaterEqual, id)
}

// CreatedOn matches records created within the calendar day of t (UTC).
func CreatedOn(t time.Time) []Filter {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return []Filter{
		NewFilter(FieldCreatedAt, OpGreaterEqual, day),
		NewFilter(FieldCreatedAt, OpLess, day.Add(24*time.Hour)),
	}
}

// ExpiredBefore matches records whose expiry time has passed.
func ExpiredBefore(t time.Time) Filter {
	return NewFilter(FieldExpiresAt, OpLessEqual, t)
}

// FilterBuilder accumulates filters fluently.
//
//	filters := store.NewFilterBuilder().
//		To("alice").
//		Status(store.StatusUnread).
//		Build()
type FilterBuilder struct {
	filters []Filter
}

// NewFilterBuilder creates an empty builder.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{}
}

// Add appends an arbitrary filter.
func (b *FilterBuilder) Add(f Filter) *FilterBuilder {
	b.filters = append(b.filters, f)
	return b
}

// From appends a sender filter.
func (b *FilterBuilder) From(userID string) *FilterBuilder {
	return b.Add(FromIs(userID))
}

// To appends a recipient filter.
func (b *FilterBuilder) To(userID string) *FilterBuilder {
	return b.Add(ToIs(userID))
}

// Status appends a status filter.
func (b *FilterBuilder) Status(s Status) *FilterBuilder {
	return b.Add(StatusIs(s))
}

// Title appends a title-contains filter.
func (b *FilterBuilder) Title(s string) *FilterBuilder {
	return b.Add(TitleContains(s))
}

// Build returns the accumulated filters.
func (b *FilterBuilder) Build() []Filter {
	return b.filters
}
