package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rbaliyan/message/store"
)

// Find returns records matching all filters, paginated by opts.
func (s *Store) Find(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.RecordList, error) {
	list, _, err := s.FindWithCount(ctx, filters, opts)
	return list, err
}

// Count returns the number of records matching all filters.
func (s *Store) Count(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if err := store.ValidateFilters(filters); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, rec := range s.records {
		if matchesAll(rec, filters) {
			count++
		}
	}
	return count, nil
}

// FindWithCount returns a page and the total matched count in one pass.
func (s *Store) FindWithCount(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.RecordList, int64, error) {
	if err := s.checkConnected(); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err := store.ValidateFilters(filters); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	matched := make([]*store.Record, 0)
	for _, rec := range s.records {
		if matchesAll(rec, filters) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	// Keyset pagination takes precedence over offset and forces ID
	// order; resuming from an ID bound under any other order would
	// repeat or skip rows between pages.
	if opts.StartAfter > 0 {
		opts.SortBy = store.FieldID
		opts.SortOrder = store.SortAsc
		opts.Offset = 0
	}

	total := int64(len(matched))
	sortRecords(matched, opts)

	if opts.StartAfter > 0 {
		trimmed := matched[:0]
		for _, rec := range matched {
			if rec.ID > opts.StartAfter {
				trimmed = append(trimmed, rec)
			}
		}
		matched = trimmed
	} else if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Offset:]
		}
	}

	hasMore := false
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
		hasMore = true
	}

	records := make([]*store.Record, len(matched))
	for i, rec := range matched {
		records[i] = rec.Clone()
	}

	var nextCursor int64
	if hasMore && opts.IDOrdered() && len(records) > 0 {
		nextCursor = records[len(records)-1].ID
	}

	return &store.RecordList{
		Records:    records,
		Total:      total,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	}, total, nil
}

func matchesAll(rec *store.Record, filters []store.Filter) bool {
	for _, f := range filters {
		if !matches(rec, f) {
			return false
		}
	}
	return true
}

func matches(rec *store.Record, f Filter) bool {
	switch f.Key() {
	case store.FieldID:
		return compareInt64(rec.ID, f)
	case store.FieldHash:
		return compareString(rec.Hash, f)
	case store.FieldFrom:
		return compareString(rec.From, f)
	case store.FieldTo:
		return compareString(rec.To, f)
	case store.FieldTitle:
		return compareString(rec.Title, f)
	case store.FieldBody:
		return compareString(rec.Body, f)
	case store.FieldContext:
		return compareString(rec.Context, f)
	case store.FieldParams:
		return compareString(rec.Params, f)
	case store.FieldStatus:
		return compareStatus(rec.Status, f)
	case store.FieldCreatedAt:
		return compareTime(rec.CreatedAt, f)
	case store.FieldExpiresAt:
		if rec.ExpiresAt == nil {
			return false
		}
		return compareTime(*rec.ExpiresAt, f)
	}
	return false
}

// Filter is re-exported locally to keep the match helpers readable.
type Filter = store.Filter

func compareInt64(v int64, f Filter) bool {
	want, ok := toInt64(f.Value())
	if !ok {
		return false
	}
	switch f.Operator() {
	case store.OpEqual:
		return v == want
	case store.OpNotEqual:
		return v != want
	case store.OpGreater:
		return v > want
	case store.OpGreaterEqual:
		return v >= want
	case store.OpLess:
		return v < want
	case store.OpLessEqual:
		return v <= want
	}
	return false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}

func compareString(v string, f Filter) bool {
	switch f.Operator() {
	case store.OpEqual:
		return v == f.Value()
	case store.OpNotEqual:
		return v != f.Value()
	case store.OpContains:
		sub, _ := f.Value().(string)
		return strings.Contains(strings.ToLower(v), strings.ToLower(sub))
	case store.OpIn:
		values, ok := f.Value().([]string)
		if !ok {
			return false
		}
		for _, s := range values {
			if v == s {
				return true
			}
		}
		return false
	case store.OpNotIn:
		values, ok := f.Value().([]string)
		if !ok {
			return false
		}
		for _, s := range values {
			if v == s {
				return false
			}
		}
		return true
	}
	return false
}

func compareStatus(v store.Status, f Filter) bool {
	switch f.Operator() {
	case store.OpEqual:
		return v == f.Value()
	case store.OpNotEqual:
		return v != f.Value()
	case store.OpIn, store.OpNotIn:
		statuses, ok := f.Value().([]store.Status)
		if !ok {
			return false
		}
		found := false
		for _, s := range statuses {
			if v == s {
				found = true
				break
			}
		}
		if f.Operator() == store.OpIn {
			return found
		}
		return !found
	}
	return false
}

func compareTime(v time.Time, f Filter) bool {
	want, ok := f.Value().(time.Time)
	if !ok {
		return false
	}
	switch f.Operator() {
	case store.OpEqual:
		return v.Equal(want)
	case store.OpNotEqual:
		return !v.Equal(want)
	case store.OpGreater:
		return v.After(want)
	case store.OpGreaterEqual:
		return v.After(want) || v.Equal(want)
	case store.OpLess:
		return v.Before(want)
	case store.OpLessEqual:
		return v.Before(want) || v.Equal(want)
	}
	return false
}

// sortRecords orders records per opts. The default mirrors the search
// listing contract: created_at descending with ascending ID tiebreak.
func sortRecords(records []*store.Record, opts store.ListOptions) {
	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = store.FieldCreatedAt
	}
	order := opts.SortOrder
	if order == "" {
		if sortBy == store.FieldCreatedAt {
			order = store.SortDesc
		} else {
			order = store.SortAsc
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		var less, equal bool
		switch sortBy {
		case store.FieldID:
			less, equal = a.ID < b.ID, a.ID == b.ID
		case store.FieldTitle:
			less, equal = a.Title < b.Title, a.Title == b.Title
		case store.FieldStatus:
			less, equal = a.Status < b.Status, a.Status == b.Status
		default:
			less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		}
		if equal {
			return a.ID < b.ID
		}
		if order == store.SortDesc {
			return !less
		}
		return less
	})
}
