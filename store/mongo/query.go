package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rbaliyan/message/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

var fieldNames = map[string]string{
	store.FieldID:        "_id",
	store.FieldHash:      "hash",
	store.FieldFrom:      "from",
	store.FieldTo:        "to",
	store.FieldTitle:     "title",
	store.FieldBody:      "body",
	store.FieldContext:   "context",
	store.FieldParams:    "params",
	store.FieldStatus:    "status",
	store.FieldCreatedAt: "created_at",
	store.FieldExpiresAt: "expires_at",
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id int64) (*store.Record, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var doc recordDoc
	if err := s.records().FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return doc.toRecord(), nil
}

// GetByHash retrieves a record by its hash token.
func (s *Store) GetByHash(ctx context.Context, hash string) (*store.Record, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var doc recordDoc
	if err := s.records().FindOne(ctx, bson.M{"hash": hash}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get record by hash: %w", err)
	}
	return doc.toRecord(), nil
}

// Count returns the number of records matching all filters.
func (s *Store) Count(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := store.ValidateFilters(filters); err != nil {
		return 0, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query, err := buildQuery(filters)
	if err != nil {
		return 0, err
	}
	count, err := s.records().CountDocuments(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// Find returns records matching all filters, paginated by opts.
func (s *Store) Find(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.RecordList, error) {
	if err := store.ValidateFilters(filters); err != nil {
		return nil, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query, err := buildQuery(filters)
	if err != nil {
		return nil, err
	}

	// Keyset pagination: add the cursor predicate and force ID order.
	if opts.StartAfter > 0 {
		query["_id"] = mergeIDPredicate(query["_id"], opts.StartAfter)
		opts.SortBy = store.FieldID
		opts.SortOrder = store.SortAsc
		opts.Offset = 0
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	findOpts := mongoopts.Find().
		SetSort(sortSpec(opts)).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(limit + 1))

	cursor, err := s.records().Find(ctx, query, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []recordDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}

	hasMore := len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}

	records := make([]*store.Record, len(docs))
	for i := range docs {
		records[i] = docs[i].toRecord()
	}

	var nextCursor int64
	if hasMore && opts.IDOrdered() && len(records) > 0 {
		nextCursor = records[len(records)-1].ID
	}

	return &store.RecordList{
		Records:    records,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	}, nil
}

// mergeIDPredicate combines an existing _id predicate with the keyset
// cursor's $gt bound.
func mergeIDPredicate(existing any, after int64) any {
	if existing == nil {
		return bson.M{"$gt": after}
	}
	if m, ok := existing.(bson.M); ok {
		m["$gt"] = after
		return m
	}
	// Exact _id filter plus cursor: keep both.
	return bson.M{"$eq": existing, "$gt": after}
}

func sortSpec(opts store.ListOptions) bson.D {
	field, ok := fieldNames[opts.SortBy]
	if !ok {
		field = "created_at"
	}
	dir := 1
	if opts.SortOrder == store.SortDesc || (opts.SortBy == "" && opts.SortOrder == "") {
		dir = -1
	}
	if field == "_id" {
		return bson.D{{Key: "_id", Value: dir}}
	}
	return bson.D{{Key: field, Value: dir}, {Key: "_id", Value: 1}}
}

// buildQuery renders filters into a mongo query document.
func buildQuery(filters []store.Filter) (bson.M, error) {
	query := bson.M{}
	for _, f := range filters {
		field := fieldNames[f.Key()]
		value := filterValue(f.Value())

		var pred any
		switch f.Operator() {
		case store.OpEqual:
			pred = value
		case store.OpNotEqual:
			pred = bson.M{"$ne": value}
		case store.OpGreater:
			pred = bson.M{"$gt": value}
		case store.OpGreaterEqual:
			pred = bson.M{"$gte": value}
		case store.OpLess:
			pred = bson.M{"$lt": value}
		case store.OpLessEqual:
			pred = bson.M{"$lte": value}
		case store.OpIn:
			pred = bson.M{"$in": sliceValue(f.Value())}
		case store.OpNotIn:
			pred = bson.M{"$nin": sliceValue(f.Value())}
		case store.OpContains:
			sub, _ := f.Value().(string)
			pred = bson.M{"$regex": escapeRegex(sub), "$options": "i"}
		default:
			return nil, fmt.Errorf("%w: operator %q", store.ErrInvalidFilter, f.Operator())
		}

		// Merge multiple predicates on the same field (e.g. a created_at
		// range) into one document.
		if existing, ok := query[field].(bson.M); ok {
			if m, ok := pred.(bson.M); ok {
				for k, v := range m {
					existing[k] = v
				}
				continue
			}
		}
		query[field] = pred
	}
	return query, nil
}

func filterValue(v any) any {
	if s, ok := v.(store.Status); ok {
		return int(s)
	}
	return v
}

func sliceValue(v any) any {
	if statuses, ok := v.([]store.Status); ok {
		ints := make([]int, len(statuses))
		for i, s := range statuses {
			ints[i] = int(s)
		}
		return ints
	}
	return v
}

// escapeRegex escapes regex metacharacters in user-supplied substrings
// so contains filters cannot inject patterns.
func escapeRegex(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '.', '^', '$', '*', '+', '?', '(', ')', '[', ']', '{', '}', '|', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
