package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/rbaliyan/message/store"
)

var fieldColumns = map[string]string{
	store.FieldID:        "id",
	store.FieldHash:      "hash",
	store.FieldFrom:      "from_user",
	store.FieldTo:        "to_user",
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

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, recordColumns, s.opts.recordsTable())
	var row recordRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return row.toRecord(), nil
}

// GetByHash retrieves a record by its hash token.
func (s *Store) GetByHash(ctx context.Context, hash string) (*store.Record, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE hash = $1`, recordColumns, s.opts.recordsTable())
	var row recordRow
	if err := s.db.GetContext(ctx, &row, query, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get record by hash: %w", err)
	}
	return row.toRecord(), nil
}

// Count returns the number of records matching all filters.
func (s *Store) Count(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := store.ValidateFilters(filters); err != nil {
		return 0, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	where, args, err := buildWhereClause(filters, 1)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, s.opts.recordsTable(), where)
	var count int64
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
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

	where, args, err := buildWhereClause(filters, 1)
	if err != nil {
		return nil, err
	}

	// Keyset pagination: add the cursor predicate and force ID order.
	if opts.StartAfter > 0 {
		if where == "" {
			where = fmt.Sprintf(" WHERE id > $%d", len(args)+1)
		} else {
			where += fmt.Sprintf(" AND id > $%d", len(args)+1)
		}
		args = append(args, opts.StartAfter)
		opts.SortBy = store.FieldID
		opts.SortOrder = store.SortAsc
		opts.Offset = 0
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`SELECT %s FROM %s%s%s LIMIT %d OFFSET %d`,
		recordColumns, s.opts.recordsTable(), where,
		orderClause(opts), limit+1, opts.Offset)

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	records := make([]*store.Record, len(rows))
	for i := range rows {
		records[i] = rows[i].toRecord()
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

// FindWithCount returns a page and the total matched count.
func (s *Store) FindWithCount(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.RecordList, int64, error) {
	list, err := s.Find(ctx, filters, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Count(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	list.Total = total
	return list, total, nil
}

// orderClause renders ORDER BY with the stable ascending-ID tiebreak.
func orderClause(opts store.ListOptions) string {
	column, ok := fieldColumns[opts.SortBy]
	if !ok {
		column = "created_at"
	}
	order := "ASC"
	if opts.SortOrder == store.SortDesc || (opts.SortBy == "" && opts.SortOrder == "") {
		order = "DESC"
	}
	if column == "id" {
		return fmt.Sprintf(" ORDER BY id %s", order)
	}
	return fmt.Sprintf(" ORDER BY %s %s, id ASC", column, order)
}

// buildWhereClause renders filters into a WHERE clause with positional
// parameters starting at argOffset.
func buildWhereClause(filters []store.Filter, argOffset int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	var clauses []string
	var args []any
	n := argOffset

	for _, f := range filters {
		column := fieldColumns[f.Key()]
		value := filterValue(f.Value())

		switch f.Operator() {
		case store.OpEqual:
			clauses = append(clauses, fmt.Sprintf("%s = $%d", column, n))
			args = append(args, value)
			n++
		case store.OpNotEqual:
			clauses = append(clauses, fmt.Sprintf("%s <> $%d", column, n))
			args = append(args, value)
			n++
		case store.OpGreater:
			clauses = append(clauses, fmt.Sprintf("%s > $%d", column, n))
			args = append(args, value)
			n++
		case store.OpGreaterEqual:
			clauses = append(clauses, fmt.Sprintf("%s >= $%d", column, n))
			args = append(args, value)
			n++
		case store.OpLess:
			clauses = append(clauses, fmt.Sprintf("%s < $%d", column, n))
			args = append(args, value)
			n++
		case store.OpLessEqual:
			clauses = append(clauses, fmt.Sprintf("%s <= $%d", column, n))
			args = append(args, value)
			n++
		case store.OpIn:
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", column, n))
			args = append(args, arrayValue(f.Value()))
			n++
		case store.OpNotIn:
			clauses = append(clauses, fmt.Sprintf("%s <> ALL($%d)", column, n))
			args = append(args, arrayValue(f.Value()))
			n++
		case store.OpContains:
			clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", column, n))
			sub, _ := f.Value().(string)
			args = append(args, "%"+escapeLike(sub)+"%")
			n++
		default:
			return "", nil, fmt.Errorf("%w: operator %q", store.ErrInvalidFilter, f.Operator())
		}
	}

	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// filterValue converts filter values to driver-friendly types.
func filterValue(v any) any {
	if s, ok := v.(store.Status); ok {
		return int(s)
	}
	return v
}

// arrayValue converts slice filter values to pq arrays.
func arrayValue(v any) any {
	switch vv := v.(type) {
	case []store.Status:
		ints := make([]int64, len(vv))
		for i, s := range vv {
			ints[i] = int64(s)
		}
		return pq.Array(ints)
	case []string:
		return pq.Array(vv)
	case []int64:
		return pq.Array(vv)
	}
	return v
}

// escapeLike escapes LIKE metacharacters in user-supplied substrings.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
