package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rbaliyan/message/store"
)

// uniqueViolation is the postgres error code for unique constraint hits.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Create inserts a record and returns it with ID and CreatedAt populated.
func (s *Store) Create(ctx context.Context, rec store.Record) (*store.Record, error) {
	if rec.Hash == "" {
		return nil, store.ErrInvalidRecord
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s
		(hash, from_user, to_user, title, body, context, params, status,
		 document_id, signature_image_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING %s`, s.opts.recordsTable(), recordColumns)

	var expiresAt sql.NullTime
	if rec.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *rec.ExpiresAt, Valid: true}
	}

	var row recordRow
	err := s.db.GetContext(ctx, &row, query,
		rec.Hash, rec.From, rec.To, rec.Title, rec.Body, rec.Context,
		rec.Params, int(rec.Status), rec.DocumentID, rec.SignatureImageID,
		expiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateHash
		}
		return nil, fmt.Errorf("insert record: %w", err)
	}

	return row.toRecord(), nil
}

// UpdateStatus performs a compare-and-set status transition in a single
// UPDATE. The ack timestamp is stamped on the first transition to read.
func (s *Store) UpdateStatus(ctx context.Context, id int64, from, to store.Status) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s
		SET status = $1,
		    ack_at = CASE WHEN $1 = %d AND ack_at IS NULL THEN now() ELSE ack_at END
		WHERE id = $2 AND status = $3`,
		s.opts.recordsTable(), int(store.StatusRead))

	res, err := s.db.ExecContext(ctx, query, int(to), id, int(from))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Distinguish a lost CAS race from a missing row.
	var exists bool
	check := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, s.opts.recordsTable())
	if err := s.db.GetContext(ctx, &exists, check, id); err != nil {
		return fmt.Errorf("check record: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrStatusConflict
}

// Block adds an entry to owner's block list.
func (s *Store) Block(ctx context.Context, owner, other string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (owner, blocked) VALUES ($1, $2)
		ON CONFLICT (owner, blocked) DO NOTHING`, s.opts.blocksTable())
	if _, err := s.db.ExecContext(ctx, query, owner, other); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	return nil
}

// Unblock removes an entry from owner's block list.
func (s *Store) Unblock(ctx context.Context, owner, other string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE owner = $1 AND blocked = $2`, s.opts.blocksTable())
	if _, err := s.db.ExecContext(ctx, query, owner, other); err != nil {
		return fmt.Errorf("unblock: %w", err)
	}
	return nil
}

// IsBlocked reports whether owner has blocked other.
func (s *Store) IsBlocked(ctx context.Context, owner, other string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE owner = $1 AND blocked = $2)`,
		s.opts.blocksTable())
	var blocked bool
	if err := s.db.GetContext(ctx, &blocked, query, owner, other); err != nil {
		return false, fmt.Errorf("is blocked: %w", err)
	}
	return blocked, nil
}

// ListBlocked returns owner's block list.
func (s *Store) ListBlocked(ctx context.Context, owner string) ([]store.BlockEntry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT owner, blocked, created_at FROM %s WHERE owner = $1
		ORDER BY created_at`, s.opts.blocksTable())

	rows, err := s.db.QueryxContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}
	defer rows.Close()

	var entries []store.BlockEntry
	for rows.Next() {
		var e store.BlockEntry
		if err := rows.Scan(&e.Owner, &e.Blocked, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan block entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertAllow creates or refreshes an allowed-contact edge. The insert
// path sets both timestamps; the conflict path only bumps updated_at, so
// the creation time survives repeated sends.
func (s *Store) UpsertAllow(ctx context.Context, owner, contact string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (owner, contact) VALUES ($1, $2)
		ON CONFLICT (owner, contact) DO UPDATE SET updated_at = now()`,
		s.opts.contactsTable())
	if _, err := s.db.ExecContext(ctx, query, owner, contact); err != nil {
		return fmt.Errorf("upsert allow: %w", err)
	}
	return nil
}

// HasAllow reports whether the owner -> contact edge exists.
func (s *Store) HasAllow(ctx context.Context, owner, contact string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE owner = $1 AND contact = $2)`,
		s.opts.contactsTable())
	var ok bool
	if err := s.db.GetContext(ctx, &ok, query, owner, contact); err != nil {
		return false, fmt.Errorf("has allow: %w", err)
	}
	return ok, nil
}

// ListAllowed returns owner's allowed contacts.
func (s *Store) ListAllowed(ctx context.Context, owner string) ([]store.AllowEntry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT owner, contact, created_at, updated_at FROM %s
		WHERE owner = $1 ORDER BY created_at`, s.opts.contactsTable())

	rows, err := s.db.QueryxContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list allowed: %w", err)
	}
	defer rows.Close()

	var entries []store.AllowEntry
	for rows.Next() {
		var e store.AllowEntry
		if err := rows.Scan(&e.Owner, &e.Contact, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan allow entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
