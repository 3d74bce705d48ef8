// Package postgres provides a PostgreSQL store implementation using
// sqlx and lib/pq.
//
// The store owns three tables (prefix configurable): records, blocks and
// contacts. Connect creates them if missing. Hash uniqueness, the
// (owner, blocked) and (owner, contact) primary keys and the
// compare-and-set status update provide the concurrency guarantees the
// store contract requires, without advisory locks.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/rbaliyan/message/store"
)

// Store is a PostgreSQL store.Store implementation.
type Store struct {
	db     *sqlx.DB
	opts   *options
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)
var _ store.FindWithCounter = (*Store)(nil)

// New creates a postgres store over an existing database handle.
// The caller owns the *sql.DB; Close does not close it.
func New(db *sql.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:     sqlx.NewDb(db, "postgres"),
		opts:   o,
		logger: o.logger,
	}
}

// Connect verifies connectivity and ensures the schema exists.
func (s *Store) Connect(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	s.logger.Debug("postgres store connected", "table_prefix", s.opts.tablePrefix)
	return nil
}

// Close is a no-op; the caller owns the database handle.
func (s *Store) Close(_ context.Context) error {
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// opCtx applies the per-operation timeout.
func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.timeout)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id                 BIGSERIAL PRIMARY KEY,
			hash               TEXT        NOT NULL,
			from_user          TEXT        NOT NULL DEFAULT '',
			to_user            TEXT        NOT NULL DEFAULT '',
			title              TEXT        NOT NULL,
			body               TEXT        NOT NULL DEFAULT '',
			context            TEXT        NOT NULL DEFAULT '',
			params             TEXT        NOT NULL DEFAULT '',
			status             INTEGER     NOT NULL DEFAULT 0,
			document_id        TEXT        NOT NULL DEFAULT '',
			signature_image_id TEXT        NOT NULL DEFAULT '',
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at         TIMESTAMPTZ,
			ack_at             TIMESTAMPTZ,
			CONSTRAINT %s_hash_unique UNIQUE (hash)
		)`, s.opts.recordsTable(), s.opts.recordsTable()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_to_status_idx ON %s (to_user, status)`,
			s.opts.recordsTable(), s.opts.recordsTable()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_from_idx ON %s (from_user)`,
			s.opts.recordsTable(), s.opts.recordsTable()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_title_idx ON %s (title)`,
			s.opts.recordsTable(), s.opts.recordsTable()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			owner      TEXT        NOT NULL,
			blocked    TEXT        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (owner, blocked)
		)`, s.opts.blocksTable()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			owner      TEXT        NOT NULL,
			contact    TEXT        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (owner, contact)
		)`, s.opts.contactsTable()),
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// recordRow mirrors the records table for sqlx scanning.
type recordRow struct {
	ID               int64        `db:"id"`
	Hash             string       `db:"hash"`
	FromUser         string       `db:"from_user"`
	ToUser           string       `db:"to_user"`
	Title            string       `db:"title"`
	Body             string       `db:"body"`
	Context          string       `db:"context"`
	Params           string       `db:"params"`
	Status           int          `db:"status"`
	DocumentID       string       `db:"document_id"`
	SignatureImageID string       `db:"signature_image_id"`
	CreatedAt        time.Time    `db:"created_at"`
	ExpiresAt        sql.NullTime `db:"expires_at"`
	AckAt            sql.NullTime `db:"ack_at"`
}

const recordColumns = `id, hash, from_user, to_user, title, body, context, params,
	status, document_id, signature_image_id, created_at, expires_at, ack_at`

func (r *recordRow) toRecord() *store.Record {
	rec := &store.Record{
		ID:               r.ID,
		Hash:             r.Hash,
		From:             r.FromUser,
		To:               r.ToUser,
		Title:            r.Title,
		Body:             r.Body,
		Context:          r.Context,
		Params:           r.Params,
		Status:           store.Status(r.Status),
		DocumentID:       r.DocumentID,
		SignatureImageID: r.SignatureImageID,
		CreatedAt:        r.CreatedAt,
	}
	if r.ExpiresAt.Valid {
		t := r.ExpiresAt.Time
		rec.ExpiresAt = &t
	}
	if r.AckAt.Valid {
		t := r.AckAt.Time
		rec.AckAt = &t
	}
	return rec
}
