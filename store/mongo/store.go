// Package mongo provides a MongoDB store implementation.
//
// Records use numeric IDs allocated from a counters collection with an
// atomic findOneAndUpdate increment, so ID ordering matches creation
// order the same way the SQL stores' sequences do. Hash uniqueness and
// edge upserts rely on unique indexes.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbaliyan/message/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	recordsCollection  = "records"
	blocksCollection   = "blocks"
	contactsCollection = "contacts"
	countersCollection = "counters"

	recordCounterID = "record_id"
)

// Store is a MongoDB store.Store implementation.
type Store struct {
	client *mongo.Client
	opts   *options
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New creates a mongo store over an existing client. The caller owns
// the client; Close does not disconnect it.
func New(client *mongo.Client, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		client: client,
		opts:   o,
		logger: o.logger,
	}
}

func (s *Store) db() *mongo.Database {
	return s.client.Database(s.opts.database)
}

func (s *Store) records() *mongo.Collection  { return s.db().Collection(recordsCollection) }
func (s *Store) blocks() *mongo.Collection   { return s.db().Collection(blocksCollection) }
func (s *Store) contacts() *mongo.Collection { return s.db().Collection(contactsCollection) }
func (s *Store) counters() *mongo.Collection { return s.db().Collection(countersCollection) }

// opCtx applies the per-operation timeout.
func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.timeout)
}

// Connect verifies connectivity and ensures indexes exist.
func (s *Store) Connect(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	s.logger.Debug("mongo store connected", "database", s.opts.database)
	return nil
}

// Close is a no-op; the caller owns the client.
func (s *Store) Close(_ context.Context) error {
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.client.Ping(ctx, nil)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.records().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "hash", Value: 1}},
			Options: mongoopts.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "to", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "from", Value: 1}}},
		{Keys: bson.D{{Key: "title", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("records indexes: %w", err)
	}

	_, err = s.blocks().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "blocked", Value: 1}},
		Options: mongoopts.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("blocks index: %w", err)
	}

	_, err = s.contacts().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "contact", Value: 1}},
		Options: mongoopts.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("contacts index: %w", err)
	}
	return nil
}

// nextID allocates the next record ID from the counters collection.
func (s *Store) nextID(ctx context.Context) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters().FindOneAndUpdate(ctx,
		bson.M{"_id": recordCounterID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		mongoopts.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(mongoopts.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("allocate id: %w", err)
	}
	return doc.Seq, nil
}

// recordDoc is the stored document shape.
type recordDoc struct {
	ID               int64      `bson:"_id"`
	Hash             string     `bson:"hash"`
	From             string     `bson:"from"`
	To               string     `bson:"to"`
	Title            string     `bson:"title"`
	Body             string     `bson:"body"`
	Context          string     `bson:"context"`
	Params           string     `bson:"params"`
	Status           int        `bson:"status"`
	DocumentID       string     `bson:"document_id,omitempty"`
	SignatureImageID string     `bson:"signature_image_id,omitempty"`
	CreatedAt        time.Time  `bson:"created_at"`
	ExpiresAt        *time.Time `bson:"expires_at,omitempty"`
	AckAt            *time.Time `bson:"ack_at,omitempty"`
}

func toDoc(rec *store.Record) *recordDoc {
	return &recordDoc{
		ID:               rec.ID,
		Hash:             rec.Hash,
		From:             rec.From,
		To:               rec.To,
		Title:            rec.Title,
		Body:             rec.Body,
		Context:          rec.Context,
		Params:           rec.Params,
		Status:           int(rec.Status),
		DocumentID:       rec.DocumentID,
		SignatureImageID: rec.SignatureImageID,
		CreatedAt:        rec.CreatedAt,
		ExpiresAt:        rec.ExpiresAt,
		AckAt:            rec.AckAt,
	}
}

func (d *recordDoc) toRecord() *store.Record {
	return &store.Record{
		ID:               d.ID,
		Hash:             d.Hash,
		From:             d.From,
		To:               d.To,
		Title:            d.Title,
		Body:             d.Body,
		Context:          d.Context,
		Params:           d.Params,
		Status:           store.Status(d.Status),
		DocumentID:       d.DocumentID,
		SignatureImageID: d.SignatureImageID,
		CreatedAt:        d.CreatedAt,
		ExpiresAt:        d.ExpiresAt,
		AckAt:            d.AckAt,
	}
}
