package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbaliyan/message/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Create inserts a record with a freshly allocated numeric ID.
func (s *Store) Create(ctx context.Context, rec store.Record) (*store.Record, error) {
	if rec.Hash == "" {
		return nil, store.ErrInvalidRecord
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	id, err := s.nextID(ctx)
	if err != nil {
		return nil, err
	}

	rec.ID = id
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if _, err := s.records().InsertOne(ctx, toDoc(&rec)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicateHash
		}
		return nil, fmt.Errorf("insert record: %w", err)
	}

	return rec.Clone(), nil
}

// UpdateStatus performs a compare-and-set status transition.
func (s *Store) UpdateStatus(ctx context.Context, id int64, from, to store.Status) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.records().UpdateOne(ctx,
		bson.M{"_id": id, "status": int(from)},
		bson.M{"$set": bson.M{"status": int(to)}},
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if res.MatchedCount == 0 {
		// Distinguish a lost CAS race from a missing document.
		count, err := s.records().CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("check record: %w", err)
		}
		if count == 0 {
			return store.ErrNotFound
		}
		return store.ErrStatusConflict
	}

	// Stamp the acknowledgement time on the first transition to read.
	if to == store.StatusRead {
		_, err = s.records().UpdateOne(ctx,
			bson.M{"_id": id, "ack_at": bson.M{"$exists": false}},
			bson.M{"$set": bson.M{"ack_at": time.Now().UTC()}},
		)
		if err != nil {
			return fmt.Errorf("stamp ack: %w", err)
		}
	}
	return nil
}

// Block adds an entry to owner's block list.
func (s *Store) Block(ctx context.Context, owner, other string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.blocks().UpdateOne(ctx,
		bson.M{"owner": owner, "blocked": other},
		bson.M{"$setOnInsert": bson.M{"created_at": time.Now().UTC()}},
		mongoopts.UpdateOne().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("block: %w", err)
	}
	return nil
}

// Unblock removes an entry from owner's block list.
func (s *Store) Unblock(ctx context.Context, owner, other string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if _, err := s.blocks().DeleteOne(ctx, bson.M{"owner": owner, "blocked": other}); err != nil {
		return fmt.Errorf("unblock: %w", err)
	}
	return nil
}

// IsBlocked reports whether owner has blocked other.
func (s *Store) IsBlocked(ctx context.Context, owner, other string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	err := s.blocks().FindOne(ctx, bson.M{"owner": owner, "blocked": other}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("is blocked: %w", err)
	}
	return true, nil
}

// ListBlocked returns owner's block list.
func (s *Store) ListBlocked(ctx context.Context, owner string) ([]store.BlockEntry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	cursor, err := s.blocks().Find(ctx, bson.M{"owner": owner})
	if err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []store.BlockEntry
	for cursor.Next(ctx) {
		var doc struct {
			Owner     string    `bson:"owner"`
			Blocked   string    `bson:"blocked"`
			CreatedAt time.Time `bson:"created_at"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode block entry: %w", err)
		}
		entries = append(entries, store.BlockEntry{
			Owner:     doc.Owner,
			Blocked:   doc.Blocked,
			CreatedAt: doc.CreatedAt,
		})
	}
	return entries, cursor.Err()
}

// UpsertAllow creates or refreshes an allowed-contact edge. $setOnInsert
// keeps the original creation time across repeated sends.
func (s *Store) UpsertAllow(ctx context.Context, owner, contact string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	_, err := s.contacts().UpdateOne(ctx,
		bson.M{"owner": owner, "contact": contact},
		bson.M{
			"$set":         bson.M{"updated_at": now},
			"$setOnInsert": bson.M{"created_at": now},
		},
		mongoopts.UpdateOne().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("upsert allow: %w", err)
	}
	return nil
}

// HasAllow reports whether the owner -> contact edge exists.
func (s *Store) HasAllow(ctx context.Context, owner, contact string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	err := s.contacts().FindOne(ctx, bson.M{"owner": owner, "contact": contact}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("has allow: %w", err)
	}
	return true, nil
}

// ListAllowed returns owner's allowed contacts.
func (s *Store) ListAllowed(ctx context.Context, owner string) ([]store.AllowEntry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	cursor, err := s.contacts().Find(ctx, bson.M{"owner": owner})
	if err != nil {
		return nil, fmt.Errorf("list allowed: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []store.AllowEntry
	for cursor.Next(ctx) {
		var doc struct {
			Owner     string    `bson:"owner"`
			Contact   string    `bson:"contact"`
			CreatedAt time.Time `bson:"created_at"`
			UpdatedAt time.Time `bson:"updated_at"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode allow entry: %w", err)
		}
		entries = append(entries, store.AllowEntry{
			Owner:     doc.Owner,
			Contact:   doc.Contact,
			CreatedAt: doc.CreatedAt,
			UpdatedAt: doc.UpdatedAt,
		})
	}
	return entries, cursor.Err()
}
