// Package memory provides an in-memory store implementation.
//
// It is intended for tests and examples. All data is lost when the
// process exits. The implementation is safe for concurrent use.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/message/store"
)

// Store is an in-memory store.Store implementation.
type Store struct {
	connected atomic.Bool

	mu      sync.RWMutex
	records map[int64]*store.Record
	byHash  map[string]int64
	blocks  map[edgeKey]store.BlockEntry
	allows  map[edgeKey]store.AllowEntry
	lastID  int64
}

type edgeKey struct {
	owner string
	other string
}

// Ensure Store implements the full contract.
var _ store.Store = (*Store)(nil)
var _ store.FindWithCounter = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		records: make(map[int64]*store.Record),
		byHash:  make(map[string]int64),
		blocks:  make(map[edgeKey]store.BlockEntry),
		allows:  make(map[edgeKey]store.AllowEntry),
	}
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	s.connected.Store(true)
	return nil
}

// Close marks the store as disconnected. Data is retained so tests can
// reconnect.
func (s *Store) Close(_ context.Context) error {
	s.connected.Store(false)
	return nil
}

// Ping checks the connection state.
func (s *Store) Ping(_ context.Context) error {
	return s.checkConnected()
}

func (s *Store) checkConnected() error {
	if !s.connected.Load() {
		return store.ErrNotConnected
	}
	return nil
}

// Create persists a new record, assigning the next numeric ID.
func (s *Store) Create(ctx context.Context, rec store.Record) (*store.Record, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rec.Hash == "" {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[rec.Hash]; exists {
		return nil, store.ErrDuplicateHash
	}

	s.lastID++
	rec.ID = s.lastID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	stored := rec.Clone()
	s.records[stored.ID] = stored
	s.byHash[stored.Hash] = stored.ID

	return stored.Clone(), nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id int64) (*store.Record, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

// GetByHash retrieves a record by its hash token.
func (s *Store) GetByHash(ctx context.Context, hash string) (*store.Record, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.records[id].Clone(), nil
}

// UpdateStatus performs a compare-and-set status transition.
func (s *Store) UpdateStatus(ctx context.Context, id int64, from, to store.Status) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return store.ErrNotFound
	}
	if rec.Status != from {
		return store.ErrStatusConflict
	}

	// Copy-on-write so concurrent readers holding clones are unaffected.
	updated := rec.Clone()
	updated.Status = to
	if to == store.StatusRead && updated.AckAt == nil {
		now := time.Now().UTC()
		updated.AckAt = &now
	}
	s.records[id] = updated
	return nil
}

// Block adds an entry to owner's block list.
func (s *Store) Block(ctx context.Context, owner, other string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := edgeKey{owner, other}
	if _, exists := s.blocks[key]; !exists {
		s.blocks[key] = store.BlockEntry{
			Owner:     owner,
			Blocked:   other,
			CreatedAt: time.Now().UTC(),
		}
	}
	return nil
}

// Unblock removes an entry from owner's block list.
func (s *Store) Unblock(ctx context.Context, owner, other string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blocks, edgeKey{owner, other})
	return nil
}

// IsBlocked reports whether owner has blocked other.
func (s *Store) IsBlocked(ctx context.Context, owner, other string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, blocked := s.blocks[edgeKey{owner, other}]
	return blocked, nil
}

// ListBlocked returns owner's block list.
func (s *Store) ListBlocked(ctx context.Context, owner string) ([]store.BlockEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []store.BlockEntry
	for key, e := range s.blocks {
		if key.owner == owner {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// UpsertAllow creates or refreshes an allowed-contact edge.
func (s *Store) UpsertAllow(ctx context.Context, owner, contact string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := edgeKey{owner, contact}
	if e, exists := s.allows[key]; exists {
		e.UpdatedAt = now
		s.allows[key] = e
		return nil
	}
	s.allows[key] = store.AllowEntry{
		Owner:     owner,
		Contact:   contact,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// HasAllow reports whether the owner -> contact edge exists.
func (s *Store) HasAllow(ctx context.Context, owner, contact string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.allows[edgeKey{owner, contact}]
	return ok, nil
}

// ListAllowed returns owner's allowed contacts.
func (s *Store) ListAllowed(ctx context.Context, owner string) ([]store.AllowEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []store.AllowEntry
	for key, e := range s.allows {
		if key.owner == owner {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
