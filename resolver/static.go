package resolver

import (
	"context"
	"fmt"
	"sync"
)

// Static is a fixed in-memory Directory, useful for tests and small
// deployments. Safe for concurrent use.
type Static struct {
	mu    sync.RWMutex
	users map[string]User
}

var _ Directory = (*Static)(nil)

// NewStatic creates a directory with the given users.
func NewStatic(users ...User) *Static {
	s := &Static{users: make(map[string]User, len(users))}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

// Add inserts or replaces a user.
func (s *Static) Add(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// Remove deletes a user.
func (s *Static) Remove(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}

// Resolve returns the user with the given ID.
func (s *Static) Resolve(_ context.Context, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return &u, nil
}

// ResolveBatch resolves multiple IDs; unknown IDs are omitted.
func (s *Static) ResolveBatch(_ context.Context, userIDs []string) (map[string]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*User, len(userIDs))
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			copied := u
			result[id] = &copied
		}
	}
	return result, nil
}
