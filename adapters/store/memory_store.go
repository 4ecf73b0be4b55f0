package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/layer-3/mpin/core"
	"github.com/layer-3/mpin/ports"
)

// MemoryStore is an in-memory implementation of the UserStore interface,
// suitable for tests and short-lived processes.
type MemoryStore struct {
	users map[string]*core.User
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() ports.UserStore {
	return &MemoryStore{users: make(map[string]*core.User)}
}

// GetUser returns the stored identity, or nil when absent.
func (s *MemoryStore) GetUser(ctx context.Context, userID, projectID string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userKey(userID, projectID)]
	if !ok {
		return nil, nil
	}

	u := *user
	return &u, nil
}

// Add inserts a new identity.
func (s *MemoryStore) Add(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey(user.UserID, user.ProjectID)
	if _, exists := s.users[key]; exists {
		return fmt.Errorf("user %s already exists", key)
	}

	u := *user
	s.users[key] = &u
	return nil
}

// Update replaces an existing identity.
func (s *MemoryStore) Update(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey(user.UserID, user.ProjectID)
	if _, exists := s.users[key]; !exists {
		return fmt.Errorf("user %s not found", key)
	}

	u := *user
	s.users[key] = &u
	return nil
}

// Delete removes an identity. Deleting an absent identity is not an error.
func (s *MemoryStore) Delete(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, userKey(user.UserID, user.ProjectID))
	return nil
}

// GetUsers returns all stored identities ordered by (projectID, userID).
func (s *MemoryStore) GetUsers(ctx context.Context) ([]*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*core.User, 0, len(s.users))
	for _, user := range s.users {
		u := *user
		users = append(users, &u)
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].ProjectID != users[j].ProjectID {
			return users[i].ProjectID < users[j].ProjectID
		}
		return users[i].UserID < users[j].UserID
	})
	return users, nil
}
