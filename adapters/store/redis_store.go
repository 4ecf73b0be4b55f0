package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/mpin/core"
	"github.com/layer-3/mpin/ports"
)

// RedisStore is a Redis implementation of the UserStore interface, for
// applications that share identities across processes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(client *redis.Client) ports.UserStore {
	return &RedisStore{
		client: client,
		prefix: "mpin:user:",
	}
}

func (s *RedisStore) key(userID, projectID string) string {
	return s.prefix + userKey(userID, projectID)
}

// GetUser returns the stored identity, or nil when absent.
func (s *RedisStore) GetUser(ctx context.Context, userID, projectID string) (*core.User, error) {
	payload, err := s.client.Get(ctx, s.key(userID, projectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}

	return decodeUser(payload)
}

// Add inserts a new identity.
func (s *RedisStore) Add(ctx context.Context, user *core.User) error {
	payload, err := encodeUser(user)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.key(user.UserID, user.ProjectID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	if !ok {
		return fmt.Errorf("user %s already exists", userKey(user.UserID, user.ProjectID))
	}
	return nil
}

// Update replaces an existing identity.
func (s *RedisStore) Update(ctx context.Context, user *core.User) error {
	payload, err := encodeUser(user)
	if err != nil {
		return err
	}

	ok, err := s.client.SetXX(ctx, s.key(user.UserID, user.ProjectID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if !ok {
		return fmt.Errorf("user %s not found", userKey(user.UserID, user.ProjectID))
	}
	return nil
}

// Delete removes an identity. Deleting an absent identity is not an error.
func (s *RedisStore) Delete(ctx context.Context, user *core.User) error {
	if err := s.client.Del(ctx, s.key(user.UserID, user.ProjectID)).Err(); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// GetUsers returns all stored identities ordered by (projectID, userID).
func (s *RedisStore) GetUsers(ctx context.Context) ([]*core.User, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}

	users := make([]*core.User, 0, len(keys))
	for _, key := range keys {
		payload, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // Deleted between scan and read
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read user: %w", err)
		}

		user, err := decodeUser(payload)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].ProjectID != users[j].ProjectID {
			return users[i].ProjectID < users[j].ProjectID
		}
		return users[i].UserID < users[j].UserID
	})
	return users, nil
}
