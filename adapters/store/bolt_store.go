package store

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/layer-3/mpin/core"
	"github.com/layer-3/mpin/ports"
)

var usersBucket = []byte("users")

// BoltStore is a file-backed implementation of the UserStore interface
// using bbolt, giving identities durability across process restarts.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens or creates the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open user database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(usersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create users bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// GetUser returns the stored identity, or nil when absent.
func (s *BoltStore) GetUser(ctx context.Context, userID, projectID string) (*core.User, error) {
	var user *core.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket(usersBucket).Get([]byte(userKey(userID, projectID)))
		if payload == nil {
			return nil
		}

		decoded, err := decodeUser(payload)
		if err != nil {
			return err
		}
		user = decoded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	return user, nil
}

// Add inserts a new identity.
func (s *BoltStore) Add(ctx context.Context, user *core.User) error {
	payload, err := encodeUser(user)
	if err != nil {
		return err
	}

	key := userKey(user.UserID, user.ProjectID)
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		if bucket.Get([]byte(key)) != nil {
			return fmt.Errorf("user %s already exists", key)
		}
		return bucket.Put([]byte(key), payload)
	})
}

// Update replaces an existing identity.
func (s *BoltStore) Update(ctx context.Context, user *core.User) error {
	payload, err := encodeUser(user)
	if err != nil {
		return err
	}

	key := userKey(user.UserID, user.ProjectID)
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		if bucket.Get([]byte(key)) == nil {
			return fmt.Errorf("user %s not found", key)
		}
		return bucket.Put([]byte(key), payload)
	})
}

// Delete removes an identity. Deleting an absent identity is not an error.
func (s *BoltStore) Delete(ctx context.Context, user *core.User) error {
	key := userKey(user.UserID, user.ProjectID)
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(usersBucket).Delete([]byte(key))
	})
}

// GetUsers returns all stored identities ordered by (projectID, userID).
func (s *BoltStore) GetUsers(ctx context.Context) ([]*core.User, error) {
	var users []*core.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(usersBucket).ForEach(func(_, payload []byte) error {
			user, err := decodeUser(payload)
			if err != nil {
				return err
			}
			users = append(users, user)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
