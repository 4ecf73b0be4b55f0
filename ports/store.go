package ports

import (
	"context"

	"github.com/layer-3/mpin/core"
)

// UserStore persists registered identities keyed by (userID, projectID).
// Implementations must be safe for concurrent use and provide
// read-your-writes consistency per key. GetUser returns (nil, nil) when no
// identity exists for the key.
type UserStore interface {
	GetUser(ctx context.Context, userID, projectID string) (*core.User, error)
	Add(ctx context.Context, user *core.User) error
	Update(ctx context.Context, user *core.User) error
	Delete(ctx context.Context, user *core.User) error
	GetUsers(ctx context.Context) ([]*core.User, error)
}
