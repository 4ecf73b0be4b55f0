package ports

import (
	"context"

	"github.com/layer-3/mpin/core"
)

// EventPublisher notifies the application about identity lifecycle changes.
// Publishing is best-effort: the protocol engines log failures but never
// fail an operation because of them.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *core.User) error
	PublishUserRevoked(ctx context.Context, user *core.User) error
	PublishUserDeleted(ctx context.Context, user *core.User) error
}
