package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/mpin/core"
	"github.com/layer-3/mpin/ports"
)

// Topics published on identity lifecycle transitions.
const (
	TopicUserRegistered = "mpin.user.registered"
	TopicUserRevoked    = "mpin.user.revoked"
	TopicUserDeleted    = "mpin.user.deleted"
)

// UserEvent is the payload published for every lifecycle transition. It
// carries the hashed mpinId rather than the raw identifier.
type UserEvent struct {
	UserID       string `json:"user_id"`
	ProjectID    string `json:"project_id"`
	HashedMPinID string `json:"hashed_mpin_id,omitempty"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishUserRegistered publishes a registration event.
func (p *WatermillPublisher) PublishUserRegistered(ctx context.Context, user *core.User) error {
	return p.publish(TopicUserRegistered, user)
}

// PublishUserRevoked publishes a revocation event.
func (p *WatermillPublisher) PublishUserRevoked(ctx context.Context, user *core.User) error {
	return p.publish(TopicUserRevoked, user)
}

// PublishUserDeleted publishes a deletion event.
func (p *WatermillPublisher) PublishUserDeleted(ctx context.Context, user *core.User) error {
	return p.publish(TopicUserDeleted, user)
}

func (p *WatermillPublisher) publish(topic string, user *core.User) error {
	event := UserEvent{
		UserID:       user.UserID,
		ProjectID:    user.ProjectID,
		HashedMPinID: user.HashedMPinID(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher discards all events. It is the default when the application
// does not wire a message broker.
type NopPublisher struct{}

// NewNopPublisher creates a publisher that discards everything.
func NewNopPublisher() ports.EventPublisher { return &NopPublisher{} }

// PublishUserRegistered discards the event.
func (*NopPublisher) PublishUserRegistered(context.Context, *core.User) error { return nil }

// PublishUserRevoked discards the event.
func (*NopPublisher) PublishUserRevoked(context.Context, *core.User) error { return nil }

// PublishUserDeleted discards the event.
func (*NopPublisher) PublishUserDeleted(context.Context, *core.User) error { return nil }
