package redis

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"auction-marketplace/internal/domain"
)

type EventPublisherImpl struct {
	client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisherImpl {
	return &EventPublisherImpl{client: client}
}

func (r *EventPublisherImpl) Publish(ctx context.Context, channel string, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}
