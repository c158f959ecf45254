package redis

import (
	"context"

	"github.com/go-redis/redis/v8"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
)

// RedisEventSubscriber relays every product, user and global channel to a
// single handler.
type RedisEventSubscriber struct {
	client *redis.Client
	log    logger.Logger
}

func NewRedisEventSubscriber(client *redis.Client, log logger.Logger) *RedisEventSubscriber {
	return &RedisEventSubscriber{
		client: client,
		log:    log,
	}
}

func (r *RedisEventSubscriber) Subscribe(ctx context.Context, handler domain.MessageHandler) error {
	pubsub := r.client.PSubscribe(ctx, "product:*", "user:*")
	defer pubsub.Close()

	if err := pubsub.Subscribe(ctx, domain.GlobalChannel); err != nil {
		return err
	}
	// Wait for confirmation so callers know the subscription is live.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	r.log.Info("Subscribed to marketplace events")

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := handler(msg.Channel, []byte(msg.Payload)); err != nil {
				r.log.Error("Failed to handle event", "channel", msg.Channel, "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}
