package services

import (
	"context"
	"sync"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
)

// Notifier is the fire-and-forget side of the fan-out. Calls never block and
// never report an outcome.
type Notifier interface {
	BroadcastToProduct(productID int64, event domain.Event)
	NotifyUser(userID int64, event domain.Event)
	BroadcastGlobal(event domain.Event)
}

type outbound struct {
	channel string
	event   domain.Event
}

// Fanout queues events on a bounded channel and publishes them from a single
// background goroutine. A full buffer drops the event.
type Fanout struct {
	publisher      domain.EventPublisher
	out            chan outbound
	publishTimeout time.Duration
	log            logger.Logger

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	started sync.Once
}

func NewFanout(publisher domain.EventPublisher, buffer int, publishTimeout time.Duration, log logger.Logger) *Fanout {
	return &Fanout{
		publisher:      publisher,
		out:            make(chan outbound, buffer),
		publishTimeout: publishTimeout,
		log:            log,
		done:           make(chan struct{}),
	}
}

// Start launches the publishing goroutine.
func (f *Fanout) Start() {
	f.started.Do(func() {
		go f.run()
	})
}

func (f *Fanout) run() {
	defer close(f.done)
	for msg := range f.out {
		ctx, cancel := context.WithTimeout(context.Background(), f.publishTimeout)
		if err := f.publisher.Publish(ctx, msg.channel, msg.event); err != nil {
			f.log.Warn("Failed to publish event", "channel", msg.channel, "type", msg.event.Type, "error", err)
		}
		cancel()
	}
}

func (f *Fanout) publish(channel string, event domain.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		f.log.Debug("Fan-out closed, event discarded", "channel", channel, "type", event.Type)
		return
	}
	select {
	case f.out <- outbound{channel: channel, event: event}:
	default:
		f.log.Warn("Fan-out buffer full, event dropped", "channel", channel, "type", event.Type)
	}
}

func (f *Fanout) BroadcastToProduct(productID int64, event domain.Event) {
	f.publish(domain.ProductChannel(productID), event)
}

func (f *Fanout) NotifyUser(userID int64, event domain.Event) {
	f.publish(domain.UserChannel(userID), event)
}

func (f *Fanout) BroadcastGlobal(event domain.Event) {
	f.publish(domain.GlobalChannel, event)
}

// PublishTyping relays a typing indicator to everyone watching the listing.
func (f *Fanout) PublishTyping(productID, userID int64, isTyping bool) {
	f.BroadcastToProduct(productID, domain.NewEvent(domain.EventTyping, map[string]interface{}{
		"productId": productID,
		"userId":    userID,
		"isTyping":  isTyping,
	}))
}

// Close stops accepting events and waits until queued ones are published or
// ctx is done.
func (f *Fanout) Close(ctx context.Context) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.out)
	}
	f.mu.Unlock()

	f.Start()
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
