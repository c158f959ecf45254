package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-marketplace/internal/domain"
)

// WebSocketNotifier delivers events to the subscribers held by a connection
// manager. As a domain.EventPublisher it serves single-process deployments;
// Relay is the handler the push service feeds from the event bus.
type WebSocketNotifier struct {
	connManager domain.ConnectionManager
}

func NewWebSocketNotifier(connManager domain.ConnectionManager) *WebSocketNotifier {
	return &WebSocketNotifier{connManager: connManager}
}

func (n *WebSocketNotifier) Publish(ctx context.Context, channel string, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	n.connManager.Deliver(channel, payload)
	return nil
}

// Relay forwards an already-serialized event. Payloads that are not events are
// refused rather than passed to clients.
func (n *WebSocketNotifier) Relay(channel string, payload []byte) error {
	var event domain.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("relay on %s: %w", channel, err)
	}
	n.connManager.Deliver(channel, payload)
	return nil
}
