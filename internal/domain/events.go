package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventBid                  EventType = "bid"
	EventAccepted             EventType = "accepted"
	EventStatusChange         EventType = "status_change"
	EventNewProduct           EventType = "new_product"
	EventTyping               EventType = "typing"
	EventVoidRequest          EventType = "void_request"
	EventVoidApproved         EventType = "void_approved"
	EventVoidRejected         EventType = "void_rejected"
	EventAuctionRestarted     EventType = "auction_restarted"
	EventSecondBidderOffer    EventType = "second_bidder_offer"
	EventSecondBidderAccepted EventType = "second_bidder_accepted"
	EventSecondBidderDeclined EventType = "second_bidder_declined"
	EventOfferExpired         EventType = "offer_expired"
	EventConnected            EventType = "connected"
)

// Event is the envelope pushed to clients. It serializes flat:
// {"type": ..., <payload fields>, "timestamp": epoch-ms}.
type Event struct {
	Type      EventType
	Payload   map[string]interface{}
	Timestamp time.Time
}

func NewEvent(eventType EventType, payload map[string]interface{}) Event {
	return Event{Type: eventType, Payload: payload, Timestamp: time.Now()}
}

func (e Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(e.Payload)+2)
	for k, v := range e.Payload {
		flat[k] = v
	}
	flat["type"] = e.Type
	flat["timestamp"] = e.Timestamp.UnixMilli()
	return json.Marshal(flat)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var flat map[string]interface{}
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	eventType, _ := flat["type"].(string)
	if eventType == "" {
		return fmt.Errorf("event without type")
	}
	e.Type = EventType(eventType)
	if ts, ok := flat["timestamp"].(float64); ok {
		e.Timestamp = time.UnixMilli(int64(ts))
	}
	delete(flat, "type")
	delete(flat, "timestamp")
	e.Payload = flat
	return nil
}

// Channel names shared by the publisher and the push service.
const GlobalChannel = "global"

func ProductChannel(productID int64) string {
	return fmt.Sprintf("product:%d", productID)
}

func UserChannel(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}
