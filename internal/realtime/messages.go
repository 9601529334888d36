package realtime

import (
	"encoding/json"
	"time"
)

// Message is the wire envelope on the realtime channel. Domain events
// (queue.changed, ads.changed, ...) carry the topic they belong to plus an
// opaque payload for subscribers.
type Message struct {
	Type      string          `json:"type"`
	TopicID   string          `json:"topic_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
}

type subscribeMessage struct {
	Type    string `json:"type"`
	TopicID string `json:"topic_id"`
}

// Control message types the client handles itself; everything else is a
// domain event routed to topic subscribers.
const (
	messageTypeSubscribe  = "subscribe"
	messageTypeSubscribed = "subscribed"
	messageTypeError      = "error"
)
