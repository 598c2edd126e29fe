package notify

import (
	"time"
)

// Subscription is a registered webhook endpoint. Event names are defined by
// the publisher (pkg/whatsapp); an empty event list receives everything.
type Subscription struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Events    []string  `json:"events,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Envelope is the JSON body delivered to each subscriber.
type Envelope struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}
