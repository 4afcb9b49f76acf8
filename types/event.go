package types

import "time"

// EventTweets is the name of the event emitted when a tweet is created.
const EventTweets = "tweets"

// Event is the envelope delivered to realtime clients, brokers and archives.
type Event struct {
	// ID is a random identifier, unique per emitted event.
	ID string `json:"id"`

	// Name is the event name, e.g. "tweets".
	Name string `json:"event"`

	// OccurredAt is when the event was emitted.
	OccurredAt time.Time `json:"occurred_at"`

	// Data is the event payload.
	Data Tweet `json:"data"`
}
