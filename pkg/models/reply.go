package models

import "time"

// Author identifies the writer of a message along with the display fields
// the presentation layer uses.
type Author struct {
	ID      string
	Name    string
	IconURL string
}

// Reply is the normalized staff-side input. Every outbound adapter (slash
// command, thread-channel message) collapses its own event type into this
// shape so the thread manager never depends on adapter-specific types.
type Reply struct {
	MessageID string
	CreatedAt time.Time
	Author    Author
	Content   string
	IsModnote bool
}

// RawMessage is the normalized user-side input constructed by the DM
// listener from an inbound transport message.
type RawMessage struct {
	ID        string
	CreatedAt time.Time
	Content   string
}
