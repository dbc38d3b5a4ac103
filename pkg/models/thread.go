package models

// Thread is the durable conversation record pairing one end user with one
// staff-side destination channel. Messages holds message IDs in insertion
// order; the sequence is append-only. IsActive flips to false exactly once
// when the thread is closed and never back.
type Thread struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	ChannelID string   `json:"channel_id"`
	IsActive  bool     `json:"is_active"`
	Messages  []string `json:"messages"`
	// Created/closed timestamps (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	ClosedTS  int64 `json:"closed_ts,omitempty"`
}
