package models

// Message is one persisted unit of conversation content. IDs are assigned at
// creation and immutable; records are never mutated or deleted afterwards.
type Message struct {
	ID string `json:"id"`
	// OriginID is the transport-side identifier of the source message.
	OriginID string `json:"origin_id"`
	AuthorID string `json:"author_id"`
	IsMod    bool   `json:"is_mod"`
	// IsModnote marks an internal staff note never mirrored to the end user.
	IsModnote bool `json:"is_modnote"`
	// CreatedAt is an ISO-8601 timestamp.
	CreatedAt string `json:"created_at"`
	Content   string `json:"content"`
}
