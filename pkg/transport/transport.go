// Package transport defines the messaging-side contract the thread manager
// depends on: deliver rich content to a user or a named channel, and
// provision or remove the per-thread destination channels.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDeliveryFailed reports that the end user is unreachable (closed
	// DMs, blocked, deleted account).
	ErrDeliveryFailed = errors.New("delivery to user failed")
	// ErrChannelNotFound reports that the destination channel no longer
	// exists.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrProvisioningFailed reports that a destination channel could not be
	// created.
	ErrProvisioningFailed = errors.New("channel provisioning failed")
)

// Color is the accent color of rendered content.
type Color int

// Palette for the three content origins.
const (
	ColorSystem Color = 0xEB459E // fuchsia, system notices
	ColorUser   Color = 0x57F287 // green, user messages
	ColorMod    Color = 0x3498DB // blue, staff replies
)

// Content is the unified rich presentation of a relayed message or notice.
// The same Content is delivered to every destination a routing decision
// selects.
type Content struct {
	Title         string
	Body          string
	Color         Color
	AuthorName    string
	AuthorIconURL string
}

// UserInfo is transport-side metadata about an end user, used for channel
// name hints and the thread summary notice.
type UserInfo struct {
	ID        string
	Username  string
	AvatarURL string
	CreatedAt time.Time
	JoinedAt  time.Time
}

// Transport is the external messaging collaborator.
type Transport interface {
	// SendToUser delivers content to the user's direct-message surface.
	// Fails with ErrDeliveryFailed when the user is unreachable.
	SendToUser(ctx context.Context, userID string, c Content) error
	// SendToChannel delivers content to a staff channel. Fails with
	// ErrChannelNotFound when the channel no longer exists.
	SendToChannel(ctx context.Context, channelID string, c Content) error
	// CreateChannel provisions a new staff channel under the given parent
	// category. Fails with ErrProvisioningFailed.
	CreateChannel(ctx context.Context, nameHint, parentCategory string) (string, error)
	// DeleteChannel removes a staff channel.
	DeleteChannel(ctx context.Context, channelID string) error
	// ResolveUser fetches user metadata.
	ResolveUser(ctx context.Context, userID string) (UserInfo, error)
	// HasChannel reports whether a channel still exists.
	HasChannel(ctx context.Context, channelID string) (bool, error)
}
