package transport

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"modmaild/pkg/logger"
)

// Discord implements Transport on a discordgo session. Thread channels live
// in the staff guild; user account metadata is resolved against the main
// guild the bot serves.
type Discord struct {
	s            *discordgo.Session
	staffGuildID string
	mainGuildID  string
}

// NewDiscord wraps an open discordgo session.
func NewDiscord(s *discordgo.Session, staffGuildID, mainGuildID string) *Discord {
	return &Discord{s: s, staffGuildID: staffGuildID, mainGuildID: mainGuildID}
}

func embed(c Content) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       c.Title,
		Description: c.Body,
		Color:       int(c.Color),
	}
	if c.AuthorName != "" {
		e.Author = &discordgo.MessageEmbedAuthor{Name: c.AuthorName, IconURL: c.AuthorIconURL}
	}
	return e
}

func isUnknownChannel(err error) bool {
	if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Message != nil {
		return restErr.Message.Code == discordgo.ErrCodeUnknownChannel ||
			restErr.Message.Code == discordgo.ErrCodeMissingAccess
	}
	return false
}

// SendToUser opens (or reuses) the user's DM channel and delivers the
// content there.
func (d *Discord) SendToUser(ctx context.Context, userID string, c Content) error {
	dm, err := d.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if _, err := d.s.ChannelMessageSendEmbed(dm.ID, embed(c), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// SendToChannel delivers content to a staff channel.
func (d *Discord) SendToChannel(ctx context.Context, channelID string, c Content) error {
	if _, err := d.s.ChannelMessageSendEmbed(channelID, embed(c), discordgo.WithContext(ctx)); err != nil {
		if isUnknownChannel(err) {
			return fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
		}
		return err
	}
	return nil
}

// CreateChannel provisions a text channel in the staff guild under the
// modmail category.
func (d *Discord) CreateChannel(ctx context.Context, nameHint, parentCategory string) (string, error) {
	ch, err := d.s.GuildChannelCreateComplex(d.staffGuildID, discordgo.GuildChannelCreateData{
		Name:     nameHint,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: parentCategory,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	return ch.ID, nil
}

// DeleteChannel removes a staff channel. A channel that is already gone is
// not an error.
func (d *Discord) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := d.s.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		if isUnknownChannel(err) {
			logger.Warn("delete_channel_already_gone", "channel", channelID)
			return nil
		}
		return err
	}
	return nil
}

// ResolveUser fetches user metadata. JoinedAt is left zero when the user is
// no longer a member of the main guild.
func (d *Discord) ResolveUser(ctx context.Context, userID string) (UserInfo, error) {
	u, err := d.s.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return UserInfo{}, fmt.Errorf("resolve user %s: %w", userID, err)
	}
	info := UserInfo{
		ID:        u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL("1024"),
	}
	if ts, err := discordgo.SnowflakeTimestamp(u.ID); err == nil {
		info.CreatedAt = ts
	}
	if m, err := d.s.GuildMember(d.mainGuildID, userID, discordgo.WithContext(ctx)); err == nil {
		info.JoinedAt = m.JoinedAt
	}
	return info, nil
}

// HasChannel reports whether a channel still exists in the staff guild.
func (d *Discord) HasChannel(ctx context.Context, channelID string) (bool, error) {
	if _, err := d.s.Channel(channelID, discordgo.WithContext(ctx)); err != nil {
		if isUnknownChannel(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
