package bot

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"modmaild/pkg/logger"
	"modmaild/pkg/mail"
	"modmaild/pkg/models"
)

func author(u *discordgo.User) models.Author {
	return models.Author{ID: u.ID, Name: u.Username, IconURL: u.AvatarURL("1024")}
}

// onMessageCreate handles both inbound surfaces: user DMs open or continue a
// thread, and staff messages typed directly in a thread channel are recorded
// as modnotes.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// ignore the bot's own messages (ie, relayed copies and notices)
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	if m.GuildID == "" {
		b.handleDM(m)
		return
	}
	b.handleThreadChannelMessage(m)
}

func (b *Bot) handleDM(m *discordgo.MessageCreate) {
	ctx := context.Background()
	h, err := b.mgr.GetOrCreateThread(ctx, m.Author.ID)
	if err != nil {
		logger.Error("dm_get_or_create_failed", "user", m.Author.ID, "error", err)
		return
	}
	raw := models.RawMessage{ID: m.ID, CreatedAt: m.Timestamp, Content: m.Content}
	if err := b.mgr.AppendUserMessage(ctx, h, raw, author(m.Author)); err != nil {
		logger.Error("dm_append_failed", "thread", h.ThreadID, "user", m.Author.ID, "error", err)
	}
}

func (b *Bot) handleThreadChannelMessage(m *discordgo.MessageCreate) {
	// cheap guard before touching the store: only channels under the
	// modmail category can be thread channels
	ch, err := b.s.State.Channel(m.ChannelID)
	if err != nil {
		if ch, err = b.s.Channel(m.ChannelID); err != nil {
			return
		}
	}
	if ch.Type != discordgo.ChannelTypeGuildText || ch.ParentID != b.categoryID {
		return
	}

	ctx := context.Background()
	h, err := b.mgr.ThreadForChannel(ctx, m.ChannelID)
	if err != nil {
		if !errors.Is(err, mail.ErrThreadNotFound) {
			logger.Error("channel_thread_lookup_failed", "channel", m.ChannelID, "error", err)
		}
		return
	}

	// messages typed in the channel are always internal notes
	reply := models.Reply{
		MessageID: m.ID,
		CreatedAt: m.Timestamp,
		Author:    author(m.Author),
		Content:   m.Content,
		IsModnote: true,
	}
	if err := b.mgr.AppendModMessage(ctx, h, reply); err != nil {
		logger.Error("modnote_append_failed", "thread", h.ThreadID, "error", err)
	}
}
