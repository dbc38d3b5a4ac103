package bot

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"

	"modmaild/pkg/logger"
	"modmaild/pkg/mail"
	"modmaild/pkg/models"
)

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	switch data.Name {
	case "reply":
		b.handleReply(i, data)
	case "close":
		b.handleClose(i)
	}
}

// respond sends an ephemeral reply to the invoking staff member. Command
// failures always surface as a human-readable message, never as the
// platform's generic error state.
func (b *Bot) respond(i *discordgo.InteractionCreate, msg string) {
	err := b.s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logger.Error("interaction_respond_failed", "error", err)
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func (b *Bot) handleReply(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	ctx := context.Background()
	h, err := b.mgr.ThreadForChannel(ctx, i.ChannelID)
	if err != nil {
		if errors.Is(err, mail.ErrThreadNotFound) {
			b.respond(i, notAThreadChannel)
		} else {
			logger.Error("reply_thread_lookup_failed", "channel", i.ChannelID, "error", err)
			b.respond(i, "Couldn't look up this thread, please try again.")
		}
		return
	}

	var content string
	var modnote bool
	for _, opt := range data.Options {
		switch opt.Name {
		case "reply":
			content = opt.StringValue()
		case "modnote":
			modnote = opt.BoolValue()
		}
	}

	reply := models.Reply{
		MessageID: i.ID,
		CreatedAt: time.Now(),
		Author:    author(interactionUser(i)),
		Content:   content,
		IsModnote: modnote,
	}
	if err := b.mgr.AppendModMessage(ctx, h, reply); err != nil {
		logger.Error("reply_append_failed", "thread", h.ThreadID, "error", err)
		if errors.Is(err, mail.ErrThreadClosed) {
			b.respond(i, "This thread has been closed; the user's next message will open a new one.")
		} else {
			b.respond(i, "Couldn't send your reply, please try again.")
		}
		return
	}
	if modnote {
		b.respond(i, "Modnote recorded.")
		return
	}
	b.respond(i, "Successfully sent your reply.")
}

func (b *Bot) handleClose(i *discordgo.InteractionCreate) {
	ctx := context.Background()
	h, err := b.mgr.ThreadForChannel(ctx, i.ChannelID)
	if err != nil {
		if errors.Is(err, mail.ErrThreadNotFound) {
			b.respond(i, notAThreadChannel)
		} else {
			logger.Error("close_thread_lookup_failed", "channel", i.ChannelID, "error", err)
			b.respond(i, "Couldn't look up this thread, please try again.")
		}
		return
	}

	// respond before the close removes the channel the interaction lives in
	b.respond(i, "Closing this thread.")
	if err := b.mgr.CloseThread(ctx, h); err != nil {
		if errors.Is(err, mail.ErrAlreadyClosed) {
			return
		}
		logger.Error("close_failed", "thread", h.ThreadID, "error", err)
	}
}
