// Package bot contains the thin Discord adapters: listeners translating
// gateway events into thread-manager calls and the staff slash commands.
// No thread or message state is mutated here.
package bot

import (
	"github.com/bwmarrin/discordgo"

	"modmaild/pkg/mail"
)

// notAThreadChannel is shown to staff who run a thread command outside a
// thread channel.
const notAThreadChannel = "Sorry, this doesn't seem to be a thread channel."

// Bot wires the modmail adapters onto a discordgo session.
type Bot struct {
	s          *discordgo.Session
	mgr        *mail.Manager
	staffGuild string
	categoryID string
}

// New returns a Bot for the given session and manager. Call Register before
// the session is opened and RegisterCommands after.
func New(s *discordgo.Session, mgr *mail.Manager, staffGuildID, categoryID string) *Bot {
	return &Bot{s: s, mgr: mgr, staffGuild: staffGuildID, categoryID: categoryID}
}

// Register attaches the gateway event handlers.
func (b *Bot) Register() {
	b.s.AddHandler(b.onMessageCreate)
	b.s.AddHandler(b.onInteractionCreate)
}

// RegisterCommands overwrites the staff guild's application commands with
// the modmail set. Requires an open session.
func (b *Bot) RegisterCommands() error {
	cmds := []*discordgo.ApplicationCommand{
		{
			Name:        "reply",
			Description: "Reply to a user in a modmail thread.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reply",
					Description: "The content of the reply.",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "modnote",
					Description: "Record as an internal note instead of sending to the user.",
					Required:    false,
				},
			},
		},
		{
			Name:        "close",
			Description: "Closes a modmail thread when run in a thread channel.",
		},
	}
	_, err := b.s.ApplicationCommandBulkOverwrite(b.s.State.User.ID, b.staffGuild, cmds)
	return err
}
