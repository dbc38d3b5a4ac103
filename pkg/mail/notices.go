package mail

import (
	"fmt"
	"time"

	"modmaild/pkg/models"
	"modmaild/pkg/transport"
)

// emptyMessagePlaceholder substitutes blank or whitespace-only user content;
// a persisted message never has empty content.
const emptyMessagePlaceholder = "<Empty Message>"

func welcomeNotice() transport.Content {
	return transport.Content{
		Title: "New thread opened",
		Body: "Thanks for contacting the mod team. You've created a new thread. " +
			"Please be patient while the team gets back to you. Every message you " +
			"send in this DM will be forwarded to the mod team. You will receive " +
			"replies here.",
		Color: transport.ColorSystem,
	}
}

func summaryNotice(info transport.UserInfo, previousThreads int) transport.Content {
	return transport.Content{
		Title: "Thread Info",
		Body: fmt.Sprintf(
			"**User**: %s\n**Account created**: <t:%d>\n**Joined server**: <t:%d>\n\n**Number of previous threads**: %d",
			info.Username,
			unixOrZero(info.CreatedAt),
			unixOrZero(info.JoinedAt),
			previousThreads,
		),
		Color: transport.ColorSystem,
	}
}

func closedNotice() transport.Content {
	return transport.Content{
		Title: "Thread closed",
		Body: "Thanks for contacting the mod team. This thread has been closed. " +
			"If you still require assistance, messaging this bot will open a new " +
			"thread with the mod team.",
		Color: transport.ColorSystem,
	}
}

func undeliverableNotice(err error) transport.Content {
	return transport.Content{
		Title: "Failed to send message to user",
		Body:  fmt.Sprintf("Could not send message to user: %v", err),
		Color: transport.ColorSystem,
	}
}

// messageContent builds the unified presentation of a relayed message, the
// same for both the channel and the user copy.
func messageContent(m models.Message, author models.Author) transport.Content {
	color := transport.ColorUser
	if m.IsMod {
		color = transport.ColorMod
	}
	return transport.Content{
		Body:          m.Content,
		Color:         color,
		AuthorName:    author.Name,
		AuthorIconURL: author.IconURL,
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
