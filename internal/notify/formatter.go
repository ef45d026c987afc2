// Package notify builds the embeds the relay sends. Nothing here talks to
// the platform.
package notify

import (
	"fmt"
	"time"

	"github.com/hanamilabs/discord-modmail/internal/domain"
)

const (
	ColorTicket  = 0x0099ff
	ColorSuccess = 0x00ff00
	ColorError   = 0xff0000
)

type Kind int

const (
	KindSuccess Kind = iota
	KindError
)

type Formatter struct {
	now func() time.Time
}

func NewFormatter(now func() time.Time) *Formatter {
	if now == nil {
		now = time.Now
	}
	return &Formatter{now: now}
}

func (f *Formatter) Envelope(kind Kind, message string) domain.Embed {
	color := ColorSuccess
	if kind == KindError {
		color = ColorError
	}
	return domain.Embed{Description: message, Color: color, Timestamp: f.now().UTC()}
}

func (f *Formatter) Success(message string) domain.Embed {
	return f.Envelope(KindSuccess, message)
}

func (f *Formatter) Error(message string) domain.Embed {
	return f.Envelope(KindError, message)
}

// TicketIntro is the first message posted in a freshly opened ticket channel.
func (f *Formatter) TicketIntro(user domain.User, content string) domain.Embed {
	return domain.Embed{
		Title:       "New Support Ticket",
		Description: content,
		Color:       ColorTicket,
		Timestamp:   f.now().UTC(),
		Author:      author(user),
		Fields:      []domain.EmbedField{{Name: "User ID", Value: user.ID, Inline: true}},
	}
}

func (f *Formatter) UserMessage(user domain.User, content string) domain.Embed {
	return domain.Embed{
		Title:       fmt.Sprintf("Message from %s", user.Username),
		Description: content,
		Color:       ColorTicket,
		Timestamp:   f.now().UTC(),
		Author:      author(user),
	}
}

func (f *Formatter) StaffReply(staff domain.User, text string) domain.Embed {
	return domain.Embed{
		Title:       fmt.Sprintf("Reply from %s", staff.Username),
		Description: text,
		Color:       ColorSuccess,
		Timestamp:   f.now().UTC(),
		Author:      author(staff),
	}
}

func (f *Formatter) Closed(user domain.User) domain.Embed {
	return f.Success(fmt.Sprintf("Thanks for contacting support, %s! Your ticket has been closed.", user.Name()))
}

func author(user domain.User) *domain.EmbedAuthor {
	return &domain.EmbedAuthor{Name: user.Name(), IconURL: user.AvatarURL}
}
