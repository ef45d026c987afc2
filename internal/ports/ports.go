package ports

import (
	"context"

	"github.com/hanamilabs/discord-modmail/internal/domain"
)

// Platform is the subset of the chat platform the relay needs. Lookups
// return ok=false rather than an error when the object does not exist.
type Platform interface {
	FindCategory(ctx context.Context, guildID string, name string) (domain.Channel, bool, error)
	CreateCategory(ctx context.Context, guildID string, name string, overwrites []domain.Overwrite) (domain.Channel, error)
	AdminRoleIDs(ctx context.Context, guildID string) ([]string, error)
	CreateTextChannel(ctx context.Context, guildID string, spec domain.ChannelSpec) (domain.Channel, error)
	Channel(ctx context.Context, channelID string) (domain.Channel, bool, error)
	DeleteChannel(ctx context.Context, channelID string) error
	SendChannelEmbed(ctx context.Context, channelID string, embed domain.Embed) error
	SendDirectEmbed(ctx context.Context, userID string, embed domain.Embed) error
	FetchUser(ctx context.Context, userID string) (domain.User, bool, error)
	HasPermission(ctx context.Context, channelID string, userID string, perm domain.Permission) (bool, error)
}

// ResponseSink answers whoever triggered a handler: a DM reply, a channel
// message, or an ephemeral interaction response.
type ResponseSink interface {
	Respond(ctx context.Context, embed domain.Embed) error
}

type TicketStore interface {
	Add(userID string, channelID string) domain.Ticket
	Get(userID string) (domain.Ticket, bool)
	Remove(userID string)
	FindByChannel(channelID string) (domain.Ticket, bool)
	List() []domain.Ticket
}

type TicketArchive interface {
	RecordEvent(ctx context.Context, event domain.TicketEvent) error
	ListEvents(ctx context.Context, userID string, limit int) ([]domain.TicketEvent, error)
}
