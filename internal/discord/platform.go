package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hanamilabs/discord-modmail/internal/domain"
)

// Platform implements ports.Platform on top of a discordgo session.
type Platform struct {
	session *discordgo.Session
}

func NewPlatform(session *discordgo.Session) *Platform {
	return &Platform{session: session}
}

func (p *Platform) FindCategory(ctx context.Context, guildID string, name string) (domain.Channel, bool, error) {
	channels, err := p.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return domain.Channel{}, false, classify(err)
	}
	for _, channel := range channels {
		if channel.Type == discordgo.ChannelTypeGuildCategory && channel.Name == name {
			return fromChannel(channel), true, nil
		}
	}
	return domain.Channel{}, false, nil
}

func (p *Platform) CreateCategory(ctx context.Context, guildID string, name string, overwrites []domain.Overwrite) (domain.Channel, error) {
	channel, err := p.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildCategory,
		PermissionOverwrites: toOverwrites(overwrites),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return domain.Channel{}, classify(err)
	}
	return fromChannel(channel), nil
}

// AdminRoleIDs lists the guild roles carrying the Administrator permission.
func (p *Platform) AdminRoleIDs(ctx context.Context, guildID string) ([]string, error) {
	roles, err := p.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}
	return adminRoleIDs(roles), nil
}

func (p *Platform) CreateTextChannel(ctx context.Context, guildID string, spec domain.ChannelSpec) (domain.Channel, error) {
	channel, err := p.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                spec.Topic,
		ParentID:             spec.ParentID,
		PermissionOverwrites: toOverwrites(spec.Overwrites),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return domain.Channel{}, classify(err)
	}
	return fromChannel(channel), nil
}

func (p *Platform) Channel(ctx context.Context, channelID string) (domain.Channel, bool, error) {
	if channel, err := p.session.State.Channel(channelID); err == nil {
		return fromChannel(channel), true, nil
	}
	channel, err := p.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknown(err, discordgo.ErrCodeUnknownChannel) {
			return domain.Channel{}, false, nil
		}
		return domain.Channel{}, false, classify(err)
	}
	return fromChannel(channel), true, nil
}

func (p *Platform) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := p.session.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return classify(err)
	}
	return nil
}

func (p *Platform) SendChannelEmbed(ctx context.Context, channelID string, embed domain.Embed) error {
	if _, err := p.session.ChannelMessageSendEmbed(channelID, toEmbed(embed), discordgo.WithContext(ctx)); err != nil {
		return classify(err)
	}
	return nil
}

func (p *Platform) SendDirectEmbed(ctx context.Context, userID string, embed domain.Embed) error {
	dm, err := p.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	if _, err := p.session.ChannelMessageSendEmbed(dm.ID, toEmbed(embed), discordgo.WithContext(ctx)); err != nil {
		return classify(err)
	}
	return nil
}

func (p *Platform) FetchUser(ctx context.Context, userID string) (domain.User, bool, error) {
	user, err := p.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknown(err, discordgo.ErrCodeUnknownUser) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, classify(err)
	}
	return fromUser(user), true, nil
}

func (p *Platform) HasPermission(ctx context.Context, channelID string, userID string, perm domain.Permission) (bool, error) {
	granted, err := p.session.UserChannelPermissions(userID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		return false, classify(err)
	}
	return hasPermission(granted, perm), nil
}

func hasPermission(granted int64, perm domain.Permission) bool {
	if granted&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return granted&int64(perm) == int64(perm)
}

func adminRoleIDs(roles []*discordgo.Role) []string {
	ids := make([]string, 0, len(roles))
	for _, role := range roles {
		if role.Permissions&discordgo.PermissionAdministrator != 0 {
			ids = append(ids, role.ID)
		}
	}
	return ids
}

func fromChannel(channel *discordgo.Channel) domain.Channel {
	return domain.Channel{
		ID:       channel.ID,
		GuildID:  channel.GuildID,
		ParentID: channel.ParentID,
		Name:     channel.Name,
	}
}

func fromUser(user *discordgo.User) domain.User {
	if user == nil {
		return domain.User{}
	}
	return domain.User{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.GlobalName,
		AvatarURL:   user.AvatarURL(""),
		Bot:         user.Bot,
	}
}

func toOverwrites(overwrites []domain.Overwrite) []*discordgo.PermissionOverwrite {
	out := make([]*discordgo.PermissionOverwrite, 0, len(overwrites))
	for _, ow := range overwrites {
		kind := discordgo.PermissionOverwriteTypeRole
		if ow.Target == domain.OverwriteMember {
			kind = discordgo.PermissionOverwriteTypeMember
		}
		out = append(out, &discordgo.PermissionOverwrite{
			ID:    ow.ID,
			Type:  kind,
			Allow: int64(ow.Allow),
			Deny:  int64(ow.Deny),
		})
	}
	return out
}

func toEmbed(embed domain.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       embed.Title,
		Description: embed.Description,
		Color:       embed.Color,
	}
	if !embed.Timestamp.IsZero() {
		out.Timestamp = embed.Timestamp.UTC().Format(time.RFC3339)
	}
	if embed.Author != nil {
		out.Author = &discordgo.MessageEmbedAuthor{Name: embed.Author.Name, IconURL: embed.Author.IconURL}
	}
	for _, field := range embed.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: field.Name, Value: field.Value, Inline: field.Inline})
	}
	return out
}
