package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/hanamilabs/discord-modmail/internal/domain"
)

// ReplySink answers a message by replying to it.
type ReplySink struct {
	session   *discordgo.Session
	channelID string
	messageID string
	guildID   string
}

func NewReplySink(session *discordgo.Session, m *discordgo.Message) *ReplySink {
	return &ReplySink{session: session, channelID: m.ChannelID, messageID: m.ID, guildID: m.GuildID}
}

func (s *ReplySink) Respond(ctx context.Context, embed domain.Embed) error {
	_, err := s.session.ChannelMessageSendComplex(s.channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{toEmbed(embed)},
		Reference: &discordgo.MessageReference{
			MessageID: s.messageID,
			ChannelID: s.channelID,
			GuildID:   s.guildID,
		},
	}, discordgo.WithContext(ctx))
	return classify(err)
}

// ChannelSink posts into the channel the command came from.
type ChannelSink struct {
	session   *discordgo.Session
	channelID string
}

func NewChannelSink(session *discordgo.Session, channelID string) *ChannelSink {
	return &ChannelSink{session: session, channelID: channelID}
}

func (s *ChannelSink) Respond(ctx context.Context, embed domain.Embed) error {
	_, err := s.session.ChannelMessageSendEmbed(s.channelID, toEmbed(embed), discordgo.WithContext(ctx))
	return classify(err)
}

// InteractionSink answers a slash command privately. The first response
// completes the interaction; later ones are sent as follow-ups.
type InteractionSink struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction

	mu        sync.Mutex
	responded bool
}

func NewInteractionSink(session *discordgo.Session, interaction *discordgo.Interaction) *InteractionSink {
	return &InteractionSink{session: session, interaction: interaction}
}

func (s *InteractionSink) Respond(ctx context.Context, embed domain.Embed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	embeds := []*discordgo.MessageEmbed{toEmbed(embed)}
	if !s.responded {
		err := s.session.InteractionRespond(s.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: embeds,
				Flags:  discordgo.MessageFlagsEphemeral,
			},
		}, discordgo.WithContext(ctx))
		if err != nil {
			return classify(err)
		}
		s.responded = true
		return nil
	}

	_, err := s.session.FollowupMessageCreate(s.interaction, false, &discordgo.WebhookParams{
		Embeds: embeds,
		Flags:  discordgo.MessageFlagsEphemeral,
	}, discordgo.WithContext(ctx))
	return classify(err)
}

// Responded reports whether the interaction has been answered.
func (s *InteractionSink) Responded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responded
}
