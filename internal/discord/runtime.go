package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hanamilabs/discord-modmail/internal/domain"
	"github.com/hanamilabs/discord-modmail/internal/notify"
	"github.com/hanamilabs/discord-modmail/internal/service"
)

const (
	intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	handlerTimeout = 2 * time.Minute
	msgOnlyTickets = "This command can only be used in ticket channels."
)

// NewSession creates a gateway session with the intents the relay needs and
// routes discordgo's own logging through logger.
func NewSession(token string, logger *slog.Logger) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = intents
	session.LogLevel = discordgo.LogWarning
	installLogger(logger)
	return session, nil
}

// CheckConnectivity verifies the token by fetching the bot's own user.
func CheckConnectivity(ctx context.Context, session *discordgo.Session) (domain.User, error) {
	me, err := session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return domain.User{}, classify(err)
	}
	return fromUser(me), nil
}

// SlashCommands are the guild commands staff use inside ticket channels.
// They are hidden from members without Manage Messages.
func SlashCommands() []*discordgo.ApplicationCommand {
	manageMessages := int64(discordgo.PermissionManageMessages)
	inDM := false
	return []*discordgo.ApplicationCommand{
		{
			Name:                     service.CommandReply,
			Description:              "Reply to the ticket owner",
			DefaultMemberPermissions: &manageMessages,
			DMPermission:             &inDM,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message",
					Description: "Message to send to the user",
					Required:    true,
				},
			},
		},
		{
			Name:                     service.CommandClose,
			Description:              "Close this ticket",
			DefaultMemberPermissions: &manageMessages,
			DMPermission:             &inDM,
		},
	}
}

// RegisterCommands replaces the guild's slash commands with SlashCommands.
func RegisterCommands(ctx context.Context, session *discordgo.Session, guildID string) ([]*discordgo.ApplicationCommand, error) {
	appID := ""
	if session.State != nil && session.State.User != nil {
		appID = session.State.User.ID
	}
	if appID == "" {
		me, err := session.User("@me", discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("fetch application user: %w", classify(err))
		}
		appID = me.ID
	}
	registered, err := session.ApplicationCommandBulkOverwrite(appID, guildID, SlashCommands(), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("register slash commands: %w", classify(err))
	}
	return registered, nil
}

type RuntimeConfig struct {
	GuildID      string
	PresenceText string
}

// Runtime connects gateway events to the relay and command services.
type Runtime struct {
	session   *discordgo.Session
	logger    *slog.Logger
	cfg       RuntimeConfig
	lifecycle *service.LifecycleService
	relay     *service.RelayService
	commands  *service.CommandService
	format    *notify.Formatter

	ctx       context.Context
	handlers  sync.WaitGroup
	connected atomic.Bool
}

func NewRuntime(
	session *discordgo.Session,
	logger *slog.Logger,
	cfg RuntimeConfig,
	lifecycle *service.LifecycleService,
	relay *service.RelayService,
	commands *service.CommandService,
	format *notify.Formatter,
) *Runtime {
	return &Runtime{
		session:   session,
		logger:    logger,
		cfg:       cfg,
		lifecycle: lifecycle,
		relay:     relay,
		commands:  commands,
		format:    format,
	}
}

// Connected reports whether the gateway session is currently up.
func (r *Runtime) Connected() bool {
	return r.connected.Load()
}

// Run opens the gateway and blocks until ctx is done, then closes the
// session and waits for running handlers.
func (r *Runtime) Run(ctx context.Context) error {
	r.ctx = ctx
	r.session.AddHandler(r.onReady)
	r.session.AddHandler(r.onResumed)
	r.session.AddHandler(r.onDisconnect)
	r.session.AddHandler(r.onMessageCreate)
	r.session.AddHandler(r.onInteractionCreate)

	if err := r.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}

	<-ctx.Done()
	r.connected.Store(false)
	err := r.session.Close()
	r.handlers.Wait()
	return err
}

func (r *Runtime) onReady(s *discordgo.Session, ready *discordgo.Ready) {
	r.connected.Store(true)
	r.logger.Info("discord gateway ready", "user", ready.User.Username, "user_id", ready.User.ID, "guilds", len(ready.Guilds))

	if err := s.UpdateWatchStatus(0, r.cfg.PresenceText); err != nil {
		r.logger.Warn("set presence failed", "error", err)
	}

	if !inGuild(ready.Guilds, r.cfg.GuildID) {
		r.logger.Error("bot is not a member of the configured guild", "guild_id", r.cfg.GuildID)
		return
	}

	r.dispatch(func(ctx context.Context) {
		category, err := r.lifecycle.EnsureCategory(ctx)
		if err != nil {
			r.logger.Error("ensure ticket category failed", "guild_id", r.cfg.GuildID, "error", err)
		} else {
			r.logger.Info("ticket category ready", "category_id", category.ID, "name", category.Name)
		}

		registered, err := RegisterCommands(ctx, s, r.cfg.GuildID)
		if err != nil {
			r.logger.Error("slash command registration failed", "error", err)
			return
		}
		r.logger.Info("slash commands registered", "count", len(registered))
	})
}

func (r *Runtime) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	r.connected.Store(true)
	r.logger.Info("discord gateway resumed")
}

func (r *Runtime) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	r.connected.Store(false)
	r.logger.Warn("discord gateway disconnected")
}

func (r *Runtime) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	msg := domain.InboundMessage{
		MessageID: m.ID,
		ChannelID: m.ChannelID,
		Author:    fromUser(m.Author),
		Content:   m.Content,
	}

	switch m.GuildID {
	case "":
		r.dispatch(func(ctx context.Context) {
			_ = r.relay.HandleUserMessage(ctx, msg, NewReplySink(s, m.Message))
		})
	case r.cfg.GuildID:
		r.dispatch(func(ctx context.Context) {
			if err := r.commands.HandleGuildText(ctx, msg, NewChannelSink(s, m.ChannelID)); err != nil {
				r.logger.Debug("text command finished with error", "channel_id", m.ChannelID, "error", err)
			}
		})
	}
}

func (r *Runtime) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || i.GuildID != r.cfg.GuildID {
		return
	}
	data := i.ApplicationCommandData()
	cmd := domain.StaffCommand{ChannelID: i.ChannelID, Author: interactionAuthor(i.Interaction)}
	sink := NewInteractionSink(s, i.Interaction)

	r.dispatch(func(ctx context.Context) {
		if err := r.commands.HandleSlash(ctx, data.Name, slashOptions(data.Options), cmd, sink); err != nil {
			r.logger.Debug("slash command finished with error", "command", data.Name, "channel_id", i.ChannelID, "error", err)
		}
		// Interactions must be answered even when the command was ignored.
		if !sink.Responded() {
			if err := sink.Respond(ctx, r.format.Error(msgOnlyTickets)); err != nil {
				r.logger.Warn("interaction fallback response failed", "command", data.Name, "error", err)
			}
		}
	})
}

// dispatch runs fn with a bounded context derived from the runtime context.
// discordgo already calls each handler on its own goroutine.
func (r *Runtime) dispatch(fn func(context.Context)) {
	base := r.ctx
	if base == nil {
		base = context.Background()
	}
	r.handlers.Add(1)
	defer r.handlers.Done()

	ctx, cancel := context.WithTimeout(base, handlerTimeout)
	defer cancel()
	fn(ctx)
}

func inGuild(guilds []*discordgo.Guild, guildID string) bool {
	for _, guild := range guilds {
		if guild.ID == guildID {
			return true
		}
	}
	return false
}

func interactionAuthor(i *discordgo.Interaction) domain.User {
	if i.Member != nil && i.Member.User != nil {
		return fromUser(i.Member.User)
	}
	return fromUser(i.User)
}

func slashOptions(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	out := make(map[string]string, len(options))
	for _, option := range options {
		if option.Type == discordgo.ApplicationCommandOptionString {
			out[option.Name] = option.StringValue()
		}
	}
	return out
}
