package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hanamilabs/discord-modmail/internal/domain"
	"github.com/hanamilabs/discord-modmail/internal/notify"
	"github.com/hanamilabs/discord-modmail/internal/ports"
)

const (
	staffCategoryAllow = domain.PermissionViewChannel | domain.PermissionSendMessages | domain.PermissionManageMessages | domain.PermissionManageChannels
	staffTicketAllow   = domain.PermissionViewChannel | domain.PermissionSendMessages | domain.PermissionManageMessages
	ownerTicketAllow   = domain.PermissionViewChannel | domain.PermissionSendMessages
)

// LifecycleService creates and tears down ticket channels.
type LifecycleService struct {
	logger       *slog.Logger
	platform     ports.Platform
	store        ports.TicketStore
	archive      ports.TicketArchive
	format       *notify.Formatter
	guildID      string
	categoryName string
	closeDelay   time.Duration
}

// NewLifecycleService wires the lifecycle. archive may be nil.
func NewLifecycleService(
	logger *slog.Logger,
	platform ports.Platform,
	store ports.TicketStore,
	archive ports.TicketArchive,
	format *notify.Formatter,
	guildID string,
	categoryName string,
	closeDelay time.Duration,
) *LifecycleService {
	return &LifecycleService{
		logger:       logger,
		platform:     platform,
		store:        store,
		archive:      archive,
		format:       format,
		guildID:      guildID,
		categoryName: categoryName,
		closeDelay:   closeDelay,
	}
}

// Category returns the ticket category, or an error matching
// domain.ErrCategoryMissing when the guild has none.
func (s *LifecycleService) Category(ctx context.Context) (domain.Channel, error) {
	category, ok, err := s.platform.FindCategory(ctx, s.guildID, s.categoryName)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("find ticket category: %w", err)
	}
	if !ok {
		return domain.Channel{}, domain.NewTicketError(domain.ErrCategoryMissing, "", fmt.Errorf("category %q not found", s.categoryName))
	}
	return category, nil
}

// EnsureCategory returns the ticket category, creating it when absent.
func (s *LifecycleService) EnsureCategory(ctx context.Context) (domain.Channel, error) {
	category, err := s.Category(ctx)
	if err == nil {
		return category, nil
	}
	if !errors.Is(err, domain.ErrCategoryMissing) {
		return domain.Channel{}, err
	}

	adminRoles, err := s.platform.AdminRoleIDs(ctx, s.guildID)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("list admin roles: %w", err)
	}
	category, err = s.platform.CreateCategory(ctx, s.guildID, s.categoryName, s.overwrites(adminRoles, staffCategoryAllow, ""))
	if err != nil {
		return domain.Channel{}, fmt.Errorf("create ticket category: %w", err)
	}
	s.logger.Info("created ticket category", "category_id", category.ID, "name", s.categoryName, "admin_roles", len(adminRoles))
	return category, nil
}

// OpenTicket creates the channel for user, registers the ticket and posts the
// intro message. The ticket stays registered when only the intro fails,
// since the channel already exists.
func (s *LifecycleService) OpenTicket(ctx context.Context, user domain.User, content string) (domain.Ticket, error) {
	category, err := s.Category(ctx)
	if err != nil {
		return domain.Ticket{}, err
	}

	adminRoles, err := s.platform.AdminRoleIDs(ctx, s.guildID)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("list admin roles: %w", err)
	}

	channel, err := s.platform.CreateTextChannel(ctx, s.guildID, domain.ChannelSpec{
		Name:       TicketChannelName(user.ID),
		Topic:      fmt.Sprintf("Modmail ticket for %s", user.Username),
		ParentID:   category.ID,
		Overwrites: s.overwrites(adminRoles, staffTicketAllow, user.ID),
	})
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("create ticket channel: %w", err)
	}

	ticket := s.store.Add(user.ID, channel.ID)
	s.logger.Info("ticket opened", "user_id", user.ID, "channel_id", channel.ID)
	s.record(ctx, domain.TicketEvent{Kind: domain.TicketEventOpened, UserID: user.ID, ChannelID: channel.ID, ActorID: user.ID, Content: content})

	if err := s.platform.SendChannelEmbed(ctx, channel.ID, s.format.TicketIntro(user, content)); err != nil {
		return ticket, fmt.Errorf("post ticket intro: %w", err)
	}
	return ticket, nil
}

// CloseTicket acknowledges through sink, waits the close delay, deletes the
// channel and then drops the ticket. The ticket is kept when deletion fails.
func (s *LifecycleService) CloseTicket(ctx context.Context, ticket domain.Ticket, closedBy domain.User, sink ports.ResponseSink) error {
	if err := sink.Respond(ctx, s.format.Success("Closing ticket...")); err != nil {
		s.logger.Warn("close acknowledgement failed", "channel_id", ticket.ChannelID, "error", err)
	}

	if s.closeDelay > 0 {
		timer := time.NewTimer(s.closeDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.NewTicketError(domain.ErrOperationFailed, "Failed to close ticket due to an error.", ctx.Err())
		case <-timer.C:
		}
	}

	if err := s.platform.DeleteChannel(ctx, ticket.ChannelID); err != nil {
		return domain.NewTicketError(domain.ErrOperationFailed, "Failed to close ticket due to an error.", fmt.Errorf("delete channel %s: %w", ticket.ChannelID, err))
	}

	s.store.Remove(ticket.UserID)
	s.logger.Info("ticket closed", "user_id", ticket.UserID, "channel_id", ticket.ChannelID, "closed_by", closedBy.ID)
	s.record(ctx, domain.TicketEvent{Kind: domain.TicketEventClosed, UserID: ticket.UserID, ChannelID: ticket.ChannelID, ActorID: closedBy.ID})

	owner, ok, err := s.platform.FetchUser(ctx, ticket.UserID)
	if err != nil {
		s.logger.Warn("fetch ticket owner for close notice failed", "user_id", ticket.UserID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	if err := s.platform.SendDirectEmbed(ctx, owner.ID, s.format.Closed(owner)); err != nil {
		s.logger.Warn("close notice not delivered", "user_id", ticket.UserID, "error", err)
	}
	return nil
}

// overwrites denies @everyone, grants staffAllow to every admin role and,
// when ownerID is set, the owner grants.
func (s *LifecycleService) overwrites(adminRoleIDs []string, staffAllow domain.Permission, ownerID string) []domain.Overwrite {
	out := make([]domain.Overwrite, 0, len(adminRoleIDs)+2)
	// The @everyone role shares the guild's id.
	out = append(out, domain.Overwrite{ID: s.guildID, Target: domain.OverwriteRole, Deny: domain.PermissionViewChannel})
	for _, roleID := range adminRoleIDs {
		out = append(out, domain.Overwrite{ID: roleID, Target: domain.OverwriteRole, Allow: staffAllow})
	}
	if ownerID != "" {
		out = append(out, domain.Overwrite{ID: ownerID, Target: domain.OverwriteMember, Allow: ownerTicketAllow})
	}
	return out
}

func (s *LifecycleService) record(ctx context.Context, event domain.TicketEvent) {
	if s.archive == nil {
		return
	}
	if err := s.archive.RecordEvent(ctx, event); err != nil {
		s.logger.Warn("archive ticket event failed", "kind", event.Kind, "user_id", event.UserID, "error", err)
	}
}

func TicketChannelName(userID string) string {
	return "ticket-" + userID
}
