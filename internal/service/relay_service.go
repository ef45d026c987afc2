package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hanamilabs/discord-modmail/internal/domain"
	"github.com/hanamilabs/discord-modmail/internal/notify"
	"github.com/hanamilabs/discord-modmail/internal/ports"
)

const (
	msgProcessingFailed = "An error occurred while processing your message."
	msgUnexpected       = "An unexpected error occurred."
	msgNeedManage       = "You need Manage Messages permission to use this command."
	msgNotTicket        = "This is not a valid ticket channel."
	msgOwnerNotFound    = "Ticket owner not found."
	msgDMForbidden      = "Cannot send message to this user (DMs might be disabled)."
)

// RelayService routes user DMs into ticket channels and staff commands back
// to ticket owners. Work for one ticket owner is serialized through queue.
type RelayService struct {
	logger    *slog.Logger
	platform  ports.Platform
	store     ports.TicketStore
	lifecycle *LifecycleService
	format    *notify.Formatter
	queue     *KeyedQueue
}

func NewRelayService(
	logger *slog.Logger,
	platform ports.Platform,
	store ports.TicketStore,
	lifecycle *LifecycleService,
	format *notify.Formatter,
) *RelayService {
	return &RelayService{
		logger:    logger,
		platform:  platform,
		store:     store,
		lifecycle: lifecycle,
		format:    format,
		queue:     NewKeyedQueue(),
	}
}

// InFlight reports the number of handlers running or waiting for their turn.
func (s *RelayService) InFlight() int {
	return s.queue.InFlight()
}

// HandleUserMessage forwards a DM into the sender's ticket, opening one
// first when the sender has none or their channel is gone.
func (s *RelayService) HandleUserMessage(ctx context.Context, msg domain.InboundMessage, sink ports.ResponseSink) error {
	if msg.Author.Bot || strings.TrimSpace(msg.Content) == "" {
		return nil
	}

	err := s.queue.Run(ctx, msg.Author.ID, func(ctx context.Context) error {
		return s.relayUserMessage(ctx, msg, sink)
	})
	if err != nil {
		s.logger.Error("handle user message failed", "user_id", msg.Author.ID, "error", err)
		s.respond(ctx, sink, s.format.Error(msgProcessingFailed))
	}
	return err
}

func (s *RelayService) relayUserMessage(ctx context.Context, msg domain.InboundMessage, sink ports.ResponseSink) error {
	user := msg.Author
	if ticket, ok := s.store.Get(user.ID); ok {
		_, exists, err := s.platform.Channel(ctx, ticket.ChannelID)
		if err != nil {
			return fmt.Errorf("look up ticket channel: %w", err)
		}
		if exists {
			if err := s.platform.SendChannelEmbed(ctx, ticket.ChannelID, s.format.UserMessage(user, msg.Content)); err != nil {
				return fmt.Errorf("forward message to ticket: %w", err)
			}
			s.lifecycle.record(ctx, domain.TicketEvent{Kind: domain.TicketEventUserMessage, UserID: user.ID, ChannelID: ticket.ChannelID, ActorID: user.ID, Content: msg.Content})
			s.respond(ctx, sink, s.format.Success("Message sent!"))
			return nil
		}
		s.logger.Warn("ticket channel no longer exists; reopening", "user_id", user.ID, "channel_id", ticket.ChannelID)
		s.store.Remove(user.ID)
	}

	if _, err := s.lifecycle.OpenTicket(ctx, user, msg.Content); err != nil {
		return err
	}
	s.respond(ctx, sink, s.format.Success("Ticket created successfully!"))
	return nil
}

// HandleStaffReply sends text to the owner of the ticket in cmd.ChannelID
// and mirrors it into the channel. Outside the ticket category it does
// nothing.
func (s *RelayService) HandleStaffReply(ctx context.Context, cmd domain.StaffCommand, text string, sink ports.ResponseSink) error {
	ticket, ok, err := s.resolveTicket(ctx, cmd)
	if err != nil || !ok {
		return s.staffFailure(ctx, "reply", cmd, sink, err)
	}

	err = s.queue.Run(ctx, ticket.UserID, func(ctx context.Context) error {
		current, ok := s.store.Get(ticket.UserID)
		if !ok || current.ChannelID != cmd.ChannelID {
			return domain.NewTicketError(domain.ErrNotATicketChannel, msgNotTicket, nil)
		}
		return s.reply(ctx, current, cmd.Author, text, sink)
	})
	return s.staffFailure(ctx, "reply", cmd, sink, err)
}

func (s *RelayService) reply(ctx context.Context, ticket domain.Ticket, staff domain.User, text string, sink ports.ResponseSink) error {
	owner, found, err := s.platform.FetchUser(ctx, ticket.UserID)
	if err != nil {
		return domain.NewTicketError(domain.ErrOperationFailed, msgUnexpected, fmt.Errorf("fetch ticket owner: %w", err))
	}
	if !found {
		return domain.NewTicketError(domain.ErrTicketOwnerNotFound, msgOwnerNotFound, nil)
	}

	embed := s.format.StaffReply(staff, text)
	if err := s.platform.SendDirectEmbed(ctx, owner.ID, embed); err != nil {
		if errors.Is(err, domain.ErrDeliveryForbidden) {
			return domain.NewTicketError(domain.ErrDeliveryForbidden, msgDMForbidden, err)
		}
		return domain.NewTicketError(domain.ErrOperationFailed, msgUnexpected, fmt.Errorf("send reply to owner: %w", err))
	}
	if err := s.platform.SendChannelEmbed(ctx, ticket.ChannelID, embed); err != nil {
		return domain.NewTicketError(domain.ErrOperationFailed, msgUnexpected, fmt.Errorf("mirror reply into ticket: %w", err))
	}

	s.lifecycle.record(ctx, domain.TicketEvent{Kind: domain.TicketEventStaffReply, UserID: ticket.UserID, ChannelID: ticket.ChannelID, ActorID: staff.ID, Content: text})
	s.respond(ctx, sink, s.format.Success(fmt.Sprintf("Reply sent to %s", owner.Username)))
	return nil
}

// HandleStaffClose closes the ticket in cmd.ChannelID. Outside the ticket
// category it does nothing.
func (s *RelayService) HandleStaffClose(ctx context.Context, cmd domain.StaffCommand, sink ports.ResponseSink) error {
	ticket, ok, err := s.resolveTicket(ctx, cmd)
	if err != nil || !ok {
		return s.staffFailure(ctx, "close", cmd, sink, err)
	}

	err = s.queue.Run(ctx, ticket.UserID, func(ctx context.Context) error {
		current, ok := s.store.Get(ticket.UserID)
		if !ok || current.ChannelID != cmd.ChannelID {
			return domain.NewTicketError(domain.ErrNotATicketChannel, msgNotTicket, nil)
		}
		return s.lifecycle.CloseTicket(ctx, current, cmd.Author, sink)
	})
	return s.staffFailure(ctx, "close", cmd, sink, err)
}

// resolveTicket runs the staff pre-checks. ok=false with a nil error means
// the channel is not under the ticket category and the command is ignored.
func (s *RelayService) resolveTicket(ctx context.Context, cmd domain.StaffCommand) (domain.Ticket, bool, error) {
	category, err := s.lifecycle.Category(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCategoryMissing) {
			s.logger.Warn("staff command ignored: ticket category missing", "channel_id", cmd.ChannelID)
			return domain.Ticket{}, false, nil
		}
		return domain.Ticket{}, false, domain.NewTicketError(domain.ErrOperationFailed, msgUnexpected, err)
	}

	channel, found, err := s.platform.Channel(ctx, cmd.ChannelID)
	if err != nil {
		return domain.Ticket{}, false, domain.NewTicketError(domain.ErrOperationFailed, msgUnexpected, fmt.Errorf("look up channel: %w", err))
	}
	if !found || channel.ParentID != category.ID {
		return domain.Ticket{}, false, nil
	}

	allowed, err := s.platform.HasPermission(ctx, cmd.ChannelID, cmd.Author.ID, domain.PermissionManageMessages)
	if err != nil {
		return domain.Ticket{}, false, domain.NewTicketError(domain.ErrOperationFailed, msgUnexpected, fmt.Errorf("check permissions: %w", err))
	}
	if !allowed {
		return domain.Ticket{}, false, domain.NewTicketError(domain.ErrPermissionDenied, msgNeedManage, nil)
	}

	ticket, found := s.store.FindByChannel(cmd.ChannelID)
	if !found {
		return domain.Ticket{}, false, domain.NewTicketError(domain.ErrNotATicketChannel, msgNotTicket, nil)
	}
	return ticket, true, nil
}

// staffFailure logs err and reports it through sink. It passes err through
// so callers can return it directly.
func (s *RelayService) staffFailure(ctx context.Context, op string, cmd domain.StaffCommand, sink ports.ResponseSink, err error) error {
	if err == nil {
		return nil
	}
	level := slog.LevelError
	if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrNotATicketChannel) {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "staff command failed", "op", op, "channel_id", cmd.ChannelID, "author_id", cmd.Author.ID, "error", err)
	s.respond(ctx, sink, s.format.Error(domain.UserMessage(err, msgUnexpected)))
	return err
}

func (s *RelayService) respond(ctx context.Context, sink ports.ResponseSink, embed domain.Embed) {
	if sink == nil {
		return
	}
	if err := sink.Respond(ctx, embed); err != nil {
		s.logger.Warn("response not delivered", "error", err)
	}
}
